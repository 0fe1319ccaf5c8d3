package pipeline

// State is the lifecycle phase of the inference loop.
type State int32

const (
	// Idle: no frame has been published yet.
	Idle State = iota
	// Processing: one cycle is in flight.
	Processing
	// Published: the latest cycle's results are available.
	Published
	// Stopped is terminal.
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Processing:
		return "processing"
	case Published:
		return "published"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}
