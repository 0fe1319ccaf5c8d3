package main

import (
	"fmt"

	"github.com/Tutortoise/frame-detection-service/models"
	"github.com/Tutortoise/frame-detection-service/pipeline"
)

const (
	MsgIdle = "Waiting for the first frame from the source."

	MsgHealthy = "Detector is producing results."

	MsgStopped = "Pipeline is stopped."

	// degradedAfter consecutive failed cycles turns /healthz unhealthy.
	degradedAfter = 10
)

// healthMessage summarizes a snapshot for /healthz. ok is false once the loop has
// stopped or keeps failing.
func healthMessage(s models.Snapshot) (ok bool, msg string) {
	switch {
	case s.State == pipeline.Stopped.String():
		return false, MsgStopped
	case s.ConsecutiveFailures >= degradedAfter:
		return false, fmt.Sprintf("Detector failed %d cycles in a row: %s", s.ConsecutiveFailures, s.LastError)
	case s.State == pipeline.Idle.String():
		return true, MsgIdle
	}
	return true, MsgHealthy
}
