package config

import (
	"fmt"

	"github.com/Tutortoise/frame-detection-service/detections"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", detections.ErrConfiguration, fmt.Sprintf(format, args...))
}
