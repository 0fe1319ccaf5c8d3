package detections

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// CPUFeatures lists the vector extensions of the host that matter to the inference
// runtimes, for startup logs and metrics.
func CPUFeatures() []string {
	var features []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasSSE41 {
			features = append(features, "sse4.1")
		}
		if cpu.X86.HasAVX2 {
			features = append(features, "avx2")
		}
		if cpu.X86.HasAVX512F {
			features = append(features, "avx512f")
		}
		if cpu.X86.HasFMA {
			features = append(features, "fma")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			features = append(features, "asimd")
		}
		if cpu.ARM64.HasFPHP {
			features = append(features, "fphp")
		}
		if cpu.ARM64.HasASIMDDP {
			features = append(features, "asimddp")
		}
	case "arm":
		if cpu.ARM.HasNEON {
			features = append(features, "neon")
		}
	}
	return features
}
