package core

import (
	"golang.org/x/sys/cpu"
)

// CPUFeatures names the widest SIMD extension the host supports: "avx512", "avx2" or "fallback".
// It is recorded next to benchmark timings so runs on different hosts can be told apart.
func CPUFeatures() string {
	switch {
	case cpu.X86.HasAVX512F:
		return "avx512"
	case cpu.X86.HasAVX2 && cpu.X86.HasFMA:
		return "avx2"
	default:
		return "fallback"
	}
}
