package core

import "testing"

func TestCPUFeatures(t *testing.T) {
	switch got := CPUFeatures(); got {
	case "avx512", "avx2", "fallback":
	default:
		t.Errorf("CPUFeatures() = %q; want one of avx512, avx2, fallback", got)
	}
}
