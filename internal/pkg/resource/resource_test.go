package resource

import "testing"

func TestDetectReturnsNonZeroCores(t *testing.T) {
	caps := Detect()
	if caps.CPUCores <= 0 {
		t.Errorf("CPUCores = %d, want > 0", caps.CPUCores)
	}
}

func TestClampBatchSizeRespectsFDBudget(t *testing.T) {
	caps := Capabilities{FDLimitSoft: 1024}
	if got := caps.ClampBatchSize(10000); got > 256 {
		t.Errorf("ClampBatchSize(10000) = %d, want <= 256", got)
	}
	if got := caps.ClampBatchSize(10); got != 10 {
		t.Errorf("ClampBatchSize(10) = %d, want 10 (under budget)", got)
	}
}

func TestClampHostgroupRespectsFDBudget(t *testing.T) {
	caps := Capabilities{FDLimitSoft: 800}
	if got := caps.ClampHostgroup(1000); got > 100 {
		t.Errorf("ClampHostgroup(1000) = %d, want <= 100", got)
	}
}
