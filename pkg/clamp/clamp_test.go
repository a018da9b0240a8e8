package clamp

import "testing"

func TestClamp_Idempotent(t *testing.T) {
	req := Request{CPURequestMillis: 5000, CPULimitMillis: 9000, MemRequestMi: 4096, MemLimitMi: 8192, Replicas: 9}

	for role := range RoleCeilings {
		once := Clamp(req, role)
		twice := Clamp(once, role)
		if once != twice {
			t.Errorf("role %s: Clamp not idempotent: once=%+v twice=%+v", role, once, twice)
		}
	}
}

func TestClamp_NeverRaises(t *testing.T) {
	req := Request{CPURequestMillis: 10, CPULimitMillis: 10, MemRequestMi: 10, MemLimitMi: 10, Replicas: 1}
	got := Clamp(req, "student")
	if got != req {
		t.Errorf("Clamp should never raise a below-ceiling value, got %+v want %+v", got, req)
	}
}

func TestClamp_LowersAboveCeiling(t *testing.T) {
	ceiling := RoleCeilings["student"]
	req := Request{CPURequestMillis: ceiling.MaxCPURequestMillis + 500, Replicas: ceiling.MaxReplicas + 5}
	got := Clamp(req, "student")

	if got.CPURequestMillis != ceiling.MaxCPURequestMillis {
		t.Errorf("CPURequestMillis = %d, want ceiling %d", got.CPURequestMillis, ceiling.MaxCPURequestMillis)
	}
	if got.Replicas != ceiling.MaxReplicas {
		t.Errorf("Replicas = %d, want ceiling %d", got.Replicas, ceiling.MaxReplicas)
	}
}

func TestApplyFloors_RaisesBelowFloor(t *testing.T) {
	resolved := Request{CPURequestMillis: 10, MemRequestMi: 10, Replicas: 1}
	floors := Request{CPURequestMillis: 100, MemRequestMi: 256}

	got := ApplyFloors(resolved, floors)
	if got.CPURequestMillis != 100 {
		t.Errorf("CPURequestMillis = %d, want floor 100", got.CPURequestMillis)
	}
	if got.MemRequestMi != 256 {
		t.Errorf("MemRequestMi = %d, want floor 256", got.MemRequestMi)
	}
}

func TestApplyFloors_DoesNotLowerAboveFloor(t *testing.T) {
	resolved := Request{CPURequestMillis: 500}
	floors := Request{CPURequestMillis: 100}

	got := ApplyFloors(resolved, floors)
	if got.CPURequestMillis != 500 {
		t.Errorf("ApplyFloors should not lower a value above the floor, got %d", got.CPURequestMillis)
	}
}
