// Package clamp reduces a user's requested resources to per-role ceilings
// before manifest generation. It never raises a value — that is the
// runtime-config floor's job, applied strictly after clamping (spec §4.4).
package clamp

// RoleCeiling bounds what a single lab may request, regardless of the
// user's overall quota — admission (pkg/admission) separately checks the
// user's aggregate usage against their quota.Limits.
type RoleCeiling struct {
	MaxCPURequestMillis int
	MaxCPULimitMillis   int
	MaxMemRequestMi     int
	MaxMemLimitMi       int
	MaxReplicas         int
}

// RoleCeilings are the dense per-role ceilings for a single lab's request.
var RoleCeilings = map[string]RoleCeiling{
	"student": {MaxCPURequestMillis: 1000, MaxCPULimitMillis: 2000, MaxMemRequestMi: 1024, MaxMemLimitMi: 2048, MaxReplicas: 2},
	"teacher": {MaxCPURequestMillis: 2000, MaxCPULimitMillis: 4000, MaxMemRequestMi: 2048, MaxMemLimitMi: 4096, MaxReplicas: 4},
	"admin":   {MaxCPURequestMillis: 8000, MaxCPULimitMillis: 16000, MaxMemRequestMi: 8192, MaxMemLimitMi: 16384, MaxReplicas: 10},
}

// CeilingForRole returns the ceiling for role, falling back to student for
// an unrecognized role (least privilege, consistent with pkg/quota).
func CeilingForRole(role string) RoleCeiling {
	if c, ok := RoleCeilings[role]; ok {
		return c
	}
	return RoleCeilings["student"]
}

// Request is a lab's requested resources before clamping.
type Request struct {
	CPURequestMillis int
	CPULimitMillis   int
	MemRequestMi     int
	MemLimitMi       int
	Replicas         int
}

// Clamp reduces req to role's ceilings. It is pure and idempotent:
// Clamp(Clamp(x, r), r) == Clamp(x, r) for every role r, since min(min(x,
// c), c) == min(x, c).
func Clamp(req Request, role string) Request {
	c := CeilingForRole(role)
	return Request{
		CPURequestMillis: minInt(req.CPURequestMillis, c.MaxCPURequestMillis),
		CPULimitMillis:   minInt(req.CPULimitMillis, c.MaxCPULimitMillis),
		MemRequestMi:     minInt(req.MemRequestMi, c.MaxMemRequestMi),
		MemLimitMi:       minInt(req.MemLimitMi, c.MaxMemLimitMi),
		Replicas:         minInt(req.Replicas, c.MaxReplicas),
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ApplyFloors raises any resolved value below runtime's minimums up to the
// floor. Must be called strictly after Clamp, never before (spec §4.4).
func ApplyFloors(resolved Request, floors Request) Request {
	return Request{
		CPURequestMillis: maxInt(resolved.CPURequestMillis, floors.CPURequestMillis),
		CPULimitMillis:   maxInt(resolved.CPULimitMillis, floors.CPULimitMillis),
		MemRequestMi:     maxInt(resolved.MemRequestMi, floors.MemRequestMi),
		MemLimitMi:       maxInt(resolved.MemLimitMi, floors.MemLimitMi),
		Replicas:         resolved.Replicas,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
