package quota

import (
	"testing"
	"time"
)

func TestDefaultsForRole_UnknownFallsBackToStudent(t *testing.T) {
	got := DefaultsForRole("superadmin")
	want := RoleDefaults["student"]
	if got != want {
		t.Errorf("DefaultsForRole(unknown) = %+v, want student defaults %+v", got, want)
	}
}

func TestEffective_NilOverride(t *testing.T) {
	got := Effective("student", nil, time.Now())
	want := RoleDefaults["student"]
	if got != want {
		t.Errorf("Effective with nil override = %+v, want %+v", got, want)
	}
}

func TestEffective_OverrideMerge(t *testing.T) {
	maxApps := 8
	future := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	override := &Override{MaxApps: &maxApps, ExpiresAt: &future}

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := Effective("student", override, now)

	if got.MaxApps != 8 {
		t.Errorf("MaxApps = %d, want 8", got.MaxApps)
	}
	if got.MaxCPUMillis != RoleDefaults["student"].MaxCPUMillis {
		t.Errorf("MaxCPUMillis should fall back to role default, got %d", got.MaxCPUMillis)
	}
}

func TestEffective_ExpiredOverrideIgnored(t *testing.T) {
	maxApps := 8
	past := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	override := &Override{MaxApps: &maxApps, ExpiresAt: &past}

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := Effective("student", override, now)

	want := RoleDefaults["student"]
	if got != want {
		t.Errorf("expired override should be ignored: got %+v, want %+v", got, want)
	}
}

// TestEffective_NullFieldIdenticalToNoOverride verifies override merge
// determinism: a field explicitly set to nil behaves identically to the
// field being entirely absent from the override.
func TestEffective_NullFieldIdenticalToNoOverride(t *testing.T) {
	now := time.Now()
	withNilField := &Override{MaxApps: nil}
	got := Effective("teacher", withNilField, now)
	want := Effective("teacher", nil, now)
	if got != want {
		t.Errorf("nil field override = %+v, want identical to no override %+v", got, want)
	}
}
