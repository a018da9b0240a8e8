package reconciler

import (
	"testing"
	"time"
)

var graceDays = 7 * 24 * time.Hour

func TestDecideOrphanAction_UserExistsIsKept(t *testing.T) {
	now := time.Unix(1700000000, 0)
	got := decideOrphanAction(true, 0, now.Add(-30*24*time.Hour), now, graceDays)
	if got != orphanActionKeep {
		t.Errorf("action = %q, want keep", got)
	}
}

// Guard A: namespace labondemand-user-42 exists, user 42 deleted, but a
// non-deleted deployment row still references user 42 (spec §9 seed
// scenario: simulating SSO renumbering). Must skip, not delete.
func TestDecideOrphanAction_GuardA_ActiveDeploymentsProtectsNamespace(t *testing.T) {
	now := time.Unix(1700000000, 0)
	got := decideOrphanAction(false, 1, now.Add(-30*24*time.Hour), now, graceDays)
	if got != orphanActionSkipActiveDeployments {
		t.Errorf("action = %q, want skip_active_deployments", got)
	}
}

// Guard B: a freshly created namespace for a user not yet in the DB (e.g.
// the row insert hasn't landed) must not be swept within the grace window.
func TestDecideOrphanAction_GuardB_YoungNamespaceProtected(t *testing.T) {
	now := time.Unix(1700000000, 0)
	got := decideOrphanAction(false, 0, now.Add(-1*time.Hour), now, graceDays)
	if got != orphanActionSkipTooNew {
		t.Errorf("action = %q, want skip_too_new", got)
	}
}

func TestDecideOrphanAction_GuardB_BoundaryIsDeleted(t *testing.T) {
	now := time.Unix(1700000000, 0)
	// Exactly at the grace boundary: After() is false for an equal instant,
	// so this is old enough to delete.
	got := decideOrphanAction(false, 0, now.Add(-graceDays), now, graceDays)
	if got != orphanActionDelete {
		t.Errorf("action = %q, want delete at the exact boundary", got)
	}
}

func TestDecideOrphanAction_NoUserNoDeploymentsPastGraceIsDeleted(t *testing.T) {
	now := time.Unix(1700000000, 0)
	got := decideOrphanAction(false, 0, now.Add(-30*24*time.Hour), now, graceDays)
	if got != orphanActionDelete {
		t.Errorf("action = %q, want delete", got)
	}
}

// Both guards independently protect the namespace; an old namespace with
// lingering deployment rows must still be skipped for the DB reason, not
// deleted just because it is old enough.
func TestDecideOrphanAction_GuardAOverridesAge(t *testing.T) {
	now := time.Unix(1700000000, 0)
	got := decideOrphanAction(false, 3, now.Add(-365*24*time.Hour), now, graceDays)
	if got != orphanActionSkipActiveDeployments {
		t.Errorf("action = %q, want skip_active_deployments even when namespace is old", got)
	}
}
