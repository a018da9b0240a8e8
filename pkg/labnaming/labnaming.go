// Package labnaming centralizes the label schema, annotation keys, and
// naming scheme that every domain package needs to agree on bit-exactly:
// the Deployment Orchestrator writes these labels, the Lifecycle Reconciler
// reads them back, and the Namespace Baseline keys quota objects off them.
package labnaming

import "fmt"

// Label keys applied to every cluster object LabOnDemand creates.
const (
	LabelManagedBy = "managed-by"
	LabelUserID    = "user-id"
	LabelUserRole  = "user-role"
	LabelApp       = "app"
	LabelStack     = "stack"
	LabelComponent = "component"

	ManagedByValue = "labondemand"
)

// Annotation keys used by the pause/resume engine.
const (
	AnnotationPausedReplicas = "labondemand.io/paused-replicas"
	AnnotationPauseDisabled  = "labondemand.io/pause-disabled"
)

// Names of the per-namespace baseline objects.
const (
	BaselineQuotaName      = "baseline-quota"
	BaselineLimitRangeName = "baseline-limits"
)

// Namespace returns the deterministic per-user namespace name.
func Namespace(prefix string, userID string) string {
	return fmt.Sprintf("%s%s", prefix, userID)
}

// IngressHost returns the deterministic ingress host for a lab.
func IngressHost(labName, userID, baseDomain string) string {
	return fmt.Sprintf("%s-u%s.%s", labName, userID, baseDomain)
}

// ObjectLabels returns the label set every object for a lab carries.
func ObjectLabels(userID, userRole, labName, stack, component string) map[string]string {
	l := map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelUserID:    userID,
		LabelUserRole:  userRole,
		LabelApp:       labName,
		LabelStack:     stack,
	}
	if component != "" {
		l[LabelComponent] = component
	}
	return l
}
