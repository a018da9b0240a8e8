// Package labonderr defines the error kinds shared across the lab lifecycle
// and admission control subsystem. Callers use errors.As to recover the
// structured detail; the HTTP layer maps each kind to a status code in one
// place (internal/httpserver).
package labonderr

import "fmt"

// NotFound indicates the target lab, namespace, or template does not exist.
type NotFound struct {
	Kind string // e.g. "lab", "template", "namespace"
	ID   string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// QuotaExceeded indicates admission or cluster-quota preflight refused the request.
type QuotaExceeded struct {
	Dimension string // e.g. "max_apps", "requests.cpu"
	Observed  string
	Limit     string
	Reason    string
}

func (e *QuotaExceeded) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("quota exceeded on %s: observed %s, limit %s", e.Dimension, e.Observed, e.Limit)
}

// Conflict indicates a cluster-side "already exists" that is not reconcilable,
// e.g. a Secret owned by something other than this lab.
type Conflict struct {
	Kind   string
	Name   string
	Reason string
}

func (e *Conflict) Error() string {
	return fmt.Sprintf("conflict on %s %q: %s", e.Kind, e.Name, e.Reason)
}

// ClusterUnavailable wraps a Kubernetes API error that is neither NotFound
// nor Conflict. The reconciler retries; the caller sees a 502/503-equivalent.
type ClusterUnavailable struct {
	Op  string
	Err error
}

func (e *ClusterUnavailable) Error() string {
	return fmt.Sprintf("cluster unavailable during %s: %v", e.Op, e.Err)
}

func (e *ClusterUnavailable) Unwrap() error { return e.Err }

// InvalidInput indicates bad user input: name length/characters, unknown stack kind, etc.
type InvalidInput struct {
	Field  string
	Reason string
}

func (e *InvalidInput) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ComponentOutcome records the per-component result of a multi-component
// pause/resume/delete operation.
type ComponentOutcome struct {
	Component string `json:"component"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

// PartialFailure indicates a multi-component operation where at least one
// component succeeded and at least one failed. Succeeded components are not
// rolled back.
type PartialFailure struct {
	Op         string             `json:"op"`
	Components []ComponentOutcome `json:"components"`
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%s partially failed across %d components", e.Op, len(e.Components))
}
