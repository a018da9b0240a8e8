// Package deployment persists one row per lab: the record the rest of the
// system treats as the single source of truth for lab state (spec §5).
package deployment

import (
	"time"

	"github.com/google/uuid"
)

// Status values a deployment row can carry.
const (
	StatusActive  = "active"
	StatusPaused  = "paused"
	StatusExpired = "expired"
	StatusDeleted = "deleted"
)

// Record is one row of the deployments table.
type Record struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Name          string
	Stack         string
	Namespace     string
	Status        string
	CreatedAt     time.Time
	LastSeenAt    *time.Time
	DeletedAt     *time.Time
	ExpiresAt     *time.Time
	CPURequestedM int
	MemRequestedM int
}

// Response is the JSON shape returned by the lab API.
type Response struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	Name       string     `json:"name"`
	Stack      string     `json:"stack"`
	Namespace  string     `json:"namespace"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// ToResponse converts a Record to its API representation.
func (r *Record) ToResponse() Response {
	return Response{
		ID:         r.ID,
		UserID:     r.UserID,
		Name:       r.Name,
		Stack:      r.Stack,
		Namespace:  r.Namespace,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt,
		LastSeenAt: r.LastSeenAt,
		DeletedAt:  r.DeletedAt,
		ExpiresAt:  r.ExpiresAt,
	}
}

// ObservedUsage is the per-user aggregate over active deployment rows,
// used by the admission pipeline's logical-quota stage (spec §4.6).
type ObservedUsage struct {
	Apps      int
	CPUMillis int
	MemMi     int
	Pods      int
}

// RoleTTL returns the lifetime applied to a freshly created lab, per role.
// Admin-owned labs never expire by default (spec §4.7).
func RoleTTL(role string, studentDays, teacherDays int) *time.Duration {
	var days int
	switch role {
	case "teacher":
		days = teacherDays
	case "admin":
		return nil
	default:
		days = studentDays
	}
	d := time.Duration(days) * 24 * time.Hour
	return &d
}
