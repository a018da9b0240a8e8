// Package quota computes effective per-user resource limits by merging
// role defaults with an active per-user override, and persists overrides.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/labondemand/control-plane/internal/db"
)

// Limits is the effective, always-dense set of per-user ceilings.
type Limits struct {
	MaxApps      int
	MaxCPUMillis int
	MaxMemMi     int
	MaxPods      int
	MaxStorageGi int
}

// RoleDefaults are the dense ceilings for each recognized role. Unknown
// roles fall back to the student row (least privilege), per spec §4.2.
var RoleDefaults = map[string]Limits{
	"student": {MaxApps: 4, MaxCPUMillis: 2500, MaxMemMi: 6144, MaxPods: 6, MaxStorageGi: 2},
	"teacher": {MaxApps: 12, MaxCPUMillis: 4000, MaxMemMi: 8192, MaxPods: 20, MaxStorageGi: 10},
	"admin":   {MaxApps: 100, MaxCPUMillis: 64000, MaxMemMi: 131072, MaxPods: 200, MaxStorageGi: 2048},
}

// DefaultsForRole returns the dense default limits for role, falling back to
// student for an unrecognized role.
func DefaultsForRole(role string) Limits {
	if l, ok := RoleDefaults[role]; ok {
		return l
	}
	return RoleDefaults["student"]
}

// Override is a per-user quota override row. A nil pointer field means
// "inherit from role default"; ExpiresAt nil means the override never expires.
type Override struct {
	UserID       uuid.UUID
	MaxApps      *int
	MaxCPUMillis *int
	MaxMemMi     *int
	MaxStorageGi *int
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	CreatedBy    *uuid.UUID
}

// active reports whether the override has not expired as of now.
func (o *Override) active(now time.Time) bool {
	return o.ExpiresAt == nil || o.ExpiresAt.After(now)
}

// Effective merges role defaults with an active override. A nil override,
// or one whose ExpiresAt has passed, contributes nothing — this is a pure
// function with no error conditions (spec §4.2).
func Effective(role string, override *Override, now time.Time) Limits {
	limits := DefaultsForRole(role)
	if override == nil || !override.active(now) {
		return limits
	}
	if override.MaxApps != nil {
		limits.MaxApps = *override.MaxApps
	}
	if override.MaxCPUMillis != nil {
		limits.MaxCPUMillis = *override.MaxCPUMillis
	}
	if override.MaxMemMi != nil {
		limits.MaxMemMi = *override.MaxMemMi
	}
	if override.MaxStorageGi != nil {
		limits.MaxStorageGi = *override.MaxStorageGi
	}
	return limits
}

// Store persists quota override rows.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a quota override Store.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const overrideColumns = `user_id, max_apps, max_cpu_millis, max_mem_mi, max_storage_gi, expires_at, created_at, created_by`

// Get returns the override row for userID, or nil if none exists.
func (s *Store) Get(ctx context.Context, userID uuid.UUID) (*Override, error) {
	row := s.dbtx.QueryRow(ctx,
		`SELECT `+overrideColumns+` FROM user_quota_overrides WHERE user_id = $1`, userID)

	var o Override
	err := row.Scan(&o.UserID, &o.MaxApps, &o.MaxCPUMillis, &o.MaxMemMi, &o.MaxStorageGi,
		&o.ExpiresAt, &o.CreatedAt, &o.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting quota override: %w", err)
	}
	return &o, nil
}

// Set upserts the override row for a user. Passing a nil field clears it
// (reverts to role default for that field).
func (s *Store) Set(ctx context.Context, o Override) (Override, error) {
	row := s.dbtx.QueryRow(ctx, `
		INSERT INTO user_quota_overrides (user_id, max_apps, max_cpu_millis, max_mem_mi, max_storage_gi, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			max_apps = $2, max_cpu_millis = $3, max_mem_mi = $4, max_storage_gi = $5,
			expires_at = $6, created_by = $7, created_at = now()
		RETURNING `+overrideColumns,
		o.UserID, o.MaxApps, o.MaxCPUMillis, o.MaxMemMi, o.MaxStorageGi, o.ExpiresAt, o.CreatedBy,
	)

	var out Override
	if err := row.Scan(&out.UserID, &out.MaxApps, &out.MaxCPUMillis, &out.MaxMemMi, &out.MaxStorageGi,
		&out.ExpiresAt, &out.CreatedAt, &out.CreatedBy); err != nil {
		return Override{}, fmt.Errorf("setting quota override: %w", err)
	}
	return out, nil
}

// Clear removes the override row for a user, reverting to pure role defaults.
func (s *Store) Clear(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.dbtx.Exec(ctx, `DELETE FROM user_quota_overrides WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clearing quota override: %w", err)
	}
	return nil
}
