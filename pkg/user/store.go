package user

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/labondemand/control-plane/internal/db"
)

// Store provides database operations for users.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a user Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const userColumns = `id, external_id, auth_provider, role, role_override, is_active, created_at, updated_at`

// Row represents a row returned from the users table.
type Row struct {
	ID           uuid.UUID
	ExternalID   *string
	AuthProvider string
	Role         string
	RoleOverride bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ToResponse converts a Row to a Response DTO.
func (u *Row) ToResponse() Response {
	return Response{
		ID:           u.ID,
		ExternalID:   u.ExternalID,
		AuthProvider: u.AuthProvider,
		Role:         u.Role,
		RoleOverride: u.RoleOverride,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func scanRow(row pgx.Row) (Row, error) {
	var u Row
	err := row.Scan(&u.ID, &u.ExternalID, &u.AuthProvider, &u.Role, &u.RoleOverride, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func scanRows(rows pgx.Rows) ([]Row, error) {
	defer rows.Close()
	var items []Row
	for rows.Next() {
		u, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return items, nil
}

// List returns all active users ordered by creation time.
func (s *Store) List(ctx context.Context) ([]Row, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE is_active = true ORDER BY created_at`
	rows, err := s.dbtx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return scanRows(rows)
}

// Get returns a single user by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Row, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	row := s.dbtx.QueryRow(ctx, query, id)
	return scanRow(row)
}

// GetByExternalID looks up a user by their SSO subject identifier.
func (s *Store) GetByExternalID(ctx context.Context, externalID string) (Row, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE external_id = $1`
	row := s.dbtx.QueryRow(ctx, query, externalID)
	return scanRow(row)
}

// CreateParams holds parameters for creating a user.
type CreateParams struct {
	ExternalID   *string
	AuthProvider string
	Role         string
}

// Create inserts a new user.
func (s *Store) Create(ctx context.Context, p CreateParams) (Row, error) {
	query := `INSERT INTO users (external_id, auth_provider, role, role_override)
	VALUES ($1, $2, $3, false)
	RETURNING ` + userColumns
	row := s.dbtx.QueryRow(ctx, query, p.ExternalID, p.AuthProvider, p.Role)
	return scanRow(row)
}

// SetRole updates a user's role and the role_override flag. When
// role_override is true, an upstream identity-provider sync must not
// subsequently overwrite the role (spec §3).
func (s *Store) SetRole(ctx context.Context, id uuid.UUID, role string, roleOverride bool) (Row, error) {
	query := `UPDATE users SET role = $2, role_override = $3, updated_at = now() WHERE id = $1 RETURNING ` + userColumns
	row := s.dbtx.QueryRow(ctx, query, id, role, roleOverride)
	return scanRow(row)
}

// SyncRoleFromProvider applies an identity-provider role mapping unless the
// user has an active role_override pin.
func (s *Store) SyncRoleFromProvider(ctx context.Context, id uuid.UUID, role string) (Row, error) {
	query := `UPDATE users SET role = $2, updated_at = now()
	WHERE id = $1 AND role_override = false
	RETURNING ` + userColumns
	row := s.dbtx.QueryRow(ctx, query, id, role)
	return scanRow(row)
}

// Deactivate soft-deletes a user by clearing is_active. The row stays, so
// no FK cascade fires: deployment and quota override rows are kept, and the
// reconciler's orphan sweep still finds the user and leaves the namespace.
// The FK cascade applies to Delete.
func (s *Store) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET is_active = false, updated_at = now() WHERE id = $1`
	tag, err := s.dbtx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deactivating user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete hard-deletes a user row, cascading to deployments and quota
// overrides via FK CASCADE.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.dbtx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
