package deployment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/labondemand/control-plane/internal/db"
)

// Store provides database operations for deployment rows.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a deployment Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const recordColumns = `id, user_id, name, stack, namespace, status, created_at, last_seen_at, deleted_at, expires_at, cpu_requested_millis, mem_requested_mi`

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.UserID, &r.Name, &r.Stack, &r.Namespace, &r.Status,
		&r.CreatedAt, &r.LastSeenAt, &r.DeletedAt, &r.ExpiresAt, &r.CPURequestedM, &r.MemRequestedM)
	return r, err
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()
	var items []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning deployment row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deployment rows: %w", err)
	}
	return items, nil
}

// CreateParams holds parameters for inserting a new deployment row.
type CreateParams struct {
	UserID        uuid.UUID
	Name          string
	Stack         string
	Namespace     string
	ExpiresAt     *time.Time
	CPURequestedM int
	MemRequestedM int
}

// Create inserts a new deployment row in state active.
func (s *Store) Create(ctx context.Context, p CreateParams) (Record, error) {
	query := `INSERT INTO deployments (user_id, name, stack, namespace, status, expires_at, cpu_requested_millis, mem_requested_mi)
	VALUES ($1, $2, $3, $4, 'active', $5, $6, $7)
	RETURNING ` + recordColumns
	row := s.dbtx.QueryRow(ctx, query, p.UserID, p.Name, p.Stack, p.Namespace, p.ExpiresAt, p.CPURequestedM, p.MemRequestedM)
	return scanRecord(row)
}

// Get returns a deployment row by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	row := s.dbtx.QueryRow(ctx, `SELECT `+recordColumns+` FROM deployments WHERE id = $1`, id)
	return scanRecord(row)
}

// GetByUserAndName looks up a lab by its owner and display name, unique
// within the user's namespace (spec §3).
func (s *Store) GetByUserAndName(ctx context.Context, userID uuid.UUID, name string) (Record, error) {
	row := s.dbtx.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM deployments WHERE user_id = $1 AND name = $2 AND status != 'deleted'`,
		userID, name)
	return scanRecord(row)
}

// ListForUser returns all non-deleted labs owned by a user.
func (s *Store) ListForUser(ctx context.Context, userID uuid.UUID) ([]Record, error) {
	rows, err := s.dbtx.Query(ctx,
		`SELECT `+recordColumns+` FROM deployments WHERE user_id = $1 AND status != 'deleted' ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}
	return scanRecords(rows)
}

// ObservedUsageForUser aggregates the user's active deployment rows for the
// admission pipeline's logical-quota stage. Pods are counted as 1 per
// active deployment row; the extra pods of a multi-component stack or of
// replicas above 1 are not counted here.
func (s *Store) ObservedUsageForUser(ctx context.Context, userID uuid.UUID) (ObservedUsage, error) {
	row := s.dbtx.QueryRow(ctx, `
		SELECT count(*), coalesce(sum(cpu_requested_millis), 0), coalesce(sum(mem_requested_mi), 0), count(*)
		FROM deployments WHERE user_id = $1 AND status = 'active'`, userID)

	var u ObservedUsage
	if err := row.Scan(&u.Apps, &u.CPUMillis, &u.MemMi, &u.Pods); err != nil {
		return ObservedUsage{}, fmt.Errorf("aggregating observed usage: %w", err)
	}
	return u, nil
}

// SetStatus transitions a deployment row's status, optionally stamping
// last_seen_at (pause) or deleted_at (delete).
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status string, lastSeenAt, deletedAt *time.Time) error {
	tag, err := s.dbtx.Exec(ctx,
		`UPDATE deployments SET status = $2, last_seen_at = coalesce($3, last_seen_at), deleted_at = coalesce($4, deleted_at) WHERE id = $1`,
		id, status, lastSeenAt, deletedAt)
	if err != nil {
		return fmt.Errorf("updating deployment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetExpiresAt backfills the expiry timestamp for a row.
func (s *Store) SetExpiresAt(ctx context.Context, id uuid.UUID, expiresAt *time.Time) error {
	_, err := s.dbtx.Exec(ctx, `UPDATE deployments SET expires_at = $2 WHERE id = $1`, id, expiresAt)
	if err != nil {
		return fmt.Errorf("backfilling expires_at: %w", err)
	}
	return nil
}

// ListActiveExpired returns active rows whose expiry has passed (reconciler phase 1).
func (s *Store) ListActiveExpired(ctx context.Context, now time.Time) ([]Record, error) {
	rows, err := s.dbtx.Query(ctx,
		`SELECT `+recordColumns+` FROM deployments WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1`,
		now)
	if err != nil {
		return nil, fmt.Errorf("listing expired active deployments: %w", err)
	}
	return scanRecords(rows)
}

// ListPausedGraceExpired returns paused rows whose grace period has elapsed
// (reconciler phase 2).
func (s *Store) ListPausedGraceExpired(ctx context.Context, cutoff time.Time) ([]Record, error) {
	rows, err := s.dbtx.Query(ctx,
		`SELECT `+recordColumns+` FROM deployments WHERE status = 'paused' AND last_seen_at IS NOT NULL AND last_seen_at <= $1`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing grace-expired paused deployments: %w", err)
	}
	return scanRecords(rows)
}

// RecordWithRole pairs a deployment row with its owner's current role, for
// callers that need the role to compute a TTL (the reconciler's backfill
// phase does not otherwise have access to the owner's role).
type RecordWithRole struct {
	Record
	Role string
}

// ListMissingExpiresAt returns active, non-admin-owned rows with a null
// expires_at plus their owner's role (reconciler phase 3: backfill).
func (s *Store) ListMissingExpiresAt(ctx context.Context) ([]RecordWithRole, error) {
	qualifiedColumns := `d.id, d.user_id, d.name, d.stack, d.namespace, d.status, d.created_at, d.last_seen_at, d.deleted_at, d.expires_at, d.cpu_requested_millis, d.mem_requested_mi`
	rows, err := s.dbtx.Query(ctx, `
		SELECT `+qualifiedColumns+`, u.role FROM deployments d
		JOIN users u ON u.id = d.user_id
		WHERE d.status = 'active' AND d.expires_at IS NULL AND u.role != 'admin'`)
	if err != nil {
		return nil, fmt.Errorf("listing deployments missing expires_at: %w", err)
	}
	defer rows.Close()

	var items []RecordWithRole
	for rows.Next() {
		var r RecordWithRole
		if err := rows.Scan(&r.ID, &r.UserID, &r.Name, &r.Stack, &r.Namespace, &r.Status,
			&r.CreatedAt, &r.LastSeenAt, &r.DeletedAt, &r.ExpiresAt, &r.CPURequestedM, &r.MemRequestedM, &r.Role); err != nil {
			return nil, fmt.Errorf("scanning deployment row with role: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deployments missing expires_at: %w", err)
	}
	return items, nil
}

// CountNonDeletedForUser reports whether any non-deleted deployment row
// still references a user id, used by the orphan namespace sweep's DB
// liveness guard (spec §4.8 Guard A).
func (s *Store) CountNonDeletedForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	row := s.dbtx.QueryRow(ctx, `SELECT count(*) FROM deployments WHERE user_id = $1 AND status != 'deleted'`, userID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("counting non-deleted deployments: %w", err)
	}
	return n, nil
}

// GetByNamespaceAndLabName looks up a lab row by its namespace and app
// label (used by auto-healing to detect a missing DB row for a cluster
// object), across any status.
func (s *Store) GetByNamespaceAndLabName(ctx context.Context, namespace, name string) (Record, error) {
	row := s.dbtx.QueryRow(ctx, `SELECT `+recordColumns+` FROM deployments WHERE namespace = $1 AND name = $2`, namespace, name)
	return scanRecord(row)
}
