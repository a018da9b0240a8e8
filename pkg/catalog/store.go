package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/labondemand/control-plane/internal/db"
)

// Store provides database operations for templates and runtime configs.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a catalog Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const templateColumns = `key, display_name, stack, image, container_port, exposure_mode, allowed_for_students, active, created_at, updated_at`

func scanTemplate(row pgx.Row) (Template, error) {
	var t Template
	err := row.Scan(&t.Key, &t.DisplayName, &t.Stack, &t.Image, &t.ContainerPort, &t.ExposureMode, &t.AllowedForStudents, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func scanTemplates(rows pgx.Rows) ([]Template, error) {
	defer rows.Close()
	var items []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning template row: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating template rows: %w", err)
	}
	return items, nil
}

// ListTemplates returns all templates, or only the active+student-eligible
// ones when activeOnly is true (the view a student-role request must see).
func (s *Store) ListTemplates(ctx context.Context, activeOnly bool) ([]Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates`
	if activeOnly {
		query += ` WHERE active = true AND allowed_for_students = true`
	}
	query += ` ORDER BY key`
	rows, err := s.dbtx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	return scanTemplates(rows)
}

// GetTemplate returns a single template by key.
func (s *Store) GetTemplate(ctx context.Context, key string) (Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE key = $1`
	row := s.dbtx.QueryRow(ctx, query, key)
	return scanTemplate(row)
}

// CreateTemplate inserts a new template. The key becomes immutable.
func (s *Store) CreateTemplate(ctx context.Context, req CreateTemplateRequest) (Template, error) {
	query := `INSERT INTO templates (key, display_name, stack, image, container_port, exposure_mode, allowed_for_students, active)
	VALUES ($1, $2, $3, $4, $5, $6, $7, true)
	RETURNING ` + templateColumns
	row := s.dbtx.QueryRow(ctx, query, req.Key, req.DisplayName, req.Stack, req.Image, req.ContainerPort, req.ExposureMode, req.AllowedForStudents)
	return scanTemplate(row)
}

// UpdateTemplate edits all mutable fields of a template; the key is preserved.
// Deactivating a template here never touches running lab rows (spec §4.1).
func (s *Store) UpdateTemplate(ctx context.Context, key string, req UpdateTemplateRequest) (Template, error) {
	query := `UPDATE templates
	SET display_name = $2, image = $3, container_port = $4, exposure_mode = $5, allowed_for_students = $6, active = $7, updated_at = now()
	WHERE key = $1
	RETURNING ` + templateColumns
	row := s.dbtx.QueryRow(ctx, query, key, req.DisplayName, req.Image, req.ContainerPort, req.ExposureMode, req.AllowedForStudents, req.Active)
	return scanTemplate(row)
}

// DeleteTemplate removes a template permanently.
func (s *Store) DeleteTemplate(ctx context.Context, key string) error {
	tag, err := s.dbtx.Exec(ctx, `DELETE FROM templates WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("deleting template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

const runtimeConfigColumns = `key, stack, min_cpu_request_millis, min_cpu_limit_millis, min_mem_request_mi, min_mem_limit_mi, active, created_at, updated_at`

func scanRuntimeConfig(row pgx.Row) (RuntimeConfig, error) {
	var c RuntimeConfig
	err := row.Scan(&c.Key, &c.Stack, &c.MinCPURequestM, &c.MinCPULimitM, &c.MinMemRequestMi, &c.MinMemLimitMi, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func scanRuntimeConfigs(rows pgx.Rows) ([]RuntimeConfig, error) {
	defer rows.Close()
	var items []RuntimeConfig
	for rows.Next() {
		c, err := scanRuntimeConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning runtime config row: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runtime config rows: %w", err)
	}
	return items, nil
}

// ListRuntimeConfigs returns all runtime configs, or only active ones.
func (s *Store) ListRuntimeConfigs(ctx context.Context, activeOnly bool) ([]RuntimeConfig, error) {
	query := `SELECT ` + runtimeConfigColumns + ` FROM runtime_configs`
	if activeOnly {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY key`
	rows, err := s.dbtx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing runtime configs: %w", err)
	}
	return scanRuntimeConfigs(rows)
}

// GetRuntimeConfig returns a single runtime config by key.
func (s *Store) GetRuntimeConfig(ctx context.Context, key string) (RuntimeConfig, error) {
	query := `SELECT ` + runtimeConfigColumns + ` FROM runtime_configs WHERE key = $1`
	row := s.dbtx.QueryRow(ctx, query, key)
	return scanRuntimeConfig(row)
}

// CreateRuntimeConfig inserts a new runtime config.
func (s *Store) CreateRuntimeConfig(ctx context.Context, req CreateRuntimeConfigRequest) (RuntimeConfig, error) {
	query := `INSERT INTO runtime_configs (key, stack, min_cpu_request_millis, min_cpu_limit_millis, min_mem_request_mi, min_mem_limit_mi, active)
	VALUES ($1, $2, $3, $4, $5, $6, true)
	RETURNING ` + runtimeConfigColumns
	row := s.dbtx.QueryRow(ctx, query, req.Key, req.Stack, req.MinCPURequestM, req.MinCPULimitM, req.MinMemRequestMi, req.MinMemLimitMi)
	return scanRuntimeConfig(row)
}

// UpdateRuntimeConfig edits the floors and active flag for a runtime config.
func (s *Store) UpdateRuntimeConfig(ctx context.Context, key string, req UpdateRuntimeConfigRequest) (RuntimeConfig, error) {
	query := `UPDATE runtime_configs
	SET min_cpu_request_millis = $2, min_cpu_limit_millis = $3, min_mem_request_mi = $4, min_mem_limit_mi = $5, active = $6, updated_at = now()
	WHERE key = $1
	RETURNING ` + runtimeConfigColumns
	row := s.dbtx.QueryRow(ctx, query, key, req.MinCPURequestM, req.MinCPULimitM, req.MinMemRequestMi, req.MinMemLimitMi, req.Active)
	return scanRuntimeConfig(row)
}

// DeleteRuntimeConfig removes a runtime config permanently.
func (s *Store) DeleteRuntimeConfig(ctx context.Context, key string) error {
	tag, err := s.dbtx.Exec(ctx, `DELETE FROM runtime_configs WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("deleting runtime config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
