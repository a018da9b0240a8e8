package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/labondemand/control-plane/internal/db"
)

// Service encapsulates catalog business logic.
type Service struct {
	store  *Store
	logger *slog.Logger
}

// NewService creates a catalog Service backed by the given database connection.
func NewService(dbtx db.DBTX, logger *slog.Logger) *Service {
	return &Service{store: NewStore(dbtx), logger: logger}
}

// ListTemplates returns the catalog view appropriate for the caller: the
// full set for teacher/admin, or only active+student-eligible entries.
func (s *Service) ListTemplates(ctx context.Context, activeOnly bool) ([]Template, error) {
	items, err := s.store.ListTemplates(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	return items, nil
}

// GetTemplate returns a single template by key.
func (s *Service) GetTemplate(ctx context.Context, key string) (Template, error) {
	t, err := s.store.GetTemplate(ctx, key)
	if err != nil {
		return Template{}, fmt.Errorf("getting template: %w", err)
	}
	return t, nil
}

// CreateTemplate creates a new template.
func (s *Service) CreateTemplate(ctx context.Context, req CreateTemplateRequest) (Template, error) {
	t, err := s.store.CreateTemplate(ctx, req)
	if err != nil {
		return Template{}, fmt.Errorf("creating template: %w", err)
	}
	return t, nil
}

// UpdateTemplate edits an existing template.
func (s *Service) UpdateTemplate(ctx context.Context, key string, req UpdateTemplateRequest) (Template, error) {
	t, err := s.store.UpdateTemplate(ctx, key, req)
	if err != nil {
		return Template{}, fmt.Errorf("updating template: %w", err)
	}
	return t, nil
}

// DeleteTemplate removes a template.
func (s *Service) DeleteTemplate(ctx context.Context, key string) error {
	if err := s.store.DeleteTemplate(ctx, key); err != nil {
		return fmt.Errorf("deleting template: %w", err)
	}
	return nil
}

// ListRuntimeConfigs returns runtime configs, optionally filtered to active.
func (s *Service) ListRuntimeConfigs(ctx context.Context, activeOnly bool) ([]RuntimeConfig, error) {
	items, err := s.store.ListRuntimeConfigs(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("listing runtime configs: %w", err)
	}
	return items, nil
}

// GetRuntimeConfig returns a single runtime config by key.
func (s *Service) GetRuntimeConfig(ctx context.Context, key string) (RuntimeConfig, error) {
	c, err := s.store.GetRuntimeConfig(ctx, key)
	if err != nil {
		return RuntimeConfig{}, fmt.Errorf("getting runtime config: %w", err)
	}
	return c, nil
}

// CreateRuntimeConfig creates a new runtime config.
func (s *Service) CreateRuntimeConfig(ctx context.Context, req CreateRuntimeConfigRequest) (RuntimeConfig, error) {
	c, err := s.store.CreateRuntimeConfig(ctx, req)
	if err != nil {
		return RuntimeConfig{}, fmt.Errorf("creating runtime config: %w", err)
	}
	return c, nil
}

// UpdateRuntimeConfig edits an existing runtime config.
func (s *Service) UpdateRuntimeConfig(ctx context.Context, key string, req UpdateRuntimeConfigRequest) (RuntimeConfig, error) {
	c, err := s.store.UpdateRuntimeConfig(ctx, key, req)
	if err != nil {
		return RuntimeConfig{}, fmt.Errorf("updating runtime config: %w", err)
	}
	return c, nil
}

// DeleteRuntimeConfig removes a runtime config.
func (s *Service) DeleteRuntimeConfig(ctx context.Context, key string) error {
	if err := s.store.DeleteRuntimeConfig(ctx, key); err != nil {
		return fmt.Errorf("deleting runtime config: %w", err)
	}
	return nil
}

// FloorsForStack returns the resource floors to apply after clamping for a
// given stack kind, falling back to zero floors when no config is active.
func (s *Service) FloorsForStack(ctx context.Context, stack string) (RuntimeConfig, error) {
	items, err := s.store.ListRuntimeConfigs(ctx, true)
	if err != nil {
		return RuntimeConfig{}, fmt.Errorf("loading runtime configs: %w", err)
	}
	for _, c := range items {
		if c.Stack == stack {
			return c, nil
		}
	}
	return RuntimeConfig{Stack: stack}, nil
}
