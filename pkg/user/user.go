package user

import (
	"time"

	"github.com/google/uuid"
)

// CreateRequest is the JSON body for POST /api/v1/admin/users.
type CreateRequest struct {
	ExternalID   *string `json:"external_id"`
	AuthProvider string  `json:"auth_provider" validate:"required"`
	Role         string  `json:"role" validate:"required,oneof=student teacher admin"`
}

// UpdateRoleRequest is the JSON body for PUT /api/v1/admin/users/:id/role.
// Setting role_override=true pins the role against future identity-provider
// sync overwrites.
type UpdateRoleRequest struct {
	Role         string `json:"role" validate:"required,oneof=student teacher admin"`
	RoleOverride bool   `json:"role_override"`
}

// Response is the JSON response for a single user.
type Response struct {
	ID           uuid.UUID `json:"id"`
	ExternalID   *string   `json:"external_id,omitempty"`
	AuthProvider string    `json:"auth_provider"`
	Role         string    `json:"role"`
	RoleOverride bool      `json:"role_override"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
