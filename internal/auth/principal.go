// Package auth resolves the authenticated principal for a request. SSO,
// session issuance, and OIDC discovery are out of scope for the core (they
// are "external collaborators" per spec.md §1); this package only defines
// the boundary the core depends on and a development-mode implementation of
// it, so the lifecycle and admission subsystem can be exercised standalone.
package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Role values recognized by the admission and quota subsystems. An unknown
// role is treated as RoleStudent (least privilege) per spec.md §4.2.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// Principal is the authenticated identity the core receives from the
// out-of-scope identity/session layer (spec.md §6).
type Principal struct {
	UserID       uuid.UUID
	Role         string
	RoleOverride bool // when true, upstream IdP role mappings must not overwrite Role
}

// NormalizedRole returns p.Role if it is one of the known roles, otherwise
// RoleStudent (unknown role is treated as least privilege, spec.md §4.2).
func (p Principal) NormalizedRole() string {
	switch p.Role {
	case RoleTeacher, RoleAdmin:
		return p.Role
	default:
		return RoleStudent
	}
}

type contextKey string

const principalKey contextKey = "principal"

// NewContext stores the principal in the context.
func NewContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext extracts the principal from the context, or nil if absent.
func FromContext(ctx context.Context) *Principal {
	v, _ := ctx.Value(principalKey).(*Principal)
	return v
}

// Resolver authenticates an HTTP request into a Principal. The real
// implementation (SSO/OIDC) lives outside this module's scope; callers
// inject whichever Resolver fits their deployment.
type Resolver interface {
	Resolve(r *http.Request) (*Principal, error)
}
