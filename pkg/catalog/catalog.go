// Package catalog stores the admin-managed templates (stack kinds) and
// runtime configs (per-stack resource floors) used to resolve a create-lab
// request into a concrete image, exposure mode, and minimum footprint.
package catalog

import "time"

// Template is one entry in the stack catalog: the effective image, port,
// exposure mode, and eligibility for a stack kind. Keys are immutable once
// created (spec §4.1).
type Template struct {
	Key                string    `json:"key"`
	DisplayName        string    `json:"display_name"`
	Stack              string    `json:"stack"`
	Image              string    `json:"image"`
	ContainerPort      int32     `json:"container_port"`
	ExposureMode       string    `json:"exposure_mode"`
	AllowedForStudents bool      `json:"allowed_for_students"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// RuntimeConfig holds the minimum resource floors applied after clamping,
// so a too-small user request is raised to a working baseline (spec §4.4).
type RuntimeConfig struct {
	Key              string    `json:"key"`
	Stack            string    `json:"stack"`
	MinCPURequestM   int32     `json:"min_cpu_request_millis"`
	MinCPULimitM     int32     `json:"min_cpu_limit_millis"`
	MinMemRequestMi  int32     `json:"min_mem_request_mi"`
	MinMemLimitMi    int32     `json:"min_mem_limit_mi"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CreateTemplateRequest is the JSON body for POST /api/v1/admin/catalog/templates.
type CreateTemplateRequest struct {
	Key                string `json:"key" validate:"required"`
	DisplayName        string `json:"display_name" validate:"required"`
	Stack              string `json:"stack" validate:"required,oneof=custom vscode jupyter mysql lamp wordpress netbeans"`
	Image              string `json:"image" validate:"required"`
	ContainerPort      int32  `json:"container_port" validate:"required,min=1,max=65535"`
	ExposureMode       string `json:"exposure_mode" validate:"required,oneof=ClusterIP NodePort"`
	AllowedForStudents bool   `json:"allowed_for_students"`
}

// UpdateTemplateRequest is the JSON body for PUT /api/v1/admin/catalog/templates/:key.
// The key itself is never editable once created.
type UpdateTemplateRequest struct {
	DisplayName        string `json:"display_name" validate:"required"`
	Image              string `json:"image" validate:"required"`
	ContainerPort      int32  `json:"container_port" validate:"required,min=1,max=65535"`
	ExposureMode       string `json:"exposure_mode" validate:"required,oneof=ClusterIP NodePort"`
	AllowedForStudents bool   `json:"allowed_for_students"`
	Active             bool   `json:"active"`
}

// CreateRuntimeConfigRequest is the JSON body for POST /api/v1/admin/catalog/runtime-configs.
type CreateRuntimeConfigRequest struct {
	Key             string `json:"key" validate:"required"`
	Stack           string `json:"stack" validate:"required"`
	MinCPURequestM  int32  `json:"min_cpu_request_millis" validate:"min=0"`
	MinCPULimitM    int32  `json:"min_cpu_limit_millis" validate:"min=0"`
	MinMemRequestMi int32  `json:"min_mem_request_mi" validate:"min=0"`
	MinMemLimitMi   int32  `json:"min_mem_limit_mi" validate:"min=0"`
}

// UpdateRuntimeConfigRequest is the JSON body for PUT /api/v1/admin/catalog/runtime-configs/:key.
type UpdateRuntimeConfigRequest struct {
	MinCPURequestM  int32 `json:"min_cpu_request_millis" validate:"min=0"`
	MinCPULimitM    int32 `json:"min_cpu_limit_millis" validate:"min=0"`
	MinMemRequestMi int32 `json:"min_mem_request_mi" validate:"min=0"`
	MinMemLimitMi   int32 `json:"min_mem_limit_mi" validate:"min=0"`
	Active          bool  `json:"active"`
}
