package catalog

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/labondemand/control-plane/internal/audit"
	"github.com/labondemand/control-plane/internal/auth"
	"github.com/labondemand/control-plane/internal/db"
	"github.com/labondemand/control-plane/internal/httpserver"
)

// Handler provides HTTP handlers for the catalog API: a read-only view
// for all authenticated users, and admin CRUD under /admin.
type Handler struct {
	svc    *Service
	logger *slog.Logger
	audit  *audit.Writer
}

// NewHandler creates a catalog Handler.
func NewHandler(dbtx db.DBTX, logger *slog.Logger, audit *audit.Writer) *Handler {
	return &Handler{svc: NewService(dbtx, logger), logger: logger, audit: audit}
}

// Routes returns the read-only catalog routes, mounted under /api/v1/catalog.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/templates", h.handleListTemplates)
	r.Get("/templates/{key}", h.handleGetTemplate)
	r.Get("/runtime-configs", h.handleListRuntimeConfigs)
	return r
}

// AdminRoutes returns the admin CRUD routes, mounted under /api/v1/admin/catalog.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Route("/templates", func(r chi.Router) {
		r.Post("/", h.handleCreateTemplate)
		r.Route("/{key}", func(r chi.Router) {
			r.Put("/", h.handleUpdateTemplate)
			r.Delete("/", h.handleDeleteTemplate)
		})
	})
	r.Route("/runtime-configs", func(r chi.Router) {
		r.Post("/", h.handleCreateRuntimeConfig)
		r.Route("/{key}", func(r chi.Router) {
			r.Put("/", h.handleUpdateRuntimeConfig)
			r.Delete("/", h.handleDeleteRuntimeConfig)
		})
	})
	return r
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	activeOnly := p == nil || p.NormalizedRole() == auth.RoleStudent

	items, err := h.svc.ListTemplates(r.Context(), activeOnly)
	if err != nil {
		h.logger.Error("listing templates", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list templates")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"templates": items, "count": len(items)})
}

func (h *Handler) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	t, err := h.svc.GetTemplate(r.Context(), key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "template not found")
			return
		}
		h.logger.Error("getting template", "error", err, "key", key)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get template")
		return
	}

	p := auth.FromContext(r.Context())
	if (p == nil || p.NormalizedRole() == auth.RoleStudent) && (!t.Active || !t.AllowedForStudents) {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "template not found")
		return
	}

	httpserver.Respond(w, http.StatusOK, t)
}

func (h *Handler) handleListRuntimeConfigs(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListRuntimeConfigs(r.Context(), true)
	if err != nil {
		h.logger.Error("listing runtime configs", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list runtime configs")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"runtime_configs": items, "count": len(items)})
}

func (h *Handler) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	t, err := h.svc.CreateTemplate(r.Context(), req)
	if err != nil {
		h.logger.Error("creating template", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create template")
		return
	}

	h.auditAction(r, "create_template", t.Key)
	httpserver.Respond(w, http.StatusCreated, t)
}

func (h *Handler) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req UpdateTemplateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	t, err := h.svc.UpdateTemplate(r.Context(), key, req)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "template not found")
			return
		}
		h.logger.Error("updating template", "error", err, "key", key)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to update template")
		return
	}

	h.auditAction(r, "update_template", key)
	httpserver.Respond(w, http.StatusOK, t)
}

func (h *Handler) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.svc.DeleteTemplate(r.Context(), key); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "template not found")
			return
		}
		h.logger.Error("deleting template", "error", err, "key", key)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to delete template")
		return
	}

	h.auditAction(r, "delete_template", key)
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleCreateRuntimeConfig(w http.ResponseWriter, r *http.Request) {
	var req CreateRuntimeConfigRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	c, err := h.svc.CreateRuntimeConfig(r.Context(), req)
	if err != nil {
		h.logger.Error("creating runtime config", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create runtime config")
		return
	}

	h.auditAction(r, "create_runtime_config", c.Key)
	httpserver.Respond(w, http.StatusCreated, c)
}

func (h *Handler) handleUpdateRuntimeConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req UpdateRuntimeConfigRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	c, err := h.svc.UpdateRuntimeConfig(r.Context(), key, req)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "runtime config not found")
			return
		}
		h.logger.Error("updating runtime config", "error", err, "key", key)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to update runtime config")
		return
	}

	h.auditAction(r, "update_runtime_config", key)
	httpserver.Respond(w, http.StatusOK, c)
}

func (h *Handler) handleDeleteRuntimeConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.svc.DeleteRuntimeConfig(r.Context(), key); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "runtime config not found")
			return
		}
		h.logger.Error("deleting runtime config", "error", err, "key", key)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to delete runtime config")
		return
	}

	h.auditAction(r, "delete_runtime_config", key)
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) auditAction(r *http.Request, action, key string) {
	if h.audit == nil {
		return
	}
	detail, _ := json.Marshal(map[string]string{"key": key})

	p := auth.FromContext(r.Context())
	var actor *uuid.UUID
	if p != nil {
		actor = &p.UserID
	}
	h.audit.LogFromRequest(r, actor, action, "catalog", uuid.Nil, detail)
}
