package user

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/labondemand/control-plane/internal/audit"
	"github.com/labondemand/control-plane/internal/db"
	"github.com/labondemand/control-plane/internal/httpserver"
)

// Handler provides HTTP handlers for the users admin API.
type Handler struct {
	svc    *Service
	logger *slog.Logger
	audit  *audit.Writer
}

// NewHandler creates a user Handler.
func NewHandler(dbtx db.DBTX, logger *slog.Logger, audit *audit.Writer) *Handler {
	return &Handler{svc: NewService(dbtx, logger), logger: logger, audit: audit}
}

// Routes returns a chi.Router with all user admin routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Put("/role", h.handleSetRole)
		r.Delete("/", h.handleDeactivate)
	})
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.svc.Create(r.Context(), req)
	if err != nil {
		h.logger.Error("creating user", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create user")
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]string{"auth_provider": resp.AuthProvider, "role": resp.Role})
		h.audit.LogFromRequest(r, &resp.ID, "create", "user", resp.ID, detail)
	}

	httpserver.Respond(w, http.StatusCreated, resp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context())
	if err != nil {
		h.logger.Error("listing users", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list users")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"users": items,
		"count": len(items),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid user ID")
		return
	}

	resp, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.logger.Error("getting user", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get user")
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleSetRole(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid user ID")
		return
	}

	var req UpdateRoleRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.svc.SetRole(r.Context(), id, req)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.logger.Error("setting role", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to set role")
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]any{"role": resp.Role, "role_override": resp.RoleOverride})
		h.audit.LogFromRequest(r, &resp.ID, "set_role", "user", resp.ID, detail)
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid user ID")
		return
	}

	if err := h.svc.Deactivate(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.logger.Error("deactivating user", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to deactivate user")
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, &id, "deactivate", "user", id, nil)
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}
