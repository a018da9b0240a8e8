package quota

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/labondemand/control-plane/internal/audit"
	"github.com/labondemand/control-plane/internal/auth"
	"github.com/labondemand/control-plane/internal/db"
	"github.com/labondemand/control-plane/internal/httpserver"
)

// SetRequest is the JSON body for PUT /api/v1/admin/users/:id/quota.
// Nil fields leave that dimension inheriting the role default.
type SetRequest struct {
	MaxApps      *int       `json:"max_apps"`
	MaxCPUMillis *int       `json:"max_cpu_millis"`
	MaxMemMi     *int       `json:"max_mem_mi"`
	MaxStorageGi *int       `json:"max_storage_gi"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

// Handler provides the admin quota-override endpoints.
type Handler struct {
	store  *Store
	logger *slog.Logger
	audit  *audit.Writer
}

// NewHandler creates a quota Handler.
func NewHandler(dbtx db.DBTX, logger *slog.Logger, audit *audit.Writer) *Handler {
	return &Handler{store: NewStore(dbtx), logger: logger, audit: audit}
}

// AdminRoutes returns the quota override routes, mounted under
// /api/v1/admin/users/{id}/quota.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleGet)
	r.Put("/", h.handleSet)
	r.Delete("/", h.handleClear)
	return r
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid user ID")
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	override, err := h.store.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error("getting quota override", "error", err, "user_id", userID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get quota override")
		return
	}
	if override == nil {
		httpserver.Respond(w, http.StatusOK, map[string]any{"user_id": userID, "override": nil})
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"user_id": userID, "override": override})
}

func (h *Handler) handleSet(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req SetRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	var createdBy *uuid.UUID
	if p := auth.FromContext(r.Context()); p != nil {
		createdBy = &p.UserID
	}

	override, err := h.store.Set(r.Context(), Override{
		UserID:       userID,
		MaxApps:      req.MaxApps,
		MaxCPUMillis: req.MaxCPUMillis,
		MaxMemMi:     req.MaxMemMi,
		MaxStorageGi: req.MaxStorageGi,
		ExpiresAt:    req.ExpiresAt,
		CreatedBy:    createdBy,
	})
	if err != nil {
		h.logger.Error("setting quota override", "error", err, "user_id", userID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to set quota override")
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(req)
		h.audit.LogFromRequest(r, createdBy, "quota_override_set", "user", userID, detail)
	}

	httpserver.Respond(w, http.StatusOK, override)
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.store.Clear(r.Context(), userID); err != nil {
		h.logger.Error("clearing quota override", "error", err, "user_id", userID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to clear quota override")
		return
	}

	if h.audit != nil {
		var actor *uuid.UUID
		if p := auth.FromContext(r.Context()); p != nil {
			actor = &p.UserID
		}
		h.audit.LogFromRequest(r, actor, "quota_override_cleared", "user", userID, nil)
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}
