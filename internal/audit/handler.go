package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/labondemand/control-plane/internal/db"
	"github.com/labondemand/control-plane/internal/httpserver"
)

// LoggedEntry is a row read back from the audit_log table.
type LoggedEntry struct {
	ID         int64           `json:"id"`
	UserID     *uuid.UUID      `json:"user_id,omitempty"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	ResourceID uuid.UUID       `json:"resource_id"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	IPAddress  *string         `json:"ip_address,omitempty"`
	UserAgent  *string         `json:"user_agent,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ListEntries returns a page of audit log rows, most recent first, and the
// total row count for pagination.
func ListEntries(ctx context.Context, dbtx db.DBTX, limit, offset int) ([]LoggedEntry, int, error) {
	var total int
	if err := dbtx.QueryRow(ctx, `SELECT count(*) FROM audit_log`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit log rows: %w", err)
	}

	rows, err := dbtx.Query(ctx, `
		SELECT id, user_id, action, resource, resource_id, detail, ip_address, user_agent, created_at
		FROM audit_log ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing audit log: %w", err)
	}
	defer rows.Close()

	var items []LoggedEntry
	for rows.Next() {
		var e LoggedEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Resource, &e.ResourceID,
			&e.Detail, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning audit log row: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating audit log rows: %w", err)
	}
	return items, total, nil
}

// Handler serves the admin audit log API.
type Handler struct {
	dbtx   db.DBTX
	logger *slog.Logger
}

// NewHandler creates an audit log Handler.
func NewHandler(dbtx db.DBTX, logger *slog.Logger) *Handler {
	return &Handler{dbtx: dbtx, logger: logger}
}

// Routes returns a chi.Router with the audit log read route mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	entries, total, err := ListEntries(r.Context(), h.dbtx, params.PageSize, params.Offset)
	if err != nil {
		h.logger.Error("listing audit log", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list audit log")
		return
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(entries, params, total))
}
