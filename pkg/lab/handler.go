// Package lab exposes lab lifecycle operations (create, list, get, delete,
// pause, resume) over HTTP, wiring the Deployment Orchestrator and the
// deployment record store together (spec §4.7, §4.8, §4.9). It is a
// separate package from pkg/deployment because pkg/orchestrator already
// depends on pkg/deployment; putting the HTTP layer here avoids a cycle.
package lab

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"

	"github.com/labondemand/control-plane/internal/auth"
	"github.com/labondemand/control-plane/internal/httpserver"
	"github.com/labondemand/control-plane/internal/labonderr"
	"github.com/labondemand/control-plane/pkg/clamp"
	"github.com/labondemand/control-plane/pkg/deployment"
	"github.com/labondemand/control-plane/pkg/labnaming"
	"github.com/labondemand/control-plane/pkg/orchestrator"
)

// CreateRequest is the JSON body for POST /api/v1/labs.
type CreateRequest struct {
	Name             string            `json:"name" validate:"required,min=1,max=63"`
	TemplateKey      string            `json:"template_key" validate:"required"`
	CPURequestMillis int               `json:"cpu_request_millis" validate:"min=0"`
	CPULimitMillis   int               `json:"cpu_limit_millis" validate:"min=0"`
	MemRequestMi     int               `json:"mem_request_mi" validate:"min=0"`
	MemLimitMi       int               `json:"mem_limit_mi" validate:"min=0"`
	Replicas         int               `json:"replicas" validate:"min=0"`
	EnvOverrides     map[string]string `json:"env_overrides"`
}

// CreateResponse is the JSON body returned from a successful lab creation.
// Credentials and access URLs are transient: the caller must capture them
// from this response, since secret data is never re-displayed afterward
// (spec §4.5).
type CreateResponse struct {
	deployment.Response
	Credentials    map[string]string         `json:"credentials,omitempty"`
	AccessURLs     []string                  `json:"access_urls,omitempty"`
	PartialFailure *labonderr.PartialFailure `json:"partial_failure,omitempty"`
}

// Handler serves the /api/v1/labs routes.
type Handler struct {
	store          *deployment.Store
	orch           *orchestrator.Orchestrator
	client         kubernetes.Interface
	nsPrefix       string
	studentTTLDays int
	teacherTTLDays int
	rateLimiter    *auth.RateLimiter
	logger         *slog.Logger
}

// NewHandler builds a lab Handler. rateLimiter may be nil to disable
// create-rate-limiting (e.g. in tests).
func NewHandler(store *deployment.Store, orch *orchestrator.Orchestrator, client kubernetes.Interface, nsPrefix string, studentTTLDays, teacherTTLDays int, rateLimiter *auth.RateLimiter, logger *slog.Logger) *Handler {
	return &Handler{
		store:          store,
		orch:           orch,
		client:         client,
		nsPrefix:       nsPrefix,
		studentTTLDays: studentTTLDays,
		teacherTTLDays: teacherTTLDays,
		rateLimiter:    rateLimiter,
		logger:         logger,
	}
}

// Routes returns the lab routes, mounted under /api/v1/labs. Every route
// requires an authenticated principal.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireAuth)

	create := http.Handler(http.HandlerFunc(h.handleCreate))
	if h.rateLimiter != nil {
		create = h.rateLimiter.Middleware(create)
	}
	r.Method(http.MethodPost, "/", create)

	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Delete("/{id}", h.handleDelete)
	r.Post("/{id}/pause", h.handlePause)
	r.Post("/{id}/resume", h.handleResume)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	in := orchestrator.CreateInput{
		UserID:      p.UserID,
		Role:        p.NormalizedRole(),
		LabName:     req.Name,
		TemplateKey: req.TemplateKey,
		Requested: clamp.Request{
			CPURequestMillis: req.CPURequestMillis,
			CPULimitMillis:   req.CPULimitMillis,
			MemRequestMi:     req.MemRequestMi,
			MemLimitMi:       req.MemLimitMi,
			Replicas:         req.Replicas,
		},
		EnvOverrides: req.EnvOverrides,
	}

	result, err := h.orch.Create(r.Context(), in, time.Now())
	if err != nil {
		h.logger.Error("creating lab", "error", err, "user_id", p.UserID, "lab_name", req.Name)
		httpserver.RespondErrKind(w, err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, CreateResponse{
		Response:       result.Record.ToResponse(),
		Credentials:    result.Credentials,
		AccessURLs:     result.AccessURLs,
		PartialFailure: result.PartialFailure,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())

	namespace := labnaming.Namespace(h.nsPrefix, p.UserID.String())
	if err := h.healNamespace(r, p.UserID, p.NormalizedRole(), namespace); err != nil {
		h.logger.Error("healing deployment rows from cluster state", "error", err, "user_id", p.UserID)
	}

	records, err := h.store.ListForUser(r.Context(), p.UserID)
	if err != nil {
		h.logger.Error("listing labs", "error", err, "user_id", p.UserID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list labs")
		return
	}

	resp := make([]deployment.Response, 0, len(records))
	for i := range records {
		resp = append(resp, records[i].ToResponse())
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	record, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	httpserver.Respond(w, http.StatusOK, record.ToResponse())
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	record, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	// User-initiated deletes default to preserving persistent storage;
	// reconciler-initiated grace deletes go through
	// Orchestrator.DeleteGraceExpired with delete_persistent=true (SPEC_FULL §5).
	deletePersistent := r.URL.Query().Get("delete_persistent") == "true"

	if err := h.orch.Delete(r.Context(), record, orchestrator.DeleteOptions{DeletePersistent: deletePersistent}, time.Now()); err != nil {
		h.logger.Error("deleting lab", "error", err, "lab_id", record.ID)
		httpserver.RespondErrKind(w, err)
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	record, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	partial, err := h.orch.Pause(r.Context(), record, time.Now())
	if err != nil {
		httpserver.RespondErrKind(w, err)
		return
	}
	if partial != nil {
		httpserver.Respond(w, http.StatusMultiStatus, partial)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": deployment.StatusPaused})
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	record, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	partial, err := h.orch.Resume(r.Context(), record, time.Now())
	if err != nil {
		httpserver.RespondErrKind(w, err)
		return
	}
	if partial != nil {
		httpserver.Respond(w, http.StatusMultiStatus, partial)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": deployment.StatusActive})
}

// loadOwned fetches the lab by path id and verifies the caller either owns
// it or holds the admin role, returning 404 either way on mismatch so
// ownership is never leaked through a 403 (spec §4.2).
func (h *Handler) loadOwned(w http.ResponseWriter, r *http.Request) (deployment.Record, bool) {
	p := auth.FromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid lab ID")
		return deployment.Record{}, false
	}

	record, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "lab not found")
		} else {
			h.logger.Error("getting lab", "error", err, "lab_id", id)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get lab")
		}
		return deployment.Record{}, false
	}

	if p.NormalizedRole() != auth.RoleAdmin && record.UserID != p.UserID {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "lab not found")
		return deployment.Record{}, false
	}
	return record, true
}

// healNamespace backfills deployment rows for cluster Deployments that
// carry this user's labels but have no corresponding DB row — the case
// where the row was lost (for example to an operator action) while the
// cluster objects survived, leaving the cluster object authoritative. The
// backfilled expires_at is computed from the cluster object's creation
// timestamp, not the current time, so a healed lab does not get a fresh
// full TTL it never earned (spec §4.8).
func (h *Handler) healNamespace(r *http.Request, userID uuid.UUID, role, namespace string) error {
	selector := labels.SelectorFromSet(labels.Set{
		labnaming.LabelManagedBy: labnaming.ManagedByValue,
		labnaming.LabelUserID:    userID.String(),
	}).String()

	list, err := h.client.AppsV1().Deployments(namespace).List(r.Context(), metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return fmt.Errorf("listing cluster deployments: %w", err)
	}

	earliest := map[string]*appsv1.Deployment{}
	for i := range list.Items {
		d := &list.Items[i]
		name := d.Labels[labnaming.LabelApp]
		if name == "" {
			continue
		}
		cur, ok := earliest[name]
		if !ok || d.CreationTimestamp.Before(&cur.CreationTimestamp) {
			earliest[name] = d
		}
	}

	for name, d := range earliest {
		_, err := h.store.GetByNamespaceAndLabName(r.Context(), namespace, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			h.logger.Error("checking for deployment row during heal", "error", err, "namespace", namespace, "name", name)
			continue
		}

		cpuM, memM := requestedResourcesOf(d)
		created := d.CreationTimestamp.Time
		var expiresAt *time.Time
		if ttl := deployment.RoleTTL(role, h.studentTTLDays, h.teacherTTLDays); ttl != nil {
			t := created.Add(*ttl)
			expiresAt = &t
		}

		if _, err := h.store.Create(r.Context(), deployment.CreateParams{
			UserID:        userID,
			Name:          name,
			Stack:         d.Labels[labnaming.LabelStack],
			Namespace:     namespace,
			ExpiresAt:     expiresAt,
			CPURequestedM: cpuM,
			MemRequestedM: memM,
		}); err != nil {
			h.logger.Error("backfilling deployment row during heal", "error", err, "namespace", namespace, "name", name)
			continue
		}
		h.logger.Info("healed missing deployment row", "namespace", namespace, "name", name, "user_id", userID)
	}
	return nil
}

// requestedResourcesOf sums the CPU (millicores) and memory (Mi) requests
// across a Deployment's containers, for backfilling a healed row's
// recorded footprint.
func requestedResourcesOf(d *appsv1.Deployment) (cpuMillis, memMi int) {
	for _, c := range d.Spec.Template.Spec.Containers {
		if q, ok := c.Resources.Requests["cpu"]; ok {
			cpuMillis += int(q.MilliValue())
		}
		if q, ok := c.Resources.Requests["memory"]; ok {
			memMi += int(q.Value() / (1024 * 1024))
		}
	}
	return cpuMillis, memMi
}
