// Package reconciler runs the Lifecycle Reconciler: a single cooperative
// loop that pauses expired labs, deletes labs past their grace period,
// backfills missing expiry timestamps, and sweeps orphaned namespaces
// (spec §4.8). Every phase is independent and every entity within a phase
// is wrapped in its own error boundary, so one bad row or cluster call
// never aborts the rest of the cycle.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"

	"github.com/labondemand/control-plane/internal/audit"
	"github.com/labondemand/control-plane/pkg/deployment"
	"github.com/labondemand/control-plane/pkg/labnaming"
	"github.com/labondemand/control-plane/pkg/orchestrator"
	"github.com/labondemand/control-plane/pkg/user"
)

// Config carries the reconciler's cycle timing and the role TTLs needed to
// compute a backfilled expires_at.
type Config struct {
	Interval       time.Duration
	GracePeriod    time.Duration
	OrphanNSGrace  time.Duration
	StudentTTLDays int
	TeacherTTLDays int
}

// Reconciler owns one reconciliation cycle's dependencies.
type Reconciler struct {
	cfg         Config
	client      kubernetes.Interface
	deployments *deployment.Store
	users       *user.Store
	orch        *orchestrator.Orchestrator
	audit       *audit.Writer
	logger      *slog.Logger
}

// New builds a Reconciler.
func New(cfg Config, client kubernetes.Interface, deployments *deployment.Store, users *user.Store, orch *orchestrator.Orchestrator, auditWriter *audit.Writer, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		cfg:         cfg,
		client:      client,
		deployments: deployments,
		users:       users,
		orch:        orch,
		audit:       auditWriter,
		logger:      logger,
	}
}

// Run ticks every cfg.Interval, running one cycle immediately and then on
// each tick, until ctx is canceled.
func (rc *Reconciler) Run(ctx context.Context) {
	rc.RunOnce(ctx, time.Now())

	ticker := time.NewTicker(rc.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			rc.RunOnce(ctx, tick)
		}
	}
}

// RunOnce executes all four reconciliation phases in order (spec §4.8).
func (rc *Reconciler) RunOnce(ctx context.Context, now time.Time) {
	start := time.Now()
	rc.expireActiveLabs(ctx, now)
	rc.deleteGraceExpiredLabs(ctx, now)
	rc.backfillMissingExpiry(ctx, now)
	rc.sweepOrphanNamespaces(ctx, now)
	rc.logger.Info("reconciler cycle complete", "duration", time.Since(start))
}

// expireActiveLabs is phase 1: pause every active lab whose expiry has
// passed.
func (rc *Reconciler) expireActiveLabs(ctx context.Context, now time.Time) {
	records, err := rc.deployments.ListActiveExpired(ctx, now)
	if err != nil {
		rc.logger.Error("listing expired active labs", "error", err)
		return
	}

	for _, record := range records {
		if _, err := rc.orch.PauseExpired(ctx, record, now); err != nil {
			rc.logger.Error("auto-pausing expired lab", "error", err, "lab_id", record.ID, "lab_name", record.Name)
		}
	}
}

// deleteGraceExpiredLabs is phase 2: delete every paused lab whose grace
// period has elapsed. Grace-period deletes default to removing persistent
// objects (spec §4.7, SPEC_FULL §5).
func (rc *Reconciler) deleteGraceExpiredLabs(ctx context.Context, now time.Time) {
	cutoff := now.Add(-rc.cfg.GracePeriod)
	records, err := rc.deployments.ListPausedGraceExpired(ctx, cutoff)
	if err != nil {
		rc.logger.Error("listing grace-expired paused labs", "error", err)
		return
	}

	for _, record := range records {
		if err := rc.orch.DeleteGraceExpired(ctx, record, orchestrator.DeleteOptions{DeletePersistent: true}, now); err != nil {
			rc.logger.Error("auto-deleting grace-expired lab", "error", err, "lab_id", record.ID, "lab_name", record.Name)
		}
	}
}

// backfillMissingExpiry is phase 3: set expires_at = created_at + role_TTL
// on active, non-admin rows that were created without one (spec §4.8).
func (rc *Reconciler) backfillMissingExpiry(ctx context.Context, now time.Time) {
	records, err := rc.deployments.ListMissingExpiresAt(ctx)
	if err != nil {
		rc.logger.Error("listing deployments missing expires_at", "error", err)
		return
	}

	for _, record := range records {
		rc.backfillOne(ctx, record)
	}
}

func (rc *Reconciler) backfillOne(ctx context.Context, record deployment.RecordWithRole) {
	ttl := deployment.RoleTTL(record.Role, rc.cfg.StudentTTLDays, rc.cfg.TeacherTTLDays)
	if ttl == nil {
		return
	}
	expiresAt := record.CreatedAt.Add(*ttl)
	if err := rc.deployments.SetExpiresAt(ctx, record.ID, &expiresAt); err != nil {
		rc.logger.Error("backfilling expires_at", "error", err, "lab_id", record.ID)
		return
	}
	rc.auditEvent(&record.UserID, "deployment_expires_at_backfilled", "deployment", record.Name, nil)
}

// sweepOrphanNamespaces is phase 4: delete namespaces whose owning user no
// longer exists, subject to two guards (spec §4.8).
func (rc *Reconciler) sweepOrphanNamespaces(ctx context.Context, now time.Time) {
	selector := labels.SelectorFromSet(labels.Set{labnaming.LabelManagedBy: labnaming.ManagedByValue}).String()
	list, err := rc.client.CoreV1().Namespaces().List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		rc.logger.Error("listing namespaces for orphan sweep", "error", err)
		return
	}

	for i := range list.Items {
		rc.sweepOneNamespace(ctx, &list.Items[i], now)
	}
}

// orphanAction is the outcome of evaluating an orphan namespace's guards.
type orphanAction string

const (
	orphanActionKeep                  orphanAction = "keep"
	orphanActionDelete                orphanAction = "delete"
	orphanActionSkipActiveDeployments orphanAction = "skip_active_deployments"
	orphanActionSkipTooNew            orphanAction = "skip_too_new"
)

// decideOrphanAction is the pure decision at the heart of the orphan sweep
// (spec §4.8 Guards A and B), isolated from I/O so it can be tested
// without a fake cluster or database.
func decideOrphanAction(userExists bool, nonDeletedDeployments int, nsCreatedAt, now time.Time, orphanGrace time.Duration) orphanAction {
	if userExists {
		return orphanActionKeep
	}
	if nonDeletedDeployments > 0 {
		return orphanActionSkipActiveDeployments
	}
	if nsCreatedAt.After(now.Add(-orphanGrace)) {
		return orphanActionSkipTooNew
	}
	return orphanActionDelete
}

func (rc *Reconciler) sweepOneNamespace(ctx context.Context, ns *corev1.Namespace, now time.Time) {
	userIDStr := ns.Labels[labnaming.LabelUserID]
	if userIDStr == "" {
		return
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		rc.logger.Warn("namespace has unparseable user-id label", "namespace", ns.Name, "user_id", userIDStr)
		return
	}

	_, err = rc.users.Get(ctx, userID)
	userExists := err == nil
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		rc.logger.Error("looking up user for orphan sweep", "error", err, "namespace", ns.Name)
		return
	}

	var nonDeleted int
	if !userExists {
		nonDeleted, err = rc.deployments.CountNonDeletedForUser(ctx, userID)
		if err != nil {
			rc.logger.Error("counting deployments for orphan guard", "error", err, "namespace", ns.Name)
			return
		}
	}

	switch decideOrphanAction(userExists, nonDeleted, ns.CreationTimestamp.Time, now, rc.cfg.OrphanNSGrace) {
	case orphanActionKeep:
		return
	case orphanActionSkipActiveDeployments:
		rc.auditEvent(nil, "orphan_namespace_skipped", "namespace", ns.Name, map[string]string{"reason": "active_deployments"})
	case orphanActionSkipTooNew:
		rc.auditEvent(nil, "orphan_namespace_skipped", "namespace", ns.Name, map[string]string{"reason": "namespace_too_new"})
	case orphanActionDelete:
		if err := rc.client.CoreV1().Namespaces().Delete(ctx, ns.Name, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
			rc.logger.Error("deleting orphan namespace", "error", err, "namespace", ns.Name)
			return
		}
		rc.auditEvent(nil, "orphan_namespace_deleted", "namespace", ns.Name, nil)
	}
}

func (rc *Reconciler) auditEvent(userID *uuid.UUID, action, resource, subject string, detail map[string]string) {
	if rc.audit == nil {
		return
	}
	merged := map[string]any{"name": subject}
	for k, v := range detail {
		merged[k] = v
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		raw = json.RawMessage(fmt.Sprintf(`{"name":%q}`, subject))
	}
	rc.audit.Log(audit.Entry{UserID: userID, Action: action, Resource: resource, ResourceID: uuid.Nil, Detail: raw})
}
