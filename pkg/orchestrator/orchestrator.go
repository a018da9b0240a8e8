// Package orchestrator drives lab creation, deletion, pause, and resume:
// it is the only component that mutates both the deployments table and the
// cluster object graph together (spec §4.7, §4.9).
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/labondemand/control-plane/internal/audit"
	"github.com/labondemand/control-plane/internal/labonderr"
	"github.com/labondemand/control-plane/pkg/admission"
	"github.com/labondemand/control-plane/pkg/catalog"
	"github.com/labondemand/control-plane/pkg/clamp"
	"github.com/labondemand/control-plane/pkg/deployment"
	"github.com/labondemand/control-plane/pkg/labnaming"
	"github.com/labondemand/control-plane/pkg/namespacebaseline"
	"github.com/labondemand/control-plane/pkg/quota"
	"github.com/labondemand/control-plane/pkg/stackbuilder"
)

// Config carries the lifecycle and ingress policy values the orchestrator
// needs, mirroring internal/config.Config's relevant fields.
type Config struct {
	LabTTLStudentDays int
	LabTTLTeacherDays int

	IngressEnabled       bool
	IngressBaseDomain    string
	IngressClassName     string
	IngressTLSSecret     string
	IngressAutoTypes     map[string]bool
	IngressExcludedTypes map[string]bool
}

// Orchestrator wires together the admission/quota/namespace/stack-builder
// subsystems into the create/delete/pause/resume operations.
type Orchestrator struct {
	cfg        Config
	client     kubernetes.Interface
	deployments *deployment.Store
	quotas     *quota.Store
	catalogSvc *catalog.Service
	baseline   *namespacebaseline.Baseline
	audit      *audit.Writer
	logger     *slog.Logger
}

// New builds an Orchestrator.
func New(cfg Config, client kubernetes.Interface, deployments *deployment.Store, quotas *quota.Store, catalogSvc *catalog.Service, baseline *namespacebaseline.Baseline, auditWriter *audit.Writer, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		client:     client,
		deployments: deployments,
		quotas:     quotas,
		catalogSvc: catalogSvc,
		baseline:   baseline,
		audit:      auditWriter,
		logger:     logger,
	}
}

// CreateInput is a create-lab request after auth resolution, before clamping.
type CreateInput struct {
	UserID       uuid.UUID
	Role         string
	LabName      string
	TemplateKey  string
	Requested    clamp.Request
	EnvOverrides map[string]string
}

// CreateResult is returned to the HTTP layer. Credentials and URLs are
// transient: they are computed from objects already built in memory and
// must never be logged (spec §4.7).
type CreateResult struct {
	Record         deployment.Record
	Credentials    map[string]string
	AccessURLs     []string
	PartialFailure *labonderr.PartialFailure
}

// Create resolves the namespace, clamps and admits the request, inserts
// (or, on a retried create, reuses) the deployment row, then applies the
// stack's object graph in order.
func (o *Orchestrator) Create(ctx context.Context, in CreateInput, now time.Time) (CreateResult, error) {
	tmpl, err := o.catalogSvc.GetTemplate(ctx, in.TemplateKey)
	if err != nil {
		return CreateResult{}, fmt.Errorf("resolving template: %w", err)
	}
	if !tmpl.Active {
		return CreateResult{}, &labonderr.InvalidInput{Field: "template_key", Reason: "template is not active"}
	}
	if in.Role == "student" && !tmpl.AllowedForStudents {
		return CreateResult{}, &labonderr.InvalidInput{Field: "template_key", Reason: "template is not available to students"}
	}

	floors, err := o.catalogSvc.FloorsForStack(ctx, tmpl.Stack)
	if err != nil {
		return CreateResult{}, fmt.Errorf("resolving runtime floors: %w", err)
	}

	userIDStr := in.UserID.String()
	namespace, err := o.baseline.Ensure(ctx, userIDStr, in.Role)
	if err != nil {
		return CreateResult{}, fmt.Errorf("ensuring namespace baseline: %w", err)
	}

	resolved := clamp.Clamp(in.Requested, in.Role)
	resolved = clamp.ApplyFloors(resolved, clamp.Request{
		CPURequestMillis: int(floors.MinCPURequestM),
		CPULimitMillis:   int(floors.MinCPULimitM),
		MemRequestMi:     int(floors.MinMemRequestMi),
		MemLimitMi:       int(floors.MinMemLimitMi),
		Replicas:         resolved.Replicas,
	})

	override, err := o.quotas.Get(ctx, in.UserID)
	if err != nil {
		return CreateResult{}, fmt.Errorf("loading quota override: %w", err)
	}
	effective := quota.Effective(in.Role, override, now)

	spec := stackbuilder.Spec{
		Namespace:     namespace,
		LabName:       in.LabName,
		UserID:        userIDStr,
		UserRole:      in.Role,
		Stack:         tmpl.Stack,
		Image:         tmpl.Image,
		ContainerPort: tmpl.ContainerPort,
		Resources:     resolved,
		Template:      stackbuilder.TemplateParams{ExposureMode: tmpl.ExposureMode, EnvOverrides: in.EnvOverrides},
		Ingress: stackbuilder.IngressPolicy{
			Enabled:      o.cfg.IngressEnabled,
			BaseDomain:   o.cfg.IngressBaseDomain,
			ClassName:    o.cfg.IngressClassName,
			TLSSecret:    o.cfg.IngressTLSSecret,
			AutoTypes:    o.cfg.IngressAutoTypes,
			ExcludeTypes: o.cfg.IngressExcludedTypes,
		},
	}

	objects, err := stackbuilder.Build(spec)
	if err != nil {
		return CreateResult{}, fmt.Errorf("building object graph: %w", err)
	}

	// existing is non-nil when a prior create for this user+name was
	// interrupted before the object graph finished applying: the row
	// survives as 'active' but some cluster objects may be missing. Reuse
	// it instead of inserting a second row, which the partial unique index
	// on (user_id, name) WHERE status != 'deleted' would reject anyway
	// (spec §4.7 step 3, §8.6).
	existing, lookupErr := o.deployments.GetByUserAndName(ctx, in.UserID, in.LabName)
	reusing := lookupErr == nil
	if lookupErr != nil && !errors.Is(lookupErr, pgx.ErrNoRows) {
		return CreateResult{}, fmt.Errorf("checking for existing deployment row: %w", lookupErr)
	}

	observed, err := o.deployments.ObservedUsageForUser(ctx, in.UserID)
	if err != nil {
		return CreateResult{}, fmt.Errorf("computing observed usage: %w", err)
	}
	if reusing {
		// The existing row already counts toward observed usage; admitting
		// its own re-create must not double-count it.
		observed.Apps--
		observed.CPUMillis -= existing.CPURequestedM
		observed.MemMi -= existing.MemRequestedM
		observed.Pods--
	}

	planned := plannedUsageFromObjects(objects)
	admitErr := admission.Admit(ctx, o.client, namespace,
		admission.Observed{Apps: observed.Apps, CPUMillis: observed.CPUMillis, MemMi: observed.MemMi, Pods: observed.Pods},
		planned, effective)
	if admitErr != nil {
		return CreateResult{}, admitErr
	}

	var record deployment.Record
	if reusing {
		record = existing
	} else {
		expiresAt := expiresAtFor(in.Role, now, o.cfg.LabTTLStudentDays, o.cfg.LabTTLTeacherDays)
		record, err = o.deployments.Create(ctx, deployment.CreateParams{
			UserID:        in.UserID,
			Name:          in.LabName,
			Stack:         tmpl.Stack,
			Namespace:     namespace,
			ExpiresAt:     expiresAt,
			CPURequestedM: resolved.CPURequestMillis,
			MemRequestedM: resolved.MemRequestMi,
		})
		if err != nil {
			return CreateResult{}, fmt.Errorf("inserting deployment row: %w", err)
		}
	}

	result := CreateResult{Record: record, Credentials: map[string]string{}}
	var outcomes []labonderr.ComponentOutcome

	for _, obj := range objects {
		if secret, ok := obj.Object.(*corev1.Secret); ok {
			for k, v := range secret.Data {
				result.Credentials[k] = string(v)
			}
		}

		applyErr := applyObject(ctx, o.client, namespace, obj)
		outcome := labonderr.ComponentOutcome{Component: componentLabel(obj), Succeeded: applyErr == nil}
		if applyErr != nil {
			outcome.Error = applyErr.Error()
			o.logger.Error("applying object during lab creation", "error", applyErr, "kind", obj.Kind.String(), "lab", in.LabName)
		} else {
			o.auditEvent(&in.UserID, "deployment_created", in.LabName, map[string]string{"kind": obj.Kind.String(), "component": outcome.Component})
		}
		outcomes = append(outcomes, outcome)
	}

	result.AccessURLs = accessURLsFor(spec, objects)

	if anyFailed(outcomes) {
		result.PartialFailure = &labonderr.PartialFailure{Op: "create", Components: outcomes}
	}

	return result, nil
}

// plannedUsageFromObjects derives the admission pipeline's planned delta
// from the actual built object graph, so multi-component stacks (mysql,
// lamp, wordpress) are counted by their real pod/PVC/storage footprint
// instead of a flat one-pod assumption (spec §4.6).
func plannedUsageFromObjects(objects []stackbuilder.PlannedObject) admission.Planned {
	var p admission.Planned
	for _, obj := range objects {
		switch o := obj.Object.(type) {
		case *appsv1.Deployment:
			replicas := int64(1)
			if o.Spec.Replicas != nil {
				replicas = int64(*o.Spec.Replicas)
			}
			p.Pods += int(replicas)
			for _, c := range o.Spec.Template.Spec.Containers {
				if q, ok := c.Resources.Requests[corev1.ResourceCPU]; ok {
					p.CPUMillis += int(q.MilliValue() * replicas)
				}
				if q, ok := c.Resources.Requests[corev1.ResourceMemory]; ok {
					p.MemMi += int(q.Value()*replicas/(1024*1024))
				}
				if q, ok := c.Resources.Limits[corev1.ResourceCPU]; ok {
					p.CPULimitMillis += int(q.MilliValue() * replicas)
				}
				if q, ok := c.Resources.Limits[corev1.ResourceMemory]; ok {
					p.MemLimitMi += int(q.Value()*replicas/(1024*1024))
				}
			}
		case *corev1.PersistentVolumeClaim:
			p.PVCs++
			if q, ok := o.Spec.Resources.Requests[corev1.ResourceStorage]; ok {
				p.StorageGi += int(q.Value() / (1024 * 1024 * 1024))
			}
		}
	}
	return p
}

func anyFailed(outcomes []labonderr.ComponentOutcome) bool {
	for _, o := range outcomes {
		if !o.Succeeded {
			return true
		}
	}
	return false
}

func componentLabel(obj stackbuilder.PlannedObject) string {
	if obj.Component != "" {
		return obj.Component
	}
	return obj.Kind.String()
}

func accessURLsFor(spec stackbuilder.Spec, objects []stackbuilder.PlannedObject) []string {
	var urls []string
	for _, obj := range objects {
		if obj.Kind == stackbuilder.KindIngress {
			urls = append(urls, "https://"+labnaming.IngressHost(spec.LabName, spec.UserID, spec.Ingress.BaseDomain))
		}
	}
	return urls
}

func expiresAtFor(role string, now time.Time, studentDays, teacherDays int) *time.Time {
	ttl := deployment.RoleTTL(role, studentDays, teacherDays)
	if ttl == nil {
		return nil
	}
	t := now.Add(*ttl)
	return &t
}

// DeleteOptions controls persistent-object retention on delete.
type DeleteOptions struct {
	DeletePersistent bool
}

// Delete removes the lab's Deployments and Services, optionally its
// Secrets and PVCs, and marks the row deleted (spec §4.7).
func (o *Orchestrator) Delete(ctx context.Context, record deployment.Record, opts DeleteOptions, now time.Time) error {
	return o.delete(ctx, record, opts, now, "deployment_deleted")
}

// DeleteGraceExpired is Delete with the reconciler's grace-period-expiry
// audit action instead of the user-initiated one (spec §4.8 phase 2).
func (o *Orchestrator) DeleteGraceExpired(ctx context.Context, record deployment.Record, opts DeleteOptions, now time.Time) error {
	return o.delete(ctx, record, opts, now, "deployment_auto_deleted_grace_expired")
}

func (o *Orchestrator) delete(ctx context.Context, record deployment.Record, opts DeleteOptions, now time.Time, auditAction string) error {
	selector := labels.SelectorFromSet(labels.Set{
		labnaming.LabelManagedBy: labnaming.ManagedByValue,
		labnaming.LabelApp:       record.Name,
	}).String()
	listOpts := metav1.ListOptions{LabelSelector: selector}

	deployments, err := o.client.AppsV1().Deployments(record.Namespace).List(ctx, listOpts)
	if err != nil {
		o.logger.Error("listing deployments for delete", "error", err, "lab", record.Name)
	} else {
		for i := range deployments.Items {
			d := &deployments.Items[i]
			if delErr := o.client.AppsV1().Deployments(record.Namespace).Delete(ctx, d.Name, metav1.DeleteOptions{}); delErr != nil && !apierrors.IsNotFound(delErr) {
				o.logger.Error("deleting deployment", "error", delErr, "name", d.Name)
			}
		}
	}

	services, err := o.client.CoreV1().Services(record.Namespace).List(ctx, listOpts)
	if err != nil {
		o.logger.Error("listing services for delete", "error", err, "lab", record.Name)
	} else {
		for i := range services.Items {
			s := &services.Items[i]
			if delErr := o.client.CoreV1().Services(record.Namespace).Delete(ctx, s.Name, metav1.DeleteOptions{}); delErr != nil && !apierrors.IsNotFound(delErr) {
				o.logger.Error("deleting service", "error", delErr, "name", s.Name)
			}
		}
	}

	if opts.DeletePersistent {
		secrets, err := o.client.CoreV1().Secrets(record.Namespace).List(ctx, listOpts)
		if err != nil {
			o.logger.Error("listing secrets for delete", "error", err, "lab", record.Name)
		} else {
			for i := range secrets.Items {
				s := &secrets.Items[i]
				if delErr := o.client.CoreV1().Secrets(record.Namespace).Delete(ctx, s.Name, metav1.DeleteOptions{}); delErr != nil && !apierrors.IsNotFound(delErr) {
					o.logger.Error("deleting secret", "error", delErr, "name", s.Name)
				}
			}
		}
		pvcs, err := o.client.CoreV1().PersistentVolumeClaims(record.Namespace).List(ctx, listOpts)
		if err != nil {
			o.logger.Error("listing pvcs for delete", "error", err, "lab", record.Name)
		} else {
			for i := range pvcs.Items {
				p := &pvcs.Items[i]
				if delErr := o.client.CoreV1().PersistentVolumeClaims(record.Namespace).Delete(ctx, p.Name, metav1.DeleteOptions{}); delErr != nil && !apierrors.IsNotFound(delErr) {
					o.logger.Error("deleting pvc", "error", delErr, "name", p.Name)
				}
			}
		}
	}

	deletedAt := now
	if err := o.deployments.SetStatus(ctx, record.ID, deployment.StatusDeleted, nil, &deletedAt); err != nil {
		return fmt.Errorf("marking deployment deleted: %w", err)
	}

	o.auditEvent(&record.UserID, auditAction, record.Name, map[string]any{"delete_persistent": opts.DeletePersistent})
	return nil
}

// Pause scales every non-opted-out Deployment sharing the lab's app label
// to zero, recording each component's prior replica count (spec §4.9).
func (o *Orchestrator) Pause(ctx context.Context, record deployment.Record, now time.Time) (*labonderr.PartialFailure, error) {
	return o.pause(ctx, record, now, "deployment_paused")
}

// PauseExpired is Pause with the reconciler's TTL-expiry audit action
// instead of the user-initiated one (spec §4.8 phase 1).
func (o *Orchestrator) PauseExpired(ctx context.Context, record deployment.Record, now time.Time) (*labonderr.PartialFailure, error) {
	return o.pause(ctx, record, now, "deployment_auto_paused_expired")
}

func (o *Orchestrator) pause(ctx context.Context, record deployment.Record, now time.Time, auditAction string) (*labonderr.PartialFailure, error) {
	if record.Status == deployment.StatusPaused || record.Status == deployment.StatusDeleted {
		return nil, &labonderr.Conflict{Kind: "lab", Name: record.Name, Reason: fmt.Sprintf("lab is already %s", record.Status)}
	}

	deployments, err := o.listComponentDeployments(ctx, record)
	if err != nil {
		return nil, err
	}

	var outcomes []labonderr.ComponentOutcome
	for i := range deployments {
		d := &deployments[i]
		component := d.Labels[labnaming.LabelComponent]
		if d.Annotations[labnaming.AnnotationPauseDisabled] == "true" {
			continue
		}

		replicas := int32(1)
		if d.Spec.Replicas != nil {
			replicas = *d.Spec.Replicas
		}

		d.Annotations = withAnnotation(d.Annotations, labnaming.AnnotationPausedReplicas, fmt.Sprintf("%d", replicas))
		zero := int32(0)
		d.Spec.Replicas = &zero

		_, updateErr := o.client.AppsV1().Deployments(record.Namespace).Update(ctx, d, metav1.UpdateOptions{})
		outcomes = append(outcomes, outcomeFor(component, d.Name, updateErr))
		if updateErr != nil {
			o.logger.Error("pausing component", "error", updateErr, "lab", record.Name, "component", component)
		}
	}

	lastSeenAt := now
	if err := o.deployments.SetStatus(ctx, record.ID, deployment.StatusPaused, &lastSeenAt, nil); err != nil {
		return nil, fmt.Errorf("marking deployment paused: %w", err)
	}

	o.auditEvent(&record.UserID, auditAction, record.Name, nil)

	if anyFailed(outcomes) {
		return &labonderr.PartialFailure{Op: "pause", Components: outcomes}, nil
	}
	return nil, nil
}

// Resume scales every component not opted out of pause back to its
// pre-pause replica count, defaulting to 1 when the annotation is missing
// (spec §4.7).
func (o *Orchestrator) Resume(ctx context.Context, record deployment.Record, now time.Time) (*labonderr.PartialFailure, error) {
	if record.Status != deployment.StatusPaused {
		return nil, &labonderr.Conflict{Kind: "lab", Name: record.Name, Reason: "lab is not paused"}
	}

	deployments, err := o.listComponentDeployments(ctx, record)
	if err != nil {
		return nil, err
	}

	var outcomes []labonderr.ComponentOutcome
	for i := range deployments {
		d := &deployments[i]
		component := d.Labels[labnaming.LabelComponent]
		if d.Annotations[labnaming.AnnotationPauseDisabled] == "true" {
			continue
		}

		replicas := int32(1)
		if v, ok := d.Annotations[labnaming.AnnotationPausedReplicas]; ok {
			var parsed int32
			if _, scanErr := fmt.Sscanf(v, "%d", &parsed); scanErr == nil {
				replicas = parsed
			}
		}
		delete(d.Annotations, labnaming.AnnotationPausedReplicas)
		d.Spec.Replicas = &replicas

		_, updateErr := o.client.AppsV1().Deployments(record.Namespace).Update(ctx, d, metav1.UpdateOptions{})
		outcomes = append(outcomes, outcomeFor(component, d.Name, updateErr))
		if updateErr != nil {
			o.logger.Error("resuming component", "error", updateErr, "lab", record.Name, "component", component)
		}
	}

	if err := o.deployments.SetStatus(ctx, record.ID, deployment.StatusActive, nil, nil); err != nil {
		return nil, fmt.Errorf("marking deployment active: %w", err)
	}

	o.auditEvent(&record.UserID, "deployment_resumed", record.Name, nil)

	if anyFailed(outcomes) {
		return &labonderr.PartialFailure{Op: "resume", Components: outcomes}, nil
	}
	return nil, nil
}

func (o *Orchestrator) listComponentDeployments(ctx context.Context, record deployment.Record) ([]appsv1.Deployment, error) {
	selector := labels.SelectorFromSet(labels.Set{
		labnaming.LabelManagedBy: labnaming.ManagedByValue,
		labnaming.LabelApp:       record.Name,
	}).String()
	list, err := o.client.AppsV1().Deployments(record.Namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, &labonderr.ClusterUnavailable{Op: "list deployments for " + record.Name, Err: err}
	}
	return list.Items, nil
}

func withAnnotation(annotations map[string]string, key, value string) map[string]string {
	if annotations == nil {
		annotations = map[string]string{}
	}
	annotations[key] = value
	return annotations
}

func outcomeFor(component, name string, err error) labonderr.ComponentOutcome {
	if component == "" {
		component = name
	}
	o := labonderr.ComponentOutcome{Component: component, Succeeded: err == nil}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

func (o *Orchestrator) auditEvent(userID *uuid.UUID, action, labName string, detail any) {
	if o.audit == nil {
		return
	}
	merged := map[string]any{"lab_name": labName}
	if detail != nil {
		if b, err := json.Marshal(detail); err == nil {
			var m map[string]any
			if json.Unmarshal(b, &m) == nil {
				for k, v := range m {
					merged[k] = v
				}
			}
		}
	}
	raw, _ := json.Marshal(merged)
	o.audit.Log(audit.Entry{UserID: userID, Action: action, Resource: "deployment", ResourceID: uuid.Nil, Detail: raw})
}
