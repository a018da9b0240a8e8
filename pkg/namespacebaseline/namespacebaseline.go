// Package namespacebaseline idempotently ensures each user's namespace
// carries a ResourceQuota and LimitRange sized to their role, creating the
// namespace itself on first use.
package namespacebaseline

import (
	"context"
	"fmt"
	"log/slog"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/labondemand/control-plane/pkg/labnaming"
)

// Quota is the dense ResourceQuota ceiling for a role.
type Quota struct {
	Pods           int64
	ReqCPUMillis   int64
	ReqMemMi       int64
	LimCPUMillis   int64
	LimMemMi       int64
	PVCs           int64
	StoragePVCGi   int64
	HasPVCCeilings bool
}

// RoleQuotas picks the stricter of the two documented revisions per
// spec §9 — role LimitRange floors are derived from the ResourceQuota
// ceiling below rather than hand-maintained separately (SPEC_FULL §5).
var RoleQuotas = map[string]Quota{
	"student": {Pods: 6, ReqCPUMillis: 2500, ReqMemMi: 6144, LimCPUMillis: 5000, LimMemMi: 8192, PVCs: 2, StoragePVCGi: 2, HasPVCCeilings: true},
	"teacher": {Pods: 20, ReqCPUMillis: 4000, ReqMemMi: 8192, LimCPUMillis: 8000, LimMemMi: 16384, PVCs: 10, StoragePVCGi: 20, HasPVCCeilings: true},
	"admin":   {Pods: 200, ReqCPUMillis: 64000, ReqMemMi: 131072, LimCPUMillis: 128000, LimMemMi: 262144, PVCs: 100, StoragePVCGi: 2048, HasPVCCeilings: true},
}

// QuotaForRole returns the dense quota for role, falling back to student.
func QuotaForRole(role string) Quota {
	if q, ok := RoleQuotas[role]; ok {
		return q
	}
	return RoleQuotas["student"]
}

// Baseline ensures per-user namespaces and their quota objects.
type Baseline struct {
	client kubernetes.Interface
	prefix string
	logger *slog.Logger
}

// New creates a Baseline. prefix is the configured namespace prefix
// (USER_NAMESPACE_PREFIX).
func New(client kubernetes.Interface, prefix string, logger *slog.Logger) *Baseline {
	return &Baseline{client: client, prefix: prefix, logger: logger}
}

// NamespaceName derives the deterministic per-user namespace name.
func (b *Baseline) NamespaceName(userID string) string {
	return labnaming.Namespace(b.prefix, userID)
}

// Ensure creates the namespace if absent and upserts its ResourceQuota and
// LimitRange to match role. Patch failures are logged and tolerated — the
// namespace name is still returned, per spec §4.3.
func (b *Baseline) Ensure(ctx context.Context, userID, role string) (string, error) {
	ns := b.NamespaceName(userID)

	if err := b.ensureNamespace(ctx, ns, userID, role); err != nil {
		return "", fmt.Errorf("ensuring namespace %s: %w", ns, err)
	}

	q := QuotaForRole(role)
	if err := b.ensureResourceQuota(ctx, ns, q); err != nil {
		b.logger.Warn("patching resource quota failed, tolerating", "namespace", ns, "error", err)
	}
	if err := b.ensureLimitRange(ctx, ns, q); err != nil {
		b.logger.Warn("patching limit range failed, tolerating", "namespace", ns, "error", err)
	}

	return ns, nil
}

func (b *Baseline) ensureNamespace(ctx context.Context, name, userID, role string) error {
	_, err := b.client.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsNotFound(err) {
		return fmt.Errorf("getting namespace: %w", err)
	}

	obj := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
			Labels: map[string]string{
				labnaming.LabelManagedBy: labnaming.ManagedByValue,
				labnaming.LabelUserID:    userID,
				labnaming.LabelUserRole:  role,
			},
		},
	}
	if _, err := b.client.CoreV1().Namespaces().Create(ctx, obj, metav1.CreateOptions{}); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return nil
		}
		return fmt.Errorf("creating namespace: %w", err)
	}
	return nil
}

func (b *Baseline) ensureResourceQuota(ctx context.Context, ns string, q Quota) error {
	desired := &corev1.ResourceQuota{
		ObjectMeta: metav1.ObjectMeta{
			Name:      labnaming.BaselineQuotaName,
			Namespace: ns,
		},
		Spec: corev1.ResourceQuotaSpec{
			Hard: corev1.ResourceList{
				corev1.ResourcePods:                   *resource.NewQuantity(q.Pods, resource.DecimalSI),
				corev1.ResourceRequestsCPU:             *resource.NewMilliQuantity(q.ReqCPUMillis, resource.DecimalSI),
				corev1.ResourceRequestsMemory:          *resource.NewQuantity(q.ReqMemMi*1024*1024, resource.BinarySI),
				corev1.ResourceLimitsCPU:               *resource.NewMilliQuantity(q.LimCPUMillis, resource.DecimalSI),
				corev1.ResourceLimitsMemory:            *resource.NewQuantity(q.LimMemMi*1024*1024, resource.BinarySI),
				corev1.ResourcePersistentVolumeClaims:  *resource.NewQuantity(q.PVCs, resource.DecimalSI),
				corev1.ResourceRequestsStorage:         *resource.NewQuantity(q.StoragePVCGi*1024*1024*1024, resource.BinarySI),
			},
		},
	}

	client := b.client.CoreV1().ResourceQuotas(ns)
	existing, err := client.Get(ctx, labnaming.BaselineQuotaName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err := client.Create(ctx, desired, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return fmt.Errorf("getting resource quota: %w", err)
	}

	existing.Spec.Hard = desired.Spec.Hard
	_, err = client.Update(ctx, existing, metav1.UpdateOptions{})
	return err
}

func (b *Baseline) ensureLimitRange(ctx context.Context, ns string, q Quota) error {
	// LimitRange floors/ceilings derived as a fraction of the ResourceQuota
	// ceiling so they stay internally consistent without a second table
	// (SPEC_FULL §5): default request is a conservative floor, default
	// limit caps a single container at the namespace's overall ceiling.
	defaultReqCPU := q.ReqCPUMillis / 10
	if defaultReqCPU < 50 {
		defaultReqCPU = 50
	}
	defaultReqMem := q.ReqMemMi / 10
	if defaultReqMem < 64 {
		defaultReqMem = 64
	}

	desired := &corev1.LimitRange{
		ObjectMeta: metav1.ObjectMeta{
			Name:      labnaming.BaselineLimitRangeName,
			Namespace: ns,
		},
		Spec: corev1.LimitRangeSpec{
			Limits: []corev1.LimitRangeItem{
				{
					Type: corev1.LimitTypeContainer,
					Default: corev1.ResourceList{
						corev1.ResourceCPU:    *resource.NewMilliQuantity(q.LimCPUMillis, resource.DecimalSI),
						corev1.ResourceMemory: *resource.NewQuantity(q.LimMemMi*1024*1024, resource.BinarySI),
					},
					DefaultRequest: corev1.ResourceList{
						corev1.ResourceCPU:    *resource.NewMilliQuantity(defaultReqCPU, resource.DecimalSI),
						corev1.ResourceMemory: *resource.NewQuantity(defaultReqMem*1024*1024, resource.BinarySI),
					},
				},
			},
		},
	}

	client := b.client.CoreV1().LimitRanges(ns)
	existing, err := client.Get(ctx, labnaming.BaselineLimitRangeName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err := client.Create(ctx, desired, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return fmt.Errorf("getting limit range: %w", err)
	}

	existing.Spec = desired.Spec
	_, err = client.Update(ctx, existing, metav1.UpdateOptions{})
	return err
}
