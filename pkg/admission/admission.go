// Package admission runs the logical-quota and cluster-preflight checks
// that gate every lab creation, strictly before any cluster mutation.
package admission

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/labondemand/control-plane/internal/labonderr"
	"github.com/labondemand/control-plane/pkg/labnaming"
	"github.com/labondemand/control-plane/pkg/quota"
)

// Observed is the user's current usage, counted from active deployment
// rows (not live pod metrics), per spec §4.6.
type Observed struct {
	Apps      int
	CPUMillis int
	MemMi     int
	Pods      int
}

// Planned is the incremental usage the pending create would add, derived
// from the full object graph a create would apply — not just the primary
// container — so multi-component stacks (mysql, lamp, wordpress) are
// counted accurately (spec §4.6).
type Planned struct {
	CPUMillis      int
	MemMi          int
	CPULimitMillis int
	MemLimitMi     int
	Pods           int
	PVCs           int
	StorageGi      int
}

// CheckLogicalQuota runs the four cascading logical checks in the fixed
// order the spec requires: apps, cpu, memory, pods. It is read-only.
func CheckLogicalQuota(observed Observed, planned Planned, limits quota.Limits) error {
	if observed.Apps+1 > limits.MaxApps {
		return &labonderr.QuotaExceeded{
			Dimension: "max_apps",
			Observed:  fmt.Sprintf("%d", observed.Apps),
			Limit:     fmt.Sprintf("%d", limits.MaxApps),
			Reason:    "creating this lab would exceed the user's app count limit",
		}
	}
	if observed.CPUMillis+planned.CPUMillis > limits.MaxCPUMillis {
		return &labonderr.QuotaExceeded{
			Dimension: "max_cpu_millis",
			Observed:  fmt.Sprintf("%d", observed.CPUMillis+planned.CPUMillis),
			Limit:     fmt.Sprintf("%d", limits.MaxCPUMillis),
			Reason:    "creating this lab would exceed the user's CPU limit",
		}
	}
	if observed.MemMi+planned.MemMi > limits.MaxMemMi {
		return &labonderr.QuotaExceeded{
			Dimension: "max_mem_mi",
			Observed:  fmt.Sprintf("%d", observed.MemMi+planned.MemMi),
			Limit:     fmt.Sprintf("%d", limits.MaxMemMi),
			Reason:    "creating this lab would exceed the user's memory limit",
		}
	}
	if observed.Pods+planned.Pods > limits.MaxPods {
		return &labonderr.QuotaExceeded{
			Dimension: "max_pods",
			Observed:  fmt.Sprintf("%d", observed.Pods+planned.Pods),
			Limit:     fmt.Sprintf("%d", limits.MaxPods),
			Reason:    "creating this lab would exceed the user's pod count limit",
		}
	}
	return nil
}

// PlannedClusterUsage maps a Planned request to every ResourceQuota
// dimension the baseline namespace quota sets (spec §4.6 item 2).
func PlannedClusterUsage(p Planned) map[corev1.ResourceName]resource.Quantity {
	return map[corev1.ResourceName]resource.Quantity{
		corev1.ResourceRequestsCPU:            *resource.NewMilliQuantity(int64(p.CPUMillis), resource.DecimalSI),
		corev1.ResourceRequestsMemory:         *resource.NewQuantity(int64(p.MemMi)*1024*1024, resource.BinarySI),
		corev1.ResourceLimitsCPU:              *resource.NewMilliQuantity(int64(p.CPULimitMillis), resource.DecimalSI),
		corev1.ResourceLimitsMemory:           *resource.NewQuantity(int64(p.MemLimitMi)*1024*1024, resource.BinarySI),
		corev1.ResourcePods:                   *resource.NewQuantity(int64(p.Pods), resource.DecimalSI),
		corev1.ResourcePersistentVolumeClaims: *resource.NewQuantity(int64(p.PVCs), resource.DecimalSI),
		corev1.ResourceRequestsStorage:        *resource.NewQuantity(int64(p.StorageGi)*1024*1024*1024, resource.BinarySI),
	}
}

// CheckClusterPreflight compares used+planned against the namespace's
// baseline ResourceQuota.status.hard for every overlapping resource name.
// It is read-only; the cluster-side ResourceQuota remains the final
// authority against concurrent racing requests (spec §4.6).
func CheckClusterPreflight(ctx context.Context, client kubernetes.Interface, namespace string, planned Planned) error {
	rq, err := client.CoreV1().ResourceQuotas(namespace).Get(ctx, labnaming.BaselineQuotaName, metav1.GetOptions{})
	if err != nil {
		return &labonderr.ClusterUnavailable{Op: "get resource quota", Err: err}
	}

	plannedUsage := PlannedClusterUsage(planned)

	for name, hard := range rq.Status.Hard {
		delta, ok := plannedUsage[name]
		if !ok {
			continue
		}
		used := rq.Status.Used[name]
		total := used.DeepCopy()
		total.Add(delta)
		if total.Cmp(hard) > 0 {
			return &labonderr.QuotaExceeded{
				Dimension: string(name),
				Observed:  total.String(),
				Limit:     hard.String(),
				Reason:    "cluster resource quota preflight rejected this request",
			}
		}
	}
	return nil
}

// Admit runs the full pipeline: logical quota, then cluster preflight.
func Admit(ctx context.Context, client kubernetes.Interface, namespace string, observed Observed, planned Planned, limits quota.Limits) error {
	if err := CheckLogicalQuota(observed, planned, limits); err != nil {
		return err
	}
	return CheckClusterPreflight(ctx, client, namespace, planned)
}
