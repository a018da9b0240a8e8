package admission

import (
	"context"
	"errors"
	"testing"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/labondemand/control-plane/internal/labonderr"
	"github.com/labondemand/control-plane/pkg/labnaming"
	"github.com/labondemand/control-plane/pkg/quota"
)

func TestCheckLogicalQuota_AppsCeiling(t *testing.T) {
	limits := quota.Limits{MaxApps: 4, MaxCPUMillis: 10000, MaxMemMi: 10000, MaxPods: 20}
	err := CheckLogicalQuota(Observed{Apps: 4}, Planned{}, limits)

	var qe *labonderr.QuotaExceeded
	if !errors.As(err, &qe) {
		t.Fatalf("expected QuotaExceeded, got %v", err)
	}
	if qe.Dimension != "max_apps" {
		t.Errorf("dimension = %q, want max_apps", qe.Dimension)
	}
}

func TestCheckLogicalQuota_OrderStopsAtFirstViolation(t *testing.T) {
	// apps is already over the limit; cpu is also over. max_apps must win.
	limits := quota.Limits{MaxApps: 1, MaxCPUMillis: 100, MaxMemMi: 10000, MaxPods: 20}
	err := CheckLogicalQuota(Observed{Apps: 1, CPUMillis: 1000}, Planned{CPUMillis: 1000}, limits)

	var qe *labonderr.QuotaExceeded
	if !errors.As(err, &qe) {
		t.Fatalf("expected QuotaExceeded, got %v", err)
	}
	if qe.Dimension != "max_apps" {
		t.Errorf("dimension = %q, want max_apps (first violated)", qe.Dimension)
	}
}

func TestCheckLogicalQuota_WithinLimitsPasses(t *testing.T) {
	limits := quota.Limits{MaxApps: 4, MaxCPUMillis: 2500, MaxMemMi: 6144, MaxPods: 6}
	err := CheckLogicalQuota(Observed{Apps: 1, CPUMillis: 500, MemMi: 512, Pods: 1}, Planned{CPUMillis: 500, MemMi: 512, Pods: 1}, limits)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestCheckClusterPreflight_RejectsOverHard(t *testing.T) {
	ns := "labondemand-user-1"
	client := fake.NewSimpleClientset(&corev1.ResourceQuota{
		ObjectMeta: metav1.ObjectMeta{Name: labnaming.BaselineQuotaName, Namespace: ns},
		Status: corev1.ResourceQuotaStatus{
			Hard: corev1.ResourceList{
				corev1.ResourceRequestsCPU: *resource.NewMilliQuantity(2000, resource.DecimalSI),
			},
			Used: corev1.ResourceList{
				corev1.ResourceRequestsCPU: *resource.NewMilliQuantity(1800, resource.DecimalSI),
			},
		},
	})

	err := CheckClusterPreflight(context.Background(), client, ns, Planned{CPUMillis: 500})

	var qe *labonderr.QuotaExceeded
	if !errors.As(err, &qe) {
		t.Fatalf("expected QuotaExceeded, got %v", err)
	}
	if qe.Dimension != string(corev1.ResourceRequestsCPU) {
		t.Errorf("dimension = %q, want %q", qe.Dimension, corev1.ResourceRequestsCPU)
	}
}

func TestCheckClusterPreflight_WithinHardPasses(t *testing.T) {
	ns := "labondemand-user-1"
	client := fake.NewSimpleClientset(&corev1.ResourceQuota{
		ObjectMeta: metav1.ObjectMeta{Name: labnaming.BaselineQuotaName, Namespace: ns},
		Status: corev1.ResourceQuotaStatus{
			Hard: corev1.ResourceList{
				corev1.ResourceRequestsCPU: *resource.NewMilliQuantity(2000, resource.DecimalSI),
			},
			Used: corev1.ResourceList{
				corev1.ResourceRequestsCPU: *resource.NewMilliQuantity(1000, resource.DecimalSI),
			},
		},
	})

	if err := CheckClusterPreflight(context.Background(), client, ns, Planned{CPUMillis: 500}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestCheckClusterPreflight_MissingQuotaIsClusterUnavailable(t *testing.T) {
	client := fake.NewSimpleClientset()

	err := CheckClusterPreflight(context.Background(), client, "labondemand-user-9", Planned{CPUMillis: 100})

	var cu *labonderr.ClusterUnavailable
	if !errors.As(err, &cu) {
		t.Fatalf("expected ClusterUnavailable, got %v", err)
	}
}

func TestCheckClusterPreflight_RejectsOverPVCCountHard(t *testing.T) {
	ns := "labondemand-user-1"
	client := fake.NewSimpleClientset(&corev1.ResourceQuota{
		ObjectMeta: metav1.ObjectMeta{Name: labnaming.BaselineQuotaName, Namespace: ns},
		Status: corev1.ResourceQuotaStatus{
			Hard: corev1.ResourceList{
				corev1.ResourcePersistentVolumeClaims: *resource.NewQuantity(2, resource.DecimalSI),
			},
			Used: corev1.ResourceList{
				corev1.ResourcePersistentVolumeClaims: *resource.NewQuantity(2, resource.DecimalSI),
			},
		},
	})

	// A multi-component stack planning a third PVC must be rejected even
	// though cpu/memory headroom is untouched by this check.
	err := CheckClusterPreflight(context.Background(), client, ns, Planned{PVCs: 1})

	var qe *labonderr.QuotaExceeded
	if !errors.As(err, &qe) {
		t.Fatalf("expected QuotaExceeded, got %v", err)
	}
	if qe.Dimension != string(corev1.ResourcePersistentVolumeClaims) {
		t.Errorf("dimension = %q, want %q", qe.Dimension, corev1.ResourcePersistentVolumeClaims)
	}
}

func TestCheckLogicalQuota_MultiPodPlanCountsAllPods(t *testing.T) {
	// A 3-pod stack (e.g. lamp) pushed against a pod ceiling of 2 over
	// current usage of 0 must fail on pods, not silently pass as if only
	// one pod were planned.
	limits := quota.Limits{MaxApps: 4, MaxCPUMillis: 10000, MaxMemMi: 10000, MaxPods: 2}
	err := CheckLogicalQuota(Observed{}, Planned{Pods: 3}, limits)

	var qe *labonderr.QuotaExceeded
	if !errors.As(err, &qe) {
		t.Fatalf("expected QuotaExceeded, got %v", err)
	}
	if qe.Dimension != "max_pods" {
		t.Errorf("dimension = %q, want max_pods", qe.Dimension)
	}
}

func TestAdmit_LogicalFailureSkipsClusterCall(t *testing.T) {
	client := fake.NewSimpleClientset() // no ResourceQuota registered; a cluster call would fail
	limits := quota.Limits{MaxApps: 1}

	err := Admit(context.Background(), client, "labondemand-user-1", Observed{Apps: 1}, Planned{}, limits)

	var qe *labonderr.QuotaExceeded
	if !errors.As(err, &qe) {
		t.Fatalf("expected QuotaExceeded from logical stage, got %v", err)
	}
	if qe.Dimension != "max_apps" {
		t.Errorf("dimension = %q, want max_apps", qe.Dimension)
	}
}
