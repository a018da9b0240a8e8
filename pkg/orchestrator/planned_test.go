package orchestrator

import (
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/labondemand/control-plane/pkg/stackbuilder"
)

func deploymentObj(replicas int32, cpu, mem string) stackbuilder.PlannedObject {
	r := int32(replicas)
	return stackbuilder.PlannedObject{
		Kind: stackbuilder.KindDeployment,
		Object: &appsv1.Deployment{
			Spec: appsv1.DeploymentSpec{
				Replicas: &r,
				Template: corev1.PodTemplateSpec{
					Spec: corev1.PodSpec{
						Containers: []corev1.Container{{
							Resources: corev1.ResourceRequirements{
								Requests: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse(cpu),
									corev1.ResourceMemory: resource.MustParse(mem),
								},
								Limits: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse(cpu),
									corev1.ResourceMemory: resource.MustParse(mem),
								},
							},
						}},
					},
				},
			},
		},
	}
}

func pvcObj(storageGi int64) stackbuilder.PlannedObject {
	return stackbuilder.PlannedObject{
		Kind: stackbuilder.KindPVC,
		Object: &corev1.PersistentVolumeClaim{
			Spec: corev1.PersistentVolumeClaimSpec{
				Resources: corev1.VolumeResourceRequirements{
					Requests: corev1.ResourceList{
						corev1.ResourceStorage: *resource.NewQuantity(storageGi*1024*1024*1024, resource.BinarySI),
					},
				},
			},
		},
	}
}

func TestPlannedUsageFromObjects_SinglePodStack(t *testing.T) {
	objs := []stackbuilder.PlannedObject{
		pvcObj(2),
		deploymentObj(1, "500m", "512Mi"),
	}

	p := plannedUsageFromObjects(objs)
	if p.Pods != 1 {
		t.Errorf("Pods = %d, want 1", p.Pods)
	}
	if p.CPUMillis != 500 || p.CPULimitMillis != 500 {
		t.Errorf("CPUMillis = %d, CPULimitMillis = %d, want 500/500", p.CPUMillis, p.CPULimitMillis)
	}
	if p.MemMi != 512 || p.MemLimitMi != 512 {
		t.Errorf("MemMi = %d, MemLimitMi = %d, want 512/512", p.MemMi, p.MemLimitMi)
	}
	if p.PVCs != 1 {
		t.Errorf("PVCs = %d, want 1", p.PVCs)
	}
	if p.StorageGi != 2 {
		t.Errorf("StorageGi = %d, want 2", p.StorageGi)
	}
}

func TestPlannedUsageFromObjects_MultiComponentStackSumsAcrossDeployments(t *testing.T) {
	// Mirrors the mysql stack's shape: db + phpMyAdmin, two Deployments
	// each contributing their own pod and resource footprint.
	objs := []stackbuilder.PlannedObject{
		pvcObj(2),
		deploymentObj(1, "500m", "512Mi"), // db
		deploymentObj(1, "100m", "128Mi"), // pma
	}

	p := plannedUsageFromObjects(objs)
	if p.Pods != 2 {
		t.Errorf("Pods = %d, want 2 (one per Deployment)", p.Pods)
	}
	if p.CPUMillis != 600 {
		t.Errorf("CPUMillis = %d, want 600", p.CPUMillis)
	}
	if p.MemMi != 640 {
		t.Errorf("MemMi = %d, want 640", p.MemMi)
	}
}

func TestPlannedUsageFromObjects_MultipleReplicasMultiplyFootprint(t *testing.T) {
	objs := []stackbuilder.PlannedObject{
		deploymentObj(3, "200m", "256Mi"),
	}

	p := plannedUsageFromObjects(objs)
	if p.Pods != 3 {
		t.Errorf("Pods = %d, want 3", p.Pods)
	}
	if p.CPUMillis != 600 {
		t.Errorf("CPUMillis = %d, want 600", p.CPUMillis)
	}
	if p.MemMi != 768 {
		t.Errorf("MemMi = %d, want 768", p.MemMi)
	}
}
