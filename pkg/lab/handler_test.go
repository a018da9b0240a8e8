package lab

import (
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
)

func deploymentWithRequests(cpu, mem string) *appsv1.Deployment {
	return &appsv1.Deployment{
		Spec: appsv1.DeploymentSpec{
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Resources: corev1.ResourceRequirements{
								Requests: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse(cpu),
									corev1.ResourceMemory: resource.MustParse(mem),
								},
							},
						},
					},
				},
			},
		},
	}
}

func TestRequestedResourcesOf_SingleContainer(t *testing.T) {
	d := deploymentWithRequests("250m", "512Mi")
	cpuM, memM := requestedResourcesOf(d)
	if cpuM != 250 {
		t.Errorf("cpuMillis = %d, want 250", cpuM)
	}
	if memM != 512 {
		t.Errorf("memMi = %d, want 512", memM)
	}
}

func TestRequestedResourcesOf_SumsAcrossContainers(t *testing.T) {
	d := deploymentWithRequests("100m", "128Mi")
	d.Spec.Template.Spec.Containers = append(d.Spec.Template.Spec.Containers, corev1.Container{
		Resources: corev1.ResourceRequirements{
			Requests: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("150m"),
				corev1.ResourceMemory: resource.MustParse("384Mi"),
			},
		},
	})

	cpuM, memM := requestedResourcesOf(d)
	if cpuM != 250 {
		t.Errorf("cpuMillis = %d, want 250", cpuM)
	}
	if memM != 512 {
		t.Errorf("memMi = %d, want 512", memM)
	}
}

func TestRequestedResourcesOf_NoRequestsIsZero(t *testing.T) {
	d := &appsv1.Deployment{}
	cpuM, memM := requestedResourcesOf(d)
	if cpuM != 0 || memM != 0 {
		t.Errorf("requestedResourcesOf(empty) = (%d, %d), want (0, 0)", cpuM, memM)
	}
}
