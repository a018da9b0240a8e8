package stackbuilder

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/labondemand/control-plane/pkg/clamp"
	"github.com/labondemand/control-plane/pkg/labnaming"
)

// generateSecretValue returns a URL-safe, cryptographically strong random
// token suitable for a database/admin password. It is never logged; callers
// must route it only into Secret data.
func generateSecretValue(nBytes int) (string, error) {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating random secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func objectMeta(name, namespace string, labels map[string]string) metav1.ObjectMeta {
	return metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels}
}

// secretFactory builds a Secret carrying the given keys, each populated
// with a freshly generated random value. The caller is responsible for
// reusing an existing Secret's data verbatim on retry (spec §4.5 / §8).
func secretFactory(name, namespace string, labels map[string]string, keys []string) (*corev1.Secret, error) {
	data := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v, err := generateSecretValue(24)
		if err != nil {
			return nil, err
		}
		data[k] = []byte(v)
	}
	return &corev1.Secret{
		ObjectMeta: objectMeta(name, namespace, labels),
		Type:       corev1.SecretTypeOpaque,
		Data:       data,
	}, nil
}

func pvcFactory(name, namespace string, labels map[string]string, storageGi int64) *corev1.PersistentVolumeClaim {
	return &corev1.PersistentVolumeClaim{
		ObjectMeta: objectMeta(name, namespace, labels),
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{
					corev1.ResourceStorage: *resource.NewQuantity(storageGi*1024*1024*1024, resource.BinarySI),
				},
			},
		},
	}
}

func serviceFactory(name, namespace string, labels, selector map[string]string, port int32, svcType corev1.ServiceType) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: objectMeta(name, namespace, labels),
		Spec: corev1.ServiceSpec{
			Type:     svcType,
			Selector: selector,
			Ports: []corev1.ServicePort{
				{Name: "http", Port: port, TargetPort: intstr.FromInt32(port)},
			},
		},
	}
}

// securityContext is the fixed hardened profile applied to every container
// LabOnDemand creates (spec §4.5): non-root, no privilege escalation,
// capabilities dropped except what an unprivileged web server needs.
func securityContext(needsBindService bool) *corev1.SecurityContext {
	nonRoot := true
	noEscalation := false
	caps := &corev1.Capabilities{Drop: []corev1.Capability{"ALL"}}
	if needsBindService {
		caps.Add = []corev1.Capability{"NET_BIND_SERVICE"}
	}
	return &corev1.SecurityContext{
		RunAsNonRoot:             &nonRoot,
		AllowPrivilegeEscalation: &noEscalation,
		Capabilities:             caps,
		SeccompProfile:           &corev1.SeccompProfile{Type: corev1.SeccompProfileTypeRuntimeDefault},
	}
}

type envFrom struct {
	SecretName string
	Keys       []string
}

func deploymentFactory(name, namespace string, labels, selector map[string]string, image string, port int32, replicas int32, resources corev1.ResourceRequirements, env []corev1.EnvVar, volumes []corev1.Volume, mounts []corev1.VolumeMount, needsBindService bool) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: objectMeta(name, namespace, labels),
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: selector},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: selector},
				Spec: corev1.PodSpec{
					Volumes: volumes,
					Containers: []corev1.Container{
						{
							Name:            "main",
							Image:           image,
							Ports:           []corev1.ContainerPort{{ContainerPort: port}},
							Env:             env,
							Resources:       resources,
							VolumeMounts:    mounts,
							SecurityContext: securityContext(needsBindService),
						},
					},
				},
			},
		},
	}
}

func ingressFactory(name, namespace string, labels map[string]string, host, serviceName string, port int32, policy IngressPolicy) *networkingv1.Ingress {
	pathType := networkingv1.PathTypePrefix
	ing := &networkingv1.Ingress{
		ObjectMeta: objectMeta(name, namespace, labels),
		Spec: networkingv1.IngressSpec{
			IngressClassName: &policy.ClassName,
			Rules: []networkingv1.IngressRule{
				{
					Host: host,
					IngressRuleValue: networkingv1.IngressRuleValue{
						HTTP: &networkingv1.HTTPIngressRuleValue{
							Paths: []networkingv1.HTTPIngressPath{
								{
									Path:     "/",
									PathType: &pathType,
									Backend: networkingv1.IngressBackend{
										Service: &networkingv1.IngressServiceBackend{
											Name: serviceName,
											Port: networkingv1.ServiceBackendPort{Number: port},
										},
									},
								},
							},
						},
					},
				},
			},
		},
	}
	if policy.TLSSecret != "" {
		ing.Spec.TLS = []networkingv1.IngressTLS{{Hosts: []string{host}, SecretName: policy.TLSSecret}}
	}
	return ing
}

func resourceRequirements(r clamp.Request) corev1.ResourceRequirements {
	return corev1.ResourceRequirements{
		Requests: corev1.ResourceList{
			corev1.ResourceCPU:    *resource.NewMilliQuantity(int64(r.CPURequestMillis), resource.DecimalSI),
			corev1.ResourceMemory: *resource.NewQuantity(int64(r.MemRequestMi)*1024*1024, resource.BinarySI),
		},
		Limits: corev1.ResourceList{
			corev1.ResourceCPU:    *resource.NewMilliQuantity(int64(r.CPULimitMillis), resource.DecimalSI),
			corev1.ResourceMemory: *resource.NewQuantity(int64(r.MemLimitMi)*1024*1024, resource.BinarySI),
		},
	}
}

func labelsFor(spec Spec, component string) map[string]string {
	return labnaming.ObjectLabels(spec.UserID, spec.UserRole, spec.LabName, spec.Stack, component)
}

func selectorFor(spec Spec, component string) map[string]string {
	sel := map[string]string{
		labnaming.LabelManagedBy: labnaming.ManagedByValue,
		labnaming.LabelApp:       spec.LabName,
	}
	if component != "" {
		sel[labnaming.LabelComponent] = component
	}
	return sel
}

func componentName(labName, component string) string {
	if component == "" {
		return labName
	}
	return fmt.Sprintf("%s-%s", labName, component)
}
