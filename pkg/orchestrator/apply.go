package orchestrator

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/labondemand/control-plane/internal/labonderr"
	"github.com/labondemand/control-plane/pkg/stackbuilder"
)

// applyObject creates the planned object if absent; on "already exists" it
// fetches the live object and patches labels to match expected, but never
// rewrites Secret data (spec §4.7).
func applyObject(ctx context.Context, client kubernetes.Interface, namespace string, obj stackbuilder.PlannedObject) error {
	switch o := obj.Object.(type) {
	case *corev1.Secret:
		return applySecret(ctx, client, namespace, o)
	case *corev1.PersistentVolumeClaim:
		return applyPVC(ctx, client, namespace, o)
	case *corev1.Service:
		return applyService(ctx, client, namespace, o)
	case *appsv1.Deployment:
		return applyDeployment(ctx, client, namespace, o)
	case *networkingv1.Ingress:
		return applyIngress(ctx, client, namespace, o)
	default:
		return fmt.Errorf("applyObject: unsupported object type %T", obj.Object)
	}
}

func applySecret(ctx context.Context, client kubernetes.Interface, namespace string, s *corev1.Secret) error {
	api := client.CoreV1().Secrets(namespace)
	_, err := api.Create(ctx, s, metav1.CreateOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return &labonderr.ClusterUnavailable{Op: "create secret " + s.Name, Err: err}
	}
	existing, getErr := api.Get(ctx, s.Name, metav1.GetOptions{})
	if getErr != nil {
		return &labonderr.ClusterUnavailable{Op: "get existing secret " + s.Name, Err: getErr}
	}
	// Data is never rewritten on conflict: only labels are reconciled.
	existing.Labels = mergeLabels(existing.Labels, s.Labels)
	_, err = api.Update(ctx, existing, metav1.UpdateOptions{})
	if err != nil {
		return &labonderr.ClusterUnavailable{Op: "patch labels on secret " + s.Name, Err: err}
	}
	return nil
}

func applyPVC(ctx context.Context, client kubernetes.Interface, namespace string, p *corev1.PersistentVolumeClaim) error {
	api := client.CoreV1().PersistentVolumeClaims(namespace)
	_, err := api.Create(ctx, p, metav1.CreateOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return &labonderr.ClusterUnavailable{Op: "create pvc " + p.Name, Err: err}
	}
	existing, getErr := api.Get(ctx, p.Name, metav1.GetOptions{})
	if getErr != nil {
		return &labonderr.ClusterUnavailable{Op: "get existing pvc " + p.Name, Err: getErr}
	}
	existing.Labels = mergeLabels(existing.Labels, p.Labels)
	_, err = api.Update(ctx, existing, metav1.UpdateOptions{})
	if err != nil {
		return &labonderr.ClusterUnavailable{Op: "patch labels on pvc " + p.Name, Err: err}
	}
	return nil
}

func applyService(ctx context.Context, client kubernetes.Interface, namespace string, svc *corev1.Service) error {
	api := client.CoreV1().Services(namespace)
	_, err := api.Create(ctx, svc, metav1.CreateOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return &labonderr.ClusterUnavailable{Op: "create service " + svc.Name, Err: err}
	}
	existing, getErr := api.Get(ctx, svc.Name, metav1.GetOptions{})
	if getErr != nil {
		return &labonderr.ClusterUnavailable{Op: "get existing service " + svc.Name, Err: getErr}
	}
	existing.Labels = mergeLabels(existing.Labels, svc.Labels)
	existing.Spec.Selector = svc.Spec.Selector
	existing.Spec.Ports = svc.Spec.Ports
	_, err = api.Update(ctx, existing, metav1.UpdateOptions{})
	if err != nil {
		return &labonderr.ClusterUnavailable{Op: "patch service " + svc.Name, Err: err}
	}
	return nil
}

func applyDeployment(ctx context.Context, client kubernetes.Interface, namespace string, d *appsv1.Deployment) error {
	api := client.AppsV1().Deployments(namespace)
	_, err := api.Create(ctx, d, metav1.CreateOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return &labonderr.ClusterUnavailable{Op: "create deployment " + d.Name, Err: err}
	}
	existing, getErr := api.Get(ctx, d.Name, metav1.GetOptions{})
	if getErr != nil {
		return &labonderr.ClusterUnavailable{Op: "get existing deployment " + d.Name, Err: getErr}
	}
	existing.Labels = mergeLabels(existing.Labels, d.Labels)
	existing.Spec.Template = d.Spec.Template
	existing.Spec.Replicas = d.Spec.Replicas
	_, err = api.Update(ctx, existing, metav1.UpdateOptions{})
	if err != nil {
		return &labonderr.ClusterUnavailable{Op: "patch deployment " + d.Name, Err: err}
	}
	return nil
}

func applyIngress(ctx context.Context, client kubernetes.Interface, namespace string, ing *networkingv1.Ingress) error {
	api := client.NetworkingV1().Ingresses(namespace)
	_, err := api.Create(ctx, ing, metav1.CreateOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return &labonderr.ClusterUnavailable{Op: "create ingress " + ing.Name, Err: err}
	}
	existing, getErr := api.Get(ctx, ing.Name, metav1.GetOptions{})
	if getErr != nil {
		return &labonderr.ClusterUnavailable{Op: "get existing ingress " + ing.Name, Err: getErr}
	}
	existing.Labels = mergeLabels(existing.Labels, ing.Labels)
	existing.Spec = ing.Spec
	_, err = api.Update(ctx, existing, metav1.UpdateOptions{})
	if err != nil {
		return &labonderr.ClusterUnavailable{Op: "patch ingress " + ing.Name, Err: err}
	}
	return nil
}

func mergeLabels(existing, want map[string]string) map[string]string {
	if existing == nil {
		existing = map[string]string{}
	}
	for k, v := range want {
		existing[k] = v
	}
	return existing
}
