package stackbuilder

import (
	"fmt"
	"sort"

	corev1 "k8s.io/api/core/v1"

	"github.com/labondemand/control-plane/pkg/labnaming"
)

// simpleStacks expose a single container directly (no database sidecar).
var simpleStacks = map[string]bool{"custom": true, "vscode": true, "jupyter": true, "netbeans": true}

// Build produces the ordered object graph for spec.Stack. The order within
// the returned slice is the apply order the orchestrator must respect:
// Secret, then PVC, then Service(s), then Deployment(s), then Ingress.
func Build(spec Spec) ([]PlannedObject, error) {
	switch {
	case simpleStacks[spec.Stack]:
		return buildSimple(spec)
	case spec.Stack == "mysql":
		return buildMySQL(spec)
	case spec.Stack == "lamp":
		return buildLAMP(spec)
	case spec.Stack == "wordpress":
		return buildWordpress(spec)
	default:
		return nil, fmt.Errorf("unknown stack kind %q", spec.Stack)
	}
}

func serviceType(spec Spec, wantsIngress bool) corev1.ServiceType {
	if wantsIngress {
		// Ingress takes over external exposure; downgrade to ClusterIP (spec §4.5).
		return corev1.ServiceTypeClusterIP
	}
	if spec.Template.ExposureMode == "NodePort" {
		return corev1.ServiceTypeNodePort
	}
	return corev1.ServiceTypeClusterIP
}

// buildSimple handles custom/vscode/jupyter/netbeans: [Secret] -> [PVC] ->
// Service -> Deployment -> [Ingress]. No database, so no Secret is built;
// a 2Gi workspace PVC is included whenever the clamped memory limit is
// non-zero.
func buildSimple(spec Spec) ([]PlannedObject, error) {
	var objs []PlannedObject
	labels := labelsFor(spec, "")
	selector := selectorFor(spec, "")
	name := componentName(spec.LabName, "")

	var volumes []corev1.Volume
	var mounts []corev1.VolumeMount
	if spec.Resources.MemLimitMi > 0 { // workspace is persistent whenever the stack has a real resource footprint
		pvc := pvcFactory(name+"-data", spec.Namespace, labels, 2)
		objs = append(objs, PlannedObject{Kind: KindPVC, Object: pvc})
		volumes = append(volumes, corev1.Volume{
			Name: "workspace",
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: pvc.Name},
			},
		})
		mounts = append(mounts, corev1.VolumeMount{Name: "workspace", MountPath: "/workspace"})
	}

	wantsIngress := spec.Ingress.emitsIngress(spec.Stack)
	svc := serviceFactory(name+"-service", spec.Namespace, labels, selector, spec.ContainerPort, serviceType(spec, wantsIngress))
	objs = append(objs, PlannedObject{Kind: KindService, Object: svc})

	dep := deploymentFactory(name, spec.Namespace, labels, selector, spec.Image, spec.ContainerPort,
		int32(spec.Resources.Replicas), resourceRequirements(spec.Resources), envVars(spec.Template.EnvOverrides), volumes, mounts, false)
	objs = append(objs, PlannedObject{Kind: KindDeployment, Object: dep})

	if wantsIngress {
		host := labnaming.IngressHost(spec.LabName, spec.UserID, spec.Ingress.BaseDomain)
		objs = append(objs, PlannedObject{Kind: KindIngress, Object: ingressFactory(name+"-ingress", spec.Namespace, labels, host, svc.Name, spec.ContainerPort, spec.Ingress)})
	}
	return objs, nil
}

// buildMySQL: Secret -> PVC -> Service(db) -> Deployment(db) -> Service(pma) -> Deployment(pma).
func buildMySQL(spec Spec) ([]PlannedObject, error) {
	var objs []PlannedObject
	name := spec.LabName

	secret, err := secretFactory(name+"-secret", spec.Namespace, labelsFor(spec, "db"), []string{"root-password", "db-password"})
	if err != nil {
		return nil, err
	}
	objs = append(objs, PlannedObject{Kind: KindSecret, Object: secret})

	pvc := pvcFactory(name+"-db-data", spec.Namespace, labelsFor(spec, "db"), 2)
	objs = append(objs, PlannedObject{Kind: KindPVC, Object: pvc})

	dbSelector := selectorFor(spec, "db")
	dbSvc := serviceFactory(name+"-db-service", spec.Namespace, labelsFor(spec, "db"), dbSelector, 3306, corev1.ServiceTypeClusterIP)
	objs = append(objs, PlannedObject{Kind: KindService, Component: "db", Object: dbSvc})

	dbDep := deploymentFactory(name+"-db", spec.Namespace, labelsFor(spec, "db"), dbSelector, spec.Image, 3306, int32(spec.Resources.Replicas),
		resourceRequirements(spec.Resources), secretEnv(secret.Name), []corev1.Volume{{
			Name:         "data",
			VolumeSource: corev1.VolumeSource{PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: pvc.Name}},
		}}, []corev1.VolumeMount{{Name: "data", MountPath: "/var/lib/mysql"}}, false)
	objs = append(objs, PlannedObject{Kind: KindDeployment, Component: "db", Object: dbDep})

	wantsIngress := spec.Ingress.emitsIngress(spec.Stack)
	pmaSelector := selectorFor(spec, "pma")
	pmaSvcType := corev1.ServiceTypeNodePort
	if wantsIngress {
		pmaSvcType = corev1.ServiceTypeClusterIP
	}
	pmaSvc := serviceFactory(name+"-pma-service", spec.Namespace, labelsFor(spec, "pma"), pmaSelector, 80, pmaSvcType)
	objs = append(objs, PlannedObject{Kind: KindService, Component: "pma", Object: pmaSvc})

	pmaDep := deploymentFactory(name+"-pma", spec.Namespace, labelsFor(spec, "pma"), pmaSelector, "phpmyadmin:latest", 80, 1,
		resourceRequirements(spec.Resources), []corev1.EnvVar{{Name: "PMA_HOST", Value: name + "-db-service"}}, nil, nil, true)
	objs = append(objs, PlannedObject{Kind: KindDeployment, Component: "pma", Object: pmaDep})

	if wantsIngress {
		host := labnaming.IngressHost(spec.LabName, spec.UserID, spec.Ingress.BaseDomain)
		objs = append(objs, PlannedObject{Kind: KindIngress, Component: "pma", Object: ingressFactory(name+"-ingress", spec.Namespace, labelsFor(spec, "pma"), host, pmaSvc.Name, 80, spec.Ingress)})
	}
	return objs, nil
}

// buildLAMP: Secret -> PVC(db) -> [PVC(web)] -> Service(db) -> Deployment(db)
// -> Service(pma) -> Deployment(pma) -> Service(web) -> Deployment(web).
func buildLAMP(spec Spec) ([]PlannedObject, error) {
	var objs []PlannedObject
	name := spec.LabName

	secret, err := secretFactory(name+"-secret", spec.Namespace, labelsFor(spec, "db"), []string{"root-password", "db-password"})
	if err != nil {
		return nil, err
	}
	objs = append(objs, PlannedObject{Kind: KindSecret, Object: secret})

	dbPVC := pvcFactory(name+"-db-data", spec.Namespace, labelsFor(spec, "db"), 2)
	objs = append(objs, PlannedObject{Kind: KindPVC, Component: "db", Object: dbPVC})

	webPVC := pvcFactory(name+"-web-data", spec.Namespace, labelsFor(spec, "web"), 1)
	objs = append(objs, PlannedObject{Kind: KindPVC, Component: "web", Object: webPVC})

	dbSelector := selectorFor(spec, "db")
	dbSvc := serviceFactory(name+"-db-service", spec.Namespace, labelsFor(spec, "db"), dbSelector, 3306, corev1.ServiceTypeClusterIP)
	objs = append(objs, PlannedObject{Kind: KindService, Component: "db", Object: dbSvc})

	dbDep := deploymentFactory(name+"-db", spec.Namespace, labelsFor(spec, "db"), dbSelector, "mysql:8", 3306, 1,
		resourceRequirements(spec.Resources), secretEnv(secret.Name),
		[]corev1.Volume{{Name: "data", VolumeSource: corev1.VolumeSource{PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: dbPVC.Name}}}},
		[]corev1.VolumeMount{{Name: "data", MountPath: "/var/lib/mysql"}}, false)
	objs = append(objs, PlannedObject{Kind: KindDeployment, Component: "db", Object: dbDep})

	pmaSelector := selectorFor(spec, "pma")
	pmaSvc := serviceFactory(name+"-pma-service", spec.Namespace, labelsFor(spec, "pma"), pmaSelector, 80, corev1.ServiceTypeClusterIP)
	objs = append(objs, PlannedObject{Kind: KindService, Component: "pma", Object: pmaSvc})

	pmaDep := deploymentFactory(name+"-pma", spec.Namespace, labelsFor(spec, "pma"), pmaSelector, "phpmyadmin:latest", 80, 1,
		resourceRequirements(spec.Resources), []corev1.EnvVar{{Name: "PMA_HOST", Value: name + "-db-service"}}, nil, nil, true)
	objs = append(objs, PlannedObject{Kind: KindDeployment, Component: "pma", Object: pmaDep})

	wantsIngress := spec.Ingress.emitsIngress(spec.Stack)
	webSelector := selectorFor(spec, "web")
	webSvc := serviceFactory(name+"-web-service", spec.Namespace, labelsFor(spec, "web"), webSelector, spec.ContainerPort, serviceType(spec, wantsIngress))
	objs = append(objs, PlannedObject{Kind: KindService, Component: "web", Object: webSvc})

	webDep := deploymentFactory(name+"-web", spec.Namespace, labelsFor(spec, "web"), webSelector, spec.Image, spec.ContainerPort, int32(spec.Resources.Replicas),
		resourceRequirements(spec.Resources), append(secretEnv(secret.Name), corev1.EnvVar{Name: "DB_HOST", Value: name + "-db-service"}),
		[]corev1.Volume{{Name: "web", VolumeSource: corev1.VolumeSource{PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: webPVC.Name}}}},
		[]corev1.VolumeMount{{Name: "web", MountPath: "/var/www/html"}}, true)
	objs = append(objs, PlannedObject{Kind: KindDeployment, Component: "web", Object: webDep})

	if wantsIngress {
		host := labnaming.IngressHost(spec.LabName, spec.UserID, spec.Ingress.BaseDomain)
		objs = append(objs, PlannedObject{Kind: KindIngress, Component: "web", Object: ingressFactory(name+"-ingress", spec.Namespace, labelsFor(spec, "web"), host, webSvc.Name, spec.ContainerPort, spec.Ingress)})
	}
	return objs, nil
}

// buildWordpress: Secret -> PVC(db) -> Service(db) -> Deployment(db) ->
// Service(web) -> Deployment(web).
func buildWordpress(spec Spec) ([]PlannedObject, error) {
	var objs []PlannedObject
	name := spec.LabName

	secret, err := secretFactory(name+"-secret", spec.Namespace, labelsFor(spec, "db"), []string{"root-password", "db-password"})
	if err != nil {
		return nil, err
	}
	objs = append(objs, PlannedObject{Kind: KindSecret, Object: secret})

	dbPVC := pvcFactory(name+"-db-data", spec.Namespace, labelsFor(spec, "db"), 2)
	objs = append(objs, PlannedObject{Kind: KindPVC, Component: "db", Object: dbPVC})

	dbSelector := selectorFor(spec, "db")
	dbSvc := serviceFactory(name+"-db-service", spec.Namespace, labelsFor(spec, "db"), dbSelector, 3306, corev1.ServiceTypeClusterIP)
	objs = append(objs, PlannedObject{Kind: KindService, Component: "db", Object: dbSvc})

	dbDep := deploymentFactory(name+"-db", spec.Namespace, labelsFor(spec, "db"), dbSelector, "mysql:8", 3306, 1,
		resourceRequirements(spec.Resources), secretEnv(secret.Name),
		[]corev1.Volume{{Name: "data", VolumeSource: corev1.VolumeSource{PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: dbPVC.Name}}}},
		[]corev1.VolumeMount{{Name: "data", MountPath: "/var/lib/mysql"}}, false)
	objs = append(objs, PlannedObject{Kind: KindDeployment, Component: "db", Object: dbDep})

	wantsIngress := spec.Ingress.emitsIngress(spec.Stack)
	webSelector := selectorFor(spec, "web")
	webSvc := serviceFactory(name+"-web-service", spec.Namespace, labelsFor(spec, "web"), webSelector, 80, serviceType(spec, wantsIngress))
	objs = append(objs, PlannedObject{Kind: KindService, Component: "web", Object: webSvc})

	webDep := deploymentFactory(name+"-web", spec.Namespace, labelsFor(spec, "web"), webSelector, "wordpress:latest", 80, int32(spec.Resources.Replicas),
		resourceRequirements(spec.Resources), append(secretEnv(secret.Name), corev1.EnvVar{Name: "WORDPRESS_DB_HOST", Value: name + "-db-service"}),
		nil, nil, true)
	objs = append(objs, PlannedObject{Kind: KindDeployment, Component: "web", Object: webDep})

	if wantsIngress {
		host := labnaming.IngressHost(spec.LabName, spec.UserID, spec.Ingress.BaseDomain)
		objs = append(objs, PlannedObject{Kind: KindIngress, Component: "web", Object: ingressFactory(name+"-ingress", spec.Namespace, labelsFor(spec, "web"), host, webSvc.Name, 80, spec.Ingress)})
	}
	return objs, nil
}

func secretEnv(secretName string) []corev1.EnvVar {
	return []corev1.EnvVar{
		{Name: "MYSQL_ROOT_PASSWORD", ValueFrom: &corev1.EnvVarSource{SecretKeyRef: &corev1.SecretKeySelector{
			LocalObjectReference: corev1.LocalObjectReference{Name: secretName}, Key: "root-password"}}},
		{Name: "MYSQL_PASSWORD", ValueFrom: &corev1.EnvVarSource{SecretKeyRef: &corev1.SecretKeySelector{
			LocalObjectReference: corev1.LocalObjectReference{Name: secretName}, Key: "db-password"}}},
	}
}

func envVars(overrides map[string]string) []corev1.EnvVar {
	if len(overrides) == 0 {
		return nil
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]corev1.EnvVar, 0, len(overrides))
	for _, k := range keys {
		env = append(env, corev1.EnvVar{Name: k, Value: overrides[k]})
	}
	return env
}
