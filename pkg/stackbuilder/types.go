// Package stackbuilder produces the deterministic, ordered Kubernetes object
// graph for each lab stack kind: custom, vscode, jupyter, mysql, lamp,
// wordpress. Every stack is expressed as the same typed list of (kind,
// component, object) tuples and driven through one ordered applier in
// pkg/orchestrator — there are no per-stack code paths downstream of Build.
package stackbuilder

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/labondemand/control-plane/pkg/clamp"
)

// ObjectKind discriminates the planned objects returned by Build, in the
// fixed apply order the orchestrator must respect.
type ObjectKind int

const (
	KindSecret ObjectKind = iota
	KindPVC
	KindService
	KindDeployment
	KindIngress
)

func (k ObjectKind) String() string {
	switch k {
	case KindSecret:
		return "Secret"
	case KindPVC:
		return "PersistentVolumeClaim"
	case KindService:
		return "Service"
	case KindDeployment:
		return "Deployment"
	case KindIngress:
		return "Ingress"
	default:
		return "Unknown"
	}
}

// KubeObject is satisfied by every typed object this package produces.
type KubeObject interface {
	metav1.Object
	runtime.Object
}

// PlannedObject is one tuple in the ordered object graph for a lab.
type PlannedObject struct {
	Kind      ObjectKind
	Component string // "", "db", "web", "pma" — empty for single-component stacks
	Object    KubeObject
}

// Spec describes a single create-lab request after clamping and
// floor-raising, template resolution, and namespace assignment.
type Spec struct {
	Namespace    string
	LabName      string
	UserID       string
	UserRole     string
	Stack        string
	Image        string
	ContainerPort int32
	Resources    clamp.Request
	Template     TemplateParams
	Ingress      IngressPolicy
}

// TemplateParams are the advisory, non-admission-affecting inputs resolved
// from the catalog (pkg/catalog).
type TemplateParams struct {
	ExposureMode string // "ClusterIP", "NodePort"
	EnvOverrides map[string]string
}

// IngressPolicy carries the resolved global ingress configuration.
type IngressPolicy struct {
	Enabled      bool
	BaseDomain   string
	ClassName    string
	TLSSecret    string
	AutoTypes    map[string]bool // stack kinds eligible for auto-ingress
	ExcludeTypes map[string]bool
}

// emitsIngress reports whether this stack/policy combination should produce
// an Ingress object: global flag on AND stack not excluded AND stack in the
// allow-list. Whether the stack serves HTTP is not checked; every stack in
// the allow-list is treated as HTTP.
func (p IngressPolicy) emitsIngress(stack string) bool {
	if !p.Enabled {
		return false
	}
	if p.ExcludeTypes[stack] {
		return false
	}
	return p.AutoTypes[stack]
}
