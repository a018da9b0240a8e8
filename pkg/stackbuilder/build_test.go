package stackbuilder

import (
	"testing"

	corev1 "k8s.io/api/core/v1"

	"github.com/labondemand/control-plane/pkg/clamp"
)

func baseSpec(stack string) Spec {
	return Spec{
		Namespace:     "labondemand-user-1",
		LabName:       "mylab",
		UserID:        "1",
		UserRole:      "student",
		Stack:         stack,
		Image:         "codercom/code-server:latest",
		ContainerPort: 8080,
		Resources:     clamp.Request{CPURequestMillis: 500, CPULimitMillis: 1000, MemRequestMi: 512, MemLimitMi: 1024, Replicas: 1},
	}
}

func TestBuild_SimpleStackOrder(t *testing.T) {
	objs, err := Build(baseSpec("vscode"))
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	var kinds []ObjectKind
	for _, o := range objs {
		kinds = append(kinds, o.Kind)
	}
	want := []ObjectKind{KindPVC, KindService, KindDeployment}
	if len(kinds) != len(want) {
		t.Fatalf("got %d objects, want %d: %v", len(kinds), len(want), kinds)
	}
	for i, k := range want {
		if kinds[i] != k {
			t.Errorf("object[%d].Kind = %s, want %s", i, kinds[i], k)
		}
	}
}

func TestBuild_MySQLOrder(t *testing.T) {
	objs, err := Build(baseSpec("mysql"))
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	want := []ObjectKind{KindSecret, KindPVC, KindService, KindDeployment, KindService, KindDeployment}
	if len(objs) != len(want) {
		t.Fatalf("got %d objects, want %d", len(objs), len(want))
	}
	for i, k := range want {
		if objs[i].Kind != k {
			t.Errorf("object[%d].Kind = %s, want %s", i, objs[i].Kind, k)
		}
	}
}

func TestBuild_LAMPOrder(t *testing.T) {
	objs, err := Build(baseSpec("lamp"))
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	want := []ObjectKind{KindSecret, KindPVC, KindPVC, KindService, KindDeployment, KindService, KindDeployment, KindService, KindDeployment}
	if len(objs) != len(want) {
		t.Fatalf("got %d objects, want %d", len(objs), len(want))
	}
	for i, k := range want {
		if objs[i].Kind != k {
			t.Errorf("object[%d].Kind = %s, want %s", i, objs[i].Kind, k)
		}
	}
}

func TestBuild_UnknownStack(t *testing.T) {
	if _, err := Build(baseSpec("unknown-stack")); err == nil {
		t.Fatal("expected error for unknown stack kind")
	}
}

func TestBuild_IngressDowngradesServiceToClusterIP(t *testing.T) {
	spec := baseSpec("vscode")
	spec.Ingress = IngressPolicy{
		Enabled:    true,
		BaseDomain: "labs.example.com",
		ClassName:  "nginx",
		AutoTypes:  map[string]bool{"vscode": true},
	}
	spec.Template.ExposureMode = "NodePort"

	objs, err := Build(spec)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	var sawIngress bool
	for _, o := range objs {
		if o.Kind == KindIngress {
			sawIngress = true
		}
		if o.Kind == KindService {
			if svc := o.Object.(*corev1.Service); svc.Spec.Type != corev1.ServiceTypeClusterIP {
				t.Errorf("service type = %s, want ClusterIP when an Ingress is emitted", svc.Spec.Type)
			}
		}
	}
	if !sawIngress {
		t.Fatal("expected an Ingress object when ingress is enabled and stack is in the allow-list")
	}
}

func TestEnvVars_DeterministicOrder(t *testing.T) {
	overrides := map[string]string{"ZETA": "1", "ALPHA": "2", "MID": "3"}

	for i := 0; i < 10; i++ {
		env := envVars(overrides)
		if len(env) != 3 || env[0].Name != "ALPHA" || env[1].Name != "MID" || env[2].Name != "ZETA" {
			t.Fatalf("envVars not sorted: %v", env)
		}
	}
}

func TestEnvVars_EmptyOverridesReturnsNil(t *testing.T) {
	if env := envVars(nil); env != nil {
		t.Errorf("expected nil, got %v", env)
	}
}

func TestSecretFactory_GeneratesDistinctValues(t *testing.T) {
	s1, err := secretFactory("s", "ns", nil, []string{"a", "b"})
	if err != nil {
		t.Fatalf("secretFactory returned error: %v", err)
	}
	if string(s1.Data["a"]) == string(s1.Data["b"]) {
		t.Error("expected distinct random values per key")
	}

	s2, err := secretFactory("s", "ns", nil, []string{"a"})
	if err != nil {
		t.Fatalf("secretFactory returned error: %v", err)
	}
	if string(s1.Data["a"]) == string(s2.Data["a"]) {
		t.Error("expected distinct random values across calls")
	}
}
