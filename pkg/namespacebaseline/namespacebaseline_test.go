package namespacebaseline

import (
	"context"
	"io"
	"log/slog"
	"testing"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/labondemand/control-plane/pkg/labnaming"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnsure_CreatesNamespaceAndQuota(t *testing.T) {
	client := fake.NewSimpleClientset()
	b := New(client, "labondemand-user-", testLogger())

	ns, err := b.Ensure(context.Background(), "42", "student")
	if err != nil {
		t.Fatalf("Ensure returned error: %v", err)
	}
	if ns != "labondemand-user-42" {
		t.Errorf("namespace = %q, want labondemand-user-42", ns)
	}

	if _, err := client.CoreV1().Namespaces().Get(context.Background(), ns, metav1.GetOptions{}); err != nil {
		t.Errorf("namespace was not created: %v", err)
	}
	if _, err := client.CoreV1().ResourceQuotas(ns).Get(context.Background(), labnaming.BaselineQuotaName, metav1.GetOptions{}); err != nil {
		t.Errorf("resource quota was not created: %v", err)
	}
	if _, err := client.CoreV1().LimitRanges(ns).Get(context.Background(), labnaming.BaselineLimitRangeName, metav1.GetOptions{}); err != nil {
		t.Errorf("limit range was not created: %v", err)
	}
}

func TestEnsure_IdempotentOnSecondCall(t *testing.T) {
	client := fake.NewSimpleClientset()
	b := New(client, "labondemand-user-", testLogger())

	ctx := context.Background()
	if _, err := b.Ensure(ctx, "7", "teacher"); err != nil {
		t.Fatalf("first Ensure returned error: %v", err)
	}
	if _, err := b.Ensure(ctx, "7", "teacher"); err != nil {
		t.Fatalf("second Ensure returned error: %v", err)
	}
}

func TestEnsure_PatchesQuotaOnRoleChange(t *testing.T) {
	client := fake.NewSimpleClientset()
	b := New(client, "labondemand-user-", testLogger())
	ctx := context.Background()

	ns, _ := b.Ensure(ctx, "9", "student")

	if _, err := b.Ensure(ctx, "9", "teacher"); err != nil {
		t.Fatalf("Ensure with changed role returned error: %v", err)
	}

	rq, err := client.CoreV1().ResourceQuotas(ns).Get(ctx, labnaming.BaselineQuotaName, metav1.GetOptions{})
	if err != nil {
		t.Fatalf("getting resource quota: %v", err)
	}
	pods := rq.Spec.Hard["pods"]
	if pods.Value() != RoleQuotas["teacher"].Pods {
		t.Errorf("pods ceiling = %d, want teacher ceiling %d", pods.Value(), RoleQuotas["teacher"].Pods)
	}
}
