package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type sampleRequest struct {
	Name string `json:"name" validate:"required"`
	Role string `json:"role" validate:"required,oneof=student teacher admin"`
}

func TestDecode_Valid(t *testing.T) {
	body := strings.NewReader(`{"name":"ada","role":"student"}`)
	r := httptest.NewRequest(http.MethodPost, "/", body)

	var dst sampleRequest
	if err := Decode(r, &dst); err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if dst.Name != "ada" || dst.Role != "student" {
		t.Fatalf("unexpected decode result: %+v", dst)
	}
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	body := strings.NewReader(`{"name":"ada","role":"student","extra":"nope"}`)
	r := httptest.NewRequest(http.MethodPost, "/", body)

	var dst sampleRequest
	if err := Decode(r, &dst); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestDecode_RejectsTrailingData(t *testing.T) {
	body := strings.NewReader(`{"name":"ada","role":"student"}{"name":"second"}`)
	r := httptest.NewRequest(http.MethodPost, "/", body)

	var dst sampleRequest
	if err := Decode(r, &dst); err == nil {
		t.Fatal("expected error for trailing JSON, got nil")
	}
}

func TestDecode_RejectsEmptyBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))

	var dst sampleRequest
	if err := Decode(r, &dst); err == nil {
		t.Fatal("expected error for empty body, got nil")
	}
}

func TestValidate_MissingRequiredField(t *testing.T) {
	errs := Validate(sampleRequest{Role: "student"})
	if len(errs) != 1 {
		t.Fatalf("expected 1 validation error, got %d: %+v", len(errs), errs)
	}
	if errs[0].Field != "name" {
		t.Fatalf("expected field 'name', got %q", errs[0].Field)
	}
}

func TestValidate_OneOfViolation(t *testing.T) {
	errs := Validate(sampleRequest{Name: "ada", Role: "superadmin"})
	if len(errs) != 1 {
		t.Fatalf("expected 1 validation error, got %d: %+v", len(errs), errs)
	}
	if errs[0].Field != "role" {
		t.Fatalf("expected field 'role', got %q", errs[0].Field)
	}
}

func TestValidate_AllValid(t *testing.T) {
	errs := Validate(sampleRequest{Name: "ada", Role: "teacher"})
	if len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %+v", errs)
	}
}

func TestToSnakeCase(t *testing.T) {
	cases := map[string]string{
		"Name":      "name",
		"UserID":    "user_i_d",
		"RoleLevel": "role_level",
	}
	for in, want := range cases {
		if got := toSnakeCase(in); got != want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}
