package httpserver

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{CreatedAt: time.Now().UTC().Truncate(time.Microsecond), ID: uuid.New()}

	encoded := EncodeCursor(c)
	decoded, err := DecodeCursor(encoded)
	if err != nil {
		t.Fatalf("DecodeCursor returned error: %v", err)
	}

	if !decoded.CreatedAt.Equal(c.CreatedAt) {
		t.Errorf("CreatedAt mismatch: got %v want %v", decoded.CreatedAt, c.CreatedAt)
	}
	if decoded.ID != c.ID {
		t.Errorf("ID mismatch: got %v want %v", decoded.ID, c.ID)
	}
}

func TestDecodeCursor_Invalid(t *testing.T) {
	if _, err := DecodeCursor("not-valid-base64!!!"); err == nil {
		t.Fatal("expected error for invalid base64, got nil")
	}
	if _, err := DecodeCursor(""); err == nil {
		t.Fatal("expected error for empty cursor, got nil")
	}
}

func TestParseCursorParams_Defaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/deployments", nil)

	p, err := ParseCursorParams(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Limit != DefaultPageSize {
		t.Errorf("expected default limit %d, got %d", DefaultPageSize, p.Limit)
	}
	if p.After != nil {
		t.Error("expected nil After cursor by default")
	}
}

func TestParseCursorParams_ClampsLimit(t *testing.T) {
	r := httptest.NewRequest("GET", "/deployments?limit=1000", nil)

	p, err := ParseCursorParams(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Limit != MaxPageSize {
		t.Errorf("expected clamped limit %d, got %d", MaxPageSize, p.Limit)
	}
}

func TestParseCursorParams_RejectsInvalidLimit(t *testing.T) {
	r := httptest.NewRequest("GET", "/deployments?limit=-5", nil)
	if _, err := ParseCursorParams(r); err == nil {
		t.Fatal("expected error for negative limit, got nil")
	}
}

func TestNewCursorPage_DetectsMore(t *testing.T) {
	type row struct {
		id        uuid.UUID
		createdAt time.Time
	}
	items := make([]row, 0, 6)
	now := time.Now().UTC()
	for i := 0; i < 6; i++ {
		items = append(items, row{id: uuid.New(), createdAt: now.Add(time.Duration(i) * time.Second)})
	}

	page := NewCursorPage(items, 5, func(r row) Cursor {
		return Cursor{CreatedAt: r.createdAt, ID: r.id}
	})

	if len(page.Items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(page.Items))
	}
	if !page.HasMore {
		t.Fatal("expected HasMore to be true")
	}
	if page.NextCursor == nil {
		t.Fatal("expected NextCursor to be set")
	}
}

func TestNewCursorPage_NoMore(t *testing.T) {
	items := []int{1, 2, 3}
	page := NewCursorPage(items, 5, func(int) Cursor { return Cursor{} })

	if page.HasMore {
		t.Fatal("expected HasMore to be false")
	}
	if page.NextCursor != nil {
		t.Fatal("expected NextCursor to be nil")
	}
}

func TestParseOffsetParams_Defaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/templates", nil)

	p, err := ParseOffsetParams(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Page != 1 || p.PageSize != DefaultPageSize || p.Offset != 0 {
		t.Fatalf("unexpected defaults: %+v", p)
	}
}

func TestParseOffsetParams_ComputesOffset(t *testing.T) {
	r := httptest.NewRequest("GET", "/templates?page=3&page_size=10", nil)

	p, err := ParseOffsetParams(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Offset != 20 {
		t.Errorf("expected offset 20, got %d", p.Offset)
	}
}

func TestNewOffsetPage_ComputesTotalPages(t *testing.T) {
	params := OffsetParams{Page: 1, PageSize: 10}
	page := NewOffsetPage([]int{1, 2, 3}, params, 25)

	if page.TotalPages != 3 {
		t.Errorf("expected 3 total pages, got %d", page.TotalPages)
	}
}
