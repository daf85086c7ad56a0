package query

import (
	"slices"
	"strconv"
	"testing"

	"github.com/rhuss/unigen/pkg/api"
)

func cursorProfile() Profile {
	return Profile{
		Provider:     "anthropic",
		Resource:     "models",
		Scheme:       SchemeCursor,
		MinLimit:     1,
		MaxLimit:     1000,
		DefaultLimit: 20,
		Params: map[Field]string{
			FieldLimit:  "limit",
			FieldAfter:  "after_id",
			FieldBefore: "before_id",
		},
	}
}

func richProfile() Profile {
	return Profile{
		Provider:     "elevenlabs",
		Resource:     "voices",
		Scheme:       SchemeRich,
		MinLimit:     1,
		MaxLimit:     100,
		DefaultLimit: 10,
		Params: map[Field]string{
			FieldLimit:         "page_size",
			FieldPageToken:     "next_page_token",
			FieldSearch:        "search",
			FieldSort:          "sort",
			FieldSortDirection: "sort_direction",
		},
		Flags: map[string]string{"category": "category", "voice_type": "voice_type"},
	}
}

func TestNormalizeNilQueryUsesDefaults(t *testing.T) {
	n, err := Normalize(cursorProfile(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if n.Limit != 20 || n.Clamped {
		t.Errorf("limit = %d clamped = %v, want 20/false", n.Limit, n.Clamped)
	}
	if got := n.Params.Get("limit"); got != "20" {
		t.Errorf("limit param = %q, want 20", got)
	}
	if len(n.Ignored) != 0 {
		t.Errorf("ignored = %v, want none", n.Ignored)
	}
}

func TestNormalizeClamping(t *testing.T) {
	tests := []struct {
		name        string
		limit       int
		wantLimit   int
		wantClamped bool
	}{
		{"in range", 50, 50, false},
		{"above max", 5000, 1000, true},
		{"negative", -3, 1, true},
		{"at min", 1, 1, false},
		{"at max", 1000, 1000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Normalize(cursorProfile(), CursorQuery{Limit: tt.limit})
			if err != nil {
				t.Fatal(err)
			}
			if n.Limit != tt.wantLimit || n.Clamped != tt.wantClamped {
				t.Errorf("got %d/%v, want %d/%v", n.Limit, n.Clamped, tt.wantLimit, tt.wantClamped)
			}
			if n.Params.Get("limit") != strconv.Itoa(tt.wantLimit) {
				t.Errorf("wire limit = %q", n.Params.Get("limit"))
			}
		})
	}
}

func TestNormalizeWireNames(t *testing.T) {
	n, err := Normalize(cursorProfile(), CursorQuery{Limit: 5, After: "m_2", Before: "m_9"})
	if err != nil {
		t.Fatal(err)
	}
	if n.Params.Get("after_id") != "m_2" || n.Params.Get("before_id") != "m_9" {
		t.Errorf("cursor params = %v", n.Params)
	}
	if n.Fields.After != "m_2" {
		t.Errorf("effective after = %q", n.Fields.After)
	}
}

func TestNormalizeDropsUnsupportedFields(t *testing.T) {
	p := cursorProfile()
	delete(p.Params, FieldBefore)

	n, err := Normalize(p, CursorQuery{Limit: 2, Before: "m_3", Order: OrderAsc})
	if err != nil {
		t.Fatalf("unsupported fields must not error: %v", err)
	}
	if !slices.Equal(n.Ignored, []string{"order", "before"}) {
		t.Errorf("ignored = %v, want [order before]", n.Ignored)
	}
	if n.Params.Has("before_id") || n.Fields.Before != "" {
		t.Error("dropped field leaked into the request")
	}
}

func TestNormalizeNeverReinterpretsVariants(t *testing.T) {
	// A page token is opaque; a cursor provider must not treat it as an
	// element id.
	n, err := Normalize(cursorProfile(), TokenQuery{PageSize: 7, PageToken: "tok_abc", IncludeArchived: true})
	if err != nil {
		t.Fatal(err)
	}
	if n.Fields.After != "" || n.Params.Has("after_id") {
		t.Error("page token was misread as an after cursor")
	}
	if n.Limit != 7 {
		t.Errorf("page size should carry over as limit, got %d", n.Limit)
	}
	if !slices.Equal(n.Ignored, []string{"page_token", "include_archived"}) {
		t.Errorf("ignored = %v", n.Ignored)
	}
}

func TestNormalizeRichQuery(t *testing.T) {
	q := RichQuery{
		PageSize:      250,
		PageToken:     "next-1",
		Search:        "narrator",
		Sort:          "created_at_unix",
		SortDirection: OrderDesc,
		Flags:         map[string]string{"category": "premade", "unknown": "x"},
	}
	n, err := Normalize(richProfile(), q)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"page_size":       "100",
		"next_page_token": "next-1",
		"search":          "narrator",
		"sort":            "created_at_unix",
		"sort_direction":  "desc",
		"category":        "premade",
	}
	for k, v := range want {
		if got := n.Params.Get(k); got != v {
			t.Errorf("param %s = %q, want %q", k, got, v)
		}
	}
	if !n.Clamped || n.Limit != 100 {
		t.Errorf("expected clamp to 100, got %d/%v", n.Limit, n.Clamped)
	}
	if !slices.Equal(n.Ignored, []string{"flag.unknown"}) {
		t.Errorf("ignored = %v", n.Ignored)
	}
}

func TestNormalizeRejectsMalformedOrder(t *testing.T) {
	_, err := Normalize(LocalProfile("openai", "models"), CursorQuery{Order: "sideways"})
	if !api.IsType(err, api.ErrorTypeInvalidRequest) {
		t.Fatalf("expected invalid_request, got %v", err)
	}

	// The same bad value on a provider without ordering is simply dropped.
	if _, err := Normalize(cursorProfile(), CursorQuery{Order: "sideways"}); err != nil {
		t.Errorf("unsupported field should be ignored, got %v", err)
	}
}

func TestShapeIsCanonical(t *testing.T) {
	a := RichQuery{PageSize: 10, Flags: map[string]string{"b": "2", "a": "1"}}
	b := RichQuery{Flags: map[string]string{"a": "1", "b": "2"}, PageSize: 10}
	if Shape(a) != Shape(b) {
		t.Errorf("shapes differ: %q vs %q", Shape(a), Shape(b))
	}
	if Shape(a) != "limit=10&flag.a=1&flag.b=2" {
		t.Errorf("shape = %q", Shape(a))
	}
	if Shape(nil) != "" {
		t.Error("nil query should have empty shape")
	}
	if Shape(CursorQuery{After: "x"}) == Shape(CursorQuery{Before: "x"}) {
		t.Error("after and before must not collide")
	}
}
