package query

import (
	"fmt"
	"testing"

	"github.com/rhuss/unigen/pkg/api"
)

// fiveModels returns m1 (oldest) to m5 (newest), in scrambled order.
func fiveModels() []api.ModelData {
	return []api.ModelData{
		{ID: "m3", CreatedAt: 300},
		{ID: "m1", CreatedAt: 100},
		{ID: "m5", CreatedAt: 500},
		{ID: "m2", CreatedAt: 200},
		{ID: "m4", CreatedAt: 400},
	}
}

func created(m api.ModelData) int64 { return m.CreatedAt }

func listLocal(t *testing.T, q Query) api.Page[api.ModelData] {
	t.Helper()
	n, err := Normalize(LocalProfile("stub", "models"), q)
	if err != nil {
		t.Fatal(err)
	}
	return Paginate(fiveModels(), api.ModelID, created, n)
}

func ids(p api.Page[api.ModelData]) string {
	s := ""
	for i, m := range p.Data {
		if i > 0 {
			s += ","
		}
		s += m.ID
	}
	return s
}

func TestPaginateMostRecentFirst(t *testing.T) {
	page := listLocal(t, CursorQuery{Limit: 2})
	if got := ids(page); got != "m5,m4" {
		t.Fatalf("page 1 = %s, want m5,m4", got)
	}
	if !page.HasMore || page.FirstID != "m5" || page.LastID != "m4" || page.Limit != 2 {
		t.Errorf("unexpected page metadata: %+v", page)
	}

	next := listLocal(t, CursorQuery{Limit: 2, After: page.Data[1].ID})
	if got := ids(next); got != "m3,m2" {
		t.Fatalf("page 2 = %s, want m3,m2", got)
	}

	last := listLocal(t, CursorQuery{Limit: 2, After: next.LastID})
	if got := ids(last); got != "m1" || last.HasMore {
		t.Errorf("page 3 = %s has_more=%v, want m1/false", got, last.HasMore)
	}
}

func TestPaginateAdjacentPagesNeverOverlap(t *testing.T) {
	for limit := 1; limit <= 5; limit++ {
		for _, order := range []Order{OrderAsc, OrderDesc} {
			t.Run(fmt.Sprintf("limit=%d/%s", limit, order), func(t *testing.T) {
				seen := map[string]bool{}
				q := CursorQuery{Limit: limit, Order: order}
				for range 10 {
					page := listLocal(t, q)
					for _, m := range page.Data {
						if seen[m.ID] {
							t.Fatalf("element %s returned twice", m.ID)
						}
						seen[m.ID] = true
					}
					if !page.HasMore {
						break
					}
					q.After = page.LastID
				}
				if len(seen) != 5 {
					t.Errorf("walked %d elements, want 5", len(seen))
				}
			})
		}
	}
}

func TestPaginateBefore(t *testing.T) {
	page := listLocal(t, CursorQuery{Limit: 2, Before: "m2"})
	if got := ids(page); got != "m4,m3" {
		t.Fatalf("before page = %s, want m4,m3", got)
	}
	if !page.HasMore {
		t.Error("m5 precedes the window, has_more should be true")
	}

	head := listLocal(t, CursorQuery{Limit: 2, Before: "m5"})
	if len(head.Data) != 0 || head.HasMore {
		t.Errorf("nothing precedes the newest element, got %s", ids(head))
	}
}

func TestPaginateUnknownCursorIsEmptyPage(t *testing.T) {
	for _, q := range []Query{
		CursorQuery{After: "gone"},
		CursorQuery{Before: "gone"},
	} {
		page := listLocal(t, q)
		if len(page.Data) != 0 || page.HasMore {
			t.Errorf("%+v: expected empty page, got %s", q, ids(page))
		}
		if page.Data == nil {
			t.Error("empty page must carry a non-nil slice")
		}
	}
}

func TestPaginateIgnoresForeignFields(t *testing.T) {
	page := listLocal(t, RichQuery{PageSize: 3, Search: "x", PageToken: "t"})
	if got := ids(page); got != "m5,m4,m3" {
		t.Errorf("page = %s", got)
	}
	if len(page.Ignored) != 2 {
		t.Errorf("ignored = %v, want page_token and search", page.Ignored)
	}
}

func TestPaginateTieBreaksOnID(t *testing.T) {
	items := []api.ModelData{{ID: "b", CreatedAt: 1}, {ID: "a", CreatedAt: 1}, {ID: "c", CreatedAt: 1}}
	n, _ := Normalize(LocalProfile("stub", "models"), CursorQuery{Limit: 2, Order: OrderAsc})
	page := Paginate(items, api.ModelID, created, n)
	if got := ids(page); got != "a,b" {
		t.Errorf("page = %s, want a,b", got)
	}
}
