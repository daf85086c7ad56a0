package http

import (
	"net/url"
	"testing"

	"github.com/rhuss/unigen/pkg/query"
)

func TestParseListQuery(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    query.Fields
		wantErr string
	}{
		{name: "empty", raw: ""},
		{name: "cursor", raw: "limit=5&order=ASC&after=m2", want: query.Fields{Limit: 5, Order: query.OrderAsc, After: "m2"}},
		{name: "page size alias", raw: "page_size=7&page_token=abc", want: query.Fields{Limit: 7, PageToken: "abc"}},
		{
			name: "rich",
			raw:  "search=narr&sort=name&sort_direction=desc&flag.category=premade&include_archived=true",
			want: query.Fields{Search: "narr", Sort: "name", SortDirection: query.OrderDesc, IncludeArchived: true,
				Flags: map[string]string{"category": "premade"}},
		},
		{name: "bad limit", raw: "limit=zero", wantErr: "limit"},
		{name: "negative limit", raw: "limit=-1", wantErr: "limit"},
		{name: "bad order", raw: "order=up", wantErr: "order"},
		{name: "bad direction", raw: "sort_direction=sideways", wantErr: "sort_direction"},
		{name: "bad bool", raw: "include_archived=maybe", wantErr: "include_archived"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := url.ParseQuery(tt.raw)
			q, err := parseListQuery(v)
			if tt.wantErr != "" {
				if err == nil || err.Param != tt.wantErr {
					t.Fatalf("err = %v, want param %s", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got, want := query.Shape(q), query.Shape(query.FieldsQuery(tt.want)); got != want {
				t.Errorf("shape = %q, want %q", got, want)
			}
		})
	}
}
