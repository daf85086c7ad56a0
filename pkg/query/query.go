package query

import (
	"maps"
	"slices"
	"strconv"
)

// Field names one generic pagination or filter field.
type Field string

const (
	FieldLimit           Field = "limit"
	FieldOrder           Field = "order"
	FieldAfter           Field = "after"
	FieldBefore          Field = "before"
	FieldPageToken       Field = "page_token"
	FieldSearch          Field = "search"
	FieldSort            Field = "sort"
	FieldSortDirection   Field = "sort_direction"
	FieldIncludeArchived Field = "include_archived"
)

// fieldOrder fixes the order in which fields are examined so that wire
// parameters and ignored-field reports are deterministic.
var fieldOrder = []Field{
	FieldLimit,
	FieldOrder,
	FieldAfter,
	FieldBefore,
	FieldPageToken,
	FieldSearch,
	FieldSort,
	FieldSortDirection,
	FieldIncludeArchived,
}

// Order is a listing direction by creation time.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Fields is the generic view every query variant projects onto.
// Limit doubles as page size; it is the only field shared by all variants.
type Fields struct {
	Limit           int
	Order           Order
	After           string
	Before          string
	PageToken       string
	Search          string
	Sort            string
	SortDirection   Order
	IncludeArchived bool
	Flags           map[string]string
}

// isSet reports whether f carries a value for field.
func (f Fields) isSet(field Field) bool {
	switch field {
	case FieldLimit:
		return f.Limit != 0
	case FieldOrder:
		return f.Order != ""
	case FieldAfter:
		return f.After != ""
	case FieldBefore:
		return f.Before != ""
	case FieldPageToken:
		return f.PageToken != ""
	case FieldSearch:
		return f.Search != ""
	case FieldSort:
		return f.Sort != ""
	case FieldSortDirection:
		return f.SortDirection != ""
	case FieldIncludeArchived:
		return f.IncludeArchived
	}
	return false
}

// HasCursor reports whether the fields continue a previous listing.
func (f Fields) HasCursor() bool {
	return f.After != "" || f.Before != "" || f.PageToken != ""
}

// Query is a provider-scoped description of how to page, sort and filter
// a list request.
type Query interface {
	Fields() Fields
}

// CursorQuery pages with element cursors: After and Before are ids of the
// boundary elements of a previously returned page.
type CursorQuery struct {
	Limit  int    `json:"limit,omitempty"`
	Order  Order  `json:"order,omitempty"`
	After  string `json:"after,omitempty"`
	Before string `json:"before,omitempty"`
}

// Fields implements Query.
func (q CursorQuery) Fields() Fields {
	return Fields{Limit: q.Limit, Order: q.Order, After: q.After, Before: q.Before}
}

// TokenQuery pages with an opaque continuation token returned by the
// previous page.
type TokenQuery struct {
	PageSize        int    `json:"page_size,omitempty"`
	PageToken       string `json:"page_token,omitempty"`
	IncludeArchived bool   `json:"include_archived,omitempty"`
}

// Fields implements Query.
func (q TokenQuery) Fields() Fields {
	return Fields{Limit: q.PageSize, PageToken: q.PageToken, IncludeArchived: q.IncludeArchived}
}

// RichQuery filters and sorts as well as paging. Flags carries
// provider-specific filters such as a voice category.
type RichQuery struct {
	PageSize      int               `json:"page_size,omitempty"`
	PageToken     string            `json:"page_token,omitempty"`
	Search        string            `json:"search,omitempty"`
	Sort          string            `json:"sort,omitempty"`
	SortDirection Order             `json:"sort_direction,omitempty"`
	Flags         map[string]string `json:"flags,omitempty"`
}

// Fields implements Query.
func (q RichQuery) Fields() Fields {
	return Fields{
		Limit:         q.PageSize,
		PageToken:     q.PageToken,
		Search:        q.Search,
		Sort:          q.Sort,
		SortDirection: q.SortDirection,
		Flags:         maps.Clone(q.Flags),
	}
}

// FieldsQuery adapts a Fields value back into a Query, for callers that
// assemble fields directly (the HTTP gateway parses query strings this way).
type FieldsQuery Fields

// Fields implements Query.
func (q FieldsQuery) Fields() Fields {
	f := Fields(q)
	f.Flags = maps.Clone(q.Flags)
	return f
}

// Shape returns a canonical string for the fields of q, suitable as part
// of a cache key. Equal shapes describe the same request.
func Shape(q Query) string {
	if q == nil {
		return ""
	}
	f := q.Fields()
	b := make([]byte, 0, 64)
	add := func(k, v string) {
		if v == "" {
			return
		}
		if len(b) > 0 {
			b = append(b, '&')
		}
		b = append(b, k...)
		b = append(b, '=')
		b = append(b, v...)
	}
	if f.Limit != 0 {
		add(string(FieldLimit), strconv.Itoa(f.Limit))
	}
	add(string(FieldOrder), string(f.Order))
	add(string(FieldAfter), f.After)
	add(string(FieldBefore), f.Before)
	add(string(FieldPageToken), f.PageToken)
	add(string(FieldSearch), f.Search)
	add(string(FieldSort), f.Sort)
	add(string(FieldSortDirection), string(f.SortDirection))
	if f.IncludeArchived {
		add(string(FieldIncludeArchived), "true")
	}
	for _, k := range slices.Sorted(maps.Keys(f.Flags)) {
		add("flag."+k, f.Flags[k])
	}
	return string(b)
}
