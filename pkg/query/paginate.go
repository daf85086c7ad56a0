package query

import (
	"cmp"
	"slices"

	"github.com/rhuss/unigen/pkg/api"
)

// Paginate pages a complete catalog in-process using the effective fields
// of n. Items are ordered by creation time (newest first unless the order
// is asc) with ties broken by id, so adjacent pages never overlap.
//
// After returns the items following the cursor element, Before the items
// immediately preceding it. A cursor that matches no element yields an
// empty page rather than an error.
func Paginate[T any](items []T, idOf func(T) string, createdOf func(T) int64, n Normalized) api.Page[T] {
	sorted := slices.Clone(items)
	asc := n.Fields.Order == OrderAsc
	slices.SortStableFunc(sorted, func(a, b T) int {
		c := cmp.Compare(createdOf(a), createdOf(b))
		if c == 0 {
			c = cmp.Compare(idOf(a), idOf(b))
		}
		if asc {
			return c
		}
		return -c
	})

	limit := n.Limit
	if limit <= 0 {
		limit = len(sorted)
	}

	var (
		window  []T
		hasMore bool
	)
	switch {
	case n.Fields.After != "":
		idx := slices.IndexFunc(sorted, func(it T) bool { return idOf(it) == n.Fields.After })
		if idx >= 0 {
			window = sorted[idx+1:]
		}
		hasMore = len(window) > limit
		if hasMore {
			window = window[:limit]
		}
	case n.Fields.Before != "":
		idx := slices.IndexFunc(sorted, func(it T) bool { return idOf(it) == n.Fields.Before })
		if idx > 0 {
			start := max(0, idx-limit)
			window = sorted[start:idx]
			hasMore = start > 0
		}
	default:
		window = sorted
		hasMore = len(window) > limit
		if hasMore {
			window = window[:limit]
		}
	}

	page := api.NewPage(slices.Clone(window), idOf)
	page.HasMore = hasMore
	return Annotate(page, n)
}
