// Package query normalizes provider-scoped pagination queries.
//
// Three query idioms exist across providers: element cursors
// ([CursorQuery]), opaque continuation tokens ([TokenQuery]) and
// filter-and-sort listings ([RichQuery]). Each projects onto the generic
// [Fields] view, and [Normalize] maps that view onto the [Profile] of one
// provider endpoint: unsupported fields are dropped and reported, page
// sizes are clamped into range and the effective value is returned.
//
// Endpoints that return a whole catalog at once are paged in-process by
// [Paginate].
package query
