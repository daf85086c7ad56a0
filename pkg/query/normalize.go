package query

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strconv"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/debug"
)

// Scheme identifies the pagination idiom a provider endpoint speaks.
type Scheme string

const (
	// SchemeCursor pages by element id (after/before).
	SchemeCursor Scheme = "cursor"
	// SchemeToken pages by an opaque continuation token.
	SchemeToken Scheme = "token"
	// SchemeRich pages by token and adds search, sort and filters.
	SchemeRich Scheme = "rich"
	// SchemeLocal means the endpoint returns the whole catalog and paging
	// is applied in-process by Paginate.
	SchemeLocal Scheme = "local"
)

// Profile describes what a single provider endpoint accepts.
//
// Params maps each supported field to its wire parameter name. A field
// present with an empty name is supported but applied locally rather than
// sent. Flags maps supported provider-specific flags to wire names.
type Profile struct {
	Provider     string
	Resource     string
	Scheme       Scheme
	MinLimit     int
	MaxLimit     int
	DefaultLimit int
	DefaultOrder Order
	Params       map[Field]string
	Flags        map[string]string
}

// Supports reports whether the endpoint understands field.
func (p Profile) Supports(field Field) bool {
	_, ok := p.Params[field]
	return ok
}

// LocalProfile returns a profile for an endpoint that returns its whole
// catalog, paged in-process with cursor semantics.
func LocalProfile(provider, resource string) Profile {
	return Profile{
		Provider:     provider,
		Resource:     resource,
		Scheme:       SchemeLocal,
		MinLimit:     1,
		MaxLimit:     100,
		DefaultLimit: 20,
		DefaultOrder: OrderDesc,
		Params: map[Field]string{
			FieldLimit:  "",
			FieldOrder:  "",
			FieldAfter:  "",
			FieldBefore: "",
		},
	}
}

// Normalized is the outcome of mapping a query onto a profile.
type Normalized struct {
	// Params holds the wire parameters to send.
	Params url.Values
	// Fields holds the effective values after dropping and clamping.
	Fields Fields
	// Limit is the page size actually used.
	Limit int
	// Clamped is set when the requested limit was outside the accepted range.
	Clamped bool
	// Ignored lists dropped fields; provider flags appear as "flag.<name>".
	Ignored []string
}

// Normalize maps q onto the endpoint described by p. A nil query selects
// the provider defaults. Fields the endpoint does not understand are
// dropped and reported in Ignored; they are never reinterpreted as another
// field. Only malformed values (an unknown order) produce an error.
func Normalize(p Profile, q Query) (Normalized, error) {
	var in Fields
	if q != nil {
		in = q.Fields()
	}

	out := Normalized{Params: url.Values{}}
	eff := Fields{}

	for _, field := range fieldOrder {
		if !in.isSet(field) {
			continue
		}
		if !p.Supports(field) {
			out.Ignored = append(out.Ignored, string(field))
			continue
		}
		switch field {
		case FieldOrder:
			if err := checkOrder(string(field), in.Order); err != nil {
				return Normalized{}, err
			}
			eff.Order = in.Order
		case FieldSortDirection:
			if err := checkOrder(string(field), in.SortDirection); err != nil {
				return Normalized{}, err
			}
			eff.SortDirection = in.SortDirection
		case FieldAfter:
			eff.After = in.After
		case FieldBefore:
			eff.Before = in.Before
		case FieldPageToken:
			eff.PageToken = in.PageToken
		case FieldSearch:
			eff.Search = in.Search
		case FieldSort:
			eff.Sort = in.Sort
		case FieldIncludeArchived:
			eff.IncludeArchived = true
		}
	}

	if p.Supports(FieldLimit) {
		eff.Limit, out.Clamped = clampLimit(p, in.Limit)
		out.Limit = eff.Limit
	}
	if eff.Order == "" && p.Supports(FieldOrder) {
		eff.Order = p.DefaultOrder
	}

	for _, k := range slices.Sorted(maps.Keys(in.Flags)) {
		if _, ok := p.Flags[k]; !ok {
			out.Ignored = append(out.Ignored, "flag."+k)
			continue
		}
		if eff.Flags == nil {
			eff.Flags = make(map[string]string)
		}
		eff.Flags[k] = in.Flags[k]
	}

	out.Fields = eff
	out.Params = wireParams(p, eff, in)

	if len(out.Ignored) > 0 {
		debug.Log("query", "fields ignored",
			"provider", p.Provider, "resource", p.Resource, "ignored", out.Ignored)
	}
	if out.Clamped {
		debug.Log("query", "limit clamped",
			"provider", p.Provider, "requested", in.Limit, "effective", out.Limit)
	}
	return out, nil
}

// clampLimit returns the limit to use and whether the request was moved
// into range. An unset limit takes the profile default.
func clampLimit(p Profile, requested int) (int, bool) {
	if requested == 0 {
		return p.DefaultLimit, false
	}
	lim := requested
	if p.MinLimit > 0 && lim < p.MinLimit {
		lim = p.MinLimit
	}
	if p.MaxLimit > 0 && lim > p.MaxLimit {
		lim = p.MaxLimit
	}
	return lim, lim != requested
}

func checkOrder(param string, o Order) error {
	if o == OrderAsc || o == OrderDesc {
		return nil
	}
	return api.NewInvalidRequestError(param, fmt.Sprintf("order must be %q or %q, got %q", OrderAsc, OrderDesc, o))
}

// wireParams renders the effective fields with the endpoint's parameter
// names. The effective limit is always sent so the page size reported to
// the caller is the one the provider applied.
func wireParams(p Profile, eff, in Fields) url.Values {
	v := url.Values{}
	set := func(field Field, value string) {
		name := p.Params[field]
		if name == "" || value == "" {
			return
		}
		v.Set(name, value)
	}
	if eff.Limit > 0 {
		set(FieldLimit, strconv.Itoa(eff.Limit))
	}
	if in.Order != "" {
		set(FieldOrder, string(eff.Order))
	}
	set(FieldAfter, eff.After)
	set(FieldBefore, eff.Before)
	set(FieldPageToken, eff.PageToken)
	set(FieldSearch, eff.Search)
	set(FieldSort, eff.Sort)
	set(FieldSortDirection, string(eff.SortDirection))
	if eff.IncludeArchived {
		set(FieldIncludeArchived, "true")
	}
	for k, val := range eff.Flags {
		if name := p.Flags[k]; name != "" && val != "" {
			v.Set(name, val)
		}
	}
	return v
}

// Annotate copies the normalization outcome onto a page so the caller can
// observe the effective limit and the dropped fields.
func Annotate[T any](page api.Page[T], n Normalized) api.Page[T] {
	page.Limit = n.Limit
	page.Clamped = n.Clamped
	page.Ignored = slices.Clone(n.Ignored)
	return page
}
