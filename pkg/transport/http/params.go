package http

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/query"
)

// parseListQuery maps query-string parameters onto generic query fields.
// Parameters named "flag.<name>" become provider-specific flags. Semantic
// checks and clamping are left to the engine's normalizer.
func parseListQuery(v url.Values) (query.Query, *api.APIError) {
	f := query.Fields{
		After:     v.Get("after"),
		Before:    v.Get("before"),
		PageToken: v.Get("page_token"),
		Search:    v.Get("search"),
		Sort:      v.Get("sort"),
	}

	for _, name := range []string{"limit", "page_size"} {
		s := v.Get(name)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return nil, api.NewInvalidRequestError(name, name+" must be a positive integer")
		}
		f.Limit = n
		break
	}

	for name, dst := range map[string]*query.Order{"order": &f.Order, "sort_direction": &f.SortDirection} {
		switch o := query.Order(strings.ToLower(v.Get(name))); o {
		case "":
		case query.OrderAsc, query.OrderDesc:
			*dst = o
		default:
			return nil, api.NewInvalidRequestError(name, name+" must be 'asc' or 'desc'")
		}
	}

	if s := v.Get("include_archived"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, api.NewInvalidRequestError("include_archived", "include_archived must be a boolean")
		}
		f.IncludeArchived = b
	}

	for key, vals := range v {
		name, ok := strings.CutPrefix(key, "flag.")
		if !ok || name == "" || len(vals) == 0 {
			continue
		}
		if f.Flags == nil {
			f.Flags = make(map[string]string)
		}
		f.Flags[name] = vals[0]
	}
	return query.FieldsQuery(f), nil
}
