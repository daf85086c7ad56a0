package httpclient

import (
	"encoding/json"
	"time"
)

// Record is a decoded provider catalog entry. Typed accessors read the
// fields an adapter maps; Metadata returns everything else verbatim.
type Record map[string]any

// String returns the string at key, or "".
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Int64 returns the number at key, or 0. JSON numbers decode as float64.
func (r Record) Int64(key string) int64 {
	switch v := r[key].(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

// Time returns the RFC 3339 timestamp at key as unix seconds, or 0.
func (r Record) Time(key string) int64 {
	s := r.String(key)
	if s == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}
	return t.Unix()
}

// Metadata returns the entries whose keys are not in known. It returns
// nil when nothing is left.
func (r Record) Metadata(known ...string) map[string]any {
	skip := make(map[string]bool, len(known))
	for _, k := range known {
		skip[k] = true
	}
	var out map[string]any
	for k, v := range r {
		if skip[k] {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[k] = v
	}
	return out
}
