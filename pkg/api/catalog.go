package api

// ModelData is a normalized, read-only catalog entry for a model.
// Provider fields without a typed home are kept in Metadata.
type ModelData struct {
	ID          string         `json:"id"`
	Provider    string         `json:"provider"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	OwnedBy     string         `json:"owned_by,omitempty"`
	CreatedAt   int64          `json:"created_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// VoiceData is a normalized catalog entry for a synthesized voice.
type VoiceData struct {
	ID          string         `json:"id"`
	Provider    string         `json:"provider"`
	Name        string         `json:"name,omitempty"`
	Category    string         `json:"category,omitempty"`
	Description string         `json:"description,omitempty"`
	CreatedAt   int64          `json:"created_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// UploadedFile is a normalized entry for a file stored at a provider.
type UploadedFile struct {
	ID        string         `json:"id"`
	Provider  string         `json:"provider"`
	Filename  string         `json:"filename,omitempty"`
	Purpose   string         `json:"purpose,omitempty"`
	Bytes     int64          `json:"bytes,omitempty"`
	Status    string         `json:"status,omitempty"`
	CreatedAt int64          `json:"created_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Page is one page of a catalog listing.
//
// Limit is the page size actually used after clamping to the provider's
// accepted range. Ignored names the query fields the provider does not
// understand and that were therefore dropped.
type Page[T any] struct {
	Object        string   `json:"object"`
	Data          []T      `json:"data"`
	HasMore       bool     `json:"has_more"`
	FirstID       string   `json:"first_id,omitempty"`
	LastID        string   `json:"last_id,omitempty"`
	NextPageToken string   `json:"next_page_token,omitempty"`
	Limit         int      `json:"limit"`
	Clamped       bool     `json:"clamped,omitempty"`
	Ignored       []string `json:"ignored,omitempty"`
}

// NewPage builds a page and fills the boundary ids from data. idOf
// extracts an element id.
func NewPage[T any](data []T, idOf func(T) string) Page[T] {
	if data == nil {
		data = []T{}
	}
	p := Page[T]{Object: "list", Data: data}
	if len(data) > 0 {
		p.FirstID = idOf(data[0])
		p.LastID = idOf(data[len(data)-1])
	}
	return p
}

// ModelID, VoiceID and FileID are id accessors for NewPage.
func ModelID(m ModelData) string   { return m.ID }
func VoiceID(v VoiceData) string   { return v.ID }
func FileID(f UploadedFile) string { return f.ID }
