package elevenlabs

import "github.com/rhuss/unigen/pkg/provider/httpclient"

// voiceList is the envelope of GET /v2/voices.
type voiceList struct {
	Voices        []httpclient.Record `json:"voices"`
	HasMore       bool                `json:"has_more"`
	TotalCount    int                 `json:"total_count"`
	NextPageToken string              `json:"next_page_token"`
}

// ttsRequest is the body of POST /v1/text-to-speech/{voice_id}.
type ttsRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id,omitempty"`
	LanguageCode  string         `json:"language_code,omitempty"`
	VoiceSettings map[string]any `json:"voice_settings,omitempty"`
}
