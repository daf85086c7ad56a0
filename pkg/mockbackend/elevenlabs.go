package mockbackend

import (
	"encoding/json"
	"net/http"
	"strconv"
)

func (b *Backend) routeElevenLabs(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("GET "+prefix+"/v2/voices", func(w http.ResponseWriter, r *http.Request) {
		ids := b.live(b.voices)
		size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
		if size <= 0 || size > len(ids) {
			size = len(ids)
		}
		start := 0
		if tok := r.URL.Query().Get("next_page_token"); tok != "" {
			start, _ = strconv.Atoi(tok)
		}
		start = min(start, len(ids))
		end := min(start+size, len(ids))

		voices := []map[string]any{}
		for _, id := range ids[start:end] {
			voices = append(voices, elevenLabsVoice(id))
		}
		resp := map[string]any{"voices": voices, "has_more": end < len(ids), "total_count": len(ids)}
		if end < len(ids) {
			resp["next_page_token"] = strconv.Itoa(end)
		}
		writeJSON(w, http.StatusOK, resp)
	})
	mux.HandleFunc("GET "+prefix+"/v1/voices/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !b.exists(b.voices, id) {
			elevenLabsError(w, http.StatusNotFound, "voice_not_found", "A voice with voice_id "+id+" was not found.")
			return
		}
		writeJSON(w, http.StatusOK, elevenLabsVoice(id))
	})
	mux.HandleFunc("DELETE "+prefix+"/v1/voices/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !b.remove(b.voices, id) {
			elevenLabsError(w, http.StatusNotFound, "voice_not_found", "A voice with voice_id "+id+" was not found.")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET "+prefix+"/v1/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"model_id": "eleven_multilingual_v2", "name": "Eleven Multilingual v2", "description": "Mock TTS model"},
			{"model_id": "eleven_flash_v2_5", "name": "Eleven Flash v2.5", "description": "Mock low latency model"},
		})
	})
	mux.HandleFunc("POST "+prefix+"/v1/text-to-speech/{voice}", b.handleSpeech(false))
	mux.HandleFunc("POST "+prefix+"/v1/text-to-speech/{voice}/stream", b.handleSpeech(true))
}

func elevenLabsVoice(id string) map[string]any {
	return map[string]any{
		"voice_id": id, "name": id[len("voice-"):], "category": "premade",
		"description": "Mock voice", "created_at_unix": Created,
	}
}

func elevenLabsError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"detail": map[string]string{"status": code, "message": msg}})
}

func (b *Backend) handleSpeech(stream bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		voice := r.PathValue("voice")
		if !b.exists(b.voices, voice) {
			elevenLabsError(w, http.StatusNotFound, "voice_not_found", "A voice with voice_id "+voice+" was not found.")
			return
		}
		var req struct {
			Text    string `json:"text"`
			ModelID string `json:"model_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
			elevenLabsError(w, http.StatusUnprocessableEntity, "invalid_text", "text is required")
			return
		}
		if status := failure(req.ModelID); status != 0 {
			elevenLabsError(w, status, "server_error", http.StatusText(status))
			return
		}

		w.Header().Set("Content-Type", "audio/mpeg")
		if !stream {
			_, _ = w.Write(Audio)
			return
		}
		f, ok := w.(http.Flusher)
		if !ok {
			_, _ = w.Write(Audio)
			return
		}
		half := len(Audio) / 2
		for _, part := range [][]byte{Audio[:half], Audio[half:]} {
			_, _ = w.Write(part)
			f.Flush()
		}
	}
}
