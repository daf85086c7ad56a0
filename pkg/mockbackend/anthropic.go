package mockbackend

import (
	"encoding/json"
	"net/http"
	"time"
)

type anthropicRequest struct {
	Model    string `json:"model"`
	System   string `json:"system"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Type    string `json:"type"`
			Text    string `json:"text"`
			Content string `json:"content"`
		} `json:"content"`
	} `json:"messages"`
	Tools []struct {
		Name string `json:"name"`
	} `json:"tools"`
}

func (b *Backend) routeAnthropic(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("GET "+prefix+"/v1/models", func(w http.ResponseWriter, r *http.Request) {
		data := []map[string]any{}
		ids := b.live(b.models)
		for _, id := range ids {
			data = append(data, anthropicModel(id))
		}
		resp := map[string]any{"data": data, "has_more": false}
		if len(ids) > 0 {
			resp["first_id"], resp["last_id"] = ids[0], ids[len(ids)-1]
		}
		writeJSON(w, http.StatusOK, resp)
	})
	mux.HandleFunc("GET "+prefix+"/v1/models/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !b.exists(b.models, id) {
			anthropicError(w, http.StatusNotFound, "not_found_error", "model: "+id)
			return
		}
		writeJSON(w, http.StatusOK, anthropicModel(id))
	})
	mux.HandleFunc("POST "+prefix+"/v1/messages", b.handleMessages)
}

func anthropicModel(id string) map[string]any {
	return map[string]any{
		"id": id, "type": "model", "display_name": "Mock " + id,
		"created_at": time.Unix(Created, 0).UTC().Format(time.RFC3339),
	}
}

func anthropicError(w http.ResponseWriter, status int, typ, msg string) {
	writeJSON(w, status, map[string]any{
		"type":  "error",
		"error": map[string]any{"type": typ, "message": msg},
	})
}

func (b *Backend) handleMessages(w http.ResponseWriter, r *http.Request) {
	var req anthropicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		anthropicError(w, http.StatusBadRequest, "invalid_request_error", "invalid request")
		return
	}
	if status := failure(req.Model); status != 0 {
		anthropicError(w, status, "api_error", http.StatusText(status))
		return
	}

	t := turn{system: req.System != ""}
	for _, m := range req.Messages {
		for _, c := range m.Content {
			switch {
			case c.Type == "tool_result":
				t.toolResult, t.hasResult = c.Content, true
			case c.Type == "text" && m.Role == "user":
				t.prompt = c.Text
			}
		}
	}
	for _, tool := range req.Tools {
		t.tools = append(t.tools, tool.Name)
	}
	rep := t.reply()

	stop := "end_turn"
	var block map[string]any
	if rep.tool != "" {
		stop = "tool_use"
		block = map[string]any{"type": "tool_use", "id": "toolu_mock_1", "name": rep.tool, "input": json.RawMessage(rep.args)}
	} else {
		block = map[string]any{"type": "text", "text": rep.text}
	}
	out := len(tokens(rep.text)) + 1

	if !req.Stream {
		writeJSON(w, http.StatusOK, map[string]any{
			"id": "msg_mock", "type": "message", "role": "assistant", "model": req.Model,
			"content":     []any{block},
			"stop_reason": stop,
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": out},
		})
		return
	}

	f, ok := startSSE(w)
	if !ok {
		return
	}
	writeEvent(w, f, "message_start", map[string]any{
		"type":    "message_start",
		"message": map[string]any{"id": "msg_mock", "model": req.Model, "usage": map[string]int{"input_tokens": 10}},
	})
	if rep.tool != "" {
		writeEvent(w, f, "content_block_start", map[string]any{
			"type": "content_block_start", "index": 0,
			"content_block": map[string]any{"type": "tool_use", "id": "toolu_mock_1", "name": rep.tool, "input": map[string]any{}},
		})
		half := len(rep.args) / 2
		for _, part := range []string{rep.args[:half], rep.args[half:]} {
			writeEvent(w, f, "content_block_delta", map[string]any{
				"type": "content_block_delta", "index": 0,
				"delta": map[string]any{"type": "input_json_delta", "partial_json": part},
			})
		}
	} else {
		writeEvent(w, f, "content_block_start", map[string]any{
			"type": "content_block_start", "index": 0,
			"content_block": map[string]any{"type": "text", "text": ""},
		})
		for _, tok := range tokens(rep.text) {
			writeEvent(w, f, "content_block_delta", map[string]any{
				"type": "content_block_delta", "index": 0,
				"delta": map[string]any{"type": "text_delta", "text": tok},
			})
		}
	}
	writeEvent(w, f, "content_block_stop", map[string]any{"type": "content_block_stop", "index": 0})
	writeEvent(w, f, "message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": stop},
		"usage": map[string]int{"output_tokens": out},
	})
	writeEvent(w, f, "message_stop", map[string]any{"type": "message_stop"})
}
