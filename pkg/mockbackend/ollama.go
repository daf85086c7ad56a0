package mockbackend

import (
	"encoding/json"
	"net/http"
	"time"
)

type ollamaRequest struct {
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Tools []struct {
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	} `json:"tools"`
}

func (b *Backend) routeOllama(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("GET "+prefix+"/api/tags", func(w http.ResponseWriter, r *http.Request) {
		models := []map[string]any{}
		for i, id := range b.live(b.models) {
			models = append(models, map[string]any{
				"name": id, "model": id, "size": 1 << 30,
				"modified_at": time.Unix(Created+int64(i)*3600, 0).UTC().Format(time.RFC3339Nano),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"models": models})
	})
	mux.HandleFunc("POST "+prefix+"/api/show", func(w http.ResponseWriter, r *http.Request) {
		var ref struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&ref)
		if !b.exists(b.models, ref.Model) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "model '" + ref.Model + "' not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"modelfile":   "FROM " + ref.Model,
			"details":     map[string]string{"family": "mock", "parameter_size": "7B"},
			"modified_at": time.Unix(Created, 0).UTC().Format(time.RFC3339Nano),
		})
	})
	mux.HandleFunc("DELETE "+prefix+"/api/delete", func(w http.ResponseWriter, r *http.Request) {
		var ref struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&ref)
		if !b.remove(b.models, ref.Model) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "model '" + ref.Model + "' not found"})
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST "+prefix+"/api/chat", b.handleOllamaChat)
}

func (b *Backend) handleOllamaChat(w http.ResponseWriter, r *http.Request) {
	var req ollamaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	if status := failure(req.Model); status != 0 {
		writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
		return
	}

	t := turn{}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			t.system = true
		case "user":
			t.prompt = m.Content
		case "tool":
			t.toolResult, t.hasResult = m.Content, true
		}
	}
	for _, tool := range req.Tools {
		t.tools = append(t.tools, tool.Function.Name)
	}
	rep := t.reply()

	msg := map[string]any{"role": "assistant", "content": ""}
	if rep.tool != "" {
		msg["tool_calls"] = []any{map[string]any{"function": map[string]any{"name": rep.tool, "arguments": json.RawMessage(rep.args)}}}
	}
	out := len(tokens(rep.text)) + 1
	final := func(m map[string]any) map[string]any {
		return map[string]any{
			"model": req.Model, "message": m, "done": true, "done_reason": "stop",
			"prompt_eval_count": 10, "eval_count": out,
		}
	}

	if !req.Stream {
		msg["content"] = rep.text
		writeJSON(w, http.StatusOK, final(msg))
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	for _, tok := range tokens(rep.text) {
		_ = enc.Encode(map[string]any{
			"model": req.Model, "done": false,
			"message": map[string]any{"role": "assistant", "content": tok},
		})
		f.Flush()
	}
	_ = enc.Encode(final(msg))
	f.Flush()
}
