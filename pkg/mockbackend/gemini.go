package mockbackend

import (
	"encoding/json"
	"net/http"
	"strings"
)

type geminiRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text             string `json:"text"`
			FunctionResponse *struct {
				Response map[string]any `json:"response"`
			} `json:"functionResponse"`
		} `json:"parts"`
	} `json:"contents"`
	SystemInstruction *json.RawMessage `json:"systemInstruction"`
	Tools             []struct {
		FunctionDeclarations []struct {
			Name string `json:"name"`
		} `json:"functionDeclarations"`
	} `json:"tools"`
}

func (b *Backend) routeGemini(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("GET "+prefix+"/v1beta/models", func(w http.ResponseWriter, r *http.Request) {
		data := []map[string]any{}
		for _, id := range b.live(b.models) {
			data = append(data, geminiModel(id))
		}
		writeJSON(w, http.StatusOK, map[string]any{"models": data})
	})
	mux.HandleFunc("GET "+prefix+"/v1beta/models/{model}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("model")
		if !b.exists(b.models, id) {
			geminiError(w, http.StatusNotFound, "models/"+id+" is not found")
			return
		}
		writeJSON(w, http.StatusOK, geminiModel(id))
	})
	// Generation shares the model segment: "{model}:{method}".
	mux.HandleFunc("POST "+prefix+"/v1beta/models/{model}", b.handleGenerateContent)
}

func geminiModel(id string) map[string]any {
	return map[string]any{
		"name": "models/" + id, "displayName": "Mock " + id,
		"description": "Deterministic mock model", "inputTokenLimit": 32768,
	}
}

func geminiError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{
		"code": status, "message": msg, "status": strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_")),
	}})
}

func (b *Backend) handleGenerateContent(w http.ResponseWriter, r *http.Request) {
	model, method, ok := strings.Cut(r.PathValue("model"), ":")
	if !ok || (method != "generateContent" && method != "streamGenerateContent") {
		geminiError(w, http.StatusNotFound, "unknown method")
		return
	}
	var req geminiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		geminiError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if status := failure(model); status != 0 {
		geminiError(w, status, http.StatusText(status))
		return
	}

	t := turn{system: req.SystemInstruction != nil}
	for _, c := range req.Contents {
		for _, p := range c.Parts {
			if p.FunctionResponse != nil {
				t.hasResult = true
				if s, ok := p.FunctionResponse.Response["result"].(string); ok {
					t.toolResult = s
				} else {
					data, _ := json.Marshal(p.FunctionResponse.Response)
					t.toolResult = string(data)
				}
			} else if c.Role == "user" && p.Text != "" {
				t.prompt = p.Text
			}
		}
	}
	for _, ts := range req.Tools {
		for _, fd := range ts.FunctionDeclarations {
			t.tools = append(t.tools, fd.Name)
		}
	}
	rep := t.reply()

	chunk := func(parts []map[string]any, finish string, out int) map[string]any {
		cand := map[string]any{"content": map[string]any{"role": "model", "parts": parts}}
		if finish != "" {
			cand["finishReason"] = finish
		}
		resp := map[string]any{"responseId": "mock-response", "modelVersion": model, "candidates": []any{cand}}
		if out > 0 {
			resp["usageMetadata"] = map[string]int{"promptTokenCount": 10, "candidatesTokenCount": out, "totalTokenCount": 10 + out}
		}
		return resp
	}

	var parts []map[string]any
	if rep.tool != "" {
		parts = append(parts, map[string]any{"functionCall": map[string]any{"name": rep.tool, "args": json.RawMessage(rep.args)}})
	}
	out := len(tokens(rep.text)) + 1

	if method == "generateContent" {
		if rep.text != "" {
			parts = append(parts, map[string]any{"text": rep.text})
		}
		writeJSON(w, http.StatusOK, chunk(parts, "STOP", out))
		return
	}

	f, ok := startSSE(w)
	if !ok {
		return
	}
	if len(parts) > 0 {
		writeEvent(w, f, "", chunk(parts, "", 0))
	}
	for _, tok := range tokens(rep.text) {
		writeEvent(w, f, "", chunk([]map[string]any{{"text": tok}}, "", 0))
	}
	writeEvent(w, f, "", chunk([]map[string]any{}, "STOP", out))
}
