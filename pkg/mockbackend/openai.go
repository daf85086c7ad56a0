package mockbackend

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rhuss/unigen/pkg/provider/openaicompat"
)

func (b *Backend) routeOpenAI(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("GET "+prefix+"/v1/models", func(w http.ResponseWriter, r *http.Request) {
		data := []map[string]any{}
		for _, id := range b.live(b.models) {
			data = append(data, openAIModel(id))
		}
		writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data})
	})
	mux.HandleFunc("GET "+prefix+"/v1/models/{id...}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !b.exists(b.models, id) {
			openAIError(w, http.StatusNotFound, "The model '"+id+"' does not exist")
			return
		}
		writeJSON(w, http.StatusOK, openAIModel(id))
	})
	mux.HandleFunc("DELETE "+prefix+"/v1/models/{id...}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !b.remove(b.models, id) {
			openAIError(w, http.StatusNotFound, "The model '"+id+"' does not exist")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "object": "model", "deleted": true})
	})

	mux.HandleFunc("GET "+prefix+"/v1/files", func(w http.ResponseWriter, r *http.Request) {
		data := []map[string]any{}
		for _, id := range b.live(b.files) {
			data = append(data, openAIFile(id))
		}
		writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data, "has_more": false})
	})
	mux.HandleFunc("GET "+prefix+"/v1/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !b.exists(b.files, id) {
			openAIError(w, http.StatusNotFound, "No such File object: "+id)
			return
		}
		writeJSON(w, http.StatusOK, openAIFile(id))
	})
	mux.HandleFunc("DELETE "+prefix+"/v1/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !b.remove(b.files, id) {
			openAIError(w, http.StatusNotFound, "No such File object: "+id)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "object": "file", "deleted": true})
	})

	mux.HandleFunc("POST "+prefix+"/v1/chat/completions", b.handleChatCompletions)
}

func openAIModel(id string) map[string]any {
	return map[string]any{"id": id, "object": "model", "created": Created, "owned_by": "unigen-mock"}
}

func openAIFile(id string) map[string]any {
	return map[string]any{
		"id": id, "object": "file", "filename": id + ".jsonl", "purpose": "batch",
		"bytes": 1024, "status": "processed", "created_at": Created,
	}
}

func openAIError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"message": msg, "type": "invalid_request_error"}})
}

func (b *Backend) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req openaicompat.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		openAIError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if status := failure(req.Model); status != 0 {
		openAIError(w, status, http.StatusText(status))
		return
	}

	t := turn{}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			t.system = true
		case "user":
			t.prompt = textOf(m.Content)
		case "tool":
			t.toolResult, t.hasResult = textOf(m.Content), true
		}
	}
	for _, tool := range req.Tools {
		t.tools = append(t.tools, tool.Function.Name)
	}
	rep := t.reply()

	if req.Stream {
		b.streamChat(w, req.Model, rep)
		return
	}

	msg := openaicompat.ChatMessage{Role: "assistant"}
	finish := "stop"
	if rep.tool != "" {
		finish = "tool_calls"
		msg.ToolCalls = []openaicompat.ChatToolCall{{
			ID: "call_mock_1", Type: "function",
			Function: openaicompat.ChatFunctionCall{Name: rep.tool, Arguments: rep.args},
		}}
	} else {
		msg.Content = rep.text
	}
	out := len(tokens(rep.text)) + 1
	writeJSON(w, http.StatusOK, openaicompat.ChatCompletionResponse{
		ID:      "chatcmpl-mock",
		Model:   req.Model,
		Choices: []openaicompat.ChatChoice{{Message: msg, FinishReason: finish}},
		Usage:   &openaicompat.ChatUsage{PromptTokens: 10, CompletionTokens: out, TotalTokens: 10 + out},
	})
}

func (b *Backend) streamChat(w http.ResponseWriter, model string, rep reply) {
	f, ok := startSSE(w)
	if !ok {
		return
	}
	chunk := func(delta openaicompat.ChatChunkDelta, finish *string, usage *openaicompat.ChatUsage) {
		writeEvent(w, f, "", openaicompat.ChatCompletionChunk{
			ID:      "chatcmpl-mock-stream",
			Model:   model,
			Choices: []openaicompat.ChatChunkChoice{{Delta: delta, FinishReason: finish}},
			Usage:   usage,
		})
	}

	chunk(openaicompat.ChatChunkDelta{Role: "assistant"}, nil, nil)
	finish := "stop"
	if rep.tool != "" {
		finish = "tool_calls"
		chunk(openaicompat.ChatChunkDelta{ToolCalls: []openaicompat.ChatChunkToolCall{{
			ID: "call_mock_1", Type: "function",
			Function: openaicompat.ChatChunkFunctionCall{Name: rep.tool},
		}}}, nil, nil)
		// Arguments arrive in two fragments, like the real API.
		half := len(rep.args) / 2
		for _, part := range []string{rep.args[:half], rep.args[half:]} {
			chunk(openaicompat.ChatChunkDelta{ToolCalls: []openaicompat.ChatChunkToolCall{{
				Function: openaicompat.ChatChunkFunctionCall{Arguments: part},
			}}}, nil, nil)
		}
	}
	toks := tokens(rep.text)
	for _, tok := range toks {
		chunk(openaicompat.ChatChunkDelta{Content: &tok}, nil, nil)
	}
	chunk(openaicompat.ChatChunkDelta{}, &finish, &openaicompat.ChatUsage{
		PromptTokens: 10, CompletionTokens: len(toks), TotalTokens: 10 + len(toks),
	})
	fmt.Fprint(w, "data: [DONE]\n\n")
	f.Flush()
}

// textOf returns plain string content or the text parts of a content array.
func textOf(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		s := ""
		for _, part := range v {
			if m, ok := part.(map[string]any); ok {
				if text, ok := m["text"].(string); ok {
					s += text
				}
			}
		}
		return s
	}
	return ""
}
