package openaicompat

import (
	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/provider/httpclient"
)

// TranslateToChat converts a GenerateRequest into a ChatCompletionRequest
// for the /v1/chat/completions endpoint. model is the already-mapped
// provider model name.
func TranslateToChat(req *api.GenerateRequest, model string, stream bool) ChatCompletionRequest {
	cr := ChatCompletionRequest{
		Model:       model,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
		Stream:      stream,
		Extra:       req.Options,
	}

	// When streaming, enable usage reporting in the stream.
	if stream {
		cr.StreamOptions = &ChatStreamOptions{IncludeUsage: true}
	}

	for _, m := range req.Conversation() {
		cm := ChatMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, ChatToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: ChatFunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		cr.Messages = append(cr.Messages, cm)
	}

	for _, t := range req.Tools {
		cr.Tools = append(cr.Tools, ChatTool{
			Type: "function",
			Function: ChatFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	return cr
}

// TranslateResponse converts a ChatCompletionResponse into a
// GenerateResult. Only choices[0] is used.
func TranslateResponse(providerName string, resp *ChatCompletionResponse) *api.GenerateResult {
	res := &api.GenerateResult{
		ID:       resp.ID,
		Provider: providerName,
		Model:    resp.Model,
	}
	if resp.Usage != nil {
		res.Usage = &api.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}
	if len(resp.Choices) == 0 {
		res.FinishReason = "empty"
		return res
	}

	choice := resp.Choices[0]
	res.FinishReason = choice.FinishReason
	if s, ok := choice.Message.Content.(string); ok {
		res.Text = s
	}
	for _, tc := range choice.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = api.NewCallID()
		}
		res.ToolCalls = append(res.ToolCalls, api.ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: httpclient.RepairArguments(tc.Function.Arguments),
		})
	}
	return res
}
