package api

import (
	"encoding/json"
	"fmt"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of a conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolDefinition describes a function the model may call.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall is a model-initiated request to run a tool. Server names the
// tool host when the call is routed to an external tool server.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Server    string `json:"server,omitempty"`
}

// Usage reports token accounting for a generation.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// GenerateRequest is the provider-neutral description of a generation task.
// Voice is used by speech providers. Options carries provider-specific
// parameters passed through as-is.
type GenerateRequest struct {
	Model       string           `json:"model"`
	System      string           `json:"system,omitempty"`
	Prompt      string           `json:"prompt,omitempty"`
	Messages    []Message        `json:"messages,omitempty"`
	Voice       string           `json:"voice,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	TopP        *float64         `json:"top_p,omitempty"`
	MaxTokens   *int             `json:"max_tokens,omitempty"`
	Stop        []string         `json:"stop,omitempty"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Options     map[string]any   `json:"options,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
}

// Conversation returns the request as an ordered message list. System and
// Prompt are folded in as the leading system turn and the trailing user turn.
func (r *GenerateRequest) Conversation() []Message {
	msgs := make([]Message, 0, len(r.Messages)+2)
	if r.System != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: r.System})
	}
	msgs = append(msgs, r.Messages...)
	if r.Prompt != "" {
		msgs = append(msgs, Message{Role: RoleUser, Content: r.Prompt})
	}
	return msgs
}

// GenerateResult is the normalized result of a non-streamed generation.
type GenerateResult struct {
	ID           string     `json:"id"`
	Provider     string     `json:"provider"`
	Model        string     `json:"model"`
	Text         string     `json:"text,omitempty"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	Audio        []byte     `json:"audio,omitempty"`
	AudioFormat  string     `json:"audio_format,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        *Usage     `json:"usage,omitempty"`
}

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxMessages   int
	MaxPromptSize int
	MaxTools      int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxMessages:   1000,
		MaxPromptSize: 1024 * 1024,
		MaxTools:      128,
	}
}

// ValidateGenerateRequest checks a request locally. It returns the first
// failure found, or nil.
func ValidateGenerateRequest(req *GenerateRequest, cfg ValidationConfig) *APIError {
	if req == nil {
		return NewInvalidRequestError("request", "request is required")
	}
	if req.Model == "" {
		return NewInvalidRequestError("model", "model is required")
	}
	if req.Prompt == "" && len(req.Messages) == 0 {
		return NewInvalidRequestError("prompt", "prompt or messages must be set")
	}
	if cfg.MaxMessages > 0 && len(req.Messages) > cfg.MaxMessages {
		return NewInvalidRequestError("messages",
			fmt.Sprintf("messages exceeds maximum of %d", cfg.MaxMessages))
	}
	if cfg.MaxPromptSize > 0 && len(req.Prompt) > cfg.MaxPromptSize {
		return NewInvalidRequestError("prompt",
			fmt.Sprintf("prompt exceeds maximum size of %d bytes", cfg.MaxPromptSize))
	}
	if cfg.MaxTools > 0 && len(req.Tools) > cfg.MaxTools {
		return NewInvalidRequestError("tools",
			fmt.Sprintf("tools exceeds maximum of %d", cfg.MaxTools))
	}
	for i, m := range req.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		default:
			return NewInvalidRequestError(fmt.Sprintf("messages[%d].role", i),
				fmt.Sprintf("unknown role %q", m.Role))
		}
	}
	for i, t := range req.Tools {
		if t.Name == "" {
			return NewInvalidRequestError(fmt.Sprintf("tools[%d].name", i), "tool name is required")
		}
	}
	if req.MaxTokens != nil && *req.MaxTokens <= 0 {
		return NewInvalidRequestError("max_tokens", "max_tokens must be positive")
	}
	if req.Temperature != nil {
		if *req.Temperature < 0.0 || *req.Temperature > 2.0 {
			return NewInvalidRequestError("temperature", "temperature must be between 0.0 and 2.0")
		}
	}
	if req.TopP != nil {
		if *req.TopP < 0.0 || *req.TopP > 1.0 {
			return NewInvalidRequestError("top_p", "top_p must be between 0.0 and 1.0")
		}
	}
	return nil
}
