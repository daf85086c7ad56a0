package api

import (
	"testing"
)

func ptr[T any](v T) *T { return &v }

func TestValidateGenerateRequest(t *testing.T) {
	cfg := DefaultValidationConfig()
	tests := []struct {
		name      string
		req       *GenerateRequest
		wantParam string
	}{
		{"valid prompt", &GenerateRequest{Model: "m", Prompt: "hi"}, ""},
		{"valid messages", &GenerateRequest{Model: "m", Messages: []Message{{Role: RoleUser, Content: "hi"}}}, ""},
		{"nil request", nil, "request"},
		{"missing model", &GenerateRequest{Prompt: "hi"}, "model"},
		{"missing input", &GenerateRequest{Model: "m"}, "prompt"},
		{"bad role", &GenerateRequest{Model: "m", Messages: []Message{{Role: "robot"}}}, "messages[0].role"},
		{"unnamed tool", &GenerateRequest{Model: "m", Prompt: "x", Tools: []ToolDefinition{{}}}, "tools[0].name"},
		{"zero max tokens", &GenerateRequest{Model: "m", Prompt: "x", MaxTokens: ptr(0)}, "max_tokens"},
		{"temperature high", &GenerateRequest{Model: "m", Prompt: "x", Temperature: ptr(2.5)}, "temperature"},
		{"top_p negative", &GenerateRequest{Model: "m", Prompt: "x", TopP: ptr(-0.1)}, "top_p"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGenerateRequest(tt.req, cfg)
			if tt.wantParam == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error on %s", tt.wantParam)
			}
			if err.Type != ErrorTypeInvalidRequest || err.Param != tt.wantParam {
				t.Errorf("got %s/%s, want invalid_request/%s", err.Type, err.Param, tt.wantParam)
			}
		})
	}
}

func TestConversationOrder(t *testing.T) {
	req := &GenerateRequest{
		System:   "be brief",
		Messages: []Message{{Role: RoleAssistant, Content: "earlier"}},
		Prompt:   "now",
	}
	msgs := req.Conversation()
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	wantRoles := []string{RoleSystem, RoleAssistant, RoleUser}
	for i, m := range msgs {
		if m.Role != wantRoles[i] {
			t.Errorf("msgs[%d].Role = %s, want %s", i, m.Role, wantRoles[i])
		}
	}
}

func TestTerminalEvents(t *testing.T) {
	tests := []struct {
		ev   StreamEvent
		want bool
	}{
		{TextDeltaEvent("x"), false},
		{StatusEvent(StatusStarted, ""), false},
		{StatusEvent(StatusCompleted, ""), true},
		{StatusEvent(StatusCancelled, ""), true},
		{ErrorEvent(NewServerError("x")), true},
		{AudioEvent(AudioCompleted, "mp3", nil), false},
	}
	for _, tt := range tests {
		if got := tt.ev.IsTerminal(); got != tt.want {
			t.Errorf("%s/%s IsTerminal() = %v, want %v", tt.ev.Kind, tt.ev.Status, got, tt.want)
		}
	}
}

func TestNewPageBoundaries(t *testing.T) {
	p := NewPage([]ModelData{{ID: "a"}, {ID: "b"}, {ID: "c"}}, ModelID)
	if p.Object != "list" || p.FirstID != "a" || p.LastID != "c" {
		t.Errorf("unexpected page: %+v", p)
	}

	empty := NewPage[VoiceData](nil, VoiceID)
	if empty.Data == nil || len(empty.Data) != 0 || empty.FirstID != "" {
		t.Errorf("empty page should have non-nil empty data: %+v", empty)
	}
}
