package api

import (
	"strings"
	"testing"
)

func TestNewTaskID(t *testing.T) {
	id := NewTaskID()
	if !ValidateTaskID(id) {
		t.Errorf("NewTaskID() = %q, want valid task ID", id)
	}
}

func TestNewApprovalID(t *testing.T) {
	id := NewApprovalID()
	if !ValidateApprovalID(id) {
		t.Errorf("NewApprovalID() = %q, want valid approval ID", id)
	}
}

func TestNewCallIDPrefix(t *testing.T) {
	if id := NewCallID(); !strings.HasPrefix(id, "call_") || len(id) != 29 {
		t.Errorf("NewCallID() = %q", id)
	}
}

func TestValidateTaskID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"valid", "task_abcdefghijklmnopqrstuvwx", true},
		{"valid digits", "task_123456789012345678901234", true},
		{"wrong prefix", "appr_abcdefghijklmnopqrstuvwx", false},
		{"too short", "task_abc", false},
		{"special chars", "task_abcdefghijklmnopqrstuv!@", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateTaskID(tt.id); got != tt.want {
				t.Errorf("ValidateTaskID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		id := NewApprovalID()
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}
