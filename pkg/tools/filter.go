package tools

import "github.com/rhuss/unigen/pkg/api"

// FilterResult holds the outcome of filtering tool calls against an allow list.
type FilterResult struct {
	// Allowed contains tool calls that passed the filter.
	Allowed []api.ToolCall

	// Rejected contains error results for calls that were not allowed,
	// to be fed back to the model.
	Rejected []Result
}

// FilterAllowedTools checks each tool call against the allowed list.
// If allowedTools is empty or nil, all tool calls are allowed.
func FilterAllowedTools(calls []api.ToolCall, allowedTools []string) FilterResult {
	if len(allowedTools) == 0 {
		return FilterResult{Allowed: calls}
	}

	allowed := make(map[string]bool, len(allowedTools))
	for _, name := range allowedTools {
		allowed[name] = true
	}

	var result FilterResult
	for _, call := range calls {
		if allowed[call.Name] {
			result.Allowed = append(result.Allowed, call)
			continue
		}
		result.Rejected = append(result.Rejected, Result{
			CallID:  call.ID,
			Output:  "tool " + call.Name + " is not in the allowed tools list",
			IsError: true,
		})
	}
	return result
}
