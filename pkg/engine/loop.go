package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/observability"
	"github.com/rhuss/unigen/pkg/provider"
	"github.com/rhuss/unigen/pkg/tools"
)

// FinishMaxToolTurns is the finish reason when the tool loop stops at
// its turn limit with tool calls still pending.
const FinishMaxToolTurns = "max_tool_turns"

// Generate performs a non-streamed generation. When executors are
// configured, tool calls they can handle are executed and fed back to
// the model until it answers without calling tools. Calls no executor
// handles end the loop and are returned to the caller.
func (e *Engine) Generate(ctx context.Context, providerName string, req *api.GenerateRequest) (*api.GenerateResult, error) {
	p, turnReq, err := e.prepare(ctx, providerName, provider.OpGenerate, req)
	if err != nil {
		return nil, err
	}
	return e.runToolLoop(ctx, p, turnReq)
}

// prepare resolves the provider and validates a generation request. The
// returned request is a copy with the executors' tools merged in.
func (e *Engine) prepare(ctx context.Context, providerName string, op provider.Operation, req *api.GenerateRequest) (provider.Provider, *api.GenerateRequest, error) {
	p, err := e.resolve(providerName)
	if err != nil {
		return nil, nil, err
	}
	if apiErr := api.ValidateGenerateRequest(req, e.cfg.Validation); apiErr != nil {
		return nil, nil, apiErr.WithContext(p.Name(), string(op))
	}
	if !provider.Supports(p, op) {
		return nil, nil, api.NewUnsupportedError(p.Name(), string(op))
	}

	r := *req
	r.Stream = op == provider.OpStream
	r.Tools = e.mergeTools(p, req.Tools)
	if apiErr := provider.ValidateCapabilities(p.Name(), p.Capabilities(), &r); apiErr != nil {
		return nil, nil, apiErr.WithContext(p.Name(), string(op))
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return p, &r, nil
}

// mergeTools appends the allowed executor tools to the request's own
// definitions when the provider can call tools.
func (e *Engine) mergeTools(p provider.Provider, requested []api.ToolDefinition) []api.ToolDefinition {
	if len(e.cfg.Executors) == 0 || !p.Capabilities().ToolCalling {
		return requested
	}
	allowed := make(map[string]bool, len(e.cfg.AllowedTools))
	for _, n := range e.cfg.AllowedTools {
		allowed[n] = true
	}
	seen := make(map[string]bool, len(requested))
	merged := append([]api.ToolDefinition(nil), requested...)
	for _, td := range requested {
		seen[td.Name] = true
	}
	for _, td := range tools.Definitions(e.cfg.Executors) {
		if seen[td.Name] || (len(allowed) > 0 && !allowed[td.Name]) {
			continue
		}
		seen[td.Name] = true
		merged = append(merged, td)
	}
	return merged
}

func (e *Engine) runToolLoop(ctx context.Context, p provider.Provider, req *api.GenerateRequest) (*api.GenerateResult, error) {
	gen := p.(provider.Generator)
	conv := req.Conversation()
	turnReq := *req
	var usage api.Usage

	for turn := 1; ; turn++ {
		res, err := call(ctx, e, p, provider.OpGenerate, func(ctx context.Context) (*api.GenerateResult, error) {
			return gen.Generate(ctx, &turnReq)
		})
		if err != nil {
			return nil, err
		}
		if res.Usage != nil {
			observability.RecordTokens(p.Name(), req.Model, res.Usage.InputTokens, res.Usage.OutputTokens)
			usage.InputTokens += res.Usage.InputTokens
			usage.OutputTokens += res.Usage.OutputTokens
			usage.TotalTokens += res.Usage.TotalTokens
		}
		if turn > 1 {
			res.Usage = &usage
		}

		if len(res.ToolCalls) == 0 || !e.handlesAll(res.ToolCalls) {
			return res, nil
		}
		if turn >= e.cfg.maxTurns() {
			slog.Warn("tool loop reached turn limit",
				"provider", p.Name(),
				"model", req.Model,
				"turns", turn,
			)
			res.FinishReason = FinishMaxToolTurns
			return res, nil
		}

		results, err := e.executeTools(ctx, res.ToolCalls)
		if err != nil {
			return nil, err
		}
		conv = appendTurn(conv, res.Text, res.ToolCalls, results)
		turnReq.System, turnReq.Prompt, turnReq.Messages = "", "", conv
	}
}

// appendTurn adds the assistant's tool-call message followed by one
// tool message per result. The assistant message must come first.
func appendTurn(conv []api.Message, text string, calls []api.ToolCall, results []tools.Result) []api.Message {
	conv = append(conv, api.Message{Role: api.RoleAssistant, Content: text, ToolCalls: calls})
	for i := range results {
		conv = append(conv, results[i].Message())
	}
	return conv
}

// handlesAll reports whether every call has an executor.
func (e *Engine) handlesAll(calls []api.ToolCall) bool {
	if len(e.cfg.Executors) == 0 {
		return false
	}
	for _, c := range calls {
		if tools.Find(e.cfg.Executors, c.Name) == nil {
			return false
		}
	}
	return true
}

// executeTools runs calls and returns results in call order. Calls
// outside the allow list get error results without running. Calls
// without an id are assigned one in place. The only error returned is
// ctx's.
func (e *Engine) executeTools(ctx context.Context, calls []api.ToolCall) ([]tools.Result, error) {
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = api.NewCallID()
		}
	}
	filtered := tools.FilterAllowedTools(calls, e.cfg.AllowedTools)
	byID := make(map[string]tools.Result, len(calls))
	for _, r := range filtered.Rejected {
		byID[r.CallID] = r
	}

	runOne := func(c api.ToolCall) (tools.Result, error) {
		res, err := tools.Run(ctx, tools.Find(e.cfg.Executors, c.Name), c)
		if err != nil {
			return tools.Result{}, err
		}
		return *res, nil
	}

	if e.cfg.SequentialTools {
		for _, c := range filtered.Allowed {
			r, err := runOne(c)
			if err != nil {
				return nil, err
			}
			byID[c.ID] = r
		}
	} else {
		results := make([]tools.Result, len(filtered.Allowed))
		errs := make([]error, len(filtered.Allowed))
		var wg sync.WaitGroup
		for i, c := range filtered.Allowed {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i], errs[i] = runOne(c)
			}()
		}
		wg.Wait()
		for i, c := range filtered.Allowed {
			if errs[i] != nil {
				return nil, errs[i]
			}
			byID[c.ID] = results[i]
		}
	}

	ordered := make([]tools.Result, 0, len(calls))
	for _, c := range calls {
		ordered = append(ordered, byID[c.ID])
	}
	return ordered, nil
}
