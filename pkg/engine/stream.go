package engine

import (
	"context"
	"strings"
	"sync"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/debug"
	"github.com/rhuss/unigen/pkg/provider"
	"github.com/rhuss/unigen/pkg/stream"
)

// Stream performs a streamed generation. Errors before the first event,
// including retryable ones, are returned directly; once events flow the
// stream is never retried and failures arrive as error events.
//
// With executors configured the stream spans several model turns: tool
// calls are executed between turns and reported as tool_result status
// events, and only the final turn's completion is delivered.
//
// Callers must cancel ctx when they stop reading.
func (e *Engine) Stream(ctx context.Context, providerName string, req *api.GenerateRequest) (<-chan api.StreamEvent, error) {
	p, turnReq, err := e.prepare(ctx, providerName, provider.OpStream, req)
	if err != nil {
		return nil, err
	}
	first, err := e.openStream(ctx, p, turnReq)
	if err != nil {
		return nil, err
	}
	if len(e.cfg.Executors) == 0 || !p.Capabilities().ToolCalling {
		return first, nil
	}

	out := make(chan api.StreamEvent)
	go e.forwardTurns(ctx, p, turnReq, first, out)
	return out, nil
}

func (e *Engine) openStream(ctx context.Context, p provider.Provider, req *api.GenerateRequest) (<-chan api.StreamEvent, error) {
	s := p.(provider.Streamer)
	return call(ctx, e, p, provider.OpStream, func(ctx context.Context) (<-chan api.StreamEvent, error) {
		return s.Stream(ctx, req)
	})
}

// forwardTurns relays in to out and runs the tool loop between turns.
// Sequence numbers are renumbered across turns.
func (e *Engine) forwardTurns(ctx context.Context, p provider.Provider, req *api.GenerateRequest, in <-chan api.StreamEvent, out chan<- api.StreamEvent) {
	defer close(out)

	seq := 0
	send := func(ev api.StreamEvent) bool {
		seq++
		ev.Sequence = seq
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	conv := req.Conversation()
	turnReq := *req
	for turn := 1; ; turn++ {
		var (
			calls []api.ToolCall
			text  strings.Builder
			held  bool
		)
		for ev := range in {
			switch ev.Kind {
			case api.EventToolCallCompleted:
				if ev.ToolCall != nil {
					tc := *ev.ToolCall
					if tc.ID == "" {
						tc.ID = api.NewCallID()
					}
					ev.ToolCall = &tc
					calls = append(calls, tc)
				}
			case api.EventTextDelta:
				text.WriteString(ev.Delta)
			case api.EventStatusChanged:
				if turn > 1 && ev.Status == api.StatusStarted {
					continue
				}
				if ev.Status == api.StatusCompleted && len(calls) > 0 &&
					e.handlesAll(calls) && turn < e.cfg.maxTurns() {
					held = true
					continue
				}
			}
			if !send(ev) {
				go drain(in)
				return
			}
		}
		if !held {
			return
		}

		debug.Log("engine", "executing tools between stream turns",
			"provider", p.Name(), "turn", turn, "calls", len(calls))
		results, err := e.executeTools(ctx, calls)
		if err != nil {
			return
		}
		for _, r := range results {
			if !send(api.StatusEvent(api.StatusToolResult, r.CallID)) {
				return
			}
		}

		conv = appendTurn(conv, text.String(), calls, results)
		turnReq.System, turnReq.Prompt, turnReq.Messages = "", "", conv

		next, err := e.openStream(ctx, p, &turnReq)
		if err != nil {
			if ctx.Err() == nil {
				send(api.ErrorEvent(asAPIError(err)))
			}
			return
		}
		in = next
	}
}

func drain(ch <-chan api.StreamEvent) {
	for range ch {
	}
}

func asAPIError(err error) *api.APIError {
	if apiErr, ok := api.AsAPIError(err); ok {
		return apiErr
	}
	return api.NewServerError(err.Error())
}

// Task is a streamed generation run on behalf of a caller.
type Task struct {
	// ID identifies the task for cancellation. Empty assigns a new one.
	ID       string
	Provider string
	Request  *api.GenerateRequest
}

// RunTask streams t to listeners through a dispatcher and returns the
// collected result. Listener failures are isolated and reported in the
// summary. Cancelling ctx, or CancelTask with the task id, stops delivery
// and abandons the transport request; the partial result is returned
// with the context error. An id that is already running is rejected.
func (e *Engine) RunTask(ctx context.Context, t Task, listeners ...stream.Listener) (*api.GenerateResult, stream.Summary, error) {
	if t.ID == "" {
		t.ID = api.NewTaskID()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !e.tasks.add(t.ID, cancel) {
		return nil, stream.Summary{}, api.NewInvalidRequestError("task_id", "task "+t.ID+" is already running")
	}
	defer e.tasks.remove(t.ID)

	events, err := e.Stream(ctx, t.Provider, t.Request)
	if err != nil {
		return nil, stream.Summary{}, err
	}

	d := stream.NewDispatcher()
	col := stream.NewCollector()
	d.Subscribe(col)
	for _, l := range listeners {
		d.Subscribe(stream.Tag(t.ID, l))
	}

	sum, err := d.Run(ctx, events, cancel)
	res := col.Result(t.Provider, t.Request.Model)
	res.ID = t.ID
	return res, sum, err
}

// CancelTask cancels a running task. It reports whether the id was known.
func (e *Engine) CancelTask(id string) bool {
	return e.tasks.cancel(id)
}

// RunningTasks returns the ids of tasks in flight.
func (e *Engine) RunningTasks() []string {
	return e.tasks.ids()
}

type taskSet struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// add registers id and reports false when it is already taken.
func (s *taskSet) add(id string, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.cancels[id]; taken {
		return false
	}
	if s.cancels == nil {
		s.cancels = make(map[string]context.CancelFunc)
	}
	s.cancels[id] = cancel
	return true
}

func (s *taskSet) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancels, id)
}

func (s *taskSet) cancel(id string) bool {
	s.mu.Lock()
	c, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		c()
	}
	return ok
}

func (s *taskSet) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.cancels))
	for id := range s.cancels {
		ids = append(ids, id)
	}
	return ids
}
