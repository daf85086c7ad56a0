package approval

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/debug"
	"github.com/rhuss/unigen/pkg/observability"
)

// Outcome is the result of Await.
type Outcome struct {
	ID     string
	Action Action
	// State is Approved, Denied or Resolved.
	State     State
	Retries   int
	Defaulted bool
	Waited    time.Duration
	// Timeout is set when the decision came from the default table.
	Timeout *api.APIError
}

// Approved reports whether the tool call may run.
func (o Outcome) Approved() bool { return o.Action == ActionApprove }

// Notifier is told about every state transition.
type Notifier interface {
	Notify(ctx context.Context, a Approval)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, a Approval)

// Notify calls f(ctx, a).
func (f NotifierFunc) Notify(ctx context.Context, a Approval) { f(ctx, a) }

type entry struct {
	approval Approval
	answer   chan Action
}

// Gate runs the approval state machine for concurrent tool calls.
type Gate struct {
	cfg       Config
	responder Responder
	notifier  Notifier
	now       func() time.Time

	mu      sync.Mutex
	pending map[string]*entry
	done    map[string]Approval
	order   []string // finished ids, oldest first
}

// Option configures a Gate.
type Option func(*Gate)

// WithResponder asks r on every Pending transition. Without a responder
// decisions arrive only through Respond.
func WithResponder(r Responder) Option {
	return func(g *Gate) { g.responder = r }
}

// WithNotifier registers a transition observer.
func WithNotifier(n Notifier) Option {
	return func(g *Gate) { g.notifier = n }
}

// NewGate creates a gate. Zero timing fields fall back to DefaultConfig.
func NewGate(cfg Config, opts ...Option) *Gate {
	def := DefaultConfig()
	if cfg.BaseTimeout <= 0 {
		cfg.BaseTimeout = def.BaseTimeout
	}
	if cfg.RetryIncrement <= 0 {
		cfg.RetryIncrement = def.RetryIncrement
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Retain <= 0 {
		cfg.Retain = def.Retain
	}
	g := &Gate{
		cfg:     cfg,
		now:     time.Now,
		pending: make(map[string]*entry),
		done:    make(map[string]Approval),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Config returns the gate's effective configuration.
func (g *Gate) Config() Config { return g.cfg }

// Await registers req and blocks until it is decided or resolved by
// default. Cancelling ctx while pending abandons the request without a
// decision and returns ctx.Err().
func (g *Gate) Await(ctx context.Context, req Request) (Outcome, error) {
	if req.Tool == "" {
		return Outcome{}, api.NewInvalidRequestError("tool", "tool name is required")
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	start := g.now()
	e := &entry{
		approval: Approval{
			ID:        api.NewApprovalID(),
			Request:   req,
			Deadline:  start.Add(g.cfg.BaseTimeout),
			CreatedAt: start,
		},
		answer: make(chan Action, 1),
	}
	id := e.approval.ID

	g.mu.Lock()
	g.pending[id] = e
	g.mu.Unlock()
	observability.ApprovalsPending.Inc()
	defer observability.ApprovalsPending.Dec()

	slog.Info("approval requested", "approval_id", id, "tool", req.Tool, "server", req.Server)

	answered := func(action Action) (Outcome, error) {
		state := StateApproved
		if action == ActionDeny {
			state = StateDenied
		}
		g.decide(e, action, false)
		g.transition(ctx, e, state)
		g.finish(id)
		return g.outcome(e, start, nil), nil
	}

	window := g.cfg.BaseTimeout
	for {
		g.transition(ctx, e, StatePending)
		g.ask(ctx, e)

		timer := time.NewTimer(window)
		select {
		case <-ctx.Done():
			timer.Stop()
			g.abandon(id)
			debug.Log("approval", "abandoned", "approval_id", id, "error", ctx.Err())
			return Outcome{}, ctx.Err()

		case action := <-e.answer:
			timer.Stop()
			return answered(action)

		case <-timer.C:
			if action, ok := g.expire(ctx, e); ok {
				return answered(action)
			}
		}

		g.mu.Lock()
		retries := e.approval.Retries
		g.mu.Unlock()

		if retries >= g.cfg.MaxRetries {
			action := g.cfg.DefaultFor(req.Tool)
			g.decide(e, action, true)
			g.transition(ctx, e, StateResolved)
			g.finish(id)
			timeout := api.NewApprovalTimeoutError(req.Tool, req.Server, retries)
			slog.Warn("approval resolved by default",
				"approval_id", id, "tool", req.Tool, "retries", retries, "action", action)
			return g.outcome(e, start, timeout), nil
		}

		g.mu.Lock()
		e.approval.Retries++
		e.approval.Deadline = e.approval.Deadline.Add(g.cfg.RetryIncrement)
		g.mu.Unlock()
		g.transition(ctx, e, StateRetried)
		window = g.cfg.RetryIncrement
	}
}

// Respond records a decision for a pending approval. A response is only
// accepted while the approval is Pending, and only the first one counts.
func (g *Gate) Respond(id string, action Action) error {
	if action != ActionApprove && action != ActionDeny {
		return api.NewInvalidRequestError("action", "action must be approve or deny")
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.pending[id]
	if !ok {
		if a, finished := g.done[id]; finished {
			return api.NewInvalidRequestError("id", "approval already "+string(a.State))
		}
		return api.NewNotFoundError("approval " + id + " not found")
	}
	if e.approval.State != StatePending {
		return api.NewInvalidRequestError("id", "approval is "+string(e.approval.State))
	}
	select {
	case e.answer <- action:
	default:
		return api.NewInvalidRequestError("id", "approval already answered")
	}
	debug.Log("approval", "response", "approval_id", id, "action", action)
	return nil
}

// Pending returns snapshots of the undecided approvals, oldest first.
func (g *Gate) Pending() []Approval {
	g.mu.Lock()
	out := make([]Approval, 0, len(g.pending))
	for _, e := range g.pending {
		out = append(out, e.approval.clone())
	}
	g.mu.Unlock()
	slices.SortFunc(out, func(a, b Approval) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// Get returns a pending or recently finished approval.
func (g *Gate) Get(id string) (Approval, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.pending[id]; ok {
		return e.approval.clone(), true
	}
	a, ok := g.done[id]
	return a.clone(), ok
}

func (g *Gate) ask(ctx context.Context, e *entry) {
	if g.responder == nil {
		return
	}
	g.mu.Lock()
	snap := e.approval.clone()
	g.mu.Unlock()
	go func() {
		action, ok, err := g.responder.Decide(ctx, snap)
		if err != nil {
			slog.Warn("approval responder failed", "approval_id", snap.ID, "error", err)
			return
		}
		if !ok {
			return
		}
		if err := g.Respond(snap.ID, action); err != nil {
			debug.Log("approval", "late response dropped", "approval_id", snap.ID, "error", err)
		}
	}()
}

func (g *Gate) decide(e *entry, action Action, defaulted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e.approval.Decision = action
	e.approval.Defaulted = defaulted
}

// expire moves e to TimedOut. An answer that Respond accepted after the
// timer fired but before this point wins and is returned instead.
func (g *Gate) expire(ctx context.Context, e *entry) (Action, bool) {
	g.mu.Lock()
	select {
	case action := <-e.answer:
		g.mu.Unlock()
		return action, true
	default:
	}
	snap := g.setState(e, StateTimedOut)
	g.mu.Unlock()
	g.announce(ctx, snap)
	return "", false
}

func (g *Gate) transition(ctx context.Context, e *entry, s State) {
	g.mu.Lock()
	snap := g.setState(e, s)
	g.mu.Unlock()
	g.announce(ctx, snap)
}

// setState must be called with g.mu held.
func (g *Gate) setState(e *entry, s State) Approval {
	e.approval.State = s
	e.approval.History = append(e.approval.History, Transition{
		State:    s,
		At:       g.now(),
		Deadline: e.approval.Deadline,
		Retry:    e.approval.Retries,
	})
	return e.approval.clone()
}

func (g *Gate) announce(ctx context.Context, snap Approval) {
	s := snap.State
	observability.ApprovalTransitionsTotal.WithLabelValues(snap.Request.Tool, string(s)).Inc()
	debug.Log("approval", "transition", "approval_id", snap.ID, "tool", snap.Request.Tool, "state", s, "retry", snap.Retries)
	if g.notifier != nil {
		g.notifier.Notify(ctx, snap)
	}
}

func (g *Gate) outcome(e *entry, start time.Time, timeout *api.APIError) Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Outcome{
		ID:        e.approval.ID,
		Action:    e.approval.Decision,
		State:     e.approval.State,
		Retries:   e.approval.Retries,
		Defaulted: e.approval.Defaulted,
		Waited:    g.now().Sub(start),
		Timeout:   timeout,
	}
}

func (g *Gate) finish(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.pending[id]
	if !ok {
		return
	}
	delete(g.pending, id)
	g.done[id] = e.approval.clone()
	g.order = append(g.order, id)
	for len(g.order) > g.cfg.Retain {
		delete(g.done, g.order[0])
		g.order = g.order[1:]
	}
}

func (g *Gate) abandon(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, id)
}
