package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/stream"
)

func fastConfig(retries int) Config {
	return Config{
		BaseTimeout:    40 * time.Millisecond,
		RetryIncrement: 20 * time.Millisecond,
		MaxRetries:     retries,
	}
}

// waitPending polls until one approval is pending and returns it. It
// runs on helper goroutines, so it reports with Error rather than Fatal.
func waitPending(t *testing.T, g *Gate) Approval {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p := g.Pending(); len(p) > 0 {
			return p[0]
		}
		time.Sleep(time.Millisecond)
	}
	t.Error("no pending approval")
	return Approval{}
}

func TestAwaitRespond(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		state  State
	}{
		{"approve", ActionApprove, StateApproved},
		{"deny", ActionDeny, StateDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(Config{BaseTimeout: time.Second, MaxRetries: 1})
			go func() {
				a := waitPending(t, g)
				if err := g.Respond(a.ID, tt.action); err != nil {
					t.Errorf("Respond: %v", err)
				}
			}()

			out, err := g.Await(context.Background(), Request{Tool: "delete_repo", Server: "github"})
			if err != nil {
				t.Fatal(err)
			}
			if out.Action != tt.action || out.State != tt.state || out.Defaulted || out.Timeout != nil {
				t.Errorf("outcome = %+v", out)
			}
			if len(g.Pending()) != 0 {
				t.Error("approval still pending")
			}
			a, ok := g.Get(out.ID)
			if !ok || a.State != tt.state || a.Decision != tt.action {
				t.Errorf("Get = %+v, %v", a, ok)
			}
		})
	}
}

func TestAwaitUnansweredResolvesAfterRetries(t *testing.T) {
	cfg := fastConfig(2)
	g := NewGate(cfg)

	start := time.Now()
	out, err := g.Await(context.Background(), Request{Tool: "unknown_tool"})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatal(err)
	}

	if out.State != StateResolved || out.Action != ActionDeny || !out.Defaulted || out.Retries != 2 {
		t.Errorf("outcome = %+v", out)
	}
	if !api.IsType(out.Timeout, api.ErrorTypeApprovalTimeout) {
		t.Errorf("timeout = %v", out.Timeout)
	}

	want := cfg.MaxWait()
	if elapsed < want || elapsed > want+250*time.Millisecond {
		t.Errorf("elapsed = %v, want about %v", elapsed, want)
	}

	a, _ := g.Get(out.ID)
	states := make([]State, len(a.History))
	for i, tr := range a.History {
		states[i] = tr.State
	}
	wantStates := []State{
		StatePending, StateTimedOut, StateRetried,
		StatePending, StateTimedOut, StateRetried,
		StatePending, StateTimedOut, StateResolved,
	}
	if !equalStates(states, wantStates) {
		t.Errorf("history = %v", states)
	}

	// Each retry extends the previous deadline.
	if got := a.Deadline.Sub(a.CreatedAt); got != want {
		t.Errorf("final deadline offset = %v, want %v", got, want)
	}
	if got := a.History[3].Deadline.Sub(a.CreatedAt); got != cfg.BaseTimeout+cfg.RetryIncrement {
		t.Errorf("second window deadline offset = %v", got)
	}
}

func equalStates(a, b []State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAwaitConfiguredDefault(t *testing.T) {
	cfg := fastConfig(0)
	cfg.Defaults = map[string]Action{"read_file": ActionApprove}
	g := NewGate(cfg)

	out, err := g.Await(context.Background(), Request{Tool: "read_file"})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Approved() || !out.Defaulted || out.Retries != 0 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestScriptedResponderAnswersAfterRetry(t *testing.T) {
	script := NewScripted(Silent, Answer{Action: ActionApprove})
	g := NewGate(fastConfig(3), WithResponder(script))

	out, err := g.Await(context.Background(), Request{Tool: "send_email"})
	if err != nil {
		t.Fatal(err)
	}
	if out.State != StateApproved || out.Retries != 1 || out.Defaulted {
		t.Errorf("outcome = %+v", out)
	}
	if script.Asked() != 2 || script.Remaining() != 0 {
		t.Errorf("asked = %d remaining = %d", script.Asked(), script.Remaining())
	}
}

func TestAutoResponders(t *testing.T) {
	tests := []struct {
		name string
		r    Responder
		want Action
	}{
		{"approve", AutoApprove{}, ActionApprove},
		{"deny", AutoDeny{}, ActionDeny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(Config{BaseTimeout: time.Second}, WithResponder(tt.r))
			out, err := g.Await(context.Background(), Request{Tool: "x"})
			if err != nil {
				t.Fatal(err)
			}
			if out.Action != tt.want || out.Defaulted {
				t.Errorf("outcome = %+v", out)
			}
		})
	}
}

func TestAwaitCancelled(t *testing.T) {
	g := NewGate(Config{BaseTimeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		waitPending(t, g)
		cancel()
	}()

	_, err := g.Await(ctx, Request{Tool: "x"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if len(g.Pending()) != 0 {
		t.Error("cancelled approval still pending")
	}
}

func TestAwaitRequiresTool(t *testing.T) {
	g := NewGate(DefaultConfig())
	_, err := g.Await(context.Background(), Request{})
	if !api.IsType(err, api.ErrorTypeInvalidRequest) {
		t.Errorf("err = %v", err)
	}
}

func TestRespondErrors(t *testing.T) {
	g := NewGate(Config{BaseTimeout: time.Second}, WithResponder(AutoApprove{}))
	out, err := g.Await(context.Background(), Request{Tool: "x"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		id     string
		action Action
		want   api.ErrorType
	}{
		{"unknown id", "appr_missing", ActionApprove, api.ErrorTypeNotFound},
		{"bad action", out.ID, Action("maybe"), api.ErrorTypeInvalidRequest},
		{"already decided", out.ID, ActionDeny, api.ErrorTypeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := g.Respond(tt.id, tt.action); !api.IsType(err, tt.want) {
				t.Errorf("err = %v, want %s", err, tt.want)
			}
		})
	}
}

func TestEventNotifier(t *testing.T) {
	var mu sync.Mutex
	var statuses []string
	l := stream.ListenerFunc(func(_ context.Context, ev api.StreamEvent) error {
		mu.Lock()
		defer mu.Unlock()
		if ev.Kind != api.EventStatusChanged || !api.ValidateApprovalID(ev.Detail) {
			t.Errorf("event = %+v", ev)
		}
		statuses = append(statuses, ev.Status)
		return nil
	})

	g := NewGate(fastConfig(1), WithNotifier(EventNotifier(l)), WithResponder(NewScripted(Silent, Answer{Action: ActionDeny})))
	if _, err := g.Await(context.Background(), Request{Tool: "x"}); err != nil {
		t.Fatal(err)
	}

	want := []string{"pending", "timed_out", "retried", "pending", "denied"}
	mu.Lock()
	defer mu.Unlock()
	if len(statuses) != len(want) {
		t.Fatalf("statuses = %v", statuses)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("statuses[%d] = %q, want %q", i, statuses[i], want[i])
		}
	}
}

func TestRetainBoundsFinished(t *testing.T) {
	g := NewGate(Config{BaseTimeout: time.Second, Retain: 2}, WithResponder(AutoApprove{}))
	var ids []string
	for range 3 {
		out, err := g.Await(context.Background(), Request{Tool: "x"})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, out.ID)
	}
	if _, ok := g.Get(ids[0]); ok {
		t.Error("oldest approval should be evicted")
	}
	if _, ok := g.Get(ids[2]); !ok {
		t.Error("newest approval missing")
	}
}

// An answer accepted after the timer fired, but before the gate marked the
// request TimedOut, must decide the request rather than be dropped.
func TestExpireHonorsAnswerAcceptedAtDeadline(t *testing.T) {
	tests := []struct {
		name      string
		answer    Action
		wantOK    bool
		wantState State
	}{
		{name: "answer in flight", answer: ActionApprove, wantOK: true, wantState: StatePending},
		{name: "no answer", wantState: StateTimedOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(fastConfig(0))
			e := &entry{
				approval: Approval{ID: api.NewApprovalID(), Request: Request{Tool: "delete_repo"}, State: StatePending},
				answer:   make(chan Action, 1),
			}
			g.mu.Lock()
			g.pending[e.approval.ID] = e
			g.mu.Unlock()

			if tt.answer != "" {
				if err := g.Respond(e.approval.ID, tt.answer); err != nil {
					t.Fatalf("Respond: %v", err)
				}
			}
			action, ok := g.expire(context.Background(), e)
			if ok != tt.wantOK || action != tt.answer {
				t.Errorf("expire = %q, %v", action, ok)
			}
			if got, _ := g.Get(e.approval.ID); got.State != tt.wantState {
				t.Errorf("state = %q, want %q", got.State, tt.wantState)
			}
			if !tt.wantOK {
				if err := g.Respond(e.approval.ID, ActionApprove); err == nil {
					t.Error("Respond accepted an answer after the deadline")
				}
			}
		})
	}
}
