package approval

import (
	"context"
	"sync"
	"time"
)

// Responder decides on approvals without going through Respond. ok is
// false when the responder stays silent and lets the window run out.
type Responder interface {
	Decide(ctx context.Context, a Approval) (action Action, ok bool, err error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, a Approval) (Action, bool, error)

// Decide calls f(ctx, a).
func (f ResponderFunc) Decide(ctx context.Context, a Approval) (Action, bool, error) {
	return f(ctx, a)
}

// AutoApprove approves every request. Meant for CI and local demos.
type AutoApprove struct{}

// Decide implements Responder.
func (AutoApprove) Decide(context.Context, Approval) (Action, bool, error) {
	return ActionApprove, true, nil
}

// AutoDeny denies every request.
type AutoDeny struct{}

// Decide implements Responder.
func (AutoDeny) Decide(context.Context, Approval) (Action, bool, error) {
	return ActionDeny, true, nil
}

// Answer is one scripted reply. A zero Action means no reply for that
// window. Delay postpones the reply.
type Answer struct {
	Action Action
	Delay  time.Duration
}

// Silent is a scripted non-answer.
var Silent = Answer{}

// Scripted replays a fixed queue of answers, one per Pending window.
// Once the queue is empty it stays silent.
type Scripted struct {
	mu      sync.Mutex
	answers []Answer
	asked   int
}

// NewScripted creates a scripted responder.
func NewScripted(answers ...Answer) *Scripted {
	return &Scripted{answers: answers}
}

// Decide implements Responder.
func (s *Scripted) Decide(ctx context.Context, _ Approval) (Action, bool, error) {
	s.mu.Lock()
	s.asked++
	if len(s.answers) == 0 {
		s.mu.Unlock()
		return "", false, nil
	}
	next := s.answers[0]
	s.answers = s.answers[1:]
	s.mu.Unlock()

	if next.Action == "" {
		return "", false, nil
	}
	if next.Delay > 0 {
		t := time.NewTimer(next.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
	return next.Action, true, nil
}

// Asked returns how many windows the responder was consulted for.
func (s *Scripted) Asked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asked
}

// Remaining returns the number of unused answers.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}
