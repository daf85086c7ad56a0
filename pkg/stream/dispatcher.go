package stream

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/debug"
	"github.com/rhuss/unigen/pkg/observability"
)

// Listener receives stream events. A returned error is recorded as a
// listener failure and does not affect other listeners.
type Listener interface {
	OnEvent(ctx context.Context, ev api.StreamEvent) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, ev api.StreamEvent) error

// OnEvent calls f(ctx, ev).
func (f ListenerFunc) OnEvent(ctx context.Context, ev api.StreamEvent) error {
	return f(ctx, ev)
}

// Handle identifies a subscription.
type Handle uint64

// Failure describes one listener that failed to handle an event.
type Failure struct {
	Handle   Handle
	Kind     api.EventKind
	Sequence int
	Err      error
	Panicked bool
}

type subscription struct {
	handle   Handle
	kinds    []api.EventKind // empty means every kind
	listener Listener
}

func (s subscription) wants(kind api.EventKind) bool {
	return len(s.kinds) == 0 || slices.Contains(s.kinds, kind)
}

// Dispatcher routes events to subscribed listeners. It is safe for
// concurrent use; subscriptions changed during a Publish take effect on
// the next event.
type Dispatcher struct {
	mu   sync.RWMutex
	next Handle
	subs []subscription
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Subscribe registers l for the given kinds, or for every kind when none
// are given.
func (d *Dispatcher) Subscribe(l Listener, kinds ...api.EventKind) Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.subs = append(d.subs, subscription{
		handle:   d.next,
		kinds:    slices.Clone(kinds),
		listener: l,
	})
	return d.next
}

// Unsubscribe removes a subscription. It reports whether h was registered.
func (d *Dispatcher) Unsubscribe(h Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := slices.IndexFunc(d.subs, func(s subscription) bool { return s.handle == h })
	if i < 0 {
		return false
	}
	d.subs = slices.Delete(d.subs, i, i+1)
	return true
}

// Len returns the number of subscriptions.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Publish delivers ev to every listener subscribed to its kind. Listener
// failures are logged and counted but never returned. The only error is
// the context error, returned when ctx is done before delivery finished;
// listeners after that point do not see the event.
func (d *Dispatcher) Publish(ctx context.Context, ev api.StreamEvent) error {
	_, err := d.deliver(ctx, ev)
	return err
}

func (d *Dispatcher) deliver(ctx context.Context, ev api.StreamEvent) ([]Failure, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	subs := make([]subscription, len(d.subs))
	copy(subs, d.subs)
	d.mu.RUnlock()

	observability.StreamEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	debug.Log("stream", "dispatch", "kind", ev.Kind, "sequence", ev.Sequence, "listeners", len(subs))

	var failures []Failure
	for _, s := range subs {
		if !s.wants(ev.Kind) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		if f, failed := invoke(ctx, s, ev); failed {
			failures = append(failures, f)
		}
	}
	return failures, nil
}

// invoke calls one listener, converting a panic into a failure.
func invoke(ctx context.Context, s subscription, ev api.StreamEvent) (f Failure, failed bool) {
	f = Failure{Handle: s.handle, Kind: ev.Kind, Sequence: ev.Sequence}
	defer func() {
		if r := recover(); r != nil {
			f.Err = fmt.Errorf("listener panic: %v", r)
			f.Panicked = true
			failed = true
			record(f)
		}
	}()
	if err := s.listener.OnEvent(ctx, ev); err != nil {
		f.Err = err
		record(f)
		return f, true
	}
	return f, false
}

func record(f Failure) {
	reason := "error"
	if f.Panicked {
		reason = "panic"
	}
	observability.ListenerFailuresTotal.WithLabelValues(string(f.Kind), reason).Inc()
	slog.Warn("stream listener failed",
		"kind", f.Kind,
		"sequence", f.Sequence,
		"listener", f.Handle,
		"reason", reason,
		"error", f.Err,
	)
}
