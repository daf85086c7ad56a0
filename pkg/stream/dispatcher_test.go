package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/observability"
)

func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting metric: %v", err)
	}
	if err := c.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func recorder(log *[]string, name string) Listener {
	return ListenerFunc(func(_ context.Context, ev api.StreamEvent) error {
		*log = append(*log, name+":"+string(ev.Kind))
		return nil
	})
}

func TestPublishRegistrationOrderAndKinds(t *testing.T) {
	d := NewDispatcher()
	var log []string
	d.Subscribe(recorder(&log, "all"))
	d.Subscribe(recorder(&log, "text"), api.EventTextDelta)
	d.Subscribe(recorder(&log, "tools"), api.EventToolCallStarted, api.EventToolCallCompleted)

	ctx := context.Background()
	for _, ev := range []api.StreamEvent{
		api.TextDeltaEvent("hi"),
		api.ToolCallStartedEvent(api.ToolCall{ID: "call_1", Name: "lookup"}),
		api.StatusEvent(api.StatusCompleted, ""),
	} {
		if err := d.Publish(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{
		"all:text_delta", "text:text_delta",
		"all:tool_call_started", "tools:tool_call_started",
		"all:status_changed",
	}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("log[%d] = %q, want %q", i, log[i], want[i])
		}
	}
}

func TestPublishIsolatesFailingListeners(t *testing.T) {
	tests := []struct {
		name    string
		bad     Listener
		reason  string
		panicky bool
	}{
		{
			name:   "error",
			bad:    ListenerFunc(func(context.Context, api.StreamEvent) error { return errors.New("boom") }),
			reason: "error",
		},
		{
			name:    "panic",
			bad:     ListenerFunc(func(context.Context, api.StreamEvent) error { panic("listener exploded") }),
			reason:  "panic",
			panicky: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := counterValue(t, observability.ListenerFailuresTotal, string(api.EventAudio), tt.reason)

			d := NewDispatcher()
			var got int
			d.Subscribe(ListenerFunc(func(context.Context, api.StreamEvent) error { got++; return nil }))
			h := d.Subscribe(tt.bad)
			d.Subscribe(ListenerFunc(func(context.Context, api.StreamEvent) error { got++; return nil }))

			failures, err := d.deliver(context.Background(), api.AudioEvent(api.AudioChunk, "mp3", []byte{1}))
			if err != nil {
				t.Fatal(err)
			}
			if got != 2 {
				t.Errorf("healthy listeners saw %d events, want 2", got)
			}
			if len(failures) != 1 || failures[0].Handle != h || failures[0].Panicked != tt.panicky {
				t.Errorf("failures = %+v", failures)
			}
			after := counterValue(t, observability.ListenerFailuresTotal, string(api.EventAudio), tt.reason)
			if after-before != 1 {
				t.Errorf("failure counter delta = %v", after-before)
			}
		})
	}
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	var n int
	h := d.Subscribe(ListenerFunc(func(context.Context, api.StreamEvent) error { n++; return nil }))
	_ = d.Publish(context.Background(), api.TextDeltaEvent("a"))

	if !d.Unsubscribe(h) {
		t.Fatal("Unsubscribe returned false")
	}
	if d.Unsubscribe(h) {
		t.Error("second Unsubscribe returned true")
	}
	_ = d.Publish(context.Background(), api.TextDeltaEvent("b"))
	if n != 1 || d.Len() != 0 {
		t.Errorf("n = %d, len = %d", n, d.Len())
	}
}

func TestPublishAfterCancel(t *testing.T) {
	d := NewDispatcher()
	var n int
	d.Subscribe(ListenerFunc(func(context.Context, api.StreamEvent) error { n++; return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Publish(ctx, api.TextDeltaEvent("late")); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	if n != 0 {
		t.Errorf("listener saw %d events after cancellation", n)
	}
}

func feed(events ...api.StreamEvent) <-chan api.StreamEvent {
	ch := make(chan api.StreamEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestRunCompleted(t *testing.T) {
	d := NewDispatcher()
	c := NewCollector()
	d.Subscribe(c)
	d.Subscribe(ListenerFunc(func(context.Context, api.StreamEvent) error { return errors.New("flaky") }), api.EventTextDelta)

	sum, err := d.Run(context.Background(), feed(
		api.StatusEvent(api.StatusStarted, ""),
		api.TextDeltaEvent("Hello"),
		api.TextDeltaEvent(", world"),
		api.StatusEvent(api.StatusCompleted, "stop"),
	), nil)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Events != 4 || sum.ByKind[api.EventTextDelta] != 2 || sum.Status != api.StatusCompleted {
		t.Errorf("summary = %+v", sum)
	}
	if len(sum.Failures) != 2 {
		t.Errorf("failures = %d, want 2", len(sum.Failures))
	}
	if c.Text() != "Hello, world" {
		t.Errorf("text = %q", c.Text())
	}
}

func TestRunErrorEvent(t *testing.T) {
	d := NewDispatcher()
	c := NewCollector()
	d.Subscribe(c)

	upstream := api.NewTransportError("openai", "stream", 502, "bad gateway")
	var cancelled atomic.Bool
	sum, err := d.Run(context.Background(), feed(
		api.StatusEvent(api.StatusStarted, ""),
		api.TextDeltaEvent("partial"),
		api.ErrorEvent(upstream),
	), func() { cancelled.Store(true) })

	if !api.IsType(err, api.ErrorTypeTransport) {
		t.Fatalf("err = %v", err)
	}
	if sum.Status != api.StatusFailed || sum.Err != upstream || sum.Cancelled {
		t.Errorf("summary = %+v", sum)
	}
	if c.Text() != "partial" {
		t.Errorf("partial text lost: %q", c.Text())
	}
	if !cancelled.Load() {
		t.Error("transport not released after terminal event")
	}
}

func TestRunCancellationStopsDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	produced := make(chan api.StreamEvent)
	transportCtx, abandonTransport := context.WithCancel(context.Background())
	go func() {
		defer close(produced)
		for {
			select {
			case produced <- api.TextDeltaEvent("w"):
			case <-transportCtx.Done():
				return
			}
		}
	}()

	d := NewDispatcher()
	c := NewCollector()
	d.Subscribe(c)
	var seen atomic.Int32
	d.Subscribe(ListenerFunc(func(context.Context, api.StreamEvent) error {
		if seen.Add(1) == 3 {
			cancel()
		}
		return nil
	}))

	sum, err := d.Run(ctx, produced, abandonTransport)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if !sum.Cancelled || sum.Status != api.StatusCancelled {
		t.Errorf("summary = %+v", sum)
	}
	if got := seen.Load(); got != 3 {
		t.Errorf("listener saw %d events, want 3", got)
	}
	if c.Text() != "www" {
		t.Errorf("partial text = %q", c.Text())
	}
	if transportCtx.Err() == nil {
		t.Error("transport context not cancelled")
	}
}
