package stream

import (
	"context"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/debug"
)

// Summary describes a finished Run.
type Summary struct {
	// Events counts events delivered, by kind in ByKind.
	Events int
	ByKind map[api.EventKind]int

	Failures []Failure

	// Cancelled is set when the context ended the run before the stream
	// reached a terminal event.
	Cancelled bool

	// Status is the last generation status seen. A cancelled run reports
	// api.StatusCancelled, a run ended by an error event api.StatusFailed.
	Status string

	// Err is the payload of the terminal error event, if any.
	Err *api.APIError
}

// Run delivers events from the channel until it is closed, a terminal
// event has been delivered, or ctx is done. When ctx is done, cancel is
// called to abandon the transport request, the channel is drained in the
// background and Run returns ctx.Err(). A terminal error event is
// delivered and then returned as the error.
//
// cancel may be nil when the producer already observes ctx.
func (d *Dispatcher) Run(ctx context.Context, events <-chan api.StreamEvent, cancel context.CancelFunc) (Summary, error) {
	sum := Summary{ByKind: make(map[api.EventKind]int)}

	release := func() {
		if cancel != nil {
			cancel()
		}
		go func() {
			for range events {
			}
		}()
	}
	abandon := func() (Summary, error) {
		release()
		sum.Cancelled = true
		sum.Status = api.StatusCancelled
		debug.Log("stream", "run cancelled", "delivered", sum.Events)
		return sum, ctx.Err()
	}

	for {
		select {
		case <-ctx.Done():
			return abandon()
		case ev, ok := <-events:
			if !ok {
				if sum.Status == "" {
					sum.Status = api.StatusCompleted
				}
				return sum, nil
			}
			// Both cases may be ready at once; cancellation wins.
			if ctx.Err() != nil {
				return abandon()
			}

			failures, err := d.deliver(ctx, ev)
			sum.Failures = append(sum.Failures, failures...)
			if err != nil {
				return abandon()
			}
			sum.Events++
			sum.ByKind[ev.Kind]++

			switch ev.Kind {
			case api.EventStatusChanged:
				sum.Status = ev.Status
			case api.EventError:
				sum.Status = api.StatusFailed
				sum.Err = ev.Error
			}
			if ev.IsTerminal() {
				release()
				if sum.Err != nil {
					return sum, sum.Err
				}
				return sum, nil
			}
		}
	}
}
