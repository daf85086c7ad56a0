package task

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// Step is one unit of a sequence. Every builder is a Step.
type Step interface {
	run(ctx context.Context, prev any) (any, error)
}

// StepFunc adapts a function to a Step. prev is the result of the
// preceding step, nil for the first.
type StepFunc func(ctx context.Context, prev any) (any, error)

func (f StepFunc) run(ctx context.Context, prev any) (any, error) { return f(ctx, prev) }

// SequenceBuilder runs steps one after another.
type SequenceBuilder struct {
	steps []Step
	delay time.Duration
}

// Sequence chains steps. Step N+1 starts only after step N returned.
func Sequence(steps ...Step) SequenceBuilder {
	return SequenceBuilder{steps: slices.Clone(steps)}
}

// Then appends a step.
func (s SequenceBuilder) Then(step Step) SequenceBuilder {
	s.steps = append(slices.Clip(s.steps), step)
	return s
}

// Delay pauses between consecutive steps.
func (s SequenceBuilder) Delay(d time.Duration) SequenceBuilder {
	s.delay = d
	return s
}

// Len returns the number of steps.
func (s SequenceBuilder) Len() int { return len(s.steps) }

// Execute runs the steps in order and returns their results. It stops at
// the first failing step, returning the results so far. Cancellation is
// checked before every step and during delays; once observed no further
// step starts.
func (s SequenceBuilder) Execute(ctx context.Context) ([]any, error) {
	results := make([]any, 0, len(s.steps))
	var prev any
	for i, step := range s.steps {
		if i > 0 && s.delay > 0 {
			t := time.NewTimer(s.delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return results, ctx.Err()
			case <-t.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		v, err := step.run(ctx, prev)
		if err != nil {
			slog.Debug("sequence step failed", "step", i+1, "of", len(s.steps), "error", err)
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		results = append(results, v)
		prev = v
	}
	return results, nil
}

func (s SequenceBuilder) run(ctx context.Context, _ any) (any, error) {
	return s.Execute(ctx)
}
