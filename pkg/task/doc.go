// Package task is the fluent call surface over the engine.
//
// A builder is a value: every setter returns a modified copy and leaves
// the receiver untouched, so a partially configured builder can be reused
// as a template. Nothing runs until Execute, Stream or Pages is called.
//
//	res, err := task.Generate(eng, "openai").
//		Model("gpt-4o-mini").
//		System("Answer in one sentence.").
//		Prompt("Why is the sky blue?").
//		Execute(ctx)
//
// Sequence chains builders so that each step starts only after the
// previous one has completed.
package task
