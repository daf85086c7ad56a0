// Package openrouter implements the Provider interface for OpenRouter.
// OpenRouter exposes an OpenAI-compatible Chat Completions API and a
// model catalog, so this adapter delegates to the shared
// openaicompat.Client and adds catalog lookup for single models.
package openrouter
