// Package openaicompat implements the OpenAI REST dialect shared by many
// backends: the model catalog, uploaded files and Chat Completions with
// SSE streaming (tool call argument buffering included).
//
// [New] returns a generic provider for OpenAI-compatible servers such as
// vLLM or LiteLLM. The openai and openrouter adapters embed [Client] and
// narrow or widen its declared capabilities.
package openaicompat
