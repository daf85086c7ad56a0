package provider

import (
	"slices"

	"github.com/rhuss/unigen/pkg/api"
)

// Operation is a unified call that can be routed to any provider.
type Operation string

const (
	OpGetModel    Operation = "get_model"
	OpListModels  Operation = "list_models"
	OpDeleteModel Operation = "delete_model"
	OpGetVoice    Operation = "get_voice"
	OpListVoices  Operation = "list_voices"
	OpDeleteVoice Operation = "delete_voice"
	OpGetFile     Operation = "get_file"
	OpListFiles   Operation = "list_files"
	OpDeleteFile  Operation = "delete_file"
	OpGenerate    Operation = "generate"
	OpStream      Operation = "stream"
)

// AllOperations lists every operation in a stable order.
var AllOperations = []Operation{
	OpGetModel, OpListModels, OpDeleteModel,
	OpGetVoice, OpListVoices, OpDeleteVoice,
	OpGetFile, OpListFiles, OpDeleteFile,
	OpGenerate, OpStream,
}

// Mutates reports whether op changes provider state.
func (op Operation) Mutates() bool {
	return op == OpDeleteModel || op == OpDeleteVoice || op == OpDeleteFile
}

// Capabilities declares what a provider offers. The engine consults it
// before dispatch so unsupported calls fail without a network round trip.
type Capabilities struct {
	// Operations lists the declared operations.
	Operations []Operation

	// Streaming indicates whether generation can be streamed.
	Streaming bool

	// ToolCalling indicates whether the provider accepts tool definitions.
	ToolCalling bool

	// Audio indicates that generation produces audio rather than text.
	Audio bool
}

// Declares reports whether op is in the declared operation set.
func (c Capabilities) Declares(op Operation) bool {
	return slices.Contains(c.Operations, op)
}

// ValidateCapabilities checks whether a generation request fits the
// provider's declared features. It returns the first mismatch as an
// unsupported_capability error naming the offending parameter.
func ValidateCapabilities(name string, caps Capabilities, req *api.GenerateRequest) *api.APIError {
	if req.Stream && !caps.Streaming {
		e := api.NewUnsupportedError(name, string(OpStream))
		e.Param = "stream"
		return e
	}
	if len(req.Tools) > 0 && !caps.ToolCalling {
		e := api.NewUnsupportedError(name, string(OpGenerate))
		e.Param = "tools"
		e.Message = "provider " + name + " does not support tool calling"
		return e
	}
	if caps.Audio && req.Voice == "" {
		return api.NewInvalidRequestError("voice", "voice is required for speech generation")
	}
	return nil
}
