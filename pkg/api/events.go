package api

// EventKind tags the variant carried by a StreamEvent.
type EventKind string

const (
	EventTextDelta         EventKind = "text_delta"
	EventToolCallStarted   EventKind = "tool_call_started"
	EventToolCallCompleted EventKind = "tool_call_completed"
	EventStatusChanged     EventKind = "status_changed"
	EventAudio             EventKind = "audio"
	EventError             EventKind = "error"
)

// AllEventKinds lists every kind in a stable order.
var AllEventKinds = []EventKind{
	EventTextDelta,
	EventToolCallStarted,
	EventToolCallCompleted,
	EventStatusChanged,
	EventAudio,
	EventError,
}

// Generation status values carried by status_changed events.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"

	// StatusToolResult marks a tool call executed between model turns.
	// Detail carries the call id. It is not terminal.
	StatusToolResult = "tool_result"
)

// AudioPhase marks where an audio event sits in the audio lifecycle.
type AudioPhase string

const (
	AudioStarted   AudioPhase = "started"
	AudioChunk     AudioPhase = "chunk"
	AudioCompleted AudioPhase = "completed"
)

// AudioFrame is the payload of an audio event. Data is only set for chunks.
type AudioFrame struct {
	Phase  AudioPhase `json:"phase"`
	Format string     `json:"format,omitempty"`
	Data   []byte     `json:"data,omitempty"`
}

// StreamEvent is one incremental unit of a streamed operation. Exactly
// one payload field matches Kind.
type StreamEvent struct {
	Kind     EventKind   `json:"kind"`
	Sequence int         `json:"sequence"`
	TaskID   string      `json:"task_id,omitempty"`
	Delta    string      `json:"delta,omitempty"`
	ToolCall *ToolCall   `json:"tool_call,omitempty"`
	Status   string      `json:"status,omitempty"`
	Detail   string      `json:"detail,omitempty"`
	Audio    *AudioFrame `json:"audio,omitempty"`
	Error    *APIError   `json:"error,omitempty"`
}

// TextDeltaEvent builds a text_delta event.
func TextDeltaEvent(delta string) StreamEvent {
	return StreamEvent{Kind: EventTextDelta, Delta: delta}
}

// ToolCallStartedEvent builds a tool_call_started event.
func ToolCallStartedEvent(call ToolCall) StreamEvent {
	return StreamEvent{Kind: EventToolCallStarted, ToolCall: &call}
}

// ToolCallCompletedEvent builds a tool_call_completed event.
func ToolCallCompletedEvent(call ToolCall) StreamEvent {
	return StreamEvent{Kind: EventToolCallCompleted, ToolCall: &call}
}

// StatusEvent builds a status_changed event.
func StatusEvent(status, detail string) StreamEvent {
	return StreamEvent{Kind: EventStatusChanged, Status: status, Detail: detail}
}

// AudioEvent builds an audio lifecycle event.
func AudioEvent(phase AudioPhase, format string, data []byte) StreamEvent {
	return StreamEvent{Kind: EventAudio, Audio: &AudioFrame{Phase: phase, Format: format, Data: data}}
}

// ErrorEvent builds an error event.
func ErrorEvent(err *APIError) StreamEvent {
	return StreamEvent{Kind: EventError, Error: err}
}

// IsTerminal reports whether ev ends a stream.
func (ev StreamEvent) IsTerminal() bool {
	if ev.Kind == EventError {
		return true
	}
	if ev.Kind != EventStatusChanged {
		return false
	}
	switch ev.Status {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}
