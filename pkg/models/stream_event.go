package models

// StreamEventKind tags which variant of StreamEvent is populated.
type StreamEventKind string

const (
	EventText      StreamEventKind = "text"
	EventToolCalls StreamEventKind = "tool_calls"
	EventToolStatus StreamEventKind = "tool_status"
	// EventDone is the Chat Orchestrator's final stream chunk:
	// an empty chunk with finish_reason "stop" carrying the session id,
	// emitted once per streaming run before the end-of-stream sentinel.
	EventDone StreamEventKind = "done"
	// EventError terminates a stream that failed mid-run: a backend outage
	// becomes a stream error chunk, a stop-flag or job
	// cancellation becomes an error chunk with ErrKind "cancelled". No
	// further events follow it.
	EventError StreamEventKind = "error"
)

// ToolStatus is the lifecycle stage reported by a ToolStatusEvent.
type ToolStatus string

const (
	ToolStarted   ToolStatus = "started"
	ToolCompleted ToolStatus = "completed"
	ToolFailed    ToolStatus = "failed"
)

// StreamEvent is the unified event the Model Client's streaming path and
// the Agent Loop's streaming path both speak. Exactly one of the
// kind-specific fields is meaningful for a given Kind.
type StreamEvent struct {
	Kind StreamEventKind `json:"kind"`

	// Text (Kind == EventText)
	Content string `json:"content,omitempty"`

	// ToolCalls (Kind == EventToolCalls) — terminal event of a streamed
	// model turn that issued tool calls.
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`

	// ToolStatus (Kind == EventToolStatus)
	ToolName   string     `json:"tool_name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Status     ToolStatus `json:"status,omitempty"`
	DurationMS int64      `json:"duration_ms,omitempty"`

	// Done (Kind == EventDone) — carries x_session_id.
	SessionID string `json:"x_session_id,omitempty"`

	// Error (Kind == EventError)
	ErrKind    Kind   `json:"error_kind,omitempty"`
	ErrMessage string `json:"error,omitempty"`
}

// TextEvent builds a text chunk event.
func TextEvent(content string) StreamEvent {
	return StreamEvent{Kind: EventText, Content: content}
}

// ToolCallsEvent builds the terminal tool-calls event of a streamed turn.
func ToolCallsEvent(calls []ToolCall, finishReason string) StreamEvent {
	return StreamEvent{Kind: EventToolCalls, ToolCalls: calls, FinishReason: finishReason}
}

// ToolStatusEvent builds a tool lifecycle event.
func ToolStatusEvent(name, callID string, status ToolStatus, durationMS int64) StreamEvent {
	return StreamEvent{
		Kind:       EventToolStatus,
		ToolName:   name,
		ToolCallID: callID,
		Status:     status,
		DurationMS: durationMS,
	}
}

// DoneEvent builds the Chat Orchestrator's terminal stream chunk.
func DoneEvent(sessionID string) StreamEvent {
	return StreamEvent{Kind: EventDone, FinishReason: "stop", SessionID: sessionID}
}

// ErrorEvent builds the terminal error chunk of a failed or cancelled
// stream.
func ErrorEvent(err error) StreamEvent {
	return StreamEvent{Kind: EventError, ErrKind: AsKind(err), ErrMessage: err.Error()}
}
