package auditlog

import "time"

// Event records one completed turn: the user's message, the assistant's final
// answer and the tools that ran along the way. Events are appended in
// chronological order.
type Event struct {
	Timestamp         time.Time `json:"timestamp"`
	SessionID         string    `json:"session_id"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response"`
	ToolCalls         []string  `json:"tool_calls,omitempty"`
	Attempts          int       `json:"attempts"`
}

// Recorder abstracts persistence of interaction events.
// Implementations must be safe for concurrent use; recording is best-effort
// and never on a turn's critical path.
type Recorder interface {
	AppendInteraction(event Event) error
	LoadInteractions() ([]Event, error)
}
