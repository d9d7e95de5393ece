package bus

import "time"

// NewMessagePayload is the payload of a new_message event.
type NewMessagePayload struct {
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Preview   string    `json:"preview"`
	Timestamp time.Time `json:"timestamp"`
}

// ToolUsePayload is one entry of a tool_use event; the event payload is a
// slice of these.
type ToolUsePayload struct {
	ToolName  string    `json:"tool_name"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// NeedsInputPayload is the payload of a needs_input event.
type NeedsInputPayload struct {
	SessionID   string `json:"session_id"`
	Slug        string `json:"slug"`
	LastMessage string `json:"last_message_preview"`
	IdleSeconds int64  `json:"idle_seconds"`
}
