// Package model defines domain types for the claude-remote index.
package model

import "time"

// Session is one continuous conversation with the assistant, identified by
// an opaque id assigned by the assistant tool. Rows are created on first
// observation and never destroyed; history outlives the backing file.
type Session struct {
	SessionID     string
	Slug          string
	ProjectDir    string
	WorkingDir    string
	GitBranch     string
	Model         string
	Version       string
	FirstMessage  time.Time
	LastMessage   time.Time
	MessageCount  int
	UserMsgCount  int
	AsstMsgCount  int
	InputTokens   int64
	OutputTokens  int64
	CacheRead     int64
	CacheCreate   int64
	DurationMs    int64
	FileSizeBytes int64
	JSONLPath     string
	IndexedAt     time.Time
}

// TotalTokens returns the sum of all token counters.
func (s Session) TotalTokens() int64 {
	return s.InputTokens + s.OutputTokens + s.CacheRead + s.CacheCreate
}

// Message is one utterance within a session. SeqNum is assigned at
// ingestion in line order and is dense per session, starting at zero.
type Message struct {
	UUID         string
	SessionID    string
	ParentUUID   string
	Role         string
	ContentText  string
	Model        string
	InputTokens  int64
	OutputTokens int64
	CacheRead    int64
	CacheCreate  int64
	HasThinking  bool
	ThinkingText string
	ToolUses     []ToolUse
	FileEvents   []FileEvent
	Timestamp    time.Time
	SeqNum       int
}

// ToolUse is a call by the assistant to a named tool, observed via a
// tool_use content block.
type ToolUse struct {
	ToolUseID    string
	SessionID    string
	MessageUUID  string
	ToolName     string
	InputSummary string
	Timestamp    time.Time
}

// FileEvent records a file touched by a tool invocation.
type FileEvent struct {
	SessionID string
	FilePath  string
	EventType string
	Timestamp time.Time
}

// File event types derived from tool names.
const (
	EventRead   = "read"
	EventCreate = "create"
	EventEdit   = "edit"
	EventBash   = "bash"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// PushSubscription is a registered push delivery target. The key material
// is opaque to the core; the delivery port interprets it.
type PushSubscription struct {
	Endpoint  string
	P256dh    string
	Auth      string
	UserAgent string
	CreatedAt time.Time
}
