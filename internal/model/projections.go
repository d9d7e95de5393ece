package model

import "time"

// SessionSummary is the list-view projection of a session, annotated with
// live process state from the process registry.
type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	Slug         string    `json:"slug"`
	Project      string    `json:"project"`
	WorkingDir   string    `json:"working_dir"`
	Model        string    `json:"model"`
	GitBranch    string    `json:"git_branch"`
	FirstMessage time.Time `json:"first_message"`
	LastMessage  time.Time `json:"last_message"`
	MessageCount int       `json:"message_count"`
	UserMsgCount int       `json:"user_msg_count"`
	AsstMsgCount int       `json:"asst_msg_count"`
	TotalTokens  int64     `json:"total_tokens"`
	CostEstimate float64   `json:"cost_estimate"`
	FileSizeMB   float64   `json:"file_size_mb"`
	IsRunning    bool      `json:"is_running"`
	IsInTmux     bool      `json:"is_in_tmux"`
}

// ActiveSession is the dashboard projection of a running session.
type ActiveSession struct {
	SessionSummary
	LastMessagePreview string `json:"last_message_preview"`
	DurationMinutes    int    `json:"duration_minutes"`
}

// ActivityItem is one entry of the bounded recent-activity stream: the
// newest messages across all sessions.
type ActivityItem struct {
	SessionID string    `json:"session_id"`
	Slug      string    `json:"slug"`
	Project   string    `json:"project"`
	Role      string    `json:"role"`
	Preview   string    `json:"preview"`
	Timestamp time.Time `json:"timestamp"`
}

// DashboardStats aggregates counters for today and this week.
type DashboardStats struct {
	TodaySessions     int     `json:"today_sessions"`
	TodayTokens       int64   `json:"today_tokens"`
	TodayCostEstimate float64 `json:"today_cost_estimate"`
	WeekSessions      int     `json:"week_sessions"`
	WeekTokens        int64   `json:"week_tokens"`
	WeekCostEstimate  float64 `json:"week_cost_estimate"`
	TotalSessions     int     `json:"total_sessions"`
	CacheHitRate      float64 `json:"cache_hit_rate"`
}

// FileTouched is a de-duplicated file path with touch counts.
type FileTouched struct {
	Path      string `json:"path"`
	EventType string `json:"event_type"`
	Count     int    `json:"count"`
}

// TokenBreakdown splits a session's tokens by kind.
type TokenBreakdown struct {
	Input       int64 `json:"input"`
	Output      int64 `json:"output"`
	CacheRead   int64 `json:"cache_read"`
	CacheCreate int64 `json:"cache_create"`
}

// SessionDetail is the full detail projection for one session.
type SessionDetail struct {
	Session        SessionSummary `json:"session"`
	FilesTouched   []FileTouched  `json:"files_touched"`
	ToolSummary    map[string]int `json:"tool_summary"`
	TokenBreakdown TokenBreakdown `json:"token_breakdown"`
}

// ConversationMessage is one message of a conversation slice, with the
// computed tool_uses list.
type ConversationMessage struct {
	UUID         string        `json:"uuid"`
	Role         string        `json:"role"`
	ContentText  string        `json:"content_text"`
	Timestamp    time.Time     `json:"timestamp"`
	SeqNum       int           `json:"seq_num"`
	Model        string        `json:"model,omitempty"`
	OutputTokens int64         `json:"output_tokens,omitempty"`
	HasThinking  bool          `json:"has_thinking,omitempty"`
	ThinkingText string        `json:"thinking_text,omitempty"`
	ToolUses     []ToolUseView `json:"tool_uses,omitempty"`
}

// ToolUseView is the compact tool-use shape embedded in conversation
// messages.
type ToolUseView struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

// SearchHit is one ranked full-text search result.
type SearchHit struct {
	SessionID   string    `json:"session_id"`
	Slug        string    `json:"slug"`
	Project     string    `json:"project"`
	MessageUUID string    `json:"message_uuid"`
	Role        string    `json:"role"`
	Snippet     string    `json:"snippet"`
	Timestamp   time.Time `json:"timestamp"`
}

// TokenBucket is one group of the token analytics rollup.
type TokenBucket struct {
	Label        string  `json:"label"`
	Input        int64   `json:"input"`
	Output       int64   `json:"output"`
	CacheRead    int64   `json:"cache_read"`
	CacheCreate  int64   `json:"cache_create"`
	CostEstimate float64 `json:"cost_estimate"`
}

// ToolCount is one row of the tool analytics rollup.
type ToolCount struct {
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}
