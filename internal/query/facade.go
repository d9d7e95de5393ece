// Package query exposes read-only projections over the index for the
// transport layer: dashboard, session lists, conversations, search, and
// analytics.
package query

import (
	"time"

	"github.com/cmericli/claude-remote/internal/config"
	"github.com/cmericli/claude-remote/internal/model"
	"github.com/cmericli/claude-remote/internal/store"
)

// ProcessStatus is the live-state slice the facade needs to annotate
// sessions.
type ProcessStatus interface {
	Status(sessionID string) (running, inTmux bool)
}

// Facade composes store projections with live process state.
type Facade struct {
	store *store.Store
	procs ProcessStatus
	now   func() time.Time
}

// New wires a facade. now defaults to time.Now.
func New(s *store.Store, procs ProcessStatus, now func() time.Time) *Facade {
	if now == nil {
		now = time.Now
	}
	return &Facade{store: s, procs: procs, now: now}
}

func (f *Facade) summarize(s model.Session) model.SessionSummary {
	running, inTmux := f.procs.Status(s.SessionID)
	return model.SessionSummary{
		SessionID:    s.SessionID,
		Slug:         s.Slug,
		Project:      s.ProjectDir,
		WorkingDir:   s.WorkingDir,
		Model:        s.Model,
		GitBranch:    s.GitBranch,
		FirstMessage: s.FirstMessage,
		LastMessage:  s.LastMessage,
		MessageCount: s.MessageCount,
		UserMsgCount: s.UserMsgCount,
		AsstMsgCount: s.AsstMsgCount,
		TotalTokens:  s.TotalTokens(),
		CostEstimate: config.EstimateCost(s.Model, s.InputTokens, s.OutputTokens, s.CacheRead, s.CacheCreate),
		FileSizeMB:   float64(s.FileSizeBytes) / 1024 / 1024,
		IsRunning:    running,
		IsInTmux:     inTmux,
	}
}

// Dashboard is the landing-page projection.
type Dashboard struct {
	ActiveSessions []model.ActiveSession `json:"active_sessions"`
	RecentActivity []model.ActivityItem  `json:"recent_activity"`
	Stats          model.DashboardStats  `json:"stats"`
}

// Dashboard returns active sessions, the recent-activity stream, and
// aggregate counters for today and this week.
func (f *Facade) Dashboard() (*Dashboard, error) {
	sessions, _, err := f.store.Sessions(store.SessionFilter{Limit: 50})
	if err != nil {
		return nil, err
	}

	var active []model.ActiveSession
	for _, s := range sessions {
		sum := f.summarize(s)
		if !sum.IsRunning && !sum.IsInTmux {
			continue
		}
		preview, err := f.store.LastAssistantPreview(s.SessionID)
		if err != nil {
			return nil, err
		}
		duration := 0
		if !s.FirstMessage.IsZero() && !s.LastMessage.IsZero() {
			duration = int(s.LastMessage.Sub(s.FirstMessage).Minutes())
		}
		active = append(active, model.ActiveSession{
			SessionSummary:     sum,
			LastMessagePreview: preview,
			DurationMinutes:    duration,
		})
	}

	activity, err := f.store.RecentActivity(50)
	if err != nil {
		return nil, err
	}

	stats, err := f.stats()
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		ActiveSessions: active,
		RecentActivity: activity,
		Stats:          stats,
	}, nil
}

func (f *Facade) stats() (model.DashboardStats, error) {
	var out model.DashboardStats
	now := f.now().UTC()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := now.AddDate(0, 0, -7)

	today, err := f.store.Totals(todayStart)
	if err != nil {
		return out, err
	}
	week, err := f.store.Totals(weekStart)
	if err != nil {
		return out, err
	}
	total, err := f.store.SessionCount()
	if err != nil {
		return out, err
	}
	hitRate, err := f.store.CacheHitRate()
	if err != nil {
		return out, err
	}

	out.TodaySessions = today.Sessions
	out.TodayTokens = today.Input + today.Output + today.CacheRead + today.CacheCreate
	out.TodayCostEstimate = config.EstimateCost("", today.Input, today.Output, today.CacheRead, today.CacheCreate)
	out.WeekSessions = week.Sessions
	out.WeekTokens = week.Input + week.Output + week.CacheRead + week.CacheCreate
	out.WeekCostEstimate = config.EstimateCost("", week.Input, week.Output, week.CacheRead, week.CacheCreate)
	out.TotalSessions = total
	out.CacheHitRate = hitRate
	return out, nil
}

// SessionsPage is one page of the session list.
type SessionsPage struct {
	Sessions []model.SessionSummary `json:"sessions"`
	Total    int                    `json:"total"`
	Limit    int                    `json:"limit"`
	Offset   int                    `json:"offset"`
}

// SessionsFilter narrows the session list. Status is "all", "running", or
// "stopped" and is applied against live process state.
type SessionsFilter struct {
	Status  string
	Project string
	Limit   int
	Offset  int
}

// Sessions returns the session list ordered by last message descending.
func (f *Facade) Sessions(filter SessionsFilter) (*SessionsPage, error) {
	rows, total, err := f.store.Sessions(store.SessionFilter{
		Project: filter.Project,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	})
	if err != nil {
		return nil, err
	}

	page := &SessionsPage{Total: total, Limit: filter.Limit, Offset: filter.Offset}
	if page.Limit <= 0 {
		page.Limit = 30
	}
	for _, s := range rows {
		sum := f.summarize(s)
		switch filter.Status {
		case "running":
			if !sum.IsRunning {
				continue
			}
		case "stopped":
			if sum.IsRunning {
				continue
			}
		}
		page.Sessions = append(page.Sessions, sum)
	}
	return page, nil
}

// Session returns the full detail projection for one session, or nil if
// unknown.
func (f *Facade) Session(sessionID string) (*model.SessionDetail, error) {
	s, err := f.store.Session(sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}

	files, err := f.store.FilesTouched(sessionID)
	if err != nil {
		return nil, err
	}
	tools, err := f.store.ToolSummary(sessionID)
	if err != nil {
		return nil, err
	}

	return &model.SessionDetail{
		Session:      f.summarize(*s),
		FilesTouched: files,
		ToolSummary:  tools,
		TokenBreakdown: model.TokenBreakdown{
			Input:       s.InputTokens,
			Output:      s.OutputTokens,
			CacheRead:   s.CacheRead,
			CacheCreate: s.CacheCreate,
		},
	}, nil
}

// Conversation is a sequence-ordered slice of a session's messages.
type Conversation struct {
	SessionID string                      `json:"session_id"`
	Messages  []model.ConversationMessage `json:"messages"`
	Total     int                         `json:"total"`
	Limit     int                         `json:"limit"`
	Offset    int                         `json:"offset"`
}

// Conversation returns messages for a session in sequence order. Returns
// nil for unknown sessions.
func (f *Facade) Conversation(sessionID string, limit, offset int) (*Conversation, error) {
	msgs, total, found, err := f.store.Conversation(sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if limit <= 0 {
		limit = 200
	}
	return &Conversation{
		SessionID: sessionID,
		Messages:  msgs,
		Total:     total,
		Limit:     limit,
		Offset:    offset,
	}, nil
}

// SearchResults is the ranked full-text result set.
type SearchResults struct {
	Query   string            `json:"query"`
	Results []model.SearchHit `json:"results"`
	Total   int               `json:"total"`
}

// Search runs a ranked full-text query.
func (f *Facade) Search(q string, filter store.SearchFilter) (*SearchResults, error) {
	hits, err := f.store.Search(q, filter)
	if err != nil {
		return nil, err
	}
	return &SearchResults{Query: q, Results: hits, Total: len(hits)}, nil
}

// TokenAnalytics rolls tokens up by day or project over a period of "7d",
// "30d", or "90d".
type TokenAnalytics struct {
	Period  string              `json:"period"`
	GroupBy string              `json:"group_by"`
	Data    []model.TokenBucket `json:"data"`
	Totals  model.TokenBucket   `json:"totals"`
}

// TokenAnalytics aggregates token usage over the window.
func (f *Facade) TokenAnalytics(period, groupBy string) (*TokenAnalytics, error) {
	if groupBy != "project" {
		groupBy = "day"
	}
	since := f.now().UTC().AddDate(0, 0, -periodDays(period))

	data, err := f.store.TokenRollup(groupBy, since)
	if err != nil {
		return nil, err
	}

	out := &TokenAnalytics{Period: period, GroupBy: groupBy, Data: data}
	for _, b := range data {
		out.Totals.Input += b.Input
		out.Totals.Output += b.Output
		out.Totals.CacheRead += b.CacheRead
		out.Totals.CacheCreate += b.CacheCreate
		out.Totals.CostEstimate += b.CostEstimate
	}
	return out, nil
}

// ToolAnalytics rolls tool invocations up by name over a period.
type ToolAnalytics struct {
	Period string            `json:"period"`
	Tools  []model.ToolCount `json:"tools"`
}

// ToolAnalytics aggregates tool usage over the window.
func (f *Facade) ToolAnalytics(period string) (*ToolAnalytics, error) {
	since := f.now().UTC().AddDate(0, 0, -periodDays(period))
	tools, err := f.store.ToolRollup(since)
	if err != nil {
		return nil, err
	}
	return &ToolAnalytics{Period: period, Tools: tools}, nil
}

func periodDays(period string) int {
	switch period {
	case "30d":
		return 30
	case "90d":
		return 90
	default:
		return 7
	}
}
