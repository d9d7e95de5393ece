package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/cmericli/claude-remote/internal/config"
	"github.com/cmericli/claude-remote/internal/model"
)

func costForBucket(mdl string, b model.TokenBucket) float64 {
	return config.EstimateCost(mdl, b.Input, b.Output, b.CacheRead, b.CacheCreate)
}

// SessionFilter narrows and pages the session list.
type SessionFilter struct {
	Project string
	Limit   int
	Offset  int
}

const (
	defaultSessionLimit = 30
	maxSessionLimit     = 200
)

func (f *SessionFilter) normalize() {
	if f.Limit <= 0 {
		f.Limit = defaultSessionLimit
	}
	if f.Limit > maxSessionLimit {
		f.Limit = maxSessionLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

const sessionColumns = `session_id, slug, project_dir, working_dir, git_branch,
	model, version, first_message, last_message, message_count, user_msg_count,
	asst_msg_count, total_input_tokens, total_output_tokens, total_cache_read,
	total_cache_create, duration_ms, file_size_bytes, jsonl_path, indexed_at`

func scanSession(scan func(...any) error) (model.Session, error) {
	var s model.Session
	var slug, project, workingDir, branch, mdl, version, first, last, path, indexed sql.NullString
	err := scan(
		&s.SessionID, &slug, &project, &workingDir, &branch, &mdl, &version,
		&first, &last, &s.MessageCount, &s.UserMsgCount, &s.AsstMsgCount,
		&s.InputTokens, &s.OutputTokens, &s.CacheRead, &s.CacheCreate,
		&s.DurationMs, &s.FileSizeBytes, &path, &indexed,
	)
	if err != nil {
		return s, err
	}
	s.Slug = slug.String
	s.ProjectDir = project.String
	s.WorkingDir = workingDir.String
	s.GitBranch = branch.String
	s.Model = mdl.String
	s.Version = version.String
	s.JSONLPath = path.String
	s.FirstMessage = parseISO(first)
	s.LastMessage = parseISO(last)
	s.IndexedAt = parseISO(indexed)
	return s, nil
}

// Sessions returns sessions ordered by last message descending, with the
// unfiltered total for pagination.
func (s *Store) Sessions(filter SessionFilter) ([]model.Session, int, error) {
	filter.normalize()

	where := ""
	args := []any{}
	if filter.Project != "" {
		where = "WHERE project_dir = ?"
		args = append(args, filter.Project)
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sessions "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(
		fmt.Sprintf("SELECT %s FROM sessions %s ORDER BY last_message DESC LIMIT ? OFFSET ?", sessionColumns, where),
		append(args, filter.Limit, filter.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Session
	for rows.Next() {
		sess, err := scanSession(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, sess)
	}
	return out, total, rows.Err()
}

// Session returns one session row, or nil if unknown.
func (s *Store) Session(sessionID string) (*model.Session, error) {
	row := s.db.QueryRow(
		fmt.Sprintf("SELECT %s FROM sessions WHERE session_id = ?", sessionColumns),
		sessionID,
	)
	sess, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// FilesTouched returns the session's de-duplicated file paths with counts,
// most-touched first, capped at 100.
func (s *Store) FilesTouched(sessionID string) ([]model.FileTouched, error) {
	rows, err := s.db.Query(`SELECT file_path, event_type, COUNT(*) AS cnt
		FROM file_events WHERE session_id = ?
		GROUP BY file_path, event_type
		ORDER BY cnt DESC LIMIT 100`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.FileTouched
	for rows.Next() {
		var ft model.FileTouched
		if err := rows.Scan(&ft.Path, &ft.EventType, &ft.Count); err != nil {
			return nil, err
		}
		out = append(out, ft)
	}
	return out, rows.Err()
}

// ToolSummary returns name -> invocation count for one session.
func (s *Store) ToolSummary(sessionID string) (map[string]int, error) {
	rows, err := s.db.Query(`SELECT tool_name, COUNT(*) FROM tool_uses
		WHERE session_id = ? GROUP BY tool_name ORDER BY COUNT(*) DESC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int)
	for rows.Next() {
		var name string
		var cnt int
		if err := rows.Scan(&name, &cnt); err != nil {
			return nil, err
		}
		out[name] = cnt
	}
	return out, rows.Err()
}

// Conversation returns messages for a session in sequence order, each with
// its computed tool_uses list. found is false for unknown sessions.
func (s *Store) Conversation(sessionID string, limit, offset int) (msgs []model.ConversationMessage, total int, found bool, err error) {
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	var exists int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sessions WHERE session_id = ?", sessionID).Scan(&exists); err != nil {
		return nil, 0, false, err
	}
	if exists == 0 {
		return nil, 0, false, nil
	}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID).Scan(&total); err != nil {
		return nil, 0, false, err
	}

	rows, err := s.db.Query(`SELECT uuid, role, content_text, timestamp, seq_num,
		COALESCE(model, ''), output_tokens, has_thinking, COALESCE(thinking_text, '')
		FROM messages WHERE session_id = ?
		ORDER BY seq_num ASC LIMIT ? OFFSET ?`, sessionID, limit, offset)
	if err != nil {
		return nil, 0, false, err
	}
	defer func() { _ = rows.Close() }()

	uuids := make(map[string]int)
	for rows.Next() {
		var m model.ConversationMessage
		var ts sql.NullString
		var hasThinking int
		if err := rows.Scan(&m.UUID, &m.Role, &m.ContentText, &ts, &m.SeqNum,
			&m.Model, &m.OutputTokens, &hasThinking, &m.ThinkingText); err != nil {
			return nil, 0, false, err
		}
		m.Timestamp = parseISO(ts)
		m.HasThinking = hasThinking != 0
		if m.Role != model.RoleAssistant {
			// Token and reasoning fields only make sense for the assistant.
			m.Model = ""
			m.OutputTokens = 0
			m.HasThinking = false
			m.ThinkingText = ""
		}
		uuids[m.UUID] = len(msgs)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, false, err
	}

	toolRows, err := s.db.Query(`SELECT COALESCE(message_uuid, ''), tool_name, COALESCE(input_summary, '')
		FROM tool_uses WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, 0, false, err
	}
	defer func() { _ = toolRows.Close() }()

	for toolRows.Next() {
		var uuid, name, summary string
		if err := toolRows.Scan(&uuid, &name, &summary); err != nil {
			return nil, 0, false, err
		}
		if idx, ok := uuids[uuid]; ok {
			msgs[idx].ToolUses = append(msgs[idx].ToolUses, model.ToolUseView{Name: name, Summary: summary})
		}
	}
	return msgs, total, true, toolRows.Err()
}

// RecentActivity returns the newest messages across all sessions, newest
// first.
func (s *Store) RecentActivity(limit int) ([]model.ActivityItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT m.session_id, COALESCE(s.slug, ''), COALESCE(s.project_dir, ''),
		m.role, SUBSTR(m.content_text, 1, 120), m.timestamp
		FROM messages m
		JOIN sessions s ON m.session_id = s.session_id
		ORDER BY m.timestamp DESC, m.seq_num DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.ActivityItem
	for rows.Next() {
		var item model.ActivityItem
		var ts sql.NullString
		if err := rows.Scan(&item.SessionID, &item.Slug, &item.Project, &item.Role, &item.Preview, &ts); err != nil {
			return nil, err
		}
		item.Timestamp = parseISO(ts)
		out = append(out, item)
	}
	return out, rows.Err()
}

// LastMessage is the idle detector's view of a session's final message.
type LastMessage struct {
	SessionID string
	Slug      string
	Role      string
	Preview   string
	Timestamp time.Time
}

// LastMessages returns, for each session whose last message is at or after
// since, that final message's role, preview, and timestamp.
func (s *Store) LastMessages(since time.Time) ([]LastMessage, error) {
	rows, err := s.db.Query(`SELECT m.session_id, COALESCE(s.slug, ''), m.role,
		SUBSTR(m.content_text, 1, 120), m.timestamp
		FROM messages m
		JOIN sessions s ON m.session_id = s.session_id
		JOIN (SELECT session_id, MAX(seq_num) AS max_seq FROM messages GROUP BY session_id) latest
		  ON m.session_id = latest.session_id AND m.seq_num = latest.max_seq
		WHERE m.timestamp >= ?`, isoTime(since))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []LastMessage
	for rows.Next() {
		var lm LastMessage
		var ts sql.NullString
		if err := rows.Scan(&lm.SessionID, &lm.Slug, &lm.Role, &lm.Preview, &ts); err != nil {
			return nil, err
		}
		lm.Timestamp = parseISO(ts)
		out = append(out, lm)
	}
	return out, rows.Err()
}

// LastAssistantPreview returns the newest non-empty assistant message text
// for a session, capped at 120 chars.
func (s *Store) LastAssistantPreview(sessionID string) (string, error) {
	var preview string
	err := s.db.QueryRow(`SELECT SUBSTR(content_text, 1, 120) FROM messages
		WHERE session_id = ? AND role = 'assistant' AND content_text != ''
		ORDER BY seq_num DESC LIMIT 1`, sessionID).Scan(&preview)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return preview, err
}

// PeriodTotals aggregates session counters for sessions active since the
// given instant.
type PeriodTotals struct {
	Sessions    int
	Input       int64
	Output      int64
	CacheRead   int64
	CacheCreate int64
}

// Totals returns token aggregates over sessions with activity since the
// given time.
func (s *Store) Totals(since time.Time) (PeriodTotals, error) {
	var t PeriodTotals
	err := s.db.QueryRow(`SELECT COUNT(*),
		COALESCE(SUM(total_input_tokens), 0), COALESCE(SUM(total_output_tokens), 0),
		COALESCE(SUM(total_cache_read), 0), COALESCE(SUM(total_cache_create), 0)
		FROM sessions WHERE last_message >= ?`, isoTime(since)).Scan(
		&t.Sessions, &t.Input, &t.Output, &t.CacheRead, &t.CacheCreate)
	return t, err
}

// SessionCount returns the number of indexed sessions.
func (s *Store) SessionCount() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&n)
	return n, err
}

// CacheHitRate computes cache reads over all cacheable input across every
// session.
func (s *Store) CacheHitRate() (float64, error) {
	var read, create, input int64
	err := s.db.QueryRow(`SELECT COALESCE(SUM(total_cache_read), 0),
		COALESCE(SUM(total_cache_create), 0), COALESCE(SUM(total_input_tokens), 0)
		FROM sessions`).Scan(&read, &create, &input)
	if err != nil {
		return 0, err
	}
	total := read + create + input
	if total == 0 {
		return 0, nil
	}
	return float64(read) / float64(total), nil
}

// TokenRollup groups token totals by day or by project over a window.
// groupBy is "day" or "project".
func (s *Store) TokenRollup(groupBy string, since time.Time) ([]model.TokenBucket, error) {
	var query string
	if groupBy == "project" {
		query = `SELECT COALESCE(project_dir, '') AS label,
			COALESCE(SUM(total_input_tokens), 0), COALESCE(SUM(total_output_tokens), 0),
			COALESCE(SUM(total_cache_read), 0), COALESCE(SUM(total_cache_create), 0),
			COALESCE(MAX(model), '')
			FROM sessions WHERE last_message >= ?
			GROUP BY project_dir ORDER BY SUM(total_output_tokens) DESC`
	} else {
		query = `SELECT SUBSTR(last_message, 1, 10) AS label,
			COALESCE(SUM(total_input_tokens), 0), COALESCE(SUM(total_output_tokens), 0),
			COALESCE(SUM(total_cache_read), 0), COALESCE(SUM(total_cache_create), 0),
			COALESCE(MAX(model), '')
			FROM sessions WHERE last_message >= ?
			GROUP BY SUBSTR(last_message, 1, 10) ORDER BY label ASC`
	}

	rows, err := s.db.Query(query, isoTime(since))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.TokenBucket
	for rows.Next() {
		var b model.TokenBucket
		var mdl string
		if err := rows.Scan(&b.Label, &b.Input, &b.Output, &b.CacheRead, &b.CacheCreate, &mdl); err != nil {
			return nil, err
		}
		b.CostEstimate = costForBucket(mdl, b)
		out = append(out, b)
	}
	return out, rows.Err()
}

// ToolRollup groups tool invocations by name over a window, with
// percentages of the total.
func (s *Store) ToolRollup(since time.Time) ([]model.ToolCount, error) {
	rows, err := s.db.Query(`SELECT tool_name, COUNT(*) FROM tool_uses
		WHERE timestamp >= ? GROUP BY tool_name ORDER BY COUNT(*) DESC`, isoTime(since))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.ToolCount
	total := 0
	for rows.Next() {
		var tc model.ToolCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, err
		}
		total += tc.Count
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if total > 0 {
		for i := range out {
			out[i].Percentage = float64(int(float64(out[i].Count)/float64(total)*1000+0.5)) / 10
		}
	}
	return out, nil
}

// WorkingDir looks up a session's working directory.
func (s *Store) WorkingDir(sessionID string) (string, error) {
	var wd sql.NullString
	err := s.db.QueryRow("SELECT working_dir FROM sessions WHERE session_id = ?", sessionID).Scan(&wd)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return wd.String, err
}
