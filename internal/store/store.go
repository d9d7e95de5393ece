// Package store provides the SQLite-backed session index with full-text
// search. A single writer mutates it; readers run unguarded against WAL
// snapshots.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cmericli/claude-remote/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// Store wraps the index database. All write methods serialize through mu;
// read methods do not take it and see transaction-consistent snapshots.
type Store struct {
	db *sql.DB
	mu sync.Mutex

	now func() time.Time
}

// Open opens or creates the index database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating index dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening index db: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	switch {
	case version == 0:
		if _, err := s.db.Exec(schemaSQL); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
		if _, err := s.db.Exec(ftsSQL); err != nil {
			return fmt.Errorf("creating fts schema: %w", err)
		}
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("setting schema version: %w", err)
		}
	case version == schemaVersion:
		// Current.
	default:
		return fmt.Errorf("index db schema version %d is newer than supported %d", version, schemaVersion)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetClock overrides the wall clock. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// SessionRecord is the metadata payload for UpsertSession. Counter fields
// are owned by AppendMessages; this only touches descriptive columns.
type SessionRecord struct {
	SessionID  string
	Slug       string
	ProjectDir string
	WorkingDir string
	GitBranch  string
	Model      string
	Version    string
	JSONLPath  string
}

// UpsertSession inserts or updates a session's descriptive metadata by id.
// Empty incoming fields never clobber known values. It reports whether a
// new session row was created.
func (s *Store) UpsertSession(rec SessionRecord) (created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sessions WHERE session_id = ?", rec.SessionID).Scan(&existing); err != nil {
		return false, err
	}

	_, err = s.db.Exec(`INSERT INTO sessions
		(session_id, slug, project_dir, working_dir, git_branch, model, version, jsonl_path, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			slug        = CASE WHEN excluded.slug        != '' THEN excluded.slug        ELSE slug        END,
			project_dir = CASE WHEN excluded.project_dir != '' THEN excluded.project_dir ELSE project_dir END,
			working_dir = CASE WHEN excluded.working_dir != '' THEN excluded.working_dir ELSE working_dir END,
			git_branch  = CASE WHEN excluded.git_branch  != '' THEN excluded.git_branch  ELSE git_branch  END,
			model       = CASE WHEN excluded.model       != '' THEN excluded.model       ELSE model       END,
			version     = CASE WHEN excluded.version     != '' THEN excluded.version     ELSE version     END,
			jsonl_path  = CASE WHEN excluded.jsonl_path  != '' THEN excluded.jsonl_path  ELSE jsonl_path  END,
			indexed_at  = excluded.indexed_at`,
		rec.SessionID, rec.Slug, rec.ProjectDir, rec.WorkingDir, rec.GitBranch,
		rec.Model, rec.Version, rec.JSONLPath, s.nowISO())
	if err != nil {
		return false, fmt.Errorf("upserting session %s: %w", rec.SessionID, err)
	}
	return existing == 0, nil
}

// AppendResult reports what an AppendMessages call actually wrote.
type AppendResult struct {
	Inserted  int
	Duplicate int
	FirstSeq  int
}

// AppendMessages atomically appends parsed messages with their tool uses
// and file events, assigns dense per-session sequence numbers continuing
// from the current maximum, and refreshes the session's counters from the
// message table. Messages whose uuid is already present are skipped whole,
// making re-ingestion of an already-ingested prefix a no-op.
func (s *Store) AppendMessages(sessionID string, msgs []model.Message) (AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out AppendResult
	if len(msgs) == 0 {
		return out, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return out, err
	}
	defer func() { _ = tx.Rollback() }()

	var nextSeq int
	err = tx.QueryRow(
		"SELECT COALESCE(MAX(seq_num)+1, 0) FROM messages WHERE session_id = ?",
		sessionID,
	).Scan(&nextSeq)
	if err != nil {
		return out, fmt.Errorf("reading max seq for %s: %w", sessionID, err)
	}
	out.FirstSeq = nextSeq

	insertMsg, err := tx.Prepare(`INSERT INTO messages
		(uuid, session_id, parent_uuid, role, content_text, model,
		 input_tokens, output_tokens, cache_read, cache_create,
		 has_thinking, thinking_text, timestamp, seq_num)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return out, err
	}
	defer insertMsg.Close()

	insertTool, err := tx.Prepare(`INSERT INTO tool_uses
		(tool_use_id, session_id, message_uuid, tool_name, input_summary, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return out, err
	}
	defer insertTool.Close()

	insertEvent, err := tx.Prepare(`INSERT INTO file_events
		(session_id, file_path, event_type, timestamp)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return out, err
	}
	defer insertEvent.Close()

	for _, m := range msgs {
		if m.UUID == "" {
			// Rare malformed lines arrive without a uuid; derive a stable
			// one so re-ingestion stays idempotent.
			m.UUID = fmt.Sprintf("%s-%d", sessionID, nextSeq)
		}

		var exists int
		err := tx.QueryRow("SELECT COUNT(*) FROM messages WHERE uuid = ?", m.UUID).Scan(&exists)
		if err != nil {
			return out, err
		}
		if exists > 0 {
			out.Duplicate++
			continue
		}

		hasThinking := 0
		if m.HasThinking {
			hasThinking = 1
		}
		_, err = insertMsg.Exec(
			m.UUID, sessionID, nullIfEmpty(m.ParentUUID), m.Role, m.ContentText,
			nullIfEmpty(m.Model), m.InputTokens, m.OutputTokens, m.CacheRead,
			m.CacheCreate, hasThinking, nullIfEmpty(m.ThinkingText),
			isoTime(m.Timestamp), nextSeq,
		)
		if err != nil {
			return out, fmt.Errorf("inserting message %s: %w", m.UUID, err)
		}
		nextSeq++
		out.Inserted++

		for _, tu := range m.ToolUses {
			if _, err := insertTool.Exec(tu.ToolUseID, sessionID, m.UUID, tu.ToolName, tu.InputSummary, isoTime(tu.Timestamp)); err != nil {
				return out, fmt.Errorf("inserting tool use: %w", err)
			}
		}
		for _, fe := range m.FileEvents {
			if _, err := insertEvent.Exec(sessionID, fe.FilePath, fe.EventType, isoTime(fe.Timestamp)); err != nil {
				return out, fmt.Errorf("inserting file event: %w", err)
			}
		}
	}

	if err := refreshSessionCounters(tx, sessionID); err != nil {
		return out, err
	}

	if err := tx.Commit(); err != nil {
		return out, err
	}
	return out, nil
}

// refreshSessionCounters recomputes a session's aggregate columns from the
// message table so they always equal the sum over its messages.
func refreshSessionCounters(tx *sql.Tx, sessionID string) error {
	_, err := tx.Exec(`UPDATE sessions SET
		message_count       = (SELECT COUNT(*) FROM messages WHERE session_id = ?1),
		user_msg_count      = (SELECT COUNT(*) FROM messages WHERE session_id = ?1 AND role = 'user'),
		asst_msg_count      = (SELECT COUNT(*) FROM messages WHERE session_id = ?1 AND role = 'assistant'),
		total_input_tokens  = (SELECT COALESCE(SUM(input_tokens), 0)  FROM messages WHERE session_id = ?1),
		total_output_tokens = (SELECT COALESCE(SUM(output_tokens), 0) FROM messages WHERE session_id = ?1),
		total_cache_read    = (SELECT COALESCE(SUM(cache_read), 0)    FROM messages WHERE session_id = ?1),
		total_cache_create  = (SELECT COALESCE(SUM(cache_create), 0)  FROM messages WHERE session_id = ?1),
		first_message       = (SELECT MIN(timestamp) FROM messages WHERE session_id = ?1),
		last_message        = (SELECT MAX(timestamp) FROM messages WHERE session_id = ?1)
		WHERE session_id = ?1`, sessionID)
	if err != nil {
		return fmt.Errorf("refreshing counters for %s: %w", sessionID, err)
	}
	return nil
}

// AddDuration accumulates turn duration onto a session.
func (s *Store) AddDuration(sessionID string, deltaMs int64) error {
	if deltaMs == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"UPDATE sessions SET duration_ms = duration_ms + ? WHERE session_id = ?",
		deltaMs, sessionID,
	)
	return err
}

// IngestState is the per-file ingestion watermark.
type IngestState struct {
	Path      string
	SessionID string
	Offset    int64
	MtimeNs   int64
}

// IngestStates returns the watermark map keyed by file path.
func (s *Store) IngestStates() (map[string]IngestState, error) {
	rows, err := s.db.Query("SELECT jsonl_path, COALESCE(session_id, ''), offset_bytes, file_mtime_ns FROM index_meta")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]IngestState)
	for rows.Next() {
		var st IngestState
		if err := rows.Scan(&st.Path, &st.SessionID, &st.Offset, &st.MtimeNs); err != nil {
			return nil, err
		}
		out[st.Path] = st
	}
	return out, rows.Err()
}

// AdvanceOffset records the byte offset up to which a file has been
// ingested. Offsets only move forward; use ResetIngest for truncation.
func (s *Store) AdvanceOffset(sessionID, path string, newOffset, mtimeNs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	err = tx.QueryRow("SELECT offset_bytes FROM index_meta WHERE jsonl_path = ?", path).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if newOffset < current {
		return fmt.Errorf("offset for %s may only advance (%d < %d)", path, newOffset, current)
	}

	now := s.nowISO()
	_, err = tx.Exec(`INSERT INTO index_meta (jsonl_path, session_id, offset_bytes, file_mtime_ns, indexed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(jsonl_path) DO UPDATE SET
			session_id = excluded.session_id,
			offset_bytes = excluded.offset_bytes,
			file_mtime_ns = excluded.file_mtime_ns,
			indexed_at = excluded.indexed_at`,
		path, sessionID, newOffset, mtimeNs, now)
	if err != nil {
		return err
	}

	_, err = tx.Exec("UPDATE sessions SET file_size_bytes = ?, indexed_at = ? WHERE session_id = ?",
		newOffset, now, sessionID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// ResetIngest clears a session's indexed content and rewinds the file
// watermark to zero. Used when a backing file shrinks (truncation or
// rotation); the next poll re-parses from the start.
func (s *Store) ResetIngest(sessionID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		"DELETE FROM messages WHERE session_id = ?",
		"DELETE FROM tool_uses WHERE session_id = ?",
		"DELETE FROM file_events WHERE session_id = ?",
	} {
		if _, err := tx.Exec(q, sessionID); err != nil {
			return err
		}
	}

	if _, err := tx.Exec("UPDATE index_meta SET offset_bytes = 0 WHERE jsonl_path = ?", path); err != nil {
		return err
	}
	if err := refreshSessionCounters(tx, sessionID); err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE sessions SET file_size_bytes = 0, duration_ms = 0 WHERE session_id = ?", sessionID); err != nil {
		return err
	}

	return tx.Commit()
}

// DropIngestState removes the watermark for a file that disappeared. The
// session row and its messages are retained: history is preserved.
func (s *Store) DropIngestState(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM index_meta WHERE jsonl_path = ?", path)
	return err
}

func (s *Store) nowISO() string {
	return s.now().UTC().Format(time.RFC3339)
}

func isoTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseISO(v sql.NullString) time.Time {
	if !v.Valid || v.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
