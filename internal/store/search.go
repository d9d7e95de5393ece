package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/cmericli/claude-remote/internal/model"
)

// SearchFilter narrows full-text results.
type SearchFilter struct {
	Project string
	After   time.Time
	Before  time.Time
	Limit   int
}

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 200
	snippetMaxLen      = 200
)

// Search runs a ranked full-text query over message body and reasoning
// text. Bare tokens are AND-matched; double-quoted phrases match exactly.
func (s *Store) Search(query string, filter SearchFilter) ([]model.SearchHit, error) {
	expr := buildFTSQuery(query)
	if expr == "" {
		return nil, nil
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	sql := `SELECT m.uuid, m.session_id, m.role, m.timestamp,
		COALESCE(s.slug, ''), COALESCE(s.project_dir, ''),
		snippet(messages_fts, 0, '', '', '...', 40)
		FROM messages_fts
		JOIN messages m ON messages_fts.rowid = m.rowid
		JOIN sessions s ON m.session_id = s.session_id
		WHERE messages_fts MATCH ?`
	args := []any{expr}

	if filter.Project != "" {
		sql += " AND s.project_dir = ?"
		args = append(args, filter.Project)
	}
	if !filter.After.IsZero() {
		sql += " AND m.timestamp >= ?"
		args = append(args, isoTime(filter.After))
	}
	if !filter.Before.IsZero() {
		sql += " AND m.timestamp <= ?"
		args = append(args, isoTime(filter.Before))
	}
	sql += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(sql, args...)
	if err != nil {
		return nil, fmt.Errorf("fts query %q: %w", expr, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.SearchHit
	for rows.Next() {
		var hit model.SearchHit
		var ts, snip string
		if err := rows.Scan(&hit.MessageUUID, &hit.SessionID, &hit.Role, &ts, &hit.Slug, &hit.Project, &snip); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			hit.Timestamp = t
		}
		if len(snip) > snippetMaxLen {
			snip = snip[:snippetMaxLen]
		}
		hit.Snippet = snip
		out = append(out, hit)
	}
	return out, rows.Err()
}

// buildFTSQuery converts a user query into an FTS5 MATCH expression.
// Double-quoted spans become exact phrases; everything else splits into
// tokens that are individually quoted (AND is implicit in FTS5). Tokens
// shorter than two characters are dropped.
func buildFTSQuery(query string) string {
	var terms []string

	rest := query
	for {
		start := strings.IndexByte(rest, '"')
		if start < 0 {
			terms = append(terms, splitTokens(rest)...)
			break
		}
		terms = append(terms, splitTokens(rest[:start])...)
		rest = rest[start+1:]

		end := strings.IndexByte(rest, '"')
		if end < 0 {
			// Unterminated quote: treat the remainder as bare tokens.
			terms = append(terms, splitTokens(rest)...)
			break
		}
		if phrase := strings.TrimSpace(rest[:end]); phrase != "" {
			terms = append(terms, quoteFTS(phrase))
		}
		rest = rest[end+1:]
	}

	return strings.Join(terms, " ")
}

func splitTokens(s string) []string {
	var out []string
	for _, tok := range strings.Fields(s) {
		if len(tok) < 2 {
			continue
		}
		out = append(out, quoteFTS(tok))
	}
	return out
}

func quoteFTS(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
