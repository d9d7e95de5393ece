// Package logparse converts session JSONL lines into normalized records.
//
// The parser is pure: the same input bytes always produce the same records
// (timestamps that fail to parse are stamped with the injected clock, which
// tests pin). It never touches the filesystem or the database.
package logparse

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/cmericli/claude-remote/internal/model"
)

// Record types discriminated by the top-level "type" field. user/assistant
// become messages; system carries session-scoped counters; the rest are
// tolerated but not indexed.
var toleratedTypes = map[string]bool{
	"progress":              true,
	"file-history-snapshot": true,
	"queue-operation":       true,
	"summary":               true,
}

// SessionMeta holds session-level metadata captured from any line that
// carries it. First writer wins, matching the original file semantics
// where these fields repeat on every entry.
type SessionMeta struct {
	Slug      string
	GitBranch string
	Version   string
	Cwd       string
	Model     string
}

// Result is the output of parsing a batch of lines. File events ride on
// their originating message so ingestion can skip them together when a
// message turns out to be a duplicate.
type Result struct {
	Messages []model.Message
	Meta     SessionMeta

	// DurationMs accumulates system turn_duration entries. It feeds the
	// session duration counter only, never token totals.
	DurationMs int64

	FirstTimestamp time.Time
	LastTimestamp  time.Time

	Malformed    int
	UnknownTypes int
}

// Parser turns JSONL lines into records. The zero value is not usable;
// construct with New.
type Parser struct {
	now func() time.Time
}

// New returns a parser that stamps unparseable timestamps with now.
func New(now func() time.Time) *Parser {
	if now == nil {
		now = time.Now
	}
	return &Parser{now: now}
}

type rawEntry struct {
	Type       string      `json:"type"`
	Subtype    string      `json:"subtype"`
	UUID       string      `json:"uuid"`
	ParentUUID string      `json:"parentUuid"`
	SessionID  string      `json:"sessionId"`
	Slug       string      `json:"slug"`
	Cwd        string      `json:"cwd"`
	GitBranch  string      `json:"gitBranch"`
	Version    string      `json:"version"`
	Timestamp  string      `json:"timestamp"`
	DurationMs int64       `json:"durationMs"`
	Message    *rawMessage `json:"message"`
}

type rawMessage struct {
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
	Usage   *rawUsage       `json:"usage"`
}

type rawUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
}

// rawBlock is one element of a content array. The shape is a tagged
// variant: exactly one of the payload fields is meaningful per type.
type rawBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text"`
	Thinking string          `json:"thinking"`
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Input    json.RawMessage `json:"input"`
}

// ParseLines parses a batch of complete lines belonging to the file
// identified by sessionIDHint. A line carrying its own session id
// overrides the hint.
func (p *Parser) ParseLines(sessionIDHint string, lines [][]byte) *Result {
	res := &Result{}

	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var entry rawEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			res.Malformed++
			continue
		}

		p.captureMeta(res, &entry)

		ts, ok := parseTimestamp(entry.Timestamp)
		if !ok {
			ts = p.now().UTC()
		}
		updateTimeRange(res, ts)

		switch entry.Type {
		case model.RoleUser, model.RoleAssistant:
			p.parseMessage(res, sessionIDHint, &entry, ts)
		case model.RoleSystem:
			if entry.Subtype == "turn_duration" {
				res.DurationMs += entry.DurationMs
			}
		default:
			if !toleratedTypes[entry.Type] {
				res.UnknownTypes++
			}
		}
	}

	return res
}

func (p *Parser) captureMeta(res *Result, entry *rawEntry) {
	if res.Meta.Slug == "" && entry.Slug != "" {
		res.Meta.Slug = entry.Slug
	}
	if res.Meta.GitBranch == "" && entry.GitBranch != "" {
		res.Meta.GitBranch = entry.GitBranch
	}
	if res.Meta.Version == "" && entry.Version != "" {
		res.Meta.Version = entry.Version
	}
	if res.Meta.Cwd == "" && entry.Cwd != "" {
		res.Meta.Cwd = entry.Cwd
	}
}

func (p *Parser) parseMessage(res *Result, sessionIDHint string, entry *rawEntry, ts time.Time) {
	if entry.Message == nil {
		return
	}

	sessionID := entry.SessionID
	if sessionID == "" {
		sessionID = sessionIDHint
	}

	role := entry.Message.Role
	if role == "" {
		role = entry.Type
	}
	if role != model.RoleUser && role != model.RoleAssistant {
		return
	}

	msg := model.Message{
		UUID:       entry.UUID,
		SessionID:  sessionID,
		ParentUUID: entry.ParentUUID,
		Role:       role,
		Model:      entry.Message.Model,
		Timestamp:  ts,
	}

	body, thinking, toolBlocks, hadToolResult, hadText := splitContent(entry.Message.Content)
	msg.ContentText = body
	msg.ThinkingText = thinking
	msg.HasThinking = len(bytes.TrimSpace([]byte(thinking))) > 0

	// A user turn consisting solely of tool results is plumbing, not an
	// utterance; it produces no message row.
	if role == model.RoleUser && hadToolResult && !hadText {
		return
	}

	if u := entry.Message.Usage; u != nil {
		msg.InputTokens = u.InputTokens
		msg.OutputTokens = u.OutputTokens
		msg.CacheRead = u.CacheReadInputTokens
		msg.CacheCreate = u.CacheCreationInputTokens
	}

	if res.Meta.Model == "" && entry.Message.Model != "" {
		res.Meta.Model = entry.Message.Model
	}

	for _, b := range toolBlocks {
		tu := model.ToolUse{
			ToolUseID:    b.ID,
			SessionID:    sessionID,
			MessageUUID:  msg.UUID,
			ToolName:     b.Name,
			InputSummary: summarizeToolInput(b.Name, b.Input),
			Timestamp:    ts,
		}
		msg.ToolUses = append(msg.ToolUses, tu)

		if fe, ok := fileEventFromTool(sessionID, b.Name, b.Input, ts); ok {
			msg.FileEvents = append(msg.FileEvents, fe)
		}
	}

	res.Messages = append(res.Messages, msg)
}

// splitContent flattens a message content value into body text, thinking
// text, and tool_use blocks. Content is either a bare string or an array
// of tagged blocks; unknown tags are tolerated.
func splitContent(raw json.RawMessage) (body, thinking string, tools []rawBlock, hadToolResult, hadText bool) {
	if len(raw) == 0 {
		return "", "", nil, false, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, "", nil, false, s != ""
	}

	var blocks []json.RawMessage
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", "", nil, false, false
	}

	var textParts, thinkingParts []string
	for _, rb := range blocks {
		// Bare strings appear in older logs alongside block objects.
		var str string
		if err := json.Unmarshal(rb, &str); err == nil {
			textParts = append(textParts, str)
			hadText = true
			continue
		}

		var b rawBlock
		if err := json.Unmarshal(rb, &b); err != nil {
			continue
		}
		switch b.Type {
		case "text":
			textParts = append(textParts, b.Text)
			hadText = true
		case "thinking":
			thinkingParts = append(thinkingParts, b.Thinking)
		case "tool_use":
			tools = append(tools, b)
		case "tool_result":
			hadToolResult = true
		}
	}

	return joinNonEmpty(textParts), joinNonEmpty(thinkingParts), tools, hadToolResult, hadText
}

func joinNonEmpty(parts []string) string {
	var buf bytes.Buffer
	for _, p := range parts {
		if p == "" {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(p)
	}
	return buf.String()
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return ts.UTC(), true
}

func updateTimeRange(res *Result, ts time.Time) {
	if res.FirstTimestamp.IsZero() || ts.Before(res.FirstTimestamp) {
		res.FirstTimestamp = ts
	}
	if res.LastTimestamp.IsZero() || ts.After(res.LastTimestamp) {
		res.LastTimestamp = ts
	}
}
