package logparse

import (
	"testing"
	"time"

	"github.com/cmericli/claude-remote/internal/model"
)

func fixedNow() time.Time {
	return time.Date(2026, 2, 6, 7, 0, 0, 0, time.UTC)
}

func parseAll(t *testing.T, lines ...string) *Result {
	t.Helper()
	raw := make([][]byte, len(lines))
	for i, l := range lines {
		raw[i] = []byte(l)
	}
	return New(fixedNow).ParseLines("sess-a", raw)
}

func TestParseLines_ColdIndex(t *testing.T) {
	res := parseAll(t,
		`{"type":"user","uuid":"u1","sessionId":"A","timestamp":"2026-02-06T06:46:54Z","message":{"role":"user","content":"hello"}}`,
		`{"type":"assistant","uuid":"a1","sessionId":"A","timestamp":"2026-02-06T06:46:55Z","message":{"role":"assistant","model":"claude-opus-4-6","content":[{"type":"thinking","thinking":"ok"},{"type":"text","text":"hi"},{"type":"tool_use","id":"t1","name":"Read","input":{"file_path":"/etc/hosts"}}],"usage":{"input_tokens":10,"output_tokens":5}}}`,
		`{"type":"system","subtype":"turn_duration","timestamp":"2026-02-06T06:46:56Z","durationMs":1200}`,
	)

	if len(res.Messages) != 2 {
		t.Fatalf("Messages = %d, want 2", len(res.Messages))
	}

	u1 := res.Messages[0]
	if u1.UUID != "u1" || u1.Role != "user" || u1.ContentText != "hello" {
		t.Errorf("user message = %+v", u1)
	}
	if u1.SessionID != "A" {
		t.Errorf("line session id should win over hint, got %q", u1.SessionID)
	}

	a1 := res.Messages[1]
	if a1.ContentText != "hi" {
		t.Errorf("ContentText = %q, want hi", a1.ContentText)
	}
	if a1.ThinkingText != "ok" || !a1.HasThinking {
		t.Errorf("thinking = %q has=%v", a1.ThinkingText, a1.HasThinking)
	}
	if a1.InputTokens != 10 || a1.OutputTokens != 5 {
		t.Errorf("tokens = %d/%d", a1.InputTokens, a1.OutputTokens)
	}

	if len(a1.ToolUses) != 1 {
		t.Fatalf("ToolUses = %d, want 1", len(a1.ToolUses))
	}
	tu := a1.ToolUses[0]
	if tu.ToolName != "Read" || tu.InputSummary != "hosts" {
		t.Errorf("tool use = %+v, want Read/hosts", tu)
	}

	if len(a1.FileEvents) != 1 {
		t.Fatalf("FileEvents = %d, want 1", len(a1.FileEvents))
	}
	fe := a1.FileEvents[0]
	if fe.FilePath != "/etc/hosts" || fe.EventType != model.EventRead {
		t.Errorf("file event = %+v", fe)
	}

	if res.DurationMs != 1200 {
		t.Errorf("DurationMs = %d, want 1200", res.DurationMs)
	}
	if res.Meta.Model != "claude-opus-4-6" {
		t.Errorf("Meta.Model = %q", res.Meta.Model)
	}
}

func TestParseLines_SessionMetadata(t *testing.T) {
	res := parseAll(t,
		`{"type":"user","uuid":"u1","slug":"fix-auth","gitBranch":"main","version":"2.1.0","cwd":"/home/alice/proj","timestamp":"2026-02-06T06:46:54Z","message":{"role":"user","content":"x"}}`,
		`{"type":"user","uuid":"u2","slug":"other-slug","timestamp":"2026-02-06T06:46:55Z","message":{"role":"user","content":"y"}}`,
	)

	if res.Meta.Slug != "fix-auth" {
		t.Errorf("Slug = %q, first writer should win", res.Meta.Slug)
	}
	if res.Meta.GitBranch != "main" || res.Meta.Version != "2.1.0" || res.Meta.Cwd != "/home/alice/proj" {
		t.Errorf("Meta = %+v", res.Meta)
	}
}

func TestParseLines_ToolResultOnlyUserMessage(t *testing.T) {
	res := parseAll(t,
		`{"type":"user","uuid":"u1","timestamp":"2026-02-06T06:46:54Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"output"}]}}`,
		`{"type":"user","uuid":"u2","timestamp":"2026-02-06T06:46:55Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t2"},{"type":"text","text":"also a real message"}]}}`,
	)

	if len(res.Messages) != 1 {
		t.Fatalf("Messages = %d, want 1 (tool_result-only user turn skipped)", len(res.Messages))
	}
	if res.Messages[0].UUID != "u2" || res.Messages[0].ContentText != "also a real message" {
		t.Errorf("kept message = %+v", res.Messages[0])
	}
}

func TestParseLines_MalformedAndUnknown(t *testing.T) {
	res := parseAll(t,
		`not json at all`,
		`{"type":"user","uuid":"u1","timestamp":"2026-02-06T06:46:54Z","message":{"role":"user","content":"ok"}}`,
		`{"type":"wild-new-thing","timestamp":"2026-02-06T06:46:55Z"}`,
		`{"type":"progress","timestamp":"2026-02-06T06:46:56Z"}`,
	)

	if res.Malformed != 1 {
		t.Errorf("Malformed = %d, want 1", res.Malformed)
	}
	if res.UnknownTypes != 1 {
		t.Errorf("UnknownTypes = %d, want 1 (progress is tolerated)", res.UnknownTypes)
	}
	if len(res.Messages) != 1 {
		t.Errorf("Messages = %d, want 1", len(res.Messages))
	}
}

func TestParseLines_MalformedTimestampUsesClock(t *testing.T) {
	res := parseAll(t,
		`{"type":"user","uuid":"u1","timestamp":"garbage","message":{"role":"user","content":"x"}}`,
	)
	if len(res.Messages) != 1 {
		t.Fatalf("Messages = %d, want 1", len(res.Messages))
	}
	if !res.Messages[0].Timestamp.Equal(fixedNow()) {
		t.Errorf("Timestamp = %v, want injected now", res.Messages[0].Timestamp)
	}
}

func TestParseLines_Deterministic(t *testing.T) {
	lines := []string{
		`{"type":"user","uuid":"u1","timestamp":"2026-02-06T06:46:54Z","message":{"role":"user","content":"hello"}}`,
		`{"type":"assistant","uuid":"a1","timestamp":"2026-02-06T06:46:55Z","message":{"role":"assistant","content":[{"type":"text","text":"hi"}],"usage":{"input_tokens":1}}}`,
	}
	first := parseAll(t, lines...)
	second := parseAll(t, lines...)

	if len(first.Messages) != len(second.Messages) {
		t.Fatalf("message counts differ: %d vs %d", len(first.Messages), len(second.Messages))
	}
	for i := range first.Messages {
		a, b := first.Messages[i], second.Messages[i]
		if a.UUID != b.UUID || a.ContentText != b.ContentText || !a.Timestamp.Equal(b.Timestamp) {
			t.Errorf("message %d differs between runs", i)
		}
	}
}

func TestSummarizeToolInput(t *testing.T) {
	tests := []struct {
		name  string
		tool  string
		input string
		want  string
	}{
		{"read basename", "Read", `{"file_path":"/home/alice/proj/main.go"}`, "main.go"},
		{"write basename", "Write", `{"file_path":"/tmp/out.txt"}`, "out.txt"},
		{"bash command", "Bash", `{"command":"go test ./..."}`, "go test ./..."},
		{"grep pattern", "Grep", `{"pattern":"func main"}`, "func main"},
		{"glob pattern", "Glob", `{"pattern":"**/*.go"}`, "**/*.go"},
		{"task subject", "Task", `{"subject":"Refactor parser"}`, "Refactor parser"},
		{"task update description fallback", "TaskUpdate", `{"subject":"","description":"fix tests"}`, "fix tests"},
		{"unknown tool", "WebFetch", `{"url":"https://example.com"}`, ""},
		{"no input", "Read", ``, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := summarizeToolInput(tt.tool, []byte(tt.input))
			if got != tt.want {
				t.Errorf("summarizeToolInput(%s, %s) = %q, want %q", tt.tool, tt.input, got, tt.want)
			}
		})
	}
}

func TestSummarizeToolInput_Truncation(t *testing.T) {
	long := make([]byte, 0, 300)
	long = append(long, `{"command":"`...)
	for i := 0; i < 200; i++ {
		long = append(long, 'x')
	}
	long = append(long, `"}`...)

	got := summarizeToolInput("Bash", long)
	if len(got) != summaryMaxLen {
		t.Errorf("len = %d, want %d", len(got), summaryMaxLen)
	}
}

func TestFileEventFromTool(t *testing.T) {
	ts := fixedNow()
	tests := []struct {
		name     string
		tool     string
		input    string
		wantPath string
		wantType string
		wantOK   bool
	}{
		{"read", "Read", `{"file_path":"/a/b.go"}`, "/a/b.go", model.EventRead, true},
		{"glob path", "Glob", `{"pattern":"*.go","path":"/src"}`, "/src", model.EventRead, true},
		{"write", "Write", `{"file_path":"/a/new.go"}`, "/a/new.go", model.EventCreate, true},
		{"edit", "Edit", `{"file_path":"/a/b.go"}`, "/a/b.go", model.EventEdit, true},
		{"bash", "Bash", `{"command":"make build"}`, "make build", model.EventBash, true},
		{"glob without path", "Glob", `{"pattern":"*.go"}`, "", "", false},
		{"non-file tool", "Task", `{"subject":"x"}`, "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe, ok := fileEventFromTool("A", tt.tool, []byte(tt.input), ts)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if fe.FilePath != tt.wantPath || fe.EventType != tt.wantType {
				t.Errorf("event = %+v, want %s/%s", fe, tt.wantPath, tt.wantType)
			}
		})
	}
}

// FuzzParseLines checks the parser never panics on arbitrary bytes; it
// ingests untrusted files.
func FuzzParseLines(f *testing.F) {
	f.Add([]byte(`{"type":"user","uuid":"u1","message":{"role":"user","content":"hi"}}`))
	f.Add([]byte(`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Read","input":{"file_path":"/x"}}]}}`))
	f.Add([]byte(`{"type":"system","subtype":"turn_duration","durationMs":5}`))
	f.Add([]byte(`{"type":null}`))
	f.Add([]byte(`{"message":{"content":[[]]}}`))
	f.Add([]byte(`not json`))
	f.Add([]byte(``))

	parser := New(fixedNow)
	f.Fuzz(func(t *testing.T, data []byte) {
		res := parser.ParseLines("fuzz", [][]byte{data})
		for _, m := range res.Messages {
			if m.Role != model.RoleUser && m.Role != model.RoleAssistant {
				t.Errorf("unexpected role %q", m.Role)
			}
		}
	})
}
