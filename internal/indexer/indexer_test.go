package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cmericli/claude-remote/internal/bus"
	"github.com/cmericli/claude-remote/internal/logparse"
	"github.com/cmericli/claude-remote/internal/model"
	"github.com/cmericli/claude-remote/internal/store"
	"github.com/cmericli/claude-remote/internal/watch"
)

type fixture struct {
	root string
	st   *store.Store
	bus  *bus.Bus
	ix   *Indexer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()

	st, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	b := bus.New()
	now := func() time.Time { return time.Date(2026, 2, 6, 7, 0, 0, 0, time.UTC) }
	ix := New(watch.New(root), logparse.New(now), st, b, 2*time.Second, 60*time.Second)
	return &fixture{root: root, st: st, bus: b, ix: ix}
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.root, "-home-alice-proj", name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func (f *fixture) append(t *testing.T, path, content string) {
	t.Helper()
	fh, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	defer fh.Close()
	if _, err := fh.WriteString(content); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) poll(t *testing.T) {
	t.Helper()
	if _, err := f.ix.watcher.Reconcile(); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if err := f.ix.pollOnce(); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
}

func waitEvent(t *testing.T, sub *bus.Subscription, eventType string) bus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				t.Fatal("subscription closed")
			}
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event within deadline", eventType)
		}
	}
}

const (
	lineU1  = `{"type":"user","uuid":"u1","sessionId":"sess-a","timestamp":"2026-02-06T06:46:54Z","message":{"role":"user","content":"hello"}}` + "\n"
	lineA1  = `{"type":"assistant","uuid":"a1","sessionId":"sess-a","timestamp":"2026-02-06T06:46:55Z","message":{"role":"assistant","model":"claude-opus-4-6","content":[{"type":"thinking","thinking":"ok"},{"type":"text","text":"hi"},{"type":"tool_use","id":"t1","name":"Read","input":{"file_path":"/etc/hosts"}}],"usage":{"input_tokens":10,"output_tokens":5}}}` + "\n"
	lineSys = `{"type":"system","subtype":"turn_duration","timestamp":"2026-02-06T06:46:56Z","durationMs":1200}` + "\n"
	lineU2  = `{"type":"user","uuid":"u2","sessionId":"sess-a","timestamp":"2026-02-06T06:46:59Z","message":{"role":"user","content":"next"}}` + "\n"
)

func TestColdIndex(t *testing.T) {
	f := newFixture(t)
	f.write(t, "sess-a.jsonl", lineU1+lineA1+lineSys)
	f.poll(t)

	sess, err := f.st.Session("sess-a")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if sess == nil {
		t.Fatal("session not indexed")
	}
	if sess.MessageCount != 2 || sess.UserMsgCount != 1 || sess.AsstMsgCount != 1 {
		t.Errorf("counts = %d/%d/%d", sess.MessageCount, sess.UserMsgCount, sess.AsstMsgCount)
	}
	if sess.InputTokens != 10 || sess.OutputTokens != 5 {
		t.Errorf("tokens = %d/%d", sess.InputTokens, sess.OutputTokens)
	}
	if sess.DurationMs != 1200 {
		t.Errorf("DurationMs = %d", sess.DurationMs)
	}

	msgs, total, found, err := f.st.Conversation("sess-a", 0, 0)
	if err != nil || !found {
		t.Fatalf("Conversation: %v found=%v", err, found)
	}
	if total != 2 || msgs[0].SeqNum != 0 || msgs[1].SeqNum != 1 {
		t.Errorf("conversation = total %d, seqs %d,%d", total, msgs[0].SeqNum, msgs[1].SeqNum)
	}

	files, err := f.st.FilesTouched("sess-a")
	if err != nil {
		t.Fatalf("FilesTouched: %v", err)
	}
	if len(files) != 1 || files[0].Path != "/etc/hosts" || files[0].EventType != "read" {
		t.Errorf("files = %+v", files)
	}

	hits, err := f.st.Search("hello", store.SearchFilter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("fts hits = %d, want 1", len(hits))
	}
}

func TestLiveAppendPublishesEvents(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "sess-a.jsonl", lineU1+lineA1)
	f.poll(t)
	// Let the initial batch flush before subscribing, so the assertions
	// below see only the appended message's events.
	time.Sleep(coalesceWindow + 200*time.Millisecond)

	sessionSub := f.bus.Subscribe("sess-a")
	globalSub := f.bus.Subscribe(bus.TopicGlobal)

	f.append(t, path, lineU2)
	f.poll(t)

	ev := waitEvent(t, sessionSub, bus.TypeNewMessage)
	payload, ok := ev.Payload.(bus.NewMessagePayload)
	if !ok {
		t.Fatalf("payload type %T", ev.Payload)
	}
	if payload.Role != "user" || payload.Preview != "next" {
		t.Errorf("payload = %+v", payload)
	}

	waitEvent(t, globalSub, bus.TypeNewMessage)

	msgs, _, _, _ := f.st.Conversation("sess-a", 0, 0)
	if msgs[len(msgs)-1].SeqNum != 2 {
		t.Errorf("appended message seq = %d, want 2", msgs[len(msgs)-1].SeqNum)
	}
}

func TestSessionStartedEvent(t *testing.T) {
	f := newFixture(t)
	sub := f.bus.Subscribe(bus.TopicGlobal)

	f.write(t, "sess-a.jsonl", lineU1)
	f.poll(t)

	ev := waitEvent(t, sub, bus.TypeSessionStarted)
	if ev.SessionID != "sess-a" {
		t.Errorf("SessionID = %q", ev.SessionID)
	}
}

func TestPartialLine(t *testing.T) {
	f := newFixture(t)
	whole := lineU1
	path := f.write(t, "sess-a.jsonl", whole[:40]) // mid-line
	f.poll(t)

	if sess, _ := f.st.Session("sess-a"); sess != nil && sess.MessageCount != 0 {
		t.Errorf("partial line produced a message")
	}

	f.append(t, path, whole[40:])
	f.poll(t)

	sess, _ := f.st.Session("sess-a")
	if sess == nil || sess.MessageCount != 1 {
		t.Fatalf("completing the line should produce exactly one message, got %+v", sess)
	}
}

func TestIdempotentSplitIngest(t *testing.T) {
	// Ingesting F in two line-aligned chunks equals ingesting F at once.
	f := newFixture(t)
	path := f.write(t, "sess-a.jsonl", lineU1)
	f.poll(t)
	f.append(t, path, lineA1+lineU2)
	f.poll(t)

	g := newFixture(t)
	g.write(t, "sess-a.jsonl", lineU1+lineA1+lineU2)
	g.poll(t)

	split, _ := f.st.Session("sess-a")
	whole, _ := g.st.Session("sess-a")

	if split.MessageCount != whole.MessageCount ||
		split.InputTokens != whole.InputTokens ||
		split.OutputTokens != whole.OutputTokens ||
		!split.LastMessage.Equal(whole.LastMessage) {
		t.Errorf("split ingest %+v differs from whole ingest %+v", split, whole)
	}
}

func TestRestartResumesFromWatermark(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "sess-a.jsonl", lineU1+lineA1)
	f.poll(t)

	// Simulate a restart: fresh watcher and indexer over the same store.
	states, err := f.st.IngestStates()
	if err != nil {
		t.Fatalf("IngestStates: %v", err)
	}
	offsets := make(map[string]int64)
	for p, st := range states {
		offsets[p] = st.Offset
	}

	w2 := watch.New(f.root)
	w2.Seed(offsets)
	ix2 := New(w2, logparse.New(nil), f.st, f.bus, 2*time.Second, 60*time.Second)

	f.append(t, path, lineU2)
	if _, err := w2.Reconcile(); err != nil {
		t.Fatal(err)
	}
	if err := ix2.pollOnce(); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}

	sess, _ := f.st.Session("sess-a")
	if sess.MessageCount != 3 {
		t.Errorf("MessageCount = %d, want 3 without duplicates", sess.MessageCount)
	}
}

func TestTruncationReingests(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "sess-a.jsonl", lineU1+lineA1+lineU2)
	f.poll(t)

	// The file restarts with a shorter, fresh transcript.
	if err := os.WriteFile(path, []byte(lineU1), 0o600); err != nil {
		t.Fatal(err)
	}
	f.poll(t)

	sess, _ := f.st.Session("sess-a")
	if sess.MessageCount != 1 {
		t.Errorf("MessageCount = %d, want 1 after truncation re-parse", sess.MessageCount)
	}
	msgs, _, _, _ := f.st.Conversation("sess-a", 0, 0)
	if len(msgs) != 1 || msgs[0].SeqNum != 0 {
		t.Errorf("sequence should restart with the fresh file: %+v", msgs)
	}
}

func TestToolUseEventCoalescing(t *testing.T) {
	b := bus.New()
	c := newCoalescer(b)
	sub := b.Subscribe("sess-a")

	for i := 0; i < 15; i++ {
		c.addToolUse("sess-a", model.ToolUse{
			ToolName:     "Read",
			InputSummary: fmt.Sprintf("file-%d.go", i),
			Timestamp:    time.Date(2026, 2, 6, 7, 0, i, 0, time.UTC),
		})
	}
	c.stop()

	ev := waitEvent(t, sub, bus.TypeToolUse)
	payload, ok := ev.Payload.([]bus.ToolUsePayload)
	if !ok {
		t.Fatalf("payload type %T", ev.Payload)
	}
	if len(payload) != maxToolUsesPerFlush {
		t.Errorf("tool uses = %d, want capped at %d", len(payload), maxToolUsesPerFlush)
	}
	if c.DroppedToolEvents != 5 {
		t.Errorf("DroppedToolEvents = %d, want 5", c.DroppedToolEvents)
	}
}
