package indexer

import (
	"sync"
	"time"

	"github.com/cmericli/claude-remote/internal/bus"
	"github.com/cmericli/claude-remote/internal/model"
)

const (
	// Events for one session within this window collapse into a single
	// flush: the latest message preview wins and tool uses concatenate.
	coalesceWindow = 500 * time.Millisecond

	// Tool uses beyond this cap within one window are dropped.
	maxToolUsesPerFlush = 10

	previewLen = 120
)

type pendingEvents struct {
	message  *bus.NewMessagePayload
	toolUses []bus.ToolUsePayload
	dropped  int
	timer    *time.Timer
}

// coalescer batches per-session events into 500ms windows before
// publishing them on the session topic and the global topic.
type coalescer struct {
	bus *bus.Bus

	mu      sync.Mutex
	pending map[string]*pendingEvents
	stopped bool

	// DroppedToolEvents counts tool_use entries lost to the per-flush cap.
	DroppedToolEvents int64
}

func newCoalescer(b *bus.Bus) *coalescer {
	return &coalescer{bus: b, pending: make(map[string]*pendingEvents)}
}

func (c *coalescer) addMessage(m model.Message) {
	preview := m.ContentText
	if len(preview) > previewLen {
		preview = preview[:previewLen]
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	p := c.pendingFor(m.SessionID)
	p.message = &bus.NewMessagePayload{
		SessionID: m.SessionID,
		Role:      m.Role,
		Preview:   preview,
		Timestamp: m.Timestamp,
	}
}

func (c *coalescer) addToolUse(sessionID string, tu model.ToolUse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	p := c.pendingFor(sessionID)
	if len(p.toolUses) >= maxToolUsesPerFlush {
		p.dropped++
		c.DroppedToolEvents++
		return
	}
	p.toolUses = append(p.toolUses, bus.ToolUsePayload{
		ToolName:  tu.ToolName,
		Summary:   tu.InputSummary,
		Timestamp: tu.Timestamp,
	})
}

// pendingFor returns the session's open window, starting one if needed.
// Callers hold mu.
func (c *coalescer) pendingFor(sessionID string) *pendingEvents {
	p, ok := c.pending[sessionID]
	if !ok {
		p = &pendingEvents{}
		p.timer = time.AfterFunc(coalesceWindow, func() { c.flush(sessionID) })
		c.pending[sessionID] = p
	}
	return p
}

func (c *coalescer) flush(sessionID string) {
	c.mu.Lock()
	p, ok := c.pending[sessionID]
	if ok {
		delete(c.pending, sessionID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.publish(sessionID, p)
}

func (c *coalescer) publish(sessionID string, p *pendingEvents) {
	now := time.Now()
	topics := []string{sessionID, bus.TopicGlobal}

	if p.message != nil {
		ev := bus.Event{Type: bus.TypeNewMessage, SessionID: sessionID, Payload: *p.message, Time: now}
		for _, t := range topics {
			c.bus.Publish(t, ev)
		}
	}
	if len(p.toolUses) > 0 {
		ev := bus.Event{Type: bus.TypeToolUse, SessionID: sessionID, Payload: p.toolUses, Time: now}
		for _, t := range topics {
			c.bus.Publish(t, ev)
		}
	}
}

// stop flushes every open window and rejects further events.
func (c *coalescer) stop() {
	c.mu.Lock()
	c.stopped = true
	remaining := c.pending
	c.pending = make(map[string]*pendingEvents)
	c.mu.Unlock()

	for sid, p := range remaining {
		p.timer.Stop()
		c.publish(sid, p)
	}
}
