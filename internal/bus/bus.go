// Package bus is the in-process topic-keyed publish/subscribe fabric.
//
// Publishers never block: a subscriber whose queue is full loses its
// oldest event, and topics are capped at five concurrent subscribers so an
// accumulation of abandoned browser tabs cannot grow memory without bound.
package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TopicGlobal is the reserved dashboard topic. Per-session topics are the
// session ids themselves.
const TopicGlobal = "dashboard"

// Event types published by the core.
const (
	TypeSessionStarted = "session_started"
	TypeNewMessage     = "new_message"
	TypeToolUse        = "tool_use"
	TypeNeedsInput     = "needs_input"
)

// Event is one structured occurrence on a topic. ID is assigned at
// publish so stream clients can de-duplicate across reconnects.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Time      time.Time `json:"time"`
}

const (
	queueCapacity   = 256
	maxSubsPerTopic = 5
)

// Subscription is a live handle on a topic. Receive events from C; call
// Bus.Unsubscribe (or rely on the topic cap) to release it. C is closed on
// unsubscribe.
type Subscription struct {
	Topic string
	C     <-chan Event

	ch      chan Event
	seq     uint64
	dropped uint64
	closed  bool
}

// Dropped returns how many events this subscriber has lost to overflow.
func (s *Subscription) Dropped() uint64 {
	return s.dropped
}

// Bus routes events to per-topic subscriber lists.
type Bus struct {
	mu      sync.Mutex
	topics  map[string][]*Subscription
	nextSeq uint64
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{topics: make(map[string][]*Subscription)}
}

// Subscribe registers a new subscriber on the topic. If the topic already
// has the maximum number of subscribers, the oldest one is force-closed to
// make room.
func (b *Bus) Subscribe(topic string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, queueCapacity)
	b.nextSeq++
	sub := &Subscription{Topic: topic, C: ch, ch: ch, seq: b.nextSeq}

	subs := b.topics[topic]
	if len(subs) >= maxSubsPerTopic {
		oldest := subs[0]
		subs = subs[1:]
		b.closeLocked(oldest)
	}
	b.topics[topic] = append(subs, sub)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Calling it more
// than once, or on a subscriber already evicted by the topic cap, is a
// no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[sub.Topic]
	for i, s := range subs {
		if s == sub {
			b.topics[sub.Topic] = append(subs[:i], subs[i+1:]...)
			if len(b.topics[sub.Topic]) == 0 {
				delete(b.topics, sub.Topic)
			}
			b.closeLocked(sub)
			return
		}
	}
}

// Publish delivers the event to every subscriber of the topic without
// blocking. A full subscriber queue drops its oldest event first.
func (b *Bus) Publish(topic string, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.topics[topic] {
		if sub.closed {
			continue
		}
		for {
			select {
			case sub.ch <- ev:
			default:
				// Queue full: evict the oldest queued event and retry.
				select {
				case <-sub.ch:
					sub.dropped++
				default:
				}
				continue
			}
			break
		}
	}
}

// SubscriberCount returns the number of live subscribers on a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

func (b *Bus) closeLocked(sub *Subscription) {
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}
