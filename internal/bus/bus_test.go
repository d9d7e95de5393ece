package bus

import (
	"fmt"
	"testing"
)

func drain(sub *Subscription) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPublishDeliversInOrder(t *testing.T) {
	b := New()
	sub := b.Subscribe("a")

	for i := 0; i < 10; i++ {
		b.Publish("a", Event{Type: TypeNewMessage, SessionID: fmt.Sprintf("%d", i)})
	}

	got := drain(sub)
	if len(got) != 10 {
		t.Fatalf("delivered = %d, want 10", len(got))
	}
	for i, ev := range got {
		if ev.SessionID != fmt.Sprintf("%d", i) {
			t.Errorf("event %d = %s, out of order", i, ev.SessionID)
		}
	}
}

func TestPublishDoesNotCrossTopics(t *testing.T) {
	b := New()
	subA := b.Subscribe("a")
	subB := b.Subscribe("b")

	b.Publish("a", Event{Type: TypeNewMessage})

	if got := drain(subA); len(got) != 1 {
		t.Errorf("topic a delivered = %d, want 1", len(got))
	}
	if got := drain(subB); len(got) != 0 {
		t.Errorf("topic b delivered = %d, want 0", len(got))
	}
}

func TestOverflowDropsOldest(t *testing.T) {
	b := New()
	sub := b.Subscribe("a")

	total := queueCapacity + 5
	for i := 0; i < total; i++ {
		b.Publish("a", Event{SessionID: fmt.Sprintf("%d", i)})
	}

	got := drain(sub)
	if len(got) != queueCapacity {
		t.Fatalf("delivered = %d, want %d", len(got), queueCapacity)
	}
	// The oldest five were dropped; delivery starts at 5 and stays ordered.
	for i, ev := range got {
		want := fmt.Sprintf("%d", i+5)
		if ev.SessionID != want {
			t.Fatalf("event %d = %s, want %s (drops must not reorder)", i, ev.SessionID, want)
		}
	}
	if sub.Dropped() != 5 {
		t.Errorf("Dropped = %d, want 5", sub.Dropped())
	}
}

func TestSubscriberCapEvictsOldest(t *testing.T) {
	b := New()

	first := b.Subscribe("a")
	for i := 0; i < maxSubsPerTopic-1; i++ {
		b.Subscribe("a")
	}
	if n := b.SubscriberCount("a"); n != maxSubsPerTopic {
		t.Fatalf("SubscriberCount = %d, want %d", n, maxSubsPerTopic)
	}

	b.Subscribe("a")
	if n := b.SubscriberCount("a"); n != maxSubsPerTopic {
		t.Errorf("SubscriberCount = %d after overflow, want %d", n, maxSubsPerTopic)
	}

	// The evicted subscriber's channel is closed.
	if _, ok := <-first.C; ok {
		t.Error("oldest subscriber should have been closed")
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	b := New()
	sub := b.Subscribe("a")

	b.Unsubscribe(sub)
	b.Unsubscribe(sub) // second call is a no-op
	b.Unsubscribe(nil)

	if n := b.SubscriberCount("a"); n != 0 {
		t.Errorf("SubscriberCount = %d, want 0", n)
	}
}

func TestPublishAfterUnsubscribe(t *testing.T) {
	b := New()
	sub := b.Subscribe("a")
	b.Unsubscribe(sub)

	// Must not panic on the closed channel.
	b.Publish("a", Event{Type: TypeNewMessage})
}
