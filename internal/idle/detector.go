// Package idle decides when a session is waiting for user input.
//
// The heuristic is deliberately cheap: an assistant that has written a
// final message and then gone quiet beyond the threshold is, operationally,
// waiting. It needs no cooperation from the assistant process.
package idle

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cmericli/claude-remote/internal/bus"
	"github.com/cmericli/claude-remote/internal/model"
	"github.com/cmericli/claude-remote/internal/store"
)

// lookback bounds the scan to recently active sessions.
const lookback = 24 * time.Hour

// Detector periodically scans recent sessions and publishes needs_input
// transitions on the global topic.
type Detector struct {
	store     *store.Store
	bus       *bus.Bus
	interval  time.Duration
	threshold time.Duration
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// New wires a detector. now defaults to time.Now.
func New(s *store.Store, b *bus.Bus, interval, threshold, cooldown time.Duration, now func() time.Time) *Detector {
	if now == nil {
		now = time.Now
	}
	return &Detector{
		store:     s,
		bus:       b,
		interval:  interval,
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
		lastSent:  make(map[string]time.Time),
	}
}

// Run scans on the configured cadence until ctx is canceled. A user
// message on any session clears that session's cooldown so the next idle
// period is reported promptly.
func (d *Detector) Run(ctx context.Context) error {
	sub := d.bus.Subscribe(bus.TopicGlobal)
	defer func() { d.bus.Unsubscribe(sub) }()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				// Evicted by the topic cap; resubscribe.
				sub = d.bus.Subscribe(bus.TopicGlobal)
				continue
			}
			d.observe(ev)
		case <-ticker.C:
			if err := d.scanOnce(); err != nil {
				log.Printf("idle: scan: %v", err)
			}
		}
	}
}

// observe clears the per-session cooldown when the user speaks.
func (d *Detector) observe(ev bus.Event) {
	if ev.Type != bus.TypeNewMessage {
		return
	}
	p, ok := ev.Payload.(bus.NewMessagePayload)
	if !ok || p.Role != model.RoleUser {
		return
	}
	d.mu.Lock()
	delete(d.lastSent, p.SessionID)
	d.mu.Unlock()
}

// scanOnce publishes at most one needs_input per idle session per
// cooldown window.
func (d *Detector) scanOnce() error {
	now := d.now()

	lasts, err := d.store.LastMessages(now.Add(-lookback))
	if err != nil {
		return err
	}

	for _, lm := range lasts {
		if lm.Role != model.RoleAssistant {
			continue
		}
		idleFor := now.Sub(lm.Timestamp)
		if idleFor < d.threshold {
			continue
		}

		d.mu.Lock()
		last, sent := d.lastSent[lm.SessionID]
		if sent && now.Sub(last) < d.cooldown {
			d.mu.Unlock()
			continue
		}
		d.lastSent[lm.SessionID] = now
		d.mu.Unlock()

		d.bus.Publish(bus.TopicGlobal, bus.Event{
			Type:      bus.TypeNeedsInput,
			SessionID: lm.SessionID,
			Payload: bus.NeedsInputPayload{
				SessionID:   lm.SessionID,
				Slug:        lm.Slug,
				LastMessage: lm.Preview,
				IdleSeconds: int64(idleFor.Seconds()),
			},
			Time: now,
		})
	}
	return nil
}
