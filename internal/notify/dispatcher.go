// Package notify delivers needs-input notifications through an injected
// delivery port, under per-session and global rate limits.
package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cmericli/claude-remote/internal/bus"
	"github.com/cmericli/claude-remote/internal/model"
	"github.com/cmericli/claude-remote/internal/store"
)

// Result classifies a delivery attempt.
type Result int

// Delivery outcomes. Permanent failures retire the subscription.
const (
	ResultOK Result = iota
	ResultTransient
	ResultPermanent
)

// DeliveryPort is the injected push transport. The core is
// protocol-agnostic: whatever speaks to the subscription endpoint lives
// behind this interface.
type DeliveryPort interface {
	Deliver(ctx context.Context, sub model.PushSubscription, payload bus.NeedsInputPayload) Result
}

// LogPort is the default port: it only logs. Useful until a real push
// adapter is injected.
type LogPort struct{}

// Deliver implements DeliveryPort.
func (LogPort) Deliver(_ context.Context, sub model.PushSubscription, payload bus.NeedsInputPayload) Result {
	log.Printf("notify: would deliver needs_input for %s to %s", payload.SessionID, sub.Endpoint)
	return ResultOK
}

// Dispatcher consumes needs_input events and fans them out to registered
// subscriptions.
type Dispatcher struct {
	store   *store.Store
	bus     *bus.Bus
	port    DeliveryPort
	timeout time.Duration

	cooldown  time.Duration
	hourlyCap int
	now       func() time.Time

	mu        sync.Mutex
	lastSent  map[string]time.Time
	delivered []time.Time
}

// New wires a dispatcher. now defaults to time.Now.
func New(s *store.Store, b *bus.Bus, port DeliveryPort, cooldown time.Duration, hourlyCap int, timeout time.Duration, now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	if port == nil {
		port = LogPort{}
	}
	return &Dispatcher{
		store:     s,
		bus:       b,
		port:      port,
		timeout:   timeout,
		cooldown:  cooldown,
		hourlyCap: hourlyCap,
		now:       now,
		lastSent:  make(map[string]time.Time),
	}
}

// Run consumes the global topic until ctx is canceled. Recoverable errors
// are logged and the loop continues.
func (d *Dispatcher) Run(ctx context.Context) error {
	sub := d.bus.Subscribe(bus.TopicGlobal)
	defer func() { d.bus.Unsubscribe(sub) }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				sub = d.bus.Subscribe(bus.TopicGlobal)
				continue
			}
			if ev.Type != bus.TypeNeedsInput {
				continue
			}
			payload, ok := ev.Payload.(bus.NeedsInputPayload)
			if !ok {
				continue
			}
			d.Dispatch(ctx, payload)
		}
	}
}

// Dispatch sends one needs-input notification to every registered
// subscription, within the rate limits.
func (d *Dispatcher) Dispatch(ctx context.Context, payload bus.NeedsInputPayload) {
	now := d.now()

	d.mu.Lock()
	if last, ok := d.lastSent[payload.SessionID]; ok && now.Sub(last) < d.cooldown {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	subs, err := d.store.PushSubscriptions()
	if err != nil {
		log.Printf("notify: listing subscriptions: %v", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	sent := false
	for _, sub := range subs {
		if !d.reserveDelivery(now) {
			log.Printf("notify: global hourly cap reached, skipping remaining deliveries")
			break
		}

		dctx, cancel := context.WithTimeout(ctx, d.timeout)
		result := d.port.Deliver(dctx, sub, payload)
		cancel()

		switch result {
		case ResultOK:
			sent = true
		case ResultTransient:
			log.Printf("notify: transient failure delivering to %s", sub.Endpoint)
		case ResultPermanent:
			log.Printf("notify: permanent failure, deleting subscription %s", sub.Endpoint)
			if err := d.store.DeletePushSubscription(sub.Endpoint); err != nil {
				log.Printf("notify: deleting subscription: %v", err)
			}
		}
	}

	if sent {
		d.mu.Lock()
		d.lastSent[payload.SessionID] = now
		d.mu.Unlock()
	}
}

// reserveDelivery admits one delivery against the rolling-hour window.
func (d *Dispatcher) reserveDelivery(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := now.Add(-time.Hour)
	kept := d.delivered[:0]
	for _, t := range d.delivered {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	d.delivered = kept

	if len(d.delivered) >= d.hourlyCap {
		return false
	}
	d.delivered = append(d.delivered, now)
	return true
}
