// Package cov implements the server-side Change-of-Value subscription
// manager (C10): bookkeeping for who is watching which object/property
// and for how long, plus the tick/sweep lifecycle that expires
// subscriptions and the dedup-on-resubscribe rule ASHRAE 135 requires.
// Grounded in the teacher's client.go covMu/covSubs map (the client
// side of COV) generalized to the device side, and keyed the way
// spec.md's data model specifies rather than by invoke ID.
package cov

import (
	"sync"
	"time"

	"github.com/edgeo-scada/bacnet"
	"github.com/rs/xid"
)

// Key identifies one subscription per ASHRAE 135's dedup rule:
// (subscriber device, subscriber process, monitored object, optional
// property). HasProperty == false means "whole object" (PresentValue
// plus StatusFlags, the ordinary COV scope) and Property is ignored.
type Key struct {
	SubscriberDevice  uint32
	SubscriberProcess uint32
	Object            bacnet.ObjectIdentifier
	Property          bacnet.PropertyIdentifier
	HasProperty       bool
}

// Subscription is one active COV watch.
type Subscription struct {
	Key
	Token          string // correlation token for logging/tracing
	Confirmed      bool
	RemainingS     float64 // seconds left before expiry; 0 with Lifetime==0 means indefinite
	Lifetime       uint32  // original requested lifetime in seconds, 0 = indefinite
	IncrementOnly  bool    // COV-increment supplied (property subscriptions only)
	Increment      float32
	Destination    string // transport-level address to notify
}

// Manager tracks active subscriptions for a single device.
type Manager struct {
	mu   sync.Mutex
	subs map[Key]*Subscription
}

// NewManager constructs an empty subscription manager.
func NewManager() *Manager {
	return &Manager{subs: make(map[Key]*Subscription)}
}

// Add registers a subscription, replacing any existing one with the
// same Key — ASHRAE 135 treats a resubscribe as a refresh, not an
// error, per spec.md's C10 contract.
func (m *Manager) Add(k Key, confirmed bool, lifetimeSeconds uint32, destination string) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := &Subscription{
		Key:         k,
		Token:       xid.New().String(),
		Confirmed:   confirmed,
		Lifetime:    lifetimeSeconds,
		RemainingS:  float64(lifetimeSeconds),
		Destination: destination,
	}
	m.subs[k] = sub
	return sub
}

// Remove cancels a subscription. Per spec.md §9's resolution of the
// ASHRAE-vs-reference-implementation ambiguity: a SubscribeCOV request
// with lifetime=0 and no confirmed-notifications flag present is
// treated as an explicit cancellation (the ASHRAE reading), not as "no
// explicit COV expiration". Idempotent.
func (m *Manager) Remove(k Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, k)
}

// SubscribersFor returns every subscription watching object, whole-
// object subscriptions first, then property-scoped ones matching prop.
func (m *Manager) SubscribersFor(object bacnet.ObjectIdentifier, prop bacnet.PropertyIdentifier) []*Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	var whole, scoped []*Subscription
	for k, sub := range m.subs {
		if k.Object != object {
			continue
		}
		if !k.HasProperty {
			whole = append(whole, sub)
		} else if k.Property == prop {
			scoped = append(scoped, sub)
		}
	}
	return append(whole, scoped...)
}

// Tick advances every subscription's remaining lifetime by elapsedS
// seconds. Subscriptions with Lifetime==0 (indefinite) are unaffected.
func (m *Manager) Tick(elapsedS float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subs {
		if sub.Lifetime == 0 {
			continue
		}
		sub.RemainingS -= elapsedS
	}
}

// SweepExpired removes every finite-lifetime subscription whose
// remaining time has reached zero or below, returning the removed
// subscriptions so the caller can clean up any per-subscription state.
func (m *Manager) SweepExpired() []*Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []*Subscription
	for k, sub := range m.subs {
		if sub.Lifetime != 0 && sub.RemainingS <= 0 {
			expired = append(expired, sub)
			delete(m.subs, k)
		}
	}
	return expired
}

// Count returns the number of active subscriptions, for metrics.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Get looks up a subscription by key.
func (m *Manager) Get(k Key) (*Subscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[k]
	return sub, ok
}

// RunSweeper ticks and sweeps on a cadence until stop is closed, calling
// onExpire for each subscription removed by timeout.
func (m *Manager) RunSweeper(interval time.Duration, stop <-chan struct{}, onExpire func(*Subscription)) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last).Seconds()
			last = now
			m.Tick(elapsed)
			for _, sub := range m.SweepExpired() {
				if onExpire != nil {
					onExpire(sub)
				}
			}
		}
	}
}
