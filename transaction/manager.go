// Package transaction implements invoke-ID allocation and the
// confirmed-request transaction manager (C8), grounded in the
// teacher's client.go pending-request bookkeeping (pendingMu/pending
// map[uint8]chan *APDU) generalized into the bounded allocator and
// state machine spec.md requires, plus the teacher's atomic-counter
// and mutex-protected-map idioms.
package transaction

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/edgeo-scada/bacnet"
)

// State is a transaction's position in the lifecycle spec.md's C8
// names: created AwaitConfirmation on send, may move through segment
// states, and always ends in Complete before being reaped.
type State int

const (
	AwaitConfirmation State = iota
	AwaitSegment
	SegmentedRequest
	SegmentedResponse
	Complete
)

func (s State) String() string {
	switch s {
	case AwaitConfirmation:
		return "await-confirmation"
	case AwaitSegment:
		return "await-segment"
	case SegmentedRequest:
		return "segmented-request"
	case SegmentedResponse:
		return "segmented-response"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// DefaultTimeout and DefaultRetries match spec.md §5's APDU transaction
// defaults (30s, 3 retries).
const (
	DefaultTimeout = 30 * time.Second
	DefaultRetries = 3
)

// Transaction tracks one outstanding confirmed request, per spec.md's
// data model: (invoke_id, service_choice, state, timeout, retries).
type Transaction struct {
	InvokeID      uint8
	Peer          string // opaque per-peer key; uniqueness of invoke ids is scoped to this
	ServiceChoice bacnet.ConfirmedServiceChoice
	State         State
	Timeout       time.Duration
	MaxRetries    int
	retriesLeft   int
	deadline      time.Time
	resultCh      chan Result
	retrySend     func() error
}

// Result is delivered to the originator on completion, whether by ack,
// error/reject/abort, or final timeout.
type Result struct {
	APDU *bacnet.APDU
	Err  error
}

// Manager allocates invoke IDs per peer and tracks outstanding
// transactions. Uniqueness of invoke IDs is per-peer, not global, per
// spec.md's C8 note that "the specification permits multiple clients
// to independently use the same invoke ID toward different servers."
type Manager struct {
	mu           sync.Mutex
	nextID       map[string]uint8
	active       map[string]map[uint8]struct{}
	transactions map[string]map[uint8]*Transaction
	logger       *slog.Logger
}

// NewManager constructs an empty transaction manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		nextID:       make(map[string]uint8),
		active:       make(map[string]map[uint8]struct{}),
		transactions: make(map[string]map[uint8]*Transaction),
		logger:       logger,
	}
}

// Allocate returns the next free invoke ID for peer, advancing the
// per-peer cursor and skipping active IDs, or ErrInvokeIDSpaceExhausted
// if all 256 are active — spec.md's C8/DESIGN NOTES requirement that
// implementers check for "full" explicitly rather than looping forever.
func (m *Manager) Allocate(peer string) (uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocateLocked(peer)
}

func (m *Manager) allocateLocked(peer string) (uint8, error) {
	active := m.active[peer]
	if active == nil {
		active = make(map[uint8]struct{})
		m.active[peer] = active
	}
	if len(active) >= 256 {
		return 0, bacnet.ErrInvokeIDSpaceExhausted
	}
	start := m.nextID[peer]
	id := start
	for {
		if _, taken := active[id]; !taken {
			active[id] = struct{}{}
			m.nextID[peer] = id + 1
			return id, nil
		}
		id++
		if id == start {
			return 0, bacnet.ErrInvokeIDSpaceExhausted
		}
	}
}

// Release frees an invoke ID for peer so Allocate may return it again.
func (m *Manager) Release(peer string, id uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active[peer], id)
}

// Begin allocates an invoke ID, registers a transaction in
// AwaitConfirmation, and returns it plus a channel the caller reads
// its eventual Result from. retrySend re-sends the wire request and is
// invoked by the reaper on timeout, up to maxRetries times.
func (m *Manager) Begin(peer string, service bacnet.ConfirmedServiceChoice, timeout time.Duration, maxRetries int, retrySend func() error) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.allocateLocked(peer)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tx := &Transaction{
		InvokeID:      id,
		Peer:          peer,
		ServiceChoice: service,
		State:         AwaitConfirmation,
		Timeout:       timeout,
		MaxRetries:    maxRetries,
		retriesLeft:   maxRetries,
		deadline:      time.Now().Add(timeout),
		resultCh:      make(chan Result, 1),
		retrySend:     retrySend,
	}
	if m.transactions[peer] == nil {
		m.transactions[peer] = make(map[uint8]*Transaction)
	}
	m.transactions[peer][id] = tx
	return tx, nil
}

// Lookup finds the transaction for (peer, invokeID), if any.
func (m *Manager) Lookup(peer string, invokeID uint8) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[peer][invokeID]
	return tx, ok
}

// Complete marks a transaction Complete, delivers its result, and
// releases the invoke ID immediately (matching spec.md §5's
// cancellation rule that a completed/cancelled transaction frees its
// invoke ID right away rather than waiting for the reaper).
func (m *Manager) Complete(peer string, invokeID uint8, result Result) {
	m.mu.Lock()
	tx, ok := m.transactions[peer][invokeID]
	if ok {
		tx.State = Complete
		delete(m.transactions[peer], invokeID)
	}
	delete(m.active[peer], invokeID)
	m.mu.Unlock()
	if ok {
		select {
		case tx.resultCh <- result:
		default:
		}
	}
}

// Wait blocks until the transaction completes, the context is
// cancelled, or all retries are exhausted and the reaper delivers a
// final timeout error.
func (t *Transaction) Wait(ctx context.Context) (*bacnet.APDU, error) {
	select {
	case r := <-t.resultCh:
		return r.APDU, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReapOnce scans every active transaction and retries or times out the
// ones past their deadline. Intended to be called on a cadence (the
// teacher's receiver loop polls at 100ms; this is typically driven at
// ~1s, per spec.md §5).
func (m *Manager) ReapOnce() {
	now := time.Now()
	type toFinish struct {
		peer     string
		invokeID uint8
		err      error
	}
	type toRetry struct {
		tx *Transaction
	}
	m.mu.Lock()
	var finishes []toFinish
	var retries []toRetry
	for peer, byID := range m.transactions {
		for id, tx := range byID {
			if tx.State == Complete || now.Before(tx.deadline) {
				continue
			}
			if tx.retriesLeft > 0 {
				tx.retriesLeft--
				tx.deadline = now.Add(tx.Timeout)
				retries = append(retries, toRetry{tx: tx})
			} else {
				finishes = append(finishes, toFinish{peer: peer, invokeID: id, err: bacnet.ErrTimeout})
			}
		}
	}
	m.mu.Unlock()

	for _, r := range retries {
		if r.tx.retrySend == nil {
			continue
		}
		if err := r.tx.retrySend(); err != nil {
			m.logger.Warn("transaction retry send failed", "peer", r.tx.Peer, "invoke_id", r.tx.InvokeID, "error", err)
		}
	}
	for _, f := range finishes {
		m.Complete(f.peer, f.invokeID, Result{Err: f.err})
	}
}

// RunReaper runs ReapOnce on the given cadence until ctx is cancelled.
func (m *Manager) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ReapOnce()
		}
	}
}

// Cancel aborts a transaction early (originator cancellation or
// receipt of Abort/Reject), freeing its invoke ID immediately.
func (m *Manager) Cancel(peer string, invokeID uint8, err error) {
	if err == nil {
		err = bacnet.ErrUnknownTransaction
	}
	m.Complete(peer, invokeID, Result{Err: err})
}

// CancelAll completes every outstanding transaction across every peer
// with err, for use when the underlying connection is torn down.
func (m *Manager) CancelAll(err error) {
	m.mu.Lock()
	type target struct {
		peer     string
		invokeID uint8
	}
	var targets []target
	for peer, byID := range m.transactions {
		for id := range byID {
			targets = append(targets, target{peer: peer, invokeID: id})
		}
	}
	m.mu.Unlock()
	for _, t := range targets {
		m.Complete(t.peer, t.invokeID, Result{Err: err})
	}
}

// ActiveCount returns the number of active invoke IDs for peer, for metrics.
func (m *Manager) ActiveCount(peer string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active[peer])
}
