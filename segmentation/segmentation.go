// Package segmentation implements outbound chopping and inbound
// reassembly of segmented APDUs (C9), grounded in the APDU.Segmented/
// MoreFollows/SequenceNum/WindowSize fields the teacher's protocol.go
// already decodes but never acts on, and in the teacher's
// mutex-protected-map idiom used throughout client.go.
package segmentation

import (
	"sort"
	"sync"
	"time"

	"github.com/edgeo-scada/bacnet"
)

// DefaultMaxConcurrentReassemblies and DefaultReassemblyTimeout match
// spec.md §5's segmentation resource limits.
const (
	DefaultMaxConcurrentReassemblies = 16
	DefaultReassemblyTimeout         = 60 * time.Second
)

// headerOverhead is the fixed byte cost of the confirmed-request APDU
// header (type/flags, max-segments/max-apdu, invoke-id, sequence
// number, window size, service choice) that must be subtracted from
// the negotiated max-APDU size before chopping the service payload.
const headerOverhead = 6

// Chop splits payload into segments no larger than maxAPDU minus
// header overhead, each in is-the window. maxSegments of 0 means
// "unlimited" per ASHRAE 135's encoding of the max-segments-accepted
// field; otherwise chopping more pieces than the peer accepts fails
// fast instead of sending a request guaranteed to be aborted.
func Chop(payload []byte, maxAPDU uint16, maxSegments uint8) ([][]byte, error) {
	chunkSize := int(maxAPDU) - headerOverhead
	if chunkSize <= 0 {
		chunkSize = 1
	}
	if len(payload) <= chunkSize {
		return [][]byte{payload}, nil
	}
	var segments [][]byte
	for offset := 0; offset < len(payload); offset += chunkSize {
		end := offset + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		segments = append(segments, payload[offset:end])
	}
	if maxSegments != 0 && len(segments) > int(maxSegments) {
		return nil, bacnet.ErrTooManySegments
	}
	return segments, nil
}

// key identifies one in-flight reassembly: a peer plus the invoke ID
// it chose (invoke IDs are peer-scoped, not global, matching the
// transaction manager's model).
type key struct {
	peer     string
	invokeID uint8
}

// buffer tracks inbound segments for one key.
type buffer struct {
	segments     map[uint8][]byte
	total        int // 0 until the final (more_follows=false) segment arrives
	windowSize   uint8
	lastActivity time.Time
}

// Reassembler collects inbound segments into complete APDU payloads.
type Reassembler struct {
	mu         sync.Mutex
	buffers    map[key]*buffer
	maxBuffers int
	timeout    time.Duration
}

// NewReassembler constructs a reassembler with the given capacity and
// per-reassembly timeout; zero values fall back to spec.md's defaults.
func NewReassembler(maxConcurrent int, timeout time.Duration) *Reassembler {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentReassemblies
	}
	if timeout <= 0 {
		timeout = DefaultReassemblyTimeout
	}
	return &Reassembler{
		buffers:    make(map[key]*buffer),
		maxBuffers: maxConcurrent,
		timeout:    timeout,
	}
}

// Accept ingests one inbound segment. It returns (payload, true, nil)
// once the final segment of the sequence has arrived and every
// sequence number from 0 up to the last is present with no gaps;
// otherwise it returns (nil, false, nil) while more segments are
// awaited. Duplicate segments are silently dropped.
func (r *Reassembler) Accept(peer string, invokeID uint8, apdu *bacnet.APDU) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{peer: peer, invokeID: invokeID}
	b, ok := r.buffers[k]
	if !ok {
		if len(r.buffers) >= r.maxBuffers {
			r.evictOldestLocked()
		}
		b = &buffer{segments: make(map[uint8][]byte), windowSize: apdu.WindowSize}
		r.buffers[k] = b
	}
	b.lastActivity = time.Now()

	if _, dup := b.segments[apdu.SequenceNum]; !dup {
		b.segments[apdu.SequenceNum] = apdu.Data
	}
	if !apdu.MoreFollows {
		b.total = int(apdu.SequenceNum) + 1
	}

	if b.total == 0 || len(b.segments) < b.total {
		return nil, false, nil
	}

	seqs := make([]int, 0, len(b.segments))
	for seq := range b.segments {
		seqs = append(seqs, int(seq))
	}
	sort.Ints(seqs)
	for i, seq := range seqs {
		if seq != i {
			return nil, false, nil // gap: still waiting on a missing segment
		}
	}

	var out []byte
	for i := 0; i < b.total; i++ {
		out = append(out, b.segments[uint8(i)]...)
	}
	delete(r.buffers, k)
	return out, true, nil
}

// MissingSegments reports which sequence numbers below the highest
// seen so far have not yet arrived, for a Segment-Ack NAK or similar
// retransmission request.
func (r *Reassembler) MissingSegments(peer string, invokeID uint8) []uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buffers[key{peer: peer, invokeID: invokeID}]
	if !ok {
		return nil
	}
	highest := uint8(0)
	for seq := range b.segments {
		if seq > highest {
			highest = seq
		}
	}
	var missing []uint8
	for i := uint8(0); i < highest; i++ {
		if _, ok := b.segments[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// evictOldestLocked drops the reassembly with the oldest lastActivity
// to make room for a new one, per spec.md's capacity-control rule.
// Caller must hold r.mu.
func (r *Reassembler) evictOldestLocked() {
	var oldestKey key
	var oldestTime time.Time
	first := true
	for k, b := range r.buffers {
		if first || b.lastActivity.Before(oldestTime) {
			oldestKey = k
			oldestTime = b.lastActivity
			first = false
		}
	}
	if !first {
		delete(r.buffers, oldestKey)
	}
}

// SweepExpired removes reassemblies that have been idle longer than
// the configured timeout, returning how many were dropped. Intended to
// be called periodically (spec.md's default sweep interval is 60s).
func (r *Reassembler) SweepExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	dropped := 0
	for k, b := range r.buffers {
		if now.Sub(b.lastActivity) > r.timeout {
			delete(r.buffers, k)
			dropped++
		}
	}
	return dropped
}

// Count returns the number of in-flight reassemblies, for metrics.
func (r *Reassembler) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffers)
}
