package segmentation

import (
	"bytes"
	"testing"
	"time"

	"github.com/edgeo-scada/bacnet"
	"github.com/stretchr/testify/require"
)

func TestChopSplitsIntoExpectedLengths(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 100)
	segments, err := Chop(payload, 30+headerOverhead, 0)
	require.NoError(t, err)
	require.Len(t, segments, 4)
	require.Len(t, segments[0], 30)
	require.Len(t, segments[1], 30)
	require.Len(t, segments[2], 30)
	require.Len(t, segments[3], 10)
}

func TestChopTooManySegmentsFailsFast(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 100)
	_, err := Chop(payload, 30+headerOverhead, 2)
	require.ErrorIs(t, err, bacnet.ErrTooManySegments)
}

// TestReassembleOutOfOrderWithDuplicate implements spec.md's S4 scenario:
// a 100-byte payload chopped into segments of 30/30/30/10 is fed to the
// reassembler out of order with a duplicate, and must come back byte for
// byte identical.
func TestReassembleOutOfOrderWithDuplicate(t *testing.T) {
	payload := bytes.Repeat([]byte{0xCD}, 100)
	segments, err := Chop(payload, 30+headerOverhead, 0)
	require.NoError(t, err)
	require.Len(t, segments, 4)

	r := NewReassembler(0, 0)
	order := []int{1, 3, 0, 2, 0} // last 0 is the duplicate

	var result []byte
	var complete bool
	for _, seq := range order {
		apdu := &bacnet.APDU{
			SequenceNum: uint8(seq),
			MoreFollows: seq != 3,
			Data:        segments[seq],
		}
		result, complete, err = r.Accept("peer", 1, apdu)
		require.NoError(t, err)
	}
	require.True(t, complete)
	require.Equal(t, payload, result)
	require.Equal(t, 0, r.Count())
}

func TestMissingSegments(t *testing.T) {
	r := NewReassembler(0, 0)
	_, _, err := r.Accept("peer", 1, &bacnet.APDU{SequenceNum: 0, MoreFollows: true, Data: []byte{1}})
	require.NoError(t, err)
	_, _, err = r.Accept("peer", 1, &bacnet.APDU{SequenceNum: 2, MoreFollows: false, Data: []byte{3}})
	require.NoError(t, err)

	missing := r.MissingSegments("peer", 1)
	require.Equal(t, []uint8{1}, missing)
}

func TestEvictionUnderCapacity(t *testing.T) {
	r := NewReassembler(1, 0)
	_, _, err := r.Accept("peer", 1, &bacnet.APDU{SequenceNum: 0, MoreFollows: true, Data: []byte{1}})
	require.NoError(t, err)
	require.Equal(t, 1, r.Count())

	_, _, err = r.Accept("peer", 2, &bacnet.APDU{SequenceNum: 0, MoreFollows: true, Data: []byte{2}})
	require.NoError(t, err)
	require.Equal(t, 1, r.Count(), "capacity of 1 should evict the oldest buffer")
}

func TestSweepExpired(t *testing.T) {
	r := NewReassembler(0, time.Millisecond)
	_, _, err := r.Accept("peer", 1, &bacnet.APDU{SequenceNum: 0, MoreFollows: true, Data: []byte{1}})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	dropped := r.SweepExpired()
	require.Equal(t, 1, dropped)
	require.Equal(t, 0, r.Count())
}
