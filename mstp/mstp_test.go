package mstp

import (
	"testing"

	"github.com/edgeo-scada/bacnet"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	f := Frame{Type: FrameTypeBACnetDataNotExpectingReply, Destination: 5, Source: 1, Data: []byte{1, 2, 3, 4}}
	encoded, err := Encode(f)
	require.NoError(t, err)

	got, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, f, got)
}

func TestFrameWithoutDataRoundTrip(t *testing.T) {
	f := Frame{Type: FrameTypeToken, Destination: 2, Source: 1}
	encoded, err := Encode(f)
	require.NoError(t, err)
	got, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, f, got)
}

func TestHeaderCRCDetectsBitFlip(t *testing.T) {
	f := Frame{Type: FrameTypeToken, Destination: 2, Source: 1}
	encoded, err := Encode(f)
	require.NoError(t, err)

	encoded[3] ^= 0x01 // flip a bit in the header (dest byte)
	_, err = Decode(encoded)
	require.ErrorIs(t, err, bacnet.ErrMSTPFrameCRC)
}

func TestDataCRCDetectsBitFlip(t *testing.T) {
	f := Frame{Type: FrameTypeBACnetDataNotExpectingReply, Destination: 2, Source: 1, Data: []byte{0xAA, 0xBB}}
	encoded, err := Encode(f)
	require.NoError(t, err)

	encoded[len(encoded)-3] ^= 0x01 // flip a bit in the data payload
	_, err = Decode(encoded)
	require.ErrorIs(t, err, bacnet.ErrMSTPFrameCRC)
}

func TestSourceAddress255Rejected(t *testing.T) {
	_, err := Encode(Frame{Type: FrameTypeToken, Destination: 1, Source: 255})
	require.ErrorIs(t, err, bacnet.ErrMSTPInvalidAddress)
}

func TestIsMaster(t *testing.T) {
	require.True(t, IsMaster(0))
	require.True(t, IsMaster(127))
	require.False(t, IsMaster(128))
	require.False(t, IsMaster(255))
}

// TestTokenRotation implements spec.md's S5 scenario: three masters at
// addresses 1, 3, 5 with max_master=5. Master 1 passes to 2 even though
// no station is there, since NextStation always advances by one
// regardless of whether that address is populated.
func TestTokenRotation(t *testing.T) {
	node1, err := NewNode(1, 5, 1, nil)
	require.NoError(t, err)
	require.Equal(t, byte(2), node1.NextStation())

	node3, err := NewNode(3, 5, 1, nil)
	require.NoError(t, err)
	require.Equal(t, byte(4), node3.NextStation())

	node5, err := NewNode(5, 5, 1, nil)
	require.NoError(t, err)
	require.Equal(t, byte(0), node5.NextStation(), "wraps modulo max_master+1")
}

func TestReceiveTokenDrainsSendQueue(t *testing.T) {
	node, err := NewNode(1, 5, 2, nil)
	require.NoError(t, err)
	node.Enqueue([]byte("frame-a"))
	node.Enqueue([]byte("frame-b"))
	node.Enqueue([]byte("frame-c"))

	toSend, token := node.ReceiveToken()
	require.Len(t, toSend, 2, "max_info_frames caps how many are drained per token hold")
	require.Len(t, node.SendQueue, 1)
	require.Equal(t, FrameTypeToken, token.Type)
	require.Equal(t, byte(2), token.Destination)
	require.Equal(t, Idle, node.State)
}
