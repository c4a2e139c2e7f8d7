// Package ethdl implements BACnet's Ethernet data-link encapsulation
// (C11b, supplementing the spec's MS/TP-only data-link coverage):
// EtherType 0x82DC framing with an 802.2 LLC header, carrying a raw
// NPDU as payload. Grounded in mstp.Encode/Decode's frame-buffer
// style, generalized from a CRC-protected serial frame to a padded
// fixed-bounds Ethernet frame.
package ethdl

import "github.com/edgeo-scada/bacnet"

// EtherType is the BACnet-reserved Ethernet type field value.
const EtherType = 0x82DC

// LLCHeader is the fixed 802.2 LLC header BACnet uses on Ethernet,
// per spec.md §6.5.
var LLCHeader = [3]byte{0x82, 0x82, 0x03}

// MinFrameLen and MaxFrameLen are Ethernet's standard frame bounds;
// frames shorter than MinFrameLen are zero-padded to it.
const (
	MinFrameLen = 60
	MaxFrameLen = 1514
)

// Encode wraps an NPDU payload in the LLC header and pads the frame up
// to the Ethernet minimum. It does not prepend MAC addresses or the
// EtherType field, which belong to the physical frame the caller's NIC
// driver constructs; this is the BACnet-specific payload that goes
// inside it.
func Encode(npdu []byte) ([]byte, error) {
	frame := make([]byte, 0, len(LLCHeader)+len(npdu))
	frame = append(frame, LLCHeader[:]...)
	frame = append(frame, npdu...)
	if len(frame) > MaxFrameLen {
		return nil, bacnet.ErrInvalidAPDU
	}
	if len(frame) < MinFrameLen {
		padded := make([]byte, MinFrameLen)
		copy(padded, frame)
		frame = padded
	}
	return frame, nil
}

// Decode strips the LLC header from an Ethernet payload and returns
// everything after it. Zero padding added to reach the Ethernet minimum
// frame length is not removed: it cannot be told apart from NPDU bytes
// here, so it stays at the end of the returned slice.
func Decode(frame []byte) ([]byte, error) {
	if len(frame) < len(LLCHeader) {
		return nil, bacnet.ErrInvalidAPDU
	}
	var got [3]byte
	copy(got[:], frame[:3])
	if got != LLCHeader {
		return nil, bacnet.ErrInvalidAPDU
	}
	return frame[len(LLCHeader):], nil
}
