package bacnet

import (
	"bytes"
	"testing"
)

// TestScenarioS1IAmRoundTrip exercises the round-trip property instead of
// a literal byte comparison: the worked example's stated vendor ID (260)
// is inconsistent with its own literal trailing bytes (`21 04`, which can
// only decode to vendor 4). See DESIGN.md for the discrepancy.
func TestScenarioS1IAmRoundTrip(t *testing.T) {
	deviceID := NewObjectIdentifier(ObjectTypeDevice, 123)
	vendor := uint32(260)

	body := make([]byte, 0, 16)
	body = append(body, EncodeObjectIdentifierTag(deviceID)...)
	body = append(body, EncodeUnsignedTag(MaxAPDULength)...)
	body = append(body, EncodeEnumeratedTag(uint32(SegmentationBoth))...)
	body = append(body, EncodeUnsignedTag(vendor)...)

	apduBytes := EncodeUnconfirmedRequest(ServiceIAm, body)

	apdu, err := DecodeAPDU(apduBytes)
	if err != nil {
		t.Fatalf("DecodeAPDU: %v", err)
	}
	if apdu.Type != PDUTypeUnconfirmedRequest {
		t.Fatalf("got PDU type %v, want unconfirmed request", apdu.Type)
	}
	if !bytes.Equal(apdu.Data, body) {
		t.Fatalf("service data round trip mismatch:\n got  % x\n want % x", apdu.Data, body)
	}

	_, headerLen, err := decodeTagAndValue(t, apdu.Data)
	if err != nil {
		t.Fatalf("decode object id tag: %v", err)
	}
	gotDevice := DecodeObjectIdentifierFromBytes(apdu.Data[headerLen : headerLen+4])
	if gotDevice != deviceID {
		t.Errorf("device id round trip: got %+v want %+v", gotDevice, deviceID)
	}
}

// decodeTagAndValue is a small test helper around DecodeTagNumber.
func decodeTagAndValue(t *testing.T, data []byte) (length int, headerLen int, err error) {
	t.Helper()
	_, _, length, headerLen, err = DecodeTagNumber(data)
	return length, headerLen, err
}

// TestScenarioS2ReadPropertyBytes checks the literal wire bytes from
// spec.md's S2 scenario, which (unlike S1) are internally consistent.
func TestScenarioS2ReadPropertyBytes(t *testing.T) {
	objectID := NewObjectIdentifier(ObjectTypeAnalogValue, 100)
	property := uint32(85) // present-value

	want := []byte{0x0C, 0x00, 0x80, 0x00, 0x64, 0x19, 0x55}

	got := make([]byte, 0, len(want))
	got = append(got, EncodeContextObjectIdentifier(0, objectID)...)
	got = append(got, EncodeContextEnumerated(1, property)...)

	if !bytes.Equal(got, want) {
		t.Fatalf("S2 bytes mismatch:\n got  % x\n want % x", got, want)
	}
}
