package bacnet

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/bacnet/cov"
)

// fakeDevice is a minimal UDP peer that decodes one inbound
// BVLC/NPDU/APDU confirmed request and replies however the test wants.
type fakeDevice struct {
	conn *net.UDPConn
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	return &fakeDevice{conn: conn}
}

func (f *fakeDevice) addr() *net.UDPAddr {
	return f.conn.LocalAddr().(*net.UDPAddr)
}

func (f *fakeDevice) close() {
	f.conn.Close()
}

// recvInvokeID reads one packet and returns the confirmed request's
// invoke ID and the peer address to reply to.
func (f *fakeDevice) recvInvokeID(t *testing.T) (uint8, *net.UDPAddr) {
	t.Helper()
	buf := make([]byte, 2048)
	f.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, peer, err := f.conn.ReadFromUDP(buf)
	require.NoError(t, err)
	data := buf[:n]
	npduData := data[4:]
	npdu, offset, err := DecodeNPDU(npduData)
	require.NoError(t, err)
	apdu, err := DecodeAPDU(npduData[offset:])
	require.NoError(t, err)
	_ = npdu
	return apdu.InvokeID, peer
}

func (f *fakeDevice) sendSimpleAck(t *testing.T, peer *net.UDPAddr, invokeID uint8, service byte) {
	t.Helper()
	apdu := []byte{byte(PDUTypeSimpleAck), invokeID, service}
	npdu := EncodeNPDU(false, NPDUControlPriorityNormal)
	bvlc := EncodeBVLC(BVLCOriginalUnicastNPDU, len(npdu)+len(apdu))
	packet := append(append(bvlc, npdu...), apdu...)
	_, err := f.conn.WriteToUDP(packet, peer)
	require.NoError(t, err)
}

func (f *fakeDevice) sendComplexAck(t *testing.T, peer *net.UDPAddr, invokeID uint8, service byte, data []byte) {
	t.Helper()
	apdu := append([]byte{byte(PDUTypeComplexAck), invokeID, service}, data...)
	npdu := EncodeNPDU(false, NPDUControlPriorityNormal)
	bvlc := EncodeBVLC(BVLCOriginalUnicastNPDU, len(npdu)+len(apdu))
	packet := append(append(bvlc, npdu...), apdu...)
	_, err := f.conn.WriteToUDP(packet, peer)
	require.NoError(t, err)
}

func (f *fakeDevice) sendSegmentedComplexAck(t *testing.T, peer *net.UDPAddr, invokeID uint8, service byte, segments [][]byte) {
	t.Helper()
	for i, seg := range segments {
		more := i < len(segments)-1
		flags := byte(PDUTypeComplexAck) | 0x08
		if more {
			flags |= 0x04
		}
		apdu := []byte{flags, invokeID, service, byte(i), byte(len(segments))}
		apdu = append(apdu, seg...)
		npdu := EncodeNPDU(false, NPDUControlPriorityNormal)
		bvlc := EncodeBVLC(BVLCOriginalUnicastNPDU, len(npdu)+len(apdu))
		packet := append(append(bvlc, npdu...), apdu...)
		_, err := f.conn.WriteToUDP(packet, peer)
		require.NoError(t, err)
	}
}

// registerDevice makes dev resolvable as deviceID without a live
// Who-Is/I-Am exchange, embedding dev's actual (randomly assigned)
// port in the device address the way a BACnet/IP device beyond the
// default port would be addressed.
func registerDevice(c *Client, deviceID uint32, dev *fakeDevice) {
	addr := dev.addr()
	portBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(portBytes, uint16(addr.Port))
	full := append(append([]byte{}, addr.IP.To4()...), portBytes...)

	c.devicesMu.Lock()
	c.devices[deviceID] = &DeviceInfo{
		ObjectID:      NewObjectIdentifier(ObjectTypeDevice, deviceID),
		Address:       Address{Addr: full},
		MaxAPDULength: 1476,
	}
	c.devicesMu.Unlock()
}

func newConnectedClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(WithLocalAddress("127.0.0.1:0"), WithTimeout(2*time.Second), WithRetries(1))
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSendRequestSimpleAckRoundTrip(t *testing.T) {
	dev := newFakeDevice(t)
	defer dev.close()

	c := newConnectedClient(t)

	resultCh := make(chan *APDU, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := c.sendRequest(context.Background(), dev.addr(), ServiceWriteProperty, []byte{0x01, 0x02})
		resultCh <- resp
		errCh <- err
	}()

	invokeID, peer := dev.recvInvokeID(t)
	dev.sendSimpleAck(t, peer, invokeID, byte(ServiceWriteProperty))

	resp := <-resultCh
	err := <-errCh
	require.NoError(t, err)
	require.Equal(t, invokeID, resp.InvokeID)
	require.Equal(t, PDUTypeSimpleAck, resp.Type)
}

func TestSendRequestReassemblesSegmentedResponse(t *testing.T) {
	dev := newFakeDevice(t)
	defer dev.close()

	c := newConnectedClient(t)

	resultCh := make(chan *APDU, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := c.sendRequest(context.Background(), dev.addr(), ServiceReadProperty, []byte{0x01})
		resultCh <- resp
		errCh <- err
	}()

	invokeID, peer := dev.recvInvokeID(t)
	dev.sendSegmentedComplexAck(t, peer, invokeID, byte(ServiceReadProperty), [][]byte{
		{0xAA, 0xBB}, {0xCC, 0xDD},
	})

	resp := <-resultCh
	err := <-errCh
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD}, resp.Data)
}

func TestSendRequestTimesOutWithoutResponse(t *testing.T) {
	dev := newFakeDevice(t)
	defer dev.close()

	c, err := NewClient(WithLocalAddress("127.0.0.1:0"), WithTimeout(150*time.Millisecond), WithRetries(0))
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = c.sendRequest(ctx, dev.addr(), ServiceReadProperty, []byte{0x01})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestAtomicReadFileStreamRoundTrip(t *testing.T) {
	dev := newFakeDevice(t)
	defer dev.close()

	c := newConnectedClient(t)
	registerDevice(c, 1, dev)

	resultCh := make(chan []byte, 1)
	eofCh := make(chan bool, 1)
	errCh := make(chan error, 1)
	go func() {
		data, eof, err := c.AtomicReadFileStream(context.Background(), 1, NewObjectIdentifier(ObjectTypeFile, 1), 0, 5)
		resultCh <- data
		eofCh <- eof
		errCh <- err
	}()

	invokeID, peer := dev.recvInvokeID(t)

	ack := make([]byte, 0, 16)
	ack = append(ack, EncodeBooleanTag(true)...)
	ack = append(ack, EncodeOpeningTag(0)...)
	ack = append(ack, EncodeSignedTag(0)...)
	ack = append(ack, EncodeOctetStringTag([]byte("hello"))...)
	ack = append(ack, EncodeClosingTag(0)...)
	dev.sendComplexAck(t, peer, invokeID, byte(ServiceAtomicReadFile), ack)

	require.NoError(t, <-errCh)
	require.Equal(t, []byte("hello"), <-resultCh)
	require.True(t, <-eofCh)
}

func TestAtomicWriteFileStreamRoundTrip(t *testing.T) {
	dev := newFakeDevice(t)
	defer dev.close()

	c := newConnectedClient(t)
	registerDevice(c, 1, dev)

	resultCh := make(chan int32, 1)
	errCh := make(chan error, 1)
	go func() {
		pos, err := c.AtomicWriteFileStream(context.Background(), 1, NewObjectIdentifier(ObjectTypeFile, 1), 0, []byte("data"))
		resultCh <- pos
		errCh <- err
	}()

	invokeID, peer := dev.recvInvokeID(t)
	ack := EncodeContextSigned(0, 4)
	dev.sendComplexAck(t, peer, invokeID, byte(ServiceAtomicWriteFile), ack)

	require.NoError(t, <-errCh)
	require.Equal(t, int32(4), <-resultCh)
}

func TestAtomicReadFileRecordRoundTrip(t *testing.T) {
	dev := newFakeDevice(t)
	defer dev.close()

	c := newConnectedClient(t)
	registerDevice(c, 1, dev)

	resultCh := make(chan [][]byte, 1)
	eofCh := make(chan bool, 1)
	errCh := make(chan error, 1)
	go func() {
		records, eof, err := c.AtomicReadFileRecord(context.Background(), 1, NewObjectIdentifier(ObjectTypeFile, 1), 0, 2)
		resultCh <- records
		eofCh <- eof
		errCh <- err
	}()

	invokeID, peer := dev.recvInvokeID(t)

	ack := make([]byte, 0, 32)
	ack = append(ack, EncodeBooleanTag(false)...)
	ack = append(ack, EncodeOpeningTag(1)...)
	ack = append(ack, EncodeSignedTag(0)...)
	ack = append(ack, EncodeUnsignedTag(2)...)
	ack = append(ack, EncodeOctetStringTag([]byte("rec1"))...)
	ack = append(ack, EncodeOctetStringTag([]byte("rec2"))...)
	ack = append(ack, EncodeClosingTag(1)...)
	dev.sendComplexAck(t, peer, invokeID, byte(ServiceAtomicReadFile), ack)

	require.NoError(t, <-errCh)
	require.Equal(t, [][]byte{[]byte("rec1"), []byte("rec2")}, <-resultCh)
	require.False(t, <-eofCh)
}

func TestAtomicWriteFileRecordRoundTrip(t *testing.T) {
	dev := newFakeDevice(t)
	defer dev.close()

	c := newConnectedClient(t)
	registerDevice(c, 1, dev)

	resultCh := make(chan int32, 1)
	errCh := make(chan error, 1)
	go func() {
		pos, err := c.AtomicWriteFileRecord(context.Background(), 1, NewObjectIdentifier(ObjectTypeFile, 1), -1, [][]byte{[]byte("rec1"), []byte("rec2")})
		resultCh <- pos
		errCh <- err
	}()

	invokeID, peer := dev.recvInvokeID(t)
	ack := EncodeContextSigned(1, 2)
	dev.sendComplexAck(t, peer, invokeID, byte(ServiceAtomicWriteFile), ack)

	require.NoError(t, <-errCh)
	require.Equal(t, int32(2), <-resultCh)
}

func TestTimeSynchronizationBroadcasts(t *testing.T) {
	c := newConnectedClient(t)
	err := c.TimeSynchronization(context.Background(), Date{Year: 2026, Month: 8, Day: 1, DayOfWeek: 6}, Time{Hour: 12})
	require.NoError(t, err)
}

func TestUTCTimeSynchronizationBroadcasts(t *testing.T) {
	c := newConnectedClient(t)
	err := c.UTCTimeSynchronization(context.Background(), Date{Year: 2026, Month: 8, Day: 1, DayOfWeek: 6}, Time{Hour: 12})
	require.NoError(t, err)
}

func TestCOVNotificationDispatchesToHandler(t *testing.T) {
	c := newConnectedClient(t)

	received := make(chan uint32, 1)
	key := cov.Key{SubscriberDevice: c.opts.localDeviceID, SubscriberProcess: 7, Object: NewObjectIdentifier(ObjectTypeAnalogInput, 1)}
	c.covMgr.Add(key, false, 0, "test")
	c.covHandlersMu.Lock()
	c.covHandlers[key] = func(deviceID uint32, objectID ObjectIdentifier, values []PropertyValue) {
		received <- deviceID
	}
	c.covHandlersMu.Unlock()

	data := make([]byte, 0, 32)
	data = append(data, EncodeContextUnsigned(0, 7)...)
	data = append(data, EncodeContextUnsigned(1, 99)...)
	data = append(data, EncodeContextObjectIdentifier(2, NewObjectIdentifier(ObjectTypeAnalogInput, 1))...)
	data = append(data, EncodeContextUnsigned(3, 60)...)
	data = append(data, EncodeOpeningTag(4)...)
	data = append(data, EncodeContextEnumerated(0, uint32(PropertyPresentValue))...)
	data = append(data, EncodeOpeningTag(2)...)
	data = append(data, EncodeRealTag(42.0)...)
	data = append(data, EncodeClosingTag(2)...)
	data = append(data, EncodeClosingTag(4)...)

	c.handleCOVNotification(data)

	select {
	case deviceID := <-received:
		require.Equal(t, uint32(99), deviceID)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}
