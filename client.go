package bacnet

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edgeo-scada/bacnet/cov"
	"github.com/edgeo-scada/bacnet/internal/bvll"
	"github.com/edgeo-scada/bacnet/internal/obs"
	"github.com/edgeo-scada/bacnet/internal/transport"
	"github.com/edgeo-scada/bacnet/segmentation"
	"github.com/edgeo-scada/bacnet/transaction"
)

// ConnectionState represents the client connection state
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Client is a BACnet/IP client
type Client struct {
	opts      *clientOptions
	transport *transport.UDPTransport

	state atomic.Int32

	// Confirmed-request lifecycle: invoke-ID allocation, retry/timeout,
	// and segmented-response reassembly.
	txManager   *transaction.Manager
	reassembler *segmentation.Reassembler

	// Discovered devices
	devicesMu sync.RWMutex
	devices   map[uint32]*DeviceInfo

	// COV subscriptions this client has made against remote devices,
	// keyed the way ASHRAE 135 dedups them: (our device, our process,
	// monitored object[, property]).
	covMgr        *cov.Manager
	covHandlersMu sync.Mutex
	covHandlers   map[cov.Key]COVHandler
	covProcessSeq atomic.Uint32

	obs *obs.Registry

	// Metrics
	metrics *Metrics

	// Logger
	logger *slog.Logger

	// Receiver goroutine
	receiverCtx    context.Context
	receiverCancel context.CancelFunc
	receiverDone   chan struct{}

	fdRenewerCancel context.CancelFunc
}

// COVHandler is called when a COV notification is received
type COVHandler func(deviceID uint32, objectID ObjectIdentifier, values []PropertyValue)

// NewClient creates a new BACnet client
func NewClient(opts ...Option) (*Client, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	c := &Client{
		opts:        options,
		txManager:   transaction.NewManager(options.logger),
		reassembler: segmentation.NewReassembler(segmentation.DefaultMaxConcurrentReassemblies, segmentation.DefaultReassemblyTimeout),
		devices:     make(map[uint32]*DeviceInfo),
		covMgr:      cov.NewManager(),
		covHandlers: make(map[cov.Key]COVHandler),
		obs:         obs.NewRegistry(prometheus.NewRegistry()),
		metrics:     NewMetrics(),
		logger:      options.logger,
	}

	// Create transport
	c.transport = transport.NewUDPTransport(options.localAddress)
	c.transport.SetReadTimeout(options.timeout)
	c.transport.SetWriteTimeout(options.timeout)

	return c, nil
}

// Connect opens the BACnet client connection
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}

	c.metrics.ConnectAttempts.Inc()

	if err := c.transport.Open(ctx); err != nil {
		c.state.Store(int32(StateDisconnected))
		c.metrics.ConnectFailures.Inc()
		return fmt.Errorf("open transport: %w", err)
	}

	// Start receiver goroutine
	c.receiverCtx, c.receiverCancel = context.WithCancel(context.Background())
	c.receiverDone = make(chan struct{})
	go c.receiver()

	go c.txManager.RunReaper(c.receiverCtx, time.Second)

	c.state.Store(int32(StateConnected))
	c.metrics.ConnectSuccesses.Inc()

	c.logger.Info("connected",
		slog.String("local_addr", c.transport.LocalAddr().String()),
	)

	// Register as foreign device if BBMD is configured, renewing the
	// lease at half its TTL for as long as the connection lives.
	if c.opts.bbmdAddress != "" {
		addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", c.opts.bbmdAddress, c.opts.bbmdPort))
		if err != nil {
			c.logger.Warn("failed to resolve BBMD address", slog.String("error", err.Error()))
		} else {
			renewCtx, cancel := context.WithCancel(c.receiverCtx)
			c.fdRenewerCancel = cancel
			renewer := bvll.NewRenewer(addr, c.opts.foreignDeviceTTL, c.registerForeignDeviceTo, c.logger)
			go func() {
				if err := renewer.Run(renewCtx); err != nil {
					c.logger.Warn("foreign device registration failed", slog.String("error", err.Error()))
				}
			}()
		}
	}

	return nil
}

// Close closes the BACnet client connection
func (c *Client) Close() error {
	if c.state.Load() == int32(StateDisconnected) {
		return nil
	}

	c.state.Store(int32(StateDisconnected))
	c.metrics.Disconnects.Inc()

	if c.fdRenewerCancel != nil {
		c.fdRenewerCancel()
	}

	// Stop receiver (and the transaction reaper, which shares its ctx)
	if c.receiverCancel != nil {
		c.receiverCancel()
		<-c.receiverDone
	}

	c.txManager.CancelAll(ErrConnectionClosed)

	if err := c.transport.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}

	c.logger.Info("disconnected")
	return nil
}

// State returns the current connection state
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Metrics returns the client metrics
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// receiver handles incoming packets
func (c *Client) receiver() {
	defer close(c.receiverDone)

	for {
		select {
		case <-c.receiverCtx.Done():
			return
		default:
		}

		data, addr, err := c.transport.ReceiveWithTimeout(100 * time.Millisecond)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if c.transport.IsClosed() {
				return
			}
			c.logger.Debug("receive error", slog.String("error", err.Error()))
			continue
		}

		c.metrics.BytesReceived.Add(int64(len(data)))
		c.metrics.RecordActivity()

		go c.handlePacket(data, addr)
	}
}

// handlePacket processes an incoming packet
func (c *Client) handlePacket(data []byte, addr *net.UDPAddr) {
	// Decode BVLC header
	bvlc, err := DecodeBVLC(data)
	if err != nil {
		c.logger.Debug("invalid BVLC", slog.String("error", err.Error()))
		return
	}

	// Get NPDU data
	npduData := data[4:]
	if bvlc.Function == BVLCForwardedNPDU {
		// Skip forwarded address (6 bytes)
		if len(npduData) < 6 {
			return
		}
		npduData = npduData[6:]
	}

	// Decode NPDU
	npdu, offset, err := DecodeNPDU(npduData)
	if err != nil {
		c.logger.Debug("invalid NPDU", slog.String("error", err.Error()))
		return
	}

	// Skip network layer messages
	if npdu.Control&NPDUControlNetworkLayerMessage != 0 {
		return
	}

	// Decode APDU
	apduData := npduData[offset:]
	apdu, err := DecodeAPDU(apduData)
	if err != nil {
		c.logger.Debug("invalid APDU", slog.String("error", err.Error()))
		return
	}

	c.metrics.ResponsesReceived.Inc()

	// Handle based on PDU type
	switch apdu.Type {
	case PDUTypeUnconfirmedRequest:
		c.handleUnconfirmedRequest(apdu, addr, npdu)

	case PDUTypeSimpleAck, PDUTypeComplexAck:
		c.handleResponse(addr.String(), apdu)

	case PDUTypeError:
		c.metrics.ErrorsReceived.Inc()
		c.handleResponse(addr.String(), apdu)

	case PDUTypeReject:
		c.metrics.RejectsReceived.Inc()
		c.handleResponse(addr.String(), apdu)

	case PDUTypeAbort:
		c.metrics.AbortsReceived.Inc()
		c.handleResponse(addr.String(), apdu)
	}
}

// handleUnconfirmedRequest handles unconfirmed service requests
func (c *Client) handleUnconfirmedRequest(apdu *APDU, addr *net.UDPAddr, npdu *NPDU) {
	switch UnconfirmedServiceChoice(apdu.Service) {
	case ServiceIAm:
		c.handleIAm(apdu.Data, addr, npdu)

	case ServiceUnconfirmedCOVNotification:
		c.handleCOVNotification(apdu.Data)
	}
}

// handleIAm handles I-Am responses
func (c *Client) handleIAm(data []byte, addr *net.UDPAddr, npdu *NPDU) {
	c.metrics.IAmReceived.Inc()

	if len(data) < 4 {
		return
	}

	// Decode device object identifier
	tagNum, _, length, headerLen, err := DecodeTagNumber(data)
	if err != nil || tagNum != uint8(TagObjectID) || length != 4 {
		return
	}

	oidValue := binary.BigEndian.Uint32(data[headerLen:])
	oid := DecodeObjectIdentifier(oidValue)

	if oid.Type != ObjectTypeDevice {
		return
	}

	offset := headerLen + 4

	// Decode max APDU length
	if len(data) < offset+1 {
		return
	}
	tagNum, _, length, headerLen, err = DecodeTagNumber(data[offset:])
	if err != nil {
		return
	}
	maxAPDU := uint16(DecodeUnsigned(data[offset+headerLen : offset+headerLen+length]))
	offset += headerLen + length

	// Decode segmentation supported
	if len(data) < offset+1 {
		return
	}
	tagNum, _, length, headerLen, err = DecodeTagNumber(data[offset:])
	if err != nil {
		return
	}
	segmentation := Segmentation(DecodeUnsigned(data[offset+headerLen : offset+headerLen+length]))
	offset += headerLen + length

	// Decode vendor ID
	if len(data) < offset+1 {
		return
	}
	tagNum, _, length, headerLen, err = DecodeTagNumber(data[offset:])
	if err != nil {
		return
	}
	vendorID := uint16(DecodeUnsigned(data[offset+headerLen : offset+headerLen+length]))

	// Build device address
	var deviceAddr Address
	if npdu.Control&NPDUControlSourceSpecifier != 0 {
		deviceAddr = Address{
			Net:  npdu.SrcNet,
			Addr: npdu.SrcAddr,
		}
	} else {
		deviceAddr = Address{
			Net:  0,
			Addr: addr.IP.To4(),
		}
	}

	device := &DeviceInfo{
		ObjectID:      oid,
		Address:       deviceAddr,
		MaxAPDULength: maxAPDU,
		Segmentation:  segmentation,
		VendorID:      vendorID,
	}

	c.devicesMu.Lock()
	_, exists := c.devices[oid.Instance]
	c.devices[oid.Instance] = device
	c.devicesMu.Unlock()

	if !exists {
		c.metrics.DevicesDiscovered.Inc()
	}

	c.logger.Debug("device discovered",
		slog.Uint64("device_id", uint64(oid.Instance)),
		slog.String("address", addr.String()),
		slog.Uint64("vendor_id", uint64(vendorID)),
	)
}

// handleCOVNotification decodes an UnconfirmedCOVNotification and
// dispatches it to the handler registered for the matching
// subscription, per ASHRAE 135's COV notification encoding:
// [0] subscriber process id, [1] initiating device id,
// [2] monitored object id, [3] time remaining, [4] list of values.
func (c *Client) handleCOVNotification(data []byte) {
	c.metrics.COVNotifications.Inc()

	offset := 0
	tagNum, class, length, headerLen, err := DecodeTagNumber(data[offset:])
	if err != nil || tagNum != 0 || class != TagClassContext {
		return
	}
	subscriberProcess := DecodeUnsigned(data[offset+headerLen : offset+headerLen+length])
	offset += headerLen + length

	tagNum, class, length, headerLen, err = DecodeTagNumber(data[offset:])
	if err != nil || tagNum != 1 || class != TagClassContext {
		return
	}
	initiatingDevice := DecodeUnsigned(data[offset+headerLen : offset+headerLen+length])
	offset += headerLen + length

	tagNum, class, length, headerLen, err = DecodeTagNumber(data[offset:])
	if err != nil || tagNum != 2 || class != TagClassContext || length != 4 {
		return
	}
	oid := DecodeObjectIdentifier(binary.BigEndian.Uint32(data[offset+headerLen : offset+headerLen+length]))
	offset += headerLen + length

	// Skip time-remaining [3]
	tagNum, class, length, headerLen, err = DecodeTagNumber(data[offset:])
	if err == nil && tagNum == 3 && class == TagClassContext {
		offset += headerLen + length
	}

	// List of values [4]
	var values []PropertyValue
	tagNum, class, length, _, err = DecodeTagNumber(data[offset:])
	if err == nil && tagNum == 4 && class == TagClassContext && length == -1 {
		offset++
		for offset < len(data) {
			tn, cl, l, _, derr := DecodeTagNumber(data[offset:])
			if derr != nil {
				break
			}
			if l == -2 && tn == 4 {
				break
			}
			if tn != 0 || cl != TagClassContext {
				offset++
				continue
			}
			_, _, _, hl, _ := DecodeTagNumber(data[offset:])
			propID := PropertyIdentifier(DecodeUnsigned(data[offset+hl : offset+hl+l]))
			offset += hl + l

			tn, cl, l, _, derr = DecodeTagNumber(data[offset:])
			if derr != nil || tn != 2 || cl != TagClassContext || l != -1 {
				break
			}
			offset++
			value, _ := c.decodePropertyValue(data[offset:])
			for offset < len(data) {
				_, _, vl, vh, _ := DecodeTagNumber(data[offset:])
				offset += vh
				if vl == -2 {
					break
				}
				if vl > 0 {
					offset += vl
				}
			}
			values = append(values, PropertyValue{ObjectID: oid, PropertyID: propID, Value: value})
		}
	}

	matches := c.covMgr.SubscribersFor(oid, 0)
	c.covHandlersMu.Lock()
	defer c.covHandlersMu.Unlock()
	for _, sub := range matches {
		if sub.SubscriberProcess != subscriberProcess {
			continue
		}
		if handler, ok := c.covHandlers[sub.Key]; ok {
			go handler(initiatingDevice, oid, values)
		}
	}
}

// handleResponse routes a response to its waiting transaction,
// reassembling segmented complex-acks before completing it.
func (c *Client) handleResponse(peer string, apdu *APDU) {
	if apdu.Segmented {
		full, done, err := c.reassembler.Accept(peer, apdu.InvokeID, apdu)
		if err != nil {
			c.txManager.Complete(peer, apdu.InvokeID, transaction.Result{Err: err})
			return
		}
		if !done {
			return
		}
		apdu = &APDU{Type: apdu.Type, InvokeID: apdu.InvokeID, Service: apdu.Service, Data: full}
	}
	c.txManager.Complete(peer, apdu.InvokeID, transaction.Result{APDU: apdu})
}

// sendRequest sends a confirmed request, chopping it into segments if
// it exceeds the negotiated max-APDU size, and waits for the (possibly
// reassembled) response via the transaction manager.
func (c *Client) sendRequest(ctx context.Context, addr *net.UDPAddr, service ConfirmedServiceChoice, data []byte) (*APDU, error) {
	if c.State() != StateConnected {
		return nil, ErrNotConnected
	}

	peer := addr.String()
	const maxSegmentsAccepted = 5 // encodes to "32 segments accepted" per ASHRAE 135 table 20-12; also our self-imposed outbound chopping cap

	segments, err := segmentation.Chop(data, c.opts.maxAPDULength, maxSegmentsAccepted)
	if err != nil {
		return nil, err
	}

	sendPacket := func(invokeID uint8) error {
		var apdu []byte
		if len(segments) == 1 {
			apdu = EncodeConfirmedRequest(invokeID, service, segments[0], maxSegmentsAccepted, 5)
		} else {
			for i, seg := range segments {
				more := i < len(segments)-1
				segAPDU := EncodeSegmentedConfirmedRequest(invokeID, service, seg, uint8(i), more, uint8(len(segments)), maxSegmentsAccepted, 5)
				npdu := EncodeNPDU(true, NPDUControlPriorityNormal)
				bvlc := EncodeBVLC(BVLCOriginalUnicastNPDU, len(npdu)+len(segAPDU))
				packet := make([]byte, 0, len(bvlc)+len(npdu)+len(segAPDU))
				packet = append(packet, bvlc...)
				packet = append(packet, npdu...)
				packet = append(packet, segAPDU...)
				if err := c.transport.Send(ctx, addr, packet); err != nil {
					return err
				}
				c.metrics.BytesSent.Add(int64(len(packet)))
				c.obs.SegmentsSent.Inc()
			}
			return nil
		}

		npdu := EncodeNPDU(true, NPDUControlPriorityNormal)
		bvlc := EncodeBVLC(BVLCOriginalUnicastNPDU, len(npdu)+len(apdu))
		packet := make([]byte, 0, len(bvlc)+len(npdu)+len(apdu))
		packet = append(packet, bvlc...)
		packet = append(packet, npdu...)
		packet = append(packet, apdu...)
		if err := c.transport.Send(ctx, addr, packet); err != nil {
			return err
		}
		c.metrics.BytesSent.Add(int64(len(packet)))
		return nil
	}

	var tx *transaction.Transaction
	retrySend := func() error {
		c.obs.TransactionRetries.WithLabelValues(peer).Inc()
		return sendPacket(tx.InvokeID)
	}

	tx, err = c.txManager.Begin(peer, service, c.opts.timeout, c.opts.retries, retrySend)
	if err != nil {
		return nil, err
	}
	c.obs.InvokeIDsActive.WithLabelValues(peer).Set(float64(c.txManager.ActiveCount(peer)))

	start := time.Now()
	c.metrics.RequestsSent.Inc()
	c.metrics.ActiveRequests.Inc()
	defer c.metrics.ActiveRequests.Dec()

	if err := sendPacket(tx.InvokeID); err != nil {
		c.txManager.Cancel(peer, tx.InvokeID, err)
		c.metrics.RequestsFailed.Inc()
		return nil, fmt.Errorf("send request: %w", err)
	}

	resp, err := tx.Wait(ctx)
	c.obs.InvokeIDsActive.WithLabelValues(peer).Set(float64(c.txManager.ActiveCount(peer)))
	c.metrics.RequestLatency.Record(time.Since(start))

	if err != nil {
		if err == context.DeadlineExceeded || err == context.Canceled {
			c.txManager.Cancel(peer, tx.InvokeID, ErrTimeout)
			err = ErrTimeout
		}
		if err == ErrTimeout {
			c.metrics.RequestsTimedOut.Inc()
			c.obs.TransactionTimeouts.WithLabelValues(peer).Inc()
		} else {
			c.metrics.RequestsFailed.Inc()
		}
		return nil, err
	}

	c.obs.TransactionsTotal.WithLabelValues(peer).Inc()

	switch resp.Type {
	case PDUTypeSimpleAck, PDUTypeComplexAck:
		c.metrics.RequestsSucceeded.Inc()
		return resp, nil

	case PDUTypeError:
		c.metrics.RequestsFailed.Inc()
		return nil, c.decodeError(resp.Data)

	case PDUTypeReject:
		c.metrics.RequestsFailed.Inc()
		return nil, &RejectError{
			InvokeID: resp.InvokeID,
			Reason:   RejectReason(resp.Service),
		}

	case PDUTypeAbort:
		c.metrics.RequestsFailed.Inc()
		return nil, &AbortError{
			InvokeID: resp.InvokeID,
			Reason:   AbortReason(resp.Service),
		}

	default:
		return nil, fmt.Errorf("%w: unexpected PDU type %02x", ErrInvalidResponse, resp.Type)
	}
}

// decodeError decodes a BACnet error response
func (c *Client) decodeError(data []byte) error {
	if len(data) < 2 {
		return ErrInvalidResponse
	}

	// Decode error class
	_, _, length, headerLen, err := DecodeTagNumber(data)
	if err != nil {
		return ErrInvalidResponse
	}
	errorClass := ErrorClass(DecodeUnsigned(data[headerLen : headerLen+length]))

	offset := headerLen + length

	// Decode error code
	_, _, length, headerLen, err = DecodeTagNumber(data[offset:])
	if err != nil {
		return ErrInvalidResponse
	}
	errorCode := ErrorCode(DecodeUnsigned(data[offset+headerLen : offset+headerLen+length]))

	return NewBACnetError(errorClass, errorCode)
}

// sendUnconfirmedRequest sends an unconfirmed request
func (c *Client) sendUnconfirmedRequest(ctx context.Context, addr *net.UDPAddr, broadcast bool, service UnconfirmedServiceChoice, data []byte) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}

	// Encode APDU
	apdu := EncodeUnconfirmedRequest(service, data)

	// Encode NPDU
	npdu := EncodeNPDU(false, NPDUControlPriorityNormal)

	// Encode BVLC
	var bvlcFunc BVLCFunction
	if broadcast {
		bvlcFunc = BVLCOriginalBroadcastNPDU
	} else {
		bvlcFunc = BVLCOriginalUnicastNPDU
	}
	bvlc := EncodeBVLC(bvlcFunc, len(npdu)+len(apdu))

	// Build packet
	packet := make([]byte, 0, len(bvlc)+len(npdu)+len(apdu))
	packet = append(packet, bvlc...)
	packet = append(packet, npdu...)
	packet = append(packet, apdu...)

	c.metrics.RequestsSent.Inc()

	var err error
	if broadcast {
		err = c.transport.Broadcast(ctx, DefaultPort, packet)
	} else {
		err = c.transport.Send(ctx, addr, packet)
	}

	if err != nil {
		c.metrics.RequestsFailed.Inc()
		return fmt.Errorf("send unconfirmed request: %w", err)
	}

	c.metrics.BytesSent.Add(int64(len(packet)))
	c.metrics.RequestsSucceeded.Inc()

	return nil
}

// registerForeignDeviceTo sends one Register-Foreign-Device BVLC frame
// to bbmd, satisfying bvll.Registerer. Called once on connect and then
// periodically by bvll.Renewer for the life of the connection.
func (c *Client) registerForeignDeviceTo(ctx context.Context, bbmd *net.UDPAddr, ttl uint16) error {
	data := make([]byte, 6)
	data[0] = byte(BVLCTypeBACnetIP)
	data[1] = byte(BVLCRegisterForeignDevice)
	binary.BigEndian.PutUint16(data[2:], 6) // Length
	binary.BigEndian.PutUint16(data[4:], ttl)

	if err := c.transport.Send(ctx, bbmd, data); err != nil {
		return fmt.Errorf("send registration: %w", err)
	}

	c.logger.Info("registered as foreign device",
		slog.String("bbmd", bbmd.String()),
		slog.Uint64("ttl_seconds", uint64(ttl)),
	)

	return nil
}

// WhoIs sends a Who-Is request to discover devices
func (c *Client) WhoIs(ctx context.Context, opts ...DiscoverOption) ([]*DeviceInfo, error) {
	options := defaultDiscoverOptions()
	for _, opt := range opts {
		opt(options)
	}

	// Build Who-Is request
	var data []byte
	if options.LowLimit != nil && options.HighLimit != nil {
		data = append(data, EncodeContextUnsigned(0, *options.LowLimit)...)
		data = append(data, EncodeContextUnsigned(1, *options.HighLimit)...)
	}

	// Send as broadcast
	if err := c.sendUnconfirmedRequest(ctx, nil, true, ServiceWhoIs, data); err != nil {
		return nil, err
	}

	c.metrics.WhoIsSent.Inc()

	// Wait for responses
	time.Sleep(options.Timeout)

	// Collect discovered devices
	c.devicesMu.RLock()
	devices := make([]*DeviceInfo, 0, len(c.devices))
	for _, dev := range c.devices {
		devices = append(devices, dev)
	}
	c.devicesMu.RUnlock()

	return devices, nil
}

// GetDevice returns information about a discovered device
func (c *Client) GetDevice(deviceID uint32) (*DeviceInfo, bool) {
	c.devicesMu.RLock()
	defer c.devicesMu.RUnlock()
	dev, ok := c.devices[deviceID]
	return dev, ok
}

// resolveDevice resolves a device ID to its address
func (c *Client) resolveDevice(ctx context.Context, deviceID uint32) (*net.UDPAddr, error) {
	c.devicesMu.RLock()
	dev, ok := c.devices[deviceID]
	c.devicesMu.RUnlock()

	if !ok {
		// Try to discover the device
		_, err := c.WhoIs(ctx, WithDeviceRange(deviceID, deviceID), WithDiscoveryTimeout(2*time.Second))
		if err != nil {
			return nil, err
		}

		c.devicesMu.RLock()
		dev, ok = c.devices[deviceID]
		c.devicesMu.RUnlock()

		if !ok {
			return nil, ErrDeviceNotFound
		}
	}

	// Convert device address to UDP address
	if len(dev.Address.Addr) == 4 {
		return &net.UDPAddr{
			IP:   net.IP(dev.Address.Addr),
			Port: DefaultPort,
		}, nil
	} else if len(dev.Address.Addr) == 6 {
		// IP + port format
		return &net.UDPAddr{
			IP:   net.IP(dev.Address.Addr[:4]),
			Port: int(binary.BigEndian.Uint16(dev.Address.Addr[4:])),
		}, nil
	}

	return nil, fmt.Errorf("invalid device address format")
}

// ReadProperty reads a property from a BACnet object
func (c *Client) ReadProperty(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, propertyID PropertyIdentifier, opts ...ReadOption) (interface{}, error) {
	options := &ReadOptions{}
	for _, opt := range opts {
		opt(options)
	}

	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	// Build ReadProperty request
	data := make([]byte, 0, 16)
	data = append(data, EncodeContextObjectIdentifier(0, objectID)...)
	data = append(data, EncodeContextEnumerated(1, uint32(propertyID))...)
	if options.ArrayIndex != nil {
		data = append(data, EncodeContextUnsigned(2, *options.ArrayIndex)...)
	}

	resp, err := c.sendRequest(ctx, addr, ServiceReadProperty, data)
	if err != nil {
		return nil, err
	}

	// Decode response
	return c.decodeReadPropertyResponse(resp.Data)
}

// decodeReadPropertyResponse decodes a ReadProperty response
func (c *Client) decodeReadPropertyResponse(data []byte) (interface{}, error) {
	if len(data) < 8 {
		return nil, ErrInvalidResponse
	}

	offset := 0

	// Skip object identifier [0]
	tagNum, class, length, headerLen, err := DecodeTagNumber(data[offset:])
	if err != nil || tagNum != 0 || class != TagClassContext {
		return nil, ErrInvalidResponse
	}
	offset += headerLen + length

	// Skip property identifier [1]
	tagNum, class, length, headerLen, err = DecodeTagNumber(data[offset:])
	if err != nil || tagNum != 1 || class != TagClassContext {
		return nil, ErrInvalidResponse
	}
	offset += headerLen + length

	// Check for optional array index [2]
	if len(data) > offset {
		tagNum, class, length, headerLen, err = DecodeTagNumber(data[offset:])
		if err == nil && tagNum == 2 && class == TagClassContext {
			offset += headerLen + length
		}
	}

	// Check for opening tag [3]
	if len(data) <= offset {
		return nil, ErrInvalidResponse
	}
	tagNum, class, length, _, err = DecodeTagNumber(data[offset:])
	if err != nil || tagNum != 3 || class != TagClassContext || length != -1 {
		return nil, ErrInvalidResponse
	}
	offset++

	// Decode property value
	return c.decodePropertyValue(data[offset:])
}

// decodePropertyValue decodes a property value
func (c *Client) decodePropertyValue(data []byte) (interface{}, error) {
	if len(data) < 1 {
		return nil, ErrInvalidResponse
	}

	tagNum, class, length, headerLen, err := DecodeTagNumber(data)
	if err != nil {
		return nil, err
	}

	// Check for closing tag
	if length == -2 {
		return nil, nil
	}

	if class == TagClassApplication {
		valueData := data[headerLen : headerLen+length]

		switch ApplicationTag(tagNum) {
		case TagNull:
			return nil, nil
		case TagBoolean:
			return length == 1, nil
		case TagUnsignedInt:
			return DecodeUnsigned(valueData), nil
		case TagSignedInt:
			return DecodeSigned(valueData), nil
		case TagReal:
			return DecodeReal(valueData), nil
		case TagDouble:
			return DecodeDouble(valueData), nil
		case TagOctetString:
			return valueData, nil
		case TagCharacterString:
			return DecodeCharacterString(valueData), nil
		case TagEnumerated:
			return DecodeUnsigned(valueData), nil
		case TagObjectID:
			oidValue := binary.BigEndian.Uint32(valueData)
			return DecodeObjectIdentifier(oidValue), nil
		default:
			return valueData, nil
		}
	}

	return data[headerLen : headerLen+length], nil
}

// WriteProperty writes a property to a BACnet object
func (c *Client) WriteProperty(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, propertyID PropertyIdentifier, value interface{}, opts ...WriteOption) error {
	options := &WriteOptions{}
	for _, opt := range opts {
		opt(options)
	}

	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return err
	}

	// Build WriteProperty request
	data := make([]byte, 0, 32)
	data = append(data, EncodeContextObjectIdentifier(0, objectID)...)
	data = append(data, EncodeContextEnumerated(1, uint32(propertyID))...)

	if options.ArrayIndex != nil {
		data = append(data, EncodeContextUnsigned(2, *options.ArrayIndex)...)
	}

	// Property value [3]
	data = append(data, EncodeOpeningTag(3)...)
	encodedValue, err := c.encodePropertyValue(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	data = append(data, encodedValue...)
	data = append(data, EncodeClosingTag(3)...)

	// Priority [4]
	if options.Priority != nil {
		data = append(data, EncodeContextUnsigned(4, uint32(*options.Priority))...)
	}

	_, err = c.sendRequest(ctx, addr, ServiceWriteProperty, data)
	return err
}

// encodePropertyValue encodes a property value for writing
func (c *Client) encodePropertyValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return []byte{0x00}, nil
	case bool:
		return EncodeBooleanTag(v), nil
	case int:
		if v >= 0 {
			return EncodeUnsignedTag(uint32(v)), nil
		}
		data := EncodeSigned(int32(v))
		tag := EncodeTag(uint8(TagSignedInt), TagClassApplication, len(data))
		return append(tag, data...), nil
	case int32:
		if v >= 0 {
			return EncodeUnsignedTag(uint32(v)), nil
		}
		data := EncodeSigned(v)
		tag := EncodeTag(uint8(TagSignedInt), TagClassApplication, len(data))
		return append(tag, data...), nil
	case uint32:
		return EncodeUnsignedTag(v), nil
	case float32:
		return EncodeRealTag(v), nil
	case float64:
		data := EncodeDouble(v)
		tag := EncodeTag(uint8(TagDouble), TagClassApplication, len(data))
		return append(tag, data...), nil
	case string:
		return EncodeCharacterStringTag(v), nil
	case ObjectIdentifier:
		return EncodeObjectIdentifierTag(v), nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", value)
	}
}

// ReadPropertyMultiple reads multiple properties from one or more objects
func (c *Client) ReadPropertyMultiple(ctx context.Context, deviceID uint32, requests []ReadPropertyRequest) ([]PropertyValue, error) {
	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	// Build ReadPropertyMultiple request
	data := make([]byte, 0, 64)

	// Group requests by object
	objectRequests := make(map[ObjectIdentifier][]ReadPropertyRequest)
	for _, req := range requests {
		objectRequests[req.ObjectID] = append(objectRequests[req.ObjectID], req)
	}

	for oid, reqs := range objectRequests {
		data = append(data, EncodeContextObjectIdentifier(0, oid)...)
		data = append(data, EncodeOpeningTag(1)...)
		for _, req := range reqs {
			data = append(data, EncodeContextEnumerated(0, uint32(req.PropertyID))...)
			if req.ArrayIndex != nil {
				data = append(data, EncodeContextUnsigned(1, *req.ArrayIndex)...)
			}
		}
		data = append(data, EncodeClosingTag(1)...)
	}

	resp, err := c.sendRequest(ctx, addr, ServiceReadPropertyMultiple, data)
	if err != nil {
		return nil, err
	}

	// Decode response
	return c.decodeReadPropertyMultipleResponse(resp.Data)
}

// decodeReadPropertyMultipleResponse decodes a ReadPropertyMultiple response
func (c *Client) decodeReadPropertyMultipleResponse(data []byte) ([]PropertyValue, error) {
	var results []PropertyValue
	offset := 0

	for offset < len(data) {
		// Object identifier [0]
		tagNum, class, length, headerLen, err := DecodeTagNumber(data[offset:])
		if err != nil {
			break
		}
		if tagNum != 0 || class != TagClassContext {
			break
		}

		oidValue := binary.BigEndian.Uint32(data[offset+headerLen:])
		oid := DecodeObjectIdentifier(oidValue)
		offset += headerLen + length

		// List of results [1]
		tagNum, class, length, _, err = DecodeTagNumber(data[offset:])
		if err != nil || tagNum != 1 || class != TagClassContext || length != -1 {
			break
		}
		offset++

		// Parse property results
		for offset < len(data) {
			tagNum, class, length, _, err = DecodeTagNumber(data[offset:])
			if err != nil {
				break
			}

			// Closing tag
			if length == -2 && tagNum == 1 {
				offset++
				break
			}

			// Property identifier [2]
			if tagNum != 2 || class != TagClassContext {
				offset++
				continue
			}
			offset += headerLen
			propID := PropertyIdentifier(DecodeUnsigned(data[offset : offset+length]))
			offset += length

			// Optional array index [3]
			var arrayIndex *uint32
			tagNum, class, length, headerLen, err = DecodeTagNumber(data[offset:])
			if err == nil && tagNum == 3 && class == TagClassContext {
				idx := DecodeUnsigned(data[offset+headerLen : offset+headerLen+length])
				arrayIndex = &idx
				offset += headerLen + length
			}

			// Property value [4] or property access error [5]
			tagNum, class, length, _, err = DecodeTagNumber(data[offset:])
			if err != nil {
				break
			}

			if tagNum == 4 && class == TagClassContext && length == -1 {
				// Property value
				offset++
				value, _ := c.decodePropertyValue(data[offset:])

				// Skip to closing tag
				for offset < len(data) {
					_, _, l, h, _ := DecodeTagNumber(data[offset:])
					offset += h
					if l == -2 {
						break
					}
					if l > 0 {
						offset += l
					}
				}

				results = append(results, PropertyValue{
					ObjectID:   oid,
					PropertyID: propID,
					ArrayIndex: arrayIndex,
					Value:      value,
				})
			} else if tagNum == 5 && class == TagClassContext && length == -1 {
				// Property access error - skip
				offset++
				for offset < len(data) {
					_, _, l, h, _ := DecodeTagNumber(data[offset:])
					offset += h
					if l == -2 {
						break
					}
					if l > 0 {
						offset += l
					}
				}
			}
		}
	}

	return results, nil
}

// SubscribeCOV subscribes to COV (Change of Value) notifications
func (c *Client) SubscribeCOV(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, handler COVHandler, opts ...SubscribeOption) (uint32, error) {
	options := &SubscribeOptions{
		Confirmed: false,
	}
	for _, opt := range opts {
		opt(options)
	}

	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return 0, err
	}

	// The wire subscriber-process-identifier is ours to choose; ASHRAE
	// 135 dedups subscriptions by (our device, this process id,
	// monitored object), so it doubles as our local subscription key.
	subID := c.covProcessSeq.Add(1)

	data := make([]byte, 0, 32)
	data = append(data, EncodeContextUnsigned(0, subID)...)
	data = append(data, EncodeContextObjectIdentifier(1, objectID)...)

	var lifetime uint32
	data = append(data, EncodeContextBoolean(2, options.Confirmed)...)

	if options.Lifetime != nil {
		data = append(data, EncodeContextUnsigned(3, *options.Lifetime)...)
		lifetime = *options.Lifetime
	}

	if options.COVIncrement != nil {
		data = append(data, EncodeContextTag(4, EncodeReal(*options.COVIncrement))...)
	}

	_, err = c.sendRequest(ctx, addr, ServiceSubscribeCOV, data)
	if err != nil {
		return 0, err
	}

	key := cov.Key{SubscriberDevice: c.opts.localDeviceID, SubscriberProcess: subID, Object: objectID}
	sub := c.covMgr.Add(key, options.Confirmed, lifetime, addr.String())
	if options.COVIncrement != nil {
		sub.IncrementOnly = true
		sub.Increment = *options.COVIncrement
	}

	c.covHandlersMu.Lock()
	c.covHandlers[key] = handler
	c.covHandlersMu.Unlock()

	c.metrics.COVSubscriptions.Inc()
	c.obs.COVSubscriptionsActive.Set(float64(c.covMgr.Count()))

	return subID, nil
}

// UnsubscribeCOV unsubscribes from COV notifications
func (c *Client) UnsubscribeCOV(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, subID uint32) error {
	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return err
	}

	// Build SubscribeCOV request with cancel (no confirmed flag, no
	// lifetime) per spec.md's resolution that this combination means
	// explicit cancellation.
	data := make([]byte, 0, 16)
	data = append(data, EncodeContextUnsigned(0, subID)...)
	data = append(data, EncodeContextObjectIdentifier(1, objectID)...)

	_, err = c.sendRequest(ctx, addr, ServiceSubscribeCOV, data)
	if err != nil {
		return err
	}

	key := cov.Key{SubscriberDevice: c.opts.localDeviceID, SubscriberProcess: subID, Object: objectID}
	c.covMgr.Remove(key)

	c.covHandlersMu.Lock()
	delete(c.covHandlers, key)
	c.covHandlersMu.Unlock()

	c.obs.COVSubscriptionsActive.Set(float64(c.covMgr.Count()))

	return nil
}

// CreateObject asks a device to instantiate a new object of the given
// type, optionally seeding initial property values. The device itself
// chooses the instance number unless objectID.Instance is non-zero.
func (c *Client) CreateObject(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, initialValues map[PropertyIdentifier]interface{}) error {
	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return err
	}

	data := make([]byte, 0, 32)
	data = append(data, EncodeOpeningTag(0)...)
	if objectID.Instance == 0 {
		data = append(data, EncodeContextEnumerated(0, uint32(objectID.Type))...)
	} else {
		data = append(data, EncodeContextObjectIdentifier(1, objectID)...)
	}
	data = append(data, EncodeClosingTag(0)...)

	if len(initialValues) > 0 {
		data = append(data, EncodeOpeningTag(1)...)
		for prop, value := range initialValues {
			data = append(data, EncodeOpeningTag(2)...)
			data = append(data, EncodeContextEnumerated(0, uint32(prop))...)
			data = append(data, EncodeOpeningTag(2)...)
			encoded, err := c.encodePropertyValue(value)
			if err != nil {
				return fmt.Errorf("encode initial value for %s: %w", prop, err)
			}
			data = append(data, encoded...)
			data = append(data, EncodeClosingTag(2)...)
			data = append(data, EncodeClosingTag(2)...)
		}
		data = append(data, EncodeClosingTag(1)...)
	}

	_, err = c.sendRequest(ctx, addr, ServiceCreateObject, data)
	return err
}

// DeleteObject asks a device to remove an object it owns. Deleting the
// mandatory Device object is always rejected by a compliant server.
func (c *Client) DeleteObject(ctx context.Context, deviceID uint32, objectID ObjectIdentifier) error {
	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	data := EncodeObjectIdentifierTag(objectID)
	_, err = c.sendRequest(ctx, addr, ServiceDeleteObject, data)
	return err
}

// AddListElement appends one or more elements to a list-valued
// property (e.g. a Device's Restart-Notification-Recipients).
func (c *Client) AddListElement(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, propertyID PropertyIdentifier, elements []interface{}) error {
	return c.listElementRequest(ctx, ServiceAddListElement, deviceID, objectID, propertyID, elements)
}

// RemoveListElement removes one or more elements from a list-valued
// property. Removing an element that isn't present is a no-op per
// ASHRAE 135's List-Element services.
func (c *Client) RemoveListElement(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, propertyID PropertyIdentifier, elements []interface{}) error {
	return c.listElementRequest(ctx, ServiceRemoveListElement, deviceID, objectID, propertyID, elements)
}

func (c *Client) listElementRequest(ctx context.Context, service ConfirmedServiceChoice, deviceID uint32, objectID ObjectIdentifier, propertyID PropertyIdentifier, elements []interface{}) error {
	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return err
	}

	data := make([]byte, 0, 32)
	data = append(data, EncodeContextObjectIdentifier(0, objectID)...)
	data = append(data, EncodeContextEnumerated(1, uint32(propertyID))...)
	data = append(data, EncodeOpeningTag(3)...)
	for _, elem := range elements {
		encoded, err := c.encodePropertyValue(elem)
		if err != nil {
			return fmt.Errorf("encode list element: %w", err)
		}
		data = append(data, encoded...)
	}
	data = append(data, EncodeClosingTag(3)...)

	_, err = c.sendRequest(ctx, addr, service, data)
	return err
}

// GetObjectList retrieves the list of objects from a device
func (c *Client) GetObjectList(ctx context.Context, deviceID uint32) ([]ObjectIdentifier, error) {
	// First, read the object-list length
	lengthVal, err := c.ReadProperty(ctx, deviceID,
		NewObjectIdentifier(ObjectTypeDevice, deviceID),
		PropertyObjectList,
		WithArrayIndex(0),
	)
	if err != nil {
		return nil, err
	}

	length, ok := lengthVal.(uint32)
	if !ok {
		return nil, fmt.Errorf("unexpected object-list length type: %T", lengthVal)
	}

	// Read each object identifier
	objects := make([]ObjectIdentifier, 0, length)
	for i := uint32(1); i <= length; i++ {
		val, err := c.ReadProperty(ctx, deviceID,
			NewObjectIdentifier(ObjectTypeDevice, deviceID),
			PropertyObjectList,
			WithArrayIndex(i),
		)
		if err != nil {
			continue
		}

		if oid, ok := val.(ObjectIdentifier); ok {
			objects = append(objects, oid)
		}
	}

	return objects, nil
}

// atomicReadFileResult holds a decoded AtomicReadFile-ACK, which is a
// CHOICE between stream and record access (ASHRAE 135 clause 15.1.2).
type atomicReadFileResult struct {
	eof           bool
	isRecord      bool
	startPosition int32
	data          []byte
	startRecord   int32
	records       [][]byte
}

func (c *Client) decodeAtomicReadFileResponse(data []byte) (*atomicReadFileResult, error) {
	offset := 0

	tagNum, class, length, headerLen, err := DecodeTagNumber(data[offset:])
	if err != nil || class != TagClassApplication || ApplicationTag(tagNum) != TagBoolean {
		return nil, ErrInvalidResponse
	}
	result := &atomicReadFileResult{eof: length == 1}
	offset += headerLen

	tagNum, class, length, _, err = DecodeTagNumber(data[offset:])
	if err != nil || class != TagClassContext || length != -1 {
		return nil, ErrInvalidResponse
	}
	choice := tagNum
	offset++

	switch choice {
	case 0: // stream access
		tagNum, class, length, headerLen, err = DecodeTagNumber(data[offset:])
		if err != nil || class != TagClassApplication || ApplicationTag(tagNum) != TagSignedInt {
			return nil, ErrInvalidResponse
		}
		result.startPosition = DecodeSigned(data[offset+headerLen : offset+headerLen+length])
		offset += headerLen + length

		tagNum, class, length, headerLen, err = DecodeTagNumber(data[offset:])
		if err != nil || class != TagClassApplication || ApplicationTag(tagNum) != TagOctetString {
			return nil, ErrInvalidResponse
		}
		result.data = append([]byte(nil), data[offset+headerLen:offset+headerLen+length]...)

	case 1: // record access
		tagNum, class, length, headerLen, err = DecodeTagNumber(data[offset:])
		if err != nil || class != TagClassApplication || ApplicationTag(tagNum) != TagSignedInt {
			return nil, ErrInvalidResponse
		}
		result.startRecord = DecodeSigned(data[offset+headerLen : offset+headerLen+length])
		offset += headerLen + length

		tagNum, class, length, headerLen, err = DecodeTagNumber(data[offset:])
		if err != nil || class != TagClassApplication || ApplicationTag(tagNum) != TagUnsignedInt {
			return nil, ErrInvalidResponse
		}
		returnedCount := DecodeUnsigned(data[offset+headerLen : offset+headerLen+length])
		offset += headerLen + length

		result.isRecord = true
		for i := uint32(0); i < returnedCount; i++ {
			tagNum, class, length, headerLen, err = DecodeTagNumber(data[offset:])
			if err != nil || class != TagClassApplication || ApplicationTag(tagNum) != TagOctetString {
				return nil, ErrInvalidResponse
			}
			result.records = append(result.records, append([]byte(nil), data[offset+headerLen:offset+headerLen+length]...))
			offset += headerLen + length
		}

	default:
		return nil, ErrInvalidResponse
	}

	return result, nil
}

// decodeAtomicWriteFileResponse decodes an AtomicWriteFile-ACK: a
// context-tagged signed integer CHOICE carrying the new start
// position (stream access, tag 0) or start record (record access,
// tag 1).
func (c *Client) decodeAtomicWriteFileResponse(data []byte, wantChoice uint8) (int32, error) {
	tagNum, class, length, headerLen, err := DecodeTagNumber(data)
	if err != nil || class != TagClassContext || tagNum != wantChoice {
		return 0, ErrInvalidResponse
	}
	return DecodeSigned(data[headerLen : headerLen+length]), nil
}

// AtomicReadFileStream reads up to count octets starting at
// startPosition from a File object's stream-access contents
// (ASHRAE 135 clause 15.1, stream access variant).
func (c *Client) AtomicReadFileStream(ctx context.Context, deviceID uint32, fileID ObjectIdentifier, startPosition int32, count uint32) ([]byte, bool, error) {
	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return nil, false, err
	}

	data := make([]byte, 0, 16)
	data = append(data, EncodeObjectIdentifierTag(fileID)...)
	data = append(data, EncodeOpeningTag(0)...)
	data = append(data, EncodeSignedTag(startPosition)...)
	data = append(data, EncodeUnsignedTag(count)...)
	data = append(data, EncodeClosingTag(0)...)

	resp, err := c.sendRequest(ctx, addr, ServiceAtomicReadFile, data)
	if err != nil {
		return nil, false, err
	}
	result, err := c.decodeAtomicReadFileResponse(resp.Data)
	if err != nil {
		return nil, false, err
	}
	if result.isRecord {
		return nil, false, fmt.Errorf("%w: device returned record access for a stream-access read", ErrInvalidResponse)
	}
	return result.data, result.eof, nil
}

// AtomicReadFileRecord reads up to recordCount records starting at
// startRecord from a File object's record-access contents
// (ASHRAE 135 clause 15.1, record access variant).
func (c *Client) AtomicReadFileRecord(ctx context.Context, deviceID uint32, fileID ObjectIdentifier, startRecord int32, recordCount uint32) ([][]byte, bool, error) {
	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return nil, false, err
	}

	data := make([]byte, 0, 16)
	data = append(data, EncodeObjectIdentifierTag(fileID)...)
	data = append(data, EncodeOpeningTag(1)...)
	data = append(data, EncodeSignedTag(startRecord)...)
	data = append(data, EncodeUnsignedTag(recordCount)...)
	data = append(data, EncodeClosingTag(1)...)

	resp, err := c.sendRequest(ctx, addr, ServiceAtomicReadFile, data)
	if err != nil {
		return nil, false, err
	}
	result, err := c.decodeAtomicReadFileResponse(resp.Data)
	if err != nil {
		return nil, false, err
	}
	if !result.isRecord {
		return nil, false, fmt.Errorf("%w: device returned stream access for a record-access read", ErrInvalidResponse)
	}
	return result.records, result.eof, nil
}

// AtomicWriteFileStream writes data at startPosition into a File
// object's stream-access contents, returning the device's confirmed
// start position (ASHRAE 135 clause 15.2, stream access variant).
// startPosition of -1 requests an append.
func (c *Client) AtomicWriteFileStream(ctx context.Context, deviceID uint32, fileID ObjectIdentifier, startPosition int32, payload []byte) (int32, error) {
	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return 0, err
	}

	data := make([]byte, 0, 16+len(payload))
	data = append(data, EncodeObjectIdentifierTag(fileID)...)
	data = append(data, EncodeOpeningTag(0)...)
	data = append(data, EncodeSignedTag(startPosition)...)
	data = append(data, EncodeOctetStringTag(payload)...)
	data = append(data, EncodeClosingTag(0)...)

	resp, err := c.sendRequest(ctx, addr, ServiceAtomicWriteFile, data)
	if err != nil {
		return 0, err
	}
	return c.decodeAtomicWriteFileResponse(resp.Data, 0)
}

// AtomicWriteFileRecord writes records starting at startRecord into a
// File object's record-access contents, returning the device's
// confirmed start record (ASHRAE 135 clause 15.2, record access
// variant). startRecord of -1 requests an append.
func (c *Client) AtomicWriteFileRecord(ctx context.Context, deviceID uint32, fileID ObjectIdentifier, startRecord int32, records [][]byte) (int32, error) {
	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return 0, err
	}

	data := make([]byte, 0, 16)
	data = append(data, EncodeObjectIdentifierTag(fileID)...)
	data = append(data, EncodeOpeningTag(1)...)
	data = append(data, EncodeSignedTag(startRecord)...)
	data = append(data, EncodeUnsignedTag(uint32(len(records)))...)
	for _, rec := range records {
		data = append(data, EncodeOctetStringTag(rec)...)
	}
	data = append(data, EncodeClosingTag(1)...)

	resp, err := c.sendRequest(ctx, addr, ServiceAtomicWriteFile, data)
	if err != nil {
		return 0, err
	}
	return c.decodeAtomicWriteFileResponse(resp.Data, 1)
}

// TimeSynchronization broadcasts the local-time TimeSynchronization
// service, an application-tagged Date followed by Time (ASHRAE 135
// clause 16.4), so every BACnet device listening sets its local clock.
func (c *Client) TimeSynchronization(ctx context.Context, date Date, t Time) error {
	data := make([]byte, 0, 10)
	data = append(data, EncodeDateTag(date)...)
	data = append(data, EncodeTimeTag(t)...)
	return c.sendUnconfirmedRequest(ctx, nil, true, ServiceTimeSynchronization, data)
}

// UTCTimeSynchronization broadcasts TimeSynchronization's UTC variant,
// the same application-tagged Date/Time pair but carrying UTC instead
// of local time (ASHRAE 135 clause 16.5).
func (c *Client) UTCTimeSynchronization(ctx context.Context, date Date, t Time) error {
	data := make([]byte, 0, 10)
	data = append(data, EncodeDateTag(date)...)
	data = append(data, EncodeTimeTag(t)...)
	return c.sendUnconfirmedRequest(ctx, nil, true, ServiceUTCTimeSynchronization, data)
}
