//go:build unix

// Package mstp provides the byte-stream transport MS/TP's state
// machine runs over. Serial config follows the teacher's
// internal/transport/udp.go shape (mutex-guarded handle, Open/Close/
// Send/Receive, read/write timeouts) generalized from a UDP socket to
// a raw-mode TTY using golang.org/x/sys/unix termios, since MS/TP runs
// over EIA-485 serial rather than IP.
package mstp

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// SerialTransport is a raw-mode serial port carrying MS/TP frames.
type SerialTransport struct {
	path        string
	baud        uint32
	mu          sync.RWMutex
	file        *os.File
	readTimeout time.Duration
	closed      bool
}

// NewSerialTransport constructs a transport bound to the given TTY
// device path (e.g. "/dev/ttyUSB0") at the given baud rate.
func NewSerialTransport(path string, baud uint32) *SerialTransport {
	return &SerialTransport{path: path, baud: baud, readTimeout: 50 * time.Millisecond}
}

// SetReadTimeout records a per-byte read timeout (spec.md §5's
// "per-byte" MS/TP read timeout note). Receive does not apply it; the
// port is opened with VMIN=0/VTIME=0, so reads return immediately.
func (t *SerialTransport) SetReadTimeout(d time.Duration) {
	t.mu.Lock()
	t.readTimeout = d
	t.mu.Unlock()
}

func baudToUnix(baud uint32) (uint32, error) {
	switch baud {
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 76800:
		return unix.B76800, nil
	case 115200:
		return unix.B115200, nil
	default:
		return 0, fmt.Errorf("mstp: unsupported baud rate %d", baud)
	}
}

// Open opens the serial device and puts it into 8N1 raw mode with no
// flow control, the conventional MS/TP line configuration.
func (t *SerialTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file != nil {
		return nil
	}

	f, err := os.OpenFile(t.path, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return fmt.Errorf("open serial port: %w", err)
	}

	rate, err := baudToUnix(t.baud)
	if err != nil {
		f.Close()
		return err
	}

	termios, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	if err != nil {
		f.Close()
		return fmt.Errorf("get termios: %w", err)
	}

	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB
	termios.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = 0
	unix.CfsetispeedTermios(termios, rate)
	unix.CfsetospeedTermios(termios, rate)

	if err := unix.IoctlSetTermios(int(f.Fd()), unix.TCSETS, termios); err != nil {
		f.Close()
		return fmt.Errorf("set termios: %w", err)
	}

	t.file = f
	t.closed = false
	return nil
}

// Close releases the serial file descriptor.
func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil || t.closed {
		return nil
	}
	t.closed = true
	return t.file.Close()
}

// Send writes raw bytes (a whole encoded MS/TP frame) to the line.
func (t *SerialTransport) Send(ctx context.Context, data []byte) error {
	t.mu.RLock()
	f := t.file
	t.mu.RUnlock()
	if f == nil {
		return fmt.Errorf("mstp: serial transport not open")
	}
	_, err := f.Write(data)
	return err
}

// Receive reads up to len(buf) bytes without blocking (VMIN=0/VTIME=0),
// for the caller's poll loop; returns 0, nil on a read with no data.
func (t *SerialTransport) Receive(buf []byte) (int, error) {
	t.mu.RLock()
	f := t.file
	t.mu.RUnlock()
	if f == nil {
		return 0, fmt.Errorf("mstp: serial transport not open")
	}
	n, err := f.Read(buf)
	if err == io.EOF {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// IsClosed reports whether the transport has been closed.
func (t *SerialTransport) IsClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}
