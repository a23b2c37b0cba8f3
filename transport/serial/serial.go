// Package serial implements the transport.Transport contract over a
// local serial device.
package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/goburrow/serial"

	"github.com/rechermann/puttygo/transport"
)

// Transport drives one serial device with an 8-N-1 line discipline and
// no hardware flow control. Non-blocking reads are emulated through the
// port's own read deadline, set to transport.ReadTimeout.
type Transport struct {
	cfg transport.SerialConfig

	mu        sync.Mutex
	port      io.ReadWriteCloser
	connected bool
}

// New constructs a Transport for cfg. Connect must be called before any
// Read or Write.
func New(cfg transport.SerialConfig) *Transport {
	return &Transport{cfg: cfg}
}

// Connect opens the device synchronously. On failure the transport is
// left disconnected.
func (t *Transport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}
	port, err := serial.Open(&serial.Config{
		Address:  t.cfg.Port,
		BaudRate: int(t.cfg.Baud),
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  transport.ReadTimeout,
	})
	if err != nil {
		return fmt.Errorf("serial: open %s: %w", t.cfg.Port, err)
	}
	t.port = port
	t.connected = true
	return nil
}

// Disconnect releases the underlying handle. Idempotent.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected || t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.connected = false
	return err
}

// Read honours the device's configured read timeout: a timeout with no
// data yields (0, nil), never an error.
func (t *Transport) Read(buf []byte) (int, error) {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return 0, errors.New("serial: read before connect")
	}
	n, err := port.Read(buf)
	if err != nil && isTimeout(err) {
		return 0, nil
	}
	return n, err
}

// Write blocks until buf has been fully accepted by the device.
func (t *Transport) Write(buf []byte) error {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return errors.New("serial: write before connect")
	}
	_, err := port.Write(buf)
	return err
}

// IsConnected reports whether Connect has succeeded and Disconnect has
// not yet been called.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	var te timeouter
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}
