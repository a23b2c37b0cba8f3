package serial

import (
	"errors"
	"testing"

	"github.com/rechermann/puttygo/transport"
)

func transportConfig() transport.SerialConfig {
	return transport.SerialConfig{Port: "/dev/ttyUSB0", Baud: 9600}
}

type fakeTimeoutErr struct{ timeout bool }

func (e fakeTimeoutErr) Error() string { return "fake timeout" }
func (e fakeTimeoutErr) Timeout() bool { return e.timeout }

func TestIsTimeout(t *testing.T) {
	if isTimeout(nil) {
		t.Fatal("nil error should not be a timeout")
	}
	if isTimeout(errors.New("boom")) {
		t.Fatal("plain error should not be a timeout")
	}
	if !isTimeout(fakeTimeoutErr{timeout: true}) {
		t.Fatal("error reporting Timeout() == true should be a timeout")
	}
	if isTimeout(fakeTimeoutErr{timeout: false}) {
		t.Fatal("error reporting Timeout() == false should not be a timeout")
	}
}

func TestReadBeforeConnect(t *testing.T) {
	tr := New(transportConfig())
	_, err := tr.Read(make([]byte, 8))
	if err == nil {
		t.Fatal("expected an error reading before Connect")
	}
}

func TestWriteBeforeConnect(t *testing.T) {
	tr := New(transportConfig())
	if err := tr.Write([]byte("x")); err == nil {
		t.Fatal("expected an error writing before Connect")
	}
}

func TestIsConnected_FalseBeforeConnect(t *testing.T) {
	tr := New(transportConfig())
	if tr.IsConnected() {
		t.Fatal("transport should not report connected before Connect")
	}
}

func TestDisconnect_IdempotentBeforeConnect(t *testing.T) {
	tr := New(transportConfig())
	if err := tr.Disconnect(); err != nil {
		t.Fatalf("Disconnect() before Connect() should be a no-op, got %v", err)
	}
}
