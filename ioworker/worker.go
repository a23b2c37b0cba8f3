// Package ioworker drives a single transport.Transport: it owns the
// poll loop, serves control events from its inbox, and fans out
// inbound bytes onto a subscriber bus.
//
// The blocking Read calls intrinsic to a transport run on a dedicated
// reader goroutine per worker, per spec.md §4.1/§9; Write calls run on
// the worker's own select loop, between control events. A Read that
// blocks therefore never holds up a pending Write or Stop, and a
// continuously producing remote stream does not starve them.
package ioworker

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/rechermann/puttygo/bus"
	"github.com/rechermann/puttygo/transport"
)

// State is one point in the worker's lifecycle, per spec.md §4.2.
type State int32

const (
	Starting State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Cause records why a worker terminated.
type Cause int

const (
	CauseNone Cause = iota
	CauseStop
	CauseIOError
	CauseOrphaned
)

// Write is a control event requesting that Data be written to the
// transport.
type Write struct{ Data []byte }

// Stop is a control event requesting graceful shutdown.
type Stop struct{}

// event is the union of control events a Worker accepts. Concrete
// values are *Write or *Stop.
type event interface{}

// Worker owns one transport.Transport for the lifetime of one
// connection.
type Worker struct {
	id        string
	transport transport.Transport
	publisher *bus.Bus
	logger    zerolog.Logger

	inbox    chan event
	state    atomic.Int32
	quit     chan struct{}
	quitOnce sync.Once

	lastErr atomic.Value // error

	onBytesRead    func(n int)
	onBytesWritten func(n int)
	onDone         func(id string, cause Cause, err error)
}

// Option configures optional hooks on a Worker, mirroring the
// teacher's functional-options convention.
type Option func(*Worker)

// WithLogger attaches a logger used for the worker's lifecycle events.
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

// WithByteCounters installs callbacks invoked after each successful
// read and write, for telemetry purposes.
func WithByteCounters(onRead, onWritten func(n int)) Option {
	return func(w *Worker) {
		w.onBytesRead = onRead
		w.onBytesWritten = onWritten
	}
}

// WithDoneCallback installs a callback invoked exactly once when the
// worker terminates, regardless of cause.
func WithDoneCallback(fn func(id string, cause Cause, err error)) Option {
	return func(w *Worker) { w.onDone = fn }
}

// New constructs a worker for the given connection id and transport.
// The returned worker has not started running; call Run to drive it.
func New(id string, t transport.Transport, publisher *bus.Bus, opts ...Option) *Worker {
	w := &Worker{
		id:        id,
		transport: t,
		publisher: publisher,
		logger:    zerolog.Nop(),
		inbox:     make(chan event, 256),
		quit:      make(chan struct{}),
	}
	w.state.Store(int32(Starting))
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// LastError returns the last transport error the worker recorded, or
// nil if none occurred.
func (w *Worker) LastError() error {
	if v := w.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// enqueue delivers a control event to the worker's inbox, or drops it
// if the worker has been shut down. The inbox is buffered, so absent a
// shutdown this only blocks the caller once a worker has stopped
// draining it entirely (i.e. it has already terminated on its own and
// nothing reads the channel).
func (w *Worker) enqueue(ev event) {
	select {
	case w.inbox <- ev:
	case <-w.quit:
	}
}

// Shutdown makes the worker observe its control channel as orphaned
// and terminate, regardless of whether anything is still reading from
// its inbox. It is what Manager.Close calls on every live worker so
// that dropping the Manager does not leak a goroutine per connection.
// Idempotent.
func (w *Worker) Shutdown() {
	w.quitOnce.Do(func() { close(w.quit) })
}

// EnqueueWrite enqueues a Write control event.
func (w *Worker) EnqueueWrite(data []byte) {
	w.enqueue(&Write{Data: data})
}

// EnqueueStop enqueues a Stop control event.
func (w *Worker) EnqueueStop() {
	w.enqueue(&Stop{})
}

type readResult struct {
	n    int
	data []byte
	err  error
}

// Run drives the worker until it terminates: connects the transport,
// transitions to Running, and then alternates between forwarding
// control events and publishing inbound chunks until Stop is observed,
// an unrecoverable transport error occurs, or Shutdown is called (the
// worker's control channel is treated as orphaned; see
// manager.Manager.Close, which calls Shutdown on every live worker).
func (w *Worker) Run() {
	if err := w.transport.Connect(); err != nil {
		w.lastErr.Store(err)
		w.state.Store(int32(Stopped))
		w.finish(CauseIOError, err)
		return
	}
	w.runConnected()
}

// RunConnected drives a transport that the caller has already
// connected successfully. This is what the manager uses for
// add_connection, which must surface a connect failure synchronously
// and only spawn a worker once connect has already succeeded
// (spec.md §4.3).
func (w *Worker) RunConnected() {
	w.runConnected()
}

func (w *Worker) runConnected() {
	w.state.Store(int32(Running))

	reads := make(chan readResult, 1)
	readerDone := make(chan struct{})
	go w.readLoop(reads, readerDone)

	cause, err := w.controlLoop(reads)

	w.state.Store(int32(Stopped))
	_ = w.transport.Disconnect()
	drainUntilReaderDone(reads, readerDone)
	w.publisher.Close()
	w.finish(cause, err)
}

// drainUntilReaderDone waits for readLoop to exit, discarding any
// result it sends in the meantime. readLoop's send to reads can be
// blocked either on a pending transport.Read (which Disconnect
// unblocks with an error) or on the buffered channel already holding
// an unconsumed chunk (which only draining unblocks); either way
// readLoop cannot observe the worker stopping and exit on its own.
func drainUntilReaderDone(reads <-chan readResult, readerDone <-chan struct{}) {
	for {
		select {
		case <-readerDone:
			return
		case <-reads:
		}
	}
}

func (w *Worker) readLoop(out chan<- readResult, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, 4096)
	for {
		n, err := w.transport.Read(buf)
		if err != nil {
			out <- readResult{err: err}
			return
		}
		if n == 0 {
			continue
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		out <- readResult{n: n, data: chunk}
		if !w.transport.IsConnected() {
			return
		}
	}
}

func (w *Worker) controlLoop(reads <-chan readResult) (Cause, error) {
	for {
		select {
		case <-w.quit:
			return CauseOrphaned, nil
		case ev, ok := <-w.inbox:
			if !ok {
				return CauseOrphaned, nil
			}
			switch e := ev.(type) {
			case *Stop:
				return CauseStop, nil
			case *Write:
				if err := w.transport.Write(e.Data); err != nil {
					w.lastErr.Store(err)
					return CauseIOError, err
				}
				if w.onBytesWritten != nil {
					w.onBytesWritten(len(e.Data))
				}
			default:
				w.logger.Warn().Str("connection", w.id).Msgf("ioworker: unknown control event %T", ev)
			}
		case res := <-reads:
			if res.err != nil {
				w.lastErr.Store(res.err)
				return CauseIOError, res.err
			}
			w.publisher.Publish(res.data)
			if w.onBytesRead != nil {
				w.onBytesRead(res.n)
			}
		}
	}
}

func (w *Worker) finish(cause Cause, err error) {
	w.logger.Info().
		Str("connection", w.id).
		Str("cause", causeString(cause)).
		Err(err).
		Msg("ioworker: terminated")
	if w.onDone != nil {
		w.onDone(w.id, cause, err)
	}
}

func causeString(c Cause) string {
	switch c {
	case CauseStop:
		return "stop"
	case CauseIOError:
		return "io_error"
	case CauseOrphaned:
		return "orphaned"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}
