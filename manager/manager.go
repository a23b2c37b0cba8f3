// Package manager implements the Connection Manager: the registry of
// live connections by identifier, the spawning of one I/O worker per
// connection, and the five published operations external collaborators
// (the CLI, the gRPC server) call.
package manager

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/rechermann/puttygo/bus"
	"github.com/rechermann/puttygo/connid"
	"github.com/rechermann/puttygo/ioworker"
	"github.com/rechermann/puttygo/transport"
	"github.com/rechermann/puttygo/transport/serial"
	"github.com/rechermann/puttygo/transport/ssh"
)

// Telemetry receives lifecycle and I/O-volume events from the manager
// and the workers it spawns. The default Manager uses a no-op
// implementation; see the telemetry package for a Prometheus-backed
// one.
type Telemetry interface {
	IncConnectionCreated(kind string)
	IncConnectionFailed(kind string)
	IncConnectionStopped(kind, cause string)
	AddBytesRead(kind string, n int)
	AddBytesWritten(kind string, n int)
	SetLiveConnections(n int)
}

type noopTelemetry struct{}

func (noopTelemetry) IncConnectionCreated(string)      {}
func (noopTelemetry) IncConnectionFailed(string)       {}
func (noopTelemetry) IncConnectionStopped(string, string) {}
func (noopTelemetry) AddBytesRead(string, int)         {}
func (noopTelemetry) AddBytesWritten(string, int)      {}
func (noopTelemetry) SetLiveConnections(int)           {}

// TransportFactory builds a transport.Transport for cfg. The default
// factory (see buildTransport) covers Serial and SSH; WithTransportFactory
// replaces it so tests can substitute a deterministic loopback
// transport, per spec.md §8 S1/S4/S5.
type TransportFactory func(cfg transport.Config) (transport.Transport, error)

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogger attaches a logger used for connection lifecycle events.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithTelemetry attaches a Telemetry sink.
func WithTelemetry(t Telemetry) Option {
	return func(m *Manager) { m.telemetry = t }
}

// WithTransportFactory overrides how Manager builds a Transport from a
// Config, e.g. to inject a fake transport in tests.
func WithTransportFactory(f TransportFactory) Option {
	return func(m *Manager) { m.buildTransport = f }
}

// WithBusCapacity overrides the per-subscriber broadcast buffer
// capacity used for every connection's Subscriber Bus.
func WithBusCapacity(capacity int) Option {
	return func(m *Manager) { m.busCapacity = capacity }
}

type entry struct {
	worker *ioworker.Worker
	bus    *bus.Bus
	kind   string
}

// Manager is the registry of live connections. It is safe for
// concurrent use: compound operations (AddConnection, StopConnection)
// are atomic with respect to Subscribe/WriteBytes, but those two may
// themselves proceed concurrently with each other (spec.md §4.3).
type Manager struct {
	logger         zerolog.Logger
	telemetry      Telemetry
	buildTransport TransportFactory
	busCapacity    int

	mu   sync.RWMutex
	live map[string]*entry
}

// New constructs an empty Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		logger:         zerolog.Nop(),
		telemetry:      noopTelemetry{},
		buildTransport: buildTransport,
		live:           make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func buildTransport(cfg transport.Config) (transport.Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, newError(KindConfig, "invalid connection config", err)
	}
	switch cfg.Kind {
	case transport.KindSerial:
		return serial.New(cfg.Serial), nil
	case transport.KindSSH:
		return ssh.New(cfg.SSH), nil
	default:
		return nil, newError(KindConfig, "unsupported transport kind", nil)
	}
}

// AddConnection builds the transport described by cfg, connects it
// synchronously so configuration and connect failures are surfaced to
// the caller, and — only on success — allocates an id, spawns the
// worker already in the Running state, and registers it. On failure
// nothing is registered (spec.md invariant 5).
func (m *Manager) AddConnection(cfg transport.Config) (connid.ID, error) {
	kind := string(cfg.Kind)

	t, err := m.buildTransport(cfg)
	if err != nil {
		m.telemetry.IncConnectionFailed(kind)
		if me, ok := err.(*Error); ok {
			return connid.ID{}, me
		}
		return connid.ID{}, newError(KindConfig, "build transport", err)
	}

	if err := t.Connect(); err != nil {
		m.telemetry.IncConnectionFailed(kind)
		return connid.ID{}, newError(KindConnectFailed, "connect", err)
	}

	id := connid.New()
	idStr := id.String()
	b := bus.New(m.busCapacity)

	w := ioworker.New(idStr, t, b,
		ioworker.WithLogger(m.logger),
		ioworker.WithByteCounters(
			func(n int) { m.telemetry.AddBytesRead(kind, n) },
			func(n int) { m.telemetry.AddBytesWritten(kind, n) },
		),
		ioworker.WithDoneCallback(func(id string, cause ioworker.Cause, _ error) {
			m.onWorkerDone(id, kind, cause)
		}),
	)

	m.mu.Lock()
	m.live[idStr] = &entry{worker: w, bus: b, kind: kind}
	count := len(m.live)
	m.mu.Unlock()

	m.telemetry.IncConnectionCreated(kind)
	m.telemetry.SetLiveConnections(count)

	go w.RunConnected()

	return id, nil
}

// onWorkerDone runs once per worker, regardless of whether the
// termination was requested via StopConnection (which already removed
// the registry entry eagerly) or happened on its own (io error,
// orphaning). It always records the stop in telemetry; it only needs
// to touch the registry when StopConnection did not already do so.
func (m *Manager) onWorkerDone(id, kind string, cause ioworker.Cause) {
	m.mu.Lock()
	_, stillRegistered := m.live[id]
	if stillRegistered {
		delete(m.live, id)
	}
	count := len(m.live)
	m.mu.Unlock()

	m.telemetry.IncConnectionStopped(kind, causeLabel(cause))
	if stillRegistered {
		m.telemetry.SetLiveConnections(count)
	}
}

func causeLabel(c ioworker.Cause) string {
	switch c {
	case ioworker.CauseStop:
		return "graceful"
	case ioworker.CauseIOError:
		return "failed"
	case ioworker.CauseOrphaned:
		return "orphaned"
	default:
		return "unknown"
	}
}

// Subscribe returns a fresh subscriber on id's broadcast bus. It fails
// with KindNotFound when no such id exists.
func (m *Manager) Subscribe(id connid.ID) (*bus.Subscriber, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.bus.Subscribe(), nil
}

// Unsubscribe removes sub from id's broadcast bus. Unsubscribing from an
// id that no longer exists (the connection stopped in the meantime) is
// not an error: the bus was already closed and dropped along with it.
func (m *Manager) Unsubscribe(id connid.ID, sub *bus.Subscriber) {
	e, err := m.lookup(id)
	if err != nil {
		return
	}
	e.bus.Unsubscribe(sub)
}

// WriteBytes enqueues a Write control event for id. It returns as soon
// as the event has been enqueued, not once the transport has accepted
// it. Fails with KindNotFound when id is absent and KindClosed when
// the worker has already terminated.
func (m *Manager) WriteBytes(id connid.ID, data []byte) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	if e.worker.State() == ioworker.Stopped {
		return newError(KindClosed, "worker already terminated", nil)
	}
	e.worker.EnqueueWrite(data)
	return nil
}

// StopConnection enqueues a Stop control event for id and removes the
// registry entry eagerly, so that subsequent lookups return
// KindNotFound even before the worker has finished tearing down the
// transport. Idempotent: stopping an unknown or already-stopped id is
// never an error.
func (m *Manager) StopConnection(id connid.ID) {
	idStr := id.String()
	m.mu.Lock()
	e, ok := m.live[idStr]
	if ok {
		delete(m.live, idStr)
	}
	count := len(m.live)
	m.mu.Unlock()

	if !ok {
		return
	}
	m.telemetry.SetLiveConnections(count)
	e.worker.EnqueueStop()
}

// Close shuts down every currently-registered worker and clears the
// registry. Unlike StopConnection, which asks a worker to terminate
// gracefully (cause "stop"), Close makes every worker observe its
// control channel as orphaned (cause "orphaned"): dropping a Manager
// must not leave any worker goroutine, reader goroutine, or bus
// running behind it. Idempotent; safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.live))
	for _, e := range m.live {
		entries = append(entries, e)
	}
	m.live = make(map[string]*entry)
	m.mu.Unlock()

	if len(entries) > 0 {
		m.telemetry.SetLiveConnections(0)
	}
	for _, e := range entries {
		e.worker.Shutdown()
	}
}

// ListConnections returns the ids of every currently-registered
// connection. Optional operational surface, per spec.md §4.3.
func (m *Manager) ListConnections() []connid.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]connid.ID, 0, len(m.live))
	for idStr := range m.live {
		if id, err := connid.Parse(idStr); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func (m *Manager) lookup(id connid.ID) (*entry, error) {
	m.mu.RLock()
	e, ok := m.live[id.String()]
	m.mu.RUnlock()
	if !ok {
		return nil, newError(KindNotFound, "unknown connection id", nil)
	}
	return e, nil
}
