// Package telemetry exposes the connection manager's lifecycle and
// I/O-volume events as Prometheus metrics.
//
// Collector satisfies manager.Telemetry, so the collector returned by
// NewPrometheusCollector(reg) can be passed to manager.WithTelemetry
// directly once its error has been checked.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector receives connection lifecycle and byte-volume events. Noop
// discards them, as the default Manager's own no-op sink does;
// production wiring uses NewPrometheusCollector.
type Collector interface {
	IncConnectionCreated(kind string)
	IncConnectionFailed(kind string)
	IncConnectionStopped(kind, cause string)
	AddBytesRead(kind string, n int)
	AddBytesWritten(kind string, n int)
	SetLiveConnections(n int)
	IncProfileReload(outcome string)
}

type noopCollector struct{}

// Noop returns a Collector that discards every metric.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncConnectionCreated(string)      {}
func (noopCollector) IncConnectionFailed(string)       {}
func (noopCollector) IncConnectionStopped(string, string) {}
func (noopCollector) AddBytesRead(string, int)         {}
func (noopCollector) AddBytesWritten(string, int)      {}
func (noopCollector) SetLiveConnections(int)           {}
func (noopCollector) IncProfileReload(string)          {}

// PrometheusCollector exposes the manager's counters and gauge via
// Prometheus.
type PrometheusCollector struct {
	connectionsCreated *prometheus.CounterVec
	connectionsFailed  *prometheus.CounterVec
	connectionsStopped *prometheus.CounterVec
	bytesRead          *prometheus.CounterVec
	bytesWritten       *prometheus.CounterVec
	liveConnections    prometheus.Gauge
	profileReloads     *prometheus.CounterVec
}

// The underlying collectors are process-global: a second call to
// NewPrometheusCollector against the same registerer (or the default
// one, in tests run in the same binary) must reuse rather than
// re-register them, mirroring the teacher's lazy-registration guard.
var (
	connectionsCreatedVec *prometheus.CounterVec
	connectionsCreatedMu  sync.Mutex
	connectionsFailedVec  *prometheus.CounterVec
	connectionsFailedMu   sync.Mutex
	connectionsStoppedVec *prometheus.CounterVec
	connectionsStoppedMu  sync.Mutex
	bytesReadVec          *prometheus.CounterVec
	bytesReadMu           sync.Mutex
	bytesWrittenVec       *prometheus.CounterVec
	bytesWrittenMu        sync.Mutex
	liveConnectionsGauge  prometheus.Gauge
	liveConnectionsMu     sync.Mutex
	profileReloadsVec     *prometheus.CounterVec
	profileReloadsMu      sync.Mutex
)

// NewPrometheusCollector registers the connection manager's metrics
// with reg, or with the default registerer if reg is nil.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	created, err := registerCounterVec(reg, &connectionsCreatedVec, &connectionsCreatedMu, prometheus.CounterOpts{
		Name: "puttygo_connections_created_total",
		Help: "Number of connections successfully established, by transport kind.",
	}, []string{"kind"})
	if err != nil {
		return nil, err
	}

	failed, err := registerCounterVec(reg, &connectionsFailedVec, &connectionsFailedMu, prometheus.CounterOpts{
		Name: "puttygo_connections_failed_total",
		Help: "Number of connection attempts that failed configuration or connect, by transport kind.",
	}, []string{"kind"})
	if err != nil {
		return nil, err
	}

	stopped, err := registerCounterVec(reg, &connectionsStoppedVec, &connectionsStoppedMu, prometheus.CounterOpts{
		Name: "puttygo_connections_stopped_total",
		Help: "Number of connections that terminated, by transport kind and cause.",
	}, []string{"kind", "cause"})
	if err != nil {
		return nil, err
	}

	bytesRead, err := registerCounterVec(reg, &bytesReadVec, &bytesReadMu, prometheus.CounterOpts{
		Name: "puttygo_bytes_read_total",
		Help: "Bytes read from connections, by transport kind.",
	}, []string{"kind"})
	if err != nil {
		return nil, err
	}

	bytesWritten, err := registerCounterVec(reg, &bytesWrittenVec, &bytesWrittenMu, prometheus.CounterOpts{
		Name: "puttygo_bytes_written_total",
		Help: "Bytes written to connections, by transport kind.",
	}, []string{"kind"})
	if err != nil {
		return nil, err
	}

	live, err := registerGauge(reg, &liveConnectionsGauge, &liveConnectionsMu, prometheus.GaugeOpts{
		Name: "puttygo_live_connections",
		Help: "Number of connections currently registered with the manager.",
	})
	if err != nil {
		return nil, err
	}

	profileReloads, err := registerCounterVec(reg, &profileReloadsVec, &profileReloadsMu, prometheus.CounterOpts{
		Name: "puttygo_profile_reloads_total",
		Help: "Number of profile store reloads, by outcome.",
	}, []string{"outcome"})
	if err != nil {
		return nil, err
	}

	return &PrometheusCollector{
		connectionsCreated: created,
		connectionsFailed:  failed,
		connectionsStopped: stopped,
		bytesRead:          bytesRead,
		bytesWritten:       bytesWritten,
		liveConnections:    live,
		profileReloads:     profileReloads,
	}, nil
}

func registerCounterVec(reg prometheus.Registerer, cache **prometheus.CounterVec, mu *sync.Mutex, opts prometheus.CounterOpts, labels []string) (*prometheus.CounterVec, error) {
	mu.Lock()
	defer mu.Unlock()
	if *cache != nil {
		return *cache, nil
	}
	vec := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(vec); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		vec = existing
	}
	*cache = vec
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, cache *prometheus.Gauge, mu *sync.Mutex, opts prometheus.GaugeOpts) (prometheus.Gauge, error) {
	mu.Lock()
	defer mu.Unlock()
	if *cache != nil {
		return *cache, nil
	}
	g := prometheus.NewGauge(opts)
	if err := reg.Register(g); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(prometheus.Gauge)
		if !ok {
			return nil, err
		}
		g = existing
	}
	*cache = g
	return g, nil
}

func (p *PrometheusCollector) IncConnectionCreated(kind string) {
	if p == nil || p.connectionsCreated == nil {
		return
	}
	p.connectionsCreated.WithLabelValues(kind).Inc()
}

func (p *PrometheusCollector) IncConnectionFailed(kind string) {
	if p == nil || p.connectionsFailed == nil {
		return
	}
	p.connectionsFailed.WithLabelValues(kind).Inc()
}

func (p *PrometheusCollector) IncConnectionStopped(kind, cause string) {
	if p == nil || p.connectionsStopped == nil {
		return
	}
	p.connectionsStopped.WithLabelValues(kind, cause).Inc()
}

func (p *PrometheusCollector) AddBytesRead(kind string, n int) {
	if p == nil || p.bytesRead == nil || n == 0 {
		return
	}
	p.bytesRead.WithLabelValues(kind).Add(float64(n))
}

func (p *PrometheusCollector) AddBytesWritten(kind string, n int) {
	if p == nil || p.bytesWritten == nil || n == 0 {
		return
	}
	p.bytesWritten.WithLabelValues(kind).Add(float64(n))
}

func (p *PrometheusCollector) SetLiveConnections(n int) {
	if p == nil || p.liveConnections == nil {
		return
	}
	p.liveConnections.Set(float64(n))
}

func (p *PrometheusCollector) IncProfileReload(outcome string) {
	if p == nil || p.profileReloads == nil {
		return
	}
	p.profileReloads.WithLabelValues(outcome).Inc()
}
