package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNoopCollector(t *testing.T) {
	collector := Noop()
	require.NotNil(t, collector)
	collector.IncConnectionCreated("serial")
	collector.IncConnectionFailed("serial")
	collector.IncConnectionStopped("serial", "graceful")
	collector.AddBytesRead("serial", 3)
	collector.AddBytesWritten("serial", 3)
	collector.SetLiveConnections(1)
	collector.IncProfileReload("ok")
}

func resetRegistrationCache() {
	connectionsCreatedMu.Lock()
	connectionsCreatedVec = nil
	connectionsCreatedMu.Unlock()
	connectionsFailedMu.Lock()
	connectionsFailedVec = nil
	connectionsFailedMu.Unlock()
	connectionsStoppedMu.Lock()
	connectionsStoppedVec = nil
	connectionsStoppedMu.Unlock()
	bytesReadMu.Lock()
	bytesReadVec = nil
	bytesReadMu.Unlock()
	bytesWrittenMu.Lock()
	bytesWrittenVec = nil
	bytesWrittenMu.Unlock()
	liveConnectionsMu.Lock()
	liveConnectionsGauge = nil
	liveConnectionsMu.Unlock()
	profileReloadsMu.Lock()
	profileReloadsVec = nil
	profileReloadsMu.Unlock()
}

func TestPrometheusCollectorRegistersAndReusesCounter(t *testing.T) {
	resetRegistrationCache()

	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.NotNil(t, collector)

	collector.IncConnectionCreated("serial")

	metrics, err := reg.Gather()
	require.NoError(t, err)

	var created *dto.MetricFamily
	for _, mf := range metrics {
		if mf.GetName() == "puttygo_connections_created_total" {
			created = mf
		}
	}
	require.NotNil(t, created)
	requireCounterValue(t, created, 1)

	again, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.Same(t, collector.connectionsCreated, again.connectionsCreated)

	again.IncConnectionCreated("serial")

	metrics, err = reg.Gather()
	require.NoError(t, err)
	for _, mf := range metrics {
		if mf.GetName() == "puttygo_connections_created_total" {
			requireCounterValue(t, mf, 2)
		}
	}
}

func TestPrometheusCollectorLiveConnectionsGauge(t *testing.T) {
	resetRegistrationCache()

	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	collector.SetLiveConnections(3)

	metrics, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range metrics {
		if mf.GetName() == "puttygo_live_connections" {
			require.Len(t, mf.Metric, 1)
			require.Equal(t, float64(3), mf.Metric[0].Gauge.GetValue())
		}
	}
}

func TestPrometheusCollectorProfileReloadCounter(t *testing.T) {
	resetRegistrationCache()

	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	collector.IncProfileReload("ok")
	collector.IncProfileReload("error")

	metrics, err := reg.Gather()
	require.NoError(t, err)
	var reloads *dto.MetricFamily
	for _, mf := range metrics {
		if mf.GetName() == "puttygo_profile_reloads_total" {
			reloads = mf
		}
	}
	require.NotNil(t, reloads)
	require.Len(t, reloads.Metric, 2)
}

func requireCounterValue(t *testing.T, mf *dto.MetricFamily, value float64) {
	t.Helper()
	require.Len(t, mf.Metric, 1)
	require.NotNil(t, mf.Metric[0].Counter)
	require.Equal(t, value, mf.Metric[0].Counter.GetValue())
}
