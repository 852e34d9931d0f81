package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/hendrikreh/chessmate/internal/breaker"
)

func TestRegistryAgentCacheCounters(t *testing.T) {
	reg := New(prometheus.NewRegistry())

	reg.AgentCacheHit()
	reg.AgentCacheHit()
	reg.AgentCacheMiss()

	require.Equal(t, float64(2), readCounter(t, reg.AgentCacheHits))
	require.Equal(t, float64(1), readCounter(t, reg.AgentCacheMisses))
}

func TestRegistryObserveAgentEvaluation(t *testing.T) {
	reg := New(prometheus.NewRegistry())

	reg.ObserveAgentEvaluation(250*time.Millisecond, false)
	reg.ObserveAgentEvaluation(100*time.Millisecond, true)

	require.Equal(t, float64(2), readCounter(t, reg.AgentEvalTotal))
	require.Equal(t, float64(1), readCounter(t, reg.AgentEvalErrors))
}

func TestRegistryObservePoolStat(t *testing.T) {
	reg := New(prometheus.NewRegistry())

	reg.ObservePoolStat(10, 3, 7, 2)

	require.Equal(t, float64(10), readGauge(t, reg.DBPoolCapacity))
	require.Equal(t, float64(3), readGauge(t, reg.DBPoolInUse))
	require.Equal(t, float64(7), readGauge(t, reg.DBPoolAvailable))
	require.Equal(t, float64(2), readGauge(t, reg.DBPoolWaiting))
	require.Equal(t, 0.2, readGauge(t, reg.DBPoolWaitRatio))
}

func TestRegistryBreakerHookTracksExactlyOneActiveState(t *testing.T) {
	reg := New(prometheus.NewRegistry())
	hook := reg.BreakerHook()

	hook(breaker.StateClosed, breaker.StateOpen)

	require.Equal(t, float64(1), readLabeledGauge(t, reg.CircuitBreakerState, "open"))
	require.Equal(t, float64(0), readLabeledGauge(t, reg.CircuitBreakerState, "closed"))
	require.Equal(t, float64(0), readLabeledGauge(t, reg.CircuitBreakerState, "half_open"))
	require.Equal(t, float64(0), readLabeledGauge(t, reg.CircuitBreakerState, "disabled"))
}

func TestRegistryWorkerCounters(t *testing.T) {
	reg := New(prometheus.NewRegistry())

	reg.Processed()
	reg.Processed()
	reg.Failed()
	reg.SetQueueDepth(42)

	require.Equal(t, float64(2), readCounter(t, reg.WorkerProcessed))
	require.Equal(t, float64(1), readCounter(t, reg.WorkerFailed))
	require.Equal(t, float64(42), readGauge(t, reg.QueueDepth))
}

func readCounter(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func readGauge(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func readLabeledGauge(t *testing.T, v *prometheus.GaugeVec, label string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, v.WithLabelValues(label).Write(&m))
	return m.GetGauge().GetValue()
}
