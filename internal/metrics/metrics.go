// Package metrics registers and exposes the service's Prometheus series:
// request totals/latency, db pool gauges, rate-limit counters, agent cache
// hit/miss, agent evaluation totals/latency/errors, circuit breaker state,
// and embedding worker throughput/queue-depth.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hendrikreh/chessmate/internal/breaker"
)

// Registry bundles every metric chessmate exposes under one handle so
// constructors take a single *Registry instead of a dozen individual
// collectors, mirroring the config package's "one frozen value" idiom
// applied to the metrics surface instead of environment configuration.
type Registry struct {
	RequestsTotal   *prometheus.CounterVec
	RequestLatency  *prometheus.HistogramVec
	DBPoolCapacity  prometheus.Gauge
	DBPoolInUse     prometheus.Gauge
	DBPoolAvailable prometheus.Gauge
	DBPoolWaiting   prometheus.Gauge
	DBPoolWaitRatio prometheus.Gauge

	RateLimitTotal     *prometheus.CounterVec
	RateLimitPerClient *prometheus.CounterVec

	AgentCacheHits   prometheus.Counter
	AgentCacheMisses prometheus.Counter

	AgentEvalTotal   prometheus.Counter
	AgentEvalErrors  prometheus.Counter
	AgentEvalLatency prometheus.Histogram

	CircuitBreakerState *prometheus.GaugeVec

	WorkerProcessed prometheus.Counter
	WorkerFailed    prometheus.Counter
	QueueDepth      prometheus.Gauge
}

// New registers every series against reg (use prometheus.NewRegistry for
// tests, prometheus.DefaultRegisterer in production).
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chessmate",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by route and status.",
		}, []string{"route", "method", "status"}),
		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chessmate",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		DBPoolCapacity: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "chessmate", Subsystem: "db_pool", Name: "capacity",
			Help: "Configured maximum connections in the database pool.",
		}),
		DBPoolInUse: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "chessmate", Subsystem: "db_pool", Name: "in_use",
			Help: "Connections currently acquired from the database pool.",
		}),
		DBPoolAvailable: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "chessmate", Subsystem: "db_pool", Name: "available",
			Help: "Idle connections available in the database pool.",
		}),
		DBPoolWaiting: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "chessmate", Subsystem: "db_pool", Name: "waiting",
			Help: "Acquire calls that had to wait for a connection.",
		}),
		DBPoolWaitRatio: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "chessmate", Subsystem: "db_pool", Name: "wait_ratio",
			Help: "Cumulative acquisitions that had to wait, divided by pool capacity; not bounded to [0,1].",
		}),

		RateLimitTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chessmate", Subsystem: "rate_limit", Name: "total",
			Help: "Rate limit admission decisions.",
		}, []string{"outcome"}),
		RateLimitPerClient: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chessmate", Subsystem: "rate_limit", Name: "limited_total",
			Help: "Rate-limited requests per client key.",
		}, []string{"client"}),

		AgentCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chessmate", Subsystem: "agent_cache", Name: "hits_total",
			Help: "Agent evaluation cache hits.",
		}),
		AgentCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chessmate", Subsystem: "agent_cache", Name: "misses_total",
			Help: "Agent evaluation cache misses.",
		}),

		AgentEvalTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chessmate", Subsystem: "agent", Name: "evaluations_total",
			Help: "Agent evaluator calls attempted.",
		}),
		AgentEvalErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chessmate", Subsystem: "agent", Name: "evaluation_errors_total",
			Help: "Agent evaluator calls that failed.",
		}),
		AgentEvalLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chessmate", Subsystem: "agent", Name: "evaluation_duration_seconds",
			Help:    "Agent evaluator call latency.",
			Buckets: prometheus.DefBuckets,
		}),

		CircuitBreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chessmate", Subsystem: "circuit_breaker", Name: "state",
			Help: "Circuit breaker state (1 for the active state, 0 otherwise), labeled by state name.",
		}, []string{"state"}),

		WorkerProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chessmate", Subsystem: "embedding_worker", Name: "processed_total",
			Help: "Embedding jobs completed successfully.",
		}),
		WorkerFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chessmate", Subsystem: "embedding_worker", Name: "failed_total",
			Help: "Embedding jobs that reached the failed terminal state.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "chessmate", Subsystem: "embedding_worker", Name: "queue_depth",
			Help: "Pending embedding jobs awaiting a claim.",
		}),
	}
}

// ObserveRequest implements server.RequestMetrics.
func (r *Registry) ObserveRequest(route, method, status string, latency time.Duration) {
	r.RequestsTotal.WithLabelValues(route, method, status).Inc()
	r.RequestLatency.WithLabelValues(route).Observe(latency.Seconds())
}

// ObserveRateLimit records one rate-limit admission decision ("allowed" or
// "limited"), and, when the request was limited, attributes it to client.
func (r *Registry) ObserveRateLimit(outcome, client string) {
	r.RateLimitTotal.WithLabelValues(outcome).Inc()
	if outcome == "limited" && client != "" {
		r.RateLimitPerClient.WithLabelValues(client).Inc()
	}
}

// AgentCacheHit implements executor.Metrics.
func (r *Registry) AgentCacheHit() { r.AgentCacheHits.Inc() }

// AgentCacheMiss implements executor.Metrics.
func (r *Registry) AgentCacheMiss() { r.AgentCacheMisses.Inc() }

// ObserveAgentEvaluation implements executor.Metrics: one attempted
// evaluator call, its latency, and whether it failed.
func (r *Registry) ObserveAgentEvaluation(latency time.Duration, failed bool) {
	r.AgentEvalTotal.Inc()
	if failed {
		r.AgentEvalErrors.Inc()
	}
	r.AgentEvalLatency.Observe(latency.Seconds())
}

// ObservePoolStat publishes a postgres.PoolStat-shaped sample onto the db
// pool gauges. Taking plain ints (rather than importing the postgres
// package) keeps internal/metrics dependency-free of the repository layer.
func (r *Registry) ObservePoolStat(capacity, inUse, available, waiting int) {
	r.DBPoolCapacity.Set(float64(capacity))
	r.DBPoolInUse.Set(float64(inUse))
	r.DBPoolAvailable.Set(float64(available))
	r.DBPoolWaiting.Set(float64(waiting))
	if capacity > 0 {
		r.DBPoolWaitRatio.Set(float64(waiting) / float64(capacity))
	}
}

// Processed implements worker.Metrics.
func (r *Registry) Processed() { r.WorkerProcessed.Inc() }

// Failed implements worker.Metrics.
func (r *Registry) Failed() { r.WorkerFailed.Inc() }

// SetQueueDepth implements worker.Metrics.
func (r *Registry) SetQueueDepth(n int) { r.QueueDepth.Set(float64(n)) }

// BreakerHook returns a breaker.Hook that keeps CircuitBreakerState in sync
// with every transition: the new state's label is set to 1, every other
// known label is set to 0, so a Grafana panel can graph "current state" as
// a single time series selected by label.
func (r *Registry) BreakerHook() breaker.Hook {
	states := []breaker.State{breaker.StateDisabled, breaker.StateClosed, breaker.StateHalfOpen, breaker.StateOpen}
	return func(_, to breaker.State) {
		for _, s := range states {
			if s == to {
				r.CircuitBreakerState.WithLabelValues(s.String()).Set(1)
			} else {
				r.CircuitBreakerState.WithLabelValues(s.String()).Set(0)
			}
		}
	}
}
