package diag

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the Prometheus collectors for the bridge core: counters for
// discrete events, histograms for latency, gauges for current state.
type Metrics struct {
	registry *prometheus.Registry

	enginesCreated   prometheus.Counter
	enginesDestroyed prometheus.Counter
	enginesLive      prometheus.Gauge

	evalTotal    *prometheus.CounterVec // labels: mode(sync|async), outcome(success|error)
	evalDuration *prometheus.HistogramVec

	dispatchTotal *prometheus.CounterVec // labels: path(sync|async), outcome(success|error|pending)

	asyncQueueDepth prometheus.Gauge
	errorsByKind    *prometheus.CounterVec
}

var defaultBuckets = []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000}

var metricsGlobal *Metrics

// InitMetrics creates and registers the global metrics instance under the
// given namespace. Safe to call once at process start; a no-op instance is
// used implicitly (via nil-safe receiver methods) if this is never called.
func InitMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		enginesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "engines_created_total", Help: "Total engines created.",
		}),
		enginesDestroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "engines_destroyed_total", Help: "Total engines destroyed.",
		}),
		enginesLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "engines_live", Help: "Engines currently alive.",
		}),
		evalTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "evaluations_total", Help: "Evaluations by mode and outcome.",
		}, []string{"mode", "outcome"}),
		evalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "evaluation_duration_ms", Help: "Evaluation latency in milliseconds.",
			Buckets: defaultBuckets,
		}, []string{"mode"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "callback_dispatch_total", Help: "Callback dispatches by path and outcome.",
		}, []string{"path", "outcome"}),
		asyncQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "async_pending_requests", Help: "Requests currently queued for the host poller.",
		}),
		errorsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_total", Help: "Recorded errors by taxonomy kind.",
		}, []string{"kind"}),
	}

	registry.MustRegister(
		m.enginesCreated, m.enginesDestroyed, m.enginesLive,
		m.evalTotal, m.evalDuration, m.dispatchTotal,
		m.asyncQueueDepth, m.errorsByKind,
	)

	metricsGlobal = m
	return m
}

// Global returns the process-wide metrics instance, or nil if InitMetrics
// was never called. All methods are nil-receiver safe.
func Global() *Metrics { return metricsGlobal }

// Handler returns an http.Handler serving the Prometheus exposition format,
// for hosts that embed an HTTP diagnostics endpoint alongside the bridge.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) EngineCreated() {
	if m == nil {
		return
	}
	m.enginesCreated.Inc()
	m.enginesLive.Inc()
}

func (m *Metrics) EngineDestroyed() {
	if m == nil {
		return
	}
	m.enginesDestroyed.Inc()
	m.enginesLive.Dec()
}

func (m *Metrics) Evaluation(mode string, success bool, durationMs float64) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.evalTotal.WithLabelValues(mode, outcome).Inc()
	m.evalDuration.WithLabelValues(mode).Observe(durationMs)
}

func (m *Metrics) Dispatch(path, outcome string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(path, outcome).Inc()
}

func (m *Metrics) SetAsyncQueueDepth(n int) {
	if m == nil {
		return
	}
	m.asyncQueueDepth.Set(float64(n))
}

func (m *Metrics) RecordError(kind Kind) {
	if m == nil {
		return
	}
	m.errorsByKind.WithLabelValues(string(kind)).Inc()
}
