package observability

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rahul/relay/internal/engine"
)

// Metrics holds the Prometheus collectors fed by engine hooks.
type Metrics struct {
	stepsTotal      *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	digestsDegraded *prometheus.CounterVec
	stepsActive     prometheus.Gauge
	wavesTotal      prometheus.Counter
	runsTotal       *prometheus.CounterVec

	registry *prometheus.Registry

	mu      sync.Mutex
	running map[stepKey]bool
}

type stepKey struct {
	run  string
	step int
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_steps_total",
				Help: "Finished steps by handler, status and error kind",
			},
			[]string{"handler", "status", "kind"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_step_duration_seconds",
				Help:    "Handler invocation time of started steps",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"handler"},
		),
		digestsDegraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_digests_degraded_total",
				Help: "Digests produced by the truncation fallback after a failed compression",
			},
			[]string{"handler"},
		),
		stepsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_steps_active",
				Help: "Steps currently running",
			},
		),
		wavesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_waves_total",
				Help: "Waves released",
			},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_runs_total",
				Help: "Finished runs by outcome",
			},
			[]string{"status"},
		),
		registry: registry,
		running:  make(map[stepKey]bool),
	}

	registry.MustRegister(
		m.stepsTotal,
		m.stepDuration,
		m.digestsDegraded,
		m.stepsActive,
		m.wavesTotal,
		m.runsTotal,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Hooks() engine.Hooks {
	return engine.Hooks{
		OnWaveStart: func(context.Context, engine.WaveEvent) {
			m.wavesTotal.Inc()
		},
		OnStepStart: func(_ context.Context, e engine.StepEvent) {
			m.mu.Lock()
			m.running[stepKey{e.RunID, e.Record.Index}] = true
			m.mu.Unlock()
			m.stepsActive.Inc()
		},
		OnStepFinish: func(_ context.Context, e engine.StepEvent) {
			rec := e.Record
			m.stepsTotal.WithLabelValues(rec.HandlerID, string(rec.Status), string(rec.Kind)).Inc()
			key := stepKey{e.RunID, rec.Index}
			m.mu.Lock()
			started := m.running[key]
			delete(m.running, key)
			m.mu.Unlock()
			// Steps failed before invocation have no duration.
			if !started {
				return
			}
			m.stepsActive.Dec()
			m.stepDuration.WithLabelValues(rec.HandlerID).Observe(rec.Duration().Seconds())
			if rec.DigestDegraded {
				m.digestsDegraded.WithLabelValues(rec.HandlerID).Inc()
			}
		},
		OnRunFinish: func(_ context.Context, e engine.RunEvent) {
			status := "succeeded"
			if e.Result != nil && e.Result.OverallError != nil {
				status = string(engine.KindOf(e.Result.OverallError))
			}
			m.runsTotal.WithLabelValues(status).Inc()
		},
	}
}
