// Package metrics holds the Prometheus collectors for store reads, apply
// chunks and the read cache.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "neuroarch"

// Chunk outcomes.
const (
	OutcomeCommitted = "committed"
	OutcomeFailed    = "failed"
)

// Cache outcomes.
const (
	OutcomeHit   = "hit"
	OutcomeMiss  = "miss"
	OutcomeError = "error"
)

// Metrics contains every collector the module records into.
type Metrics struct {
	QueryReads     *prometheus.CounterVec
	RecordsFetched prometheus.Counter

	ApplyChunks   *prometheus.CounterVec
	ApplyEntries  *prometheus.CounterVec
	ApplyDuration *prometheus.HistogramVec

	CacheRequests *prometheus.CounterVec
}

// New creates the collectors without registering them.
func New() *Metrics {
	return &Metrics{
		QueryReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "reads_total",
				Help:      "Read queries sent to the store",
			},
			[]string{"dialect"},
		),
		RecordsFetched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "records_fetched_total",
				Help:      "Records returned by read queries",
			},
		),
		ApplyChunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "apply",
				Name:      "chunks_total",
				Help:      "Transaction chunks submitted by the apply engine",
			},
			[]string{"kind", "phase", "outcome"},
		),
		ApplyEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "apply",
				Name:      "entries_total",
				Help:      "Change-set entries committed by the apply engine",
			},
			[]string{"kind", "phase"},
		),
		ApplyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "apply",
				Name:      "chunk_seconds",
				Help:      "Duration of one apply chunk transaction",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind", "phase"},
		),
		CacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "requests_total",
				Help:      "Read cache lookups by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.QueryReads, m.RecordsFetched,
		m.ApplyChunks, m.ApplyEntries, m.ApplyDuration,
		m.CacheRequests,
	}
}

// Register adds the collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRead records one read query and its result size. Nil-safe.
func (m *Metrics) ObserveRead(dialect string, records int) {
	if m == nil {
		return
	}
	m.QueryReads.WithLabelValues(dialect).Inc()
	m.RecordsFetched.Add(float64(records))
}

// ObserveChunk records one apply chunk. Nil-safe.
func (m *Metrics) ObserveChunk(kind, phase string, entries int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeCommitted
	if err != nil {
		outcome = OutcomeFailed
	} else {
		m.ApplyEntries.WithLabelValues(kind, phase).Add(float64(entries))
	}
	m.ApplyChunks.WithLabelValues(kind, phase, outcome).Inc()
	m.ApplyDuration.WithLabelValues(kind, phase).Observe(elapsed.Seconds())
}

// ObserveCache records one cache lookup. Nil-safe.
func (m *Metrics) ObserveCache(outcome string) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(outcome).Inc()
}

// Registry bundles a private Prometheus registry with the module collectors
// and the Go runtime collectors.
type Registry struct {
	reg     *prometheus.Registry
	Metrics *Metrics
}

// NewRegistry creates and populates a registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	m := New()
	reg.MustRegister(m.collectors()...)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{reg: reg, Metrics: m}
}

// Prometheus returns the underlying registry.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.reg
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
