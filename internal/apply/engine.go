// Package apply pushes diff change-sets into a graph store in chunked,
// individually atomic transactions.
package apply

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/graph"
	"github.com/fruitflybrain/neuroarch/internal/logging"
	"github.com/fruitflybrain/neuroarch/internal/metrics"
)

// Notifier receives the report of every apply call that reached the store.
type Notifier interface {
	PublishReport(ctx context.Context, r *Report) error
}

// Engine applies change-sets to one store.
//
// Within a call, mods commit before adds and adds before dels. Each chunk is
// one transaction; a failing chunk stops the call and leaves earlier chunks
// committed. The returned Report lists exactly those.
type Engine struct {
	store    graph.Store
	schema   graph.Schema
	cfg      ChunkConfig
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	notifier Notifier
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithChunkConfig overrides chunk sizes and the retry budget.
func WithChunkConfig(cfg ChunkConfig) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithRateLimit throttles chunk submission. Zero disables throttling.
func WithRateLimit(chunksPerSecond float64) Option {
	return func(e *Engine) {
		if chunksPerSecond > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(chunksPerSecond), 1)
		}
	}
}

// WithMetrics records chunk outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithNotifier publishes reports after each call.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// NewEngine creates an engine. A nil schema means graph.DefaultSchema.
func NewEngine(store graph.Store, schema graph.Schema, opts ...Option) (*Engine, error) {
	if schema == nil {
		schema = graph.DefaultSchema()
	}
	e := &Engine{
		store:  store,
		schema: schema,
		cfg:    DefaultChunkConfig(),
		logger: logging.Component("apply"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Store returns the store the engine writes to.
func (e *Engine) Store() graph.Store {
	return e.store
}

// entry is one prepared statement. ret names the variable the statement
// binds when its record must come back from the transaction.
type entry struct {
	key  string
	stmt graph.Statement
	ret  string
}

type phasePlan struct {
	phase   Phase
	entries []entry
}

// run submits every phase in order, chunk by chunk. collect is called for
// each returned record with the entry that bound it.
func (e *Engine) run(ctx context.Context, report *Report, plans []phasePlan, collect func(entry, graph.Record)) error {
	for _, p := range plans {
		size := e.cfg.SizeFor(report.Kind, p.phase)
		for i, chunk := range chunks(p.entries, size) {
			if e.limiter != nil {
				if err := e.limiter.Wait(ctx); err != nil {
					return err
				}
			}

			var script graph.Script
			keys := make([]string, 0, len(chunk))
			for _, en := range chunk {
				script.Add(en.stmt)
				if en.ret != "" {
					script.Return = append(script.Return, en.ret)
				}
				keys = append(keys, en.key)
			}

			cr := ChunkReport{Kind: report.Kind, Phase: p.phase, Index: i, Keys: keys}
			start := time.Now()
			records, err := e.store.RunTransaction(ctx, script, e.cfg.MaxRetries)
			cr.Elapsed = time.Since(start)
			e.metrics.ObserveChunk(string(report.Kind), string(p.phase), len(chunk), cr.Elapsed, err)

			if err != nil {
				report.Failed = &cr
				e.logger.Error("chunk failed",
					"kind", report.Kind, "phase", p.phase, "chunk", i, "size", len(chunk), "error", err)
				return fmt.Errorf("%s %s chunk %d (%d entries, %d chunks committed): %w",
					report.Kind, p.phase, i, len(chunk), len(report.Chunks), err)
			}

			report.Chunks = append(report.Chunks, cr)
			switch p.phase {
			case PhaseMod:
				report.Modified = append(report.Modified, keys...)
			case PhaseDel:
				report.Deleted = append(report.Deleted, keys...)
			}
			e.logger.Info("chunk committed",
				"kind", report.Kind, "phase", p.phase, "chunk", i, "size", len(chunk), "elapsed", cr.Elapsed)

			if len(records) != len(script.Return) {
				return errors.InternalErrorf("%s %s chunk %d: store returned %d records for %d variables",
					report.Kind, p.phase, i, len(records), len(script.Return))
			}
			r := 0
			for _, en := range chunk {
				if en.ret == "" {
					continue
				}
				collect(en, records[r])
				r++
			}
		}
	}
	return nil
}

// finish stamps the report and hands it to the notifier.
func (e *Engine) finish(ctx context.Context, report *Report, err error) (*Report, error) {
	report.Elapsed = time.Since(report.Started)
	if e.notifier != nil && (len(report.Chunks) > 0 || report.Failed != nil) {
		if nerr := e.notifier.PublishReport(ctx, report); nerr != nil {
			e.logger.Warn("failed to publish apply report", "kind", report.Kind, "error", nerr)
		}
	}
	return report, err
}

// cleanSet converts null-like values to nil, which clears the attribute.
func cleanSet(values map[string]any, skip ...string) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if contains(skip, k) {
			continue
		}
		if graph.IsNull(v) {
			v = nil
		}
		out[k] = v
	}
	return out
}

// cleanProps drops null-like values.
func cleanProps(values map[string]any, skip ...string) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if contains(skip, k) || graph.IsNull(v) {
			continue
		}
		out[k] = v
	}
	return out
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
