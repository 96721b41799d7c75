// Package cache puts a read-through cache in front of a graph.Store.
// Every committed transaction bumps a generation counter that is part of
// each read key, so writes invalidate all earlier reads at once.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fruitflybrain/neuroarch/internal/graph"
	"github.com/fruitflybrain/neuroarch/internal/logging"
	"github.com/fruitflybrain/neuroarch/internal/metrics"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

const (
	keyPrefix     = "neuroarch:read:"
	generationKey = "neuroarch:generation"
)

// Backend is the key-value store behind CachedStore.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Counter(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
	DeletePattern(ctx context.Context, pattern string) (int64, error)
	Close() error
}

// CachedStore decorates a graph.Store with a read cache.
type CachedStore struct {
	inner   graph.Store
	backend Backend
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a CachedStore.
type Option func(*CachedStore)

// WithMetrics records hits and misses into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *CachedStore) { s.metrics = m }
}

// NewCachedStore wraps inner.
func NewCachedStore(inner graph.Store, backend Backend, opts ...Option) *CachedStore {
	s := &CachedStore{
		inner:   inner,
		backend: backend,
		logger:  logging.Component("cache"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReadKey derives the cache key of q under generation gen.
func ReadKey(gen int64, q graph.QueryString) (string, error) {
	params, err := json.Marshal(q.Params)
	if err != nil {
		return "", fmt.Errorf("encode query params: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(q.Lang))
	h.Write([]byte{0})
	h.Write([]byte(q.Text))
	h.Write([]byte{0})
	h.Write(params)
	return fmt.Sprintf("%s%d:%s", keyPrefix, gen, hex.EncodeToString(h.Sum(nil))), nil
}

// Dialect implements graph.Store.
func (s *CachedStore) Dialect() graph.Language { return s.inner.Dialect() }

// IsEntityID implements graph.Store.
func (s *CachedStore) IsEntityID(id string) bool { return s.inner.IsEntityID(id) }

// RunRead serves q from the cache when possible. Cache failures fall back
// to the wrapped store.
func (s *CachedStore) RunRead(ctx context.Context, q graph.QueryString) ([]graph.Record, error) {
	key, err := s.key(ctx, q)
	if err != nil {
		s.logger.Warn("cache unavailable, reading through", "error", err)
		s.metrics.ObserveCache(metrics.OutcomeError)
		return s.inner.RunRead(ctx, q)
	}

	data, ok, err := s.backend.Get(ctx, key)
	switch {
	case err != nil:
		s.logger.Warn("cache get failed", "error", err)
		s.metrics.ObserveCache(metrics.OutcomeError)
	case ok:
		records, err := decodeRecords(data)
		if err == nil {
			s.metrics.ObserveCache(metrics.OutcomeHit)
			return records, nil
		}
		s.logger.Warn("dropping undecodable cache entry", "key", key, "error", err)
		s.metrics.ObserveCache(metrics.OutcomeError)
	default:
		s.metrics.ObserveCache(metrics.OutcomeMiss)
	}

	records, err := s.inner.RunRead(ctx, q)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(records); err == nil {
		if err := s.backend.Set(ctx, key, data); err != nil {
			s.logger.Warn("cache set failed", "error", err)
		}
	}
	return records, nil
}

// RunTransaction forwards to the wrapped store and invalidates every cached
// read once the script commits.
func (s *CachedStore) RunTransaction(ctx context.Context, script graph.Script, maxRetries int) ([]graph.Record, error) {
	out, err := s.inner.RunTransaction(ctx, script, maxRetries)
	if err != nil {
		return out, err
	}
	gen, ierr := s.backend.Incr(ctx, generationKey)
	if ierr != nil {
		// Stale reads would survive this write; purge what we can.
		s.logger.Error("cache generation bump failed", "error", ierr)
		if _, perr := s.Purge(ctx); perr != nil {
			s.logger.Error("cache purge failed", "error", perr)
		}
		return out, nil
	}
	s.logger.Debug("cache generation bumped", "generation", gen)
	return out, nil
}

// Purge drops every cached read and reports how many entries went.
func (s *CachedStore) Purge(ctx context.Context) (int64, error) {
	return s.backend.DeletePattern(ctx, keyPrefix+"*")
}

// Close closes the backend. The wrapped store is left open.
func (s *CachedStore) Close() error {
	return s.backend.Close()
}

func (s *CachedStore) key(ctx context.Context, q graph.QueryString) (string, error) {
	gen, err := s.backend.Counter(ctx, generationKey)
	if err != nil {
		return "", err
	}
	return ReadKey(gen, q)
}

func decodeRecords(data []byte) ([]graph.Record, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var records []graph.Record
	if err := dec.Decode(&records); err != nil {
		return nil, err
	}
	for i := range records {
		for k, v := range records[i].Attrs {
			records[i].Attrs[k] = table.Normalize(v)
		}
	}
	return records, nil
}
