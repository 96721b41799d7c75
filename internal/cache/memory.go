package cache

import (
	"context"
	"path"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process Backend for single-command runs without Redis.
type Memory struct {
	c *gocache.Cache
}

// NewMemory creates an in-process backend whose entries expire after ttl.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{c: gocache.New(ttl, 2*ttl)}
}

// Get implements Backend.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}

// Set implements Backend.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.c.SetDefault(key, append([]byte(nil), value...))
	return nil
}

// Counter implements Backend.
func (m *Memory) Counter(_ context.Context, key string) (int64, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return 0, nil
	}
	return v.(int64), nil
}

// Incr implements Backend.
func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	// Add fails when the counter exists, which is the common case.
	_ = m.c.Add(key, int64(0), gocache.NoExpiration)
	return m.c.IncrementInt64(key, 1)
}

// DeletePattern implements Backend with path.Match glob semantics.
func (m *Memory) DeletePattern(_ context.Context, pattern string) (int64, error) {
	var deleted int64
	for key := range m.c.Items() {
		if ok, _ := path.Match(pattern, key); ok {
			m.c.Delete(key)
			deleted++
		}
	}
	return deleted, nil
}

// Close implements Backend.
func (m *Memory) Close() error {
	m.c.Flush()
	return nil
}
