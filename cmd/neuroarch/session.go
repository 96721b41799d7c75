package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fruitflybrain/neuroarch/internal/apply"
	"github.com/fruitflybrain/neuroarch/internal/cache"
	"github.com/fruitflybrain/neuroarch/internal/config"
	"github.com/fruitflybrain/neuroarch/internal/graph"
	"github.com/fruitflybrain/neuroarch/internal/memgraph"
	"github.com/fruitflybrain/neuroarch/internal/notify"
	"github.com/fruitflybrain/neuroarch/internal/query"
	"github.com/fruitflybrain/neuroarch/internal/storage"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

// session bundles the store, engine and helpers one command needs.
type session struct {
	store  graph.Store
	schema graph.Schema
	engine *apply.Engine
	cached *cache.CachedStore
	neo    *graph.Neo4jStore

	closers []func() error
}

// healthInterval paces the store health monitor of long-running commands.
const healthInterval = 30 * time.Second

// chunkProfile selects one of the preset chunk configurations.
var chunkProfile string

func chunkConfigFor(profile string, base apply.ChunkConfig) (apply.ChunkConfig, error) {
	var cc apply.ChunkConfig
	switch profile {
	case "":
		return base, nil
	case "default":
		cc = apply.DefaultChunkConfig()
	case "small":
		cc = apply.SmallChunkConfig()
	case "large":
		cc = apply.LargeChunkConfig()
	default:
		return base, fmt.Errorf("unknown chunk profile %q (want default, small or large)", profile)
	}
	if base.MaxRetries > 0 {
		cc.MaxRetries = base.MaxRetries
	}
	return cc, nil
}

// openSession connects to the configured store and builds the apply engine.
func openSession(ctx context.Context, c *config.Config) (*session, error) {
	result := c.Validate()
	for _, w := range result.Warnings {
		logger.Debug(w)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	s := &session{}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	schema := graph.Schema(graph.DefaultSchema())
	if c.Store.SchemaPath != "" {
		loaded, err := graph.LoadSchema(c.Store.SchemaPath)
		if err != nil {
			return nil, err
		}
		schema = loaded
	}
	s.schema = schema

	switch c.Store.Backend {
	case config.BackendMemory:
		s.store = memgraph.New(schema)
	case config.BackendNeo4j, "":
		neo, err := graph.NewNeo4jStore(ctx, graph.Neo4jOptions{
			URI:         c.Store.URI,
			User:        c.Store.User,
			Password:    c.Store.Password,
			Database:    c.Store.Database,
			MaxPoolSize: c.Store.MaxPoolSize,
			FetchSize:   c.Store.FetchSize,
			Schema:      schema,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to neo4j: %w", err)
		}
		s.closers = append(s.closers, func() error {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return neo.Close(closeCtx)
		})
		s.store = neo
		s.neo = neo

		watchCtx, cancel := context.WithCancel(ctx)
		go neo.WatchHealth(watchCtx, healthInterval)
		s.closers = append(s.closers, func() error { cancel(); return nil })
	default:
		return nil, fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Cache.Enabled {
		var backend cache.Backend
		if c.Cache.RedisAddr != "" {
			client, err := cache.NewClient(ctx, c.Cache.RedisAddr, c.Cache.RedisPassword, c.Cache.TTL)
			if err != nil {
				return nil, err
			}
			backend = client
		} else {
			backend = cache.NewMemory(c.Cache.TTL)
		}
		s.cached = cache.NewCachedStore(s.store, backend, cache.WithMetrics(registry.Metrics))
		s.closers = append(s.closers, s.cached.Close)
		s.store = s.cached
	}

	chunkCfg, err := chunkConfigFor(chunkProfile, c.Apply.ChunkConfig)
	if err != nil {
		return nil, err
	}
	opts := []apply.Option{
		apply.WithChunkConfig(chunkCfg),
		apply.WithRateLimit(c.Apply.ChunksPerSecond),
		apply.WithMetrics(registry.Metrics),
	}
	if c.Notify.Enabled {
		pub, err := notify.Connect(notify.Config{URL: c.Notify.NATSURL, Subject: c.Notify.Subject})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pub.Close)
		opts = append(opts, apply.WithNotifier(pub))
	}
	s.engine, err = apply.NewEngine(s.store, schema, opts...)
	if err != nil {
		return nil, err
	}

	if seedNodes != "" {
		if err := s.seed(ctx, c.Store.Backend); err != nil {
			return nil, err
		}
	}
	ok = true
	return s, nil
}

// seed loads --seed-nodes/--seed-edges into a memory store.
func (s *session) seed(ctx context.Context, backend string) error {
	if backend != config.BackendMemory {
		return fmt.Errorf("--seed-nodes only applies to the memory store")
	}
	nodes, edges, err := readTables(ctx, seedNodes, seedEdges)
	if err != nil {
		return err
	}
	res, err := s.engine.Load(ctx, nodes, edges)
	if err != nil {
		return fmt.Errorf("seed memory store: %w", err)
	}
	logger.WithField("nodes", len(res.Nodes.IDs)).Debug("memory store seeded")
	return nil
}

// queryOptions returns the wrapper options every command uses.
func (s *session) queryOptions() []query.Option {
	return []query.Option{query.WithSchema(s.schema), query.WithMetrics(registry.Metrics)}
}

// Close releases everything in reverse order of acquisition.
func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.WithError(err).Debug("close failed")
		}
	}
	s.closers = nil
}

// openSnapshots opens the configured snapshot store.
func openSnapshots(ctx context.Context, c *config.Config) (storage.Store, error) {
	return storage.Open(ctx, c.StorageConfig())
}

// readTables reads a node table and an optional edge table concurrently.
func readTables(ctx context.Context, nodesPath, edgesPath string) (*table.Table, *table.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	nodes, edges := table.New(), table.New()
	var g errgroup.Group
	g.Go(func() error {
		t, err := table.ReadFile(nodesPath)
		if err == nil {
			nodes = t
		}
		return err
	})
	if edgesPath != "" {
		g.Go(func() error {
			t, err := table.ReadFile(edgesPath)
			if err == nil {
				edges = t
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return nodes, edges, nil
}
