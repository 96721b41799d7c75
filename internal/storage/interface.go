// Package storage persists named node/edge table snapshots so that a later
// sync can diff against a saved baseline.
package storage

import (
	"context"
	"time"

	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

// Backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"
)

// Table kinds within a snapshot.
const (
	kindNodes = "nodes"
	kindEdges = "edges"
)

// Info describes a saved snapshot.
type Info struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	NodeRows  int       `db:"node_rows" json:"node_rows"`
	EdgeRows  int       `db:"edge_rows" json:"edge_rows"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Snapshot is a saved table pair.
type Snapshot struct {
	Info
	Nodes *table.Table
	Edges *table.Table
}

// Store defines the snapshot storage interface
type Store interface {
	// Save stores the tables under name, replacing any snapshot of that name.
	Save(ctx context.Context, name string, nodes, edges *table.Table) (*Info, error)
	// Load returns the snapshot called name, or errors.ErrNotFound.
	Load(ctx context.Context, name string) (*Snapshot, error)
	// List returns every snapshot, sorted by name.
	List(ctx context.Context) ([]Info, error)
	// Delete removes the snapshot called name, or returns errors.ErrNotFound.
	Delete(ctx context.Context, name string) error

	Close() error
}

// Config selects and locates a backend.
type Config struct {
	Backend     string
	Path        string
	PostgresDSN string
}

// Open returns the configured store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendSQLite, "":
		if cfg.Path == "" {
			return nil, errors.ConfigErrorf("sqlite snapshot store needs a path")
		}
		return NewSQLiteStore(cfg.Path)
	case BackendPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.ConfigErrorf("postgres snapshot store needs a dsn")
		}
		return NewPostgresStore(ctx, cfg.PostgresDSN)
	case BackendBolt:
		if cfg.Path == "" {
			return nil, errors.ConfigErrorf("bolt snapshot store needs a path")
		}
		return NewBoltStore(cfg.Path)
	default:
		return nil, errors.ConfigErrorf("unknown snapshot backend %q", cfg.Backend)
	}
}
