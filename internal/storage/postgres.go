package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/logging"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

// PostgresStore implements storage using PostgreSQL, for teams sharing
// snapshots across machines.
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

type pgColumnsRow struct {
	Kind    string         `db:"kind"`
	Columns pq.StringArray `db:"columns"`
}

// NewPostgresStore creates a new PostgreSQL storage
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, errors.StoreError(err, "connect to postgres")
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &PostgresStore{
		db:     db,
		logger: logging.Component("storage").With("backend", BackendPostgres),
	}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		node_rows INTEGER NOT NULL,
		edge_rows INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshot_columns (
		snapshot_id UUID NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		columns TEXT[] NOT NULL,
		PRIMARY KEY (snapshot_id, kind)
	);

	CREATE TABLE IF NOT EXISTS snapshot_rows (
		snapshot_id UUID NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		position INTEGER NOT NULL,
		row_key TEXT NOT NULL,
		vals JSONB NOT NULL,
		PRIMARY KEY (snapshot_id, kind, position)
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, name string, nodes, edges *table.Table) (*Info, error) {
	nodes, edges = orEmpty(nodes), orEmpty(edges)
	info, err := newInfo(name, nodes, edges)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.StoreError(err, "begin transaction")
	}
	defer tx.Rollback()

	// Rows and columns go with the snapshot through ON DELETE CASCADE.
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE name = $1`, name); err != nil {
		return nil, errors.StoreError(err, "replace snapshot")
	}
	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO snapshots (id, name, node_rows, edge_rows, created_at)
		VALUES (:id, :name, :node_rows, :edge_rows, :created_at)`, info); err != nil {
		return nil, errors.StoreError(err, "save snapshot")
	}

	for _, part := range []struct {
		kind string
		t    *table.Table
	}{{kindNodes, nodes}, {kindEdges, edges}} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshot_columns (snapshot_id, kind, columns) VALUES ($1, $2, $3)`,
			info.ID, part.kind, pq.Array(part.t.Columns)); err != nil {
			return nil, errors.StoreError(err, "save columns")
		}
		for i, r := range part.t.Rows {
			vals, err := encodeValues(r.Values)
			if err != nil {
				return nil, err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO snapshot_rows (snapshot_id, kind, position, row_key, vals)
				VALUES ($1, $2, $3, $4, $5::jsonb)`,
				info.ID, part.kind, i, r.Key, vals); err != nil {
				return nil, errors.StoreError(err, "save row")
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.StoreError(err, "commit snapshot")
	}
	s.logger.Info("snapshot saved", "name", name, "id", info.ID, "nodes", info.NodeRows, "edges", info.EdgeRows)
	return info, nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, name string) (*Snapshot, error) {
	var info Info
	err := s.db.GetContext(ctx, &info, `
		SELECT id::text AS id, name, node_rows, edge_rows, created_at
		FROM snapshots WHERE name = $1`, name)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundErrorf("snapshot %q not found", name)
	}
	if err != nil {
		return nil, errors.StoreError(err, "get snapshot")
	}

	var cols []pgColumnsRow
	if err := s.db.SelectContext(ctx, &cols,
		`SELECT kind, columns FROM snapshot_columns WHERE snapshot_id = $1`, info.ID); err != nil {
		return nil, errors.StoreError(err, "get columns")
	}
	var rows []tableRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT snapshot_id::text AS snapshot_id, kind, position, row_key, vals::text AS vals
		FROM snapshot_rows WHERE snapshot_id = $1
		ORDER BY kind, position`, info.ID); err != nil {
		return nil, errors.StoreError(err, "get rows")
	}

	tables := map[string]*table.Table{kindNodes: table.New(), kindEdges: table.New()}
	for _, c := range cols {
		tables[c.Kind] = table.New(c.Columns...)
	}
	for _, r := range rows {
		values, err := decodeValues(r.Values)
		if err != nil {
			return nil, err
		}
		tables[r.Kind].Append(r.RowKey, values)
	}
	info.CreatedAt = info.CreatedAt.UTC()
	return &Snapshot{Info: info, Nodes: tables[kindNodes], Edges: tables[kindEdges]}, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context) ([]Info, error) {
	var infos []Info
	if err := s.db.SelectContext(ctx, &infos, `
		SELECT id::text AS id, name, node_rows, edge_rows, created_at
		FROM snapshots ORDER BY name`); err != nil {
		return nil, errors.StoreError(err, "list snapshots")
	}
	for i := range infos {
		infos[i].CreatedAt = infos[i].CreatedAt.UTC()
	}
	return infos, nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE name = $1`, name)
	if err != nil {
		return errors.StoreError(err, "delete snapshot")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFoundErrorf("snapshot %q not found", name)
	}
	s.logger.Info("snapshot deleted", "name", name)
	return nil
}

