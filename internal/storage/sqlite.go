package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/logging"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

// SQLiteStore implements storage using SQLite (for local/development)
type SQLiteStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

type columnsRow struct {
	Kind    string `db:"kind"`
	Columns string `db:"columns"`
}

type tableRow struct {
	SnapshotID string `db:"snapshot_id"`
	Kind       string `db:"kind"`
	Position   int    `db:"position"`
	RowKey     string `db:"row_key"`
	Values     string `db:"vals"`
}

// NewSQLiteStore creates a new SQLite storage
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.FileSystemErrorf(err, "create database directory %s", dir)
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	// WAL mode for better concurrency
	db.Exec("PRAGMA journal_mode = WAL")

	store := &SQLiteStore{
		db:     db,
		logger: logging.Component("storage").With("backend", BackendSQLite),
	}

	// Initialize schema
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		node_rows INTEGER NOT NULL,
		edge_rows INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshot_columns (
		snapshot_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		columns TEXT NOT NULL,
		PRIMARY KEY (snapshot_id, kind),
		FOREIGN KEY (snapshot_id) REFERENCES snapshots(id)
	);

	CREATE TABLE IF NOT EXISTS snapshot_rows (
		snapshot_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		position INTEGER NOT NULL,
		row_key TEXT NOT NULL,
		vals TEXT NOT NULL,
		PRIMARY KEY (snapshot_id, kind, position),
		FOREIGN KEY (snapshot_id) REFERENCES snapshots(id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, name string, nodes, edges *table.Table) (*Info, error) {
	nodes, edges = orEmpty(nodes), orEmpty(edges)
	info, err := newInfo(name, nodes, edges)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := sqliteDeleteByName(ctx, tx, name); err != nil && !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO snapshots (id, name, node_rows, edge_rows, created_at)
		VALUES (:id, :name, :node_rows, :edge_rows, :created_at)`, info)
	if err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}

	for kind, t := range map[string]*table.Table{kindNodes: nodes, kindEdges: edges} {
		cols, err := json.Marshal(t.Columns)
		if err != nil {
			return nil, errors.ValidationErrorf("encode columns: %v", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshot_columns (snapshot_id, kind, columns) VALUES (?, ?, ?)`,
			info.ID, kind, string(cols)); err != nil {
			return nil, fmt.Errorf("save columns: %w", err)
		}
		for i, r := range t.Rows {
			vals, err := encodeValues(r.Values)
			if err != nil {
				return nil, err
			}
			row := tableRow{SnapshotID: info.ID, Kind: kind, Position: i, RowKey: r.Key, Values: vals}
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO snapshot_rows (snapshot_id, kind, position, row_key, vals)
				VALUES (:snapshot_id, :kind, :position, :row_key, :vals)`, row); err != nil {
				return nil, fmt.Errorf("save row: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit snapshot: %w", err)
	}
	s.logger.Info("snapshot saved", "name", name, "id", info.ID, "nodes", info.NodeRows, "edges", info.EdgeRows)
	return info, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, name string) (*Snapshot, error) {
	var info Info
	err := s.db.GetContext(ctx, &info, `SELECT * FROM snapshots WHERE name = ?`, name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundErrorf("snapshot %q not found", name)
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var cols []columnsRow
	if err := s.db.SelectContext(ctx, &cols,
		`SELECT kind, columns FROM snapshot_columns WHERE snapshot_id = ?`, info.ID); err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}
	var rows []tableRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM snapshot_rows WHERE snapshot_id = ? ORDER BY kind, position`, info.ID); err != nil {
		return nil, fmt.Errorf("get rows: %w", err)
	}

	tables := map[string]*table.Table{kindNodes: table.New(), kindEdges: table.New()}
	for _, c := range cols {
		var header []string
		if err := json.Unmarshal([]byte(c.Columns), &header); err != nil {
			return nil, errors.InternalErrorf("decode stored columns: %v", err)
		}
		tables[c.Kind] = table.New(header...)
	}
	for _, r := range rows {
		values, err := decodeValues(r.Values)
		if err != nil {
			return nil, err
		}
		tables[r.Kind].Append(r.RowKey, values)
	}
	return &Snapshot{Info: info, Nodes: tables[kindNodes], Edges: tables[kindEdges]}, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]Info, error) {
	var infos []Info
	if err := s.db.SelectContext(ctx, &infos, `SELECT * FROM snapshots ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return infos, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := sqliteDeleteByName(ctx, tx, name); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	s.logger.Info("snapshot deleted", "name", name)
	return nil
}

func sqliteDeleteByName(ctx context.Context, tx *sqlx.Tx, name string) error {
	var id string
	if err := tx.GetContext(ctx, &id, `SELECT id FROM snapshots WHERE name = ?`, name); err != nil {
		if err == sql.ErrNoRows {
			return errors.NotFoundErrorf("snapshot %q not found", name)
		}
		return fmt.Errorf("get snapshot: %w", err)
	}
	for _, q := range []string{
		`DELETE FROM snapshot_rows WHERE snapshot_id = ?`,
		`DELETE FROM snapshot_columns WHERE snapshot_id = ?`,
		`DELETE FROM snapshots WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete snapshot: %w", err)
		}
	}
	return nil
}
