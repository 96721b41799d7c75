package graph

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fruitflybrain/neuroarch/internal/errors"
)

// Neo4jOptions configures a Neo4jStore.
type Neo4jOptions struct {
	URI         string
	User        string
	Password    string
	Database    string
	MaxPoolSize int
	// FetchSize > 0 streams reads through a lazy iterator in batches of this size.
	FetchSize int
	Schema    Schema
}

// Neo4jStore implements Store on a Neo4j database using Cypher.
type Neo4jStore struct {
	driver    neo4j.DriverWithContext
	logger    *slog.Logger
	database  string
	dialect   *CypherDialect
	fetchSize int

	// constraints holds the unique constraints already ensured, by statement.
	constraints sync.Map
}

const constraintViolation = "Neo.ClientError.Schema.ConstraintValidationFailed"

var neo4jElementID = regexp.MustCompile(`^\d+:[0-9a-fA-F-]+:\d+$`)

// NewNeo4jStore connects and verifies connectivity before returning.
func NewNeo4jStore(ctx context.Context, opts Neo4jOptions) (*Neo4jStore, error) {
	if opts.URI == "" || opts.User == "" || opts.Password == "" {
		return nil, errors.ConfigErrorf("neo4j credentials missing: uri=%s, user=%s", opts.URI, opts.User)
	}
	if opts.Database == "" {
		opts.Database = "neo4j"
	}
	if opts.MaxPoolSize <= 0 {
		opts.MaxPoolSize = 50
	}
	if opts.Schema == nil {
		opts.Schema = DefaultSchema()
	}

	driver, err := neo4j.NewDriverWithContext(opts.URI,
		neo4j.BasicAuth(opts.User, opts.Password, ""),
		func(config *neo4j.Config) {
			config.MaxConnectionPoolSize = opts.MaxPoolSize
			config.ConnectionAcquisitionTimeout = 60 * time.Second
			config.MaxConnectionLifetime = 3600 * time.Second
			config.ConnectionLivenessCheckTimeout = 5 * time.Second
			config.SocketConnectTimeout = 5 * time.Second
			config.SocketKeepalive = true
		})
	if err != nil {
		return nil, errors.StoreError(err, "failed to create neo4j driver")
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, errors.StoreErrorf(err, "failed to connect to neo4j at %s", opts.URI)
	}

	logger := slog.Default().With("component", "neo4j")
	logger.Info("neo4j store connected",
		"uri", opts.URI,
		"user", opts.User,
		"database", opts.Database,
		"max_pool_size", opts.MaxPoolSize)

	return &Neo4jStore{
		driver:    driver,
		logger:    logger,
		database:  opts.Database,
		dialect:   NewCypherDialect(opts.Schema),
		fetchSize: opts.FetchSize,
	}, nil
}

// Close closes the Neo4j driver connection
func (s *Neo4jStore) Close(ctx context.Context) error {
	if err := s.driver.Close(ctx); err != nil {
		return fmt.Errorf("failed to close neo4j driver: %w", err)
	}
	s.logger.Info("neo4j store closed")
	return nil
}

// HealthCheck verifies Neo4j connectivity
func (s *Neo4jStore) HealthCheck(ctx context.Context) error {
	cfg := ConfigFor(OpHealthCheck)
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return errors.StoreError(err, "neo4j health check failed")
	}
	return nil
}

// Dialect implements Store.
func (s *Neo4jStore) Dialect() Language { return LangCypher }

// IsEntityID implements Store. Neo4j element ids look like "4:<db uuid>:<n>".
func (s *Neo4jStore) IsEntityID(id string) bool {
	return neo4jElementID.MatchString(id)
}

// RunRead implements Store.
func (s *Neo4jStore) RunRead(ctx context.Context, q QueryString) ([]Record, error) {
	if q.Lang != LangCypher {
		return nil, errors.UnsupportedQueryLanguage(string(q.Lang))
	}

	txConfig := ConfigFor(OpQueryRead)
	ctx, cancel := context.WithTimeout(ctx, txConfig.Timeout)
	defer cancel()

	read := s.readEager
	if s.fetchSize > 0 {
		read = s.readStreaming
	}
	out, err := read(ctx, q)
	if err != nil {
		return nil, errors.StoreError(err, "read query failed")
	}

	s.logger.Debug("read executed", "record_count", len(out))
	return out, nil
}

// RunTransaction implements Store. The script runs in one explicit
// transaction; retryable driver errors restart it up to maxRetries times.
func (s *Neo4jStore) RunTransaction(ctx context.Context, script Script, maxRetries int) ([]Record, error) {
	if err := script.Validate(); err != nil {
		return nil, err
	}

	if err := s.ensureUnique(ctx, script); err != nil {
		return nil, err
	}

	session := s.session(ctx, OpApplyChunk)
	defer session.Close(ctx)

	txConfig := ConfigFor(OpApplyChunk).With("statements", script.Len())

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		records, err := s.runScript(ctx, session, script, txConfig)
		if err == nil {
			if attempt > 0 {
				s.logger.Info("transaction succeeded after retry", "attempts", attempt+1)
			}
			return records, nil
		}
		lastErr = err
		if !neo4j.IsRetryable(err) || ctx.Err() != nil {
			break
		}
		s.logger.Debug("retrying transaction", "attempt", attempt+1, "error", err)
		time.Sleep(backoff(attempt))
	}

	var typed *errors.Error
	if errors.As(lastErr, &typed) {
		return nil, lastErr
	}
	if isConstraintViolation(lastErr) {
		return nil, errors.DuplicateErrorf("transaction violates a unique constraint: %v", lastErr)
	}
	return nil, errors.StoreError(lastErr, "transaction failed")
}

// ensureUnique creates the unique constraints the script's vertices rely on.
// Schema commands cannot share a transaction with data writes, so they run
// first in their own auto-commit queries.
func (s *Neo4jStore) ensureUnique(ctx context.Context, script Script) error {
	for _, stmt := range script.Statements {
		cv, ok := stmt.(CreateVertex)
		if !ok {
			continue
		}
		for _, attr := range cv.Unique {
			q, err := s.dialect.RenderUniqueConstraint(cv.Class, attr)
			if err != nil {
				return err
			}
			if _, done := s.constraints.Load(q); done {
				continue
			}
			if err := s.runSchema(ctx, q); err != nil {
				return errors.StoreErrorf(err, "create unique constraint on %s.%s", cv.Class, attr)
			}
			s.constraints.Store(q, true)
			s.logger.Info("unique constraint ensured", "class", cv.Class, "attribute", attr)
		}
	}
	return nil
}

func (s *Neo4jStore) runSchema(ctx context.Context, query string) error {
	cfg := ConfigFor(OpSchemaWrite)
	session := s.session(ctx, OpSchemaWrite)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, nil, cfg.options()...)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

func isConstraintViolation(err error) bool {
	var nerr *neo4j.Neo4jError
	return errors.As(err, &nerr) && nerr.Code == constraintViolation
}

func (s *Neo4jStore) runScript(ctx context.Context, session neo4j.SessionWithContext, script Script, cfg TransactionConfig) ([]Record, error) {
	tx, err := session.BeginTransaction(ctx, cfg.options()...)
	if err != nil {
		return nil, err
	}
	defer tx.Close(ctx)

	vars := make(map[string]EntityID)
	bound := make(map[string]Record)

	for i, stmt := range script.Statements {
		q, err := s.dialect.RenderStatement(stmt, vars)
		if err != nil {
			return nil, err
		}
		result, err := tx.Run(ctx, q.Query, q.Params)
		if err != nil {
			return nil, err
		}
		rows, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}

		switch st := stmt.(type) {
		case CreateVertex, CreateEdge, UpdateVertex, UpdateEdge:
			recs := []Record{}
			for _, row := range rows {
				recs = appendValues(recs, row.Values)
			}
			if len(recs) == 0 {
				return nil, errors.NotFoundErrorf("statement %d (%T) matched nothing", i, stmt)
			}
			if v := createdVar(st); v != "" {
				vars[v] = recs[0].ID
				bound[v] = recs[0]
			}
		case DeleteVertex, DeleteEdge:
			if len(rows) == 0 {
				return nil, errors.NotFoundErrorf("statement %d (%T) matched nothing", i, stmt)
			}
			if n, ok := rows[0].Get("deleted"); !ok || n.(int64) == 0 {
				return nil, errors.NotFoundErrorf("statement %d (%T) matched nothing", i, stmt)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(script.Return))
	for _, v := range script.Return {
		out = append(out, bound[v])
	}
	return out, nil
}

func createdVar(stmt Statement) string {
	switch st := stmt.(type) {
	case CreateVertex:
		return st.Var
	case CreateEdge:
		return st.Var
	}
	return ""
}

func backoff(attempt int) time.Duration {
	d := time.Duration(attempt+1) * 50 * time.Millisecond
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}

// appendValues converts every node, relationship or path found in a row.
func appendValues(out []Record, values []any) []Record {
	for _, v := range values {
		switch x := v.(type) {
		case neo4j.Node:
			out = append(out, nodeRecord(x))
		case neo4j.Relationship:
			out = append(out, relationshipRecord(x))
		case neo4j.Path:
			for _, n := range x.Nodes {
				out = append(out, nodeRecord(n))
			}
			for _, r := range x.Relationships {
				out = append(out, relationshipRecord(r))
			}
		case []any:
			out = appendValues(out, x)
		}
	}
	return out
}

func nodeRecord(n neo4j.Node) Record {
	class, _ := n.Props[ClassProperty].(string)
	if class == "" && len(n.Labels) > 0 {
		class = n.Labels[0]
	}
	return Record{ID: EntityID(n.ElementId), Class: class, Attrs: n.Props}
}

func relationshipRecord(r neo4j.Relationship) Record {
	return Record{
		ID:    EntityID(r.ElementId),
		Class: r.Type,
		Attrs: r.Props,
		Out:   EntityID(r.StartElementId),
		In:    EntityID(r.EndElementId),
	}
}

// WatchHealth runs periodic health checks until ctx is cancelled.
func (s *Neo4jStore) WatchHealth(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Debug("starting store health monitor", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("store health monitor stopped")
			return
		case <-ticker.C:
			if err := s.HealthCheck(ctx); err != nil {
				s.logger.Warn("store health check failed", "error", err)
			} else {
				s.logger.Debug("store health check passed")
			}
		}
	}
}
