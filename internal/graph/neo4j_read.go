package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func (s *Neo4jStore) session(ctx context.Context, op string) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   accessMode(op),
		FetchSize:    s.fetchSize,
	})
}

// readEager buffers the whole result through ExecuteQuery with reader
// routing.
func (s *Neo4jStore) readEager(ctx context.Context, q QueryString) ([]Record, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver, q.Text, q.Params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database),
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, rec := range result.Records {
		out = appendValues(out, rec.Values)
	}
	return out, nil
}

// readStreaming pulls rows in fetch-size batches and converts each batch as
// it arrives, so only one batch of driver records is held at a time.
func (s *Neo4jStore) readStreaming(ctx context.Context, q QueryString) ([]Record, error) {
	session := s.session(ctx, OpQueryRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, q.Text, q.Params, ConfigFor(OpQueryRead).options()...)
	if err != nil {
		return nil, err
	}
	var out []Record
	for result.Next(ctx) {
		out = appendValues(out, result.Record().Values)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	if _, err := result.Consume(ctx); err != nil {
		return nil, err
	}
	return out, nil
}
