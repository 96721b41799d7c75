package graph

import (
	"maps"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Operations the Neo4j store distinguishes for timeouts, metadata and routing.
const (
	OpQueryRead   = "query_read"
	OpApplyChunk  = "apply_chunk"
	OpHealthCheck = "health_check"
	OpSchemaWrite = "schema_write"
)

// TransactionConfig is the timeout and metadata attached to a transaction.
// Neo4j writes the metadata to query.log, so a slow chunk commit can be
// traced back to the apply run that sent it.
type TransactionConfig struct {
	Timeout  time.Duration
	Metadata map[string]any
}

var transactionConfigs = map[string]TransactionConfig{
	OpQueryRead:   {Timeout: 2 * time.Minute, Metadata: map[string]any{"operation": OpQueryRead, "type": "read"}},
	OpApplyChunk:  {Timeout: 3 * time.Minute, Metadata: map[string]any{"operation": OpApplyChunk, "type": "write"}},
	OpHealthCheck: {Timeout: 5 * time.Second, Metadata: map[string]any{"operation": OpHealthCheck, "type": "read"}},
	OpSchemaWrite: {Timeout: 30 * time.Second, Metadata: map[string]any{"operation": OpSchemaWrite, "type": "schema"}},
}

// ConfigFor returns the configuration of op. Unknown operations get a
// one-minute timeout.
func ConfigFor(op string) TransactionConfig {
	if cfg, ok := transactionConfigs[op]; ok {
		return cfg
	}
	return TransactionConfig{
		Timeout:  time.Minute,
		Metadata: map[string]any{"operation": op, "type": "unknown"},
	}
}

// With returns a copy carrying one more metadata entry.
func (tc TransactionConfig) With(key string, value any) TransactionConfig {
	md := make(map[string]any, len(tc.Metadata)+1)
	maps.Copy(md, tc.Metadata)
	md[key] = value
	return TransactionConfig{Timeout: tc.Timeout, Metadata: md}
}

func (tc TransactionConfig) options() []func(*neo4j.TransactionConfig) {
	var opts []func(*neo4j.TransactionConfig)
	if tc.Timeout > 0 {
		opts = append(opts, neo4j.WithTxTimeout(tc.Timeout))
	}
	if len(tc.Metadata) > 0 {
		opts = append(opts, neo4j.WithTxMetadata(tc.Metadata))
	}
	return opts
}

// accessMode routes writes to the cluster leader and everything else to
// read replicas. On a single instance both go to the same server.
func accessMode(op string) neo4j.AccessMode {
	if op == OpApplyChunk || op == OpSchemaWrite {
		return neo4j.AccessModeWrite
	}
	return neo4j.AccessModeRead
}
