package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/fruitflybrain/neuroarch/internal/apply"
	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/storage"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}
	if len(vr.Warnings) > 0 {
		sb.WriteString("warnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}
	return sb.String()
}

// Err returns nil, or a config error carrying every message.
func (vr *ValidationResult) Err() error {
	if !vr.HasErrors() {
		return nil
	}
	return errors.ConfigErrorf("%s", strings.TrimSuffix(vr.Error(), "\n"))
}

// Validate validates configuration with the auto-detected mode
func (c *Config) Validate() *ValidationResult {
	return c.ValidateWithMode(DetectMode())
}

// ValidateWithMode validates configuration for a deployment mode
func (c *Config) ValidateWithMode(mode DeploymentMode) *ValidationResult {
	result := &ValidationResult{Valid: true}
	c.validateStore(result, mode)
	c.validateApply(result)
	c.validateSnapshot(result)
	c.validateCache(result)
	c.validateNotify(result)
	c.validateLog(result)
	return result
}

func (c *Config) validateStore(result *ValidationResult, mode DeploymentMode) {
	switch c.Store.Backend {
	case BackendMemory:
		result.AddWarning("store backend is memory; nothing is persisted")
		return
	case BackendNeo4j:
	default:
		result.AddError("unknown store backend %q (want %s or %s)", c.Store.Backend, BackendNeo4j, BackendMemory)
		return
	}

	if c.Store.URI == "" {
		result.AddError("store.uri (NEO4J_URI) is required for the neo4j backend")
	} else if u, err := url.Parse(c.Store.URI); err != nil {
		result.AddError("store.uri is invalid: %v", err)
	} else if !strings.HasPrefix(u.Scheme, "bolt") && !strings.HasPrefix(u.Scheme, "neo4j") {
		result.AddError("store.uri scheme %q is not a bolt or neo4j scheme", u.Scheme)
	}

	if c.Store.User == "" {
		result.AddWarning("store.user is not set")
	}
	if c.Store.Password == "" {
		result.AddWarning("store password is not set; run `neuroarch configure` or set NEO4J_PASSWORD")
	} else if c.Store.Password == "neo4j" || c.Store.Password == "password" {
		if mode.RequiresSecureCredentials() {
			result.AddError("store password is an insecure default, not allowed in %s mode", mode)
		} else {
			result.AddWarning("store password is an insecure default")
		}
	}
	if c.Store.MaxPoolSize < 0 {
		result.AddError("store.max_pool_size must be >= 0, got %d", c.Store.MaxPoolSize)
	}
	if c.Store.FetchSize < 0 {
		result.AddError("store.fetch_size must be >= 0, got %d", c.Store.FetchSize)
	}
}

func (c *Config) validateApply(result *ValidationResult) {
	for _, kind := range []apply.Kind{apply.KindNode, apply.KindEdge} {
		for _, phase := range apply.Phases {
			if n := c.Apply.SizeFor(kind, phase); n < 1 {
				result.AddError("apply.%s_%s_chunk must be >= 1, got %d", kind, phase, n)
			}
		}
	}
	if c.Apply.MaxRetries < 0 {
		result.AddError("apply.max_retries must be >= 0, got %d", c.Apply.MaxRetries)
	}
	if c.Apply.ChunksPerSecond < 0 {
		result.AddError("apply.chunks_per_second must be >= 0, got %g", c.Apply.ChunksPerSecond)
	}
}

func (c *Config) validateSnapshot(result *ValidationResult) {
	switch c.Snapshot.Backend {
	case storage.BackendSQLite, storage.BackendBolt:
		if c.Snapshot.Path == "" {
			result.AddError("snapshot.path is required for the %s backend", c.Snapshot.Backend)
		}
	case storage.BackendPostgres:
		dsn := c.Snapshot.PostgresDSN
		if dsn == "" {
			result.AddError("snapshot.postgres_dsn (POSTGRES_DSN) is required for the postgres backend")
		} else if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
			result.AddError("POSTGRES_DSN must start with postgres:// or postgresql://")
		} else if strings.Contains(dsn, "sslmode=disable") {
			result.AddWarning("POSTGRES_DSN has sslmode=disable")
		}
	default:
		result.AddError("unknown snapshot backend %q", c.Snapshot.Backend)
	}
}

func (c *Config) validateCache(result *ValidationResult) {
	if !c.Cache.Enabled {
		return
	}
	if c.Cache.TTL <= 0 {
		result.AddWarning("cache.ttl is not positive, will use default (15m)")
	}
	if c.Cache.RedisAddr == "" {
		result.AddWarning("cache.redis_addr is not set; reads are cached in-process only")
	}
}

func (c *Config) validateNotify(result *ValidationResult) {
	if c.Notify.Enabled && c.Notify.NATSURL == "" {
		result.AddError("notify.nats_url (NATS_URL) is required when notifications are enabled")
	}
}

func (c *Config) validateLog(result *ValidationResult) {
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		result.AddWarning("log.level %q is unknown, will use info", c.Log.Level)
	}
}
