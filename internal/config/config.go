// Package config loads neuroarch settings from YAML, .env files, the
// environment and the OS keychain.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fruitflybrain/neuroarch/internal/apply"
	"github.com/fruitflybrain/neuroarch/internal/storage"
)

// Store backends.
const (
	BackendNeo4j  = "neo4j"
	BackendMemory = "memory"
)

// Config holds all configuration settings
type Config struct {
	// Graph store connection
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Chunking, retries and throttling of apply runs
	Apply ApplyConfig `mapstructure:"apply" yaml:"apply"`

	// Read cache
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Snapshot persistence
	Snapshot SnapshotConfig `mapstructure:"snapshot" yaml:"snapshot"`

	// Change notifications
	Notify NotifyConfig `mapstructure:"notify" yaml:"notify"`

	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

type StoreConfig struct {
	Backend     string `mapstructure:"backend" yaml:"backend"` // "neo4j", "memory"
	URI         string `mapstructure:"uri" yaml:"uri"`
	User        string `mapstructure:"user" yaml:"user"`
	Password    string `mapstructure:"password" yaml:"password"`
	Database    string `mapstructure:"database" yaml:"database"`
	MaxPoolSize int    `mapstructure:"max_pool_size" yaml:"max_pool_size"`
	FetchSize   int    `mapstructure:"fetch_size" yaml:"fetch_size"`
	SchemaPath  string `mapstructure:"schema_path" yaml:"schema_path"` // empty = built-in schema
}

type ApplyConfig struct {
	apply.ChunkConfig `mapstructure:",squash" yaml:",inline"`

	ChunksPerSecond float64 `mapstructure:"chunks_per_second" yaml:"chunks_per_second"` // 0 = unthrottled
}

type CacheConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	RedisAddr     string        `mapstructure:"redis_addr" yaml:"redis_addr"` // empty = in-process cache
	RedisPassword string        `mapstructure:"redis_password" yaml:"redis_password"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type SnapshotConfig struct {
	Backend     string `mapstructure:"backend" yaml:"backend"` // "sqlite", "postgres", "bolt"
	Path        string `mapstructure:"path" yaml:"path"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
}

type NotifyConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	NATSURL string `mapstructure:"nats_url" yaml:"nats_url"`
	Subject string `mapstructure:"subject" yaml:"subject"`
}

type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"` // empty = not served
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
	File  string `mapstructure:"file" yaml:"file"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Store: StoreConfig{
			Backend:     BackendNeo4j,
			URI:         "bolt://localhost:7687",
			User:        "neo4j",
			Database:    "neo4j",
			MaxPoolSize: 50,
		},
		Apply: ApplyConfig{
			ChunkConfig: apply.DefaultChunkConfig(),
		},
		Cache: CacheConfig{
			TTL: 15 * time.Minute,
		},
		Snapshot: SnapshotConfig{
			Backend: storage.BackendSQLite,
			Path:    filepath.Join(homeDir, ".neuroarch", "snapshots.db"),
		},
		Notify: NotifyConfig{
			Subject: "neuroarch.apply",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// defaults flattens Default() into viper keys so that NEUROARCH_* variables
// bind through AutomaticEnv.
func defaults(cfg *Config) map[string]any {
	return map[string]any{
		"store.backend":           cfg.Store.Backend,
		"store.uri":               cfg.Store.URI,
		"store.user":              cfg.Store.User,
		"store.password":          cfg.Store.Password,
		"store.database":          cfg.Store.Database,
		"store.max_pool_size":     cfg.Store.MaxPoolSize,
		"store.fetch_size":        cfg.Store.FetchSize,
		"store.schema_path":       cfg.Store.SchemaPath,
		"apply.node_mod_chunk":    cfg.Apply.NodeMod,
		"apply.node_add_chunk":    cfg.Apply.NodeAdd,
		"apply.node_del_chunk":    cfg.Apply.NodeDel,
		"apply.edge_mod_chunk":    cfg.Apply.EdgeMod,
		"apply.edge_add_chunk":    cfg.Apply.EdgeAdd,
		"apply.edge_del_chunk":    cfg.Apply.EdgeDel,
		"apply.max_retries":       cfg.Apply.MaxRetries,
		"apply.chunks_per_second": cfg.Apply.ChunksPerSecond,
		"cache.enabled":           cfg.Cache.Enabled,
		"cache.redis_addr":        cfg.Cache.RedisAddr,
		"cache.redis_password":    cfg.Cache.RedisPassword,
		"cache.ttl":               cfg.Cache.TTL,
		"snapshot.backend":        cfg.Snapshot.Backend,
		"snapshot.path":           cfg.Snapshot.Path,
		"snapshot.postgres_dsn":   cfg.Snapshot.PostgresDSN,
		"notify.enabled":          cfg.Notify.Enabled,
		"notify.nats_url":         cfg.Notify.NATSURL,
		"notify.subject":          cfg.Notify.Subject,
		"metrics.listen_addr":     cfg.Metrics.ListenAddr,
		"log.level":               cfg.Log.Level,
		"log.json":                cfg.Log.JSON,
		"log.file":                cfg.Log.File,
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	// Load .env files first (in order of precedence)
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	for key, value := range defaults(cfg) {
		v.SetDefault(key, value)
	}

	// NEUROARCH_STORE_URI overrides store.uri, and so on
	v.SetEnvPrefix("NEUROARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search for config in standard locations
		v.SetConfigName("config")
		v.AddConfigPath(".neuroarch")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".neuroarch"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence. godotenv never
// overrides a variable that is already set, so earlier files win.
func loadEnvFiles() {
	homeDir, _ := os.UserHomeDir()
	envFiles := []string{
		".env.local", // Local overrides (highest precedence)
		".env",
		filepath.Join(homeDir, ".neuroarch", ".env"),
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}
}

// applyEnvOverrides applies the conventional unprefixed variables on top of
// the file and NEUROARCH_* settings.
func applyEnvOverrides(cfg *Config) {
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Store.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Store.User = user
	}
	if db := os.Getenv("NEO4J_DATABASE"); db != "" {
		cfg.Store.Database = db
	}

	// Password precedence: 1. Env var 2. Keychain 3. Config file
	if pw := os.Getenv("NEO4J_PASSWORD"); pw != "" {
		cfg.Store.Password = pw
	} else if cfg.Store.Backend == BackendNeo4j {
		km := NewKeyringManager()
		if km.IsAvailable() {
			if stored, err := km.GetStorePassword(); err == nil && stored != "" {
				cfg.Store.Password = stored
			}
		}
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Cache.RedisAddr = addr
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.Snapshot.PostgresDSN = dsn
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.Notify.NATSURL = url
	}
	if path := os.Getenv("SNAPSHOT_PATH"); path != "" {
		cfg.Snapshot.Path = expandPath(path)
	}
	if retries := os.Getenv("NEUROARCH_MAX_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil {
			cfg.Apply.MaxRetries = n
		}
	}

	cfg.Snapshot.Path = expandPath(cfg.Snapshot.Path)
	cfg.Store.SchemaPath = expandPath(cfg.Store.SchemaPath)
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// StorageConfig returns the snapshot store settings.
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Backend:     c.Snapshot.Backend,
		Path:        c.Snapshot.Path,
		PostgresDSN: c.Snapshot.PostgresDSN,
	}
}

// Save writes the configuration as YAML. The store password is never
// written; it belongs in the keychain or the environment.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	saved := *c
	saved.Store.Password = ""
	for key, value := range defaults(&saved) {
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		v.Set(key, value)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
