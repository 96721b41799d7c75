package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/storage"
)

// isolate runs the test from an empty directory with a mock keychain and
// none of the override variables set.
func isolate(t *testing.T) string {
	t.Helper()
	keyring.MockInit()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("HOME", dir)
	for _, key := range []string{
		"NEO4J_URI", "NEO4J_USER", "NEO4J_PASSWORD", "NEO4J_DATABASE",
		"REDIS_ADDR", "POSTGRES_DSN", "NATS_URL", "SNAPSHOT_PATH",
		"NEUROARCH_MAX_RETRIES", "NEUROARCH_MODE", "NEUROARCH_STORE_BACKEND",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return dir
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendNeo4j, cfg.Store.Backend)
	assert.Equal(t, 1000, cfg.Apply.NodeAdd)
	assert.Equal(t, 200, cfg.Apply.EdgeDel)
	assert.Equal(t, 100, cfg.Apply.MaxRetries)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, storage.BackendSQLite, cfg.Snapshot.Backend)
	assert.Equal(t, filepath.Join(dir, ".neuroarch", "snapshots.db"), cfg.Snapshot.Path)
}

func TestLoadFileAndOverrides(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "neuroarch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  backend: neo4j
  uri: bolt://graph:7687
  password: from-file
apply:
  edge_add_chunk: 50
  chunks_per_second: 2.5
cache:
  enabled: true
  ttl: 1m
snapshot:
  backend: bolt
  path: ~/snaps.bolt
`), 0644))

	t.Setenv("NEO4J_URI", "neo4j://override:7687")
	t.Setenv("NEUROARCH_MAX_RETRIES", "7")
	t.Setenv("NEUROARCH_STORE_DATABASE", "flybrain")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "neo4j://override:7687", cfg.Store.URI)
	assert.Equal(t, "flybrain", cfg.Store.Database)
	assert.Equal(t, "from-file", cfg.Store.Password)
	assert.Equal(t, 50, cfg.Apply.EdgeAdd)
	assert.Equal(t, 1000, cfg.Apply.NodeAdd)
	assert.Equal(t, 2.5, cfg.Apply.ChunksPerSecond)
	assert.Equal(t, 7, cfg.Apply.MaxRetries)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, filepath.Join(dir, "snaps.bolt"), cfg.Snapshot.Path)
}

func TestPasswordPrecedence(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "neuroarch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  password: from-file\n"), 0644))
	km := NewKeyringManager()

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Store.Password)
	assert.Equal(t, "config", km.PasswordSource(cfg))

	require.NoError(t, km.SaveStorePassword("from-keychain"))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-keychain", cfg.Store.Password)
	assert.Equal(t, "keychain", km.PasswordSource(cfg))

	t.Setenv("NEO4J_PASSWORD", "from-env")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Store.Password)
	assert.Equal(t, "env", km.PasswordSource(cfg))
}

func TestKeyringManager(t *testing.T) {
	keyring.MockInit()
	km := NewKeyringManager()
	assert.True(t, km.IsAvailable())

	got, err := km.GetStorePassword()
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.Error(t, km.SaveStorePassword(""))
	require.NoError(t, km.SaveStorePassword("s3cret-password"))
	got, err = km.GetStorePassword()
	require.NoError(t, err)
	assert.Equal(t, "s3cret-password", got)

	require.NoError(t, km.DeleteStorePassword())
	require.NoError(t, km.DeleteStorePassword())
	got, err = km.GetStorePassword()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "(not set)", MaskSecret(""))
	assert.Equal(t, "***", MaskSecret("short"))
	assert.Equal(t, "s3c...word", MaskSecret("s3cret-password"))
}

func TestSaveRoundTrip(t *testing.T) {
	dir := isolate(t)
	cfg := Default()
	cfg.Store.URI = "bolt://saved:7687"
	cfg.Store.Password = "never-written"
	cfg.Apply.NodeMod = 42
	cfg.Cache.TTL = 90 * time.Second
	cfg.Notify.Enabled = true
	cfg.Notify.NATSURL = "nats://bus:4222"

	path := filepath.Join(dir, "out", "config.yaml")
	require.NoError(t, cfg.Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "never-written")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bolt://saved:7687", loaded.Store.URI)
	assert.Empty(t, loaded.Store.Password)
	assert.Equal(t, 42, loaded.Apply.NodeMod)
	assert.Equal(t, 90*time.Second, loaded.Cache.TTL)
	assert.True(t, loaded.Notify.Enabled)
	assert.Equal(t, "nats://bus:4222", loaded.Notify.NATSURL)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Store.Password = "a-long-password"
		cfg.Snapshot.Path = "/tmp/snaps.db"
		return cfg
	}

	result := valid().ValidateWithMode(ModeInteractive)
	assert.False(t, result.HasErrors(), result.Error())
	assert.NoError(t, result.Err())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"chunk size", func(c *Config) { c.Apply.EdgeMod = 0 }, "apply.edge_mod_chunk"},
		{"negative retries", func(c *Config) { c.Apply.MaxRetries = -1 }, "apply.max_retries"},
		{"negative throttle", func(c *Config) { c.Apply.ChunksPerSecond = -1 }, "chunks_per_second"},
		{"unknown store", func(c *Config) { c.Store.Backend = "orient" }, "unknown store backend"},
		{"neo4j without uri", func(c *Config) { c.Store.URI = "" }, "store.uri"},
		{"bad scheme", func(c *Config) { c.Store.URI = "http://x" }, "scheme"},
		{"unknown snapshot", func(c *Config) { c.Snapshot.Backend = "mongo" }, "unknown snapshot backend"},
		{"postgres without dsn", func(c *Config) { c.Snapshot.Backend = storage.BackendPostgres }, "postgres_dsn"},
		{"notify without url", func(c *Config) { c.Notify.Enabled = true }, "nats_url"},
		{"default password", func(c *Config) { c.Store.Password = "neo4j" }, "insecure default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			result := cfg.ValidateWithMode(ModeInteractive)
			require.True(t, result.HasErrors())
			assert.Contains(t, result.Error(), tt.want)
			assert.ErrorIs(t, result.Err(), errors.ErrConfig)
		})
	}

	t.Run("default password is a warning in development", func(t *testing.T) {
		cfg := valid()
		cfg.Store.Password = "neo4j"
		result := cfg.ValidateWithMode(ModeDevelopment)
		assert.False(t, result.HasErrors())
		assert.NotEmpty(t, result.Warnings)
	})

	t.Run("memory store skips connection checks", func(t *testing.T) {
		cfg := valid()
		cfg.Store.Backend = BackendMemory
		cfg.Store.URI = ""
		result := cfg.ValidateWithMode(ModeCI)
		assert.False(t, result.HasErrors())
	})
}

func TestDetectMode(t *testing.T) {
	isolate(t)
	for _, key := range []string{"CI", "CONTINUOUS_INTEGRATION", "GITHUB_ACTIONS", "GITLAB_CI", "CIRCLECI", "JENKINS_URL", "BUILDKITE", "TF_BUILD"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	assert.Equal(t, ModeInteractive, DetectMode())

	require.NoError(t, os.WriteFile("go.mod", []byte("module x\n"), 0644))
	assert.Equal(t, ModeDevelopment, DetectMode())

	t.Setenv("GITHUB_ACTIONS", "true")
	assert.Equal(t, ModeCI, DetectMode())
	assert.False(t, ModeCI.AllowsInteractivePrompts())

	t.Setenv("NEUROARCH_MODE", "dev")
	assert.Equal(t, ModeDevelopment, DetectMode())
}
