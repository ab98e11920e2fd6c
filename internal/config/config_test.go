package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Storage.Backend != "pebble" {
		t.Fatalf("default backend: %q", cfg.Storage.Backend)
	}
	if cfg.Queue.Name != "default" || !cfg.Queue.AutoCreate {
		t.Fatalf("default queue: %+v", cfg.Queue)
	}
	if cfg.Queue.ShardCount != 4 || cfg.Queue.LeaseDuration != 30*time.Second {
		t.Fatalf("default queue metadata: %+v", cfg.Queue)
	}
	if cfg.Queue.Consistency != "quorum" {
		t.Fatalf("default consistency: %q", cfg.Queue.Consistency)
	}
	require.NoError(t, cfg.Validate())
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "shardq.json")
	data := []byte(`{"storage":{"backend":"bolt"},"queue":{"name":"jobs","shardCount":16,"leaseDuration":"45s"}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	require.Equal(t, "bolt", cfg.Storage.Backend)
	require.Equal(t, "jobs", cfg.Queue.Name)
	require.Equal(t, 16, cfg.Queue.ShardCount)
	require.Equal(t, 45*time.Second, cfg.Queue.LeaseDuration)
	// untouched keys keep their defaults
	require.Equal(t, "time-modulo", cfg.Queue.ShardPolicy)
	require.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "shardq.yaml")
	data := []byte(`
dataDir: /srv/shardq
queue:
  consistency: all
  shardPolicy: key-hash
sweeper:
  enabled: false
log:
  level: debug
  format: json
`)
	require.NoError(t, os.WriteFile(file, data, 0644))
	cfg, err := Load(file)
	require.NoError(t, err)
	require.Equal(t, "/srv/shardq", cfg.DataDir)
	require.Equal(t, "all", cfg.Queue.Consistency)
	require.Equal(t, "key-hash", cfg.Queue.ShardPolicy)
	require.False(t, cfg.Sweeper.Enabled)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestEnvName(t *testing.T) {
	cases := map[string]string{
		"dataDir":             "SHARDQ_DATA_DIR",
		"queue.leaseDuration": "SHARDQ_QUEUE_LEASE_DURATION",
		"http.addr":           "SHARDQ_HTTP_ADDR",
		"sweeper.maxPerTick":  "SHARDQ_SWEEPER_MAX_PER_TICK",
	}
	for key, want := range cases {
		require.Equal(t, want, EnvName(key), key)
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("SHARDQ_QUEUE_NAME", "staging")
	t.Setenv("SHARDQ_QUEUE_SHARD_COUNT", "24")
	t.Setenv("SHARDQ_QUEUE_AUTO_CREATE", "false")
	t.Setenv("SHARDQ_QUEUE_LEASE_DURATION", "2m")
	t.Setenv("SHARDQ_STORAGE_BACKEND", "redis")
	FromEnv(&cfg)
	if cfg.Queue.Name != "staging" {
		t.Fatalf("env override name: %q", cfg.Queue.Name)
	}
	if cfg.Queue.ShardCount != 24 {
		t.Fatalf("env override shard count: %d", cfg.Queue.ShardCount)
	}
	if cfg.Queue.AutoCreate {
		t.Fatalf("env override bool")
	}
	require.Equal(t, 2*time.Minute, cfg.Queue.LeaseDuration)
	require.Equal(t, "redis", cfg.Storage.Backend)
	// unset variables leave values alone
	require.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestFromEnvInvalidLeavesConfig(t *testing.T) {
	cfg := Default()
	t.Setenv("SHARDQ_QUEUE_NAME", "other")
	t.Setenv("SHARDQ_QUEUE_SHARD_COUNT", "many")
	FromEnv(&cfg)
	require.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "sqlite" }},
		{"missing data dir", func(c *Config) { c.DataDir = "" }},
		{"missing redis addr", func(c *Config) { c.Storage.Backend = "redis"; c.Storage.RedisAddr = "" }},
		{"bad fsync", func(c *Config) { c.Storage.Fsync = "sometimes" }},
		{"zero shards", func(c *Config) { c.Queue.ShardCount = 0 }},
		{"zero lease", func(c *Config) { c.Queue.LeaseDuration = 0 }},
		{"bad policy", func(c *Config) { c.Queue.ShardPolicy = "random" }},
		{"bad consistency", func(c *Config) { c.Queue.Consistency = "most" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"empty queue name", func(c *Config) { c.Queue.Name = "" }},
		{"cert without key", func(c *Config) { c.HTTP.CertFile = "server.crt" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
