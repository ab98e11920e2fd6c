package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/rzbill/shardq/internal/shard"
	"github.com/rzbill/shardq/internal/storage"
	"github.com/rzbill/shardq/pkg/log"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DataDir  string         `mapstructure:"dataDir"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Log      log.Config     `mapstructure:"log"`
}

// StorageConfig selects and tunes the backend.
type StorageConfig struct {
	Backend           string        `mapstructure:"backend"` // pebble | bolt | redis
	Fsync             string        `mapstructure:"fsync"`   // always | interval | never
	FsyncInterval     time.Duration `mapstructure:"fsyncInterval"`
	BoltFile          string        `mapstructure:"boltFile"`
	RedisAddr         string        `mapstructure:"redisAddr"`
	RedisKeyPrefix    string        `mapstructure:"redisKeyPrefix"`
	RedisWaitReplicas int           `mapstructure:"redisWaitReplicas"`
}

// QueueConfig describes the queue served by the runtime.
type QueueConfig struct {
	Name           string        `mapstructure:"name"`
	AutoCreate     bool          `mapstructure:"autoCreate"`
	ShardCount     int           `mapstructure:"shardCount"`
	LeaseDuration  time.Duration `mapstructure:"leaseDuration"`
	PoisonLocation string        `mapstructure:"poisonLocation"`
	ShardPolicy    string        `mapstructure:"shardPolicy"`
	Consistency    string        `mapstructure:"consistency"`
}

// SweeperConfig controls background removal of expired locks.
type SweeperConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	MaxPerTick int           `mapstructure:"maxPerTick"`
}

// HTTPConfig configures the HTTP API listener.
type HTTPConfig struct {
	Addr       string        `mapstructure:"addr"`
	RateLimit  int           `mapstructure:"rateLimit"` // requests per RateWindow per client IP, 0 disables
	RateWindow time.Duration `mapstructure:"rateWindow"`
	// JWTSecret enables HMAC bearer-token authentication when set.
	JWTSecret string `mapstructure:"jwtSecret"`
	CertFile  string `mapstructure:"certFile"`
	KeyFile   string `mapstructure:"keyFile"`
}

// DispatchConfig tunes in-process workers started with an exec handler.
type DispatchConfig struct {
	Consumer     string        `mapstructure:"consumer"` // defaults to hostname-pid
	Workers      int           `mapstructure:"workers"`
	BatchSize    int           `mapstructure:"batchSize"`
	PollInterval time.Duration `mapstructure:"pollInterval"`
	PollRate     float64       `mapstructure:"pollRate"`
	MaxAttempts  int           `mapstructure:"maxAttempts"`
	RetryBackoff time.Duration `mapstructure:"retryBackoff"`
	MaxBackoff   time.Duration `mapstructure:"maxBackoff"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir: DefaultDataDir(),
		Storage: StorageConfig{
			Backend:        "pebble",
			Fsync:          "interval",
			FsyncInterval:  5 * time.Millisecond,
			BoltFile:       "shardq.db",
			RedisAddr:      "localhost:6379",
			RedisKeyPrefix: "shardq:",
		},
		Queue: QueueConfig{
			Name:          "default",
			AutoCreate:    true,
			ShardCount:    4,
			LeaseDuration: 30 * time.Second,
			ShardPolicy:   "time-modulo",
			Consistency:   "quorum",
		},
		Sweeper: SweeperConfig{
			Enabled:    true,
			Interval:   5 * time.Second,
			MaxPerTick: 1024,
		},
		HTTP: HTTPConfig{
			Addr:       ":8080",
			RateLimit:  1000,
			RateWindow: time.Second,
		},
		Dispatch: DispatchConfig{
			Workers:      4,
			PollInterval: 500 * time.Millisecond,
			MaxAttempts:  5,
			RetryBackoff: time.Second,
			MaxBackoff:   5 * time.Minute,
		},
		Log: log.Config{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) on top of
// the defaults. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case "pebble", "bolt":
		if c.DataDir == "" {
			return errors.New("config: dataDir is required for embedded backends")
		}
	case "redis":
		if c.Storage.RedisAddr == "" {
			return errors.New("config: storage.redisAddr is required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Storage.Fsync {
	case "", "always", "interval", "never":
	default:
		return fmt.Errorf("config: unknown fsync mode %q", c.Storage.Fsync)
	}
	if (c.HTTP.CertFile == "") != (c.HTTP.KeyFile == "") {
		return errors.New("config: http.certFile and http.keyFile must be set together")
	}
	if c.Queue.Name == "" {
		return errors.New("config: queue.name is required")
	}
	if c.Queue.ShardCount < 1 {
		return fmt.Errorf("config: queue.shardCount must be >= 1, got %d", c.Queue.ShardCount)
	}
	if c.Queue.LeaseDuration <= 0 {
		return fmt.Errorf("config: queue.leaseDuration must be positive, got %s", c.Queue.LeaseDuration)
	}
	if _, err := shard.ByName(c.Queue.ShardPolicy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := storage.ParseConsistency(c.Queue.Consistency); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Dispatch.Workers < 0 || c.Dispatch.MaxAttempts < 0 {
		return errors.New("config: dispatch.workers and dispatch.maxAttempts must not be negative")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
