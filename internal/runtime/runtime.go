package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	cfgpkg "github.com/rzbill/shardq/internal/config"
	"github.com/rzbill/shardq/internal/metrics"
	"github.com/rzbill/shardq/internal/queue"
	"github.com/rzbill/shardq/internal/shard"
	"github.com/rzbill/shardq/internal/storage"
	boltstore "github.com/rzbill/shardq/internal/storage/bolt"
	pebblestore "github.com/rzbill/shardq/internal/storage/pebble"
	redisstore "github.com/rzbill/shardq/internal/storage/redis"
	"github.com/rzbill/shardq/pkg/log"
)

// healthRow is read by CheckHealth; it never holds data.
const healthRow = "shardq:health"

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger log.Logger
	// Registry receives the metric collectors. A fresh registry is created
	// when nil.
	Registry *prometheus.Registry
	Clock    clock.Clock
	// Store overrides the configured backend. The runtime does not close it.
	Store storage.Store
}

// Runtime wires storage, config, metrics and queue handles for a single node.
type Runtime struct {
	store     storage.Store
	ownsStore bool
	config    cfgpkg.Config
	base      log.Logger
	logger    log.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	clock     clock.Clock

	mu       sync.Mutex
	queues   map[string]*queue.Queue
	sweepers []*queue.Sweeper
	closed   bool
}

// Open validates the configuration and opens the storage backend.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	rt := &Runtime{
		config:   opts.Config,
		base:     logger,
		logger:   logger.WithComponent("runtime"),
		registry: reg,
		metrics:  metrics.New(reg),
		clock:    clk,
		queues:   make(map[string]*queue.Queue),
	}
	if opts.Store != nil {
		rt.store = opts.Store
		return rt, nil
	}
	store, err := openStore(ctx, opts.Config, rt.metrics)
	if err != nil {
		return nil, err
	}
	rt.store = store
	rt.ownsStore = true
	rt.logger.Info("storage opened", log.Str("backend", opts.Config.Storage.Backend), log.Str("data_dir", opts.Config.DataDir))
	return rt, nil
}

func openStore(ctx context.Context, cfg cfgpkg.Config, m *metrics.Metrics) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "pebble":
		fsync, err := pebblestore.ParseFsyncMode(cfg.Storage.Fsync)
		if err != nil {
			return nil, err
		}
		return pebblestore.Open(pebblestore.Options{
			DataDir:       cfg.DataDir,
			Fsync:         fsync,
			FsyncInterval: cfg.Storage.FsyncInterval,
			Metrics:       m,
		})
	case "bolt":
		file := cfg.Storage.BoltFile
		if !filepath.IsAbs(file) {
			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return nil, fmt.Errorf("runtime: create data dir: %w", err)
			}
			file = filepath.Join(cfg.DataDir, file)
		}
		return boltstore.Open(boltstore.Options{File: file})
	case "redis":
		return redisstore.Dial(ctx, cfg.Storage.RedisAddr, redisstore.Options{
			KeyPrefix:    cfg.Storage.RedisKeyPrefix,
			WaitReplicas: cfg.Storage.RedisWaitReplicas,
		})
	}
	return nil, fmt.Errorf("runtime: unknown storage backend %q", cfg.Storage.Backend)
}

// Close stops sweepers and closes underlying resources.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sweepers := r.sweepers
	r.sweepers = nil
	n := len(r.queues)
	r.mu.Unlock()

	for _, s := range sweepers {
		s.Stop()
	}
	var err error
	if r.ownsStore {
		err = multierr.Append(err, r.store.Close())
	}
	r.logger.Info("runtime closed", log.Int("queues", n))
	return err
}

// CheckHealth performs a simple read against the backend.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return errors.New("runtime closed")
	}
	_, err := r.store.Get(ctx, healthRow, storage.Range{Limit: 1})
	return err
}

// QueueOptions returns the queue options derived from config.
func (r *Runtime) QueueOptions() (queue.Options, error) {
	policy, err := shard.ByName(r.config.Queue.ShardPolicy)
	if err != nil {
		return queue.Options{}, err
	}
	consistency, err := storage.ParseConsistency(r.config.Queue.Consistency)
	if err != nil {
		return queue.Options{}, err
	}
	return queue.Options{
		Policy:      policy,
		Clock:       r.clock,
		Logger:      r.base,
		Metrics:     r.metrics,
		Consistency: consistency,
	}, nil
}

// DefaultMetadata returns the metadata new queues are created with.
func (r *Runtime) DefaultMetadata() queue.Metadata {
	return queue.Metadata{
		ShardCount:     r.config.Queue.ShardCount,
		LeaseDuration:  r.config.Queue.LeaseDuration,
		PoisonLocation: r.config.Queue.PoisonLocation,
	}
}

// OpenQueue returns a cached handle for name, opening it on first use. When
// queue.autoCreate is set a missing queue is created with DefaultMetadata.
func (r *Runtime) OpenQueue(ctx context.Context, name string) (*queue.Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.New("runtime closed")
	}
	if q, ok := r.queues[name]; ok {
		return q, nil
	}
	opts, err := r.QueueOptions()
	if err != nil {
		return nil, err
	}
	var q *queue.Queue
	if r.config.Queue.AutoCreate {
		q, err = queue.OpenOrCreate(ctx, r.store, name, r.DefaultMetadata(), opts)
	} else {
		q, err = queue.Open(ctx, r.store, name, opts)
	}
	if err != nil {
		return nil, err
	}
	r.register(q)
	return q, nil
}

// CreateQueue provisions name with meta and caches the handle.
func (r *Runtime) CreateQueue(ctx context.Context, name string, meta queue.Metadata) (*queue.Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.New("runtime closed")
	}
	opts, err := r.QueueOptions()
	if err != nil {
		return nil, err
	}
	q, err := queue.Create(ctx, r.store, name, meta, opts)
	if err != nil {
		return nil, err
	}
	r.register(q)
	return q, nil
}

// register caches q and starts its sweeper. Callers hold r.mu.
func (r *Runtime) register(q *queue.Queue) {
	r.queues[q.Name()] = q
	if !r.config.Sweeper.Enabled {
		return
	}
	s := queue.NewSweeper(q, queue.SweeperConfig{
		Interval:   r.config.Sweeper.Interval,
		MaxPerTick: r.config.Sweeper.MaxPerTick,
	})
	s.Start()
	r.sweepers = append(r.sweepers, s)
}

// DefaultQueue opens the queue named by queue.name.
func (r *Runtime) DefaultQueue(ctx context.Context) (*queue.Queue, error) {
	return r.OpenQueue(ctx, r.config.Queue.Name)
}

// Store exposes the underlying backend (internal use only).
func (r *Runtime) Store() storage.Store { return r.store }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Registry returns the Prometheus registry metrics are registered on.
func (r *Runtime) Registry() *prometheus.Registry { return r.registry }

// Metrics returns the queue collectors.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Logger returns the runtime logger.
func (r *Runtime) Logger() log.Logger { return r.logger }
