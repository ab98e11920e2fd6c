package serverrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/multierr"

	cfgpkg "github.com/rzbill/shardq/internal/config"
	"github.com/rzbill/shardq/internal/dispatch"
	"github.com/rzbill/shardq/internal/runtime"
	httpserver "github.com/rzbill/shardq/internal/server/http"
	logpkg "github.com/rzbill/shardq/pkg/log"
)

// Options configures Run.
type Options struct {
	Config cfgpkg.Config
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
	// DisableHTTP runs workers only.
	DisableHTTP bool
	// Handler, when set, is driven by an in-process dispatcher on the
	// configured queue.
	Handler dispatch.Handler
}

// Run opens the runtime, serves HTTP and runs the optional dispatcher until
// ctx is cancelled or SIGINT/SIGTERM arrives.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	if opts.DisableHTTP && opts.Handler == nil {
		return errors.New("serverrun: nothing to run without HTTP or a handler")
	}

	logger := opts.Logger
	if logger == nil {
		l, err := logpkg.ApplyConfig(&cfg.Log)
		if err != nil {
			return err
		}
		logger = l
	}
	restore := logpkg.RedirectStdLog(logger)
	defer restore()

	rt, err := runtime.Open(sctx, runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer rt.Close()

	q, err := rt.DefaultQueue(sctx)
	if err != nil {
		return fmt.Errorf("open queue %s: %w", cfg.Queue.Name, err)
	}

	logger.Info("Starting shardq server",
		logpkg.Str("http", cfg.HTTP.Addr),
		logpkg.Str("backend", cfg.Storage.Backend),
		logpkg.Str("queue", q.Name()),
		logpkg.Int("shards", q.Metadata().ShardCount),
		logpkg.Dur("lease", q.Metadata().LeaseDuration),
		logpkg.F("workers", opts.Handler != nil),
	)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	// the first component to fail stops the others
	gctx, cancel := context.WithCancel(sctx)
	defer cancel()
	record := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = multierr.Append(errs, err)
		mu.Unlock()
		cancel()
	}

	var hsrv *httpserver.Server
	if !opts.DisableHTTP {
		hsrv = httpserver.New(rt, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := hsrv.ListenAndServe(gctx, cfg.HTTP.Addr); err != nil && gctx.Err() == nil {
				record(fmt.Errorf("http: %w", err))
			}
		}()
	}

	if opts.Handler != nil {
		d := dispatch.New(q, q.Consumer(consumerID(cfg.Dispatch.Consumer)), opts.Handler, DispatchConfig(cfg.Dispatch), logger, rt.Metrics())
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(d.Run(gctx))
		}()
	}

	<-gctx.Done()
	if hsrv != nil {
		hsrv.Close()
	}
	wg.Wait()
	logger.Info("shardq server stopped")
	return errs
}

// DispatchConfig converts the config section into dispatcher settings.
func DispatchConfig(c cfgpkg.DispatchConfig) dispatch.Config {
	return dispatch.Config{
		Workers:      c.Workers,
		BatchSize:    c.BatchSize,
		PollInterval: c.PollInterval,
		PollRate:     c.PollRate,
		MaxAttempts:  c.MaxAttempts,
		RetryBackoff: c.RetryBackoff,
		MaxBackoff:   c.MaxBackoff,
	}
}

func consumerID(configured string) string {
	if configured != "" {
		return configured
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "shardq"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
