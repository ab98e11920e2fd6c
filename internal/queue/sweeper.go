package queue

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rzbill/shardq/internal/entry"
	"github.com/rzbill/shardq/internal/storage"
	"github.com/rzbill/shardq/pkg/log"
)

// SweepExpiredLocks deletes up to max Lock columns whose lease ran out,
// across every shard. Claims already ignore expired locks; sweeping keeps
// rows from accumulating locks left by crashed consumers.
func (q *Queue) SweepExpiredLocks(ctx context.Context, max int) (int, error) {
	if max <= 0 {
		max = 1024
	}
	now := q.opts.Clock.Now()
	removed := 0
	for i := 0; i < q.Metadata().ShardCount && removed < max; i++ {
		row := q.shardRow(i)
		locks, err := q.store.Get(ctx, row, storage.PrefixRange(entry.TypePrefix(entry.TypeLock)))
		if err != nil {
			return removed, q.fail("sweep", err)
		}
		var muts []storage.Mutation
		for _, l := range locks {
			if removed+len(muts) >= max {
				break
			}
			if q.expired(l.Value, now) {
				muts = append(muts, storage.Mutation{Row: row, Column: l.Name, Delete: true})
			}
		}
		if len(muts) == 0 {
			continue
		}
		if err := q.store.BatchMutate(ctx, muts, q.opts.Consistency); err != nil {
			return removed, q.fail("sweep", err)
		}
		removed += len(muts)
	}
	q.opts.Metrics.Reclaimed(q.name, removed)
	if removed > 0 {
		q.logger.Debug("expired locks swept", log.Int("removed", removed))
	}
	return removed, nil
}

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	Interval   time.Duration // default 5s
	MaxPerTick int           // default 1024
}

// Sweeper periodically runs SweepExpiredLocks.
type Sweeper struct {
	q   *Queue
	cfg SweeperConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a stopped sweeper for q.
func NewSweeper(q *Queue, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.MaxPerTick <= 0 {
		cfg.MaxPerTick = 1024
	}
	return &Sweeper{q: q, cfg: cfg}
}

// Start launches the sweep loop. Starting a running sweeper is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop halts the loop and waits for an in-flight sweep.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()
	logger := s.q.logger.WithComponent("sweeper")
	logger.Info("sweeper started", log.Dur("interval", s.cfg.Interval))
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		jitter := time.Duration(rng.Int63n(int64(s.cfg.Interval/10 + 1)))
		select {
		case <-ctx.Done():
			logger.Info("sweeper stopped")
			return
		case <-s.q.opts.Clock.After(s.cfg.Interval + jitter):
			if _, err := s.q.SweepExpiredLocks(ctx, s.cfg.MaxPerTick); err != nil && ctx.Err() == nil {
				logger.Error("sweep failed", log.Err(err))
			}
		}
	}
}
