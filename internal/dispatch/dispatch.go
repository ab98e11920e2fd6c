// Package dispatch runs a polling worker pool over a queue consumer.
//
// Each cycle claims a batch, hands every message to the handler on a bounded
// set of goroutines, and settles the outcome: success acks, failure either
// schedules a one-shot retry with exponential backoff or, once the attempt
// counter reaches the limit, poisons the message.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rzbill/shardq/internal/metrics"
	"github.com/rzbill/shardq/internal/queue"
	"github.com/rzbill/shardq/internal/trigger"
	"github.com/rzbill/shardq/pkg/log"
)

// Handler processes one message. Returning an error counts as a failed
// attempt.
type Handler func(ctx context.Context, m *queue.Message) error

// Config tunes a Dispatcher.
type Config struct {
	Workers      int           // concurrent handlers (default: 4)
	BatchSize    int           // messages claimed per poll (default: Workers)
	PollInterval time.Duration // idle wait between empty polls (default: 500ms)
	PollRate     float64       // max polls per second, 0 for unlimited
	ReadTimeout  time.Duration // bound on one claim pass (default: 5s)
	MaxAttempts  int           // attempts before poisoning (default: 5)
	RetryBackoff time.Duration // first retry delay (default: 1s)
	MaxBackoff   time.Duration // retry delay cap (default: 5m)
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = c.Workers
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	return c
}

// Dispatcher drives a handler from a consumer.
type Dispatcher struct {
	q        *queue.Queue
	consumer *queue.Consumer
	handler  Handler
	cfg      Config
	limiter  *rate.Limiter
	logger   log.Logger
	metrics  *metrics.Metrics
}

// New creates a Dispatcher. logger and m may be nil.
func New(q *queue.Queue, consumer *queue.Consumer, h Handler, cfg Config, logger log.Logger, m *metrics.Metrics) *Dispatcher {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.NewNop()
	}
	limit := rate.Inf
	if cfg.PollRate > 0 {
		limit = rate.Limit(cfg.PollRate)
	}
	return &Dispatcher{
		q:        q,
		consumer: consumer,
		handler:  h,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger.WithComponent("dispatch").With(log.Str("queue", q.Name()), log.Str("consumer", consumer.ID())),
		metrics:  m,
	}
}

// Run polls until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started", log.Int("workers", d.cfg.Workers))
	defer d.logger.Info("dispatcher stopped")
	for {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil
		}
		n, err := d.RunOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			d.logger.Error("dispatch cycle failed", log.Err(err))
		}
		if n > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-d.q.Clock().After(d.cfg.PollInterval):
		}
	}
}

// RunOnce claims one batch and waits for every handler to settle. It returns
// how many messages were handled.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	msgs, err := d.consumer.ReadMessagesTimeout(ctx, d.cfg.BatchSize, d.cfg.ReadTimeout)
	if errors.Is(err, queue.ErrBusyLock) {
		return 0, nil
	}
	// settle whatever was claimed even when the read failed part way
	var g errgroup.Group
	g.SetLimit(d.cfg.Workers)
	for _, m := range msgs {
		m := m
		g.Go(func() error { return d.handle(ctx, m) })
	}
	werr := g.Wait()
	if err != nil {
		return len(msgs), err
	}
	return len(msgs), werr
}

func (d *Dispatcher) handle(ctx context.Context, m *queue.Message) error {
	d.metrics.Inflight(d.q.Name(), 1)
	defer d.metrics.Inflight(d.q.Name(), -1)

	herr := d.invoke(ctx, m)
	// settle even when ctx was cancelled while the handler ran
	ctx = context.WithoutCancel(ctx)
	if herr == nil {
		return d.consumer.AckMessage(ctx, m)
	}

	attempts := m.Attempts + 1
	logger := d.logger.With(log.Str("id", m.ID), log.Int("attempts", attempts), log.Err(herr))
	if attempts >= d.cfg.MaxAttempts {
		m.Attempts = attempts
		logger.Warn("handler failed, poisoning message")
		return d.consumer.AckPoisonMessage(ctx, m)
	}

	delay := d.backoff(attempts)
	retry := &queue.Message{
		Body:     m.Body,
		Priority: m.Priority,
		Trigger:  trigger.NewOneShot(d.q.Clock().Now(), delay),
		Attempts: attempts,
		Key:      m.Key,
		Headers:  m.Headers,
	}
	// write the retry before acking so a crash duplicates rather than drops
	if _, err := d.q.Producer().Enqueue(ctx, retry); err != nil {
		return fmt.Errorf("dispatch: enqueue retry: %w", err)
	}
	logger.Info("handler failed, retry scheduled", log.Dur("delay", delay))
	return d.consumer.AckMessage(ctx, m)
}

// invoke runs the handler, turning a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, m *queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch: handler panic: %v", r)
		}
	}()
	return d.handler(ctx, m)
}

func (d *Dispatcher) backoff(attempts int) time.Duration {
	delay := d.cfg.RetryBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= d.cfg.MaxBackoff {
			return d.cfg.MaxBackoff
		}
	}
	return delay
}
