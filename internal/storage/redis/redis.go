// Package redisstore implements storage.Store on Redis.
//
// A row is two keys: a sorted set holding every column name with score zero,
// so ZRANGEBYLEX yields byte-wise order, and a hash mapping column names to
// values. Writes update both keys inside MULTI/EXEC. Calls pass through a
// circuit breaker so a failing server is not hammered by every consumer poll.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/rzbill/shardq/internal/storage"
)

// Options configures the redis store.
type Options struct {
	// KeyPrefix namespaces every key. Defaults to "shardq:".
	KeyPrefix string
	// WaitReplicas is the replica count awaited by WAIT for consistency All
	// (and Quorum, which waits for a majority of it).
	WaitReplicas int
	// WaitTimeout bounds WAIT. Defaults to one second.
	WaitTimeout time.Duration
	// Breaker overrides the circuit breaker settings.
	Breaker *gobreaker.Settings
}

// Store is a storage.Store over a redis client.
type Store struct {
	client redis.UniversalClient
	opts   Options
	cb     *gobreaker.CircuitBreaker
}

var _ storage.Store = (*Store)(nil)

// ErrReplication is returned when WAIT reached fewer replicas than requested.
var ErrReplication = errors.New("redis: write not acknowledged by enough replicas")

// New wraps client. The store owns the client and closes it on Close.
func New(client redis.UniversalClient, opts Options) *Store {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "shardq:"
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = time.Second
	}
	settings := gobreaker.Settings{
		Name:        "redis-store",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrReplication)
		},
	}
	if opts.Breaker != nil {
		settings = *opts.Breaker
	}
	return &Store{client: client, opts: opts, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Dial connects to addr and pings it.
func Dial(ctx context.Context, addr string, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return New(client, opts), nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) columnsKey(row string) string { return s.opts.KeyPrefix + row + ":c" }
func (s *Store) valuesKey(row string) string  { return s.opts.KeyPrefix + row + ":v" }

func (s *Store) do(fn func() error) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

func (s *Store) Put(ctx context.Context, row string, column, value []byte) error {
	return s.BatchMutate(ctx, []storage.Mutation{{Row: row, Column: column, Value: value}}, storage.One)
}

func (s *Store) Delete(ctx context.Context, row string, column []byte) error {
	return s.BatchMutate(ctx, []storage.Mutation{{Row: row, Column: column, Delete: true}}, storage.One)
}

// BatchMutate queues every mutation in one MULTI/EXEC. Quorum and All then
// block on WAIT until enough replicas acknowledged the write.
func (s *Store) BatchMutate(ctx context.Context, muts []storage.Mutation, c storage.Consistency) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, m := range muts {
		if err := storage.ValidateMutation(m); err != nil {
			return err
		}
	}
	if len(muts) == 0 {
		return nil
	}
	return s.do(func() error {
		_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for _, m := range muts {
				name := string(m.Column)
				if m.Delete {
					p.ZRem(ctx, s.columnsKey(m.Row), name)
					p.HDel(ctx, s.valuesKey(m.Row), name)
					continue
				}
				p.ZAdd(ctx, s.columnsKey(m.Row), redis.Z{Score: 0, Member: name})
				p.HSet(ctx, s.valuesKey(m.Row), name, m.Value)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("redis: exec: %w", err)
		}
		return s.wait(ctx, c)
	})
}

func (s *Store) wait(ctx context.Context, c storage.Consistency) error {
	want := 0
	switch c {
	case storage.All:
		want = s.opts.WaitReplicas
	case storage.Quorum:
		want = s.opts.WaitReplicas/2 + s.opts.WaitReplicas%2
	}
	if want <= 0 {
		return nil
	}
	got, err := s.client.Wait(ctx, want, s.opts.WaitTimeout).Result()
	if err != nil {
		return fmt.Errorf("redis: wait: %w", err)
	}
	if int(got) < want {
		return fmt.Errorf("%w: %d of %d", ErrReplication, got, want)
	}
	return nil
}

// Get lists column names with ZRANGEBYLEX and then fetches their values.
// Columns deleted between the two calls are dropped from the result.
func (s *Store) Get(ctx context.Context, row string, r storage.Range) ([]storage.Column, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := storage.ValidateRow(row); err != nil {
		return nil, err
	}
	lo, hi := r.Bounds()
	by := &redis.ZRangeBy{Min: "-", Max: "+"}
	if lo != nil {
		by.Min = "[" + string(lo)
	}
	if hi != nil {
		by.Max = "(" + string(hi)
	}
	if r.Limit > 0 {
		by.Count = int64(r.Limit)
	}

	var out []storage.Column
	err := s.do(func() error {
		names, err := s.client.ZRangeByLex(ctx, s.columnsKey(row), by).Result()
		if err != nil {
			return fmt.Errorf("redis: zrangebylex: %w", err)
		}
		if len(names) == 0 {
			return nil
		}
		vals, err := s.client.HMGet(ctx, s.valuesKey(row), names...).Result()
		if err != nil {
			return fmt.Errorf("redis: hmget: %w", err)
		}
		out = make([]storage.Column, 0, len(names))
		for i, name := range names {
			v, ok := vals[i].(string)
			if !ok {
				continue
			}
			out = append(out, storage.Column{Name: []byte(name), Value: []byte(v)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
