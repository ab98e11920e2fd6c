// Package boltstore implements storage.Store on go.etcd.io/bbolt. Each row is
// a top-level bucket, and bolt keeps bucket keys sorted byte-wise, so column
// ranges become cursor walks.
//
// Every write runs in its own read-write transaction, which bolt fsyncs on
// commit; all consistency levels are therefore equally durable.
package boltstore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"go.etcd.io/bbolt"

	"github.com/rzbill/shardq/internal/storage"
)

// Options configures the bolt store.
type Options struct {
	// File is the database path.
	File string
	// Mode is the file mode used when creating File. Defaults to 0600.
	Mode os.FileMode
	// Timeout bounds how long Open waits for the file lock.
	Timeout time.Duration
}

// Store is a storage.Store over a bolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens or creates the bolt file.
func Open(opts Options) (*Store, error) {
	if opts.File == "" {
		return nil, fmt.Errorf("bolt: Options.File is required")
	}
	mode := opts.Mode
	if mode == 0 {
		mode = 0o600
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	db, err := bbolt.Open(opts.File, mode, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", opts.File, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Put(ctx context.Context, row string, column, value []byte) error {
	return s.BatchMutate(ctx, []storage.Mutation{{Row: row, Column: column, Value: value}}, storage.One)
}

func (s *Store) Delete(ctx context.Context, row string, column []byte) error {
	return s.BatchMutate(ctx, []storage.Mutation{{Row: row, Column: column, Delete: true}}, storage.One)
}

// BatchMutate applies muts in a single bolt transaction.
func (s *Store) BatchMutate(ctx context.Context, muts []storage.Mutation, _ storage.Consistency) error {
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
	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, m := range muts {
			if m.Delete {
				b := tx.Bucket([]byte(m.Row))
				if b == nil {
					continue
				}
				if err := b.Delete(m.Column); err != nil {
					return err
				}
				continue
			}
			b, err := tx.CreateBucketIfNotExists([]byte(m.Row))
			if err != nil {
				return err
			}
			value := m.Value
			if value == nil {
				value = []byte{}
			}
			if err := b.Put(m.Column, value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bolt: update: %w", err)
	}
	return nil
}

// Get walks the row bucket from the lower bound of r.
func (s *Store) Get(ctx context.Context, row string, r storage.Range) ([]storage.Column, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := storage.ValidateRow(row); err != nil {
		return nil, err
	}
	lo, hi := r.Bounds()
	var out []storage.Column
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(row))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		var k, v []byte
		if lo == nil {
			k, v = c.First()
		} else {
			k, v = c.Seek(lo)
		}
		for ; k != nil; k, v = c.Next() {
			if hi != nil && bytes.Compare(k, hi) >= 0 {
				break
			}
			if r.Limit > 0 && len(out) >= r.Limit {
				break
			}
			// bolt memory is only valid inside the transaction
			out = append(out, storage.Column{
				Name:  append([]byte(nil), k...),
				Value: append([]byte(nil), v...),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: view: %w", err)
	}
	return out, nil
}
