// Package storage defines the ordered wide-column contract the queue engine
// runs on.
//
// A store holds rows; each row holds columns sorted byte-wise by name. The
// engine only needs four primitives: put a column, read a column range of a
// row, delete a column, and apply a batch of mutations at a requested
// consistency level. Backends live in subpackages.
package storage

//go:generate mockgen -destination=mocks/store.go -package=mocks github.com/rzbill/shardq/internal/storage Store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
)

// Column is one cell of a row.
type Column struct {
	Name  []byte
	Value []byte
}

// Range selects columns of a row. Start is inclusive and End exclusive; nil
// means unbounded. Prefix further restricts the selection to names carrying
// it. Limit caps the number of returned columns; zero means no limit.
type Range struct {
	Start  []byte
	End    []byte
	Prefix []byte
	Limit  int
}

// PrefixRange selects every column whose name starts with p.
func PrefixRange(p []byte) Range { return Range{Prefix: p} }

// Bounds resolves r into a single half-open interval [lo, hi). A nil hi is
// unbounded.
func (r Range) Bounds() (lo, hi []byte) {
	lo, hi = r.Start, r.End
	if len(r.Prefix) > 0 {
		if bytes.Compare(r.Prefix, lo) > 0 {
			lo = r.Prefix
		}
		if pe := PrefixEnd(r.Prefix); pe != nil && (hi == nil || bytes.Compare(pe, hi) < 0) {
			hi = pe
		}
	}
	return lo, hi
}

// Contains reports whether name falls inside r, ignoring Limit.
func (r Range) Contains(name []byte) bool {
	lo, hi := r.Bounds()
	if lo != nil && bytes.Compare(name, lo) < 0 {
		return false
	}
	return hi == nil || bytes.Compare(name, hi) < 0
}

// PrefixEnd returns the smallest key greater than every key with prefix p, or
// nil when no such key exists (p is empty or all 0xff).
func PrefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// Consistency is the durability/visibility level requested for a batch.
type Consistency int

const (
	// One acknowledges once the local replica has applied the write.
	One Consistency = iota
	// Quorum acknowledges once a majority holds the write durably.
	Quorum
	// All acknowledges once every replica holds the write durably.
	All
)

func (c Consistency) String() string {
	switch c {
	case One:
		return "one"
	case Quorum:
		return "quorum"
	case All:
		return "all"
	default:
		return fmt.Sprintf("consistency(%d)", int(c))
	}
}

// ParseConsistency parses the names produced by Consistency.String.
func ParseConsistency(s string) (Consistency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "one":
		return One, nil
	case "quorum":
		return Quorum, nil
	case "all":
		return All, nil
	default:
		return One, fmt.Errorf("storage: unknown consistency %q", s)
	}
}

// Mutation is one write or delete in a batch.
type Mutation struct {
	Row    string
	Column []byte
	Value  []byte
	Delete bool
}

// Store is the backend contract. Single-column operations are atomic; a batch
// is applied in order but offers no cross-row atomicity guarantee.
type Store interface {
	Put(ctx context.Context, row string, column, value []byte) error
	// Get returns the columns of row inside r in ascending name order. A
	// missing row yields no columns and no error.
	Get(ctx context.Context, row string, r Range) ([]Column, error)
	// Delete removes a column. Deleting a missing column is not an error.
	Delete(ctx context.Context, row string, column []byte) error
	BatchMutate(ctx context.Context, muts []Mutation, c Consistency) error
	Close() error
}

var (
	// ErrInvalidRow is returned for empty row names or names holding a NUL.
	ErrInvalidRow = errors.New("storage: invalid row name")
	// ErrEmptyColumn is returned when a column name is empty.
	ErrEmptyColumn = errors.New("storage: empty column name")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("storage: store closed")
)

// ValidateRow checks a row name against the rules every backend shares.
func ValidateRow(row string) error {
	if row == "" || strings.IndexByte(row, 0) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidRow, row)
	}
	return nil
}

// ValidateMutation checks a single mutation before it is applied.
func ValidateMutation(m Mutation) error {
	if err := ValidateRow(m.Row); err != nil {
		return err
	}
	if len(m.Column) == 0 {
		return ErrEmptyColumn
	}
	return nil
}
