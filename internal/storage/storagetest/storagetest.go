// Package storagetest holds the behavioural suite every storage.Store backend
// must pass.
package storagetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/shardq/internal/storage"
)

// Opener returns a fresh, empty store. The suite closes it.
type Opener func(t *testing.T) storage.Store

// Run executes the suite against stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"PutGetDelete", testPutGetDelete},
		{"OrderedRanges", testOrderedRanges},
		{"RowIsolation", testRowIsolation},
		{"BatchMutate", testBatchMutate},
		{"InvalidInput", testInvalidInput},
		{"CanceledContext", testCanceledContext},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func names(cols []storage.Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = string(c.Name)
	}
	return out
}

func testPutGetDelete(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "q:0", []byte("a"), []byte("1")))
	require.NoError(t, s.Put(ctx, "q:0", []byte("a"), []byte("2")))

	cols, err := s.Get(ctx, "q:0", storage.PrefixRange([]byte("a")))
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, []byte("2"), cols[0].Value)

	require.NoError(t, s.Delete(ctx, "q:0", []byte("a")))
	require.NoError(t, s.Delete(ctx, "q:0", []byte("a")), "deleting a missing column")

	cols, err = s.Get(ctx, "q:0", storage.Range{})
	require.NoError(t, err)
	assert.Empty(t, cols)

	cols, err = s.Get(ctx, "never-written", storage.Range{})
	require.NoError(t, err)
	assert.Empty(t, cols)
}

func testOrderedRanges(t *testing.T, s storage.Store) {
	ctx := context.Background()
	for _, c := range []string{"b2", "a1", "c1", "b1", "b3", "\x00z", "\xffz"} {
		require.NoError(t, s.Put(ctx, "r", []byte(c), []byte("v"+c)))
	}

	cols, err := s.Get(ctx, "r", storage.Range{})
	require.NoError(t, err)
	assert.Equal(t, []string{"\x00z", "a1", "b1", "b2", "b3", "c1", "\xffz"}, names(cols))

	cols, err = s.Get(ctx, "r", storage.PrefixRange([]byte("b")))
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2", "b3"}, names(cols))
	assert.Equal(t, []byte("vb2"), cols[1].Value)

	cols, err = s.Get(ctx, "r", storage.Range{Start: []byte("b2"), End: []byte("c1")})
	require.NoError(t, err)
	assert.Equal(t, []string{"b2", "b3"}, names(cols))

	cols, err = s.Get(ctx, "r", storage.Range{Prefix: []byte("b"), Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2"}, names(cols))

	cols, err = s.Get(ctx, "r", storage.Range{Start: []byte("c")})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "\xffz"}, names(cols))
}

func testRowIsolation(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "q", []byte("x"), []byte("1")))
	require.NoError(t, s.Put(ctx, "q:1", []byte("x"), []byte("2")))
	require.NoError(t, s.Put(ctx, "qq", []byte("x"), []byte("3")))

	for row, want := range map[string]string{"q": "1", "q:1": "2", "qq": "3"} {
		cols, err := s.Get(ctx, row, storage.Range{})
		require.NoError(t, err)
		require.Len(t, cols, 1, row)
		assert.Equal(t, want, string(cols[0].Value), row)
	}
}

func testBatchMutate(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "b:0", []byte("gone"), []byte("x")))

	var muts []storage.Mutation
	for i := 0; i < 5; i++ {
		muts = append(muts, storage.Mutation{Row: fmt.Sprintf("b:%d", i%2), Column: []byte(fmt.Sprintf("c%d", i)), Value: []byte("v")})
	}
	muts = append(muts, storage.Mutation{Row: "b:0", Column: []byte("gone"), Delete: true})
	for _, c := range []storage.Consistency{storage.One, storage.All} {
		require.NoError(t, s.BatchMutate(ctx, muts, c))
	}

	cols, err := s.Get(ctx, "b:0", storage.Range{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c0", "c2", "c4"}, names(cols))
	cols, err = s.Get(ctx, "b:1", storage.Range{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c3"}, names(cols))

	require.NoError(t, s.BatchMutate(ctx, nil, storage.One))
}

func testInvalidInput(t *testing.T, s storage.Store) {
	ctx := context.Background()
	assert.ErrorIs(t, s.Put(ctx, "", []byte("a"), []byte("1")), storage.ErrInvalidRow)
	assert.ErrorIs(t, s.Put(ctx, "a\x00b", []byte("a"), []byte("1")), storage.ErrInvalidRow)
	assert.ErrorIs(t, s.Put(ctx, "r", nil, []byte("1")), storage.ErrEmptyColumn)
	assert.ErrorIs(t, s.BatchMutate(ctx, []storage.Mutation{{Row: "r"}}, storage.One), storage.ErrEmptyColumn)
}

func testCanceledContext(t *testing.T, s storage.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Put(ctx, "r", []byte("a"), []byte("1")), context.Canceled)
	_, err := s.Get(ctx, "r", storage.Range{})
	assert.ErrorIs(t, err, context.Canceled)
}
