package pebblestore

import (
	"context"
	"testing"
	"time"

	"github.com/rzbill/shardq/internal/storage"
	"github.com/rzbill/shardq/internal/storage/storagetest"
)

type testMetrics struct {
	wrote        int
	read         int
	batchCommits int
	batchOps     int
}

func (m *testMetrics) ObserveWrite(d time.Duration, bytes int) { m.wrote += bytes }
func (m *testMetrics) ObserveRead(d time.Duration, bytes int)  { m.read += bytes }
func (m *testMetrics) ObserveBatchCommit(d time.Duration, numOps int, bytes int) {
	m.batchCommits++
	m.batchOps += numOps
}

func newTestDB(t *testing.T) (*DB, *testMetrics) {
	t.Helper()
	metrics := &testMetrics{}
	db, err := Open(Options{
		DataDir:       t.TempDir(),
		Fsync:         FsyncModeInterval,
		FsyncInterval: 2 * time.Millisecond,
		Metrics:       metrics,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, metrics
}

func TestStoreSuite(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		db, _ := newTestDB(t)
		return db
	})
}

func TestMetricsHook(t *testing.T) {
	db, metrics := newTestDB(t)
	ctx := context.Background()

	if err := db.Put(ctx, "r", []byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if metrics.wrote == 0 {
		t.Fatalf("expected write metrics to record bytes")
	}
	if _, err := db.Get(ctx, "r", storage.Range{}); err != nil {
		t.Fatalf("get: %v", err)
	}
	if metrics.read == 0 {
		t.Fatalf("expected read metrics to record bytes")
	}

	muts := []storage.Mutation{
		{Row: "r", Column: []byte("a"), Value: []byte("1")},
		{Row: "r", Column: []byte("b"), Value: []byte("2")},
	}
	if err := db.BatchMutate(ctx, muts, storage.Quorum); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if metrics.batchCommits != 1 || metrics.batchOps != 2 {
		t.Fatalf("want 1 batch commit of 2 ops, got %d/%d", metrics.batchCommits, metrics.batchOps)
	}
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	db, err := Open(Options{DataDir: dir, Fsync: FsyncModeAlways})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Put(ctx, "jobs:meta", []byte("m"), []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := db.Put(ctx, "jobs:meta", []byte("m"), []byte("y")); err != storage.ErrClosed {
		t.Fatalf("put after close: got %v want ErrClosed", err)
	}

	db, err = Open(Options{DataDir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	cols, err := db.Get(ctx, "jobs:meta", storage.Range{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(cols) != 1 || string(cols[0].Value) != "x" {
		t.Fatalf("unexpected columns after reopen: %+v", cols)
	}
}

func TestCompactRow(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	for _, c := range []string{"a", "b", "c"} {
		if err := db.Put(ctx, "r", []byte(c), []byte("v")); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := db.Delete(ctx, "r", []byte(c)); err != nil {
			t.Fatalf("delete: %v", err)
		}
	}
	if err := db.CompactRow(ctx, "r"); err != nil {
		t.Fatalf("compact: %v", err)
	}
	cols, err := db.Get(ctx, "r", storage.Range{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(cols) != 0 {
		t.Fatalf("want empty row, got %d columns", len(cols))
	}
}

func TestParseFsyncMode(t *testing.T) {
	for in, want := range map[string]FsyncMode{"always": FsyncModeAlways, "interval": FsyncModeInterval, "never": FsyncModeNever, "": FsyncModeUnspecified} {
		got, err := ParseFsyncMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseFsyncMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFsyncMode("sometimes"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
