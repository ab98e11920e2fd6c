package boltstore

import (
	"path/filepath"
	"testing"

	"github.com/rzbill/shardq/internal/storage"
	"github.com/rzbill/shardq/internal/storage/storagetest"
)

func TestStoreSuite(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, err := Open(Options{File: filepath.Join(t.TempDir(), "shardq.bolt")})
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		return s
	})
}

func TestOpenRequiresFile(t *testing.T) {
	if _, err := Open(Options{}); err == nil {
		t.Fatalf("expected error without a file")
	}
}
