// Package pebblestore implements storage.Store on an embedded Pebble
// database.
//
// Every column is one Pebble key: the row name, a NUL separator, then the
// column name. Rows may not contain NUL, so the keys of one row form a
// contiguous, ordered span and a column range maps onto a single iterator.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	_ = db.Put(ctx, "jobs:0", col, val)
//	cols, _ := db.Get(ctx, "jobs:0", storage.PrefixRange(prefix))
package pebblestore
