// Package db declares the minimal prefixed-KV storage interface the
// board and local board are built on. Callers open a concrete engine
// (pebbledb) and pass it on as a Database.
package db

import "errors"

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("db: key not found")

// Database is a byte-oriented key-value store supporting prefix iteration
// and atomic write batches.
type Database interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	// Iterate calls fn for every key with the given prefix, in ascending
	// key order, until fn returns false or the keyspace is exhausted.
	Iterate(prefix []byte, fn func(key, value []byte) bool) error
	// WriteBatch returns a batch that atomically applies all Set/Delete
	// calls on Write.
	WriteBatch() Batch
	Close() error
}

// Batch accumulates writes for atomic application.
type Batch interface {
	Set(key, value []byte) error
	Delete(key []byte) error
	Write() error
}
