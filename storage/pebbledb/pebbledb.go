// Package pebbledb implements storage/db.Database on top of
// github.com/cockroachdb/pebble.
package pebbledb

import (
	"bytes"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/sequent-io/e2e-core/storage/db"
)

func pebbleVFS() vfs.FS {
	return vfs.NewMem()
}

// Store wraps a *pebble.DB.
type Store struct {
	inner *pebble.DB
}

// New opens (creating if absent) a pebble store at dir.
func New(dir string) (*Store, error) {
	d, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{inner: d}, nil
}

// NewMem opens an in-memory pebble store, used by tests.
func NewMem() (*Store, error) {
	d, err := pebble.Open("", &pebble.Options{FS: pebbleVFS()})
	if err != nil {
		return nil, err
	}
	return &Store{inner: d}, nil
}

func (s *Store) Get(key []byte) ([]byte, error) {
	v, closer, err := s.inner.Get(key)
	if err == pebble.ErrNotFound {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(v))
	copy(out, v)
	if closeErr := closer.Close(); closeErr != nil {
		return nil, closeErr
	}
	return out, nil
}

func (s *Store) Set(key, value []byte) error {
	return s.inner.Set(key, value, pebble.Sync)
}

func (s *Store) Delete(key []byte) error {
	return s.inner.Delete(key, pebble.Sync)
}

func (s *Store) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	iter, err := s.inner.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !fn(append([]byte(nil), iter.Key()...), append([]byte(nil), iter.Value()...)) {
			break
		}
	}
	return iter.Error()
}

func (s *Store) WriteBatch() db.Batch {
	return &batch{inner: s.inner.NewBatch()}
}

func (s *Store) Close() error {
	return s.inner.Close()
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix, or nil if prefix is all 0xff.
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

type batch struct {
	inner *pebble.Batch
}

func (b *batch) Set(key, value []byte) error {
	return b.inner.Set(key, value, nil)
}

func (b *batch) Delete(key []byte) error {
	return b.inner.Delete(key, nil)
}

func (b *batch) Write() error {
	return b.inner.Commit(pebble.Sync)
}
