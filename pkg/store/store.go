// Package store wraps an embedded Pebble database behind an instance-scoped
// handle. Each public core operation commits at most one batch, so a
// mutation is either fully visible or absent; no package-level state is
// kept so independent stores can coexist in one process (and in tests).
package store

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"msgcore/pkg/errdef"
	"msgcore/pkg/logger"
)

const convLockShards = 64

// Store owns a Pebble handle plus the striped per-conversation locks used
// by message appends. Two conversations hashing to different stripes
// append fully concurrently.
type Store struct {
	db   *pebble.DB
	path string
	seq  uint64

	convLocks [convLockShards]sync.Mutex
}

// Open opens (or creates) a Pebble database at path.
func Open(path string) (*Store, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, errdef.Storage(err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	logger.Info("pebble_closed", "path", s.path)
	return err
}

// Ready reports whether the store is open.
func (s *Store) Ready() bool { return s != nil && s.db != nil }

// Path returns the on-disk location of the database.
func (s *Store) Path() string { return s.path }

// NextSeq returns a process-unique sequence for key stamps.
func (s *Store) NextSeq() uint64 { return atomic.AddUint64(&s.seq, 1) }

// LockConv takes the lock stripe for convID and returns the unlock func.
func (s *Store) LockConv(convID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(convID))
	mu := &s.convLocks[h.Sum32()%convLockShards]
	mu.Lock()
	return mu.Unlock
}

// Get returns the value for key. Missing keys map to errdef.ErrNotFound;
// other failures are wrapped as storage errors.
func (s *Store) Get(key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, errdef.ErrNotFound
		}
		return nil, errdef.Storage(err)
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	return out, nil
}

// Has reports whether key exists.
func (s *Store) Has(key []byte) (bool, error) {
	_, err := s.Get(key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, errdef.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Set writes key durably (fsync).
func (s *Store) Set(key, val []byte) error {
	if err := s.db.Set(key, val, pebble.Sync); err != nil {
		return errdef.Storage(err)
	}
	return nil
}

// NewBatch returns an indexed write batch. Commit it via Commit.
func (s *Store) NewBatch() *pebble.Batch { return s.db.NewIndexedBatch() }

// Commit durably applies the batch unless ctx was already cancelled, in
// which case nothing is written and the batch is discarded. Cancellation
// therefore behaves as if the call was never made.
func (s *Store) Commit(ctx context.Context, b *pebble.Batch) error {
	defer b.Close()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return errdef.Storage(err)
	}
	return nil
}

// NewIter returns a Pebble iterator bounded to [lower, upper). Callers
// must Close it.
func (s *Store) NewIter(lower, upper []byte) (*pebble.Iterator, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, errdef.Storage(err)
	}
	return it, nil
}

// ScanPrefix calls fn for every key/value under prefix, in key order.
// fn returning false stops the scan early.
func (s *Store) ScanPrefix(prefix []byte, fn func(key, val []byte) bool) error {
	it, err := s.NewIter(prefix, PrefixEnd(prefix))
	if err != nil {
		return err
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		k := append([]byte(nil), it.Key()...)
		v := append([]byte(nil), it.Value()...)
		if !fn(k, v) {
			break
		}
	}
	if err := it.Error(); err != nil {
		return errdef.Storage(err)
	}
	return nil
}
