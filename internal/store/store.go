// Copyright (C) 2014 The Syncthing Authors.

// Package store implements the FileState store (C2) and its backing
// persistence (C9): the single source of truth for a device's view of
// every SyncGroup it participates in, key-value-backed, crash-consistent,
// with one mutex per (sync_id, path) so concurrent sessions never race on
// the same file.
package store

import (
	"github.com/cespare/xxhash/v2"
	"github.com/greatroar/blobloom"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/meshsync/syncd/internal/logger"
)

var l = logger.DefaultLogger

// Store is the per-device embedded key-value store. One Store instance is
// shared by every SyncGroup on the device; callers namespace their own
// keys by sync_id.
type Store struct {
	db *leveldb.DB

	locks *xsync.MapOf[string, *pathLock]

	// tombstoneFilter records every path that has been tombstoned, so
	// MaybeTombstoned can answer "definitely not tombstoned" without a
	// leveldb lookup. The scanner and the session do not consult it.
	tombstoneFilter *blobloom.SyncFilter

	// snapHash caches the last reconciled snapshot hash per (sync_id,
	// peer) (spec 4.8's secondary key, kept hot in an LRU instead of
	// round-tripping leveldb every call). Sessions record it; no session
	// reads it to skip work.
	snapHash *lru.Cache[string, string]
}

// pathLock serializes all operations against one (sync_id, path): spec
// 4.2 requires every C2 operation be atomic with respect to other
// operations on the same path.
type pathLock struct {
	ch chan struct{}
}

func newPathLock() *pathLock {
	pl := &pathLock{ch: make(chan struct{}, 1)}
	pl.ch <- struct{}{}
	return pl
}

func (pl *pathLock) Lock()   { <-pl.ch }
func (pl *pathLock) Unlock() { pl.ch <- struct{}{} }

// Open opens (creating if necessary) the store rooted at dir.
func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{})
	if err != nil {
		return nil, err
	}
	return newStore(db)
}

// New wraps an already-open leveldb.DB as a Store. Open is the usual
// entry point; New is for callers (tests, the CLI's embedded mode) that
// manage the underlying database's lifecycle themselves.
func New(db *leveldb.DB) (*Store, error) {
	return newStore(db)
}

func newStore(db *leveldb.DB) (*Store, error) {
	cache, err := lru.New[string, string](4096)
	if err != nil {
		return nil, err
	}
	s := &Store{
		db:              db,
		locks:           xsync.NewMapOf[string, *pathLock](),
		tombstoneFilter: blobloom.NewSyncFilter(blobloom.Config{Capacity: 1 << 20, FPRate: 0.01}),
		snapHash:        cache,
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) lockPath(syncID, path string) func() {
	key := syncID + "\x00" + path
	pl, _ := s.locks.LoadOrCompute(key, func() *pathLock { return newPathLock() })
	pl.Lock()
	return pl.Unlock
}

func pathHash(syncID, path string) uint64 {
	h := xxhash.New()
	h.WriteString(syncID)
	h.Write([]byte{0})
	h.WriteString(path)
	return h.Sum64()
}
