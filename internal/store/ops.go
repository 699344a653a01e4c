package store

import (
	"io"
	"os"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/meshsync/syncd/internal/errs"
	"github.com/meshsync/syncd/internal/osutil"
	"github.com/meshsync/syncd/internal/peerid"
	"github.com/meshsync/syncd/internal/syncmodel"
	"github.com/meshsync/syncd/internal/vector"
)

var syncOpts = &opt.WriteOptions{Sync: true}

// Get returns the stored state for (sync_id, path), or ok=false if there
// is none (spec 4.2 get).
func (s *Store) Get(syncID, path string) (syncmodel.FileState, bool, error) {
	unlock := s.lockPath(syncID, path)
	defer unlock()
	return s.getLocked(syncID, path)
}

func (s *Store) getLocked(syncID, path string) (syncmodel.FileState, bool, error) {
	bs, err := s.db.Get(stateKey(syncID, path), nil)
	if err == leveldb.ErrNotFound {
		return syncmodel.FileState{}, false, nil
	}
	if err != nil {
		return syncmodel.FileState{}, false, errs.New(errs.StoreCorruption, path, err)
	}
	var st syncmodel.FileState
	if err := st.UnmarshalXDR(bs); err != nil {
		return syncmodel.FileState{}, false, errs.New(errs.StoreCorruption, path, err)
	}
	return st, true, nil
}

// PutLive unconditionally replaces whatever was stored for path with meta
// (spec 4.2 put_live).
func (s *Store) PutLive(syncID, path string, meta syncmodel.FileMetadata) error {
	unlock := s.lockPath(syncID, path)
	defer unlock()
	return s.commit(syncID, path, syncmodel.LiveState(meta))
}

// PutTombstone unconditionally replaces whatever was stored for path with
// ts (spec 4.2 put_tombstone).
func (s *Store) PutTombstone(syncID, path string, ts syncmodel.Tombstone) error {
	unlock := s.lockPath(syncID, path)
	defer unlock()
	if err := s.commit(syncID, path, syncmodel.TombstoneState(ts)); err != nil {
		return err
	}
	s.tombstoneFilter.Add(pathHash(syncID, path))
	return nil
}

func (s *Store) commit(syncID, path string, st syncmodel.FileState) error {
	if err := s.db.Put(stateKey(syncID, path), st.MarshalXDR(), syncOpts); err != nil {
		return errs.New(errs.StoreCorruption, path, err)
	}
	return nil
}

// AtomicDeleteLocal reads the prior VV, produces a Tombstone incrementing
// self, ensures the on-disk file is removed, and commits both as one step
// (spec 4.2 atomic_delete_local). On ioError the state is left unchanged.
func (s *Store) AtomicDeleteLocal(syncID, absPath, relPath string, self peerid.ID) error {
	unlock := s.lockPath(syncID, relPath)
	defer unlock()

	prior, _, err := s.getLocked(syncID, relPath)
	if err != nil {
		return err
	}

	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return errs.New(errs.IOError, relPath, err)
	}

	ts := syncmodel.Tombstone{
		DeletedBy: self,
		VV:        prior.VV().Update(self),
	}
	if err := s.commit(syncID, relPath, syncmodel.TombstoneState(ts)); err != nil {
		return err
	}
	s.tombstoneFilter.Add(pathHash(syncID, relPath))
	return nil
}

// AtomicApplyRemote applies a state received from a peer. For a Live
// remote state, content is first written to a temp file beside absPath,
// fsynced and renamed into place; only then is the merged state
// committed. If the rename fails, no state change occurs. For a Tombstone
// remote state, the local file (if any) is removed before the tombstone
// is committed (spec 4.2 atomic_apply_remote).
func (s *Store) AtomicApplyRemote(syncID, absPath, relPath string, remote syncmodel.FileState, content io.Reader) error {
	unlock := s.lockPath(syncID, relPath)
	defer unlock()

	prior, _, err := s.getLocked(syncID, relPath)
	if err != nil {
		return err
	}
	mergedVV := vector.Merge(prior.VV(), remote.VV())

	switch remote.Kind {
	case syncmodel.KindTombstone:
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return errs.New(errs.IOError, relPath, err)
		}
		ts := remote.Tombstone
		ts.VV = mergedVV
		if err := s.commit(syncID, relPath, syncmodel.TombstoneState(ts)); err != nil {
			return err
		}
		s.tombstoneFilter.Add(pathHash(syncID, relPath))
		return nil

	default:
		if remote.Live.IsDirectory {
			if err := os.MkdirAll(absPath, 0o755); err != nil {
				return errs.New(errs.IOError, relPath, err)
			}
		} else if content != nil {
			if err := writeAtomic(absPath, content); err != nil {
				return errs.New(errs.IOError, relPath, err)
			}
		}
		meta := remote.Live
		meta.VV = mergedVV
		return s.commit(syncID, relPath, syncmodel.LiveState(meta))
	}
}

func writeAtomic(path string, content io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	w, err := osutil.CreateAtomic(path, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, content); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Iter walks every (path, FileState) pair stored for syncID, over a
// point-in-time leveldb snapshot (spec 4.2 iter: restartable, consistent).
// The callback returns false to stop early.
func (s *Store) Iter(syncID string, fn func(path string, st syncmodel.FileState) bool) error {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return errs.New(errs.StoreCorruption, "", err)
	}
	defer snap.Release()

	it := snap.NewIterator(util.BytesPrefix(statePrefix(syncID)), nil)
	defer it.Release()

	for it.Next() {
		path := pathFromStateKey(it.Key(), syncID)
		var st syncmodel.FileState
		if err := st.UnmarshalXDR(it.Value()); err != nil {
			return errs.New(errs.StoreCorruption, path, err)
		}
		if !fn(path, st) {
			break
		}
	}
	return it.Error()
}

// LastReconciledHash returns the snapshot hash recorded for (syncID, peer)
// the last time a session with that peer completed (spec 4.8 secondary
// key), checking the in-memory LRU before falling through to leveldb.
func (s *Store) LastReconciledHash(syncID string, peer peerid.ID) (string, bool) {
	ck := syncID + "\x00" + peer.String()
	if v, ok := s.snapHash.Get(ck); ok {
		return v, true
	}
	bs, err := s.db.Get(hashKey(syncID, peer.String()), nil)
	if err != nil {
		return "", false
	}
	s.snapHash.Add(ck, string(bs))
	return string(bs), true
}

// SetLastReconciledHash records the snapshot hash a session with peer
// converged to. Session.Run writes it after each successful round;
// nothing reads it back to skip a session.
func (s *Store) SetLastReconciledHash(syncID string, peer peerid.ID, hash string) error {
	ck := syncID + "\x00" + peer.String()
	if err := s.db.Put(hashKey(syncID, peer.String()), []byte(hash), syncOpts); err != nil {
		return errs.New(errs.StoreCorruption, "", err)
	}
	s.snapHash.Add(ck, hash)
	return nil
}

// PruneTombstone removes a tombstone entirely once a session has
// confirmed a peer also considers the path gone (spec 4.5 step 7). It is
// a no-op if the path is missing or no longer a Tombstone (e.g. it was
// resurrected by a concurrent apply before the prune arrived). Pruning
// never touches the bloom filter: a stale positive there only costs a
// MaybeTombstoned caller one extra Get, never correctness.
func (s *Store) PruneTombstone(syncID, path string) error {
	unlock := s.lockPath(syncID, path)
	defer unlock()

	cur, ok, err := s.getLocked(syncID, path)
	if err != nil {
		return err
	}
	if !ok || !cur.IsTombstone() {
		return nil
	}
	if err := s.db.Delete(stateKey(syncID, path), syncOpts); err != nil {
		return errs.New(errs.StoreCorruption, path, err)
	}
	return nil
}

// MaybeTombstoned is a fast negative check: false means path is
// definitely not a tombstone in syncID; true means it might be (the
// caller still needs Get to confirm). It answers without a leveldb
// point read; the scanner and the session do not call it.
func (s *Store) MaybeTombstoned(syncID, path string) bool {
	return s.tombstoneFilter.Has(pathHash(syncID, path))
}
