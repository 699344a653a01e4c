package store

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/meshsync/syncd/internal/peerid"
	"github.com/meshsync/syncd/internal/syncmodel"
	"github.com/meshsync/syncd/internal/vector"
)

func newMemStore(t *testing.T) *Store {
	t.Helper()
	ldb, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		t.Fatal(err)
	}
	s, err := newStore(ldb)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetMissing(t *testing.T) {
	s := newMemStore(t)
	if _, ok, err := s.Get("g1", "a.txt"); ok || err != nil {
		t.Fatalf("expected no state, got ok=%v err=%v", ok, err)
	}
}

func TestPutLiveGet(t *testing.T) {
	s := newMemStore(t)
	peer := peerid.Generate([]byte("p"))
	vv := vector.Vector{}.Update(peer)

	meta := syncmodel.FileMetadata{ContentHash: []byte{1, 2}, Size: 2, VV: vv}
	if err := s.PutLive("g1", "a.txt", meta); err != nil {
		t.Fatal(err)
	}

	st, ok, err := s.Get("g1", "a.txt")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if !st.IsLive() || st.Live.Size != 2 {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestAtomicDeleteLocal(t *testing.T) {
	dir := t.TempDir()
	s := newMemStore(t)
	peer := peerid.Generate([]byte("p"))
	vv := vector.Vector{}.Update(peer)

	abs := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(abs, []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.PutLive("g1", "a.txt", syncmodel.FileMetadata{Size: 2, VV: vv}); err != nil {
		t.Fatal(err)
	}

	if err := s.AtomicDeleteLocal("g1", abs, "a.txt", peer); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(abs); !os.IsNotExist(err) {
		t.Fatal("file should be removed")
	}
	st, ok, err := s.Get("g1", "a.txt")
	if err != nil || !ok || !st.IsTombstone() {
		t.Fatalf("expected tombstone, got %+v ok=%v err=%v", st, ok, err)
	}
	if st.Tombstone.VV.Compare(vv) != vector.After {
		t.Fatal("tombstone VV must strictly advance past the prior live VV")
	}
	if !s.MaybeTombstoned("g1", "a.txt") {
		t.Fatal("bloom filter should report the freshly tombstoned path as maybe-present")
	}
}

func TestAtomicApplyRemoteLive(t *testing.T) {
	dir := t.TempDir()
	s := newMemStore(t)
	peer := peerid.Generate([]byte("p"))
	vv := vector.Vector{}.Update(peer)

	abs := filepath.Join(dir, "sub", "b.txt")
	remote := syncmodel.LiveState(syncmodel.FileMetadata{Size: 5, VV: vv})
	if err := s.AtomicApplyRemote("g1", abs, "sub/b.txt", remote, bytes.NewReader([]byte("hello"))); err != nil {
		t.Fatal(err)
	}

	bs, err := os.ReadFile(abs)
	if err != nil || string(bs) != "hello" {
		t.Fatalf("content not written: %v %q", err, bs)
	}
	st, ok, err := s.Get("g1", "sub/b.txt")
	if err != nil || !ok || !st.IsLive() {
		t.Fatalf("expected live state, got %+v ok=%v err=%v", st, ok, err)
	}
}

func TestIterAndLastReconciledHash(t *testing.T) {
	s := newMemStore(t)
	peer := peerid.Generate([]byte("p"))
	vv := vector.Vector{}.Update(peer)

	s.PutLive("g1", "a.txt", syncmodel.FileMetadata{VV: vv})
	s.PutLive("g1", "b.txt", syncmodel.FileMetadata{VV: vv})
	s.PutLive("g2", "other.txt", syncmodel.FileMetadata{VV: vv})

	seen := map[string]bool{}
	if err := s.Iter("g1", func(path string, st syncmodel.FileState) bool {
		seen[path] = true
		return true
	}); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || !seen["a.txt"] || !seen["b.txt"] {
		t.Fatalf("unexpected iter result: %v", seen)
	}

	if _, ok := s.LastReconciledHash("g1", peer); ok {
		t.Fatal("expected no recorded hash yet")
	}
	if err := s.SetLastReconciledHash("g1", peer, "deadbeef"); err != nil {
		t.Fatal(err)
	}
	if h, ok := s.LastReconciledHash("g1", peer); !ok || h != "deadbeef" {
		t.Fatalf("got %q, %v", h, ok)
	}
}
