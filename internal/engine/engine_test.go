package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/meshsync/syncd/internal/config"
	"github.com/meshsync/syncd/internal/peerid"
	"github.com/meshsync/syncd/internal/scanner"
	"github.com/meshsync/syncd/internal/session"
	"github.com/meshsync/syncd/internal/store"
	"github.com/meshsync/syncd/internal/syncmodel"
	"github.com/meshsync/syncd/internal/transport"
)

func newEngineStore(t *testing.T) *store.Store {
	t.Helper()
	ldb, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.New(ldb)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func samplePeer(b byte) peerid.ID {
	var id peerid.ID
	for i := range id {
		id[i] = b
	}
	return id
}

func scanGroup(t *testing.T, e *Engine, group syncmodel.SyncGroup) map[string]syncmodel.FileMetadata {
	t.Helper()
	sc := &scanner.Scanner{Root: group.Root, SyncID: group.SyncID, Lookup: e.Store}
	live, err := sc.Scan()
	if err != nil {
		t.Fatal(err)
	}
	return live
}

func TestReconcileScanPicksUpNewLocalFile(t *testing.T) {
	root := t.TempDir()
	self := samplePeer(1)
	st := newEngineStore(t)
	e := New(config.Wrap("", config.New()), st, self, nil)

	group := syncmodel.SyncGroup{SyncID: "g1", Root: root, Mode: syncmodel.ModeTwoWay}
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	e.reconcileScan(group, scanGroup(t, e, group))

	got, ok, err := st.Get(group.SyncID, "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || !got.IsLive() {
		t.Fatalf("expected a Live state for a.txt, got ok=%v state=%v", ok, got)
	}
	if got.Live.VV.IsEmpty() {
		t.Fatal("expected reconcileScan to assign a non-empty VV")
	}
}

func TestReconcileScanIsIdempotentOnRescan(t *testing.T) {
	root := t.TempDir()
	self := samplePeer(1)
	st := newEngineStore(t)
	e := New(config.Wrap("", config.New()), st, self, nil)
	group := syncmodel.SyncGroup{SyncID: "g1", Root: root, Mode: syncmodel.ModeTwoWay}

	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	e.reconcileScan(group, scanGroup(t, e, group))

	first, _, err := st.Get(group.SyncID, "a.txt")
	if err != nil {
		t.Fatal(err)
	}

	// A second scan with nothing changed on disk must not advance the VV.
	e.reconcileScan(group, scanGroup(t, e, group))

	second, _, err := st.Get(group.SyncID, "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !first.Live.VV.Equal(second.Live.VV) {
		t.Fatalf("VV changed on a no-op rescan: %v -> %v", first.Live.VV, second.Live.VV)
	}
}

func TestReconcileScanTombstonesVanishedPath(t *testing.T) {
	root := t.TempDir()
	self := samplePeer(1)
	st := newEngineStore(t)
	e := New(config.Wrap("", config.New()), st, self, nil)
	group := syncmodel.SyncGroup{SyncID: "g1", Root: root, Mode: syncmodel.ModeTwoWay}

	meta := syncmodel.FileMetadata{Size: 1}
	if err := st.PutLive(group.SyncID, "gone.txt", meta); err != nil {
		t.Fatal(err)
	}

	e.reconcileScan(group, map[string]syncmodel.FileMetadata{})

	got, ok, err := st.Get(group.SyncID, "gone.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || !got.IsTombstone() {
		t.Fatalf("expected gone.txt to be tombstoned, got ok=%v state=%v", ok, got)
	}
}

func TestTriggerSyncIsIdempotentAndUpdatesStats(t *testing.T) {
	localRoot := t.TempDir()
	remoteRoot := t.TempDir()
	self := samplePeer(1)
	remoteID := samplePeer(2)

	localStore := newEngineStore(t)
	remoteStore := newEngineStore(t)
	remotePeer := &transport.Memory{Store: remoteStore, Root: remoteRoot}

	if err := os.WriteFile(filepath.Join(remoteRoot, "r.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	meta := syncmodel.FileMetadata{Size: 1, Mtime: time.Now()}
	meta.VV = meta.VV.Update(remoteID)
	if err := remoteStore.PutLive("g1", "r.txt", meta); err != nil {
		t.Fatal(err)
	}

	dial := func(ctx context.Context, peer peerid.ID) (transport.Peer, error) {
		return remotePeer, nil
	}

	cfg := config.Wrap("", config.New())
	e := New(cfg, localStore, self, dial)

	h, err := e.AddGroup(localRoot, "g1", syncmodel.ModeTwoWay, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	done := make(chan struct{})
	var closeOnce bool
	e.Events = func(hh GroupHandle, ev session.Event) {
		if ev.Kind == session.SyncCompleted && !closeOnce {
			closeOnce = true
			close(done)
		}
	}

	if err := e.TriggerSync(h, remoteID); err != nil {
		t.Fatal(err)
	}
	if err := e.TriggerSync(h, remoteID); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sync_completed")
	}

	stats, err := e.GetStats(h)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FileCount != 1 {
		t.Fatalf("FileCount = %d, want 1", stats.FileCount)
	}
}
