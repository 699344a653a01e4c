package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/meshsync/syncd/internal/peerid"
	"github.com/meshsync/syncd/internal/store"
	"github.com/meshsync/syncd/internal/syncmodel"
	"github.com/meshsync/syncd/internal/transport"
	"github.com/meshsync/syncd/internal/transport/transportfakes"
	"github.com/meshsync/syncd/internal/vector"
)

func newTestStore(t *testing.T) *store.Store {
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

func newTestPeer(t *testing.T, root string) *transport.Memory {
	t.Helper()
	return &transport.Memory{Store: newTestStore(t), Root: root}
}

func samplePeer(b byte) peerid.ID {
	var id peerid.ID
	for i := range id {
		id[i] = b
	}
	return id
}

func TestRunDownloadsNewRemoteFile(t *testing.T) {
	self := samplePeer(1)
	remotePeerID := samplePeer(2)

	localRoot := t.TempDir()
	remoteRoot := t.TempDir()

	group := syncmodel.SyncGroup{SyncID: "g1", Root: localRoot, Mode: syncmodel.ModeTwoWay}

	remote := newTestPeer(t, remoteRoot)
	if err := os.WriteFile(filepath.Join(remoteRoot, "hello.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	meta := syncmodel.FileMetadata{Size: 2, Mtime: time.Now(), VV: vector.Vector(nil).Update(remotePeerID)}
	if err := remote.Store.PutLive(group.SyncID, "hello.txt", meta); err != nil {
		t.Fatal(err)
	}

	sess := New(newTestStore(t), remote, group, self)
	res, err := sess.Run(context.Background(), remotePeerID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Downloaded != 1 {
		t.Fatalf("Downloaded = %d, want 1", res.Downloaded)
	}

	got, err := os.ReadFile(filepath.Join(localRoot, "hello.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hi" {
		t.Fatalf("content = %q, want %q", got, "hi")
	}
}

func TestRunUploadsNewLocalFile(t *testing.T) {
	self := samplePeer(1)
	remotePeerID := samplePeer(2)

	localRoot := t.TempDir()
	remoteRoot := t.TempDir()

	group := syncmodel.SyncGroup{SyncID: "g1", Root: localRoot, Mode: syncmodel.ModeTwoWay}

	local := newTestStore(t)
	if err := os.WriteFile(filepath.Join(localRoot, "a.txt"), []byte("local"), 0o644); err != nil {
		t.Fatal(err)
	}
	meta := syncmodel.FileMetadata{Size: 5, Mtime: time.Now(), VV: vector.Vector(nil).Update(self)}
	if err := local.PutLive(group.SyncID, "a.txt", meta); err != nil {
		t.Fatal(err)
	}

	remote := newTestPeer(t, remoteRoot)

	sess := New(local, remote, group, self)
	res, err := sess.Run(context.Background(), remotePeerID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Uploaded != 1 {
		t.Fatalf("Uploaded = %d, want 1", res.Uploaded)
	}
	if _, err := os.Stat(filepath.Join(remoteRoot, "a.txt")); err != nil {
		t.Fatalf("expected file to land on remote: %v", err)
	}
}

func TestRunIsIdempotentOnRerun(t *testing.T) {
	self := samplePeer(1)
	remotePeerID := samplePeer(2)

	localRoot := t.TempDir()
	remoteRoot := t.TempDir()
	group := syncmodel.SyncGroup{SyncID: "g1", Root: localRoot, Mode: syncmodel.ModeTwoWay}

	local := newTestStore(t)
	if err := os.WriteFile(filepath.Join(localRoot, "a.txt"), []byte("local"), 0o644); err != nil {
		t.Fatal(err)
	}
	meta := syncmodel.FileMetadata{Size: 5, Mtime: time.Now(), VV: vector.Vector(nil).Update(self)}
	if err := local.PutLive(group.SyncID, "a.txt", meta); err != nil {
		t.Fatal(err)
	}
	remote := newTestPeer(t, remoteRoot)

	sess := New(local, remote, group, self)
	if _, err := sess.Run(context.Background(), remotePeerID); err != nil {
		t.Fatal(err)
	}

	sess2 := New(local, remote, group, self)
	res2, err := sess2.Run(context.Background(), remotePeerID)
	if err != nil {
		t.Fatal(err)
	}
	if res2.Uploaded != 0 || res2.Downloaded != 0 || res2.Conflicts != 0 {
		t.Fatalf("expected a no-op rerun, got %+v", res2)
	}
}

func TestUploadOnlyModeSkipsDownloads(t *testing.T) {
	self := samplePeer(1)
	remotePeerID := samplePeer(2)

	localRoot := t.TempDir()
	remoteRoot := t.TempDir()
	group := syncmodel.SyncGroup{SyncID: "g1", Root: localRoot, Mode: syncmodel.ModeUploadOnly}

	remote := newTestPeer(t, remoteRoot)
	if err := os.WriteFile(filepath.Join(remoteRoot, "remote-only.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	meta := syncmodel.FileMetadata{Size: 1, Mtime: time.Now(), VV: vector.Vector(nil).Update(remotePeerID)}
	if err := remote.Store.PutLive(group.SyncID, "remote-only.txt", meta); err != nil {
		t.Fatal(err)
	}

	sess := New(newTestStore(t), remote, group, self)
	res, err := sess.Run(context.Background(), remotePeerID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Downloaded != 0 {
		t.Fatalf("Downloaded = %d, want 0 in UploadOnly mode", res.Downloaded)
	}
	if res.Skipped == 0 {
		t.Fatal("expected the remote-only path to be counted as skipped")
	}
}

func TestConflictWritesForeignCopy(t *testing.T) {
	self := samplePeer(1)
	remotePeerID := samplePeer(2)

	localRoot := t.TempDir()
	remoteRoot := t.TempDir()
	group := syncmodel.SyncGroup{SyncID: "g1", Root: localRoot, Mode: syncmodel.ModeTwoWay}

	local := newTestStore(t)
	if err := os.WriteFile(filepath.Join(localRoot, "doc.txt"), []byte("local-version"), 0o644); err != nil {
		t.Fatal(err)
	}
	localMeta := syncmodel.FileMetadata{
		ContentHash: []byte{1},
		Size:        13,
		Mtime:       time.Now(),
		VV:          vector.Vector(nil).Update(self),
	}
	if err := local.PutLive(group.SyncID, "doc.txt", localMeta); err != nil {
		t.Fatal(err)
	}

	remote := newTestPeer(t, remoteRoot)
	if err := os.WriteFile(filepath.Join(remoteRoot, "doc.txt"), []byte("remote-version"), 0o644); err != nil {
		t.Fatal(err)
	}
	remoteMeta := syncmodel.FileMetadata{
		ContentHash: []byte{2},
		Size:        14,
		Mtime:       time.Now(),
		VV:          vector.Vector(nil).Update(remotePeerID),
	}
	if err := remote.Store.PutLive(group.SyncID, "doc.txt", remoteMeta); err != nil {
		t.Fatal(err)
	}

	sess := New(local, remote, group, self)
	res, err := sess.Run(context.Background(), remotePeerID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Conflicts != 1 {
		t.Fatalf("Conflicts = %d, want 1", res.Conflicts)
	}

	// The main path keeps the local content.
	got, err := os.ReadFile(filepath.Join(localRoot, "doc.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "local-version" {
		t.Fatalf("main path content = %q, want local-version", got)
	}

	entries, err := os.ReadDir(localRoot)
	if err != nil {
		t.Fatal(err)
	}
	foundConflict := false
	for _, e := range entries {
		if e.Name() != "doc.txt" {
			foundConflict = true
		}
	}
	if !foundConflict {
		t.Fatal("expected a conflict copy to be written alongside doc.txt")
	}
}

// TestRunSurfacesTransportErrorFromExchange exercises a failure mode
// transport.Memory can't easily produce: GetStates failing mid-exchange.
// A FakePeer lets the test inject that without a real flaky transport.
func TestRunSurfacesTransportErrorFromExchange(t *testing.T) {
	self := samplePeer(1)
	remotePeerID := samplePeer(2)
	localRoot := t.TempDir()
	group := syncmodel.SyncGroup{SyncID: "g1", Root: localRoot, Mode: syncmodel.ModeTwoWay}

	fake := &transportfakes.FakePeer{}
	fake.GetStatesReturns(nil, errors.New("connection reset"))

	sess := New(newTestStore(t), fake, group, self)
	_, err := sess.Run(context.Background(), remotePeerID)
	if err == nil {
		t.Fatal("expected Run to surface the transport error, got nil")
	}
	if fake.GetStatesCallCount() != 1 {
		t.Fatalf("GetStatesCallCount = %d, want 1", fake.GetStatesCallCount())
	}
	if fake.GetFileCallCount() != 0 || fake.PutFileCallCount() != 0 {
		t.Fatal("expected apply phase to be skipped after exchange failed")
	}
}
