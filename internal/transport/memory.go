package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/meshsync/syncd/internal/store"
	"github.com/meshsync/syncd/internal/syncmodel"
)

// Memory is an in-process Peer backed directly by another device's
// Store, skipping the wire entirely. It exists for tests and for two
// SyncGroups sharing one process; production peers go through
// quictransport instead.
type Memory struct {
	Store *store.Store
	Root  string // used only to resolve absolute paths for AtomicApplyRemote
}

var _ Peer = (*Memory)(nil)

func (m *Memory) GetStates(ctx context.Context, syncID string) (map[string]syncmodel.FileState, error) {
	out := make(map[string]syncmodel.FileState)
	err := m.Store.Iter(syncID, func(path string, st syncmodel.FileState) bool {
		out[path] = st
		return true
	})
	return out, err
}

func (m *Memory) GetFile(ctx context.Context, syncID, path string) ([]byte, error) {
	st, ok, err := m.Store.Get(syncID, path)
	if err != nil {
		return nil, err
	}
	if !ok || !st.IsLive() {
		return nil, fmt.Errorf("transport/memory: no live file at %q", path)
	}
	return m.readFile(path)
}

func (m *Memory) PutFile(ctx context.Context, syncID, path string, meta syncmodel.FileMetadata, content []byte) error {
	abs := m.abs(path)
	return m.Store.AtomicApplyRemote(syncID, abs, path, syncmodel.LiveState(meta), byteReader(content))
}

func (m *Memory) DeleteFiles(ctx context.Context, syncID string, tombstones map[string]syncmodel.Tombstone) error {
	for path, ts := range tombstones {
		abs := m.abs(path)
		if err := m.Store.AtomicApplyRemote(syncID, abs, path, syncmodel.TombstoneState(ts), nil); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) abs(path string) string {
	return filepath.Join(m.Root, filepath.FromSlash(path))
}

func (m *Memory) readFile(path string) ([]byte, error) {
	return os.ReadFile(m.abs(path))
}

func byteReader(bs []byte) io.Reader {
	if bs == nil {
		return nil
	}
	return bytes.NewReader(bs)
}
