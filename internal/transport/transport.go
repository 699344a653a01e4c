// Package transport defines the narrow RPC surface a SyncSession uses to
// talk to a peer (C8): GetStates/GetFile/PutFile/DeleteFiles over
// whatever reliable, authenticated byte stream the collaborator contract
// (spec 6.1) provides. The session only ever sees this interface; the
// concrete implementation (quictransport, or the in-memory Peer used in
// tests) is chosen once at construction.
package transport

import (
	"context"

	"github.com/meshsync/syncd/internal/syncmodel"
)

// Peer is one remote device's transport adapter, scoped to calls the
// session needs. Every call either returns a typed response, a non-nil
// error, or blocks until ctx is done — retries past that are the
// implementation's responsibility up to its own configured ceiling
// (spec 4.7).
//
//go:generate counterfeiter -o transportfakes/fake_peer.go . Peer
type Peer interface {
	GetStates(ctx context.Context, syncID string) (map[string]syncmodel.FileState, error)
	GetFile(ctx context.Context, syncID, path string) ([]byte, error)
	PutFile(ctx context.Context, syncID, path string, meta syncmodel.FileMetadata, content []byte) error
	DeleteFiles(ctx context.Context, syncID string, tombstones map[string]syncmodel.Tombstone) error
}
