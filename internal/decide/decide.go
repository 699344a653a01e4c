// Package decide implements the DecisionEngine (C5): a pure function from
// a path's local and remote FileState to the Action a SyncSession should
// take. It reasons only about the two states and the path's name — no
// I/O, no global state — so it can be exercised directly by table tests
// without a store or transport in the loop.
package decide

import (
	"bytes"
	"time"

	"github.com/meshsync/syncd/internal/syncmodel"
	"github.com/meshsync/syncd/internal/vector"
)

// Action is the outcome of deciding one path.
type Action int

const (
	Skip Action = iota
	Download
	Upload
	DeleteLocal
	DeleteRemote
	Conflict
	Uncertain
)

func (a Action) String() string {
	switch a {
	case Download:
		return "Download"
	case Upload:
		return "Upload"
	case DeleteLocal:
		return "DeleteLocal"
	case DeleteRemote:
		return "DeleteRemote"
	case Conflict:
		return "Conflict"
	case Uncertain:
		return "Uncertain"
	default:
		return "Skip"
	}
}

// resurrectionBand and raceBand are the two pinned tolerances the
// algorithm's contract fixes (spec 4.4): 0.2s distinguishes "this
// recreation landed essentially at the delete instant" (ambiguous,
// Conflict) from a later one; 0.5s distinguishes a genuinely newer write
// from one of the two concurrent-identical-VV races spec 4.4 step 8
// describes.
const (
	resurrectionBand = 200 * time.Millisecond
	raceBand         = 500 * time.Millisecond
)

// Decide implements spec 4.4's algorithm. local and remote are nil for
// "no state at this path"; path is currently unused by the algorithm
// itself but kept in the signature for callers that want it in logging
// or for a future path-shaped exception.
func Decide(local, remote *syncmodel.FileState, path string) Action {
	switch {
	case local == nil && remote == nil:
		// 1.
		return Skip

	case local != nil && local.IsTombstone() && remote != nil && remote.IsTombstone():
		// 2.
		return Skip

	case local != nil && local.IsLive() && remote == nil:
		// 3.
		return Uncertain

	case local == nil && remote != nil && remote.IsLive():
		// 4.
		return Download

	case local != nil && local.IsTombstone() && remote != nil && remote.IsLive():
		// 5.
		return decideLocalTombstoneRemoteLive(local.Tombstone, remote.Live)

	case local != nil && local.IsLive() && remote != nil && remote.IsTombstone():
		// 6.
		return decideLocalLiveRemoteTombstone(local.Live, remote.Tombstone)

	case local != nil && local.IsLive() && remote != nil && remote.IsLive():
		return decideBothLive(local.Live, remote.Live)

	default:
		// local == nil, remote == nil already handled; local == nil,
		// remote is Tombstone falls here: nothing to reconcile.
		return Skip
	}
}

func decideLocalTombstoneRemoteLive(t syncmodel.Tombstone, r syncmodel.FileMetadata) Action {
	switch vector.Compare(t.VV, r.VV) {
	case vector.After, vector.Equal:
		if r.Mtime.Sub(t.DeletedAt) > raceBand {
			return Conflict
		}
		return DeleteRemote
	case vector.Before:
		if absDuration(r.Mtime.Sub(t.DeletedAt)) < resurrectionBand {
			return Conflict
		}
		return Download
	default: // Concurrent
		if r.Mtime.Sub(t.DeletedAt) > raceBand {
			return Download
		}
		return Conflict
	}
}

func decideLocalLiveRemoteTombstone(l syncmodel.FileMetadata, t syncmodel.Tombstone) Action {
	if l.VV.IsEmpty() {
		return Upload
	}
	switch vector.Compare(t.VV, l.VV) {
	case vector.After:
		if l.Mtime.Sub(t.DeletedAt) > raceBand {
			return Conflict
		}
		return DeleteLocal
	case vector.Before:
		if absDuration(l.Mtime.Sub(t.DeletedAt)) >= resurrectionBand {
			return Upload
		}
		return Conflict
	case vector.Equal:
		if l.Mtime.Sub(t.DeletedAt) > resurrectionBand {
			return Upload
		}
		return DeleteLocal
	default: // Concurrent
		if l.Mtime.Sub(t.DeletedAt) > raceBand {
			return Upload
		}
		return Conflict
	}
}

func decideBothLive(l, r syncmodel.FileMetadata) Action {
	if bytes.Equal(l.ContentHash, r.ContentHash) {
		// 7.
		return Skip
	}

	// 8.
	if l.VV.IsEmpty() || r.VV.IsEmpty() {
		return Uncertain
	}
	switch vector.Compare(l.VV, r.VV) {
	case vector.Before:
		return Download
	case vector.After:
		return Upload
	case vector.Equal:
		if absDuration(l.Mtime.Sub(r.Mtime)) >= raceBand {
			if l.Mtime.After(r.Mtime) {
				return Upload
			}
			return Download
		}
		return Conflict
	default: // Concurrent
		return Conflict
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
