package engine

import (
	"path/filepath"

	"github.com/meshsync/syncd/internal/conflict"
	"github.com/meshsync/syncd/internal/journal"
	"github.com/meshsync/syncd/internal/scanner"
	"github.com/meshsync/syncd/internal/syncmodel"
)

// reconcileScan diffs one Scanner.Scan() result against the store and
// applies the VV increments a local edit requires (spec 4.3/4.4): a path
// the scanner rehashed (empty VV in the result) is either brand new,
// resurrected from a Tombstone, or modified in place, and gets a fresh
// VV built on whatever causal history preceded it, unless its size and
// content hash equal the stored Live entry's, in which case the stored
// state is left untouched. A path the scanner reused verbatim (non-empty
// VV) needs no write at all. A path present in the store but missing
// from live_now has been deleted out from under us and is tombstoned via
// AtomicDeleteLocal; conflict copies, which the scanner never lists, are
// left alone.
func (e *Engine) reconcileScan(g syncmodel.SyncGroup, live map[string]syncmodel.FileMetadata) {
	seen := make(map[string]bool, len(live))

	for rel, meta := range live {
		seen[rel] = true

		prior, ok, err := e.Store.Get(g.SyncID, rel)
		if err != nil {
			l.Warnf("engine: scan reconcile %s/%s: read prior state: %v", g.SyncID, rel, err)
			continue
		}

		if meta.VV.IsEmpty() {
			// The scanner rehashed: either nothing was stored before, the
			// prior state was a Tombstone, or size/mtime moved since the
			// last recorded Live. In every case the path's causal history
			// advances by one local edit.
			base := prior.VV()
			if ok && prior.IsLive() && prior.Live.Size == meta.Size && bytesEqual(prior.Live.ContentHash, meta.ContentHash) {
				// Content is actually identical (e.g. a touch with no real
				// write); still reuse the prior VV untouched.
				continue
			}
			meta.VV = base.Update(e.Self)
			if err := e.Store.PutLive(g.SyncID, rel, meta); err != nil {
				l.Warnf("engine: scan reconcile %s/%s: put live: %v", g.SyncID, rel, err)
			}
			continue
		}

		// Reused metadata: the scanner already confirmed this matches
		// what's stored, nothing to do.
	}

	err := e.Store.Iter(g.SyncID, func(path string, st syncmodel.FileState) bool {
		if seen[path] || !st.IsLive() || conflict.IsArtifact(path) {
			return true
		}
		abs := filepath.Join(g.Root, filepath.FromSlash(path))
		if derr := e.Store.AtomicDeleteLocal(g.SyncID, abs, path, e.Self); derr != nil {
			l.Warnf("engine: scan reconcile %s/%s: delete local: %v", g.SyncID, path, derr)
		}
		return true
	})
	if err != nil {
		l.Warnf("engine: scan reconcile %s: iter: %v", g.SyncID, err)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// handleJournalEvent applies one settled journal.Event to the store
// (spec 4.3): the journal only ever tells us "something changed here",
// never the resulting VV, so that step happens here.
func (e *Engine) handleJournalEvent(g syncmodel.SyncGroup, ev journal.Event) {
	switch ev.Kind {
	case journal.Modified:
		e.applyLocalModified(g, ev.Path)
	case journal.Deleted:
		e.applyLocalDeleted(g, ev.Path)
	case journal.Renamed:
		e.applyLocalRenamed(g, ev.OldPath, ev.Path)
	}
}

func (e *Engine) applyLocalModified(g syncmodel.SyncGroup, rel string) {
	excludes, err := scanner.Compile(g.ExcludePatterns)
	if err != nil {
		l.Warnf("engine: journal %s/%s: compile excludes: %v", g.SyncID, rel, err)
		return
	}
	sc := &scanner.Scanner{Root: g.Root, SyncID: g.SyncID, Excludes: excludes, Lookup: e.Store}
	live, err := sc.Scan()
	if err != nil {
		l.Warnf("engine: journal %s/%s: rescan: %v", g.SyncID, rel, err)
		return
	}
	meta, ok := live[rel]
	if !ok {
		// Vanished again between the debounce firing and us getting here;
		// the next settle (or the periodic scan) will catch the deletion.
		return
	}
	if !meta.VV.IsEmpty() {
		return // scanner confirmed this matches what's already stored
	}
	prior, _, err := e.Store.Get(g.SyncID, rel)
	if err != nil {
		l.Warnf("engine: journal %s/%s: read prior state: %v", g.SyncID, rel, err)
		return
	}
	meta.VV = prior.VV().Update(e.Self)
	if err := e.Store.PutLive(g.SyncID, rel, meta); err != nil {
		l.Warnf("engine: journal %s/%s: put live: %v", g.SyncID, rel, err)
	}
}

func (e *Engine) applyLocalDeleted(g syncmodel.SyncGroup, rel string) {
	abs := filepath.Join(g.Root, filepath.FromSlash(rel))
	if err := e.Store.AtomicDeleteLocal(g.SyncID, abs, rel, e.Self); err != nil {
		l.Warnf("engine: journal %s/%s: delete local: %v", g.SyncID, rel, err)
	}
}

// applyLocalRenamed handles a paired Deleted+Created (spec 3.3's open
// question, decided here: the new path inherits the old path's prior VV,
// incremented once, rather than starting a fresh VV). By the time this
// fires, the old path has already been tombstoned by the Deleted half of
// the pairing (applyLocalDeleted ran first); its VV is the basis the new
// path's edit builds on, which preserves the causal link across the
// rename instead of making it look like two independent, concurrent
// changes to a peer that only saw one or the other name.
func (e *Engine) applyLocalRenamed(g syncmodel.SyncGroup, oldRel, newRel string) {
	prior, ok, err := e.Store.Get(g.SyncID, oldRel)
	if err != nil {
		l.Warnf("engine: journal %s/%s->%s: read old state: %v", g.SyncID, oldRel, newRel, err)
		return
	}
	base := prior.VV()
	if !ok {
		base = nil
	}

	excludes, err := scanner.Compile(g.ExcludePatterns)
	if err != nil {
		l.Warnf("engine: journal %s/%s: compile excludes: %v", g.SyncID, newRel, err)
		return
	}
	sc := &scanner.Scanner{Root: g.Root, SyncID: g.SyncID, Excludes: excludes}
	live, err := sc.Scan()
	if err != nil {
		l.Warnf("engine: journal %s/%s: rescan: %v", g.SyncID, newRel, err)
		return
	}
	meta, ok := live[newRel]
	if !ok {
		return
	}
	meta.VV = base.Update(e.Self)
	if err := e.Store.PutLive(g.SyncID, newRel, meta); err != nil {
		l.Warnf("engine: journal %s/%s: put live: %v", g.SyncID, newRel, err)
	}
}
