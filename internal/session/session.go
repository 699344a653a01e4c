// Package session implements the SyncSession (C6): one reconciliation
// round between this device and exactly one peer within one SyncGroup.
// It is transport-agnostic (talks only to a transport.Peer) and
// store-agnostic beyond the store.Store API; all mutation still goes
// through C2, so a canceled session leaves only durable partial results.
package session

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/meshsync/syncd/internal/conflict"
	"github.com/meshsync/syncd/internal/decide"
	"github.com/meshsync/syncd/internal/errs"
	"github.com/meshsync/syncd/internal/logger"
	"github.com/meshsync/syncd/internal/osutil"
	"github.com/meshsync/syncd/internal/peerid"
	"github.com/meshsync/syncd/internal/store"
	"github.com/meshsync/syncd/internal/syncmodel"
	"github.com/meshsync/syncd/internal/transport"
	"github.com/meshsync/syncd/internal/vector"
)

var l = logger.DefaultLogger

// State is where a Session sits in its state machine (spec 4.5): Idle ->
// Exchanging -> Reconciling -> Applying -> Idle, with cancellation from
// any state returning to Idle.
type State int

const (
	Idle State = iota
	Exchanging
	Reconciling
	Applying
)

func (s State) String() string {
	switch s {
	case Exchanging:
		return "Exchanging"
	case Reconciling:
		return "Reconciling"
	case Applying:
		return "Applying"
	default:
		return "Idle"
	}
}

// EventKind identifies one of the events spec 6.2's stream produces.
type EventKind int

const (
	SyncStarted EventKind = iota
	PathSynced
	ConflictCreated
	SyncCompleted
	SyncFailed
)

// Event is one item of the exposed event stream (spec 6.2).
type Event struct {
	Kind      EventKind
	SyncID    string
	Peer      peerid.ID
	Path      string
	Direction string
	Bytes     int64
	Err       error
}

// EventHandler receives Session events; nil is a valid no-op handler.
type EventHandler func(Event)

// Config tunes the bounds spec 5 mandates: batch-yield size and the
// free-space margin checked before writing a downloaded file.
type Config struct {
	BatchSize       int
	FreeSpaceMargin uint64
}

func DefaultConfig() Config {
	return Config{
		BatchSize:       64,
		FreeSpaceMargin: 64 << 20, // 64MiB headroom below "full"
	}
}

// Session drives one reconciliation round with one peer for one
// SyncGroup. A Session is single-use: call Run once per round.
type Session struct {
	Store  *store.Store
	Peer   transport.Peer
	Group  syncmodel.SyncGroup
	Self   peerid.ID
	Events EventHandler
	Clock  func() time.Time
	Config Config

	state State
}

func New(st *store.Store, peer transport.Peer, group syncmodel.SyncGroup, self peerid.ID) *Session {
	return &Session{
		Store:  st,
		Peer:   peer,
		Group:  group,
		Self:   self,
		Clock:  time.Now,
		Config: DefaultConfig(),
	}
}

// Result tallies what one Run did, for get_stats/list_conflicts-style
// reporting (spec 6.2).
type Result struct {
	Uploaded      int
	Downloaded    int
	DeletedLocal  int
	DeletedRemote int
	Conflicts     int
	Skipped       int
	Failed        int
	Pruned        int
}

type planned struct {
	path   string
	local  *syncmodel.FileState
	remote *syncmodel.FileState
	action decide.Action
}

// State reports where in the Idle/Exchanging/Reconciling/Applying cycle
// this Session currently sits.
func (s *Session) State() State { return s.state }

func (s *Session) emit(e Event) {
	if s.Events != nil {
		e.SyncID = s.Group.SyncID
		s.Events(e)
	}
}

// Run drives exactly one reconciliation round against peer. On context
// cancellation it returns whatever partial Result had already been
// applied (every applied action was already durable through C2) along
// with ctx.Err().
func (s *Session) Run(ctx context.Context, peer peerid.ID) (Result, error) {
	var res Result
	s.emit(Event{Kind: SyncStarted, Peer: peer})

	s.state = Exchanging
	localStates, remoteStates, err := s.exchange(ctx)
	if err != nil {
		s.state = Idle
		s.emit(Event{Kind: SyncFailed, Peer: peer, Err: err})
		return res, err
	}

	s.state = Reconciling
	plan := s.reconcile(localStates, remoteStates)

	s.state = Applying
	err = s.apply(ctx, peer, plan, &res)

	s.pruneConfirmedTombstones(localStates, remoteStates, &res)

	s.state = Idle
	if err != nil {
		s.emit(Event{Kind: SyncFailed, Peer: peer, Err: err})
		return res, err
	}

	if hash := snapshotHash(remoteStates); hash != "" {
		if serr := s.Store.SetLastReconciledHash(s.Group.SyncID, peer, hash); serr != nil {
			l.Warnf("session %s/%s: record reconciled hash: %v", s.Group.SyncID, peer, serr)
		}
	}

	s.emit(Event{Kind: SyncCompleted, Peer: peer})
	return res, nil
}

// exchange performs spec 4.5 step 1: pull the peer's states and collect
// local states, both excluding conflict artifacts. The local leveldb
// iteration and the remote GetStates round-trip are independent reads,
// so they run concurrently rather than serialized one after the other.
func (s *Session) exchange(ctx context.Context) (map[string]syncmodel.FileState, map[string]syncmodel.FileState, error) {
	var local map[string]syncmodel.FileState
	var remote map[string]syncmodel.FileState

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		local = make(map[string]syncmodel.FileState)
		return s.Store.Iter(s.Group.SyncID, func(path string, st syncmodel.FileState) bool {
			if !conflict.IsArtifact(path) {
				local[path] = st
			}
			return true
		})
	})
	g.Go(func() error {
		states, err := s.Peer.GetStates(gctx, s.Group.SyncID)
		if err != nil {
			return errs.New(errs.TransportTimeout, "", err)
		}
		remote = states
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	filtered := make(map[string]syncmodel.FileState, len(remote))
	for path, st := range remote {
		if !conflict.IsArtifact(path) {
			filtered[path] = st
		}
	}
	return local, filtered, nil
}

// reconcile performs spec 4.5 steps 2-3: union the path sets and decide
// an Action for each, resolving Uncertain and applying the SyncGroup's
// Mode restriction.
func (s *Session) reconcile(local, remote map[string]syncmodel.FileState) []planned {
	seen := make(map[string]bool, len(local)+len(remote))
	paths := make([]string, 0, len(local)+len(remote))
	for p := range local {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	for p := range remote {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	sort.Strings(paths) // deterministic apply order within a bucket

	plan := make([]planned, 0, len(paths))
	for _, p := range paths {
		ls, lsOK := local[p]
		rs, rsOK := remote[p]
		var lp, rp *syncmodel.FileState
		if lsOK {
			lp = &ls
		}
		if rsOK {
			rp = &rs
		}

		action := decide.Decide(lp, rp, p)
		if action == decide.Uncertain {
			// Case 3: local-only Live. remote_states cannot simultaneously
			// be absent (a precondition of Uncertain here) and contain a
			// Tombstone for p, so the "peer GC'd the tombstone" branch of
			// spec 4.5 step 3 can never actually fire against a map lookup;
			// we resolve Uncertain as Upload, matching the step's other
			// branch. See DESIGN.md for this reading of the spec text.
			if !rsOK {
				action = decide.Upload
			} else {
				action = decide.Skip
			}
		}
		action = restrictToMode(action, s.Group.Mode)

		plan = append(plan, planned{path: p, local: lp, remote: rp, action: action})
	}
	return plan
}

// restrictToMode downgrades any action a SyncGroup's Mode forbids to
// Skip: UploadOnly never pulls a remote change in, DownloadOnly never
// pushes a local one out (spec 3.2).
func restrictToMode(a decide.Action, mode syncmodel.Mode) decide.Action {
	switch mode {
	case syncmodel.ModeUploadOnly:
		switch a {
		case decide.Download, decide.DeleteLocal:
			return decide.Skip
		}
	case syncmodel.ModeDownloadOnly:
		switch a {
		case decide.Upload, decide.DeleteRemote:
			return decide.Skip
		}
	}
	return a
}

// apply performs spec 4.5 step 4: conflict-split first, then downloads,
// then uploads, then deletes, yielding every Config.BatchSize paths.
func (s *Session) apply(ctx context.Context, peer peerid.ID, plan []planned, res *Result) error {
	buckets := map[decide.Action][]planned{}
	for _, p := range plan {
		buckets[p.action] = append(buckets[p.action], p)
	}

	// yieldSem has no concurrent holders; Acquire/Release back to back is
	// a cooperative suspension point that also honors ctx cancellation,
	// in place of an unconditional runtime.Gosched (spec 5's "explicit
	// yield between applying batches of 64 paths").
	yieldSem := semaphore.NewWeighted(1)
	order := []decide.Action{decide.Conflict, decide.Download, decide.Upload, decide.DeleteLocal, decide.DeleteRemote}
	n := 0
	for _, action := range order {
		for _, p := range buckets[action] {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			var err error
			switch action {
			case decide.Conflict:
				err = s.applyConflict(ctx, peer, p)
				res.Conflicts++
			case decide.Download:
				err = s.applyDownload(ctx, peer, p)
				res.Downloaded++
			case decide.Upload:
				err = s.applyUpload(ctx, peer, p)
				res.Uploaded++
			case decide.DeleteLocal:
				err = s.applyDeleteLocal(p)
				res.DeletedLocal++
			case decide.DeleteRemote:
				err = s.applyDeleteRemote(ctx, peer, p)
				res.DeletedRemote++
			}

			if err != nil {
				res.Failed++
				l.Warnf("session %s/%s: %s %s: %v", s.Group.SyncID, peer, action, p.path, err)
				s.emit(Event{Kind: SyncFailed, Peer: peer, Path: p.path, Err: err})
			} else if action != decide.Conflict {
				s.emit(Event{Kind: PathSynced, Peer: peer, Path: p.path, Direction: action.String()})
			}

			n++
			if n%s.Config.BatchSize == 0 {
				if err := yieldSem.Acquire(ctx, 1); err != nil {
					return err
				}
				yieldSem.Release(1)
			}
		}
	}
	for _, p := range buckets[decide.Skip] {
		_ = p
		res.Skipped++
	}
	return nil
}

func (s *Session) abs(path string) string {
	return filepath.Join(s.Group.Root, filepath.FromSlash(path))
}

func (s *Session) applyDownload(ctx context.Context, peer peerid.ID, p planned) error {
	if err := s.checkFreeSpace(p.remote.Live.Size); err != nil {
		return err
	}
	content, err := s.Peer.GetFile(ctx, s.Group.SyncID, p.path)
	if err != nil {
		return errs.New(errs.TransportTimeout, p.path, err)
	}
	return s.Store.AtomicApplyRemote(s.Group.SyncID, s.abs(p.path), p.path, *p.remote, bytes.NewReader(content))
}

func (s *Session) applyUpload(ctx context.Context, peer peerid.ID, p planned) error {
	var content []byte
	if !p.local.Live.IsDirectory {
		bs, err := os.ReadFile(s.abs(p.path))
		if err != nil {
			return errs.New(errs.IOError, p.path, err)
		}
		content = bs
	}
	// Upload ships the VV already recorded locally: an Upload represents
	// sending a prior local edit to a peer, not a new edit of its own, so
	// it must not advance the causal clock (spec 4.1's Update is only for
	// actual local writes, which the scanner/journal already applied).
	meta := p.local.Live
	if err := s.Peer.PutFile(ctx, s.Group.SyncID, p.path, meta, content); err != nil {
		return errs.New(errs.TransportTimeout, p.path, err)
	}
	return nil
}

func (s *Session) applyDeleteLocal(p planned) error {
	return s.Store.AtomicApplyRemote(s.Group.SyncID, s.abs(p.path), p.path, *p.remote, nil)
}

func (s *Session) applyDeleteRemote(ctx context.Context, peer peerid.ID, p planned) error {
	ts := p.local.Tombstone
	if err := s.Peer.DeleteFiles(ctx, s.Group.SyncID, map[string]syncmodel.Tombstone{p.path: ts}); err != nil {
		return errs.New(errs.TransportTimeout, p.path, err)
	}
	return nil
}

// applyConflict implements spec 4.5 step 5: preserve the foreign version
// as a new conflict-marked path, leaving p itself untouched so the local
// side keeps "the main path".
func (s *Session) applyConflict(ctx context.Context, peer peerid.ID, p planned) error {
	if p.remote == nil || !p.remote.IsLive() {
		// The foreign side carries no bytes to preserve (e.g. a contested
		// delete); the local file already stands as the surviving copy.
		s.emit(Event{Kind: ConflictCreated, Peer: peer, Path: p.path})
		return nil
	}

	content, err := s.Peer.GetFile(ctx, s.Group.SyncID, p.path)
	if err != nil {
		return errs.New(errs.TransportTimeout, p.path, err)
	}

	cpath := conflict.Path(p.path, s.Self, s.Clock().UnixMilli())
	meta := p.remote.Live
	meta.VV = vector.Vector(nil).Update(s.Self)

	if err := writeConflictFile(s.abs(cpath), content); err != nil {
		return err
	}
	if err := s.Store.PutLive(s.Group.SyncID, cpath, meta); err != nil {
		return err
	}
	s.emit(Event{Kind: ConflictCreated, Peer: peer, Path: cpath})
	return nil
}

func writeConflictFile(absPath string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return errs.New(errs.IOError, absPath, err)
	}
	w, err := osutil.CreateAtomic(absPath, 0o644)
	if err != nil {
		return errs.New(errs.IOError, absPath, err)
	}
	if _, err := w.Write(content); err != nil {
		w.Close()
		return errs.New(errs.IOError, absPath, err)
	}
	if err := w.Close(); err != nil {
		return errs.New(errs.IOError, absPath, err)
	}
	return nil
}

// pruneConfirmedTombstones implements spec 4.5 step 7: a local tombstone
// may be removed once this round's remote snapshot confirms the peer
// also considers the path gone, either as an explicit Tombstone or as a
// Live entry whose VV is no newer than ours (Before or Equal). A peer
// that does not mention the path at all confirms nothing.
func (s *Session) pruneConfirmedTombstones(local, remote map[string]syncmodel.FileState, res *Result) {
	for path, ls := range local {
		if !ls.IsTombstone() {
			continue
		}
		rs, ok := remote[path]
		confirmed := false
		switch {
		case ok && rs.IsTombstone():
			confirmed = true
		case ok && rs.IsLive():
			c := vector.Compare(rs.Live.VV, ls.Tombstone.VV)
			confirmed = c == vector.Before || c == vector.Equal
		}
		if !confirmed {
			continue
		}
		if err := s.Store.PruneTombstone(s.Group.SyncID, path); err != nil {
			l.Warnf("session %s: prune tombstone %s: %v", s.Group.SyncID, path, err)
			continue
		}
		res.Pruned++
	}
}

func (s *Session) checkFreeSpace(need uint64) error {
	usage, err := disk.Usage(s.Group.Root)
	if err != nil {
		// Free-space accounting is best-effort; a platform where it's
		// unavailable should not block every download.
		return nil
	}
	if usage.Free < need+s.Config.FreeSpaceMargin {
		return errs.New(errs.IOError, s.Group.Root, fmt.Errorf("insufficient free space: need %d, have %d", need+s.Config.FreeSpaceMargin, usage.Free))
	}
	return nil
}

// snapshotHash derives the cheap equality digest Run records as the
// last reconciled snapshot hash (spec 4.8); Run does not compare it
// against the stored value to skip a round. It only needs to change
// whenever the remote snapshot does, not to be collision-resistant
// against adversarial input.
func snapshotHash(states map[string]syncmodel.FileState) string {
	paths := make([]string, 0, len(states))
	for p := range states {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := fnv.New64a()
	for _, p := range paths {
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write([]byte(states[p].String()))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
