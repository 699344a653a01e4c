// Package engine implements the exposed surface (spec 6.2): add/remove a
// SyncGroup, trigger a session with a peer, list conflicts, read stats,
// and the event stream, all supervised so a panic in one group's scanner
// or journal doesn't take the process down.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/meshsync/syncd/internal/config"
	"github.com/meshsync/syncd/internal/conflict"
	"github.com/meshsync/syncd/internal/journal"
	"github.com/meshsync/syncd/internal/logger"
	"github.com/meshsync/syncd/internal/peerid"
	"github.com/meshsync/syncd/internal/scanner"
	"github.com/meshsync/syncd/internal/session"
	"github.com/meshsync/syncd/internal/store"
	"github.com/meshsync/syncd/internal/syncmodel"
	"github.com/meshsync/syncd/internal/transport"
)

var l = logger.DefaultLogger

// GroupHandle identifies a running SyncGroup; today it is just the
// sync_id, but kept as a distinct type so callers don't depend on that.
type GroupHandle string

// Dialer resolves a reachable peer_id to a transport.Peer. The engine
// does not perform discovery or authentication itself (spec 6.1's
// collaborator contracts): it only ever calls Dial with a peer_id some
// outer discovery/authenticated-transport layer has already vetted.
type Dialer func(ctx context.Context, peer peerid.ID) (transport.Peer, error)

// Stats answers get_stats (spec 6.2).
type Stats struct {
	FileCount        int
	ByteCount        uint64
	PendingUploads   int
	PendingDownloads int
}

// ConflictEntry answers list_conflicts (spec 6.2): one surviving
// conflict-copy artifact.
type ConflictEntry struct {
	Path  string
	Size  uint64
	Mtime time.Time
}

type groupState struct {
	group   syncmodel.SyncGroup
	tokens  []suture.ServiceToken
	lastRes map[peerid.ID]session.Result

	mu      sync.Mutex
	pending map[peerid.ID]bool // (group, peer) pairs with a session already queued
}

// Engine ties the SyncGroup registry, the store, and the scanner/journal/
// session machinery together behind spec 6.2's surface.
type Engine struct {
	Config *config.Wrapper
	Store  *store.Store
	Self   peerid.ID
	Dial   Dialer

	ScanInterval    time.Duration
	JournalDebounce time.Duration
	SessionTimeout  time.Duration
	MaxConcurrent   int64

	Events EventHandler

	super   *suture.Supervisor
	metrics *metricsSet

	mu     sync.Mutex
	groups map[GroupHandle]*groupState
}

// EventHandler receives every session.Event from every running group's
// sessions (spec 6.2's event stream), relabeled with the group handle.
type EventHandler func(GroupHandle, session.Event)

func New(cfg *config.Wrapper, st *store.Store, self peerid.ID, dial Dialer) *Engine {
	e := &Engine{
		Config:          cfg,
		Store:           st,
		Self:            self,
		Dial:            dial,
		ScanInterval:    60 * time.Second,
		JournalDebounce: journal.DefaultDebounce,
		SessionTimeout:  5 * time.Minute,
		MaxConcurrent:   4,
		super:           suture.NewSimple("engine"),
		metrics:         newMetricsSet(),
		groups:          make(map[GroupHandle]*groupState),
	}
	return e
}

// Run starts the supervisor tree (every already-registered group's
// scanner and journal services) and blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	for _, g := range e.Config.Groups() {
		if err := e.startGroup(g); err != nil {
			l.Warnf("engine: start group %s: %v", g.SyncID, err)
		}
	}
	return e.super.Serve(ctx)
}

// AddGroup implements add_group: registers the SyncGroup, persists it,
// and starts its scanner/journal services.
func (e *Engine) AddGroup(root, syncID string, mode syncmodel.Mode, excludes []string) (GroupHandle, error) {
	g := syncmodel.SyncGroup{SyncID: syncID, Root: root, Mode: mode, ExcludePatterns: excludes}
	if err := e.Config.AddGroup(g); err != nil {
		return "", err
	}
	if err := e.startGroup(g); err != nil {
		return "", err
	}
	return GroupHandle(syncID), nil
}

// RemoveGroup implements remove_group: stops the group's services, if
// any are actually running (a CLI invocation that never called Run has
// none to stop), and drops it from the registry. Stored state for the
// group is left in place (spec says nothing about purging history on
// removal).
func (e *Engine) RemoveGroup(h GroupHandle) error {
	if _, ok := e.Config.Group(string(h)); !ok {
		return fmt.Errorf("engine: unknown group %s", h)
	}

	e.mu.Lock()
	gs, ok := e.groups[h]
	if ok {
		delete(e.groups, h)
	}
	e.mu.Unlock()

	if ok {
		for _, tok := range gs.tokens {
			if err := e.super.Remove(tok); err != nil {
				l.Warnf("engine: stop service for %s: %v", h, err)
			}
		}
	}
	return e.Config.RemoveGroup(string(h))
}

func (e *Engine) startGroup(g syncmodel.SyncGroup) error {
	excludes, err := scanner.Compile(g.ExcludePatterns)
	if err != nil {
		return fmt.Errorf("engine: compile excludes for %s: %w", g.SyncID, err)
	}

	gs := &groupState{
		group:   g,
		lastRes: make(map[peerid.ID]session.Result),
		pending: make(map[peerid.ID]bool),
	}

	scan := &scanService{engine: e, group: g, excludes: excludes, interval: e.ScanInterval}
	scanTok := e.super.Add(scan)

	j := journal.New(g.Root, e.JournalDebounce, nil)
	js := &journalService{engine: e, group: g, j: j}
	j.Handle = func(ev journal.Event) { e.handleJournalEvent(g, ev) }
	journalTok := e.super.Add(js)

	gs.tokens = []suture.ServiceToken{scanTok, journalTok}

	e.mu.Lock()
	e.groups[GroupHandle(g.SyncID)] = gs
	e.mu.Unlock()

	e.metrics.groupAdded(g.SyncID)
	return nil
}

// TriggerSync implements trigger_sync: idempotent, queues at most one
// pending session per (group, peer). Returns immediately; the session
// itself runs on the supervisor and reports through Events.
func (e *Engine) TriggerSync(h GroupHandle, peer peerid.ID) error {
	e.mu.Lock()
	gs, ok := e.groups[h]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("engine: unknown group %s", h)
	}

	gs.mu.Lock()
	if gs.pending[peer] {
		gs.mu.Unlock()
		return nil // already queued; trigger_sync is idempotent
	}
	gs.pending[peer] = true
	gs.mu.Unlock()

	tok := e.super.Add(&sessionService{engine: e, handle: h, group: gs.group, peer: peer, gs: gs})
	_ = tok // one-shot service; Serve returns suture.ErrDoNotRestart, so the supervisor drops it instead of restarting it
	return nil
}

// ListConflicts implements list_conflicts by reading the store directly:
// it is the single source of truth for which conflict copies still
// exist, and survives restarts the way an in-memory list would not. It
// only needs the registry, not a running groupState, so it works the
// same whether called against a live daemon or a one-shot CLI Engine.
func (e *Engine) ListConflicts(h GroupHandle) ([]ConflictEntry, error) {
	g, ok := e.Config.Group(string(h))
	if !ok {
		return nil, fmt.Errorf("engine: unknown group %s", h)
	}

	var out []ConflictEntry
	err := e.Store.Iter(g.SyncID, func(path string, st syncmodel.FileState) bool {
		if conflict.IsArtifact(path) && st.IsLive() {
			out = append(out, ConflictEntry{Path: path, Size: st.Live.Size, Mtime: st.Live.Mtime})
		}
		return true
	})
	return out, err
}

// GetStats implements get_stats. PendingUploads/PendingDownloads reflect
// the most recently completed session's counts per peer, summed: the
// engine only knows what a session found outstanding as of its last
// run, not a live-recomputed figure (that would mean re-running Decide
// against every known peer on every GetStats call). A one-shot Engine
// that never started this group's services (as the CLI's status
// command does) simply has no session history to sum, and reports 0
// for both rather than erroring.
func (e *Engine) GetStats(h GroupHandle) (Stats, error) {
	g, ok := e.Config.Group(string(h))
	if !ok {
		return Stats{}, fmt.Errorf("engine: unknown group %s", h)
	}

	var stats Stats
	err := e.Store.Iter(g.SyncID, func(path string, st syncmodel.FileState) bool {
		if st.IsLive() && !st.Live.IsDirectory {
			stats.FileCount++
			stats.ByteCount += st.Live.Size
		}
		return true
	})
	if err != nil {
		return Stats{}, err
	}

	e.mu.Lock()
	gs, ok := e.groups[h]
	e.mu.Unlock()
	if ok {
		gs.mu.Lock()
		for _, res := range gs.lastRes {
			stats.PendingUploads += res.Uploaded
			stats.PendingDownloads += res.Downloaded
		}
		gs.mu.Unlock()
	}

	e.metrics.setStats(g.SyncID, stats)
	return stats, nil
}

func (e *Engine) emit(h GroupHandle, ev session.Event) {
	if e.Events != nil {
		e.Events(h, ev)
	}
}
