package engine

import (
	"context"
	"time"

	"github.com/gobwas/glob"
	"github.com/thejerf/suture/v4"

	"github.com/meshsync/syncd/internal/journal"
	"github.com/meshsync/syncd/internal/peerid"
	"github.com/meshsync/syncd/internal/scanner"
	"github.com/meshsync/syncd/internal/session"
	"github.com/meshsync/syncd/internal/syncmodel"
)

// scanService runs the periodic belt-and-braces scan for one SyncGroup as
// a suture.Service: any panic inside Scan (a bad symlink, a permission
// error surfacing oddly) takes down only this service, which the
// supervisor restarts rather than the whole engine.
type scanService struct {
	engine   *Engine
	group    syncmodel.SyncGroup
	excludes []glob.Glob
	interval time.Duration
}

func (s *scanService) String() string { return "scan:" + s.group.SyncID }

func (s *scanService) Serve(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.scanOnce()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.scanOnce()
		}
	}
}

func (s *scanService) scanOnce() {
	sc := &scanner.Scanner{Root: s.group.Root, SyncID: s.group.SyncID, Excludes: s.excludes, Lookup: s.engine.Store}
	live, err := sc.Scan()
	if err != nil {
		l.Warnf("engine: scan %s: %v", s.group.SyncID, err)
		return
	}
	s.engine.reconcileScan(s.group, live)
}

// journalService wraps one Journal as a suture.Service: Start/Stop bracket
// ctx's lifetime, so a supervisor restart re-establishes the OS watch.
type journalService struct {
	engine *Engine
	group  syncmodel.SyncGroup
	j      *journal.Journal
}

func (j *journalService) String() string { return "journal:" + j.group.SyncID }

func (j *journalService) Serve(ctx context.Context) error {
	if err := j.j.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	j.j.Stop()
	return nil
}

// sessionService runs exactly one SyncSession to completion and then
// exits; TriggerSync adds one of these per (group, peer) pair, and the
// supervisor discards it once Serve returns. A crash mid-session is
// retried by the supervisor's restart policy, same as any other service,
// which is safe because every session mutation goes through the store's
// atomic operations.
type sessionService struct {
	engine *Engine
	handle GroupHandle
	group  syncmodel.SyncGroup
	peer   peerid.ID
	gs     *groupState
}

func (s *sessionService) String() string {
	return "session:" + s.group.SyncID + ":" + s.peer.String()[:7]
}

func (s *sessionService) Serve(ctx context.Context) error {
	defer func() {
		s.gs.mu.Lock()
		delete(s.gs.pending, s.peer)
		s.gs.mu.Unlock()
	}()

	peerConn, err := s.engine.Dial(ctx, s.peer)
	if err != nil {
		s.engine.emit(s.handle, session.Event{Kind: session.SyncFailed, Peer: s.peer, Err: err})
		return suture.ErrDoNotRestart
	}

	sctx := ctx
	var cancel context.CancelFunc
	if s.engine.SessionTimeout > 0 {
		sctx, cancel = context.WithTimeout(ctx, s.engine.SessionTimeout)
		defer cancel()
	}

	sess := session.New(s.engine.Store, peerConn, s.group, s.engine.Self)
	sess.Events = func(ev session.Event) {
		s.engine.metrics.observe(s.group.SyncID, ev)
		s.engine.emit(s.handle, ev)
	}

	res, err := sess.Run(sctx, s.peer)
	if err != nil {
		l.Warnf("engine: session %s/%s: %v", s.group.SyncID, s.peer, err)
	}

	s.gs.mu.Lock()
	s.gs.lastRes[s.peer] = res
	s.gs.mu.Unlock()

	// ErrDoNotRestart tells the supervisor this service is done for good
	// rather than crashed; a plain nil return would otherwise be retried
	// under the tree's normal restart policy, re-running the session.
	return suture.ErrDoNotRestart
}
