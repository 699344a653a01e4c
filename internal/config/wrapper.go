package config

import (
	"os"
	"sync"

	"github.com/meshsync/syncd/internal/osutil"
	"github.com/meshsync/syncd/internal/syncmodel"
)

// Handler is notified of every accepted configuration replacement, à la
// http.Handler.
type Handler interface {
	Changed(Configuration) error
}

type HandlerFunc func(Configuration) error

func (fn HandlerFunc) Changed(cfg Configuration) error { return fn(cfg) }

// Wrapper ties a Configuration to a file on disk and fans out
// replacements to registered Handlers over a channel, so a slow
// subscriber (e.g. the engine starting up a new SyncGroup's session)
// can't block the caller that made the change.
type Wrapper struct {
	cfg  Configuration
	path string

	groupMap map[string]syncmodel.SyncGroup
	replaces chan Configuration
	mut      sync.Mutex

	subs []Handler
	sMut sync.Mutex
}

// Wrap ties an existing Configuration to a file on disk and starts its
// Serve loop.
func Wrap(path string, cfg Configuration) *Wrapper {
	w := &Wrapper{cfg: cfg, path: path}
	w.replaces = make(chan Configuration)
	go w.Serve()
	return w
}

// Load reads an existing configuration file and wraps it, or wraps a
// fresh empty Configuration if path doesn't exist yet (first run).
func Load(path string) (*Wrapper, error) {
	fd, err := os.Open(path)
	if os.IsNotExist(err) {
		return Wrap(path, New()), nil
	}
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	cfg, err := ReadYAML(fd)
	if err != nil {
		return nil, err
	}
	return Wrap(path, cfg), nil
}

// Serve handles configuration replace events and calls any interested
// handlers. Started automatically by Wrap/Load; never run it manually.
func (w *Wrapper) Serve() {
	for cfg := range w.replaces {
		w.sMut.Lock()
		subs := w.subs
		w.sMut.Unlock()
		for _, h := range subs {
			if err := h.Changed(cfg); err != nil {
				l.Warnf("config: handler for %T: %v", h, err)
			}
		}
	}
}

// Stop stops the Serve loop. Any call that would publish a replace
// (Replace, AddGroup, RemoveGroup) panics after Stop.
func (w *Wrapper) Stop() {
	close(w.replaces)
}

// Subscribe registers h to be called on every future configuration
// replacement.
func (w *Wrapper) Subscribe(h Handler) {
	w.sMut.Lock()
	w.subs = append(w.subs, h)
	w.sMut.Unlock()
}

// Raw returns the currently wrapped Configuration.
func (w *Wrapper) Raw() Configuration {
	w.mut.Lock()
	defer w.mut.Unlock()
	return w.cfg
}

// Replace swaps the current configuration for cfg, persists it, and
// publishes the change to subscribers.
func (w *Wrapper) Replace(cfg Configuration) error {
	w.mut.Lock()
	cfg.prepare()
	w.cfg = cfg
	w.groupMap = nil
	w.mut.Unlock()

	if err := w.save(cfg); err != nil {
		return err
	}
	w.replaces <- cfg
	return nil
}

// Groups returns a lookup of the current SyncGroups by sync_id.
// Returned structures must not be mutated; use AddGroup to update one.
func (w *Wrapper) Groups() map[string]syncmodel.SyncGroup {
	w.mut.Lock()
	defer w.mut.Unlock()
	if w.groupMap == nil {
		w.groupMap = make(map[string]syncmodel.SyncGroup, len(w.cfg.Groups))
		for _, g := range w.cfg.Groups {
			w.groupMap[g.SyncID] = g
		}
	}
	return w.groupMap
}

// Group looks up a single SyncGroup by sync_id.
func (w *Wrapper) Group(syncID string) (syncmodel.SyncGroup, bool) {
	g, ok := w.Groups()[syncID]
	return g, ok
}

// AddGroup adds a new SyncGroup to the configuration, or overwrites an
// existing one with the same sync_id, persists, and notifies.
func (w *Wrapper) AddGroup(g syncmodel.SyncGroup) error {
	w.mut.Lock()
	w.groupMap = nil

	replaced := false
	for i := range w.cfg.Groups {
		if w.cfg.Groups[i].SyncID == g.SyncID {
			w.cfg.Groups[i] = g
			replaced = true
			break
		}
	}
	if !replaced {
		w.cfg.Groups = append(w.cfg.Groups, g)
	}
	w.cfg.prepare()
	cfg := w.cfg
	w.mut.Unlock()

	if err := w.save(cfg); err != nil {
		return err
	}
	w.replaces <- cfg
	return nil
}

// RemoveGroup drops the SyncGroup with the given sync_id, if present,
// persists, and notifies.
func (w *Wrapper) RemoveGroup(syncID string) error {
	w.mut.Lock()
	w.groupMap = nil

	out := w.cfg.Groups[:0:0]
	for _, g := range w.cfg.Groups {
		if g.SyncID != syncID {
			out = append(out, g)
		}
	}
	w.cfg.Groups = out
	cfg := w.cfg
	w.mut.Unlock()

	if err := w.save(cfg); err != nil {
		return err
	}
	w.replaces <- cfg
	return nil
}

// Save writes the current configuration to disk atomically.
func (w *Wrapper) Save() error {
	w.mut.Lock()
	cfg := w.cfg
	w.mut.Unlock()
	return w.save(cfg)
}

func (w *Wrapper) save(cfg Configuration) error {
	if w.path == "" {
		return nil
	}
	aw, err := osutil.CreateAtomic(w.path, 0o644)
	if err != nil {
		return err
	}
	if err := cfg.WriteYAML(aw); err != nil {
		aw.Close()
		return err
	}
	return aw.Close()
}
