// Package journal implements the change journal (C4): it receives raw OS
// filesystem notifications, coalesces repeated events on the same path
// within a debounce window, classifies the settled result, and hands a
// small, already-deduplicated event stream to the engine. A per-path
// processing error is logged and skipped; the journal itself never
// aborts (spec 4.3's failure model).
package journal

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/syncthing/notify"

	"github.com/meshsync/syncd/internal/conflict"
	"github.com/meshsync/syncd/internal/logger"
)

var l = logger.DefaultLogger

type Kind int

const (
	Created Kind = iota
	Modified
	Deleted
	Renamed
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Event is the settled, classified change the journal hands upstream.
// OldPath is only set for Renamed.
type Event struct {
	Kind    Kind
	Path    string
	OldPath string
}

const (
	// DefaultDebounce sits inside spec 4.3's recommended 500ms-3s
	// coalescing window, toward its short end.
	DefaultDebounce = 1500 * time.Millisecond
)

// Journal watches Root recursively and emits settled Events to Handle.
type Journal struct {
	Root     string
	Debounce time.Duration
	Handle   func(Event)

	raw  chan notify.EventInfo
	mu   sync.Mutex
	stop chan struct{}

	// pending tracks, per relative path, a timer that fires once the
	// path has been quiet for Debounce.
	pending map[string]*time.Timer

	// renameFrom records the path that looked like the source half of a
	// rename, and when it was recorded, so a Create seen shortly after
	// on a different path can be paired into a single Renamed event
	// instead of a Delete+Create. Cleared once consumed; a record older
	// than Debounce is never paired, so an isolated delete doesn't get
	// wrongly paired with an unrelated create minutes later.
	renameFrom   string
	renameFromAt time.Time
}

func New(root string, debounce time.Duration, handle func(Event)) *Journal {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Journal{
		Root:     root,
		Debounce: debounce,
		Handle:   handle,
		pending:  make(map[string]*time.Timer),
		stop:     make(chan struct{}),
	}
}

// Start begins watching. It returns once the watch is established; events
// are delivered to Handle from a background goroutine until Stop is
// called.
func (j *Journal) Start() error {
	j.raw = make(chan notify.EventInfo, 256)
	if err := notify.Watch(filepath.Join(j.Root, "..."), j.raw, notify.All); err != nil {
		return err
	}
	go j.loop()
	return nil
}

func (j *Journal) Stop() {
	notify.Stop(j.raw)
	close(j.stop)
}

func (j *Journal) loop() {
	for {
		select {
		case <-j.stop:
			return
		case ev, ok := <-j.raw:
			if !ok {
				return
			}
			j.onRaw(ev)
		}
	}
}

// pathEvent is the only part of notify.EventInfo onRaw actually needs;
// keeping the parameter narrow makes the classification logic testable
// without a real filesystem-event source.
type pathEvent interface {
	Path() string
}

func (j *Journal) onRaw(ev pathEvent) {
	rel, err := filepath.Rel(j.Root, ev.Path())
	if err != nil {
		l.Warnf("journal: %v", err)
		return
	}
	rel = filepath.ToSlash(rel)
	if conflict.IsArtifact(rel) {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if t, ok := j.pending[rel]; ok {
		t.Stop()
	}
	j.pending[rel] = time.AfterFunc(j.Debounce, func() { j.settle(rel) })
}

// settle classifies the path's state once it has gone quiet: if a file
// exists there now it's a Created/Modified (the scanner/store tells them
// apart by whether a prior Live exists, so the journal reports the
// simpler fact "something is here now"); if nothing exists, Deleted.
// Rename pairing is best-effort: a Deleted immediately followed by a
// Created elsewhere within the same debounce window is folded into a
// single Renamed, its new path's caller-assigned VV being the old path's
// prior VV incremented (spec 4.3) — that increment happens where the
// event is applied to C2, not here.
func (j *Journal) settle(rel string) {
	j.mu.Lock()
	delete(j.pending, rel)
	abs := filepath.Join(j.Root, filepath.FromSlash(rel))
	_, statErr := os.Lstat(abs)
	exists := statErr == nil

	pairable := j.renameFrom != "" && j.renameFrom != rel && time.Since(j.renameFromAt) <= j.Debounce

	var ev Event
	switch {
	case exists && pairable:
		ev = Event{Kind: Renamed, Path: rel, OldPath: j.renameFrom}
		j.renameFrom = ""
	case exists:
		ev = Event{Kind: Modified, Path: rel}
	default:
		j.renameFrom = rel
		j.renameFromAt = time.Now()
		ev = Event{Kind: Deleted, Path: rel}
	}
	j.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			l.Warnf("journal: recovered from panic processing %q: %v", rel, r)
		}
	}()
	j.Handle(ev)
}
