// Package config implements reading and writing of the local device's
// SyncGroup registry (spec 3.2, 6.4): which folders are synchronized,
// under which sync_id, in which mode, with which exclude patterns.
package config

import (
	"fmt"
	"io"
	"reflect"
	"sort"

	"sigs.k8s.io/yaml"

	"github.com/meshsync/syncd/internal/logger"
	"github.com/meshsync/syncd/internal/osutil"
	"github.com/meshsync/syncd/internal/syncmodel"
)

var l = logger.DefaultLogger

const CurrentVersion = 1

// Configuration is the full on-disk document: every SyncGroup this
// device knows about, plus a version tag so a future layout change has
// somewhere to branch from.
type Configuration struct {
	Version int                   `json:"version"`
	Groups  []syncmodel.SyncGroup `json:"groups"`

	OriginalVersion int `json:"-"` // the version read from disk, before any conversion
}

func New() Configuration {
	cfg := Configuration{Version: CurrentVersion}
	cfg.OriginalVersion = CurrentVersion
	cfg.prepare()
	return cfg
}

// ReadYAML parses a Configuration document from r.
func ReadYAML(r io.Reader) (Configuration, error) {
	var cfg Configuration
	bs, err := io.ReadAll(r)
	if err != nil {
		return cfg, err
	}
	if len(bs) == 0 {
		cfg = New()
		return cfg, nil
	}
	if err := yaml.Unmarshal(bs, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse: %w", err)
	}
	cfg.OriginalVersion = cfg.Version
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	cfg.prepare()
	return cfg, nil
}

func (cfg *Configuration) WriteYAML(w io.Writer) error {
	bs, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(bs)
	return err
}

// prepare normalizes a freshly loaded or newly created Configuration:
// expand home-relative roots, reject duplicate sync_ids rather than
// silently picking one, and keep the group list in a stable order so
// repeated saves don't produce unrelated diffs.
func (cfg *Configuration) prepare() {
	if cfg.Groups == nil {
		cfg.Groups = []syncmodel.SyncGroup{}
	}

	seen := make(map[string]bool, len(cfg.Groups))
	out := cfg.Groups[:0:0]
	for _, g := range cfg.Groups {
		if path, err := osutil.ExpandTilde(g.Root); err == nil {
			g.Root = path
		} else {
			l.Warnln("config: expand root:", err)
		}

		if seen[g.SyncID] {
			l.Warnf("config: duplicate sync_id %q; dropping", g.SyncID)
			continue
		}
		seen[g.SyncID] = true

		if g.Mode > syncmodel.ModeDownloadOnly {
			g.Mode = syncmodel.ModeTwoWay
		}

		out = append(out, g)
	}
	cfg.Groups = out

	sort.Slice(cfg.Groups, func(i, j int) bool {
		return cfg.Groups[i].SyncID < cfg.Groups[j].SyncID
	})
}

// ChangeRequiresRestart reports whether replacing the running
// configuration from -> to touches anything a live engine can't pick
// up without being restarted: today that's any change to the group
// list itself, since adding or removing a SyncGroup means starting or
// tearing down its watch and session machinery.
func ChangeRequiresRestart(from, to Configuration) bool {
	return !reflect.DeepEqual(from.Groups, to.Groups)
}
