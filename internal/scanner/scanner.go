// Package scanner implements the Scanner (C3): a filesystem walk that
// produces the live_now set spec 4.3 describes, reusing a path's stored
// digest whenever its mtime and size haven't moved rather than rehashing
// unconditionally.
package scanner

import (
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gobwas/glob"
	"golang.org/x/text/unicode/norm"

	"github.com/meshsync/syncd/internal/conflict"
	"github.com/meshsync/syncd/internal/syncmodel"
)

// StateLookup is the subset of the store the scanner needs: "what did we
// last record for this path", so it can skip rehashing an unchanged
// file. A nil StateLookup is valid and makes every file get rehashed.
type StateLookup interface {
	Get(syncID, path string) (syncmodel.FileState, bool, error)
}

type Scanner struct {
	Root     string
	SyncID   string
	Excludes []glob.Glob
	Lookup   StateLookup
}

// Compile turns the SyncGroup's raw glob patterns into matchers once, so
// Scan doesn't recompile them on every walk.
func Compile(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, err
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// Scan walks Root and returns live_now: every non-excluded, non-conflict-
// artifact path found, mapped to its current FileMetadata (spec 4.3).
// Directories are included with IsDirectory set and no content hash.
func (s *Scanner) Scan() (map[string]syncmodel.FileMetadata, error) {
	out := make(map[string]syncmodel.FileMetadata)

	err := filepath.Walk(s.Root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == s.Root {
			return nil
		}
		rel, err := filepath.Rel(s.Root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if conflict.IsArtifact(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if s.excluded(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel = norm.NFC.String(rel)

		if info.IsDir() {
			out[rel] = syncmodel.FileMetadata{Mtime: info.ModTime(), IsDirectory: true}
			return nil
		}

		meta, err := s.fileMetadata(p, rel, info)
		if err != nil {
			return err
		}
		out[rel] = meta
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Scanner) excluded(rel string) bool {
	for _, g := range s.Excludes {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func (s *Scanner) fileMetadata(abs, rel string, info os.FileInfo) (syncmodel.FileMetadata, error) {
	size := uint64(info.Size())
	mtime := info.ModTime()

	if s.Lookup != nil {
		if prior, ok, err := s.Lookup.Get(s.SyncID, rel); err == nil && ok && prior.IsLive() {
			if prior.Live.Size == size && sameInstant(prior.Live.Mtime, mtime) {
				return syncmodel.FileMetadata{
					ContentHash: prior.Live.ContentHash,
					Mtime:       mtime,
					Size:        size,
					VV:          prior.Live.VV,
				}, nil
			}
		}
	}

	hash, err := hashFile(abs)
	if err != nil {
		return syncmodel.FileMetadata{}, err
	}
	return syncmodel.FileMetadata{ContentHash: hash, Mtime: mtime, Size: size}, nil
}

// sameInstant compares mtimes at whole-millisecond resolution: many
// filesystems don't preserve sub-millisecond mtime precision across a
// write, and the decision engine's own tolerances operate in
// milliseconds (spec 4.4).
func sameInstant(a, b time.Time) bool {
	return a.UnixMilli() == b.UnixMilli()
}

func hashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
