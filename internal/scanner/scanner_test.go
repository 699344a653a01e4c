package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/d4l3k/messagediff"

	"github.com/meshsync/syncd/internal/syncmodel"
)

func TestScanExcludesConflictArtifacts(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.txt", "hello")
	write(t, dir, "a.conflict.DEVICE1234567.1700000000000.txt", "stale")

	s := &Scanner{Root: dir, SyncID: "g1"}
	live, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := live["a.txt"]; !ok {
		t.Fatal("expected a.txt in live set")
	}
	for p := range live {
		if p != "a.txt" {
			t.Fatalf("conflict artifact leaked into live set: %q", p)
		}
	}
}

func TestScanRespectsExcludePatterns(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "keep.txt", "x")
	write(t, dir, "skip.log", "y")

	globs, err := Compile([]string{"*.log"})
	if err != nil {
		t.Fatal(err)
	}
	s := &Scanner{Root: dir, SyncID: "g1", Excludes: globs}
	live, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := live["skip.log"]; ok {
		t.Fatal("excluded pattern leaked into live set")
	}
	if _, ok := live["keep.txt"]; !ok {
		t.Fatal("expected keep.txt in live set")
	}
}

type fakeLookup struct {
	state syncmodel.FileState
	ok    bool
}

func (f fakeLookup) Get(syncID, path string) (syncmodel.FileState, bool, error) {
	return f.state, f.ok, nil
}

func TestScanReusesHashWhenUnchanged(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.txt", "hello")

	info, err := os.Stat(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}

	prior := syncmodel.FileMetadata{ContentHash: []byte("cached-hash"), Mtime: info.ModTime(), Size: uint64(info.Size())}
	s := &Scanner{Root: dir, SyncID: "g1", Lookup: fakeLookup{state: syncmodel.LiveState(prior), ok: true}}

	live, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if string(live["a.txt"].ContentHash) != "cached-hash" {
		t.Fatalf("expected cached hash to be reused, got %x", live["a.txt"].ContentHash)
	}
}

// TestScanNameSetMatchesExpected compares the full set of names Scan
// returns, not just a couple of spot-checked keys: a diff here points
// straight at which path leaked in or went missing, rather than a bare
// "not equal".
func TestScanNameSetMatchesExpected(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "keep.txt", "x")
	write(t, dir, "skip.log", "y")
	write(t, dir, "sub-keep.md", "z")

	globs, err := Compile([]string{"*.log"})
	if err != nil {
		t.Fatal(err)
	}
	s := &Scanner{Root: dir, SyncID: "g1", Excludes: globs}
	live, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}

	got := make(map[string]bool, len(live))
	for name := range live {
		got[name] = true
	}
	want := map[string]bool{"keep.txt": true, "sub-keep.md": true}

	if diff, equal := messagediff.PrettyDiff(want, got); !equal {
		t.Fatalf("scanned name set mismatch:\n%s", diff)
	}
}

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
