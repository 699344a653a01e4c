package config

import (
	"bytes"
	"testing"

	"github.com/meshsync/syncd/internal/syncmodel"
)

func TestNewConfigurationIsEmptyButValid(t *testing.T) {
	cfg := New()
	if cfg.Version != CurrentVersion {
		t.Fatalf("Version = %d, want %d", cfg.Version, CurrentVersion)
	}
	if cfg.Groups == nil {
		t.Fatal("Groups should never be nil after prepare")
	}
}

func TestReadYAMLRoundTrip(t *testing.T) {
	cfg := New()
	cfg.Groups = append(cfg.Groups, syncmodel.SyncGroup{
		SyncID:          "photos",
		Root:            "/home/alice/photos",
		ExcludePatterns: []string{"*.tmp"},
		Mode:            syncmodel.ModeTwoWay,
	})

	var buf bytes.Buffer
	if err := cfg.WriteYAML(&buf); err != nil {
		t.Fatal(err)
	}

	got, err := ReadYAML(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Groups) != 1 || got.Groups[0].SyncID != "photos" {
		t.Fatalf("got %+v", got.Groups)
	}
	if got.Groups[0].Mode != syncmodel.ModeTwoWay {
		t.Fatalf("Mode = %v, want TwoWay", got.Groups[0].Mode)
	}
}

func TestPrepareDropsDuplicateSyncID(t *testing.T) {
	cfg := Configuration{
		Groups: []syncmodel.SyncGroup{
			{SyncID: "a", Root: "/tmp/a"},
			{SyncID: "a", Root: "/tmp/a2"},
			{SyncID: "b", Root: "/tmp/b"},
		},
	}
	cfg.prepare()
	if len(cfg.Groups) != 2 {
		t.Fatalf("got %d groups, want 2: %+v", len(cfg.Groups), cfg.Groups)
	}
}

func TestPrepareDefaultsMode(t *testing.T) {
	cfg := Configuration{Groups: []syncmodel.SyncGroup{{SyncID: "a", Root: "/tmp/a"}}}
	cfg.prepare()
	if cfg.Groups[0].Mode != syncmodel.ModeTwoWay {
		t.Fatalf("Mode = %v, want TwoWay", cfg.Groups[0].Mode)
	}
}

func TestChangeRequiresRestart(t *testing.T) {
	a := New()
	b := New()
	if ChangeRequiresRestart(a, b) {
		t.Fatal("identical empty configs should not require restart")
	}

	b.Groups = append(b.Groups, syncmodel.SyncGroup{SyncID: "x", Root: "/tmp/x"})
	if !ChangeRequiresRestart(a, b) {
		t.Fatal("adding a group should require restart")
	}
}
