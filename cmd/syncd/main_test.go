package main

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/urfave/cli"
)

func TestByNameSortsCommandsAlphabetically(t *testing.T) {
	cmds := []cli.Command{{Name: "status"}, {Name: "add"}, {Name: "list"}}
	want := []string{"add", "list", "status"}

	sort.Sort(byName(cmds))
	for i, name := range want {
		if cmds[i].Name != name {
			t.Errorf("sorted[%d] = %q, want %q", i, cmds[i].Name, name)
		}
	}
}

func TestLoadOrCreatePeerIDPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peerid")

	first, err := loadOrCreatePeerID(path)
	if err != nil {
		t.Fatalf("loadOrCreatePeerID (create): %v", err)
	}

	second, err := loadOrCreatePeerID(path)
	if err != nil {
		t.Fatalf("loadOrCreatePeerID (reload): %v", err)
	}
	if first != second {
		t.Errorf("peer id changed across reload: %v != %v", first, second)
	}
}

func TestOpenDeviceCreatesHomeDir(t *testing.T) {
	home := filepath.Join(t.TempDir(), "nested", "home")

	d, err := openDevice(home)
	if err != nil {
		t.Fatalf("openDevice: %v", err)
	}
	defer d.Close()

	if d.self.String() == "" {
		t.Error("openDevice: device identity is empty")
	}
	if len(d.config.Groups()) != 0 {
		t.Errorf("openDevice: fresh registry has %d groups, want 0", len(d.config.Groups()))
	}
}
