// Command syncd is the CLI surface of the sync engine (spec 6.5): manage
// the local SyncGroup registry and inspect its state. Long-running
// reconciliation itself happens under "syncd daemon"; the other
// subcommands work directly against the on-disk store and registry so
// they're usable whether or not a daemon is currently running.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/urfave/cli"

	_ "github.com/meshsync/syncd/internal/automaxprocs"
	"github.com/meshsync/syncd/internal/config"
	"github.com/meshsync/syncd/internal/logger"
	"github.com/meshsync/syncd/internal/peerid"
	"github.com/meshsync/syncd/internal/store"
)

var l = logger.DefaultLogger

func main() {
	app := cli.NewApp()
	app.Name = "syncd"
	app.Usage = "Serverless LAN file-synchronization engine"
	app.Version = "0.1.0"
	app.HideHelp = true
	app.Compiled = time.Now()

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "home",
			Value:  defaultHome(),
			Usage:  "Data directory for the registry, store, and device identity",
			EnvVar: "SYNCD_HOME",
		},
	}

	app.Commands = []cli.Command{
		addCommand,
		listCommand,
		statusCommand,
		conflictsCommand,
		removeCommand,
		daemonCommand,
	}
	sort.Sort(byName(app.Commands))

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type byName []cli.Command

func (a byName) Len() int           { return len(a) }
func (a byName) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byName) Less(i, j int) bool { return a[i].Name < a[j].Name }

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".syncd"
	}
	return filepath.Join(home, ".syncd")
}

// device opens the store and config registry under --home, creating them
// on first use, and returns the local device identity, persisted at
// <home>/peerid the first time syncd runs anywhere (spec 6.4).
type device struct {
	store  *store.Store
	config *config.Wrapper
	self   peerid.ID
}

func openDevice(homeDir string) (*device, error) {
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return nil, err
	}

	self, err := loadOrCreatePeerID(filepath.Join(homeDir, "peerid"))
	if err != nil {
		return nil, fmt.Errorf("device identity: %w", err)
	}

	ldb, err := leveldb.OpenFile(filepath.Join(homeDir, "db"), nil)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	st, err := store.New(ldb)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	cfg, err := config.Load(filepath.Join(homeDir, "groups.yaml"))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load registry: %w", err)
	}

	return &device{store: st, config: cfg, self: self}, nil
}

func (d *device) Close() {
	d.config.Stop()
	d.store.Close()
}

func loadOrCreatePeerID(path string) (peerid.ID, error) {
	if bs, err := os.ReadFile(path); err == nil {
		return peerid.FromString(string(bs))
	} else if !os.IsNotExist(err) {
		return peerid.ID{}, err
	}

	id, err := peerid.Random()
	if err != nil {
		return peerid.ID{}, err
	}
	if err := os.WriteFile(path, []byte(id.String()), 0o600); err != nil {
		return peerid.ID{}, err
	}
	return id, nil
}
