package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/urfave/cli"

	"github.com/meshsync/syncd/internal/engine"
	"github.com/meshsync/syncd/internal/peerid"
	"github.com/meshsync/syncd/internal/session"
	"github.com/meshsync/syncd/internal/syncmodel"
	"github.com/meshsync/syncd/internal/transport"
)

var addCommand = cli.Command{
	Name:      "add",
	Usage:     "Register a directory as a SyncGroup",
	ArgsUsage: "PATH",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "sync-id", Usage: "Sync group identifier (defaults to the absolute path)"},
		cli.StringFlag{Name: "mode", Value: "twoway", Usage: "twoway | upload | download"},
		cli.StringSliceFlag{Name: "exclude", Usage: "Glob pattern to exclude (repeatable)"},
	},
	Action: expectArgs(1, func(c *cli.Context) error {
		path := c.Args().Get(0)
		abs, err := absPath(path)
		if err != nil {
			return err
		}

		mode, err := parseMode(c.String("mode"))
		if err != nil {
			return err
		}

		syncID := c.String("sync-id")
		if syncID == "" {
			syncID = abs
		}

		d, err := openDevice(c.GlobalString("home"))
		if err != nil {
			return err
		}
		defer d.Close()

		e := engine.New(d.config, d.store, d.self, nil)
		if _, err := e.AddGroup(abs, syncID, mode, c.StringSlice("exclude")); err != nil {
			return err
		}
		fmt.Printf("Added sync group %q for %s\n", syncID, abs)
		return nil
	}),
}

var listCommand = cli.Command{
	Name:  "list",
	Usage: "List registered SyncGroups",
	Action: expectArgs(0, func(c *cli.Context) error {
		d, err := openDevice(c.GlobalString("home"))
		if err != nil {
			return err
		}
		defer d.Close()

		groups := d.config.Groups()
		if len(groups) == 0 {
			fmt.Println("No sync groups registered.")
			return nil
		}
		ids := make([]string, 0, len(groups))
		for id := range groups {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			g := groups[id]
			fmt.Printf("%s\t%s\t%s\n", g.SyncID, g.Root, g.Mode)
		}
		return nil
	}),
}

var statusCommand = cli.Command{
	Name:      "status",
	Usage:     "Show file/byte counts and pending work for a SyncGroup",
	ArgsUsage: "PATH",
	Action: expectArgs(1, func(c *cli.Context) error {
		d, err := openDevice(c.GlobalString("home"))
		if err != nil {
			return err
		}
		defer d.Close()

		g, h, err := findGroup(d, c.Args().Get(0))
		if err != nil {
			return err
		}

		e := engine.New(d.config, d.store, d.self, nil)
		stats, err := e.GetStats(h)
		if err != nil {
			return err
		}
		fmt.Printf("sync_id:           %s\n", g.SyncID)
		fmt.Printf("root:              %s\n", g.Root)
		fmt.Printf("mode:              %s\n", g.Mode)
		fmt.Printf("file_count:        %d\n", stats.FileCount)
		fmt.Printf("byte_count:        %d\n", stats.ByteCount)
		fmt.Printf("pending_uploads:   %d\n", stats.PendingUploads)
		fmt.Printf("pending_downloads: %d\n", stats.PendingDownloads)
		return nil
	}),
}

var conflictsCommand = cli.Command{
	Name:      "conflicts",
	Usage:     "List unresolved conflict copies for a SyncGroup",
	ArgsUsage: "PATH",
	Action: expectArgs(1, func(c *cli.Context) error {
		d, err := openDevice(c.GlobalString("home"))
		if err != nil {
			return err
		}
		defer d.Close()

		_, h, err := findGroup(d, c.Args().Get(0))
		if err != nil {
			return err
		}

		e := engine.New(d.config, d.store, d.self, nil)
		entries, err := e.ListConflicts(h)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No conflicts.")
			return nil
		}
		for _, ce := range entries {
			fmt.Printf("%s\t%d bytes\t%s\n", ce.Path, ce.Size, ce.Mtime.Format("2006-01-02T15:04:05"))
		}
		return nil
	}),
}

var removeCommand = cli.Command{
	Name:      "remove",
	Usage:     "Unregister a SyncGroup (its synced files are left in place)",
	ArgsUsage: "PATH",
	Action: expectArgs(1, func(c *cli.Context) error {
		d, err := openDevice(c.GlobalString("home"))
		if err != nil {
			return err
		}
		defer d.Close()

		_, h, err := findGroup(d, c.Args().Get(0))
		if err != nil {
			return err
		}

		e := engine.New(d.config, d.store, d.self, nil)
		if err := e.RemoveGroup(h); err != nil {
			return err
		}
		fmt.Println("Removed.")
		return nil
	}),
}

var daemonCommand = cli.Command{
	Name:  "daemon",
	Usage: "Run the scanner/journal/session supervisor for every registered SyncGroup",
	Action: expectArgs(0, func(c *cli.Context) error {
		d, err := openDevice(c.GlobalString("home"))
		if err != nil {
			return err
		}
		defer d.Close()

		e := engine.New(d.config, d.store, d.self, localDialer())
		e.Events = func(h engine.GroupHandle, ev session.Event) {
			switch ev.Kind {
			case session.ConflictCreated:
				l.Infof("%s: conflict on %s", h, ev.Path)
			case session.SyncFailed:
				l.Warnf("%s: sync with %s failed: %v", h, ev.Peer, ev.Err)
			}
		}

		ctx, cancel := context.WithCancel(context.Background())
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sig
			l.Infoln("daemon: received signal, shutting down")
			cancel()
		}()

		l.Infof("daemon: serving %d sync group(s) from %s", len(d.config.Groups()), c.GlobalString("home"))
		return e.Run(ctx)
	}),
}

// localDialer refuses every dial: without a discovery/transport
// collaborator wired in (spec 6.1 leaves that to an outer layer), the
// daemon still runs the scanner and journal for every group, just with
// no peer to reconcile against yet.
func localDialer() engine.Dialer {
	return func(ctx context.Context, peer peerid.ID) (transport.Peer, error) {
		return nil, fmt.Errorf("syncd: no transport configured for peer %s", peer)
	}
}

func expectArgs(n int, fn cli.ActionFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		if len(c.Args()) != n {
			return fmt.Errorf("expected %d argument(s), got %d", n, len(c.Args()))
		}
		return fn(c)
	}
}

func absPath(path string) (string, error) {
	return filepath.Abs(path)
}

func parseMode(s string) (syncmodel.Mode, error) {
	switch strings.ToLower(s) {
	case "twoway", "":
		return syncmodel.ModeTwoWay, nil
	case "upload":
		return syncmodel.ModeUploadOnly, nil
	case "download":
		return syncmodel.ModeDownloadOnly, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (want twoway, upload, or download)", s)
	}
}

// findGroup resolves a user-given filesystem path to its registered
// SyncGroup and engine handle. The CLI's PATH arguments name a directory,
// not a sync_id, so this matches against each group's Root.
func findGroup(d *device, path string) (syncmodel.SyncGroup, engine.GroupHandle, error) {
	abs, err := absPath(path)
	if err != nil {
		return syncmodel.SyncGroup{}, "", err
	}
	for _, g := range d.config.Groups() {
		if g.Root == abs {
			return g, engine.GroupHandle(g.SyncID), nil
		}
	}
	return syncmodel.SyncGroup{}, "", fmt.Errorf("no sync group registered for %s", abs)
}
