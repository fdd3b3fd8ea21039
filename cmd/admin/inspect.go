package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"warband.ai/internal/persistence/snapshot"
)

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	realmID := fs.String("realm", "", "realm id (used when -snapshot is not given)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to the realm's latest)")
	full := fs.Bool("full", false, "dump the whole snapshot as JSON")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*realmID) == "" {
			fmt.Fprintln(os.Stderr, "missing -snapshot or -realm")
			os.Exit(2)
		}
		path = latestSnapshot(filepath.Join(*dataDir, "realms", *realmID))
		if path == "" {
			fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run the server until it writes one")
			os.Exit(2)
		}
	}

	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	if *full {
		printJSON(snap)
		return
	}

	taken := time.UnixMilli(snap.TakenAtMS)
	fmt.Printf("%s: v%d realm=%s tick=%s taken=%s (%s)\n",
		filepath.Base(path), snap.Header.Version, snap.Header.RealmID,
		humanize.Comma(int64(snap.Header.Tick)), taken.Format(time.RFC3339), humanize.Time(taken))
	fmt.Printf("params: tick_ms=%d workers=%d cell=%.0fy radius=%.0fy band_cap=%d\n",
		snap.Params.TickMS, snap.Params.Workers, snap.Params.GridCellSizeYards,
		snap.Params.WorkingRadiusYards, snap.Params.QueueBandCapacity)
	fmt.Printf("catalogs: kits=%s defensives=%s dispels=%s rotations=%s\n",
		shortDigest(snap.Digests.Kits), shortDigest(snap.Digests.Defensives),
		shortDigest(snap.Digests.Dispels), shortDigest(snap.Digests.Rotations))
	fmt.Printf("agents=%d groups=%d hubs=%d resolver_sites=%d\n",
		len(snap.Agents), len(snap.Groups), len(snap.Hubs), len(snap.Resolver))

	c := snap.Counters
	fmt.Printf("counters: rounds=%s skipped=%s stepped=%s pushed=%s dropped=%s last_round=%.1fms\n",
		humanize.Comma(int64(c.RoundsRun)), humanize.Comma(int64(c.RoundsSkipped)),
		humanize.Comma(int64(c.LastStepped)), humanize.Comma(int64(c.IntentsPushed)),
		humanize.Comma(int64(c.IntentsDropped)), c.LastRoundMS)
	fmt.Printf("queue: emergency=%d combat=%d normal=%d low=%d\n",
		snap.Queue.Emergency, snap.Queue.Combat, snap.Queue.Normal, snap.Queue.Low)

	w := snap.Window
	fmt.Printf("window(%d ticks): delivered=%s dup=%s rejected=%s\n",
		w.Ticks, humanize.Comma(int64(w.IntentsDelivered)),
		humanize.Comma(int64(w.IntentDuplicates)), humanize.Comma(int64(w.IntentsRejected)))
	fmt.Printf("  interrupts=%d/%d/%d dispels=%d/%d/%d externals=%d/%d/%d (fulfilled/missed/expired)\n",
		w.InterruptsFulfilled, w.InterruptsMissed, w.InterruptsExpired,
		w.DispelsFulfilled, w.DispelsMissed, w.DispelsExpired,
		w.ExternalsFulfilled, w.ExternalsMissed, w.ExternalsExpired)
}

func latestSnapshot(realmDir string) string {
	dir := filepath.Join(realmDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func shortDigest(d string) string {
	if d == "" {
		return "-"
	}
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
