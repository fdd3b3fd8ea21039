package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"warband.ai/internal/persistence/snapshot"
	"warband.ai/internal/protocol"
	"warband.ai/internal/sim/actionq"
)

func main() {
	var (
		runDir   = flag.String("run", "", "run directory containing ticks/, intents/, outcomes/")
		snapPath = flag.String("snapshot", "", "path to .snap.zst (optional)")
		fromTick = flag.Uint64("from_tick", 0, "start from tick (inclusive, optional)")
		toTick   = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		topN     = flag.Int("top", 10, "spells to list in the cast leaderboard")
	)
	flag.Parse()

	if *runDir == "" && *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -run or -snapshot")
		os.Exit(2)
	}

	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d realm=%s tick=%s agents=%d groups=%d hubs=%d resolver_sites=%d\n",
			snap.Header.Version, snap.Header.RealmID, humanize.Comma(int64(snap.Header.Tick)),
			len(snap.Agents), len(snap.Groups), len(snap.Hubs), len(snap.Resolver))
		fmt.Printf("catalogs kits=%s defensives=%s dispels=%s rotations=%s\n",
			shortDigest(snap.Digests.Kits), shortDigest(snap.Digests.Defensives),
			shortDigest(snap.Digests.Dispels), shortDigest(snap.Digests.Rotations))
	}

	if *runDir == "" {
		return
	}

	rep := newReport(*fromTick, *toTick)
	for _, stream := range []struct {
		sub   string
		apply func([]byte) error
	}{
		{"ticks", rep.addTick},
		{"intents", rep.addIntent},
		{"outcomes", rep.addOutcome},
	} {
		files, err := listSegments(filepath.Join(*runDir, stream.sub), stream.sub)
		if err != nil {
			fmt.Fprintln(os.Stderr, "list", stream.sub+":", err)
			os.Exit(1)
		}
		for _, path := range files {
			if err := scanSegment(path, stream.apply); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
		}
	}

	rep.print(*runDir, *topN)
}

func listSegments(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func scanSegment(path string, apply func([]byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if err := apply(sc.Bytes()); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

type spellCount struct {
	Spell uint32
	N     int64
}

type report struct {
	fromTick, toTick uint64

	ticks       int64
	firstTick   uint64
	lastTick    uint64
	firstAtMS   int64
	lastAtMS    int64
	delivered   int64
	duplicates  int64
	bands       [4]int64
	acks        [4]int64
	skipped     int64
	peakAgents  int

	intents     int64
	intentKinds map[string]int64
	casts       map[uint32]int64
	rejected    int64

	outcomes map[string]map[string]int64
}

func newReport(fromTick, toTick uint64) *report {
	return &report{
		fromTick:    fromTick,
		toTick:      toTick,
		intentKinds: map[string]int64{},
		casts:       map[uint32]int64{},
		outcomes:    map[string]map[string]int64{},
	}
}

func (r *report) inRange(tick uint64) bool {
	if tick < r.fromTick {
		return false
	}
	if r.toTick != 0 && tick > r.toTick {
		return false
	}
	return true
}

func (r *report) addTick(line []byte) error {
	var rec protocol.TickRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return err
	}
	if !r.inRange(rec.Tick) {
		return nil
	}
	if r.ticks == 0 || rec.Tick < r.firstTick {
		r.firstTick = rec.Tick
		r.firstAtMS = rec.AtMS
	}
	if rec.Tick > r.lastTick {
		r.lastTick = rec.Tick
		r.lastAtMS = rec.AtMS
	}
	r.ticks++
	r.delivered += int64(rec.Delivered)
	r.duplicates += int64(rec.Duplicates)
	for i := range rec.Bands {
		r.bands[i] += int64(rec.Bands[i])
	}
	for i := range rec.Acks {
		r.acks[i] += int64(rec.Acks[i])
	}
	if rec.Skipped {
		r.skipped++
	}
	if rec.Agents > r.peakAgents {
		r.peakAgents = rec.Agents
	}
	return nil
}

func (r *report) addIntent(line []byte) error {
	var rec protocol.IntentRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return err
	}
	if !r.inRange(rec.Tick) {
		return nil
	}
	r.intents++
	r.intentKinds[rec.Kind]++
	if rec.Ack != "accepted" {
		r.rejected++
		return nil
	}
	if rec.Kind == "spell_cast" && rec.Spell != 0 {
		r.casts[rec.Spell]++
	}
	return nil
}

func (r *report) addOutcome(line []byte) error {
	var rec protocol.OutcomeRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return err
	}
	if !r.inRange(rec.Tick) {
		return nil
	}
	byResult := r.outcomes[rec.Kind]
	if byResult == nil {
		byResult = map[string]int64{}
		r.outcomes[rec.Kind] = byResult
	}
	byResult[rec.Result]++
	return nil
}

func (r *report) print(runDir string, topN int) {
	fmt.Printf("report %s run=%s\n", uuid.NewString(), runDir)
	if r.ticks == 0 {
		fmt.Println("no tick records in range")
		return
	}

	wall := time.Duration(r.lastAtMS-r.firstAtMS) * time.Millisecond
	fmt.Printf("ticks: %s (tick %d..%d, %s wall) agents_peak=%d rounds_skipped=%s\n",
		humanize.Comma(r.ticks), r.firstTick, r.lastTick, wall.Truncate(time.Second),
		r.peakAgents, humanize.Comma(r.skipped))

	fmt.Printf("delivered: %s (dup %s)", humanize.Comma(r.delivered), humanize.Comma(r.duplicates))
	for i, n := range r.bands {
		fmt.Printf(" %s=%s", actionq.Band(i).String(), humanize.Comma(n))
	}
	fmt.Println()

	fmt.Print("acks:")
	for i, name := range [4]string{"accepted", "duplicate", "unknown_agent", "invalid_target"} {
		fmt.Printf(" %s=%s", name, humanize.Comma(r.acks[i]))
	}
	fmt.Println()

	if r.intents > 0 {
		kinds := make([]string, 0, len(r.intentKinds))
		for k := range r.intentKinds {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		fmt.Printf("intents: %s logged, %s rejected;", humanize.Comma(r.intents), humanize.Comma(r.rejected))
		for _, k := range kinds {
			fmt.Printf(" %s=%s", k, humanize.Comma(r.intentKinds[k]))
		}
		fmt.Println()
	}

	if len(r.casts) > 0 {
		top := make([]spellCount, 0, len(r.casts))
		for spell, n := range r.casts {
			top = append(top, spellCount{Spell: spell, N: n})
		}
		sort.Slice(top, func(i, j int) bool {
			if top[i].N != top[j].N {
				return top[i].N > top[j].N
			}
			return top[i].Spell < top[j].Spell
		})
		if len(top) > topN {
			top = top[:topN]
		}
		fmt.Print("casts:")
		for _, sc := range top {
			fmt.Printf(" %d x%s", sc.Spell, humanize.Comma(sc.N))
		}
		fmt.Println()
	}

	kinds := make([]string, 0, len(r.outcomes))
	for k := range r.outcomes {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		byResult := r.outcomes[k]
		total := int64(0)
		for _, n := range byResult {
			total += n
		}
		fulfilled := byResult["FULFILLED"]
		rate := 0.0
		if total > 0 {
			rate = 100 * float64(fulfilled) / float64(total)
		}
		fmt.Printf("%s: fulfilled=%s missed=%s expired=%s (%.1f%% fulfilled)\n",
			k, humanize.Comma(fulfilled), humanize.Comma(byResult["MISSED"]),
			humanize.Comma(byResult["EXPIRED"]), rate)
	}
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
