// Package snapshot captures the engine's diagnostic state at one tick
// boundary to a compressed file: agents, groups, hubs, resolver
// counters, and the rolling stats window. A capture is an operator
// artifact for postmortems and offline analysis, not a resume point;
// the game host stays authoritative for world state.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"warband.ai/internal/sim/bots"
)

type Header struct {
	Version int    `json:"version"`
	RealmID string `json:"realm_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	TakenAtMS int64 `json:"taken_at_ms"`

	Params  ParamsV1  `json:"params"`
	Digests DigestsV1 `json:"digests"`

	Agents   []AgentV1 `json:"agents"`
	Groups   []GroupV1 `json:"groups"`
	Hubs     []HubV1   `json:"hubs,omitempty"`
	Resolver []SiteV1  `json:"resolver,omitempty"`

	Counters CountersV1 `json:"counters"`
	Queue    QueueV1    `json:"queue"`
	Window   WindowV1   `json:"window"`
}

// ParamsV1 pins the tuning the engine ran with, so a capture is
// interpretable without the config files that produced it.
type ParamsV1 struct {
	TickMS             int64   `json:"tick_ms"`
	Workers            int     `json:"workers"`
	GridCellSizeYards  float32 `json:"grid_cell_size_yards"`
	WorkingRadiusYards float32 `json:"working_radius_yards"`
	QueueBandCapacity  int     `json:"queue_band_capacity"`
}

type DigestsV1 struct {
	Kits       string `json:"kits"`
	Defensives string `json:"defensives"`
	Dispels    string `json:"dispels"`
	Rotations  string `json:"rotations"`
}

type AgentV1 struct {
	EID          uint64 `json:"eid"`
	Name         string `json:"name"`
	Class        uint16 `json:"class"`
	Role         string `json:"role"`
	InCombat     bool   `json:"in_combat"`
	PredictedPct uint32 `json:"predicted_pct"`
	Target       uint64 `json:"target,omitempty"`
	Strategy     string `json:"strategy,omitempty"`
	Steps        uint64 `json:"steps"`
}

type GroupV1 struct {
	Group      uint64 `json:"group"`
	Members    int    `json:"members"`
	MainTank   uint64 `json:"main_tank,omitempty"`
	MainAssist uint64 `json:"main_assist,omitempty"`
	Interrupts int    `json:"interrupts"`
	Dispels    int    `json:"dispels"`
	Externals  int    `json:"externals"`
}

type HubV1 struct {
	ID          int      `json:"id"`
	Map         uint32   `json:"map"`
	X           float32  `json:"x"`
	Y           float32  `json:"y"`
	Z           float32  `json:"z"`
	Radius      float32  `json:"radius"`
	LevelMin    uint8    `json:"level_min"`
	LevelMax    uint8    `json:"level_max"`
	FactionMask uint32   `json:"faction_mask,omitempty"`
	Quests      []uint32 `json:"quests,omitempty"`
}

type SiteV1 struct {
	Site string `json:"site"`
	OK   uint64 `json:"ok"`
	Fail uint64 `json:"fail"`
}

type CountersV1 struct {
	RoundsRun      uint64  `json:"rounds_run"`
	RoundsSkipped  uint64  `json:"rounds_skipped,omitempty"`
	LastRoundMS    float64 `json:"last_round_ms"`
	LastStepped    uint64  `json:"last_stepped"`
	IntentsPushed  uint64  `json:"intents_pushed"`
	IntentsDropped uint64  `json:"intents_dropped,omitempty"`
}

type QueueV1 struct {
	Emergency int `json:"emergency"`
	Combat    int `json:"combat"`
	Normal    int `json:"normal"`
	Low       int `json:"low"`
}

type WindowV1 struct {
	Ticks uint64 `json:"ticks"`

	IntentsDelivered int `json:"intents_delivered"`
	IntentDuplicates int `json:"intent_duplicates,omitempty"`
	IntentsRejected  int `json:"intents_rejected,omitempty"`

	InterruptsFulfilled int `json:"interrupts_fulfilled,omitempty"`
	InterruptsMissed    int `json:"interrupts_missed,omitempty"`
	InterruptsExpired   int `json:"interrupts_expired,omitempty"`
	DispelsFulfilled    int `json:"dispels_fulfilled,omitempty"`
	DispelsMissed       int `json:"dispels_missed,omitempty"`
	DispelsExpired      int `json:"dispels_expired,omitempty"`
	ExternalsFulfilled  int `json:"externals_fulfilled,omitempty"`
	ExternalsMissed     int `json:"externals_missed,omitempty"`
	ExternalsExpired    int `json:"externals_expired,omitempty"`
}

// Capture assembles a SnapshotV1 from the engine's advertised state.
// Safe from any goroutine.
func Capture(e *bots.Engine, realmID string) SnapshotV1 {
	d := e.Diagnostics()
	m := e.Metrics()
	cfg := e.Config()
	cats := e.Catalogs()

	snap := SnapshotV1{
		Header:    Header{Version: 1, RealmID: realmID, Tick: d.Tick},
		TakenAtMS: time.Now().UnixMilli(),
		Params: ParamsV1{
			TickMS:             cfg.TickMS,
			Workers:            cfg.Workers,
			GridCellSizeYards:  cfg.GridCellSizeYards,
			WorkingRadiusYards: cfg.WorkingRadiusYards,
			QueueBandCapacity:  cfg.QueueBandCapacity,
		},
		Counters: CountersV1{
			RoundsRun:      m.RoundsRun,
			RoundsSkipped:  m.RoundsSkipped,
			LastRoundMS:    m.LastRoundMS,
			LastStepped:    m.LastStepped,
			IntentsPushed:  m.IntentsPushed,
			IntentsDropped: m.IntentsDropped,
		},
		Queue: QueueV1{
			Emergency: m.QueueDepths.Emergency,
			Combat:    m.QueueDepths.Combat,
			Normal:    m.QueueDepths.Normal,
			Low:       m.QueueDepths.Low,
		},
		Window: WindowV1{
			Ticks:               m.StatsWindowTicks,
			IntentsDelivered:    m.StatsWindow.IntentsDelivered,
			IntentDuplicates:    m.StatsWindow.IntentDuplicates,
			IntentsRejected:     m.StatsWindow.IntentsRejected,
			InterruptsFulfilled: m.StatsWindow.InterruptsFulfilled,
			InterruptsMissed:    m.StatsWindow.InterruptsMissed,
			InterruptsExpired:   m.StatsWindow.InterruptsExpired,
			DispelsFulfilled:    m.StatsWindow.DispelsFulfilled,
			DispelsMissed:       m.StatsWindow.DispelsMissed,
			DispelsExpired:      m.StatsWindow.DispelsExpired,
			ExternalsFulfilled:  m.StatsWindow.ExternalsFulfilled,
			ExternalsMissed:     m.StatsWindow.ExternalsMissed,
			ExternalsExpired:    m.StatsWindow.ExternalsExpired,
		},
	}
	if cats != nil {
		snap.Digests = DigestsV1{
			Kits:       cats.Kits.Digest,
			Defensives: cats.Defensives.Digest,
			Dispels:    cats.Dispels.Digest,
			Rotations:  cats.Rotations.Digest,
		}
	}

	snap.Agents = make([]AgentV1, 0, len(d.Agents))
	for _, a := range d.Agents {
		snap.Agents = append(snap.Agents, AgentV1{
			EID:          uint64(a.EID),
			Name:         a.Name,
			Class:        a.Class,
			Role:         a.Role,
			InCombat:     a.InCombat,
			PredictedPct: a.PredictedPct,
			Target:       uint64(a.Target),
			Strategy:     a.Strategy,
			Steps:        a.Steps,
		})
	}
	snap.Groups = make([]GroupV1, 0, len(d.Groups))
	for _, g := range d.Groups {
		snap.Groups = append(snap.Groups, GroupV1{
			Group:      g.Group,
			Members:    g.Members,
			MainTank:   uint64(g.MainTank),
			MainAssist: uint64(g.MainAssist),
			Interrupts: g.Interrupts,
			Dispels:    g.Dispels,
			Externals:  g.Externals,
		})
	}
	snap.Resolver = make([]SiteV1, 0, len(d.Resolver))
	for _, s := range d.Resolver {
		snap.Resolver = append(snap.Resolver, SiteV1{Site: s.Site, OK: s.OK, Fail: s.Fail})
	}
	for _, h := range e.Hubs().Hubs() {
		snap.Hubs = append(snap.Hubs, HubV1{
			ID:          h.ID,
			Map:         h.Map,
			X:           h.Center.X,
			Y:           h.Center.Y,
			Z:           h.Center.Z,
			Radius:      h.Radius,
			LevelMin:    h.LevelMin,
			LevelMax:    h.LevelMax,
			FactionMask: h.FactionMask,
			Quests:      h.Quests,
		})
	}
	return snap
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line first; the gob body repeats it for integrity checks.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}
