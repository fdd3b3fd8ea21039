// Package botstest drives a real engine against the in-memory arena host,
// end to end: the arena steps and publishes snapshots, the engine decides,
// and the decisions land back in the arena as live casts, moves, and
// interactions. The harness touches only exported surfaces on both sides,
// so these tests double as a contract check across the host bridge.
package botstest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/arena"
	"warband.ai/internal/sim/bots"
	"warband.ai/internal/sim/catalogs"
	"warband.ai/internal/sim/orders"
	"warband.ai/internal/sim/spatial"
)

const tickMS = 50

// IntentRecord is one delivered intent with the host's verdict.
type IntentRecord struct {
	Tick   uint64
	Intent hostbridge.ActionIntent
	Ack    hostbridge.Ack
}

// Harness couples one engine to one arena and steps them in lockstep on
// the calling goroutine. Every record slice is appended on that same
// goroutine, so tests read them without locking once RunTicks returns.
type Harness struct {
	T *testing.T
	A *arena.Arena
	E *bots.Engine

	tick uint64

	// Batch is the snapshot staged for the most recent boundary.
	Batch spatial.Batch

	Intents  []IntentRecord
	Outcomes []orders.Outcome
	Ticks    []bots.TickLogEntry
	Damage   []arena.DamageTaken
	Kills    []spatial.EID
}

// NewHarness round-trips the scenario through the real loader, stands up
// the arena, and binds a fresh engine to it. A single worker keeps agent
// stepping order stable across runs.
func NewHarness(t *testing.T, scn *arena.Scenario, cats *catalogs.Catalogs, tune func(*bots.Config)) *Harness {
	t.Helper()

	raw, err := json.MarshalIndent(scn, "", "  ")
	if err != nil {
		t.Fatalf("marshal scenario: %v", err)
	}
	path := filepath.Join(t.TempDir(), "scenario.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	loaded, err := arena.LoadScenario(path)
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}

	a := arena.New(loaded, 1, tickMS)

	cfg := bots.DefaultConfig()
	cfg.TickMS = tickMS
	cfg.Workers = 1
	if tune != nil {
		tune(&cfg)
	}
	e, err := bots.New(cfg, a, cats)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	h := &Harness{T: t, A: a, E: e}
	e.SetTickLogger(h)
	e.SetIntentLogger(h)
	e.SetOutcomeLogger(h)
	return h
}

func (h *Harness) WriteTick(entry bots.TickLogEntry) error {
	h.Ticks = append(h.Ticks, entry)
	return nil
}

func (h *Harness) WriteIntent(tick uint64, _ int64, it hostbridge.ActionIntent, ack hostbridge.Ack) error {
	h.Intents = append(h.Intents, IntentRecord{Tick: tick, Intent: it, Ack: ack})
	return nil
}

func (h *Harness) WriteOutcome(o orders.Outcome) error {
	h.Outcomes = append(h.Outcomes, o)
	return nil
}

// BotSpec describes one bot registered on both sides of the bridge under
// the same eid.
type BotSpec struct {
	EID       spatial.EID
	Name      string
	Class     spatial.ClassID
	Spec      spatial.SpecID
	Group     uint64
	Pos       spatial.Position
	MaxHealth int64
	Known     map[uint32]bool
	Quests    []uint32
}

// AddBot gives the agent a body in the arena and a mind in the engine.
// Both sides must agree on max health or the predictive defensive logic
// drifts, so the harness sets it once here.
func (h *Harness) AddBot(s BotSpec) {
	h.T.Helper()
	if s.MaxHealth <= 0 {
		s.MaxHealth = 5000
	}
	kit, ok := h.E.Catalogs().Kits.ByClass[s.Class]
	if !ok {
		h.T.Fatalf("no kit for class %d", s.Class)
	}
	if err := h.A.AddAgent(arena.AgentSeed{
		EID:       s.EID,
		Name:      s.Name,
		Class:     s.Class,
		Spec:      s.Spec,
		Role:      kit.RoleFor(s.Spec),
		Group:     s.Group,
		Pos:       s.Pos,
		MaxHealth: s.MaxHealth,
		Quests:    s.Quests,
	}); err != nil {
		h.T.Fatalf("arena agent %s: %v", s.Name, err)
	}
	if err := h.E.AddAgent(bots.AgentConfig{
		EID:         s.EID,
		Name:        s.Name,
		Class:       s.Class,
		Spec:        s.Spec,
		Level:       60,
		FactionMask: 0x2,
		Map:         h.A.Scenario().Map,
		MaxHealth:   s.MaxHealth,
		Known:       s.Known,
		QuestLog:    s.Quests,
	}); err != nil {
		h.T.Fatalf("engine agent %s: %v", s.Name, err)
	}
}

// RunTicks advances the coupled simulation. Each tick the arena
// integrates first, its events reach the engine, the fresh snapshot is
// staged, and the boundary delivers the previous round's intents before
// running the next decision round inline.
func (h *Harness) RunTicks(n int) {
	h.T.Helper()
	mapID := h.A.Scenario().Map
	for i := 0; i < n; i++ {
		h.tick++
		h.A.Step()

		ev := h.A.TakeEvents()
		for _, d := range ev.Damage {
			h.E.OnDamageTaken(d.Agent, bots.DamageEvent{
				Attacker:   d.Attacker,
				Amount:     d.Amount,
				SchoolMask: d.SchoolMask,
				Melee:      d.Melee,
				AtMS:       d.AtMS,
			})
		}
		for _, c := range ev.Combat {
			h.E.OnCombatChange(c.Agent, c.InCombat)
		}
		h.Damage = append(h.Damage, ev.Damage...)
		h.Kills = append(h.Kills, ev.Kills...)

		// Two builds: staging hands the first batch to the grid, the
		// second stays readable for assertions.
		h.E.StageMap(mapID, h.A.BuildBatch(h.tick))
		h.Batch = h.A.BuildBatch(h.tick)

		h.E.OnHostTickSync(h.tick)
	}
}

// Player returns the named agent from the latest batch.
func (h *Harness) Player(eid spatial.EID) (spatial.PlayerSnapshot, bool) {
	for _, p := range h.Batch.Players {
		if p.EID == eid {
			return p, true
		}
	}
	return spatial.PlayerSnapshot{}, false
}

// Creatures returns the latest snapshots for one creature entry.
func (h *Harness) Creatures(entry uint32) []spatial.CreatureSnapshot {
	var out []spatial.CreatureSnapshot
	for _, c := range h.Batch.Creatures {
		if c.Entry == entry {
			out = append(out, c)
		}
	}
	return out
}

// AcceptedCasts filters the intent log down to accepted casts of one
// spell, in delivery order.
func (h *Harness) AcceptedCasts(spell uint32) []IntentRecord {
	var out []IntentRecord
	for _, r := range h.Intents {
		if r.Intent.Kind == hostbridge.IntentSpellCast && r.Intent.Spell == spell && r.Ack == hostbridge.AckAccepted {
			out = append(out, r)
		}
	}
	return out
}

// AcceptedInteracts filters the intent log down to accepted interactions.
func (h *Harness) AcceptedInteracts() []IntentRecord {
	var out []IntentRecord
	for _, r := range h.Intents {
		if r.Intent.Kind == hostbridge.IntentInteract && r.Ack == hostbridge.AckAccepted {
			out = append(out, r)
		}
	}
	return out
}

// OutcomesOf filters recorded coordinator outcomes by kind and result.
func (h *Harness) OutcomesOf(kind orders.AssignmentKind, res orders.Result) []orders.Outcome {
	var out []orders.Outcome
	for _, o := range h.Outcomes {
		if o.Kind == kind && o.Result == res {
			out = append(out, o)
		}
	}
	return out
}

// Progress reads one quest objective counter straight from the arena.
func (h *Harness) Progress(agent spatial.EID, quest uint32, objective int) uint32 {
	return h.A.ObjectiveProgress(agent, quest, objective)
}
