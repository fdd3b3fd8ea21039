package bots

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/catalogs"
	"warband.ai/internal/sim/spatial"
)

// Fixture spell ids, loosely modeled on familiar class kits.
const (
	spellMortalStrike = 12294
	spellExecute      = 5308
	spellSlam         = 1464
	spellRend         = 772
	spellPummel       = 6552
	spellBerserkRage  = 18499
	spellShieldWall   = 871
	spellShieldBlock  = 2565
	spellSpellReflect = 23920

	spellFlashHeal = 2061
	spellRenew     = 139
	spellPrayer    = 596
	spellSmite     = 585
	spellDispel    = 527
	spellPurge     = 528
	spellPainSup   = 33206

	spellFrostbolt = 116  // hostile interruptible cast
	spellEnrage    = 8599 // hostile self-buff, purge target
)

// Fixture aura ids for the dispel bands.
const (
	auraBomb      = 9000 // DEATH
	auraHex       = 9001 // INCAPACITATE
	auraPlague    = 9002 // DANGEROUS
	auraWeakness  = 9003 // MODERATE
	auraSlow      = 9004 // MINOR
	auraAnnoyance = 9005 // TRIVIAL
	auraUnknown   = 9999 // not cataloged
)

const (
	classWarrior = spatial.ClassID(1)
	classPriest  = spatial.ClassID(5)
	specArms     = spatial.SpecID(12)
	specProt     = spatial.SpecID(11)
	specHoly     = spatial.SpecID(51)
)

type progressKey struct {
	agent spatial.EID
	quest uint32
	index int
}

// fakeHost is an in-memory host: fixed registries, a straight-line
// pathfinder, and an action log.
type fakeHost struct {
	mu        sync.Mutex
	nowMS     int64
	abilities map[uint32]hostbridge.AbilityInfo
	bestiary  map[uint32]hostbridge.CreatureInfo
	quests    map[uint32]hostbridge.QuestInfo
	items     map[uint32][]hostbridge.ItemEffect
	givers    []hostbridge.QuestGiver
	progress  map[progressKey]uint32
	actions   []hostbridge.ActionIntent
	ackFn     func(hostbridge.ActionIntent) hostbridge.Ack
	pathErr   error
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		nowMS:     1_000_000,
		abilities: testAbilities(),
		bestiary: map[uint32]hostbridge.CreatureInfo{
			100: {Entry: 100, Name: "Ravenous Wolf", Class: hostbridge.UnitMelee},
			200: {Entry: 200, Name: "Cultist Acolyte", Class: hostbridge.UnitCaster},
			300: {Entry: 300, Name: "Pit Overlord", Class: hostbridge.UnitCaster, Rank: hostbridge.RankBoss},
		},
		quests:   map[uint32]hostbridge.QuestInfo{},
		items:    map[uint32][]hostbridge.ItemEffect{},
		progress: map[progressKey]uint32{},
	}
}

func (h *fakeHost) NowMS() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nowMS
}

func (h *fakeHost) advance(ms int64) {
	h.mu.Lock()
	h.nowMS += ms
	h.mu.Unlock()
}

func (h *fakeHost) EnqueueAction(it hostbridge.ActionIntent) hostbridge.Ack {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions = append(h.actions, it)
	if h.ackFn != nil {
		return h.ackFn(it)
	}
	return hostbridge.AckAccepted
}

func (h *fakeHost) takeActions() []hostbridge.ActionIntent {
	h.mu.Lock()
	out := h.actions
	h.actions = nil
	h.mu.Unlock()
	return out
}

func (h *fakeHost) ObjectiveProgress(agent spatial.EID, quest uint32, index int) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.progress[progressKey{agent: agent, quest: quest, index: index}]
}

func (h *fakeHost) setProgress(agent spatial.EID, quest uint32, index int, n uint32) {
	h.mu.Lock()
	h.progress[progressKey{agent: agent, quest: quest, index: index}] = n
	h.mu.Unlock()
}

func (h *fakeHost) AbilityInfo(spell uint32) (hostbridge.AbilityInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	info, ok := h.abilities[spell]
	return info, ok
}

func (h *fakeHost) CreatureInfo(entry uint32) (hostbridge.CreatureInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	info, ok := h.bestiary[entry]
	return info, ok
}

func (h *fakeHost) QuestInfo(quest uint32) (hostbridge.QuestInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	info, ok := h.quests[quest]
	return info, ok
}

func (h *fakeHost) ItemEffects(item uint32) []hostbridge.ItemEffect {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.items[item]
}

func (h *fakeHost) QuestGivers() []hostbridge.QuestGiver {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.givers
}

func (h *fakeHost) FindPath(agent spatial.EID, from, to spatial.Position, opts hostbridge.PathOptions) ([]spatial.Position, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pathErr != nil {
		return nil, h.pathErr
	}
	if opts.MaxLengthYards > 0 && from.DistanceTo(to) > float64(opts.MaxLengthYards) {
		return nil, hostbridge.ErrPathTooLong
	}
	return []spatial.Position{from, to}, nil
}

func testAbilities() map[uint32]hostbridge.AbilityInfo {
	abs := []hostbridge.AbilityInfo{
		{Spell: spellMortalStrike, Name: "Mortal Strike", CooldownMS: 6000, GCDMS: 1500,
			Cost: hostbridge.ResourceCost{Kind: hostbridge.ResourceRage, Amount: 30}, Effects: hostbridge.EffectDamage},
		{Spell: spellExecute, Name: "Execute", GCDMS: 1500,
			Cost: hostbridge.ResourceCost{Kind: hostbridge.ResourceRage, Amount: 15}, Effects: hostbridge.EffectDamage},
		{Spell: spellSlam, Name: "Slam", GCDMS: 1500,
			Cost: hostbridge.ResourceCost{Kind: hostbridge.ResourceRage, Amount: 15}, Effects: hostbridge.EffectDamage},
		{Spell: spellRend, Name: "Rend", GCDMS: 1500,
			Cost: hostbridge.ResourceCost{Kind: hostbridge.ResourceRage, Amount: 10}, Effects: hostbridge.EffectDamageOverTime},
		{Spell: spellPummel, Name: "Pummel", CooldownMS: 10000, RangeYards: 5,
			Effects: hostbridge.EffectInterrupt, LockoutMS: 4000},
		{Spell: spellBerserkRage, Name: "Berserker Rage", CooldownMS: 30000, Positive: true},
		{Spell: spellShieldWall, Name: "Shield Wall", CooldownMS: 240000, Positive: true},
		{Spell: spellShieldBlock, Name: "Shield Block", CooldownMS: 8000, Positive: true,
			Cost: hostbridge.ResourceCost{Kind: hostbridge.ResourceRage, Amount: 10}},
		{Spell: spellSpellReflect, Name: "Spell Reflection", CooldownMS: 25000, Positive: true,
			Cost: hostbridge.ResourceCost{Kind: hostbridge.ResourceRage, Amount: 15}},

		{Spell: spellFlashHeal, Name: "Flash Heal", CastTimeMS: 1500, GCDMS: 1500, RangeYards: 40, Positive: true,
			Cost: hostbridge.ResourceCost{Kind: hostbridge.ResourceMana, Amount: 500}, Effects: hostbridge.EffectHeal},
		{Spell: spellRenew, Name: "Renew", GCDMS: 1500, RangeYards: 40, Positive: true,
			Cost: hostbridge.ResourceCost{Kind: hostbridge.ResourceMana, Amount: 300}, Effects: hostbridge.EffectHealOverTime},
		{Spell: spellPrayer, Name: "Prayer of Healing", CastTimeMS: 2500, GCDMS: 1500, RangeYards: 30, Positive: true,
			Cost:    hostbridge.ResourceCost{Kind: hostbridge.ResourceMana, Amount: 1200},
			Effects: hostbridge.EffectHeal | hostbridge.EffectAOE, AOERadius: 15},
		{Spell: spellSmite, Name: "Smite", CastTimeMS: 2000, GCDMS: 1500, RangeYards: 30,
			Cost: hostbridge.ResourceCost{Kind: hostbridge.ResourceMana, Amount: 200}, Effects: hostbridge.EffectDamage},
		{Spell: spellDispel, Name: "Dispel Magic", GCDMS: 1500, RangeYards: 30, Positive: true,
			Cost: hostbridge.ResourceCost{Kind: hostbridge.ResourceMana, Amount: 300}, Effects: hostbridge.EffectDispel},
		{Spell: spellPurge, Name: "Purge", GCDMS: 1500, RangeYards: 30,
			Cost: hostbridge.ResourceCost{Kind: hostbridge.ResourceMana, Amount: 200}, Effects: hostbridge.EffectDispel},
		{Spell: spellPainSup, Name: "Pain Suppression", CooldownMS: 180000, RangeYards: 40, Positive: true,
			Cost: hostbridge.ResourceCost{Kind: hostbridge.ResourceMana, Amount: 400}},

		{Spell: spellFrostbolt, Name: "Frostbolt", CastTimeMS: 3000, RangeYards: 30,
			Effects: hostbridge.EffectDamage, Interruptible: true},
	}
	m := make(map[uint32]hostbridge.AbilityInfo, len(abs))
	for _, a := range abs {
		m[a.Spell] = a
	}
	return m
}

func testCatalogs() *catalogs.Catalogs {
	warrior := catalogs.KitDef{
		Class: uint16(classWarrior), Name: "warrior",
		Specs: []catalogs.SpecDef{
			{Spec: uint16(specProt), Name: "protection", Role: "tank"},
			{Spec: uint16(specArms), Name: "arms", Role: "damage"},
		},
		Resources: []catalogs.ResourceDef{{Kind: "rage", Max: 100, DecayPerSec: 1.5}},
		Interrupt: catalogs.InterruptDef{Spell: spellPummel, LockoutMS: 4000},
		CCBreaks:  []uint32{spellBerserkRage},
	}
	priest := catalogs.KitDef{
		Class: uint16(classPriest), Name: "priest",
		Specs: []catalogs.SpecDef{
			{Spec: uint16(specHoly), Name: "holy", Role: "healer"},
		},
		Resources:   []catalogs.ResourceDef{{Kind: "mana", Max: 10000, RegenPerSec: 100}},
		Dispels:     []string{"magic", "disease"},
		DispelSpell: spellDispel,
		PurgeSpell:  spellPurge,
		Externals:   []uint32{spellPainSup},
	}

	return &catalogs.Catalogs{
		Kits: catalogs.KitCatalog{ByClass: map[spatial.ClassID]catalogs.KitDef{
			classWarrior: warrior,
			classPriest:  priest,
		}},
		Defensives: catalogs.DefensiveCatalog{ByClass: map[spatial.ClassID][]catalogs.DefensiveDef{
			classWarrior: {
				{Class: uint16(classWarrior), Spell: spellShieldWall, Tier: catalogs.TierMajorReduction,
					HPMin: 0, HPMax: 40, CooldownMS: 240000, DurationMS: 12000},
				{Class: uint16(classWarrior), Spell: spellShieldBlock, Tier: catalogs.TierModerateReduction,
					HPMin: 0, HPMax: 75, CooldownMS: 8000, DurationMS: 6000, Requires: "melee"},
				{Class: uint16(classWarrior), Spell: spellSpellReflect, Tier: catalogs.TierAvoidance,
					HPMin: 0, HPMax: 95, CooldownMS: 25000, DurationMS: 5000, Requires: "magic", NoGCD: true},
			},
			classPriest: {
				{Class: uint16(classPriest), Spell: spellPainSup, Tier: catalogs.TierMajorReduction,
					HPMin: 0, HPMax: 50, CooldownMS: 180000, DurationMS: 8000, External: true},
			},
		}},
		Dispels: catalogs.DispelCatalog{
			Debuffs: map[uint32]string{
				auraBomb:      catalogs.BandDeath,
				auraHex:       catalogs.BandIncapacitate,
				auraPlague:    catalogs.BandDangerous,
				auraWeakness:  catalogs.BandModerate,
				auraSlow:      catalogs.BandMinor,
				auraAnnoyance: catalogs.BandTrivial,
			},
			Purge: map[uint32]string{
				spellEnrage: catalogs.BandDangerous,
			},
		},
		Rotations: catalogs.RotationCatalog{BySpec: map[catalogs.SpecKey]catalogs.RotationDef{
			{Class: classWarrior, Spec: specArms}: {
				Class: uint16(classWarrior), Spec: uint16(specArms), Name: "arms",
				Abilities: []catalogs.RotationAbility{
					{Spell: spellExecute, When: []string{"execute"}},
					{Spell: spellRend, When: []string{"dot_missing"}},
					{Spell: spellMortalStrike},
					{Spell: spellSlam},
				},
			},
			{Class: classPriest, Spec: specHoly}: {
				Class: uint16(classPriest), Spec: uint16(specHoly), Name: "holy",
				Abilities: []catalogs.RotationAbility{
					{Spell: spellPrayer, When: []string{"aoe"}},
					{Spell: spellFlashHeal},
					{Spell: spellRenew},
					{Spell: spellSmite},
				},
			},
		}},
	}
}

func knownSpells(spells ...uint32) map[uint32]bool {
	m := make(map[uint32]bool, len(spells))
	for _, s := range spells {
		m[s] = true
	}
	return m
}

func warriorKnown() map[uint32]bool {
	return knownSpells(spellMortalStrike, spellExecute, spellSlam, spellRend,
		spellPummel, spellBerserkRage, spellShieldWall, spellShieldBlock, spellSpellReflect)
}

func priestKnown() map[uint32]bool {
	return knownSpells(spellFlashHeal, spellRenew, spellPrayer, spellSmite,
		spellDispel, spellPurge, spellPainSup)
}

func newTestEngine(t *testing.T) (*Engine, *fakeHost) {
	t.Helper()
	host := newFakeHost()
	cfg := DefaultConfig()
	cfg.Workers = 1
	e, err := New(cfg, host, testCatalogs())
	require.NoError(t, err)
	return e, host
}

// addAgent registers and immediately folds the agent into the roster,
// bypassing the boundary for direct-step tests.
func addAgent(t *testing.T, e *Engine, cfg AgentConfig) *Agent {
	t.Helper()
	if cfg.Level == 0 {
		cfg.Level = 60
	}
	if cfg.MaxHealth == 0 {
		cfg.MaxHealth = 10000
	}
	require.NoError(t, e.AddAgent(cfg))
	e.applyPending(e.host.NowMS())
	a := e.agent(cfg.EID)
	require.NotNil(t, a)
	return a
}

func warriorConfig(eid spatial.EID) AgentConfig {
	return AgentConfig{
		EID: eid, Name: "warrior", Class: classWarrior, Spec: specArms,
		Map: 1, Known: warriorKnown(),
	}
}

func tankConfig(eid spatial.EID) AgentConfig {
	c := warriorConfig(eid)
	c.Name = "prot"
	c.Spec = specProt
	return c
}

func healerConfig(eid spatial.EID) AgentConfig {
	return AgentConfig{
		EID: eid, Name: "healer", Class: classPriest, Spec: specHoly,
		Map: 1, Known: priestKnown(),
	}
}

func pos(x, y float32) spatial.Position {
	return spatial.Position{Map: 1, X: x, Y: y}
}

func player(eid spatial.EID, p spatial.Position) spatial.PlayerSnapshot {
	return spatial.PlayerSnapshot{
		EID: eid, Pos: p, HealthPct: 100, ResourcePct: 100,
	}
}

func creature(eid spatial.EID, entry uint32, p spatial.Position) spatial.CreatureSnapshot {
	return spatial.CreatureSnapshot{
		EID: eid, Pos: p, Entry: entry,
		Health: 5000, MaxHealth: 5000, HostileHint: true,
	}
}

// stage publishes one map's entities and returns the tick it published.
func stage(e *Engine, tick uint64, b spatial.Batch) {
	e.grid.StageMap(1, b)
	e.grid.Publish(tick)
}

// stepNow runs one decision round for the agent against the current
// publication.
func stepNow(t *testing.T, e *Engine, a *Agent, tick uint64) {
	t.Helper()
	require.True(t, a.step(e, tick, e.host.NowMS()), "agent %d invisible at tick %d", a.cfg.EID, tick)
}

// drainIntents pops everything the agents emitted without involving the
// host sink.
func drainIntents(e *Engine) []hostbridge.ActionIntent {
	var out []hostbridge.ActionIntent
	e.queue.Drain(e.host.NowMS(), func(it hostbridge.ActionIntent) hostbridge.Ack {
		out = append(out, it)
		return hostbridge.AckAccepted
	})
	return out
}

func intentsOfKind(list []hostbridge.ActionIntent, kind hostbridge.IntentKind) []hostbridge.ActionIntent {
	var out []hostbridge.ActionIntent
	for _, it := range list {
		if it.Kind == kind {
			out = append(out, it)
		}
	}
	return out
}

func castsOf(list []hostbridge.ActionIntent, spell uint32) []hostbridge.ActionIntent {
	var out []hostbridge.ActionIntent
	for _, it := range list {
		if it.Kind == hostbridge.IntentSpellCast && it.Spell == spell {
			out = append(out, it)
		}
	}
	return out
}
