package bots

import (
	"sync"
	"sync/atomic"

	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/catalogs"
	"warband.ai/internal/sim/spatial"
)

// AgentConfig is everything the host must supply to register one agent.
// The EID must match the player snapshot the host stages for this agent.
type AgentConfig struct {
	EID         spatial.EID
	Name        string
	Class       spatial.ClassID
	Spec        spatial.SpecID
	Level       uint8
	FactionMask uint32

	// Map is the spawn map; the engine follows the agent across transfers
	// from its published snapshots afterwards.
	Map uint32

	// MaxHealth scales absolute damage events into health percentages for
	// the predictive defensive logic.
	MaxHealth int64

	// Known is the agent's spellbook. Abilities absent from it are never
	// considered by the rotation or the coordinators.
	Known map[uint32]bool

	// QuestLog holds active quest ids in pickup order.
	QuestLog []uint32
}

// DamageEvent is host-fed damage intake, appended between rounds and drained
// at the start of the agent's next step.
type DamageEvent struct {
	Attacker   spatial.EID
	Amount     int64
	SchoolMask uint32 // bit 0 = physical
	Melee      bool
	AtMS       int64
}

// AckResult reports the host's verdict on one delivered intent. Failed casts
// roll back their speculative cooldown and resource bookkeeping.
type AckResult struct {
	Seq   uint64
	Kind  hostbridge.IntentKind
	Spell uint32
	Ack   hostbridge.Ack
}

type Agent struct {
	cfg        AgentConfig
	role       spatial.Role
	kit        catalogs.KitDef
	rotation   catalogs.RotationDef
	hasRot     bool
	defensives []catalogs.DefensiveDef

	// mu guards only the host-fed inbox below. Step state past the inbox is
	// touched by exactly one worker per round.
	mu        sync.Mutex
	inDamage  []DamageEvent
	inAcks    []AckResult
	inCombat  []bool
	inQuests  []uint32
	questsSet bool

	mapID      uint32
	combat     bool
	combatAtMS int64
	target     spatial.EID
	cool       cooldownTable
	res        *resourceSet
	threat     threatTable
	intake     *damageWindow
	move       moveArbiter
	quest      questState
	strategies []Strategy

	// Speculative cast bookkeeping, reconciled against acks by Seq.
	pendingCasts map[uint64]pendingCast
	recentCasts  map[castMark]int64

	lastStepMS      int64
	lastStrategy    string
	lastDefensiveMS int64
	wanderNextMS    int64

	// Advertised state, readable by coordinators and the diagnostic
	// surface without taking mu.
	advMajorReadyMS     atomic.Int64
	advInterruptReadyMS atomic.Int64
	advExternalReadyMS  atomic.Int64
	advDispelReadyMS    atomic.Int64
	advTarget           atomic.Uint64
	advInCombat         atomic.Bool
	advPredictedPct     atomic.Uint32
	advStrategy         atomic.Value // string
	stepsRun            atomic.Uint64
	maxHealth           atomic.Int64
}

type pendingCast struct {
	spell      uint32
	cost       float64
	costKind   uint8
	cooldownMS int64
	mark       castMark
	stampMS    int64
}

type castMark struct {
	spell  uint32
	target spatial.EID
}

func newAgent(cfg AgentConfig, kit catalogs.KitDef, rot catalogs.RotationDef, hasRot bool, defs []catalogs.DefensiveDef, nowMS int64) *Agent {
	a := &Agent{
		cfg:          cfg,
		role:         kit.RoleFor(cfg.Spec),
		kit:          kit,
		rotation:     rot,
		hasRot:       hasRot,
		defensives:   defs,
		cool:         newCooldownTable(),
		res:          newResourceSet(kit.Resources, nowMS),
		threat:       newThreatTable(),
		intake:       newDamageWindow(),
		pendingCasts: map[uint64]pendingCast{},
		recentCasts:  map[castMark]int64{},
	}
	a.mapID = cfg.Map
	a.quest.setLog(cfg.QuestLog)
	a.maxHealth.Store(cfg.MaxHealth)
	a.advPredictedPct.Store(100)
	a.strategies = defaultStrategies(a)
	return a
}

// advertise refreshes the lock-free state coordinators read from other
// workers. Called once per step by the owner.
func (a *Agent) advertise(nowMS int64) {
	if a.kit.Interrupt.Spell != 0 {
		a.advInterruptReadyMS.Store(a.cool.readyAtMS(a.kit.Interrupt.Spell))
	}
	if a.kit.DispelSpell != 0 {
		a.advDispelReadyMS.Store(a.cool.readyAtMS(a.kit.DispelSpell))
	}
	a.advTarget.Store(uint64(a.target))
	a.advStrategy.Store(a.lastStrategy)

	earliestExternal := int64(0)
	first := true
	for _, s := range a.kit.Externals {
		if !a.Knows(s) {
			continue
		}
		at := a.cool.readyAtMS(s)
		if first || at < earliestExternal {
			earliestExternal = at
			first = false
		}
	}
	if !first {
		a.advExternalReadyMS.Store(earliestExternal)
	}

	earliestMajor := int64(0)
	first = true
	for _, d := range a.defensives {
		if d.External || !a.Knows(d.Spell) {
			continue
		}
		if d.Tier != catalogs.TierImmunity && d.Tier != catalogs.TierMajorReduction {
			continue
		}
		at := a.cool.readyAtMS(d.Spell)
		if first || at < earliestMajor {
			earliestMajor = at
			first = false
		}
	}
	if !first {
		a.advMajorReadyMS.Store(earliestMajor)
	}
}

func (a *Agent) EID() spatial.EID    { return a.cfg.EID }
func (a *Agent) Role() spatial.Role  { return a.role }
func (a *Agent) Name() string        { return a.cfg.Name }
func (a *Agent) Knows(s uint32) bool { return a.cfg.Known[s] }

// feedDamage is called from host threads between rounds.
func (a *Agent) feedDamage(ev DamageEvent) {
	a.mu.Lock()
	a.inDamage = append(a.inDamage, ev)
	a.mu.Unlock()
}

func (a *Agent) feedAck(r AckResult) {
	a.mu.Lock()
	a.inAcks = append(a.inAcks, r)
	a.mu.Unlock()
}

func (a *Agent) feedCombat(in bool) {
	a.mu.Lock()
	a.inCombat = append(a.inCombat, in)
	a.mu.Unlock()
}

func (a *Agent) feedQuestLog(quests []uint32) {
	cp := make([]uint32, len(quests))
	copy(cp, quests)
	a.mu.Lock()
	a.inQuests = cp
	a.questsSet = true
	a.mu.Unlock()
}

// drainInbox moves host-fed events into step state. Called once at step start
// by the owning worker.
func (a *Agent) drainInbox(nowMS int64) (damage []DamageEvent, acks []AckResult) {
	a.mu.Lock()
	damage = a.inDamage
	acks = a.inAcks
	combats := a.inCombat
	quests, qset := a.inQuests, a.questsSet
	a.inDamage = nil
	a.inAcks = nil
	a.inCombat = nil
	a.inQuests = nil
	a.questsSet = false
	a.mu.Unlock()

	for _, ev := range damage {
		a.intake.record(ev)
	}
	for _, in := range combats {
		a.setCombat(in, nowMS)
	}
	if qset {
		a.quest.setLog(quests)
	}
	return damage, acks
}

func (a *Agent) setCombat(in bool, nowMS int64) {
	if a.combat == in {
		return
	}
	a.combat = in
	a.combatAtMS = nowMS
	a.advInCombat.Store(in)
	if !in {
		// Threat does not survive a combat exit.
		a.threat.clear()
		a.target = 0
		a.recentCasts = map[castMark]int64{}
	}
}

// applyAcks reconciles speculative cast bookkeeping. Anything the host did
// not accept gets its cooldown and resource spend rolled back.
func (a *Agent) applyAcks(acks []AckResult, nowMS int64) {
	for _, r := range acks {
		pc, ok := a.pendingCasts[r.Seq]
		if !ok {
			continue
		}
		delete(a.pendingCasts, r.Seq)
		if r.Ack == hostbridge.AckAccepted {
			continue
		}
		a.cool.cancel(pc.spell)
		if pc.cost > 0 {
			a.res.refund(pc.costKind, pc.cost, nowMS)
		}
		delete(a.recentCasts, pc.mark)
	}
	// Pending entries whose ack never arrived are considered accepted after
	// a grace period; keep the map from growing unbounded.
	if len(a.pendingCasts) > 64 {
		for seq, pc := range a.pendingCasts {
			if nowMS-pc.stampMS > 5000 {
				delete(a.pendingCasts, seq)
			}
		}
	}
}

func (a *Agent) noteCast(seq uint64, spell uint32, target spatial.EID, cost float64, costKind uint8, cooldownMS int64, nowMS int64) {
	mark := castMark{spell: spell, target: target}
	a.pendingCasts[seq] = pendingCast{
		spell:      spell,
		cost:       cost,
		costKind:   costKind,
		cooldownMS: cooldownMS,
		mark:       mark,
		stampMS:    nowMS,
	}
	a.recentCasts[mark] = nowMS
}

// recentlyCast reports whether the same spell went to the same target within
// windowMS. Bridges the gap between emitting a cast and the aura or cast bar
// showing up in a later snapshot.
func (a *Agent) recentlyCast(spell uint32, target spatial.EID, nowMS, windowMS int64) bool {
	at, ok := a.recentCasts[castMark{spell: spell, target: target}]
	return ok && nowMS-at < windowMS
}

func (a *Agent) pruneRecentCasts(nowMS int64) {
	if len(a.recentCasts) < 32 {
		return
	}
	for m, at := range a.recentCasts {
		if nowMS-at > 10000 {
			delete(a.recentCasts, m)
		}
	}
}
