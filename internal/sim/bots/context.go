package bots

import (
	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/spatial"
)

// stepCtx is one agent's view of one tick: its own snapshot, one shared
// working-radius scan, and the resolved group. Strategies read from it and
// emit through it; nothing here outlives the step.
type stepCtx struct {
	e *Engine
	a *Agent

	tick  uint64
	nowMS int64

	self      spatial.PlayerSnapshot
	creatures []spatial.CreatureSnapshot
	players   []spatial.PlayerSnapshot
	objects   []spatial.ObjectSnapshot
	fields    []spatial.FieldSnapshot

	group   *Group
	members []spatial.PlayerSnapshot

	// Intake profile and health prediction, computed once per step before
	// strategies run.
	profile      intakeProfile
	predictedPct float32

	emitted     int
	topPriority uint8
	moveReqs    []moveReq
}

func (sc *stepCtx) cfg() *Config { return &sc.e.cfg }

// emit stamps and enqueues one intent. The queue delivers it at the next
// tick boundary.
func (sc *stepCtx) emit(it hostbridge.ActionIntent) uint64 {
	it.Agent = sc.a.cfg.EID
	it.StampMS = sc.nowMS
	it.Seq = sc.e.nextSeq()
	sc.e.queue.Push(it)
	sc.emitted++
	if it.Priority > sc.topPriority {
		sc.topPriority = it.Priority
	}
	return it.Seq
}

// emitCast handles the speculative bookkeeping shared by every cast site:
// cooldown, GCD, resource spend, and the pending entry that lets a failed
// ack roll it all back.
func (sc *stepCtx) emitCast(priority uint8, spell uint32, mode hostbridge.TargetMode, target spatial.EID) uint64 {
	it := hostbridge.ActionIntent{
		Kind:       hostbridge.IntentSpellCast,
		Priority:   priority,
		Spell:      spell,
		TargetMode: mode,
		Target:     target,
	}
	seq := sc.emit(it)

	info, ok := sc.e.host.AbilityInfo(spell)
	if !ok {
		return seq
	}
	sc.a.cool.start(spell, int64(info.CooldownMS), sc.nowMS)
	sc.a.cool.startGCD(info.GCDMS, sc.nowMS)
	cost := info.Cost
	if cost.Amount != 0 {
		sc.a.res.spendFor(cost, sc.nowMS)
	}
	sc.a.noteCast(seq, spell, target, cost.Amount, uint8(cost.Kind), int64(info.CooldownMS), sc.nowMS)

	if info.Is(hostbridge.EffectDamage) || info.Is(hostbridge.EffectDamageOverTime) {
		sc.a.threat.add(target, threatPerCast(info))
	} else if info.Is(hostbridge.EffectHeal) || info.Is(hostbridge.EffectHealOverTime) {
		sc.a.threat.addSplit(sc.engagedEnemies(), healThreat)
	}
	return seq
}

func (sc *stepCtx) emitSelfCast(priority uint8, spell uint32) uint64 {
	return sc.emitCast(priority, spell, hostbridge.TargetSelf, sc.a.cfg.EID)
}

func (sc *stepCtx) emitUseItem(priority uint8, item uint32, target spatial.EID) uint64 {
	mode := hostbridge.TargetNone
	if !target.IsZero() {
		mode = hostbridge.TargetEntity
	}
	return sc.emit(hostbridge.ActionIntent{
		Kind:       hostbridge.IntentUseItem,
		Priority:   priority,
		Item:       item,
		TargetMode: mode,
		Target:     target,
	})
}

func (sc *stepCtx) emitInteract(priority uint8, target spatial.EID) uint64 {
	return sc.emit(hostbridge.ActionIntent{
		Kind:       hostbridge.IntentInteract,
		Priority:   priority,
		TargetMode: hostbridge.TargetEntity,
		Target:     target,
	})
}

// requestMove files a movement wish; the arbiter resolves the winner after
// all strategies ran.
func (sc *stepCtx) requestMove(priority uint8, dest spatial.Position, genPath bool, reason string) {
	sc.moveReqs = append(sc.moveReqs, moveReq{
		priority: priority,
		dest:     dest,
		genPath:  genPath,
		reason:   reason,
	})
}

const (
	baseThreatPerCast = 120.0
	tauntThreat       = 600.0
	healThreat        = 40.0
)

func threatPerCast(info hostbridge.AbilityInfo) float64 {
	if info.Is(hostbridge.EffectTaunt) {
		return tauntThreat
	}
	return baseThreatPerCast
}

// engagedEnemies lists living hostiles near the agent; healing threat is
// split across them.
func (sc *stepCtx) engagedEnemies() []spatial.EID {
	var out []spatial.EID
	for _, c := range sc.creatures {
		if c.IsDead || !c.HostileHint {
			continue
		}
		out = append(out, c.EID)
	}
	return out
}

// findCreature looks up a creature from the shared scan before falling back
// to the published view.
func (sc *stepCtx) findCreature(id spatial.EID) (spatial.CreatureSnapshot, bool) {
	for _, c := range sc.creatures {
		if c.EID == id {
			return c, true
		}
	}
	return sc.e.grid.FindCreature(sc.self.Pos.Map, id)
}

func (sc *stepCtx) findMember(id spatial.EID) (spatial.PlayerSnapshot, bool) {
	for _, p := range sc.members {
		if p.EID == id {
			return p, true
		}
	}
	return sc.e.grid.FindPlayer(sc.self.Pos.Map, id)
}

func (sc *stepCtx) distanceTo(p spatial.Position) float32 {
	return float32(sc.self.Pos.DistanceTo(p))
}
