package bots

import (
	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/catalogs"
	"warband.ai/internal/sim/spatial"
)

// runRotation walks the spec's priority list and emits the first castable
// ability at the target. At most one cast per step; the GCD and the cast bar
// gate the rest.
func runRotation(sc *stepCtx, target spatial.CreatureSnapshot) bool {
	a := sc.a
	if !a.hasRot || sc.self.IsCasting {
		return false
	}
	for _, ab := range a.rotation.Abilities {
		if !a.Knows(ab.Spell) {
			continue
		}
		info, ok := sc.e.host.AbilityInfo(ab.Spell)
		if !ok {
			continue
		}
		if !canUse(sc, info, target) {
			continue
		}
		if !conditionsHold(sc, ab.When, info, target) {
			continue
		}
		sc.emitCast(PriorityRotation, ab.Spell, hostbridge.TargetEntity, target.EID)
		return true
	}
	return false
}

// castable checks the target-independent gates: cooldown, GCD, resources.
func castable(sc *stepCtx, info hostbridge.AbilityInfo) bool {
	a := sc.a
	if !a.cool.ready(info.Spell, sc.nowMS) {
		return false
	}
	if info.GCDMS > 0 && !a.cool.gcdReady(sc.nowMS) {
		return false
	}
	return a.res.canAfford(info.Cost, sc.nowMS)
}

func canUse(sc *stepCtx, info hostbridge.AbilityInfo, target spatial.CreatureSnapshot) bool {
	if !castable(sc, info) {
		return false
	}
	d := sc.distanceTo(target.Pos)
	maxRange := info.RangeYards
	if maxRange <= 0 {
		maxRange = sc.cfg().MeleeRangeYards
	}
	if d > maxRange {
		return false
	}
	if info.MinRangeYards > 0 && d < info.MinRangeYards {
		return false
	}
	return true
}

func conditionsHold(sc *stepCtx, when []string, info hostbridge.AbilityInfo, target spatial.CreatureSnapshot) bool {
	for _, w := range when {
		if !conditionHolds(sc, w, info, target) {
			return false
		}
	}
	return true
}

func conditionHolds(sc *stepCtx, w string, info hostbridge.AbilityInfo, target spatial.CreatureSnapshot) bool {
	name, arg := catalogs.SplitCondition(w)
	switch name {
	case catalogs.CondExecute:
		return target.HealthPct() <= sc.cfg().ExecuteHealthPct
	case catalogs.CondAOE:
		return hostilesNear(sc, target.Pos, aoeCountRadius(info)) >= multiTargetCount
	case catalogs.CondDotMissing:
		// Snapshot lag: treat a just-cast DoT as applied until the aura
		// shows up.
		if sc.a.recentlyCast(info.Spell, target.EID, sc.nowMS, dotRefreshGuardMS) {
			return false
		}
		return !creatureHasAura(target, info.Spell)
	case catalogs.CondTargetCasting:
		return target.IsCasting
	case catalogs.CondMeleeRange:
		return sc.distanceTo(target.Pos) <= sc.cfg().MeleeRangeYards
	case "buff_missing":
		if sc.a.recentlyCast(arg, sc.a.cfg.EID, sc.nowMS, dotRefreshGuardMS) {
			return false
		}
		return !sc.self.HasAura(arg)
	case "resource_above":
		return conditionResource(sc, info) >= float64(arg)
	case "resource_below":
		return conditionResource(sc, info) < float64(arg)
	default:
		return false
	}
}

const dotRefreshGuardMS = 3000

// conditionResource reads the pool the ability spends from, or the primary
// pool for free abilities.
func conditionResource(sc *stepCtx, info hostbridge.AbilityInfo) float64 {
	kind := uint8(info.Cost.Kind)
	if kind != 0 {
		if cur, _, ok := sc.a.res.currentOf(kind, sc.nowMS); ok {
			return cur
		}
	}
	if sc.a.res.primary != nil {
		return sc.a.res.primary.current(sc.nowMS)
	}
	return 0
}

func aoeCountRadius(info hostbridge.AbilityInfo) float32 {
	if info.AOERadius > 0 {
		return info.AOERadius
	}
	return 8
}

func hostilesNear(sc *stepCtx, pos spatial.Position, radius float32) int {
	n := 0
	for _, c := range sc.creatures {
		if c.IsDead || !c.HostileHint {
			continue
		}
		if pos.DistanceTo(c.Pos) <= float64(radius) {
			n++
		}
	}
	return n
}

func creatureHasAura(c spatial.CreatureSnapshot, id uint32) bool {
	for _, a := range c.Buffs {
		if a.ID == id {
			return true
		}
	}
	return false
}
