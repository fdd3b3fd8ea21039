package bots

import (
	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/spatial"
)

// combatStrategy picks and sticks to a target, keeps the agent at its
// preferred fighting range, and runs the rotation.
type combatStrategy struct{}

func (combatStrategy) Name() string { return "combat" }

func (combatStrategy) Active(sc *stepCtx) bool {
	return !sc.self.IsDead && !sc.self.IsCrowdControlled()
}

func (combatStrategy) Relevance(sc *stepCtx) int {
	if !sc.a.combat && sc.profile.attackers == 0 {
		return 0
	}
	r := RelevanceCombatFloor + 30
	r += sc.profile.attackers * 5
	if r > RelevanceCombatCeil {
		r = RelevanceCombatCeil
	}
	return r
}

func (combatStrategy) Update(sc *stepCtx) {
	target, ok, _ := selectCreature(sc, targetReq{
		validations: ValidAlive | ValidHostile | ValidInRange | ValidNotImmune | ValidNotEvading | ValidLineOfSight,
		maxRange:    sc.cfg().WorkingRadiusYards,
		focus:       groupFocus(sc),
	})
	if !ok {
		return
	}
	sc.a.target = target.EID

	want := preferredCombatRange(sc)
	if sc.distanceTo(target.Pos) > want {
		sc.requestMove(MoveCombat, target.Pos, true, "close target")
	}
	runRotation(sc, target)
}

// groupFocus reads the main assist's advertised target. A human main
// assist advertises nothing; the bonus simply never applies.
func groupFocus(sc *stepCtx) spatial.EID {
	if sc.group == nil {
		return 0
	}
	ma := sc.group.MainAssist()
	if ma == 0 || ma == sc.a.cfg.EID {
		return 0
	}
	ag := sc.e.agent(ma)
	if ag == nil {
		return 0
	}
	return spatial.EID(ag.advTarget.Load())
}

// preferredCombatRange is the longest reach the rotation can actually
// use, clamped to melee for kits with no ranged damage ability.
func preferredCombatRange(sc *stepCtx) float32 {
	cfg := sc.cfg()
	best := cfg.MeleeRangeYards
	if !sc.a.hasRot {
		return best
	}
	for _, ab := range sc.a.rotation.Abilities {
		if !sc.a.Knows(ab.Spell) {
			continue
		}
		info, ok := sc.e.host.AbilityInfo(ab.Spell)
		if !ok || !info.Is(hostbridge.EffectDamage|hostbridge.EffectDamageOverTime) {
			continue
		}
		if info.RangeYards > best {
			best = info.RangeYards
		}
	}
	if best > cfg.CasterRangeYards {
		best = cfg.CasterRangeYards
	}
	return best
}
