package bots

import (
	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/spatial"
)

// healStrategy keeps the group standing. AoE wins when a cluster of
// injuries justifies it, otherwise the highest-priority single target
// gets the next heal.
type healStrategy struct{}

func (healStrategy) Name() string { return "heal" }

func (healStrategy) Active(sc *stepCtx) bool {
	return sc.a.role == spatial.RoleHealer && sc.a.hasRot && !sc.self.IsDead && !sc.self.IsCrowdControlled()
}

func (healStrategy) Relevance(sc *stepCtx) int {
	cfg := sc.cfg()
	worst := float32(100)
	for _, m := range sc.members {
		if m.IsDead || m.HealthPct >= cfg.HealExcludeAbovePct {
			continue
		}
		if m.HealthPct < worst {
			worst = m.HealthPct
		}
	}
	switch {
	case worst <= cfg.HealCriticalPct:
		return RelevanceEmergencyFloor + 5
	case worst <= 75:
		return RelevanceCombatCeil - 15
	case worst < 100:
		return RelevanceCombatFloor
	default:
		return 0
	}
}

func (healStrategy) Update(sc *stepCtx) {
	if sc.self.IsCasting {
		return
	}
	if center, _, ok := selectAoEHealCenter(sc); ok {
		if spell, _, found := pickHealSpell(sc, true, sc.distanceTo(center.Pos)); found {
			sc.emitCast(healPriority(center.HealthPct, sc.cfg()), spell, hostbridge.TargetEntity, center.EID)
			return
		}
	}
	pick, ok := selectHealTarget(sc)
	if !ok {
		return
	}
	spell, _, found := pickHealSpell(sc, false, sc.distanceTo(pick.snap.Pos))
	if !found {
		return
	}
	sc.emitCast(healPriority(pick.snap.HealthPct, sc.cfg()), spell, hostbridge.TargetEntity, pick.snap.EID)
}

func healPriority(healthPct float32, cfg *Config) uint8 {
	if healthPct <= cfg.HealCriticalPct {
		return PriorityHealCritical
	}
	return PriorityHealNormal
}
