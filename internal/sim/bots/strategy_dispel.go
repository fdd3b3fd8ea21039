package bots

import "warband.ai/internal/hostbridge"

// dispelStrategy fires the dispel or purge this agent was assigned.
type dispelStrategy struct{}

func (dispelStrategy) Name() string { return "dispel" }

func (dispelStrategy) Active(sc *stepCtx) bool {
	if sc.group == nil || sc.self.IsDead {
		return false
	}
	return sc.a.kit.DispelSpell != 0 || sc.a.kit.PurgeSpell != 0
}

func (dispelStrategy) Relevance(sc *stepCtx) int {
	if sc.group.dispels.pendingFor(sc.a.cfg.EID) {
		return RelevanceCombatCeil - 20
	}
	return 0
}

func (dispelStrategy) Update(sc *stepCtx) {
	spell, target, _, priority, ok := sc.group.dispels.claimEmit(sc.a.cfg.EID, sc.nowMS)
	if !ok {
		return
	}
	if info, known := sc.e.host.AbilityInfo(spell); known && !castable(sc, info) {
		// Claimed but cannot pay right now; the assignment ages out via
		// the coordinator's own expiry.
		return
	}
	sc.emitCast(priority, spell, hostbridge.TargetEntity, target)
}
