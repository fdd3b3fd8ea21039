package bots

import "warband.ai/internal/hostbridge"

// externalStrategy casts a granted external defensive on a group member.
type externalStrategy struct{}

func (externalStrategy) Name() string { return "external" }

func (externalStrategy) Active(sc *stepCtx) bool {
	return sc.group != nil && len(sc.a.kit.Externals) > 0 && !sc.self.IsDead
}

func (externalStrategy) Relevance(sc *stepCtx) int {
	if sc.group.externals.pendingFor(sc.a.cfg.EID) {
		return RelevanceCombatCeil - 5
	}
	return 0
}

func (externalStrategy) Update(sc *stepCtx) {
	spell, target, priority, ok := sc.group.externals.claimEmit(sc.a.cfg.EID, sc.nowMS)
	if !ok {
		return
	}
	sc.emitCast(priority, spell, hostbridge.TargetEntity, target)
}
