package bots

import "warband.ai/internal/hostbridge"

// interruptStrategy fires the interrupt this agent was assigned by the
// group coordinator. At most one intent leaves per detected cast.
type interruptStrategy struct{}

func (interruptStrategy) Name() string { return "interrupt" }

func (interruptStrategy) Active(sc *stepCtx) bool {
	return sc.group != nil && sc.a.kit.Interrupt.Spell != 0 && !sc.self.IsDead
}

func (interruptStrategy) Relevance(sc *stepCtx) int {
	if sc.group.interrupts.pendingFor(sc.a.cfg.EID) {
		return RelevanceCombatCeil
	}
	return 0
}

func (interruptStrategy) Update(sc *stepCtx) {
	spell, caster, priority, ok := sc.group.interrupts.claimEmit(sc.a.cfg.EID, sc.nowMS)
	if !ok {
		return
	}
	sc.emitCast(priority, spell, hostbridge.TargetEntity, caster)
}
