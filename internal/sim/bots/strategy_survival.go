package bots

import (
	"math"

	"warband.ai/internal/sim/spatial"
)

// survivalStrategy covers the agent's own skin: stepping out of damage
// fields, breaking crowd control, and popping personal defensives keyed
// to predicted rather than current health.
type survivalStrategy struct{}

func (survivalStrategy) Name() string { return "survival" }

func (survivalStrategy) Active(sc *stepCtx) bool {
	return !sc.self.IsDead
}

func (survivalStrategy) Relevance(sc *stepCtx) int {
	if _, standing := worstFieldUnderfoot(sc); standing {
		return RelevanceEmergencyFloor + 40
	}
	if sc.self.IsCrowdControlled() && ccBreakAvailable(sc) {
		return RelevanceEmergencyFloor + 30
	}
	sev := severityFor(sc.cfg(), sc.a.role, sc.predictedPct, sc.profile.dps, sc.a.maxHealth.Load())
	switch sev {
	case sevCritical:
		return RelevanceEmergencyFloor + 20
	case sevMajor:
		return RelevanceEmergencyFloor + 10
	case sevModerate:
		return RelevanceEmergencyFloor
	case sevMinor:
		return RelevanceCombatCeil
	case sevPreemptive:
		return RelevanceCombatCeil - 10
	default:
		return 0
	}
}

func (survivalStrategy) Update(sc *stepCtx) {
	if field, standing := worstFieldUnderfoot(sc); standing {
		dest := fieldEscapePoint(sc.self.Pos, field, sc.cfg().FieldEvadePadYards)
		sc.requestMove(MoveEvade, dest, false, "evade field")
	}

	if sc.self.IsCrowdControlled() {
		// Every intent except the break itself is pointless while held.
		if spell, ok := readyCCBreak(sc); ok {
			sc.emitSelfCast(PriorityCCBreak, spell)
		}
		return
	}

	sev := severityFor(sc.cfg(), sc.a.role, sc.predictedPct, sc.profile.dps, sc.a.maxHealth.Load())
	if sev == sevNone {
		return
	}
	if d, ok := pickPersonalDefensive(sc, sev, sc.predictedPct, sc.profile); ok {
		sc.emitSelfCast(defensivePriority(sev), d.Spell)
		sc.a.lastDefensiveMS = sc.nowMS
	}
}

func ccBreakAvailable(sc *stepCtx) bool {
	_, ok := readyCCBreak(sc)
	return ok
}

func readyCCBreak(sc *stepCtx) (uint32, bool) {
	for _, spell := range sc.a.kit.CCBreaks {
		if sc.a.Knows(spell) && sc.a.cool.ready(spell, sc.nowMS) {
			return spell, true
		}
	}
	return 0, false
}

// worstFieldUnderfoot returns the most dangerous active hostile field the
// agent currently stands in, judged by how deep inside it is.
func worstFieldUnderfoot(sc *stepCtx) (spatial.FieldSnapshot, bool) {
	var (
		worst spatial.FieldSnapshot
		depth float64
		found bool
	)
	for _, f := range sc.fields {
		if !f.Active || !f.Hostile || f.Radius <= 0 {
			continue
		}
		d := sc.self.Pos.DistanceTo(f.Pos)
		if d >= float64(f.Radius) {
			continue
		}
		in := float64(f.Radius) - d
		if !found || in > depth {
			worst, depth, found = f, in, true
		}
	}
	return worst, found
}

// fieldEscapePoint walks radially out of the field to its edge plus pad.
// An agent standing dead center picks an arbitrary fixed direction.
func fieldEscapePoint(from spatial.Position, field spatial.FieldSnapshot, pad float32) spatial.Position {
	dx := float64(from.X - field.Pos.X)
	dy := float64(from.Y - field.Pos.Y)
	norm := math.Sqrt(dx*dx + dy*dy)
	if norm < 0.01 {
		dx, dy, norm = 1, 0, 1
	}
	reach := float64(field.Radius + pad)
	out := from
	out.X = field.Pos.X + float32(dx/norm*reach)
	out.Y = field.Pos.Y + float32(dy/norm*reach)
	return out
}
