package bots

import (
	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/spatial"
)

// healPick is one scored heal candidate.
type healPick struct {
	snap    spatial.PlayerSnapshot
	score   float64
	deficit float64
}

// selectHealTarget scores group members in range and returns the best
// single-target candidate. ok is false when nobody needs a heal.
func selectHealTarget(sc *stepCtx) (healPick, bool) {
	cfg := sc.cfg()
	var (
		best  healPick
		found bool
	)
	for _, m := range sc.members {
		p, ok := scoreHealCandidate(sc, m)
		if !ok {
			continue
		}
		if !found || better(p, best, cfg.ThreatTieEpsilon) {
			best, found = p, true
		}
	}
	return best, found
}

// better breaks near-ties by EID so two healers shard the same list the
// same way instead of thrashing between equal candidates.
func better(a, b healPick, epsilon float64) bool {
	if a.score > b.score+epsilon {
		return true
	}
	if b.score > a.score+epsilon {
		return false
	}
	return a.snap.EID < b.snap.EID
}

func scoreHealCandidate(sc *stepCtx, m spatial.PlayerSnapshot) (healPick, bool) {
	cfg := sc.cfg()
	if m.IsDead || m.HealthPct >= cfg.HealExcludeAbovePct {
		return healPick{}, false
	}
	d := sc.self.Pos.DistanceTo(m.Pos)
	if d > float64(cfg.HealMaxRangeYards) {
		return healPick{}, false
	}

	deficit := float64(100 - m.HealthPct)
	score := deficit * healRoleWeight(sc, m)

	// Linear falloff: a melee bleeding next to the healer beats the same
	// deficit at the edge of range.
	score *= 1 - d/float64(cfg.HealMaxRangeYards)

	if incomingHealExpected(sc, m) {
		score *= cfg.HealIncomingDiscount
	}
	if creaturesTargeting(sc, m.EID) > 0 {
		score *= 1.15
	}
	for _, aura := range m.Debuffs {
		if aura.Class != spatial.DispelNone {
			score += cfg.DispellableBonus
		}
	}
	return healPick{snap: m, score: score, deficit: deficit}, score > 0
}

func healRoleWeight(sc *stepCtx, m spatial.PlayerSnapshot) float64 {
	cfg := sc.cfg()
	if sc.group != nil && sc.group.MainTank() == m.EID {
		return cfg.WeightMainTank
	}
	switch m.Role {
	case spatial.RoleTank:
		return cfg.WeightTank
	case spatial.RoleHealer:
		return cfg.WeightHealer
	default:
		return cfg.WeightDamage
	}
}

// incomingHealExpected covers the three sources that make another heal
// redundant right now: a heal already in flight from a different healer,
// an active HoT, or an absorb shield.
func incomingHealExpected(sc *stepCtx, m spatial.PlayerSnapshot) bool {
	if m.AuraBits&(spatial.AuraHealOverTime|spatial.AuraAbsorbShield) != 0 {
		return true
	}
	for _, other := range sc.members {
		if other.EID == sc.self.EID || other.Role != spatial.RoleHealer {
			continue
		}
		if !other.IsCasting || other.CastTarget != m.EID {
			continue
		}
		if info, ok := sc.e.host.AbilityInfo(other.CastSpell); ok && info.Is(hostbridge.EffectHeal|hostbridge.EffectHealOverTime) {
			return true
		}
	}
	return false
}

func creaturesTargeting(sc *stepCtx, eid spatial.EID) int {
	n := 0
	for _, c := range sc.creatures {
		if !c.IsDead && c.HostileHint && c.IsCasting && c.CastTarget == eid {
			n++
		}
	}
	return n
}

// selectAoEHealCenter finds the member maximizing injured-neighbor count
// times mean deficit, gated on minimum cluster size and mean deficit.
func selectAoEHealCenter(sc *stepCtx) (spatial.PlayerSnapshot, int, bool) {
	cfg := sc.cfg()
	var (
		best      spatial.PlayerSnapshot
		bestN     int
		bestScore float64
		found     bool
	)
	for _, center := range sc.members {
		if center.IsDead {
			continue
		}
		if sc.self.Pos.DistanceTo(center.Pos) > float64(cfg.HealMaxRangeYards) {
			continue
		}
		n, sum := 0, 0.0
		for _, m := range sc.members {
			if m.IsDead || m.HealthPct >= cfg.HealExcludeAbovePct {
				continue
			}
			if center.Pos.DistanceTo(m.Pos) > float64(cfg.HealAoERadiusYards) {
				continue
			}
			n++
			sum += float64(100 - m.HealthPct)
		}
		if n < cfg.AoEMinCluster {
			continue
		}
		mean := sum / float64(n)
		if mean < cfg.AoEMinMeanDeficit {
			continue
		}
		score := float64(n) * mean
		if !found || score > bestScore || (score == bestScore && center.EID < best.EID) {
			best, bestN, bestScore, found = center, n, score, true
		}
	}
	return best, bestN, found
}

// pickHealSpell walks the healer's priority list for the first usable
// heal. aoe selects splash heals when a cluster justifies one; targetDist
// drops spells the candidate is out of range for.
func pickHealSpell(sc *stepCtx, aoe bool, targetDist float32) (uint32, hostbridge.AbilityInfo, bool) {
	a := sc.a
	if !a.hasRot {
		return 0, hostbridge.AbilityInfo{}, false
	}
	var (
		fallback     uint32
		fallbackInfo hostbridge.AbilityInfo
		haveFallback bool
	)
	for _, ab := range a.rotation.Abilities {
		if !a.Knows(ab.Spell) {
			continue
		}
		info, ok := sc.e.host.AbilityInfo(ab.Spell)
		if !ok || !info.Is(hostbridge.EffectHeal|hostbridge.EffectHealOverTime|hostbridge.EffectAbsorbShield) {
			continue
		}
		if info.RangeYards > 0 && targetDist > info.RangeYards {
			continue
		}
		if !castable(sc, info) {
			continue
		}
		if info.Is(hostbridge.EffectAOE) == aoe {
			return ab.Spell, info, true
		}
		if !haveFallback {
			fallback, fallbackInfo, haveFallback = ab.Spell, info, true
		}
	}
	if haveFallback {
		return fallback, fallbackInfo, true
	}
	return 0, hostbridge.AbilityInfo{}, false
}
