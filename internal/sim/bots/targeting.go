package bots

import (
	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/spatial"
)

// Validation bits for target candidates. A candidate must pass every bit
// the caller requests.
const (
	ValidAlive uint32 = 1 << iota
	ValidHostile
	ValidInRange
	ValidLineOfSight
	ValidNotImmune
	ValidNotEvading
	ValidNotCrowdControlled
	ValidCasting
)

// targetReq describes what a strategy needs in a creature target.
type targetReq struct {
	validations uint32
	maxRange    float32
	// focus biases scoring toward the group's called target.
	focus spatial.EID
}

// lineOfSighter is implemented by hosts that can answer visibility checks.
// Hosts without it skip the check.
type lineOfSighter interface {
	InLineOfSight(from, to spatial.Position) bool
}

// selectCreature ranks the shared scan against the request and returns the
// best candidate. The reason names the dominant rejection when nothing
// qualifies.
func selectCreature(sc *stepCtx, req targetReq) (spatial.CreatureSnapshot, bool, string) {
	var (
		best      spatial.CreatureSnapshot
		bestScore float64
		found     bool
		rejects   = map[string]int{}
	)
	for _, c := range sc.creatures {
		if ok, why := validateCreature(sc, c, req); !ok {
			rejects[why]++
			continue
		}
		score := scoreCreature(sc, c, req)
		if !found || score > bestScore || (score == bestScore && c.EID < best.EID) {
			best = c
			bestScore = score
			found = true
		}
	}
	if found {
		return best, true, ""
	}
	return spatial.CreatureSnapshot{}, false, dominantReason(rejects)
}

func validateCreature(sc *stepCtx, c spatial.CreatureSnapshot, req targetReq) (bool, string) {
	v := req.validations
	if v&ValidAlive != 0 && (c.IsDead || c.Health <= 0) {
		return false, "dead"
	}
	if v&ValidHostile != 0 && !c.HostileHint {
		return false, "not hostile"
	}
	if v&ValidInRange != 0 && req.maxRange > 0 && sc.distanceTo(c.Pos) > req.maxRange {
		return false, "out of range"
	}
	if v&ValidNotImmune != 0 && c.AuraBits&spatial.AuraImmune != 0 {
		return false, "immune"
	}
	if v&ValidNotEvading != 0 && c.AuraBits&spatial.AuraEvading != 0 {
		return false, "evading"
	}
	if v&ValidNotCrowdControlled != 0 && c.IsCrowdControlled() {
		return false, "crowd controlled"
	}
	if v&ValidCasting != 0 && !c.IsCasting {
		return false, "not casting"
	}
	if v&ValidLineOfSight != 0 && sc.e.los != nil && !sc.e.los.InLineOfSight(sc.self.Pos, c.Pos) {
		return false, "no line of sight"
	}
	return true, ""
}

// scoreCreature blends the signals that make a creature worth hitting now:
// stickiness to the current target, threat already held, proximity, execute
// range, an interruptible cast, creature rank, and the group focus call.
func scoreCreature(sc *stepCtx, c spatial.CreatureSnapshot, req targetReq) float64 {
	var score float64

	if c.EID == sc.a.target {
		score += 15
	}
	if t := sc.a.threat.on(c.EID); t > 0 {
		bonus := t / 100
		if bonus > 20 {
			bonus = 20
		}
		score += bonus
	}
	if req.maxRange > 0 {
		d := sc.distanceTo(c.Pos)
		if d < req.maxRange {
			score += float64((req.maxRange - d) / req.maxRange * 10)
		}
	}
	score += float64((100 - c.HealthPct()) / 10)
	if c.IsCasting {
		score += 12
	}
	if info, ok := sc.e.host.CreatureInfo(c.Entry); ok {
		switch info.Rank {
		case hostbridge.RankBoss:
			score += 20
		case hostbridge.RankRareElite:
			score += 12
		case hostbridge.RankElite:
			score += 8
		}
	}
	if !req.focus.IsZero() && c.EID == req.focus {
		score += 25
	}
	return score
}

func dominantReason(rejects map[string]int) string {
	if len(rejects) == 0 {
		return "no candidates"
	}
	best, n := "", -1
	for why, c := range rejects {
		if c > n || (c == n && why < best) {
			best, n = why, c
		}
	}
	return best
}
