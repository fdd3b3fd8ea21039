package bots

import "math"

// wanderStrategy gives idle agents somewhere to be. Destinations come
// from a hash of identity and time, so replays of the same round produce
// the same stroll.
type wanderStrategy struct{}

func (wanderStrategy) Name() string { return "wander" }

func (wanderStrategy) Active(sc *stepCtx) bool {
	return !sc.self.IsDead && !sc.self.IsCrowdControlled() && !sc.a.combat
}

func (wanderStrategy) Relevance(sc *stepCtx) int {
	return RelevanceIdleCeil - 20
}

func (wanderStrategy) Update(sc *stepCtx) {
	if sc.nowMS < sc.a.wanderNextMS {
		return
	}
	sc.a.wanderNextMS = sc.nowMS + sc.cfg().WanderPauseMS

	radius := float64(sc.cfg().WanderRadiusYards)
	angle := wanderAngle(uint64(sc.a.cfg.EID), uint64(sc.nowMS))
	dest := sc.self.Pos
	dest.X += float32(math.Cos(angle) * radius)
	dest.Y += float32(math.Sin(angle) * radius)
	sc.requestMove(MoveIdle, dest, true, "wander")
}

func wanderAngle(eid, nowMS uint64) float64 {
	h := eid*0x9e3779b97f4a7c15 + nowMS
	h ^= h >> 30
	h *= 0xbf58476d1ce4e5b9
	h ^= h >> 27
	return float64(h%3600) / 3600 * 2 * math.Pi
}
