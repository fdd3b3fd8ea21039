package bots

import (
	"context"
	"sync"

	"github.com/looplab/fsm"

	"warband.ai/internal/sim/catalogs"
	"warband.ai/internal/sim/orders"
	"warband.ai/internal/sim/spatial"
)

type severity uint8

const (
	sevNone severity = iota
	sevPreemptive
	sevMinor
	sevModerate
	sevMajor
	sevCritical
)

func (s severity) String() string {
	switch s {
	case sevPreemptive:
		return "preemptive"
	case sevMinor:
		return "minor"
	case sevModerate:
		return "moderate"
	case sevMajor:
		return "major"
	case sevCritical:
		return "critical"
	default:
		return "none"
	}
}

// severityFor buckets predicted health. Thresholds are inclusive at the
// boundary and scale by role: tanks ride lower before popping anything.
func severityFor(cfg *Config, role spatial.Role, predictedPct float32, dps float64, maxHealth int64) severity {
	scale := roleScale(cfg, role)
	switch {
	case predictedPct <= cfg.MajorPct*scale:
		return sevCritical
	case predictedPct <= cfg.ModeratePct*scale:
		return sevMajor
	case predictedPct <= cfg.MinorPct*scale:
		return sevModerate
	case predictedPct <= cfg.PreemptivePct*scale:
		return sevMinor
	}
	// Healthy but bleeding fast: cheap mitigation up front beats a panic
	// button later.
	if maxHealth > 0 && dps > 0 {
		pctPerSec := dps / float64(maxHealth) * 100
		if pctPerSec >= preemptiveDPSPctPerSec {
			return sevPreemptive
		}
	}
	return sevNone
}

const (
	preemptiveDPSPctPerSec = 15.0
	defensiveSpacingMS     = 2500
	externalDeadlineMS     = 2500
	externalSettleGraceMS  = 1500
)

func roleScale(cfg *Config, role spatial.Role) float32 {
	switch role {
	case spatial.RoleTank:
		return cfg.ScaleTank
	case spatial.RoleHealer:
		return cfg.ScaleHealer
	default:
		return cfg.ScaleDamage
	}
}

// pickPersonalDefensive selects the best self-defensive for the current
// intake, or ok=false when nothing fits.
func pickPersonalDefensive(sc *stepCtx, sev severity, predictedPct float32, profile intakeProfile) (catalogs.DefensiveDef, bool) {
	a := sc.a
	if sc.nowMS-a.lastDefensiveMS < defensiveSpacingMS {
		return catalogs.DefensiveDef{}, false
	}

	var (
		best      catalogs.DefensiveDef
		bestScore float64
		found     bool
	)
	for _, d := range a.defensives {
		if d.External || !a.Knows(d.Spell) {
			continue
		}
		if !a.cool.ready(d.Spell, sc.nowMS) {
			continue
		}
		if predictedPct < d.HPMin || predictedPct > d.HPMax {
			continue
		}
		if !requiresMatch(d.Requires, profile) {
			continue
		}
		score := scoreDefensive(sc.cfg(), d, sev, sc.nowMS, a)
		if !found || score > bestScore || (score == bestScore && d.DurationMS > best.DurationMS) {
			best, bestScore, found = d, score, true
		}
	}
	return best, found
}

func requiresMatch(req string, p intakeProfile) bool {
	switch req {
	case "":
		return true
	case "melee":
		return p.meleeShare >= 0.5
	case "magic":
		return p.magicShare >= 0.5
	case "multi_target":
		return p.multiTarget
	default:
		return false
	}
}

var tierRank = map[string]int{
	catalogs.TierImmunity:          4,
	catalogs.TierMajorReduction:    3,
	catalogs.TierModerateReduction: 2,
	catalogs.TierAvoidance:         1,
	catalogs.TierRegeneration:      0,
}

func desiredTierRank(sev severity) int {
	switch sev {
	case sevCritical:
		return 4
	case sevMajor:
		return 3
	case sevModerate:
		return 2
	default:
		return 1
	}
}

// scoreDefensive rewards tier fit over raw strength: burning an immunity on
// a scratch is as wrong as a drink at one percent.
func scoreDefensive(cfg *Config, d catalogs.DefensiveDef, sev severity, nowMS int64, a *Agent) float64 {
	gap := tierRank[d.Tier] - desiredTierRank(sev)
	if gap < 0 {
		gap = -gap
	}
	score := 100 - float64(gap)*25

	if dur := float64(d.DurationMS) / 1000; dur > 0 {
		if dur > 10 {
			dur = 10
		}
		score += dur
	}
	if at, used := a.recentCasts[castMark{spell: d.Spell, target: a.cfg.EID}]; used && nowMS-at < cfg.DefensiveRecentUseMS {
		score -= 30
	}
	if d.NoGCD {
		score += 15
	}
	return score
}

func defensivePriority(sev severity) uint8 {
	switch sev {
	case sevCritical:
		return PriorityDefensiveCritical
	case sevMajor:
		return PriorityDefensiveMajor
	case sevModerate:
		return PriorityDefensiveModerate
	case sevMinor:
		return PriorityDefensiveMinor
	default:
		return PriorityDefensiveMinor - 20
	}
}

// externalCoordinator hands out group externals. One grant per target per
// reuse window, and a settled grant never chains into a second one just
// because the first looked wasted.
type externalCoordinator struct {
	mu        sync.Mutex
	groupID   uint64
	lastGrant map[spatial.EID]int64
	pending   map[spatial.EID]*externalTask
}

type externalTask struct {
	target    spatial.EID
	assignee  spatial.EID
	spell     uint32
	priority  int
	createdMS int64
	emitted   bool
	emittedMS int64
	state     *fsm.FSM
}

func newExternalCoordinator(groupID uint64) *externalCoordinator {
	return &externalCoordinator{
		groupID:   groupID,
		lastGrant: map[spatial.EID]int64{},
		pending:   map[spatial.EID]*externalTask{},
	}
}

func newExternalTask(target spatial.EID, nowMS int64) *externalTask {
	return &externalTask{
		target:    target,
		createdMS: nowMS,
		state: fsm.NewFSM(
			"DETECTED",
			fsm.Events{
				{Name: "assign", Src: []string{"DETECTED"}, Dst: "ASSIGNED"},
				{Name: "fulfill", Src: []string{"ASSIGNED"}, Dst: "FULFILLED"},
				{Name: "miss", Src: []string{"DETECTED", "ASSIGNED"}, Dst: "MISSED"},
				{Name: "expire", Src: []string{"DETECTED", "ASSIGNED"}, Dst: "EXPIRED"},
			},
			fsm.Callbacks{},
		),
	}
}

func (ec *externalCoordinator) observe(sc *stepCtx) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.maintain(sc)
	ec.detect(sc)
}

func (ec *externalCoordinator) maintain(sc *stepCtx) {
	ctx := context.Background()
	for target, t := range ec.pending {
		m, visible := sc.findMember(target)
		switch {
		case !visible || m.IsDead:
			_ = t.state.Event(ctx, "expire")
			ec.settle(sc, t, orders.ResultExpired)
		case t.emitted:
			if m.HasAura(t.spell) || sc.nowMS-t.emittedMS >= externalSettleGraceMS {
				_ = t.state.Event(ctx, "fulfill")
				ec.settle(sc, t, orders.ResultFulfilled)
			}
		case sc.nowMS-t.createdMS >= externalDeadlineMS:
			_ = t.state.Event(ctx, "miss")
			ec.settle(sc, t, orders.ResultMissed)
		case recoveredAboveMajor(sc, m):
			_ = t.state.Event(ctx, "expire")
			ec.settle(sc, t, orders.ResultExpired)
		case t.state.Current() == "DETECTED":
			ec.tryAssign(sc, t)
		}
	}
}

func recoveredAboveMajor(sc *stepCtx, m spatial.PlayerSnapshot) bool {
	scale := roleScale(sc.cfg(), m.Role)
	return m.HealthPct > sc.cfg().ModeratePct*scale
}

func (ec *externalCoordinator) settle(sc *stepCtx, t *externalTask, r orders.Result) {
	delete(ec.pending, t.target)
	// The reuse window starts at settlement either way; a second external
	// right behind a failed one is the cascade this guard exists to stop.
	ec.lastGrant[t.target] = sc.nowMS
	sc.e.recordOutcome(orders.Outcome{
		Tick:   sc.tick,
		AtMS:   sc.nowMS,
		Group:  ec.groupID,
		Kind:   orders.AssignExternal,
		Result: r,
		Agent:  t.assignee,
		Target: t.target,
		Spell:  t.spell,
	})
}

func (ec *externalCoordinator) detect(sc *stepCtx) {
	cfg := sc.cfg()
	for _, m := range sc.members {
		if m.IsDead {
			continue
		}
		if _, already := ec.pending[m.EID]; already {
			continue
		}
		if sc.nowMS-ec.lastGrant[m.EID] < cfg.ExternalReuseMS {
			continue
		}
		ag := sc.e.agent(m.EID)
		if ag == nil {
			continue
		}
		scale := roleScale(cfg, m.Role)
		predicted := float32(ag.advPredictedPct.Load())
		if predicted > cfg.ModeratePct*scale {
			continue
		}
		// Their own wall comes first; step in only when it is down.
		if ag.advMajorReadyMS.Load() <= sc.nowMS {
			continue
		}
		t := newExternalTask(m.EID, sc.nowMS)
		t.priority = PriorityExternal
		ec.pending[m.EID] = t
		ec.tryAssign(sc, t)
	}
}

func (ec *externalCoordinator) tryAssign(sc *stepCtx, t *externalTask) {
	target, ok := sc.findMember(t.target)
	if !ok {
		return
	}
	var (
		best      spatial.EID
		bestSpell uint32
		bestScore float64
		found     bool
	)
	for _, m := range sc.members {
		if m.EID == t.target || m.IsDead || m.IsCrowdControlled() {
			continue
		}
		ag := sc.e.agent(m.EID)
		if ag == nil || len(ag.kit.Externals) == 0 {
			continue
		}
		if ag.advExternalReadyMS.Load() > sc.nowMS {
			continue
		}
		d := m.Pos.DistanceTo(target.Pos)
		if d > float64(sc.cfg().HealMaxRangeYards) {
			continue
		}
		spell := pickExternalSpell(sc, ag, target)
		if spell == 0 {
			continue
		}
		score := 100 - d
		if m.Role == spatial.RoleHealer {
			score += 200
		}
		if !found || score > bestScore || (score == bestScore && m.EID < best) {
			best, bestSpell, bestScore, found = m.EID, spell, score, true
		}
	}
	if !found {
		return
	}
	t.assignee = best
	t.spell = bestSpell
	if t.state.Current() == "DETECTED" {
		_ = t.state.Event(context.Background(), "assign")
	}
}

// pickExternalSpell prefers the external whose health window matches the
// target, falling back to any ready one.
func pickExternalSpell(sc *stepCtx, ag *Agent, target spatial.PlayerSnapshot) uint32 {
	var fallback uint32
	for _, s := range ag.kit.Externals {
		if !ag.Knows(s) || ag.cool.readyAtMS(s) > sc.nowMS {
			continue
		}
		if fallback == 0 {
			fallback = s
		}
		for _, d := range ag.defensives {
			if d.Spell != s || !d.External {
				continue
			}
			if target.HealthPct >= d.HPMin && target.HealthPct <= d.HPMax {
				return s
			}
		}
	}
	return fallback
}

// claimEmit hands a granted external to its assignee exactly once.
func (ec *externalCoordinator) claimEmit(agent spatial.EID, nowMS int64) (spell uint32, target spatial.EID, priority uint8, ok bool) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	for _, t := range ec.pending {
		if t.state.Current() != "ASSIGNED" || t.assignee != agent || t.emitted {
			continue
		}
		t.emitted = true
		t.emittedMS = nowMS
		return t.spell, t.target, clampPriority(t.priority), true
	}
	return 0, 0, 0, false
}

func (ec *externalCoordinator) pendingFor(agent spatial.EID) bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	for _, t := range ec.pending {
		if t.assignee == agent && !t.emitted && t.state.Current() == "ASSIGNED" {
			return true
		}
	}
	return false
}

func (ec *externalCoordinator) depth() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return len(ec.pending)
}
