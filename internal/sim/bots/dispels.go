package bots

import (
	"context"
	"sync"

	"github.com/looplab/fsm"

	"warband.ai/internal/sim/catalogs"
	"warband.ai/internal/sim/orders"
	"warband.ai/internal/sim/spatial"
)

type dispelKey struct {
	target spatial.EID
	aura   uint32
}

// dispelTask is one (target, aura) pair the group should strip. hostile
// tasks are purges and run against creature buffs.
type dispelTask struct {
	key       dispelKey
	class     spatial.DispelClass
	band      string
	score     float64
	hostile   bool
	assignee  spatial.EID
	spell     uint32
	createdMS int64
	expiryMS  int64 // aura expiry when the host reports one, else 0
	emitted   bool
	emittedMS int64
	state     *fsm.FSM
}

// dispelCoordinator assigns dispels and purges across one group. The
// recent set doubles as the completion broadcast: a settled pair stays
// out of the candidate list until the guard lapses.
type dispelCoordinator struct {
	mu         sync.Mutex
	groupID    uint64
	lastScanMS int64
	active     map[dispelKey]*dispelTask
	recent     map[dispelKey]int64
	lastEmitBy map[spatial.EID]int64
}

func newDispelCoordinator(groupID uint64) *dispelCoordinator {
	return &dispelCoordinator{
		groupID:    groupID,
		active:     map[dispelKey]*dispelTask{},
		recent:     map[dispelKey]int64{},
		lastEmitBy: map[spatial.EID]int64{},
	}
}

func newDispelTask(key dispelKey, nowMS int64) *dispelTask {
	return &dispelTask{
		key:       key,
		createdMS: nowMS,
		state: fsm.NewFSM(
			"DETECTED",
			fsm.Events{
				{Name: "assign", Src: []string{"DETECTED"}, Dst: "ASSIGNED"},
				{Name: "fulfill", Src: []string{"ASSIGNED"}, Dst: "FULFILLED"},
				{Name: "miss", Src: []string{"ASSIGNED"}, Dst: "MISSED"},
				{Name: "expire", Src: []string{"DETECTED", "ASSIGNED"}, Dst: "EXPIRED"},
			},
			fsm.Callbacks{},
		),
	}
}

func bandRank(band string) int {
	switch band {
	case catalogs.BandDeath:
		return 6
	case catalogs.BandIncapacitate:
		return 5
	case catalogs.BandDangerous:
		return 4
	case catalogs.BandModerate:
		return 3
	case catalogs.BandMinor:
		return 2
	case catalogs.BandTrivial:
		return 1
	default:
		// Unlisted debuffs are treated as MODERATE rather than ignored.
		return 3
	}
}

func dispelEmitPriority(band string) uint8 {
	switch band {
	case catalogs.BandDeath:
		return PriorityHealCritical
	case catalogs.BandIncapacitate:
		return PriorityDefensiveModerate
	case catalogs.BandDangerous:
		return PriorityDispel + 10
	default:
		return PriorityDispel
	}
}

func (dc *dispelCoordinator) observe(sc *stepCtx) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	dc.maintain(sc)
	if sc.nowMS-dc.lastScanMS >= sc.cfg().DispelScanMS {
		dc.lastScanMS = sc.nowMS
		dc.scanFriendly(sc)
		dc.scanHostile(sc)
	}
}

func (dc *dispelCoordinator) maintain(sc *stepCtx) {
	ctx := context.Background()
	for _, t := range dc.active {
		gone, targetLost := dc.auraGone(sc, t)
		switch {
		case targetLost:
			_ = t.state.Event(ctx, "expire")
			dc.settle(sc, t, orders.ResultExpired)
		case gone:
			if t.emitted {
				_ = t.state.Event(ctx, "fulfill")
				dc.settle(sc, t, orders.ResultFulfilled)
			} else {
				_ = t.state.Event(ctx, "expire")
				dc.settle(sc, t, orders.ResultExpired)
			}
		case t.expiryMS > 0 && sc.nowMS >= t.expiryMS:
			if t.state.Current() == "ASSIGNED" && !t.emitted {
				_ = t.state.Event(ctx, "miss")
				dc.settle(sc, t, orders.ResultMissed)
			} else {
				_ = t.state.Event(ctx, "expire")
				dc.settle(sc, t, orders.ResultExpired)
			}
		case t.state.Current() == "DETECTED":
			dc.tryAssign(sc, t)
		case t.state.Current() == "ASSIGNED" && !t.emitted && !dc.assigneeViable(sc, t):
			t.assignee = 0
			t.spell = 0
			dc.tryAssign(sc, t)
		}
	}
}

// auraGone reports whether the tracked aura left its target, and whether
// the target itself left visibility or died.
func (dc *dispelCoordinator) auraGone(sc *stepCtx, t *dispelTask) (gone, targetLost bool) {
	if t.hostile {
		c, ok := sc.findCreature(t.key.target)
		if !ok || c.IsDead {
			return true, true
		}
		for _, a := range c.Buffs {
			if a.ID == t.key.aura {
				return false, false
			}
		}
		return true, false
	}
	m, ok := sc.findMember(t.key.target)
	if !ok || m.IsDead {
		return true, true
	}
	for _, a := range m.Debuffs {
		if a.ID == t.key.aura {
			return false, false
		}
	}
	return true, false
}

func (dc *dispelCoordinator) settle(sc *stepCtx, t *dispelTask, r orders.Result) {
	delete(dc.active, t.key)
	dc.recent[t.key] = sc.nowMS
	sc.e.recordOutcome(orders.Outcome{
		Tick:   sc.tick,
		AtMS:   sc.nowMS,
		Group:  dc.groupID,
		Kind:   orders.AssignDispel,
		Result: r,
		Agent:  t.assignee,
		Target: t.key.target,
		Spell:  t.key.aura,
	})
	if len(dc.recent) >= 64 {
		for k, at := range dc.recent {
			if sc.nowMS-at > sc.cfg().DispelRecentMS {
				delete(dc.recent, k)
			}
		}
	}
}

func (dc *dispelCoordinator) scanFriendly(sc *stepCtx) {
	for _, m := range sc.members {
		if m.IsDead {
			continue
		}
		for _, aura := range m.Debuffs {
			if aura.Class == spatial.DispelNone || aura.Class == spatial.DispelEnrage {
				continue
			}
			key := dispelKey{target: m.EID, aura: aura.ID}
			if _, dup := dc.active[key]; dup {
				continue
			}
			if at, seen := dc.recent[key]; seen && sc.nowMS-at < sc.cfg().DispelRecentMS {
				continue
			}
			band := sc.e.dispelBand(aura.ID, false)
			t := newDispelTask(key, sc.nowMS)
			t.class = aura.Class
			t.band = band
			t.expiryMS = aura.Expiry
			t.score = dispelScore(band, m)
			dc.active[key] = t
			dc.tryAssign(sc, t)
		}
	}
}

func (dc *dispelCoordinator) scanHostile(sc *stepCtx) {
	for _, c := range sc.creatures {
		if c.IsDead || !c.HostileHint {
			continue
		}
		for _, aura := range c.Buffs {
			if aura.Class != spatial.DispelMagic && aura.Class != spatial.DispelEnrage {
				continue
			}
			key := dispelKey{target: c.EID, aura: aura.ID}
			if _, dup := dc.active[key]; dup {
				continue
			}
			if at, seen := dc.recent[key]; seen && sc.nowMS-at < sc.cfg().DispelRecentMS {
				continue
			}
			band := sc.e.dispelBand(aura.ID, true)
			if band == "" {
				if aura.Class == spatial.DispelEnrage {
					band = catalogs.BandDangerous
				} else {
					band = catalogs.BandMinor
				}
			}
			if band == catalogs.BandTrivial {
				continue
			}
			t := newDispelTask(key, sc.nowMS)
			t.class = aura.Class
			t.band = band
			t.hostile = true
			t.expiryMS = aura.Expiry
			t.score = float64(bandRank(band)) * 100
			dc.active[key] = t
			dc.tryAssign(sc, t)
		}
	}
}

// dispelScore ranks friendly candidates: band first, then who carries it.
func dispelScore(band string, m spatial.PlayerSnapshot) float64 {
	score := float64(bandRank(band)) * 100
	switch m.Role {
	case spatial.RoleTank:
		score += 30
	case spatial.RoleHealer:
		score += 25
	}
	score += float64(100-m.HealthPct) * 0.5
	return score
}

func (dc *dispelCoordinator) tryAssign(sc *stepCtx, t *dispelTask) {
	targetPos, ok := dc.taskTargetPos(sc, t)
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
		if m.IsDead || m.IsCrowdControlled() {
			continue
		}
		ag := sc.e.agent(m.EID)
		if ag == nil {
			continue
		}
		spell := dispellerSpell(ag, t)
		if spell == 0 || !ag.Knows(spell) {
			continue
		}
		if ag.advDispelReadyMS.Load() > sc.nowMS {
			continue
		}
		if last, used := dc.lastEmitBy[m.EID]; used && sc.nowMS-last < sc.cfg().DispelRateLimitMS {
			continue
		}
		d := m.Pos.DistanceTo(targetPos)
		if d > float64(sc.cfg().HealMaxRangeYards) {
			continue
		}
		score := 100 - d
		if m.Role == spatial.RoleHealer {
			score += 100
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

func (dc *dispelCoordinator) taskTargetPos(sc *stepCtx, t *dispelTask) (spatial.Position, bool) {
	if t.hostile {
		c, ok := sc.findCreature(t.key.target)
		return c.Pos, ok
	}
	m, ok := sc.findMember(t.key.target)
	return m.Pos, ok
}

// dispellerSpell returns the cast this agent would use for the task, or 0
// when its kit cannot touch the aura class.
func dispellerSpell(ag *Agent, t *dispelTask) uint32 {
	if t.hostile {
		return ag.kit.PurgeSpell
	}
	if ag.kit.DispelSpell == 0 {
		return 0
	}
	want := t.class.String()
	for _, c := range ag.kit.Dispels {
		if c == want {
			return ag.kit.DispelSpell
		}
	}
	return 0
}

func (dc *dispelCoordinator) assigneeViable(sc *stepCtx, t *dispelTask) bool {
	m, ok := sc.findMember(t.assignee)
	if !ok || m.IsDead || m.IsCrowdControlled() {
		return false
	}
	ag := sc.e.agent(t.assignee)
	if ag == nil {
		return false
	}
	return ag.advDispelReadyMS.Load() <= sc.nowMS+sc.cfg().DispelRateLimitMS
}

// claimEmit releases this agent's best pending dispel exactly once and
// starts its rate-limit window.
func (dc *dispelCoordinator) claimEmit(agent spatial.EID, nowMS int64) (spell uint32, target spatial.EID, hostile bool, priority uint8, ok bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	var best *dispelTask
	for _, t := range dc.active {
		if t.state.Current() != "ASSIGNED" || t.assignee != agent || t.emitted {
			continue
		}
		if best == nil || t.score > best.score {
			best = t
		}
	}
	if best == nil {
		return 0, 0, false, 0, false
	}
	best.emitted = true
	best.emittedMS = nowMS
	dc.lastEmitBy[agent] = nowMS
	return best.spell, best.key.target, best.hostile, dispelEmitPriority(best.band), true
}

func (dc *dispelCoordinator) pendingFor(agent spatial.EID) bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	for _, t := range dc.active {
		if t.assignee == agent && !t.emitted && t.state.Current() == "ASSIGNED" {
			return true
		}
	}
	return false
}

func (dc *dispelCoordinator) depth() int {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return len(dc.active)
}
