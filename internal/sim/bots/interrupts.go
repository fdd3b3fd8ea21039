package bots

import (
	"context"
	"sync"

	"github.com/looplab/fsm"

	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/orders"
	"warband.ai/internal/sim/spatial"
)

// castKey identifies one enemy cast in flight. A caster restarting the same
// spell after an interrupt produces the same key again, which is fine: the
// old task has left the table by then.
type castKey struct {
	caster spatial.EID
	spell  uint32
}

type interruptTask struct {
	key        castKey
	priority   int
	detectedMS int64
	deadlineMS int64

	assignee spatial.EID
	spell    uint32 // assignee's interrupt ability
	emitted  bool

	state *fsm.FSM
}

func newInterruptTask(key castKey, priority int, nowMS, deadlineMS int64) *interruptTask {
	return &interruptTask{
		key:        key,
		priority:   priority,
		detectedMS: nowMS,
		deadlineMS: deadlineMS,
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

// interruptCoordinator owns the group's kick roster. One member scanning per
// cadence is enough; whichever agent steps first past the deadline runs the
// scan for everyone.
type interruptCoordinator struct {
	mu         sync.Mutex
	groupID    uint64
	lastScanMS int64
	active     map[castKey]*interruptTask
}

func newInterruptCoordinator(groupID uint64) *interruptCoordinator {
	return &interruptCoordinator{groupID: groupID, active: map[castKey]*interruptTask{}}
}

// observe runs maintenance every step and a detection scan on cadence.
// Called with the observing member's step context.
func (ic *interruptCoordinator) observe(sc *stepCtx) {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	ic.maintain(sc)
	if sc.nowMS-ic.lastScanMS < sc.cfg().InterruptScanMS {
		return
	}
	ic.lastScanMS = sc.nowMS
	ic.scan(sc)
}

// maintain settles finished casts and reassigns broken assignments.
func (ic *interruptCoordinator) maintain(sc *stepCtx) {
	ctx := context.Background()
	for key, t := range ic.active {
		caster, visible := sc.findCreature(key.caster)
		castGone := !visible || caster.IsDead || !caster.IsCasting || caster.CastSpell != key.spell

		switch t.state.Current() {
		case "DETECTED":
			if castGone || sc.nowMS >= t.deadlineMS {
				_ = t.state.Event(ctx, "expire")
				ic.settle(sc, key, t, orders.ResultExpired)
				continue
			}
			// Still unassigned; retry members who may have come off cooldown.
			ic.tryAssign(sc, t)

		case "ASSIGNED":
			if castGone {
				if t.emitted && sc.nowMS < t.deadlineMS {
					_ = t.state.Event(ctx, "fulfill")
					ic.settle(sc, key, t, orders.ResultFulfilled)
				} else {
					_ = t.state.Event(ctx, "expire")
					ic.settle(sc, key, t, orders.ResultExpired)
				}
				continue
			}
			if sc.nowMS >= t.deadlineMS {
				_ = t.state.Event(ctx, "miss")
				ic.settle(sc, key, t, orders.ResultMissed)
				continue
			}
			if !t.emitted && !ic.assigneeViable(sc, t) {
				remaining := t.deadlineMS - sc.nowMS
				if remaining > sc.cfg().ReassignAtRemainMS {
					prev := t.assignee
					t.assignee = 0
					ic.tryAssignExcluding(sc, t, prev)
				}
			}
		}
	}
}

func (ic *interruptCoordinator) settle(sc *stepCtx, key castKey, t *interruptTask, r orders.Result) {
	delete(ic.active, key)
	sc.e.recordOutcome(orders.Outcome{
		Tick:   sc.tick,
		AtMS:   sc.nowMS,
		Group:  ic.groupID,
		Kind:   orders.AssignInterrupt,
		Result: r,
		Agent:  t.assignee,
		Target: key.caster,
		Spell:  key.spell,
	})
}

// scan detects new interruptible casts in the observer's working radius.
func (ic *interruptCoordinator) scan(sc *stepCtx) {
	radius := sc.cfg().InterruptRadiusYards
	for _, c := range sc.creatures {
		if c.IsDead || !c.HostileHint || !c.IsCasting || c.CastSpell == 0 {
			continue
		}
		if !nearAnyMember(sc, c.Pos, radius) {
			continue
		}
		key := castKey{caster: c.EID, spell: c.CastSpell}
		if _, dup := ic.active[key]; dup {
			continue
		}
		castInfo, known := sc.e.host.AbilityInfo(c.CastSpell)
		if known && !castInfo.Interruptible {
			continue
		}
		pri := interruptPriority(sc, c, castInfo, known)
		t := newInterruptTask(key, pri, sc.nowMS, sc.nowMS+int64(c.CastRemainingMS))
		ic.active[key] = t
		ic.tryAssign(sc, t)
	}
}

func (ic *interruptCoordinator) tryAssign(sc *stepCtx, t *interruptTask) {
	ic.tryAssignExcluding(sc, t, 0)
}

func (ic *interruptCoordinator) tryAssignExcluding(sc *stepCtx, t *interruptTask, exclude spatial.EID) {
	caster, ok := sc.findCreature(t.key.caster)
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
		if m.EID == exclude || m.IsDead || m.IsCrowdControlled() {
			continue
		}
		// Silence blocks the kick even when it is off cooldown.
		if m.AuraBits&spatial.AuraSilenced != 0 {
			continue
		}
		ag := sc.e.agent(m.EID)
		if ag == nil || ag.kit.Interrupt.Spell == 0 || !ag.Knows(ag.kit.Interrupt.Spell) {
			continue
		}
		ready := ag.advInterruptReadyMS.Load() <= sc.nowMS
		if !ready {
			continue
		}
		info, infoOK := sc.e.host.AbilityInfo(ag.kit.Interrupt.Spell)
		reach := float32(5)
		if infoOK && info.RangeYards > 0 {
			reach = info.RangeYards
		}
		d := m.Pos.DistanceTo(caster.Pos)
		if d > float64(reach) {
			continue
		}
		score := 1000 - d
		if m.Role == spatial.RoleHealer {
			score -= 300
		}
		if infoOK {
			score -= float64(info.CooldownMS) / 1000
		}
		if !found || score > bestScore || (score == bestScore && m.EID < best) {
			best, bestSpell, bestScore, found = m.EID, ag.kit.Interrupt.Spell, score, true
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

func (ic *interruptCoordinator) assigneeViable(sc *stepCtx, t *interruptTask) bool {
	m, ok := sc.findMember(t.assignee)
	if !ok || m.IsDead || m.IsCrowdControlled() || m.AuraBits&spatial.AuraSilenced != 0 {
		return false
	}
	return true
}

// claimEmit hands the assignment to its agent exactly once.
func (ic *interruptCoordinator) claimEmit(agent spatial.EID, nowMS int64) (spell uint32, target spatial.EID, priority uint8, ok bool) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	for _, t := range ic.active {
		if t.state.Current() != "ASSIGNED" || t.assignee != agent || t.emitted {
			continue
		}
		if nowMS >= t.deadlineMS {
			continue
		}
		t.emitted = true
		return t.spell, t.key.caster, clampPriority(t.priority), true
	}
	return 0, 0, 0, false
}

func (ic *interruptCoordinator) pendingFor(agent spatial.EID) bool {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	for _, t := range ic.active {
		if t.assignee == agent && !t.emitted && t.state.Current() == "ASSIGNED" {
			return true
		}
	}
	return false
}

func (ic *interruptCoordinator) depth() int {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return len(ic.active)
}

// interruptPriority scores how badly this cast needs to die.
func interruptPriority(sc *stepCtx, c spatial.CreatureSnapshot, castInfo hostbridge.AbilityInfo, known bool) int {
	pri := float64(PriorityInterruptBase)
	if known {
		if castInfo.Is(hostbridge.EffectHeal) || castInfo.Is(hostbridge.EffectHealOverTime) {
			pri += 90
		}
		if castInfo.Effects&hostbridge.EffectCrowdControl != 0 {
			pri += 100
		}
	}
	switch {
	case c.CastRemainingMS >= 2500:
		pri += 30
	case c.CastRemainingMS >= 1500:
		pri += 20
	default:
		pri += 15
	}
	if info, ok := sc.e.host.CreatureInfo(c.Entry); ok {
		switch info.Rank {
		case hostbridge.RankBoss:
			pri += 200
		case hostbridge.RankRareElite, hostbridge.RankElite:
			pri += 75
		}
	}
	if sc.group != nil && !c.CastTarget.IsZero() && c.CastTarget == sc.group.MainTank() {
		pri *= 1.2
	}
	return int(pri)
}

func clampPriority(p int) uint8 {
	if p < int(PriorityEmergencyFloor) {
		p = PriorityEmergencyFloor
	}
	if p > 255 {
		p = 255
	}
	return uint8(p)
}

func nearAnyMember(sc *stepCtx, pos spatial.Position, radius float32) bool {
	if len(sc.members) == 0 {
		return sc.distanceTo(pos) <= radius
	}
	for _, m := range sc.members {
		if m.Pos.DistanceTo(pos) <= float64(radius) {
			return true
		}
	}
	return false
}
