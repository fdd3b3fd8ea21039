package bots

import (
	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/orders"
	"warband.ai/internal/sim/spatial"
)

type objKey struct {
	quest uint32
	index int
}

type objectiveStatus uint8

const (
	objActive objectiveStatus = iota
	objComplete
)

func (s objectiveStatus) String() string {
	if s == objComplete {
		return "complete"
	}
	return "active"
}

// objectiveState tracks one quest objective's progress as reported by the
// host, plus enough history to notice when the agent stopped making any.
type objectiveState struct {
	status       objectiveStatus
	current      uint32
	required     uint32
	lastUpdateMS int64
	lastPollMS   int64
	velocity     float64 // progress per second, smoothed
	failures     int
	stuck        bool
	lastKnownPos spatial.Position
	hasPos       bool
}

func (os *objectiveState) etaSeconds() float64 {
	if os.status == objComplete || os.velocity <= 0 {
		return 0
	}
	return float64(os.required-os.current) / os.velocity
}

// questState is the per-agent quest ledger. The quest log itself is host
// truth fed through the inbox; everything else is derived.
type questState struct {
	log        []uint32
	objectives map[objKey]*objectiveState

	giverBackoffMS int64
	giverNextMS    int64
}

func (qs *questState) setLog(quests []uint32) {
	qs.log = quests
	if qs.objectives == nil {
		return
	}
	keep := map[uint32]bool{}
	for _, q := range quests {
		keep[q] = true
	}
	for key := range qs.objectives {
		if !keep[key.quest] {
			delete(qs.objectives, key)
		}
	}
}

func (qs *questState) state(key objKey) *objectiveState {
	if qs.objectives == nil {
		qs.objectives = map[objKey]*objectiveState{}
	}
	os := qs.objectives[key]
	if os == nil {
		os = &objectiveState{}
		qs.objectives[key] = os
	}
	return os
}

// update polls host progress counters on the configured cadence and
// refreshes velocity and stagnation for every tracked objective.
func (qs *questState) update(sc *stepCtx) {
	cfg := sc.cfg()
	for _, quest := range qs.log {
		info, ok := sc.e.host.QuestInfo(quest)
		if !ok {
			continue
		}
		for idx, obj := range info.Objectives {
			key := objKey{quest: quest, index: idx}
			os := qs.state(key)
			os.required = obj.Required
			if os.lastUpdateMS == 0 {
				os.lastUpdateMS = sc.nowMS
			}
			if sc.nowMS-os.lastPollMS < cfg.QuestPollMS {
				continue
			}
			prevPoll := os.lastPollMS
			os.lastPollMS = sc.nowMS

			progress := sc.e.host.ObjectiveProgress(sc.a.cfg.EID, quest, idx)
			if progress < os.current {
				// Host counters never go backwards; treat a regression
				// as a fresh counter after a host-side reset.
				os.current = progress
				os.lastUpdateMS = sc.nowMS
				continue
			}
			if progress > os.current {
				if dt := float64(sc.nowMS-prevPoll) / 1000; prevPoll > 0 && dt > 0 {
					inst := float64(progress-os.current) / dt
					os.velocity = 0.5*os.velocity + 0.5*inst
				}
				os.current = progress
				os.lastUpdateMS = sc.nowMS
				os.failures = 0
				os.stuck = false
			}
			if os.current >= os.required && os.required > 0 {
				os.status = objComplete
				os.stuck = false
				continue
			}
			if os.status == objActive && sc.nowMS-os.lastUpdateMS > cfg.QuestStagnationMS {
				if !os.stuck {
					os.stuck = true
					os.failures++
				}
			}
		}
	}
}

// noteTargetSeen pins the last position a matching objective target was
// observed at, so the agent can return there after a detour.
func (qs *questState) noteTargetSeen(key objKey, pos spatial.Position) {
	os := qs.state(key)
	os.lastKnownPos = pos
	os.hasPos = true
}

// nextSubGoal routes the first workable objective to a concrete next
// step. Stuck objectives are deferred while any fresh one remains, then
// retried rather than abandoned.
func (qs *questState) nextSubGoal(sc *stepCtx) (orders.SubGoal, bool) {
	var (
		fallback  orders.SubGoal
		haveStuck bool
	)
	for _, quest := range qs.log {
		info, ok := sc.e.host.QuestInfo(quest)
		if !ok {
			continue
		}
		for idx, obj := range info.Objectives {
			key := objKey{quest: quest, index: idx}
			os := qs.state(key)
			if os.status == objComplete {
				continue
			}
			sg, routed := routeObjective(sc, info, key, obj)
			if !routed {
				continue
			}
			if os.stuck {
				if !haveStuck {
					fallback, haveStuck = sg, true
				}
				continue
			}
			return sg, true
		}
	}
	if haveStuck {
		return fallback, true
	}
	return orders.SubGoal{}, false
}

// routeObjective maps one objective to the sub-goal kind that advances
// it. Collect objectives branch on where the item drops from.
func routeObjective(sc *stepCtx, info hostbridge.QuestInfo, key objKey, obj hostbridge.QuestObjectiveInfo) (orders.SubGoal, bool) {
	sg := orders.SubGoal{Quest: key.quest, Objective: key.index, IssuedTick: sc.tick}
	switch obj.Kind {
	case hostbridge.ObjectiveKill:
		if info.StartItem != 0 {
			sg.Kind = orders.SubGoalUseItemOn
			sg.Item = info.StartItem
			sg.CreatureEntry = obj.CreatureEntry
			return sg, true
		}
		sg.Kind = orders.SubGoalEngage
		sg.CreatureEntry = obj.CreatureEntry
		return sg, true
	case hostbridge.ObjectiveCollect:
		switch obj.Source {
		case hostbridge.ItemSourceObjectLoot:
			sg.Kind = orders.SubGoalInteract
			sg.ObjectEntry = obj.ObjectEntry
			sg.Item = obj.Item
		default:
			sg.Kind = orders.SubGoalEngage
			sg.CreatureEntry = obj.CreatureEntry
			sg.Item = obj.Item
		}
		return sg, true
	case hostbridge.ObjectiveUseObject:
		sg.Kind = orders.SubGoalInteract
		sg.ObjectEntry = obj.ObjectEntry
		return sg, true
	case hostbridge.ObjectiveReachArea:
		sg.Kind = orders.SubGoalNavigate
		sg.Dest = obj.Area
		sg.Radius = obj.AreaRadius
		return sg, true
	default:
		return orders.SubGoal{}, false
	}
}

// nextGiverHub proposes a quest-hub destination when the log is empty or
// everything in it is complete. Fruitless searches back off
// exponentially from two seconds up to a minute.
func (qs *questState) nextGiverHub(sc *stepCtx) (orders.SubGoal, bool) {
	if qs.hasWork(sc) {
		return orders.SubGoal{}, false
	}
	if sc.nowMS < qs.giverNextMS {
		return orders.SubGoal{}, false
	}
	scored := sc.e.hubs.AppropriateFor(sc.self.Pos, sc.a.cfg.Level, sc.a.cfg.FactionMask, 3)
	if len(scored) == 0 {
		if qs.giverBackoffMS == 0 {
			qs.giverBackoffMS = sc.cfg().GiverBackoffBaseMS
		} else {
			qs.giverBackoffMS *= 2
			if limit := sc.cfg().GiverBackoffCapMS; qs.giverBackoffMS > limit {
				qs.giverBackoffMS = limit
			}
		}
		qs.giverNextMS = sc.nowMS + qs.giverBackoffMS
		return orders.SubGoal{}, false
	}
	qs.giverBackoffMS = 0
	hub := scored[0].Hub
	return orders.SubGoal{
		Kind:       orders.SubGoalFindGiver,
		Dest:       hub.Center,
		Radius:     hub.Radius,
		IssuedTick: sc.tick,
	}, true
}

// hasWork reports whether any logged objective still needs progress.
func (qs *questState) hasWork(sc *stepCtx) bool {
	for _, quest := range qs.log {
		info, ok := sc.e.host.QuestInfo(quest)
		if !ok {
			continue
		}
		for idx := range info.Objectives {
			if qs.state(objKey{quest: quest, index: idx}).status != objComplete {
				return true
			}
		}
	}
	return false
}
