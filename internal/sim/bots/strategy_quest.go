package bots

import (
	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/orders"
	"warband.ai/internal/sim/spatial"
)

// questStrategy advances the first workable objective: engage drop
// sources, interact with quest objects, use quest items, walk to areas,
// and fall back to hunting a quest hub when the log runs dry.
type questStrategy struct{}

func (questStrategy) Name() string { return "quest" }

func (questStrategy) Active(sc *stepCtx) bool {
	return !sc.self.IsDead && !sc.self.IsCrowdControlled()
}

func (questStrategy) Relevance(sc *stepCtx) int {
	if sc.a.combat {
		return 0
	}
	if sg, ok := sc.a.quest.nextSubGoal(sc); ok {
		if os := sc.a.quest.objectives[objKey{quest: sg.Quest, index: sg.Objective}]; os != nil && os.stuck {
			return RelevanceContentFloor + 10
		}
		return RelevanceContentCeil - 20
	}
	if !sc.a.quest.hasWork(sc) {
		return RelevanceContentFloor + 5
	}
	return 0
}

func (questStrategy) Update(sc *stepCtx) {
	sg, ok := sc.a.quest.nextSubGoal(sc)
	if !ok {
		if hub, found := sc.a.quest.nextGiverHub(sc); found {
			sc.requestMove(MoveQuest, hub.Dest, true, "find quest giver")
		}
		return
	}
	switch sg.Kind {
	case orders.SubGoalEngage:
		questEngage(sc, sg)
	case orders.SubGoalInteract:
		questInteract(sc, sg)
	case orders.SubGoalUseItemOn:
		questUseItemOn(sc, sg)
	case orders.SubGoalNavigate:
		if sc.distanceTo(sg.Dest) > sg.Radius {
			sc.requestMove(MoveQuest, sg.Dest, true, "reach area")
		}
	}
}

// questEngage closes on the nearest living drop source and opens with the
// rotation once in reach.
func questEngage(sc *stepCtx, sg orders.SubGoal) {
	key := objKey{quest: sg.Quest, index: sg.Objective}
	target, ok := nearestCreatureByEntry(sc, sg.CreatureEntry)
	if !ok {
		// Nothing spawned in sight; head back to where one was last seen.
		if os := sc.a.quest.objectives[key]; os != nil && os.hasPos {
			sc.requestMove(MoveQuest, os.lastKnownPos, true, "return to hunt spot")
		}
		return
	}
	sc.a.quest.noteTargetSeen(key, target.Pos)

	if sc.distanceTo(target.Pos) > preferredCombatRange(sc) {
		sc.requestMove(MoveQuest, target.Pos, true, "approach quest target")
		return
	}
	sc.a.target = target.EID
	runRotation(sc, target)
}

func questInteract(sc *stepCtx, sg orders.SubGoal) {
	obj, ok := nearestUsableObject(sc, sg.ObjectEntry)
	if !ok {
		return
	}
	// Use-item objectives cast the item on the object from range instead
	// of walking into its hurt radius.
	if sg.Item != 0 {
		if eff, found := itemEffectFor(sc, sg.Item); found && eff.RequiresTarget {
			reach := eff.RangeYards
			if reach <= 0 {
				reach = sc.cfg().InteractRangeYards
			}
			if sc.distanceTo(obj.Pos) > reach {
				sc.requestMove(MoveQuest, obj.Pos, true, "approach quest object")
				return
			}
			sc.emitUseItem(PriorityUseQuestItem, sg.Item, obj.EID)
			return
		}
	}
	if sc.distanceTo(obj.Pos) > sc.cfg().InteractRangeYards {
		sc.requestMove(MoveQuest, obj.Pos, true, "approach quest object")
		return
	}
	sc.emitInteract(PriorityQuestInteract, obj.EID)
}

func questUseItemOn(sc *stepCtx, sg orders.SubGoal) {
	target, ok := nearestCreatureByEntry(sc, sg.CreatureEntry)
	if !ok {
		return
	}
	reach := sc.cfg().InteractRangeYards
	if eff, found := itemEffectFor(sc, sg.Item); found && eff.RangeYards > 0 {
		reach = eff.RangeYards
	}
	if sc.distanceTo(target.Pos) > reach {
		sc.requestMove(MoveQuest, target.Pos, true, "approach item target")
		return
	}
	sc.emitUseItem(PriorityUseQuestItem, sg.Item, target.EID)
}

func nearestCreatureByEntry(sc *stepCtx, entry uint32) (spatial.CreatureSnapshot, bool) {
	var (
		best  spatial.CreatureSnapshot
		bestD float32
		found bool
	)
	for _, c := range sc.creatures {
		if c.Entry != entry || c.IsDead {
			continue
		}
		d := sc.distanceTo(c.Pos)
		if !found || d < bestD {
			best, bestD, found = c, d, true
		}
	}
	return best, found
}

// nearestUsableObject picks the closest spawned usable match. Nearest
// wins even when several qualify; alternating between them spreads the
// agent thin for no progress.
func nearestUsableObject(sc *stepCtx, entry uint32) (spatial.ObjectSnapshot, bool) {
	var (
		best  spatial.ObjectSnapshot
		bestD float32
		found bool
	)
	for _, o := range sc.objects {
		if o.Entry != entry || !o.IsSpawned || !o.IsUsable {
			continue
		}
		d := sc.distanceTo(o.Pos)
		if !found || d < bestD {
			best, bestD, found = o, d, true
		}
	}
	return best, found
}

func itemEffectFor(sc *stepCtx, item uint32) (hostbridge.ItemEffect, bool) {
	effects := sc.e.host.ItemEffects(item)
	if len(effects) == 0 {
		return hostbridge.ItemEffect{}, false
	}
	return effects[0], true
}
