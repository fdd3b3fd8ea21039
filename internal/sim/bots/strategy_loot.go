package bots

import (
	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/spatial"
)

// lootStrategy collects quest drops from corpses the agent can see. Only
// collect objectives sourced from creature loot pull it in; free-for-all
// looting is not worth the walk.
type lootStrategy struct{}

func (lootStrategy) Name() string { return "loot" }

func (lootStrategy) Active(sc *stepCtx) bool {
	return !sc.self.IsDead && !sc.self.IsCrowdControlled() && !sc.a.combat
}

func (lootStrategy) Relevance(sc *stepCtx) int {
	if _, ok := lootableCorpse(sc); ok {
		return RelevanceContentCeil - 10
	}
	return 0
}

func (lootStrategy) Update(sc *stepCtx) {
	corpse, ok := lootableCorpse(sc)
	if !ok {
		return
	}
	if sc.distanceTo(corpse.Pos) > sc.cfg().InteractRangeYards {
		sc.requestMove(MoveLoot, corpse.Pos, true, "move to corpse")
		return
	}
	sc.emitInteract(PriorityLoot, corpse.EID)
}

// lootableCorpse finds the nearest dead creature whose entry feeds an
// unfinished creature-loot collect objective.
func lootableCorpse(sc *stepCtx) (spatial.CreatureSnapshot, bool) {
	entries := lootEntriesWanted(sc)
	if len(entries) == 0 {
		return spatial.CreatureSnapshot{}, false
	}
	var (
		best  spatial.CreatureSnapshot
		bestD float32
		found bool
	)
	for _, c := range sc.creatures {
		if !c.IsDead || !entries[c.Entry] {
			continue
		}
		d := sc.distanceTo(c.Pos)
		if d > sc.cfg().LootRadiusYards {
			continue
		}
		if !found || d < bestD {
			best, bestD, found = c, d, true
		}
	}
	return best, found
}

func lootEntriesWanted(sc *stepCtx) map[uint32]bool {
	var entries map[uint32]bool
	qs := &sc.a.quest
	for _, quest := range qs.log {
		info, ok := sc.e.host.QuestInfo(quest)
		if !ok {
			continue
		}
		for idx, obj := range info.Objectives {
			if obj.Kind != hostbridge.ObjectiveCollect || obj.Source != hostbridge.ItemSourceCreatureLoot {
				continue
			}
			if obj.CreatureEntry == 0 {
				continue
			}
			if qs.state(objKey{quest: quest, index: idx}).status == objComplete {
				continue
			}
			if entries == nil {
				entries = map[uint32]bool{}
			}
			entries[obj.CreatureEntry] = true
		}
	}
	return entries
}
