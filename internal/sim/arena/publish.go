package arena

import "warband.ai/internal/sim/spatial"

// BuildBatch renders the whole world as one snapshot batch. Every slice
// is freshly allocated per call; staging hands ownership to the grid.
// Dead creatures stay published so corpses remain lootable.
func (a *Arena) BuildBatch(tick uint64) spatial.Batch {
	now := a.clock.Load()
	var b spatial.Batch

	b.Creatures = make([]spatial.CreatureSnapshot, 0, len(a.unitOrder))
	for _, eid := range a.unitOrder {
		u := a.units[eid]
		cs := spatial.CreatureSnapshot{
			EID:           u.eid,
			Pos:           u.pos,
			Entry:         u.tpl.Entry,
			Health:        u.health,
			MaxHealth:     u.tpl.MaxHealth,
			IsDead:        u.state.Current() == "DEAD",
			HostileHint:   u.tpl.Hostile,
			PublishedTick: tick,
		}
		if u.casting != nil {
			cs.IsCasting = true
			cs.CastSpell = u.casting.spell
			cs.CastTarget = u.casting.target
			cs.CastRemainingMS = int32(u.casting.doneMS - now)
		}
		b.Creatures = append(b.Creatures, cs)
	}

	b.Players = make([]spatial.PlayerSnapshot, 0, len(a.agentOrder))
	for _, eid := range a.agentOrder {
		ag := a.agents[eid]
		ps := spatial.PlayerSnapshot{
			EID:           ag.eid,
			Pos:           ag.pos,
			Group:         ag.group,
			Role:          ag.role,
			Class:         ag.class,
			Spec:          ag.spec,
			HealthPct:     agentHealthPct(ag),
			ResourcePct:   ag.resource,
			IsDead:        ag.dead,
			AuraBits:      ag.auraBits(),
			PublishedTick: tick,
		}
		if ag.casting != nil {
			ps.IsCasting = true
			ps.CastSpell = ag.casting.spell
			ps.CastTarget = ag.casting.target
			ps.CastRemainingMS = int32(ag.casting.doneMS - now)
		}
		for _, bf := range ag.buffs {
			ps.Buffs = append(ps.Buffs, spatial.Aura{ID: bf.id, Class: bf.class, Expiry: bf.expiryMS})
		}
		for _, db := range ag.debuffs {
			ps.Debuffs = append(ps.Debuffs, spatial.Aura{ID: db.id, Class: db.class, Expiry: db.expiryMS})
		}
		b.Players = append(b.Players, ps)
	}

	b.Objects = make([]spatial.ObjectSnapshot, 0, len(a.objOrder))
	for _, eid := range a.objOrder {
		o := a.objects[eid]
		b.Objects = append(b.Objects, spatial.ObjectSnapshot{
			EID:           o.eid,
			Pos:           o.pos,
			Entry:         o.def.Entry,
			IsSpawned:     o.spawned,
			IsQuestObject: o.def.QuestObject,
			IsUsable:      o.def.Usable && o.spawned,
			PublishedTick: tick,
		})
	}

	if len(a.fields) > 0 {
		b.Fields = make([]spatial.FieldSnapshot, 0, len(a.fields))
		for _, f := range a.fields {
			b.Fields = append(b.Fields, spatial.FieldSnapshot{
				EID:           f.eid,
				Pos:           f.pos,
				Active:        f.active,
				Hostile:       f.def.Hostile,
				Radius:        f.def.Radius,
				SchoolMask:    f.def.SchoolMask,
				PublishedTick: tick,
			})
		}
	}
	return b
}

func agentHealthPct(ag *agentState) float32 {
	if ag.maxHealth <= 0 {
		return 0
	}
	return float32(ag.health) / float32(ag.maxHealth) * 100
}
