package arena

import (
	"context"

	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/spatial"
)

// Ack policy: the verdict covers queue-level validity only. Unknown
// agents, stale sequence numbers, and missing or dead targets are
// rejected; anything else is accepted and may still fizzle host-side
// (cooldown, resource, crowd control), exactly like a real game host.
func (a *Arena) EnqueueAction(it hostbridge.ActionIntent) hostbridge.Ack {
	ag, ok := a.agents[it.Agent]
	if !ok {
		return hostbridge.AckUnknownAgent
	}
	if it.Seq != 0 && it.Seq <= ag.lastSeq {
		return hostbridge.AckDuplicate
	}
	if it.Seq != 0 {
		ag.lastSeq = it.Seq
	}

	switch it.Kind {
	case hostbridge.IntentSpellCast:
		return a.applyCast(ag, it)
	case hostbridge.IntentSpellCancel:
		ag.casting = nil
		return hostbridge.AckAccepted
	case hostbridge.IntentMoveTo:
		dest := it.Dest
		ag.moveTo = &dest
		ag.casting = nil
		return hostbridge.AckAccepted
	case hostbridge.IntentStopMoving:
		ag.moveTo = nil
		return hostbridge.AckAccepted
	case hostbridge.IntentInteract:
		return a.applyInteract(ag, it.Target)
	case hostbridge.IntentUseItem:
		return a.applyUseItem(ag, it)
	default:
		return hostbridge.AckInvalidTarget
	}
}

func (a *Arena) applyCast(ag *agentState, it hostbridge.ActionIntent) hostbridge.Ack {
	def, ok := a.abilityDefs[it.Spell]
	if !ok {
		// No ack code for unknown spells; invalid-target is the closest.
		return hostbridge.AckInvalidTarget
	}
	if ack := a.checkTarget(ag, it.TargetMode, it.Target); ack != hostbridge.AckAccepted {
		return ack
	}
	a.beginAgentCast(ag, def, it.TargetMode, it.Target, it.Dest, it.CastItem)
	return hostbridge.AckAccepted
}

func (a *Arena) applyUseItem(ag *agentState, it hostbridge.ActionIntent) hostbridge.Ack {
	effs := a.itemEffects[it.Item]
	if len(effs) == 0 {
		return hostbridge.AckInvalidTarget
	}
	def, ok := a.abilityDefs[effs[0].Spell]
	if !ok {
		return hostbridge.AckInvalidTarget
	}
	if ack := a.checkTarget(ag, it.TargetMode, it.Target); ack != hostbridge.AckAccepted {
		return ack
	}
	a.beginAgentCast(ag, def, it.TargetMode, it.Target, it.Dest, it.Item)
	return hostbridge.AckAccepted
}

// checkTarget validates entity targets at enqueue time. Targets may still
// die before a timed cast lands; that fizzles at resolution instead.
func (a *Arena) checkTarget(ag *agentState, mode hostbridge.TargetMode, target spatial.EID) hostbridge.Ack {
	if mode != hostbridge.TargetEntity {
		return hostbridge.AckAccepted
	}
	if target.IsZero() {
		return hostbridge.AckInvalidTarget
	}
	if u, ok := a.units[target]; ok {
		if u.state.Current() == "DEAD" {
			return hostbridge.AckInvalidTarget
		}
		return hostbridge.AckAccepted
	}
	if t, ok := a.agents[target]; ok {
		if t.dead {
			return hostbridge.AckInvalidTarget
		}
		return hostbridge.AckAccepted
	}
	if _, ok := a.objects[target]; ok {
		return hostbridge.AckAccepted
	}
	return hostbridge.AckInvalidTarget
}

func (a *Arena) beginAgentCast(ag *agentState, def *AbilityDef, mode hostbridge.TargetMode, target spatial.EID, dest spatial.Position, item uint32) {
	now := a.clock.Load()
	if def.CastTimeMS > 0 {
		// Timed casts root the caster until they land.
		ag.moveTo = nil
		ag.casting = &agentCast{
			spell:   def.Spell,
			target:  target,
			dest:    dest,
			mode:    mode,
			item:    item,
			startMS: now,
			doneMS:  now + int64(def.CastTimeMS),
		}
		return
	}
	a.resolveAgentSpell(ag, def, mode, target, dest, item, now)
}

// resolveAgentSpell lands one agent spell. Cooldown, resource, and crowd
// control failures fizzle silently here; the verdict already went out.
func (a *Arena) resolveAgentSpell(ag *agentState, def *AbilityDef, mode hostbridge.TargetMode, target spatial.EID, dest spatial.Position, item uint32, now int64) {
	if ag.dead {
		return
	}
	cc := ag.auraBits()
	if cc&(spatial.AuraStunned|spatial.AuraFeared|spatial.AuraSilenced) != 0 && !def.CCBreak {
		return
	}
	if ready, ok := ag.cooldowns[def.Spell]; ok && now < ready {
		return
	}
	if def.CostAmount > 0 && ag.resource < float32(def.CostAmount) {
		return
	}

	if def.CostAmount > 0 {
		ag.resource -= float32(def.CostAmount)
	}
	if def.CooldownMS > 0 {
		ag.cooldowns[def.Spell] = now + int64(def.CooldownMS)
	}

	if def.CCBreak {
		ag.removeCrowdControl()
	}

	effects, _ := parseEffects(def.Effects)

	// Use-item-on-object objectives resolve before any combat effect.
	if item != 0 && mode == hostbridge.TargetEntity {
		if obj, ok := a.objects[target]; ok {
			a.useObjectWithItem(ag, obj, item)
			return
		}
	}

	if u, ok := a.units[target]; ok && mode == hostbridge.TargetEntity {
		a.landOnUnit(ag, u, def, effects, now)
		return
	}

	victim := ag
	if mode == hostbridge.TargetEntity {
		t, ok := a.agents[target]
		if !ok || t.dead {
			return
		}
		victim = t
	}
	a.landOnAgent(ag, victim, def, effects, now)

	if def.AOERadius > 0 && effects&hostbridge.EffectDamage != 0 {
		center := ag.pos
		if mode == hostbridge.TargetPosition {
			center = dest
		}
		a.splashUnits(ag, center, def, 0, now)
	}
}

func (a *Arena) landOnUnit(ag *agentState, u *unit, def *AbilityDef, effects uint32, now int64) {
	if u.state.Current() == "DEAD" {
		return
	}
	hostile := def.Damage > 0 || effects&(hostbridge.EffectDamage|hostbridge.EffectInterrupt|hostbridge.EffectTaunt) != 0
	if effects&hostbridge.EffectInterrupt != 0 && u.casting != nil {
		if cast := a.abilityDefs[u.casting.spell]; cast != nil && cast.Interruptible {
			u.casting = nil
			if def.LockoutMS > 0 && cast.SchoolMask != 0 {
				u.lockedUntil[cast.SchoolMask] = now + int64(def.LockoutMS)
			}
		}
	}
	if effects&hostbridge.EffectTaunt != 0 {
		u.target = ag.eid
	}
	if def.Damage > 0 {
		splash := def.AOERadius > 0
		center := u.pos
		primary := u.eid
		a.damageUnit(ag, u, def.Damage, now)
		if splash {
			a.splashUnits(ag, center, def, primary, now)
		}
	}
	if hostile && u.state.Current() != "DEAD" {
		a.engageUnit(u, ag.eid)
	}
}

func (a *Arena) landOnAgent(caster, victim *agentState, def *AbilityDef, effects uint32, now int64) {
	if victim.dead {
		return
	}
	if def.Heal > 0 || def.HealPct > 0 {
		amount := def.Heal
		if def.HealPct > 0 {
			amount += int64(float64(victim.maxHealth) * float64(def.HealPct) / 100)
		}
		victim.health += amount
		if victim.health > victim.maxHealth {
			victim.health = victim.maxHealth
		}
	}
	if effects&hostbridge.EffectDispel != 0 {
		victim.removeNewestDispellable()
	}
	if def.ReductionPct > 0 || effects&hostbridge.EffectAbsorbShield != 0 {
		dur := def.DurationMS
		if dur <= 0 {
			dur = 8000
		}
		victim.buffs = append(victim.buffs, agentAura{
			id:           def.Spell,
			expiryMS:     now + dur,
			reductionPct: def.ReductionPct,
			caster:       caster.eid,
		})
	}
}

// splashUnits hits every living hostile unit near the center. The primary
// target already took its hit, so it is exempt.
func (a *Arena) splashUnits(ag *agentState, center spatial.Position, def *AbilityDef, except spatial.EID, now int64) {
	for _, eid := range a.unitOrder {
		if eid == except {
			continue
		}
		u := a.units[eid]
		if u.state.Current() == "DEAD" || !u.tpl.Hostile {
			continue
		}
		if center.DistanceTo(u.pos) > float64(def.AOERadius) {
			continue
		}
		a.damageUnit(ag, u, def.Damage, now)
		a.engageUnit(u, ag.eid)
	}
}

func (a *Arena) damageUnit(ag *agentState, u *unit, amount int64, now int64) {
	if u.state.Current() == "DEAD" || amount <= 0 {
		return
	}
	ag.lastCombatMS = now
	u.health -= amount
	if u.health <= 0 {
		u.health = 0
		a.killUnit(u, ag, now)
	}
}

func (a *Arena) engageUnit(u *unit, victim spatial.EID) {
	if u.state.Current() == "IDLE" {
		_ = u.state.Event(context.Background(), "engage")
		now := a.clock.Load()
		u.nextMeleeMS = now + u.tpl.AttackMS
		for i, c := range u.tpl.Casts {
			u.nextCastMS[i] = now + c.EveryMS
		}
		for i, p := range u.tpl.Pulses {
			u.nextPulseMS[i] = now + p.EveryMS
		}
	}
	if u.target.IsZero() {
		u.target = victim
	}
}

func (a *Arena) killUnit(u *unit, killer *agentState, now int64) {
	_ = u.state.Event(context.Background(), "die")
	u.diedAtMS = now
	u.casting = nil
	u.target = 0
	u.looted = map[spatial.EID]bool{}
	a.events.Kills = append(a.events.Kills, u.eid)
	if killer != nil {
		a.creditKill(u.tpl.Entry, killer)
	}
}

const creditRadiusYards = 100

// creditKill advances kill objectives for the killer's whole group near
// the kill, the killer included.
func (a *Arena) creditKill(entry uint32, killer *agentState) {
	members := []spatial.EID{killer.eid}
	if killer.group != 0 {
		members = a.GroupRoster(killer.group)
	}
	a.progressMu.Lock()
	defer a.progressMu.Unlock()
	for _, eid := range members {
		m, ok := a.agents[eid]
		if !ok || m.dead {
			continue
		}
		if m.pos.DistanceTo(killer.pos) > creditRadiusYards {
			continue
		}
		for _, quest := range m.quests {
			info, ok := a.questInfos[quest]
			if !ok {
				continue
			}
			for idx, obj := range info.Objectives {
				if obj.Kind != hostbridge.ObjectiveKill || obj.CreatureEntry != entry {
					continue
				}
				key := progressKey{agent: eid, quest: quest, index: idx}
				if a.progress[key] < obj.Required {
					a.progress[key]++
				}
			}
		}
	}
}

func (a *Arena) applyInteract(ag *agentState, target spatial.EID) hostbridge.Ack {
	if target.IsZero() {
		return hostbridge.AckInvalidTarget
	}
	if obj, ok := a.objects[target]; ok {
		if !obj.spawned || !obj.def.Usable {
			return hostbridge.AckInvalidTarget
		}
		a.useObject(ag, obj)
		return hostbridge.AckAccepted
	}
	if u, ok := a.units[target]; ok {
		if u.state.Current() != "DEAD" || len(u.tpl.Loot) == 0 {
			return hostbridge.AckInvalidTarget
		}
		if !u.looted[ag.eid] {
			u.looted[ag.eid] = true
			for _, l := range u.tpl.Loot {
				a.creditItem(ag, l.Item)
			}
		}
		return hostbridge.AckAccepted
	}
	return hostbridge.AckInvalidTarget
}

func (a *Arena) useObject(ag *agentState, obj *objectState) {
	a.creditUseObject(ag, obj.def.Entry)
	if obj.def.Loot != 0 {
		a.creditItem(ag, obj.def.Loot)
	}
	if obj.def.RespawnMS > 0 {
		obj.spawned = false
		obj.respawnMS = a.clock.Load() + obj.def.RespawnMS
	}
}

// useObjectWithItem settles "use item X on object Y" objectives; the
// object is consumed the same way a plain use is.
func (a *Arena) useObjectWithItem(ag *agentState, obj *objectState, item uint32) {
	if !obj.spawned {
		return
	}
	a.progressMu.Lock()
	for _, quest := range ag.quests {
		info, ok := a.questInfos[quest]
		if !ok {
			continue
		}
		for idx, o := range info.Objectives {
			if o.Kind != hostbridge.ObjectiveUseObject || o.ObjectEntry != obj.def.Entry {
				continue
			}
			if o.Item != 0 && o.Item != item {
				continue
			}
			key := progressKey{agent: ag.eid, quest: quest, index: idx}
			if a.progress[key] < o.Required {
				a.progress[key]++
			}
		}
	}
	a.progressMu.Unlock()
	if obj.def.RespawnMS > 0 {
		obj.spawned = false
		obj.respawnMS = a.clock.Load() + obj.def.RespawnMS
	}
}

func (a *Arena) creditUseObject(ag *agentState, objectEntry uint32) {
	a.progressMu.Lock()
	defer a.progressMu.Unlock()
	for _, quest := range ag.quests {
		info, ok := a.questInfos[quest]
		if !ok {
			continue
		}
		for idx, o := range info.Objectives {
			if o.Kind != hostbridge.ObjectiveUseObject || o.ObjectEntry != objectEntry {
				continue
			}
			if o.Item != 0 {
				continue // requires the quest item, not a bare use
			}
			key := progressKey{agent: ag.eid, quest: quest, index: idx}
			if a.progress[key] < o.Required {
				a.progress[key]++
			}
		}
	}
}

func (a *Arena) creditItem(ag *agentState, item uint32) {
	a.progressMu.Lock()
	defer a.progressMu.Unlock()
	for _, quest := range ag.quests {
		info, ok := a.questInfos[quest]
		if !ok {
			continue
		}
		for idx, o := range info.Objectives {
			if o.Kind != hostbridge.ObjectiveCollect || o.Item != item {
				continue
			}
			key := progressKey{agent: ag.eid, quest: quest, index: idx}
			if a.progress[key] < o.Required {
				a.progress[key]++
			}
		}
	}
}

func (ag *agentState) auraBits() uint64 {
	var bits uint64
	for _, d := range ag.debuffs {
		bits |= d.bits
	}
	return bits
}

func (ag *agentState) removeCrowdControl() {
	kept := ag.debuffs[:0]
	for _, d := range ag.debuffs {
		if d.bits != 0 {
			continue
		}
		kept = append(kept, d)
	}
	ag.debuffs = kept
}

func (ag *agentState) removeNewestDispellable() {
	for i := len(ag.debuffs) - 1; i >= 0; i-- {
		if ag.debuffs[i].class != spatial.DispelNone {
			ag.debuffs = append(ag.debuffs[:i], ag.debuffs[i+1:]...)
			return
		}
	}
}
