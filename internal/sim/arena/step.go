package arena

import (
	"context"
	"math"

	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/spatial"
)

const (
	agentRespawnMS = 30000
	combatLingerMS = 5000
	dotTickMS      = 2000
	fieldTickMS    = 1000
	lockoutRetryMS = 500

	defaultAggroYards = 20.0
	chaseYards        = 60.0
	meleeReachYards   = 5.0
	casterHoldYards   = 25.0
	healerScanYards   = 40.0
	unitSpeedYPS      = 8.0
	arriveYards       = 0.5

	resourceRegenPerSec  = 4.0
	healthRegenPctPerSec = 2.0

	schoolPhysical = 0x1
)

// Step advances the world by one tick. Everything deterministic follows
// from the previous state, so replaying the same intents against the same
// scenario and seed reproduces the run.
func (a *Arena) Step() {
	now := a.clock.Add(a.tickMS)
	a.stepAgents(now)
	a.stepUnits(now)
	a.stepFields(now)
	a.stepObjects(now)
	a.stepCombatFlags(now)
	a.stepReachAreas()
}

func (a *Arena) stepAgents(now int64) {
	for _, eid := range a.agentOrder {
		ag := a.agents[eid]
		if ag.dead {
			if now-ag.diedAtMS >= agentRespawnMS {
				ag.dead = false
				ag.health = ag.maxHealth
				ag.resource = 100
				ag.buffs = nil
				ag.debuffs = nil
				ag.casting = nil
				ag.moveTo = nil
			}
			continue
		}

		for i := range ag.debuffs {
			d := &ag.debuffs[i]
			if d.tickDamage > 0 && now >= d.nextTickMS && now < d.expiryMS {
				a.applyAgentDamage(ag, d.caster, d.tickDamage, 0, false, now)
				d.nextTickMS = now + dotTickMS
			}
		}
		if ag.dead {
			continue // a tick can finish the job
		}
		ag.buffs = pruneAuras(ag.buffs, now)
		ag.debuffs = pruneAuras(ag.debuffs, now)

		bits := ag.auraBits()
		if ag.casting != nil && bits&(spatial.AuraStunned|spatial.AuraFeared) != 0 {
			ag.casting = nil
		}
		if ag.casting != nil && now >= ag.casting.doneMS {
			c := ag.casting
			ag.casting = nil
			if def := a.abilityDefs[c.spell]; def != nil {
				a.resolveAgentSpell(ag, def, c.mode, c.target, c.dest, c.item, now)
			}
		}
		if ag.dead {
			continue
		}

		if ag.moveTo != nil && ag.casting == nil &&
			bits&(spatial.AuraStunned|spatial.AuraFeared|spatial.AuraRooted) == 0 {
			step := float64(ag.speedYPS) * float64(a.tickMS) / 1000
			if moveToward(&ag.pos, *ag.moveTo, step) {
				ag.moveTo = nil
			}
		}

		ag.resource += resourceRegenPerSec * float32(a.tickMS) / 1000
		if ag.resource > 100 {
			ag.resource = 100
		}
		if !ag.inCombat && ag.health < ag.maxHealth {
			heal := int64(float64(ag.maxHealth) * healthRegenPctPerSec / 100 * float64(a.tickMS) / 1000)
			if heal < 1 {
				heal = 1
			}
			ag.health += heal
			if ag.health > ag.maxHealth {
				ag.health = ag.maxHealth
			}
		}
	}
}

func (a *Arena) stepUnits(now int64) {
	for _, eid := range a.unitOrder {
		u := a.units[eid]
		switch u.state.Current() {
		case "DEAD":
			if u.tpl.RespawnMS > 0 && now-u.diedAtMS >= u.tpl.RespawnMS {
				_ = u.state.Event(context.Background(), "respawn")
				u.health = u.tpl.MaxHealth
				u.pos = u.home
				u.looted = map[spatial.EID]bool{}
			}
		case "IDLE":
			if !u.tpl.Hostile {
				continue
			}
			aggro := float64(u.tpl.AggroYards)
			if aggro <= 0 {
				aggro = defaultAggroYards
			}
			if t := a.nearestLivingAgent(u.pos, aggro); t != nil {
				a.engageUnit(u, t.eid)
			}
		case "ENGAGED":
			a.stepEngagedUnit(u, now)
		}
	}
}

func (a *Arena) stepEngagedUnit(u *unit, now int64) {
	t, ok := a.agents[u.target]
	if !ok || t.dead || u.pos.DistanceTo(t.pos) > chaseYards {
		t = a.nearestLivingAgent(u.pos, chaseYards)
		if t == nil {
			// Evade: walk it back as if the pull never happened.
			_ = u.state.Event(context.Background(), "reset")
			u.health = u.tpl.MaxHealth
			u.pos = u.home
			u.casting = nil
			u.target = 0
			return
		}
		u.target = t.eid
	}

	if u.casting != nil && now >= u.casting.doneMS {
		c := u.casting
		u.casting = nil
		a.resolveUnitCast(u, c, now)
	}

	dist := u.pos.DistanceTo(t.pos)
	if u.casting == nil {
		hold := float64(meleeReachYards)
		if u.tpl.Class == "caster" && len(u.tpl.Casts) > 0 {
			hold = casterHoldYards
		}
		if dist > hold {
			step := unitSpeedYPS * float64(a.tickMS) / 1000
			moveToward(&u.pos, t.pos, step)
			dist = u.pos.DistanceTo(t.pos)
		}
	}

	if u.casting == nil && u.tpl.MeleeDamage > 0 && u.tpl.AttackMS > 0 &&
		dist <= meleeReachYards+0.5 && now >= u.nextMeleeMS {
		a.applyAgentDamage(t, u.eid, u.tpl.MeleeDamage, schoolPhysical, true, now)
		u.nextMeleeMS = now + u.tpl.AttackMS
	}

	if u.casting == nil {
		for i, cd := range u.tpl.Casts {
			if now < u.nextCastMS[i] {
				continue
			}
			def := a.abilityDefs[cd.Spell]
			if def == nil {
				continue
			}
			if exp, locked := u.lockedUntil[def.SchoolMask]; locked && now < exp {
				u.nextCastMS[i] = now + lockoutRetryMS
				continue
			}
			target := u.target
			if def.Heal > 0 || def.HealPct > 0 {
				target = a.woundedAllyOf(u)
			}
			u.nextCastMS[i] = now + cd.EveryMS
			if def.CastTimeMS > 0 {
				u.casting = &unitCast{spell: cd.Spell, target: target, startMS: now, doneMS: now + int64(def.CastTimeMS)}
			} else {
				a.resolveUnitCast(u, &unitCast{spell: cd.Spell, target: target, startMS: now, doneMS: now}, now)
			}
			break
		}
	}

	for i, p := range u.tpl.Pulses {
		if now < u.nextPulseMS[i] {
			continue
		}
		for _, aeid := range a.agentOrder {
			v := a.agents[aeid]
			if v.dead {
				continue
			}
			if u.pos.DistanceTo(v.pos) <= float64(p.Radius) {
				a.applyAgentDamage(v, u.eid, p.Amount, p.SchoolMask, false, now)
			}
		}
		u.nextPulseMS[i] = now + p.EveryMS
	}
}

// resolveUnitCast lands one creature spell: a heal on the most wounded
// ally, or damage plus an optional debuff on the victim.
func (a *Arena) resolveUnitCast(u *unit, c *unitCast, now int64) {
	def := a.abilityDefs[c.spell]
	if def == nil {
		return
	}
	if def.Heal > 0 || def.HealPct > 0 {
		hu, ok := a.units[c.target]
		if !ok || hu.state.Current() == "DEAD" {
			return
		}
		amount := def.Heal + int64(float64(hu.tpl.MaxHealth)*float64(def.HealPct)/100)
		hu.health += amount
		if hu.health > hu.tpl.MaxHealth {
			hu.health = hu.tpl.MaxHealth
		}
		return
	}
	t, ok := a.agents[c.target]
	if !ok || t.dead {
		return
	}
	if def.Damage > 0 {
		a.applyAgentDamage(t, u.eid, def.Damage, def.SchoolMask, false, now)
	}
	if def.Debuff != nil && !t.dead {
		applyDebuff(t, u.eid, def.Debuff, now)
	}
	if def.AOERadius > 0 && def.Damage > 0 {
		for _, eid := range a.agentOrder {
			v := a.agents[eid]
			if v.dead || v.eid == t.eid {
				continue
			}
			if t.pos.DistanceTo(v.pos) <= float64(def.AOERadius) {
				a.applyAgentDamage(v, u.eid, def.Damage, def.SchoolMask, false, now)
			}
		}
	}
}

func applyDebuff(t *agentState, caster spatial.EID, d *DebuffDef, now int64) {
	class, _ := parseDispelClass(d.Class)
	bits, _ := parseAuraBits(d.Bits)
	aura := agentAura{
		id:         d.Aura,
		class:      class,
		bits:       bits,
		expiryMS:   now + d.DurationMS,
		tickDamage: d.TickDamage,
		caster:     caster,
	}
	if d.TickDamage > 0 {
		aura.nextTickMS = now + dotTickMS
	}
	for i := range t.debuffs {
		if t.debuffs[i].id == d.Aura {
			// Refresh extends the duration without resetting the tick clock.
			if t.debuffs[i].tickDamage > 0 {
				aura.nextTickMS = t.debuffs[i].nextTickMS
			}
			t.debuffs[i] = aura
			return
		}
	}
	t.debuffs = append(t.debuffs, aura)
}

// applyAgentDamage runs mitigation from active reduction buffs, records
// the post-mitigation event, and handles death.
func (a *Arena) applyAgentDamage(victim *agentState, attacker spatial.EID, amount int64, school uint32, melee bool, now int64) {
	if victim.dead || amount <= 0 {
		return
	}
	for _, b := range victim.buffs {
		if b.reductionPct > 0 {
			amount = int64(float64(amount) * (1 - float64(b.reductionPct)/100))
		}
	}
	if amount <= 0 {
		return
	}
	victim.lastCombatMS = now
	victim.health -= amount
	a.events.Damage = append(a.events.Damage, DamageTaken{
		Agent:      victim.eid,
		Attacker:   attacker,
		Amount:     amount,
		SchoolMask: school,
		Melee:      melee,
		AtMS:       now,
	})
	if victim.health <= 0 {
		victim.health = 0
		victim.dead = true
		victim.diedAtMS = now
		victim.casting = nil
		victim.moveTo = nil
		victim.debuffs = nil
	}
}

func (a *Arena) stepFields(now int64) {
	for _, f := range a.fields {
		if now >= f.toggleMS {
			f.active = !f.active
			if f.active {
				f.toggleMS = now + f.def.ActiveMS
				f.nextHitMS = now
			} else {
				f.toggleMS = now + f.def.DormantMS
			}
		}
		if !f.active || !f.def.Hostile || f.def.TickDamage <= 0 || now < f.nextHitMS {
			continue
		}
		for _, eid := range a.agentOrder {
			ag := a.agents[eid]
			if ag.dead {
				continue
			}
			if f.pos.DistanceTo(ag.pos) <= float64(f.def.Radius) {
				a.applyAgentDamage(ag, f.eid, f.def.TickDamage, f.def.SchoolMask, false, now)
			}
		}
		f.nextHitMS = now + fieldTickMS
	}
}

func (a *Arena) stepObjects(now int64) {
	for _, eid := range a.objOrder {
		o := a.objects[eid]
		if !o.spawned && o.def.RespawnMS > 0 && now >= o.respawnMS {
			o.spawned = true
		}
	}
}

// stepCombatFlags derives each agent's combat flag: targeted by an
// engaged unit, or dealt or took damage within the linger window.
func (a *Arena) stepCombatFlags(now int64) {
	targeted := map[spatial.EID]bool{}
	for _, eid := range a.unitOrder {
		u := a.units[eid]
		if u.state.Current() == "ENGAGED" && !u.target.IsZero() {
			targeted[u.target] = true
		}
	}
	for _, eid := range a.agentOrder {
		ag := a.agents[eid]
		in := !ag.dead && (targeted[eid] || (ag.lastCombatMS > 0 && now-ag.lastCombatMS < combatLingerMS))
		if in != ag.inCombat {
			ag.inCombat = in
			a.events.Combat = append(a.events.Combat, CombatChange{Agent: eid, InCombat: in})
		}
	}
}

func (a *Arena) stepReachAreas() {
	a.progressMu.Lock()
	defer a.progressMu.Unlock()
	for _, eid := range a.agentOrder {
		ag := a.agents[eid]
		if ag.dead {
			continue
		}
		for _, quest := range ag.quests {
			info, ok := a.questInfos[quest]
			if !ok {
				continue
			}
			for idx, o := range info.Objectives {
				if o.Kind != hostbridge.ObjectiveReachArea {
					continue
				}
				key := progressKey{agent: eid, quest: quest, index: idx}
				if a.progress[key] >= o.Required {
					continue
				}
				if ag.pos.DistanceTo(o.Area) <= float64(o.AreaRadius) {
					a.progress[key] = o.Required
				}
			}
		}
	}
}

func (a *Arena) nearestLivingAgent(from spatial.Position, within float64) *agentState {
	var best *agentState
	bestDist := within
	for _, eid := range a.agentOrder {
		ag := a.agents[eid]
		if ag.dead {
			continue
		}
		d := from.DistanceTo(ag.pos)
		if d <= bestDist {
			best = ag
			bestDist = d
		}
	}
	return best
}

// woundedAllyOf picks the most wounded living unit of the same faction
// near the healer, itself included.
func (a *Arena) woundedAllyOf(u *unit) spatial.EID {
	best := u.eid
	bestFrac := 1.1
	for _, eid := range a.unitOrder {
		o := a.units[eid]
		if o.state.Current() == "DEAD" || o.tpl.Faction != u.tpl.Faction {
			continue
		}
		if u.pos.DistanceTo(o.pos) > healerScanYards {
			continue
		}
		frac := float64(o.health) / float64(o.tpl.MaxHealth)
		if frac < bestFrac {
			best = o.eid
			bestFrac = frac
		}
	}
	return best
}

func pruneAuras(list []agentAura, now int64) []agentAura {
	kept := list[:0]
	for _, au := range list {
		if au.expiryMS > now {
			kept = append(kept, au)
		}
	}
	return kept
}

// moveToward steps pos toward dest, updating facing, and reports arrival.
func moveToward(pos *spatial.Position, dest spatial.Position, step float64) bool {
	dx := float64(dest.X - pos.X)
	dy := float64(dest.Y - pos.Y)
	dz := float64(dest.Z - pos.Z)
	dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
	if dist <= step || dist < arriveYards {
		pos.X, pos.Y, pos.Z = dest.X, dest.Y, dest.Z
		return true
	}
	f := step / dist
	pos.X += float32(dx * f)
	pos.Y += float32(dy * f)
	pos.Z += float32(dz * f)
	pos.Facing = float32(math.Atan2(dy, dx))
	return false
}
