package bots

import "warband.ai/internal/sim/spatial"

// defaultStrategies builds an agent's pipeline from its kit. Every agent
// carries the core set; coordinator-fed strategies join only when the kit
// can act on an assignment.
func defaultStrategies(a *Agent) []Strategy {
	s := []Strategy{
		survivalStrategy{},
		combatStrategy{},
		questStrategy{},
		lootStrategy{},
		followStrategy{},
		wanderStrategy{},
	}
	if a.kit.Interrupt.Spell != 0 {
		s = append(s, interruptStrategy{})
	}
	if a.role == spatial.RoleHealer {
		s = append(s, healStrategy{})
	}
	if a.kit.DispelSpell != 0 || a.kit.PurgeSpell != 0 {
		s = append(s, dispelStrategy{})
	}
	if len(a.kit.Externals) > 0 {
		s = append(s, externalStrategy{})
	}
	return s
}

// step runs one decision round for this agent. Exactly one worker calls
// it per round; everything past the inbox drain is single-owner state.
func (a *Agent) step(e *Engine, tick uint64, nowMS int64) bool {
	_, acks := a.drainInbox(nowMS)
	a.applyAcks(acks, nowMS)
	a.res.advance(nowMS, a.combat)
	a.threat.decay(nowMS)

	self, visible := e.grid.FindPlayer(a.mapID, a.cfg.EID)
	if !visible {
		// Not published this cycle; keep the advertised state honest and
		// try again next round.
		a.advertise(nowMS)
		return false
	}
	a.mapID = self.Pos.Map
	a.res.syncPrimary(self.ResourcePct, nowMS)

	sc := &stepCtx{
		e:     e,
		a:     a,
		tick:  tick,
		nowMS: nowMS,
		self:  self,
	}
	radius := e.cfg.WorkingRadiusYards
	sc.creatures = e.grid.QueryCreatures(a.mapID, self.Pos, radius)
	sc.players = e.grid.QueryPlayers(a.mapID, self.Pos, radius)
	sc.objects = e.grid.QueryObjects(a.mapID, self.Pos, radius)
	sc.fields = e.grid.QueryFields(a.mapID, self.Pos, radius)

	if self.Group != 0 {
		sc.group = e.group(self.Group)
		sc.members = sc.group.Members(e, a.mapID, self.Pos, nowMS)
	}

	sc.profile = a.intake.profile(nowMS, e.cfg.DefenseWindowMS)
	sc.predictedPct = predictedHealthPct(self, sc.profile.dps, a.maxHealth.Load(), predictAheadMS)
	storePredicted(a, sc.predictedPct)

	a.quest.update(sc)

	if sc.group != nil {
		sc.group.interrupts.observe(sc)
		sc.group.dispels.observe(sc)
		sc.group.externals.observe(sc)
	}

	a.runStrategies(sc)

	a.move.resolve(sc)
	a.advertise(nowMS)
	a.cool.compact(nowMS)
	a.pruneRecentCasts(nowMS)
	a.lastStepMS = nowMS
	a.stepsRun.Add(1)
	return true
}

func storePredicted(a *Agent, pct float32) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	a.advPredictedPct.Store(uint32(pct))
}

// runStrategies scores, orders, and executes the pipeline. An emergency
// emission ends the round early; nothing below it could change the
// outcome and the queue slot is better spent next tick.
func (a *Agent) runStrategies(sc *stepCtx) {
	scored := make([]scoredStrategy, 0, len(a.strategies))
	for _, s := range a.strategies {
		if !s.Active(sc) {
			continue
		}
		rel := s.Relevance(sc)
		if rel <= 0 {
			continue
		}
		scored = append(scored, scoredStrategy{s: s, relevance: rel})
	}
	sortScored(scored)

	if len(scored) > 0 {
		a.lastStrategy = scored[0].s.Name()
	}
	for _, sd := range scored {
		sd.s.Update(sc)
		if sc.topPriority >= PriorityEmergencyFloor {
			a.lastStrategy = sd.s.Name()
			break
		}
	}
}
