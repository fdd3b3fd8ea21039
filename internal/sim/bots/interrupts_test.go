package bots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/orders"
	"warband.ai/internal/sim/spatial"
)

func member(eid spatial.EID, p spatial.Position, role spatial.Role) spatial.PlayerSnapshot {
	m := player(eid, p)
	m.Group = 1
	m.Role = role
	return m
}

func castingCreature(eid spatial.EID, entry uint32, p spatial.Position, spell uint32, remainMS int32) spatial.CreatureSnapshot {
	c := creature(eid, entry, p)
	c.IsCasting = true
	c.CastSpell = spell
	c.CastRemainingMS = remainMS
	return c
}

// groupCtx builds a step context for one observer with an explicit member
// roster and creature scan.
func groupCtx(e *Engine, a *Agent, members []spatial.PlayerSnapshot, creatures ...spatial.CreatureSnapshot) *stepCtx {
	var self spatial.PlayerSnapshot
	for _, m := range members {
		if m.EID == a.cfg.EID {
			self = m
		}
	}
	if self.EID == 0 {
		self = player(a.cfg.EID, pos(8, 0))
	}
	return &stepCtx{
		e:         e,
		a:         a,
		tick:      1,
		nowMS:     e.host.NowMS(),
		self:      self,
		creatures: creatures,
		group:     e.group(1),
		members:   members,
	}
}

func TestInterruptScanAssignsAndClaimsOnce(t *testing.T) {
	e, _ := newTestEngine(t)
	a := addAgent(t, e, warriorConfig(1))
	ic := e.group(1).interrupts

	members := []spatial.PlayerSnapshot{member(1, pos(8, 0), spatial.RoleDamage)}
	caster := castingCreature(10, 200, pos(10, 0), spellFrostbolt, 2000)

	ic.observe(groupCtx(e, a, members, caster))
	require.Equal(t, 1, ic.depth())
	assert.True(t, ic.pendingFor(1))

	spell, target, pri, ok := ic.claimEmit(1, e.host.NowMS())
	require.True(t, ok)
	assert.Equal(t, uint32(spellPummel), spell)
	assert.Equal(t, spatial.EID(10), target)
	// Base 110, +20 for a mid-length cast, nothing for a normal-rank caster.
	assert.Equal(t, uint8(130), pri)

	_, _, _, again := ic.claimEmit(1, e.host.NowMS())
	assert.False(t, again, "an assignment is handed out exactly once")
	assert.False(t, ic.pendingFor(1))
}

func TestInterruptSkipsUninterruptibleCasts(t *testing.T) {
	e, host := newTestEngine(t)
	host.mu.Lock()
	host.abilities[555] = hostbridge.AbilityInfo{Spell: 555, Name: "Molten Armor", Interruptible: false}
	host.mu.Unlock()
	a := addAgent(t, e, warriorConfig(1))
	ic := e.group(1).interrupts

	members := []spatial.PlayerSnapshot{member(1, pos(8, 0), spatial.RoleDamage)}
	ic.observe(groupCtx(e, a, members, castingCreature(10, 200, pos(10, 0), 555, 2000)))

	assert.Zero(t, ic.depth())
}

func TestInterruptUncatalogedCastIsFairGame(t *testing.T) {
	e, _ := newTestEngine(t)
	a := addAgent(t, e, warriorConfig(1))
	ic := e.group(1).interrupts

	members := []spatial.PlayerSnapshot{member(1, pos(8, 0), spatial.RoleDamage)}
	ic.observe(groupCtx(e, a, members, castingCreature(10, 200, pos(10, 0), 777, 2000)))

	assert.Equal(t, 1, ic.depth())
}

func TestInterruptScanRunsOnCadence(t *testing.T) {
	e, host := newTestEngine(t)
	a := addAgent(t, e, warriorConfig(1))
	ic := e.group(1).interrupts

	members := []spatial.PlayerSnapshot{member(1, pos(8, 0), spatial.RoleDamage)}
	ic.observe(groupCtx(e, a, members))
	require.Zero(t, ic.depth())

	// The cast starts right after a scan: the next observe inside the
	// cadence window must not detect it yet.
	caster := castingCreature(10, 200, pos(10, 0), spellFrostbolt, 2000)
	ic.observe(groupCtx(e, a, members, caster))
	assert.Zero(t, ic.depth())

	host.advance(150)
	ic.observe(groupCtx(e, a, members, caster))
	assert.Equal(t, 1, ic.depth())
}

func TestInterruptFulfilledWhenCastDisappears(t *testing.T) {
	e, host := newTestEngine(t)
	a := addAgent(t, e, warriorConfig(1))
	ic := e.group(1).interrupts

	members := []spatial.PlayerSnapshot{member(1, pos(8, 0), spatial.RoleDamage)}
	caster := castingCreature(10, 200, pos(10, 0), spellFrostbolt, 2000)
	ic.observe(groupCtx(e, a, members, caster))
	_, _, _, ok := ic.claimEmit(1, e.host.NowMS())
	require.True(t, ok)

	// The kick landed: the cast vanished well before its deadline.
	host.advance(300)
	stopped := caster
	stopped.IsCasting = false
	stopped.CastSpell = 0
	ic.observe(groupCtx(e, a, members, stopped))

	require.Zero(t, ic.depth())
	outs := e.takeOutcomes()
	require.Len(t, outs, 1)
	assert.Equal(t, orders.AssignInterrupt, outs[0].Kind)
	assert.Equal(t, orders.ResultFulfilled, outs[0].Result)
	assert.Equal(t, spatial.EID(1), outs[0].Agent)
	assert.Equal(t, spatial.EID(10), outs[0].Target)
	assert.Equal(t, uint32(spellFrostbolt), outs[0].Spell)
}

func TestInterruptMissedAtDeadline(t *testing.T) {
	e, host := newTestEngine(t)
	a := addAgent(t, e, warriorConfig(1))
	ic := e.group(1).interrupts

	members := []spatial.PlayerSnapshot{member(1, pos(8, 0), spatial.RoleDamage)}
	caster := castingCreature(10, 200, pos(10, 0), spellFrostbolt, 2000)
	ic.observe(groupCtx(e, a, members, caster))
	_, _, _, ok := ic.claimEmit(1, e.host.NowMS())
	require.True(t, ok)

	// The cast is still up past its own finish time: the kick was too late.
	host.advance(2100)
	ic.observe(groupCtx(e, a, members, caster))

	outs := e.takeOutcomes()
	require.Len(t, outs, 1)
	assert.Equal(t, orders.ResultMissed, outs[0].Result)
}

func TestInterruptExpiresUnassigned(t *testing.T) {
	e, host := newTestEngine(t)
	a := addAgent(t, e, warriorConfig(1))
	ic := e.group(1).interrupts

	// Nobody in the roster: detection still happens off the observer's own
	// position, but no one can take the job.
	caster := castingCreature(10, 200, pos(10, 0), spellFrostbolt, 2000)
	ic.observe(groupCtx(e, a, nil, caster))
	require.Equal(t, 1, ic.depth())

	host.advance(300)
	stopped := caster
	stopped.IsCasting = false
	ic.observe(groupCtx(e, a, nil, stopped))

	outs := e.takeOutcomes()
	require.Len(t, outs, 1)
	assert.Equal(t, orders.ResultExpired, outs[0].Result)
	assert.Zero(t, outs[0].Agent)
}

func TestInterruptPrefersNonHealer(t *testing.T) {
	e, _ := newTestEngine(t)
	a := addAgent(t, e, warriorConfig(1))
	addAgent(t, e, tankConfig(2))
	ic := e.group(1).interrupts

	// The healer-flagged member is closer to the caster, but the penalty
	// hands the kick to the damage player.
	members := []spatial.PlayerSnapshot{
		member(1, pos(1, 0), spatial.RoleHealer),
		member(2, pos(4, 0), spatial.RoleDamage),
	}
	ic.observe(groupCtx(e, a, members, castingCreature(10, 200, pos(0, 0), spellFrostbolt, 2000)))

	assert.False(t, ic.pendingFor(1))
	assert.True(t, ic.pendingFor(2))
}

func TestInterruptOutOfReachMembersAreSkipped(t *testing.T) {
	e, _ := newTestEngine(t)
	a := addAgent(t, e, warriorConfig(1))
	ic := e.group(1).interrupts

	// A 5-yard kick cannot reach a caster 20 yards away.
	members := []spatial.PlayerSnapshot{member(1, pos(20, 0), spatial.RoleDamage)}
	ic.observe(groupCtx(e, a, members, castingCreature(10, 200, pos(0, 0), spellFrostbolt, 3000)))

	require.Equal(t, 1, ic.depth())
	assert.False(t, ic.pendingFor(1), "task stays unassigned until someone closes in")
}

func TestInterruptReassignsBrokenAssignee(t *testing.T) {
	e, host := newTestEngine(t)
	a := addAgent(t, e, warriorConfig(1))
	addAgent(t, e, tankConfig(2))
	ic := e.group(1).interrupts

	members := []spatial.PlayerSnapshot{
		member(1, pos(1, 0), spatial.RoleDamage),
		member(2, pos(4, 0), spatial.RoleDamage),
	}
	caster := castingCreature(10, 200, pos(0, 0), spellFrostbolt, 2000)
	ic.observe(groupCtx(e, a, members, caster))
	require.True(t, ic.pendingFor(1))

	// The assignee is stunned with plenty of cast left: the job moves.
	host.advance(100)
	members[0].AuraBits = spatial.AuraStunned
	ic.observe(groupCtx(e, a, members, caster))

	assert.False(t, ic.pendingFor(1))
	assert.True(t, ic.pendingFor(2))
}

func TestInterruptPriorityScoring(t *testing.T) {
	e, _ := newTestEngine(t)
	a := addAgent(t, e, warriorConfig(1))
	sc := groupCtx(e, a, nil)

	heal, _ := e.host.AbilityInfo(spellFlashHeal)
	frost, _ := e.host.AbilityInfo(spellFrostbolt)
	fear := hostbridge.AbilityInfo{Spell: 888, Effects: hostbridge.EffectFear}

	// Plain damage cast, long wind-up, normal rank: 110+30.
	c := castingCreature(10, 200, pos(5, 0), spellFrostbolt, 3000)
	assert.Equal(t, 140, interruptPriority(sc, c, frost, true))

	// A heal adds 90 on top.
	c.CastSpell = spellFlashHeal
	assert.Equal(t, 230, interruptPriority(sc, c, heal, true))

	// Crowd control adds 100; a boss another 200.
	c = castingCreature(11, 300, pos(5, 0), 888, 1000)
	assert.Equal(t, 110+100+15+200, interruptPriority(sc, c, fear, true))

	// A cast aimed at the main tank is scaled up.
	sc.group.SetFlags(42, 0)
	c = castingCreature(12, 200, pos(5, 0), spellFrostbolt, 1000)
	c.CastTarget = 42
	assert.Equal(t, 150, interruptPriority(sc, c, frost, true)) // (110+15)*1.2
}

func TestClampPriority(t *testing.T) {
	assert.Equal(t, uint8(PriorityEmergencyFloor), clampPriority(40))
	assert.Equal(t, uint8(180), clampPriority(180))
	assert.Equal(t, uint8(255), clampPriority(600))
}

func TestNearAnyMemberFallsBackToSelf(t *testing.T) {
	e, _ := newTestEngine(t)
	a := addAgent(t, e, warriorConfig(1))

	sc := groupCtx(e, a, nil) // observer at (8,0)
	assert.True(t, nearAnyMember(sc, pos(10, 0), 5))
	assert.False(t, nearAnyMember(sc, pos(50, 0), 5))

	sc.members = []spatial.PlayerSnapshot{member(2, pos(48, 0), spatial.RoleDamage)}
	assert.True(t, nearAnyMember(sc, pos(50, 0), 5))
}
