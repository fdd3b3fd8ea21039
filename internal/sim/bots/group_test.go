package bots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warband.ai/internal/sim/spatial"
)

// pressing returns a hostile caster mid-cast at the given member.
func pressing(eid spatial.EID, p spatial.Position, target spatial.EID) spatial.CreatureSnapshot {
	c := castingCreature(eid, 200, p, spellFrostbolt, 1500)
	c.CastTarget = target
	return c
}

func TestMembersRefreshOnCadence(t *testing.T) {
	e, host := newTestEngine(t)
	g := e.group(1)
	t0 := host.NowMS()

	stage(e, 1, spatial.Batch{Players: []spatial.PlayerSnapshot{
		member(1, pos(0, 0), spatial.RoleHealer),
		member(2, pos(5, 0), spatial.RoleDamage),
	}})
	require.Len(t, g.Members(e, 1, pos(0, 0), t0), 2)

	// A third member appears, but the cached roster holds inside the
	// refresh window.
	stage(e, 2, spatial.Batch{Players: []spatial.PlayerSnapshot{
		member(1, pos(0, 0), spatial.RoleHealer),
		member(2, pos(5, 0), spatial.RoleDamage),
		member(3, pos(10, 0), spatial.RoleDamage),
	}})
	assert.Len(t, g.Members(e, 1, pos(0, 0), t0+e.cfg.GroupRefreshMS-1), 2)
	assert.Len(t, g.Members(e, 1, pos(0, 0), t0+e.cfg.GroupRefreshMS), 3)
}

func TestMembersRideOutScanBlips(t *testing.T) {
	e, host := newTestEngine(t)
	g := e.group(1)
	t0 := host.NowMS()

	roster := []spatial.PlayerSnapshot{
		member(1, pos(0, 0), spatial.RoleHealer),
		member(2, pos(5, 0), spatial.RoleDamage),
	}
	stage(e, 1, spatial.Batch{Players: roster})
	require.Len(t, g.Members(e, 1, pos(0, 0), t0), 2)

	// The publication goes empty for a moment. A roster this recent is
	// still served; a stale one is not.
	stage(e, 2, spatial.Batch{})
	assert.Len(t, g.Members(e, 1, pos(0, 0), t0+2500), 2)
	assert.Nil(t, g.Members(e, 1, pos(0, 0), t0+e.cfg.GroupCacheStaleMS))

	// Members back on the grid: the next refresh recovers.
	stage(e, 3, spatial.Batch{Players: roster})
	assert.Len(t, g.Members(e, 1, pos(0, 0), t0+e.cfg.GroupCacheStaleMS+100), 2)
}

func TestElectMainTankFollowsPressure(t *testing.T) {
	e, host := newTestEngine(t)
	g := e.group(1)

	stage(e, 1, spatial.Batch{
		Players: []spatial.PlayerSnapshot{
			member(2, pos(0, 0), spatial.RoleTank),
			member(3, pos(5, 0), spatial.RoleTank),
			member(4, pos(10, 0), spatial.RoleHealer),
		},
		Creatures: []spatial.CreatureSnapshot{
			pressing(20, pos(3, 3), 3),
			pressing(21, pos(3, -3), 3),
			pressing(22, pos(-3, 0), 2),
		},
	})
	g.Members(e, 1, pos(0, 0), host.NowMS())
	assert.Equal(t, spatial.EID(3), g.MainTank(), "two casters press tank 3, one presses tank 2")
}

func TestElectMainTankPrefersLowerEIDOnFirstTie(t *testing.T) {
	e, host := newTestEngine(t)
	g := e.group(1)

	stage(e, 1, spatial.Batch{Players: []spatial.PlayerSnapshot{
		member(3, pos(5, 0), spatial.RoleTank),
		member(2, pos(0, 0), spatial.RoleTank),
	}})
	g.Members(e, 1, pos(0, 0), host.NowMS())
	assert.Equal(t, spatial.EID(2), g.MainTank())
}

func TestElectMainTankKeepsIncumbentOnNearTie(t *testing.T) {
	e, host := newTestEngine(t)
	g := e.group(1)
	t0 := host.NowMS()
	tanks := []spatial.PlayerSnapshot{
		member(2, pos(0, 0), spatial.RoleTank),
		member(3, pos(5, 0), spatial.RoleTank),
	}

	stage(e, 1, spatial.Batch{
		Players:   tanks,
		Creatures: []spatial.CreatureSnapshot{pressing(20, pos(3, 3), 3)},
	})
	g.Members(e, 1, pos(0, 0), t0)
	require.Equal(t, spatial.EID(3), g.MainTank())

	// Pressure evens out: the incumbent holds, aggro trading does not
	// thrash the pointer.
	stage(e, 2, spatial.Batch{
		Players: tanks,
		Creatures: []spatial.CreatureSnapshot{
			pressing(20, pos(3, 3), 3),
			pressing(21, pos(-3, 0), 2),
		},
	})
	g.Members(e, 1, pos(0, 0), t0+e.cfg.GroupRefreshMS)
	assert.Equal(t, spatial.EID(3), g.MainTank())

	// A clear lead does move it.
	stage(e, 3, spatial.Batch{
		Players: tanks,
		Creatures: []spatial.CreatureSnapshot{
			pressing(20, pos(-3, 0), 2),
			pressing(21, pos(-3, 3), 2),
			pressing(22, pos(3, 3), 3),
		},
	})
	g.Members(e, 1, pos(0, 0), t0+2*e.cfg.GroupRefreshMS)
	assert.Equal(t, spatial.EID(2), g.MainTank())
}

func TestElectMainTankDropsDeadIncumbent(t *testing.T) {
	e, host := newTestEngine(t)
	g := e.group(1)
	t0 := host.NowMS()

	stage(e, 1, spatial.Batch{
		Players: []spatial.PlayerSnapshot{
			member(2, pos(0, 0), spatial.RoleTank),
			member(3, pos(5, 0), spatial.RoleTank),
		},
		Creatures: []spatial.CreatureSnapshot{pressing(20, pos(3, 3), 3)},
	})
	g.Members(e, 1, pos(0, 0), t0)
	require.Equal(t, spatial.EID(3), g.MainTank())

	dead := member(3, pos(5, 0), spatial.RoleTank)
	dead.IsDead = true
	stage(e, 2, spatial.Batch{Players: []spatial.PlayerSnapshot{
		member(2, pos(0, 0), spatial.RoleTank),
		dead,
	}})
	g.Members(e, 1, pos(0, 0), t0+e.cfg.GroupRefreshMS)
	assert.Equal(t, spatial.EID(2), g.MainTank(), "a dead incumbent cannot hold the pointer")
}

func TestElectMainTankHonorsFlags(t *testing.T) {
	e, host := newTestEngine(t)
	g := e.group(1)
	t0 := host.NowMS()

	g.SetFlags(9, 5)
	assert.Equal(t, spatial.EID(9), g.MainTank(), "flag applies before any refresh")
	assert.Equal(t, spatial.EID(5), g.MainAssist())

	stage(e, 1, spatial.Batch{
		Players: []spatial.PlayerSnapshot{
			member(2, pos(0, 0), spatial.RoleTank),
			member(9, pos(5, 0), spatial.RoleHealer),
		},
		Creatures: []spatial.CreatureSnapshot{pressing(20, pos(-3, 0), 2)},
	})
	g.Members(e, 1, pos(0, 0), t0)
	assert.Equal(t, spatial.EID(9), g.MainTank(), "an explicit flag beats inference")

	// Clearing the flag hands the choice back to pressure.
	g.SetFlags(0, 0)
	g.Members(e, 1, pos(0, 0), t0+e.cfg.GroupRefreshMS)
	assert.Equal(t, spatial.EID(2), g.MainTank())
	assert.Zero(t, g.MainAssist())
}

func TestElectMainTankClearsWhenNoTanks(t *testing.T) {
	e, host := newTestEngine(t)
	g := e.group(1)
	t0 := host.NowMS()

	stage(e, 1, spatial.Batch{Players: []spatial.PlayerSnapshot{
		member(1, pos(0, 0), spatial.RoleHealer),
		member(2, pos(5, 0), spatial.RoleTank),
	}})
	g.Members(e, 1, pos(0, 0), t0)
	require.Equal(t, spatial.EID(2), g.MainTank())

	stage(e, 2, spatial.Batch{Players: []spatial.PlayerSnapshot{
		member(1, pos(0, 0), spatial.RoleHealer),
	}})
	g.Members(e, 1, pos(0, 0), t0+e.cfg.GroupRefreshMS)
	assert.Zero(t, g.MainTank(), "no live tank leaves the pointer empty")
}
