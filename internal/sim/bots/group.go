package bots

import (
	"sync"
	"sync/atomic"

	"warband.ai/internal/sim/spatial"
)

// Group is the shared state for one party of members. Coordinators hang
// off the group; they carry their own locks and are never called while
// the group mutex is held.
type Group struct {
	id uint64

	mu          sync.Mutex
	members     []spatial.PlayerSnapshot
	refreshedMS int64

	// Explicit role flags win over inference. Zero means unset.
	flagMainTank   atomic.Uint64
	flagMainAssist atomic.Uint64
	mainTank       atomic.Uint64

	interrupts *interruptCoordinator
	dispels    *dispelCoordinator
	externals  *externalCoordinator
}

func newGroup(id uint64) *Group {
	return &Group{
		id:         id,
		interrupts: newInterruptCoordinator(id),
		dispels:    newDispelCoordinator(id),
		externals:  newExternalCoordinator(id),
	}
}

func (g *Group) ID() uint64 { return g.id }

// MainTank returns the elected or flagged main tank, 0 when none.
func (g *Group) MainTank() spatial.EID { return spatial.EID(g.mainTank.Load()) }

func (g *Group) MainAssist() spatial.EID { return spatial.EID(g.flagMainAssist.Load()) }

// SetFlags records explicit main-tank and main-assist annotations. Zero
// clears a flag and hands the choice back to inference.
func (g *Group) SetFlags(mainTank, mainAssist spatial.EID) {
	g.flagMainTank.Store(uint64(mainTank))
	g.flagMainAssist.Store(uint64(mainAssist))
	if mainTank != 0 {
		g.mainTank.Store(uint64(mainTank))
	}
}

// Members returns the roster, refreshing it when the cached copy is old
// enough. The returned slice is replaced wholesale on refresh and must
// not be mutated by callers.
func (g *Group) Members(e *Engine, mapID uint32, near spatial.Position, nowMS int64) []spatial.PlayerSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	age := nowMS - g.refreshedMS
	if g.members != nil && age < e.cfg.GroupRefreshMS {
		return g.members
	}

	fresh := e.resolver.MembersOf(mapID, g.id, near, e.cfg.GroupScanRadiusYards)
	if len(fresh) == 0 {
		// Keep a recent roster through a blip; a stale one is worse
		// than none.
		if g.members != nil && age < e.cfg.GroupCacheStaleMS {
			return g.members
		}
		g.members = nil
		return nil
	}
	g.members = fresh
	g.refreshedMS = nowMS
	g.electMainTank(e, mapID, near, fresh)
	return g.members
}

// electMainTank picks the tank most enemies are pressing. An incumbent
// keeps the job unless a challenger clearly beats it, so the pointer does
// not thrash between two tanks trading aggro.
func (g *Group) electMainTank(e *Engine, mapID uint32, near spatial.Position, members []spatial.PlayerSnapshot) {
	if flagged := g.flagMainTank.Load(); flagged != 0 {
		g.mainTank.Store(flagged)
		return
	}

	creatures := e.grid.QueryCreatures(mapID, near, e.cfg.WorkingRadiusYards)
	incumbent := spatial.EID(g.mainTank.Load())

	var (
		best      spatial.EID
		bestScore float64
		incScore  float64
		found     bool
	)
	for _, m := range members {
		if m.Role != spatial.RoleTank || m.IsDead {
			continue
		}
		score := 0.0
		for _, c := range creatures {
			if c.IsDead || !c.HostileHint {
				continue
			}
			if c.IsCasting && c.CastTarget == m.EID {
				score++
			}
		}
		if m.EID == incumbent {
			incScore = score
		}
		if !found || score > bestScore || (score == bestScore && m.EID < best) {
			best, bestScore, found = m.EID, score, true
		}
	}
	if !found {
		g.mainTank.Store(0)
		return
	}
	if incumbent != 0 && incumbent != best {
		if hasMember(members, incumbent) && bestScore <= incScore+e.cfg.ThreatTieEpsilon {
			return
		}
	}
	g.mainTank.Store(uint64(best))
}

func hasMember(members []spatial.PlayerSnapshot, eid spatial.EID) bool {
	for _, m := range members {
		if m.EID == eid {
			return !m.IsDead
		}
	}
	return false
}

func (g *Group) assignmentDepths() (interrupts, dispels, externals int) {
	return g.interrupts.depth(), g.dispels.depth(), g.externals.depth()
}
