package bots

import (
	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/spatial"
)

// moveReq is one strategy's movement wish for this tick.
type moveReq struct {
	priority uint8
	dest     spatial.Position
	genPath  bool
	reason   string
}

// moveArbiter serialises movement per agent. The winning request holds the
// legs until it arrives, stops being renewed, or a strictly higher priority
// preempts it. Lower-priority wishes never yank an active route.
type moveArbiter struct {
	active      bool
	current     moveReq
	lastRenewMS int64
	lastEmitMS  int64
}

const (
	moveHoldMS      = 500
	moveSameDestYds = 1.0
)

func (m *moveArbiter) resolve(sc *stepCtx) {
	reqs := sc.moveReqs
	// Crowd control pins the agent; whatever was in flight stays current so
	// the route resumes cleanly when control returns.
	if sc.self.IsCrowdControlled() {
		return
	}

	var best *moveReq
	for i := range reqs {
		if best == nil || reqs[i].priority > best.priority {
			best = &reqs[i]
		}
	}

	if m.active {
		if sc.distanceTo(m.current.dest) <= sc.cfg().ArriveToleranceYards {
			m.active = false
		}
	}

	if m.active {
		switch {
		case best == nil:
			if sc.nowMS-m.lastRenewMS > moveHoldMS {
				released := m.current
				m.active = false
				if released.priority >= MoveEvade {
					// Hazard gone mid-sprint: stand down instead of
					// finishing the old escape leg.
					sc.emit(hostbridge.ActionIntent{
						Kind:     hostbridge.IntentStopMoving,
						Priority: released.priority,
					})
				}
			}
			return
		case best.priority > m.current.priority:
			m.start(sc, *best)
			return
		case samePlace(best.dest, m.current.dest):
			m.current = *best
			m.lastRenewMS = sc.nowMS
			return
		case best.priority == m.current.priority:
			// Same band, new destination: treat as a renewal with a
			// course change.
			m.start(sc, *best)
			return
		default:
			// Lower priority never steals the route.
			return
		}
	}

	if best != nil {
		m.start(sc, *best)
	}
}

func (m *moveArbiter) start(sc *stepCtx, req moveReq) {
	renewOnly := m.active &&
		samePlace(req.dest, m.current.dest) &&
		req.priority == m.current.priority
	m.current = req
	m.active = true
	m.lastRenewMS = sc.nowMS
	if renewOnly {
		return
	}
	m.lastEmitMS = sc.nowMS
	sc.emit(hostbridge.ActionIntent{
		Kind:         hostbridge.IntentMoveTo,
		Priority:     req.priority,
		TargetMode:   hostbridge.TargetPosition,
		Dest:         req.dest,
		GeneratePath: req.genPath,
	})
}

func (m *moveArbiter) reasonNow() string {
	if !m.active {
		return ""
	}
	return m.current.reason
}

func samePlace(a, b spatial.Position) bool {
	return a.Map == b.Map && a.Distance2D(b) <= moveSameDestYds
}
