package bots

import (
	"errors"

	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/spatial"
)

// planPath asks the host navmesh for a route to dest, capped at the
// configured trek limit. A path summing to exactly the limit passes.
func planPath(sc *stepCtx, dest spatial.Position) ([]spatial.Position, error) {
	return sc.e.host.FindPath(sc.a.cfg.EID, sc.self.Pos, dest, hostbridge.PathOptions{
		MaxLengthYards:   sc.cfg().MaxPathYards,
		ForceDestination: true,
	})
}

// reachable reports whether a destination is worth walking to. Unpathable
// and over-length destinations both count as unreachable; the caller
// decides whether to back off or pick another target.
func reachable(sc *stepCtx, dest spatial.Position) bool {
	_, err := planPath(sc, dest)
	if err == nil {
		return true
	}
	return !errors.Is(err, hostbridge.ErrNoPath) && !errors.Is(err, hostbridge.ErrPathTooLong)
}

// pathLengthYards sums segment lengths from the agent's position through
// every waypoint.
func pathLengthYards(from spatial.Position, waypoints []spatial.Position) float32 {
	total := float32(0)
	prev := from
	for _, wp := range waypoints {
		total += float32(prev.DistanceTo(wp))
		prev = wp
	}
	return total
}
