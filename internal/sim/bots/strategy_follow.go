package bots

import "warband.ai/internal/sim/spatial"

// followStrategy keeps grouped agents near their anchor: the main tank
// when one is elected, otherwise the lowest-EID member.
type followStrategy struct{}

func (followStrategy) Name() string { return "follow" }

func (followStrategy) Active(sc *stepCtx) bool {
	return sc.group != nil && len(sc.members) > 1 && !sc.self.IsDead && !sc.self.IsCrowdControlled()
}

func (followStrategy) Relevance(sc *stepCtx) int {
	if sc.a.combat {
		return 0
	}
	anchor, ok := followAnchor(sc)
	if !ok {
		return 0
	}
	if sc.distanceTo(anchor.Pos) > sc.cfg().FollowDistanceYards {
		return RelevanceContentFloor + 8
	}
	return 0
}

func (followStrategy) Update(sc *stepCtx) {
	anchor, ok := followAnchor(sc)
	if !ok {
		return
	}
	if sc.distanceTo(anchor.Pos) > sc.cfg().FollowDistanceYards {
		sc.requestMove(MoveFollow, anchor.Pos, true, "stay with group")
	}
}

func followAnchor(sc *stepCtx) (spatial.PlayerSnapshot, bool) {
	if mt := sc.group.MainTank(); mt != 0 && mt != sc.a.cfg.EID {
		if m, ok := sc.findMember(mt); ok && !m.IsDead {
			return m, true
		}
	}
	for _, m := range sc.members {
		if m.EID == sc.a.cfg.EID || m.IsDead {
			continue
		}
		return m, true
	}
	return spatial.PlayerSnapshot{}, false
}
