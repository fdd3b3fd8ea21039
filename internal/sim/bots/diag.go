package bots

import (
	"sort"

	"warband.ai/internal/sim/spatial"
)

// AgentDiag is one agent's advertised state. Only immutable identity and
// lock-free advertised fields appear here, so the snapshot is safe to
// take while a round is running.
type AgentDiag struct {
	EID          spatial.EID `json:"eid"`
	Name         string      `json:"name"`
	Class        uint16      `json:"class"`
	Role         string      `json:"role"`
	InCombat     bool        `json:"in_combat"`
	PredictedPct uint32      `json:"predicted_pct"`
	Target       spatial.EID `json:"target,omitempty"`
	Strategy     string      `json:"strategy,omitempty"`
	Steps        uint64      `json:"steps"`
}

// GroupDiag is one group's roster and coordinator load.
type GroupDiag struct {
	Group      uint64      `json:"group"`
	Members    int         `json:"members"`
	MainTank   spatial.EID `json:"main_tank,omitempty"`
	MainAssist spatial.EID `json:"main_assist,omitempty"`
	Interrupts int         `json:"interrupts"`
	Dispels    int         `json:"dispels"`
	Externals  int         `json:"externals"`
}

// DiagSnapshot is the admin-surface view of the engine. Safe to take
// from any goroutine.
type DiagSnapshot struct {
	Tick     uint64              `json:"tick"`
	Agents   []AgentDiag         `json:"agents"`
	Groups   []GroupDiag         `json:"groups"`
	Resolver []ResolverSiteStats `json:"resolver"`
}

func (e *Engine) Diagnostics() DiagSnapshot {
	d := DiagSnapshot{Tick: e.tick.Load()}

	e.agentsMu.RLock()
	agents := make([]*Agent, 0, len(e.agents))
	for _, a := range e.agents {
		agents = append(agents, a)
	}
	e.agentsMu.RUnlock()
	sort.Slice(agents, func(i, j int) bool { return agents[i].cfg.EID < agents[j].cfg.EID })

	d.Agents = make([]AgentDiag, 0, len(agents))
	for _, a := range agents {
		strategy, _ := a.advStrategy.Load().(string)
		d.Agents = append(d.Agents, AgentDiag{
			EID:          a.cfg.EID,
			Name:         a.cfg.Name,
			Class:        uint16(a.cfg.Class),
			Role:         a.role.String(),
			InCombat:     a.advInCombat.Load(),
			PredictedPct: a.advPredictedPct.Load(),
			Target:       spatial.EID(a.advTarget.Load()),
			Strategy:     strategy,
			Steps:        a.stepsRun.Load(),
		})
	}

	e.groupsMu.Lock()
	groups := make([]*Group, 0, len(e.groups))
	for _, g := range e.groups {
		groups = append(groups, g)
	}
	e.groupsMu.Unlock()
	sort.Slice(groups, func(i, j int) bool { return groups[i].id < groups[j].id })

	d.Groups = make([]GroupDiag, 0, len(groups))
	for _, g := range groups {
		g.mu.Lock()
		members := len(g.members)
		g.mu.Unlock()
		ints, disp, ext := g.assignmentDepths()
		d.Groups = append(d.Groups, GroupDiag{
			Group:      g.id,
			Members:    members,
			MainTank:   g.MainTank(),
			MainAssist: g.MainAssist(),
			Interrupts: ints,
			Dispels:    disp,
			Externals:  ext,
		})
	}

	d.Resolver = e.resolver.Diagnostics()
	return d
}
