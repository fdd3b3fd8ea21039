package bots

import (
	"sort"
	"sync"

	"warband.ai/internal/sim/spatial"
)

// GroupSource is an optional host capability: an authoritative roster for
// a group id. Hosts without it fall back to snapshot scans.
type GroupSource interface {
	GroupRoster(group uint64) []spatial.EID
}

// Participant is the uniform reference for an identity that may be a
// human or a simulated agent. Agent is nil for humans.
type Participant struct {
	EID   spatial.EID
	Agent *Agent
	Snap  spatial.PlayerSnapshot
}

const (
	resolveSourceHost     = "host"
	resolveSourceSnapshot = "snapshot"
	resolveSourceRegistry = "registry"
)

// ResolverSiteStats is the per-call-site diagnostic record.
type ResolverSiteStats struct {
	Site string `json:"site"`
	OK   uint64 `json:"ok"`
	Fail uint64 `json:"fail"`
}

// memberResolver chains lookup sources: host roster first when the host
// offers one, then the published snapshots, then the agent registry.
// Every call site is counted so a silently failing chain shows up in the
// diagnostic report instead of as mystery misbehavior.
type memberResolver struct {
	e *Engine

	mu    sync.Mutex
	sites map[string]*siteCounts
}

type siteCounts struct {
	ok   uint64
	fail uint64
}

func newMemberResolver(e *Engine) *memberResolver {
	return &memberResolver{e: e, sites: map[string]*siteCounts{}}
}

func (r *memberResolver) note(site string, ok bool) {
	r.mu.Lock()
	c := r.sites[site]
	if c == nil {
		c = &siteCounts{}
		r.sites[site] = c
	}
	if ok {
		c.ok++
	} else {
		c.fail++
	}
	r.mu.Unlock()
}

// Resolve produces a uniform reference for one identity on a map.
func (r *memberResolver) Resolve(mapID uint32, id spatial.EID) (Participant, bool) {
	if snap, ok := r.e.grid.FindPlayer(mapID, id); ok {
		p := Participant{EID: id, Snap: snap, Agent: r.e.agent(id)}
		r.note("resolve/"+resolveSourceSnapshot, true)
		return p, true
	}
	if ag := r.e.agent(id); ag != nil {
		r.note("resolve/"+resolveSourceRegistry, true)
		return Participant{EID: id, Agent: ag}, true
	}
	r.note("resolve/"+resolveSourceSnapshot, false)
	return Participant{}, false
}

// MembersOf returns the visible snapshots of a group's members near a
// position. Order is stable by EID.
func (r *memberResolver) MembersOf(mapID uint32, group uint64, near spatial.Position, radius float32) []spatial.PlayerSnapshot {
	if group == 0 {
		return nil
	}
	if src := r.e.groupSrc; src != nil {
		roster := src.GroupRoster(group)
		if len(roster) > 0 {
			out := make([]spatial.PlayerSnapshot, 0, len(roster))
			for _, eid := range roster {
				if snap, ok := r.e.grid.FindPlayer(mapID, eid); ok {
					out = append(out, snap)
				}
			}
			r.note("members_of/"+resolveSourceHost, len(out) > 0)
			if len(out) > 0 {
				sortMembers(out)
				return out
			}
		} else {
			r.note("members_of/"+resolveSourceHost, false)
		}
	}

	players := r.e.grid.QueryPlayers(mapID, near, radius)
	out := players[:0]
	for _, p := range players {
		if p.Group == group {
			out = append(out, p)
		}
	}
	r.note("members_of/"+resolveSourceSnapshot, len(out) > 0)
	sortMembers(out)
	return out
}

// MembersInRange filters an already-resolved member list by distance.
func (r *memberResolver) MembersInRange(members []spatial.PlayerSnapshot, from spatial.Position, radius float32) []spatial.PlayerSnapshot {
	out := make([]spatial.PlayerSnapshot, 0, len(members))
	for _, m := range members {
		if from.DistanceTo(m.Pos) <= float64(radius) {
			out = append(out, m)
		}
	}
	r.note("members_in_range/"+resolveSourceSnapshot, len(out) > 0)
	return out
}

// MembersByRole partitions a member list by role.
func (r *memberResolver) MembersByRole(members []spatial.PlayerSnapshot, role spatial.Role) []spatial.PlayerSnapshot {
	var out []spatial.PlayerSnapshot
	for _, m := range members {
		if m.Role == role {
			out = append(out, m)
		}
	}
	r.note("members_by_role/"+resolveSourceSnapshot, len(out) > 0)
	return out
}

func sortMembers(ms []spatial.PlayerSnapshot) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].EID < ms[j].EID })
}

// Diagnostics returns the per-site counters sorted by site name.
func (r *memberResolver) Diagnostics() []ResolverSiteStats {
	r.mu.Lock()
	out := make([]ResolverSiteStats, 0, len(r.sites))
	for site, c := range r.sites {
		out = append(out, ResolverSiteStats{Site: site, OK: c.ok, Fail: c.fail})
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Site < out[j].Site })
	return out
}
