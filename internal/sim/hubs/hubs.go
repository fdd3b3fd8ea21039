// Package hubs clusters quest-giver spawns into quest hubs and ranks hubs
// by suitability for an agent. The database is built once at engine start
// and read-only afterwards.
package hubs

import (
	"math"
	"sort"

	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/spatial"
)

// Hub is one spatial cluster of quest givers.
type Hub struct {
	ID          int
	Map         uint32
	Center      spatial.Position
	Radius      float32
	LevelMin    uint8
	LevelMax    uint8
	FactionMask uint32 // OR of member giver faction bits
	Quests      []uint32
	Givers      []uint32 // giver entries, sorted
}

type Database struct {
	hubs []Hub
}

// QuestLookup resolves quest metadata while deriving hub level ranges.
type QuestLookup func(quest uint32) (hostbridge.QuestInfo, bool)

// Build clusters givers with DBSCAN: eps is the neighborhood radius in
// yards, minPts the density threshold. Givers are sorted before
// clustering, so the partition and hub ids do not depend on input order.
// Isolated givers (fewer than minPts neighbors) form no hub.
func Build(givers []hostbridge.QuestGiver, lookup QuestLookup, eps float32, minPts int) *Database {
	if eps <= 0 {
		eps = 75
	}
	if minPts < 1 {
		minPts = 2
	}

	pts := make([]hostbridge.QuestGiver, len(givers))
	copy(pts, givers)
	sort.Slice(pts, func(i, j int) bool {
		a, b := pts[i], pts[j]
		if a.Pos.Map != b.Pos.Map {
			return a.Pos.Map < b.Pos.Map
		}
		if a.Entry != b.Entry {
			return a.Entry < b.Entry
		}
		if a.Pos.X != b.Pos.X {
			return a.Pos.X < b.Pos.X
		}
		return a.Pos.Y < b.Pos.Y
	})

	neighborsOf := func(i int) []int {
		var out []int
		for j := range pts {
			if pts[j].Pos.Map != pts[i].Pos.Map {
				continue
			}
			if pts[i].Pos.Distance2D(pts[j].Pos) <= float64(eps) {
				out = append(out, j)
			}
		}
		return out
	}

	const (
		unvisited = 0
		noise     = -1
	)
	labels := make([]int, len(pts)) // 0 unvisited, -1 noise, ≥1 cluster id
	next := 1
	for i := range pts {
		if labels[i] != unvisited {
			continue
		}
		neigh := neighborsOf(i)
		if len(neigh) < minPts {
			labels[i] = noise
			continue
		}
		cluster := next
		next++
		labels[i] = cluster
		queue := append([]int(nil), neigh...)
		for qi := 0; qi < len(queue); qi++ {
			j := queue[qi]
			if labels[j] == noise {
				labels[j] = cluster
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster
			more := neighborsOf(j)
			if len(more) >= minPts {
				queue = append(queue, more...)
			}
		}
	}

	byCluster := map[int][]int{}
	for i, l := range labels {
		if l > 0 {
			byCluster[l] = append(byCluster[l], i)
		}
	}
	ids := make([]int, 0, len(byCluster))
	for id := range byCluster {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	db := &Database{}
	for hubID, id := range ids {
		members := byCluster[id]
		db.hubs = append(db.hubs, buildHub(hubID+1, pts, members, lookup))
	}
	return db
}

func buildHub(id int, pts []hostbridge.QuestGiver, members []int, lookup QuestLookup) Hub {
	h := Hub{ID: id, Map: pts[members[0]].Pos.Map}

	var sx, sy, sz float64
	for _, i := range members {
		sx += float64(pts[i].Pos.X)
		sy += float64(pts[i].Pos.Y)
		sz += float64(pts[i].Pos.Z)
	}
	n := float64(len(members))
	h.Center = spatial.Position{
		Map: h.Map,
		X:   float32(sx / n),
		Y:   float32(sy / n),
		Z:   float32(sz / n),
	}

	seenQuest := map[uint32]bool{}
	seenGiver := map[uint32]bool{}
	for _, i := range members {
		g := pts[i]
		if d := g.Pos.Distance2D(h.Center); float32(d) > h.Radius {
			h.Radius = float32(d)
		}
		h.FactionMask |= g.Faction
		if !seenGiver[g.Entry] {
			seenGiver[g.Entry] = true
			h.Givers = append(h.Givers, g.Entry)
		}
		for _, q := range g.Quests {
			if seenQuest[q] {
				continue
			}
			seenQuest[q] = true
			h.Quests = append(h.Quests, q)
			if lookup == nil {
				continue
			}
			if info, ok := lookup(q); ok {
				if h.LevelMin == 0 || info.LevelMin < h.LevelMin {
					h.LevelMin = info.LevelMin
				}
				if info.QuestLevel > h.LevelMax {
					h.LevelMax = info.QuestLevel
				}
			}
		}
	}
	sort.Slice(h.Quests, func(i, j int) bool { return h.Quests[i] < h.Quests[j] })
	sort.Slice(h.Givers, func(i, j int) bool { return h.Givers[i] < h.Givers[j] })
	return h
}

func (db *Database) Hubs() []Hub { return db.hubs }

func (db *Database) HubCount() int { return len(db.hubs) }

type Scored struct {
	Hub   Hub
	Score float64
}

// AppropriateFor ranks hubs for an agent by level fit, distance, quest
// count, and faction match, best first, returning at most topK.
func (db *Database) AppropriateFor(pos spatial.Position, level uint8, factionMask uint32, topK int) []Scored {
	var out []Scored
	for _, h := range db.hubs {
		s := suitability(h, pos, level, factionMask)
		if s <= 0 {
			continue
		}
		out = append(out, Scored{Hub: h, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Hub.ID < out[j].Hub.ID
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

func suitability(h Hub, pos spatial.Position, level uint8, factionMask uint32) float64 {
	faction := 0.1
	if h.FactionMask&factionMask != 0 {
		faction = 1.0
	}

	// Level fit decays with distance outside the hub's quest range.
	var off float64
	switch {
	case h.LevelMin == 0 && h.LevelMax == 0:
		off = 0
	case level < h.LevelMin:
		off = float64(h.LevelMin - level)
	case level > h.LevelMax:
		off = float64(level - h.LevelMax)
	}
	levelFit := 1.0 / (1.0 + off)

	dist := pos.DistanceTo(h.Center)
	distFit := 0.0
	if !math.IsInf(dist, 1) {
		distFit = 1.0 / (1.0 + dist/1000.0)
	}

	quests := 1.0 + math.Log2(float64(1+len(h.Quests)))
	return levelFit * distFit * quests * faction
}
