package spatial

import (
	"math"
	"sync/atomic"
)

// Batch is the entity set staged by the host for one map in one publication
// cycle. The grid takes ownership of the slices; the host must not reuse
// them after staging.
type Batch struct {
	Creatures []CreatureSnapshot
	Players   []PlayerSnapshot
	Objects   []ObjectSnapshot
	Fields    []FieldSnapshot
}

type cellKey struct {
	cx int32
	cy int32
}

// cellRefs holds indices into the owning mapView's entity slices.
type cellRefs struct {
	creatures []int32
	players   []int32
	objects   []int32
	fields    []int32
}

type mapView struct {
	creatures  []CreatureSnapshot
	players    []PlayerSnapshot
	objects    []ObjectSnapshot
	fields     []FieldSnapshot
	cells      map[cellKey]*cellRefs
	creatureAt map[EID]int32
	playerAt   map[EID]int32
}

// view is one immutable publication cycle. Readers that loaded it keep a
// complete, consistent world regardless of later publishes.
type view struct {
	tick uint64
	maps map[uint32]*mapView
}

// Grid publishes per-map entity snapshots once per host tick and serves
// lock-free radius queries against the latest published cycle.
//
// Writer side (StageMap, Publish) is tick-thread only. Reader side is safe
// from any goroutine: the front pointer load is the only synchronization
// point, and published views are never mutated.
type Grid struct {
	cellSize float32
	front    atomic.Pointer[view]
	staged   map[uint32]Batch
}

func NewGrid(cellSizeYards float32) *Grid {
	if cellSizeYards <= 0 {
		cellSizeYards = 32
	}
	return &Grid{
		cellSize: cellSizeYards,
		staged:   map[uint32]Batch{},
	}
}

func (g *Grid) CellSize() float32 { return g.cellSize }

// CellCoord maps a world coordinate to its cell coordinate.
func (g *Grid) CellCoord(v float32) int32 {
	return int32(math.Floor(float64(v) / float64(g.cellSize)))
}

// Tick reports the published cycle's tick, 0 before the first publish.
func (g *Grid) Tick() uint64 {
	v := g.front.Load()
	if v == nil {
		return 0
	}
	return v.tick
}

// StageMap replaces the staged batch for one map. Staged batches persist
// across cycles until restaged, so hosts may stage only maps that changed.
func (g *Grid) StageMap(mapID uint32, b Batch) {
	g.staged[mapID] = b
}

// DropMap removes a map from staging; it disappears at the next Publish.
func (g *Grid) DropMap(mapID uint32) {
	delete(g.staged, mapID)
}

// Publish builds a fresh view from the staged batches, stamps every
// snapshot with tick, and swaps it in as the front buffer.
func (g *Grid) Publish(tick uint64) {
	v := &view{tick: tick, maps: make(map[uint32]*mapView, len(g.staged))}
	for mapID, b := range g.staged {
		v.maps[mapID] = g.buildMap(tick, b)
	}
	g.front.Store(v)
}

func (g *Grid) buildMap(tick uint64, b Batch) *mapView {
	mv := &mapView{
		creatures:  b.Creatures,
		players:    b.Players,
		objects:    b.Objects,
		fields:     b.Fields,
		cells:      map[cellKey]*cellRefs{},
		creatureAt: make(map[EID]int32, len(b.Creatures)),
		playerAt:   make(map[EID]int32, len(b.Players)),
	}
	for i := range mv.creatures {
		s := &mv.creatures[i]
		s.PublishedTick = tick
		mv.creatureAt[s.EID] = int32(i)
		c := mv.cellFor(g, s.Pos)
		c.creatures = append(c.creatures, int32(i))
	}
	for i := range mv.players {
		s := &mv.players[i]
		s.PublishedTick = tick
		mv.playerAt[s.EID] = int32(i)
		c := mv.cellFor(g, s.Pos)
		c.players = append(c.players, int32(i))
	}
	for i := range mv.objects {
		s := &mv.objects[i]
		s.PublishedTick = tick
		c := mv.cellFor(g, s.Pos)
		c.objects = append(c.objects, int32(i))
	}
	for i := range mv.fields {
		s := &mv.fields[i]
		s.PublishedTick = tick
		c := mv.cellFor(g, s.Pos)
		c.fields = append(c.fields, int32(i))
	}
	return mv
}

func (mv *mapView) cellFor(g *Grid, p Position) *cellRefs {
	k := cellKey{cx: g.CellCoord(p.X), cy: g.CellCoord(p.Y)}
	c := mv.cells[k]
	if c == nil {
		c = &cellRefs{}
		mv.cells[k] = c
	}
	return c
}

func (g *Grid) mapFor(mapID uint32) *mapView {
	v := g.front.Load()
	if v == nil {
		return nil
	}
	return v.maps[mapID]
}

// scanCells visits every cell intersecting the radius bounding square.
func (g *Grid) scanCells(mv *mapView, center Position, radius float32, fn func(*cellRefs)) {
	minCX := g.CellCoord(center.X - radius)
	maxCX := g.CellCoord(center.X + radius)
	minCY := g.CellCoord(center.Y - radius)
	maxCY := g.CellCoord(center.Y + radius)
	for cx := minCX; cx <= maxCX; cx++ {
		for cy := minCY; cy <= maxCY; cy++ {
			if c, ok := mv.cells[cellKey{cx: cx, cy: cy}]; ok {
				fn(c)
			}
		}
	}
}

func within(p, center Position, radius float32) bool {
	return p.DistanceTo(center) <= float64(radius)
}

// QueryCreatures returns copies of all creature snapshots within radius of
// center on the given map. A map with no published grid yields nil.
func (g *Grid) QueryCreatures(mapID uint32, center Position, radius float32) []CreatureSnapshot {
	mv := g.mapFor(mapID)
	if mv == nil {
		return nil
	}
	var out []CreatureSnapshot
	g.scanCells(mv, center, radius, func(c *cellRefs) {
		for _, i := range c.creatures {
			if s := &mv.creatures[i]; within(s.Pos, center, radius) {
				out = append(out, *s)
			}
		}
	})
	return out
}

// QueryCreaturesByEntry is QueryCreatures filtered to one template entry.
func (g *Grid) QueryCreaturesByEntry(mapID uint32, center Position, radius float32, entry uint32) []CreatureSnapshot {
	mv := g.mapFor(mapID)
	if mv == nil {
		return nil
	}
	var out []CreatureSnapshot
	g.scanCells(mv, center, radius, func(c *cellRefs) {
		for _, i := range c.creatures {
			if s := &mv.creatures[i]; s.Entry == entry && within(s.Pos, center, radius) {
				out = append(out, *s)
			}
		}
	})
	return out
}

func (g *Grid) QueryPlayers(mapID uint32, center Position, radius float32) []PlayerSnapshot {
	mv := g.mapFor(mapID)
	if mv == nil {
		return nil
	}
	var out []PlayerSnapshot
	g.scanCells(mv, center, radius, func(c *cellRefs) {
		for _, i := range c.players {
			if s := &mv.players[i]; within(s.Pos, center, radius) {
				out = append(out, *s)
			}
		}
	})
	return out
}

func (g *Grid) QueryObjects(mapID uint32, center Position, radius float32) []ObjectSnapshot {
	mv := g.mapFor(mapID)
	if mv == nil {
		return nil
	}
	var out []ObjectSnapshot
	g.scanCells(mv, center, radius, func(c *cellRefs) {
		for _, i := range c.objects {
			if s := &mv.objects[i]; within(s.Pos, center, radius) {
				out = append(out, *s)
			}
		}
	})
	return out
}

func (g *Grid) QueryFields(mapID uint32, center Position, radius float32) []FieldSnapshot {
	mv := g.mapFor(mapID)
	if mv == nil {
		return nil
	}
	var out []FieldSnapshot
	g.scanCells(mv, center, radius, func(c *cellRefs) {
		for _, i := range c.fields {
			if s := &mv.fields[i]; within(s.Pos, center, radius) {
				out = append(out, *s)
			}
		}
	})
	return out
}

// FindCreature looks up a creature by EID on one map in the published
// cycle. The per-view index makes this O(1); range checks are the
// caller's business.
func (g *Grid) FindCreature(mapID uint32, eid EID) (CreatureSnapshot, bool) {
	mv := g.mapFor(mapID)
	if mv == nil {
		return CreatureSnapshot{}, false
	}
	i, ok := mv.creatureAt[eid]
	if !ok {
		return CreatureSnapshot{}, false
	}
	return mv.creatures[i], true
}

func (g *Grid) FindPlayer(mapID uint32, eid EID) (PlayerSnapshot, bool) {
	mv := g.mapFor(mapID)
	if mv == nil {
		return PlayerSnapshot{}, false
	}
	i, ok := mv.playerAt[eid]
	if !ok {
		return PlayerSnapshot{}, false
	}
	return mv.players[i], true
}

// Occupancy returns unit counts (creatures + players) per cell for a
// w×h cell window starting at (minCX, minCY), row-major. Counts saturate
// at 65535.
func (g *Grid) Occupancy(mapID uint32, minCX, minCY int32, w, h int) []uint16 {
	counts := make([]uint16, w*h)
	mv := g.mapFor(mapID)
	if mv == nil {
		return counts
	}
	bump := func(k cellKey, n int) {
		dx := int(k.cx - minCX)
		dy := int(k.cy - minCY)
		if dx < 0 || dx >= w || dy < 0 || dy >= h {
			return
		}
		idx := dy*w + dx
		v := int(counts[idx]) + n
		if v > math.MaxUint16 {
			v = math.MaxUint16
		}
		counts[idx] = uint16(v)
	}
	for k, c := range mv.cells {
		bump(k, len(c.creatures)+len(c.players))
	}
	return counts
}
