package spatial

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pos(m uint32, x, y, z float32) Position {
	return Position{Map: m, X: x, Y: y, Z: z}
}

func TestRadiusQueryFiltersExactDistance(t *testing.T) {
	g := NewGrid(32)
	g.StageMap(1, Batch{Creatures: []CreatureSnapshot{
		{EID: 1, Pos: pos(1, 0, 0, 0), Entry: 100},
		{EID: 2, Pos: pos(1, 30, 0, 0), Entry: 100},
		{EID: 3, Pos: pos(1, 33, 0, 0), Entry: 100},
		{EID: 4, Pos: pos(1, 0, 0, 50), Entry: 100}, // same XY cell, far on Z
	}})
	g.Publish(1)

	got := g.QueryCreatures(1, pos(1, 0, 0, 0), 32)
	require.Len(t, got, 2)
	seen := map[EID]bool{}
	for _, s := range got {
		seen[s.EID] = true
		assert.Equal(t, uint64(1), s.PublishedTick)
	}
	assert.True(t, seen[1])
	assert.True(t, seen[2])
}

func TestQueryMissingMapIsEmpty(t *testing.T) {
	g := NewGrid(32)
	assert.Empty(t, g.QueryCreatures(9, pos(9, 0, 0, 0), 100))

	g.StageMap(1, Batch{})
	g.Publish(1)
	assert.Empty(t, g.QueryCreatures(9, pos(9, 0, 0, 0), 100))
	assert.Empty(t, g.QueryPlayers(1, pos(1, 0, 0, 0), 100))
}

func TestQueryByEntryAndFind(t *testing.T) {
	g := NewGrid(32)
	g.StageMap(1, Batch{
		Creatures: []CreatureSnapshot{
			{EID: 10, Pos: pos(1, 1, 1, 0), Entry: 49871},
			{EID: 11, Pos: pos(1, 2, 2, 0), Entry: 49871},
			{EID: 12, Pos: pos(1, 3, 3, 0), Entry: 555},
		},
		Players: []PlayerSnapshot{
			{EID: 20, Pos: pos(1, 4, 4, 0), HealthPct: 80},
		},
	})
	g.Publish(7)

	byEntry := g.QueryCreaturesByEntry(1, pos(1, 0, 0, 0), 50, 49871)
	require.Len(t, byEntry, 2)

	c, ok := g.FindCreature(1, 12)
	require.True(t, ok)
	assert.Equal(t, uint32(555), c.Entry)

	_, ok = g.FindCreature(1, 999)
	assert.False(t, ok)

	p, ok := g.FindPlayer(1, 20)
	require.True(t, ok)
	assert.Equal(t, float32(80), p.HealthPct)
	assert.Equal(t, uint64(7), p.PublishedTick)
}

func TestRestageReplacesAndDropMapRemoves(t *testing.T) {
	g := NewGrid(32)
	g.StageMap(1, Batch{Creatures: []CreatureSnapshot{{EID: 1, Pos: pos(1, 0, 0, 0)}}})
	g.Publish(1)
	require.Len(t, g.QueryCreatures(1, pos(1, 0, 0, 0), 10), 1)

	g.StageMap(1, Batch{Creatures: []CreatureSnapshot{{EID: 2, Pos: pos(1, 1, 0, 0)}, {EID: 3, Pos: pos(1, 2, 0, 0)}}})
	g.Publish(2)
	require.Len(t, g.QueryCreatures(1, pos(1, 0, 0, 0), 10), 2)
	assert.Equal(t, uint64(2), g.Tick())

	g.DropMap(1)
	g.Publish(3)
	assert.Empty(t, g.QueryCreatures(1, pos(1, 0, 0, 0), 10))
}

// Readers racing with publishes must always observe one complete cycle:
// every snapshot in a result carries the same publication tick, and the
// per-cycle payload marker matches that tick.
func TestPublishConsistencyUnderConcurrentReaders(t *testing.T) {
	g := NewGrid(16)
	const cycles = 3000
	const perCycle = 16

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snaps := g.QueryCreatures(1, pos(1, 0, 0, 0), 64)
				if len(snaps) == 0 {
					continue
				}
				if len(snaps) != perCycle {
					t.Errorf("partial cycle visible: %d snapshots", len(snaps))
					return
				}
				tick := snaps[0].PublishedTick
				for _, s := range snaps {
					if s.PublishedTick != tick {
						t.Errorf("mixed cycles: tick %d and %d in one query", tick, s.PublishedTick)
						return
					}
					if uint64(s.Health) != tick {
						t.Errorf("torn snapshot: payload %d in cycle %d", s.Health, tick)
						return
					}
				}
			}
		}()
	}

	for tick := uint64(1); tick <= cycles; tick++ {
		b := Batch{}
		for i := 0; i < perCycle; i++ {
			b.Creatures = append(b.Creatures, CreatureSnapshot{
				EID:       EID(100 + i),
				Pos:       pos(1, float32(i)*7-48, float32(i%4)*9-16, 0),
				Entry:     7,
				Health:    int64(tick),
				MaxHealth: cycles,
			})
		}
		g.StageMap(1, b)
		g.Publish(tick)
	}
	close(stop)
	wg.Wait()
}

func TestOccupancyWindow(t *testing.T) {
	g := NewGrid(32)
	g.StageMap(1, Batch{
		Creatures: []CreatureSnapshot{
			{EID: 1, Pos: pos(1, 5, 5, 0)},
			{EID: 2, Pos: pos(1, 10, 10, 0)},
			{EID: 3, Pos: pos(1, 40, 5, 0)},
		},
		Players: []PlayerSnapshot{
			{EID: 4, Pos: pos(1, 6, 6, 0)},
			{EID: 5, Pos: pos(1, -500, -500, 0)}, // outside window
		},
	})
	g.Publish(1)

	counts := g.Occupancy(1, 0, 0, 2, 1)
	require.Len(t, counts, 2)
	assert.Equal(t, uint16(3), counts[0]) // two creatures + one player in cell (0,0)
	assert.Equal(t, uint16(1), counts[1]) // one creature in cell (1,0)
}
