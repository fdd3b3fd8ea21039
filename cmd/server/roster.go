package main

import (
	"encoding/json"
	"fmt"
	"os"

	"warband.ai/internal/sim/arena"
	"warband.ai/internal/sim/bots"
	"warband.ai/internal/sim/catalogs"
	"warband.ai/internal/sim/spatial"
)

// RosterDef seeds the arena with bots. Group composition lives here;
// spellbooks are derived from the catalogs so the roster never has to
// repeat what kits.json already says.
type RosterDef struct {
	Groups []RosterGroup  `json:"groups"`
	Solo   []RosterMember `json:"solo,omitempty"`
}

type RosterGroup struct {
	ID         uint64         `json:"id"`
	MainTank   string         `json:"main_tank,omitempty"`
	MainAssist string         `json:"main_assist,omitempty"`
	Members    []RosterMember `json:"members"`
}

type RosterMember struct {
	Name        string   `json:"name"`
	Class       uint16   `json:"class_id"`
	Spec        uint16   `json:"spec_id"`
	Level       uint8    `json:"level,omitempty"`
	FactionMask uint32   `json:"faction_mask,omitempty"`
	X           float32  `json:"x"`
	Y           float32  `json:"y"`
	Z           float32  `json:"z,omitempty"`
	MaxHealth   int64    `json:"max_health,omitempty"`
	SpeedYPS    float32  `json:"move_speed_yps,omitempty"`
	Quests      []uint32 `json:"quests,omitempty"`
}

func loadRoster(path string) (*RosterDef, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	var r RosterDef
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	for gi, g := range r.Groups {
		if g.ID == 0 {
			return nil, fmt.Errorf("roster group %d: id is required", gi)
		}
		if len(g.Members) == 0 {
			return nil, fmt.Errorf("roster group %d: no members", g.ID)
		}
		for _, m := range g.Members {
			if m.Name == "" {
				return nil, fmt.Errorf("roster group %d: member without a name", g.ID)
			}
		}
	}
	for _, m := range r.Solo {
		if m.Name == "" {
			return nil, fmt.Errorf("roster solo member without a name")
		}
	}
	return &r, nil
}

// Replicated groups are renumbered with this stride; solo bots get their
// own group ids above soloGroupBase so their coordinators still run.
const (
	rosterEIDBase = 1000
	replicaStride = 1000
	soloGroupBase = 900000
	replicaSpread = float32(20)
	replicaCols   = 4
)

// spawnRoster registers every roster member with both sides of the host
// bridge. With warbands > 1 each group is stamped out that many times,
// offset in space and renumbered, which is how one roster file scales a
// soak run to thousands of agents.
func spawnRoster(a *arena.Arena, e *bots.Engine, cats *catalogs.Catalogs, r *RosterDef, warbands int) (int, error) {
	if warbands < 1 {
		warbands = 1
	}
	mapID := a.Scenario().Map
	eid := uint64(rosterEIDBase)
	spawned := 0

	add := func(m RosterMember, name string, gid uint64, dx, dy float32) (spatial.EID, error) {
		kit, ok := cats.Kits.ByClass[spatial.ClassID(m.Class)]
		if !ok {
			return 0, fmt.Errorf("roster member %s: unknown class %d", name, m.Class)
		}
		eid++
		id := spatial.EID(eid)
		level := m.Level
		if level == 0 {
			level = 60
		}
		faction := m.FactionMask
		if faction == 0 {
			faction = 0x2
		}
		pos := spatial.Position{Map: mapID, X: m.X + dx, Y: m.Y + dy, Z: m.Z}
		if err := a.AddAgent(arena.AgentSeed{
			EID:          id,
			Name:         name,
			Class:        spatial.ClassID(m.Class),
			Spec:         spatial.SpecID(m.Spec),
			Role:         kit.RoleFor(spatial.SpecID(m.Spec)),
			Group:        gid,
			Pos:          pos,
			MaxHealth:    m.MaxHealth,
			MoveSpeedYPS: m.SpeedYPS,
			Quests:       m.Quests,
		}); err != nil {
			return 0, err
		}
		if err := e.AddAgent(bots.AgentConfig{
			EID:         id,
			Name:        name,
			Class:       spatial.ClassID(m.Class),
			Spec:        spatial.SpecID(m.Spec),
			Level:       level,
			FactionMask: faction,
			Map:         mapID,
			MaxHealth:   m.MaxHealth,
			Known:       knownFor(cats, kit, spatial.SpecID(m.Spec)),
			QuestLog:    m.Quests,
		}); err != nil {
			return 0, err
		}
		spawned++
		return id, nil
	}

	for rep := 0; rep < warbands; rep++ {
		dx := replicaSpread * float32(rep%replicaCols)
		dy := replicaSpread * float32(rep/replicaCols)
		for _, g := range r.Groups {
			gid := g.ID + uint64(rep)*replicaStride
			names := map[string]spatial.EID{}
			for _, m := range g.Members {
				id, err := add(m, replicaName(m.Name, rep), gid, dx, dy)
				if err != nil {
					return spawned, err
				}
				names[m.Name] = id
			}
			e.SetGroupFlags(gid, names[g.MainTank], names[g.MainAssist])
		}
	}

	for i, m := range r.Solo {
		// A lone bot is a group of one; coordinators want a group to hang
		// assignments on.
		gid := uint64(soloGroupBase + i)
		if _, err := add(m, m.Name, gid, 0, 0); err != nil {
			return spawned, err
		}
	}

	return spawned, nil
}

func replicaName(base string, rep int) string {
	if rep == 0 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, rep+1)
}

// knownFor assembles a member's spellbook from the catalogs: the spec's
// rotation plus everything class-kit shaped (interrupt, cc breaks,
// dispels, externals, defensives).
func knownFor(cats *catalogs.Catalogs, kit catalogs.KitDef, spec spatial.SpecID) map[uint32]bool {
	known := map[uint32]bool{}
	learn := func(spell uint32) {
		if spell != 0 {
			known[spell] = true
		}
	}

	if rot, ok := cats.Rotations.BySpec[catalogs.SpecKey{Class: spatial.ClassID(kit.Class), Spec: spec}]; ok {
		for _, ab := range rot.Abilities {
			learn(ab.Spell)
		}
	}
	learn(kit.Interrupt.Spell)
	learn(kit.DispelSpell)
	learn(kit.PurgeSpell)
	for _, s := range kit.CCBreaks {
		learn(s)
	}
	for _, s := range kit.Externals {
		learn(s)
	}
	for _, d := range cats.Defensives.ByClass[spatial.ClassID(kit.Class)] {
		learn(d.Spell)
	}
	return known
}
