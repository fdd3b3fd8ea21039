package arena

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/spatial"
)

const (
	spellFirebolt   = 100
	spellKick       = 102
	spellCleanse    = 105
	spellIgnite     = 106
	spellObliterate = 110

	entryGhoul  = 2001
	entryShaman = 2002

	itemScale  = 5001
	itemBeacon = 6001

	questThinTheMire = 7001
	questLightBeacon = 7002

	objectBrazier = 4001
	objectBeacon  = 4002
)

func mireScenario() *Scenario {
	return &Scenario{
		Realm: "proving-grounds",
		Map:   13,
		Abilities: []AbilityDef{
			{Spell: spellFirebolt, Name: "Firebolt", CastTimeMS: 1500, RangeYards: 30, SchoolMask: 0x4, Effects: []string{"damage"}, Interruptible: true, Damage: 400},
			{Spell: spellKick, Name: "Kick", CooldownMS: 10000, RangeYards: 5, Effects: []string{"interrupt"}, LockoutMS: 4000},
			{Spell: spellCleanse, Name: "Cleanse", RangeYards: 40, Effects: []string{"dispel"}, CostKind: "mana", CostAmount: 6},
			{Spell: spellIgnite, Name: "Ignite Beacon", RangeYards: 10, Positive: true, Effects: []string{}},
			{Spell: spellObliterate, Name: "Obliterate", RangeYards: 60, Effects: []string{"damage"}, Damage: 100000},
		},
		Creatures: []CreatureDef{
			{Entry: entryGhoul, Name: "Mire Ghoul", Hostile: true, LevelMin: 10, LevelMax: 11, MaxHealth: 800, AggroYards: 15, RespawnMS: 60000, MeleeDamage: 90, AttackMS: 2000, Loot: []LootDef{{Item: itemScale}}},
			{Entry: entryShaman, Name: "Bog Shaman", Class: "caster", Hostile: true, LevelMin: 11, LevelMax: 12, MaxHealth: 600, AggroYards: 20, RespawnMS: 60000, Casts: []CastDef{{Spell: spellFirebolt, EveryMS: 5000}}},
		},
		Spawns: []SpawnDef{
			{Entry: entryGhoul, X: 50, Y: 0, Z: 0, Count: 3, Spread: 2},
			{Entry: entryShaman, X: 80, Y: 10, Z: 0},
		},
		QuestGivers: []GiverDef{
			{Entry: 3001, X: 0, Y: 0, Z: 0, Faction: 1, Quests: []uint32{questThinTheMire, questLightBeacon}},
		},
		Quests: []QuestDef{
			{
				ID: questThinTheMire, Title: "Thin the Mire", QuestLevel: 11, LevelMin: 9,
				Objectives: []ObjectiveDef{
					{Kind: "kill", Required: 2, Creature: entryGhoul},
					{Kind: "collect", Required: 2, Item: itemScale, Source: "creature_loot", Creature: entryGhoul},
				},
			},
			{
				ID: questLightBeacon, Title: "Light the Beacon", QuestLevel: 10, LevelMin: 9,
				Objectives: []ObjectiveDef{
					{Kind: "use_object", Required: 1, Object: objectBeacon, Item: itemBeacon},
				},
			},
		},
		Objects: []ObjectDef{
			{Entry: objectBrazier, X: 30, Y: 30, Z: 0, Usable: true, QuestObject: true, RespawnMS: 5000},
			{Entry: objectBeacon, X: 35, Y: 30, Z: 0, Usable: true, QuestObject: true, RespawnMS: 5000},
		},
		Items: []ItemDef{
			{ID: itemScale},
			{ID: itemBeacon, Spell: spellIgnite, RequiresTarget: true, RangeYards: 10},
		},
		Fields: []FieldDef{
			{X: 60, Y: -20, Z: 0, Radius: 6, Hostile: true, SchoolMask: 0x4, ActiveMS: 4000, DormantMS: 4000, TickDamage: 150},
		},
	}
}

func writeScenario(t *testing.T, s *Scenario) string {
	t.Helper()
	raw, err := json.MarshalIndent(s, "", "  ")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "scenario.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func unitsByEntry(a *Arena, entry uint32) []*unit {
	var out []*unit
	for _, eid := range a.unitOrder {
		if u := a.units[eid]; u.tpl.Entry == entry {
			out = append(out, u)
		}
	}
	return out
}

func objectByEntry(a *Arena, entry uint32) *objectState {
	for _, eid := range a.objOrder {
		if o := a.objects[eid]; o.def.Entry == entry {
			return o
		}
	}
	return nil
}

func addAgentAt(t *testing.T, a *Arena, eid uint64, group uint64, x, y float32, quests ...uint32) *agentState {
	t.Helper()
	require.NoError(t, a.AddAgent(AgentSeed{
		EID:    spatial.EID(eid),
		Name:   "bot",
		Group:  group,
		Pos:    spatial.Position{X: x, Y: y},
		Quests: quests,
	}))
	return a.agents[spatial.EID(eid)]
}

func TestLoadScenarioValidatesAndDigests(t *testing.T) {
	path := writeScenario(t, mireScenario())
	scn, err := LoadScenario(path)
	require.NoError(t, err)
	require.Len(t, scn.Digest, 64)
	require.Equal(t, "proving-grounds", scn.Realm)

	bad := &Scenario{
		Realm: "broken",
		Creatures: []CreatureDef{
			{Entry: 1, Name: "x", MaxHealth: 10, Casts: []CastDef{{Spell: 777, EveryMS: 500}}},
		},
	}
	_, err = LoadScenario(writeScenario(t, bad))
	require.ErrorContains(t, err, "unknown cast spell 777")

	inert := &Scenario{
		Realm: "inert-items",
		Items: []ItemDef{{ID: 9}},
		Quests: []QuestDef{{
			ID: 1, Title: "t",
			Objectives: []ObjectiveDef{{Kind: "collect", Required: 1, Item: 9}},
		}},
	}
	_, err = LoadScenario(writeScenario(t, inert))
	require.NoError(t, err)
}

func TestEnqueueAckVerdicts(t *testing.T) {
	a := New(mireScenario(), 1, 50)
	ag := addAgentAt(t, a, 1, 0, 45, 0)

	ack := a.EnqueueAction(hostbridge.ActionIntent{Agent: spatial.EID(999), Kind: hostbridge.IntentStopMoving})
	require.Equal(t, hostbridge.AckUnknownAgent, ack)

	dest := spatial.Position{Map: 13, X: 40}
	ack = a.EnqueueAction(hostbridge.ActionIntent{Agent: ag.eid, Kind: hostbridge.IntentMoveTo, Dest: dest, Seq: 5})
	require.Equal(t, hostbridge.AckAccepted, ack)
	require.NotNil(t, ag.moveTo)

	// A replayed sequence number is rejected and must not apply.
	ack = a.EnqueueAction(hostbridge.ActionIntent{Agent: ag.eid, Kind: hostbridge.IntentStopMoving, Seq: 5})
	require.Equal(t, hostbridge.AckDuplicate, ack)
	require.NotNil(t, ag.moveTo)

	ack = a.EnqueueAction(hostbridge.ActionIntent{Agent: ag.eid, Kind: hostbridge.IntentStopMoving, Seq: 6})
	require.Equal(t, hostbridge.AckAccepted, ack)
	require.Nil(t, ag.moveTo)

	ack = a.EnqueueAction(hostbridge.ActionIntent{
		Agent: ag.eid, Kind: hostbridge.IntentSpellCast, Spell: spellObliterate,
		TargetMode: hostbridge.TargetEntity, Target: spatial.EID(424242),
	})
	require.Equal(t, hostbridge.AckInvalidTarget, ack)

	ghoul := unitsByEntry(a, entryGhoul)[0]
	ack = a.EnqueueAction(hostbridge.ActionIntent{
		Agent: ag.eid, Kind: hostbridge.IntentSpellCast, Spell: spellObliterate,
		TargetMode: hostbridge.TargetEntity, Target: ghoul.eid,
	})
	require.Equal(t, hostbridge.AckAccepted, ack)
	require.Equal(t, "DEAD", ghoul.state.Current())

	// Corpses are not valid cast targets.
	ack = a.EnqueueAction(hostbridge.ActionIntent{
		Agent: ag.eid, Kind: hostbridge.IntentSpellCast, Spell: spellObliterate,
		TargetMode: hostbridge.TargetEntity, Target: ghoul.eid,
	})
	require.Equal(t, hostbridge.AckInvalidTarget, ack)
}

func TestKillCreditReachesNearbyGroupOnly(t *testing.T) {
	a := New(mireScenario(), 1, 50)
	killer := addAgentAt(t, a, 1, 9, 45, 0, questThinTheMire)
	addAgentAt(t, a, 2, 9, 42, 0, questThinTheMire)
	addAgentAt(t, a, 3, 9, 500, 0, questThinTheMire)

	ghouls := unitsByEntry(a, entryGhoul)
	require.Len(t, ghouls, 3)
	for _, g := range ghouls {
		ack := a.EnqueueAction(hostbridge.ActionIntent{
			Agent: killer.eid, Kind: hostbridge.IntentSpellCast, Spell: spellObliterate,
			TargetMode: hostbridge.TargetEntity, Target: g.eid,
		})
		require.Equal(t, hostbridge.AckAccepted, ack)
	}

	ev := a.TakeEvents()
	require.Len(t, ev.Kills, 3)

	// Progress caps at the objective requirement.
	require.Equal(t, uint32(2), a.ObjectiveProgress(killer.eid, questThinTheMire, 0))
	require.Equal(t, uint32(2), a.ObjectiveProgress(spatial.EID(2), questThinTheMire, 0))
	require.Equal(t, uint32(0), a.ObjectiveProgress(spatial.EID(3), questThinTheMire, 0))
}

func TestCorpseLootCreditsCollectOnce(t *testing.T) {
	a := New(mireScenario(), 1, 50)
	ag := addAgentAt(t, a, 1, 0, 48, 0, questThinTheMire)

	ghoul := unitsByEntry(a, entryGhoul)[0]

	// Living creatures cannot be looted.
	ack := a.EnqueueAction(hostbridge.ActionIntent{Agent: ag.eid, Kind: hostbridge.IntentInteract, Target: ghoul.eid})
	require.Equal(t, hostbridge.AckInvalidTarget, ack)

	a.EnqueueAction(hostbridge.ActionIntent{
		Agent: ag.eid, Kind: hostbridge.IntentSpellCast, Spell: spellObliterate,
		TargetMode: hostbridge.TargetEntity, Target: ghoul.eid,
	})

	ack = a.EnqueueAction(hostbridge.ActionIntent{Agent: ag.eid, Kind: hostbridge.IntentInteract, Target: ghoul.eid})
	require.Equal(t, hostbridge.AckAccepted, ack)
	require.Equal(t, uint32(1), a.ObjectiveProgress(ag.eid, questThinTheMire, 1))

	// Looting the same corpse twice yields nothing new.
	a.EnqueueAction(hostbridge.ActionIntent{Agent: ag.eid, Kind: hostbridge.IntentInteract, Target: ghoul.eid})
	require.Equal(t, uint32(1), a.ObjectiveProgress(ag.eid, questThinTheMire, 1))
}

func TestUseItemOnObjectAdvancesAndConsumes(t *testing.T) {
	a := New(mireScenario(), 1, 50)
	ag := addAgentAt(t, a, 1, 0, 35, 28, questLightBeacon)

	beacon := objectByEntry(a, objectBeacon)
	require.NotNil(t, beacon)

	// A bare use does not satisfy an objective that wants the item.
	ack := a.EnqueueAction(hostbridge.ActionIntent{Agent: ag.eid, Kind: hostbridge.IntentInteract, Target: beacon.eid})
	require.Equal(t, hostbridge.AckAccepted, ack)
	require.Equal(t, uint32(0), a.ObjectiveProgress(ag.eid, questLightBeacon, 0))

	for i := 0; i < 110; i++ {
		a.Step() // wait out the despawn window
	}
	require.True(t, beacon.spawned)

	ack = a.EnqueueAction(hostbridge.ActionIntent{
		Agent: ag.eid, Kind: hostbridge.IntentUseItem, Item: itemBeacon,
		TargetMode: hostbridge.TargetEntity, Target: beacon.eid,
	})
	require.Equal(t, hostbridge.AckAccepted, ack)
	require.Equal(t, uint32(1), a.ObjectiveProgress(ag.eid, questLightBeacon, 0))
	require.False(t, beacon.spawned)
}

func TestInterruptAppliesSchoolLockout(t *testing.T) {
	scn := &Scenario{
		Realm: "lockout",
		Map:   1,
		Abilities: []AbilityDef{
			{Spell: 40, Name: "Jab", Effects: []string{"damage"}, Damage: 50},
			{Spell: 41, Name: "Boot", Effects: []string{"interrupt"}, LockoutMS: 5000},
			{Spell: 42, Name: "Dark Surge", CastTimeMS: 1000, SchoolMask: 0x20, Effects: []string{"damage"}, Damage: 300, Interruptible: true},
		},
		Creatures: []CreatureDef{
			{Entry: 9, Name: "Cultist", Class: "caster", Hostile: true, MaxHealth: 100000, AggroYards: 30, Casts: []CastDef{{Spell: 42, EveryMS: 1000}}},
		},
		Spawns: []SpawnDef{{Entry: 9, X: 10}},
	}
	a := New(scn, 1, 50)
	ag := addAgentAt(t, a, 1, 0, 0, 0)
	cultist := unitsByEntry(a, 9)[0]

	// Pull happens on the first step; the opener lands 1s later.
	for a.NowMS() < 1050 {
		a.Step()
	}
	require.Equal(t, "ENGAGED", cultist.state.Current())
	require.NotNil(t, cultist.casting)

	ack := a.EnqueueAction(hostbridge.ActionIntent{
		Agent: ag.eid, Kind: hostbridge.IntentSpellCast, Spell: 41,
		TargetMode: hostbridge.TargetEntity, Target: cultist.eid,
	})
	require.Equal(t, hostbridge.AckAccepted, ack)
	require.Nil(t, cultist.casting)

	lockedUntil := a.NowMS() + 5000
	for a.NowMS() < lockedUntil-50 {
		a.Step()
		require.Nil(t, cultist.casting, "no cast may start at %dms while locked out", a.NowMS())
	}
	for a.NowMS() < lockedUntil+600 && cultist.casting == nil {
		a.Step()
	}
	require.NotNil(t, cultist.casting, "the caster should resume once the lockout expires")
}

func TestDotTicksAndDispelRemoves(t *testing.T) {
	scn := &Scenario{
		Realm: "venom",
		Map:   1,
		Abilities: []AbilityDef{
			{Spell: 50, Name: "Venom Spit", SchoolMask: 0x8, Effects: []string{"damage", "damage_over_time"}, Damage: 100,
				Debuff: &DebuffDef{Aura: 900, Class: "poison", DurationMS: 10000, TickDamage: 50}},
			{Spell: 51, Name: "Cleanse", RangeYards: 40, Effects: []string{"dispel"}},
		},
		Creatures: []CreatureDef{
			{Entry: 11, Name: "Spitter", Class: "caster", Hostile: true, MaxHealth: 50000, AggroYards: 30, Casts: []CastDef{{Spell: 50, EveryMS: 600}}},
		},
		Spawns: []SpawnDef{{Entry: 11, X: 10}},
	}
	a := New(scn, 1, 50)
	victim := addAgentAt(t, a, 1, 0, 0, 0)
	healer := addAgentAt(t, a, 2, 0, 0, 2)

	for a.NowMS() < 700 {
		a.Step()
	}
	require.Len(t, victim.debuffs, 1)

	for a.NowMS() < 2700 {
		a.Step()
	}
	ev := a.TakeEvents()
	var direct, ticked bool
	for _, d := range ev.Damage {
		if d.Agent != victim.eid {
			continue
		}
		if d.Amount == 100 {
			direct = true
		}
		if d.Amount == 50 {
			ticked = true
		}
	}
	require.True(t, direct, "direct hit missing from events")
	require.True(t, ticked, "dot tick missing from events")

	ack := a.EnqueueAction(hostbridge.ActionIntent{
		Agent: healer.eid, Kind: hostbridge.IntentSpellCast, Spell: 51,
		TargetMode: hostbridge.TargetEntity, Target: victim.eid,
	})
	require.Equal(t, hostbridge.AckAccepted, ack)
	require.Empty(t, victim.debuffs)
}

func TestCrowdControlGatesCasts(t *testing.T) {
	scn := &Scenario{
		Realm: "cc",
		Map:   1,
		Abilities: []AbilityDef{
			{Spell: 60, Name: "Jab", Effects: []string{"damage"}, Damage: 50},
			{Spell: 61, Name: "Shrug It Off", CCBreak: true, Positive: true, Effects: []string{}},
		},
		Creatures: []CreatureDef{{Entry: 12, Name: "Dummy", MaxHealth: 100000}},
		Spawns:    []SpawnDef{{Entry: 12, X: 5}},
	}
	a := New(scn, 1, 50)
	ag := addAgentAt(t, a, 1, 0, 0, 0)
	dummy := unitsByEntry(a, 12)[0]

	ag.debuffs = append(ag.debuffs, agentAura{id: 901, bits: spatial.AuraStunned, expiryMS: a.NowMS() + 60000})

	b := a.BuildBatch(1)
	require.NotZero(t, b.Players[0].AuraBits&spatial.AuraStunned)

	// Stunned: the cast is accepted but fizzles.
	ack := a.EnqueueAction(hostbridge.ActionIntent{
		Agent: ag.eid, Kind: hostbridge.IntentSpellCast, Spell: 60,
		TargetMode: hostbridge.TargetEntity, Target: dummy.eid,
	})
	require.Equal(t, hostbridge.AckAccepted, ack)
	require.Equal(t, int64(100000), dummy.health)

	a.EnqueueAction(hostbridge.ActionIntent{
		Agent: ag.eid, Kind: hostbridge.IntentSpellCast, Spell: 61, TargetMode: hostbridge.TargetSelf,
	})
	require.Empty(t, ag.debuffs)

	a.EnqueueAction(hostbridge.ActionIntent{
		Agent: ag.eid, Kind: hostbridge.IntentSpellCast, Spell: 60,
		TargetMode: hostbridge.TargetEntity, Target: dummy.eid,
	})
	require.Equal(t, int64(99950), dummy.health)
}

func TestMoveToWalksToDestination(t *testing.T) {
	scn := &Scenario{Realm: "open", Map: 1}
	a := New(scn, 1, 50)
	ag := addAgentAt(t, a, 1, 0, 0, 0)

	dest := spatial.Position{Map: 1, X: 10.5}
	a.EnqueueAction(hostbridge.ActionIntent{Agent: ag.eid, Kind: hostbridge.IntentMoveTo, Dest: dest})
	for i := 0; i < 40; i++ {
		a.Step()
	}
	require.Nil(t, ag.moveTo)
	assert.InDelta(t, dest.X, ag.pos.X, 0.01)
	assert.InDelta(t, dest.Y, ag.pos.Y, 0.01)
}

func TestFindPathBudgets(t *testing.T) {
	a := New(&Scenario{Realm: "open", Map: 1}, 1, 50)
	from := spatial.Position{Map: 1}

	path, err := a.FindPath(spatial.EID(1), from, spatial.Position{Map: 1, Y: 25}, hostbridge.PathOptions{})
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.InDelta(t, 25, path[2].Y, 0.001)

	_, err = a.FindPath(spatial.EID(1), from, spatial.Position{Map: 2, Y: 25}, hostbridge.PathOptions{})
	require.ErrorIs(t, err, hostbridge.ErrNoPath)

	_, err = a.FindPath(spatial.EID(1), from, spatial.Position{Map: 1, Y: 100}, hostbridge.PathOptions{MaxLengthYards: 30})
	require.ErrorIs(t, err, hostbridge.ErrPathTooLong)

	path, err = a.FindPath(spatial.EID(1), from, spatial.Position{Map: 1, Y: 100}, hostbridge.PathOptions{MaxLengthYards: 30, ForceDestination: true})
	require.NoError(t, err)
	last := path[len(path)-1]
	assert.InDelta(t, 30, last.Y, 0.01, "forced path should stop at the budget")
}

func TestCombatFlagsFollowEngagement(t *testing.T) {
	scn := &Scenario{
		Realm: "combat",
		Map:   1,
		Abilities: []AbilityDef{
			{Spell: 70, Name: "Obliterate", Effects: []string{"damage"}, Damage: 100000},
		},
		Creatures: []CreatureDef{
			{Entry: 13, Name: "Ghoul", Hostile: true, MaxHealth: 800, AggroYards: 15, RespawnMS: 60000, MeleeDamage: 90, AttackMS: 2000},
		},
		Spawns: []SpawnDef{{Entry: 13, X: 10}},
	}
	a := New(scn, 1, 50)
	ag := addAgentAt(t, a, 1, 0, 0, 0)
	ghoul := unitsByEntry(a, 13)[0]

	a.Step()
	require.True(t, ag.inCombat)

	a.EnqueueAction(hostbridge.ActionIntent{
		Agent: ag.eid, Kind: hostbridge.IntentSpellCast, Spell: 70,
		TargetMode: hostbridge.TargetEntity, Target: ghoul.eid,
	})
	for i := 0; i < 120; i++ {
		a.Step()
	}
	require.False(t, ag.inCombat, "combat should drop after the linger window")

	ev := a.TakeEvents()
	var saw []bool
	for _, c := range ev.Combat {
		if c.Agent == ag.eid {
			saw = append(saw, c.InCombat)
		}
	}
	require.Equal(t, []bool{true, false}, saw)
}

func TestHostileFieldTicksDamage(t *testing.T) {
	a := New(mireScenario(), 1, 50)
	ag := addAgentAt(t, a, 1, 0, 60, -20) // standing in the field

	for i := 0; i < 20; i++ {
		a.Step()
	}
	ev := a.TakeEvents()
	var hits int
	for _, d := range ev.Damage {
		if d.Agent == ag.eid && d.Amount == 150 {
			hits++
		}
	}
	require.NotZero(t, hits)
	require.Equal(t, int64(5000-int64(hits)*150), ag.health)
}

func TestReachAreaObjectiveCompletes(t *testing.T) {
	scn := &Scenario{
		Realm: "survey",
		Map:   1,
		Quests: []QuestDef{{
			ID: 7100, Title: "Scout the Ridge",
			Objectives: []ObjectiveDef{{Kind: "reach_area", Required: 1, X: 200, AreaRadius: 10}},
		}},
	}
	a := New(scn, 1, 50)
	ag := addAgentAt(t, a, 1, 0, 195, 0, 7100)

	require.Equal(t, uint32(0), a.ObjectiveProgress(ag.eid, 7100, 0))
	a.Step()
	require.Equal(t, uint32(1), a.ObjectiveProgress(ag.eid, 7100, 0))
}

func TestBuildBatchPublishesWholeWorld(t *testing.T) {
	a := New(mireScenario(), 1, 50)
	ag := addAgentAt(t, a, 1, 0, 45, 0)
	ghoul := unitsByEntry(a, entryGhoul)[0]
	a.EnqueueAction(hostbridge.ActionIntent{
		Agent: ag.eid, Kind: hostbridge.IntentSpellCast, Spell: spellObliterate,
		TargetMode: hostbridge.TargetEntity, Target: ghoul.eid,
	})

	b := a.BuildBatch(7)
	require.Len(t, b.Creatures, 4)
	require.Len(t, b.Players, 1)
	require.Len(t, b.Objects, 2)
	require.Len(t, b.Fields, 1)

	var corpse *spatial.CreatureSnapshot
	for i := range b.Creatures {
		require.Equal(t, uint64(7), b.Creatures[i].PublishedTick)
		if b.Creatures[i].EID == ghoul.eid {
			corpse = &b.Creatures[i]
		}
	}
	require.NotNil(t, corpse, "corpses stay published for looting")
	require.True(t, corpse.IsDead)
	require.Zero(t, corpse.Health)

	require.Equal(t, float32(100), b.Players[0].HealthPct)
	require.True(t, b.Fields[0].Hostile)
}

func TestSeededSpawnsAreDeterministic(t *testing.T) {
	left := New(mireScenario(), 42, 50)
	right := New(mireScenario(), 42, 50)
	require.Equal(t, len(left.unitOrder), len(right.unitOrder))
	for i := range left.unitOrder {
		lu := left.units[left.unitOrder[i]]
		ru := right.units[right.unitOrder[i]]
		require.Equal(t, lu.pos, ru.pos)
	}

	other := New(mireScenario(), 43, 50)
	var moved bool
	for i := range left.unitOrder {
		if left.units[left.unitOrder[i]].pos != other.units[other.unitOrder[i]].pos {
			moved = true
		}
	}
	require.True(t, moved, "a different seed should jitter the spread spawns")
}

func TestGroupRosterCopiesAndUpdates(t *testing.T) {
	a := New(&Scenario{Realm: "open", Map: 1}, 1, 50)
	addAgentAt(t, a, 1, 4, 0, 0)
	addAgentAt(t, a, 2, 4, 1, 0)

	roster := a.GroupRoster(4)
	require.Equal(t, []spatial.EID{1, 2}, roster)

	roster[0] = spatial.EID(99) // callers may scribble on their copy
	require.Equal(t, []spatial.EID{1, 2}, a.GroupRoster(4))

	a.SetGroup(4, []spatial.EID{2})
	require.Equal(t, []spatial.EID{2}, a.GroupRoster(4))
	require.Equal(t, uint64(4), a.agents[spatial.EID(2)].group)
}
