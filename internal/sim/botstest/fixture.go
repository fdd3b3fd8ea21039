package botstest

import (
	"warband.ai/internal/sim/arena"
	"warband.ai/internal/sim/catalogs"
	"warband.ai/internal/sim/spatial"
)

// Spell, aura, and entry ids shared by the end-to-end fixtures. The
// numbers are arbitrary but stable so failures read well.
const (
	spellMortalStrike uint32 = 12294
	spellExecute      uint32 = 5308
	spellSlam         uint32 = 1464
	spellRend         uint32 = 772
	spellPummel       uint32 = 6552
	spellBerserkRage  uint32 = 18499
	spellShieldWall   uint32 = 871
	spellShieldBlock  uint32 = 2565
	spellSpellReflect uint32 = 23920

	spellFlashHeal uint32 = 2061
	spellRenew     uint32 = 139
	spellPrayer    uint32 = 596
	spellSmite     uint32 = 585
	spellDispel    uint32 = 527
	spellPurge     uint32 = 528
	spellPainSup   uint32 = 33206

	spellFrostbolt uint32 = 116
	spellHexBolt   uint32 = 117

	auraHex uint32 = 9010

	entryGhoul    uint32 = 2001
	entryShaman   uint32 = 2002
	entryWitch    uint32 = 2003
	entryOverlord uint32 = 2004

	itemMirescale uint32 = 5001

	questThinTheMire  uint32 = 7001
	questScoutTheRise uint32 = 7002
	fixtureMap        uint32 = 21
)

const (
	classWarrior spatial.ClassID = 1
	classPriest  spatial.ClassID = 5

	specProt spatial.SpecID = 11
	specArms spatial.SpecID = 12
	specHoly spatial.SpecID = 51
)

func at(x, y float32) spatial.Position {
	return spatial.Position{Map: fixtureMap, X: x, Y: y}
}

func botEID(n uint64) spatial.EID { return spatial.EID(1000 + n) }

func knownSpells(spells ...uint32) map[uint32]bool {
	m := make(map[uint32]bool, len(spells))
	for _, s := range spells {
		m[s] = true
	}
	return m
}

func warriorKnown() map[uint32]bool {
	return knownSpells(spellMortalStrike, spellExecute, spellSlam, spellRend,
		spellPummel, spellBerserkRage, spellShieldWall, spellShieldBlock, spellSpellReflect)
}

func tankKnown() map[uint32]bool {
	return knownSpells(spellPummel, spellBerserkRage, spellShieldWall,
		spellShieldBlock, spellSpellReflect)
}

func priestKnown() map[uint32]bool {
	return knownSpells(spellFlashHeal, spellRenew, spellPrayer, spellSmite,
		spellDispel, spellPurge, spellPainSup)
}

// fixtureCatalogs mirrors the live config shapes with two classes. Both
// resource pools run on the 100-point scale the arena regenerates, so the
// speculative pools and the host stay in agreement after every sync.
func fixtureCatalogs() *catalogs.Catalogs {
	warrior := catalogs.KitDef{
		Class: uint16(classWarrior), Name: "warrior",
		Specs: []catalogs.SpecDef{
			{Spec: uint16(specProt), Name: "protection", Role: "tank"},
			{Spec: uint16(specArms), Name: "arms", Role: "damage"},
		},
		Resources: []catalogs.ResourceDef{{Kind: "rage", Max: 100, DecayPerSec: 1.5}},
		Interrupt: catalogs.InterruptDef{Spell: spellPummel, LockoutMS: 4000},
		CCBreaks:  []uint32{spellBerserkRage},
	}
	priest := catalogs.KitDef{
		Class: uint16(classPriest), Name: "priest",
		Specs: []catalogs.SpecDef{
			{Spec: uint16(specHoly), Name: "holy", Role: "healer"},
		},
		Resources:   []catalogs.ResourceDef{{Kind: "mana", Max: 100, RegenPerSec: 4}},
		Dispels:     []string{"magic", "disease"},
		DispelSpell: spellDispel,
		PurgeSpell:  spellPurge,
		Externals:   []uint32{spellPainSup},
	}

	return &catalogs.Catalogs{
		Kits: catalogs.KitCatalog{ByClass: map[spatial.ClassID]catalogs.KitDef{
			classWarrior: warrior,
			classPriest:  priest,
		}},
		Defensives: catalogs.DefensiveCatalog{ByClass: map[spatial.ClassID][]catalogs.DefensiveDef{
			classWarrior: {
				{Class: uint16(classWarrior), Spell: spellShieldWall, Tier: catalogs.TierMajorReduction,
					HPMin: 0, HPMax: 40, CooldownMS: 240000, DurationMS: 12000},
				{Class: uint16(classWarrior), Spell: spellShieldBlock, Tier: catalogs.TierModerateReduction,
					HPMin: 0, HPMax: 75, CooldownMS: 8000, DurationMS: 6000, Requires: "melee"},
				{Class: uint16(classWarrior), Spell: spellSpellReflect, Tier: catalogs.TierAvoidance,
					HPMin: 0, HPMax: 95, CooldownMS: 25000, DurationMS: 5000, Requires: "magic", NoGCD: true},
			},
			classPriest: {
				{Class: uint16(classPriest), Spell: spellPainSup, Tier: catalogs.TierMajorReduction,
					HPMin: 0, HPMax: 50, CooldownMS: 180000, DurationMS: 8000, External: true},
			},
		}},
		Dispels: catalogs.DispelCatalog{
			Debuffs: map[uint32]string{auraHex: catalogs.BandDangerous},
			Purge:   map[uint32]string{},
		},
		Rotations: catalogs.RotationCatalog{BySpec: map[catalogs.SpecKey]catalogs.RotationDef{
			{Class: classWarrior, Spec: specArms}: {
				Class: uint16(classWarrior), Spec: uint16(specArms), Name: "arms",
				Abilities: []catalogs.RotationAbility{
					{Spell: spellExecute, When: []string{"execute"}},
					{Spell: spellRend, When: []string{"dot_missing"}},
					{Spell: spellMortalStrike},
					{Spell: spellSlam},
				},
			},
			{Class: classPriest, Spec: specHoly}: {
				Class: uint16(classPriest), Spec: uint16(specHoly), Name: "holy",
				Abilities: []catalogs.RotationAbility{
					{Spell: spellPrayer, When: []string{"aoe"}},
					{Spell: spellFlashHeal},
					{Spell: spellRenew},
					{Spell: spellSmite},
				},
			},
		}},
	}
}

// fixtureAbilities is the one spell table every scenario shares. Costs are
// points out of the 100-point pools.
func fixtureAbilities() []arena.AbilityDef {
	return []arena.AbilityDef{
		{Spell: spellMortalStrike, Name: "Mortal Strike", CooldownMS: 6000, GCDMS: 1500, RangeYards: 5,
			SchoolMask: 0x1, CostKind: "rage", CostAmount: 30, Effects: []string{"damage"}, Damage: 350},
		{Spell: spellExecute, Name: "Execute", GCDMS: 1500, RangeYards: 5,
			SchoolMask: 0x1, CostKind: "rage", CostAmount: 15, Effects: []string{"damage"}, Damage: 600},
		{Spell: spellSlam, Name: "Slam", GCDMS: 1500, RangeYards: 5,
			SchoolMask: 0x1, CostKind: "rage", CostAmount: 15, Effects: []string{"damage"}, Damage: 250},
		{Spell: spellRend, Name: "Rend", GCDMS: 1500, RangeYards: 5,
			SchoolMask: 0x1, CostKind: "rage", CostAmount: 10, Effects: []string{"damage_over_time"}, Damage: 120},
		{Spell: spellPummel, Name: "Pummel", CooldownMS: 10000, RangeYards: 5,
			SchoolMask: 0x1, Effects: []string{"interrupt"}, LockoutMS: 4000},
		{Spell: spellBerserkRage, Name: "Berserker Rage", CooldownMS: 30000, Positive: true, CCBreak: true},
		{Spell: spellShieldWall, Name: "Shield Wall", CooldownMS: 240000, Positive: true,
			ReductionPct: 60, DurationMS: 12000},
		{Spell: spellShieldBlock, Name: "Shield Block", CooldownMS: 8000, Positive: true,
			CostKind: "rage", CostAmount: 10, ReductionPct: 30, DurationMS: 6000},
		{Spell: spellSpellReflect, Name: "Spell Reflection", CooldownMS: 25000, Positive: true,
			CostKind: "rage", CostAmount: 15, ReductionPct: 75, DurationMS: 5000},

		{Spell: spellFlashHeal, Name: "Flash Heal", CastTimeMS: 1500, GCDMS: 1500, RangeYards: 40, Positive: true,
			CostKind: "mana", CostAmount: 5, Effects: []string{"heal"}, Heal: 1200},
		{Spell: spellRenew, Name: "Renew", GCDMS: 1500, RangeYards: 40, Positive: true,
			CostKind: "mana", CostAmount: 3, Effects: []string{"heal_over_time"}, Heal: 300},
		{Spell: spellPrayer, Name: "Prayer of Healing", CastTimeMS: 2500, GCDMS: 1500, RangeYards: 30, Positive: true,
			CostKind: "mana", CostAmount: 12, Effects: []string{"heal", "aoe"}, AOERadius: 15, Heal: 800},
		{Spell: spellSmite, Name: "Smite", CastTimeMS: 2000, GCDMS: 1500, RangeYards: 30,
			SchoolMask: 0x2, CostKind: "mana", CostAmount: 2, Effects: []string{"damage"}, Damage: 150},
		{Spell: spellDispel, Name: "Dispel Magic", GCDMS: 1500, RangeYards: 30, Positive: true,
			CostKind: "mana", CostAmount: 3, Effects: []string{"dispel"}},
		{Spell: spellPurge, Name: "Purge", GCDMS: 1500, RangeYards: 30,
			CostKind: "mana", CostAmount: 2, Effects: []string{"dispel"}},
		{Spell: spellPainSup, Name: "Pain Suppression", CooldownMS: 180000, RangeYards: 40, Positive: true,
			CostKind: "mana", CostAmount: 4, ReductionPct: 40, DurationMS: 8000},

		{Spell: spellFrostbolt, Name: "Frostbolt", CastTimeMS: 3000, RangeYards: 30,
			SchoolMask: 0x10, Effects: []string{"damage"}, Interruptible: true, Damage: 280},
		{Spell: spellHexBolt, Name: "Hex Bolt", RangeYards: 30,
			SchoolMask: 0x20, Effects: []string{"damage"}, Damage: 60,
			Debuff: &arena.DebuffDef{Aura: auraHex, Class: "magic", DurationMS: 20000}},
	}
}

// provingGrounds is the farming map: three ghouls, a kill-and-collect
// quest, and nothing else to distract the bot.
func provingGrounds() *arena.Scenario {
	return &arena.Scenario{
		Realm:     "proving-grounds",
		Map:       fixtureMap,
		Abilities: fixtureAbilities(),
		Creatures: []arena.CreatureDef{
			{Entry: entryGhoul, Name: "Mire Ghoul", Class: "melee", Rank: "normal",
				Faction: 14, Hostile: true, LevelMin: 8, LevelMax: 9, MaxHealth: 800,
				AggroYards: 12, RespawnMS: 300000, MeleeDamage: 90, AttackMS: 2000,
				Loot: []arena.LootDef{{Item: itemMirescale}}},
		},
		Spawns: []arena.SpawnDef{
			{Entry: entryGhoul, X: 60, Y: 0, Count: 3, Spread: 3},
		},
		Quests: []arena.QuestDef{
			{ID: questThinTheMire, Title: "Thin the Mire", QuestLevel: 9, LevelMin: 6,
				Objectives: []arena.ObjectiveDef{
					{Kind: "kill", Required: 3, Creature: entryGhoul},
					{Kind: "collect", Required: 2, Item: itemMirescale,
						Source: "creature_loot", Creature: entryGhoul},
				}},
		},
		Items: []arena.ItemDef{{ID: itemMirescale}},
	}
}

// interruptRidge spawns a single frostbolt caster with far more health
// than the interrupter could chew through.
func interruptRidge() *arena.Scenario {
	return &arena.Scenario{
		Realm:     "interrupt-ridge",
		Map:       fixtureMap,
		Abilities: fixtureAbilities(),
		Creatures: []arena.CreatureDef{
			{Entry: entryShaman, Name: "Bog Shaman", Class: "caster", Rank: "elite",
				Faction: 14, Hostile: true, LevelMin: 12, LevelMax: 12, MaxHealth: 60000,
				AggroYards: 20, RespawnMS: 300000, MeleeDamage: 40, AttackMS: 2000,
				Casts: []arena.CastDef{{Spell: spellFrostbolt, EveryMS: 4000}}},
		},
		Spawns: []arena.SpawnDef{{Entry: entryShaman, X: 15, Y: 0}},
	}
}

// hexHollow spawns a witch whose bolts leave a dispellable magic debuff.
func hexHollow() *arena.Scenario {
	return &arena.Scenario{
		Realm:     "hex-hollow",
		Map:       fixtureMap,
		Abilities: fixtureAbilities(),
		Creatures: []arena.CreatureDef{
			{Entry: entryWitch, Name: "Plague Witch", Class: "caster", Rank: "normal",
				Faction: 14, Hostile: true, LevelMin: 11, LevelMax: 11, MaxHealth: 30000,
				AggroYards: 20, RespawnMS: 300000, MeleeDamage: 30, AttackMS: 2500,
				Casts: []arena.CastDef{{Spell: spellHexBolt, EveryMS: 3000}}},
		},
		Spawns: []arena.SpawnDef{{Entry: entryWitch, X: 15, Y: 0}},
	}
}

// bossPit parameterizes one melee boss so tests can dial the incoming
// damage against the tank's health pool.
func bossPit(meleeDamage, attackMS int64) *arena.Scenario {
	return &arena.Scenario{
		Realm:     "boss-pit",
		Map:       fixtureMap,
		Abilities: fixtureAbilities(),
		Creatures: []arena.CreatureDef{
			{Entry: entryOverlord, Name: "Pit Overlord", Class: "melee", Rank: "boss",
				Faction: 14, Hostile: true, LevelMin: 63, LevelMax: 63, MaxHealth: 200000,
				AggroYards: 20, RespawnMS: 300000, MeleeDamage: meleeDamage, AttackMS: attackMS},
		},
		Spawns: []arena.SpawnDef{{Entry: entryOverlord, X: 10, Y: 0}},
	}
}

// scoutTrail is an empty map with one reach-area quest far from the
// spawn, so the whole run is routing and travel.
func scoutTrail() *arena.Scenario {
	return &arena.Scenario{
		Realm:     "scout-trail",
		Map:       fixtureMap,
		Abilities: fixtureAbilities(),
		Quests: []arena.QuestDef{
			{ID: questScoutTheRise, Title: "Scout the Rise", QuestLevel: 10, LevelMin: 6,
				Objectives: []arena.ObjectiveDef{
					{Kind: "reach_area", Required: 1, X: 200, Y: 40, AreaRadius: 10},
				}},
		},
	}
}
