package arena

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/spatial"
)

// Scenario is the arena's seed data: everything the demo host needs to
// stand up a self-contained world. Loading is fail-closed in the same way
// the catalog loaders are: dangling references refuse to load.
type Scenario struct {
	Realm  string `json:"realm"`
	Map    uint32 `json:"map"`
	Digest string `json:"-"`

	Abilities   []AbilityDef  `json:"abilities"`
	Creatures   []CreatureDef `json:"creatures"`
	Spawns      []SpawnDef    `json:"spawns"`
	QuestGivers []GiverDef    `json:"quest_givers"`
	Quests      []QuestDef    `json:"quests"`
	Objects     []ObjectDef   `json:"objects"`
	Items       []ItemDef     `json:"items"`
	Fields      []FieldDef    `json:"fields,omitempty"`
}

// AbilityDef is one spell the arena can resolve. The hostbridge-visible
// metadata lives alongside the arena-only effect numbers (damage, heal,
// applied debuff); the registry serves the former, the simulation the
// latter.
type AbilityDef struct {
	Spell         uint32   `json:"spell"`
	Name          string   `json:"name"`
	CastTimeMS    int32    `json:"cast_time_ms,omitempty"`
	CooldownMS    int32    `json:"cooldown_ms,omitempty"`
	GCDMS         int32    `json:"gcd_ms,omitempty"`
	RangeYards    float32  `json:"range_yards,omitempty"`
	SchoolMask    uint32   `json:"school_mask,omitempty"`
	CostKind      string   `json:"cost_kind,omitempty"`
	CostAmount    float64  `json:"cost_amount,omitempty"`
	Positive      bool     `json:"positive,omitempty"`
	Effects       []string `json:"effects,omitempty"`
	Interruptible bool     `json:"interruptible,omitempty"`
	LockoutMS     int32    `json:"lockout_ms,omitempty"`
	AOERadius     float32  `json:"aoe_radius,omitempty"`

	Damage       int64      `json:"damage,omitempty"`
	Heal         int64      `json:"heal,omitempty"`
	HealPct      float32    `json:"heal_pct,omitempty"`
	ReductionPct float32    `json:"reduction_pct,omitempty"`
	DurationMS   int64      `json:"duration_ms,omitempty"`
	CCBreak      bool       `json:"cc_break,omitempty"` // usable while crowd controlled, clears it
	Debuff       *DebuffDef `json:"applies_debuff,omitempty"`
}

// DebuffDef describes an aura a hostile cast leaves on its victim.
type DebuffDef struct {
	Aura       uint32   `json:"aura"`
	Class      string   `json:"class"` // magic | curse | disease | poison | none
	DurationMS int64    `json:"duration_ms"`
	Bits       []string `json:"bits,omitempty"` // stunned | rooted | feared | silenced
	TickDamage int64    `json:"tick_damage,omitempty"`
}

// CreatureDef is a creature template plus its scripted behaviour.
type CreatureDef struct {
	Entry      uint32  `json:"entry"`
	Name       string  `json:"name"`
	Class      string  `json:"class"` // melee | caster | healer
	Rank       string  `json:"rank"`  // normal | elite | rare_elite | boss
	Faction    uint32  `json:"faction"`
	Hostile    bool    `json:"hostile,omitempty"`
	LevelMin   uint8   `json:"level_min"`
	LevelMax   uint8   `json:"level_max"`
	MaxHealth  int64   `json:"max_health"`
	AggroYards float32 `json:"aggro_yards,omitempty"`
	RespawnMS  int64   `json:"respawn_ms,omitempty"`

	MeleeDamage int64 `json:"melee_damage,omitempty"`
	AttackMS    int64 `json:"attack_ms,omitempty"`

	Casts  []CastDef  `json:"casts,omitempty"`
	Pulses []PulseDef `json:"pulses,omitempty"`
	Loot   []LootDef  `json:"loot,omitempty"`
}

// CastDef is one scripted spell on a creature's timer.
type CastDef struct {
	Spell   uint32 `json:"spell"`
	EveryMS int64  `json:"every_ms"`
}

// PulseDef is periodic area damage around the creature while engaged.
type PulseDef struct {
	Amount     int64   `json:"amount"`
	SchoolMask uint32  `json:"school_mask"`
	EveryMS    int64   `json:"every_ms"`
	Radius     float32 `json:"radius"`
}

type LootDef struct {
	Item uint32 `json:"item"`
}

type SpawnDef struct {
	Entry  uint32  `json:"entry"`
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
	Z      float32 `json:"z"`
	Count  int     `json:"count,omitempty"`
	Spread float32 `json:"spread,omitempty"`
}

type GiverDef struct {
	Entry   uint32   `json:"entry"`
	X       float32  `json:"x"`
	Y       float32  `json:"y"`
	Z       float32  `json:"z"`
	Faction uint32   `json:"faction"`
	Quests  []uint32 `json:"quests"`
}

type QuestDef struct {
	ID         uint32         `json:"id"`
	Title      string         `json:"title"`
	QuestLevel uint8          `json:"quest_level"`
	LevelMin   uint8          `json:"level_min"`
	StartItem  uint32         `json:"start_item,omitempty"`
	Objectives []ObjectiveDef `json:"objectives"`
}

type ObjectiveDef struct {
	Kind       string  `json:"kind"` // kill | collect | use_object | reach_area
	Required   uint32  `json:"required"`
	Creature   uint32  `json:"creature,omitempty"`
	Object     uint32  `json:"object,omitempty"`
	Item       uint32  `json:"item,omitempty"`
	Source     string  `json:"source,omitempty"` // creature_loot | object_loot
	X          float32 `json:"x,omitempty"`
	Y          float32 `json:"y,omitempty"`
	Z          float32 `json:"z,omitempty"`
	AreaRadius float32 `json:"area_radius,omitempty"`
}

type ObjectDef struct {
	Entry       uint32  `json:"entry"`
	X           float32 `json:"x"`
	Y           float32 `json:"y"`
	Z           float32 `json:"z"`
	Usable      bool    `json:"usable,omitempty"`
	QuestObject bool    `json:"quest_object,omitempty"`
	Loot        uint32  `json:"loot,omitempty"`       // item granted on use
	RespawnMS   int64   `json:"respawn_ms,omitempty"` // despawn window after use
}

// ItemDef declares an item. Spell 0 marks an inert quest item: it can be
// looted and collected but not used.
type ItemDef struct {
	ID             uint32  `json:"id"`
	Spell          uint32  `json:"spell,omitempty"`
	RequiresTarget bool    `json:"requires_target,omitempty"`
	RangeYards     float32 `json:"range_yards,omitempty"`
}

// FieldDef is a ground effect cycling between active and dormant. Hostile
// fields give the movement arbiter something to route around.
type FieldDef struct {
	X          float32 `json:"x"`
	Y          float32 `json:"y"`
	Z          float32 `json:"z"`
	Radius     float32 `json:"radius"`
	Hostile    bool    `json:"hostile"`
	SchoolMask uint32  `json:"school_mask,omitempty"`
	ActiveMS   int64   `json:"active_ms"`
	DormantMS  int64   `json:"dormant_ms"`
	TickDamage int64   `json:"tick_damage,omitempty"`
}

// LoadScenario reads and validates one scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("arena: read scenario: %w", err)
	}
	var s Scenario
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("arena: parse scenario: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("arena: scenario %s: %w", path, err)
	}
	sum := sha256.Sum256(raw)
	s.Digest = hex.EncodeToString(sum[:])
	return &s, nil
}

func (s *Scenario) validate() error {
	if s.Realm == "" {
		return fmt.Errorf("realm is required")
	}

	abilities := map[uint32]bool{}
	for _, a := range s.Abilities {
		if a.Spell == 0 {
			return fmt.Errorf("ability with spell 0")
		}
		if abilities[a.Spell] {
			return fmt.Errorf("duplicate ability %d", a.Spell)
		}
		if _, err := parseEffects(a.Effects); err != nil {
			return fmt.Errorf("ability %d: %w", a.Spell, err)
		}
		if a.Debuff != nil {
			if a.Debuff.Aura == 0 {
				return fmt.Errorf("ability %d: debuff aura 0", a.Spell)
			}
			if _, err := parseDispelClass(a.Debuff.Class); err != nil {
				return fmt.Errorf("ability %d: %w", a.Spell, err)
			}
			if _, err := parseAuraBits(a.Debuff.Bits); err != nil {
				return fmt.Errorf("ability %d: %w", a.Spell, err)
			}
		}
		abilities[a.Spell] = true
	}

	items := map[uint32]bool{}
	for _, it := range s.Items {
		if it.ID == 0 {
			return fmt.Errorf("item with id 0")
		}
		if items[it.ID] {
			return fmt.Errorf("duplicate item %d", it.ID)
		}
		if it.Spell != 0 && !abilities[it.Spell] {
			return fmt.Errorf("item %d: unknown spell %d", it.ID, it.Spell)
		}
		items[it.ID] = true
	}

	creatures := map[uint32]bool{}
	for _, c := range s.Creatures {
		if c.Entry == 0 {
			return fmt.Errorf("creature with entry 0")
		}
		if creatures[c.Entry] {
			return fmt.Errorf("duplicate creature %d", c.Entry)
		}
		if _, err := parseUnitClass(c.Class); err != nil {
			return fmt.Errorf("creature %d: %w", c.Entry, err)
		}
		if _, err := parseRank(c.Rank); err != nil {
			return fmt.Errorf("creature %d: %w", c.Entry, err)
		}
		if c.MaxHealth <= 0 {
			return fmt.Errorf("creature %d: max_health %d", c.Entry, c.MaxHealth)
		}
		for _, cast := range c.Casts {
			if !abilities[cast.Spell] {
				return fmt.Errorf("creature %d: unknown cast spell %d", c.Entry, cast.Spell)
			}
			if cast.EveryMS <= 0 {
				return fmt.Errorf("creature %d: cast %d every_ms %d", c.Entry, cast.Spell, cast.EveryMS)
			}
		}
		for i, p := range c.Pulses {
			if p.EveryMS <= 0 || p.Radius <= 0 {
				return fmt.Errorf("creature %d: pulse %d needs every_ms and radius", c.Entry, i)
			}
		}
		for _, l := range c.Loot {
			if !items[l.Item] {
				return fmt.Errorf("creature %d: unknown loot item %d", c.Entry, l.Item)
			}
		}
		creatures[c.Entry] = true
	}

	for _, sp := range s.Spawns {
		if !creatures[sp.Entry] {
			return fmt.Errorf("spawn references unknown creature %d", sp.Entry)
		}
	}

	objects := map[uint32]bool{}
	for _, o := range s.Objects {
		if o.Entry == 0 {
			return fmt.Errorf("object with entry 0")
		}
		if objects[o.Entry] {
			return fmt.Errorf("duplicate object %d", o.Entry)
		}
		if o.Loot != 0 && !items[o.Loot] {
			return fmt.Errorf("object %d: unknown loot item %d", o.Entry, o.Loot)
		}
		objects[o.Entry] = true
	}

	quests := map[uint32]bool{}
	for _, q := range s.Quests {
		if q.ID == 0 {
			return fmt.Errorf("quest with id 0")
		}
		if quests[q.ID] {
			return fmt.Errorf("duplicate quest %d", q.ID)
		}
		if len(q.Objectives) == 0 {
			return fmt.Errorf("quest %d: no objectives", q.ID)
		}
		for i, o := range q.Objectives {
			kind, err := parseObjectiveKind(o.Kind)
			if err != nil {
				return fmt.Errorf("quest %d objective %d: %w", q.ID, i, err)
			}
			if o.Required == 0 {
				return fmt.Errorf("quest %d objective %d: required 0", q.ID, i)
			}
			if _, err := parseItemSource(o.Source); err != nil {
				return fmt.Errorf("quest %d objective %d: %w", q.ID, i, err)
			}
			switch kind {
			case hostbridge.ObjectiveKill:
				if !creatures[o.Creature] {
					return fmt.Errorf("quest %d objective %d: unknown creature %d", q.ID, i, o.Creature)
				}
			case hostbridge.ObjectiveCollect:
				if !items[o.Item] {
					return fmt.Errorf("quest %d objective %d: unknown item %d", q.ID, i, o.Item)
				}
			case hostbridge.ObjectiveUseObject:
				if !objects[o.Object] {
					return fmt.Errorf("quest %d objective %d: unknown object %d", q.ID, i, o.Object)
				}
			case hostbridge.ObjectiveReachArea:
				if o.AreaRadius <= 0 {
					return fmt.Errorf("quest %d objective %d: area_radius %.1f", q.ID, i, o.AreaRadius)
				}
			}
		}
		if q.StartItem != 0 && !items[q.StartItem] {
			return fmt.Errorf("quest %d: unknown start item %d", q.ID, q.StartItem)
		}
		quests[q.ID] = true
	}

	for _, g := range s.QuestGivers {
		if g.Entry == 0 {
			return fmt.Errorf("quest giver with entry 0")
		}
		for _, q := range g.Quests {
			if !quests[q] {
				return fmt.Errorf("giver %d offers unknown quest %d", g.Entry, q)
			}
		}
	}

	for i, f := range s.Fields {
		if f.Radius <= 0 || f.ActiveMS <= 0 || f.DormantMS < 0 {
			return fmt.Errorf("field %d: bad timing or radius", i)
		}
	}
	return nil
}

func parseObjectiveKind(s string) (hostbridge.ObjectiveKind, error) {
	switch s {
	case "kill":
		return hostbridge.ObjectiveKill, nil
	case "collect":
		return hostbridge.ObjectiveCollect, nil
	case "use_object":
		return hostbridge.ObjectiveUseObject, nil
	case "reach_area":
		return hostbridge.ObjectiveReachArea, nil
	default:
		return 0, fmt.Errorf("unknown objective kind %q", s)
	}
}

func parseItemSource(s string) (hostbridge.ItemSource, error) {
	switch s {
	case "":
		return hostbridge.ItemSourceNone, nil
	case "creature_loot":
		return hostbridge.ItemSourceCreatureLoot, nil
	case "object_loot":
		return hostbridge.ItemSourceObjectLoot, nil
	default:
		return 0, fmt.Errorf("unknown item source %q", s)
	}
}

func parseUnitClass(s string) (hostbridge.UnitClass, error) {
	switch s {
	case "", "melee":
		return hostbridge.UnitMelee, nil
	case "caster":
		return hostbridge.UnitCaster, nil
	case "healer":
		return hostbridge.UnitHealer, nil
	default:
		return 0, fmt.Errorf("unknown unit class %q", s)
	}
}

func parseRank(s string) (hostbridge.CreatureRank, error) {
	switch s {
	case "", "normal":
		return hostbridge.RankNormal, nil
	case "elite":
		return hostbridge.RankElite, nil
	case "rare_elite":
		return hostbridge.RankRareElite, nil
	case "boss":
		return hostbridge.RankBoss, nil
	default:
		return 0, fmt.Errorf("unknown creature rank %q", s)
	}
}

func parseEffects(names []string) (uint32, error) {
	var bits uint32
	for _, n := range names {
		switch n {
		case "damage":
			bits |= hostbridge.EffectDamage
		case "heal":
			bits |= hostbridge.EffectHeal
		case "heal_over_time":
			bits |= hostbridge.EffectHealOverTime
		case "damage_over_time":
			bits |= hostbridge.EffectDamageOverTime
		case "absorb_shield":
			bits |= hostbridge.EffectAbsorbShield
		case "stun":
			bits |= hostbridge.EffectStun
		case "fear":
			bits |= hostbridge.EffectFear
		case "silence":
			bits |= hostbridge.EffectSilence
		case "root":
			bits |= hostbridge.EffectRoot
		case "interrupt":
			bits |= hostbridge.EffectInterrupt
		case "dispel":
			bits |= hostbridge.EffectDispel
		case "taunt":
			bits |= hostbridge.EffectTaunt
		case "aoe":
			bits |= hostbridge.EffectAOE
		default:
			return 0, fmt.Errorf("unknown effect %q", n)
		}
	}
	return bits, nil
}

func parseDispelClass(s string) (spatial.DispelClass, error) {
	switch s {
	case "magic":
		return spatial.DispelMagic, nil
	case "curse":
		return spatial.DispelCurse, nil
	case "disease":
		return spatial.DispelDisease, nil
	case "poison":
		return spatial.DispelPoison, nil
	case "", "none":
		return spatial.DispelNone, nil
	default:
		return 0, fmt.Errorf("unknown dispel class %q", s)
	}
}

func parseAuraBits(names []string) (uint64, error) {
	var bits uint64
	for _, n := range names {
		switch n {
		case "stunned":
			bits |= spatial.AuraStunned
		case "rooted":
			bits |= spatial.AuraRooted
		case "feared":
			bits |= spatial.AuraFeared
		case "silenced":
			bits |= spatial.AuraSilenced
		default:
			return 0, fmt.Errorf("unknown aura bit %q", n)
		}
	}
	return bits, nil
}
