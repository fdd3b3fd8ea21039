package hostbridge

import "warband.ai/internal/sim/spatial"

// ResourceKind names the power pool an ability draws from.
type ResourceKind uint8

const (
	ResourceNone ResourceKind = iota
	ResourceMana
	ResourceRage
	ResourceEnergy
	ResourceFocus
	ResourceRunic
	ResourceCombo
	ResourceChi
	ResourceHolyPower
	ResourceEssence
	ResourceRunes
)

func (r ResourceKind) String() string {
	switch r {
	case ResourceMana:
		return "mana"
	case ResourceRage:
		return "rage"
	case ResourceEnergy:
		return "energy"
	case ResourceFocus:
		return "focus"
	case ResourceRunic:
		return "runic"
	case ResourceCombo:
		return "combo"
	case ResourceChi:
		return "chi"
	case ResourceHolyPower:
		return "holy_power"
	case ResourceEssence:
		return "essence"
	case ResourceRunes:
		return "runes"
	default:
		return "none"
	}
}

// Effect bits describe what an ability does, independent of numbers.
const (
	EffectDamage uint32 = 1 << iota
	EffectHeal
	EffectHealOverTime
	EffectDamageOverTime
	EffectAbsorbShield
	EffectStun
	EffectFear
	EffectSilence
	EffectRoot
	EffectInterrupt
	EffectDispel
	EffectTaunt
	EffectAOE
)

// EffectCrowdControl groups the bits that take a unit out of the fight.
const EffectCrowdControl = EffectStun | EffectFear | EffectSilence | EffectRoot

type ResourceCost struct {
	Kind   ResourceKind
	Amount float64
}

// AbilityInfo is the read-through spell record. GCDMS of 0 marks an
// off-GCD ability; LockoutMS is only meaningful on interrupts.
type AbilityInfo struct {
	Spell         uint32
	Name          string
	CastTimeMS    int32
	CooldownMS    int32
	GCDMS         int32
	RangeYards    float32
	MinRangeYards float32
	SchoolMask    uint32
	Cost          ResourceCost
	Positive      bool
	Effects       uint32
	Interruptible bool
	LockoutMS     int32
	AOERadius     float32
}

func (a AbilityInfo) Is(effect uint32) bool { return a.Effects&effect != 0 }

type CreatureRank uint8

const (
	RankNormal CreatureRank = iota
	RankElite
	RankRareElite
	RankBoss
)

type UnitClass uint8

const (
	UnitMelee UnitClass = iota
	UnitCaster
	UnitHealer
)

type CreatureInfo struct {
	Entry    uint32
	Name     string
	Class    UnitClass
	Rank     CreatureRank
	Faction  uint32
	LevelMin uint8
	LevelMax uint8
}

type ObjectiveKind uint8

const (
	ObjectiveKill ObjectiveKind = iota + 1
	ObjectiveCollect
	ObjectiveUseObject
	ObjectiveReachArea
)

func (k ObjectiveKind) String() string {
	switch k {
	case ObjectiveKill:
		return "kill"
	case ObjectiveCollect:
		return "collect"
	case ObjectiveUseObject:
		return "use_object"
	case ObjectiveReachArea:
		return "reach_area"
	default:
		return "unknown"
	}
}

// ItemSource says where a collectible objective item drops from.
type ItemSource uint8

const (
	ItemSourceNone ItemSource = iota
	ItemSourceCreatureLoot
	ItemSourceObjectLoot
)

type QuestObjectiveInfo struct {
	Kind          ObjectiveKind
	Required      uint32
	CreatureEntry uint32
	ObjectEntry   uint32
	Item          uint32
	Source        ItemSource
	Area          spatial.Position
	AreaRadius    float32
}

type QuestInfo struct {
	Quest      uint32
	Title      string
	QuestLevel uint8
	LevelMin   uint8
	StartItem  uint32
	Objectives []QuestObjectiveInfo
}

// ItemEffect is one on-use spell of an item.
type ItemEffect struct {
	Item           uint32
	Spell          uint32
	RequiresTarget bool
	RangeYards     float32
}
