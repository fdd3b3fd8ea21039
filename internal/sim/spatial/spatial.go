package spatial

import (
	"math"
	"strconv"
)

// EID is a stable opaque handle for any world entity: agents, creatures,
// world objects, and effect fields all share the same identity space.
// The zero value is "no entity".
type EID uint64

func (e EID) IsZero() bool { return e == 0 }

func (e EID) String() string { return strconv.FormatUint(uint64(e), 10) }

// Position is always scoped to a map; entities are not addressable across
// maps.
type Position struct {
	Map    uint32
	X      float32
	Y      float32
	Z      float32
	Facing float32
}

// DistanceTo returns the 3-D distance. Positions on different maps are
// infinitely far apart.
func (p Position) DistanceTo(o Position) float64 {
	if p.Map != o.Map {
		return math.Inf(1)
	}
	dx := float64(p.X - o.X)
	dy := float64(p.Y - o.Y)
	dz := float64(p.Z - o.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Distance2D ignores the vertical axis.
func (p Position) Distance2D(o Position) float64 {
	if p.Map != o.Map {
		return math.Inf(1)
	}
	dx := float64(p.X - o.X)
	dy := float64(p.Y - o.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// Role is the coarse combat role hint carried on player snapshots.
type Role uint8

const (
	RoleNone Role = iota
	RoleTank
	RoleHealer
	RoleDamage
)

func (r Role) String() string {
	switch r {
	case RoleTank:
		return "tank"
	case RoleHealer:
		return "healer"
	case RoleDamage:
		return "damage"
	default:
		return "none"
	}
}

// ClassID and SpecID identify the kit an agent plays. Values come from the
// kit catalog; the grid treats them as opaque.
type ClassID uint16

type SpecID uint16

// DispelClass partitions auras by the mechanic that removes them.
type DispelClass uint8

const (
	DispelNone DispelClass = iota
	DispelMagic
	DispelCurse
	DispelDisease
	DispelPoison
	DispelEnrage // purge-only
)

func (d DispelClass) String() string {
	switch d {
	case DispelMagic:
		return "magic"
	case DispelCurse:
		return "curse"
	case DispelDisease:
		return "disease"
	case DispelPoison:
		return "poison"
	case DispelEnrage:
		return "enrage"
	default:
		return "none"
	}
}

// Aura flag bits summarizing notable states without enumerating aura ids.
const (
	AuraStunned uint64 = 1 << iota
	AuraRooted
	AuraFeared
	AuraSilenced
	AuraPolymorphed
	AuraEnraged
	AuraImmune
	AuraEvading
	AuraDamageAmp
	AuraHealOverTime
	AuraAbsorbShield
)

const auraCrowdControlMask = AuraStunned | AuraFeared | AuraPolymorphed

// Aura is a single aura instance visible on a snapshot.
type Aura struct {
	ID     uint32
	Class  DispelClass
	Expiry int64 // absolute host ms; 0 = unknown/permanent
}

// CreatureSnapshot is the published view of a non-player unit. All fields
// are plain values; callers copy freely.
type CreatureSnapshot struct {
	EID             EID
	Pos             Position
	Entry           uint32
	Health          int64
	MaxHealth       int64
	IsDead          bool
	HostileHint     bool
	IsCasting       bool
	CastSpell       uint32
	CastTarget      EID
	CastRemainingMS int32
	AuraBits        uint64
	Buffs           []Aura // positive auras, purge candidates
	PublishedTick   uint64
}

func (c CreatureSnapshot) IsCrowdControlled() bool { return c.AuraBits&auraCrowdControlMask != 0 }

func (c CreatureSnapshot) HealthPct() float32 {
	if c.MaxHealth <= 0 {
		return 0
	}
	return float32(c.Health) / float32(c.MaxHealth) * 100
}

// PlayerSnapshot covers both human participants and simulated agents; the
// grid cannot tell them apart and must not.
type PlayerSnapshot struct {
	EID             EID
	Pos             Position
	Group           uint64 // 0 = ungrouped
	Role            Role
	Class           ClassID
	Spec            SpecID
	HealthPct       float32
	ResourcePct     float32
	IsDead          bool
	IsCasting       bool
	CastSpell       uint32
	CastTarget      EID // in-flight cast target, used for incoming-heal estimation
	CastRemainingMS int32
	AuraBits        uint64
	Buffs           []Aura
	Debuffs         []Aura
	PublishedTick   uint64
}

func (p PlayerSnapshot) IsCrowdControlled() bool { return p.AuraBits&auraCrowdControlMask != 0 }

// HasAura reports whether the given aura id is present in either list.
func (p PlayerSnapshot) HasAura(id uint32) bool {
	for _, a := range p.Buffs {
		if a.ID == id {
			return true
		}
	}
	for _, a := range p.Debuffs {
		if a.ID == id {
			return true
		}
	}
	return false
}

// ObjectSnapshot is the published view of a world object (chest, quest
// object, bonfire). DamageRadius > 0 marks objects that hurt to stand near.
type ObjectSnapshot struct {
	EID           EID
	Pos           Position
	Entry         uint32
	IsSpawned     bool
	IsQuestObject bool
	IsUsable      bool
	DamageRadius  float32
	LinkedField   EID // effect field owned by this object, if any
	PublishedTick uint64
}

// FieldSnapshot unifies dynamic objects and area triggers: a circular
// effect on the ground attributed to a caster.
type FieldSnapshot struct {
	EID           EID
	Pos           Position
	Caster        EID
	Active        bool
	Hostile       bool
	Radius        float32
	SchoolMask    uint32
	PublishedTick uint64
}
