// Package catalogs loads the engine's data files: class kits, defensive
// cooldown tables, dispel priority tables, and per-spec rotation lists.
// Loading is fail-closed: malformed or inconsistent data refuses to load
// rather than producing agents with half a kit.
package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"warband.ai/internal/sim/spatial"
)

type Catalogs struct {
	Kits       KitCatalog
	Defensives DefensiveCatalog
	Dispels    DispelCatalog
	Rotations  RotationCatalog
}

type KitCatalog struct {
	ByClass map[spatial.ClassID]KitDef
	Digest  string
}

// KitDef is everything class-shaped the engine needs that is not a
// rotation: which spell interrupts, what breaks crowd control, which
// dispel classes the kit can remove, and the resource pools it runs on.
type KitDef struct {
	Class       uint16        `json:"class_id"`
	Name        string        `json:"name"`
	Specs       []SpecDef     `json:"specs"`
	Resources   []ResourceDef `json:"resources"`
	Interrupt   InterruptDef  `json:"interrupt"`
	CCBreaks    []uint32      `json:"cc_breaks,omitempty"`
	Dispels     []string      `json:"dispels,omitempty"`
	DispelSpell uint32        `json:"dispel_spell,omitempty"`
	PurgeSpell  uint32        `json:"purge_spell,omitempty"`
	Externals   []uint32      `json:"externals,omitempty"`
}

type SpecDef struct {
	Spec uint16 `json:"spec_id"`
	Name string `json:"name"`
	Role string `json:"role"` // tank | healer | damage
}

type ResourceDef struct {
	Kind        string  `json:"kind"`
	Max         float64 `json:"max"`
	RegenPerSec float64 `json:"regen_per_sec,omitempty"`
	DecayPerSec float64 `json:"decay_per_sec,omitempty"`
	Charges     int     `json:"charges,omitempty"`
	RechargeMS  int64   `json:"recharge_ms,omitempty"`
}

// KindID returns the numeric resource kind, 0 for unknown. The numbering
// matches hostbridge.ResourceKind.
func (r ResourceDef) KindID() uint8 { return parseResourceKind(r.Kind) }

type InterruptDef struct {
	Spell     uint32 `json:"spell"`
	LockoutMS int32  `json:"lockout_ms"`
}

// DispelClasses parses the kit's dispel capability strings.
func (k KitDef) DispelClasses() []spatial.DispelClass {
	var out []spatial.DispelClass
	for _, s := range k.Dispels {
		switch s {
		case "magic":
			out = append(out, spatial.DispelMagic)
		case "curse":
			out = append(out, spatial.DispelCurse)
		case "disease":
			out = append(out, spatial.DispelDisease)
		case "poison":
			out = append(out, spatial.DispelPoison)
		case "enrage":
			out = append(out, spatial.DispelEnrage)
		}
	}
	return out
}

// RoleFor maps a spec to its role, falling back to damage.
func (k KitDef) RoleFor(spec spatial.SpecID) spatial.Role {
	for _, s := range k.Specs {
		if spatial.SpecID(s.Spec) != spec {
			continue
		}
		switch s.Role {
		case "tank":
			return spatial.RoleTank
		case "healer":
			return spatial.RoleHealer
		default:
			return spatial.RoleDamage
		}
	}
	return spatial.RoleDamage
}

type DefensiveCatalog struct {
	ByClass map[spatial.ClassID][]DefensiveDef
	Digest  string
}

// Defensive tiers, strongest first.
const (
	TierImmunity          = "IMMUNITY"
	TierMajorReduction    = "MAJOR_REDUCTION"
	TierModerateReduction = "MODERATE_REDUCTION"
	TierAvoidance         = "AVOIDANCE"
	TierRegeneration      = "REGENERATION"
)

type DefensiveDef struct {
	Class      uint16  `json:"class_id"`
	Spell      uint32  `json:"spell"`
	Name       string  `json:"name,omitempty"`
	Tier       string  `json:"tier"`
	HPMin      float32 `json:"hp_min"`
	HPMax      float32 `json:"hp_max"`
	CooldownMS int64   `json:"cooldown_ms"`
	DurationMS int64   `json:"duration_ms"`
	Requires   string  `json:"requires,omitempty"` // melee | magic | multi_target
	External   bool    `json:"external,omitempty"`
	NoGCD      bool    `json:"no_gcd,omitempty"`
}

var validTiers = map[string]bool{
	TierImmunity:          true,
	TierMajorReduction:    true,
	TierModerateReduction: true,
	TierAvoidance:         true,
	TierRegeneration:      true,
}

type DispelCatalog struct {
	Debuffs map[uint32]string // aura id → band
	Purge   map[uint32]string
	Digest  string
}

// Dispel priority bands, strongest first.
const (
	BandDeath        = "DEATH"
	BandIncapacitate = "INCAPACITATE"
	BandDangerous    = "DANGEROUS"
	BandModerate     = "MODERATE"
	BandMinor        = "MINOR"
	BandTrivial      = "TRIVIAL"
)

var validBands = map[string]bool{
	BandDeath:        true,
	BandIncapacitate: true,
	BandDangerous:    true,
	BandModerate:     true,
	BandMinor:        true,
	BandTrivial:      true,
}

type SpecKey struct {
	Class spatial.ClassID
	Spec  spatial.SpecID
}

type RotationCatalog struct {
	BySpec map[SpecKey]RotationDef
	Digest string
}

type RotationDef struct {
	Class     uint16            `yaml:"class_id" json:"class_id"`
	Spec      uint16            `yaml:"spec_id" json:"spec_id"`
	Name      string            `yaml:"name" json:"name"`
	Abilities []RotationAbility `yaml:"abilities" json:"abilities"`
}

// RotationAbility is one priority-list entry. When conditions all have to
// hold for the entry to be considered; an empty list always holds.
type RotationAbility struct {
	Spell uint32   `yaml:"spell" json:"spell"`
	When  []string `yaml:"when,omitempty" json:"when,omitempty"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadKits(filepath.Join(configDir, "kits.json"), &c.Kits); err != nil {
		return nil, err
	}
	if err := loadDefensives(filepath.Join(configDir, "defensives.json"), &c.Defensives); err != nil {
		return nil, err
	}
	if err := loadDispels(filepath.Join(configDir, "dispels.json"), &c.Dispels); err != nil {
		return nil, err
	}
	if err := loadRotations(filepath.Join(configDir, "rotations"), &c.Rotations); err != nil {
		return nil, err
	}
	// Every rotation must belong to a known class.
	for key := range c.Rotations.BySpec {
		if _, ok := c.Kits.ByClass[key.Class]; !ok {
			return nil, fmt.Errorf("rotation for unknown class %d", key.Class)
		}
	}
	return &c, nil
}

// LoadValidated is Load with schema enforcement in front: every rotation
// file must validate against rotation.schema.json before the parser sees
// it. The schema rejects more than the parser does, unknown keys included.
func LoadValidated(configDir, schemaDir string) (*Catalogs, error) {
	schema, err := jsonschema.Compile(filepath.Join(schemaDir, "rotation.schema.json"))
	if err != nil {
		return nil, fmt.Errorf("rotation schema: %w", err)
	}
	dir := filepath.Join(configDir, "rotations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("rotation %s: %w", e.Name(), err)
		}
		// The validator wants JSON-typed values, not YAML-typed ones.
		jraw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("rotation %s: %w", e.Name(), err)
		}
		var jdoc any
		if err := json.Unmarshal(jraw, &jdoc); err != nil {
			return nil, fmt.Errorf("rotation %s: %w", e.Name(), err)
		}
		if err := schema.Validate(jdoc); err != nil {
			return nil, fmt.Errorf("rotation %s: %w", e.Name(), err)
		}
	}
	return Load(configDir)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadKits(path string, out *KitCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []KitDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("kits.json: %w", err)
	}
	out.ByClass = map[spatial.ClassID]KitDef{}
	for _, d := range defs {
		if d.Class == 0 {
			return fmt.Errorf("kits.json: kit %q missing class_id", d.Name)
		}
		if len(d.Resources) == 0 {
			return fmt.Errorf("kits.json: kit %q has no resources", d.Name)
		}
		for _, r := range d.Resources {
			if parseResourceKind(r.Kind) == 0 {
				return fmt.Errorf("kits.json: kit %q unknown resource %q", d.Name, r.Kind)
			}
		}
		if len(d.Dispels) > 0 && d.DispelSpell == 0 {
			return fmt.Errorf("kits.json: kit %q declares dispels without a dispel_spell", d.Name)
		}
		if _, dup := out.ByClass[spatial.ClassID(d.Class)]; dup {
			return fmt.Errorf("kits.json: duplicate class %d", d.Class)
		}
		out.ByClass[spatial.ClassID(d.Class)] = d
	}
	return nil
}

func parseResourceKind(s string) uint8 {
	switch s {
	case "mana":
		return 1
	case "rage":
		return 2
	case "energy":
		return 3
	case "focus":
		return 4
	case "runic":
		return 5
	case "combo":
		return 6
	case "chi":
		return 7
	case "holy_power":
		return 8
	case "essence":
		return 9
	case "runes":
		return 10
	default:
		return 0
	}
}

func loadDefensives(path string, out *DefensiveCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []DefensiveDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("defensives.json: %w", err)
	}
	out.ByClass = map[spatial.ClassID][]DefensiveDef{}
	for _, d := range defs {
		if d.Spell == 0 {
			return fmt.Errorf("defensives.json: class %d entry missing spell", d.Class)
		}
		if !validTiers[d.Tier] {
			return fmt.Errorf("defensives.json: spell %d unknown tier %q", d.Spell, d.Tier)
		}
		if d.HPMax < d.HPMin {
			return fmt.Errorf("defensives.json: spell %d hp window inverted", d.Spell)
		}
		cls := spatial.ClassID(d.Class)
		out.ByClass[cls] = append(out.ByClass[cls], d)
	}
	return nil
}

type dispelFile struct {
	Debuffs []dispelEntry `json:"debuffs"`
	Purge   []dispelEntry `json:"purge"`
}

type dispelEntry struct {
	Aura uint32 `json:"aura"`
	Band string `json:"band"`
}

func loadDispels(path string, out *DispelCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var f dispelFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("dispels.json: %w", err)
	}
	out.Debuffs = map[uint32]string{}
	for _, e := range f.Debuffs {
		if !validBands[e.Band] {
			return fmt.Errorf("dispels.json: aura %d unknown band %q", e.Aura, e.Band)
		}
		out.Debuffs[e.Aura] = e.Band
	}
	out.Purge = map[uint32]string{}
	for _, e := range f.Purge {
		if !validBands[e.Band] {
			return fmt.Errorf("dispels.json: purge aura %d unknown band %q", e.Aura, e.Band)
		}
		out.Purge[e.Aura] = e.Band
	}
	return nil
}

func loadRotations(dir string, out *RotationCatalog) error {
	out.BySpec = map[SpecKey]RotationDef{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".yaml") || strings.HasSuffix(e.Name(), ".yml") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return fmt.Errorf("rotations: no files in %s", dir)
	}

	var concat bytes.Buffer
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		var def RotationDef
		if err := yaml.Unmarshal(b, &def); err != nil {
			return fmt.Errorf("rotation %s: %w", filepath.Base(p), err)
		}
		if def.Class == 0 {
			return fmt.Errorf("rotation %s: missing class_id", filepath.Base(p))
		}
		if len(def.Abilities) == 0 {
			return fmt.Errorf("rotation %s: no abilities", filepath.Base(p))
		}
		for _, a := range def.Abilities {
			if a.Spell == 0 {
				return fmt.Errorf("rotation %s: ability with no spell", filepath.Base(p))
			}
			for _, w := range a.When {
				if err := CheckCondition(w); err != nil {
					return fmt.Errorf("rotation %s: spell %d: %w", filepath.Base(p), a.Spell, err)
				}
			}
		}
		key := SpecKey{Class: spatial.ClassID(def.Class), Spec: spatial.SpecID(def.Spec)}
		if _, dup := out.BySpec[key]; dup {
			return fmt.Errorf("rotation %s: duplicate class/spec %d/%d", filepath.Base(p), def.Class, def.Spec)
		}
		out.BySpec[key] = def
	}
	out.Digest = sha256Hex(concat.Bytes())
	return nil
}

// Condition vocabulary for rotation entries.
const (
	CondExecute       = "execute"        // target below execute health
	CondAOE           = "aoe"            // three or more enemies near target
	CondDotMissing    = "dot_missing"    // own DoT for this spell absent on target
	CondTargetCasting = "target_casting" // target has a cast in flight
	CondMeleeRange    = "melee_range"    // target within melee range

	condPrefixBuffMissing   = "buff_missing:"
	condPrefixResourceAbove = "resource_above:"
	condPrefixResourceBelow = "resource_below:"
)

// CheckCondition validates one `when` token at load time.
func CheckCondition(w string) error {
	switch w {
	case CondExecute, CondAOE, CondDotMissing, CondTargetCasting, CondMeleeRange:
		return nil
	}
	for _, pfx := range []string{condPrefixBuffMissing, condPrefixResourceAbove, condPrefixResourceBelow} {
		if strings.HasPrefix(w, pfx) {
			if _, err := strconv.ParseUint(strings.TrimPrefix(w, pfx), 10, 32); err != nil {
				return fmt.Errorf("condition %q: bad argument", w)
			}
			return nil
		}
	}
	return fmt.Errorf("unknown condition %q", w)
}

// SplitCondition returns the prefix form's name and numeric argument, or
// the bare condition with arg 0.
func SplitCondition(w string) (string, uint32) {
	for _, pfx := range []string{condPrefixBuffMissing, condPrefixResourceAbove, condPrefixResourceBelow} {
		if strings.HasPrefix(w, pfx) {
			n, _ := strconv.ParseUint(strings.TrimPrefix(w, pfx), 10, 32)
			return strings.TrimSuffix(pfx, ":"), uint32(n)
		}
	}
	return w, 0
}
