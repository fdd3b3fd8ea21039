// Package arena is an in-memory demo host: a small authoritative world
// implementing the hostbridge contract, seeded from a scenario file. It
// exists so the server binary can soak the engine without an external
// game host, and so the end-to-end harness has a world to play in.
//
// Thread model: Step, EnqueueAction, BuildBatch, TakeEvents, AddAgent,
// and SetGroup are tick-thread only. The read-through registries, the
// clock, ObjectiveProgress, FindPath, InLineOfSight, and GroupRoster are
// safe from any goroutine; engine workers call them mid-round.
package arena

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/looplab/fsm"

	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/spatial"
)

// unitCast is a creature cast in flight.
type unitCast struct {
	spell   uint32
	target  spatial.EID
	startMS int64
	doneMS  int64
}

// unit is one spawned creature instance.
type unit struct {
	eid  spatial.EID
	tpl  *CreatureDef
	home spatial.Position
	pos  spatial.Position

	health int64
	target spatial.EID // current victim, zero when idle

	state *fsm.FSM // IDLE / ENGAGED / DEAD

	diedAtMS    int64
	nextMeleeMS int64
	nextCastMS  []int64 // parallel to tpl.Casts
	nextPulseMS []int64 // parallel to tpl.Pulses
	casting     *unitCast
	lockedUntil map[uint32]int64 // school mask -> interrupt lockout expiry
	looted      map[spatial.EID]bool
}

func newUnitFSM() *fsm.FSM {
	return fsm.NewFSM(
		"IDLE",
		fsm.Events{
			{Name: "engage", Src: []string{"IDLE"}, Dst: "ENGAGED"},
			{Name: "reset", Src: []string{"ENGAGED"}, Dst: "IDLE"},
			{Name: "die", Src: []string{"IDLE", "ENGAGED"}, Dst: "DEAD"},
			{Name: "respawn", Src: []string{"DEAD"}, Dst: "IDLE"},
		},
		fsm.Callbacks{},
	)
}

// agentCast is an agent cast in flight; instants never get here.
type agentCast struct {
	spell   uint32
	target  spatial.EID
	dest    spatial.Position
	mode    hostbridge.TargetMode
	item    uint32
	startMS int64
	doneMS  int64
}

type agentAura struct {
	id           uint32
	class        spatial.DispelClass
	bits         uint64
	expiryMS     int64
	tickDamage   int64
	nextTickMS   int64
	reductionPct float32
	caster       spatial.EID
}

// agentState is the arena-side body of one engine agent.
type agentState struct {
	eid       spatial.EID
	name      string
	class     spatial.ClassID
	spec      spatial.SpecID
	role      spatial.Role
	group     uint64
	pos       spatial.Position
	maxHealth int64
	health    int64
	resource  float32 // 0..100
	speedYPS  float32
	dead      bool
	diedAtMS  int64

	inCombat     bool
	lastCombatMS int64 // last time damage was dealt or taken

	moveTo  *spatial.Position
	casting *agentCast

	// Per-spell cooldowns are enforced host-side; the global cooldown is
	// left to the engine's own pacing.
	cooldowns map[uint32]int64

	buffs   []agentAura // positive, reductionPct matters
	debuffs []agentAura

	lastSeq uint64
	quests  []uint32
}

type objectState struct {
	eid       spatial.EID
	def       *ObjectDef
	pos       spatial.Position
	spawned   bool
	respawnMS int64
}

type fieldState struct {
	eid       spatial.EID
	def       *FieldDef
	pos       spatial.Position
	active    bool
	toggleMS  int64
	nextHitMS int64
}

type progressKey struct {
	agent spatial.EID
	quest uint32
	index int
}

// DamageTaken reports host-side damage applied to an agent, after
// mitigation. The server forwards these into the engine between steps.
type DamageTaken struct {
	Agent      spatial.EID
	Attacker   spatial.EID
	Amount     int64
	SchoolMask uint32
	Melee      bool
	AtMS       int64
}

// CombatChange reports an agent entering or leaving combat.
type CombatChange struct {
	Agent    spatial.EID
	InCombat bool
}

// Events is everything one step produced that the engine cares about.
type Events struct {
	Damage []DamageTaken
	Combat []CombatChange
	Kills  []spatial.EID // creatures that died this step
}

// Arena is the demo world. See the package doc for the thread model.
type Arena struct {
	scn    *Scenario
	tickMS int64
	clock  atomic.Int64

	// Immutable after New.
	abilityDefs  map[uint32]*AbilityDef
	abilityInfos map[uint32]hostbridge.AbilityInfo
	creatureInfo map[uint32]hostbridge.CreatureInfo
	questInfos   map[uint32]hostbridge.QuestInfo
	itemEffects  map[uint32][]hostbridge.ItemEffect
	givers       []hostbridge.QuestGiver

	nextEID uint64

	units      map[spatial.EID]*unit
	unitOrder  []spatial.EID
	agents     map[spatial.EID]*agentState
	agentOrder []spatial.EID
	objects    map[spatial.EID]*objectState
	objOrder   []spatial.EID
	fields     []*fieldState

	groupMu sync.RWMutex
	groups  map[uint64][]spatial.EID

	progressMu sync.RWMutex
	progress   map[progressKey]uint32

	events Events
}

// New builds the world from a validated scenario. Spawn jitter comes from
// the seed; two arenas with the same scenario and seed are identical.
func New(scn *Scenario, seed int64, tickMS int) *Arena {
	if tickMS <= 0 {
		tickMS = 50
	}
	a := &Arena{
		scn:          scn,
		tickMS:       int64(tickMS),
		abilityDefs:  map[uint32]*AbilityDef{},
		abilityInfos: map[uint32]hostbridge.AbilityInfo{},
		creatureInfo: map[uint32]hostbridge.CreatureInfo{},
		questInfos:   map[uint32]hostbridge.QuestInfo{},
		itemEffects:  map[uint32][]hostbridge.ItemEffect{},
		nextEID:      1 << 20,
		units:        map[spatial.EID]*unit{},
		agents:       map[spatial.EID]*agentState{},
		objects:      map[spatial.EID]*objectState{},
		groups:       map[uint64][]spatial.EID{},
		progress:     map[progressKey]uint32{},
	}

	for i := range scn.Abilities {
		def := &scn.Abilities[i]
		a.abilityDefs[def.Spell] = def
		a.abilityInfos[def.Spell] = abilityInfoOf(def)
	}
	templates := map[uint32]*CreatureDef{}
	for i := range scn.Creatures {
		tpl := &scn.Creatures[i]
		templates[tpl.Entry] = tpl
		class, _ := parseUnitClass(tpl.Class)
		rank, _ := parseRank(tpl.Rank)
		a.creatureInfo[tpl.Entry] = hostbridge.CreatureInfo{
			Entry:    tpl.Entry,
			Name:     tpl.Name,
			Class:    class,
			Rank:     rank,
			Faction:  tpl.Faction,
			LevelMin: tpl.LevelMin,
			LevelMax: tpl.LevelMax,
		}
	}
	for i := range scn.Quests {
		q := &scn.Quests[i]
		a.questInfos[q.ID] = questInfoOf(q, scn.Map)
	}
	for _, it := range scn.Items {
		if it.Spell == 0 {
			continue // inert quest item, nothing to cast
		}
		a.itemEffects[it.ID] = []hostbridge.ItemEffect{{
			Item:           it.ID,
			Spell:          it.Spell,
			RequiresTarget: it.RequiresTarget,
			RangeYards:     it.RangeYards,
		}}
	}
	for _, g := range scn.QuestGivers {
		a.givers = append(a.givers, hostbridge.QuestGiver{
			Entry:   g.Entry,
			Pos:     spatial.Position{Map: scn.Map, X: g.X, Y: g.Y, Z: g.Z},
			Faction: g.Faction,
			Quests:  append([]uint32(nil), g.Quests...),
		})
	}

	rng := rand.New(rand.NewSource(seed))
	for _, sp := range scn.Spawns {
		tpl := templates[sp.Entry]
		count := sp.Count
		if count <= 0 {
			count = 1
		}
		for i := 0; i < count; i++ {
			pos := spatial.Position{Map: scn.Map, X: sp.X, Y: sp.Y, Z: sp.Z}
			if sp.Spread > 0 {
				pos.X += (rng.Float32()*2 - 1) * sp.Spread
				pos.Y += (rng.Float32()*2 - 1) * sp.Spread
			}
			a.spawnUnit(tpl, pos)
		}
	}
	for i := range scn.Objects {
		def := &scn.Objects[i]
		eid := a.allocEID()
		a.objects[eid] = &objectState{
			eid:     eid,
			def:     def,
			pos:     spatial.Position{Map: scn.Map, X: def.X, Y: def.Y, Z: def.Z},
			spawned: true,
		}
		a.objOrder = append(a.objOrder, eid)
	}
	for i := range scn.Fields {
		def := &scn.Fields[i]
		a.fields = append(a.fields, &fieldState{
			eid:      a.allocEID(),
			def:      def,
			pos:      spatial.Position{Map: scn.Map, X: def.X, Y: def.Y, Z: def.Z},
			active:   true,
			toggleMS: def.ActiveMS,
		})
	}
	return a
}

func (a *Arena) allocEID() spatial.EID {
	a.nextEID++
	return spatial.EID(a.nextEID)
}

func (a *Arena) spawnUnit(tpl *CreatureDef, pos spatial.Position) *unit {
	u := &unit{
		eid:         a.allocEID(),
		tpl:         tpl,
		home:        pos,
		pos:         pos,
		health:      tpl.MaxHealth,
		state:       newUnitFSM(),
		nextCastMS:  make([]int64, len(tpl.Casts)),
		nextPulseMS: make([]int64, len(tpl.Pulses)),
		lockedUntil: map[uint32]int64{},
	}
	a.units[u.eid] = u
	a.unitOrder = append(a.unitOrder, u.eid)
	return u
}

// Scenario returns the seed data the arena was built from.
func (a *Arena) Scenario() *Scenario { return a.scn }

// AgentSeed registers one engine agent's body in the world.
type AgentSeed struct {
	EID          spatial.EID
	Name         string
	Class        spatial.ClassID
	Spec         spatial.SpecID
	Role         spatial.Role
	Group        uint64
	Pos          spatial.Position
	MaxHealth    int64
	MoveSpeedYPS float32
	Quests       []uint32
}

func (a *Arena) AddAgent(seed AgentSeed) error {
	if seed.EID.IsZero() {
		return fmt.Errorf("arena: agent eid 0")
	}
	if _, dup := a.agents[seed.EID]; dup {
		return fmt.Errorf("arena: agent %s already present", seed.EID)
	}
	if seed.MaxHealth <= 0 {
		seed.MaxHealth = 5000
	}
	if seed.MoveSpeedYPS <= 0 {
		seed.MoveSpeedYPS = 7
	}
	if seed.Pos.Map == 0 {
		seed.Pos.Map = a.scn.Map
	}
	ag := &agentState{
		eid:       seed.EID,
		name:      seed.Name,
		class:     seed.Class,
		spec:      seed.Spec,
		role:      seed.Role,
		group:     seed.Group,
		pos:       seed.Pos,
		maxHealth: seed.MaxHealth,
		health:    seed.MaxHealth,
		resource:  100,
		speedYPS:  seed.MoveSpeedYPS,
		cooldowns: map[uint32]int64{},
		quests:    append([]uint32(nil), seed.Quests...),
	}
	a.agents[seed.EID] = ag
	a.agentOrder = append(a.agentOrder, seed.EID)
	if seed.Group != 0 {
		a.groupMu.Lock()
		a.groups[seed.Group] = append(a.groups[seed.Group], seed.EID)
		a.groupMu.Unlock()
	}
	return nil
}

// SetGroup replaces a group's roster.
func (a *Arena) SetGroup(group uint64, members []spatial.EID) {
	a.groupMu.Lock()
	a.groups[group] = append([]spatial.EID(nil), members...)
	a.groupMu.Unlock()
	for _, eid := range members {
		if ag, ok := a.agents[eid]; ok {
			ag.group = group
		}
	}
}

// TakeEvents drains everything accumulated since the previous call.
func (a *Arena) TakeEvents() Events {
	ev := a.events
	a.events = Events{}
	return ev
}

// ---- hostbridge.Host ----

func (a *Arena) NowMS() int64 { return a.clock.Load() }

func (a *Arena) ObjectiveProgress(agent spatial.EID, quest uint32, index int) uint32 {
	a.progressMu.RLock()
	defer a.progressMu.RUnlock()
	return a.progress[progressKey{agent: agent, quest: quest, index: index}]
}

func (a *Arena) AbilityInfo(spell uint32) (hostbridge.AbilityInfo, bool) {
	info, ok := a.abilityInfos[spell]
	return info, ok
}

func (a *Arena) CreatureInfo(entry uint32) (hostbridge.CreatureInfo, bool) {
	info, ok := a.creatureInfo[entry]
	return info, ok
}

func (a *Arena) QuestInfo(quest uint32) (hostbridge.QuestInfo, bool) {
	info, ok := a.questInfos[quest]
	return info, ok
}

func (a *Arena) ItemEffects(item uint32) []hostbridge.ItemEffect {
	return a.itemEffects[item]
}

func (a *Arena) QuestGivers() []hostbridge.QuestGiver { return a.givers }

// FindPath walks a straight segmented line; the arena has no occluders.
func (a *Arena) FindPath(agent spatial.EID, from, to spatial.Position, opts hostbridge.PathOptions) ([]spatial.Position, error) {
	if from.Map != to.Map {
		return nil, hostbridge.ErrNoPath
	}
	length := from.DistanceTo(to)
	if opts.MaxLengthYards > 0 && length > float64(opts.MaxLengthYards) {
		if !opts.ForceDestination {
			return nil, hostbridge.ErrPathTooLong
		}
		// Partial path: cut the line at the budget.
		frac := float64(opts.MaxLengthYards) / length
		to = lerpPos(from, to, frac)
		length = from.DistanceTo(to)
	}

	const segmentYards = 10.0
	path := make([]spatial.Position, 0, int(length/segmentYards)+1)
	for d := segmentYards; d < length; d += segmentYards {
		path = append(path, lerpPos(from, to, d/length))
	}
	path = append(path, to)
	return path, nil
}

// InLineOfSight always holds within a map; the arena is an open field.
func (a *Arena) InLineOfSight(from, to spatial.Position) bool {
	return from.Map == to.Map
}

func (a *Arena) GroupRoster(group uint64) []spatial.EID {
	a.groupMu.RLock()
	defer a.groupMu.RUnlock()
	members := a.groups[group]
	out := make([]spatial.EID, len(members))
	copy(out, members)
	return out
}

func lerpPos(from, to spatial.Position, t float64) spatial.Position {
	return spatial.Position{
		Map: from.Map,
		X:   from.X + float32(t)*(to.X-from.X),
		Y:   from.Y + float32(t)*(to.Y-from.Y),
		Z:   from.Z + float32(t)*(to.Z-from.Z),
	}
}

func abilityInfoOf(def *AbilityDef) hostbridge.AbilityInfo {
	effects, _ := parseEffects(def.Effects)
	var cost hostbridge.ResourceCost
	if def.CostKind != "" {
		cost = hostbridge.ResourceCost{
			Kind:   hostbridge.ResourceKind(resourceKindID(def.CostKind)),
			Amount: def.CostAmount,
		}
	}
	return hostbridge.AbilityInfo{
		Spell:         def.Spell,
		Name:          def.Name,
		CastTimeMS:    def.CastTimeMS,
		CooldownMS:    def.CooldownMS,
		GCDMS:         def.GCDMS,
		RangeYards:    def.RangeYards,
		SchoolMask:    def.SchoolMask,
		Cost:          cost,
		Positive:      def.Positive,
		Effects:       effects,
		Interruptible: def.Interruptible,
		LockoutMS:     def.LockoutMS,
		AOERadius:     def.AOERadius,
	}
}

func questInfoOf(q *QuestDef, mapID uint32) hostbridge.QuestInfo {
	info := hostbridge.QuestInfo{
		Quest:      q.ID,
		Title:      q.Title,
		QuestLevel: q.QuestLevel,
		LevelMin:   q.LevelMin,
		StartItem:  q.StartItem,
	}
	for _, o := range q.Objectives {
		kind, _ := parseObjectiveKind(o.Kind)
		source, _ := parseItemSource(o.Source)
		info.Objectives = append(info.Objectives, hostbridge.QuestObjectiveInfo{
			Kind:          kind,
			Required:      o.Required,
			CreatureEntry: o.Creature,
			ObjectEntry:   o.Object,
			Item:          o.Item,
			Source:        source,
			Area:          spatial.Position{Map: mapID, X: o.X, Y: o.Y, Z: o.Z},
			AreaRadius:    o.AreaRadius,
		})
	}
	return info
}

func resourceKindID(kind string) uint8 {
	switch kind {
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
