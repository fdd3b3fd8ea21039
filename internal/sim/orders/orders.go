// Package orders holds the plain order and outcome records shared by the
// engine core, the persistence index, and the observer stream.
package orders

import "warband.ai/internal/sim/spatial"

type SubGoalKind string

const (
	SubGoalEngage      SubGoalKind = "ENGAGE"
	SubGoalInteract    SubGoalKind = "INTERACT"
	SubGoalUseItemOn   SubGoalKind = "USE_ITEM_ON"
	SubGoalNavigate    SubGoalKind = "NAVIGATE"
	SubGoalLoot        SubGoalKind = "LOOT"
	SubGoalFindGiver   SubGoalKind = "FIND_GIVER"
)

// SubGoal is the routed next step for one quest objective.
type SubGoal struct {
	Kind      SubGoalKind
	Quest     uint32
	Objective int

	// ENGAGE / LOOT
	CreatureEntry uint32
	// INTERACT / USE_ITEM_ON
	ObjectEntry uint32
	Item        uint32
	// NAVIGATE / FIND_GIVER
	Dest   spatial.Position
	Radius float32

	IssuedTick uint64
}

type AssignmentKind string

const (
	AssignInterrupt AssignmentKind = "INTERRUPT"
	AssignDispel    AssignmentKind = "DISPEL"
	AssignExternal  AssignmentKind = "EXTERNAL_DEFENSIVE"
)

type Result string

const (
	ResultFulfilled Result = "FULFILLED"
	ResultMissed    Result = "MISSED"
	ResultExpired   Result = "EXPIRED"
)

// Outcome records how one coordinator assignment ended.
type Outcome struct {
	Tick   uint64
	AtMS   int64
	Group  uint64
	Kind   AssignmentKind
	Result Result
	Agent  spatial.EID
	Target spatial.EID
	Spell  uint32
}
