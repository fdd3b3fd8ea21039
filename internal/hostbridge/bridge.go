// Package hostbridge is the contract between the agent engine and the host
// world runtime. The engine owns no world state: everything it knows about
// the world arrives either through snapshot publication at the tick
// boundary or through the read-through registries here, and everything it
// does to the world leaves as an ActionIntent.
package hostbridge

import (
	"errors"

	"warband.ai/internal/sim/spatial"
)

// Clock is the host's monotonic millisecond clock. Implementations must be
// safe for concurrent use; workers stamp intents from it.
type Clock interface {
	NowMS() int64
}

// ActionSink receives drained intents on the tick thread, one host call
// per intent.
type ActionSink interface {
	EnqueueAction(intent ActionIntent) Ack
}

// ObjectiveSource reports per-objective progress counters. Counters are
// monotonically non-decreasing for a given (agent, quest, index).
type ObjectiveSource interface {
	ObjectiveProgress(agent spatial.EID, quest uint32, index int) uint32
}

// AbilityRegistry resolves spell metadata. Nothing is cached or persisted
// engine-side beyond the current tick; every lookup is a read-through.
type AbilityRegistry interface {
	AbilityInfo(spell uint32) (AbilityInfo, bool)
}

type BestiaryRegistry interface {
	CreatureInfo(entry uint32) (CreatureInfo, bool)
}

type QuestRegistry interface {
	QuestInfo(quest uint32) (QuestInfo, bool)
}

// ItemRegistry resolves on-use effects, primarily for "use quest item on
// target" objectives.
type ItemRegistry interface {
	ItemEffects(item uint32) []ItemEffect
}

// QuestGiverSource enumerates quest-giver spawns for hub clustering. The
// engine calls it once at startup.
type QuestGiverSource interface {
	QuestGivers() []QuestGiver
}

var (
	ErrNoPath      = errors.New("no path found")
	ErrPathTooLong = errors.New("path too long")
)

type PathOptions struct {
	// MaxLengthYards rejects paths whose summed segment length exceeds it.
	// A path of exactly this length is accepted. Zero means unlimited.
	MaxLengthYards float32
	// ForceDestination asks the navmesh for a best-effort partial path
	// ending as close to the destination as possible.
	ForceDestination bool
}

// Pathfinder wraps the host navmesh. Returned waypoints include the
// destination as the final element on success.
type Pathfinder interface {
	FindPath(agent spatial.EID, from, to spatial.Position, opts PathOptions) ([]spatial.Position, error)
}

// Host is everything the engine needs from the world runtime. Snapshot
// publication is not part of this interface: the host hands entity batches
// directly to the engine's tick entry point.
type Host interface {
	Clock
	ActionSink
	ObjectiveSource
	AbilityRegistry
	BestiaryRegistry
	QuestRegistry
	ItemRegistry
	QuestGiverSource
	Pathfinder
}

// QuestGiver is one quest-giving NPC spawn.
type QuestGiver struct {
	Entry   uint32
	Pos     spatial.Position
	Faction uint32
	Quests  []uint32
}
