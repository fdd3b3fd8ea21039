package hostbridge

import "warband.ai/internal/sim/spatial"

// IntentKind discriminates the ActionIntent union.
type IntentKind uint8

const (
	IntentSpellCast IntentKind = iota + 1
	IntentSpellCancel
	IntentMoveTo
	IntentStopMoving
	IntentInteract
	IntentUseItem
)

func (k IntentKind) String() string {
	switch k {
	case IntentSpellCast:
		return "spell_cast"
	case IntentSpellCancel:
		return "spell_cancel"
	case IntentMoveTo:
		return "move_to"
	case IntentStopMoving:
		return "stop_moving"
	case IntentInteract:
		return "interact"
	case IntentUseItem:
		return "use_item"
	default:
		return "unknown"
	}
}

type TargetMode uint8

const (
	TargetNone TargetMode = iota
	TargetEntity
	TargetPosition
	TargetSelf
)

// ActionIntent is the only thing that crosses the worker→tick boundary.
// It is a tagged union: Kind selects which fields are meaningful.
//
//	SpellCast:   Spell, TargetMode (+Target or Dest), CastItem
//	SpellCancel: Spell (hint, 0 = whatever is casting)
//	MoveTo:      Dest, GeneratePath
//	StopMoving:  -
//	Interact:    Target
//	UseItem:     Item, TargetMode (+Target or Dest)
type ActionIntent struct {
	Agent    spatial.EID
	Kind     IntentKind
	Priority uint8 // movement/queue band, see actionq
	StampMS  int64 // worker clock at emission
	Seq      uint64 // per-agent emission counter, reconciles acks

	Spell        uint32
	TargetMode   TargetMode
	Target       spatial.EID
	Dest         spatial.Position
	CastItem     uint32
	Item         uint32
	GeneratePath bool
}

// Ack is the host's verdict on one drained intent.
type Ack uint8

const (
	AckAccepted Ack = iota
	AckDuplicate
	AckUnknownAgent
	AckInvalidTarget
)

func (a Ack) String() string {
	switch a {
	case AckAccepted:
		return "accepted"
	case AckDuplicate:
		return "duplicate"
	case AckUnknownAgent:
		return "unknown_agent"
	case AckInvalidTarget:
		return "invalid_target"
	default:
		return "unknown"
	}
}
