package protocol

import (
	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/orders"
)

// TickRecord is one JSONL line per host tick boundary: what the drain
// delivered and whether a decision round was dispatched.
type TickRecord struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	AtMS            int64  `json:"at_ms"`
	Delivered       int    `json:"delivered"`
	Duplicates      int    `json:"duplicates,omitempty"`
	Bands           [4]int `json:"bands"`
	Acks            [4]int `json:"acks"`
	Outcomes        int    `json:"outcomes,omitempty"`
	Agents          int    `json:"agents"`
	Skipped         bool   `json:"round_skipped,omitempty"`
}

// IntentRecord is one JSONL line per drained intent, flattened together
// with the host's verdict. Entity ids serialize as decimal strings so
// 64-bit ids survive consumers that parse JSON numbers as float64. The
// jsonschema tags feed cmd/schema, which regenerates
// schemas/intent.schema.json from this type.
type IntentRecord struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	AtMS            int64  `json:"at_ms"`

	Agent    string `json:"agent" jsonschema:"pattern=^[0-9]+$,description=Acting agent entity id as a decimal string"`
	Seq      uint64 `json:"seq,omitempty"`
	Kind     string `json:"kind" jsonschema:"enum=spell_cast,enum=spell_cancel,enum=move_to,enum=stop_moving,enum=interact,enum=use_item"`
	Priority uint8  `json:"priority"`

	Spell        uint32      `json:"spell,omitempty"`
	TargetMode   string      `json:"target_mode,omitempty" jsonschema:"enum=entity,enum=position,enum=self"`
	Target       string      `json:"target,omitempty" jsonschema:"pattern=^[0-9]+$"`
	Dest         *DestRecord `json:"dest,omitempty"`
	Item         uint32      `json:"item,omitempty"`
	CastItem     uint32      `json:"cast_item,omitempty"`
	GeneratePath bool        `json:"generate_path,omitempty"`

	Ack  string `json:"ack" jsonschema:"enum=accepted,enum=duplicate,enum=unknown_agent,enum=invalid_target"`
	Code string `json:"code,omitempty" jsonschema:"enum=E_DUPLICATE,enum=E_UNKNOWN_AGENT,enum=E_INVALID_TARGET,enum=E_INTERNAL"`
}

type DestRecord struct {
	Map uint32  `json:"map"`
	X   float32 `json:"x"`
	Y   float32 `json:"y"`
	Z   float32 `json:"z"`
}

// NewIntentRecord flattens one drained intent and its verdict into the
// logged wire shape.
func NewIntentRecord(tick uint64, atMS int64, it hostbridge.ActionIntent, ack hostbridge.Ack) IntentRecord {
	r := IntentRecord{
		Type:            TypeIntent,
		ProtocolVersion: Version,
		Tick:            tick,
		AtMS:            atMS,
		Agent:           it.Agent.String(),
		Seq:             it.Seq,
		Kind:            it.Kind.String(),
		Priority:        it.Priority,
		Spell:           it.Spell,
		TargetMode:      targetModeName(it.TargetMode),
		Item:            it.Item,
		CastItem:        it.CastItem,
		GeneratePath:    it.GeneratePath,
		Ack:             ack.String(),
		Code:            CodeForAck(ack),
	}
	if !it.Target.IsZero() {
		r.Target = it.Target.String()
	}
	if it.Kind == hostbridge.IntentMoveTo || it.TargetMode == hostbridge.TargetPosition {
		r.Dest = &DestRecord{Map: it.Dest.Map, X: it.Dest.X, Y: it.Dest.Y, Z: it.Dest.Z}
	}
	return r
}

func targetModeName(m hostbridge.TargetMode) string {
	switch m {
	case hostbridge.TargetEntity:
		return "entity"
	case hostbridge.TargetPosition:
		return "position"
	case hostbridge.TargetSelf:
		return "self"
	default:
		return ""
	}
}

// OutcomeRecord is one JSONL line per settled coordinator assignment.
type OutcomeRecord struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	AtMS            int64  `json:"at_ms"`
	Group           uint64 `json:"group,omitempty"`
	Kind            string `json:"kind"`
	Result          string `json:"result"`
	Agent           string `json:"agent"`
	Target          string `json:"target,omitempty"`
	Spell           uint32 `json:"spell,omitempty"`
}

func NewOutcomeRecord(o orders.Outcome) OutcomeRecord {
	r := OutcomeRecord{
		Type:            TypeOutcome,
		ProtocolVersion: Version,
		Tick:            o.Tick,
		AtMS:            o.AtMS,
		Group:           o.Group,
		Kind:            string(o.Kind),
		Result:          string(o.Result),
		Agent:           o.Agent.String(),
		Spell:           o.Spell,
	}
	if !o.Target.IsZero() {
		r.Target = o.Target.String()
	}
	return r
}
