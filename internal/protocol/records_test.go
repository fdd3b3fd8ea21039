package protocol

import (
	"encoding/json"
	"testing"

	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/orders"
	"warband.ai/internal/sim/spatial"
)

func TestNewIntentRecordSpellCast(t *testing.T) {
	it := hostbridge.ActionIntent{
		Agent:      spatial.EID(1) << 60,
		Kind:       hostbridge.IntentSpellCast,
		Priority:   40,
		Seq:        7,
		Spell:      6552,
		TargetMode: hostbridge.TargetEntity,
		Target:     9001,
	}
	r := NewIntentRecord(120, 5_000, it, hostbridge.AckAccepted)

	if r.Type != TypeIntent || r.ProtocolVersion != Version {
		t.Fatalf("bad framing: %+v", r)
	}
	if r.Agent != "1152921504606846976" {
		t.Fatalf("agent id not decimal: %q", r.Agent)
	}
	if r.Kind != "spell_cast" || r.TargetMode != "entity" || r.Target != "9001" {
		t.Fatalf("bad targeting: %+v", r)
	}
	if r.Dest != nil {
		t.Fatalf("entity cast should carry no dest")
	}
	if r.Ack != "accepted" || r.Code != "" {
		t.Fatalf("accepted verdict should carry no code: %+v", r)
	}
}

func TestNewIntentRecordMoveCarriesDest(t *testing.T) {
	it := hostbridge.ActionIntent{
		Agent:        3,
		Kind:         hostbridge.IntentMoveTo,
		Priority:     20,
		Dest:         spatial.Position{Map: 1, X: 10, Y: -4, Z: 0.5},
		GeneratePath: true,
	}
	r := NewIntentRecord(5, 250, it, hostbridge.AckInvalidTarget)

	if r.Dest == nil || r.Dest.Map != 1 || r.Dest.X != 10 || r.Dest.Y != -4 || r.Dest.Z != 0.5 {
		t.Fatalf("dest not carried: %+v", r.Dest)
	}
	if !r.GeneratePath {
		t.Fatalf("generate_path dropped")
	}
	if r.Target != "" {
		t.Fatalf("zero target should be omitted, got %q", r.Target)
	}
	if r.Ack != "invalid_target" || r.Code != ErrInvalidTarget {
		t.Fatalf("verdict mapping wrong: ack=%q code=%q", r.Ack, r.Code)
	}
}

func TestIntentRecordRoutesByType(t *testing.T) {
	r := NewIntentRecord(1, 1, hostbridge.ActionIntent{
		Agent: 2, Kind: hostbridge.IntentStopMoving, Priority: 30,
	}, hostbridge.AckAccepted)
	raw, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	base, err := DecodeBase(raw)
	if err != nil {
		t.Fatalf("decode base: %v", err)
	}
	if base.Type != TypeIntent || base.ProtocolVersion != Version {
		t.Fatalf("base routing broken: %+v", base)
	}
}

func TestNewOutcomeRecord(t *testing.T) {
	r := NewOutcomeRecord(orders.Outcome{
		Tick:   44,
		AtMS:   2_200,
		Group:  7,
		Kind:   orders.AssignInterrupt,
		Result: orders.ResultFulfilled,
		Agent:  12,
		Target: 9001,
		Spell:  6552,
	})
	if r.Type != TypeOutcome || r.Kind != "INTERRUPT" || r.Result != "FULFILLED" {
		t.Fatalf("bad outcome record: %+v", r)
	}
	if r.Agent != "12" || r.Target != "9001" {
		t.Fatalf("ids not decimal strings: %+v", r)
	}
}
