package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"warband.ai/internal/sim/bots"
	"warband.ai/internal/sim/catalogs"
	"warband.ai/internal/sim/orders"
	"warband.ai/internal/sim/tuning"
)

func TestSQLiteIndex_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}

	if err := idx.WriteTick(bots.TickLogEntry{
		Tick:       42,
		AtMS:       1_000_000,
		Delivered:  10,
		Duplicates: 1,
		Acks:       [4]int{8, 1, 0, 1},
		Outcomes:   2,
		Agents:     50,
	}); err != nil {
		t.Fatalf("WriteTick: %v", err)
	}
	_ = idx.WriteOutcome(orders.Outcome{
		Tick: 42, AtMS: 1_000_000, Group: 9,
		Kind: orders.AssignInterrupt, Result: orders.ResultFulfilled,
		Agent: 101, Target: 9001, Spell: 6552,
	})
	_ = idx.WriteOutcome(orders.Outcome{
		Tick: 42, AtMS: 1_000_000, Group: 9,
		Kind: orders.AssignDispel, Result: orders.ResultExpired,
		Agent: 102, Target: 103,
	})
	idx.RecordResolverStats(42, []bots.ResolverSiteStats{
		{Site: "healing.target", OK: 90, Fail: 3},
	})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var (
		delivered int
		rejected  int
		agents    int
	)
	row := db.QueryRow(`SELECT delivered,rejected,agents FROM ticks WHERE tick=42`)
	if err := row.Scan(&delivered, &rejected, &agents); err != nil {
		t.Fatalf("ticks scan: %v", err)
	}
	if delivered != 10 || rejected != 1 || agents != 50 {
		t.Fatalf("ticks row mismatch: delivered=%d rejected=%d agents=%d", delivered, rejected, agents)
	}

	rows, err := db.Query(`SELECT seq,kind,result,agent,target FROM outcomes WHERE tick=42 ORDER BY seq`)
	if err != nil {
		t.Fatalf("outcomes query: %v", err)
	}
	defer rows.Close()
	type outRow struct {
		seq                         int
		kind, result, agent, target string
	}
	var got []outRow
	for rows.Next() {
		var r outRow
		if err := rows.Scan(&r.seq, &r.kind, &r.result, &r.agent, &r.target); err != nil {
			t.Fatalf("outcomes scan: %v", err)
		}
		got = append(got, r)
	}
	if len(got) != 2 {
		t.Fatalf("outcomes rows = %d, want 2", len(got))
	}
	if got[0].seq != 0 || got[0].kind != "INTERRUPT" || got[0].result != "FULFILLED" || got[0].agent != "101" || got[0].target != "9001" {
		t.Fatalf("outcome 0 mismatch: %+v", got[0])
	}
	if got[1].seq != 1 || got[1].kind != "DISPEL" || got[1].result != "EXPIRED" {
		t.Fatalf("outcome 1 mismatch: %+v", got[1])
	}

	var ok, fail int64
	row = db.QueryRow(`SELECT ok,fail FROM resolver_sites WHERE tick=42 AND site='healing.target'`)
	if err := row.Scan(&ok, &fail); err != nil {
		t.Fatalf("resolver scan: %v", err)
	}
	if ok != 90 || fail != 3 {
		t.Fatalf("resolver row mismatch: ok=%d fail=%d", ok, fail)
	}
}

func TestSQLiteIndex_UpsertCatalogs(t *testing.T) {
	dir := t.TempDir()
	idx, err := OpenSQLite(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}

	cats := &catalogs.Catalogs{
		Rotations: catalogs.RotationCatalog{
			BySpec: map[catalogs.SpecKey]catalogs.RotationDef{
				{Class: 1, Spec: 1}: {Class: 1, Spec: 1, Name: "Arms", Abilities: []catalogs.RotationAbility{{Spell: 12294}}},
			},
			Digest: "feedface",
		},
	}
	if err := idx.UpsertCatalogs("", cats, tuning.Default()); err != nil {
		t.Fatalf("UpsertCatalogs: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM catalogs WHERE name IN ('rotations','tuning')`).Scan(&n); err != nil {
		t.Fatalf("catalogs count: %v", err)
	}
	if n != 2 {
		t.Fatalf("catalog rows = %d, want 2", n)
	}

	var schemaVersion string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='schema_version'`).Scan(&schemaVersion); err != nil {
		t.Fatalf("meta scan: %v", err)
	}
	if schemaVersion != "1" {
		t.Fatalf("schema_version = %q, want 1", schemaVersion)
	}
}
