package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"warband.ai/internal/persistence/snapshot"
)

func TestArchiveRunSnapshot_CopiesFinalSnapshot(t *testing.T) {
	dataDir := t.TempDir()

	src := filepath.Join(dataDir, "snapshots", "001200.snap.zst")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("mkdir snapshots: %v", err)
	}
	want := []byte("dummy")
	if err := os.WriteFile(src, want, 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	snap := snapshot.SnapshotV1{
		Header:  snapshot.Header{Version: 1, RealmID: "realm_1", Tick: 1200},
		Agents:  []snapshot.AgentV1{{EID: 101}, {EID: 102}},
		Groups:  []snapshot.GroupV1{{Group: 9, Members: 2}},
		Digests: snapshot.DigestsV1{Kits: "aa", Defensives: "bb", Dispels: "cc", Rotations: "dd"},
	}

	archivedPath, ok, err := ArchiveRunSnapshot(dataDir, src, snap)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !ok {
		t.Fatalf("expected archived=true")
	}

	got, err := os.ReadFile(archivedPath)
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("archived content mismatch: got=%q want=%q", string(got), string(want))
	}

	metaPath := filepath.Join(filepath.Dir(archivedPath), "meta.json")
	b, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatalf("expected meta.json to exist: %v", err)
	}
	var meta RunArchiveMeta
	if err := json.Unmarshal(b, &meta); err != nil {
		t.Fatalf("meta.json: %v", err)
	}
	if meta.RealmID != "realm_1" || meta.EndTick != 1200 || meta.Agents != 2 || meta.Groups != 1 {
		t.Fatalf("meta mismatch: %+v", meta)
	}
	if meta.Digests.Kits != "aa" {
		t.Fatalf("meta digests mismatch: %+v", meta.Digests)
	}
}

func TestArchiveRunSnapshot_SkipsEmptyRuns(t *testing.T) {
	dataDir := t.TempDir()
	_, ok, err := ArchiveRunSnapshot(dataDir, "whatever.snap.zst", snapshot.SnapshotV1{
		Header: snapshot.Header{Version: 1, RealmID: "realm_1", Tick: 0},
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if ok {
		t.Fatalf("tick-0 capture should not archive")
	}
}
