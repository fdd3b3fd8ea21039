// Package archive preserves a completed run's final snapshot under a
// stable directory so routine log rotation and cleanup never eat it.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"warband.ai/internal/persistence/snapshot"
)

type RunArchiveMeta struct {
	RealmID   string             `json:"realm_id"`
	EndTick   uint64             `json:"end_tick"`
	Agents    int                `json:"agents"`
	Groups    int                `json:"groups"`
	Snapshot  string             `json:"snapshot"`
	CreatedAt string             `json:"created_at"`
	Digests   snapshot.DigestsV1 `json:"digests"`
}

// ArchiveRunSnapshot copies a run's final snapshot into
// `dataDir/archives/run_<realm>_<NNNNNN>/` and writes a meta.json
// beside it. Returns archived=false for captures taken before the
// first boundary; those carry no state worth keeping.
func ArchiveRunSnapshot(dataDir, snapshotPath string, snap snapshot.SnapshotV1) (archivedPath string, archived bool, err error) {
	if snapshotPath == "" || snap.Header.Tick == 0 {
		return "", false, nil
	}

	archiveDir := filepath.Join(dataDir, "archives", fmt.Sprintf("run_%s_%06d", snap.Header.RealmID, snap.Header.Tick))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := RunArchiveMeta{
		RealmID:   snap.Header.RealmID,
		EndTick:   snap.Header.Tick,
		Agents:    len(snap.Agents),
		Groups:    len(snap.Groups),
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Digests:   snap.Digests,
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
