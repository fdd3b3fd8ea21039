package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"warband.ai/internal/logging"
	"warband.ai/internal/persistence/indexdb"
	"warband.ai/internal/sim/bots"
	"warband.ai/internal/sim/catalogs"
	"warband.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	bots.TickLogger
	bots.OutcomeLogger
	Close() error
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordResolverStats(tick uint64, sites []bots.ResolverSiteStats)
}

func openRuntimeIndex(realmDir, realmID string, disableDB bool, log logging.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("WB_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(realmDir, "index", "engine.sqlite")
		return indexdb.OpenSQLite(dbPath)
	case "http":
		endpoint := strings.TrimSpace(os.Getenv("WB_INDEX_INGEST_URL"))
		token := strings.TrimSpace(os.Getenv("WB_INDEX_TOKEN"))
		if endpoint == "" {
			return nil, fmt.Errorf("WB_INDEX_BACKEND=http but WB_INDEX_INGEST_URL is empty")
		}
		flushMS := envInt("WB_INDEX_FLUSH_MS", 500)
		batchSize := envInt("WB_INDEX_BATCH_SIZE", 128)
		idx, err := indexdb.OpenHTTP(indexdb.HTTPConfig{
			Endpoint:      endpoint,
			Token:         token,
			RealmID:       realmID,
			BatchSize:     batchSize,
			FlushInterval: time.Duration(flushMS) * time.Millisecond,
			Logger:        log,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported WB_INDEX_BACKEND: %s", backend)
	}
}
