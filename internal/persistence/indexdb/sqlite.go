// Package indexdb mirrors the engine's JSONL streams into queryable
// form: a local SQLite file for the admin CLI, and optionally a remote
// HTTP ingest for fleet-wide dashboards. Both are lossy by contract;
// the JSONL logs remain the source of truth.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"warband.ai/internal/sim/bots"
	"warband.ai/internal/sim/catalogs"
	"warband.ai/internal/sim/orders"
	"warband.ai/internal/sim/tuning"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropOutcome  atomic.Uint64
	dropResolver atomic.Uint64
}

// Stats is a point-in-time view of the indexer queue.
type Stats struct {
	QueueDepth    int
	QueueCapacity int

	DropTickTotal     uint64
	DropOutcomeTotal  uint64
	DropResolverTotal uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqOutcome
	reqResolver
)

type req struct {
	kind reqKind

	tick     bots.TickLogEntry
	outcome  orders.Outcome
	resolver resolverRow
}

type resolverRow struct {
	Tick  uint64
	Sites []bots.ResolverSiteStats
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// High buffer: a raid wipe settles a burst of assignment
		// outcomes in one boundary; that must never stall the engine.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			at_ms INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			delivered INTEGER NOT NULL,
			duplicates INTEGER NOT NULL,
			rejected INTEGER NOT NULL,
			outcomes INTEGER NOT NULL,
			round_skipped INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			at_ms INTEGER NOT NULL,
			grp INTEGER NOT NULL,
			kind TEXT NOT NULL,
			result TEXT NOT NULL,
			agent TEXT NOT NULL,
			target TEXT NOT NULL,
			spell INTEGER NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_agent_tick ON outcomes(agent, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_kind_result ON outcomes(kind, result);`,
		`CREATE TABLE IF NOT EXISTS resolver_sites (
			tick INTEGER NOT NULL,
			site TEXT NOT NULL,
			ok INTEGER NOT NULL,
			fail INTEGER NOT NULL,
			PRIMARY KEY (tick, site)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	st := Stats{
		DropTickTotal:     s.dropTick.Load(),
		DropOutcomeTotal:  s.dropOutcome.Load(),
		DropResolverTotal: s.dropResolver.Load(),
	}
	if s.ch != nil {
		st.QueueDepth = len(s.ch)
		st.QueueCapacity = cap(s.ch)
	}
	return st
}

func (s *SQLiteIndex) WriteTick(entry bots.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteOutcome(o orders.Outcome) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqOutcome, outcome: o}:
	default:
		s.dropOutcome.Add(1)
	}
	return nil
}

// RecordResolverStats snapshots the lookup-chain counters at a tick.
// Called on the diagnostics cadence, not every boundary.
func (s *SQLiteIndex) RecordResolverStats(tick uint64, sites []bots.ResolverSiteStats) {
	if s == nil || s.closed.Load() || len(sites) == 0 {
		return
	}
	select {
	case s.ch <- req{kind: reqResolver, resolver: resolverRow{Tick: tick, Sites: sites}}:
	default:
		s.dropResolver.Add(1)
	}
}

func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil || cats == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	// Raw json for file-backed catalogs.
	raw := map[string][]byte{}
	read := func(name, path string) {
		b, err := os.ReadFile(path)
		if err != nil {
			return
		}
		raw[name] = b
	}
	if configDir != "" {
		read("kits", filepath.Join(configDir, "kits.json"))
		read("defensives", filepath.Join(configDir, "defensives.json"))
		read("dispels", filepath.Join(configDir, "dispels.json"))
	}

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b := raw["kits"]; len(b) > 0 {
		rows = append(rows, kv{name: "kits", digest: cats.Kits.Digest, json: b})
	}
	if b := raw["defensives"]; len(b) > 0 {
		rows = append(rows, kv{name: "defensives", digest: cats.Defensives.Digest, json: b})
	}
	if b := raw["dispels"]; len(b) > 0 {
		rows = append(rows, kv{name: "dispels", digest: cats.Dispels.Digest, json: b})
	}
	{
		// Rotations span many YAML files; canonicalize to stable JSON
		// for easier querying.
		keys := make([]catalogs.SpecKey, 0, len(cats.Rotations.BySpec))
		for k := range cats.Rotations.BySpec {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].Class != keys[j].Class {
				return keys[i].Class < keys[j].Class
			}
			return keys[i].Spec < keys[j].Spec
		})
		rots := make([]catalogs.RotationDef, 0, len(keys))
		for _, k := range keys {
			rots = append(rots, cats.Rotations.BySpec[k])
		}
		if b, _ := json.Marshal(rots); len(b) > 0 {
			rows = append(rows, kv{name: "rotations", digest: cats.Rotations.Digest, json: b})
		}
	}
	{
		// Tuning: store the values we actually apply (canonical JSON).
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,at_ms,agents,delivered,duplicates,rejected,outcomes,round_skipped,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertOutcome, _ := s.db.Prepare(`INSERT OR REPLACE INTO outcomes(tick,seq,at_ms,grp,kind,result,agent,target,spell) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertResolver, _ := s.db.Prepare(`INSERT OR REPLACE INTO resolver_sites(tick,site,ok,fail) VALUES(?,?,?,?)`)
	defer func() {
		if insertTick != nil {
			_ = insertTick.Close()
		}
		if insertOutcome != nil {
			_ = insertOutcome.Close()
		}
		if insertResolver != nil {
			_ = insertResolver.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastOutcomeTick uint64
		outcomeSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			b, _ := json.Marshal(r.tick)
			if insertTick != nil {
				skipped := 0
				if r.tick.Skipped {
					skipped = 1
				}
				if _, err := tx.Stmt(insertTick).Exec(
					int64(r.tick.Tick),
					r.tick.AtMS,
					r.tick.Agents,
					r.tick.Delivered,
					r.tick.Duplicates,
					r.tick.Acks[2]+r.tick.Acks[3],
					r.tick.Outcomes,
					skipped,
					string(b),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqOutcome:
			o := r.outcome
			if o.Tick != lastOutcomeTick {
				lastOutcomeTick = o.Tick
				outcomeSeq = 0
			}
			seq := outcomeSeq
			outcomeSeq++
			if insertOutcome != nil {
				if _, err := tx.Stmt(insertOutcome).Exec(
					int64(o.Tick),
					seq,
					o.AtMS,
					int64(o.Group),
					string(o.Kind),
					string(o.Result),
					o.Agent.String(),
					o.Target.String(),
					int64(o.Spell),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqResolver:
			for _, site := range r.resolver.Sites {
				if insertResolver == nil {
					break
				}
				if _, err := tx.Stmt(insertResolver).Exec(
					int64(r.resolver.Tick),
					site.Site,
					int64(site.OK),
					int64(site.Fail),
				); err != nil {
					rollback()
					break
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
