package bots

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/actionq"
	"warband.ai/internal/sim/catalogs"
	"warband.ai/internal/sim/hubs"
	"warband.ai/internal/sim/orders"
	"warband.ai/internal/sim/spatial"
)

// TickLogger receives one entry per host tick boundary. Implemented in
// internal/persistence/log.
type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// IntentLogger receives every drained intent together with its verdict.
type IntentLogger interface {
	WriteIntent(tick uint64, atMS int64, it hostbridge.ActionIntent, ack hostbridge.Ack) error
}

// OutcomeLogger receives coordinator assignment outcomes as they settle.
type OutcomeLogger interface {
	WriteOutcome(o orders.Outcome) error
}

// TickLogEntry summarizes what one boundary delivered and dispatched.
type TickLogEntry struct {
	Tick       uint64 `json:"tick"`
	AtMS       int64  `json:"at_ms"`
	Delivered  int    `json:"delivered"`
	Duplicates int    `json:"duplicates,omitempty"`
	Bands      [4]int `json:"bands"`
	Acks       [4]int `json:"acks"`
	Outcomes   int    `json:"outcomes,omitempty"`
	Agents     int    `json:"agents"`
	Skipped    bool   `json:"round_skipped,omitempty"`
}

// Engine drives every simulated agent: snapshots in at the tick boundary,
// one parallel decision round per boundary, intents out through the queue.
//
// Thread model: StageMap, DropMap, and OnHostTick are tick-thread only.
// Everything else is safe from any goroutine; agent step state is only
// ever touched by the worker that owns the agent for the current round.
type Engine struct {
	cfg  Config
	host hostbridge.Host
	cats *catalogs.Catalogs

	grid  *spatial.Grid
	queue *actionq.Queue
	hubs  *hubs.Database

	// Optional host capabilities, discovered by type assertion on the
	// host at construction.
	los      lineOfSighter
	groupSrc GroupSource

	resolver *memberResolver

	agentsMu sync.RWMutex
	agents   map[spatial.EID]*Agent
	roster   []*Agent // sorted by EID, rebuilt when membership changes

	pendMu      sync.Mutex
	pendAdds    []*Agent
	pendRemoves []spatial.EID

	groupsMu sync.Mutex
	groups   map[uint64]*Group

	outcomesMu sync.Mutex
	outcomes   []orders.Outcome

	seq  atomic.Uint64
	tick atomic.Uint64

	roundRunning  atomic.Bool
	roundsRun     atomic.Uint64
	roundsSkipped atomic.Uint64
	lastRoundUS   atomic.Int64
	lastStepped   atomic.Uint64

	stats   *EngineStats
	metrics atomic.Value // EngineMetrics

	tickLogger    TickLogger
	intentLogger  IntentLogger
	outcomeLogger OutcomeLogger
}

// New builds an engine against a host. Quest-giver hubs are clustered
// once here; the host must be able to answer QuestGivers and QuestInfo
// before the engine exists.
func New(cfg Config, host hostbridge.Host, cats *catalogs.Catalogs) (*Engine, error) {
	if host == nil {
		return nil, fmt.Errorf("bots: nil host")
	}
	if cats == nil {
		return nil, fmt.Errorf("bots: nil catalogs")
	}
	e := &Engine{
		cfg:    cfg,
		host:   host,
		cats:   cats,
		grid:   spatial.NewGrid(cfg.GridCellSizeYards),
		agents: map[spatial.EID]*Agent{},
		groups: map[uint64]*Group{},
		stats:  NewEngineStats(defaultStatsBucketTicks, defaultStatsWindowTicks),
	}
	e.queue = actionq.New(actionq.Config{
		BandCapacity:   cfg.QueueBandCapacity,
		DedupeWindowMS: cfg.DedupeWindowMS,
	})
	e.hubs = hubs.Build(host.QuestGivers(), host.QuestInfo, cfg.HubsEpsYards, cfg.HubsMinPts)
	e.resolver = newMemberResolver(e)
	if l, ok := host.(lineOfSighter); ok {
		e.los = l
	}
	if g, ok := host.(GroupSource); ok {
		e.groupSrc = g
	}
	return e, nil
}

const (
	defaultStatsBucketTicks = 200  // 10s at 20Hz
	defaultStatsWindowTicks = 6000 // 5min at 20Hz
)

func (e *Engine) SetTickLogger(l TickLogger)       { e.tickLogger = l }
func (e *Engine) SetIntentLogger(l IntentLogger)   { e.intentLogger = l }
func (e *Engine) SetOutcomeLogger(l OutcomeLogger) { e.outcomeLogger = l }

// Grid exposes the snapshot store for staging and read-side consumers
// (observer stream, tests).
func (e *Engine) Grid() *spatial.Grid { return e.grid }

// Config returns the engine's flattened tuning.
func (e *Engine) Config() Config { return e.cfg }

// Catalogs returns the loaded data catalogs.
func (e *Engine) Catalogs() *catalogs.Catalogs { return e.cats }

// Hubs exposes the quest-giver hub database built at construction.
func (e *Engine) Hubs() *hubs.Database { return e.hubs }

// CurrentTick reports the most recently published boundary.
func (e *Engine) CurrentTick() uint64 { return e.tick.Load() }

// StageMap hands one map's entity batch to the snapshot store. The batch
// becomes visible to agents at the next OnHostTick. Tick thread only.
func (e *Engine) StageMap(mapID uint32, b spatial.Batch) { e.grid.StageMap(mapID, b) }

// DropMap unloads a map from the snapshot store. Tick thread only.
func (e *Engine) DropMap(mapID uint32) { e.grid.DropMap(mapID) }

// AddAgent validates and registers one agent. The agent joins the
// stepping roster at the next boundary with no round in flight.
func (e *Engine) AddAgent(cfg AgentConfig) error {
	if cfg.EID.IsZero() {
		return fmt.Errorf("bots: agent eid 0")
	}
	kit, ok := e.cats.Kits.ByClass[cfg.Class]
	if !ok {
		return fmt.Errorf("bots: class %d has no kit", cfg.Class)
	}
	rot, hasRot := e.cats.Rotations.BySpec[catalogs.SpecKey{Class: cfg.Class, Spec: cfg.Spec}]
	defs := e.cats.Defensives.ByClass[cfg.Class]

	a := newAgent(cfg, kit, rot, hasRot, defs, e.host.NowMS())
	e.pendMu.Lock()
	e.pendAdds = append(e.pendAdds, a)
	e.pendMu.Unlock()
	return nil
}

// RemoveAgent schedules an agent for removal at the next boundary with
// no round in flight. Unknown ids are ignored.
func (e *Engine) RemoveAgent(eid spatial.EID) {
	e.pendMu.Lock()
	e.pendRemoves = append(e.pendRemoves, eid)
	e.pendMu.Unlock()
}

// Agent returns a registered agent, nil when unknown. Agents pending
// registration are not visible until their first boundary.
func (e *Engine) Agent(eid spatial.EID) *Agent { return e.agent(eid) }

func (e *Engine) agent(eid spatial.EID) *Agent {
	e.agentsMu.RLock()
	a := e.agents[eid]
	e.agentsMu.RUnlock()
	return a
}

func (e *Engine) AgentCount() int {
	e.agentsMu.RLock()
	n := len(e.agents)
	e.agentsMu.RUnlock()
	return n
}

// OnDamageTaken feeds one damage event into the victim's inbox. Safe
// from any host thread.
func (e *Engine) OnDamageTaken(eid spatial.EID, ev DamageEvent) {
	a := e.agent(eid)
	if a == nil {
		return
	}
	if ev.AtMS == 0 {
		ev.AtMS = e.host.NowMS()
	}
	a.feedDamage(ev)
}

// OnCombatChange feeds a combat-state edge. Safe from any host thread.
func (e *Engine) OnCombatChange(eid spatial.EID, inCombat bool) {
	if a := e.agent(eid); a != nil {
		a.feedCombat(inCombat)
	}
}

// SetQuestLog replaces an agent's active quest log. Safe from any host
// thread; the agent picks it up at its next step.
func (e *Engine) SetQuestLog(eid spatial.EID, quests []uint32) {
	if a := e.agent(eid); a != nil {
		a.feedQuestLog(quests)
	}
}

// SetGroupFlags records explicit main-tank and main-assist choices for a
// group. Zero clears a flag.
func (e *Engine) SetGroupFlags(group uint64, mainTank, mainAssist spatial.EID) {
	if group == 0 {
		return
	}
	e.group(group).SetFlags(mainTank, mainAssist)
}

func (e *Engine) group(id uint64) *Group {
	e.groupsMu.Lock()
	g := e.groups[id]
	if g == nil {
		g = newGroup(id)
		e.groups[id] = g
	}
	e.groupsMu.Unlock()
	return g
}

func (e *Engine) nextSeq() uint64 { return e.seq.Add(1) }

func (e *Engine) recordOutcome(o orders.Outcome) {
	e.outcomesMu.Lock()
	e.outcomes = append(e.outcomes, o)
	e.outcomesMu.Unlock()
}

// dispelBand resolves an aura to its priority band, "" when uncataloged.
func (e *Engine) dispelBand(aura uint32, purge bool) string {
	if purge {
		return e.cats.Dispels.Purge[aura]
	}
	return e.cats.Dispels.Debuffs[aura]
}

// OnHostTick is the boundary: deliver last round's intents to the host,
// publish the staged snapshots, apply roster changes, and dispatch the
// next decision round. If the previous round is still running the
// dispatch is skipped and counted; nothing ever blocks the host here.
// Tick thread only.
func (e *Engine) OnHostTick(tick uint64) { e.onTick(tick, false) }

// OnHostTickSync is OnHostTick with the decision round run inline on the
// calling goroutine. Lockstep hosts use it when they want every boundary
// to observe the previous round's full output; never mix the two
// variants.
func (e *Engine) OnHostTickSync(tick uint64) { e.onTick(tick, true) }

func (e *Engine) onTick(tick uint64, inline bool) {
	nowMS := e.host.NowMS()

	drain := e.queue.Drain(nowMS, func(it hostbridge.ActionIntent) hostbridge.Ack {
		ack := e.host.EnqueueAction(it)
		if it.Seq != 0 {
			if a := e.agent(it.Agent); a != nil {
				a.feedAck(AckResult{Seq: it.Seq, Kind: it.Kind, Spell: it.Spell, Ack: ack})
			}
		}
		if e.intentLogger != nil {
			_ = e.intentLogger.WriteIntent(tick, nowMS, it, ack)
		}
		return ack
	})

	e.grid.Publish(tick)
	e.tick.Store(tick)

	outcomes := e.takeOutcomes()
	e.stats.RecordDrain(tick, drain)
	for _, o := range outcomes {
		e.stats.RecordOutcome(tick, o)
		if e.outcomeLogger != nil {
			_ = e.outcomeLogger.WriteOutcome(o)
		}
	}

	skipped := false
	if e.roundRunning.CompareAndSwap(false, true) {
		e.applyPending(nowMS)
		roster := e.roster
		if inline {
			e.runRound(roster, tick, nowMS)
		} else {
			go e.runRound(roster, tick, nowMS)
		}
	} else {
		skipped = true
		e.roundsSkipped.Add(1)
	}

	if e.tickLogger != nil {
		_ = e.tickLogger.WriteTick(TickLogEntry{
			Tick:       tick,
			AtMS:       nowMS,
			Delivered:  drain.Delivered,
			Duplicates: drain.Duplicates,
			Bands:      drain.Bands,
			Acks:       drain.Acks,
			Outcomes:   len(outcomes),
			Agents:     len(e.roster),
			Skipped:    skipped,
		})
	}
	e.publishMetrics(tick)
}

func (e *Engine) takeOutcomes() []orders.Outcome {
	e.outcomesMu.Lock()
	out := e.outcomes
	e.outcomes = nil
	e.outcomesMu.Unlock()
	return out
}

// applyPending folds queued adds and removes into the roster. Only
// called with no round in flight, so workers never see it change.
func (e *Engine) applyPending(nowMS int64) {
	e.pendMu.Lock()
	adds := e.pendAdds
	removes := e.pendRemoves
	e.pendAdds = nil
	e.pendRemoves = nil
	e.pendMu.Unlock()
	if len(adds) == 0 && len(removes) == 0 {
		return
	}

	e.agentsMu.Lock()
	for _, a := range adds {
		e.agents[a.cfg.EID] = a
	}
	for _, eid := range removes {
		delete(e.agents, eid)
	}
	roster := make([]*Agent, 0, len(e.agents))
	for _, a := range e.agents {
		roster = append(roster, a)
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].cfg.EID < roster[j].cfg.EID })
	e.roster = roster
	e.agentsMu.Unlock()
}

// runRound shards the roster across workers, waits them out, and clears
// the in-flight flag. Runs on its own goroutine so the host tick thread
// returns immediately after dispatch.
func (e *Engine) runRound(roster []*Agent, tick uint64, nowMS int64) {
	start := time.Now()
	workers := e.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0) - 1
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(roster) {
		workers = len(roster)
	}

	var stepped atomic.Uint64
	if len(roster) > 0 {
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := w; i < len(roster); i += workers {
					if roster[i].step(e, tick, nowMS) {
						stepped.Add(1)
					}
				}
			}(w)
		}
		wg.Wait()
	}

	e.lastRoundUS.Store(time.Since(start).Microseconds())
	e.lastStepped.Store(stepped.Load())
	e.roundsRun.Add(1)
	e.roundRunning.Store(false)
}
