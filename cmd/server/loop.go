package main

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"warband.ai/internal/hostbridge"
	"warband.ai/internal/logging"
	"warband.ai/internal/observability"
	"warband.ai/internal/persistence/snapshot"
	"warband.ai/internal/sim/arena"
	"warband.ai/internal/sim/bots"
	"warband.ai/internal/sim/orders"
	"warband.ai/internal/transport/observer"
)

// resolverStatsEvery paces resolver diagnostics into the index and the
// collector; the counters are cumulative so a coarse cadence loses nothing.
const resolverStatsEvery = 200

type hostLoopConfig struct {
	Arena     *arena.Arena
	Engine    *bots.Engine
	Observer  *observer.Server
	Collector *observability.EngineCollector
	Index     runtimeIndex
	Log       logging.Logger
	RealmID   string
	MapID     uint32
	TickMS    int64
	SnapEvery uint64
	SnapCh    chan<- snapshot.SnapshotV1
}

// hostLoop is the single tick thread: it steps the arena, hands the new
// snapshots and events to the engine, and closes each boundary with the
// exporter feeds. Everything here runs on one goroutine.
type hostLoop struct {
	cfg    hostLoopConfig
	tracer trace.Tracer

	tick         uint64
	prevRounds   uint64
	prevSkipped  uint64
	prevDropped  [4]uint64
	prevResolver map[string]bots.ResolverSiteStats
}

func newHostLoop(cfg hostLoopConfig) *hostLoop {
	if cfg.Log == nil {
		cfg.Log = logging.Noop()
	}
	return &hostLoop{
		cfg:          cfg,
		tracer:       otel.Tracer("warband.ai/cmd/server"),
		prevResolver: map[string]bots.ResolverSiteStats{},
	}
}

func (l *hostLoop) run(ctx context.Context) {
	t := time.NewTicker(time.Duration(l.cfg.TickMS) * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.step(ctx)
		}
	}
}

func (l *hostLoop) step(ctx context.Context) {
	l.tick++
	tick := l.tick

	ctx, span := l.tracer.Start(ctx, "engine.tick",
		trace.WithAttributes(attribute.Int64("tick", int64(tick))))
	defer span.End()

	l.cfg.Arena.Step()

	ev := l.cfg.Arena.TakeEvents()
	for _, d := range ev.Damage {
		l.cfg.Engine.OnDamageTaken(d.Agent, bots.DamageEvent{
			Attacker:   d.Attacker,
			Amount:     d.Amount,
			SchoolMask: d.SchoolMask,
			Melee:      d.Melee,
			AtMS:       d.AtMS,
		})
	}
	for _, c := range ev.Combat {
		l.cfg.Engine.OnCombatChange(c.Agent, c.InCombat)
	}

	l.cfg.Engine.StageMap(l.cfg.MapID, l.cfg.Arena.BuildBatch(tick))
	l.cfg.Engine.OnHostTick(tick)

	if l.cfg.Observer != nil {
		l.cfg.Observer.OnTick(tick)
	}

	l.feedCollector()

	if tick%resolverStatsEvery == 0 {
		l.publishResolver(tick)
	}
	if l.cfg.SnapEvery > 0 && tick%l.cfg.SnapEvery == 0 {
		l.requestSnapshot(ctx)
	}
}

// feedCollector moves gauge state and finished-round samples into
// Prometheus. Counter-shaped per-tick data (bands, acks, assignment
// outcomes) arrives through collectorFeed on the log fan-out instead.
func (l *hostLoop) feedCollector() {
	col := l.cfg.Collector
	if col == nil {
		return
	}
	m := l.cfg.Engine.Metrics()

	col.SetEngineCounts(m.Agents, m.Groups)
	col.SetQueueDepths([4]int{
		m.QueueDepths.Emergency,
		m.QueueDepths.Combat,
		m.QueueDepths.Normal,
		m.QueueDepths.Low,
	})

	if m.RoundsRun > l.prevRounds {
		for n := l.prevRounds; n < m.RoundsRun; n++ {
			col.ObserveRound(m.LastRoundMS/1000, true)
		}
		l.prevRounds = m.RoundsRun
	}
	if m.RoundsSkipped > l.prevSkipped {
		for n := l.prevSkipped; n < m.RoundsSkipped; n++ {
			col.ObserveRound(0, false)
		}
		l.prevSkipped = m.RoundsSkipped
	}

	dropped := l.cfg.Engine.QueueDropped()
	var delta [4]uint64
	for b := 0; b < 4; b++ {
		delta[b] = dropped[b] - l.prevDropped[b]
	}
	l.prevDropped = dropped
	col.AddDropped(delta)
}

func (l *hostLoop) publishResolver(tick uint64) {
	sites := l.cfg.Engine.Diagnostics().Resolver
	if len(sites) == 0 {
		return
	}
	if l.cfg.Index != nil {
		l.cfg.Index.RecordResolverStats(tick, sites)
	}
	if l.cfg.Collector != nil {
		for _, s := range sites {
			prev := l.prevResolver[s.Site]
			l.cfg.Collector.AddResolverLookups(s.Site, "ok", s.OK-prev.OK)
			l.cfg.Collector.AddResolverLookups(s.Site, "fail", s.Fail-prev.Fail)
			l.prevResolver[s.Site] = s
		}
	}
}

func (l *hostLoop) requestSnapshot(ctx context.Context) {
	snap := snapshot.Capture(l.cfg.Engine, l.cfg.RealmID)
	select {
	case l.cfg.SnapCh <- snap:
	default:
		l.cfg.Log.Warn(ctx, "snapshot writer busy, capture dropped",
			logging.Uint64("tick", snap.Header.Tick))
	}
}

// collectorFeed adapts the engine's log callbacks onto Prometheus
// counters so the exporter sees exactly what the logs see.
type collectorFeed struct {
	col *observability.EngineCollector
}

func (f collectorFeed) WriteTick(entry bots.TickLogEntry) error {
	var bands [4]uint64
	for i, n := range entry.Bands {
		bands[i] = uint64(n)
	}
	f.col.AddDelivered(bands)
	for i, n := range entry.Acks {
		if n > 0 {
			f.col.AddAck(hostbridge.Ack(i).String(), uint64(n))
		}
	}
	return nil
}

func (f collectorFeed) WriteOutcome(o orders.Outcome) error {
	f.col.AddAssignment(string(o.Kind), string(o.Result), 1)
	return nil
}
