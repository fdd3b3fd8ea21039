package bots

import "warband.ai/internal/sim/actionq"

// EngineMetrics is a thread-safe read-only view of the engine's runtime
// signals. It is rebuilt on the tick thread each boundary and read from
// HTTP handlers and tests.
type EngineMetrics struct {
	Tick uint64 `json:"tick"`

	Agents int `json:"agents"`
	Groups int `json:"groups"`

	RoundsRun     uint64  `json:"rounds_run"`
	RoundsSkipped uint64  `json:"rounds_skipped"`
	LastRoundMS   float64 `json:"last_round_ms"`
	LastStepped   uint64  `json:"last_stepped"`

	QueueDepths    QueueDepths `json:"queue_depths"`
	IntentsPushed  uint64      `json:"intents_pushed"`
	IntentsDropped uint64      `json:"intents_dropped"`

	HubCount int `json:"hub_count"`

	StatsWindowTicks uint64      `json:"stats_window_ticks"`
	StatsWindow      StatsBucket `json:"stats_window"`
}

// QueueDepths is per-band occupancy at the last boundary.
type QueueDepths struct {
	Emergency int `json:"emergency"`
	Combat    int `json:"combat"`
	Normal    int `json:"normal"`
	Low       int `json:"low"`
}

// Metrics returns the last published view, zero before the first tick.
func (e *Engine) Metrics() EngineMetrics {
	if e == nil {
		return EngineMetrics{}
	}
	v := e.metrics.Load()
	if v == nil {
		return EngineMetrics{}
	}
	m, ok := v.(EngineMetrics)
	if !ok {
		return EngineMetrics{}
	}
	return m
}

// QueueDropped reports cumulative per-band evictions, for exporters that
// want the band label EngineMetrics collapses.
func (e *Engine) QueueDropped() [4]uint64 {
	var d [4]uint64
	for b := 0; b < 4; b++ {
		d[b] = e.queue.Dropped(actionq.Band(b))
	}
	return d
}

func (e *Engine) publishMetrics(tick uint64) {
	d := e.queue.Depths()
	e.groupsMu.Lock()
	groups := len(e.groups)
	e.groupsMu.Unlock()

	e.metrics.Store(EngineMetrics{
		Tick:          tick,
		Agents:        e.AgentCount(),
		Groups:        groups,
		RoundsRun:     e.roundsRun.Load(),
		RoundsSkipped: e.roundsSkipped.Load(),
		LastRoundMS:   float64(e.lastRoundUS.Load()) / 1000.0,
		LastStepped:   e.lastStepped.Load(),
		QueueDepths: QueueDepths{
			Emergency: d[0],
			Combat:    d[1],
			Normal:    d[2],
			Low:       d[3],
		},
		IntentsPushed:    e.queue.Pushed(),
		IntentsDropped:   e.queue.DroppedTotal(),
		HubCount:         e.hubs.HubCount(),
		StatsWindowTicks: e.stats.WindowTicks(),
		StatsWindow:      e.stats.Summarize(tick),
	})
}
