package bots

import (
	"math"

	"warband.ai/internal/sim/spatial"
)

// threatTable is the agent's own estimate of threat it holds per enemy.
// Values decay with a 10 second half-life and the whole table clears on
// combat exit. The host never reports threat; this exists so target
// selection and heal anchoring have a stable signal to rank by.
type threatTable struct {
	held   map[spatial.EID]float64
	lastMS int64
}

const threatHalfLifeMS = 10000

func newThreatTable() threatTable {
	return threatTable{held: map[spatial.EID]float64{}}
}

func (t *threatTable) add(target spatial.EID, amount float64) {
	if target.IsZero() || amount <= 0 {
		return
	}
	t.held[target] += amount
}

// addSplit spreads healing threat evenly across every engaged enemy.
func (t *threatTable) addSplit(targets []spatial.EID, amount float64) {
	if len(targets) == 0 || amount <= 0 {
		return
	}
	per := amount / float64(len(targets))
	for _, id := range targets {
		t.held[id] += per
	}
}

func (t *threatTable) on(target spatial.EID) float64 {
	return t.held[target]
}

func (t *threatTable) decay(nowMS int64) {
	if t.lastMS == 0 {
		t.lastMS = nowMS
		return
	}
	dt := nowMS - t.lastMS
	if dt <= 0 {
		return
	}
	t.lastMS = nowMS
	factor := math.Pow(0.5, float64(dt)/float64(threatHalfLifeMS))
	for id, v := range t.held {
		v *= factor
		if v < 1 {
			delete(t.held, id)
			continue
		}
		t.held[id] = v
	}
}

func (t *threatTable) clear() {
	t.held = map[spatial.EID]float64{}
}

func (t *threatTable) size() int { return len(t.held) }
