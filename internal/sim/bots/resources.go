package bots

import (
	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/catalogs"
)

// resourceSet models the agent's resource pools speculatively between
// snapshots. The primary pool (first in the kit) is reconciled against the
// snapshot's resource percentage every step; secondary pools such as combo
// points exist only in the host and here, never in snapshots.
type resourceSet struct {
	pools   []resourcePool
	byKind  map[uint8]resourcePool
	primary resourcePool
}

type resourcePool interface {
	kind() uint8
	current(nowMS int64) float64
	max() float64
	hasEnough(amount float64, nowMS int64) bool
	spend(amount float64, nowMS int64) bool
	refund(amount float64, nowMS int64)
	gain(amount float64, nowMS int64)
	advance(nowMS int64, inCombat bool)
	syncPct(pct float32, nowMS int64)
}

func newResourceSet(defs []catalogs.ResourceDef, nowMS int64) *resourceSet {
	rs := &resourceSet{byKind: map[uint8]resourcePool{}}
	for _, d := range defs {
		k := d.KindID()
		if k == 0 {
			continue
		}
		var p resourcePool
		switch {
		case d.Charges > 0:
			p = newChargePool(k, d.Charges, d.RechargeMS, nowMS)
		case d.DecayPerSec > 0:
			p = &decayPool{id: k, maxVal: d.Max, decayPerSec: d.DecayPerSec, lastMS: nowMS}
		default:
			p = &regenPool{id: k, cur: d.Max, maxVal: d.Max, regenPerSec: d.RegenPerSec, lastMS: nowMS}
		}
		rs.pools = append(rs.pools, p)
		rs.byKind[k] = p
		if rs.primary == nil {
			rs.primary = p
		}
	}
	return rs
}

func (rs *resourceSet) advance(nowMS int64, inCombat bool) {
	for _, p := range rs.pools {
		p.advance(nowMS, inCombat)
	}
}

func (rs *resourceSet) syncPrimary(pct float32, nowMS int64) {
	if rs.primary != nil {
		rs.primary.syncPct(pct, nowMS)
	}
}

func (rs *resourceSet) canAfford(cost hostbridge.ResourceCost, nowMS int64) bool {
	if cost.Kind == hostbridge.ResourceNone || cost.Amount <= 0 {
		return true
	}
	p, ok := rs.byKind[uint8(cost.Kind)]
	if !ok {
		// Kits without the pool cannot pay for the ability.
		return false
	}
	return p.hasEnough(cost.Amount, nowMS)
}

// spendFor applies a cast's cost. Negative amounts are generators and add to
// the pool instead.
func (rs *resourceSet) spendFor(cost hostbridge.ResourceCost, nowMS int64) {
	if cost.Kind == hostbridge.ResourceNone || cost.Amount == 0 {
		return
	}
	p, ok := rs.byKind[uint8(cost.Kind)]
	if !ok {
		return
	}
	if cost.Amount > 0 {
		p.spend(cost.Amount, nowMS)
	} else {
		p.gain(-cost.Amount, nowMS)
	}
}

func (rs *resourceSet) refund(kindID uint8, amount float64, nowMS int64) {
	if p, ok := rs.byKind[kindID]; ok {
		p.refund(amount, nowMS)
	}
}

func (rs *resourceSet) currentOf(kindID uint8, nowMS int64) (cur, maxVal float64, ok bool) {
	p, found := rs.byKind[kindID]
	if !found {
		return 0, 0, false
	}
	return p.current(nowMS), p.max(), true
}

// regenPool covers mana, energy, focus, runic power, and plain counters
// (combo points, chi, holy power) which are a regen rate of zero.
type regenPool struct {
	id          uint8
	cur         float64
	maxVal      float64
	regenPerSec float64
	lastMS      int64
}

func (p *regenPool) kind() uint8  { return p.id }
func (p *regenPool) max() float64 { return p.maxVal }

func (p *regenPool) advance(nowMS int64, _ bool) {
	if p.regenPerSec <= 0 || nowMS <= p.lastMS {
		p.lastMS = nowMS
		return
	}
	dt := float64(nowMS-p.lastMS) / 1000.0
	p.cur += p.regenPerSec * dt
	if p.cur > p.maxVal {
		p.cur = p.maxVal
	}
	p.lastMS = nowMS
}

func (p *regenPool) current(nowMS int64) float64 {
	p.advance(nowMS, false)
	return p.cur
}

func (p *regenPool) hasEnough(amount float64, nowMS int64) bool {
	return p.current(nowMS) >= amount
}

func (p *regenPool) spend(amount float64, nowMS int64) bool {
	if !p.hasEnough(amount, nowMS) {
		return false
	}
	p.cur -= amount
	return true
}

func (p *regenPool) refund(amount float64, nowMS int64) { p.gain(amount, nowMS) }

func (p *regenPool) gain(amount float64, nowMS int64) {
	p.advance(nowMS, false)
	p.cur += amount
	if p.cur > p.maxVal {
		p.cur = p.maxVal
	}
}

func (p *regenPool) syncPct(pct float32, nowMS int64) {
	p.cur = float64(pct) / 100.0 * p.maxVal
	p.lastMS = nowMS
}

// decayPool covers rage: built by taking and dealing damage, draining away
// out of combat.
type decayPool struct {
	id          uint8
	cur         float64
	maxVal      float64
	decayPerSec float64
	lastMS      int64
	inCombat    bool
}

func (p *decayPool) kind() uint8  { return p.id }
func (p *decayPool) max() float64 { return p.maxVal }

func (p *decayPool) advance(nowMS int64, inCombat bool) {
	if nowMS <= p.lastMS {
		p.inCombat = inCombat
		return
	}
	if !inCombat {
		dt := float64(nowMS-p.lastMS) / 1000.0
		p.cur -= p.decayPerSec * dt
		if p.cur < 0 {
			p.cur = 0
		}
	}
	p.lastMS = nowMS
	p.inCombat = inCombat
}

func (p *decayPool) current(nowMS int64) float64 {
	p.advance(nowMS, p.inCombat)
	return p.cur
}

func (p *decayPool) hasEnough(amount float64, nowMS int64) bool {
	return p.current(nowMS) >= amount
}

func (p *decayPool) spend(amount float64, nowMS int64) bool {
	if !p.hasEnough(amount, nowMS) {
		return false
	}
	p.cur -= amount
	return true
}

func (p *decayPool) refund(amount float64, nowMS int64) { p.gain(amount, nowMS) }

func (p *decayPool) gain(amount float64, nowMS int64) {
	p.advance(nowMS, p.inCombat)
	p.cur += amount
	if p.cur > p.maxVal {
		p.cur = p.maxVal
	}
}

func (p *decayPool) syncPct(pct float32, nowMS int64) {
	p.cur = float64(pct) / 100.0 * p.maxVal
	p.lastMS = nowMS
}

// chargePool covers runes: a fixed number of charges each recharging on its
// own timer. Spending takes the charge closest to ready.
type chargePool struct {
	id         uint8
	readyAt    []int64
	rechargeMS int64
}

func newChargePool(id uint8, charges int, rechargeMS, nowMS int64) *chargePool {
	ready := make([]int64, charges)
	for i := range ready {
		ready[i] = nowMS
	}
	return &chargePool{id: id, readyAt: ready, rechargeMS: rechargeMS}
}

func (p *chargePool) kind() uint8  { return p.id }
func (p *chargePool) max() float64 { return float64(len(p.readyAt)) }

func (p *chargePool) advance(int64, bool) {}

func (p *chargePool) current(nowMS int64) float64 {
	n := 0
	for _, at := range p.readyAt {
		if nowMS >= at {
			n++
		}
	}
	return float64(n)
}

func (p *chargePool) hasEnough(amount float64, nowMS int64) bool {
	return p.current(nowMS) >= amount
}

func (p *chargePool) spend(amount float64, nowMS int64) bool {
	need := int(amount)
	if need <= 0 {
		return true
	}
	if p.current(nowMS) < float64(need) {
		return false
	}
	for ; need > 0; need-- {
		best := -1
		for i, at := range p.readyAt {
			if nowMS < at {
				continue
			}
			if best == -1 || at < p.readyAt[best] {
				best = i
			}
		}
		if best == -1 {
			return false
		}
		p.readyAt[best] = nowMS + p.rechargeMS
	}
	return true
}

func (p *chargePool) refund(amount float64, nowMS int64) {
	// Return the charges that are furthest from ready.
	for n := int(amount); n > 0; n-- {
		worst := -1
		for i, at := range p.readyAt {
			if nowMS >= at {
				continue
			}
			if worst == -1 || at > p.readyAt[worst] {
				worst = i
			}
		}
		if worst == -1 {
			return
		}
		p.readyAt[worst] = nowMS
	}
}

func (p *chargePool) gain(amount float64, nowMS int64) { p.refund(amount, nowMS) }

func (p *chargePool) syncPct(float32, int64) {}
