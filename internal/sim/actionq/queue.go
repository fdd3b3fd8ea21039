// Package actionq carries ActionIntents from agent workers to the tick
// thread: multi-producer push, single-consumer drain, bounded per band.
package actionq

import (
	"sync/atomic"

	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/spatial"
)

// Band partitions intents by urgency. Drain order is strictly Emergency,
// Combat, Normal, Low; FIFO within one band.
type Band uint8

const (
	BandEmergency Band = iota
	BandCombat
	BandNormal
	BandLow
	bandCount
)

func (b Band) String() string {
	switch b {
	case BandEmergency:
		return "emergency"
	case BandCombat:
		return "combat"
	case BandNormal:
		return "normal"
	default:
		return "low"
	}
}

// BandFor maps an intent priority to its queue band. The thresholds line
// up with the movement priority bands.
func BandFor(priority uint8) Band {
	switch {
	case priority >= 100:
		return BandEmergency
	case priority >= 60:
		return BandCombat
	case priority >= 30:
		return BandNormal
	default:
		return BandLow
	}
}

const (
	defaultBandCapacity   = 1024
	defaultDedupeWindowMS = 150
)

type Config struct {
	// BandCapacity bounds each band's ring; rounded up to a power of two.
	BandCapacity int
	// DedupeWindowMS is the at-most-once suppression window for intents
	// sharing a duplicate key.
	DedupeWindowMS int64
}

// Queue is the worker→tick intent channel. Push is wait-free for
// producers except for a short CAS retry under contention; a full band
// drops its oldest entry to admit the new one, so a push never fails and
// never blocks. Drain must only be called from the tick thread.
type Queue struct {
	rings          [bandCount]*ring
	dedupeWindowMS int64

	// consumer-side only
	seen map[dedupeKey]int64

	pushed  atomic.Uint64
	dropped [bandCount]atomic.Uint64
}

func New(cfg Config) *Queue {
	if cfg.BandCapacity <= 0 {
		cfg.BandCapacity = defaultBandCapacity
	}
	if cfg.DedupeWindowMS <= 0 {
		cfg.DedupeWindowMS = defaultDedupeWindowMS
	}
	q := &Queue{
		dedupeWindowMS: cfg.DedupeWindowMS,
		seen:           map[dedupeKey]int64{},
	}
	for b := range q.rings {
		q.rings[b] = newRing(cfg.BandCapacity)
	}
	return q
}

// Push enqueues an intent into its priority band. On a full band the
// oldest entry of that band is discarded and counted; the new intent
// always lands.
func (q *Queue) Push(it hostbridge.ActionIntent) {
	b := BandFor(it.Priority)
	q.pushed.Add(1)
	r := q.rings[b]
	for !r.push(it) {
		if _, ok := r.pop(); ok {
			q.dropped[b].Add(1)
		}
	}
}

// DrainStats summarizes one drain pass.
type DrainStats struct {
	Delivered  int
	Duplicates int
	Bands      [4]int // delivered per band
	Acks       [4]int // indexed by hostbridge.Ack
}

// Drain pops every intent present at entry, highest band first, applies
// the duplicate window, and hands survivors to deliver. Intents pushed
// concurrently during the pass are left for the next tick.
func (q *Queue) Drain(nowMS int64, deliver func(hostbridge.ActionIntent) hostbridge.Ack) DrainStats {
	var st DrainStats
	// Opportunistic cleanup of the suppression window.
	for k, exp := range q.seen {
		if nowMS >= exp {
			delete(q.seen, k)
		}
	}
	for b := Band(0); b < bandCount; b++ {
		r := q.rings[b]
		n := r.tail.Load() - r.head.Load()
		for i := uint64(0); i < n; i++ {
			it, ok := r.pop()
			if !ok {
				break
			}
			k := keyFor(it)
			if exp, dup := q.seen[k]; dup && nowMS < exp {
				st.Duplicates++
				continue
			}
			q.seen[k] = nowMS + q.dedupeWindowMS
			ack := deliver(it)
			st.Delivered++
			st.Bands[b]++
			if int(ack) < len(st.Acks) {
				st.Acks[ack]++
			}
		}
	}
	return st
}

// Depths reports approximate per-band occupancy for metrics.
func (q *Queue) Depths() [4]int {
	var d [4]int
	for b := range q.rings {
		d[b] = int(q.rings[b].tail.Load() - q.rings[b].head.Load())
	}
	return d
}

func (q *Queue) Pushed() uint64 { return q.pushed.Load() }

func (q *Queue) Dropped(b Band) uint64 { return q.dropped[b].Load() }

func (q *Queue) DroppedTotal() uint64 {
	var t uint64
	for b := range q.dropped {
		t += q.dropped[b].Load()
	}
	return t
}

type dedupeKey struct {
	agent  spatial.EID
	kind   hostbridge.IntentKind
	spell  uint32
	target spatial.EID
}

func keyFor(it hostbridge.ActionIntent) dedupeKey {
	k := dedupeKey{agent: it.Agent, kind: it.Kind}
	switch it.Kind {
	case hostbridge.IntentSpellCast, hostbridge.IntentSpellCancel:
		k.spell = it.Spell
		k.target = it.Target
	case hostbridge.IntentInteract:
		k.target = it.Target
	case hostbridge.IntentUseItem:
		k.spell = it.Item
		k.target = it.Target
	case hostbridge.IntentMoveTo:
		// Distinct destinations are distinct intents; same-cell repeats
		// within the window are spam.
		k.target = quantizeDest(it.Dest)
	}
	return k
}

func quantizeDest(p spatial.Position) spatial.EID {
	x := uint64(uint32(int32(p.X)))
	y := uint64(uint32(int32(p.Y)))
	return spatial.EID(x<<32 | y)
}
