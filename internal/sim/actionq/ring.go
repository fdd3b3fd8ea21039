package actionq

import (
	"sync/atomic"

	"warband.ai/internal/hostbridge"
)

// ring is a bounded MPMC ring (sequence-per-slot scheme). Producers are
// worker goroutines; the consumer is the tick thread, with the overflow
// path also popping to evict the oldest entry.
type ring struct {
	mask  uint64
	slots []slot
	head  atomic.Uint64
	tail  atomic.Uint64
}

type slot struct {
	seq    atomic.Uint64
	intent hostbridge.ActionIntent
}

func newRing(capacity int) *ring {
	n := 1
	for n < capacity {
		n <<= 1
	}
	r := &ring{mask: uint64(n - 1), slots: make([]slot, n)}
	for i := range r.slots {
		r.slots[i].seq.Store(uint64(i))
	}
	return r
}

// push reserves a slot and publishes the intent; false means full.
func (r *ring) push(it hostbridge.ActionIntent) bool {
	for {
		t := r.tail.Load()
		s := &r.slots[t&r.mask]
		seq := s.seq.Load()
		switch {
		case seq == t:
			if r.tail.CompareAndSwap(t, t+1) {
				s.intent = it
				s.seq.Store(t + 1)
				return true
			}
		case seq < t:
			return false
		}
		// Lost the race for the slot; retry.
	}
}

// pop claims the oldest published entry; false means empty.
func (r *ring) pop() (hostbridge.ActionIntent, bool) {
	for {
		h := r.head.Load()
		s := &r.slots[h&r.mask]
		seq := s.seq.Load()
		switch {
		case seq == h+1:
			if r.head.CompareAndSwap(h, h+1) {
				it := s.intent
				s.intent = hostbridge.ActionIntent{}
				s.seq.Store(h + r.mask + 1)
				return it, true
			}
		case seq <= h:
			return hostbridge.ActionIntent{}, false
		}
		// Slot mid-publish or head stale; retry.
	}
}
