package bots

import (
	"warband.ai/internal/sim/actionq"
	"warband.ai/internal/sim/orders"
)

// StatsBucket aggregates one bucket of boundary activity.
type StatsBucket struct {
	IntentsDelivered int `json:"intents_delivered"`
	IntentDuplicates int `json:"intent_duplicates"`
	IntentsRejected  int `json:"intents_rejected"`

	InterruptsFulfilled int `json:"interrupts_fulfilled"`
	InterruptsMissed    int `json:"interrupts_missed"`
	InterruptsExpired   int `json:"interrupts_expired"`

	DispelsFulfilled int `json:"dispels_fulfilled"`
	DispelsMissed    int `json:"dispels_missed"`
	DispelsExpired   int `json:"dispels_expired"`

	ExternalsFulfilled int `json:"externals_fulfilled"`
	ExternalsMissed    int `json:"externals_missed"`
	ExternalsExpired   int `json:"externals_expired"`
}

// EngineStats keeps a rolling window of buckets. All methods are tick
// thread only.
type EngineStats struct {
	bucketTicks uint64
	windowTicks uint64

	buckets []StatsBucket
	curIdx  int
	curBase uint64 // start tick (inclusive) of current bucket
}

func NewEngineStats(bucketTicks, windowTicks uint64) *EngineStats {
	if bucketTicks <= 0 {
		bucketTicks = 200
	}
	if windowTicks < bucketTicks {
		windowTicks = bucketTicks
	}
	n := int(windowTicks / bucketTicks)
	if n < 1 {
		n = 1
	}
	return &EngineStats{
		bucketTicks: bucketTicks,
		windowTicks: uint64(n) * bucketTicks,
		buckets:     make([]StatsBucket, n),
	}
}

func (s *EngineStats) rotate(nowTick uint64) {
	if s == nil {
		return
	}
	for nowTick >= s.curBase+s.bucketTicks {
		s.curIdx = (s.curIdx + 1) % len(s.buckets)
		s.buckets[s.curIdx] = StatsBucket{}
		s.curBase += s.bucketTicks
	}
}

func (s *EngineStats) RecordDrain(nowTick uint64, st actionq.DrainStats) {
	if s == nil {
		return
	}
	s.rotate(nowTick)
	b := &s.buckets[s.curIdx]
	b.IntentsDelivered += st.Delivered
	b.IntentDuplicates += st.Duplicates
	for ack, n := range st.Acks {
		if ack != 0 {
			b.IntentsRejected += n
		}
	}
}

func (s *EngineStats) RecordOutcome(nowTick uint64, o orders.Outcome) {
	if s == nil {
		return
	}
	s.rotate(nowTick)
	b := &s.buckets[s.curIdx]
	switch o.Kind {
	case orders.AssignInterrupt:
		switch o.Result {
		case orders.ResultFulfilled:
			b.InterruptsFulfilled++
		case orders.ResultMissed:
			b.InterruptsMissed++
		case orders.ResultExpired:
			b.InterruptsExpired++
		}
	case orders.AssignDispel:
		switch o.Result {
		case orders.ResultFulfilled:
			b.DispelsFulfilled++
		case orders.ResultMissed:
			b.DispelsMissed++
		case orders.ResultExpired:
			b.DispelsExpired++
		}
	case orders.AssignExternal:
		switch o.Result {
		case orders.ResultFulfilled:
			b.ExternalsFulfilled++
		case orders.ResultMissed:
			b.ExternalsMissed++
		case orders.ResultExpired:
			b.ExternalsExpired++
		}
	}
}

func (s *EngineStats) WindowTicks() uint64 {
	if s == nil {
		return 0
	}
	return s.windowTicks
}

func (s *EngineStats) Summarize(nowTick uint64) StatsBucket {
	if s == nil {
		return StatsBucket{}
	}
	s.rotate(nowTick)
	var out StatsBucket
	for _, b := range s.buckets {
		out.IntentsDelivered += b.IntentsDelivered
		out.IntentDuplicates += b.IntentDuplicates
		out.IntentsRejected += b.IntentsRejected
		out.InterruptsFulfilled += b.InterruptsFulfilled
		out.InterruptsMissed += b.InterruptsMissed
		out.InterruptsExpired += b.InterruptsExpired
		out.DispelsFulfilled += b.DispelsFulfilled
		out.DispelsMissed += b.DispelsMissed
		out.DispelsExpired += b.DispelsExpired
		out.ExternalsFulfilled += b.ExternalsFulfilled
		out.ExternalsMissed += b.ExternalsMissed
		out.ExternalsExpired += b.ExternalsExpired
	}
	return out
}
