package bots

// cooldownTable tracks speculative ready-at times for the owning agent.
// The host remains authoritative; a rejected cast cancels its entry.
type cooldownTable struct {
	readyAt    map[uint32]int64
	gcdReadyAt int64
}

func newCooldownTable() cooldownTable {
	return cooldownTable{readyAt: map[uint32]int64{}}
}

func (c *cooldownTable) ready(spell uint32, nowMS int64) bool {
	return nowMS >= c.readyAt[spell]
}

func (c *cooldownTable) readyAtMS(spell uint32) int64 {
	return c.readyAt[spell]
}

func (c *cooldownTable) start(spell uint32, cooldownMS, nowMS int64) {
	if cooldownMS <= 0 {
		return
	}
	c.readyAt[spell] = nowMS + cooldownMS
}

func (c *cooldownTable) cancel(spell uint32) {
	delete(c.readyAt, spell)
}

func (c *cooldownTable) gcdReady(nowMS int64) bool {
	return nowMS >= c.gcdReadyAt
}

func (c *cooldownTable) startGCD(gcdMS int32, nowMS int64) {
	if gcdMS <= 0 {
		return
	}
	if end := nowMS + int64(gcdMS); end > c.gcdReadyAt {
		c.gcdReadyAt = end
	}
}

// compact drops expired entries so long-lived agents do not accrete one map
// entry per spell ever cast.
func (c *cooldownTable) compact(nowMS int64) {
	if len(c.readyAt) < 64 {
		return
	}
	for spell, at := range c.readyAt {
		if nowMS >= at {
			delete(c.readyAt, spell)
		}
	}
}
