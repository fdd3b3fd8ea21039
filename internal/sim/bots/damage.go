package bots

import "warband.ai/internal/sim/spatial"

// damageWindow keeps the last few seconds of incoming damage so the
// defensive logic can project health forward instead of reacting to the
// current bar alone.
type damageWindow struct {
	samples [damageRingSize]DamageEvent
	head    int
	n       int
}

const (
	damageRingSize   = 30
	physicalSchool   = 1 << 0
	predictAheadMS   = 1500
	multiTargetCount = 3
)

func newDamageWindow() *damageWindow {
	return &damageWindow{}
}

func (d *damageWindow) record(ev DamageEvent) {
	d.samples[d.head] = ev
	d.head = (d.head + 1) % damageRingSize
	if d.n < damageRingSize {
		d.n++
	}
}

// incomingDPS sums damage over the trailing window. Returns 0 when nothing
// landed recently.
func (d *damageWindow) incomingDPS(nowMS, horizonMS int64) float64 {
	var total int64
	cutoff := nowMS - horizonMS
	for i := 0; i < d.n; i++ {
		s := d.samples[(d.head-1-i+damageRingSize)%damageRingSize]
		if s.AtMS < cutoff {
			break
		}
		total += s.Amount
	}
	if total <= 0 {
		return 0
	}
	return float64(total) / (float64(horizonMS) / 1000.0)
}

// profile classifies the recent intake for defensive selection.
type intakeProfile struct {
	dps         float64
	meleeShare  float64
	magicShare  float64
	attackers   int
	multiTarget bool
}

func (d *damageWindow) profile(nowMS, horizonMS int64) intakeProfile {
	var total, melee, magic int64
	seen := map[spatial.EID]bool{}
	cutoff := nowMS - horizonMS
	for i := 0; i < d.n; i++ {
		s := d.samples[(d.head-1-i+damageRingSize)%damageRingSize]
		if s.AtMS < cutoff {
			break
		}
		total += s.Amount
		if s.Melee || s.SchoolMask == physicalSchool {
			melee += s.Amount
		} else {
			magic += s.Amount
		}
		if !s.Attacker.IsZero() {
			seen[s.Attacker] = true
		}
	}
	p := intakeProfile{attackers: len(seen), multiTarget: len(seen) >= multiTargetCount}
	if total > 0 {
		p.dps = float64(total) / (float64(horizonMS) / 1000.0)
		p.meleeShare = float64(melee) / float64(total)
		p.magicShare = float64(magic) / float64(total)
	}
	return p
}

// predictedHealthPct projects the snapshot health forward assuming the
// trailing DPS continues. maxHealth of zero returns the snapshot value.
func predictedHealthPct(self spatial.PlayerSnapshot, dps float64, maxHealth int64, horizonMS int64) float32 {
	if dps <= 0 || maxHealth <= 0 {
		return self.HealthPct
	}
	loss := dps * float64(horizonMS) / 1000.0
	lossPct := float32(loss / float64(maxHealth) * 100.0)
	p := self.HealthPct - lossPct
	if p < 0 {
		p = 0
	}
	return p
}
