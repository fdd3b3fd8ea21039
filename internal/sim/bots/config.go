package bots

import "warband.ai/internal/sim/tuning"

// Config is the engine's flattened tuning. Strategies and coordinators
// read it through stepCtx; it never changes after Start.
type Config struct {
	TickMS  int64
	Workers int

	WorkingRadiusYards   float32
	InterruptScanMS      int64
	InterruptRadiusYards float32
	DispelScanMS         int64

	MeleeRangeYards    float32
	CasterRangeYards   float32
	ExecuteHealthPct   float32
	ReassignAtRemainMS int64

	HealMaxRangeYards    float32
	HealAoERadiusYards   float32
	HealExcludeAbovePct  float32
	HealCriticalPct      float32
	HealIncomingDiscount float64
	AoEMinCluster        int
	AoEMinMeanDeficit    float64
	WeightMainTank       float64
	WeightTank           float64
	WeightHealer         float64
	WeightDamage         float64
	ThreatTieEpsilon     float64
	DispellableBonus     float64

	DefenseWindowMS      int64
	PreemptivePct        float32
	MinorPct             float32
	ModeratePct          float32
	MajorPct             float32
	ScaleTank            float32
	ScaleHealer          float32
	ScaleDamage          float32
	DefensiveRecentUseMS int64
	ExternalReuseMS      int64

	DispelRateLimitMS int64
	DispelRecentMS    int64

	QuestPollMS        int64
	QuestStagnationMS  int64
	GiverBackoffBaseMS int64
	GiverBackoffCapMS  int64
	MaxPathYards       float32
	InteractRangeYards float32
	LootRadiusYards    float32

	ArriveToleranceYards float32
	FieldEvadePadYards   float32
	FollowDistanceYards  float32
	WanderRadiusYards    float32
	WanderPauseMS        int64

	GroupRefreshMS       int64
	GroupCacheStaleMS    int64
	GroupScanRadiusYards float32

	QueueBandCapacity int
	DedupeWindowMS    int64
	GridCellSizeYards float32
	HubsEpsYards      float32
	HubsMinPts        int
}

// ConfigFrom flattens a tuning document into engine form.
func ConfigFrom(t tuning.Tuning) Config {
	return Config{
		TickMS:  int64(t.TickMS),
		Workers: t.Workers,

		WorkingRadiusYards:   t.Scan.WorkingRadiusYards,
		InterruptScanMS:      t.Scan.InterruptScanMS,
		InterruptRadiusYards: t.Scan.InterruptRadiusYards,
		DispelScanMS:         t.Scan.DispelScanMS,

		MeleeRangeYards:    t.Combat.MeleeRangeYards,
		CasterRangeYards:   t.Combat.CasterRangeYards,
		ExecuteHealthPct:   t.Combat.ExecuteHealthPct,
		ReassignAtRemainMS: t.Combat.ReassignAtRemainMS,

		HealMaxRangeYards:    t.Heal.MaxRangeYards,
		HealAoERadiusYards:   t.Heal.AoERadiusYards,
		HealExcludeAbovePct:  t.Heal.ExcludeAbovePct,
		HealCriticalPct:      t.Heal.CriticalPct,
		HealIncomingDiscount: float64(t.Heal.IncomingDiscount),
		AoEMinCluster:        t.Heal.AoEMinCluster,
		AoEMinMeanDeficit:    float64(t.Heal.AoEMinMeanDeficit),
		WeightMainTank:       float64(t.Heal.WeightMainTank),
		WeightTank:           float64(t.Heal.WeightTank),
		WeightHealer:         float64(t.Heal.WeightHealer),
		WeightDamage:         float64(t.Heal.WeightDamage),
		ThreatTieEpsilon:     float64(t.Heal.ThreatTieEpsilon),
		DispellableBonus:     float64(t.Heal.DispellableBonus),

		DefenseWindowMS:      t.Defense.WindowMS,
		PreemptivePct:        t.Defense.PreemptivePct,
		MinorPct:             t.Defense.MinorPct,
		ModeratePct:          t.Defense.ModeratePct,
		MajorPct:             t.Defense.MajorPct,
		ScaleTank:            t.Defense.ScaleTank,
		ScaleHealer:          t.Defense.ScaleHealer,
		ScaleDamage:          t.Defense.ScaleDamage,
		DefensiveRecentUseMS: t.Defense.RecentUseMS,
		ExternalReuseMS:      t.Defense.ExternalReuseMS,

		DispelRateLimitMS: t.Dispel.RateLimitMS,
		DispelRecentMS:    t.Dispel.RecentMS,

		QuestPollMS:        t.Quest.PollMS,
		QuestStagnationMS:  t.Quest.StagnationMS,
		GiverBackoffBaseMS: t.Quest.GiverBackoffBaseMS,
		GiverBackoffCapMS:  t.Quest.GiverBackoffCapMS,
		MaxPathYards:       t.Quest.MaxPathYards,
		InteractRangeYards: t.Quest.InteractRangeYards,
		LootRadiusYards:    t.Quest.LootRadiusYards,

		ArriveToleranceYards: t.Movement.ArriveToleranceYards,
		FieldEvadePadYards:   t.Quest.SafeDistancePad,
		FollowDistanceYards:  t.Movement.FollowDistanceYards,
		WanderRadiusYards:    t.Movement.WanderRadiusYards,
		WanderPauseMS:        t.Movement.WanderPauseMS,

		GroupRefreshMS:       t.Group.RefreshMS,
		GroupCacheStaleMS:    t.Group.CacheStaleMS,
		GroupScanRadiusYards: t.Group.ScanRadiusYards,

		QueueBandCapacity: t.Queue.BandCapacity,
		DedupeWindowMS:    t.Queue.DedupeWindowMS,
		GridCellSizeYards: t.Grid.CellSizeYards,
		HubsEpsYards:      t.Hubs.EpsYards,
		HubsMinPts:        t.Hubs.MinPts,
	}
}

// DefaultConfig is ConfigFrom over the tuning defaults.
func DefaultConfig() Config { return ConfigFrom(tuning.Default()) }
