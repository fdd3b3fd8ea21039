package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickMS  int `yaml:"tick_ms"`
	Workers int `yaml:"workers"` // 0 = GOMAXPROCS-1

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// StrictInvariants aborts on invariant violations instead of
	// log-and-skip. Debug runs only.
	StrictInvariants bool `yaml:"strict_invariants"`

	Grid     Grid     `yaml:"grid"`
	Queue    Queue    `yaml:"queue"`
	Scan     Scan     `yaml:"scan"`
	Combat   Combat   `yaml:"combat"`
	Heal     Heal     `yaml:"heal"`
	Defense  Defense  `yaml:"defense"`
	Dispel   Dispel   `yaml:"dispel"`
	Quest    Quest    `yaml:"quest"`
	Movement Movement `yaml:"movement"`
	Hubs     Hubs     `yaml:"hubs"`
	Group    Group    `yaml:"group"`
}

type Grid struct {
	CellSizeYards float32 `yaml:"cell_size_yards"`
}

type Queue struct {
	BandCapacity   int   `yaml:"band_capacity"`
	DedupeWindowMS int64 `yaml:"dedupe_window_ms"`
}

type Scan struct {
	WorkingRadiusYards   float32 `yaml:"working_radius_yards"`
	InterruptScanMS      int64   `yaml:"interrupt_scan_ms"`
	InterruptRadiusYards float32 `yaml:"interrupt_radius_yards"`
	DispelScanMS         int64   `yaml:"dispel_scan_ms"`
}

type Combat struct {
	MeleeRangeYards    float32 `yaml:"melee_range_yards"`
	CasterRangeYards   float32 `yaml:"caster_range_yards"`
	ExecuteHealthPct   float32 `yaml:"execute_health_pct"`
	ReassignAtRemainMS int64   `yaml:"reassign_at_remain_ms"`
}

type Heal struct {
	MaxRangeYards     float32 `yaml:"max_range_yards"`
	AoERadiusYards    float32 `yaml:"aoe_radius_yards"`
	ExcludeAbovePct   float32 `yaml:"exclude_above_pct"`
	CriticalPct       float32 `yaml:"critical_pct"`
	IncomingDiscount  float32 `yaml:"incoming_discount"`
	AoEMinCluster     int     `yaml:"aoe_min_cluster"`
	AoEMinMeanDeficit float32 `yaml:"aoe_min_mean_deficit"`
	WeightMainTank    float32 `yaml:"weight_main_tank"`
	WeightTank        float32 `yaml:"weight_tank"`
	WeightHealer      float32 `yaml:"weight_healer"`
	WeightDamage      float32 `yaml:"weight_damage"`
	ThreatTieEpsilon  float32 `yaml:"threat_tie_epsilon"`
	DispellableBonus  float32 `yaml:"dispellable_bonus"`
}

type Defense struct {
	WindowMS        int64   `yaml:"window_ms"`
	PreemptivePct   float32 `yaml:"preemptive_pct"`
	MinorPct        float32 `yaml:"minor_pct"`
	ModeratePct     float32 `yaml:"moderate_pct"`
	MajorPct        float32 `yaml:"major_pct"`
	ScaleTank       float32 `yaml:"scale_tank"`
	ScaleHealer     float32 `yaml:"scale_healer"`
	ScaleDamage     float32 `yaml:"scale_damage"`
	RecentUseMS     int64   `yaml:"recent_use_ms"`
	ExternalReuseMS int64   `yaml:"external_reuse_ms"`
}

type Dispel struct {
	RateLimitMS int64 `yaml:"rate_limit_ms"`
	RecentMS    int64 `yaml:"recent_ms"`
}

type Quest struct {
	PollMS             int64   `yaml:"poll_ms"`
	StagnationMS       int64   `yaml:"stagnation_ms"`
	GiverBackoffBaseMS int64   `yaml:"giver_backoff_base_ms"`
	GiverBackoffCapMS  int64   `yaml:"giver_backoff_cap_ms"`
	MaxPathYards       float32 `yaml:"max_path_yards"`
	SafeDistancePad    float32 `yaml:"safe_distance_pad"`
	InteractRangeYards float32 `yaml:"interact_range_yards"`
	LootRadiusYards    float32 `yaml:"loot_radius_yards"`
}

type Movement struct {
	ArriveToleranceYards float32 `yaml:"arrive_tolerance_yards"`
	FollowDistanceYards  float32 `yaml:"follow_distance_yards"`
	WanderRadiusYards    float32 `yaml:"wander_radius_yards"`
	WanderPauseMS        int64   `yaml:"wander_pause_ms"`
}

type Hubs struct {
	EpsYards float32 `yaml:"eps_yards"`
	MinPts   int     `yaml:"min_pts"`
}

type Group struct {
	RefreshMS       int64   `yaml:"refresh_ms"`
	CacheStaleMS    int64   `yaml:"cache_stale_ms"`
	ScanRadiusYards float32 `yaml:"scan_radius_yards"`
}

// Default returns the engine defaults; Load overlays a file on top.
func Default() Tuning {
	return Tuning{
		TickMS:    50,
		Workers:   0,
		LogLevel:  "info",
		LogFormat: "text",
		Grid:      Grid{CellSizeYards: 32},
		Queue:     Queue{BandCapacity: 1024, DedupeWindowMS: 150},
		Scan: Scan{
			WorkingRadiusYards:   60,
			InterruptScanMS:      100,
			InterruptRadiusYards: 40,
			DispelScanMS:         200,
		},
		Combat: Combat{
			MeleeRangeYards:    5,
			CasterRangeYards:   30,
			ExecuteHealthPct:   20,
			ReassignAtRemainMS: 150,
		},
		Heal: Heal{
			MaxRangeYards:     40,
			AoERadiusYards:    15,
			ExcludeAbovePct:   95,
			CriticalPct:       35,
			IncomingDiscount:  0.7,
			AoEMinCluster:     3,
			AoEMinMeanDeficit: 20,
			WeightMainTank:    2.5,
			WeightTank:        2.0,
			WeightHealer:      1.5,
			WeightDamage:      1.0,
			ThreatTieEpsilon:  0.1,
			DispellableBonus:  10,
		},
		Defense: Defense{
			WindowMS:        3000,
			PreemptivePct:   80,
			MinorPct:        60,
			ModeratePct:     40,
			MajorPct:        20,
			ScaleTank:       0.8,
			ScaleHealer:     1.0,
			ScaleDamage:     1.0,
			RecentUseMS:     30000,
			ExternalReuseMS: 10000,
		},
		Dispel: Dispel{RateLimitMS: 1000, RecentMS: 5000},
		Quest: Quest{
			PollMS:             500,
			StagnationMS:       30000,
			GiverBackoffBaseMS: 2000,
			GiverBackoffCapMS:  60000,
			MaxPathYards:       500,
			SafeDistancePad:    3,
			InteractRangeYards: 5,
			LootRadiusYards:    40,
		},
		Movement: Movement{
			ArriveToleranceYards: 2,
			FollowDistanceYards:  15,
			WanderRadiusYards:    20,
			WanderPauseMS:        8000,
		},
		Hubs:  Hubs{EpsYards: 75, MinPts: 2},
		Group: Group{RefreshMS: 2000, CacheStaleMS: 5000, ScanRadiusYards: 100},
	}
}

func Load(path string) (Tuning, error) {
	t := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
