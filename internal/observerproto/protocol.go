// Package observerproto defines the message shapes on the admin-only
// observer websocket stream. DIAG frames reuse protocol.DiagEnvelope;
// everything else is defined here.
package observerproto

import "warband.ai/internal/protocol"

// Version is the observer stream version (separate from the logged
// record protocol).
const Version = "0.1"

// Message types on the stream.
const (
	TypeSubscribe = "SUBSCRIBE"
	TypeTick      = protocol.TypeTick
	TypeHeatmap   = "HEATMAP"
)

// Client -> Server. First message on the observer WS connection, and can
// be re-sent to retune cadences and the heatmap window.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// DIAG cadence in ticks; 0 disables DIAG frames.
	DiagEveryTicks int `json:"diag_every_ticks,omitempty"`

	// Optional occupancy heatmap window, in grid cell coordinates.
	Heatmap           bool   `json:"heatmap,omitempty"`
	HeatmapMap        uint32 `json:"heatmap_map,omitempty"`
	HeatmapCellX      int32  `json:"heatmap_cell_x,omitempty"`
	HeatmapCellY      int32  `json:"heatmap_cell_y,omitempty"`
	HeatmapCols       int    `json:"heatmap_cols,omitempty"`
	HeatmapRows       int    `json:"heatmap_rows,omitempty"`
	HeatmapEveryTicks int    `json:"heatmap_every_ticks,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	EngineParams    EngineParams `json:"engine_params"`
	Catalogs        CatalogInfo  `json:"catalogs"`
}

type EngineParams struct {
	TickMS             int64   `json:"tick_ms"`
	Workers            int     `json:"workers"`
	GridCellSizeYards  float32 `json:"grid_cell_size_yards"`
	WorkingRadiusYards float32 `json:"working_radius_yards"`
	QueueBandCapacity  int     `json:"queue_band_capacity"`
	Hubs               int     `json:"hubs"`
}

type CatalogInfo struct {
	KitsDigest       string `json:"kits_digest"`
	DefensivesDigest string `json:"defensives_digest"`
	DispelsDigest    string `json:"dispels_digest"`
	RotationsDigest  string `json:"rotations_digest"`
	Classes          int    `json:"classes"`
	Rotations        int    `json:"rotations"`
}

// Server -> Client. Sent every boundary.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Agents        int     `json:"agents"`
	Groups        int     `json:"groups"`
	RoundsRun     uint64  `json:"rounds_run"`
	RoundsSkipped uint64  `json:"rounds_skipped,omitempty"`
	LastRoundMS   float64 `json:"last_round_ms"`
	LastStepped   uint64  `json:"last_stepped"`
	Hubs          int     `json:"hubs,omitempty"`

	Queue          QueueDepths `json:"queue"`
	IntentsPushed  uint64      `json:"intents_pushed"`
	IntentsDropped uint64      `json:"intents_dropped,omitempty"`

	WindowTicks uint64      `json:"window_ticks"`
	Window      WindowStats `json:"window"`

	// Assignments settled since the previous TICK frame.
	Outcomes []protocol.OutcomeRecord `json:"outcomes,omitempty"`
}

// QueueDepths is per-band occupancy at the last boundary.
type QueueDepths struct {
	Emergency int `json:"emergency"`
	Combat    int `json:"combat"`
	Normal    int `json:"normal"`
	Low       int `json:"low"`
}

// WindowStats aggregates the engine's rolling stats window.
type WindowStats struct {
	IntentsDelivered int `json:"intents_delivered"`
	IntentDuplicates int `json:"intent_duplicates,omitempty"`
	IntentsRejected  int `json:"intents_rejected,omitempty"`

	InterruptsFulfilled int `json:"interrupts_fulfilled,omitempty"`
	InterruptsMissed    int `json:"interrupts_missed,omitempty"`
	InterruptsExpired   int `json:"interrupts_expired,omitempty"`

	DispelsFulfilled int `json:"dispels_fulfilled,omitempty"`
	DispelsMissed    int `json:"dispels_missed,omitempty"`
	DispelsExpired   int `json:"dispels_expired,omitempty"`

	ExternalsFulfilled int `json:"externals_fulfilled,omitempty"`
	ExternalsMissed    int `json:"externals_missed,omitempty"`
	ExternalsExpired   int `json:"externals_expired,omitempty"`
}

// Server -> Client. RLE-encoded occupancy counts for the subscribed
// window. Encoding "RLE" means: decode base64 to varint pairs
// (value, run_len); cells are row major, Cols wide by Rows tall, with
// the window origin at grid cell (CellX, CellY).
type HeatmapMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Map       uint32  `json:"map"`
	CellX     int32   `json:"cell_x"`
	CellY     int32   `json:"cell_y"`
	Cols      int     `json:"cols"`
	Rows      int     `json:"rows"`
	CellYards float32 `json:"cell_yards"`
	Encoding  string  `json:"encoding"`
	Data      string  `json:"data"`
}
