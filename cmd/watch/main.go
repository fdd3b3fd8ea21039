package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"warband.ai/internal/observerproto"
	"warband.ai/internal/protocol"
	"warband.ai/internal/sim/bots"
	"warband.ai/internal/sim/encoding"
)

func main() {
	var (
		baseURL      = flag.String("url", "http://127.0.0.1:8080", "server base url")
		diagEvery    = flag.Int("diag_every", 100, "DIAG cadence in ticks (0 disables)")
		heatmap      = flag.Bool("heatmap", false, "subscribe to the occupancy heatmap")
		heatmapMap   = flag.Uint("heatmap_map", 0, "heatmap map id")
		heatmapX     = flag.Int("heatmap_x", -32, "heatmap window origin, grid cell x")
		heatmapY     = flag.Int("heatmap_y", -32, "heatmap window origin, grid cell y")
		heatmapCols  = flag.Int("heatmap_cols", 64, "heatmap window width in cells")
		heatmapRows  = flag.Int("heatmap_rows", 64, "heatmap window height in cells")
		heatmapEvery = flag.Int("heatmap_every", 20, "heatmap cadence in ticks")
		render       = flag.Bool("render", false, "render heatmap frames as ASCII")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lmicroseconds)

	boot, err := fetchBootstrap(*baseURL)
	if err != nil {
		logger.Fatalf("bootstrap: %v", err)
	}
	logger.Printf("BOOTSTRAP tick=%d tick_ms=%d workers=%d cell=%.0fy radius=%.0fy hubs=%d classes=%d rotations=%d",
		boot.Tick, boot.EngineParams.TickMS, boot.EngineParams.Workers,
		boot.EngineParams.GridCellSizeYards, boot.EngineParams.WorkingRadiusYards,
		boot.EngineParams.Hubs, boot.Catalogs.Classes, boot.Catalogs.Rotations)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(*baseURL), nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		DiagEveryTicks:  *diagEvery,
	}
	if *heatmap {
		sub.Heatmap = true
		sub.HeatmapMap = uint32(*heatmapMap)
		sub.HeatmapCellX = int32(*heatmapX)
		sub.HeatmapCellY = int32(*heatmapY)
		sub.HeatmapCols = *heatmapCols
		sub.HeatmapRows = *heatmapRows
		sub.HeatmapEveryTicks = *heatmapEvery
	}
	if err := conn.WriteJSON(sub); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case observerproto.TypeTick:
			var t observerproto.TickMsg
			if err := json.Unmarshal(msg, &t); err != nil {
				continue
			}
			handleTick(logger, &t)

		case protocol.TypeDiag:
			var env protocol.DiagEnvelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			handleDiag(logger, &env)

		case observerproto.TypeHeatmap:
			var hm observerproto.HeatmapMsg
			if err := json.Unmarshal(msg, &hm); err != nil {
				continue
			}
			handleHeatmap(logger, &hm, *render)
		}
	}
}

func handleTick(logger *log.Logger, t *observerproto.TickMsg) {
	logger.Printf("TICK %d agents=%d groups=%d round=%.1fms stepped=%d q=%d/%d/%d/%d win(%d)=%d delivered",
		t.Tick, t.Agents, t.Groups, t.LastRoundMS, t.LastStepped,
		t.Queue.Emergency, t.Queue.Combat, t.Queue.Normal, t.Queue.Low,
		t.WindowTicks, t.Window.IntentsDelivered)
	for _, o := range t.Outcomes {
		tgt := o.Target
		if tgt == "" {
			tgt = "-"
		}
		logger.Printf("  %s %s agent=%s target=%s spell=%d", o.Kind, o.Result, o.Agent, tgt, o.Spell)
	}
}

func handleDiag(logger *log.Logger, env *protocol.DiagEnvelope) {
	if env.Kind != "engine" {
		logger.Printf("DIAG %d kind=%s", env.Tick, env.Kind)
		return
	}
	var d bots.DiagSnapshot
	if err := json.Unmarshal(env.Payload, &d); err != nil {
		return
	}
	var sb strings.Builder
	for _, s := range d.Resolver {
		fmt.Fprintf(&sb, " %s=%d/%d", s.Site, s.OK, s.Fail)
	}
	logger.Printf("DIAG %d agents=%d groups=%d resolver(ok/fail):%s", d.Tick, len(d.Agents), len(d.Groups), sb.String())
}

func handleHeatmap(logger *log.Logger, hm *observerproto.HeatmapMsg, render bool) {
	cells, err := encoding.DecodeRLE(hm.Data)
	if err != nil || len(cells) != hm.Cols*hm.Rows {
		logger.Printf("HEATMAP %d bad frame: %v", hm.Tick, err)
		return
	}
	occupied := 0
	var max uint16
	for _, v := range cells {
		if v > 0 {
			occupied++
		}
		if v > max {
			max = v
		}
	}
	logger.Printf("HEATMAP %d map=%d window=%dx%d@(%d,%d) cell=%.0fy occupied=%d max=%d",
		hm.Tick, hm.Map, hm.Cols, hm.Rows, hm.CellX, hm.CellY, hm.CellYards, occupied, max)
	if !render || max == 0 {
		return
	}
	glyphs := []byte(" .:-=+*#%@")
	for r := 0; r < hm.Rows; r++ {
		line := make([]byte, hm.Cols)
		for c := 0; c < hm.Cols; c++ {
			v := int(cells[r*hm.Cols+c])
			g := v * (len(glyphs) - 1) / int(max)
			line[c] = glyphs[g]
		}
		fmt.Println(string(line))
	}
}

func fetchBootstrap(baseURL string) (observerproto.BootstrapResponse, error) {
	var boot observerproto.BootstrapResponse
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/admin/v1/observer/bootstrap")
	if err != nil {
		return boot, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return boot, fmt.Errorf("status %s", resp.Status)
	}
	err = json.NewDecoder(resp.Body).Decode(&boot)
	return boot, err
}

func wsURL(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/admin/v1/observer/ws"
}
