// Package observer serves the admin-only diagnostics stream: one TICK
// frame per boundary, DIAG and HEATMAP frames on per-session cadences.
// The host loop drives broadcasting by calling OnTick after each engine
// boundary; connections that cannot keep up lose frames, never block.
package observer

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"warband.ai/internal/logging"
	"warband.ai/internal/observerproto"
	"warband.ai/internal/protocol"
	"warband.ai/internal/sim/bots"
	"warband.ai/internal/sim/encoding"
	"warband.ai/internal/sim/orders"
)

const maxPendingOutcomes = 256

type session struct {
	id  string
	out chan []byte

	mu    sync.Mutex
	sub   observerproto.SubscribeMsg
	drops uint64
}

func (s *session) settings() observerproto.SubscribeMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub
}

func (s *session) update(sub observerproto.SubscribeMsg) {
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
}

// send never blocks; a full channel costs the client the frame.
func (s *session) send(b []byte) {
	select {
	case s.out <- b:
	default:
		s.mu.Lock()
		s.drops++
		s.mu.Unlock()
	}
}

type Server struct {
	engine *bots.Engine
	log    logging.Logger

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session

	pendMu  sync.Mutex
	pending []protocol.OutcomeRecord
}

func NewServer(e *bots.Engine, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Noop()
	}
	return &Server{
		engine:   e,
		log:      logger,
		sessions: map[string]*session{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// WriteOutcome collects settled assignments for the next TICK frame.
// Implements the engine's outcome logger so cmd/server can fan outcomes
// out to persistence and the stream alike.
func (s *Server) WriteOutcome(o orders.Outcome) error {
	s.pendMu.Lock()
	if len(s.pending) < maxPendingOutcomes {
		s.pending = append(s.pending, protocol.NewOutcomeRecord(o))
	}
	s.pendMu.Unlock()
	return nil
}

func (s *Server) takePending() []protocol.OutcomeRecord {
	s.pendMu.Lock()
	out := s.pending
	s.pending = nil
	s.pendMu.Unlock()
	return out
}

// SessionCount reports connected observers.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// OnTick broadcasts the boundary to every session. Call it from the
// host loop right after Engine.OnHostTick; it does nothing when nobody
// is watching.
func (s *Server) OnTick(tick uint64) {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	outcomes := s.takePending()
	if len(sessions) == 0 {
		return
	}

	tickFrame, err := json.Marshal(s.tickMsg(tick, outcomes))
	if err != nil {
		return
	}

	// DIAG payload is shared across sessions; built at most once per tick.
	var diagFrame []byte
	diag := func() []byte {
		if diagFrame != nil {
			return diagFrame
		}
		env, err := protocol.NewDiagEnvelope(tick, "engine", s.engine.Diagnostics())
		if err != nil {
			return nil
		}
		diagFrame, _ = json.Marshal(env)
		return diagFrame
	}

	for _, sess := range sessions {
		sess.send(tickFrame)
		sub := sess.settings()
		if sub.DiagEveryTicks > 0 && tick%uint64(sub.DiagEveryTicks) == 0 {
			if b := diag(); b != nil {
				sess.send(b)
			}
		}
		if sub.Heatmap && sub.HeatmapEveryTicks > 0 && tick%uint64(sub.HeatmapEveryTicks) == 0 {
			if b := s.heatmapFrame(tick, sub); b != nil {
				sess.send(b)
			}
		}
	}
}

func (s *Server) tickMsg(tick uint64, outcomes []protocol.OutcomeRecord) observerproto.TickMsg {
	m := s.engine.Metrics()
	return observerproto.TickMsg{
		Type:            observerproto.TypeTick,
		ProtocolVersion: observerproto.Version,
		Tick:            tick,
		Agents:          m.Agents,
		Groups:          m.Groups,
		RoundsRun:       m.RoundsRun,
		RoundsSkipped:   m.RoundsSkipped,
		LastRoundMS:     m.LastRoundMS,
		LastStepped:     m.LastStepped,
		Hubs:            m.HubCount,
		Queue: observerproto.QueueDepths{
			Emergency: m.QueueDepths.Emergency,
			Combat:    m.QueueDepths.Combat,
			Normal:    m.QueueDepths.Normal,
			Low:       m.QueueDepths.Low,
		},
		IntentsPushed:  m.IntentsPushed,
		IntentsDropped: m.IntentsDropped,
		WindowTicks:    m.StatsWindowTicks,
		Window: observerproto.WindowStats{
			IntentsDelivered:    m.StatsWindow.IntentsDelivered,
			IntentDuplicates:    m.StatsWindow.IntentDuplicates,
			IntentsRejected:     m.StatsWindow.IntentsRejected,
			InterruptsFulfilled: m.StatsWindow.InterruptsFulfilled,
			InterruptsMissed:    m.StatsWindow.InterruptsMissed,
			InterruptsExpired:   m.StatsWindow.InterruptsExpired,
			DispelsFulfilled:    m.StatsWindow.DispelsFulfilled,
			DispelsMissed:       m.StatsWindow.DispelsMissed,
			DispelsExpired:      m.StatsWindow.DispelsExpired,
			ExternalsFulfilled:  m.StatsWindow.ExternalsFulfilled,
			ExternalsMissed:     m.StatsWindow.ExternalsMissed,
			ExternalsExpired:    m.StatsWindow.ExternalsExpired,
		},
		Outcomes: outcomes,
	}
}

func (s *Server) heatmapFrame(tick uint64, sub observerproto.SubscribeMsg) []byte {
	occ := s.engine.Grid().Occupancy(sub.HeatmapMap, sub.HeatmapCellX, sub.HeatmapCellY, sub.HeatmapCols, sub.HeatmapRows)
	msg := observerproto.HeatmapMsg{
		Type:            observerproto.TypeHeatmap,
		ProtocolVersion: observerproto.Version,
		Tick:            tick,
		Map:             sub.HeatmapMap,
		CellX:           sub.HeatmapCellX,
		CellY:           sub.HeatmapCellY,
		Cols:            sub.HeatmapCols,
		Rows:            sub.HeatmapRows,
		CellYards:       s.engine.Config().GridCellSizeYards,
		Encoding:        "RLE",
		Data:            encoding.EncodeRLE(occ),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	return b
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		cfg := s.engine.Config()
		cats := s.engine.Catalogs()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			Tick:            s.engine.CurrentTick(),
			EngineParams: observerproto.EngineParams{
				TickMS:             cfg.TickMS,
				Workers:            cfg.Workers,
				GridCellSizeYards:  cfg.GridCellSizeYards,
				WorkingRadiusYards: cfg.WorkingRadiusYards,
				QueueBandCapacity:  cfg.QueueBandCapacity,
				Hubs:               s.engine.Hubs().HubCount(),
			},
			Catalogs: observerproto.CatalogInfo{
				KitsDigest:       cats.Kits.Digest,
				DefensivesDigest: cats.Defensives.Digest,
				DispelsDigest:    cats.Dispels.Digest,
				RotationsDigest:  cats.Rotations.Digest,
				Classes:          len(cats.Kits.ByClass),
				Rotations:        len(cats.Rotations.BySpec),
			},
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}
		normalizeSubscribe(&sub)

		sess := &session{
			id:  uuid.NewString(),
			out: make(chan []byte, 64),
			sub: sub,
		}
		s.mu.Lock()
		s.sessions[sess.id] = sess
		s.mu.Unlock()
		s.log.Info(r.Context(), "observer joined", logging.String("session", sess.id))

		defer func() {
			s.mu.Lock()
			delete(s.sessions, sess.id)
			s.mu.Unlock()
			sess.mu.Lock()
			drops := sess.drops
			sess.mu.Unlock()
			s.log.Info(context.Background(), "observer left",
				logging.String("session", sess.id),
				logging.Uint64("dropped_frames", drops))
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var sub observerproto.SubscribeMsg
			if err := json.Unmarshal(msg, &sub); err != nil {
				continue
			}
			if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
				continue
			}
			normalizeSubscribe(&sub)
			sess.update(sub)
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	if sub.DiagEveryTicks < 0 {
		sub.DiagEveryTicks = 0
	}
	if sub.DiagEveryTicks > 0 && sub.DiagEveryTicks < 5 {
		sub.DiagEveryTicks = 5
	}
	if sub.DiagEveryTicks > 1200 {
		sub.DiagEveryTicks = 1200
	}
	if !sub.Heatmap {
		return
	}
	if sub.HeatmapCols <= 0 {
		sub.HeatmapCols = 64
	}
	if sub.HeatmapCols > 256 {
		sub.HeatmapCols = 256
	}
	if sub.HeatmapRows <= 0 {
		sub.HeatmapRows = 64
	}
	if sub.HeatmapRows > 256 {
		sub.HeatmapRows = 256
	}
	if sub.HeatmapEveryTicks <= 0 {
		sub.HeatmapEveryTicks = 20
	}
	if sub.HeatmapEveryTicks < 5 {
		sub.HeatmapEveryTicks = 5
	}
	if sub.HeatmapEveryTicks > 1200 {
		sub.HeatmapEveryTicks = 1200
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
