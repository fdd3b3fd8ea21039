package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"warband.ai/internal/logging"
	"warband.ai/internal/observability"
	"warband.ai/internal/persistence/archive"
	persistlog "warband.ai/internal/persistence/log"
	"warband.ai/internal/persistence/snapshot"
	"warband.ai/internal/sim/arena"
	"warband.ai/internal/sim/bots"
	"warband.ai/internal/sim/catalogs"
	"warband.ai/internal/sim/orders"
	"warband.ai/internal/sim/tuning"
	"warband.ai/internal/transport/observer"
)

func main() {
	var (
		addr         = flag.String("addr", ":8080", "http listen address")
		realmID      = flag.String("realm", "", "realm id (default: scenario realm)")
		seed         = flag.Int64("seed", 1337, "arena rng seed")
		configDir    = flag.String("configs", "./configs", "config directory")
		schemaDir    = flag.String("schemas", "./schemas", "json schema directory")
		scenarioPath = flag.String("scenario", "", "arena scenario path (default: <configs>/arena/scenario.json)")
		rosterPath   = flag.String("roster", "", "bot roster path (default: <configs>/arena/roster.json)")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		tuningPath   = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB    = flag.Bool("disable_db", false, "disable indexing (ticks + outcomes + resolver stats + catalogs)")
		warbands     = flag.Int("warbands", 1, "roster replication factor (each roster group spawned this many times)")
		snapEvery    = flag.Uint64("snapshot_every", 1200, "diagnostic snapshot cadence in ticks (0 disables)")

		traceEnabled  = flag.Bool("trace", false, "enable otel tracing")
		traceExporter = flag.String("trace_exporter", "stdout", "trace exporter: stdout or otlp")
		traceEndpoint = flag.String("trace_endpoint", "", "otlp grpc endpoint (when -trace_exporter=otlp)")
		traceSample   = flag.Float64("trace_sample", 0.05, "trace sample ratio")
	)
	flag.Parse()

	ctx, cancel := signalContext()
	defer cancel()

	log := logging.New(logging.Config{Level: "info", Format: "text"})

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		fatal(log, "load tuning", err)
	}
	log = logging.New(logging.Config{Level: tune.LogLevel, Format: tune.LogFormat})

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     *traceEnabled,
		ServiceName: "warband-server",
		Exporter:    *traceExporter,
		Endpoint:    *traceEndpoint,
		SampleRatio: *traceSample,
	}, log)
	if err != nil {
		fatal(log, "init tracing", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	cats, err := catalogs.LoadValidated(*configDir, *schemaDir)
	if err != nil {
		fatal(log, "load catalogs", err)
	}

	sp := strings.TrimSpace(*scenarioPath)
	if sp == "" {
		sp = filepath.Join(*configDir, "arena", "scenario.json")
	}
	scn, err := arena.LoadScenario(sp)
	if err != nil {
		fatal(log, "load scenario", err)
	}

	realm := strings.TrimSpace(*realmID)
	if realm == "" {
		realm = scn.Realm
	}
	realmDir := filepath.Join(*dataDir, "realms", realm)
	_ = os.MkdirAll(realmDir, 0o755)

	reg := prometheus.NewRegistry()
	collector, err := observability.NewEngineCollector(reg)
	if err != nil {
		fatal(log, "register metrics", err)
	}

	// Read-model index backend; never on the tick path, so failures here
	// degrade observability, not the simulation.
	idx, err := openRuntimeIndex(realmDir, realm, *disableDB, log)
	if err != nil {
		fatal(log, "open index backend", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			log.Warn(ctx, "index backend: upsert catalogs", logging.Any("err", err))
		}
	}

	mirror, err := buildMirrorRuntime(*dataDir, log)
	if err != nil {
		fatal(log, "init object mirror", err)
	}
	defer mirror.Close()
	registerMirrorMetrics(reg, mirror)

	host := arena.New(scn, *seed, tune.TickMS)
	eng, err := bots.New(bots.ConfigFrom(tune), host, cats)
	if err != nil {
		fatal(log, "engine", err)
	}

	rp := strings.TrimSpace(*rosterPath)
	if rp == "" {
		rp = filepath.Join(*configDir, "arena", "roster.json")
	}
	roster, err := loadRoster(rp)
	if err != nil {
		fatal(log, "load roster", err)
	}
	spawned, err := spawnRoster(host, eng, cats, roster, *warbands)
	if err != nil {
		fatal(log, "spawn roster", err)
	}
	log.Info(ctx, "roster spawned",
		logging.String("realm", realm),
		logging.String("scenario", filepath.Base(sp)),
		logging.Int("agents", spawned),
		logging.Int("warbands", *warbands))

	enableAdminHTTP := envBool("WB_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("WB_ENABLE_PPROF_HTTP", false)

	var obsSrv *observer.Server
	if enableAdminHTTP {
		obsSrv = observer.NewServer(eng, log)
	}

	logOpts := persistlog.LoggerOptions{}
	if mirror.enabled {
		logOpts.RotateLayout = mirror.rotateLayout
		logOpts.OnClose = mirror.Enqueue
	}
	tickLog := persistlog.NewTickLoggerWithOptions(realmDir, logOpts)
	intentLog := persistlog.NewIntentLoggerWithOptions(realmDir, logOpts)
	outcomeLog := persistlog.NewOutcomeLoggerWithOptions(realmDir, logOpts)
	defer tickLog.Close()
	defer intentLog.Close()
	defer outcomeLog.Close()

	feed := collectorFeed{col: collector}
	tickSinks := []bots.TickLogger{tickLog, feed}
	outcomeSinks := []bots.OutcomeLogger{outcomeLog, feed}
	if idx != nil {
		tickSinks = append(tickSinks, idx)
		outcomeSinks = append(outcomeSinks, idx)
	}
	if obsSrv != nil {
		outcomeSinks = append(outcomeSinks, obsSrv)
	}
	eng.SetTickLogger(multiTickLogger{sinks: tickSinks})
	eng.SetIntentLogger(intentLog)
	eng.SetOutcomeLogger(multiOutcomeLogger{sinks: outcomeSinks})

	// Snapshot writer. Capture happens on the tick thread; everything
	// file-shaped happens here.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(realmDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					log.Warn(ctx, "snapshot write", logging.Any("err", err))
					continue
				}
				mirror.Enqueue(path)
			}
		}
	}()

	loop := newHostLoop(hostLoopConfig{
		Arena:     host,
		Engine:    eng,
		Observer:  obsSrv,
		Collector: collector,
		Index:     idx,
		Log:       log,
		RealmID:   realm,
		MapID:     scn.Map,
		TickMS:    int64(tune.TickMS),
		SnapEvery: *snapEvery,
		SnapCh:    snapCh,
	})
	go loop.run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", collector.Handler())

	if enableAdminHTTP {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				RealmID string             `json:"realm_id"`
				Tick    uint64             `json:"tick"`
				Metrics bots.EngineMetrics `json:"metrics"`
			}{
				RealmID: realm,
				Tick:    eng.CurrentTick(),
				Metrics: eng.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/diag", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(eng.Diagnostics())
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			snap := snapshot.Capture(eng, realm)
			rw.Header().Set("Content-Type", "application/json")
			select {
			case snapCh <- snap:
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": snap.Header.Tick})
			default:
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": snap.Header.Tick, "error": "snapshot writer busy"})
			}
		})

		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		log.Info(ctx, "admin endpoints disabled (WB_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		log.Info(ctx, "pprof endpoints disabled (WB_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	log.Info(ctx, "listening", logging.String("addr", *addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fatal(log, "ListenAndServe", err)
	}

	// The run is over; keep its final state where cleanup won't eat it.
	archiveFinal(eng, realm, realmDir, *dataDir, mirror, log)
}

func archiveFinal(eng *bots.Engine, realm, realmDir, dataDir string, mirror *mirrorRuntime, log logging.Logger) {
	snap := snapshot.Capture(eng, realm)
	if snap.Header.Tick == 0 {
		return
	}
	path := filepath.Join(realmDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		log.Warn(context.Background(), "final snapshot write", logging.Any("err", err))
		return
	}
	mirror.Enqueue(path)
	archivedPath, ok, err := archive.ArchiveRunSnapshot(dataDir, path, snap)
	if err != nil {
		log.Warn(context.Background(), "archive run snapshot", logging.Any("err", err))
		return
	}
	if ok {
		mirror.Enqueue(archivedPath)
		enqueueIfExists(mirror, filepath.Join(filepath.Dir(archivedPath), "meta.json"))
		log.Info(context.Background(), "run archived",
			logging.Uint64("tick", snap.Header.Tick),
			logging.String("path", archivedPath))
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func fatal(log logging.Logger, msg string, err error) {
	log.Error(context.Background(), msg, logging.Any("err", err))
	os.Exit(1)
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

func enqueueIfExists(m *mirrorRuntime, path string) {
	if m == nil || !m.enabled {
		return
	}
	if _, err := os.Stat(path); err == nil {
		m.Enqueue(path)
	}
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

type multiTickLogger struct {
	sinks []bots.TickLogger
}

func (m multiTickLogger) WriteTick(entry bots.TickLogEntry) error {
	for _, s := range m.sinks {
		if s != nil {
			_ = s.WriteTick(entry)
		}
	}
	return nil
}

type multiOutcomeLogger struct {
	sinks []bots.OutcomeLogger
}

func (m multiOutcomeLogger) WriteOutcome(o orders.Outcome) error {
	for _, s := range m.sinks {
		if s != nil {
			_ = s.WriteOutcome(o)
		}
	}
	return nil
}
