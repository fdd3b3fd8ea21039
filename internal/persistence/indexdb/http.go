package indexdb

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"warband.ai/internal/logging"
	"warband.ai/internal/sim/bots"
	"warband.ai/internal/sim/catalogs"
	"warband.ai/internal/sim/orders"
	"warband.ai/internal/sim/tuning"
)

// HTTPConfig points the indexer at a fleet ingest endpoint. RealmID
// distinguishes engines when many hosts report to one collector.
type HTTPConfig struct {
	Endpoint      string
	Token         string
	RealmID       string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	Logger        logging.Logger
}

// HTTPIndex ships the same records the SQLite index stores to a remote
// collector, batched and retried. A failed flush keeps its batch for
// the next interval instead of dropping it.
type HTTPIndex struct {
	cfg        HTTPConfig
	httpClient *http.Client

	ch   chan indexEvent
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	outcomeMu       sync.Mutex
	lastOutcomeTick uint64
	outcomeSeq      int

	queueDropped atomic.Uint64
	flushFail    atomic.Uint64
	eventsSent   atomic.Uint64
}

// HTTPStats is a point-in-time view of the exporter queue.
type HTTPStats struct {
	QueueDepth    int
	QueueCapacity int

	QueueDroppedTotal uint64
	FlushFailTotal    uint64
	EventsSentTotal   uint64
}

type indexEvent struct {
	Kind    string `json:"kind"`
	RealmID string `json:"realm_id"`
	Payload any    `json:"payload"`
}

type httpTickPayload struct {
	Tick       uint64 `json:"tick"`
	AtMS       int64  `json:"at_ms"`
	Agents     int    `json:"agents"`
	Delivered  int    `json:"delivered"`
	Duplicates int    `json:"duplicates,omitempty"`
	Rejected   int    `json:"rejected,omitempty"`
	Outcomes   int    `json:"outcomes,omitempty"`
	Skipped    bool   `json:"round_skipped,omitempty"`
}

type httpOutcomePayload struct {
	Tick   uint64 `json:"tick"`
	Seq    int    `json:"seq"`
	AtMS   int64  `json:"at_ms"`
	Group  uint64 `json:"group,omitempty"`
	Kind   string `json:"kind"`
	Result string `json:"result"`
	Agent  string `json:"agent"`
	Target string `json:"target,omitempty"`
	Spell  uint32 `json:"spell,omitempty"`
}

type httpResolverPayload struct {
	Tick  uint64                   `json:"tick"`
	Sites []bots.ResolverSiteStats `json:"sites"`
}

type httpCatalogPayload struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

func OpenHTTP(cfg HTTPConfig) (*HTTPIndex, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.RealmID = strings.TrimSpace(cfg.RealmID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty ingest endpoint")
	}
	if cfg.RealmID == "" {
		return nil, fmt.Errorf("empty realm id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Noop()
	}

	d := &HTTPIndex{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		ch: make(chan indexEvent, 32768),
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()

	return d, nil
}

func (d *HTTPIndex) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *HTTPIndex) Stats() HTTPStats {
	st := HTTPStats{
		QueueDroppedTotal: d.queueDropped.Load(),
		FlushFailTotal:    d.flushFail.Load(),
		EventsSentTotal:   d.eventsSent.Load(),
	}
	if d.ch != nil {
		st.QueueDepth = len(d.ch)
		st.QueueCapacity = cap(d.ch)
	}
	return st
}

func (d *HTTPIndex) WriteTick(entry bots.TickLogEntry) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	p := httpTickPayload{
		Tick:       entry.Tick,
		AtMS:       entry.AtMS,
		Agents:     entry.Agents,
		Delivered:  entry.Delivered,
		Duplicates: entry.Duplicates,
		Rejected:   entry.Acks[2] + entry.Acks[3],
		Outcomes:   entry.Outcomes,
		Skipped:    entry.Skipped,
	}
	d.enqueue(indexEvent{Kind: "tick", RealmID: d.cfg.RealmID, Payload: p})
	return nil
}

func (d *HTTPIndex) WriteOutcome(o orders.Outcome) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	p := httpOutcomePayload{
		Tick:   o.Tick,
		Seq:    d.nextOutcomeSeq(o.Tick),
		AtMS:   o.AtMS,
		Group:  o.Group,
		Kind:   string(o.Kind),
		Result: string(o.Result),
		Agent:  o.Agent.String(),
		Spell:  o.Spell,
	}
	if !o.Target.IsZero() {
		p.Target = o.Target.String()
	}
	d.enqueue(indexEvent{Kind: "outcome", RealmID: d.cfg.RealmID, Payload: p})
	return nil
}

func (d *HTTPIndex) RecordResolverStats(tick uint64, sites []bots.ResolverSiteStats) {
	if d == nil || d.closed.Load() || len(sites) == 0 {
		return
	}
	d.enqueue(indexEvent{Kind: "resolver_stats", RealmID: d.cfg.RealmID, Payload: httpResolverPayload{
		Tick:  tick,
		Sites: sites,
	}})
}

func (d *HTTPIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if d == nil || d.closed.Load() || cats == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	raw := map[string][]byte{}
	read := func(name, path string) {
		b, err := os.ReadFile(path)
		if err != nil {
			return
		}
		raw[name] = b
	}
	if configDir != "" {
		read("kits", filepath.Join(configDir, "kits.json"))
		read("defensives", filepath.Join(configDir, "defensives.json"))
		read("dispels", filepath.Join(configDir, "dispels.json"))
	}

	type row struct {
		name   string
		digest string
		data   []byte
	}
	rows := make([]row, 0, 5)
	if b := raw["kits"]; len(b) > 0 {
		rows = append(rows, row{name: "kits", digest: cats.Kits.Digest, data: b})
	}
	if b := raw["defensives"]; len(b) > 0 {
		rows = append(rows, row{name: "defensives", digest: cats.Defensives.Digest, data: b})
	}
	if b := raw["dispels"]; len(b) > 0 {
		rows = append(rows, row{name: "dispels", digest: cats.Dispels.Digest, data: b})
	}
	{
		keys := make([]catalogs.SpecKey, 0, len(cats.Rotations.BySpec))
		for k := range cats.Rotations.BySpec {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].Class != keys[j].Class {
				return keys[i].Class < keys[j].Class
			}
			return keys[i].Spec < keys[j].Spec
		})
		rots := make([]catalogs.RotationDef, 0, len(keys))
		for _, k := range keys {
			rots = append(rots, cats.Rotations.BySpec[k])
		}
		if b, err := json.Marshal(rots); err == nil && len(b) > 0 {
			rows = append(rows, row{name: "rotations", digest: cats.Rotations.Digest, data: b})
		}
	}
	if b, err := json.Marshal(tune); err == nil && len(b) > 0 {
		sum := sha256.Sum256(b)
		rows = append(rows, row{name: "tuning", digest: hex.EncodeToString(sum[:]), data: b})
	}

	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.data) == 0 {
			continue
		}
		d.enqueue(indexEvent{Kind: "catalog", RealmID: d.cfg.RealmID, Payload: httpCatalogPayload{
			Name:      r.name,
			Digest:    r.digest,
			JSON:      string(r.data),
			UpdatedAt: now,
		}})
	}
	return nil
}

func (d *HTTPIndex) nextOutcomeSeq(tick uint64) int {
	d.outcomeMu.Lock()
	defer d.outcomeMu.Unlock()
	if tick != d.lastOutcomeTick {
		d.lastOutcomeTick = tick
		d.outcomeSeq = 0
	}
	seq := d.outcomeSeq
	d.outcomeSeq++
	return seq
}

func (d *HTTPIndex) enqueue(ev indexEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	select {
	case d.ch <- ev:
	default:
		d.queueDropped.Add(1)
		d.cfg.Logger.Warn(context.Background(), "index queue full, dropping event",
			logging.String("kind", ev.Kind),
			logging.String("realm", ev.RealmID))
	}
}

func (d *HTTPIndex) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	// On flush failure the batch is retained for the next interval, up
	// to a bound; past that the oldest events give way to new ones.
	maxRetained := 8 * d.cfg.BatchSize

	batch := make([]indexEvent, 0, d.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.sendBatch(batch); err != nil {
			d.flushFail.Add(1)
			d.cfg.Logger.Warn(context.Background(), "index flush failed",
				logging.Int("batch", len(batch)),
				logging.Any("err", err))
			if over := len(batch) - maxRetained; over > 0 {
				d.queueDropped.Add(uint64(over))
				batch = append(batch[:0], batch[over:]...)
			}
			return
		}
		d.eventsSent.Add(uint64(len(batch)))
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *HTTPIndex) sendBatch(events []indexEvent) error {
	if len(events) == 0 {
		return nil
	}

	body := struct {
		Events []indexEvent `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if d.cfg.Token != "" {
			req.Header.Set("x-wb-index-token", d.cfg.Token)
		}

		resp, err := d.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}
