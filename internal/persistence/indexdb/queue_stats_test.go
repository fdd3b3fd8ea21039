package indexdb

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"warband.ai/internal/sim/bots"
	"warband.ai/internal/sim/orders"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: bots.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(bots.TickLogEntry{Tick: 2})
	_ = s.WriteOutcome(orders.Outcome{Tick: 2, Kind: orders.AssignInterrupt, Result: orders.ResultMissed, Agent: 5})
	s.RecordResolverStats(2, []bots.ResolverSiteStats{{Site: "x", OK: 1}})

	st := s.Stats()
	if st.DropTickTotal != 1 {
		t.Fatalf("DropTickTotal=%d want=1", st.DropTickTotal)
	}
	if st.DropOutcomeTotal != 1 {
		t.Fatalf("DropOutcomeTotal=%d want=1", st.DropOutcomeTotal)
	}
	if st.DropResolverTotal != 1 {
		t.Fatalf("DropResolverTotal=%d want=1", st.DropResolverTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestHTTPIndex_RetainsBatchOnFlushFailure(t *testing.T) {
	var mu sync.Mutex
	reqCount := 0
	applied := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reqCount++
		thisReq := reqCount
		mu.Unlock()

		if thisReq <= 3 {
			http.Error(w, "temporary failure", http.StatusInternalServerError)
			return
		}

		var body struct {
			Events []indexEvent `json:"events"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		mu.Lock()
		applied += len(body.Events)
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	idx, err := OpenHTTP(HTTPConfig{
		Endpoint:      srv.URL,
		RealmID:       "realm_1",
		BatchSize:     1,
		FlushInterval: 20 * time.Millisecond,
		HTTPTimeout:   2 * time.Second,
	})
	if err != nil {
		t.Fatalf("OpenHTTP: %v", err)
	}
	defer func() { _ = idx.Close() }()

	if err := idx.WriteTick(bots.TickLogEntry{Tick: 123, Agents: 40}); err != nil {
		t.Fatalf("WriteTick: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := applied >= 1
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	finalApplied := applied
	finalReqCount := reqCount
	mu.Unlock()

	if finalApplied < 1 {
		t.Fatalf("expected retained batch to be eventually delivered; applied=%d reqCount=%d", finalApplied, finalReqCount)
	}

	st := idx.Stats()
	if st.FlushFailTotal == 0 {
		t.Fatalf("expected flush failures to be recorded, got 0")
	}
	if st.QueueDroppedTotal != 0 {
		t.Fatalf("unexpected queue drops: %d", st.QueueDroppedTotal)
	}
}

func TestHTTPIndex_OutcomeSeqResetsPerTick(t *testing.T) {
	d := &HTTPIndex{}
	if seq := d.nextOutcomeSeq(10); seq != 0 {
		t.Fatalf("first seq = %d, want 0", seq)
	}
	if seq := d.nextOutcomeSeq(10); seq != 1 {
		t.Fatalf("second seq = %d, want 1", seq)
	}
	if seq := d.nextOutcomeSeq(11); seq != 0 {
		t.Fatalf("new tick seq = %d, want 0", seq)
	}
}
