package observer

import (
	"testing"

	"warband.ai/internal/observerproto"
	"warband.ai/internal/sim/orders"
	"warband.ai/internal/sim/spatial"
)

func TestIsLoopbackRemote(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:52000", true},
		{"[::1]:52000", true},
		{"127.0.0.1", true},
		{"10.0.0.5:52000", false},
		{"203.0.113.9:80", false},
		{"observer.example.com:80", false},
		{"", false},
	}
	for _, c := range cases {
		if got := isLoopbackRemote(c.addr); got != c.want {
			t.Errorf("isLoopbackRemote(%q) = %v, want %v", c.addr, got, c.want)
		}
	}
}

func TestNormalizeSubscribeClamps(t *testing.T) {
	sub := observerproto.SubscribeMsg{
		DiagEveryTicks:    2,
		Heatmap:           true,
		HeatmapCols:       -5,
		HeatmapRows:       5000,
		HeatmapEveryTicks: 0,
	}
	normalizeSubscribe(&sub)
	if sub.DiagEveryTicks != 5 {
		t.Fatalf("DiagEveryTicks = %d, want clamp to 5", sub.DiagEveryTicks)
	}
	if sub.HeatmapCols != 64 || sub.HeatmapRows != 256 {
		t.Fatalf("heatmap window = %dx%d, want 64x256", sub.HeatmapCols, sub.HeatmapRows)
	}
	if sub.HeatmapEveryTicks != 20 {
		t.Fatalf("HeatmapEveryTicks = %d, want default 20", sub.HeatmapEveryTicks)
	}

	sub = observerproto.SubscribeMsg{DiagEveryTicks: -3, HeatmapCols: -1}
	normalizeSubscribe(&sub)
	if sub.DiagEveryTicks != 0 {
		t.Fatalf("negative DiagEveryTicks should disable, got %d", sub.DiagEveryTicks)
	}
	if sub.HeatmapCols != -1 {
		t.Fatalf("heatmap fields must stay untouched when Heatmap is off, got cols %d", sub.HeatmapCols)
	}
}

func TestSessionSendDropsWhenFull(t *testing.T) {
	sess := &session{out: make(chan []byte, 2)}
	sess.send([]byte("a"))
	sess.send([]byte("b"))
	sess.send([]byte("c"))
	if len(sess.out) != 2 {
		t.Fatalf("queued = %d, want 2", len(sess.out))
	}
	sess.mu.Lock()
	drops := sess.drops
	sess.mu.Unlock()
	if drops != 1 {
		t.Fatalf("drops = %d, want 1", drops)
	}
}

func TestOutcomeBufferCapsAndDrains(t *testing.T) {
	s := NewServer(nil, nil)
	for i := 0; i < maxPendingOutcomes+50; i++ {
		err := s.WriteOutcome(orders.Outcome{
			Kind:   orders.AssignInterrupt,
			Result: orders.ResultFulfilled,
			Agent:  spatial.EID(uint64(i + 1)),
			Tick:   uint64(i),
		})
		if err != nil {
			t.Fatalf("WriteOutcome: %v", err)
		}
	}
	got := s.takePending()
	if len(got) != maxPendingOutcomes {
		t.Fatalf("pending = %d, want cap %d", len(got), maxPendingOutcomes)
	}
	if got[0].Agent != "1" {
		t.Fatalf("first agent = %q, want %q", got[0].Agent, "1")
	}
	if rest := s.takePending(); len(rest) != 0 {
		t.Fatalf("second drain returned %d records, want 0", len(rest))
	}

	// A tick with no sessions still clears the buffer.
	_ = s.WriteOutcome(orders.Outcome{Kind: orders.AssignDispel, Result: orders.ResultMissed, Agent: 7})
	s.OnTick(100)
	if rest := s.takePending(); len(rest) != 0 {
		t.Fatalf("OnTick with no sessions should drain pending, %d left", len(rest))
	}
}
