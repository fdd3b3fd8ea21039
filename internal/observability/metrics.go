package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EngineCollector bundles Prometheus metrics for the agent engine and exposes
// a ready-made /metrics handler. The engine itself never imports this package;
// the server pushes snapshots into the collector between tick rounds.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	Rounds        *prometheus.CounterVec
	RoundDuration prometheus.Histogram

	IntentsDelivered *prometheus.CounterVec
	IntentsDropped   *prometheus.CounterVec
	Acks             *prometheus.CounterVec

	Agents     prometheus.Gauge
	Groups     prometheus.Gauge
	QueueDepth *prometheus.GaugeVec

	Assignments     *prometheus.CounterVec
	ResolverLookups *prometheus.CounterVec
}

// NewEngineCollector registers engine Prometheus metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	rounds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_rounds_total",
		Help: "Total number of tick boundaries, labeled by outcome (dispatched or skipped).",
	}, []string{"outcome"})
	rounds, err := registerCounterVec(reg, rounds, "engine_rounds_total")
	if err != nil {
		return nil, err
	}

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_round_duration_seconds",
		Help:    "Wall time of one agent dispatch round in seconds.",
		Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
	duration, err = registerHistogram(reg, duration, "engine_round_duration_seconds")
	if err != nil {
		return nil, err
	}

	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_intents_delivered_total",
		Help: "Intents handed to the host at tick boundaries, labeled by priority band.",
	}, []string{"band"})
	delivered, err = registerCounterVec(reg, delivered, "engine_intents_delivered_total")
	if err != nil {
		return nil, err
	}

	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_intents_dropped_total",
		Help: "Intents evicted from a full queue band before delivery.",
	}, []string{"band"})
	dropped, err = registerCounterVec(reg, dropped, "engine_intents_dropped_total")
	if err != nil {
		return nil, err
	}

	acks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_acks_total",
		Help: "Host acknowledgements for delivered intents, labeled by result code.",
	}, []string{"code"})
	acks, err = registerCounterVec(reg, acks, "engine_acks_total")
	if err != nil {
		return nil, err
	}

	agents, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_agents",
		Help: "Current number of registered agents.",
	}), "engine_agents")
	if err != nil {
		return nil, err
	}
	groups, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_groups",
		Help: "Current number of live group coordinators.",
	}), "engine_groups")
	if err != nil {
		return nil, err
	}

	depth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "engine_queue_depth",
		Help: "Action queue depth per priority band, sampled after each drain.",
	}, []string{"band"})
	depth, err = registerGaugeVec(reg, depth, "engine_queue_depth")
	if err != nil {
		return nil, err
	}

	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_assignments_total",
		Help: "Coordinator assignment outcomes, labeled by kind and result.",
	}, []string{"kind", "result"})
	assignments, err = registerCounterVec(reg, assignments, "engine_assignments_total")
	if err != nil {
		return nil, err
	}

	resolver := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_resolver_lookups_total",
		Help: "Group member resolution attempts, labeled by source and outcome.",
	}, []string{"source", "outcome"})
	resolver, err = registerCounterVec(reg, resolver, "engine_resolver_lookups_total")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:         gatherer,
		Rounds:           rounds,
		RoundDuration:    duration,
		IntentsDelivered: delivered,
		IntentsDropped:   dropped,
		Acks:             acks,
		Agents:           agents,
		Groups:           groups,
		QueueDepth:       depth,
		Assignments:      assignments,
		ResolverLookups:  resolver,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveRound records one tick boundary.
func (c *EngineCollector) ObserveRound(seconds float64, dispatched bool) {
	if c == nil {
		return
	}
	outcome := "dispatched"
	if !dispatched {
		outcome = "skipped"
	}
	if c.Rounds != nil {
		c.Rounds.WithLabelValues(outcome).Inc()
	}
	if dispatched && c.RoundDuration != nil {
		c.RoundDuration.Observe(seconds)
	}
}

// SetEngineCounts updates the population gauges.
func (c *EngineCollector) SetEngineCounts(agents, groups int) {
	if c == nil {
		return
	}
	if c.Agents != nil {
		c.Agents.Set(float64(agents))
	}
	if c.Groups != nil {
		c.Groups.Set(float64(groups))
	}
}

// SetQueueDepths updates the per-band depth gauges. Bands are indexed
// emergency, combat, normal, low.
func (c *EngineCollector) SetQueueDepths(depths [4]int) {
	if c == nil || c.QueueDepth == nil {
		return
	}
	for i, name := range bandNames {
		c.QueueDepth.WithLabelValues(name).Set(float64(depths[i]))
	}
}

// AddDelivered adds drained-intent counts per band.
func (c *EngineCollector) AddDelivered(counts [4]uint64) {
	if c == nil || c.IntentsDelivered == nil {
		return
	}
	for i, name := range bandNames {
		if counts[i] > 0 {
			c.IntentsDelivered.WithLabelValues(name).Add(float64(counts[i]))
		}
	}
}

// AddDropped adds queue eviction counts per band.
func (c *EngineCollector) AddDropped(counts [4]uint64) {
	if c == nil || c.IntentsDropped == nil {
		return
	}
	for i, name := range bandNames {
		if counts[i] > 0 {
			c.IntentsDropped.WithLabelValues(name).Add(float64(counts[i]))
		}
	}
}

// AddAck adds host acknowledgement counts for one result code.
func (c *EngineCollector) AddAck(code string, n uint64) {
	if c == nil || c.Acks == nil || n == 0 {
		return
	}
	c.Acks.WithLabelValues(code).Add(float64(n))
}

// AddAssignment adds coordinator outcome counts.
func (c *EngineCollector) AddAssignment(kind, result string, n uint64) {
	if c == nil || c.Assignments == nil || n == 0 {
		return
	}
	c.Assignments.WithLabelValues(kind, result).Add(float64(n))
}

// AddResolverLookups adds member resolution counts.
func (c *EngineCollector) AddResolverLookups(source, outcome string, n uint64) {
	if c == nil || c.ResolverLookups == nil || n == 0 {
		return
	}
	c.ResolverLookups.WithLabelValues(source, outcome).Add(float64(n))
}

var bandNames = [4]string{"emergency", "combat", "normal", "low"}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
