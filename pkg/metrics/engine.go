package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics counts bid-engine outcomes and cascade step failures.
type EngineMetrics struct {
	mutations    *prometheus.CounterVec
	reelections  prometheus.Counter
	cascadeFails *prometheus.CounterVec
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	m := &EngineMetrics{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bids",
			Name:      "mutations_total",
			Help:      "Bid mutations applied, by operation.",
		}, []string{"op"}),
		reelections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bids",
			Name:      "winner_reelections_total",
			Help:      "Mutations that changed the elected winning bid.",
		}),
		cascadeFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "step_failures_total",
			Help:      "Cascading deletions aborted, by failing step.",
		}, []string{"step"}),
	}
	reg.MustRegister(m.mutations, m.reelections, m.cascadeFails)
	return m
}

func (m *EngineMetrics) IncMutation(op string) {
	if m == nil || m.mutations == nil {
		return
	}
	m.mutations.WithLabelValues(normalizeLabel(op)).Inc()
}

func (m *EngineMetrics) IncReelection() {
	if m == nil || m.reelections == nil {
		return
	}
	m.reelections.Inc()
}

func (m *EngineMetrics) IncCascadeFailure(step string) {
	if m == nil || m.cascadeFails == nil {
		return
	}
	m.cascadeFails.WithLabelValues(normalizeLabel(step)).Inc()
}
