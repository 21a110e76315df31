package metrics

import "github.com/prometheus/client_golang/prometheus"

// SyncMetrics tracks live viewer sessions and their refresh traffic.
type SyncMetrics struct {
	sessions  prometheus.Gauge
	refreshes *prometheus.CounterVec
	failures  *prometheus.CounterVec
	channel   *prometheus.GaugeVec
}

func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	m := &SyncMetrics{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "livesync",
			Name:      "sessions_active",
			Help:      "Connected live-sync viewer sessions.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "livesync",
			Name:      "refreshes_total",
			Help:      "Snapshot refreshes by trigger.",
		}, []string{"trigger"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "livesync",
			Name:      "refresh_failures_total",
			Help:      "Snapshot refreshes that failed, by trigger.",
		}, []string{"trigger"}),
		channel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "livesync",
			Name:      "push_channel_state",
			Help:      "1 for the current push channel state, 0 otherwise.",
		}, []string{"state"}),
	}
	reg.MustRegister(m.sessions, m.refreshes, m.failures, m.channel)
	return m
}

func (m *SyncMetrics) SessionOpened() {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.Inc()
}

func (m *SyncMetrics) SessionClosed() {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.Dec()
}

func (m *SyncMetrics) IncRefresh(trigger string) {
	if m == nil || m.refreshes == nil {
		return
	}
	m.refreshes.WithLabelValues(normalizeLabel(trigger)).Inc()
}

func (m *SyncMetrics) IncRefreshFailure(trigger string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(trigger)).Inc()
}

// SetChannelState flags current as the active state among all.
func (m *SyncMetrics) SetChannelState(current string, all []string) {
	if m == nil || m.channel == nil {
		return
	}
	for _, state := range all {
		value := 0.0
		if state == current {
			value = 1
		}
		m.channel.WithLabelValues(state).Set(value)
	}
}
