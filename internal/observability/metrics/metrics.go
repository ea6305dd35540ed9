package metrics

import "github.com/prometheus/client_golang/prometheus"

// DoormanMetrics exposes counters/histograms for the access flow.
type DoormanMetrics struct {
	turnsTotal     *prometheus.CounterVec
	outcomesTotal  *prometheus.CounterVec
	toolCallsTotal *prometheus.CounterVec
	repliesTotal   *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewDoormanMetrics(reg prometheus.Registerer) *DoormanMetrics {
	m := &DoormanMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portero",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Conversation turns by resulting state",
		}, []string{"state"}),
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portero",
			Subsystem: "conversation",
			Name:      "outcomes_total",
			Help:      "Terminal session outcomes",
		}, []string{"outcome"}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portero",
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "Tool gateway calls by tool and result",
		}, []string{"tool", "status"}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portero",
			Subsystem: "webhook",
			Name:      "replies_total",
			Help:      "Resident webhook replies by interpreted status",
		}, []string{"status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "portero",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of reply webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.outcomesTotal, m.toolCallsTotal, m.repliesTotal, m.webhookLatency)
	return m
}

func (m *DoormanMetrics) ObserveTurn(state string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(state).Inc()
}

func (m *DoormanMetrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomesTotal.WithLabelValues(outcome).Inc()
}

func (m *DoormanMetrics) ObserveToolCall(tool string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.toolCallsTotal.WithLabelValues(tool, status).Inc()
}

func (m *DoormanMetrics) ObserveReply(status string) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(status).Inc()
}

func (m *DoormanMetrics) ObserveWebhookLatency(status string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(status).Observe(seconds)
}
