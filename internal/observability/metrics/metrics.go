package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for assistant runs and
// channel delivery.
type ConversationMetrics struct {
	runsTotal       *prometheus.CounterVec
	runCycles       prometheus.Histogram
	toolCallsTotal  *prometheus.CounterVec
	streamFragments prometheus.Counter
	repliesTotal    *prometheus.CounterVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "assistant",
			Name:      "runs_total",
			Help:      "Total assistant runs by outcome",
		}, []string{"outcome"}),
		runCycles: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "concierge",
			Subsystem: "assistant",
			Name:      "run_cycles",
			Help:      "Tool-call pause cycles per run",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "assistant",
			Name:      "tool_calls_total",
			Help:      "Total assistant function calls by name and status",
		}, []string{"function", "status"}),
		streamFragments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "assistant",
			Name:      "stream_fragments_total",
			Help:      "Total streamed answer fragments",
		}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "channels",
			Name:      "replies_total",
			Help:      "Total outbound channel replies by channel and status",
		}, []string{"channel", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.runsTotal, m.runCycles, m.toolCallsTotal, m.streamFragments, m.repliesTotal)
	return m
}

func (m *ConversationMetrics) ObserveRun(outcome string, cycles int) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runCycles.Observe(float64(cycles))
}

func (m *ConversationMetrics) ObserveToolCall(function, status string) {
	if m == nil {
		return
	}
	m.toolCallsTotal.WithLabelValues(function, status).Inc()
}

func (m *ConversationMetrics) ObserveStreamFragment() {
	if m == nil {
		return
	}
	m.streamFragments.Inc()
}

func (m *ConversationMetrics) ObserveReply(channel, status string) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(channel, status).Inc()
}
