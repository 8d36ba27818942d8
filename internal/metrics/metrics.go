package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics exposes counters/histograms for the chat relay.
type RelayMetrics struct {
	eventsTotal     *prometheus.CounterVec
	exchangesTotal  *prometheus.CounterVec
	handleLatency   *prometheus.HistogramVec
	logFailureTotal prometheus.Counter
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaybot",
			Subsystem: "slack",
			Name:      "events_total",
			Help:      "Inbound message events by outcome",
		}, []string{"outcome"}),
		exchangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaybot",
			Subsystem: "session",
			Name:      "exchanges_total",
			Help:      "Completed model exchanges",
		}, []string{"thread", "result"}),
		handleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relaybot",
			Subsystem: "session",
			Name:      "handle_latency_seconds",
			Help:      "Latency of one handled message including model and store calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		logFailureTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relaybot",
			Subsystem: "eventlog",
			Name:      "failures_total",
			Help:      "Exchanges whose keyword or log record could not be produced",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.eventsTotal, m.exchangesTotal, m.handleLatency, m.logFailureTotal)
	return m
}

// ObserveEvent counts an inbound event; outcome is e.g. "handled",
// "duplicate", "ignored" or "failed".
func (m *RelayMetrics) ObserveEvent(outcome string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(outcome).Inc()
}

func (m *RelayMetrics) ObserveExchange(isNewThread, accepted bool) {
	if m == nil {
		return
	}
	thread := "continuing"
	if isNewThread {
		thread = "new"
	}
	result := "accepted"
	if !accepted {
		result = "blocked"
	}
	m.exchangesTotal.WithLabelValues(thread, result).Inc()
}

func (m *RelayMetrics) ObserveHandleLatency(mode string, seconds float64) {
	if m == nil {
		return
	}
	m.handleLatency.WithLabelValues(mode).Observe(seconds)
}

func (m *RelayMetrics) ObserveLogFailure() {
	if m == nil {
		return
	}
	m.logFailureTotal.Inc()
}
