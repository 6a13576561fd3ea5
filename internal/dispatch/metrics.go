package dispatch

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts delivery outcomes per event class.
type Metrics struct {
	Delivered *prometheus.CounterVec
	Failed    *prometheus.CounterVec
	Dropped   prometheus.Counter
}

// NewMetrics builds the dispatch counters and registers them when reg is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wardenbot",
			Subsystem: "dispatch",
			Name:      "delivered_total",
			Help:      "Notifications successfully handed to the gateway.",
		}, []string{"class"}),
		Failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wardenbot",
			Subsystem: "dispatch",
			Name:      "failed_total",
			Help:      "Notification sends rejected by the gateway.",
		}, []string{"class"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wardenbot",
			Subsystem: "dispatch",
			Name:      "dropped_total",
			Help:      "Notifications dropped because the queue was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Delivered, m.Failed, m.Dropped)
	}
	return m
}
