package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "lbharness"

// Acceptor holds the accept server collectors.
type Acceptor struct {
	active   prometheus.Gauge
	accepted prometheus.Counter
	closed   prometheus.Counter
	errors   prometheus.Counter
}

// NewAcceptor creates and registers the accept server collectors.
func NewAcceptor(reg prometheus.Registerer) *Acceptor {
	m := &Acceptor{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "acceptor",
			Name:      "active_connections",
			Help:      "Connections currently held by the accept server.",
		}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "acceptor",
			Name:      "accepted_total",
			Help:      "Connections admitted since start.",
		}),
		closed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "acceptor",
			Name:      "closed_total",
			Help:      "Connections closed since start.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "acceptor",
			Name:      "errors_total",
			Help:      "Accept and per-connection I/O errors.",
		}),
	}
	reg.MustRegister(m.active, m.accepted, m.closed, m.errors)
	return m
}

// Opened records an admitted connection and the resulting active count.
func (m *Acceptor) Opened(active int) {
	if m == nil {
		return
	}
	m.accepted.Inc()
	m.active.Set(float64(active))
}

// Closed records a finished connection and the resulting active count.
func (m *Acceptor) Closed(active int) {
	if m == nil {
		return
	}
	m.closed.Inc()
	m.active.Set(float64(active))
}

// Error records an accept or connection error.
func (m *Acceptor) Error() {
	if m == nil {
		return
	}
	m.errors.Inc()
}
