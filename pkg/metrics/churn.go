package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Connect attempt results.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Churn holds the churn client collectors, labelled by worker index.
type Churn struct {
	connects    *prometheus.CounterVec
	disconnects *prometheus.CounterVec
	poolSize    *prometheus.GaugeVec
}

// NewChurn creates and registers the churn client collectors.
func NewChurn(reg prometheus.Registerer) *Churn {
	m := &Churn{
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "churn",
			Name:      "connect_attempts_total",
			Help:      "Outbound connect attempts by result.",
		}, []string{"worker", "result"}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "churn",
			Name:      "disconnects_total",
			Help:      "Connections closed by a worker.",
		}, []string{"worker"}),
		poolSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "churn",
			Name:      "pool_size",
			Help:      "Live connections held by a worker.",
		}, []string{"worker"}),
	}
	reg.MustRegister(m.connects, m.disconnects, m.poolSize)
	return m
}

// ConnectAttempt records one connect attempt.
func (m *Churn) ConnectAttempt(worker int, ok bool) {
	if m == nil {
		return
	}
	result := ResultOK
	if !ok {
		result = ResultFailed
	}
	m.connects.WithLabelValues(strconv.Itoa(worker), result).Inc()
}

// Disconnect records one closed connection.
func (m *Churn) Disconnect(worker int) {
	if m == nil {
		return
	}
	m.disconnects.WithLabelValues(strconv.Itoa(worker)).Inc()
}

// PoolSize records the current pool size of a worker.
func (m *Churn) PoolSize(worker, size int) {
	if m == nil {
		return
	}
	m.poolSize.WithLabelValues(strconv.Itoa(worker)).Set(float64(size))
}
