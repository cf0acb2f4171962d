package pool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mysqlstream"

type metrics struct {
	outstanding prometheus.GaugeFunc
	open        prometheus.GaugeFunc
	idle        prometheus.GaugeFunc
	acquires    *prometheus.CounterVec
	acquireWait prometheus.Histogram
}

func newMetrics(p *Pool) *metrics {
	return &metrics{
		outstanding: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "outstanding_leases",
			Help:      "Connections leased and not yet released.",
		}, func() float64 {
			return float64(p.Outstanding())
		}),
		open: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "open_connections",
			Help:      "Established connections, in use and idle.",
		}, func() float64 {
			return float64(p.db.Stats().OpenConnections)
		}),
		idle: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "idle_connections",
			Help:      "Connections sitting in the idle set.",
		}, func() float64 {
			return float64(p.db.Stats().Idle)
		}),
		acquires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "acquires_total",
			Help:      "Acquire calls partitioned by outcome.",
		}, []string{"result"}),
		acquireWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "acquire_wait_seconds",
			Help:      "Time spent waiting for a free connection.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.outstanding, m.open, m.idle, m.acquires, m.acquireWait}
}

// register 失败的时候撤销已经注册成功的 collector
func (m *metrics) register(reg prometheus.Registerer) error {
	cs := m.collectors()
	for i, c := range cs {
		if err := reg.Register(c); err != nil {
			for _, done := range cs[:i] {
				reg.Unregister(done)
			}
			return err
		}
	}
	return nil
}

func (m *metrics) unregister(reg prometheus.Registerer) {
	for _, c := range m.collectors() {
		reg.Unregister(c)
	}
}

func (m *metrics) observeAcquire(wait time.Duration, err error) {
	m.acquireWait.Observe(wait.Seconds())
	if err != nil {
		m.acquires.WithLabelValues("error").Inc()
		return
	}
	m.acquires.WithLabelValues("ok").Inc()
}
