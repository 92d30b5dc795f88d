package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lamport"

// Metrics holds the Prometheus collectors for key generation, signing,
// verification and tree building. All methods are safe on a nil receiver so
// library code can record unconditionally.
type Metrics struct {
	KeysGenerated      prometheus.Counter
	SignaturesProduced prometheus.Counter
	SignErrors         *prometheus.CounterVec
	Verifications      *prometheus.CounterVec
	MerkleBuilds       prometheus.Counter
	MerkleLeaves       prometheus.Histogram
	OperationLatency   *prometheus.HistogramVec
}

// NewMetrics initializes the collectors. They are not registered until Register is called.
func NewMetrics() *Metrics {
	return &Metrics{
		KeysGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_generated_total",
			Help:      "Number of one-time key pairs generated",
		}),
		SignaturesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signatures_produced_total",
			Help:      "Number of signatures produced",
		}),
		SignErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sign_errors_total",
				Help:      "Number of rejected sign requests",
			},
			[]string{"reason"},
		),
		Verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verifications_total",
				Help:      "Number of signature verifications by outcome",
			},
			[]string{"result"},
		),
		MerkleBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merkle_builds_total",
			Help:      "Number of merkle trees built",
		}),
		MerkleLeaves: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merkle_leaves",
			Help:      "Leaf count of built merkle trees",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		OperationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_latency_seconds",
				Help:      "Latency of core operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.KeysGenerated,
		m.SignaturesProduced,
		m.SignErrors,
		m.Verifications,
		m.MerkleBuilds,
		m.MerkleLeaves,
		m.OperationLatency,
	}
}

func (m *Metrics) KeyGenerated(start time.Time) {
	if m == nil {
		return
	}
	m.KeysGenerated.Inc()
	m.OperationLatency.WithLabelValues("keygen").Observe(time.Since(start).Seconds())
}

func (m *Metrics) Signed(start time.Time) {
	if m == nil {
		return
	}
	m.SignaturesProduced.Inc()
	m.OperationLatency.WithLabelValues("sign").Observe(time.Since(start).Seconds())
}

func (m *Metrics) SignRejected(reason string) {
	if m == nil {
		return
	}
	m.SignErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) Verified(ok bool, start time.Time) {
	if m == nil {
		return
	}
	result := "invalid"
	if ok {
		result = "valid"
	}
	m.Verifications.WithLabelValues(result).Inc()
	m.OperationLatency.WithLabelValues("verify").Observe(time.Since(start).Seconds())
}

func (m *Metrics) TreeBuilt(leaves int, start time.Time) {
	if m == nil {
		return
	}
	m.MerkleBuilds.Inc()
	m.MerkleLeaves.Observe(float64(leaves))
	m.OperationLatency.WithLabelValues("merkle_build").Observe(time.Since(start).Seconds())
}
