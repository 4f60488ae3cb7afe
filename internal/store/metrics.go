package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for kvemu_operations_total.
const (
	OutcomeOK                    = "ok"
	OutcomeSecretNotFound        = "secret_not_found"
	OutcomeDeletedSecretNotFound = "deleted_secret_not_found"
	OutcomeInvalidArgument       = "invalid_argument"
	OutcomeCanceled              = "canceled"
)

// Metrics records store activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	factory    promauto.Factory
	operations *prometheus.CounterVec
	partitions map[string]prometheus.GaugeFunc
}

// NewMetrics registers the store collectors with reg. Each store should get
// its own registry; registering two stores on one registry panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		factory: factory,
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kvemu_operations_total",
				Help: "Total number of secret store operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		partitions: make(map[string]prometheus.GaugeFunc),
	}
}

func (m *Metrics) recordOperation(op, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// watchPartitions registers the kvemu_secrets gauges. They read counts at
// scrape time, so the gauge never lags behind the registry.
func (m *Metrics) watchPartitions(counts func() (active, deleted int)) {
	if m == nil {
		return
	}
	gauge := func(partition string, pick func(active, deleted int) int) {
		m.partitions[partition] = m.factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        "kvemu_secrets",
				Help:        "Number of secret names per lifecycle partition",
				ConstLabels: prometheus.Labels{"partition": partition},
			},
			func() float64 { return float64(pick(counts())) },
		)
	}
	gauge("active", func(active, _ int) int { return active })
	gauge("deleted", func(_, deleted int) int { return deleted })
}

// Operations exposes the operation counter for tests.
func (m *Metrics) Operations() *prometheus.CounterVec {
	return m.operations
}

// Partition exposes the kvemu_secrets gauge for "active" or "deleted".
func (m *Metrics) Partition(name string) prometheus.Collector {
	return m.partitions[name]
}
