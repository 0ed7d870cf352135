// Package metrics holds the Prometheus collectors shared by the FLAIR
// pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flair"

type Metrics struct {
	BlocksProcessed     prometheus.Counter
	PrecisionLossSteps  *prometheus.CounterVec
	BatchFetchDuration  prometheus.Histogram
	SnapshotsStored     prometheus.Counter
	SwapsIndexed        prometheus.Counter
	DataIntegrityErrors prometheus.Counter
}

// New builds the collectors and registers them on reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BlocksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_processed_total",
			Help:      "Dirty blocks folded into a FLAIR accumulator.",
		}),
		PrecisionLossSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "precision_loss_steps_total",
			Help:      "Swap-path steps that reused the last known liquidity.",
		}, []string{"pool"}),
		BatchFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_fetch_duration_seconds",
			Help:      "Time spent loading pool-state and tick snapshots for one batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		SnapshotsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_stored_total",
			Help:      "Pool-state snapshots persisted by the collector.",
		}),
		SwapsIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swaps_indexed_total",
			Help:      "Swap events decoded and stored by the indexer.",
		}),
		DataIntegrityErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_integrity_errors_total",
			Help:      "Runs aborted because snapshot data was missing or inconsistent.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.BlocksProcessed,
			m.PrecisionLossSteps,
			m.BatchFetchDuration,
			m.SnapshotsStored,
			m.SwapsIndexed,
			m.DataIntegrityErrors,
		)
	}
	return m
}

func (m *Metrics) BlockProcessed() {
	if m != nil {
		m.BlocksProcessed.Inc()
	}
}

func (m *Metrics) PrecisionLoss(pool string, steps int) {
	if m != nil && steps > 0 {
		m.PrecisionLossSteps.WithLabelValues(pool).Add(float64(steps))
	}
}

// FetchTimer starts a timer for one batch fetch; call ObserveDuration when done.
func (m *Metrics) FetchTimer() *prometheus.Timer {
	if m == nil {
		return prometheus.NewTimer(prometheus.ObserverFunc(func(float64) {}))
	}
	return prometheus.NewTimer(m.BatchFetchDuration)
}

func (m *Metrics) SnapshotStored() {
	if m != nil {
		m.SnapshotsStored.Inc()
	}
}

func (m *Metrics) SwapsStored(n int) {
	if m != nil && n > 0 {
		m.SwapsIndexed.Add(float64(n))
	}
}

func (m *Metrics) IntegrityError() {
	if m != nil {
		m.DataIntegrityErrors.Inc()
	}
}
