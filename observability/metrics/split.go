package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SplitMetrics tracks the ledger's money movement and operational health.
type SplitMetrics struct {
	depositsTotal *prometheus.CounterVec
	depositAmount *prometheus.CounterVec
	releasesTotal *prometheus.CounterVec
	releaseAmount *prometheus.CounterVec
	opFailures    *prometheus.CounterVec
	rosterSize    prometheus.Gauge
	paused        prometheus.Gauge
	journalHead   prometheus.Gauge
	streamSubs    prometheus.Gauge
}

var (
	splitOnce     sync.Once
	splitRegistry *SplitMetrics
)

// Split returns the lazily-initialised metrics registry for the splitter.
func Split() *SplitMetrics {
	splitOnce.Do(func() {
		splitRegistry = &SplitMetrics{
			depositsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "paysplit",
				Name:      "deposits_total",
				Help:      "Count of accepted vault deposits segmented by asset.",
			}, []string{"asset"}),
			depositAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "paysplit",
				Name:      "deposit_amount_total",
				Help:      "Sum of deposited base units segmented by asset.",
			}, []string{"asset"}),
			releasesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "paysplit",
				Name:      "releases_total",
				Help:      "Count of completed payee releases segmented by asset.",
			}, []string{"asset"}),
			releaseAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "paysplit",
				Name:      "release_amount_total",
				Help:      "Sum of released base units segmented by asset.",
			}, []string{"asset"}),
			opFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "paysplit",
				Name:      "operation_failures_total",
				Help:      "Count of rejected ledger operations segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			rosterSize: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "paysplit",
				Name:      "roster_size",
				Help:      "Number of payees on the active roster.",
			}),
			paused: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "paysplit",
				Name:      "paused",
				Help:      "Whether release and deposit operations are paused (1) or running (0).",
			}),
			journalHead: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "paysplit",
				Name:      "journal_head_sequence",
				Help:      "Sequence number of the most recently journalled event.",
			}),
			streamSubs: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "paysplit",
				Name:      "stream_subscribers",
				Help:      "Number of connected event stream subscribers.",
			}),
		}
		prometheus.MustRegister(
			splitRegistry.depositsTotal,
			splitRegistry.depositAmount,
			splitRegistry.releasesTotal,
			splitRegistry.releaseAmount,
			splitRegistry.opFailures,
			splitRegistry.rosterSize,
			splitRegistry.paused,
			splitRegistry.journalHead,
			splitRegistry.streamSubs,
		)
	})
	return splitRegistry
}

func (m *SplitMetrics) ObserveDeposit(asset string, amount float64) {
	if m == nil {
		return
	}
	if asset == "" {
		asset = "unknown"
	}
	m.depositsTotal.WithLabelValues(asset).Inc()
	if amount > 0 {
		m.depositAmount.WithLabelValues(asset).Add(amount)
	}
}

func (m *SplitMetrics) ObserveRelease(asset string, amount float64) {
	if m == nil {
		return
	}
	if asset == "" {
		asset = "unknown"
	}
	m.releasesTotal.WithLabelValues(asset).Inc()
	if amount > 0 {
		m.releaseAmount.WithLabelValues(asset).Add(amount)
	}
}

func (m *SplitMetrics) IncFailure(operation, reason string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.opFailures.WithLabelValues(operation, reason).Inc()
}

func (m *SplitMetrics) SetRosterSize(size int) {
	if m == nil {
		return
	}
	m.rosterSize.Set(float64(size))
}

func (m *SplitMetrics) SetPaused(paused bool) {
	if m == nil {
		return
	}
	if paused {
		m.paused.Set(1)
		return
	}
	m.paused.Set(0)
}

func (m *SplitMetrics) SetJournalHead(sequence uint64) {
	if m == nil {
		return
	}
	m.journalHead.Set(float64(sequence))
}

func (m *SplitMetrics) SetStreamSubscribers(count int) {
	if m == nil {
		return
	}
	m.streamSubs.Set(float64(count))
}
