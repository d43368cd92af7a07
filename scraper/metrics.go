package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the harvester.
type Metrics struct {
	Registry            *prometheus.Registry
	StabilizationRounds prometheus.Histogram
	LoadMoreClicksTotal prometheus.Counter
	CandidatesTotal     *prometheus.CounterVec
	ItemsTotal          prometheus.Counter
	DetailPagesTotal    *prometheus.CounterVec
	DetailDuration      prometheus.Histogram
	ErrorsTotal         *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	rounds := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvester_stabilization_rounds",
			Help:    "Rounds the stabilization loop ran before stopping.",
			Buckets: prometheus.LinearBuckets(5, 5, 12),
		},
	)
	clicks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_load_more_clicks_total",
			Help: "Total load-more controls activated.",
		},
	)
	candidates := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_candidates_total",
			Help: "Listing cards seen, by outcome.",
		},
		[]string{"outcome"},
	)
	items := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_items_total",
			Help: "Total number of records sent to the pipeline.",
		},
	)
	detailPages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_detail_pages_total",
			Help: "Detail pages visited, by status.",
		},
		[]string{"status"},
	)
	detailDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvester_detail_duration_seconds",
			Help:    "Time spent scraping one detail page.",
			Buckets: prometheus.DefBuckets,
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_errors_total",
			Help: "Total number of harvester errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(rounds, clicks, candidates, items, detailPages, detailDuration, errorsTotal)

	return &Metrics{
		Registry:            registry,
		StabilizationRounds: rounds,
		LoadMoreClicksTotal: clicks,
		CandidatesTotal:     candidates,
		ItemsTotal:          items,
		DetailPagesTotal:    detailPages,
		DetailDuration:      detailDuration,
		ErrorsTotal:         errorsTotal,
	}
}

// ObserveRounds records how many rounds a stabilization loop ran.
func (m *Metrics) ObserveRounds(rounds int) {
	if m == nil {
		return
	}
	m.StabilizationRounds.Observe(float64(rounds))
}

// AddClicks increments the load-more counter.
func (m *Metrics) AddClicks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LoadMoreClicksTotal.Add(float64(n))
}

// AddCandidates increments the candidates counter for an outcome.
func (m *Metrics) AddCandidates(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CandidatesTotal.WithLabelValues(outcome).Add(float64(n))
}

// AddItems increments the items counter.
func (m *Metrics) AddItems(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsTotal.Add(float64(n))
}

// ObserveDetail records one finished detail page.
func (m *Metrics) ObserveDetail(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.DetailPagesTotal.WithLabelValues(status).Inc()
	m.DetailDuration.Observe(d.Seconds())
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
