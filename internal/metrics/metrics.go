package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeHit labels queries that returned data.
	OutcomeHit = "hit"
	// OutcomeEmpty labels queries that produced an empty or nil result.
	OutcomeEmpty = "empty"
	// OutcomeError labels queries rejected because of bad input.
	OutcomeError = "error"
)

var (
	records = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "testpulse",
			Name:      "records",
			Help:      "Number of test records held by the store.",
		},
	)

	upsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "testpulse",
			Name:      "upserts_total",
			Help:      "Records written to the store, partitioned by inserted or replaced.",
		},
		[]string{"kind"},
	)

	ingestBatchSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "testpulse",
			Name:      "ingest_batch_seconds",
			Help:      "Time spent applying one batch to the store.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
	)

	ingestErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "testpulse",
			Name:      "ingest_errors_total",
			Help:      "Report files that could not be parsed.",
		},
	)

	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "testpulse",
			Name:      "queries_total",
			Help:      "Analytics queries served, partitioned by query and outcome.",
		},
		[]string{"query", "outcome"},
	)

	querySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "testpulse",
			Name:      "query_seconds",
			Help:      "Analytics query latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"query"},
	)
)

// Register attaches testpulse collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		records,
		upsertsTotal,
		ingestBatchSeconds,
		ingestErrorsTotal,
		queriesTotal,
		querySeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveBatch records the outcome of one store batch.
func ObserveBatch(inserted, replaced, total int, elapsed time.Duration) {
	upsertsTotal.WithLabelValues("inserted").Add(float64(inserted))
	upsertsTotal.WithLabelValues("replaced").Add(float64(replaced))
	records.Set(float64(total))
	if elapsed < 0 {
		elapsed = 0
	}
	ingestBatchSeconds.Observe(elapsed.Seconds())
}

// SetRecords overwrites the record gauge, e.g. after the store is cleared.
func SetRecords(total int) {
	records.Set(float64(total))
}

// IngestErrors counts report files that failed to parse.
func IngestErrors(n int) {
	if n > 0 {
		ingestErrorsTotal.Add(float64(n))
	}
}

// ObserveQuery records a query duration and outcome label.
func ObserveQuery(query string, duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeEmpty, OutcomeError:
	default:
		outcome = OutcomeHit
	}
	queriesTotal.WithLabelValues(query, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	querySeconds.WithLabelValues(query).Observe(duration.Seconds())
}
