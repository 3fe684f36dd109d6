package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const prefix = "fuelwatch_"

var (
	registerOnce sync.Once

	readingsTotal   *prometheus.CounterVec
	alertsTotal     *prometheus.CounterVec
	feedEventsTotal *prometheus.CounterVec
	batchesTotal    *prometheus.CounterVec
)

// Init registers the pipeline counters. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		readingsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "readings_total",
				Help: "Processed sensor readings by sensor kind and outcome status",
			},
			[]string{"sensor", "status"},
		)
		alertsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "alerts_total",
				Help: "Emitted alerts by type and severity",
			},
			[]string{"type", "severity"},
		)
		feedEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "feed_events_total",
				Help: "Change-feed events published by entity and kind",
			},
			[]string{"entity", "kind"},
		)
		batchesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "ingest_batches_total",
				Help: "Ingestion batches by result",
			},
			[]string{"result"},
		)
		prometheus.MustRegister(readingsTotal, alertsTotal, feedEventsTotal, batchesTotal)
	})
}

func ObserveReading(sensor, status string) {
	if readingsTotal != nil {
		readingsTotal.WithLabelValues(sensor, status).Inc()
	}
}

func ObserveAlert(alertType, severity string) {
	if alertsTotal != nil {
		alertsTotal.WithLabelValues(alertType, severity).Inc()
	}
}

func ObserveFeedEvent(entity, kind string) {
	if feedEventsTotal != nil {
		feedEventsTotal.WithLabelValues(entity, kind).Inc()
	}
}

func ObserveBatch(result string) {
	if batchesTotal != nil {
		batchesTotal.WithLabelValues(result).Inc()
	}
}
