package ingester

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricBufferDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gridstream",
		Name:      "ingester_buffer_depth",
		Help:      "Records currently staged in memory, per device class.",
	}, []string{"class"})
	metricRecordsFlushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridstream",
		Name:      "ingester_records_flushed_total",
		Help:      "Records committed to the database, per device class.",
	}, []string{"class"})
	metricFailedFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridstream",
		Name:      "ingester_failed_flushes_total",
		Help:      "Flush attempts that failed and were re-enqueued.",
	}, []string{"class"})
	metricFlushDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gridstream",
		Name:      "ingester_flush_duration_seconds",
		Help:      "Time to commit one batch transaction.",
		Buckets:   prometheus.ExponentialBuckets(.005, 2, 12),
	}, []string{"class"})
	metricRecordsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridstream",
		Name:      "ingester_records_discarded_total",
		Help:      "Records lost because the final drain flush failed.",
	}, []string{"class"})
)
