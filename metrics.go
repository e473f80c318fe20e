package demwb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	contextsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "demwb_contexts_total",
		Help: "The total number of tile contexts processed, by outcome",
	}, []string{"status"})
	contextDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "demwb_context_duration_seconds",
		Help:    "Time taken to process a tile context",
		Buckets: prometheus.ExponentialBuckets(10, 2, 10),
	})
	missingDTMTiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demwb_missing_dtm_tiles_total",
		Help: "The total number of elevation tiles required by a footprint but absent from the archive",
	})
	toolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "demwb_tool_invocations_total",
		Help: "The total number of external tool invocations",
	}, []string{"tool"})
	toolFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "demwb_tool_failures_total",
		Help: "The total number of failed external tool invocations",
	}, []string{"tool"})
)

// WriteMetrics writes the metrics gathered so far to filename in the
// prometheus text format.
func WriteMetrics(filename string) error {
	return prometheus.WriteToTextfile(filename, prometheus.DefaultGatherer)
}
