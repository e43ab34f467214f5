// Package metrics exposes Prometheus instruments for pipeline runs.
// All Recorder methods are safe to call on a nil receiver.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "telegram_warehouse"

// Recorder holds the pipeline instruments.
type Recorder struct {
	StageRuns        *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	StageAttempts    *prometheus.CounterVec
	MessagesScraped  *prometheus.CounterVec
	ThrottleWaits    prometheus.Counter
	ThrottleSeconds  prometheus.Counter
	MediaFailures    prometheus.Counter
	RowsLoaded       *prometheus.CounterVec
	RowsDuplicate    prometheus.Counter
	FailedPages      *prometheus.CounterVec
	DetectionsStored prometheus.Counter
	LastRunTimestamp *prometheus.GaugeVec
}

// New registers all instruments on reg, or the default registerer when nil.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		StageRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_runs_total",
			Help:      "Completed pipeline stages by final status.",
		}, []string{"stage", "status"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of a stage including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"stage"}),
		StageAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_attempts_total",
			Help:      "Stage attempts including retries.",
		}, []string{"stage"}),
		MessagesScraped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scraper",
			Name:      "messages_total",
			Help:      "Messages collected per channel.",
		}, []string{"channel"}),
		ThrottleWaits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scraper",
			Name:      "throttle_waits_total",
			Help:      "Upstream throttling signals honoured.",
		}),
		ThrottleSeconds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scraper",
			Name:      "throttle_wait_seconds_total",
			Help:      "Seconds spent sleeping on throttling signals.",
		}),
		MediaFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scraper",
			Name:      "media_download_failures_total",
			Help:      "Media downloads that failed and left file_path empty.",
		}),
		RowsLoaded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "rows_inserted_total",
			Help:      "Rows inserted into the warehouse.",
		}, []string{"table"}),
		RowsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "rows_duplicate_total",
			Help:      "Message rows absorbed by the message_id conflict clause.",
		}),
		FailedPages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "failed_pages_total",
			Help:      "Insert pages that failed.",
		}, []string{"table"}),
		DetectionsStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "detections_total",
			Help:      "Detections produced by the enrichment stage.",
		}),
		LastRunTimestamp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last finished run per job.",
		}, []string{"job", "status"}),
	}
}

func (r *Recorder) StageFinished(stage, status string, attempts int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.StageRuns.WithLabelValues(stage, status).Inc()
	r.StageAttempts.WithLabelValues(stage).Add(float64(attempts))
	r.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (r *Recorder) Scraped(channel string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.MessagesScraped.WithLabelValues(channel).Add(float64(n))
}

func (r *Recorder) Throttled(wait time.Duration) {
	if r == nil {
		return
	}
	r.ThrottleWaits.Inc()
	r.ThrottleSeconds.Add(wait.Seconds())
}

func (r *Recorder) MediaFailed() {
	if r == nil {
		return
	}
	r.MediaFailures.Inc()
}

// Loaded records one load result for table.
func (r *Recorder) Loaded(table string, inserted, duplicates, failedPages int) {
	if r == nil {
		return
	}
	r.RowsLoaded.WithLabelValues(table).Add(float64(inserted))
	if duplicates > 0 {
		r.RowsDuplicate.Add(float64(duplicates))
	}
	if failedPages > 0 {
		r.FailedPages.WithLabelValues(table).Add(float64(failedPages))
	}
}

func (r *Recorder) Detected(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.DetectionsStored.Add(float64(n))
}

func (r *Recorder) RunFinished(job, status string, at time.Time) {
	if r == nil {
		return
	}
	r.LastRunTimestamp.WithLabelValues(job, status).Set(float64(at.Unix()))
}
