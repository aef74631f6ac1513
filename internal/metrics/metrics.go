// Package metrics exposes the Prometheus collectors of the voice service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voice_clone"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "voice_uploads_total",
		Help:      "Voice samples processed, by outcome.",
	}, []string{"outcome"})

	synthesesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "syntheses_total",
		Help:      "Synthesis requests, by accent and outcome.",
	}, []string{"accent", "outcome"})

	synthesisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "synthesis_duration_seconds",
		Help:      "Wall time of base synthesis plus tone-color conversion.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	checkpointDownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkpoint_downloads_total",
		Help:      "Checkpoint archive downloads, by set and outcome.",
	}, []string{"set", "outcome"})
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveUpload records the outcome of a voice upload.
func ObserveUpload(err error) {
	uploadsTotal.WithLabelValues(outcome(err)).Inc()
}

// ObserveSynthesis records the outcome and duration of a synthesis.
func ObserveSynthesis(accent string, started time.Time, err error) {
	synthesesTotal.WithLabelValues(accent, outcome(err)).Inc()

	if err == nil {
		synthesisDuration.Observe(time.Since(started).Seconds())
	}
}

// ObserveCheckpointDownload records the outcome of a checkpoint archive fetch.
func ObserveCheckpointDownload(set string, err error) {
	checkpointDownloadsTotal.WithLabelValues(set, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}

	return OutcomeSuccess
}
