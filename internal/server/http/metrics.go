package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	replaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webreplay_replays_total",
		Help: "Replay runs by outcome.",
	}, []string{"outcome"})

	replayDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "webreplay_replay_duration_seconds",
		Help:    "Wall time of replay runs.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	stepFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webreplay_step_failures_total",
		Help: "Failed steps across all replay runs.",
	})

	codegenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webreplay_codegen_total",
		Help: "Codegen runs by verification outcome.",
	}, []string{"verified"})
)

func observeReplay(success bool, durationSeconds float64, failedSteps int) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	replaysTotal.WithLabelValues(outcome).Inc()
	replayDuration.Observe(durationSeconds)
	stepFailuresTotal.Add(float64(failedSteps))
}

func observeCodegen(verified bool) {
	if verified {
		codegenTotal.WithLabelValues("true").Inc()
	} else {
		codegenTotal.WithLabelValues("false").Inc()
	}
}
