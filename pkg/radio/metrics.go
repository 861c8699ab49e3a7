package radio

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTracksStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hibiki_tracks_started_total",
		Help: "Tracks that produced at least one audio chunk, by source.",
	}, []string{"source"})

	metricTracksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hibiki_tracks_finished_total",
		Help: "Tracks closed out, by source and outcome.",
	}, []string{"source", "outcome"})

	metricPlayedSeconds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hibiki_track_played_seconds_total",
		Help: "Audible seconds broadcast, by source.",
	}, []string{"source"})

	metricFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hibiki_fetch_failures_total",
		Help: "Source fetches that produced no audio input, by source.",
	}, []string{"source"})

	metricEncoderTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hibiki_encoder_timeouts_total",
		Help: "Pipelines destroyed for producing no data within the safety timeout.",
	})

	metricBroadcastBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hibiki_broadcast_bytes_total",
		Help: "Audio bytes written across all listener sinks.",
	})

	metricSilenceFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hibiki_silence_frames_total",
		Help: "Silence emissions, by kind (idle, gap, pause, pause_flush).",
	}, []string{"kind"})

	metricListeners = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hibiki_listeners",
		Help: "Currently attached listener sinks.",
	})

	metricListenerEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hibiki_listener_evictions_total",
		Help: "Listeners evicted because their sink buffer filled.",
	})

	metricQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hibiki_queue_depth",
		Help: "Tracks waiting in the shared queue.",
	})

	metricEngineState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hibiki_engine_state",
		Help: "Current engine state, 1 for the active state.",
	}, []string{"state"})

	metricSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hibiki_skips_total",
		Help: "Skip requests that advanced the queue.",
	})

	metricPauseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hibiki_pause_transitions_total",
		Help: "Pause and resume transitions.",
	}, []string{"direction"})
)

var engineStates = []EngineState{StateIdle, StateStarting, StatePlaying, StatePaused, StateSkipping}

// PrometheusMetrics implements the MetricsCollector interface on the shared
// Prometheus registry
type PrometheusMetrics struct{}

// NewPrometheusMetrics creates the Prometheus-backed collector
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{}
}

func (m *PrometheusMetrics) RecordTrackStart(source string) {
	metricTracksStarted.WithLabelValues(source).Inc()
}

func (m *PrometheusMetrics) RecordTrackEnd(source, outcome string, playedSeconds float64) {
	metricTracksFinished.WithLabelValues(source, outcome).Inc()
	if playedSeconds > 0 {
		metricPlayedSeconds.WithLabelValues(source).Add(playedSeconds)
	}
}

func (m *PrometheusMetrics) RecordFetchFailure(source string) {
	metricFetchFailures.WithLabelValues(source).Inc()
}

func (m *PrometheusMetrics) RecordEncoderTimeout() {
	metricEncoderTimeouts.Inc()
}

func (m *PrometheusMetrics) RecordBroadcastBytes(n int) {
	if n > 0 {
		metricBroadcastBytes.Add(float64(n))
	}
}

func (m *PrometheusMetrics) RecordSilenceFrame(kind string) {
	metricSilenceFrames.WithLabelValues(kind).Inc()
}

func (m *PrometheusMetrics) RecordListenerCount(n int) {
	metricListeners.Set(float64(n))
}

func (m *PrometheusMetrics) RecordListenerEvicted() {
	metricListenerEvictions.Inc()
}

func (m *PrometheusMetrics) RecordQueueDepth(n int) {
	metricQueueDepth.Set(float64(n))
}

func (m *PrometheusMetrics) RecordStateChange(state EngineState) {
	for _, candidate := range engineStates {
		value := 0.0
		if candidate == state {
			value = 1.0
		}
		metricEngineState.WithLabelValues(candidate.String()).Set(value)
	}
}

func (m *PrometheusMetrics) RecordSkip() {
	metricSkips.Inc()
}

func (m *PrometheusMetrics) RecordPause(paused bool) {
	direction := "resume"
	if paused {
		direction = "pause"
	}
	metricPauseTransitions.WithLabelValues(direction).Inc()
}

// NopMetrics discards every measurement, used in tests
type NopMetrics struct{}

// NewNopMetrics creates a collector that records nothing
func NewNopMetrics() *NopMetrics {
	return &NopMetrics{}
}

func (m *NopMetrics) RecordTrackStart(source string)                          {}
func (m *NopMetrics) RecordTrackEnd(source, outcome string, played float64)   {}
func (m *NopMetrics) RecordFetchFailure(source string)                        {}
func (m *NopMetrics) RecordEncoderTimeout()                                   {}
func (m *NopMetrics) RecordBroadcastBytes(n int)                              {}
func (m *NopMetrics) RecordSilenceFrame(kind string)                          {}
func (m *NopMetrics) RecordListenerCount(n int)                               {}
func (m *NopMetrics) RecordListenerEvicted()                                  {}
func (m *NopMetrics) RecordQueueDepth(n int)                                  {}
func (m *NopMetrics) RecordStateChange(state EngineState)                     {}
func (m *NopMetrics) RecordSkip()                                             {}
func (m *NopMetrics) RecordPause(paused bool)                                 {}
