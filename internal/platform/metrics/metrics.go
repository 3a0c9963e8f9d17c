package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the recording core.
// Methods on a nil *Metrics are no-ops, so metrics stay optional wiring.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	clipsRecordedTotal  prometheus.Counter
	clipsCanceledTotal  prometheus.Counter
	photosTakenTotal    prometheus.Counter
	gifsRecordedTotal   prometheus.Counter
	exportsTotal        prometheus.Counter
	exportFailuresTotal prometheus.Counter
	framesDroppedTotal  prometheus.Counter
	recordingActive     prometheus.Gauge
	segmentsStored      prometheus.Gauge
}

// New creates and registers Prometheus metrics for the recorder.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kanvas_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kanvas_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	clipsRecordedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kanvas_clips_recorded_total",
		Help: "Total number of video clips successfully finalized",
	})
	clipsCanceledTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kanvas_clips_canceled_total",
		Help: "Total number of recordings canceled before finalizing",
	})
	photosTakenTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kanvas_photos_taken_total",
		Help: "Total number of still photos captured",
	})
	gifsRecordedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kanvas_gifs_recorded_total",
		Help: "Total number of gif clips successfully finalized",
	})
	exportsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kanvas_exports_total",
		Help: "Total number of export merges attempted",
	})
	exportFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kanvas_export_failures_total",
		Help: "Total number of export merges that failed",
	})
	framesDroppedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kanvas_frames_dropped_total",
		Help: "Total number of frames or samples dropped by the active writer",
	})
	recordingActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kanvas_recording_active",
		Help: "1 while any recording mode is active, 0 otherwise",
	})
	segmentsStored := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kanvas_segments",
		Help: "Number of segments currently held by the segment store",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		clipsRecordedTotal,
		clipsCanceledTotal,
		photosTakenTotal,
		gifsRecordedTotal,
		exportsTotal,
		exportFailuresTotal,
		framesDroppedTotal,
		recordingActive,
		segmentsStored,
	)

	return &Metrics{
		registry:            registry,
		requestsTotal:       requestsTotal,
		errorsTotal:         errorsTotal,
		clipsRecordedTotal:  clipsRecordedTotal,
		clipsCanceledTotal:  clipsCanceledTotal,
		photosTakenTotal:    photosTakenTotal,
		gifsRecordedTotal:   gifsRecordedTotal,
		exportsTotal:        exportsTotal,
		exportFailuresTotal: exportFailuresTotal,
		framesDroppedTotal:  framesDroppedTotal,
		recordingActive:     recordingActive,
		segmentsStored:      segmentsStored,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the HTTP error counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// IncClipsRecorded increments the finalized clip counter.
func (m *Metrics) IncClipsRecorded() {
	if m == nil {
		return
	}
	m.clipsRecordedTotal.Inc()
}

// IncClipsCanceled increments the canceled recording counter.
func (m *Metrics) IncClipsCanceled() {
	if m == nil {
		return
	}
	m.clipsCanceledTotal.Inc()
}

// IncPhotosTaken increments the captured photo counter.
func (m *Metrics) IncPhotosTaken() {
	if m == nil {
		return
	}
	m.photosTakenTotal.Inc()
}

// IncGIFsRecorded increments the finalized gif counter.
func (m *Metrics) IncGIFsRecorded() {
	if m == nil {
		return
	}
	m.gifsRecordedTotal.Inc()
}

// IncExports increments the attempted export counter.
func (m *Metrics) IncExports() {
	if m == nil {
		return
	}
	m.exportsTotal.Inc()
}

// IncExportFailures increments the failed export counter.
func (m *Metrics) IncExportFailures() {
	if m == nil {
		return
	}
	m.exportFailuresTotal.Inc()
}

// IncFramesDropped increments the dropped frame/sample counter.
func (m *Metrics) IncFramesDropped() {
	if m == nil {
		return
	}
	m.framesDroppedTotal.Inc()
}

// SetRecordingActive sets the recording-active gauge.
func (m *Metrics) SetRecordingActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.recordingActive.Set(1)
	} else {
		m.recordingActive.Set(0)
	}
}

// SetSegmentsStored sets the stored segment gauge.
func (m *Metrics) SetSegmentsStored(n int) {
	if m == nil {
		return
	}
	m.segmentsStored.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. active recording, segment count).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
