// Package metrics exposes the counters and histograms the gadget core
// emits, served over a plain promhttp handler: no multi-exporter
// plugin machinery, since nothing outside Prometheus scraping is in
// scope for this service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric this service reports, registered
// against a private prometheus.Registry so tests can construct
// independent instances without touching the global default registry.
type Registry struct {
	registry *prometheus.Registry

	FramesEncodedTotal *prometheus.CounterVec
	FramesDroppedTotal *prometheus.CounterVec
	EncodeDuration     *prometheus.HistogramVec
	NegotiationsTotal  prometheus.Counter
	BufferPoolDepth    prometheus.Gauge
	PollerWaitDuration prometheus.Histogram
}

// New builds and registers every metric.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		FramesEncodedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usbcamd_frames_encoded_total",
			Help: "Frames successfully encoded, labeled by wire format.",
		}, []string{"format"}),
		FramesDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usbcamd_frames_dropped_total",
			Help: "Frames dropped, labeled by reason (queue_full, encode_failed); newest-wins demotions in the buffer pool are not counted.",
		}, []string{"reason"}),
		EncodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "usbcamd_encode_duration_seconds",
			Help:    "Wall time spent encoding one frame, labeled by wire format.",
			Buckets: prometheus.DefBuckets,
		}, []string{"format"}),
		NegotiationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usbcamd_negotiations_total",
			Help: "UVC PROBE/COMMIT negotiations completed.",
		}),
		BufferPoolDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "usbcamd_buffer_pool_depth",
			Help: "Number of producer slots currently Filled, awaiting consumer swap.",
		}),
		PollerWaitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "usbcamd_poller_wait_duration_seconds",
			Help:    "Time spent blocked in the readiness poller's wait call.",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.025, 0.05, 0.066},
		}),
	}

	reg.MustRegister(
		r.FramesEncodedTotal,
		r.FramesDroppedTotal,
		r.EncodeDuration,
		r.NegotiationsTotal,
		r.BufferPoolDepth,
		r.PollerWaitDuration,
	)
	return r
}

// Handler returns the HTTP handler serving this registry in the
// Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
