// Package metrics exposes protocol and process-resource telemetry
// through Prometheus: per-tick broadcast timing, session and
// reliable-event gauges on the server, and per-snapshot latency and
// jitter on the client.
package metrics

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds every counter/gauge/histogram the server emits.
type Server struct {
	reg *prometheus.Registry

	SnapshotID       prometheus.Gauge
	ActiveSessions   prometheus.Gauge
	BroadcastTick    prometheus.Histogram
	BytesSentTotal   prometheus.Counter
	DecodeDropsTotal prometheus.Counter
	PendingEvents    prometheus.Gauge
	Goroutines       prometheus.GaugeFunc
	HeapAllocBytes   prometheus.GaugeFunc
}

// NewServer constructs a fresh, isolated registry (never the global
// default one, so tests can build as many Servers as they like without
// colliding registrations).
func NewServer() *Server {
	reg := prometheus.NewRegistry()
	s := &Server{
		reg: reg,
		SnapshotID: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "mlsp_server_snapshot_id",
			Help: "Most recently emitted snapshot id.",
		}),
		ActiveSessions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "mlsp_server_active_sessions",
			Help: "Number of sessions in the ACTIVE state.",
		}),
		BroadcastTick: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "mlsp_server_broadcast_tick_seconds",
			Help:    "Wall-clock time spent computing and sending one broadcast tick.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		BytesSentTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "mlsp_server_bytes_sent_total",
			Help: "Total bytes written to the transport.",
		}),
		DecodeDropsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "mlsp_server_decode_drops_total",
			Help: "Inbound datagrams dropped by codec validation.",
		}),
		PendingEvents: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "mlsp_server_pending_reliable_events",
			Help: "Reliable events awaiting at least one ack.",
		}),
	}
	s.Goroutines = promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mlsp_server_goroutines",
		Help: "runtime.NumGoroutine() sampled on read.",
	}, func() float64 { return float64(runtime.NumGoroutine()) })
	s.HeapAllocBytes = promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mlsp_server_heap_alloc_bytes",
		Help: "Heap bytes in use, sampled on read via runtime.ReadMemStats.",
	}, func() float64 {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return float64(m.HeapAlloc)
	})
	return s
}

// Serve starts an HTTP server exposing /metrics on addr. It blocks
// until the server fails; call with `go`.
func (s *Server) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}

// Client holds the counters/histograms the client emits.
type Client struct {
	reg *prometheus.Registry

	SnapshotLatencyMS prometheus.Histogram
	SnapshotJitterMS  prometheus.Histogram
	RenderBufferDepth prometheus.Gauge
	NackTotal         prometheus.Counter
	DecodeDropsTotal  prometheus.Counter
}

// NewClient builds the client-side telemetry: per-snapshot latency and
// jitter histograms plus the render-buffer and NACK counters.
func NewClient() *Client {
	reg := prometheus.NewRegistry()
	return &Client{
		reg: reg,
		SnapshotLatencyMS: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "mlsp_client_snapshot_latency_ms",
			Help:    "recv_time - server_timestamp for each applied snapshot.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		SnapshotJitterMS: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "mlsp_client_snapshot_jitter_ms",
			Help:    "Absolute change in inter-arrival vs inter-send delta between consecutive snapshots.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		RenderBufferDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "mlsp_client_render_buffer_depth",
			Help: "Entries currently queued in the render-delay buffer.",
		}),
		NackTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "mlsp_client_nack_total",
			Help: "SNAPSHOT_NACK messages sent by the watchdog.",
		}),
		DecodeDropsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "mlsp_client_decode_drops_total",
			Help: "Inbound datagrams dropped by codec validation.",
		}),
	}
}

func (c *Client) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}

// ObserveJitter records the absolute difference between consecutive
// latency samples.
func ObserveJitter(hist prometheus.Histogram, prevLatencyMS, latencyMS float64) {
	jitter := latencyMS - prevLatencyMS
	if jitter < 0 {
		jitter = -jitter
	}
	hist.Observe(jitter)
}
