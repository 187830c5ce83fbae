package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/ErlanBelekov/voice-scheduler/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voice_scheduler"

var (
	// Auth

	AuthEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_events_total",
		Help:      "Auth operations, by operation and outcome.",
	}, []string{"operation", "outcome"})

	// Intake pipeline

	PipelineStageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_stage_duration_seconds",
		Help:      "Duration of each intake pipeline stage.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 40, 60},
	}, []string{"stage", "outcome"})

	ValidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "appointment_validations_total",
		Help:      "Scheduling validations, by pass and result.",
	}, []string{"pass", "result"})

	AppointmentsConfirmedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "appointments_confirmed_total",
		Help:      "Appointments persisted after confirmation.",
	})

	// Email

	EmailsSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "emails_sent_total",
		Help:      "Outgoing emails, by kind and delivery outcome.",
	}, []string{"kind", "outcome"})

	// Janitor

	SessionsPurgedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_purged_total",
		Help:      "Stale sessions deleted by the janitor.",
	})

	JanitorCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "janitor_cycle_duration_seconds",
		Help:      "Time taken for one janitor run.",
		Buckets:   prometheus.DefBuckets,
	})

	// HTTP

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})

	HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_requests_in_flight",
		Help:      "Requests currently being served. Uploads hold a slot for the whole AI round trip.",
	})

	UploadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "audio_upload_bytes",
		Help:      "Declared size of audio upload request bodies.",
		Buckets:   prometheus.ExponentialBuckets(16<<10, 4, 8),
	})
)

func Register() {
	prometheus.MustRegister(
		AuthEventsTotal,
		PipelineStageDuration,
		ValidationsTotal,
		AppointmentsConfirmedTotal,
		EmailsSentTotal,
		SessionsPurgedTotal,
		JanitorCycleDuration,
		HTTPRequestDuration,
		HTTPRequestsTotal,
		HTTPRequestsInFlight,
		UploadBytes,
	)
}

// NewServer exposes /metrics and the health probes on a separate port.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz/live", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/healthz/ready", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Readiness(r.Context()))
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, res health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	if !res.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(res)
}
