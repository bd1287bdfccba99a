package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the viewer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry               *prometheus.Registry
	requestsTotal          prometheus.Counter
	errorsTotal            prometheus.Counter
	streams                *prometheus.GaugeVec
	timeShiftFailuresTotal *prometheus.CounterVec
	timeShiftRetriesTotal  prometheus.Counter
	seeksTotal             prometheus.Counter
	subscribeFailuresTotal prometheus.Counter
	sessionRebuildsTotal   prometheus.Counter
}

// New creates and registers Prometheus metrics for the viewer.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "viewer_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "viewer_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	streams := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "viewer_streams",
		Help: "Number of configured streams by playback state",
	}, []string{"state"})
	timeShiftFailuresTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "viewer_timeshift_failures_total",
		Help: "Total number of failed time-shift sessions; forced=true for connection timeouts",
	}, []string{"forced"})
	timeShiftRetriesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "viewer_timeshift_retries_total",
		Help: "Total number of time-shift sessions re-created after a failure",
	})
	seeksTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "viewer_seeks_total",
		Help: "Total number of per-stream seek requests",
	})
	subscribeFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "viewer_subscribe_failures_total",
		Help: "Total number of stream subscriptions that failed",
	})
	sessionRebuildsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "viewer_session_rebuilds_total",
		Help: "Total number of SDK sessions created",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		streams,
		timeShiftFailuresTotal,
		timeShiftRetriesTotal,
		seeksTotal,
		subscribeFailuresTotal,
		sessionRebuildsTotal,
	)

	return &Metrics{
		registry:               registry,
		requestsTotal:          requestsTotal,
		errorsTotal:            errorsTotal,
		streams:                streams,
		timeShiftFailuresTotal: timeShiftFailuresTotal,
		timeShiftRetriesTotal:  timeShiftRetriesTotal,
		seeksTotal:             seeksTotal,
		subscribeFailuresTotal: subscribeFailuresTotal,
		sessionRebuildsTotal:   sessionRebuildsTotal,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// SetStreamStates replaces the per-state stream gauge with counts.
func (m *Metrics) SetStreamStates(counts map[string]int) {
	if m == nil {
		return
	}
	m.streams.Reset()
	for state, n := range counts {
		m.streams.WithLabelValues(state).Set(float64(n))
	}
}

// IncTimeShiftFailures counts a failed time-shift session.
func (m *Metrics) IncTimeShiftFailures(forced bool) {
	if m == nil {
		return
	}
	m.timeShiftFailuresTotal.WithLabelValues(strconv.FormatBool(forced)).Inc()
}

// IncTimeShiftRetries counts a time-shift session re-creation.
func (m *Metrics) IncTimeShiftRetries() {
	if m == nil {
		return
	}
	m.timeShiftRetriesTotal.Inc()
}

// IncSeeks counts a per-stream seek.
func (m *Metrics) IncSeeks() {
	if m == nil {
		return
	}
	m.seeksTotal.Inc()
}

// IncSubscribeFailures counts a failed subscription.
func (m *Metrics) IncSubscribeFailures() {
	if m == nil {
		return
	}
	m.subscribeFailuresTotal.Inc()
}

// IncSessionRebuilds counts an SDK session creation.
func (m *Metrics) IncSessionRebuilds() {
	if m == nil {
		return
	}
	m.sessionRebuildsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
