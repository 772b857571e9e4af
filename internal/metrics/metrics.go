// Package metrics exposes Prometheus collectors for TruthLens.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "truthlens"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "external_requests_total", Help: "Collaborator calls."},
		[]string{"service", "outcome"}, // outcome: ok|error
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "external_request_duration_seconds",
			Help:    "Collaborator call duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	Fallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "fallbacks_total", Help: "Degraded collaborator results."},
		[]string{"component"}, // sentiment|narrative
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
	Analyses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "analyses_total", Help: "Finished analyses by label."},
		[]string{"source", "label"},
	)
	TrustScores = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "trust_score",
			Help:    "Distribution of final trust scores.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
		[]string{"source"},
	)
	PhishingVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "phishing_verdicts_total", Help: "Domain verdicts."},
		[]string{"verdict"},
	)
	Calibrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "calibrations_total", Help: "Calibration floors applied."},
		[]string{"rule"},
	)
	BusMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "bus_messages_total", Help: "Event bus messages by outcome."},
		[]string{"topic", "outcome"},
	)
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: namespace, Name: "circuit_breaker_state", Help: "0 closed, 1 half-open, 2 open."},
		[]string{"name"},
	)
)

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		HTTPRequests, HTTPLatency,
		ExternalRequests, ExternalLatency,
		Fallbacks, CacheEvents,
		Analyses, TrustScores, PhishingVerdicts, Calibrations,
		BusMessages, BreakerState,
	)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service string, err error, dur time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ExternalRequests.WithLabelValues(service, outcome).Inc()
	ExternalLatency.WithLabelValues(service).Observe(dur.Seconds())
}

func ObserveFallback(component string) {
	Fallbacks.WithLabelValues(component).Inc()
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}

func ObserveAnalysis(source, label string, score int) {
	Analyses.WithLabelValues(source, label).Inc()
	TrustScores.WithLabelValues(source).Observe(float64(score))
}

func ObservePhishing(verdict string) {
	PhishingVerdicts.WithLabelValues(verdict).Inc()
}

func ObserveCalibration(rule string) {
	Calibrations.WithLabelValues(rule).Inc()
}

func ObserveBus(topic, outcome string) { // outcome: published|dropped|failed
	BusMessages.WithLabelValues(topic, outcome).Inc()
}

func SetBreakerState(name string, state int) {
	BreakerState.WithLabelValues(name).Set(float64(state))
}
