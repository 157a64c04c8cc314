// Package metrics instruments fetches with Prometheus collectors.
//
// A nil *Metrics is valid and records nothing, so callers never need
// to check whether instrumentation is enabled.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/adamwoolhether/asynclient/client/wire"
)

// Namespace prefixes every collector name.
const Namespace = "asynclient"

// OutcomeOK labels fetches that returned a response.
const OutcomeOK = "ok"

// Metrics holds the fetch collectors.
type Metrics struct {
	FetchesTotal  *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	HopsTotal     *prometheus.CounterVec
	InFlight      prometheus.Gauge
	SlotWait      prometheus.Histogram
}

// New creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "fetches_total",
				Help:      "Total number of fetches by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Fetch duration in seconds, including redirects",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),
		HopsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "hops_total",
				Help:      "Total number of connections made, by response status class",
			},
			[]string{"class"},
		),
		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "fetches_in_flight",
				Help:      "Number of fetches holding a governor slot",
			},
		),
		SlotWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "slot_wait_seconds",
				Help:      "Time spent waiting for a governor slot",
				Buckets:   []float64{.0001, .001, .01, .1, 1, 10},
			},
		),
	}
}

// SlotAcquired records the wait for a governor slot and marks a fetch
// in flight.
func (m *Metrics) SlotAcquired(waited time.Duration) {
	if m == nil {
		return
	}
	m.SlotWait.Observe(waited.Seconds())
	m.InFlight.Inc()
}

// SlotReleased marks a fetch as no longer in flight.
func (m *Metrics) SlotReleased() {
	if m == nil {
		return
	}
	m.InFlight.Dec()
}

// FetchDone records the outcome of a fetch. Failures are labeled with
// their wire.Kind.
func (m *Metrics) FetchDone(method string, took time.Duration, err error) {
	if m == nil {
		return
	}

	m.FetchesTotal.WithLabelValues(method, Outcome(err)).Inc()
	m.FetchDuration.WithLabelValues(method).Observe(took.Seconds())
}

// HopDone records one connection.
func (m *Metrics) HopDone(statusCode int, err error) {
	if m == nil {
		return
	}

	m.HopsTotal.WithLabelValues(StatusClass(statusCode, err)).Inc()
}

// Outcome is the outcome label for err.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}

	return wire.KindOf(err).String()
}

// StatusClass buckets a status code as "2xx", "3xx" and so on. Hops
// without a status are labeled "error".
func StatusClass(code int, err error) string {
	if err != nil || code < 100 || code > 999 {
		return "error"
	}

	return strconv.Itoa(code/100) + "xx"
}
