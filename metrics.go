package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service collectors.
type Metrics struct {
	operations    *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	cryptoSeconds *prometheus.HistogramVec
	activityDrops prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenant_auth",
			Name:      "operations_total",
			Help:      "Auth flows by operation and outcome.",
		}, []string{"operation", "outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenant_auth",
			Name:      "cache_lookups_total",
			Help:      "TTL cache reads by cache and result.",
		}, []string{"cache", "result"}),
		cryptoSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tenant_auth",
			Name:      "crypto_seconds",
			Help:      "Time spent hashing, verifying and signing.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation"}),
		activityDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tenant_auth",
			Name:      "activity_dropped_total",
			Help:      "Activity events dropped under backpressure.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.operations, m.cacheLookups, m.cryptoSeconds, m.activityDrops)
	}
	return m
}

// ObserveOperation counts one flow.
func (m *Metrics) ObserveOperation(op ActivityType, outcome ActivityOutcome) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(string(op), string(outcome)).Inc()
}

// ObserveCache matches cache.Observer.
func (m *Metrics) ObserveCache(name, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(name, result).Inc()
}

// ObserveCrypto records the duration of a pooled crypto job.
func (m *Metrics) ObserveCrypto(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.cryptoSeconds.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveActivityDrop counts a dropped activity event.
func (m *Metrics) ObserveActivityDrop() {
	if m == nil {
		return
	}
	m.activityDrops.Inc()
}
