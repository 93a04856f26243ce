// Package metrics holds the Prometheus instruments shared by the data layer.
// A nil *Metrics is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "wipewatch"

// Metrics groups every instrument the data layer reports
type Metrics struct {
	pages      *prometheus.CounterVec
	loadErrors *prometheus.CounterVec
	pending    prometheus.Gauge
	flushes    *prometheus.CounterVec
	adFetches  *prometheus.CounterVec
	adGets     *prometheus.CounterVec
}

// New creates the instruments and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "paging",
			Name:      "pages_fetched_total",
			Help:      "Pages merged into the store, by list and load type.",
		}, []string{"list", "load_type"}),
		loadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "paging",
			Name:      "load_errors_total",
			Help:      "Failed load cycles, by list and reason.",
		}, []string{"list", "reason"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "pending_operations",
			Help:      "Outbox entries awaiting backend confirmation.",
		}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "deliveries_total",
			Help:      "Outbox delivery attempts, by result.",
		}, []string{"result"}),
		adFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adcache",
			Name:      "fetches_total",
			Help:      "Ad provider requests, by slot and result.",
		}, []string{"slot", "result"}),
		adGets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adcache",
			Name:      "gets_total",
			Help:      "Ad cache reads, by slot and result.",
		}, []string{"slot", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.pages, m.loadErrors, m.pending, m.flushes, m.adFetches, m.adGets)
	}
	return m
}

func (m *Metrics) ObservePage(list, loadType string) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(list, loadType).Inc()
}

func (m *Metrics) ObserveLoadError(list, reason string) {
	if m == nil {
		return
	}
	m.loadErrors.WithLabelValues(list, reason).Inc()
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

// ObserveDelivery records one outbox delivery by result (confirmed, failed,
// dead_letter, unauthorized)
func (m *Metrics) ObserveDelivery(result string) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(result).Inc()
}

// ObserveAdFetch records a provider request: ok, error or dropped
func (m *Metrics) ObserveAdFetch(slot, result string) {
	if m == nil {
		return
	}
	m.adFetches.WithLabelValues(slot, result).Inc()
}

// ObserveAdGet records a cache read: hit, miss or expired
func (m *Metrics) ObserveAdGet(slot, result string) {
	if m == nil {
		return
	}
	m.adGets.WithLabelValues(slot, result).Inc()
}
