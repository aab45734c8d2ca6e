package prometrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bloomwire/ordercore/internal/observability"
)

// Metrics implements the observability metrics port on Prometheus vectors.
// Instruments are registered once per metric key on first use.
type Metrics struct {
	reg        prometheus.Registerer
	mu         sync.Mutex
	counters   map[observability.MetricKey]*prometheus.CounterVec
	histograms map[observability.MetricKey]*prometheus.HistogramVec
}

// labelKeys fixes the label schema per metric; unknown keys get no labels.
var labelKeys = map[observability.MetricKey][]string{
	observability.MUsecaseRequests:         {"use_case", "outcome"},
	observability.MUsecaseDuration:         {"use_case"},
	observability.MHTTPRequests:            {"method", "route", "status"},
	observability.MHTTPRequestDuration:     {"method", "route"},
	observability.MExternalRequests:        {"peer", "endpoint", "outcome"},
	observability.MExternalRequestDuration: {"peer", "endpoint"},
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		reg:        reg,
		counters:   make(map[observability.MetricKey]*prometheus.CounterVec),
		histograms: make(map[observability.MetricKey]*prometheus.HistogramVec),
	}
}

func (m *Metrics) Counter(name observability.MetricKey) observability.Counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.counters[name]
	if !ok {
		v = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: string(name), Help: string(name) + "."},
			labelKeys[name],
		)
		m.reg.MustRegister(v)
		m.counters[name] = v
	}
	return &counter{v: v}
}

func (m *Metrics) Histogram(name observability.MetricKey) observability.Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.histograms[name]
	if !ok {
		v = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: string(name), Help: string(name) + ".", Buckets: prometheus.DefBuckets},
			labelKeys[name],
		)
		m.reg.MustRegister(v)
		m.histograms[name] = v
	}
	return &histogram{v: v}
}

type counter struct{ v *prometheus.CounterVec }

func (c *counter) Add(d float64, labels ...observability.Label) {
	c.v.With(labelMap(labels)).Add(d)
}

type histogram struct{ v *prometheus.HistogramVec }

func (h *histogram) Observe(val float64, labels ...observability.Label) {
	h.v.With(labelMap(labels)).Observe(val)
}

func labelMap(ls []observability.Label) prometheus.Labels {
	m := make(prometheus.Labels, len(ls))
	for _, l := range ls {
		m[l.Key] = l.Value
	}
	return m
}
