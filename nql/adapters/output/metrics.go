package output

import (
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wbrown/janus-nql/nql"
)

// Metrics exposes aggregation results as Prometheus gauges, plus
// counters of derived, correlation and error events, on a /metrics
// endpoint, the way a sidecar collector would scrape
// nql's output for dashboards rather than consuming its JSON stream.
type Metrics struct {
	reg *prometheus.Registry

	mu     sync.Mutex
	gauges map[string]*prometheus.GaugeVec

	eventsTotal  prometheus.Counter
	corrTotal    prometheus.Counter
	errorsTotal  prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg:    reg,
		gauges: make(map[string]*prometheus.GaugeVec),
		eventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nql_events_total",
			Help: "Total derived events emitted.",
		}),
		corrTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nql_correlations_total",
			Help: "Total correlation matches emitted.",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nql_errors_total",
			Help: "Total error events emitted.",
		}),
	}
	reg.MustRegister(m.eventsTotal, m.corrTotal, m.errorsTotal)
	return m
}

// Handler returns the promhttp handler to mount on a metrics server.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Handle(event *nql.Event) {
	switch event.Kind {
	case nql.KindError:
		m.errorsTotal.Inc()
		return
	case nql.KindCorrelation:
		m.corrTotal.Inc()
		return
	case nql.KindDerived:
		m.eventsTotal.Inc()
		m.observeAggregate(event)
	}
}

// observeAggregate records each metric in a `nql_result_type:
// aggregation` payload as a gauge named nql_<metric>, labelled by the
// group-by fields present under "group" per SPEC_FULL.md §4.6's
// derived-event schema.
func (m *Metrics) observeAggregate(event *nql.Event) {
	resultType, ok := event.Payload.Get("nql_result_type")
	if !ok {
		return
	}
	if s, _ := resultType.AsString(); s != "aggregation" {
		return
	}

	metricsVal, ok := event.Payload.Get("metrics")
	if !ok {
		return
	}

	groupVal, hasGroup := event.Payload.Get("group")
	var labelNames []string
	var labelValues []string
	if hasGroup {
		fields := groupVal.Fields()
		labelNames = make([]string, 0, len(fields))
		for k := range fields {
			labelNames = append(labelNames, k)
		}
		sort.Strings(labelNames) // fixed order: WithLabelValues is positional and must match every call
		labelValues = make([]string, len(labelNames))
		for i, k := range labelNames {
			s, _ := fields[k].AsString()
			labelValues[i] = s
		}
	}

	for name, v := range metricsVal.Fields() {
		f, ok := v.AsNumber()
		if !ok {
			continue
		}
		gv := m.gaugeFor(name, labelNames)
		if len(labelNames) == 0 {
			gv.WithLabelValues().Set(f)
		} else {
			gv.WithLabelValues(labelValues...).Set(f)
		}
	}
}

func (m *Metrics) gaugeFor(metric string, labelNames []string) *prometheus.GaugeVec {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := metric
	gv, ok := m.gauges[key]
	if ok {
		return gv
	}

	gv = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nql_" + metric,
		Help: "nql aggregate metric " + metric,
	}, labelNames)
	m.reg.MustRegister(gv)
	m.gauges[key] = gv
	return gv
}
