package output

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-nql/nql"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestMetrics_DerivedAggregationEventSetsGauge(t *testing.T) {
	m := NewMetrics()
	ev := &nql.Event{Kind: nql.KindDerived, Payload: nql.NewObject(map[string]nql.Value{
		"nql_result_type": nql.NewString("aggregation"),
		"metrics":          nql.NewObject(map[string]nql.Value{"count": nql.NewInt(3)}),
	})}
	m.Handle(ev)

	body := scrape(t, m)
	assert.Contains(t, body, "nql_count 3")
	assert.Contains(t, body, "nql_events_total 1")
}

func TestMetrics_CorrelationEventIncrementsCorrTotalNotEventsTotal(t *testing.T) {
	m := NewMetrics()
	m.Handle(&nql.Event{Kind: nql.KindCorrelation, Payload: nql.NewObject(map[string]nql.Value{})})

	body := scrape(t, m)
	assert.Contains(t, body, "nql_correlations_total 1")
	assert.Contains(t, body, "nql_events_total 0")
}

func TestMetrics_ErrorEventIncrementsErrorsTotal(t *testing.T) {
	m := NewMetrics()
	m.Handle(&nql.Event{Kind: nql.KindError, Payload: nql.Null})

	body := scrape(t, m)
	assert.Contains(t, body, "nql_errors_total 1")
}

func TestMetrics_NonAggregationDerivedEventSetsNoGauge(t *testing.T) {
	m := NewMetrics()
	m.Handle(&nql.Event{Kind: nql.KindDerived, Payload: nql.NewObject(map[string]nql.Value{
		"nql_result_type": nql.NewString("correlation"),
		"metrics":          nql.NewObject(map[string]nql.Value{"count": nql.NewInt(9)}),
	})})

	body := scrape(t, m)
	assert.NotContains(t, body, "nql_count")
	assert.Contains(t, body, "nql_events_total 1")
}

func TestMetrics_GroupedMetricLabelsStayPositionallyConsistentAcrossUpdates(t *testing.T) {
	m := NewMetrics()
	makeEvent := func(service, host string, count int64) *nql.Event {
		return &nql.Event{Kind: nql.KindDerived, Payload: nql.NewObject(map[string]nql.Value{
			"nql_result_type": nql.NewString("aggregation"),
			"group": nql.NewObject(map[string]nql.Value{
				"service": nql.NewString(service),
				"host":    nql.NewString(host),
			}),
			"metrics": nql.NewObject(map[string]nql.Value{"count": nql.NewInt(count)}),
		})}
	}
	// Repeated calls exercise Fields() map re-iteration; with sorted
	// label names the (service, host) pairing must stay positionally
	// stable regardless of map iteration order.
	for i := 0; i < 5; i++ {
		m.Handle(makeEvent("api", "node-1", int64(i+1)))
	}
	body := scrape(t, m)
	assert.Contains(t, body, `host="node-1",service="api"`)
	assert.Contains(t, body, "nql_count")
}
