package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-nql/nql"
	"github.com/wbrown/janus-nql/nql/ast"
	"github.com/wbrown/janus-nql/nql/filter"
)

func mustFilter(t *testing.T, expr string) *filter.Compiled {
	t.Helper()
	c, err := filter.Compile(expr)
	require.NoError(t, err)
	return c
}

func logEvent(t *testing.T, tsNs uint64, fields map[string]nql.Value) *nql.Event {
	t.Helper()
	return nql.NewEvent(nql.KindLog, tsNs, nil, nql.NewObject(fields))
}

func TestExecute_FilterNode(t *testing.T) {
	w := NewWorld(nil, nil)
	node := &ast.FilterNode{Predicate: mustFilter(t, `level == "error"`)}

	ev := logEvent(t, 1, map[string]nql.Value{"level": nql.NewString("error")})
	matched, err := w.Execute(node, "q1", ev)
	require.NoError(t, err)
	assert.True(t, matched)

	ev2 := logEvent(t, 2, map[string]nql.Value{"level": nql.NewString("info")})
	matched, err = w.Execute(node, "q1", ev2)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestExecute_ShowNodeNeverProjects(t *testing.T) {
	w := NewWorld(nil, nil)
	node := &ast.ShowNode{SelectAll: true}
	ev := logEvent(t, 1, map[string]nql.Value{"anything": nql.NewString("x")})
	matched, err := w.Execute(node, "q1", ev)
	require.NoError(t, err)
	assert.True(t, matched)

	filtered := &ast.ShowNode{Fields: []string{"level"}, Filter: mustFilter(t, `level == "error"`)}
	matched, err = w.Execute(filtered, "q2", logEvent(t, 1, map[string]nql.Value{"level": nql.NewString("info")}))
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestExecute_PipelineIsConjunctionOverSharedEvent(t *testing.T) {
	w := NewWorld(nil, nil)
	node := &ast.PipelineNode{Stages: []ast.Node{
		&ast.FilterNode{Predicate: mustFilter(t, `level == "error"`)},
		&ast.ShowNode{SelectAll: true, Filter: mustFilter(t, `code >= 500`)},
	}}

	matches := logEvent(t, 1, map[string]nql.Value{
		"level": nql.NewString("error"),
		"code":  nql.NewInt(503),
	})
	ok, err := w.Execute(node, "pipe", matches)
	require.NoError(t, err)
	assert.True(t, ok)

	onlyFirstStagePasses := logEvent(t, 2, map[string]nql.Value{
		"level": nql.NewString("error"),
		"code":  nql.NewInt(200),
	})
	ok, err = w.Execute(node, "pipe", onlyFirstStagePasses)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExecuteAggregate_WindowNoneEmitsImmediately(t *testing.T) {
	var emitted []*nql.Event
	w := NewWorld(func(e *nql.Event) { emitted = append(emitted, e) }, nil)

	node := &ast.AggregateNode{
		Funcs:  []ast.AggFunc{{Name: "count"}, {Name: "sum", Field: "bytes"}},
		Window: ast.Window{Kind: ast.WindowNone},
	}

	for i := 0; i < 3; i++ {
		ev := logEvent(t, uint64(i), map[string]nql.Value{"bytes": nql.NewInt(int64(10 * (i + 1)))})
		_, err := w.Execute(node, "agg1", ev)
		require.NoError(t, err)
	}

	require.Len(t, emitted, 3)
	last := emitted[2]
	resultType, _ := last.Payload.Get("nql_result_type")
	s, _ := resultType.AsString()
	assert.Equal(t, "aggregation", s)

	metrics, _ := last.Payload.Get("metrics")
	count, _ := metrics.Get("count")
	n, _ := count.AsNumber()
	assert.Equal(t, float64(3), n)

	sum, _ := metrics.Get("bytes")
	sn, _ := sum.AsNumber()
	assert.Equal(t, float64(10+20+30), sn)
}

func TestExecuteAggregate_GroupBy(t *testing.T) {
	var emitted []*nql.Event
	w := NewWorld(func(e *nql.Event) { emitted = append(emitted, e) }, nil)

	node := &ast.AggregateNode{
		GroupBy: []string{"host"},
		Funcs:   []ast.AggFunc{{Name: "count"}},
		Window:  ast.Window{Kind: ast.WindowNone},
	}

	hosts := []string{"a", "a", "b"}
	for i, h := range hosts {
		ev := logEvent(t, uint64(i), map[string]nql.Value{"host": nql.NewString(h)})
		_, err := w.Execute(node, "agg-group", ev)
		require.NoError(t, err)
	}

	require.Len(t, emitted, 3)
	lastForA := emitted[1]
	group, _ := lastForA.Payload.Get("group")
	hostVal, _ := group.Get("host")
	s, _ := hostVal.AsString()
	assert.Equal(t, "a", s)

	metrics, _ := lastForA.Payload.Get("metrics")
	count, _ := metrics.Get("count")
	n, _ := count.AsNumber()
	assert.Equal(t, float64(2), n)
}

func TestExecuteAggregate_Percentile(t *testing.T) {
	st := &aggregationState{funcs: []ast.AggFunc{{Name: "percentile", Field: "latency_ms", Percentile: 95}}}
	b := newAggBucket(nil, 0, 0)
	for _, v := range []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100} {
		b.update(st.funcs, nql.NewObject(map[string]nql.Value{"latency_ms": nql.NewFloat(v)}))
	}
	metrics := aggregationMetrics(st.funcs, b)
	p95, ok := metrics["p95_latency_ms"]
	require.True(t, ok)
	v, _ := p95.AsNumber()
	assert.Equal(t, 100.0, v) // nearest-rank: ceil(0.95*10)=10th of 10 sorted samples
}

func TestExecuteAggregate_TumblingBucketing(t *testing.T) {
	w := NewWorld(nil, nil)
	node := &ast.AggregateNode{
		Funcs:  []ast.AggFunc{{Name: "count"}},
		Window: ast.Window{Kind: ast.WindowTumbling, SizeMs: 1000},
	}

	st := w.aggState("tumble", node)
	bucketsA := st.targetBuckets(nil, 500_000_000)  // 0.5s -> bucket [0,1000)ms
	bucketsB := st.targetBuckets(nil, 1_500_000_000) // 1.5s -> bucket [1000,2000)ms
	require.Len(t, bucketsA, 1)
	require.Len(t, bucketsB, 1)
	assert.NotEqual(t, bucketsA[0], bucketsB[0])
}

func TestExecuteAggregate_SlidingWindowCoverage(t *testing.T) {
	w := NewWorld(nil, nil)
	node := &ast.AggregateNode{
		Funcs:  []ast.AggFunc{{Name: "count"}},
		Window: ast.Window{Kind: ast.WindowSliding, SizeMs: 1000, SlideMs: 500},
	}
	st := w.aggState("slide", node)
	buckets := st.targetBuckets(nil, uint64(1200)*uint64(1_000_000))
	assert.NotEmpty(t, buckets)
	for _, b := range buckets {
		assert.LessOrEqual(t, b.windowStart, uint64(1200_000_000))
		assert.Greater(t, b.windowEnd, uint64(1200_000_000))
	}
}

func TestExecuteAggregate_SessionWindowClosesOnTimeout(t *testing.T) {
	w := NewWorld(nil, nil)
	node := &ast.AggregateNode{
		Funcs:  []ast.AggFunc{{Name: "count"}},
		Window: ast.Window{Kind: ast.WindowSession, TimeoutMs: 1000},
	}
	st := w.aggState("sess", node)

	first := st.targetBuckets(nil, 0)
	require.Len(t, first, 1)

	withinTimeout := st.targetBuckets(nil, 500_000_000)
	require.Len(t, withinTimeout, 1)
	assert.Same(t, first[0], withinTimeout[0])

	afterTimeout := st.targetBuckets(nil, 2_000_000_000)
	require.Len(t, afterTimeout, 1)
	assert.NotSame(t, first[0], afterTimeout[0])
}

func TestCorrelate_BidirectionalMatch(t *testing.T) {
	var emitted []*nql.Event
	w := NewWorld(func(e *nql.Event) { emitted = append(emitted, e) }, nil)

	node := &ast.CorrelateNode{
		Left:     mustFilter(t, `kind == "request"`),
		Right:    mustFilter(t, `kind == "response"`),
		WithinMs: 500,
	}

	req := logEvent(t, 0, map[string]nql.Value{"kind": nql.NewString("request")})
	_, err := w.Execute(node, "corr", req)
	require.NoError(t, err)

	resp := logEvent(t, 100_000_000, map[string]nql.Value{"kind": nql.NewString("response")})
	_, err = w.Execute(node, "corr", resp)
	require.NoError(t, err)

	require.Len(t, emitted, 1)
	resultType, _ := emitted[0].Payload.Get("nql_result_type")
	s, _ := resultType.AsString()
	assert.Equal(t, "correlation", s)
}

func TestCorrelate_OutsideWindowDoesNotMatch(t *testing.T) {
	var emitted []*nql.Event
	w := NewWorld(func(e *nql.Event) { emitted = append(emitted, e) }, nil)

	node := &ast.CorrelateNode{
		Left:     mustFilter(t, `kind == "request"`),
		Right:    mustFilter(t, `kind == "response"`),
		WithinMs: 100,
	}

	req := logEvent(t, 0, map[string]nql.Value{"kind": nql.NewString("request")})
	_, err := w.Execute(node, "corr2", req)
	require.NoError(t, err)

	resp := logEvent(t, 1_000_000_000, map[string]nql.Value{"kind": nql.NewString("response")})
	_, err = w.Execute(node, "corr2", resp)
	require.NoError(t, err)

	assert.Empty(t, emitted)
}

func TestCorrelate_SelfMatchDoesNotFireWhenEventMatchesBothSides(t *testing.T) {
	var emitted []*nql.Event
	w := NewWorld(func(e *nql.Event) { emitted = append(emitted, e) }, nil)

	// A predicate pair that both match every event exercises the
	// snapshot-before-insert guarantee directly.
	node := &ast.CorrelateNode{
		Left:     mustFilter(t, `kind == "dual"`),
		Right:    mustFilter(t, `kind == "dual"`),
		WithinMs: 500,
	}

	ev := logEvent(t, 0, map[string]nql.Value{"kind": nql.NewString("dual")})
	_, err := w.Execute(node, "corr3", ev)
	require.NoError(t, err)

	assert.Empty(t, emitted, "first dual-matching event must not correlate against itself")

	ev2 := logEvent(t, 100_000_000, map[string]nql.Value{"kind": nql.NewString("dual")})
	_, err = w.Execute(node, "corr3", ev2)
	require.NoError(t, err)
	assert.NotEmpty(t, emitted, "second event should correlate against the first's buffered clones")
}

func TestCorrelate_ExpiryDropsOldEntries(t *testing.T) {
	w := NewWorld(nil, nil)
	node := &ast.CorrelateNode{
		Left:     mustFilter(t, `kind == "request"`),
		Right:    mustFilter(t, `kind == "response"`),
		WithinMs: 100,
	}
	st := w.corrState("corr4", node)

	req := logEvent(t, 0, map[string]nql.Value{"kind": nql.NewString("request")})
	w.correlateEvent(st, req, false)
	require.Len(t, st.left, 1)

	st.expire(uint64(10) * uint64(1_000_000_000)) // 10s later, cutoff = now - 2*100ms
	assert.Empty(t, st.left)
}

func TestWorld_LifecycleTransitions(t *testing.T) {
	w := NewWorld(nil, nil)
	assert.Equal(t, "constructed", w.Phase().String())

	require.NoError(t, w.Open())
	assert.Equal(t, "opened", w.Phase().String())

	require.Error(t, w.Open(), "Open twice should fail")

	require.NoError(t, w.Start())
	assert.Equal(t, "started", w.Phase().String())

	require.Error(t, w.Start(), "Start twice should fail")

	w.Stop()
	w.Free()
	assert.Equal(t, "freed", w.Phase().String())
}

func TestWorld_NilHandlerAndLoggerAreSafe(t *testing.T) {
	w := NewWorld(nil, nil)
	ev := logEvent(t, 0, map[string]nql.Value{})
	w.emit(ev) // must not panic
}
