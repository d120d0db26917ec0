package executor

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wbrown/janus-nql/nql"
	"github.com/wbrown/janus-nql/nql/ast"
)

// maxSlidingWindowsPerEvent bounds pathological sliding-window
// configurations, per spec §4.3.3 step 4 / §5 "Bounds". Not yet
// configurable — see DESIGN.md.
const maxSlidingWindowsPerEvent = 1000

// distinctValueCap bounds the per-metric distinct-value set; beyond it
// further values are silently dropped rather than tracked, per spec
// §4.3.3 step 5: "the stored set is bounded only by practice —
// implementations may cap."
const distinctValueCap = 100000

// metricState is the running numeric state for a single aggregation
// function within a bucket, generalizing the teacher's single-field
// AggregateState (datalog/executor/aggregation.go) to a query that
// names several functions over several fields at once.
type metricState struct {
	fn       ast.AggFunc
	n        int64
	sum      float64
	min      float64
	max      float64
	samples  []float64          // percentile
	distinct map[string]struct{} // distinct
}

func newMetricState(fn ast.AggFunc) *metricState {
	return &metricState{fn: fn, min: math.Inf(1), max: math.Inf(-1)}
}

func (m *metricState) update(payload nql.Value) {
	switch m.fn.Name {
	case "count":
		// tracked on the bucket itself; nothing per-metric to do.
	case "sum", "avg":
		if v, ok := numericField(payload, m.fn.Field); ok {
			m.sum += v
			m.n++
		}
	case "min":
		if v, ok := numericField(payload, m.fn.Field); ok {
			if v < m.min {
				m.min = v
			}
			m.n++
		}
	case "max":
		if v, ok := numericField(payload, m.fn.Field); ok {
			if v > m.max {
				m.max = v
			}
			m.n++
		}
	case "percentile":
		if v, ok := numericField(payload, m.fn.Field); ok {
			m.samples = append(m.samples, v)
			m.n++
		}
	case "distinct":
		key := "null"
		if val, ok := payload.Lookup(m.fn.Field); ok {
			if s, ok2 := val.AsString(); ok2 {
				key = s
			}
		}
		if m.distinct == nil {
			m.distinct = make(map[string]struct{})
		}
		if len(m.distinct) < distinctValueCap {
			if _, exists := m.distinct[key]; !exists {
				m.distinct[key] = struct{}{}
			}
		}
		m.n++
	}
}

func numericField(payload nql.Value, field string) (float64, bool) {
	val, ok := payload.Lookup(field)
	if !ok {
		return 0, false
	}
	return val.AsNumber()
}

// aggBucket is one (group-key, window) accumulator, per spec §3's
// "Aggregation bucket."
type aggBucket struct {
	groupKey    []string
	windowStart uint64
	windowEnd   uint64
	count       int64
	lastEventNs uint64
	metrics     map[string]*metricState
}

func newAggBucket(groupKey []string, start, end uint64) *aggBucket {
	return &aggBucket{groupKey: groupKey, windowStart: start, windowEnd: end, metrics: map[string]*metricState{}}
}

func (b *aggBucket) update(funcs []ast.AggFunc, payload nql.Value) {
	b.count++
	for _, fn := range funcs {
		key := fn.String()
		ms, ok := b.metrics[key]
		if !ok {
			ms = newMetricState(fn)
			b.metrics[key] = ms
		}
		ms.update(payload)
	}
}

// reset clears running state in place for a tumbling bucket's next
// window, per spec §4.4: "reset all running state."
func (b *aggBucket) reset() {
	b.count = 0
	b.metrics = map[string]*metricState{}
}

// aggregationState is the per-query aggregation context described in
// spec §3 ("World... active aggregation-state contexts keyed by
// original query text").
type aggregationState struct {
	world     *World
	queryText string
	groupBy   []string
	funcs     []ast.AggFunc
	window    ast.Window
	buckets   map[string]*aggBucket
	timer     *Timer
}

func newAggregationState(world *World, queryText string, node *ast.AggregateNode) *aggregationState {
	groupBy := append([]string(nil), node.GroupBy...)
	funcs := append([]ast.AggFunc(nil), node.Funcs...)

	st := &aggregationState{
		world:     world,
		queryText: queryText,
		groupBy:   groupBy,
		funcs:     funcs,
		window:    node.Window,
		buckets:   make(map[string]*aggBucket),
	}

	if world.isStarted() && st.window.Kind != ast.WindowNone {
		interval := flushInterval(st.window)
		st.timer = newTimer(world, interval, func(now time.Time) {
			st.flush(uint64(now.UnixNano()))
		})
		st.timer.Start()
	}
	return st
}

func flushInterval(w ast.Window) time.Duration {
	switch w.Kind {
	case ast.WindowTumbling:
		return time.Duration(w.SizeMs) * time.Millisecond
	case ast.WindowSliding:
		slide := w.SlideMs
		if slide <= 0 {
			slide = w.SizeMs
		}
		return time.Duration(slide) * time.Millisecond
	case ast.WindowSession:
		ms := w.TimeoutMs / 2
		if ms < 100 {
			ms = 100
		}
		return time.Duration(ms) * time.Millisecond
	default:
		return time.Hour // never used: None windows get no timer
	}
}

func (w *World) aggState(queryText string, node *ast.AggregateNode) *aggregationState {
	w.mu.Lock()
	defer w.mu.Unlock()
	if st, ok := w.aggStates[queryText]; ok {
		return st
	}
	st := newAggregationState(w, queryText, node)
	w.aggStates[queryText] = st
	return st
}

func (w *World) executeAggregate(node *ast.AggregateNode, queryText string, event *nql.Event) (bool, error) {
	if node.Filter != nil && !node.Filter.Eval(event.Payload) {
		return false, nil
	}

	st := w.aggState(queryText, node)
	groupKey := groupKeyTuple(st.groupBy, event.Payload)
	buckets := st.targetBuckets(groupKey, event.TimestampNs)
	if len(buckets) == 0 {
		return false, nil
	}

	for _, b := range buckets {
		b.update(st.funcs, event.Payload)
		if st.window.Kind == ast.WindowNone {
			w.emitAggregationResult(st, b, event.TimestampNs)
		}
	}
	return true, nil
}

// groupKeyTuple resolves each group-by field path against payload, per
// spec §4.3.3 step 3: missing/non-scalar becomes "null"; integers use
// decimal form; reals use six-digit fixed form.
func groupKeyTuple(groupBy []string, payload nql.Value) []string {
	if len(groupBy) == 0 {
		return nil
	}
	tuple := make([]string, len(groupBy))
	for i, field := range groupBy {
		tuple[i] = groupKeyComponent(payload, field)
	}
	return tuple
}

func groupKeyComponent(payload nql.Value, field string) string {
	val, ok := payload.Lookup(field)
	if !ok {
		return "null"
	}
	switch val.Kind() {
	case nql.KindInt:
		n, _ := val.AsNumber()
		return strconv.FormatInt(int64(n), 10)
	case nql.KindFloat:
		n, _ := val.AsNumber()
		return strconv.FormatFloat(n, 'f', 6, 64)
	case nql.KindString:
		s, _ := val.AsString()
		return s
	case nql.KindBool:
		s, _ := val.AsString()
		return s
	default:
		return "null"
	}
}

func (st *aggregationState) getOrCreateBucket(key string, groupKey []string, start, end uint64) *aggBucket {
	if b, ok := st.buckets[key]; ok {
		return b
	}
	b := newAggBucket(groupKey, start, end)
	st.buckets[key] = b
	return b
}

// targetBuckets implements spec §4.3.3 step 4's per-window-kind bucket
// assignment.
func (st *aggregationState) targetBuckets(groupKey []string, tsNs uint64) []*aggBucket {
	groupKeyStr := strings.Join(groupKey, "\x1f")

	switch st.window.Kind {
	case ast.WindowNone:
		key := groupKeyStr + "|none"
		return []*aggBucket{st.getOrCreateBucket(key, groupKey, 0, math.MaxUint64)}

	case ast.WindowTumbling:
		sizeNs := msToNs(st.window.SizeMs)
		if sizeNs == 0 {
			return nil
		}
		start := (tsNs / sizeNs) * sizeNs
		end := start + sizeNs
		key := fmt.Sprintf("%s|%d", groupKeyStr, start)
		return []*aggBucket{st.getOrCreateBucket(key, groupKey, start, end)}

	case ast.WindowSliding:
		sizeNs := msToNs(st.window.SizeMs)
		slideNs := msToNs(st.window.SlideMs)
		if slideNs == 0 {
			slideNs = sizeNs
		}
		if sizeNs == 0 || slideNs == 0 {
			return nil
		}
		var lo uint64
		if tsNs > sizeNs {
			lo = ((tsNs - sizeNs) / slideNs) * slideNs
		}
		hi := (tsNs / slideNs) * slideNs

		var buckets []*aggBucket
		for start := lo; start <= hi && len(buckets) < maxSlidingWindowsPerEvent; start += slideNs {
			if start <= tsNs && tsNs < start+sizeNs {
				key := fmt.Sprintf("%s|%d", groupKeyStr, start)
				buckets = append(buckets, st.getOrCreateBucket(key, groupKey, start, start+sizeNs))
			}
		}
		return buckets

	case ast.WindowSession:
		timeoutNs := msToNs(st.window.TimeoutMs)
		key := groupKeyStr + "|session"
		if existing, ok := st.buckets[key]; ok {
			if tsNs >= existing.lastEventNs && tsNs-existing.lastEventNs < timeoutNs {
				existing.lastEventNs = tsNs
				return []*aggBucket{existing}
			}
			// existing already went idle past timeoutNs but the flush
			// tick (every timeoutNs/2) hasn't caught it yet; close it
			// out now so replacing it below doesn't drop its count.
			if tsNs >= existing.lastEventNs && existing.count > 0 {
				st.world.emitAggregationResult(st, existing, tsNs)
			}
		}
		b := newAggBucket(groupKey, tsNs, math.MaxUint64)
		b.lastEventNs = tsNs
		st.buckets[key] = b
		return []*aggBucket{b}

	default:
		return nil
	}
}

func msToNs(ms int64) uint64 {
	if ms <= 0 {
		return 0
	}
	return uint64(ms) * uint64(time.Millisecond)
}

// flush implements the per-window-kind tick behavior of spec §4.4
// "Aggregation flush."
func (st *aggregationState) flush(nowNs uint64) {
	for key, b := range st.buckets {
		switch st.window.Kind {
		case ast.WindowTumbling:
			if b.windowEnd <= nowNs {
				if b.count > 0 {
					st.world.emitAggregationResult(st, b, nowNs)
				}
				sizeNs := msToNs(st.window.SizeMs)
				if sizeNs == 0 {
					continue
				}
				advance := ((nowNs - b.windowStart) / sizeNs) * sizeNs
				b.windowStart += advance
				b.windowEnd = b.windowStart + sizeNs
				b.reset()
			}
		case ast.WindowSliding:
			if b.windowEnd <= nowNs {
				if b.count > 0 {
					st.world.emitAggregationResult(st, b, nowNs)
				}
				delete(st.buckets, key)
			}
		case ast.WindowSession:
			timeoutNs := msToNs(st.window.TimeoutMs)
			if b.count > 0 && nowNs-b.lastEventNs >= timeoutNs {
				st.world.emitAggregationResult(st, b, nowNs)
				delete(st.buckets, key)
			}
		}
	}
}

// emitAggregationResult synthesizes the derived event of spec §4.6's
// aggregation result schema.
func (w *World) emitAggregationResult(st *aggregationState, b *aggBucket, tsNs uint64) {
	fields := map[string]nql.Value{
		"nql_result_type": nql.NewString("aggregation"),
		"metrics":         nql.NewObject(aggregationMetrics(st.funcs, b)),
	}
	if len(st.groupBy) > 0 {
		group := make(map[string]nql.Value, len(st.groupBy))
		for i, field := range st.groupBy {
			group[field] = nql.NewString(b.groupKey[i])
		}
		fields["group"] = nql.NewObject(group)
	}
	if st.window.Kind != ast.WindowNone {
		fields["window"] = nql.NewObject(map[string]nql.Value{
			"start_ns": nql.NewInt(int64(b.windowStart)),
			"end_ns":   nql.NewInt(int64(b.windowEnd)),
		})
	}

	ev := nql.NewEvent(nql.KindDerived, tsNs, nil, nql.NewObject(fields))
	w.emit(ev)
}

func aggregationMetrics(funcs []ast.AggFunc, b *aggBucket) map[string]nql.Value {
	metrics := make(map[string]nql.Value, len(funcs)+1)
	for _, fn := range funcs {
		ms := b.metrics[fn.String()]
		switch fn.Name {
		case "count":
			metrics["count"] = nql.NewInt(b.count)
		case "sum":
			sum := 0.0
			if ms != nil {
				sum = ms.sum
			}
			metrics[fn.Field] = nql.NewFloat(sum)
		case "avg":
			avg := 0.0
			if ms != nil && ms.n > 0 {
				avg = ms.sum / float64(ms.n)
			}
			metrics["avg_"+fn.Field] = nql.NewFloat(avg)
		case "min":
			v := 0.0
			if ms != nil && ms.n > 0 {
				v = ms.min
			}
			metrics["min_"+fn.Field] = nql.NewFloat(v)
		case "max":
			v := 0.0
			if ms != nil && ms.n > 0 {
				v = ms.max
			}
			metrics["max_"+fn.Field] = nql.NewFloat(v)
		case "percentile":
			var samples []float64
			if ms != nil {
				samples = ms.samples
			}
			v := percentileNearestRank(samples, fn.Percentile)
			label := fmt.Sprintf("p%d_%s", int(math.Round(fn.Percentile)), fn.Field)
			metrics[label] = nql.NewFloat(v)
		case "distinct":
			count := int64(0)
			if ms != nil {
				count = int64(len(ms.distinct))
			}
			metrics["distinct_"+fn.Field] = nql.NewInt(count)
		}
	}
	return metrics
}

// percentileNearestRank implements nearest-rank percentile estimation
// over a sorted copy of samples, per spec §3's "percentile(p)".
func percentileNearestRank(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
