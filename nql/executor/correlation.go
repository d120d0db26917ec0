package executor

import (
	"sync/atomic"
	"time"

	"github.com/wbrown/janus-nql/nql"
	"github.com/wbrown/janus-nql/nql/ast"
)

// expiryTick is the fixed interval of spec §4.4 "Correlation expiry":
// "Fires every 1000 ms."
const expiryTick = 1000 * time.Millisecond

// bufEntry is spec §3's "Correlation buffer entry": it owns a cloned
// event. Values in this engine are immutable after emission (nql.Value
// is never mutated post-construction), so "clone" here is a reference
// to the same immutable payload rather than a deep copy — there is
// nothing for a second owner to race with.
type bufEntry struct {
	event *nql.Event
}

// correlationState is the per-query correlation context of spec §3,
// generalized to also serve the legacy time-based correlator (§4.5) by
// expressing its left/right membership as match functions instead of
// compiled filter predicates: the QL correlate stage's matchers
// evaluate a predicate against the payload, the legacy correlator's
// matchers just check event.Kind.
type correlationState struct {
	world       *World
	matchLeft   func(*nql.Event) bool
	matchRight  func(*nql.Event) bool
	withinMs    int64
	bufCap      int
	left        []*bufEntry
	right       []*bufEntry
	timer       *Timer
	isTimeBased bool
}

func newCorrelationState(world *World, matchLeft, matchRight func(*nql.Event) bool, withinMs int64, bufCap int, timeBased bool) *correlationState {
	st := &correlationState{
		world:       world,
		matchLeft:   matchLeft,
		matchRight:  matchRight,
		withinMs:    withinMs,
		bufCap:      bufCap,
		isTimeBased: timeBased,
	}
	if world.isStarted() {
		st.timer = newTimer(world, expiryTick, func(now time.Time) {
			st.expire(uint64(now.UnixNano()))
		})
		st.timer.Start()
	}
	return st
}

func (w *World) corrState(queryText string, node *ast.CorrelateNode) *correlationState {
	w.mu.Lock()
	defer w.mu.Unlock()
	if st, ok := w.corrStates[queryText]; ok {
		return st
	}
	st := newCorrelationState(w,
		func(e *nql.Event) bool { return node.Left.Eval(e.Payload) },
		func(e *nql.Event) bool { return node.Right.Eval(e.Payload) },
		node.WithinMs, w.correlationBufCap, false)
	w.corrStates[queryText] = st
	return st
}

// timeBasedState lazily creates the singleton legacy correlator of
// spec §4.5: left = kind==log, right = kind==network.
func (w *World) timeBasedState() *correlationState {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timeBased == nil {
		w.timeBased = newCorrelationState(w,
			func(e *nql.Event) bool { return e.Kind == nql.KindLog },
			func(e *nql.Event) bool { return e.Kind == nql.KindNetwork },
			w.timeBasedWithinMs, w.correlationBufCap, true)
	}
	return w.timeBased
}

func (w *World) executeCorrelate(node *ast.CorrelateNode, queryText string, event *nql.Event) (bool, error) {
	st := w.corrState(queryText, node)
	return w.correlateEvent(st, event, false), nil
}

// correlateEvent implements spec §4.3.4. Both buffer insertions
// compare against a snapshot of the OTHER buffer taken before either
// insertion happens this call, which is what makes the spec's "it will
// not self-match because at the moment of its own insertion the
// opposite buffer does not contain it" guarantee hold even for an
// event that matches both predicates (whose two clones would otherwise
// see each other if insertions and scans were interleaved).
func (w *World) correlateEvent(st *correlationState, event *nql.Event, timeBased bool) bool {
	matchesLeft := st.matchLeft(event)
	matchesRight := st.matchRight(event)
	if !matchesLeft && !matchesRight {
		return false
	}

	rightSnapshot := st.right
	leftSnapshot := st.left

	if matchesLeft {
		st.left = prependCapped(st.left, event, st.bufCap)
		for _, r := range rightSnapshot {
			if withinWindow(event.TimestampNs, r.event.TimestampNs, st.withinMs) {
				w.emitCorrelationResult(st, event, r.event, timeBased)
			}
		}
	}
	if matchesRight {
		st.right = prependCapped(st.right, event, st.bufCap)
		for _, l := range leftSnapshot {
			if withinWindow(l.event.TimestampNs, event.TimestampNs, st.withinMs) {
				w.emitCorrelationResult(st, l.event, event, timeBased)
			}
		}
	}
	return true
}

func prependCapped(buf []*bufEntry, event *nql.Event, bufCap int) []*bufEntry {
	out := make([]*bufEntry, 0, len(buf)+1)
	out = append(out, &bufEntry{event: event})
	out = append(out, buf...)
	if bufCap > 0 && len(out) > bufCap {
		out = out[:bufCap]
	}
	return out
}

func withinWindow(leftTs, rightTs uint64, withinMs int64) bool {
	diffNs := int64(leftTs) - int64(rightTs)
	diffMs := diffNs / int64(time.Millisecond)
	if diffMs < 0 {
		diffMs = -diffMs
	}
	return diffMs <= withinMs
}

// expire implements spec §4.4 "Correlation expiry": entries older than
// now - 2*within_ms are dropped from both buffers.
func (st *correlationState) expire(nowNs uint64) {
	withinNs := uint64(st.withinMs) * uint64(time.Millisecond)
	cutoff := uint64(0)
	if nowNs > 2*withinNs {
		cutoff = nowNs - 2*withinNs
	}
	st.left = filterEntries(st.left, cutoff)
	st.right = filterEntries(st.right, cutoff)
}

func filterEntries(buf []*bufEntry, cutoff uint64) []*bufEntry {
	out := buf[:0:0]
	for _, e := range buf {
		if e.event.TimestampNs >= cutoff {
			out = append(out, e)
		}
	}
	return out
}

// emitCorrelationResult synthesizes the derived event of spec §4.6's
// correlation result schema.
func (w *World) emitCorrelationResult(st *correlationState, left, right *nql.Event, timeBased bool) {
	diffMs := float64(int64(left.TimestampNs)-int64(right.TimestampNs)) / float64(time.Millisecond)

	fields := map[string]nql.Value{
		"nql_result_type": nql.NewString("correlation"),
		"window_ms":       nql.NewInt(st.withinMs),
		"left_event":      left.Payload,
		"right_event":     right.Payload,
		"time_diff_ms":    nql.NewFloat(diffMs),
	}
	if timeBased {
		fields["correlation_type"] = nql.NewString("time_based")
	}

	ts := left.TimestampNs
	if right.TimestampNs > ts {
		ts = right.TimestampNs
	}

	ev := nql.NewEvent(nql.KindCorrelation, ts, nil, nql.NewObject(fields))
	w.emit(ev)
	atomic.AddInt64(&w.eventsCorrelated, 1)
}
