// Package executor implements the QL dispatcher, the windowed
// aggregation engine, the buffered correlation engine, and the World
// event-loop object that ties them together, per spec §3/§4.3-§4.5/§5.
// World and its per-query state registries live in one package
// (rather than a separate world package) because Execute needs the
// registries' concrete types and the registries need World visible to
// schedule timers — splitting them would only create an import cycle.
package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wbrown/janus-nql/nql"
	"github.com/wbrown/janus-nql/nql/ast"
)

// phase tracks the World lifecycle named in spec §3: constructed ->
// opened -> started -> run -> stopped -> freed.
type phase int32

const (
	phaseConstructed phase = iota
	phaseOpened
	phaseStarted
	phaseRunning
	phaseStopped
	phaseFreed
)

func (p phase) String() string {
	switch p {
	case phaseConstructed:
		return "constructed"
	case phaseOpened:
		return "opened"
	case phaseStarted:
		return "started"
	case phaseRunning:
		return "running"
	case phaseStopped:
		return "stopped"
	case phaseFreed:
		return "freed"
	default:
		return "unknown"
	}
}

// World is the process-wide singleton object named in spec §3: it owns
// the event loop, the derived-event handler, the active aggregation
// and correlation state lists, and a singleton legacy time-based
// correlator.
type World struct {
	log     *zap.SugaredLogger
	handler nql.Handler

	commands chan func()
	stopCh   chan struct{}
	stopOnce sync.Once
	phaseV   int32 // atomic phase

	eventsProcessed  int64
	eventsCorrelated int64

	mu         sync.Mutex
	aggStates  map[string]*aggregationState
	corrStates map[string]*correlationState
	timeBased  *correlationState

	timeBasedWithinMs  int64
	correlationBufCap  int
}

// NewWorld constructs a World in the "constructed" phase. handler runs
// synchronously on the loop goroutine for every derived event; a nil
// handler is replaced with a discard no-op, and a nil logger with a
// zap no-op logger, so a zero-configured World never panics.
func NewWorld(handler nql.Handler, log *zap.SugaredLogger) *World {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if handler == nil {
		handler = func(*nql.Event) {}
	}
	return &World{
		log:               log,
		handler:           handler,
		commands:          make(chan func(), 4096),
		stopCh:            make(chan struct{}),
		aggStates:         make(map[string]*aggregationState),
		corrStates:        make(map[string]*correlationState),
		timeBasedWithinMs: 100,
		correlationBufCap: 10000,
		phaseV:            int32(phaseConstructed),
	}
}

// SetTimeBasedWithinMs configures the legacy correlator's matching
// window before the first event reaches it. Must be called before
// Start.
func (w *World) SetTimeBasedWithinMs(ms int64) { w.timeBasedWithinMs = ms }

// SetCorrelationBufferCap overrides the default 10,000-entry-per-side
// cap (spec §5 "Bounds").
func (w *World) SetCorrelationBufferCap(n int) { w.correlationBufCap = n }

// Open transitions constructed -> opened.
func (w *World) Open() error {
	if !w.transition(phaseConstructed, phaseOpened) {
		return fmt.Errorf("world: Open called in phase %s", w.Phase())
	}
	return nil
}

// Start transitions opened -> started: per-query timers created after
// this point begin ticking immediately.
func (w *World) Start() error {
	if !w.transition(phaseOpened, phaseStarted) {
		return fmt.Errorf("world: Start called in phase %s", w.Phase())
	}
	return nil
}

// Run drives the loop — the one logical thread of spec §5 — until ctx
// is cancelled or Stop is called.
func (w *World) Run(ctx context.Context) error {
	if !w.transition(phaseStarted, phaseRunning) {
		return fmt.Errorf("world: Run called in phase %s", w.Phase())
	}
	for {
		select {
		case <-ctx.Done():
			w.setPhase(phaseStopped)
			return ctx.Err()
		case <-w.stopCh:
			w.setPhase(phaseStopped)
			return nil
		case cmd := <-w.commands:
			cmd()
		}
	}
}

// Stop requests the loop to exit after the current callback, per spec
// §5. Safe to call more than once or before Run.
func (w *World) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// Free releases per-query aggregation/correlation state and their
// timers. Call after the loop has returned from Run.
func (w *World) Free() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, st := range w.aggStates {
		if st.timer != nil {
			st.timer.Stop()
		}
	}
	for _, st := range w.corrStates {
		if st.timer != nil {
			st.timer.Stop()
		}
	}
	if w.timeBased != nil && w.timeBased.timer != nil {
		w.timeBased.timer.Stop()
	}
	w.aggStates = map[string]*aggregationState{}
	w.corrStates = map[string]*correlationState{}
	w.timeBased = nil
	w.setPhase(phaseFreed)
}

func (w *World) transition(from, to phase) bool {
	return atomic.CompareAndSwapInt32(&w.phaseV, int32(from), int32(to))
}

func (w *World) setPhase(p phase) { atomic.StoreInt32(&w.phaseV, int32(p)) }

// Phase reports the current lifecycle phase.
func (w *World) Phase() phase { return phase(atomic.LoadInt32(&w.phaseV)) }

func (w *World) isStarted() bool {
	p := w.Phase()
	return p == phaseStarted || p == phaseRunning
}

// submit enqueues fn to run on the loop goroutine. Called by Dispatch,
// IngestEvent, and every Timer fire.
func (w *World) submit(fn func()) {
	select {
	case w.commands <- fn:
	case <-w.stopCh:
	}
}

// Dispatch enqueues node for evaluation against event, scoped to the
// per-query state keyed by queryText (spec §3: "keyed by original
// query text").
func (w *World) Dispatch(node ast.Node, queryText string, event *nql.Event) {
	w.submit(func() {
		matched, err := w.Execute(node, queryText, event)
		if err != nil {
			w.log.Errorw("execute failed", "query", queryText, "error", err)
			return
		}
		if matched {
			atomic.AddInt64(&w.eventsProcessed, 1)
		}
	})
}

// IngestEvent runs event through the singleton legacy time-based
// correlator (spec §4.5), independent of any QL query.
func (w *World) IngestEvent(event *nql.Event) {
	w.submit(func() {
		st := w.timeBasedState()
		if w.correlateEvent(st, event, true) {
			atomic.AddInt64(&w.eventsProcessed, 1)
		}
	})
}

func (w *World) emit(event *nql.Event) { w.handler(event) }

// EventsProcessed returns the running count of matches: one for each
// event a dispatched query matched, plus one for each event the legacy
// correlator took in.
func (w *World) EventsProcessed() int64 { return atomic.LoadInt64(&w.eventsProcessed) }

// EventsCorrelated returns the running count of correlation results
// emitted (QL correlate stages plus the legacy correlator).
func (w *World) EventsCorrelated() int64 { return atomic.LoadInt64(&w.eventsCorrelated) }
