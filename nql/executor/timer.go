package executor

import "time"

// Timer wraps time.Timer to give the aggregation and correlation
// engines O(1) Start/Stop (re-arming with Reset after each tick), per spec §9's "any monotonically advancing
// timer works" resolution. Every fire is funneled back through the
// owning World's loop via submit, so a tick is processed under the
// same single-threaded discipline as every other re-entry point (spec
// §5: "timers are the only re-entry points").
type Timer struct {
	world    *World
	interval time.Duration
	onFire   func(now time.Time)

	t       *time.Timer
	started bool
	stopped bool
}

func newTimer(world *World, interval time.Duration, onFire func(now time.Time)) *Timer {
	return &Timer{world: world, interval: interval, onFire: onFire}
}

// Start arms the timer. A Timer that is never Started can still be
// Stopped safely — Stop is a no-op when started is false, matching
// spec §5's free() discipline ("requires the timer to have been either
// never initialized or closed").
func (tm *Timer) Start() {
	if tm.started {
		return
	}
	tm.started = true
	tm.t = time.AfterFunc(tm.interval, tm.fire)
}

func (tm *Timer) fire() {
	firedAt := time.Now()
	tm.world.submit(func() {
		if tm.stopped {
			return
		}
		tm.onFire(firedAt)
		if !tm.stopped {
			tm.t.Reset(tm.interval)
		}
	})
}

// Stop disarms the timer. Safe to call multiple times.
func (tm *Timer) Stop() {
	if !tm.started || tm.stopped {
		return
	}
	tm.stopped = true
	tm.t.Stop()
}
