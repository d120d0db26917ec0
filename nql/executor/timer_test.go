package executor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runningWorld(t *testing.T) (*World, func()) {
	t.Helper()
	w := NewWorld(nil, nil)
	require.NoError(t, w.Open())
	require.NoError(t, w.Start())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	return w, func() {
		cancel()
		<-done
	}
}

func TestTimer_FiresRepeatedlyOnInterval(t *testing.T) {
	w, stop := runningWorld(t)
	defer stop()

	var fires int64
	tm := newTimer(w, 10*time.Millisecond, func(time.Time) {
		atomic.AddInt64(&fires, 1)
	})
	tm.Start()
	defer tm.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&fires) >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestTimer_StopPreventsFurtherFires(t *testing.T) {
	w, stop := runningWorld(t)
	defer stop()

	var fires int64
	tm := newTimer(w, 10*time.Millisecond, func(time.Time) {
		atomic.AddInt64(&fires, 1)
	})
	tm.Start()
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&fires) >= 1
	}, time.Second, 5*time.Millisecond)

	tm.Stop()
	after := atomic.LoadInt64(&fires)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt64(&fires), "no fire should be observed after Stop")
}

func TestTimer_StopBeforeStartIsSafe(t *testing.T) {
	w, stop := runningWorld(t)
	defer stop()

	tm := newTimer(w, time.Second, func(time.Time) {})
	assert.NotPanics(t, func() { tm.Stop() })
}

func TestTimer_StartIsIdempotent(t *testing.T) {
	w, stop := runningWorld(t)
	defer stop()

	var fires int64
	tm := newTimer(w, 10*time.Millisecond, func(time.Time) {
		atomic.AddInt64(&fires, 1)
	})
	tm.Start()
	tm.Start() // second call must not arm a duplicate timer
	defer tm.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&fires) >= 1
	}, time.Second, 5*time.Millisecond)
}
