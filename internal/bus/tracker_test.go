package bus_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iagocq/amicus/internal/bus"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestTrackerAwaiterCompletes(t *testing.T) {
	tr := bus.NewTracker()

	var ran atomic.Bool
	task := tr.Go("work", func() { ran.Store(true) })
	a := tr.Track(task)

	require.NoError(t, a.Wait(waitCtx(t)))
	require.True(t, ran.Load())
}

func TestTrackerRemovesAwaiterBeforeSignalling(t *testing.T) {
	tr := bus.NewTracker()

	for i := 0; i < 50; i++ {
		a := tr.Track(tr.Go("work", func() {}))
		require.NoError(t, a.Wait(waitCtx(t)))
		// The awaiter leaves the outstanding set strictly before Done
		// closes, so a completed awaiter is never observable here.
		require.Zero(t, tr.Outstanding())
	}
}

func TestTrackerEmptyTrackCompletesImmediately(t *testing.T) {
	tr := bus.NewTracker()
	a := tr.Track()
	require.NoError(t, a.Wait(waitCtx(t)))
	require.Zero(t, tr.Outstanding())
}

func TestTrackerDrainWaitsForWorkSpawnedDuringDrain(t *testing.T) {
	tr := bus.NewTracker()

	var second atomic.Bool
	first := tr.Go("first", func() {
		// Spawned while the drain is already waiting on this task.
		tr.Track(tr.Go("second", func() {
			time.Sleep(10 * time.Millisecond)
			second.Store(true)
		}))
	})
	tr.Track(first)

	require.NoError(t, tr.Drain(waitCtx(t)))
	require.True(t, second.Load())
	require.Zero(t, tr.Outstanding())
}

func TestTrackerDrainHonoursContext(t *testing.T) {
	tr := bus.NewTracker()

	gate := make(chan struct{})
	a := tr.Track(tr.Go("stuck", func() { <-gate }))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, tr.Drain(ctx), context.DeadlineExceeded)

	close(gate)
	require.NoError(t, a.Wait(waitCtx(t)))
}

func TestTrackerQuitIsIdempotent(t *testing.T) {
	tr := bus.NewTracker()
	tr.Quit()
	tr.Quit()
	select {
	case <-tr.Quitting():
	default:
		t.Fatal("Quitting channel not closed after Quit")
	}
}
