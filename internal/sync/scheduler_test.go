package sync

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/fieldworker/internal/api"
	"github.com/nhle/fieldworker/internal/connectivity"
	"github.com/nhle/fieldworker/internal/model"
)

func newTestScheduler(e *Engine, monitor connectivity.Monitor) (*Scheduler, *[]time.Duration) {
	s := NewScheduler(e, monitor, time.Hour, 3, log.New(io.Discard, "", 0))

	var sleeps []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return s, &sleeps
}

func TestSchedulerDrainsQueueWhenConnectivityReturns(t *testing.T) {
	remote := newFakeRemote(serverTask(1, model.StatusNew))
	e, monitor := newTestEngine(t, remote, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := e.RefreshTasks(ctx)
	require.NoError(t, err)

	monitor.SetOnline(false)
	_, err = e.UpdateStatus(ctx, 1, model.StatusDone, "")
	require.NoError(t, err)

	s, _ := newTestScheduler(e, monitor)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	// Give Run a moment to subscribe before flipping the state.
	time.Sleep(50 * time.Millisecond)
	monitor.SetOnline(true)

	deadline := time.Now().Add(2 * time.Second)
	for {
		pending, err := e.PendingCount(ctx)
		require.NoError(t, err)
		if pending == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("queued edit was not replayed after connectivity returned")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done
}

func TestSchedulerForceTriggersCycle(t *testing.T) {
	remote := newFakeRemote(serverTask(1, model.StatusNew))
	e, monitor := newTestEngine(t, remote, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, _ := newTestScheduler(e, monitor)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	monitor.SetOnline(true)
	s.Force()

	deadline := time.Now().Add(2 * time.Second)
	for {
		tasks, err := e.Tasks(ctx)
		require.NoError(t, err)
		if len(tasks) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("forced cycle did not populate the cache")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done
}

func TestSchedulerRetriesWithBackoff(t *testing.T) {
	remote := newFakeRemote()
	remote.listErr = &api.ServerError{StatusCode: 500, Message: "boom"}
	e, monitor := newTestEngine(t, remote, true)

	s, sleeps := newTestScheduler(e, monitor)
	s.runCycle(context.Background())

	assert.Equal(t, 3, remote.listCalls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *sleeps)
}

func TestSchedulerDoesNotRetryUnauthorized(t *testing.T) {
	remote := newFakeRemote()
	remote.listErr = &api.Unauthorized{Message: "token expired"}
	e, monitor := newTestEngine(t, remote, true)

	s, sleeps := newTestScheduler(e, monitor)
	s.runCycle(context.Background())

	assert.Equal(t, 1, remote.listCalls)
	assert.Empty(t, *sleeps)
}

func TestSchedulerSkipsCycleOffline(t *testing.T) {
	remote := newFakeRemote(serverTask(1, model.StatusNew))
	e, monitor := newTestEngine(t, remote, false)

	s, _ := newTestScheduler(e, monitor)
	s.runCycle(context.Background())

	assert.Zero(t, remote.listCalls)
}
