package connectivity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualBroadcastsTransitions(t *testing.T) {
	m := NewManual(false)
	updates := m.Updates()

	assert.False(t, m.Online())

	m.SetOnline(true)
	select {
	case online := <-updates:
		assert.True(t, online)
	case <-time.After(time.Second):
		t.Fatal("expected a transition signal")
	}
	assert.True(t, m.Online())

	// Setting the same state again is not a transition.
	m.SetOnline(true)
	select {
	case <-updates:
		t.Fatal("did not expect a signal without a transition")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManualSlowReceiverSeesLatestState(t *testing.T) {
	m := NewManual(false)
	updates := m.Updates()

	m.SetOnline(true)
	m.SetOnline(false)
	m.SetOnline(true)

	select {
	case online := <-updates:
		assert.True(t, online)
	case <-time.After(time.Second):
		t.Fatal("expected the latest transition")
	}
}

func TestProbeMonitorTracksProbe(t *testing.T) {
	var failing atomic.Bool

	probe := func(ctx context.Context) error {
		if failing.Load() {
			return errors.New("unreachable")
		}
		return nil
	}

	m := NewProbeMonitor(probe, 10*time.Millisecond)
	updates := m.Updates()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	select {
	case online := <-updates:
		assert.True(t, online)
	case <-time.After(time.Second):
		t.Fatal("expected the monitor to come online")
	}

	failing.Store(true)
	select {
	case online := <-updates:
		assert.False(t, online)
	case <-time.After(time.Second):
		t.Fatal("expected the monitor to go offline")
	}
	assert.False(t, m.Online())
}
