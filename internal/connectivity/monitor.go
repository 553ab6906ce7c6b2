// Package connectivity tracks whether the dispatch server is reachable and
// broadcasts online/offline transitions to interested components.
package connectivity

import (
	"context"
	"sync"
	"time"
)

// Monitor reports the current reachability state and streams transitions.
type Monitor interface {
	// Online returns the point-in-time reachability state.
	Online() bool

	// Updates returns a channel receiving the new state on every
	// transition. Sends never block; a slow receiver only sees the most
	// recent transition.
	Updates() <-chan bool
}

// Probe checks reachability once; a nil error means online.
type Probe func(ctx context.Context) error

// ProbeMonitor polls a reachability probe at a fixed interval and
// broadcasts state transitions.
type ProbeMonitor struct {
	probe    Probe
	interval time.Duration

	mu     sync.Mutex
	online bool
	subs   []chan bool
}

// NewProbeMonitor creates a monitor around probe. The monitor starts
// offline until the first successful probe; call Run to start polling.
func NewProbeMonitor(probe Probe, interval time.Duration) *ProbeMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ProbeMonitor{
		probe:    probe,
		interval: interval,
	}
}

// Run polls the probe until ctx is cancelled. It checks once immediately so
// callers see a meaningful state without waiting a full interval.
func (m *ProbeMonitor) Run(ctx context.Context) error {
	m.check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// check runs the probe once and broadcasts if the state changed.
func (m *ProbeMonitor) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	err := m.probe(probeCtx)
	cancel()

	m.set(err == nil)
}

// Online returns the current reachability state.
func (m *ProbeMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Updates returns a transition channel for this monitor.
func (m *ProbeMonitor) Updates() <-chan bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan bool, 1)
	m.subs = append(m.subs, ch)
	return ch
}

func (m *ProbeMonitor) set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return
	}
	m.online = online

	for _, ch := range m.subs {
		select {
		case ch <- online:
		default:
			// Drop the stale value so the receiver sees the latest state.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- online:
			default:
			}
		}
	}
}

// Manual is a Monitor whose state is set explicitly. It backs tests and
// forced-offline operation.
type Manual struct {
	mu     sync.Mutex
	online bool
	subs   []chan bool
}

// NewManual creates a Manual monitor with the given initial state.
func NewManual(online bool) *Manual {
	return &Manual{online: online}
}

// Online returns the current state.
func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Updates returns a transition channel for this monitor.
func (m *Manual) Updates() <-chan bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan bool, 1)
	m.subs = append(m.subs, ch)
	return ch
}

// SetOnline changes the state, broadcasting on transition.
func (m *Manual) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return
	}
	m.online = online

	for _, ch := range m.subs {
		select {
		case ch <- online:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- online:
			default:
			}
		}
	}
}
