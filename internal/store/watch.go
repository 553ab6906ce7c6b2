package store

import "sync"

// notifier fans out change signals to table watchers. Sends never block:
// each subscriber channel has a one-slot buffer, and a signal arriving while
// one is already pending is coalesced with it.
type notifier struct {
	mu   sync.Mutex
	subs map[Table][]chan struct{}
}

func newNotifier() *notifier {
	return &notifier{
		subs: make(map[Table][]chan struct{}),
	}
}

// watch registers a new subscriber channel for the given table.
func (n *notifier) watch(table Table) <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan struct{}, 1)
	n.subs[table] = append(n.subs[table], ch)
	return ch
}

// notify signals every subscriber of the given table.
func (n *notifier) notify(table Table) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs[table] {
		select {
		case ch <- struct{}{}:
		default:
			// A signal is already pending; coalesce.
		}
	}
}
