package framework

import "sync"

// Phase names the build stage a progress event belongs to.
type Phase string

const (
	// PhaseExtract events fire as each version finishes extraction, in
	// completion order.
	PhaseExtract Phase = "extract"
	// PhaseMatch events fire as each version is matched, in RSN order.
	PhaseMatch Phase = "match"
)

// Progress reports that one version finished a phase.
type Progress struct {
	Phase     Phase
	RSN       int
	Label     string
	Completed int
	Total     int
}

// Observer receives progress events on a dedicated goroutine. A slow
// observer delays later events but never the build: events still queued
// when a build returns are delivered after it.
type Observer func(Progress)

// notifier fans progress events out to observers without blocking the
// publisher. Events are delivered in publish order.
type notifier struct {
	observers []Observer

	mu     sync.Mutex
	queue  []Progress
	closed bool
	signal chan struct{}
}

func newNotifier(observers []Observer) *notifier {
	n := &notifier{
		observers: observers,
		signal:    make(chan struct{}, 1),
	}

	go n.run()

	return n
}

// publish enqueues p. It never blocks on observers.
func (n *notifier) publish(p Progress) {
	if len(n.observers) == 0 {
		return
	}

	n.mu.Lock()
	if !n.closed {
		n.queue = append(n.queue, p)
	}
	n.mu.Unlock()

	n.wake()
}

// close stops accepting events. It does not wait for delivery: the
// dispatcher hands out what is queued and then exits.
func (n *notifier) close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	n.wake()
}

func (n *notifier) wake() {
	select {
	case n.signal <- struct{}{}:
	default:
	}
}

func (n *notifier) run() {
	for range n.signal {
		n.mu.Lock()
		batch := n.queue
		n.queue = nil
		closed := n.closed
		n.mu.Unlock()

		for _, p := range batch {
			for _, obs := range n.observers {
				obs(p)
			}
		}

		if closed {
			return
		}
	}
}
