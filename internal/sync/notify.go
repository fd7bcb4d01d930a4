package sync

import (
	"sync"
	"time"
)

// notifier coalesces change notifications per collection. A burst of
// inbound merges produces one callback per collection per debounce
// window instead of one per record.
type notifier struct {
	mu       sync.Mutex
	debounce time.Duration
	fire     func(collection string)
	timers   map[string]*time.Timer
	stopped  bool
}

func newNotifier(debounce time.Duration, fire func(collection string)) *notifier {
	return &notifier{
		debounce: debounce,
		fire:     fire,
		timers:   make(map[string]*time.Timer),
	}
}

// Changed schedules a notification for collection, resetting any timer
// already pending for it.
func (n *notifier) Changed(collection string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped {
		return
	}
	if t, ok := n.timers[collection]; ok {
		t.Reset(n.debounce)
		return
	}
	n.timers[collection] = time.AfterFunc(n.debounce, func() {
		n.mu.Lock()
		delete(n.timers, collection)
		stopped := n.stopped
		n.mu.Unlock()
		if !stopped {
			n.fire(collection)
		}
	})
}

// Stop cancels all pending notifications. No callbacks fire after Stop
// returns.
func (n *notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stopped = true
	for c, t := range n.timers {
		t.Stop()
		delete(n.timers, c)
	}
}
