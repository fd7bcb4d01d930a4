package sync

import "sync"

// pendingWrite identifies a record whose upload failed and should be
// retried ahead of the next sweep. Settings carry their key; the other
// collections carry their local row id.
type pendingWrite struct {
	Collection string
	LocalID    int64
	SettingKey string
}

// pendingWrites is a deduplicated retry set. The periodic sweep would
// eventually resend everything anyway; the set exists so reconnects
// retry known failures first and diagnostics can report a backlog.
type pendingWrites struct {
	mu    sync.Mutex
	items map[pendingWrite]struct{}
}

func newPendingWrites() *pendingWrites {
	return &pendingWrites{items: make(map[pendingWrite]struct{})}
}

func (p *pendingWrites) Add(w pendingWrite) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[w] = struct{}{}
}

// TakeAll drains and returns the set.
func (p *pendingWrites) TakeAll() []pendingWrite {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]pendingWrite, 0, len(p.items))
	for w := range p.items {
		out = append(out, w)
	}
	p.items = make(map[pendingWrite]struct{})
	return out
}

func (p *pendingWrites) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}
