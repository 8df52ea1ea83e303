package api

import (
	"context"
	"sync"
	"time"

	"github.com/dontdude/dbpexec/internal/domain"
)

// Hub routes job results from the results stream to whoever is waiting for
// them: a RemoteCompiler call or a WebSocket client. Results that arrive
// before anyone watches are held for ttl.
type Hub struct {
	mu      sync.Mutex
	waiters map[string][]chan domain.JobResult
	held    map[string]heldResult

	ttl time.Duration
	now func() time.Time
}

type heldResult struct {
	result domain.JobResult
	at     time.Time
}

// NewHub returns an empty hub holding unclaimed results for ttl.
func NewHub(ttl time.Duration) *Hub {
	return &Hub{
		waiters: make(map[string][]chan domain.JobResult),
		held:    make(map[string]heldResult),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Run delivers results until the channel closes or ctx is done.
func (h *Hub) Run(ctx context.Context, results <-chan domain.JobResult) {
	ticker := time.NewTicker(h.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			h.Deliver(res)
		case <-ticker.C:
			h.sweep()
		}
	}
}

// Deliver hands res to every watcher of its job, or holds it.
func (h *Hub) Deliver(res domain.JobResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	chans, ok := h.waiters[res.JobID]
	if !ok {
		h.held[res.JobID] = heldResult{result: res, at: h.now()}
		return
	}
	delete(h.waiters, res.JobID)
	for _, ch := range chans {
		// Buffered with room for exactly one result.
		ch <- res
	}
}

// Watch registers interest in jobID. The returned channel receives the
// result once. stop must be called when the caller gives up.
func (h *Hub) Watch(jobID string) (result <-chan domain.JobResult, stop func()) {
	ch := make(chan domain.JobResult, 1)

	h.mu.Lock()
	if held, ok := h.held[jobID]; ok {
		delete(h.held, jobID)
		ch <- held.result
	} else {
		h.waiters[jobID] = append(h.waiters[jobID], ch)
	}
	h.mu.Unlock()

	return ch, func() { h.unwatch(jobID, ch) }
}

func (h *Hub) unwatch(jobID string, ch chan domain.JobResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	chans := h.waiters[jobID]
	for i, c := range chans {
		if c == ch {
			chans = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(chans) == 0 {
		delete(h.waiters, jobID)
	} else {
		h.waiters[jobID] = chans
	}
}

// Pending reports how many jobs currently have watchers.
func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.waiters)
}

func (h *Hub) sweep() {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	for id, held := range h.held {
		if now.Sub(held.at) > h.ttl {
			delete(h.held, id)
		}
	}
}
