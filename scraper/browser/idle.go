package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

// maxIdleInflight is how many requests may stay open while the page still
// counts as quiet. Long-polling pages never reach zero.
const maxIdleInflight = 2

// idleTracker counts in-flight network requests from CDP events.
type idleTracker struct {
	mu         sync.Mutex
	inflight   map[network.RequestID]struct{}
	quietSince time.Time
	now        func() time.Time
}

func newIdleTracker(now func() time.Time) *idleTracker {
	if now == nil {
		now = time.Now
	}
	return &idleTracker{
		inflight:   make(map[network.RequestID]struct{}),
		quietSince: now(),
		now:        now,
	}
}

// handle consumes one CDP event. Unrelated events are ignored.
func (t *idleTracker) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.started(e.RequestID)
	case *network.EventLoadingFinished:
		t.finished(e.RequestID)
	case *network.EventLoadingFailed:
		t.finished(e.RequestID)
	}
}

func (t *idleTracker) started(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.inflight[id] = struct{}{}
	if len(t.inflight) > maxIdleInflight {
		t.quietSince = time.Time{}
	}
}

func (t *idleTracker) finished(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.inflight[id]; !ok {
		return
	}
	delete(t.inflight, id)
	if len(t.inflight) <= maxIdleInflight && t.quietSince.IsZero() {
		t.quietSince = t.now()
	}
}

// idle reports whether the page has stayed quiet for at least window.
func (t *idleTracker) idle(window time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.quietSince.IsZero() {
		return false
	}
	return t.now().Sub(t.quietSince) >= window
}

// wait polls until the tracker is idle for window or ctx is done.
func (t *idleTracker) wait(ctx context.Context, window, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if t.idle(window) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
