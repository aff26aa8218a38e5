// Package recentcache holds the bounded, most-recent-M window of events
// used to enrich an ErrorReport with an EventSnapshot (§4.10, §3). It wraps
// hashicorp/golang-lru/v2's Cache, the same library the teacher pulls in
// for bounded in-memory state, keyed by an insertion sequence number, so a
// snapshot is "everything seen recently" in arrival order; events are not
// looked up by correlation id.
package recentcache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rydnr/bytehot-go/internal/domain"
)

// DefaultWindow is the default M from §4.10 ("the most recent M events,
// default M=256").
const DefaultWindow = 256

// Window is a bounded, insertion-ordered ring of the most recent events,
// used to populate EventSnapshot.Events on demand.
type Window struct {
	mu    sync.Mutex
	cache *lru.Cache[int64, domain.AggregateEvent]
	seq   int64
}

// NewWindow builds a Window holding at most size events. size<=0 uses
// DefaultWindow.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindow
	}
	cache, _ := lru.New[int64, domain.AggregateEvent](size)
	return &Window{cache: cache}
}

// Record appends event to the window, evicting the oldest entry if the
// window is full.
func (w *Window) Record(event domain.AggregateEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	w.cache.Add(w.seq, event)
}

// Snapshot returns the window's current contents, oldest first.
func (w *Window) Snapshot() []domain.AggregateEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	keys := w.cache.Keys()
	out := make([]domain.AggregateEvent, 0, len(keys))
	for _, k := range keys {
		if v, ok := w.cache.Peek(k); ok {
			out = append(out, v)
		}
	}
	return out
}

// Len reports the number of events currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cache.Len()
}
