package memory

import (
	"slices"
	"sync"

	"territorycore/pkg/domain"
)

// feed fans commit notifications out to watchers. The watcher list is copied
// on every registration so notify never holds the list lock while sending.
type feed struct {
	mu       sync.Mutex
	watchers []*watcher
}

type watcher struct {
	mu     sync.Mutex
	kinds  []domain.EntityType
	ch     chan domain.Notification
	closed bool
}

func (f *feed) watch(kinds []domain.EntityType) (<-chan domain.Notification, func()) {
	w := &watcher{
		kinds: slices.Clone(kinds),
		ch:    make(chan domain.Notification, 1),
	}
	f.mu.Lock()
	next := slices.Clone(f.watchers)
	f.watchers = append(next, w)
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.remove(w)
			w.mu.Lock()
			w.closed = true
			close(w.ch)
			w.mu.Unlock()
		})
	}
	return w.ch, cancel
}

func (f *feed) remove(w *watcher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := slices.Index(f.watchers, w)
	if i < 0 {
		return
	}
	next := slices.Clone(f.watchers)
	f.watchers = slices.Delete(next, i, i+1)
}

func (f *feed) snapshot() []*watcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watchers
}

func (f *feed) notify(n domain.Notification) {
	for _, w := range f.snapshot() {
		w.deliver(n)
	}
}

// deliver never blocks. A pending notification the watcher has not consumed
// yet is merged with n so the watcher sees one coalesced update.
func (w *watcher) deliver(n domain.Notification) {
	if len(w.kinds) > 0 && !n.Touches(w.kinds...) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case pending := <-w.ch:
		n = pending.Merge(n)
	default:
	}
	w.ch <- n
}
