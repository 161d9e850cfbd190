package engine

import (
	"slices"
	"sync"
)

// Topic holds the latest value of one derived view and fans it out to
// subscribers. Published values are immutable; subscribers must not modify
// them. version increases with every publish so a subscriber never replaces
// a newer value with an older one; onEmpty runs after the last subscriber
// leaves. After shutdown every subscriber channel is closed.
type Topic[T any] struct {
	mu      sync.Mutex
	subs    []*Subscription[T]
	latest  T
	has     bool
	version uint64
	done    bool
	onEmpty func()
}

// Subscription receives values published to a Topic. The channel holds at
// most one value; a newer value replaces one the subscriber has not read.
type Subscription[T any] struct {
	topic   *Topic[T]
	mu      sync.Mutex
	ch      chan T
	version uint64
	closed  bool
	once    sync.Once
}

// NewTopic returns an empty topic.
func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{}
}

// Subscribe registers a subscriber. When the topic already holds a value the
// subscriber receives it immediately. On a shut down topic the channel holds
// the last value, if any, and is already closed.
func (t *Topic[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{topic: t, ch: make(chan T, 1)}
	t.mu.Lock()
	done := t.done
	if !done {
		next := slices.Clone(t.subs)
		t.subs = append(next, s)
	}
	latest, has, version := t.latest, t.has, t.version
	t.mu.Unlock()
	if has {
		s.deliver(latest, version)
	}
	if done {
		s.terminate()
	}
	return s
}

// Latest returns the last published value.
func (t *Topic[T]) Latest() (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest, t.has
}

// Len reports the number of live subscribers.
func (t *Topic[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

func (t *Topic[T]) publish(v T) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.version++
	t.latest, t.has = v, true
	subs, version := t.subs, t.version
	t.mu.Unlock()
	for _, s := range subs {
		s.deliver(v, version)
	}
}

// shutdown closes every subscriber channel. A value still buffered stays
// readable. onEmpty does not run.
func (t *Topic[T]) shutdown() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()
	for _, s := range subs {
		s.terminate()
	}
}

func (t *Topic[T]) remove(s *Subscription[T]) {
	t.mu.Lock()
	i := slices.Index(t.subs, s)
	if i < 0 {
		t.mu.Unlock()
		return
	}
	next := slices.Clone(t.subs)
	t.subs = slices.Delete(next, i, i+1)
	empty := len(t.subs) == 0
	onEmpty := t.onEmpty
	t.mu.Unlock()
	if empty && onEmpty != nil {
		onEmpty()
	}
}

// C returns the delivery channel. It is closed by Close or when the engine
// owning the topic stops.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Close unsubscribes and closes the channel. Values published afterwards are
// dropped. Close is idempotent.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.topic.remove(s)
	})
}

func (s *Subscription[T]) terminate() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

func (s *Subscription[T]) deliver(v T, version uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || version <= s.version {
		return
	}
	s.version = version
	select {
	case <-s.ch:
	default:
	}
	s.ch <- v
}
