package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeKVStore struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	sets   chan string
	err    error
}

func newFakeKVStore() *fakeKVStore {
	return &fakeKVStore{
		values: map[string]string{},
		ttls:   map[string]time.Duration{},
		sets:   make(chan string, 64),
	}
}

func (f *fakeKVStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (f *fakeKVStore) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	f.mu.Lock()
	if f.err != nil {
		err := f.err
		f.mu.Unlock()
		return err
	}
	f.values[key] = value
	f.ttls[key] = ttl
	f.mu.Unlock()
	select {
	case f.sets <- key:
	default:
	}
	return nil
}

func (f *fakeKVStore) fail(msg string) {
	f.mu.Lock()
	f.err = errors.New(msg)
	f.mu.Unlock()
}
