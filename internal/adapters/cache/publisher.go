// Package cache mirrors the engine's published views into an external
// key/value store so other processes can read them without a store of their
// own.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"territorycore/internal/engine"

	"go.uber.org/zap"
)

// View names used in cache keys.
const (
	ViewTerritories      = "territories"
	ViewKeyGroups        = "key-groups"
	ViewKeys             = "keys"
	ViewRecent           = "recent"
	ViewRecentPhone      = "recent-phone"
	ViewPhoneTerritories = "phone-territories"
	ViewRecalls          = "recalls"
)

// Options configures key naming and expiry.
type Options struct {
	Prefix string
	TTL    time.Duration
}

// Envelope wraps a cached view with the time it was written.
type Envelope struct {
	View      string          `json:"view"`
	UpdatedAt time.Time       `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

// Publisher follows engine topics and writes each new value as JSON.
type Publisher struct {
	kv     KVStore
	opts   Options
	logger *zap.Logger
	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewPublisher constructs a publisher. A zero TTL keeps entries forever.
func NewPublisher(kv KVStore, opts Options, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Prefix == "" {
		opts.Prefix = "territorycore"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		kv:     kv,
		opts:   opts,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		ctx:    ctx,
		cancel: cancel,
	}
}

// Key returns the cache key of a view.
func (p *Publisher) Key(view string) string {
	return fmt.Sprintf("%s:view:%s", p.opts.Prefix, view)
}

// Start subscribes to every global engine topic. Calling it again is a no-op.
func (p *Publisher) Start(e *engine.Engine) {
	p.once.Do(func() {
		follow(p, ViewTerritories, e.Territories().Subscribe())
		follow(p, ViewKeyGroups, e.KeyGroups().Subscribe())
		follow(p, ViewKeys, e.Keys().Subscribe())
		follow(p, ViewRecent, e.Recent().Subscribe())
		follow(p, ViewRecentPhone, e.RecentPhone().Subscribe())
		follow(p, ViewPhoneTerritories, e.PhoneTerritories().Subscribe())
		follow(p, ViewRecalls, e.Recalls().Subscribe())
	})
}

func follow[T any](p *Publisher, view string, sub *engine.Subscription[T]) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer sub.Close()
		for {
			select {
			case <-p.ctx.Done():
				return
			case v, ok := <-sub.C():
				if !ok {
					return
				}
				if err := p.Write(p.ctx, view, v); err != nil && !errors.Is(err, context.Canceled) {
					p.logger.Warn("cache write failed", zap.String("view", view), zap.Error(err))
				}
			}
		}
	}()
}

// Stop ends every follower and waits for in-flight writes.
func (p *Publisher) Stop(ctx context.Context) error {
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Write stores v under the view key wrapped in an Envelope.
func (p *Publisher) Write(ctx context.Context, view string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", view, err)
	}
	payload, err := json.Marshal(Envelope{View: view, UpdatedAt: p.now(), Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", view, err)
	}
	key := p.Key(view)
	if err := p.kv.Set(ctx, key, string(payload), p.opts.TTL); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	p.logger.Debug("cached view", zap.String("view", view), zap.String("key", key), zap.Int("bytes", len(payload)))
	return nil
}

// Read loads a cached view into out and returns its envelope. Missing keys
// fail with ErrCacheMiss.
func (p *Publisher) Read(ctx context.Context, view string, out any) (Envelope, error) {
	raw, err := p.kv.Get(ctx, p.Key(view))
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Envelope{}, fmt.Errorf("decode %s: %w", view, err)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return Envelope{}, fmt.Errorf("decode %s data: %w", view, err)
		}
	}
	return env, nil
}
