// Package engine keeps the derived views of territorycore current. It watches
// the store change feed, freezes one snapshot per pass, recomputes the
// pipelines whose inputs changed and publishes the results on topics.
package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"territorycore/internal/access"
	"territorycore/internal/aggregate"
	"territorycore/pkg/domain"

	"go.uber.org/zap"
)

// Store is the part of the entity store the engine reads. The engine never
// writes to it.
type Store interface {
	aggregate.Reader
	domain.ChangeFeed
}

// Recorder observes pass timings. core.MetricsRecorder satisfies it.
type Recorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Config tunes an Engine. Zero values select defaults. RefreshInterval forces
// a full pass periodically so time-based views such as recent activity and key
// expiry age without a store write; zero disables it.
type Config struct {
	Session         access.Session
	RecentWindow    time.Duration
	RefreshInterval time.Duration
	ImageURL        func(ref string) string
	Now             func() time.Time
	Logger          *zap.Logger
	Recorder        Recorder
}

var (
	territoryKinds = []domain.EntityType{domain.EntityTerritory, domain.EntityAddress, domain.EntityHouse, domain.EntityToken, domain.EntityTokenTerritory}
	keyKinds       = []domain.EntityType{domain.EntityTerritory, domain.EntityToken, domain.EntityTokenTerritory, domain.EntityUserToken}
	visitKinds     = []domain.EntityType{domain.EntityTerritory, domain.EntityAddress, domain.EntityHouse, domain.EntityVisit, domain.EntityToken, domain.EntityTokenTerritory}
	phoneKinds     = []domain.EntityType{domain.EntityPhoneTerritory, domain.EntityPhoneNumber, domain.EntityPhoneCall, domain.EntityToken, domain.EntityTokenTerritory}
	recallKinds    = []domain.EntityType{domain.EntityTerritory, domain.EntityAddress, domain.EntityHouse, domain.EntityRecall}
)

type pipeline struct {
	name string
	deps []domain.EntityType
	run  func(ctx context.Context, ix *aggregate.Index) error
}

func (p *pipeline) affected(kinds []domain.EntityType) bool {
	return domain.Notification{Kinds: kinds}.Touches(p.deps...)
}

type scopedPipeline struct {
	pipeline
	topic    any
	live     func() int
	shutdown func()
}

// Engine recomputes and publishes derived views.
type Engine struct {
	store    Store
	logger   *zap.Logger
	recorder Recorder
	window   time.Duration
	refresh  time.Duration
	imageURL func(string) string
	now      func() time.Time

	territories      *Topic[[]aggregate.TerritoryView]
	keyGroups        *Topic[[]aggregate.KeyGroup]
	keys             *Topic[[]aggregate.KeyView]
	recent           *Topic[[]aggregate.RecentTerritory]
	recentPhone      *Topic[[]aggregate.RecentPhoneTerritory]
	phoneTerritories *Topic[[]aggregate.PhoneTerritoryView]
	recalls          *Topic[[]aggregate.RecallView]
	passes           *Topic[uint64]

	global []*pipeline

	mu      sync.Mutex
	session access.Session
	index   *aggregate.Index
	scoped  map[string]*scopedPipeline
	pending map[string]struct{}

	kick chan struct{}
	full chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New constructs an engine over store. Call Start to begin publishing.
func New(store Store, cfg Config) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:            store,
		logger:           cfg.Logger,
		recorder:         cfg.Recorder,
		window:           cfg.RecentWindow,
		refresh:          cfg.RefreshInterval,
		imageURL:         cfg.ImageURL,
		now:              cfg.Now,
		session:          cfg.Session,
		territories:      NewTopic[[]aggregate.TerritoryView](),
		keyGroups:        NewTopic[[]aggregate.KeyGroup](),
		keys:             NewTopic[[]aggregate.KeyView](),
		recent:           NewTopic[[]aggregate.RecentTerritory](),
		recentPhone:      NewTopic[[]aggregate.RecentPhoneTerritory](),
		phoneTerritories: NewTopic[[]aggregate.PhoneTerritoryView](),
		recalls:          NewTopic[[]aggregate.RecallView](),
		passes:           NewTopic[uint64](),
		scoped:           make(map[string]*scopedPipeline),
		pending:          make(map[string]struct{}),
		kick:             make(chan struct{}, 1),
		full:             make(chan struct{}, 1),
		ctx:              ctx,
		cancel:           cancel,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.window <= 0 {
		e.window = aggregate.DefaultRecentWindow
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.session == nil {
		e.session = access.Anonymous
	}
	e.global = []*pipeline{
		{name: "territories", deps: territoryKinds, run: func(_ context.Context, ix *aggregate.Index) error {
			tree := aggregate.TerritoryTree(ix)
			e.territories.publish(tree)
			e.keyGroups.publish(aggregate.GroupByKeys(ix, tree))
			return nil
		}},
		{name: "keys", deps: keyKinds, run: func(_ context.Context, ix *aggregate.Index) error {
			e.keys.publish(aggregate.Keys(ix))
			return nil
		}},
		{name: "recent", deps: visitKinds, run: func(_ context.Context, ix *aggregate.Index) error {
			e.recent.publish(aggregate.Recent(ix, e.window))
			return nil
		}},
		{name: "recent_phone", deps: phoneKinds, run: func(_ context.Context, ix *aggregate.Index) error {
			e.recentPhone.publish(aggregate.RecentPhone(ix, e.window))
			return nil
		}},
		{name: "phone_territories", deps: phoneKinds, run: func(_ context.Context, ix *aggregate.Index) error {
			e.phoneTerritories.publish(aggregate.PhoneTree(ix))
			return nil
		}},
		{name: "recalls", deps: recallKinds, run: func(_ context.Context, ix *aggregate.Index) error {
			e.recalls.publish(aggregate.Recalls(ix))
			return nil
		}},
	}
	return e
}

// Start subscribes to the store feed and runs the first full pass in the
// background. Start is a no-op on a started or stopped engine.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.ctx.Err() != nil {
		return
	}
	e.started = true
	feed, cancel := e.store.Watch()
	e.wg.Add(1)
	go e.loop(feed, cancel)
}

// Stop signals the loop to halt and waits for it to finish. Once the loop has
// exited every subscription channel is closed, so consumers ranging over C
// return.
func (e *Engine) Stop(ctx context.Context) error {
	e.cancel()
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if !started {
		e.closeTopics()
		return nil
	}
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh schedules a full pass.
func (e *Engine) Refresh() {
	select {
	case e.full <- struct{}{}:
	default:
	}
}

// SetSession switches the identity views are computed for and schedules a
// full pass.
func (e *Engine) SetSession(s access.Session) {
	if s == nil {
		s = access.Anonymous
	}
	e.mu.Lock()
	e.session = s
	e.mu.Unlock()
	e.Refresh()
}

func (e *Engine) currentSession() access.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

func (e *Engine) loop(feed <-chan domain.Notification, unwatch func()) {
	defer e.wg.Done()
	defer e.closeTopics()
	defer unwatch()
	var tick <-chan time.Time
	if e.refresh > 0 {
		t := time.NewTicker(e.refresh)
		defer t.Stop()
		tick = t.C
	}
	e.pass(nil, true)
	for {
		select {
		case <-e.ctx.Done():
			return
		case n, ok := <-feed:
			if !ok {
				return
			}
			e.pass(n.Kinds, false)
		case <-e.full:
			e.pass(nil, true)
		case <-tick:
			e.pass(nil, true)
		case <-e.kick:
			e.runPending()
		}
	}
}

// pass freezes one snapshot and recomputes the pipelines that read any of
// kinds, plus scoped pipelines that have not produced a value yet. On a
// failed read the previously published views stay in place.
func (e *Engine) pass(kinds []domain.EntityType, full bool) {
	start := time.Now()
	snap, err := aggregate.Freeze(e.ctx, e.store, e.now())
	if err != nil {
		if e.ctx.Err() == nil {
			e.logger.Warn("freeze snapshot failed, keeping last views", zap.Error(err))
		}
		e.observe("engine.pass", false, start)
		return
	}

	ix := aggregate.NewIndex(snap, e.currentSession(), e.indexOptions()...)
	e.mu.Lock()
	e.index = ix
	var run []*pipeline
	for _, p := range e.global {
		if full || p.affected(kinds) {
			run = append(run, p)
		}
	}
	for key, sp := range e.scoped {
		_, pending := e.pending[key]
		if full || pending || sp.affected(kinds) {
			run = append(run, &sp.pipeline)
		}
	}
	clear(e.pending)
	e.mu.Unlock()

	ok := e.run(ix, run)
	e.logger.Debug("recomputed views",
		zap.Uint64("seq", snap.Seq),
		zap.Bool("full", full),
		zap.Int("pipelines", len(run)),
	)
	e.observe("engine.pass", ok, start)
	e.passes.publish(snap.Seq)
}

func (e *Engine) closeTopics() {
	e.territories.shutdown()
	e.keyGroups.shutdown()
	e.keys.shutdown()
	e.recent.shutdown()
	e.recentPhone.shutdown()
	e.phoneTerritories.shutdown()
	e.recalls.shutdown()
	e.passes.shutdown()
	e.mu.Lock()
	scoped := make([]*scopedPipeline, 0, len(e.scoped))
	for _, sp := range e.scoped {
		scoped = append(scoped, sp)
	}
	e.mu.Unlock()
	for _, sp := range scoped {
		sp.shutdown()
	}
}

// runPending computes newly registered scoped pipelines from the last index.
func (e *Engine) runPending() {
	e.mu.Lock()
	ix := e.index
	if ix == nil {
		e.mu.Unlock()
		return
	}
	var run []*pipeline
	for key := range e.pending {
		if sp, ok := e.scoped[key]; ok {
			run = append(run, &sp.pipeline)
		}
	}
	clear(e.pending)
	e.mu.Unlock()
	e.run(ix, run)
}

func (e *Engine) run(ix *aggregate.Index, pipelines []*pipeline) bool {
	ok := true
	for _, p := range pipelines {
		if err := p.run(e.ctx, ix); err != nil {
			ok = false
			if !errors.Is(err, context.Canceled) {
				e.logger.Warn("pipeline failed", zap.String("pipeline", p.name), zap.Error(err))
			}
		}
	}
	return ok
}

func (e *Engine) indexOptions() []aggregate.Option {
	if e.imageURL == nil {
		return nil
	}
	return []aggregate.Option{aggregate.WithImageURL(e.imageURL)}
}

func (e *Engine) observe(op string, success bool, start time.Time) {
	if e.recorder == nil {
		return
	}
	e.recorder.Observe(e.ctx, op, success, time.Since(start))
}

// Territories publishes the territory tree.
func (e *Engine) Territories() *Topic[[]aggregate.TerritoryView] { return e.territories }

// KeyGroups publishes territories grouped by their key sets.
func (e *Engine) KeyGroups() *Topic[[]aggregate.KeyGroup] { return e.keyGroups }

// Keys publishes every key with its territories and users.
func (e *Engine) Keys() *Topic[[]aggregate.KeyView] { return e.keys }

// Recent publishes territories with visits inside the recent window.
func (e *Engine) Recent() *Topic[[]aggregate.RecentTerritory] { return e.recent }

// RecentPhone publishes phone territories with calls inside the recent window.
func (e *Engine) RecentPhone() *Topic[[]aggregate.RecentPhoneTerritory] { return e.recentPhone }

// PhoneTerritories publishes the phone campaign tree.
func (e *Engine) PhoneTerritories() *Topic[[]aggregate.PhoneTerritoryView] {
	return e.phoneTerritories
}

// Recalls publishes the session user's recalls.
func (e *Engine) Recalls() *Topic[[]aggregate.RecallView] { return e.recalls }

// Passes publishes the store sequence number each completed pass read.
func (e *Engine) Passes() *Topic[uint64] { return e.passes }

// Addresses subscribes to the addresses of a territory.
func (e *Engine) Addresses(territoryID string) *Subscription[[]aggregate.AddressView] {
	deps := []domain.EntityType{domain.EntityTerritory, domain.EntityAddress, domain.EntityHouse, domain.EntityToken, domain.EntityTokenTerritory}
	return subscribeScoped(e, "addresses/"+territoryID, deps, func(_ context.Context, ix *aggregate.Index) ([]aggregate.AddressView, error) {
		return aggregate.AddressesOf(ix, territoryID), nil
	})
}

// Houses subscribes to the houses of an address.
func (e *Engine) Houses(addressID string) *Subscription[[]aggregate.HouseView] {
	return subscribeScoped(e, "houses/"+addressID, visitKinds, func(_ context.Context, ix *aggregate.Index) ([]aggregate.HouseView, error) {
		return aggregate.HousesOf(ix, addressID), nil
	})
}

// Visits subscribes to the visits of a house.
func (e *Engine) Visits(houseID string) *Subscription[[]aggregate.VisitView] {
	return subscribeScoped(e, "visits/"+houseID, visitKinds, func(_ context.Context, ix *aggregate.Index) ([]aggregate.VisitView, error) {
		return aggregate.VisitsOf(ix, houseID), nil
	})
}

// PhoneNumbers subscribes to the numbers of a phone territory.
func (e *Engine) PhoneNumbers(territoryID string) *Subscription[[]aggregate.PhoneNumberView] {
	return subscribeScoped(e, "phone_numbers/"+territoryID, phoneKinds, func(_ context.Context, ix *aggregate.Index) ([]aggregate.PhoneNumberView, error) {
		return aggregate.PhoneNumbersOf(ix, territoryID), nil
	})
}

// PhoneCalls subscribes to the calls of a phone number.
func (e *Engine) PhoneCalls(numberID string) *Subscription[[]aggregate.PhoneCallView] {
	return subscribeScoped(e, "phone_calls/"+numberID, phoneKinds, func(_ context.Context, ix *aggregate.Index) ([]aggregate.PhoneCallView, error) {
		return aggregate.PhoneCallsOf(ix, numberID), nil
	})
}

// WatchSearch subscribes to the results of a query. Queries that fold to the
// same text share one pipeline.
func (e *Engine) WatchSearch(query string, mode aggregate.Mode) *Subscription[[]aggregate.SearchResult] {
	deps := visitKinds
	if mode == aggregate.ModePhoneTerritories {
		deps = phoneKinds
	}
	key := "search/" + mode.String() + "/" + aggregate.Fold(strings.TrimSpace(query))
	return subscribeScoped(e, key, deps, func(ctx context.Context, ix *aggregate.Index) ([]aggregate.SearchResult, error) {
		return aggregate.Search(ctx, ix, query, mode)
	})
}

// Search runs a query once against a fresh snapshot.
func (e *Engine) Search(ctx context.Context, query string, mode aggregate.Mode) ([]aggregate.SearchResult, error) {
	start := time.Now()
	snap, err := aggregate.Freeze(ctx, e.store, e.now())
	if err != nil {
		e.observe("engine.search", false, start)
		return nil, err
	}
	out, err := aggregate.Search(ctx, aggregate.NewIndex(snap, e.currentSession(), e.indexOptions()...), query, mode)
	e.observe("engine.search", err == nil, start)
	return out, err
}

// subscribeScoped registers the pipeline under key on first use and removes
// it when its last subscriber leaves.
func subscribeScoped[T any](e *Engine, key string, deps []domain.EntityType, compute func(context.Context, *aggregate.Index) (T, error)) *Subscription[T] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sp, ok := e.scoped[key]; ok {
		if topic, ok := sp.topic.(*Topic[T]); ok {
			return topic.Subscribe()
		}
	}
	topic := NewTopic[T]()
	sp := &scopedPipeline{
		pipeline: pipeline{name: key, deps: deps, run: func(ctx context.Context, ix *aggregate.Index) error {
			v, err := compute(ctx, ix)
			if err != nil {
				return err
			}
			topic.publish(v)
			return nil
		}},
		topic:    topic,
		live:     topic.Len,
		shutdown: topic.shutdown,
	}
	if e.ctx.Err() != nil {
		topic.shutdown()
		return topic.Subscribe()
	}
	topic.onEmpty = func() { e.release(key, sp) }
	e.scoped[key] = sp
	e.pending[key] = struct{}{}
	sub := topic.Subscribe()
	select {
	case e.kick <- struct{}{}:
	default:
	}
	return sub
}

func (e *Engine) release(key string, sp *scopedPipeline) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.scoped[key] != sp || sp.live() > 0 {
		return
	}
	delete(e.scoped, key)
	delete(e.pending, key)
}

// ScopedCount reports how many scoped pipelines are registered.
func (e *Engine) ScopedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.scoped)
}
