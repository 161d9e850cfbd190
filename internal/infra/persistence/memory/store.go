// Package memory provides the in-memory implementation of the entity store.
// Durable backends embed it and snapshot its state after each commit.
package memory

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"territorycore/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	Territory      = domain.Territory
	Address        = domain.Address
	House          = domain.House
	Visit          = domain.Visit
	Token          = domain.Token
	TokenTerritory = domain.TokenTerritory
	PhoneTerritory = domain.PhoneTerritory
	PhoneNumber    = domain.PhoneNumber
	PhoneCall      = domain.PhoneCall
	UserToken      = domain.UserToken
	Recall         = domain.Recall
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	territories      map[string]Territory
	addresses        map[string]Address
	houses           map[string]House
	visits           map[string]Visit
	tokens           map[string]Token
	tokenTerritories map[string]TokenTerritory
	phoneTerritories map[string]PhoneTerritory
	phoneNumbers     map[string]PhoneNumber
	phoneCalls       map[string]PhoneCall
	userTokens       map[string]UserToken
	recalls          map[string]Recall
}

// Snapshot captures a point-in-time clone of the store state. Composite rows
// (token territories, recalls) are keyed by their Key().
type Snapshot struct {
	Territories      map[string]Territory      `json:"territories"`
	Addresses        map[string]Address        `json:"addresses"`
	Houses           map[string]House          `json:"houses"`
	Visits           map[string]Visit          `json:"visits"`
	Tokens           map[string]Token          `json:"tokens"`
	TokenTerritories map[string]TokenTerritory `json:"token_territories"`
	PhoneTerritories map[string]PhoneTerritory `json:"phone_territories"`
	PhoneNumbers     map[string]PhoneNumber    `json:"phone_numbers"`
	PhoneCalls       map[string]PhoneCall      `json:"phone_calls"`
	UserTokens       map[string]UserToken      `json:"user_tokens"`
	Recalls          map[string]Recall         `json:"recalls"`
}

func newMemoryState() memoryState {
	return memoryState{
		territories:      make(map[string]Territory),
		addresses:        make(map[string]Address),
		houses:           make(map[string]House),
		visits:           make(map[string]Visit),
		tokens:           make(map[string]Token),
		tokenTerritories: make(map[string]TokenTerritory),
		phoneTerritories: make(map[string]PhoneTerritory),
		phoneNumbers:     make(map[string]PhoneNumber),
		phoneCalls:       make(map[string]PhoneCall),
		userTokens:       make(map[string]UserToken),
		recalls:          make(map[string]Recall),
	}
}

func cloneBucket[T any](in map[string]T, clone func(T) T) map[string]T {
	out := make(map[string]T, len(in))
	for k, v := range in {
		out[k] = clone(v)
	}
	return out
}

func (s memoryState) clone() memoryState {
	return memoryState{
		territories:      cloneBucket(s.territories, cloneTerritory),
		addresses:        cloneBucket(s.addresses, cloneAddress),
		houses:           cloneBucket(s.houses, cloneHouse),
		visits:           cloneBucket(s.visits, cloneVisit),
		tokens:           cloneBucket(s.tokens, cloneToken),
		tokenTerritories: cloneBucket(s.tokenTerritories, cloneTokenTerritory),
		phoneTerritories: cloneBucket(s.phoneTerritories, clonePhoneTerritory),
		phoneNumbers:     cloneBucket(s.phoneNumbers, clonePhoneNumber),
		phoneCalls:       cloneBucket(s.phoneCalls, clonePhoneCall),
		userTokens:       cloneBucket(s.userTokens, cloneUserToken),
		recalls:          cloneBucket(s.recalls, cloneRecall),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	c := state.clone()
	return Snapshot{
		Territories:      c.territories,
		Addresses:        c.addresses,
		Houses:           c.houses,
		Visits:           c.visits,
		Tokens:           c.tokens,
		TokenTerritories: c.tokenTerritories,
		PhoneTerritories: c.phoneTerritories,
		PhoneNumbers:     c.phoneNumbers,
		PhoneCalls:       c.phoneCalls,
		UserTokens:       c.userTokens,
		Recalls:          c.recalls,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{
		territories:      s.Territories,
		addresses:        s.Addresses,
		houses:           s.Houses,
		visits:           s.Visits,
		tokens:           s.Tokens,
		tokenTerritories: s.TokenTerritories,
		phoneTerritories: s.PhoneTerritories,
		phoneNumbers:     s.PhoneNumbers,
		phoneCalls:       s.PhoneCalls,
		userTokens:       s.UserTokens,
		recalls:          s.Recalls,
	}
	return state.clone()
}

// normalizeSnapshot fills missing buckets and re-keys records whose map key
// disagrees with their identity, as older snapshots keyed composite rows by
// insertion order.
func normalizeSnapshot(snapshot Snapshot) Snapshot {
	snapshot.Territories = rekey(snapshot.Territories, func(v Territory) string { return v.ID })
	snapshot.Addresses = rekey(snapshot.Addresses, func(v Address) string { return v.ID })
	snapshot.Houses = rekey(snapshot.Houses, func(v House) string { return v.ID })
	snapshot.Visits = rekey(snapshot.Visits, func(v Visit) string { return v.ID })
	snapshot.Tokens = rekey(snapshot.Tokens, func(v Token) string { return v.ID })
	snapshot.TokenTerritories = rekey(snapshot.TokenTerritories, func(v TokenTerritory) string {
		if v.TokenID == "" || v.TerritoryID == "" {
			return ""
		}
		return v.Key()
	})
	snapshot.PhoneTerritories = rekey(snapshot.PhoneTerritories, func(v PhoneTerritory) string { return v.ID })
	snapshot.PhoneNumbers = rekey(snapshot.PhoneNumbers, func(v PhoneNumber) string { return v.ID })
	snapshot.PhoneCalls = rekey(snapshot.PhoneCalls, func(v PhoneCall) string { return v.ID })
	snapshot.UserTokens = rekey(snapshot.UserTokens, func(v UserToken) string { return v.ID })
	snapshot.Recalls = rekey(snapshot.Recalls, func(v Recall) string {
		if v.UserID == "" || v.HouseID == "" {
			return ""
		}
		return v.Key()
	})
	return snapshot
}

// rekey drops records without an identity.
func rekey[T any](in map[string]T, key func(T) string) map[string]T {
	out := make(map[string]T, len(in))
	for _, v := range in {
		k := key(v)
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTerritory(t Territory) Territory {
	cp := t
	cp.ImageRef = clonePtr(t.ImageRef)
	return cp
}

func cloneAddress(a Address) Address {
	cp := a
	cp.Floors = clonePtr(a.Floors)
	return cp
}

func cloneHouse(h House) House {
	cp := h
	cp.Floor = clonePtr(h.Floor)
	return cp
}

func cloneVisit(v Visit) Visit { return v }

func cloneToken(t Token) Token {
	cp := t
	cp.User = clonePtr(t.User)
	return cp
}

func cloneTokenTerritory(tt TokenTerritory) TokenTerritory { return tt }

func clonePhoneTerritory(p PhoneTerritory) PhoneTerritory {
	cp := p
	cp.ImageRef = clonePtr(p.ImageRef)
	return cp
}

func clonePhoneNumber(p PhoneNumber) PhoneNumber {
	cp := p
	cp.House = clonePtr(p.House)
	return cp
}

func clonePhoneCall(c PhoneCall) PhoneCall { return c }
func cloneUserToken(u UserToken) UserToken { return u }
func cloneRecall(r Recall) Recall          { return r }

func sameRecord(a, b any) bool { return reflect.DeepEqual(a, b) }

// listSorted returns cloned records ordered by map key.
func listSorted[T any](bucket map[string]T, clone func(T) T) []T {
	keys := make([]string, 0, len(bucket))
	for k := range bucket {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, clone(bucket[k]))
	}
	return out
}

func find[T any](bucket map[string]T, id string, clone func(T) T) (T, bool) {
	v, ok := bucket[id]
	if !ok {
		var zero T
		return zero, false
	}
	return clone(v), true
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	seq    uint64
	feed   feed
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// SetNowFunc overrides the clock used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot and
// notifies every watcher that all collections changed.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(normalizeSnapshot(snapshot))
	s.seq++
	s.feed.notify(domain.Notification{Seq: s.seq, Kinds: append([]domain.EntityType(nil), domain.AllEntityTypes...)})
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// Seq returns the number of commits applied so far.
func (s *Store) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Watch registers for commit notifications touching any of kinds (all kinds
// when empty). The returned cancel function closes the channel.
func (s *Store) Watch(kinds ...domain.EntityType) (<-chan domain.Notification, func()) {
	return s.feed.watch(kinds)
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Committed transactions that changed anything bump the sequence and notify watchers.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	if kinds := tx.touchedKinds(); len(kinds) > 0 {
		s.seq++
		s.feed.notify(domain.Notification{Seq: s.seq, Kinds: kinds})
	}
	return result, nil
}

// View executes fn against a read-only snapshot of the store state. Every
// collection in the view comes from the same commit.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	view := newTransactionView(&snapshot)
	return fn(view)
}

// Get returns a cloned record by identity. Composite rows use their Key().
func (s *Store) Get(entity domain.EntityType, id string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRecord(&s.state, entity, id)
}

func getRecord(state *memoryState, entity domain.EntityType, id string) (any, bool) {
	switch entity {
	case domain.EntityTerritory:
		return wrapFound(find(state.territories, id, cloneTerritory))
	case domain.EntityAddress:
		return wrapFound(find(state.addresses, id, cloneAddress))
	case domain.EntityHouse:
		return wrapFound(find(state.houses, id, cloneHouse))
	case domain.EntityVisit:
		return wrapFound(find(state.visits, id, cloneVisit))
	case domain.EntityToken:
		return wrapFound(find(state.tokens, id, cloneToken))
	case domain.EntityTokenTerritory:
		return wrapFound(find(state.tokenTerritories, id, cloneTokenTerritory))
	case domain.EntityPhoneTerritory:
		return wrapFound(find(state.phoneTerritories, id, clonePhoneTerritory))
	case domain.EntityPhoneNumber:
		return wrapFound(find(state.phoneNumbers, id, clonePhoneNumber))
	case domain.EntityPhoneCall:
		return wrapFound(find(state.phoneCalls, id, clonePhoneCall))
	case domain.EntityUserToken:
		return wrapFound(find(state.userTokens, id, cloneUserToken))
	case domain.EntityRecall:
		return wrapFound(find(state.recalls, id, cloneRecall))
	default:
		return nil, false
	}
}

func wrapFound[T any](v T, ok bool) (any, bool) {
	if !ok {
		return nil, false
	}
	return v, true
}

// GetTerritory returns a territory by id.
func (s *Store) GetTerritory(id string) (Territory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return find(s.state.territories, id, cloneTerritory)
}

// GetAddress returns an address by id.
func (s *Store) GetAddress(id string) (Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return find(s.state.addresses, id, cloneAddress)
}

// GetHouse returns a house by id.
func (s *Store) GetHouse(id string) (House, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return find(s.state.houses, id, cloneHouse)
}

// GetVisit returns a visit by id.
func (s *Store) GetVisit(id string) (Visit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return find(s.state.visits, id, cloneVisit)
}

// GetToken returns a token by id.
func (s *Store) GetToken(id string) (Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return find(s.state.tokens, id, cloneToken)
}

// GetPhoneTerritory returns a phone territory by id.
func (s *Store) GetPhoneTerritory(id string) (PhoneTerritory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return find(s.state.phoneTerritories, id, clonePhoneTerritory)
}

// GetPhoneNumber returns a phone number by id.
func (s *Store) GetPhoneNumber(id string) (PhoneNumber, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return find(s.state.phoneNumbers, id, clonePhoneNumber)
}

// GetPhoneCall returns a phone call by id.
func (s *Store) GetPhoneCall(id string) (PhoneCall, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return find(s.state.phoneCalls, id, clonePhoneCall)
}
