package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"territorycore/internal/access"
	"territorycore/internal/blob"
	"territorycore/pkg/domain"

	"github.com/google/uuid"
)

// ErrNoBlobStore is returned by image operations on a service built without
// WithBlobStore.
var ErrNoBlobStore = errors.New("blob store not configured")

// Service exposes transactional CRUD operations over the entity store.
// Every operation is logged, timed, traced and audited.
type Service struct {
	store     PersistentStore
	engine    *RulesEngine
	clock     Clock
	now       func() time.Time
	logger    Logger
	metrics   MetricsRecorder
	tracer    Tracer
	audit     AuditRecorder
	session   access.Session
	blobs     blob.Store
	urlExpiry time.Duration
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.clock != nil {
		if setter, ok := store.(nowFuncSetter); ok {
			setter.SetNowFunc(cfg.clock.Now)
		}
	}
	return &Service{
		store:     store,
		engine:    extractRulesEngine(store),
		clock:     cfg.clock,
		now:       selectNowFunc(store, cfg.clock),
		logger:    cfg.logger,
		metrics:   cfg.metrics,
		tracer:    cfg.tracer,
		audit:     cfg.audit,
		session:   cfg.session,
		blobs:     cfg.blobs,
		urlExpiry: cfg.urlExpiry,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(NewMemoryStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// RulesEngine returns the store's rules engine, nil when the store does not
// expose one.
func (s *Service) RulesEngine() *RulesEngine { return s.engine }

// Blobs returns the configured blob store, nil when images are disabled.
func (s *Service) Blobs() blob.Store { return s.blobs }

func (s *Service) run(ctx context.Context, op string, fn func(Transaction) (string, error)) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	var id string
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		id, err = fn(tx)
		return err
	})
	duration := time.Since(start)
	s.metrics.Observe(ctx, op, err == nil, duration)
	span.End(err)
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "id", id, "error", err, "duration", duration)
		s.recordAudit(ctx, op, id, duration, err)
		return res, err
	}
	for _, v := range res.Violations {
		s.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "severity", string(v.Severity), "entity", string(v.Entity), "id", v.EntityID, "message", v.Message)
	}
	s.logger.Debug("operation completed", "operation", op, "id", id, "duration", duration)
	s.recordAuditSuccess(ctx, op, id, duration)
	return res, nil
}

func (s *Service) recordAuditSuccess(ctx context.Context, op, id string, duration time.Duration) {
	s.recordAudit(ctx, op, id, duration, nil)
}

func (s *Service) recordAudit(ctx context.Context, op, id string, duration time.Duration, err error) {
	entity, action, ok := auditTarget(op)
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    entity,
		Action:    action,
		EntityID:  id,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// auditTarget splits operation names of the form "<action>_<entity>".
func auditTarget(op string) (EntityType, Action, bool) {
	verb, rest, ok := strings.Cut(op, "_")
	if !ok {
		return "", "", false
	}
	action := Action(verb)
	switch action {
	case ActionCreate, ActionUpdate, ActionDelete:
	default:
		return "", "", false
	}
	for _, kind := range domain.AllEntityTypes {
		if string(kind) == rest {
			return kind, action, true
		}
	}
	return "", "", false
}

func recordID(v any) string {
	switch r := v.(type) {
	case interface{ Record() *domain.Base }:
		return r.Record().ID
	case interface{ Key() string }:
		return r.Key()
	}
	return ""
}

func mutate[T any](ctx context.Context, s *Service, op string, fn func(Transaction) (T, error)) (T, Result, error) {
	var out T
	res, err := s.run(ctx, op, func(tx Transaction) (string, error) {
		var err error
		out, err = fn(tx)
		if err != nil {
			return "", err
		}
		return recordID(&out), nil
	})
	if err != nil {
		var zero T
		return zero, res, err
	}
	return out, res, nil
}

func remove(ctx context.Context, s *Service, op, id string, fn func(Transaction) error) (Result, error) {
	return s.run(ctx, op, func(tx Transaction) (string, error) {
		return id, fn(tx)
	})
}

func requireParent[T any](find func(string) (T, bool), entity EntityType, id string) error {
	if _, ok := find(id); !ok {
		return domain.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}

// CreateTerritory persists a new territory.
func (s *Service) CreateTerritory(ctx context.Context, t Territory) (Territory, Result, error) {
	return mutate(ctx, s, "create_territory", func(tx Transaction) (Territory, error) {
		return tx.CreateTerritory(t)
	})
}

// UpdateTerritory mutates a territory. A mutator that changes nothing fails
// with domain.ErrNothingToSave.
func (s *Service) UpdateTerritory(ctx context.Context, id string, mutator func(*Territory) error) (Territory, Result, error) {
	return mutate(ctx, s, "update_territory", func(tx Transaction) (Territory, error) {
		return tx.UpdateTerritory(id, mutator)
	})
}

// DeleteTerritory removes a territory record.
func (s *Service) DeleteTerritory(ctx context.Context, id string) (Result, error) {
	return remove(ctx, s, "delete_territory", id, func(tx Transaction) error { return tx.DeleteTerritory(id) })
}

// CreateAddress persists an address under an existing territory.
func (s *Service) CreateAddress(ctx context.Context, a Address) (Address, Result, error) {
	return mutate(ctx, s, "create_address", func(tx Transaction) (Address, error) {
		if err := requireParent(tx.Snapshot().FindTerritory, EntityTerritory, a.TerritoryID); err != nil {
			return Address{}, err
		}
		return tx.CreateAddress(a)
	})
}

// UpdateAddress mutates an address.
func (s *Service) UpdateAddress(ctx context.Context, id string, mutator func(*Address) error) (Address, Result, error) {
	return mutate(ctx, s, "update_address", func(tx Transaction) (Address, error) {
		return tx.UpdateAddress(id, mutator)
	})
}

// DeleteAddress removes an address record.
func (s *Service) DeleteAddress(ctx context.Context, id string) (Result, error) {
	return remove(ctx, s, "delete_address", id, func(tx Transaction) error { return tx.DeleteAddress(id) })
}

// CreateHouse persists a house at an existing address.
func (s *Service) CreateHouse(ctx context.Context, h House) (House, Result, error) {
	return mutate(ctx, s, "create_house", func(tx Transaction) (House, error) {
		if err := requireParent(tx.Snapshot().FindAddress, EntityAddress, h.AddressID); err != nil {
			return House{}, err
		}
		return tx.CreateHouse(h)
	})
}

// UpdateHouse mutates a house.
func (s *Service) UpdateHouse(ctx context.Context, id string, mutator func(*House) error) (House, Result, error) {
	return mutate(ctx, s, "update_house", func(tx Transaction) (House, error) {
		return tx.UpdateHouse(id, mutator)
	})
}

// DeleteHouse removes a house record.
func (s *Service) DeleteHouse(ctx context.Context, id string) (Result, error) {
	return remove(ctx, s, "delete_house", id, func(tx Transaction) error { return tx.DeleteHouse(id) })
}

// LogVisit records a visit at an existing house. Missing author fields are
// stamped from the session and a zero Date becomes now.
func (s *Service) LogVisit(ctx context.Context, v Visit) (Visit, Result, error) {
	v.User, v.UserName = s.author(v.User, v.UserName)
	if v.Date == 0 {
		v.Date = s.now().UnixMilli()
	}
	return mutate(ctx, s, "create_visit", func(tx Transaction) (Visit, error) {
		if err := requireParent(tx.Snapshot().FindHouse, EntityHouse, v.HouseID); err != nil {
			return Visit{}, err
		}
		return tx.CreateVisit(v)
	})
}

// UpdateVisit mutates a visit.
func (s *Service) UpdateVisit(ctx context.Context, id string, mutator func(*Visit) error) (Visit, Result, error) {
	return mutate(ctx, s, "update_visit", func(tx Transaction) (Visit, error) {
		return tx.UpdateVisit(id, mutator)
	})
}

// DeleteVisit removes a visit record.
func (s *Service) DeleteVisit(ctx context.Context, id string) (Result, error) {
	return remove(ctx, s, "delete_visit", id, func(tx Transaction) error { return tx.DeleteVisit(id) })
}

// CreateToken persists a new access key.
func (s *Service) CreateToken(ctx context.Context, t Token) (Token, Result, error) {
	return mutate(ctx, s, "create_token", func(tx Transaction) (Token, error) {
		return tx.CreateToken(t)
	})
}

// UpdateToken mutates an access key.
func (s *Service) UpdateToken(ctx context.Context, id string, mutator func(*Token) error) (Token, Result, error) {
	return mutate(ctx, s, "update_token", func(tx Transaction) (Token, error) {
		return tx.UpdateToken(id, mutator)
	})
}

// DeleteToken removes a key together with its territory links.
func (s *Service) DeleteToken(ctx context.Context, id string) (Result, error) {
	return remove(ctx, s, "delete_token", id, func(tx Transaction) error {
		if err := tx.DeleteToken(id); err != nil {
			return err
		}
		for _, link := range tx.Snapshot().ListTokenTerritories() {
			if link.TokenID != id {
				continue
			}
			if err := tx.DeleteTokenTerritory(link.TokenID, link.TerritoryID); err != nil {
				return err
			}
		}
		return nil
	})
}

// LinkTokenTerritory grants a key access to a territory. Both must exist.
func (s *Service) LinkTokenTerritory(ctx context.Context, tokenID, territoryID string) (TokenTerritory, Result, error) {
	return mutate(ctx, s, "create_token_territory", func(tx Transaction) (TokenTerritory, error) {
		view := tx.Snapshot()
		if err := requireParent(view.FindToken, EntityToken, tokenID); err != nil {
			return TokenTerritory{}, err
		}
		if err := requireParent(view.FindTerritory, EntityTerritory, territoryID); err != nil {
			return TokenTerritory{}, err
		}
		return tx.PutTokenTerritory(TokenTerritory{TokenID: tokenID, TerritoryID: territoryID})
	})
}

// UnlinkTokenTerritory revokes a key's access to a territory.
func (s *Service) UnlinkTokenTerritory(ctx context.Context, tokenID, territoryID string) (Result, error) {
	key := TokenTerritory{TokenID: tokenID, TerritoryID: territoryID}.Key()
	return remove(ctx, s, "delete_token_territory", key, func(tx Transaction) error {
		return tx.DeleteTokenTerritory(tokenID, territoryID)
	})
}

// CreatePhoneTerritory persists a phone campaign territory.
func (s *Service) CreatePhoneTerritory(ctx context.Context, p PhoneTerritory) (PhoneTerritory, Result, error) {
	return mutate(ctx, s, "create_phone_territory", func(tx Transaction) (PhoneTerritory, error) {
		return tx.CreatePhoneTerritory(p)
	})
}

// UpdatePhoneTerritory mutates a phone territory.
func (s *Service) UpdatePhoneTerritory(ctx context.Context, id string, mutator func(*PhoneTerritory) error) (PhoneTerritory, Result, error) {
	return mutate(ctx, s, "update_phone_territory", func(tx Transaction) (PhoneTerritory, error) {
		return tx.UpdatePhoneTerritory(id, mutator)
	})
}

// DeletePhoneTerritory removes a phone territory record.
func (s *Service) DeletePhoneTerritory(ctx context.Context, id string) (Result, error) {
	return remove(ctx, s, "delete_phone_territory", id, func(tx Transaction) error { return tx.DeletePhoneTerritory(id) })
}

// CreatePhoneNumber persists a number inside an existing phone territory.
func (s *Service) CreatePhoneNumber(ctx context.Context, n PhoneNumber) (PhoneNumber, Result, error) {
	return mutate(ctx, s, "create_phone_number", func(tx Transaction) (PhoneNumber, error) {
		if err := requireParent(tx.Snapshot().FindPhoneTerritory, EntityPhoneTerritory, n.TerritoryID); err != nil {
			return PhoneNumber{}, err
		}
		return tx.CreatePhoneNumber(n)
	})
}

// UpdatePhoneNumber mutates a phone number.
func (s *Service) UpdatePhoneNumber(ctx context.Context, id string, mutator func(*PhoneNumber) error) (PhoneNumber, Result, error) {
	return mutate(ctx, s, "update_phone_number", func(tx Transaction) (PhoneNumber, error) {
		return tx.UpdatePhoneNumber(id, mutator)
	})
}

// DeletePhoneNumber removes a phone number record.
func (s *Service) DeletePhoneNumber(ctx context.Context, id string) (Result, error) {
	return remove(ctx, s, "delete_phone_number", id, func(tx Transaction) error { return tx.DeletePhoneNumber(id) })
}

// LogPhoneCall records a call to an existing number, stamped like LogVisit.
func (s *Service) LogPhoneCall(ctx context.Context, c PhoneCall) (PhoneCall, Result, error) {
	c.User, c.UserName = s.author(c.User, c.UserName)
	if c.Date == 0 {
		c.Date = s.now().UnixMilli()
	}
	return mutate(ctx, s, "create_phone_call", func(tx Transaction) (PhoneCall, error) {
		if err := requireParent(tx.Snapshot().FindPhoneNumber, EntityPhoneNumber, c.PhoneNumberID); err != nil {
			return PhoneCall{}, err
		}
		return tx.CreatePhoneCall(c)
	})
}

// UpdatePhoneCall mutates a phone call.
func (s *Service) UpdatePhoneCall(ctx context.Context, id string, mutator func(*PhoneCall) error) (PhoneCall, Result, error) {
	return mutate(ctx, s, "update_phone_call", func(tx Transaction) (PhoneCall, error) {
		return tx.UpdatePhoneCall(id, mutator)
	})
}

// DeletePhoneCall removes a phone call record.
func (s *Service) DeletePhoneCall(ctx context.Context, id string) (Result, error) {
	return remove(ctx, s, "delete_phone_call", id, func(tx Transaction) error { return tx.DeletePhoneCall(id) })
}

// CreateUserToken records a user holding an existing key.
func (s *Service) CreateUserToken(ctx context.Context, u UserToken) (UserToken, Result, error) {
	return mutate(ctx, s, "create_user_token", func(tx Transaction) (UserToken, error) {
		if err := requireParent(tx.Snapshot().FindToken, EntityToken, u.TokenID); err != nil {
			return UserToken{}, err
		}
		return tx.CreateUserToken(u)
	})
}

// BlockUserToken sets the blocked flag of a key holder.
func (s *Service) BlockUserToken(ctx context.Context, id string, blocked bool) (UserToken, Result, error) {
	return mutate(ctx, s, "update_user_token", func(tx Transaction) (UserToken, error) {
		return tx.UpdateUserToken(id, func(u *UserToken) error {
			u.Blocked = blocked
			return nil
		})
	})
}

// DeleteUserToken removes a key holder.
func (s *Service) DeleteUserToken(ctx context.Context, id string) (Result, error) {
	return remove(ctx, s, "delete_user_token", id, func(tx Transaction) error { return tx.DeleteUserToken(id) })
}

// MarkRecall flags a house for follow-up by the session user.
func (s *Service) MarkRecall(ctx context.Context, houseID string) (Recall, Result, error) {
	userID, ok := s.session.CurrentUserID()
	if !ok {
		return Recall{}, Result{}, fmt.Errorf("mark recall: no session user")
	}
	return mutate(ctx, s, "create_recall", func(tx Transaction) (Recall, error) {
		if err := requireParent(tx.Snapshot().FindHouse, EntityHouse, houseID); err != nil {
			return Recall{}, err
		}
		return tx.PutRecall(Recall{UserID: userID, HouseID: houseID, CreatedAt: s.now()})
	})
}

// ClearRecall removes the session user's recall on a house.
func (s *Service) ClearRecall(ctx context.Context, houseID string) (Result, error) {
	userID, ok := s.session.CurrentUserID()
	if !ok {
		return Result{}, fmt.Errorf("clear recall: no session user")
	}
	key := Recall{UserID: userID, HouseID: houseID}.Key()
	return remove(ctx, s, "delete_recall", key, func(tx Transaction) error {
		return tx.DeleteRecall(userID, houseID)
	})
}

func (s *Service) author(user, name string) (string, string) {
	if user == "" {
		user, _ = s.session.CurrentUserID()
	}
	if name == "" {
		name, _ = s.session.CurrentUserDisplayName()
	}
	return user, name
}

// Reconcile applies a sync batch in one transaction. Records are upserted
// parents first, then deletions are applied children first. An empty batch
// fails with domain.ErrNothingToSave.
func (s *Service) Reconcile(ctx context.Context, batch SyncBatch) (Result, error) {
	if batch.Empty() {
		return Result{}, domain.ErrNothingToSave
	}
	records := batchRecords(batch)
	return s.run(ctx, "reconcile", func(tx Transaction) (string, error) {
		for _, kind := range domain.AllEntityTypes {
			for _, rec := range records[kind] {
				if err := tx.Upsert(kind, rec); err != nil {
					return "", err
				}
			}
		}
		for i := len(domain.AllEntityTypes) - 1; i >= 0; i-- {
			kind := domain.AllEntityTypes[i]
			for _, id := range batch.Deleted[kind] {
				if err := tx.Remove(kind, id); err != nil {
					return "", err
				}
			}
		}
		return "", nil
	})
}

func batchRecords(b SyncBatch) map[EntityType][]any {
	return map[EntityType][]any{
		EntityTerritory:      toAny(b.Territories),
		EntityAddress:        toAny(b.Addresses),
		EntityHouse:          toAny(b.Houses),
		EntityVisit:          toAny(b.Visits),
		EntityToken:          toAny(b.Tokens),
		EntityTokenTerritory: toAny(b.TokenTerritories),
		EntityPhoneTerritory: toAny(b.PhoneTerritories),
		EntityPhoneNumber:    toAny(b.PhoneNumbers),
		EntityPhoneCall:      toAny(b.PhoneCalls),
		EntityUserToken:      toAny(b.UserTokens),
		EntityRecall:         toAny(b.Recalls),
	}
}

func toAny[T any](in []T) []any {
	out := make([]any, len(in))
	for i := range in {
		out[i] = in[i]
	}
	return out
}

// AttachTerritoryImage stores an image blob and points the territory at it.
// The previous image, if any, is deleted once the territory is updated.
func (s *Service) AttachTerritoryImage(ctx context.Context, territoryID string, r io.Reader, contentType string) (Territory, Result, error) {
	if s.blobs == nil {
		return Territory{}, Result{}, ErrNoBlobStore
	}
	if _, ok := s.store.Get(EntityTerritory, territoryID); !ok {
		return Territory{}, Result{}, domain.NotFoundError{Entity: EntityTerritory, ID: territoryID}
	}
	key := path.Join("territories", territoryID, uuid.NewString())
	info, err := s.blobs.Put(ctx, key, r, blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"territory_id": territoryID},
	})
	if err != nil {
		return Territory{}, Result{}, fmt.Errorf("store territory image: %w", err)
	}
	var previous string
	updated, res, err := s.UpdateTerritory(ctx, territoryID, func(t *Territory) error {
		if t.ImageRef != nil {
			previous = *t.ImageRef
		}
		ref := info.Key
		t.ImageRef = &ref
		return nil
	})
	if err != nil {
		if _, delErr := s.blobs.Delete(ctx, info.Key); delErr != nil {
			s.logger.Warn("orphaned territory image", "key", info.Key, "error", delErr)
		}
		return Territory{}, res, err
	}
	if previous != "" && previous != info.Key {
		if _, err := s.blobs.Delete(ctx, previous); err != nil {
			s.logger.Warn("delete replaced territory image", "key", previous, "error", err)
		}
	}
	return updated, res, nil
}

// ImageURL resolves a stored image reference into a time-limited URL.
func (s *Service) ImageURL(ctx context.Context, ref string) (string, error) {
	if s.blobs == nil {
		return "", ErrNoBlobStore
	}
	return s.blobs.PresignURL(ctx, ref, blob.SignedURLOptions{Expiry: s.urlExpiry})
}

// ImageURLFunc adapts ImageURL for the aggregation engine. References that
// cannot be resolved map to the empty string.
func (s *Service) ImageURLFunc(ctx context.Context) func(ref string) string {
	if s.blobs == nil {
		return nil
	}
	return func(ref string) string {
		url, err := s.ImageURL(ctx, ref)
		if err != nil {
			s.logger.Debug("resolve image url", "ref", ref, "error", err)
			return ""
		}
		return url
	}
}
