package memory

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"territorycore/pkg/domain"
)

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) touchedKinds() []domain.EntityType {
	var kinds []domain.EntityType
	for _, c := range tx.changes {
		if !slices.Contains(kinds, c.Entity) {
			kinds = append(kinds, c.Entity)
		}
	}
	return kinds
}

func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

type record[T any] interface {
	*T
	Record() *domain.Base
}

func createRecord[T any, P record[T]](tx *transaction, bucket map[string]T, entity domain.EntityType, value T, clone func(T) T) (T, error) {
	base := P(&value).Record()
	if base.ID == "" {
		base.ID = tx.store.newID()
	}
	if _, exists := bucket[base.ID]; exists {
		var zero T
		return zero, domain.ConflictError{Entity: entity, ID: base.ID, Reason: "already exists"}
	}
	base.CreatedAt = tx.now
	base.UpdatedAt = tx.now
	bucket[base.ID] = clone(value)
	tx.recordChange(Change{Entity: entity, Action: domain.ActionCreate, ID: base.ID, After: clone(value)})
	return clone(value), nil
}

func updateRecord[T any, P record[T]](tx *transaction, bucket map[string]T, entity domain.EntityType, id string, mutator func(*T) error, clone func(T) T) (T, error) {
	current, ok := bucket[id]
	if !ok {
		var zero T
		return zero, domain.NotFoundError{Entity: entity, ID: id}
	}
	before := clone(current)
	next := clone(current)
	if err := mutator(&next); err != nil {
		var zero T
		return zero, err
	}
	prev := P(&before).Record()
	base := P(&next).Record()
	base.ID = prev.ID
	base.CreatedAt = prev.CreatedAt
	base.UpdatedAt = prev.UpdatedAt
	if sameRecord(before, next) {
		var zero T
		return zero, domain.NothingToSaveError{Entity: entity, ID: id}
	}
	base.UpdatedAt = tx.now
	bucket[id] = clone(next)
	tx.recordChange(Change{Entity: entity, Action: domain.ActionUpdate, ID: id, Before: before, After: clone(next)})
	return clone(next), nil
}

func deleteRecord[T any](tx *transaction, bucket map[string]T, entity domain.EntityType, id string) error {
	current, ok := bucket[id]
	if !ok {
		return domain.NotFoundError{Entity: entity, ID: id}
	}
	delete(bucket, id)
	tx.recordChange(Change{Entity: entity, Action: domain.ActionDelete, ID: id, Before: current})
	return nil
}

func (tx *transaction) CreateTerritory(t Territory) (Territory, error) {
	return createRecord(tx, tx.state.territories, domain.EntityTerritory, t, cloneTerritory)
}

func (tx *transaction) UpdateTerritory(id string, mutator func(*Territory) error) (Territory, error) {
	return updateRecord(tx, tx.state.territories, domain.EntityTerritory, id, mutator, cloneTerritory)
}

func (tx *transaction) DeleteTerritory(id string) error {
	return deleteRecord(tx, tx.state.territories, domain.EntityTerritory, id)
}

func (tx *transaction) CreateAddress(a Address) (Address, error) {
	return createRecord(tx, tx.state.addresses, domain.EntityAddress, a, cloneAddress)
}

func (tx *transaction) UpdateAddress(id string, mutator func(*Address) error) (Address, error) {
	return updateRecord(tx, tx.state.addresses, domain.EntityAddress, id, mutator, cloneAddress)
}

func (tx *transaction) DeleteAddress(id string) error {
	return deleteRecord(tx, tx.state.addresses, domain.EntityAddress, id)
}

func (tx *transaction) CreateHouse(h House) (House, error) {
	return createRecord(tx, tx.state.houses, domain.EntityHouse, h, cloneHouse)
}

func (tx *transaction) UpdateHouse(id string, mutator func(*House) error) (House, error) {
	return updateRecord(tx, tx.state.houses, domain.EntityHouse, id, mutator, cloneHouse)
}

func (tx *transaction) DeleteHouse(id string) error {
	return deleteRecord(tx, tx.state.houses, domain.EntityHouse, id)
}

func (tx *transaction) CreateVisit(v Visit) (Visit, error) {
	return createRecord(tx, tx.state.visits, domain.EntityVisit, v, cloneVisit)
}

func (tx *transaction) UpdateVisit(id string, mutator func(*Visit) error) (Visit, error) {
	return updateRecord(tx, tx.state.visits, domain.EntityVisit, id, mutator, cloneVisit)
}

func (tx *transaction) DeleteVisit(id string) error {
	return deleteRecord(tx, tx.state.visits, domain.EntityVisit, id)
}

func (tx *transaction) CreateToken(t Token) (Token, error) {
	return createRecord(tx, tx.state.tokens, domain.EntityToken, t, cloneToken)
}

func (tx *transaction) UpdateToken(id string, mutator func(*Token) error) (Token, error) {
	return updateRecord(tx, tx.state.tokens, domain.EntityToken, id, mutator, cloneToken)
}

func (tx *transaction) DeleteToken(id string) error {
	return deleteRecord(tx, tx.state.tokens, domain.EntityToken, id)
}

// PutTokenTerritory links a key to a territory. Linking twice is a no-op.
func (tx *transaction) PutTokenTerritory(link TokenTerritory) (TokenTerritory, error) {
	if link.TokenID == "" || link.TerritoryID == "" {
		return TokenTerritory{}, fmt.Errorf("token territory requires token and territory ids")
	}
	key := link.Key()
	if _, exists := tx.state.tokenTerritories[key]; exists {
		return link, nil
	}
	tx.state.tokenTerritories[key] = link
	tx.recordChange(Change{Entity: domain.EntityTokenTerritory, Action: domain.ActionCreate, ID: key, After: link})
	return link, nil
}

func (tx *transaction) DeleteTokenTerritory(tokenID, territoryID string) error {
	key := TokenTerritory{TokenID: tokenID, TerritoryID: territoryID}.Key()
	return deleteRecord(tx, tx.state.tokenTerritories, domain.EntityTokenTerritory, key)
}

func (tx *transaction) CreatePhoneTerritory(p PhoneTerritory) (PhoneTerritory, error) {
	return createRecord(tx, tx.state.phoneTerritories, domain.EntityPhoneTerritory, p, clonePhoneTerritory)
}

func (tx *transaction) UpdatePhoneTerritory(id string, mutator func(*PhoneTerritory) error) (PhoneTerritory, error) {
	return updateRecord(tx, tx.state.phoneTerritories, domain.EntityPhoneTerritory, id, mutator, clonePhoneTerritory)
}

func (tx *transaction) DeletePhoneTerritory(id string) error {
	return deleteRecord(tx, tx.state.phoneTerritories, domain.EntityPhoneTerritory, id)
}

func (tx *transaction) CreatePhoneNumber(p PhoneNumber) (PhoneNumber, error) {
	return createRecord(tx, tx.state.phoneNumbers, domain.EntityPhoneNumber, p, clonePhoneNumber)
}

func (tx *transaction) UpdatePhoneNumber(id string, mutator func(*PhoneNumber) error) (PhoneNumber, error) {
	return updateRecord(tx, tx.state.phoneNumbers, domain.EntityPhoneNumber, id, mutator, clonePhoneNumber)
}

func (tx *transaction) DeletePhoneNumber(id string) error {
	return deleteRecord(tx, tx.state.phoneNumbers, domain.EntityPhoneNumber, id)
}

func (tx *transaction) CreatePhoneCall(c PhoneCall) (PhoneCall, error) {
	return createRecord(tx, tx.state.phoneCalls, domain.EntityPhoneCall, c, clonePhoneCall)
}

func (tx *transaction) UpdatePhoneCall(id string, mutator func(*PhoneCall) error) (PhoneCall, error) {
	return updateRecord(tx, tx.state.phoneCalls, domain.EntityPhoneCall, id, mutator, clonePhoneCall)
}

func (tx *transaction) DeletePhoneCall(id string) error {
	return deleteRecord(tx, tx.state.phoneCalls, domain.EntityPhoneCall, id)
}

func (tx *transaction) CreateUserToken(u UserToken) (UserToken, error) {
	return createRecord(tx, tx.state.userTokens, domain.EntityUserToken, u, cloneUserToken)
}

func (tx *transaction) UpdateUserToken(id string, mutator func(*UserToken) error) (UserToken, error) {
	return updateRecord(tx, tx.state.userTokens, domain.EntityUserToken, id, mutator, cloneUserToken)
}

func (tx *transaction) DeleteUserToken(id string) error {
	return deleteRecord(tx, tx.state.userTokens, domain.EntityUserToken, id)
}

// PutRecall marks a house for follow-up by a user, replacing any earlier marker.
func (tx *transaction) PutRecall(r Recall) (Recall, error) {
	if r.UserID == "" || r.HouseID == "" {
		return Recall{}, fmt.Errorf("recall requires user and house ids")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = tx.now
	}
	key := r.Key()
	before, exists := tx.state.recalls[key]
	if exists && sameRecord(before, r) {
		return r, nil
	}
	tx.state.recalls[key] = r
	change := Change{Entity: domain.EntityRecall, Action: domain.ActionCreate, ID: key, After: r}
	if exists {
		change.Action = domain.ActionUpdate
		change.Before = before
	}
	tx.recordChange(change)
	return r, nil
}

func (tx *transaction) DeleteRecall(userID, houseID string) error {
	key := Recall{UserID: userID, HouseID: houseID}.Key()
	return deleteRecord(tx, tx.state.recalls, domain.EntityRecall, key)
}

// Upsert stores record verbatim. Timestamps carried by the record are kept.
func (tx *transaction) Upsert(entity domain.EntityType, rec any) error {
	switch entity {
	case domain.EntityTerritory:
		return upsertRecord(tx, tx.state.territories, entity, rec, func(v Territory) string { return v.ID }, cloneTerritory)
	case domain.EntityAddress:
		return upsertRecord(tx, tx.state.addresses, entity, rec, func(v Address) string { return v.ID }, cloneAddress)
	case domain.EntityHouse:
		return upsertRecord(tx, tx.state.houses, entity, rec, func(v House) string { return v.ID }, cloneHouse)
	case domain.EntityVisit:
		return upsertRecord(tx, tx.state.visits, entity, rec, func(v Visit) string { return v.ID }, cloneVisit)
	case domain.EntityToken:
		return upsertRecord(tx, tx.state.tokens, entity, rec, func(v Token) string { return v.ID }, cloneToken)
	case domain.EntityTokenTerritory:
		return upsertRecord(tx, tx.state.tokenTerritories, entity, rec, compositeKey(TokenTerritory.Key, func(v TokenTerritory) bool {
			return v.TokenID != "" && v.TerritoryID != ""
		}), cloneTokenTerritory)
	case domain.EntityPhoneTerritory:
		return upsertRecord(tx, tx.state.phoneTerritories, entity, rec, func(v PhoneTerritory) string { return v.ID }, clonePhoneTerritory)
	case domain.EntityPhoneNumber:
		return upsertRecord(tx, tx.state.phoneNumbers, entity, rec, func(v PhoneNumber) string { return v.ID }, clonePhoneNumber)
	case domain.EntityPhoneCall:
		return upsertRecord(tx, tx.state.phoneCalls, entity, rec, func(v PhoneCall) string { return v.ID }, clonePhoneCall)
	case domain.EntityUserToken:
		return upsertRecord(tx, tx.state.userTokens, entity, rec, func(v UserToken) string { return v.ID }, cloneUserToken)
	case domain.EntityRecall:
		return upsertRecord(tx, tx.state.recalls, entity, rec, compositeKey(Recall.Key, func(v Recall) bool {
			return v.UserID != "" && v.HouseID != ""
		}), cloneRecall)
	default:
		return fmt.Errorf("upsert: unknown entity %q", entity)
	}
}

func compositeKey[T any](key func(T) string, valid func(T) bool) func(T) string {
	return func(v T) string {
		if !valid(v) {
			return ""
		}
		return key(v)
	}
}

func upsertRecord[T any](tx *transaction, bucket map[string]T, entity domain.EntityType, rec any, key func(T) string, clone func(T) T) error {
	var value T
	switch v := rec.(type) {
	case T:
		value = v
	case *T:
		if v == nil {
			return fmt.Errorf("upsert %s: nil record", entity)
		}
		value = *v
	default:
		return fmt.Errorf("upsert %s: unexpected record type %T", entity, rec)
	}
	id := key(value)
	if id == "" {
		return fmt.Errorf("upsert %s: record has no identity", entity)
	}
	before, exists := bucket[id]
	if exists && sameRecord(before, value) {
		return nil
	}
	bucket[id] = clone(value)
	change := Change{Entity: entity, Action: domain.ActionCreate, ID: id, After: clone(value)}
	if exists {
		change.Action = domain.ActionUpdate
		change.Before = before
	}
	tx.recordChange(change)
	return nil
}

// Remove deletes a record by identity. Missing records are ignored.
func (tx *transaction) Remove(entity domain.EntityType, id string) error {
	var err error
	switch entity {
	case domain.EntityTerritory:
		err = deleteRecord(tx, tx.state.territories, entity, id)
	case domain.EntityAddress:
		err = deleteRecord(tx, tx.state.addresses, entity, id)
	case domain.EntityHouse:
		err = deleteRecord(tx, tx.state.houses, entity, id)
	case domain.EntityVisit:
		err = deleteRecord(tx, tx.state.visits, entity, id)
	case domain.EntityToken:
		err = deleteRecord(tx, tx.state.tokens, entity, id)
	case domain.EntityTokenTerritory:
		err = deleteRecord(tx, tx.state.tokenTerritories, entity, id)
	case domain.EntityPhoneTerritory:
		err = deleteRecord(tx, tx.state.phoneTerritories, entity, id)
	case domain.EntityPhoneNumber:
		err = deleteRecord(tx, tx.state.phoneNumbers, entity, id)
	case domain.EntityPhoneCall:
		err = deleteRecord(tx, tx.state.phoneCalls, entity, id)
	case domain.EntityUserToken:
		err = deleteRecord(tx, tx.state.userTokens, entity, id)
	case domain.EntityRecall:
		err = deleteRecord(tx, tx.state.recalls, entity, id)
	default:
		return fmt.Errorf("remove: unknown entity %q", entity)
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}
