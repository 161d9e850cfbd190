package domain

import (
	"context"
	"slices"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView

	CreateTerritory(Territory) (Territory, error)
	UpdateTerritory(id string, mutator func(*Territory) error) (Territory, error)
	DeleteTerritory(id string) error
	CreateAddress(Address) (Address, error)
	UpdateAddress(id string, mutator func(*Address) error) (Address, error)
	DeleteAddress(id string) error
	CreateHouse(House) (House, error)
	UpdateHouse(id string, mutator func(*House) error) (House, error)
	DeleteHouse(id string) error
	CreateVisit(Visit) (Visit, error)
	UpdateVisit(id string, mutator func(*Visit) error) (Visit, error)
	DeleteVisit(id string) error
	CreateToken(Token) (Token, error)
	UpdateToken(id string, mutator func(*Token) error) (Token, error)
	DeleteToken(id string) error
	PutTokenTerritory(TokenTerritory) (TokenTerritory, error)
	DeleteTokenTerritory(tokenID, territoryID string) error
	CreatePhoneTerritory(PhoneTerritory) (PhoneTerritory, error)
	UpdatePhoneTerritory(id string, mutator func(*PhoneTerritory) error) (PhoneTerritory, error)
	DeletePhoneTerritory(id string) error
	CreatePhoneNumber(PhoneNumber) (PhoneNumber, error)
	UpdatePhoneNumber(id string, mutator func(*PhoneNumber) error) (PhoneNumber, error)
	DeletePhoneNumber(id string) error
	CreatePhoneCall(PhoneCall) (PhoneCall, error)
	UpdatePhoneCall(id string, mutator func(*PhoneCall) error) (PhoneCall, error)
	DeletePhoneCall(id string) error
	CreateUserToken(UserToken) (UserToken, error)
	UpdateUserToken(id string, mutator func(*UserToken) error) (UserToken, error)
	DeleteUserToken(id string) error
	PutRecall(Recall) (Recall, error)
	DeleteRecall(userID, houseID string) error

	// Upsert stores a record verbatim, replacing any existing record with the
	// same identity. It is used by sync reconciliation.
	Upsert(entity EntityType, record any) error
	// Remove deletes a record by identity; missing records are ignored.
	Remove(entity EntityType, id string) error
}

// TransactionView provides read-only access to a point-in-time snapshot.
// List methods return records ordered by identity so repeated reads of the
// same state are deterministic.
type TransactionView interface {
	RuleView
	ListVisits() []Visit
	ListTokens() []Token
	ListPhoneNumbers() []PhoneNumber
	ListPhoneCalls() []PhoneCall
	ListUserTokens() []UserToken
	ListRecalls() []Recall
	FindVisit(id string) (Visit, bool)
	FindPhoneCall(id string) (PhoneCall, bool)
	FindUserToken(id string) (UserToken, bool)
	FindRecall(userID, houseID string) (Recall, bool)
}

// Notification announces a committed transaction. Kinds lists the entity
// types touched since the previous notification delivered to the watcher.
type Notification struct {
	Seq   uint64
	Kinds []EntityType
}

// Touches reports whether any of kinds changed. An empty kinds list matches
// every notification.
func (n Notification) Touches(kinds ...EntityType) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if slices.Contains(n.Kinds, k) {
			return true
		}
	}
	return false
}

// Merge folds a later notification into n.
func (n Notification) Merge(later Notification) Notification {
	out := Notification{Seq: max(n.Seq, later.Seq), Kinds: slices.Clone(n.Kinds)}
	for _, k := range later.Kinds {
		if !slices.Contains(out.Kinds, k) {
			out.Kinds = append(out.Kinds, k)
		}
	}
	return out
}

// ChangeFeed delivers commit notifications. Notifications that arrive while
// a watcher is busy are coalesced into one.
type ChangeFeed interface {
	Watch(kinds ...EntityType) (<-chan Notification, func())
}

// PersistentStore is the Entity Store abstraction consumed by the service
// layer and the aggregation engine.
type PersistentStore interface {
	ChangeFeed
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	Get(entity EntityType, id string) (any, bool)
	Seq() uint64
}
