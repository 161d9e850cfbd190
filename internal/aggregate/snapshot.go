// Package aggregate holds the pure join pipelines that turn one frozen store
// snapshot into access-filtered view models. Nothing here performs I/O or
// mutates its inputs.
package aggregate

import (
	"context"
	"time"

	"territorycore/pkg/domain"
)

// Snapshot is every collection read from the store within a single View, so
// joins never mix records from different commits. Lists are ordered by
// identity.
type Snapshot struct {
	Seq uint64
	// Now is the clock for the pass. Windows and token expiry are measured
	// against it so a pass is deterministic.
	Now time.Time

	Territories      []domain.Territory
	Addresses        []domain.Address
	Houses           []domain.House
	Visits           []domain.Visit
	Tokens           []domain.Token
	TokenTerritories []domain.TokenTerritory
	PhoneTerritories []domain.PhoneTerritory
	PhoneNumbers     []domain.PhoneNumber
	PhoneCalls       []domain.PhoneCall
	UserTokens       []domain.UserToken
	Recalls          []domain.Recall
}

// Reader is the subset of the store a snapshot is frozen from.
type Reader interface {
	View(ctx context.Context, fn func(domain.TransactionView) error) error
	Seq() uint64
}

// Freeze reads all collections in one store view. Seq is sampled before the
// view, so a snapshot may be newer than its Seq but never older.
func Freeze(ctx context.Context, store Reader, now time.Time) (Snapshot, error) {
	seq := store.Seq()
	var snap Snapshot
	err := store.View(ctx, func(v domain.TransactionView) error {
		snap = FromView(v)
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	snap.Seq = seq
	snap.Now = now
	return snap, nil
}

// FromView copies every collection out of a transaction view.
func FromView(v domain.TransactionView) Snapshot {
	return Snapshot{
		Territories:      v.ListTerritories(),
		Addresses:        v.ListAddresses(),
		Houses:           v.ListHouses(),
		Visits:           v.ListVisits(),
		Tokens:           v.ListTokens(),
		TokenTerritories: v.ListTokenTerritories(),
		PhoneTerritories: v.ListPhoneTerritories(),
		PhoneNumbers:     v.ListPhoneNumbers(),
		PhoneCalls:       v.ListPhoneCalls(),
		UserTokens:       v.ListUserTokens(),
		Recalls:          v.ListRecalls(),
	}
}
