package aggregate

import (
	"context"
	"errors"
	"testing"

	"territorycore/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReader struct {
	view domain.TransactionView
	seq  uint64
	err  error
}

func (s stubReader) View(_ context.Context, fn func(domain.TransactionView) error) error {
	if s.err != nil {
		return s.err
	}
	return fn(s.view)
}

func (s stubReader) Seq() uint64 { return s.seq }

type sliceView struct {
	domain.TransactionView
	snap Snapshot
}

func (v sliceView) ListTerritories() []domain.Territory           { return v.snap.Territories }
func (v sliceView) ListAddresses() []domain.Address               { return v.snap.Addresses }
func (v sliceView) ListHouses() []domain.House                    { return v.snap.Houses }
func (v sliceView) ListVisits() []domain.Visit                    { return v.snap.Visits }
func (v sliceView) ListTokens() []domain.Token                    { return v.snap.Tokens }
func (v sliceView) ListTokenTerritories() []domain.TokenTerritory { return v.snap.TokenTerritories }
func (v sliceView) ListPhoneTerritories() []domain.PhoneTerritory { return v.snap.PhoneTerritories }
func (v sliceView) ListPhoneNumbers() []domain.PhoneNumber        { return v.snap.PhoneNumbers }
func (v sliceView) ListPhoneCalls() []domain.PhoneCall            { return v.snap.PhoneCalls }
func (v sliceView) ListUserTokens() []domain.UserToken            { return v.snap.UserTokens }
func (v sliceView) ListRecalls() []domain.Recall                  { return v.snap.Recalls }

func TestFreezeCopiesEveryCollection(t *testing.T) {
	src := detailSnapshot()
	src.Tokens = []domain.Token{token("k", "k", false)}
	snap, err := Freeze(context.Background(), stubReader{view: sliceView{snap: src}, seq: 9}, passNow)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), snap.Seq)
	assert.Equal(t, passNow, snap.Now)
	assert.Len(t, snap.Addresses, 3)
	assert.Len(t, snap.Tokens, 1)
}

func TestFreezeSurfacesViewErrors(t *testing.T) {
	boom := errors.New("closed")
	_, err := Freeze(context.Background(), stubReader{err: boom}, passNow)
	assert.ErrorIs(t, err, boom)
}
