package aggregate

import (
	"testing"

	"territorycore/internal/access"
	"territorycore/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func phoneSnapshot() Snapshot {
	label := "Flat 3"
	return Snapshot{
		PhoneTerritories: []domain.PhoneTerritory{
			{Base: domain.Base{ID: "p2"}, Number: 20, Description: "Centro"},
			{Base: domain.Base{ID: "p1"}, Number: 10, Description: "Norte"},
		},
		PhoneNumbers: []domain.PhoneNumber{
			{Base: domain.Base{ID: "n1"}, TerritoryID: "p1", Number: "555-0100", House: &label},
			{Base: domain.Base{ID: "n2"}, TerritoryID: "p1", Number: "555-0020"},
			{Base: domain.Base{ID: "n3"}, TerritoryID: "gone", Number: "555-9999"},
		},
		PhoneCalls: []domain.PhoneCall{
			{Base: domain.Base{ID: "c1"}, PhoneNumberID: "n1", Date: daysAgo(1), User: "me", UserName: "old"},
			{Base: domain.Base{ID: "c2"}, PhoneNumberID: "n1", Date: daysAgo(3), User: "x", Notes: "no answer"},
			{Base: domain.Base{ID: "c3"}, PhoneNumberID: "n3", Date: daysAgo(1), User: "x"},
		},
	}
}

func TestPhoneTree(t *testing.T) {
	tree := PhoneTree(index(phoneSnapshot(), nil))
	require.Len(t, tree, 2)
	assert.Equal(t, "p1", tree[0].Territory.ID)
	assert.Equal(t, 2, tree[0].NumberCount)
	assert.Equal(t, 2, tree[0].CallCount)
	assert.Equal(t, 0, tree[1].NumberCount)
}

func TestPhoneNumbersAndCalls(t *testing.T) {
	ix := index(phoneSnapshot(), access.StaticSession{UserID: "me", DisplayName: "Me"})
	numbers := PhoneNumbersOf(ix, "p1")
	require.Len(t, numbers, 2)
	assert.Equal(t, "n2", numbers[0].Number.ID)
	assert.Nil(t, numbers[0].LastCall)
	require.NotNil(t, numbers[1].LastCall)
	assert.Equal(t, "c1", numbers[1].LastCall.Call.ID)
	assert.Equal(t, "Me", numbers[1].LastCall.Call.UserName)
	assert.Equal(t, domain.AccessModerator, numbers[1].LastCall.AccessLevel)

	calls := PhoneCallsOf(ix, "n1")
	require.Len(t, calls, 2)
	assert.Equal(t, "c1", calls[0].Call.ID)
	assert.Empty(t, PhoneCallsOf(ix, "n3"))
	assert.Empty(t, PhoneNumbersOf(ix, "gone"))
}
