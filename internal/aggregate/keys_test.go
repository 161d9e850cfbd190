package aggregate

import (
	"math/rand"
	"testing"
	"time"

	"territorycore/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func groupIDs(groups []KeyGroup) [][]string {
	var out [][]string
	for _, g := range groups {
		var ids []string
		for _, tv := range g.Territories {
			ids = append(ids, tv.Territory.ID)
		}
		out = append(out, ids)
	}
	return out
}

func TestGroupByKeysSharedSingleKey(t *testing.T) {
	snap := Snapshot{
		Territories:      []domain.Territory{territory("t2", 7, ""), territory("t1", 3, "")},
		Tokens:           []domain.Token{token("k1", "North", false)},
		TokenTerritories: []domain.TokenTerritory{link("k1", "t2"), link("k1", "t1")},
	}
	ix := index(snap, nil)
	groups := GroupByKeys(ix, TerritoryTree(ix))
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Keys, 1)
	assert.Equal(t, "k1", groups[0].Keys[0].ID)
	assert.Equal(t, [][]string{{"t1", "t2"}}, groupIDs(groups))
}

func TestGroupByKeysIgnoresRetrievalOrder(t *testing.T) {
	tokens := []domain.Token{token("k1", "a", false), token("k2", "b", false), token("k3", "c", true)}
	rows := []domain.TokenTerritory{
		link("k1", "t1"), link("k2", "t1"), link("k3", "t1"),
		link("k3", "t2"), link("k1", "t2"), link("k2", "t2"),
		link("k2", "t3"),
	}
	territories := []domain.Territory{territory("t1", 1, ""), territory("t2", 2, ""), territory("t3", 3, "")}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffledRows := append([]domain.TokenTerritory(nil), rows...)
		rng.Shuffle(len(shuffledRows), func(a, b int) { shuffledRows[a], shuffledRows[b] = shuffledRows[b], shuffledRows[a] })
		shuffledTokens := append([]domain.Token(nil), tokens...)
		rng.Shuffle(len(shuffledTokens), func(a, b int) { shuffledTokens[a], shuffledTokens[b] = shuffledTokens[b], shuffledTokens[a] })

		ix := index(Snapshot{Territories: territories, Tokens: shuffledTokens, TokenTerritories: shuffledRows}, nil)
		groups := GroupByKeys(ix, TerritoryTree(ix))
		assert.Equal(t, [][]string{{"t1", "t2"}, {"t3"}}, groupIDs(groups), "iteration %d", i)
		assert.Len(t, groups[0].Keys, 3)
	}
}

func TestGroupByKeysUnassignedTerritoriesShareOneGroup(t *testing.T) {
	snap := Snapshot{
		Territories: []domain.Territory{
			territory("free1", 4, ""),
			territory("keyed", 1, ""),
			territory("free2", 2, ""),
		},
		Tokens:           []domain.Token{token("k", "k", false)},
		TokenTerritories: []domain.TokenTerritory{link("k", "keyed"), link("k", "keyed")},
	}
	ix := index(snap, nil)
	groups := GroupByKeys(ix, TerritoryTree(ix))
	require.Len(t, groups, 2)
	assert.Equal(t, [][]string{{"keyed"}, {"free2", "free1"}}, groupIDs(groups))
	assert.Empty(t, groups[1].Keys)
}

func TestGroupByKeysIgnoresExpiredAndMissingTokens(t *testing.T) {
	expired := token("old", "old", true)
	expired.Expires = passNow.Add(-time.Minute).UnixMilli()
	snap := Snapshot{
		Territories: []domain.Territory{territory("t1", 1, ""), territory("t2", 2, "")},
		Tokens:      []domain.Token{expired, token("k", "k", false)},
		TokenTerritories: []domain.TokenTerritory{
			link("old", "t1"), link("k", "t1"),
			link("ghost", "t2"), link("k", "t2"),
		},
	}
	ix := index(snap, nil)
	groups := GroupByKeys(ix, TerritoryTree(ix))
	assert.Equal(t, [][]string{{"t1", "t2"}}, groupIDs(groups))
}

func TestKeySetEqual(t *testing.T) {
	a := []domain.Token{token("1", "x", false), token("2", "y", false)}
	b := []domain.Token{token("2", "renamed", true), token("1", "x", false)}
	assert.True(t, KeySetEqual(a, b))
	assert.True(t, KeySetEqual(nil, []domain.Token{}))
	assert.True(t, KeySetEqual(a, append(b, token("1", "dup", false))))
	assert.False(t, KeySetEqual(a, a[:1]))
	assert.False(t, KeySetEqual(a, []domain.Token{token("1", "", false), token("3", "", false)}))
}

func TestMinNumberSentinel(t *testing.T) {
	assert.Equal(t, noMembers, minNumber(KeyGroup{}))
	assert.Greater(t, noMembers, int64(1<<31-1))
}

func TestKeysListsUsersAndTerritories(t *testing.T) {
	expired := token("k2", "Alpha", false)
	expired.Expires = daysAgo(1)
	snap := Snapshot{
		Now:              passNow,
		Territories:      []domain.Territory{territory("t1", 9, ""), territory("t2", 4, "")},
		Tokens:           []domain.Token{token("k1", "Zulu", true), expired},
		TokenTerritories: []domain.TokenTerritory{link("k1", "t1"), link("k1", "t2"), link("k1", "gone")},
		UserTokens: []domain.UserToken{
			{Base: domain.Base{ID: "u2"}, TokenID: "k1", Name: "Bea", Blocked: true},
			{Base: domain.Base{ID: "u1"}, TokenID: "k1", Name: "Al"},
		},
	}
	keys := Keys(NewIndex(snap, nil))
	require.Len(t, keys, 2)
	assert.Equal(t, "k2", keys[0].Token.ID)
	assert.True(t, keys[0].Expired)
	assert.Empty(t, keys[0].Territories)

	k1 := keys[1]
	require.Len(t, k1.Territories, 2)
	assert.Equal(t, "t2", k1.Territories[0].ID)
	require.Len(t, k1.Users, 2)
	assert.Equal(t, "Al", k1.Users[0].Name)
	assert.True(t, k1.Users[1].Blocked)
}
