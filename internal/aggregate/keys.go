package aggregate

import (
	"math"
	"sort"
	"strings"

	"territorycore/pkg/domain"
)

// KeyGroup collects the territories granted by exactly the same set of keys.
// The group with no keys holds every unassigned territory.
type KeyGroup struct {
	Keys        []domain.Token
	Territories []TerritoryView
}

// KeyView lists one key with the territories it grants and the users holding it.
type KeyView struct {
	Token       domain.Token
	Expired     bool
	Territories []domain.Territory
	Users       []domain.UserToken
}

// noMembers orders memberless groups after every real territory number.
const noMembers = int64(math.MaxInt32) + 1

// KeySetEqual reports whether a and b name the same tokens, ignoring order
// and duplicates.
func KeySetEqual(a, b []domain.Token) bool {
	return keySetID(a) == keySetID(b)
}

// keySetID is the canonical identity of a key set: sorted unique token ids.
func keySetID(tokens []domain.Token) string {
	ids := make([]string, 0, len(tokens))
	for _, t := range tokens {
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)
	uniq := ids[:0]
	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		uniq = append(uniq, id)
	}
	return strings.Join(uniq, "\x1f")
}

// GroupByKeys partitions tree by the set of live keys linked to each
// territory. Members are ordered by number; groups by their smallest member
// number, memberless groups last.
func GroupByKeys(ix *Index, tree []TerritoryView) []KeyGroup {
	type group struct {
		id string
		KeyGroup
	}
	var groups []*group
	byKey := make(map[string]*group)
	for _, tv := range tree {
		keys := ix.links.Tokens(tv.Territory.ID)
		id := keySetID(keys)
		g, ok := byKey[id]
		if !ok {
			g = &group{id: id, KeyGroup: KeyGroup{Keys: sortedTokens(keys), Territories: []TerritoryView{}}}
			byKey[id] = g
			groups = append(groups, g)
		}
		g.Territories = append(g.Territories, tv)
	}
	out := make([]KeyGroup, 0, len(groups))
	for _, g := range groups {
		sort.SliceStable(g.Territories, func(i, j int) bool {
			return g.Territories[i].Territory.Number < g.Territories[j].Territory.Number
		})
		out = append(out, g.KeyGroup)
	}
	sort.SliceStable(out, func(i, j int) bool {
		mi, mj := minNumber(out[i]), minNumber(out[j])
		if mi != mj {
			return mi < mj
		}
		return keySetID(out[i].Keys) < keySetID(out[j].Keys)
	})
	return out
}

func minNumber(g KeyGroup) int64 {
	if len(g.Territories) == 0 {
		return noMembers
	}
	// members are sorted
	return int64(g.Territories[0].Territory.Number)
}

func sortedTokens(tokens []domain.Token) []domain.Token {
	out := make([]domain.Token, len(tokens))
	copy(out, tokens)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Keys lists every key, expired ones included, ordered by name then id.
func Keys(ix *Index) []KeyView {
	out := make([]KeyView, 0, len(ix.snap.Tokens))
	for _, tok := range sortedTokens(ix.snap.Tokens) {
		kv := KeyView{
			Token:       tok,
			Expired:     tok.ExpiredAt(ix.snap.Now),
			Territories: []domain.Territory{},
			Users:       []domain.UserToken{},
		}
		for _, tid := range ix.territoriesByToken[tok.ID] {
			if t, ok := ix.territories[tid]; ok {
				kv.Territories = append(kv.Territories, t)
			}
		}
		sort.SliceStable(kv.Territories, func(i, j int) bool {
			return kv.Territories[i].Number < kv.Territories[j].Number
		})
		kv.Users = append(kv.Users, ix.userTokensByToken[tok.ID]...)
		sort.SliceStable(kv.Users, func(i, j int) bool {
			if kv.Users[i].Name != kv.Users[j].Name {
				return kv.Users[i].Name < kv.Users[j].Name
			}
			return kv.Users[i].ID < kv.Users[j].ID
		})
		out = append(out, kv)
	}
	return out
}
