package aggregate

import (
	"sort"

	"territorycore/pkg/domain"
)

// RecallView is a follow-up marker resolved to its house, address and territory.
type RecallView struct {
	Recall    domain.Recall
	House     domain.House
	Address   domain.Address
	Territory domain.Territory
}

// Recalls lists the session user's recalls, newest first. Anonymous sessions
// have none.
func Recalls(ix *Index) []RecallView {
	out := []RecallView{}
	if !ix.hasUser {
		return out
	}
	for _, r := range ix.snap.Recalls {
		if r.UserID != ix.userID {
			continue
		}
		h, a, t, ok := ix.houseChain(r.HouseID)
		if !ok {
			continue
		}
		out = append(out, RecallView{Recall: r, House: h, Address: a, Territory: t})
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Recall, out[j].Recall
		if !ri.CreatedAt.Equal(rj.CreatedAt) {
			return ri.CreatedAt.After(rj.CreatedAt)
		}
		return ri.HouseID < rj.HouseID
	})
	return out
}
