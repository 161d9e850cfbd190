package aggregate

import (
	"sort"
	"strings"

	"territorycore/pkg/domain"
)

// TerritoryView is one row of the territory tree.
type TerritoryView struct {
	Territory   domain.Territory
	Addresses   []domain.Address
	HouseCount  int
	AccessLevel domain.AccessLevel
	ImageURL    string
}

// TerritoryTree joins every territory with its addresses and house count,
// ordered by territory number. Addresses whose territory is missing never
// appear. Equal numbers keep snapshot order.
func TerritoryTree(ix *Index) []TerritoryView {
	out := make([]TerritoryView, 0, len(ix.snap.Territories))
	for _, t := range ix.snap.Territories {
		addrs := sortedAddresses(ix.addressesByTerritory[t.ID])
		count := 0
		for _, a := range addrs {
			count += len(ix.housesByAddress[a.ID])
		}
		out = append(out, TerritoryView{
			Territory:   t,
			Addresses:   addrs,
			HouseCount:  count,
			AccessLevel: ix.level(domain.EntityTerritory, t.ID, ""),
			ImageURL:    ix.image(t.ImageRef),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Territory.Number < out[j].Territory.Number
	})
	return out
}

// sortedAddresses copies addrs ordered by text, ignoring case, then id. The
// result is never nil.
func sortedAddresses(addrs []domain.Address) []domain.Address {
	out := make([]domain.Address, len(addrs))
	copy(out, addrs)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Address), strings.ToLower(out[j].Address)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}
