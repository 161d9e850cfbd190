package aggregate

import (
	"sort"

	"territorycore/pkg/domain"
)

// AddressView is an address of a territory with its house count.
type AddressView struct {
	Address     domain.Address
	HouseCount  int
	AccessLevel domain.AccessLevel
}

// HouseView is a house with its most recent visit, if any.
type HouseView struct {
	House       domain.House
	LastVisit   *VisitView
	AccessLevel domain.AccessLevel
}

// VisitView is a visit as shown to the session. UserName carries the session
// display name when the session user authored the visit.
type VisitView struct {
	Visit       domain.Visit
	AccessLevel domain.AccessLevel
}

// AddressesOf lists the addresses of a territory. An unknown territory yields
// an empty list.
func AddressesOf(ix *Index, territoryID string) []AddressView {
	if _, ok := ix.territories[territoryID]; !ok {
		return []AddressView{}
	}
	addrs := sortedAddresses(ix.addressesByTerritory[territoryID])
	out := make([]AddressView, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, AddressView{
			Address:     a,
			HouseCount:  len(ix.housesByAddress[a.ID]),
			AccessLevel: ix.level(domain.EntityAddress, territoryID, ""),
		})
	}
	return out
}

// HousesOf lists the houses at an address in natural number order. Houses of
// an address whose territory is missing are excluded.
func HousesOf(ix *Index, addressID string) []HouseView {
	a, ok := ix.addresses[addressID]
	if !ok {
		return []HouseView{}
	}
	if _, ok := ix.territories[a.TerritoryID]; !ok {
		return []HouseView{}
	}
	houses := ix.housesByAddress[addressID]
	out := make([]HouseView, 0, len(houses))
	for _, h := range houses {
		hv := HouseView{
			House:       h,
			AccessLevel: ix.level(domain.EntityHouse, a.TerritoryID, ""),
		}
		if last, ok := latestVisit(ix.visitsByHouse[h.ID]); ok {
			vv := ix.visitView(last, a.TerritoryID)
			hv.LastVisit = &vv
		}
		out = append(out, hv)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := naturalCompare(out[i].House.Number, out[j].House.Number); c != 0 {
			return c < 0
		}
		return out[i].House.ID < out[j].House.ID
	})
	return out
}

// VisitsOf lists the visits of a house, newest first.
func VisitsOf(ix *Index, houseID string) []VisitView {
	_, _, t, ok := ix.houseChain(houseID)
	if !ok {
		return []VisitView{}
	}
	visits := ix.visitsByHouse[houseID]
	out := make([]VisitView, 0, len(visits))
	for _, v := range visits {
		out = append(out, ix.visitView(v, t.ID))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return newerFirst(out[i].Visit.Date, out[j].Visit.Date, out[i].Visit.ID, out[j].Visit.ID)
	})
	return out
}

func (ix *Index) visitView(v domain.Visit, territoryID string) VisitView {
	v.UserName = ix.displayName(v.User, v.UserName)
	return VisitView{
		Visit:       v,
		AccessLevel: ix.level(domain.EntityVisit, territoryID, v.User),
	}
}

// latestVisit picks the visit with the greatest date. Among equal dates the
// lowest id wins, matching the order of newerFirst.
func latestVisit(visits []domain.Visit) (domain.Visit, bool) {
	if len(visits) == 0 {
		return domain.Visit{}, false
	}
	best := visits[0]
	for _, v := range visits[1:] {
		if newerFirst(v.Date, best.Date, v.ID, best.ID) {
			best = v
		}
	}
	return best, true
}

// newerFirst orders by date descending, then id ascending.
func newerFirst(di, dj int64, idi, idj string) bool {
	if di != dj {
		return di > dj
	}
	return idi < idj
}
