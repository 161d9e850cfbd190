package aggregate

import (
	"time"

	"territorycore/internal/access"
	"territorycore/pkg/domain"
)

var passNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(d int) int64 { return passNow.Add(-time.Duration(d) * 24 * time.Hour).UnixMilli() }

func territory(id string, number int32, desc string) domain.Territory {
	return domain.Territory{Base: domain.Base{ID: id}, Number: number, Description: desc}
}

func address(id, territoryID, text string) domain.Address {
	return domain.Address{Base: domain.Base{ID: id}, TerritoryID: territoryID, Address: text}
}

func house(id, addressID, number string) domain.House {
	return domain.House{Base: domain.Base{ID: id}, AddressID: addressID, Number: number}
}

func visit(id, houseID string, date int64, user string) domain.Visit {
	return domain.Visit{Base: domain.Base{ID: id}, HouseID: houseID, Date: date, User: user, UserName: "stored " + user}
}

func token(id, name string, moderator bool) domain.Token {
	return domain.Token{Base: domain.Base{ID: id}, Name: name, Moderator: moderator}
}

func link(tokenID, territoryID string) domain.TokenTerritory {
	return domain.TokenTerritory{TokenID: tokenID, TerritoryID: territoryID}
}

func index(snap Snapshot, session access.Session) *Index {
	if snap.Now.IsZero() {
		snap.Now = passNow
	}
	return NewIndex(snap, session)
}
