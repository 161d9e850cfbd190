package core

import (
	"context"
	"fmt"

	"territorycore/pkg/domain"
)

// NewDanglingReferenceRule logs records whose parent is missing. Such records
// are legal (a sync batch may delete a parent first) and are left out of
// every view.
func NewDanglingReferenceRule() domain.Rule {
	return danglingReferenceRule{}
}

type danglingReferenceRule struct{}

func (danglingReferenceRule) Name() string { return "dangling_reference" }

func (r danglingReferenceRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, c := range changes {
		if c.Action == domain.ActionDelete {
			continue
		}
		entity, parent, id := parentOf(c.After)
		if id == "" {
			continue
		}
		var ok bool
		switch parent {
		case domain.EntityTerritory:
			_, ok = view.FindTerritory(id)
		case domain.EntityAddress:
			_, ok = view.FindAddress(id)
		case domain.EntityHouse:
			_, ok = view.FindHouse(id)
		case domain.EntityToken:
			_, ok = view.FindToken(id)
		case domain.EntityPhoneTerritory:
			_, ok = view.FindPhoneTerritory(id)
		case domain.EntityPhoneNumber:
			_, ok = view.FindPhoneNumber(id)
		}
		if ok {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityLog,
			Message:  fmt.Sprintf("%s %s references missing %s %s", entity, c.ID, parent, id),
			Entity:   entity,
			EntityID: c.ID,
		})
	}
	return res, nil
}

func parentOf(record any) (domain.EntityType, domain.EntityType, string) {
	switch v := record.(type) {
	case domain.Address:
		return domain.EntityAddress, domain.EntityTerritory, v.TerritoryID
	case domain.House:
		return domain.EntityHouse, domain.EntityAddress, v.AddressID
	case domain.Visit:
		return domain.EntityVisit, domain.EntityHouse, v.HouseID
	case domain.TokenTerritory:
		return domain.EntityTokenTerritory, domain.EntityTerritory, v.TerritoryID
	case domain.PhoneNumber:
		return domain.EntityPhoneNumber, domain.EntityPhoneTerritory, v.TerritoryID
	case domain.PhoneCall:
		return domain.EntityPhoneCall, domain.EntityPhoneNumber, v.PhoneNumberID
	case domain.UserToken:
		return domain.EntityUserToken, domain.EntityToken, v.TokenID
	case domain.Recall:
		return domain.EntityRecall, domain.EntityHouse, v.HouseID
	}
	return "", "", ""
}
