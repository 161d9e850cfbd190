package core

import (
	"context"
	"fmt"

	"territorycore/pkg/domain"
)

// NewTerritoryNumberRule warns when two territories of one congregation share
// a number.
func NewTerritoryNumberRule() domain.Rule {
	return territoryNumberRule{}
}

type territoryNumberRule struct{}

func (territoryNumberRule) Name() string { return "territory_number_unique" }

func (r territoryNumberRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	if !touches(changes, domain.EntityTerritory) {
		return domain.Result{}, nil
	}
	type slot struct {
		congregation string
		number       int32
	}
	first := make(map[slot]string)
	res := domain.Result{}
	for _, t := range view.ListTerritories() {
		key := slot{congregation: t.CongregationID, number: t.Number}
		owner, taken := first[key]
		if !taken {
			first[key] = t.ID
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("territory %s reuses number %d of territory %s", t.ID, t.Number, owner),
			Entity:   domain.EntityTerritory,
			EntityID: t.ID,
		})
	}
	return res, nil
}

func touches(changes []domain.Change, kinds ...domain.EntityType) bool {
	for _, c := range changes {
		for _, k := range kinds {
			if c.Entity == k {
				return true
			}
		}
	}
	return false
}
