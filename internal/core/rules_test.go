package core

import (
	"context"
	"testing"

	"territorycore/internal/infra/persistence/memory"
	"territorycore/pkg/domain"
)

func ruleView(t *testing.T, batch SyncBatch) domain.RuleView {
	t.Helper()
	store := memory.NewStore(NewRulesEngine())
	if _, err := NewService(store).Reconcile(context.Background(), batch); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var view domain.RuleView
	_ = store.View(context.Background(), func(v TransactionView) error {
		view = v
		return nil
	})
	return view
}

func TestTerritoryNumberRule(t *testing.T) {
	view := ruleView(t, SyncBatch{Territories: []Territory{
		{Base: Base{ID: "t1"}, CongregationID: "c1", Number: 1},
		{Base: Base{ID: "t2"}, CongregationID: "c1", Number: 1},
		{Base: Base{ID: "t3"}, CongregationID: "c2", Number: 1},
	}})
	rule := NewTerritoryNumberRule()
	touched := []Change{{Entity: EntityTerritory, Action: ActionUpdate, ID: "t2"}}
	res, err := rule.Evaluate(context.Background(), view, touched)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 || res.Violations[0].EntityID != "t2" || res.Violations[0].Severity != SeverityWarn {
		t.Fatalf("expected a warning for t2 only, got %+v", res.Violations)
	}

	res, _ = rule.Evaluate(context.Background(), view, []Change{{Entity: EntityVisit}})
	if len(res.Violations) != 0 {
		t.Fatalf("expected rule to skip unrelated changes, got %+v", res.Violations)
	}
}

func TestDanglingReferenceRule(t *testing.T) {
	view := ruleView(t, SyncBatch{
		Territories: []Territory{{Base: Base{ID: "t1"}}},
		Addresses:   []Address{{Base: Base{ID: "a1"}, TerritoryID: "t1"}},
	})
	changes := []Change{
		{Entity: EntityAddress, Action: ActionCreate, ID: "a1", After: Address{Base: Base{ID: "a1"}, TerritoryID: "t1"}},
		{Entity: EntityHouse, Action: ActionCreate, ID: "h1", After: House{Base: Base{ID: "h1"}, AddressID: "a9"}},
		{Entity: EntityPhoneCall, Action: ActionUpdate, ID: "c1", After: PhoneCall{Base: Base{ID: "c1"}, PhoneNumberID: "n1"}},
		{Entity: EntityRecall, Action: ActionCreate, ID: "u1|h1", After: Recall{UserID: "u1", HouseID: "h1"}},
		{Entity: EntityHouse, Action: ActionDelete, ID: "h2", Before: House{AddressID: "a9"}},
	}
	res, err := NewDanglingReferenceRule().Evaluate(context.Background(), view, changes)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	got := map[string]EntityType{}
	for _, v := range res.Violations {
		if v.Severity != SeverityLog {
			t.Fatalf("expected log severity, got %+v", v)
		}
		got[v.EntityID] = v.Entity
	}
	want := map[string]EntityType{"h1": EntityHouse, "c1": EntityPhoneCall, "u1|h1": EntityRecall}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for id, kind := range want {
		if got[id] != kind {
			t.Fatalf("expected %s for %s, got %v", kind, id, got)
		}
	}
}

func TestDefaultRulesEngineNeverBlocks(t *testing.T) {
	engine := NewDefaultRulesEngine()
	if len(engine.Rules()) != 2 {
		t.Fatalf("expected two built-in rules, got %d", len(engine.Rules()))
	}
	view := ruleView(t, SyncBatch{Territories: []Territory{
		{Base: Base{ID: "t1"}, Number: 1},
		{Base: Base{ID: "t2"}, Number: 1},
	}})
	res, err := engine.Evaluate(context.Background(), view, []Change{
		{Entity: EntityTerritory, Action: ActionCreate, ID: "t2", After: Territory{Base: Base{ID: "t2"}}},
		{Entity: EntityVisit, Action: ActionCreate, ID: "v1", After: Visit{HouseID: "none"}},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.HasBlocking() || len(res.Violations) != 2 {
		t.Fatalf("expected two non-blocking violations, got %+v", res.Violations)
	}
}
