package core

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
// None of the built-in rules block a commit: synced data is accepted as is
// and inconsistencies are reported.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewTerritoryNumberRule())
	engine.Register(NewDanglingReferenceRule())
	return engine
}
