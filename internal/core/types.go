package core

import "territorycore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	Territory          = domain.Territory
	Address            = domain.Address
	House              = domain.House
	Visit              = domain.Visit
	Token              = domain.Token
	TokenTerritory     = domain.TokenTerritory
	PhoneTerritory     = domain.PhoneTerritory
	PhoneNumber        = domain.PhoneNumber
	PhoneCall          = domain.PhoneCall
	UserToken          = domain.UserToken
	Recall             = domain.Recall
	SyncBatch          = domain.SyncBatch
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
)

const (
	EntityTerritory      = domain.EntityTerritory
	EntityAddress        = domain.EntityAddress
	EntityHouse          = domain.EntityHouse
	EntityVisit          = domain.EntityVisit
	EntityToken          = domain.EntityToken
	EntityTokenTerritory = domain.EntityTokenTerritory
	EntityPhoneTerritory = domain.EntityPhoneTerritory
	EntityPhoneNumber    = domain.EntityPhoneNumber
	EntityPhoneCall      = domain.EntityPhoneCall
	EntityUserToken      = domain.EntityUserToken
	EntityRecall         = domain.EntityRecall
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
