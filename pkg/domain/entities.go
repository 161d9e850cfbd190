// Package domain defines the persistent field-tracking entities, value types,
// and rule evaluation primitives used by territorycore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records, change
// notifications and persistence buckets.
const (
	// EntityTerritory identifies a territory record.
	EntityTerritory EntityType = "territory"
	// EntityAddress identifies an address inside a territory.
	EntityAddress EntityType = "address"
	// EntityHouse identifies a house at an address.
	EntityHouse EntityType = "house"
	// EntityVisit identifies a logged visit attempt at a house.
	EntityVisit EntityType = "visit"
	// EntityToken identifies an access key.
	EntityToken EntityType = "token"
	// EntityTokenTerritory identifies a key to territory link row.
	EntityTokenTerritory EntityType = "token_territory"
	// EntityPhoneTerritory identifies a phone campaign territory.
	EntityPhoneTerritory EntityType = "phone_territory"
	// EntityPhoneNumber identifies a phone number inside a phone territory.
	EntityPhoneNumber EntityType = "phone_number"
	// EntityPhoneCall identifies a logged call to a phone number.
	EntityPhoneCall EntityType = "phone_call"
	// EntityUserToken identifies a user holding a key.
	EntityUserToken EntityType = "user_token"
	// EntityRecall identifies a per-user follow-up marker on a house.
	EntityRecall EntityType = "recall"
)

// AllEntityTypes lists every collection held by the store in bucket order.
var AllEntityTypes = []EntityType{
	EntityTerritory,
	EntityAddress,
	EntityHouse,
	EntityVisit,
	EntityToken,
	EntityTokenTerritory,
	EntityPhoneTerritory,
	EntityPhoneNumber,
	EntityPhoneCall,
	EntityUserToken,
	EntityRecall,
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for id-addressed domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Record exposes the embedded Base to generic persistence helpers.
func (b *Base) Record() *Base { return b }

// Territory is a numbered geographic area worked by a congregation.
type Territory struct {
	Base
	CongregationID string  `json:"congregation_id"`
	Number         int32   `json:"number"`
	Description    string  `json:"description"`
	ImageRef       *string `json:"image_ref,omitempty"`
}

// Address is a street address within a territory.
type Address struct {
	Base
	TerritoryID string `json:"territory_id"`
	Address     string `json:"address"`
	Floors      *int32 `json:"floors,omitempty"`
}

// House is a single dwelling at an address.
type House struct {
	Base
	AddressID string  `json:"address_id"`
	Number    string  `json:"number"`
	Floor     *string `json:"floor,omitempty"`
}

// Visit records one attempt at a house. Date is epoch milliseconds.
type Visit struct {
	Base
	HouseID  string `json:"house_id"`
	Date     int64  `json:"date"`
	Symbol   string `json:"symbol"`
	Notes    string `json:"notes"`
	User     string `json:"user"`
	UserName string `json:"user_name"`
}

// Token is an access key that grants a set of territories. Expires is epoch
// milliseconds; zero means the key never expires.
type Token struct {
	Base
	Name         string  `json:"name"`
	Owner        string  `json:"owner"`
	Congregation string  `json:"congregation"`
	Moderator    bool    `json:"moderator"`
	Expires      int64   `json:"expires"`
	User         *string `json:"user,omitempty"`
}

// ExpiredAt reports whether the token is expired at the given instant.
func (t Token) ExpiredAt(now time.Time) bool {
	return t.Expires > 0 && t.Expires <= now.UnixMilli()
}

// TokenTerritory links a token to a territory. The pair is its identity.
type TokenTerritory struct {
	TokenID     string `json:"token_id"`
	TerritoryID string `json:"territory_id"`
}

// Key returns the composite identity of the link.
func (tt TokenTerritory) Key() string { return tt.TokenID + "|" + tt.TerritoryID }

// PhoneTerritory is the phone campaign counterpart of a Territory.
type PhoneTerritory struct {
	Base
	CongregationID string  `json:"congregation_id"`
	Number         int32   `json:"number"`
	Description    string  `json:"description"`
	ImageRef       *string `json:"image_ref,omitempty"`
}

// PhoneNumber is a number to call inside a phone territory.
type PhoneNumber struct {
	Base
	CongregationID string  `json:"congregation_id"`
	Number         string  `json:"number"`
	TerritoryID    string  `json:"territory_id"`
	House          *string `json:"house,omitempty"`
}

// PhoneCall records one call attempt. Date is epoch milliseconds.
type PhoneCall struct {
	Base
	PhoneNumberID string `json:"phone_number_id"`
	Date          int64  `json:"date"`
	Notes         string `json:"notes"`
	User          string `json:"user"`
	UserName      string `json:"user_name"`
}

// UserToken records a user that holds a token.
type UserToken struct {
	Base
	TokenID string `json:"token_id"`
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Blocked bool   `json:"blocked"`
}

// Recall flags a house for follow-up by a user. (UserID, HouseID) is its identity.
type Recall struct {
	UserID    string    `json:"user_id"`
	HouseID   string    `json:"house_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the composite identity of the recall.
func (r Recall) Key() string { return r.UserID + "|" + r.HouseID }

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	ID     string
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
