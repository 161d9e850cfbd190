package domain

// SyncBatch carries records pulled from the remote service. Records are
// upserted verbatim. Deleted lists identities removed remotely; composite
// rows use their Key() form.
type SyncBatch struct {
	Territories      []Territory      `json:"territories,omitempty"`
	Addresses        []Address        `json:"addresses,omitempty"`
	Houses           []House          `json:"houses,omitempty"`
	Visits           []Visit          `json:"visits,omitempty"`
	Tokens           []Token          `json:"tokens,omitempty"`
	TokenTerritories []TokenTerritory `json:"token_territories,omitempty"`
	PhoneTerritories []PhoneTerritory `json:"phone_territories,omitempty"`
	PhoneNumbers     []PhoneNumber    `json:"phone_numbers,omitempty"`
	PhoneCalls       []PhoneCall      `json:"phone_calls,omitempty"`
	UserTokens       []UserToken      `json:"user_tokens,omitempty"`
	Recalls          []Recall         `json:"recalls,omitempty"`

	Deleted map[EntityType][]string `json:"deleted,omitempty"`
}

// Empty reports whether the batch carries no upserts and no deletions.
func (b SyncBatch) Empty() bool {
	if len(b.Territories)+len(b.Addresses)+len(b.Houses)+len(b.Visits)+
		len(b.Tokens)+len(b.TokenTerritories)+len(b.PhoneTerritories)+
		len(b.PhoneNumbers)+len(b.PhoneCalls)+len(b.UserTokens)+len(b.Recalls) > 0 {
		return false
	}
	for _, ids := range b.Deleted {
		if len(ids) > 0 {
			return false
		}
	}
	return true
}
