package aggregate

import (
	"territorycore/internal/access"
	"territorycore/pkg/domain"
)

// Index is a snapshot plus the lookup tables every pipeline joins through.
// Build it once per pass; it is safe for concurrent readers.
type Index struct {
	snap     Snapshot
	session  access.Session
	links    *access.Links
	userID   string
	hasUser  bool
	imageURL func(string) string

	territories map[string]domain.Territory
	addresses   map[string]domain.Address
	houses      map[string]domain.House
	tokens      map[string]domain.Token

	addressesByTerritory map[string][]domain.Address
	housesByAddress      map[string][]domain.House
	visitsByHouse        map[string][]domain.Visit
	territoriesByToken   map[string][]string
	userTokensByToken    map[string][]domain.UserToken

	phoneTerritories   map[string]domain.PhoneTerritory
	phoneNumbers       map[string]domain.PhoneNumber
	numbersByTerritory map[string][]domain.PhoneNumber
	callsByNumber      map[string][]domain.PhoneCall
}

// Option customises an Index.
type Option func(*Index)

// WithImageURL resolves stored image references into URLs for views.
func WithImageURL(fn func(ref string) string) Option {
	return func(ix *Index) { ix.imageURL = fn }
}

// NewIndex builds the lookup tables for snap. A nil session is anonymous.
func NewIndex(snap Snapshot, session access.Session, opts ...Option) *Index {
	if session == nil {
		session = access.Anonymous
	}
	ix := &Index{
		snap:                 snap,
		session:              session,
		links:                access.NewLinks(snap.Tokens, snap.TokenTerritories, snap.Now),
		territories:          byID(snap.Territories, func(t domain.Territory) string { return t.ID }),
		addresses:            byID(snap.Addresses, func(a domain.Address) string { return a.ID }),
		houses:               byID(snap.Houses, func(h domain.House) string { return h.ID }),
		tokens:               byID(snap.Tokens, func(t domain.Token) string { return t.ID }),
		addressesByTerritory: groupBy(snap.Addresses, func(a domain.Address) string { return a.TerritoryID }),
		housesByAddress:      groupBy(snap.Houses, func(h domain.House) string { return h.AddressID }),
		visitsByHouse:        groupBy(snap.Visits, func(v domain.Visit) string { return v.HouseID }),
		userTokensByToken:    groupBy(snap.UserTokens, func(u domain.UserToken) string { return u.TokenID }),
		phoneTerritories:     byID(snap.PhoneTerritories, func(p domain.PhoneTerritory) string { return p.ID }),
		phoneNumbers:         byID(snap.PhoneNumbers, func(p domain.PhoneNumber) string { return p.ID }),
		numbersByTerritory:   groupBy(snap.PhoneNumbers, func(p domain.PhoneNumber) string { return p.TerritoryID }),
		callsByNumber:        groupBy(snap.PhoneCalls, func(c domain.PhoneCall) string { return c.PhoneNumberID }),
		territoriesByToken:   make(map[string][]string),
	}
	seen := make(map[string]struct{}, len(snap.TokenTerritories))
	for _, row := range snap.TokenTerritories {
		if _, dup := seen[row.Key()]; dup {
			continue
		}
		seen[row.Key()] = struct{}{}
		ix.territoriesByToken[row.TokenID] = append(ix.territoriesByToken[row.TokenID], row.TerritoryID)
	}
	ix.userID, ix.hasUser = session.CurrentUserID()
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Snapshot returns the snapshot the index was built from.
func (ix *Index) Snapshot() Snapshot { return ix.snap }

func byID[T any](items []T, id func(T) string) map[string]T {
	out := make(map[string]T, len(items))
	for _, it := range items {
		out[id(it)] = it
	}
	return out
}

// groupBy keeps input order inside each group.
func groupBy[T any](items []T, key func(T) string) map[string][]T {
	out := make(map[string][]T)
	for _, it := range items {
		k := key(it)
		out[k] = append(out[k], it)
	}
	return out
}

func (ix *Index) level(kind domain.EntityType, territoryID, author string) domain.AccessLevel {
	return access.Evaluate(access.Subject{Kind: kind, TerritoryID: territoryID, AuthorID: author}, ix.session, ix.links)
}

func (ix *Index) image(ref *string) string {
	if ref == nil || *ref == "" {
		return ""
	}
	if ix.imageURL == nil {
		return *ref
	}
	return ix.imageURL(*ref)
}

func (ix *Index) isSelf(author string) bool {
	return ix.hasUser && author != "" && author == ix.userID
}

// displayName substitutes the session display name for records the session
// user authored.
func (ix *Index) displayName(author, stored string) string {
	if !ix.isSelf(author) {
		return stored
	}
	if name, ok := ix.session.CurrentUserDisplayName(); ok {
		return name
	}
	return stored
}

// houseChain resolves a house up to its territory.
func (ix *Index) houseChain(houseID string) (domain.House, domain.Address, domain.Territory, bool) {
	h, ok := ix.houses[houseID]
	if !ok {
		return domain.House{}, domain.Address{}, domain.Territory{}, false
	}
	a, ok := ix.addresses[h.AddressID]
	if !ok {
		return domain.House{}, domain.Address{}, domain.Territory{}, false
	}
	t, ok := ix.territories[a.TerritoryID]
	if !ok {
		return domain.House{}, domain.Address{}, domain.Territory{}, false
	}
	return h, a, t, true
}

// numberChain resolves a phone number up to its phone territory.
func (ix *Index) numberChain(numberID string) (domain.PhoneNumber, domain.PhoneTerritory, bool) {
	n, ok := ix.phoneNumbers[numberID]
	if !ok {
		return domain.PhoneNumber{}, domain.PhoneTerritory{}, false
	}
	pt, ok := ix.phoneTerritories[n.TerritoryID]
	if !ok {
		return domain.PhoneNumber{}, domain.PhoneTerritory{}, false
	}
	return n, pt, true
}
