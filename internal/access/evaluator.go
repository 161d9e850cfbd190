package access

import "territorycore/pkg/domain"

// Subject is the part of a record the evaluator looks at.
type Subject struct {
	Kind domain.EntityType
	// TerritoryID is the territory the record resolves to; empty when the
	// ancestor chain is broken.
	TerritoryID string
	// AuthorID is set for visits and phone calls.
	AuthorID string
}

// Evaluate returns the access level session holds on subject. The first
// matching rule wins: admin credentials, then authorship, then a moderator
// token on the territory. Anything unresolved is AccessUser.
func Evaluate(subject Subject, session Session, links *Links) domain.AccessLevel {
	if session == nil {
		return domain.AccessUser
	}
	if session.HasAdminCredentials() {
		return domain.AccessAdmin
	}
	if authored(subject.Kind) && subject.AuthorID != "" {
		if uid, ok := session.CurrentUserID(); ok && uid == subject.AuthorID {
			return domain.AccessModerator
		}
	}
	if subject.TerritoryID != "" && links.Moderated(subject.TerritoryID) {
		return domain.AccessModerator
	}
	return domain.AccessUser
}

func authored(kind domain.EntityType) bool {
	return kind == domain.EntityVisit || kind == domain.EntityPhoneCall
}
