package access

import (
	"sort"
	"time"

	"territorycore/pkg/domain"
)

// Links indexes which tokens grant each territory. It is built once per
// aggregation pass and is read-only afterwards.
type Links struct {
	byTerritory map[string][]domain.Token
}

// NewLinks resolves link rows against tokens. Rows naming a missing token are
// dropped, as are tokens expired at now. Duplicate rows collapse to one token.
// Tokens per territory are ordered by id.
func NewLinks(tokens []domain.Token, rows []domain.TokenTerritory, now time.Time) *Links {
	byID := make(map[string]domain.Token, len(tokens))
	for _, t := range tokens {
		if t.ExpiredAt(now) {
			continue
		}
		byID[t.ID] = t
	}
	seen := make(map[string]struct{}, len(rows))
	l := &Links{byTerritory: make(map[string][]domain.Token)}
	for _, row := range rows {
		tok, ok := byID[row.TokenID]
		if !ok {
			continue
		}
		if _, dup := seen[row.Key()]; dup {
			continue
		}
		seen[row.Key()] = struct{}{}
		l.byTerritory[row.TerritoryID] = append(l.byTerritory[row.TerritoryID], tok)
	}
	for _, toks := range l.byTerritory {
		sort.Slice(toks, func(i, j int) bool { return toks[i].ID < toks[j].ID })
	}
	return l
}

// Tokens returns the tokens linked to a territory. The slice is shared and
// must not be modified.
func (l *Links) Tokens(territoryID string) []domain.Token {
	if l == nil {
		return nil
	}
	return l.byTerritory[territoryID]
}

// Moderated reports whether any linked token grants moderation.
func (l *Links) Moderated(territoryID string) bool {
	for _, t := range l.Tokens(territoryID) {
		if t.Moderator {
			return true
		}
	}
	return false
}
