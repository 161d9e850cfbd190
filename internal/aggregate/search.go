package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"territorycore/pkg/domain"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Mode selects which hierarchy a search scans.
type Mode int

const (
	ModeTerritories Mode = iota
	ModePhoneTerritories
)

func (m Mode) String() string {
	if m == ModePhoneTerritories {
		return "phone"
	}
	return "territories"
}

// ParseMode accepts "territories" or "phone".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "territories", "territory":
		return ModeTerritories, nil
	case "phone", "phones", "phone_territories":
		return ModePhoneTerritories, nil
	default:
		return ModeTerritories, fmt.Errorf("unknown search mode %q", s)
	}
}

// ResultType names the collection a hit came from.
type ResultType string

const (
	ResultTerritory      ResultType = "territory"
	ResultAddress        ResultType = "address"
	ResultHouse          ResultType = "house"
	ResultVisit          ResultType = "visit"
	ResultPhoneTerritory ResultType = "phone_territory"
	ResultPhoneNumber    ResultType = "phone_number"
	ResultPhoneCall      ResultType = "phone_call"
)

// SearchResult is one hit with its resolved ancestors. Fields below the hit's
// own level are nil.
type SearchResult struct {
	Type           ResultType
	Territory      *domain.Territory
	Address        *domain.Address
	House          *domain.House
	Visit          *VisitView
	PhoneTerritory *domain.PhoneTerritory
	PhoneNumber    *domain.PhoneNumber
	PhoneCall      *PhoneCallView
	AccessLevel    domain.AccessLevel
}

// checkEvery is how many records a scan visits between context checks.
const checkEvery = 256

type scan func(ctx context.Context, ix *Index, q string) ([]SearchResult, error)

// Search runs every scan of mode concurrently over ix and concatenates the
// hits in scan order: territories, addresses, houses, visits (or phone
// territories, numbers, calls). Hits are not deduplicated across scans.
// Matching is a substring test ignoring case and diacritics; a blank query
// matches nothing.
func Search(ctx context.Context, ix *Index, query string, mode Mode) ([]SearchResult, error) {
	q := Fold(strings.TrimSpace(query))
	if q == "" {
		return []SearchResult{}, nil
	}
	scans := []scan{scanTerritories, scanAddresses, scanHouses, scanVisits}
	if mode == ModePhoneTerritories {
		scans = []scan{scanPhoneTerritories, scanPhoneNumbers, scanPhoneCalls}
	}
	parts := make([][]SearchResult, len(scans))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range scans {
		g.Go(func() error {
			hits, err := s(gctx, ix, q)
			if err != nil {
				return err
			}
			parts[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := []SearchResult{}
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

// Fold lowercases s and strips combining marks, so "Hialéah" folds to "hialeah".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return cases.Fold().String(stripped)
}

func matches(q string, fields ...string) bool {
	for _, f := range fields {
		if f != "" && strings.Contains(Fold(f), q) {
			return true
		}
	}
	return false
}

func checkCtx(ctx context.Context, i int) error {
	if i%checkEvery == 0 {
		return ctx.Err()
	}
	return nil
}

func scanTerritories(ctx context.Context, ix *Index, q string) ([]SearchResult, error) {
	ordered := make([]domain.Territory, len(ix.snap.Territories))
	copy(ordered, ix.snap.Territories)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })
	var out []SearchResult
	for i, t := range ordered {
		if err := checkCtx(ctx, i); err != nil {
			return nil, err
		}
		if !matches(q, strconv.Itoa(int(t.Number)), t.Description) {
			continue
		}
		out = append(out, SearchResult{
			Type:        ResultTerritory,
			Territory:   &t,
			AccessLevel: ix.level(domain.EntityTerritory, t.ID, ""),
		})
	}
	return out, nil
}

func scanAddresses(ctx context.Context, ix *Index, q string) ([]SearchResult, error) {
	var out []SearchResult
	for i, a := range ix.snap.Addresses {
		if err := checkCtx(ctx, i); err != nil {
			return nil, err
		}
		if !matches(q, a.Address) {
			continue
		}
		t, ok := ix.territories[a.TerritoryID]
		if !ok {
			continue
		}
		out = append(out, SearchResult{
			Type:        ResultAddress,
			Territory:   &t,
			Address:     &a,
			AccessLevel: ix.level(domain.EntityAddress, t.ID, ""),
		})
	}
	return out, nil
}

func scanHouses(ctx context.Context, ix *Index, q string) ([]SearchResult, error) {
	var out []SearchResult
	for i, h := range ix.snap.Houses {
		if err := checkCtx(ctx, i); err != nil {
			return nil, err
		}
		if !matches(q, h.Number) {
			continue
		}
		_, a, t, ok := ix.houseChain(h.ID)
		if !ok {
			continue
		}
		out = append(out, SearchResult{
			Type:        ResultHouse,
			Territory:   &t,
			Address:     &a,
			House:       &h,
			AccessLevel: ix.level(domain.EntityHouse, t.ID, ""),
		})
	}
	return out, nil
}

func scanVisits(ctx context.Context, ix *Index, q string) ([]SearchResult, error) {
	var out []SearchResult
	for i, v := range ix.snap.Visits {
		if err := checkCtx(ctx, i); err != nil {
			return nil, err
		}
		if !matches(q, v.Notes, ix.displayName(v.User, v.UserName)) {
			continue
		}
		h, a, t, ok := ix.houseChain(v.HouseID)
		if !ok {
			continue
		}
		vv := ix.visitView(v, t.ID)
		out = append(out, SearchResult{
			Type:        ResultVisit,
			Territory:   &t,
			Address:     &a,
			House:       &h,
			Visit:       &vv,
			AccessLevel: vv.AccessLevel,
		})
	}
	return out, nil
}

func scanPhoneTerritories(ctx context.Context, ix *Index, q string) ([]SearchResult, error) {
	ordered := make([]domain.PhoneTerritory, len(ix.snap.PhoneTerritories))
	copy(ordered, ix.snap.PhoneTerritories)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })
	var out []SearchResult
	for i, pt := range ordered {
		if err := checkCtx(ctx, i); err != nil {
			return nil, err
		}
		if !matches(q, strconv.Itoa(int(pt.Number)), pt.Description) {
			continue
		}
		out = append(out, SearchResult{
			Type:           ResultPhoneTerritory,
			PhoneTerritory: &pt,
			AccessLevel:    ix.level(domain.EntityPhoneTerritory, pt.ID, ""),
		})
	}
	return out, nil
}

func scanPhoneNumbers(ctx context.Context, ix *Index, q string) ([]SearchResult, error) {
	var out []SearchResult
	for i, n := range ix.snap.PhoneNumbers {
		if err := checkCtx(ctx, i); err != nil {
			return nil, err
		}
		label := ""
		if n.House != nil {
			label = *n.House
		}
		if !matches(q, n.Number, label) {
			continue
		}
		pt, ok := ix.phoneTerritories[n.TerritoryID]
		if !ok {
			continue
		}
		out = append(out, SearchResult{
			Type:           ResultPhoneNumber,
			PhoneTerritory: &pt,
			PhoneNumber:    &n,
			AccessLevel:    ix.level(domain.EntityPhoneNumber, pt.ID, ""),
		})
	}
	return out, nil
}

func scanPhoneCalls(ctx context.Context, ix *Index, q string) ([]SearchResult, error) {
	var out []SearchResult
	for i, c := range ix.snap.PhoneCalls {
		if err := checkCtx(ctx, i); err != nil {
			return nil, err
		}
		if !matches(q, c.Notes, ix.displayName(c.User, c.UserName)) {
			continue
		}
		n, pt, ok := ix.numberChain(c.PhoneNumberID)
		if !ok {
			continue
		}
		cv := ix.callView(c, pt.ID)
		out = append(out, SearchResult{
			Type:           ResultPhoneCall,
			PhoneTerritory: &pt,
			PhoneNumber:    &n,
			PhoneCall:      &cv,
			AccessLevel:    cv.AccessLevel,
		})
	}
	return out, nil
}
