package aggregate

import (
	"sort"

	"territorycore/pkg/domain"
)

// PhoneTerritoryView is one row of the phone campaign tree.
type PhoneTerritoryView struct {
	Territory   domain.PhoneTerritory
	NumberCount int
	CallCount   int
	AccessLevel domain.AccessLevel
	ImageURL    string
}

// PhoneNumberView is a phone number with its most recent call, if any.
type PhoneNumberView struct {
	Number      domain.PhoneNumber
	LastCall    *PhoneCallView
	AccessLevel domain.AccessLevel
}

// PhoneCallView is a call as shown to the session.
type PhoneCallView struct {
	Call        domain.PhoneCall
	AccessLevel domain.AccessLevel
}

// PhoneTree lists every phone territory ordered by number.
func PhoneTree(ix *Index) []PhoneTerritoryView {
	out := make([]PhoneTerritoryView, 0, len(ix.snap.PhoneTerritories))
	for _, pt := range ix.snap.PhoneTerritories {
		numbers := ix.numbersByTerritory[pt.ID]
		calls := 0
		for _, n := range numbers {
			calls += len(ix.callsByNumber[n.ID])
		}
		out = append(out, PhoneTerritoryView{
			Territory:   pt,
			NumberCount: len(numbers),
			CallCount:   calls,
			AccessLevel: ix.level(domain.EntityPhoneTerritory, pt.ID, ""),
			ImageURL:    ix.image(pt.ImageRef),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Territory.Number < out[j].Territory.Number
	})
	return out
}

// PhoneNumbersOf lists the numbers of a phone territory in natural order.
func PhoneNumbersOf(ix *Index, territoryID string) []PhoneNumberView {
	if _, ok := ix.phoneTerritories[territoryID]; !ok {
		return []PhoneNumberView{}
	}
	numbers := ix.numbersByTerritory[territoryID]
	out := make([]PhoneNumberView, 0, len(numbers))
	for _, n := range numbers {
		nv := PhoneNumberView{
			Number:      n,
			AccessLevel: ix.level(domain.EntityPhoneNumber, territoryID, ""),
		}
		if last, ok := latestCall(ix.callsByNumber[n.ID]); ok {
			cv := ix.callView(last, territoryID)
			nv.LastCall = &cv
		}
		out = append(out, nv)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := naturalCompare(out[i].Number.Number, out[j].Number.Number); c != 0 {
			return c < 0
		}
		return out[i].Number.ID < out[j].Number.ID
	})
	return out
}

// PhoneCallsOf lists the calls to a number, newest first.
func PhoneCallsOf(ix *Index, numberID string) []PhoneCallView {
	_, pt, ok := ix.numberChain(numberID)
	if !ok {
		return []PhoneCallView{}
	}
	calls := ix.callsByNumber[numberID]
	out := make([]PhoneCallView, 0, len(calls))
	for _, c := range calls {
		out = append(out, ix.callView(c, pt.ID))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return newerFirst(out[i].Call.Date, out[j].Call.Date, out[i].Call.ID, out[j].Call.ID)
	})
	return out
}

func (ix *Index) callView(c domain.PhoneCall, territoryID string) PhoneCallView {
	c.UserName = ix.displayName(c.User, c.UserName)
	return PhoneCallView{
		Call:        c,
		AccessLevel: ix.level(domain.EntityPhoneCall, territoryID, c.User),
	}
}

func latestCall(calls []domain.PhoneCall) (domain.PhoneCall, bool) {
	if len(calls) == 0 {
		return domain.PhoneCall{}, false
	}
	best := calls[0]
	for _, c := range calls[1:] {
		if c.Date > best.Date {
			best = c
		}
	}
	return best, true
}
