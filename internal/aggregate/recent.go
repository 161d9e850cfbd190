package aggregate

import (
	"sort"
	"time"

	"territorycore/pkg/domain"
)

// DefaultRecentWindow is how far back recent activity reaches.
const DefaultRecentWindow = 14 * 24 * time.Hour

// RecentTerritory is a territory with its newest visit inside the window.
type RecentTerritory struct {
	Territory domain.Territory
	LastVisit VisitView
}

// RecentPhoneTerritory is a phone territory with its newest call inside the window.
type RecentPhoneTerritory struct {
	Territory domain.PhoneTerritory
	LastCall  PhoneCallView
}

func cutoff(now time.Time, window time.Duration) int64 {
	if window <= 0 {
		window = DefaultRecentWindow
	}
	return now.Add(-window).UnixMilli()
}

// Recent lists territories visited within window of the snapshot clock, one
// entry per territory carrying its newest visit, newest first. Visits are
// ordered by date descending then id before deduplication, so the kept visit
// is deterministic.
func Recent(ix *Index, window time.Duration) []RecentTerritory {
	from := cutoff(ix.snap.Now, window)
	type hit struct {
		visit     domain.Visit
		territory domain.Territory
	}
	var hits []hit
	for _, v := range ix.snap.Visits {
		if v.Date < from {
			continue
		}
		_, _, t, ok := ix.houseChain(v.HouseID)
		if !ok {
			continue
		}
		hits = append(hits, hit{visit: v, territory: t})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return newerFirst(hits[i].visit.Date, hits[j].visit.Date, hits[i].visit.ID, hits[j].visit.ID)
	})
	out := make([]RecentTerritory, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		if _, dup := seen[h.territory.ID]; dup {
			continue
		}
		seen[h.territory.ID] = struct{}{}
		out = append(out, RecentTerritory{
			Territory: h.territory,
			LastVisit: ix.visitView(h.visit, h.territory.ID),
		})
	}
	return out
}

// RecentPhone is Recent for the phone campaign.
func RecentPhone(ix *Index, window time.Duration) []RecentPhoneTerritory {
	from := cutoff(ix.snap.Now, window)
	type hit struct {
		call      domain.PhoneCall
		territory domain.PhoneTerritory
	}
	var hits []hit
	for _, c := range ix.snap.PhoneCalls {
		if c.Date < from {
			continue
		}
		_, pt, ok := ix.numberChain(c.PhoneNumberID)
		if !ok {
			continue
		}
		hits = append(hits, hit{call: c, territory: pt})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return newerFirst(hits[i].call.Date, hits[j].call.Date, hits[i].call.ID, hits[j].call.ID)
	})
	out := make([]RecentPhoneTerritory, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		if _, dup := seen[h.territory.ID]; dup {
			continue
		}
		seen[h.territory.ID] = struct{}{}
		out = append(out, RecentPhoneTerritory{
			Territory: h.territory,
			LastCall:  ix.callView(h.call, h.territory.ID),
		})
	}
	return out
}
