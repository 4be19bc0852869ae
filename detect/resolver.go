package detect

import (
	"sort"
	"strings"

	"meptrack-api/domain"
)

// rosterIndex resolves roster members by external id, loaded once per cycle so
// detection never issues per-member store reads. When the store holds several
// rows for one external id (a storage defect the cleanup pass repairs), the
// row with the lowest internal id is canonical.
type rosterIndex struct {
	byMepID map[string]domain.Member
}

func newRosterIndex(roster []domain.Member) *rosterIndex {
	idx := &rosterIndex{byMepID: make(map[string]domain.Member, len(roster))}
	for _, m := range roster {
		if m.MepID == "" {
			continue
		}
		if existing, ok := idx.byMepID[m.MepID]; ok && existing.InternalID <= m.InternalID {
			continue
		}
		idx.byMepID[m.MepID] = m
	}
	return idx
}

// Resolve looks up a member by external id. Exact equality only; fuzzy
// matching must never participate in change detection.
func (idx *rosterIndex) Resolve(mepID string) (domain.Member, bool) {
	m, ok := idx.byMepID[mepID]
	return m, ok
}

// Canonical returns one member per external id, ordered by internal id so
// detection output is deterministic.
func (idx *rosterIndex) Canonical() []domain.Member {
	members := make([]domain.Member, 0, len(idx.byMepID))
	for _, m := range idx.byMepID {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].InternalID < members[j].InternalID })
	return members
}

// NameMatcher is the fuzzy-lookup capability used by profile enrichment. It is
// a separate interface from the exact resolver above on purpose: nothing in the
// detection path accepts one, so a name-based guess can never end up in the
// audit trail.
type NameMatcher interface {
	MatchName(name string) (domain.Member, bool)
}

// NewNameMatcher builds a matcher over a roster snapshot using normalized name
// equality, tolerating a swapped "Last First" ordering.
func NewNameMatcher(roster []domain.Member) NameMatcher {
	m := nameMatcher{byName: make(map[string]domain.Member, len(roster))}
	for _, member := range roster {
		key := normalizeName(member.Name)
		if key == "" {
			continue
		}
		if existing, ok := m.byName[key]; ok && existing.InternalID <= member.InternalID {
			continue
		}
		m.byName[key] = member
	}
	return m
}

type nameMatcher struct {
	byName map[string]domain.Member
}

func (m nameMatcher) MatchName(name string) (domain.Member, bool) {
	if member, ok := m.byName[normalizeName(name)]; ok {
		return member, true
	}
	// Scrapes sometimes report "DOE Jane" for a stored "Jane Doe".
	fields := strings.Fields(name)
	if len(fields) < 2 {
		return domain.Member{}, false
	}
	swapped := append(fields[1:], fields[0])
	member, ok := m.byName[normalizeName(strings.Join(swapped, " "))]
	return member, ok
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
