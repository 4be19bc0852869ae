package detect

import (
	"time"

	log "github.com/sirupsen/logrus"

	"meptrack-api/domain"
)

const (
	modeSnapshot  = "snapshot"
	modeTimestamp = "timestamp"

	// scrapeTolerance absorbs clock skew and per-record write latency within
	// one scrape batch when falling back to timestamp-based detection.
	scrapeTolerance = 5 * time.Minute
)

// join is a detected arrival. Existing is nil for a brand-new member and set
// for a returning one whose stored status must flip back to active.
type join struct {
	Observed domain.ObservedRecord
	Existing *domain.Member
}

// groupChange is a detected switch of political group for an active member.
type groupChange struct {
	Member   domain.Member
	Observed domain.ObservedRecord
}

// diff is the classified outcome of comparing stored state against an
// observation. It carries everything the reconciler needs so no store reads
// happen after this point.
type diff struct {
	mode         string
	joins        []join
	leaves       []domain.Member
	groupChanges []groupChange
	skipped      int
}

// diffSnapshot classifies every observed record against the roster snapshot
// (Mode A). The observed set is ground truth for who currently holds a seat:
// unmatched records are joins, matched-but-inactive members are returning
// joins, active members with a different group short code changed groups, and
// active members absent from the observation left. Joins are evaluated before
// leaves; only unmatched members can become leaves.
func diffSnapshot(idx *rosterIndex, observed []domain.ObservedRecord, logger *log.Logger) diff {
	d := diff{mode: modeSnapshot}
	present := make(map[string]struct{}, len(observed))
	classified := make(map[string]struct{}, len(observed))

	for _, obs := range observed {
		if obs.MepID != "" {
			// A malformed record still proves the member is present; it must
			// not produce a join, but it must not produce a false leave either.
			present[obs.MepID] = struct{}{}
		}
		if err := obs.Validate(); err != nil {
			d.skipped++
			if logger != nil {
				logger.WithFields(log.Fields{"mep_id": obs.MepID, "error": err.Error()}).
					Warn("skipping malformed observed record")
			}
			continue
		}
		if _, dup := classified[obs.MepID]; dup {
			continue
		}
		classified[obs.MepID] = struct{}{}

		member, found := idx.Resolve(obs.MepID)
		switch {
		case !found:
			d.joins = append(d.joins, join{Observed: obs})
		case member.Status == domain.StatusInactive:
			returning := member
			d.joins = append(d.joins, join{Observed: obs, Existing: &returning})
		case member.GroupShort != obs.GroupShort:
			// Short codes are the canonical group identity; long-form names
			// vary between ingestion sources and are never compared.
			d.groupChanges = append(d.groupChanges, groupChange{Member: member, Observed: obs})
		}
	}

	for _, member := range idx.Canonical() {
		if member.Status != domain.StatusActive {
			continue
		}
		if _, ok := present[member.MepID]; ok {
			continue
		}
		d.leaves = append(d.leaves, member)
	}
	return d
}

// diffTimestamps is the degraded fallback (Mode B) used when no observation is
// available. The most recent last_updated across the roster approximates when
// the last scrape ran; active members not refreshed within the tolerance
// window below that point are classified as departed. This mode cannot detect
// joins or group changes.
func diffTimestamps(roster []domain.Member, idx *rosterIndex, tolerance time.Duration) diff {
	d := diff{mode: modeTimestamp}
	if len(roster) == 0 {
		return d
	}

	var mostRecent time.Time
	for _, m := range roster {
		if m.LastUpdated.After(mostRecent) {
			mostRecent = m.LastUpdated
		}
	}
	threshold := mostRecent.Add(-tolerance)

	for _, member := range idx.Canonical() {
		if member.Status != domain.StatusActive {
			continue
		}
		// Strictly before: a member refreshed exactly at the boundary is kept.
		if member.LastUpdated.Before(threshold) {
			d.leaves = append(d.leaves, member)
		}
	}
	return d
}
