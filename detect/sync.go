package detect

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"meptrack-api/domain"
)

// buildSyncBatches partitions observed records into an update batch (external
// id already stored) and an insert batch (new member). Updates refresh every
// attribute and unconditionally force status back to active: an observed
// record always means "currently present", overriding any prior inactive
// status. Malformed records are skipped, never written.
func buildSyncBatches(idx *rosterIndex, observed []domain.ObservedRecord, now time.Time) (updates []domain.MemberUpdate, inserts []domain.Member, skipped int) {
	active := domain.StatusActive
	for _, obs := range observed {
		if err := obs.Validate(); err != nil {
			skipped++
			continue
		}
		member, found := idx.Resolve(obs.MepID)
		if !found {
			inserts = append(inserts, domain.Member{
				MepID:         obs.MepID,
				Name:          obs.Name,
				Country:       obs.Country,
				NationalParty: obs.NationalParty,
				Group:         obs.Group,
				GroupShort:    obs.GroupShort,
				PhotoURL:      obs.PhotoURL,
				ProfileURL:    obs.ProfileURL,
				Status:        active,
				LastUpdated:   now,
			})
			continue
		}
		u := domain.NewUpdate(member.InternalID, now)
		u.Name = &obs.Name
		u.Country = &obs.Country
		u.NationalParty = &obs.NationalParty
		u.Group = &obs.Group
		u.GroupShort = &obs.GroupShort
		u.PhotoURL = &obs.PhotoURL
		u.ProfileURL = &obs.ProfileURL
		u.Status = &active
		updates = append(updates, u)
	}
	return updates, inserts, skipped
}

// runSync merges an observed roster into the store against an already-loaded
// snapshot. Batch failures are tolerated, not retried: stale rows are healed
// by the next successful sync, and missing inserts simply reappear next run.
func (e *Engine) runSync(ctx context.Context, idx *rosterIndex, observed []domain.ObservedRecord, now time.Time) domain.SyncStats {
	updates, inserts, skipped := buildSyncBatches(idx, observed, now)
	stats := domain.SyncStats{
		Received:     len(observed),
		Skipped:      skipped,
		RosterBefore: len(idx.byMepID),
	}

	if len(updates) > 0 {
		if err := e.store.BulkUpdateMembers(ctx, updates); err != nil {
			stats.UpdateFailed = true
			e.log.WithFields(log.Fields{"count": len(updates), "error": err.Error()}).
				Error("roster sync update batch failed")
		} else {
			stats.Updated = len(updates)
		}
	}
	if len(inserts) > 0 {
		if err := e.store.BulkInsertMembers(ctx, inserts); err != nil {
			stats.InsertFailed = true
			e.log.WithFields(log.Fields{"count": len(inserts), "error": err.Error()}).
				Error("roster sync insert batch failed")
		} else {
			stats.Inserted = len(inserts)
		}
	}
	return stats
}

// SyncRoster merges a scraped snapshot into the roster store without running
// change detection. The scraper calls this between detection cycles.
func (e *Engine) SyncRoster(ctx context.Context, observed []domain.ObservedRecord) (domain.SyncStats, error) {
	roster, err := e.store.ListMembers(ctx, nil)
	if err != nil {
		return domain.SyncStats{}, err
	}
	stats := e.runSync(ctx, newRosterIndex(roster), observed, time.Now().UTC())
	stats.RosterBefore = len(roster)
	return stats, nil
}
