package detect

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"meptrack-api/domain"
)

// buildReconcile turns a diff into the two write batches: one combined
// change-event insert and one combined member mutation batch. Event order is
// joins, group changes, leaves, mirroring evaluation order.
func buildReconcile(d diff, now time.Time) (events []domain.ChangeEvent, updates []domain.MemberUpdate) {
	active := domain.StatusActive
	inactive := domain.StatusInactive

	for _, j := range d.joins {
		events = append(events, domain.ChangeEvent{
			MepID:      j.Observed.MepID,
			Name:       j.Observed.Name,
			Kind:       domain.ChangeJoined,
			NewValue:   j.Observed.GroupShort,
			DetectedAt: now,
		})
		if j.Existing != nil {
			u := domain.NewUpdate(j.Existing.InternalID, now)
			u.Status = &active
			updates = append(updates, u)
		}
	}
	for _, gc := range d.groupChanges {
		events = append(events, domain.ChangeEvent{
			MepID:      gc.Observed.MepID,
			Name:       gc.Observed.Name,
			Kind:       domain.ChangeGroupChange,
			OldValue:   gc.Member.GroupShort,
			NewValue:   gc.Observed.GroupShort,
			DetectedAt: now,
		})
		u := domain.NewUpdate(gc.Member.InternalID, now)
		group := gc.Observed.Group
		short := gc.Observed.GroupShort
		u.Group = &group
		u.GroupShort = &short
		updates = append(updates, u)
	}
	for _, m := range d.leaves {
		events = append(events, domain.ChangeEvent{
			MepID:      m.MepID,
			Name:       m.Name,
			Kind:       domain.ChangeLeft,
			OldValue:   m.GroupShort,
			DetectedAt: now,
		})
		u := domain.NewUpdate(m.InternalID, now)
		u.Status = &inactive
		updates = append(updates, u)
	}
	return events, updates
}

// reconcile executes the two batches. The audit-trail insert and the roster
// mutation are independent writes issued concurrently; neither waits on or
// assumes the other's success. The result lists only events the change log
// accepted, while the detected counters always reflect the full diff: a failed
// roster write leaves the store transiently inconsistent, which is reported,
// not hidden. Nothing is retried here; retries are the scheduler's concern.
func (e *Engine) reconcile(ctx context.Context, d diff, now time.Time) *domain.DetectionResult {
	events, updates := buildReconcile(d, now)

	var (
		wg        sync.WaitGroup
		inserted  int
		insertErr error
		updateErr error
	)
	if len(events) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, insertErr = e.store.InsertChangeEvents(ctx, events)
		}()
	}
	if len(updates) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			updateErr = e.store.BulkUpdateMembers(ctx, updates)
		}()
	}
	wg.Wait()

	res := &domain.DetectionResult{
		Joined:       []domain.ChangeEvent{},
		Left:         []domain.ChangeEvent{},
		GroupChanged: []domain.ChangeEvent{},
		Stats: domain.DetectionStats{
			Mode:                 d.mode,
			DetectedJoins:        len(d.joins),
			DetectedLeaves:       len(d.leaves),
			DetectedGroupChanges: len(d.groupChanges),
			EventsLogged:         inserted,
			DetectedAt:           now,
		},
	}

	if insertErr != nil {
		res.Stats.EventWriteFailed = true
		e.log.WithFields(log.Fields{"written": inserted, "total": len(events), "error": insertErr.Error()}).
			Error("change event batch failed")
	}
	if updateErr != nil {
		res.Stats.RosterWriteFailed = true
		e.log.WithFields(log.Fields{"count": len(updates), "error": updateErr.Error()}).
			Error("roster mutation batch failed")
	}

	for _, ev := range events[:inserted] {
		switch ev.Kind {
		case domain.ChangeJoined:
			res.Joined = append(res.Joined, ev)
		case domain.ChangeLeft:
			res.Left = append(res.Left, ev)
		case domain.ChangeGroupChange:
			res.GroupChanged = append(res.GroupChanged, ev)
		}
	}
	return res
}
