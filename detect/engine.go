package detect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"meptrack-api/domain"
)

// ErrCycleInProgress is returned when another detection cycle holds the lease.
var ErrCycleInProgress = errors.New("detection cycle already in progress")

// Engine runs detection cycles against the roster and change-log stores. One
// cycle is a single request-scoped run: load the roster once, classify, write,
// report. There is no background work and no retry loop in here.
type Engine struct {
	store     Store
	lease     Lease
	log       *log.Logger
	tolerance time.Duration
}

// NewEngine creates an Engine. lease may be nil, in which case overlapping
// cycles are not excluded, matching the source system's accepted risk.
func NewEngine(store Store, lease Lease, logger *log.Logger) *Engine {
	if logger == nil {
		panic("detect.NewEngine: logger is nil")
	}
	return &Engine{store: store, lease: lease, log: logger, tolerance: scrapeTolerance}
}

// DetectChanges runs one full detection cycle. With observed records it runs
// snapshot comparison: the diff is classified against the roster as persisted
// before this cycle, then the upsert sync merges the observation in, then the
// reconciler writes events and the scheduled status/group mutations. Without
// observed records the strictly weaker timestamp heuristic runs, which can
// only detect departures. An unreachable store aborts the whole cycle with an
// error; partial write failures complete the cycle and are reported in stats.
func (e *Engine) DetectChanges(ctx context.Context, observed []domain.ObservedRecord) (*domain.DetectionResult, error) {
	if e.lease != nil {
		ok, err := e.lease.Acquire(ctx)
		if err != nil {
			// The lease is hardening, not a dependency: run unguarded when it
			// is unreachable, as the source system always did.
			e.log.WithField("error", err.Error()).Warn("detection lease unavailable, running unguarded")
		} else if !ok {
			return nil, ErrCycleInProgress
		} else {
			defer func() {
				if rerr := e.lease.Release(context.WithoutCancel(ctx)); rerr != nil {
					e.log.WithField("error", rerr.Error()).Warn("detection lease release failed")
				}
			}()
		}
	}

	cycleID := uuid.NewString()
	now := time.Now().UTC()

	roster, err := e.store.ListMembers(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	idx := newRosterIndex(roster)

	var d diff
	var syncStats domain.SyncStats
	if len(observed) > 0 {
		d = diffSnapshot(idx, observed, e.log)
		syncStats = e.runSync(ctx, idx, observed, now)
	} else {
		d = diffTimestamps(roster, idx, e.tolerance)
	}

	res := e.reconcile(ctx, d, now)
	res.Stats.CycleID = cycleID
	res.Stats.RosterSize = len(roster)
	res.Stats.ObservedReceived = len(observed)
	res.Stats.Sync = syncStats

	e.log.WithFields(log.Fields{
		"cycle_id":      cycleID,
		"mode":          res.Stats.Mode,
		"roster":        len(roster),
		"observed":      len(observed),
		"joins":         res.Stats.DetectedJoins,
		"leaves":        res.Stats.DetectedLeaves,
		"group_changes": res.Stats.DetectedGroupChanges,
		"events_logged": res.Stats.EventsLogged,
	}).Info("detection cycle completed")

	if res.Stats.EventsLogged > 0 {
		summary := domain.ChangeSummary{
			CycleID:      cycleID,
			DetectedAt:   now,
			Joins:        len(res.Joined),
			Leaves:       len(res.Left),
			GroupChanges: len(res.GroupChanged),
			Events:       append(append(append([]domain.ChangeEvent{}, res.Joined...), res.GroupChanged...), res.Left...),
		}
		if err := e.store.EnqueueChangeSummary(ctx, summary); err != nil {
			e.log.WithFields(log.Fields{"cycle_id": cycleID, "error": err.Error()}).
				Warn("change summary enqueue failed")
		}
	}
	return res, nil
}
