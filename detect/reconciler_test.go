package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"meptrack-api/domain"
)

func TestBuildReconcileBatches(t *testing.T) {
	now := time.Now().UTC()
	returning := activeMember(4, "R", "Returning Member", "Greens/EFA", "Greens")
	returning.Status = domain.StatusInactive
	switching := activeMember(5, "S", "Switching Member", "Socialists", "S&D")
	leaving := activeMember(6, "L", "Leaving Member", "Renew", "RE")

	d := diff{
		mode: modeSnapshot,
		joins: []join{
			{Observed: domain.ObservedRecord{MepID: "N", Name: "New Member", GroupShort: "EPP"}},
			{Observed: observedFor(returning), Existing: &returning},
		},
		groupChanges: []groupChange{
			{Member: switching, Observed: domain.ObservedRecord{MepID: "S", Name: "Switching Member", Group: "Renew Europe", GroupShort: "RE"}},
		},
		leaves: []domain.Member{leaving},
	}

	events, updates := buildReconcile(d, now)

	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	// Order: joins, then group changes, then leaves.
	if events[0].Kind != domain.ChangeJoined || events[1].Kind != domain.ChangeJoined ||
		events[2].Kind != domain.ChangeGroupChange || events[3].Kind != domain.ChangeLeft {
		t.Fatalf("unexpected event order: %+v", events)
	}
	if events[2].OldValue != "S&D" || events[2].NewValue != "RE" {
		t.Fatalf("unexpected group change values: %+v", events[2])
	}
	if events[3].OldValue != "RE" || events[3].NewValue != "" {
		t.Fatalf("unexpected leave values: %+v", events[3])
	}

	// Updates: rejoin activation, group refresh, departure deactivation. The
	// brand-new join needs no update, the sync inserts it.
	if len(updates) != 3 {
		t.Fatalf("expected 3 updates, got %+v", updates)
	}
	if updates[0].InternalID != 4 || updates[0].Status == nil || *updates[0].Status != domain.StatusActive {
		t.Fatalf("unexpected rejoin update: %+v", updates[0])
	}
	if updates[1].InternalID != 5 || updates[1].GroupShort == nil || *updates[1].GroupShort != "RE" {
		t.Fatalf("unexpected group update: %+v", updates[1])
	}
	if updates[2].InternalID != 6 || updates[2].Status == nil || *updates[2].Status != domain.StatusInactive {
		t.Fatalf("unexpected departure update: %+v", updates[2])
	}
}

func TestReconcileReportsOnlyInsertedEvents(t *testing.T) {
	store := &mockStore{evErr: errors.New("change log write failed"), evAccept: 1}
	e := testEngine(store)

	d := diff{
		mode: modeSnapshot,
		joins: []join{
			{Observed: domain.ObservedRecord{MepID: "A", Name: "Member A", GroupShort: "EPP"}},
			{Observed: domain.ObservedRecord{MepID: "B", Name: "Member B", GroupShort: "RE"}},
		},
	}
	res := e.reconcile(context.Background(), d, time.Now().UTC())

	if !res.Stats.EventWriteFailed {
		t.Fatal("expected event write failure to be reported")
	}
	if len(res.Joined) != 1 || res.Joined[0].MepID != "A" {
		t.Fatalf("expected only the accepted event to be reported, got %+v", res.Joined)
	}
	// Detected counts describe the observation, not the write outcome.
	if res.Stats.DetectedJoins != 2 || res.Stats.EventsLogged != 1 {
		t.Fatalf("unexpected stats: %+v", res.Stats)
	}
}

func TestReconcileRosterFailureStillReportsEvents(t *testing.T) {
	member := activeMember(1, "X2", "Leaving Member", "Socialists", "S&D")
	store := &mockStore{members: []domain.Member{member}, nextID: 1, updErr: errors.New("roster write failed")}
	e := testEngine(store)

	d := diff{mode: modeSnapshot, leaves: []domain.Member{member}}
	res := e.reconcile(context.Background(), d, time.Now().UTC())

	if !res.Stats.RosterWriteFailed {
		t.Fatal("expected roster write failure to be reported")
	}
	// The detected change is a true observation and must still be returned.
	if len(res.Left) != 1 || res.Left[0].OldValue != "S&D" {
		t.Fatalf("expected the left event to be reported regardless, got %+v", res.Left)
	}
	if res.Stats.EventWriteFailed {
		t.Fatal("event write did not fail")
	}
}

func TestReconcileEmptyDiffWritesNothing(t *testing.T) {
	store := &mockStore{}
	e := testEngine(store)

	res := e.reconcile(context.Background(), diff{mode: modeSnapshot}, time.Now().UTC())

	if store.evCalls != 0 || store.updCalls != 0 {
		t.Fatalf("expected no store calls for empty diff, got %d/%d", store.evCalls, store.updCalls)
	}
	if res.Stats.EventsLogged != 0 {
		t.Fatalf("unexpected stats: %+v", res.Stats)
	}
}
