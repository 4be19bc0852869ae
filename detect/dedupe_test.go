package detect

import (
	"context"
	"fmt"
	"testing"

	"meptrack-api/domain"
)

func TestCleanupDuplicatesKeepsLowestInternalID(t *testing.T) {
	store := &mockStore{members: []domain.Member{
		activeMember(5, "A", "Member A", "EPP Group", "EPP"),
		activeMember(2, "A", "Member A", "EPP Group", "EPP"),
		activeMember(9, "A", "Member A", "EPP Group", "EPP"),
		activeMember(3, "B", "Member B", "Renew", "RE"),
	}, nextID: 9}
	e := testEngine(store)

	stats, err := e.CleanupDuplicates(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if stats.Scanned != 4 || stats.Duplicates != 2 || stats.Deleted != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if m := store.memberByMepID(t, "A"); m.InternalID != 2 {
		t.Fatalf("expected lowest internal id kept, got %+v", m)
	}
	if m := store.memberByMepID(t, "B"); m.InternalID != 3 {
		t.Fatalf("unique member must be untouched, got %+v", m)
	}
}

func TestCleanupDuplicatesNoOpWhenClean(t *testing.T) {
	store := &mockStore{members: []domain.Member{
		activeMember(1, "A", "Member A", "EPP Group", "EPP"),
		activeMember(2, "B", "Member B", "Renew", "RE"),
	}, nextID: 2}
	e := testEngine(store)

	stats, err := e.CleanupDuplicates(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if stats.Duplicates != 0 || stats.Deleted != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(store.deleted) != 0 {
		t.Fatalf("expected no delete calls, got %d", len(store.deleted))
	}
}

func TestCleanupDuplicatesBatchesDeletes(t *testing.T) {
	members := make([]domain.Member, 0, 251)
	// One keeper plus 250 duplicates forces three delete batches.
	for i := 0; i < 251; i++ {
		members = append(members, activeMember(int64(i+1), "A", fmt.Sprintf("Row %d", i), "EPP Group", "EPP"))
	}
	store := &mockStore{members: members, nextID: 251}
	e := testEngine(store)

	stats, err := e.CleanupDuplicates(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if stats.Deleted != 250 {
		t.Fatalf("expected 250 deletions, got %+v", stats)
	}
	if len(store.deleted) != 3 {
		t.Fatalf("expected 3 delete batches, got %d", len(store.deleted))
	}
	for i, batch := range store.deleted {
		if len(batch) > deleteBatchSize {
			t.Fatalf("batch %d exceeds limit: %d", i, len(batch))
		}
	}
}
