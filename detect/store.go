package detect

import (
	"context"

	"meptrack-api/domain"
)

// Store is the slice of the storage layer the detection engine depends on.
// All writes are best-effort batches: the store offers no transactions, and a
// failed batch is indistinguishable from a partially applied one.
type Store interface {
	ListMembers(ctx context.Context, f domain.Filter) ([]domain.Member, error)
	BulkInsertMembers(ctx context.Context, members []domain.Member) error
	BulkUpdateMembers(ctx context.Context, updates []domain.MemberUpdate) error
	BulkDeleteMembers(ctx context.Context, internalIDs []int64) error
	InsertChangeEvents(ctx context.Context, events []domain.ChangeEvent) (int, error)
	EnqueueChangeSummary(ctx context.Context, summary domain.ChangeSummary) error
}

// Lease provides mutual exclusion across detection cycles. It is optional
// hardening: without one, overlapping cycles can emit duplicate events for the
// same real-world transition.
type Lease interface {
	// Acquire returns true when the caller now holds the lease.
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}
