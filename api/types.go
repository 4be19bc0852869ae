package api

import (
	"context"

	"meptrack-api/domain"
)

// Storage abstracts read access to the roster and change log for handlers.
type Storage interface {
	ListMembers(ctx context.Context, f domain.Filter) ([]domain.Member, error)
	ListChangeEvents(ctx context.Context, limit int) ([]domain.ChangeEvent, error)
}

// Detector runs detection cycles and roster maintenance. Implemented by
// detect.Engine.
type Detector interface {
	DetectChanges(ctx context.Context, observed []domain.ObservedRecord) (*domain.DetectionResult, error)
	SyncRoster(ctx context.Context, observed []domain.ObservedRecord) (domain.SyncStats, error)
	CleanupDuplicates(ctx context.Context) (domain.CleanupStats, error)
}
