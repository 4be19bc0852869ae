package detect

import (
	"context"
	"sort"

	log "github.com/sirupsen/logrus"

	"meptrack-api/domain"
)

const deleteBatchSize = 100

// CleanupDuplicates is the maintenance pass that repairs the storage defect
// the detection path only tolerates: several rows sharing one external id. For
// every duplicated id the earliest-created row (lowest internal id) is kept —
// the same rule the resolver applies — and the rest are deleted in batches.
func (e *Engine) CleanupDuplicates(ctx context.Context) (domain.CleanupStats, error) {
	roster, err := e.store.ListMembers(ctx, nil)
	if err != nil {
		return domain.CleanupStats{}, err
	}
	stats := domain.CleanupStats{Scanned: len(roster)}

	byMepID := make(map[string][]domain.Member)
	for _, m := range roster {
		if m.MepID == "" {
			continue
		}
		byMepID[m.MepID] = append(byMepID[m.MepID], m)
	}

	var doomed []int64
	for _, rows := range byMepID {
		if len(rows) < 2 {
			continue
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].InternalID < rows[j].InternalID })
		for _, m := range rows[1:] {
			doomed = append(doomed, m.InternalID)
		}
	}
	stats.Duplicates = len(doomed)
	if len(doomed) == 0 {
		return stats, nil
	}
	sort.Slice(doomed, func(i, j int) bool { return doomed[i] < doomed[j] })

	for start := 0; start < len(doomed); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(doomed) {
			end = len(doomed)
		}
		if err := e.store.BulkDeleteMembers(ctx, doomed[start:end]); err != nil {
			e.log.WithFields(log.Fields{"deleted": stats.Deleted, "remaining": len(doomed) - stats.Deleted, "error": err.Error()}).
				Error("duplicate cleanup batch failed")
			return stats, err
		}
		stats.Deleted += end - start
	}

	e.log.WithFields(log.Fields{"scanned": stats.Scanned, "deleted": stats.Deleted}).
		Info("duplicate cleanup completed")
	return stats, nil
}
