package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"meptrack-api/domain"
)

// Config carries every connection parameter the store needs. It is populated
// once in main and passed down; no package below main reads the environment.
type Config struct {
	ConnectionString string
	MembersTable     string
	ChangesTable     string
	// SummaryQueue is optional; when empty, change summaries are not enqueued.
	SummaryQueue string
	// PageSize bounds a single list page. The roster is low thousands of rows
	// and normally fits one page, but listing always paginates defensively.
	PageSize int32
}

const defaultPageSize = 1000

// Storage provides access to the roster table, the change-log table and the
// optional downstream summary queue.
type Storage struct {
	members      *aztables.Client
	changes      *aztables.Client
	summaryQueue *azqueue.QueueClient
	pageSize     int32
}

// New creates a Storage from the given configuration.
func New(cfg Config) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(cfg.ConnectionString, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	s := &Storage{
		members:  svc.NewClient(cfg.MembersTable),
		changes:  svc.NewClient(cfg.ChangesTable),
		pageSize: cfg.PageSize,
	}
	if s.pageSize <= 0 {
		s.pageSize = defaultPageSize
	}
	if cfg.SummaryQueue != "" {
		queueClientOptions := azqueue.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				Retry: policy.RetryOptions{
					MaxRetries:    5,
					TryTimeout:    time.Minute * 5,
					RetryDelay:    time.Second * 1,
					MaxRetryDelay: time.Second * 60,
					StatusCodes:   []int{408, 429, 500, 502, 503, 504},
				},
			},
		}
		q, err := azqueue.NewQueueClientFromConnectionString(cfg.ConnectionString, cfg.SummaryQueue, &queueClientOptions)
		if err != nil {
			return nil, err
		}
		s.summaryQueue = q
	}
	return s, nil
}

// EnsureCreated provisions the tables and queue, tolerating already-existing
// resources so it can run on every startup.
func (s *Storage) EnsureCreated(ctx context.Context) error {
	for _, c := range []*aztables.Client{s.members, s.changes} {
		if _, err := c.CreateTable(ctx, nil); err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return err
			}
		}
	}
	if s.summaryQueue != nil {
		if _, err := s.summaryQueue.Create(ctx, nil); err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists") {
				return err
			}
		}
	}
	return nil
}

// ListMembers returns every roster row matching the filter, walking all pages.
func (s *Storage) ListMembers(ctx context.Context, f domain.Filter) ([]domain.Member, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s'", membersPartition)
	if f != nil {
		clause, err := odataFilter(f)
		if err != nil {
			return nil, err
		}
		filter = filter + " and " + clause
	}
	top := s.pageSize
	pager := s.members.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: &top})
	members := []domain.Member{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent memberEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			members = append(members, ent.toMember())
		}
	}
	return members, nil
}

// BulkInsertMembers writes new roster rows, assigning internal ids. Rows are
// written one request at a time; the first failure aborts the batch, so the
// caller cannot tell how many of the earlier rows were accepted.
func (s *Storage) BulkInsertMembers(ctx context.Context, members []domain.Member) error {
	for _, m := range members {
		if m.InternalID == 0 {
			m.InternalID = nextInternalID()
		}
		payload, err := json.Marshal(memberEntityFrom(m))
		if err != nil {
			return err
		}
		if _, err := s.members.AddEntity(ctx, payload, nil); err != nil {
			return err
		}
	}
	return nil
}

// BulkUpdateMembers applies partial mutations addressed by internal id as
// merge updates. Same partial-failure caveat as BulkInsertMembers.
func (s *Storage) BulkUpdateMembers(ctx context.Context, updates []domain.MemberUpdate) error {
	for _, u := range updates {
		payload, err := json.Marshal(memberPatchFrom(u))
		if err != nil {
			return err
		}
		et := azcore.ETagAny
		opts := &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge}
		if _, err := s.members.UpdateEntity(ctx, payload, opts); err != nil {
			return err
		}
	}
	return nil
}

// BulkDeleteMembers removes rows by internal id. Missing rows are ignored so a
// cleanup pass can be retried safely.
func (s *Storage) BulkDeleteMembers(ctx context.Context, internalIDs []int64) error {
	for _, id := range internalIDs {
		if _, err := s.members.DeleteEntity(ctx, membersPartition, rowKey(id), nil); err != nil {
			var respErr *azcore.ResponseError
			if errors.As(err, &respErr) && respErr.StatusCode == 404 {
				continue
			}
			return err
		}
	}
	return nil
}

// InsertChangeEvents appends events to the change log. It returns how many
// events were written before the first failure, so the caller can report
// exactly the events that made it into the audit trail.
func (s *Storage) InsertChangeEvents(ctx context.Context, events []domain.ChangeEvent) (int, error) {
	for i, ev := range events {
		payload, err := json.Marshal(changeEntityFrom(ev, nextInternalID()))
		if err != nil {
			return i, err
		}
		if _, err := s.changes.AddEntity(ctx, payload, nil); err != nil {
			return i, err
		}
	}
	return len(events), nil
}

// ListChangeEvents returns up to limit events, newest first. A limit of zero
// returns everything.
func (s *Storage) ListChangeEvents(ctx context.Context, limit int) ([]domain.ChangeEvent, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s'", changesPartition)
	top := s.pageSize
	pager := s.changes.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: &top})
	events := []domain.ChangeEvent{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent changeEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			events = append(events, ent.toChangeEvent())
		}
	}
	// Row keys are monotonic, so the pager yields oldest first.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// EnqueueChangeSummary publishes a cycle summary for downstream consumers.
// Without a configured queue this is a no-op.
func (s *Storage) EnqueueChangeSummary(ctx context.Context, summary domain.ChangeSummary) error {
	if s.summaryQueue == nil {
		return nil
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	_, err = s.summaryQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}
