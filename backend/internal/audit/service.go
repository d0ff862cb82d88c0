package audit

import (
	"context"
	"fmt"
	"log"
	"time"

	"lms_backend/backend/internal/events"
	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
	"lms_backend/backend/internal/telemetry"
)

// Service records and queries the append-only audit trail
type Service struct {
	store    storage.AuditLogs
	reporter telemetry.Reporter
	now      func() time.Time
}

// NewService creates a new audit Service
func NewService(store storage.AuditLogs, reporter telemetry.Reporter) *Service {
	return &Service{
		store:    store,
		reporter: reporter,
		now:      time.Now,
	}
}

// Record appends an entry. Failures are logged and reported, never returned:
// auditing must not fail the operation being audited.
func (s *Service) Record(ctx context.Context, entry shared.AuditLog) {
	if entry.ID == "" {
		entry.ID = shared.GenerateID("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	if err := s.store.AppendAudit(ctx, &entry); err != nil {
		log.Printf("Warning: Failed to log audit event: %v", err)
		if s.reporter != nil {
			s.reporter.Report(fmt.Errorf("audit append: %w", err), map[string]interface{}{
				"action":   entry.Action,
				"resource": entry.Resource,
				"user_id":  entry.UserID,
			})
		}
	}
}

// HandleEvent is the events.Handler that persists an event's audit entry
func (s *Service) HandleEvent(ctx context.Context, event events.Event) {
	if event.Audit == nil {
		return
	}

	entry := *event.Audit
	if entry.UserID == "" {
		entry.UserID = event.ActorID
	}
	if entry.IPAddress == "" {
		entry.IPAddress = event.Request.IPAddress
	}
	if entry.UserAgent == "" {
		entry.UserAgent = event.Request.UserAgent
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = event.OccurredAt
	}
	s.Record(ctx, entry)
}

// ListQuery is the admin audit search
type ListQuery struct {
	Page     int
	Limit    int
	Action   string
	Resource string
	UserID   string
}

// Pagination describes the returned page
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// ListResult is one page of audit logs, newest first
type ListResult struct {
	Logs       []shared.AuditLog `json:"logs"`
	Pagination Pagination        `json:"pagination"`
}

// List returns audit entries matching the query. Page defaults to 1 and
// limit to 20; limit above 100 or unknown enum values are rejected.
func (s *Service) List(ctx context.Context, query ListQuery) (*ListResult, error) {
	var fields []shared.FieldError

	if query.Page == 0 {
		query.Page = 1
	}
	if query.Page < 1 {
		fields = append(fields, shared.FieldError{Field: "page", Message: "page must be at least 1"})
	}
	if query.Limit == 0 {
		query.Limit = shared.DefaultPageLimit
	}
	if query.Limit < 1 || query.Limit > shared.MaxPageLimit {
		fields = append(fields, shared.FieldError{Field: "limit", Message: "limit must be between 1 and 100"})
	}
	if query.Action != "" && !shared.IsValidAuditAction(query.Action) {
		fields = append(fields, shared.FieldError{Field: "action", Message: "invalid action"})
	}
	if query.Resource != "" && !shared.IsValidAuditResource(query.Resource) {
		fields = append(fields, shared.FieldError{Field: "resource", Message: "invalid resource"})
	}
	if len(fields) > 0 {
		return nil, shared.ValidationFailed("Validation failed", fields...)
	}

	page := shared.Page{Page: query.Page, Limit: query.Limit}
	logs, total, err := s.store.ListAudit(ctx, shared.AuditFilter{
		Action:   query.Action,
		Resource: query.Resource,
		UserID:   query.UserID,
	}, page)
	if err != nil {
		return nil, shared.Internal("failed to fetch audit logs", err)
	}

	return &ListResult{
		Logs: logs,
		Pagination: Pagination{
			Page:  query.Page,
			Limit: query.Limit,
			Total: total,
			Pages: page.Pages(total),
		},
	}, nil
}
