package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms_backend/backend/internal/events"
	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/testkit"
)

type failingStore struct{}

func (failingStore) AppendAudit(context.Context, *shared.AuditLog) error {
	return errors.New("disk full")
}

func (failingStore) ListAudit(context.Context, shared.AuditFilter, shared.Page) ([]shared.AuditLog, int64, error) {
	return nil, 0, errors.New("disk full")
}

type captureReporter struct{ errs []error }

func (r *captureReporter) Report(err error, _ map[string]interface{}) { r.errs = append(r.errs, err) }
func (r *captureReporter) Close()                                     {}

func TestAuditService_Integration(t *testing.T) {
	ctx := context.Background()
	store := testkit.OpenStore(t)
	svc := NewService(store, nil)

	base := time.Now().Add(-time.Hour)
	for i, action := range []string{shared.ActionLogin, shared.ActionSubmit, shared.ActionGrade, shared.ActionSubmit} {
		svc.HandleEvent(ctx, events.Event{
			ActorID:    "u1",
			Request:    shared.RequestContext{IPAddress: "10.0.0.1"},
			Audit:      &shared.AuditLog{Action: action, Resource: shared.ResourceAssignment},
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	t.Run("Defaults and newest first", func(t *testing.T) {
		result, err := svc.List(ctx, ListQuery{})
		require.NoError(t, err)
		assert.Equal(t, Pagination{Page: 1, Limit: 20, Total: 4, Pages: 1}, result.Pagination)
		require.Len(t, result.Logs, 4)
		assert.Equal(t, shared.ActionSubmit, result.Logs[0].Action)
		assert.Equal(t, shared.ActionLogin, result.Logs[3].Action)
		assert.Equal(t, "u1", result.Logs[0].UserID)
		assert.Equal(t, "10.0.0.1", result.Logs[0].IPAddress)
	})

	t.Run("Filter by action", func(t *testing.T) {
		result, err := svc.List(ctx, ListQuery{Action: shared.ActionSubmit, Limit: 1})
		require.NoError(t, err)
		assert.EqualValues(t, 2, result.Pagination.Total)
		assert.Equal(t, 2, result.Pagination.Pages)
		assert.Len(t, result.Logs, 1)
	})

	t.Run("Invalid query", func(t *testing.T) {
		for name, query := range map[string]ListQuery{
			"limit too high": {Limit: 101},
			"negative page":  {Page: -1},
			"bad action":     {Action: "HACK"},
			"bad resource":   {Resource: "PLANET"},
		} {
			_, err := svc.List(ctx, query)
			assert.True(t, shared.IsKind(err, shared.KindValidation), name)
		}
	})

	t.Run("Events without audit are ignored", func(t *testing.T) {
		svc.HandleEvent(ctx, events.Event{Type: events.NotificationSent})
		result, err := svc.List(ctx, ListQuery{})
		require.NoError(t, err)
		assert.EqualValues(t, 4, result.Pagination.Total)
	})
}

func TestRecordNeverFails(t *testing.T) {
	reporter := &captureReporter{}
	svc := NewService(failingStore{}, reporter)

	assert.NotPanics(t, func() {
		svc.Record(context.Background(), shared.AuditLog{Action: shared.ActionLogin, Resource: shared.ResourceUser})
	})
	assert.Len(t, reporter.errs, 1)
}
