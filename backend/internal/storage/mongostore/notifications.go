package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
)

// ============================================================================
// Notifications
// ============================================================================

func (s *Store) CreateNotification(ctx context.Context, notification *shared.Notification) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.notificationsCol.InsertOne(queryCtx, notification)
	return mapErr(err)
}

func (s *Store) ListNotifications(ctx context.Context, filter shared.NotificationFilter, page shared.Page) ([]shared.Notification, int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := bson.M{"recipient_id": filter.RecipientID}
	if filter.UnreadOnly {
		query["is_read"] = false
	}

	total, err := s.notificationsCol.CountDocuments(queryCtx, query)
	if err != nil {
		return nil, 0, err
	}

	notifications, err := findAll[shared.Notification](queryCtx, s.notificationsCol, query, shared.BuildFindOptions(page, "created_at", -1))
	if err != nil {
		return nil, 0, err
	}
	return notifications, total, nil
}

func (s *Store) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return s.notificationsCol.CountDocuments(queryCtx, bson.M{"recipient_id": recipientID, "is_read": false})
}

func (s *Store) MarkRead(ctx context.Context, recipientID, id string, at time.Time) (*shared.Notification, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// Already-read notifications keep their original read_at
	_, err := s.notificationsCol.UpdateOne(queryCtx,
		bson.M{"_id": id, "recipient_id": recipientID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at}},
	)
	if err != nil {
		return nil, err
	}

	var notification shared.Notification
	err = s.notificationsCol.FindOne(queryCtx, bson.M{"_id": id, "recipient_id": recipientID}).Decode(&notification)
	if err != nil {
		return nil, mapErr(err)
	}
	return &notification, nil
}

func (s *Store) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.notificationsCol.UpdateMany(queryCtx,
		bson.M{"recipient_id": recipientID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

func (s *Store) DeleteNotification(ctx context.Context, recipientID, id string) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.notificationsCol.DeleteOne(queryCtx, bson.M{"_id": id, "recipient_id": recipientID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ============================================================================
// Audit Logs
// ============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry *shared.AuditLog) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.auditCol.InsertOne(queryCtx, entry)
	return mapErr(err)
}

func (s *Store) ListAudit(ctx context.Context, filter shared.AuditFilter, page shared.Page) ([]shared.AuditLog, int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := bson.M{}
	if filter.Action != "" {
		query["action"] = filter.Action
	}
	if filter.Resource != "" {
		query["resource"] = filter.Resource
	}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}

	total, err := s.auditCol.CountDocuments(queryCtx, query)
	if err != nil {
		return nil, 0, err
	}

	logs, err := findAll[shared.AuditLog](queryCtx, s.auditCol, query, shared.BuildFindOptions(page, "created_at", -1))
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
