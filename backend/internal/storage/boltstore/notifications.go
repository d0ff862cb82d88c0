package boltstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
)

// ============================================================================
// Notifications
// ============================================================================

func (s *Store) CreateNotification(ctx context.Context, notification *shared.Notification) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, buckets["notifications"], notification.ID, notification)
	})
}

func (s *Store) recipientNotifications(tx *bbolt.Tx, filter shared.NotificationFilter) ([]shared.Notification, error) {
	return scan(tx, buckets["notifications"], "", func(n *shared.Notification) bool {
		return n.RecipientID == filter.RecipientID && (!filter.UnreadOnly || !n.IsRead)
	})
}

func (s *Store) ListNotifications(ctx context.Context, filter shared.NotificationFilter, page shared.Page) ([]shared.Notification, int64, error) {
	var notifications []shared.Notification
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		notifications, err = s.recipientNotifications(tx, filter)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	sort.SliceStable(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})
	return paginate(notifications, page.Skip(), page.Limit), int64(len(notifications)), nil
}

func (s *Store) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		unread, err := s.recipientNotifications(tx, shared.NotificationFilter{RecipientID: recipientID, UnreadOnly: true})
		count = int64(len(unread))
		return err
	})
	return count, err
}

func (s *Store) MarkRead(ctx context.Context, recipientID, id string, at time.Time) (*shared.Notification, error) {
	var notification *shared.Notification
	err := s.db.Update(func(tx *bbolt.Tx) error {
		n, err := get[shared.Notification](tx, buckets["notifications"], id)
		if err != nil {
			return err
		}
		if n.RecipientID != recipientID {
			return storage.ErrNotFound
		}
		notification = n
		if n.IsRead {
			return nil
		}
		n.IsRead = true
		n.ReadAt = &at
		return put(tx, buckets["notifications"], id, n)
	})
	return notification, err
}

func (s *Store) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	var modified int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		unread, err := s.recipientNotifications(tx, shared.NotificationFilter{RecipientID: recipientID, UnreadOnly: true})
		if err != nil {
			return err
		}
		for i := range unread {
			n := &unread[i]
			n.IsRead = true
			n.ReadAt = &at
			if err := put(tx, buckets["notifications"], n.ID, n); err != nil {
				return err
			}
		}
		modified = int64(len(unread))
		return nil
	})
	return modified, err
}

func (s *Store) DeleteNotification(ctx context.Context, recipientID, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		n, err := get[shared.Notification](tx, buckets["notifications"], id)
		if err != nil {
			return err
		}
		if n.RecipientID != recipientID {
			return storage.ErrNotFound
		}
		return tx.Bucket(buckets["notifications"]).Delete([]byte(id))
	})
}

// ============================================================================
// Audit Logs (keyed by insertion sequence)
// ============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry *shared.AuditLog) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		seq, err := tx.Bucket(buckets["auditLogs"]).NextSequence()
		if err != nil {
			return err
		}
		return put(tx, buckets["auditLogs"], fmt.Sprintf("%020d", seq), entry)
	})
}

func (s *Store) ListAudit(ctx context.Context, filter shared.AuditFilter, page shared.Page) ([]shared.AuditLog, int64, error) {
	var logs []shared.AuditLog
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		logs, err = scan(tx, buckets["auditLogs"], "", func(l *shared.AuditLog) bool {
			return (filter.Action == "" || l.Action == filter.Action) &&
				(filter.Resource == "" || l.Resource == filter.Resource) &&
				(filter.UserID == "" || l.UserID == filter.UserID)
		})
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	// Keys ascend by insertion; reverse for newest first
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })
	return paginate(logs, page.Skip(), page.Limit), int64(len(logs)), nil
}
