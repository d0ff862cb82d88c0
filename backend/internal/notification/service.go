package notification

import (
	"context"
	"errors"
	"log"
	"time"

	"lms_backend/backend/internal/events"
	"lms_backend/backend/internal/mailer"
	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
)

// Pusher delivers a payload to a user's live connections, best effort
type Pusher interface {
	Push(userID, event string, data interface{})
}

// Service owns user inboxes
type Service struct {
	store     storage.Notifications
	users     storage.Users
	pusher    Pusher
	mailer    mailer.Mailer
	publisher events.Publisher
	now       func() time.Time
}

// NewService creates a new notification Service. pusher and mail may be nil.
func NewService(store storage.Notifications, users storage.Users, pusher Pusher, mail mailer.Mailer) *Service {
	return &Service{
		store:  store,
		users:  users,
		pusher: pusher,
		mailer: mail,
		now:    time.Now,
	}
}

// SetPublisher wires the event publisher used to audit manual sends
func (s *Service) SetPublisher(publisher events.Publisher) {
	s.publisher = publisher
}

// ============================================================================
// Emit
// ============================================================================

// Emit persists a notification, then pushes it to the recipient's room and
// mails it when its priority is high or urgent. Push and mail failures are
// logged only.
func (s *Service) Emit(ctx context.Context, n shared.Notification) (*shared.Notification, error) {
	if n.ID == "" {
		n.ID = shared.GenerateID("notif")
	}
	if n.Priority == "" {
		n.Priority = shared.PriorityMedium
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	n.IsRead = false
	n.ReadAt = nil

	if err := s.store.CreateNotification(ctx, &n); err != nil {
		return nil, shared.Internal("failed to create notification", err)
	}

	if s.pusher != nil {
		s.pusher.Push(n.RecipientID, "notification", n)
	}

	if s.mailer != nil && (n.Priority == shared.PriorityHigh || n.Priority == shared.PriorityUrgent) {
		s.mail(ctx, n)
	}

	return &n, nil
}

func (s *Service) mail(ctx context.Context, n shared.Notification) {
	if s.users == nil {
		return
	}
	user, err := s.users.GetUser(ctx, n.RecipientID)
	if err != nil {
		log.Printf("WARN: notification %s: recipient lookup for mail failed: %v", n.ID, err)
		return
	}
	if user.Email == "" {
		return
	}

	err = s.mailer.Send(ctx, mailer.Message{
		ToName:    user.Name,
		ToAddress: user.Email,
		Subject:   n.Title,
		Text:      n.Message,
	})
	if err != nil {
		log.Printf("WARN: notification %s: mail to %s failed: %v", n.ID, user.Email, err)
	}
}

// HandleEvent is the events.Handler that emits an event's notifications
func (s *Service) HandleEvent(ctx context.Context, event events.Event) {
	for _, n := range event.Notifications {
		if _, err := s.Emit(ctx, n); err != nil {
			log.Printf("ERROR: failed to emit %s notification for %s: %v", n.Type, n.RecipientID, err)
		}
	}
}

// ============================================================================
// Inbox
// ============================================================================

// SendInput is a manual notification from staff
type SendInput struct {
	RecipientID  string `json:"recipient" validate:"required"`
	Type         string `json:"type" validate:"required,oneof=grade_posted course_enrollment assignment_submitted quiz_completed system message"`
	Title        string `json:"title" validate:"required,max=200"`
	Message      string `json:"message" validate:"required,max=1000"`
	RelatedID    string `json:"relatedId"`
	RelatedModel string `json:"relatedModel" validate:"omitempty,oneof=Course Assignment Quiz Lecture Submission"`
	Priority     string `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
}

// Send creates a notification on behalf of an instructor or admin
func (s *Service) Send(ctx context.Context, actor shared.User, req shared.RequestContext, input SendInput) (*shared.Notification, error) {
	if !shared.IsStaff(actor.Role) {
		return nil, shared.NewError(shared.KindForbidden, "Access denied. Insufficient permissions.")
	}
	if err := shared.Validate(input); err != nil {
		return nil, err
	}
	if s.users != nil {
		if _, err := s.users.GetUser(ctx, input.RecipientID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, shared.NewError(shared.KindNotFound, "Recipient not found")
			}
			return nil, shared.Internal("failed to fetch recipient", err)
		}
	}

	n, err := s.Emit(ctx, shared.Notification{
		RecipientID:  input.RecipientID,
		SenderID:     actor.ID,
		Type:         input.Type,
		Title:        input.Title,
		Message:      input.Message,
		RelatedID:    input.RelatedID,
		RelatedModel: input.RelatedModel,
		Priority:     input.Priority,
	})
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		s.publisher.Publish(ctx, events.Event{
			Type:    events.NotificationSent,
			ActorID: actor.ID,
			Request: req,
			Audit: &shared.AuditLog{
				Action:     shared.ActionCreate,
				Resource:   shared.ResourceNotification,
				ResourceID: n.ID,
				Details:    map[string]interface{}{"recipient": n.RecipientID, "type": n.Type},
			},
		})
	}
	return n, nil
}

// ListResult is one inbox page
type ListResult struct {
	Notifications []shared.Notification `json:"notifications"`
	Total         int64                 `json:"total"`
	TotalPages    int                   `json:"totalPages"`
	CurrentPage   int                   `json:"currentPage"`
	UnreadCount   int64                 `json:"unreadCount"`
}

// List returns a page of the recipient's inbox, newest first
func (s *Service) List(ctx context.Context, recipientID string, page, limit int, unreadOnly bool) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = shared.DefaultPageLimit
	}
	if limit > shared.MaxPageLimit {
		limit = shared.MaxPageLimit
	}

	p := shared.Page{Page: page, Limit: limit}
	notifications, total, err := s.store.ListNotifications(ctx, shared.NotificationFilter{
		RecipientID: recipientID,
		UnreadOnly:  unreadOnly,
	}, p)
	if err != nil {
		return nil, shared.Internal("failed to fetch notifications", err)
	}

	unread, err := s.store.CountUnread(ctx, recipientID)
	if err != nil {
		return nil, shared.Internal("failed to count unread notifications", err)
	}

	return &ListResult{
		Notifications: notifications,
		Total:         total,
		TotalPages:    p.Pages(total),
		CurrentPage:   page,
		UnreadCount:   unread,
	}, nil
}

// MarkRead marks one of the recipient's notifications as read
func (s *Service) MarkRead(ctx context.Context, recipientID, id string) (*shared.Notification, error) {
	n, err := s.store.MarkRead(ctx, recipientID, id, s.now())
	if err != nil {
		return nil, notFoundOr(err, "failed to mark notification as read")
	}
	return n, nil
}

// MarkAllRead marks every unread notification of the recipient as read
func (s *Service) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	count, err := s.store.MarkAllRead(ctx, recipientID, s.now())
	if err != nil {
		return 0, shared.Internal("failed to mark notifications as read", err)
	}
	return count, nil
}

// Delete removes one of the recipient's notifications
func (s *Service) Delete(ctx context.Context, recipientID, id string) error {
	if err := s.store.DeleteNotification(ctx, recipientID, id); err != nil {
		return notFoundOr(err, "failed to delete notification")
	}
	return nil
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return shared.NewError(shared.KindNotFound, "Notification not found")
	}
	return shared.Internal(message, err)
}
