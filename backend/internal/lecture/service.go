// Package lecture owns course lectures. Instructors author them inside
// courses they own; students only ever see published lectures.
package lecture

import (
	"context"
	"errors"
	"strings"
	"time"

	"lms_backend/backend/internal/events"
	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
)

const queryTimeout = 10 * time.Second

// Store is the persistence the lecture service needs
type Store interface {
	storage.Courses
	storage.Lectures
}

// LectureService implements lecture authoring and listing
type LectureService struct {
	store     Store
	publisher events.Publisher
	now       func() time.Time
}

// NewLectureService creates a new LectureService instance
func NewLectureService(store Store, publisher events.Publisher) *LectureService {
	return &LectureService{
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// CreateInput is the body of a create request
type CreateInput struct {
	CourseID    string              `json:"course" validate:"required"`
	Title       string              `json:"title" validate:"required,max=200"`
	Description string              `json:"description" validate:"required"`
	VideoURL    string              `json:"videoUrl" validate:"omitempty,url"`
	Materials   []shared.Attachment `json:"materials"`
	Duration    int                 `json:"duration" validate:"gte=0"`
	Order       int                 `json:"order" validate:"gte=0"`
	IsPublished bool                `json:"isPublished"`
}

// UpdateInput holds the fields to change; nil fields are left untouched
type UpdateInput struct {
	Title       *string              `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string              `json:"description"`
	VideoURL    *string              `json:"videoUrl" validate:"omitempty,url"`
	Materials   *[]shared.Attachment `json:"materials"`
	Duration    *int                 `json:"duration" validate:"omitempty,gte=0"`
	Order       *int                 `json:"order" validate:"omitempty,gte=0"`
	IsPublished *bool                `json:"isPublished"`
}

// CreateLecture adds a lecture to a course the actor owns
func (s *LectureService) CreateLecture(ctx context.Context, actor shared.User, req shared.RequestContext, input CreateInput) (*shared.Lecture, error) {
	if !shared.IsStaff(actor.Role) {
		return nil, shared.NewError(shared.KindForbidden, "Access denied. Insufficient permissions.")
	}
	input.Title = strings.TrimSpace(input.Title)
	if err := shared.Validate(input); err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// 1. Verify instructor owns the course or is admin
	course, err := s.store.GetCourse(queryCtx, input.CourseID)
	if err != nil {
		return nil, notFoundOr(err, "Course not found", "failed to fetch course")
	}
	if !course.IsOwnedBy(actor.ID) && actor.Role != shared.RoleAdmin {
		return nil, shared.NewError(shared.KindForbidden, "Not authorized to create lectures for this course")
	}

	// 2. Build and persist
	now := s.now()
	lecture := shared.Lecture{
		ID:           shared.GenerateID("lecture"),
		Title:        input.Title,
		Description:  input.Description,
		CourseID:     course.ID,
		InstructorID: actor.ID,
		VideoURL:     input.VideoURL,
		Materials:    input.Materials,
		Duration:     input.Duration,
		Order:        input.Order,
		IsPublished:  input.IsPublished,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateLecture(queryCtx, &lecture); err != nil {
		return nil, shared.Internal("failed to create lecture", err)
	}

	s.audit(ctx, events.LectureCreated, actor.ID, req, shared.ActionCreate, lecture.ID, map[string]interface{}{"course": lecture.CourseID, "title": lecture.Title})
	return &lecture, nil
}

// GetLecture retrieves a single lecture. Unpublished lectures are hidden
// from everyone except the owner and admins.
func (s *LectureService) GetLecture(ctx context.Context, actor shared.User, id string) (*shared.Lecture, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	lecture, err := s.store.GetLecture(queryCtx, id)
	if err != nil {
		return nil, notFoundOr(err, "Lecture not found", "failed to fetch lecture")
	}
	if !lecture.IsPublished && !s.canManage(actor, lecture) {
		return nil, shared.NewError(shared.KindNotFound, "Lecture not found")
	}
	return lecture, nil
}

// ListByCourse returns a course's lectures in display order. Students only
// see published ones.
func (s *LectureService) ListByCourse(ctx context.Context, actor shared.User, courseID string) ([]shared.Lecture, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	lectures, err := s.store.ListLecturesByCourse(queryCtx, courseID, !shared.IsStaff(actor.Role))
	if err != nil {
		return nil, shared.Internal("failed to fetch lectures", err)
	}
	if lectures == nil {
		lectures = []shared.Lecture{}
	}
	return lectures, nil
}

// UpdateLecture applies a partial update. Only the owner or an admin may update.
func (s *LectureService) UpdateLecture(ctx context.Context, actor shared.User, req shared.RequestContext, id string, input UpdateInput) (*shared.Lecture, error) {
	if err := shared.Validate(input); err != nil {
		return nil, err
	}

	// 1. Load and authorize
	lecture, err := s.ownedLecture(ctx, actor, id, "Not authorized to update this lecture")
	if err != nil {
		return nil, err
	}

	// 2. Apply changes
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, shared.ValidationFailed("Validation failed", shared.FieldError{Field: "title", Message: "title is required"})
		}
		lecture.Title = title
	}
	if input.Description != nil {
		lecture.Description = *input.Description
	}
	if input.VideoURL != nil {
		lecture.VideoURL = *input.VideoURL
	}
	if input.Materials != nil {
		lecture.Materials = *input.Materials
	}
	if input.Duration != nil {
		lecture.Duration = *input.Duration
	}
	if input.Order != nil {
		lecture.Order = *input.Order
	}
	if input.IsPublished != nil {
		lecture.IsPublished = *input.IsPublished
	}
	lecture.UpdatedAt = s.now()

	// 3. Persist
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if err := s.store.UpdateLecture(queryCtx, lecture); err != nil {
		return nil, notFoundOr(err, "Lecture not found", "failed to update lecture")
	}

	s.audit(ctx, events.LectureUpdated, actor.ID, req, shared.ActionUpdate, lecture.ID, nil)
	return lecture, nil
}

// DeleteLecture removes a lecture. Only the owner or an admin may delete.
func (s *LectureService) DeleteLecture(ctx context.Context, actor shared.User, req shared.RequestContext, id string) error {
	lecture, err := s.ownedLecture(ctx, actor, id, "Not authorized to delete this lecture")
	if err != nil {
		return err
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if err := s.store.DeleteLecture(queryCtx, lecture.ID); err != nil {
		return notFoundOr(err, "Lecture not found", "failed to delete lecture")
	}

	s.audit(ctx, events.LectureDeleted, actor.ID, req, shared.ActionDelete, lecture.ID, map[string]interface{}{"title": lecture.Title})
	return nil
}

// ============================================================================
// Internal Helpers
// ============================================================================

func (s *LectureService) canManage(actor shared.User, lecture *shared.Lecture) bool {
	return actor.Role == shared.RoleAdmin || (actor.Role == shared.RoleInstructor && lecture.InstructorID == actor.ID)
}

// ownedLecture loads a lecture and checks the actor may modify it
func (s *LectureService) ownedLecture(ctx context.Context, actor shared.User, id, deniedMessage string) (*shared.Lecture, error) {
	if !shared.IsStaff(actor.Role) {
		return nil, shared.NewError(shared.KindForbidden, "Access denied. Insufficient permissions.")
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	lecture, err := s.store.GetLecture(queryCtx, id)
	if err != nil {
		return nil, notFoundOr(err, "Lecture not found", "failed to fetch lecture")
	}
	if !s.canManage(actor, lecture) {
		return nil, shared.NewError(shared.KindForbidden, deniedMessage)
	}
	return lecture, nil
}

func (s *LectureService) audit(ctx context.Context, eventType, actorID string, req shared.RequestContext, action, lectureID string, details map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, events.Event{
		Type:    eventType,
		ActorID: actorID,
		Request: req,
		Audit: &shared.AuditLog{
			Action:     action,
			Resource:   shared.ResourceLecture,
			ResourceID: lectureID,
			Details:    details,
		},
	})
}

func notFoundOr(err error, notFound, message string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return shared.NewError(shared.KindNotFound, notFound)
	}
	return shared.Internal(message, err)
}
