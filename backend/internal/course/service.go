package course

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lms_backend/backend/internal/events"
	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
	"lms_backend/backend/internal/telemetry"
)

const queryTimeout = 10 * time.Second

// CourseService handles course authoring, the public catalog and enrollment
type CourseService struct {
	store     storage.Courses
	publisher events.Publisher
	now       func() time.Time
}

// NewCourseService creates a new CourseService instance
func NewCourseService(store storage.Courses, publisher events.Publisher) *CourseService {
	return &CourseService{
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// CreateInput is the body of a create request
type CreateInput struct {
	Title           string   `json:"title" validate:"required,max=200"`
	Description     string   `json:"description" validate:"required,max=2000"`
	Category        string   `json:"category" validate:"required"`
	Difficulty      string   `json:"difficulty" validate:"omitempty,oneof=beginner intermediate advanced"`
	Duration        int      `json:"duration" validate:"gte=0"`
	Tags            []string `json:"tags"`
	IsPublished     bool     `json:"isPublished"`
	EnrollmentLimit *int     `json:"enrollmentLimit" validate:"omitempty,gte=1"`
}

// UpdateInput holds the fields to change; nil fields are left untouched
type UpdateInput struct {
	Title           *string   `json:"title" validate:"omitempty,min=1,max=200"`
	Description     *string   `json:"description" validate:"omitempty,max=2000"`
	Category        *string   `json:"category"`
	Difficulty      *string   `json:"difficulty" validate:"omitempty,oneof=beginner intermediate advanced"`
	Duration        *int      `json:"duration" validate:"omitempty,gte=0"`
	Tags            *[]string `json:"tags"`
	IsPublished     *bool     `json:"isPublished"`
	EnrollmentLimit *int      `json:"enrollmentLimit" validate:"omitempty,gte=1"`
}

// ListQuery is the public catalog filter
type ListQuery struct {
	Search     string
	Category   string
	Difficulty string
	Page       int
	Limit      int
}

// ListResult is one catalog page
type ListResult struct {
	Courses     []shared.Course `json:"courses"`
	Total       int64           `json:"total"`
	TotalPages  int             `json:"totalPages"`
	CurrentPage int             `json:"currentPage"`
}

// ============================================================================
// Authoring
// ============================================================================

// CreateCourse creates a course owned by the calling instructor
func (s *CourseService) CreateCourse(ctx context.Context, actor shared.User, req shared.RequestContext, input CreateInput) (*shared.Course, error) {
	ctx, span := telemetry.StartSpan(ctx, "course.Create")
	defer span.End()

	if !shared.IsStaff(actor.Role) {
		return nil, shared.NewError(shared.KindForbidden, "Access denied. Insufficient permissions.")
	}
	if err := shared.Validate(input); err != nil {
		return nil, err
	}

	now := s.now()
	course := shared.Course{
		ID:               shared.GenerateID("course"),
		Title:            strings.TrimSpace(input.Title),
		Description:      input.Description,
		InstructorID:     actor.ID,
		Category:         input.Category,
		Difficulty:       input.Difficulty,
		Duration:         input.Duration,
		Tags:             input.Tags,
		IsPublished:      input.IsPublished,
		EnrollmentLimit:  input.EnrollmentLimit,
		EnrolledStudents: []shared.Enrollment{},
		AssignmentIDs:    []string{},
		QuizIDs:          []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if course.Difficulty == "" {
		course.Difficulty = "beginner"
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if err := s.store.CreateCourse(queryCtx, &course); err != nil {
		return nil, shared.Internal("failed to create course", err)
	}

	s.audit(ctx, events.CourseCreated, actor.ID, req, shared.ActionCreate, course.ID, map[string]interface{}{"title": course.Title})
	return &course, nil
}

// GetCourse retrieves a single course
func (s *CourseService) GetCourse(ctx context.Context, id string) (*shared.Course, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	course, err := s.store.GetCourse(queryCtx, id)
	if err != nil {
		return nil, notFoundOr(err, "failed to fetch course")
	}
	return course, nil
}

// ListCourses returns a page of published courses, newest first
func (s *CourseService) ListCourses(ctx context.Context, query ListQuery) (*ListResult, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit < 1 {
		query.Limit = 10
	}
	if query.Limit > shared.MaxPageLimit {
		query.Limit = shared.MaxPageLimit
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	page := shared.Page{Page: query.Page, Limit: query.Limit}
	courses, total, err := s.store.ListCourses(queryCtx, shared.CourseFilter{
		Search:        strings.TrimSpace(query.Search),
		Category:      query.Category,
		Difficulty:    query.Difficulty,
		PublishedOnly: true,
	}, page)
	if err != nil {
		return nil, shared.Internal("failed to fetch courses", err)
	}
	if courses == nil {
		courses = []shared.Course{}
	}

	return &ListResult{
		Courses:     courses,
		Total:       total,
		TotalPages:  page.Pages(total),
		CurrentPage: query.Page,
	}, nil
}

// UpdateCourse applies a partial update. Only the owner or an admin may update.
func (s *CourseService) UpdateCourse(ctx context.Context, actor shared.User, req shared.RequestContext, id string, input UpdateInput) (*shared.Course, error) {
	if err := shared.Validate(input); err != nil {
		return nil, err
	}

	// 1. Load and authorize
	course, err := s.ownedCourse(ctx, actor, id, "Unauthorized to update this course")
	if err != nil {
		return nil, err
	}

	// 2. Apply changes
	if input.Title != nil {
		course.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		course.Description = *input.Description
	}
	if input.Category != nil {
		course.Category = *input.Category
	}
	if input.Difficulty != nil {
		course.Difficulty = *input.Difficulty
	}
	if input.Duration != nil {
		course.Duration = *input.Duration
	}
	if input.Tags != nil {
		course.Tags = *input.Tags
	}
	if input.IsPublished != nil {
		course.IsPublished = *input.IsPublished
	}
	if input.EnrollmentLimit != nil {
		course.EnrollmentLimit = input.EnrollmentLimit
	}
	course.UpdatedAt = s.now()

	// 3. Persist
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if err := s.store.UpdateCourse(queryCtx, course); err != nil {
		return nil, notFoundOr(err, "failed to update course")
	}

	s.audit(ctx, events.CourseUpdated, actor.ID, req, shared.ActionUpdate, course.ID, nil)
	return course, nil
}

// DeleteCourse removes a course. Only the owner or an admin may delete.
func (s *CourseService) DeleteCourse(ctx context.Context, actor shared.User, req shared.RequestContext, id string) error {
	course, err := s.ownedCourse(ctx, actor, id, "Unauthorized to delete this course")
	if err != nil {
		return err
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if err := s.store.DeleteCourse(queryCtx, course.ID); err != nil {
		return notFoundOr(err, "failed to delete course")
	}

	s.audit(ctx, events.CourseDeleted, actor.ID, req, shared.ActionDelete, course.ID, map[string]interface{}{"title": course.Title})
	return nil
}

// ============================================================================
// Enrollment
// ============================================================================

// Enroll adds the student to a published course
func (s *CourseService) Enroll(ctx context.Context, student shared.User, req shared.RequestContext, courseID string) error {
	ctx, span := telemetry.StartSpan(ctx, "course.Enroll")
	defer span.End()

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// 1. Course must exist and be published
	course, err := s.store.GetCourse(queryCtx, courseID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return shared.Internal("failed to fetch course", err)
	}
	if course == nil || !course.IsPublished {
		return shared.NewError(shared.KindNotFound, "Course not found or not published")
	}

	// 2. Atomic duplicate and capacity check
	err = s.store.AddEnrollment(queryCtx, courseID, shared.Enrollment{
		StudentID:  student.ID,
		EnrolledAt: s.now(),
	})
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		return shared.NewError(shared.KindConflict, "Already enrolled in this course")
	case errors.Is(err, storage.ErrPreconditionFailed):
		return shared.NewError(shared.KindConflict, "Course enrollment limit reached")
	case errors.Is(err, storage.ErrNotFound):
		return shared.NewError(shared.KindNotFound, "Course not found or not published")
	case err != nil:
		return shared.Internal("failed to enroll in course", err)
	}

	// 3. Side effects
	s.publish(ctx, events.Event{
		Type:    events.CourseEnrolled,
		ActorID: student.ID,
		Request: req,
		Audit: &shared.AuditLog{
			Action:     shared.ActionEnroll,
			Resource:   shared.ResourceCourse,
			ResourceID: course.ID,
		},
		Notifications: []shared.Notification{{
			RecipientID:  student.ID,
			Type:         shared.NotifyCourseEnrollment,
			Title:        "Enrollment Successful",
			Message:      fmt.Sprintf("You have successfully enrolled in %s", course.Title),
			RelatedID:    course.ID,
			RelatedModel: "Course",
		}},
	})
	return nil
}

// Unenroll removes the student from a course
func (s *CourseService) Unenroll(ctx context.Context, student shared.User, courseID string) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if err := s.store.RemoveEnrollment(queryCtx, courseID, student.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return shared.NewError(shared.KindNotFound, "Not enrolled in this course")
		}
		return shared.Internal("failed to unenroll", err)
	}
	return nil
}

// MyCourses returns enrolled courses for students, owned courses for
// instructors and every course for admins
func (s *CourseService) MyCourses(ctx context.Context, user shared.User) ([]shared.Course, error) {
	filter := shared.CourseFilter{}
	switch user.Role {
	case shared.RoleStudent:
		filter.StudentID = user.ID
	case shared.RoleInstructor:
		filter.InstructorID = user.ID
	case shared.RoleAdmin:
	default:
		return []shared.Course{}, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	courses, _, err := s.store.ListCourses(queryCtx, filter, shared.Page{Page: 1})
	if err != nil {
		return nil, shared.Internal("failed to fetch courses", err)
	}
	if courses == nil {
		courses = []shared.Course{}
	}
	return courses, nil
}

// UpdateProgress records the student's completion percentage in a course
func (s *CourseService) UpdateProgress(ctx context.Context, student shared.User, courseID string, progress int) error {
	if progress < 0 || progress > 100 {
		return shared.ValidationFailed("Validation failed", shared.FieldError{
			Field:   "progress",
			Message: "progress must be between 0 and 100",
		})
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if err := s.store.UpdateProgress(queryCtx, courseID, student.ID, progress); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return shared.NewError(shared.KindNotFound, "Not enrolled in this course")
		}
		return shared.Internal("failed to update progress", err)
	}
	return nil
}

// ============================================================================
// Internal Helpers
// ============================================================================

// ownedCourse loads a course and checks the actor may modify it
func (s *CourseService) ownedCourse(ctx context.Context, actor shared.User, id, deniedMessage string) (*shared.Course, error) {
	if !shared.IsStaff(actor.Role) {
		return nil, shared.NewError(shared.KindForbidden, "Access denied. Insufficient permissions.")
	}

	course, err := s.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if !course.IsOwnedBy(actor.ID) && actor.Role != shared.RoleAdmin {
		return nil, shared.NewError(shared.KindForbidden, deniedMessage)
	}
	return course, nil
}

func (s *CourseService) audit(ctx context.Context, eventType, actorID string, req shared.RequestContext, action, courseID string, details map[string]interface{}) {
	s.publish(ctx, events.Event{
		Type:    eventType,
		ActorID: actorID,
		Request: req,
		Audit: &shared.AuditLog{
			Action:     action,
			Resource:   shared.ResourceCourse,
			ResourceID: courseID,
			Details:    details,
		},
	})
}

func (s *CourseService) publish(ctx context.Context, event events.Event) {
	if s.publisher != nil {
		s.publisher.Publish(ctx, event)
	}
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return shared.NewError(shared.KindNotFound, "Course not found")
	}
	return shared.Internal(message, err)
}
