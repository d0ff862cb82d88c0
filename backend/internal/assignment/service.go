// Package assignment owns assignment authoring and the submission
// lifecycle: SUBMITTED -> GRADED (re-gradable) -> RETURNED (terminal).
package assignment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"lms_backend/backend/internal/events"
	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
	"lms_backend/backend/internal/telemetry"
)

const queryTimeout = 10 * time.Second

// Store is the persistence the assignment service needs
type Store interface {
	storage.Courses
	storage.Assignments
	storage.Submissions
}

// AssignmentService implements assignment authoring and the submission lifecycle
type AssignmentService struct {
	store     Store
	publisher events.Publisher
	now       func() time.Time
}

// NewAssignmentService creates a new AssignmentService instance
func NewAssignmentService(store Store, publisher events.Publisher) *AssignmentService {
	return &AssignmentService{
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// CreateInput is the body of a create request
type CreateInput struct {
	CourseID             string              `json:"course" validate:"required"`
	Title                string              `json:"title" validate:"required,max=200"`
	Description          string              `json:"description" validate:"required"`
	Instructions         string              `json:"instructions"`
	DueDate              time.Time           `json:"dueDate" validate:"required"`
	MaxPoints            int                 `json:"maxPoints" validate:"gte=0"`
	Attachments          []string            `json:"attachments"`
	Rubric               []shared.RubricItem `json:"rubric" validate:"dive"`
	IsPublished          bool                `json:"isPublished"`
	AllowLateSubmissions *bool               `json:"allowLateSubmissions"`
	LatePenalty          float64             `json:"latePenalty" validate:"gte=0,lte=100"`
}

// SubmitInput is a student's work for one assignment. Content is trimmed;
// blank content is accepted only alongside attachments.
type SubmitInput struct {
	Content     string              `json:"content"`
	Attachments []shared.Attachment `json:"attachments"`
}

// GradeInput is a grader's verdict. Grade is a pointer so a missing grade
// is distinguishable from zero.
type GradeInput struct {
	Grade    *float64 `json:"grade" validate:"required,gte=0,lte=100"`
	Feedback string   `json:"feedback" validate:"max=5000"`
}

// ============================================================================
// Authoring
// ============================================================================

// CreateAssignment creates an assignment in a course the actor owns
func (s *AssignmentService) CreateAssignment(ctx context.Context, actor shared.User, req shared.RequestContext, input CreateInput) (*shared.Assignment, error) {
	ctx, span := telemetry.StartSpan(ctx, "assignment.Create")
	defer span.End()

	if !shared.IsStaff(actor.Role) {
		return nil, shared.NewError(shared.KindForbidden, "Access denied. Insufficient permissions.")
	}
	if err := shared.Validate(input); err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// 1. Verify instructor owns the course or is admin
	if err := s.validateInstructorForCourse(queryCtx, actor, input.CourseID, "Unauthorized to create assignment for this course"); err != nil {
		return nil, err
	}

	// 2. Build with defaults
	now := s.now()
	assignment := shared.Assignment{
		ID:                   shared.GenerateID("asg"),
		Title:                strings.TrimSpace(input.Title),
		Description:          input.Description,
		Instructions:         input.Instructions,
		CourseID:             input.CourseID,
		InstructorID:         actor.ID,
		DueDate:              input.DueDate,
		MaxPoints:            input.MaxPoints,
		Attachments:          input.Attachments,
		Rubric:               input.Rubric,
		IsPublished:          input.IsPublished,
		AllowLateSubmissions: true,
		LatePenalty:          input.LatePenalty,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if assignment.MaxPoints == 0 {
		assignment.MaxPoints = shared.DefaultMaxPoints
	}
	if input.AllowLateSubmissions != nil {
		assignment.AllowLateSubmissions = *input.AllowLateSubmissions
	}

	// 3. Persist and link to the course
	if err := s.store.CreateAssignment(queryCtx, &assignment); err != nil {
		return nil, shared.Internal("failed to create assignment", err)
	}
	if err := s.store.AttachAssignment(queryCtx, assignment.CourseID, assignment.ID); err != nil {
		return nil, shared.Internal("failed to link assignment to course", err)
	}

	s.publish(ctx, events.Event{
		Type:    events.AssignmentCreated,
		ActorID: actor.ID,
		Request: req,
		Audit: &shared.AuditLog{
			Action:     shared.ActionCreate,
			Resource:   shared.ResourceAssignment,
			ResourceID: assignment.ID,
			Details:    map[string]interface{}{"course": assignment.CourseID, "title": assignment.Title},
		},
	})
	return &assignment, nil
}

// GetAssignment retrieves a single assignment
func (s *AssignmentService) GetAssignment(ctx context.Context, id string) (*shared.Assignment, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	assignment, err := s.store.GetAssignment(queryCtx, id)
	if err != nil {
		return nil, notFoundOr(err, "Assignment not found", "failed to fetch assignment")
	}
	return assignment, nil
}

// ListByCourse returns a course's assignments. Students only see published ones.
func (s *AssignmentService) ListByCourse(ctx context.Context, actor shared.User, courseID string) ([]shared.Assignment, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	assignments, err := s.store.ListAssignmentsByCourse(queryCtx, courseID, !shared.IsStaff(actor.Role))
	if err != nil {
		return nil, shared.Internal("failed to fetch assignments", err)
	}
	if assignments == nil {
		assignments = []shared.Assignment{}
	}
	return assignments, nil
}

// ============================================================================
// Submission Lifecycle
// ============================================================================

// Submit records a student's submission under the given late policy.
// Checks run in order: assignment exists, no prior submission, deadline.
func (s *AssignmentService) Submit(ctx context.Context, student shared.User, req shared.RequestContext, assignmentID string, input SubmitInput, policy string) (*shared.Submission, error) {
	ctx, span := telemetry.StartSpan(ctx, "assignment.Submit")
	defer span.End()

	if student.Role != shared.RoleStudent {
		return nil, shared.NewError(shared.KindForbidden, "Only students can submit assignments")
	}
	if !shared.IsValidLatePolicy(policy) {
		return nil, shared.ValidationFailed("Validation failed", shared.FieldError{
			Field:   "latePolicy",
			Message: fmt.Sprintf("latePolicy must be one of [%s %s %s]", shared.LatePolicyStrict, shared.LatePolicyAssignment, shared.LatePolicyPenalty),
		})
	}

	input.Content = strings.TrimSpace(input.Content)
	if input.Content == "" && len(input.Attachments) == 0 {
		return nil, shared.ValidationFailed("Validation failed", shared.FieldError{
			Field:   "content",
			Message: "Content or attachments are required",
		})
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// 1. Assignment must exist
	assignment, err := s.store.GetAssignment(queryCtx, assignmentID)
	if err != nil {
		return nil, notFoundOr(err, "Assignment not found", "failed to fetch assignment")
	}

	// 2. Fast-path duplicate check; the unique insert below is authoritative
	if _, err := s.store.FindSubmission(queryCtx, assignmentID, student.ID); err == nil {
		return nil, shared.NewError(shared.KindConflict, "Assignment already submitted")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, shared.Internal("failed to check existing submission", err)
	}

	// 3. Deadline
	now := s.now()
	lateness, err := EvaluateLateness(assignment, now, policy)
	if err != nil {
		return nil, err
	}

	// 4. Insert
	submission := shared.Submission{
		ID:             shared.GenerateID("sub"),
		AssignmentID:   assignment.ID,
		StudentID:      student.ID,
		Content:        input.Content,
		Attachments:    input.Attachments,
		SubmittedAt:    now,
		IsLate:         lateness.IsLate,
		DaysLate:       lateness.DaysLate,
		PenaltyPercent: lateness.PenaltyPercent,
		Status:         shared.StatusSubmitted,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if submission.Attachments == nil {
		submission.Attachments = []shared.Attachment{}
	}
	for i := range submission.Attachments {
		if submission.Attachments[i].UploadDate.IsZero() {
			submission.Attachments[i].UploadDate = now
		}
	}

	if err := s.store.InsertSubmission(queryCtx, &submission); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, shared.NewError(shared.KindConflict, "Assignment already submitted")
		}
		return nil, shared.Internal("failed to submit assignment", err)
	}

	// 5. Side effects
	s.publish(ctx, events.Event{
		Type:    events.SubmissionCreated,
		ActorID: student.ID,
		Request: req,
		Audit: &shared.AuditLog{
			Action:     shared.ActionSubmit,
			Resource:   shared.ResourceAssignment,
			ResourceID: assignment.ID,
			Details: map[string]interface{}{
				"submission": submission.ID,
				"isLate":     submission.IsLate,
				"latePolicy": policy,
			},
		},
		Notifications: []shared.Notification{{
			RecipientID:  assignment.InstructorID,
			SenderID:     student.ID,
			Type:         shared.NotifyAssignmentSubmitted,
			Title:        "New Submission",
			Message:      fmt.Sprintf("%s submitted \"%s\"", student.Name, assignment.Title),
			RelatedID:    submission.ID,
			RelatedModel: "Submission",
		}},
	})

	return &submission, nil
}

// GradeSubmission grades a submission by its ID
func (s *AssignmentService) GradeSubmission(ctx context.Context, grader shared.User, req shared.RequestContext, submissionID string, input GradeInput) (*shared.Submission, error) {
	if err := s.checkGradeInput(grader, input); err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	submission, err := s.store.GetSubmission(queryCtx, submissionID)
	if err != nil {
		return nil, notFoundOr(err, "Submission not found", "failed to fetch submission")
	}
	return s.grade(ctx, grader, req, submission, input)
}

// GradeByStudent grades the submission a student made for an assignment
func (s *AssignmentService) GradeByStudent(ctx context.Context, grader shared.User, req shared.RequestContext, assignmentID, studentID string, input GradeInput) (*shared.Submission, error) {
	if err := s.checkGradeInput(grader, input); err != nil {
		return nil, err
	}
	if studentID == "" {
		return nil, shared.ValidationFailed("Validation failed", shared.FieldError{Field: "studentId", Message: "studentId is a required field"})
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := s.store.GetAssignment(queryCtx, assignmentID); err != nil {
		return nil, notFoundOr(err, "Assignment not found", "failed to fetch assignment")
	}

	submission, err := s.store.FindSubmission(queryCtx, assignmentID, studentID)
	if err != nil {
		return nil, notFoundOr(err, "Submission not found", "failed to fetch submission")
	}
	return s.grade(ctx, grader, req, submission, input)
}

// grade applies a grade with a version check against the loaded submission
func (s *AssignmentService) grade(ctx context.Context, grader shared.User, req shared.RequestContext, submission *shared.Submission, input GradeInput) (*shared.Submission, error) {
	ctx, span := telemetry.StartSpan(ctx, "assignment.Grade")
	defer span.End()

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// 1. Authorize against the owning course
	assignment, err := s.store.GetAssignment(queryCtx, submission.AssignmentID)
	if err != nil {
		return nil, notFoundOr(err, "Assignment not found", "failed to fetch assignment")
	}
	if err := s.validateInstructorForCourse(queryCtx, grader, assignment.CourseID, "Unauthorized to grade this assignment"); err != nil {
		return nil, err
	}

	// 2. RETURNED is terminal
	if submission.Status == shared.StatusReturned {
		return nil, shared.NewError(shared.KindConflict, "Submission has already been returned")
	}

	// 3. Conditional update on the version we read
	grade := *input.Grade
	update := shared.GradeUpdate{
		Grade:          grade,
		EffectiveGrade: EffectiveGrade(grade, submission.PenaltyPercent),
		Feedback:       strings.TrimSpace(input.Feedback),
		GradedBy:       grader.ID,
		GradedAt:       s.now(),
	}

	graded, err := s.store.UpdateGrade(queryCtx, submission.ID, submission.Version, update)
	switch {
	case errors.Is(err, storage.ErrPreconditionFailed):
		return nil, shared.NewError(shared.KindConflict, "Submission was modified concurrently, reload and retry")
	case errors.Is(err, storage.ErrNotFound):
		return nil, shared.NewError(shared.KindNotFound, "Submission not found")
	case err != nil:
		return nil, shared.Internal("failed to grade submission", err)
	}

	// 4. Side effects
	s.publish(ctx, events.Event{
		Type:    events.SubmissionGraded,
		ActorID: grader.ID,
		Request: req,
		Audit: &shared.AuditLog{
			Action:     shared.ActionGrade,
			Resource:   shared.ResourceAssignment,
			ResourceID: assignment.ID,
			Details: map[string]interface{}{
				"submission": graded.ID,
				"student":    graded.StudentID,
				"grade":      grade,
			},
		},
		Notifications: []shared.Notification{{
			RecipientID:  graded.StudentID,
			SenderID:     grader.ID,
			Type:         shared.NotifyGradePosted,
			Title:        "Assignment Graded",
			Message:      fmt.Sprintf("Your assignment \"%s\" has been graded", assignment.Title),
			RelatedID:    graded.ID,
			RelatedModel: "Submission",
			Priority:     shared.PriorityHigh,
		}},
	})

	return graded, nil
}

// Return hands a graded submission back to the student. Only GRADED
// submissions can be returned.
func (s *AssignmentService) Return(ctx context.Context, actor shared.User, req shared.RequestContext, submissionID string) (*shared.Submission, error) {
	if !shared.IsStaff(actor.Role) {
		return nil, shared.NewError(shared.KindForbidden, "Access denied. Insufficient permissions.")
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	submission, err := s.store.GetSubmission(queryCtx, submissionID)
	if err != nil {
		return nil, notFoundOr(err, "Submission not found", "failed to fetch submission")
	}
	assignment, err := s.store.GetAssignment(queryCtx, submission.AssignmentID)
	if err != nil {
		return nil, notFoundOr(err, "Assignment not found", "failed to fetch assignment")
	}
	if err := s.validateInstructorForCourse(queryCtx, actor, assignment.CourseID, "Unauthorized to return this submission"); err != nil {
		return nil, err
	}
	if submission.Status != shared.StatusGraded {
		return nil, shared.NewError(shared.KindConflict, fmt.Sprintf("Cannot return a submission in status %s", submission.Status))
	}

	returned, err := s.store.MarkReturned(queryCtx, submission.ID, submission.Version, s.now())
	switch {
	case errors.Is(err, storage.ErrPreconditionFailed):
		return nil, shared.NewError(shared.KindConflict, "Submission was modified concurrently, reload and retry")
	case err != nil:
		return nil, notFoundOr(err, "Submission not found", "failed to return submission")
	}

	s.publish(ctx, events.Event{
		Type:    events.SubmissionReturned,
		ActorID: actor.ID,
		Request: req,
		Audit: &shared.AuditLog{
			Action:     shared.ActionUpdate,
			Resource:   shared.ResourceAssignment,
			ResourceID: assignment.ID,
			Details:    map[string]interface{}{"submission": returned.ID, "status": returned.Status},
		},
	})
	return returned, nil
}

// ListSubmissions returns every submission for an assignment (staff only)
func (s *AssignmentService) ListSubmissions(ctx context.Context, actor shared.User, assignmentID string) ([]shared.Submission, error) {
	if !shared.IsStaff(actor.Role) {
		return nil, shared.NewError(shared.KindForbidden, "Access denied. Insufficient permissions.")
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := s.store.GetAssignment(queryCtx, assignmentID); err != nil {
		return nil, notFoundOr(err, "Assignment not found", "failed to fetch assignment")
	}

	submissions, err := s.store.ListSubmissionsByAssignment(queryCtx, assignmentID)
	if err != nil {
		return nil, shared.Internal("failed to fetch submissions", err)
	}
	if submissions == nil {
		submissions = []shared.Submission{}
	}
	return submissions, nil
}

// MySubmissions returns the student's own submissions, newest first
func (s *AssignmentService) MySubmissions(ctx context.Context, student shared.User) ([]shared.Submission, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	submissions, err := s.store.ListSubmissionsByStudent(queryCtx, student.ID)
	if err != nil {
		return nil, shared.Internal("failed to fetch submissions", err)
	}
	if submissions == nil {
		submissions = []shared.Submission{}
	}
	return submissions, nil
}

// ============================================================================
// Late Policy
// ============================================================================

// Lateness is the outcome of checking a submission time against a due date
type Lateness struct {
	IsLate         bool
	DaysLate       int
	PenaltyPercent float64
}

// EvaluateLateness applies a late policy:
//   - strict rejects anything after the due date
//   - assignment rejects late work only when the assignment disallows it
//   - penalty behaves like assignment and also records the penalty owed
func EvaluateLateness(assignment *shared.Assignment, now time.Time, policy string) (Lateness, error) {
	if !now.After(assignment.DueDate) {
		return Lateness{}, nil
	}

	deadlinePassed := shared.NewError(shared.KindDeadlinePassed, "Assignment submission deadline has passed")
	switch policy {
	case shared.LatePolicyStrict:
		return Lateness{}, deadlinePassed
	case shared.LatePolicyAssignment:
		if !assignment.AllowLateSubmissions {
			return Lateness{}, deadlinePassed
		}
		return Lateness{IsLate: true}, nil
	case shared.LatePolicyPenalty:
		if !assignment.AllowLateSubmissions {
			return Lateness{}, deadlinePassed
		}
		days := int(math.Ceil(now.Sub(assignment.DueDate).Hours() / 24))
		return Lateness{
			IsLate:         true,
			DaysLate:       days,
			PenaltyPercent: math.Min(100, assignment.LatePenalty*float64(days)),
		}, nil
	}
	return Lateness{}, shared.NewError(shared.KindValidation, fmt.Sprintf("unknown late policy %q", policy))
}

// EffectiveGrade applies a late penalty percentage to a raw grade,
// rounded to two decimals
func EffectiveGrade(grade, penaltyPercent float64) float64 {
	if penaltyPercent <= 0 {
		return grade
	}
	effective := grade * (1 - penaltyPercent/100)
	return math.Round(effective*100) / 100
}

// ============================================================================
// Internal Helpers
// ============================================================================

func (s *AssignmentService) checkGradeInput(grader shared.User, input GradeInput) error {
	if !shared.IsStaff(grader.Role) {
		return shared.NewError(shared.KindForbidden, "Access denied. Insufficient permissions.")
	}
	return shared.Validate(input)
}

// validateInstructorForCourse checks the course exists and the actor owns it or is admin
func (s *AssignmentService) validateInstructorForCourse(ctx context.Context, actor shared.User, courseID, deniedMessage string) error {
	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return notFoundOr(err, "Course not found", "failed to fetch course")
	}
	if !course.IsOwnedBy(actor.ID) && actor.Role != shared.RoleAdmin {
		return shared.NewError(shared.KindForbidden, deniedMessage)
	}
	return nil
}

func (s *AssignmentService) publish(ctx context.Context, event events.Event) {
	if s.publisher != nil {
		s.publisher.Publish(ctx, event)
	}
}

func notFoundOr(err error, notFound, message string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return shared.NewError(shared.KindNotFound, notFound)
	}
	return shared.Internal(message, err)
}
