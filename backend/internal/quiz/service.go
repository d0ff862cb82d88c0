// Package quiz owns quiz authoring and the attempt engine: a student starts
// (or resumes) an attempt, submits answers once, and the attempt is scored
// and closed. Attempts are embedded in the quiz document.
package quiz

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

// Store is the persistence the quiz service needs
type Store interface {
	storage.Courses
	storage.Quizzes
}

// QuizService implements quiz authoring and the attempt engine
type QuizService struct {
	store     Store
	publisher events.Publisher
	now       func() time.Time
}

// NewQuizService creates a new QuizService instance
func NewQuizService(store Store, publisher events.Publisher) *QuizService {
	return &QuizService{
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// QuestionInput is one question of a create request
type QuestionInput struct {
	Question      string   `json:"question" validate:"required"`
	Type          string   `json:"type" validate:"required,oneof=multiple-choice true-false short-answer"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Points        *int     `json:"points" validate:"omitempty,gte=0"`
	Explanation   string   `json:"explanation"`
}

// CreateInput is the body of a create request
type CreateInput struct {
	CourseID         string          `json:"course" validate:"required"`
	Title            string          `json:"title" validate:"required,max=200"`
	Description      string          `json:"description"`
	Questions        []QuestionInput `json:"questions" validate:"required,min=1,dive"`
	TimeLimit        int             `json:"timeLimit" validate:"gte=0"`
	AttemptLimit     int             `json:"attemptLimit" validate:"gte=0"`
	DueDate          *time.Time      `json:"dueDate"`
	IsPublished      bool            `json:"isPublished"`
	ShuffleQuestions bool            `json:"shuffleQuestions"`
	ShowResults      string          `json:"showResults" validate:"omitempty,oneof=immediately after-due-date never"`
}

// Result is the outcome of a submitted attempt
type Result struct {
	Score       int                    `json:"score"`
	TotalPoints int                    `json:"totalPoints"`
	Percentage  int                    `json:"percentage"`
	Answers     []shared.AttemptAnswer `json:"-"`
}

// ============================================================================
// Authoring
// ============================================================================

// CreateQuiz creates a quiz in a course the actor owns
func (s *QuizService) CreateQuiz(ctx context.Context, actor shared.User, req shared.RequestContext, input CreateInput) (*shared.Quiz, error) {
	ctx, span := telemetry.StartSpan(ctx, "quiz.Create")
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
	course, err := s.store.GetCourse(queryCtx, input.CourseID)
	if err != nil {
		return nil, notFoundOr(err, "Course not found", "failed to fetch course")
	}
	if !course.IsOwnedBy(actor.ID) && actor.Role != shared.RoleAdmin {
		return nil, shared.NewError(shared.KindForbidden, "Unauthorized to create quiz for this course")
	}

	// 2. Build with defaults
	questions := make([]shared.Question, len(input.Questions))
	for i, q := range input.Questions {
		points := 1
		if q.Points != nil {
			points = *q.Points
		}
		questions[i] = shared.Question{
			Question:      q.Question,
			Type:          q.Type,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Points:        points,
			Explanation:   q.Explanation,
		}
	}

	now := s.now()
	quiz := shared.Quiz{
		ID:               shared.GenerateID("quiz"),
		Title:            strings.TrimSpace(input.Title),
		Description:      input.Description,
		CourseID:         course.ID,
		InstructorID:     actor.ID,
		Questions:        questions,
		TimeLimit:        input.TimeLimit,
		AttemptLimit:     input.AttemptLimit,
		DueDate:          input.DueDate,
		IsPublished:      input.IsPublished,
		ShuffleQuestions: input.ShuffleQuestions,
		ShowResults:      input.ShowResults,
		Attempts:         []shared.Attempt{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if quiz.TimeLimit == 0 {
		quiz.TimeLimit = shared.DefaultTimeLimit
	}
	if quiz.AttemptLimit == 0 {
		quiz.AttemptLimit = shared.DefaultAttemptLimit
	}
	if quiz.ShowResults == "" {
		quiz.ShowResults = shared.ShowResultsImmediately
	}

	// 3. Persist and link to the course
	if err := s.store.CreateQuiz(queryCtx, &quiz); err != nil {
		return nil, shared.Internal("failed to create quiz", err)
	}
	if err := s.store.AttachQuiz(queryCtx, course.ID, quiz.ID); err != nil {
		return nil, shared.Internal("failed to link quiz to course", err)
	}

	s.publish(ctx, events.Event{
		Type:    events.QuizCreated,
		ActorID: actor.ID,
		Request: req,
		Audit: &shared.AuditLog{
			Action:     shared.ActionCreate,
			Resource:   shared.ResourceQuiz,
			ResourceID: quiz.ID,
			Details:    map[string]interface{}{"course": course.ID, "questions": len(questions)},
		},
	})
	return &quiz, nil
}

// GetQuiz retrieves a quiz. Students never see the answer key or other
// students' attempts.
func (s *QuizService) GetQuiz(ctx context.Context, viewer shared.User, id string) (*shared.Quiz, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	quiz, err := s.store.GetQuiz(queryCtx, id)
	if err != nil {
		return nil, notFoundOr(err, "Quiz not found", "failed to fetch quiz")
	}
	if !shared.IsStaff(viewer.Role) {
		redacted := quiz.WithoutAnswerKey()
		return &redacted, nil
	}
	return quiz, nil
}

// ListByCourse returns a course's quizzes without attempts. Students only
// see published quizzes, never the answer key.
func (s *QuizService) ListByCourse(ctx context.Context, viewer shared.User, courseID string) ([]shared.Quiz, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	staff := shared.IsStaff(viewer.Role)
	quizzes, err := s.store.ListQuizzesByCourse(queryCtx, courseID, !staff)
	if err != nil {
		return nil, shared.Internal("failed to fetch quizzes", err)
	}
	if quizzes == nil {
		quizzes = []shared.Quiz{}
	}
	if !staff {
		for i := range quizzes {
			quizzes[i] = quizzes[i].WithoutAnswerKey()
		}
	}
	return quizzes, nil
}

// ============================================================================
// Attempt Engine
// ============================================================================

// StartAttempt resumes the student's incomplete attempt or starts a new one
// when the attempt limit allows. The second return value reports a resume.
func (s *QuizService) StartAttempt(ctx context.Context, student shared.User, quizID string) (*shared.Attempt, bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "quiz.StartAttempt")
	defer span.End()

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	attempt := shared.Attempt{
		ID:        shared.GenerateID("att"),
		StudentID: student.ID,
		StartedAt: s.now(),
		Answers:   []shared.AttemptAnswer{},
	}

	result, resumed, err := s.store.AppendAttempt(queryCtx, quizID, attempt)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, false, shared.NewError(shared.KindNotFound, "Quiz not found")
	case errors.Is(err, storage.ErrPreconditionFailed):
		return nil, false, shared.NewError(shared.KindAttemptLimitExceeded, "Maximum attempts reached")
	case err != nil:
		return nil, false, shared.Internal("failed to start quiz", err)
	}
	return &result, resumed, nil
}

// SubmitAttempt scores the student's active attempt and completes it
func (s *QuizService) SubmitAttempt(ctx context.Context, student shared.User, req shared.RequestContext, quizID string, answers []string) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "quiz.SubmitAttempt")
	defer span.End()

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// 1. Find quiz and active attempt
	quiz, err := s.store.GetQuiz(queryCtx, quizID)
	if err != nil {
		return nil, notFoundOr(err, "Quiz not found", "failed to fetch quiz")
	}
	active, ok := quiz.ActiveAttempt(student.ID)
	if !ok {
		return nil, shared.NewError(shared.KindConflict, "No active attempt found")
	}

	// 2. Score
	result := Score(quiz.Questions, answers)

	// 3. Complete iff still incomplete
	submittedAt := s.now()
	active.Answers = result.Answers
	active.Score = result.Score
	active.TotalPoints = result.TotalPoints
	active.SubmittedAt = &submittedAt
	active.IsCompleted = true

	if err := s.store.CompleteAttempt(queryCtx, quiz.ID, active); err != nil {
		if errors.Is(err, storage.ErrPreconditionFailed) {
			return nil, shared.NewError(shared.KindConflict, "Attempt was already submitted")
		}
		return nil, notFoundOr(err, "Quiz not found", "failed to submit quiz")
	}

	// 4. Side effects
	s.publish(ctx, events.Event{
		Type:    events.QuizAttemptFinished,
		ActorID: student.ID,
		Request: req,
		Audit: &shared.AuditLog{
			Action:     shared.ActionSubmit,
			Resource:   shared.ResourceQuiz,
			ResourceID: quiz.ID,
			Details: map[string]interface{}{
				"attempt":     active.ID,
				"score":       result.Score,
				"totalPoints": result.TotalPoints,
			},
		},
		Notifications: []shared.Notification{{
			RecipientID:  student.ID,
			Type:         shared.NotifyQuizCompleted,
			Title:        "Quiz Completed",
			Message:      fmt.Sprintf("You scored %d/%d (%d%%) on \"%s\"", result.Score, result.TotalPoints, result.Percentage, quiz.Title),
			RelatedID:    quiz.ID,
			RelatedModel: "Quiz",
		}},
	})

	return &result, nil
}

// MyAttempts returns the student's attempts at a quiz
func (s *QuizService) MyAttempts(ctx context.Context, student shared.User, quizID string) ([]shared.Attempt, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	quiz, err := s.store.GetQuiz(queryCtx, quizID)
	if err != nil {
		return nil, notFoundOr(err, "Quiz not found", "failed to fetch quiz")
	}
	attempts := quiz.AttemptsBy(student.ID)
	if attempts == nil {
		attempts = []shared.Attempt{}
	}
	return attempts, nil
}

// Score grades answers against questions by index. Only indices present in
// both are scored: trailing unanswered questions add nothing to the total
// and extra answers are ignored. Comparison is case-insensitive.
func Score(questions []shared.Question, answers []string) Result {
	result := Result{Answers: []shared.AttemptAnswer{}}

	for i, answer := range answers {
		if i >= len(questions) {
			break
		}
		question := questions[i]
		result.TotalPoints += question.Points

		correct := strings.EqualFold(answer, question.CorrectAnswer)
		points := 0
		if correct {
			points = question.Points
			result.Score += points
		}
		result.Answers = append(result.Answers, shared.AttemptAnswer{
			QuestionIndex: i,
			Answer:        answer,
			IsCorrect:     correct,
			Points:        points,
		})
	}

	result.Percentage = Percentage(result.Score, result.TotalPoints)
	return result
}

// Percentage rounds score/total to the nearest whole percent; zero total is 0%
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return int(float64(score)*100/float64(total) + 0.5)
}

// ============================================================================
// Internal Helpers
// ============================================================================

func (s *QuizService) publish(ctx context.Context, event events.Event) {
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
