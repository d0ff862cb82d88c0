// Package storage defines the persistence contracts used by the LMS services.
//
// Every atomic rule the services depend on (one submission per student and
// assignment, version-checked grading, attempt limits, enrollment limits) is
// enforced here, inside a single storage operation, so that concurrent
// requests cannot interleave between a check and its write.
package storage

import (
	"context"
	"errors"
	"time"

	"lms_backend/backend/internal/shared"
)

var (
	// ErrNotFound is returned when the addressed document does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicate is returned when a uniqueness constraint would be violated.
	ErrDuplicate = errors.New("storage: duplicate")
	// ErrPreconditionFailed is returned when a conditional write did not apply.
	ErrPreconditionFailed = errors.New("storage: precondition failed")
)

// Users persists user accounts. Email is unique.
type Users interface {
	CreateUser(ctx context.Context, user *shared.User) error
	GetUser(ctx context.Context, id string) (*shared.User, error)
	GetUserByEmail(ctx context.Context, email string) (*shared.User, error)
	ListUsers(ctx context.Context, role string) ([]shared.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetUserActive(ctx context.Context, id string, active bool) error
	// UpdateUser rewrites the profile fields (name, email, role). A taken
	// email yields ErrDuplicate.
	UpdateUser(ctx context.Context, user *shared.User) error
	DeleteUser(ctx context.Context, id string) error
}

// Sessions persists issued tokens so they can be revoked.
type Sessions interface {
	CreateSession(ctx context.Context, session *shared.Session) error
	SessionExists(ctx context.Context, token string) (bool, error)
	DeleteSession(ctx context.Context, token string) (int64, error)
	DeleteUserSessions(ctx context.Context, userID string) error
}

// Courses persists courses and their enrolled student sets.
type Courses interface {
	CreateCourse(ctx context.Context, course *shared.Course) error
	GetCourse(ctx context.Context, id string) (*shared.Course, error)
	ListCourses(ctx context.Context, filter shared.CourseFilter, page shared.Page) ([]shared.Course, int64, error)
	UpdateCourse(ctx context.Context, course *shared.Course) error
	DeleteCourse(ctx context.Context, id string) error

	// AddEnrollment appends the student iff not yet enrolled (ErrDuplicate)
	// and the enrollment limit is not reached (ErrPreconditionFailed).
	AddEnrollment(ctx context.Context, courseID string, enrollment shared.Enrollment) error
	RemoveEnrollment(ctx context.Context, courseID, studentID string) error
	UpdateProgress(ctx context.Context, courseID, studentID string, progress int) error

	AttachAssignment(ctx context.Context, courseID, assignmentID string) error
	AttachQuiz(ctx context.Context, courseID, quizID string) error
}

// Lectures persists course lectures. Listings are ordered by Order.
type Lectures interface {
	CreateLecture(ctx context.Context, lecture *shared.Lecture) error
	GetLecture(ctx context.Context, id string) (*shared.Lecture, error)
	ListLecturesByCourse(ctx context.Context, courseID string, publishedOnly bool) ([]shared.Lecture, error)
	UpdateLecture(ctx context.Context, lecture *shared.Lecture) error
	DeleteLecture(ctx context.Context, id string) error
}

// Assignments persists assignment definitions.
type Assignments interface {
	CreateAssignment(ctx context.Context, assignment *shared.Assignment) error
	GetAssignment(ctx context.Context, id string) (*shared.Assignment, error)
	ListAssignmentsByCourse(ctx context.Context, courseID string, publishedOnly bool) ([]shared.Assignment, error)
}

// Submissions persists the canonical submission records.
type Submissions interface {
	// InsertSubmission fails with ErrDuplicate when the (assignment, student)
	// pair already has a submission.
	InsertSubmission(ctx context.Context, submission *shared.Submission) error
	GetSubmission(ctx context.Context, id string) (*shared.Submission, error)
	FindSubmission(ctx context.Context, assignmentID, studentID string) (*shared.Submission, error)
	ListSubmissionsByAssignment(ctx context.Context, assignmentID string) ([]shared.Submission, error)
	ListSubmissionsByStudent(ctx context.Context, studentID string) ([]shared.Submission, error)

	// UpdateGrade applies iff the stored version equals expectedVersion and the
	// submission is not RETURNED. Otherwise ErrPreconditionFailed.
	UpdateGrade(ctx context.Context, id string, expectedVersion int64, update shared.GradeUpdate) (*shared.Submission, error)
	// MarkReturned moves a GRADED submission at expectedVersion to RETURNED.
	MarkReturned(ctx context.Context, id string, expectedVersion int64, at time.Time) (*shared.Submission, error)
}

// Quizzes persists quizzes and their embedded attempts.
type Quizzes interface {
	CreateQuiz(ctx context.Context, quiz *shared.Quiz) error
	GetQuiz(ctx context.Context, id string) (*shared.Quiz, error)
	ListQuizzesByCourse(ctx context.Context, courseID string, publishedOnly bool) ([]shared.Quiz, error)

	// AppendAttempt atomically resumes the student's incomplete attempt
	// (resumed=true), rejects with ErrPreconditionFailed when the student's
	// attempt count has reached the quiz limit, or appends attempt.
	AppendAttempt(ctx context.Context, quizID string, attempt shared.Attempt) (result shared.Attempt, resumed bool, err error)
	// CompleteAttempt writes the scored result iff the attempt is still
	// incomplete. Otherwise ErrPreconditionFailed.
	CompleteAttempt(ctx context.Context, quizID string, result shared.Attempt) error
}

// Notifications persists per-user notifications.
type Notifications interface {
	CreateNotification(ctx context.Context, notification *shared.Notification) error
	ListNotifications(ctx context.Context, filter shared.NotificationFilter, page shared.Page) ([]shared.Notification, int64, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	MarkRead(ctx context.Context, recipientID, id string, at time.Time) (*shared.Notification, error)
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
	DeleteNotification(ctx context.Context, recipientID, id string) error
}

// AuditLogs is append-only.
type AuditLogs interface {
	AppendAudit(ctx context.Context, entry *shared.AuditLog) error
	ListAudit(ctx context.Context, filter shared.AuditFilter, page shared.Page) ([]shared.AuditLog, int64, error)
}

// Store gathers every collection behind one handle.
type Store interface {
	Users
	Sessions
	Courses
	Lectures
	Assignments
	Submissions
	Quizzes
	Notifications
	AuditLogs
	Close(ctx context.Context) error
}
