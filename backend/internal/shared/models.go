// ============================================================================
// backend/internal/shared/models.go
// Shared data models and structs for stored documents
// ============================================================================

package shared

import (
	"strings"
	"time"
)

// ============================================================================
// User Models
// ============================================================================

// User represents a user account (student, instructor, or admin)
type User struct {
	ID           string    `bson:"_id" json:"id"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash string    `bson:"password_hash" json:"-"` // Never expose in JSON
	Role         string    `bson:"role" json:"role"`       // student, instructor, admin
	Name         string    `bson:"name" json:"name"`
	IsActive     bool      `bson:"is_active" json:"isActive"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updated_at,omitempty" json:"updatedAt,omitempty"`
}

// Session represents an active user session (for JWT tracking)
type Session struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"user_id" json:"userId"`
	Token     string    `bson:"token" json:"token"`
	ExpiresAt time.Time `bson:"expires_at" json:"expiresAt"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	IPAddress string    `bson:"ip_address,omitempty" json:"ipAddress,omitempty"`
}

// IsExpired checks if a session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// ============================================================================
// Course Models
// ============================================================================

// Course represents a course authored by an instructor
type Course struct {
	ID               string       `bson:"_id" json:"id"`
	Title            string       `bson:"title" json:"title"`
	Description      string       `bson:"description" json:"description"`
	InstructorID     string       `bson:"instructor_id" json:"instructorId"`
	Category         string       `bson:"category" json:"category"`
	Difficulty       string       `bson:"difficulty" json:"difficulty"`
	Duration         int          `bson:"duration" json:"duration"` // in weeks
	Tags             []string     `bson:"tags,omitempty" json:"tags,omitempty"`
	IsPublished      bool         `bson:"is_published" json:"isPublished"`
	EnrollmentLimit  *int         `bson:"enrollment_limit,omitempty" json:"enrollmentLimit,omitempty"`
	EnrolledStudents []Enrollment `bson:"enrolled_students" json:"enrolledStudents"`
	EnrolledCount    int          `bson:"enrolled_count" json:"enrolledCount"`
	AssignmentIDs    []string     `bson:"assignment_ids" json:"assignments"`
	QuizIDs          []string     `bson:"quiz_ids" json:"quizzes"`
	CreatedAt        time.Time    `bson:"created_at" json:"createdAt"`
	UpdatedAt        time.Time    `bson:"updated_at" json:"updatedAt"`
}

// Enrollment is one entry of a course's enrolled student set
type Enrollment struct {
	StudentID  string    `bson:"student_id" json:"studentId"`
	EnrolledAt time.Time `bson:"enrolled_at" json:"enrolledAt"`
	Progress   int       `bson:"progress" json:"progress"` // 0-100
}

// IsEnrolled reports whether the student already appears in the enrolled set
func (c *Course) IsEnrolled(studentID string) bool {
	for _, e := range c.EnrolledStudents {
		if e.StudentID == studentID {
			return true
		}
	}
	return false
}

// IsFull checks whether the optional enrollment limit has been reached
func (c *Course) IsFull() bool {
	return c.EnrollmentLimit != nil && c.EnrolledCount >= *c.EnrollmentLimit
}

// IsOwnedBy checks if the user owns the course
func (c *Course) IsOwnedBy(userID string) bool {
	return c.InstructorID == userID
}

// ============================================================================
// Lecture Models
// ============================================================================

// Lecture is one ordered unit of course material
type Lecture struct {
	ID           string       `bson:"_id" json:"id"`
	Title        string       `bson:"title" json:"title"`
	Description  string       `bson:"description" json:"description"`
	CourseID     string       `bson:"course_id" json:"courseId"`
	InstructorID string       `bson:"instructor_id" json:"instructorId"`
	VideoURL     string       `bson:"video_url,omitempty" json:"videoUrl,omitempty"`
	Materials    []Attachment `bson:"materials" json:"materials"`
	Duration     int          `bson:"duration,omitempty" json:"duration,omitempty"` // in minutes
	Order        int          `bson:"order" json:"order"`
	IsPublished  bool         `bson:"is_published" json:"isPublished"`
	CreatedAt    time.Time    `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time    `bson:"updated_at" json:"updatedAt"`
}

// ============================================================================
// Assignment Models
// ============================================================================

// RubricItem is one grading criterion of an assignment
type RubricItem struct {
	Criteria    string `bson:"criteria" json:"criteria"`
	Points      int    `bson:"points" json:"points"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
}

// Assignment is an instructor-authored task. Its submissions live in the
// submissions collection and are queried by assignment ID.
type Assignment struct {
	ID                   string       `bson:"_id" json:"id"`
	Title                string       `bson:"title" json:"title"`
	Description          string       `bson:"description" json:"description"`
	Instructions         string       `bson:"instructions,omitempty" json:"instructions,omitempty"`
	CourseID             string       `bson:"course_id" json:"courseId"`
	InstructorID         string       `bson:"instructor_id" json:"instructorId"`
	DueDate              time.Time    `bson:"due_date" json:"dueDate"`
	MaxPoints            int          `bson:"max_points" json:"maxPoints"`
	Attachments          []string     `bson:"attachments,omitempty" json:"attachments,omitempty"`
	Rubric               []RubricItem `bson:"rubric,omitempty" json:"rubric,omitempty"`
	IsPublished          bool         `bson:"is_published" json:"isPublished"`
	AllowLateSubmissions bool         `bson:"allow_late_submissions" json:"allowLateSubmissions"`
	LatePenalty          float64      `bson:"late_penalty" json:"latePenalty"` // percent per day
	CreatedAt            time.Time    `bson:"created_at" json:"createdAt"`
	UpdatedAt            time.Time    `bson:"updated_at" json:"updatedAt"`
}

// Attachment describes an uploaded file referenced by a submission
type Attachment struct {
	Filename     string    `bson:"filename" json:"filename"`
	OriginalName string    `bson:"original_name,omitempty" json:"originalName,omitempty"`
	Path         string    `bson:"path" json:"path"`
	Size         int64     `bson:"size,omitempty" json:"size,omitempty"`
	UploadDate   time.Time `bson:"upload_date" json:"uploadDate"`
}

// Submission is the canonical record of one student's work for one
// assignment. (AssignmentID, StudentID) is unique.
type Submission struct {
	ID             string       `bson:"_id" json:"id"`
	AssignmentID   string       `bson:"assignment_id" json:"assignmentId"`
	StudentID      string       `bson:"student_id" json:"studentId"`
	Content        string       `bson:"content" json:"content"`
	Attachments    []Attachment `bson:"attachments" json:"attachments"`
	SubmittedAt    time.Time    `bson:"submitted_at" json:"submittedAt"`
	IsLate         bool         `bson:"is_late" json:"isLate"`
	DaysLate       int          `bson:"days_late,omitempty" json:"daysLate,omitempty"`
	PenaltyPercent float64      `bson:"penalty_percent,omitempty" json:"penaltyPercent,omitempty"`
	Grade          *float64     `bson:"grade,omitempty" json:"grade,omitempty"`
	EffectiveGrade *float64     `bson:"effective_grade,omitempty" json:"effectiveGrade,omitempty"`
	Feedback       string       `bson:"feedback,omitempty" json:"feedback,omitempty"`
	Status         string       `bson:"status" json:"status"`
	GradedBy       string       `bson:"graded_by,omitempty" json:"gradedBy,omitempty"`
	GradedAt       *time.Time   `bson:"graded_at,omitempty" json:"gradedAt,omitempty"`
	Version        int64        `bson:"version" json:"version"`
	CreatedAt      time.Time    `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time    `bson:"updated_at" json:"updatedAt"`
}

// GradeUpdate carries the fields written when a submission is graded
type GradeUpdate struct {
	Grade          float64
	EffectiveGrade float64
	Feedback       string
	GradedBy       string
	GradedAt       time.Time
}

// ============================================================================
// Quiz Models
// ============================================================================

// Question is one entry of a quiz
type Question struct {
	Question      string   `bson:"question" json:"question"`
	Type          string   `bson:"type" json:"type"` // multiple-choice, true-false, short-answer
	Options       []string `bson:"options,omitempty" json:"options,omitempty"`
	CorrectAnswer string   `bson:"correct_answer" json:"correctAnswer,omitempty"`
	Points        int      `bson:"points" json:"points"`
	Explanation   string   `bson:"explanation,omitempty" json:"explanation,omitempty"`
}

// AttemptAnswer is the scored record of one answer
type AttemptAnswer struct {
	QuestionIndex int    `bson:"question_index" json:"questionIndex"`
	Answer        string `bson:"answer" json:"answer"`
	IsCorrect     bool   `bson:"is_correct" json:"isCorrect"`
	Points        int    `bson:"points" json:"points"`
}

// Attempt is one student's pass through a quiz
type Attempt struct {
	ID          string          `bson:"id" json:"id"`
	StudentID   string          `bson:"student_id" json:"studentId"`
	StartedAt   time.Time       `bson:"started_at" json:"startedAt"`
	SubmittedAt *time.Time      `bson:"submitted_at,omitempty" json:"submittedAt,omitempty"`
	Answers     []AttemptAnswer `bson:"answers" json:"answers"`
	Score       int             `bson:"score" json:"score"`
	TotalPoints int             `bson:"total_points" json:"totalPoints"`
	IsCompleted bool            `bson:"is_completed" json:"isCompleted"`
}

// Quiz is an instructor-authored quiz with embedded attempts
type Quiz struct {
	ID               string     `bson:"_id" json:"id"`
	Title            string     `bson:"title" json:"title"`
	Description      string     `bson:"description,omitempty" json:"description,omitempty"`
	CourseID         string     `bson:"course_id" json:"courseId"`
	InstructorID     string     `bson:"instructor_id" json:"instructorId"`
	Questions        []Question `bson:"questions" json:"questions"`
	TimeLimit        int        `bson:"time_limit" json:"timeLimit"` // minutes
	AttemptLimit     int        `bson:"attempt_limit" json:"attemptLimit"`
	DueDate          *time.Time `bson:"due_date,omitempty" json:"dueDate,omitempty"`
	IsPublished      bool       `bson:"is_published" json:"isPublished"`
	ShuffleQuestions bool       `bson:"shuffle_questions" json:"shuffleQuestions"`
	ShowResults      string     `bson:"show_results" json:"showResults"`
	Attempts         []Attempt  `bson:"attempts" json:"attempts,omitempty"`
	CreatedAt        time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt        time.Time  `bson:"updated_at" json:"updatedAt"`
}

// AttemptsBy returns the attempts recorded for one student
func (q *Quiz) AttemptsBy(studentID string) []Attempt {
	var out []Attempt
	for _, a := range q.Attempts {
		if a.StudentID == studentID {
			out = append(out, a)
		}
	}
	return out
}

// ActiveAttempt returns the student's incomplete attempt, if any
func (q *Quiz) ActiveAttempt(studentID string) (Attempt, bool) {
	for _, a := range q.Attempts {
		if a.StudentID == studentID && !a.IsCompleted {
			return a, true
		}
	}
	return Attempt{}, false
}

// WithoutAnswerKey returns a copy safe to show to students
func (q Quiz) WithoutAnswerKey() Quiz {
	questions := make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.CorrectAnswer = ""
		question.Explanation = ""
		questions[i] = question
	}
	q.Questions = questions
	q.Attempts = nil
	return q
}

// ============================================================================
// Notification Models
// ============================================================================

// Notification is a message addressed to one user
type Notification struct {
	ID           string     `bson:"_id" json:"id"`
	RecipientID  string     `bson:"recipient_id" json:"recipient"`
	SenderID     string     `bson:"sender_id,omitempty" json:"sender,omitempty"`
	Type         string     `bson:"type" json:"type"`
	Title        string     `bson:"title" json:"title"`
	Message      string     `bson:"message" json:"message"`
	RelatedID    string     `bson:"related_id,omitempty" json:"relatedId,omitempty"`
	RelatedModel string     `bson:"related_model,omitempty" json:"relatedModel,omitempty"`
	Priority     string     `bson:"priority" json:"priority"`
	IsRead       bool       `bson:"is_read" json:"isRead"`
	ReadAt       *time.Time `bson:"read_at,omitempty" json:"readAt,omitempty"`
	CreatedAt    time.Time  `bson:"created_at" json:"createdAt"`
}

// ============================================================================
// Audit Log Models
// ============================================================================

// AuditLog represents an append-only audit log entry
type AuditLog struct {
	ID         string                 `bson:"_id" json:"id"`
	UserID     string                 `bson:"user_id" json:"userId"`
	Action     string                 `bson:"action" json:"action"`
	Resource   string                 `bson:"resource" json:"resource"`
	ResourceID string                 `bson:"resource_id,omitempty" json:"resourceId,omitempty"`
	Details    map[string]interface{} `bson:"details,omitempty" json:"details,omitempty"`
	IPAddress  string                 `bson:"ip_address,omitempty" json:"ipAddress,omitempty"`
	UserAgent  string                 `bson:"user_agent,omitempty" json:"userAgent,omitempty"`
	CreatedAt  time.Time              `bson:"created_at" json:"createdAt"`
}

// RequestContext is the caller metadata attached to audit entries
type RequestContext struct {
	IPAddress string
	UserAgent string
}

// ============================================================================
// Filter/Query Models
// ============================================================================

// CourseFilter represents filters for course listing
type CourseFilter struct {
	Search        string
	Category      string
	Difficulty    string
	PublishedOnly bool
	InstructorID  string
	StudentID     string
}

// AuditFilter represents filters for audit log queries
type AuditFilter struct {
	Action   string
	Resource string
	UserID   string
}

// NotificationFilter represents filters for a recipient's inbox
type NotificationFilter struct {
	RecipientID string
	UnreadOnly  bool
}

// Page is a 1-based page request
type Page struct {
	Page  int
	Limit int
}

// Skip returns the number of documents to skip for the page
func (p Page) Skip() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Pages returns the number of pages needed for total items
func (p Page) Pages(total int64) int {
	if p.Limit <= 0 {
		return 0
	}
	return int((total + int64(p.Limit) - 1) / int64(p.Limit))
}

// ============================================================================
// Validation Constants
// ============================================================================

const (
	// User roles
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"

	// Submission statuses
	StatusSubmitted = "SUBMITTED"
	StatusGraded    = "GRADED"
	StatusReturned  = "RETURNED"

	// Question types
	QuestionMultipleChoice = "multiple-choice"
	QuestionTrueFalse      = "true-false"
	QuestionShortAnswer    = "short-answer"

	// Quiz result visibility
	ShowResultsImmediately = "immediately"
	ShowResultsAfterDue    = "after-due-date"
	ShowResultsNever       = "never"

	// Notification types
	NotifyGradePosted         = "grade_posted"
	NotifyCourseEnrollment    = "course_enrollment"
	NotifyAssignmentSubmitted = "assignment_submitted"
	NotifyQuizCompleted       = "quiz_completed"
	NotifySystem              = "system"
	NotifyMessage             = "message"

	// Notification priorities
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"

	// Audit actions
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
	ActionLogin  = "LOGIN"
	ActionLogout = "LOGOUT"
	ActionEnroll = "ENROLL"
	ActionSubmit = "SUBMIT"
	ActionGrade  = "GRADE"

	// Audit resources
	ResourceUser         = "USER"
	ResourceCourse       = "COURSE"
	ResourceLecture      = "LECTURE"
	ResourceAssignment   = "ASSIGNMENT"
	ResourceQuiz         = "QUIZ"
	ResourceNotification = "NOTIFICATION"

	// Defaults
	DefaultMaxPoints    = 100
	DefaultTimeLimit    = 30
	DefaultAttemptLimit = 1
	DefaultPageLimit    = 20
	MaxPageLimit        = 100
)

// IsValidRole checks if user role is valid
func IsValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether the role may author and grade content
func IsStaff(role string) bool {
	return role == RoleInstructor || role == RoleAdmin
}

// IsValidAuditAction checks an audit action against the closed set
func IsValidAuditAction(action string) bool {
	switch action {
	case ActionCreate, ActionUpdate, ActionDelete, ActionLogin, ActionLogout, ActionEnroll, ActionSubmit, ActionGrade:
		return true
	}
	return false
}

// IsValidAuditResource checks an audit resource against the closed set
func IsValidAuditResource(resource string) bool {
	switch resource {
	case ResourceUser, ResourceCourse, ResourceLecture, ResourceAssignment, ResourceQuiz, ResourceNotification:
		return true
	}
	return false
}

// NormalizeEmail lowercases and trims an e-mail address for lookups
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
