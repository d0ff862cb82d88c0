package assignment

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms_backend/backend/internal/events"
	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/testkit"
)

type fixture struct {
	svc       *AssignmentService
	publisher *testkit.Publisher
	teacher   shared.User
	other     shared.User
	student   shared.User
	courseID  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testkit.OpenStore(t)
	f := &fixture{
		teacher:   testkit.SeedUser(t, store, "teacher1", shared.RoleInstructor),
		other:     testkit.SeedUser(t, store, "teacher2", shared.RoleInstructor),
		student:   testkit.SeedUser(t, store, "student1", shared.RoleStudent),
		publisher: testkit.NewPublisher(),
		courseID:  "course_1",
	}
	require.NoError(t, store.CreateCourse(context.Background(), &shared.Course{
		ID: f.courseID, Title: "Algorithms", InstructorID: f.teacher.ID, IsPublished: true,
	}))
	f.svc = NewAssignmentService(store, f.publisher)
	return f
}

func (f *fixture) create(t *testing.T, due time.Time, allowLate bool, penalty float64) *shared.Assignment {
	t.Helper()
	a, err := f.svc.CreateAssignment(context.Background(), f.teacher, shared.RequestContext{}, CreateInput{
		CourseID:             f.courseID,
		Title:                "Homework",
		Description:          "Solve the problems",
		DueDate:              due,
		IsPublished:          true,
		AllowLateSubmissions: &allowLate,
		LatePenalty:          penalty,
	})
	require.NoError(t, err)
	return a
}

func float(v float64) *float64 { return &v }

func TestAssignmentService_Authoring(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("Only the course owner creates", func(t *testing.T) {
		_, err := f.svc.CreateAssignment(ctx, f.other, shared.RequestContext{}, CreateInput{
			CourseID: f.courseID, Title: "x", Description: "x", DueDate: time.Now(),
		})
		assert.True(t, shared.IsKind(err, shared.KindForbidden))

		_, err = f.svc.CreateAssignment(ctx, f.student, shared.RequestContext{}, CreateInput{})
		assert.True(t, shared.IsKind(err, shared.KindForbidden))

		_, err = f.svc.CreateAssignment(ctx, f.teacher, shared.RequestContext{}, CreateInput{CourseID: f.courseID})
		assert.True(t, shared.IsKind(err, shared.KindValidation))

		_, err = f.svc.CreateAssignment(ctx, f.teacher, shared.RequestContext{}, CreateInput{
			CourseID: "missing", Title: "x", Description: "x", DueDate: time.Now(),
		})
		assert.True(t, shared.IsKind(err, shared.KindNotFound))
	})

	t.Run("Defaults and course link", func(t *testing.T) {
		a := f.create(t, time.Now().Add(24*time.Hour), true, 0)
		assert.Equal(t, shared.DefaultMaxPoints, a.MaxPoints)
		assert.Contains(t, f.publisher.Types(), events.AssignmentCreated)

		draft, err := f.svc.CreateAssignment(ctx, f.teacher, shared.RequestContext{}, CreateInput{
			CourseID: f.courseID, Title: "Draft", Description: "x", DueDate: time.Now(),
		})
		require.NoError(t, err)
		assert.True(t, draft.AllowLateSubmissions)
		assert.False(t, draft.IsPublished)

		forStudent, err := f.svc.ListByCourse(ctx, f.student, f.courseID)
		require.NoError(t, err)
		assert.Len(t, forStudent, 1)

		forTeacher, err := f.svc.ListByCourse(ctx, f.teacher, f.courseID)
		require.NoError(t, err)
		assert.Len(t, forTeacher, 2)
	})
}

func TestAssignmentService_SubmissionLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := shared.RequestContext{}
	a := f.create(t, time.Now().Add(24*time.Hour), true, 0)

	var submission *shared.Submission

	t.Run("Submit once", func(t *testing.T) {
		var err error
		submission, err = f.svc.Submit(ctx, f.student, req, a.ID, SubmitInput{Content: "my answer"}, shared.LatePolicyStrict)
		require.NoError(t, err)
		assert.Equal(t, shared.StatusSubmitted, submission.Status)
		assert.False(t, submission.IsLate)

		_, err = f.svc.Submit(ctx, f.student, req, a.ID, SubmitInput{Content: "again"}, shared.LatePolicyStrict)
		assert.True(t, shared.IsKind(err, shared.KindConflict))

		_, err = f.svc.Submit(ctx, f.student, req, "missing", SubmitInput{Content: "orphan"}, shared.LatePolicyStrict)
		assert.True(t, shared.IsKind(err, shared.KindNotFound))

		published := f.publisher.Events()
		last := published[len(published)-1]
		require.Len(t, last.Notifications, 1)
		assert.Equal(t, f.teacher.ID, last.Notifications[0].RecipientID)
		assert.Equal(t, shared.NotifyAssignmentSubmitted, last.Notifications[0].Type)
		assert.Equal(t, shared.ActionSubmit, last.Audit.Action)
	})

	t.Run("Out of range grade leaves submission untouched", func(t *testing.T) {
		_, err := f.svc.GradeSubmission(ctx, f.teacher, req, submission.ID, GradeInput{Grade: float(105)})
		assert.True(t, shared.IsKind(err, shared.KindValidation))

		_, err = f.svc.GradeSubmission(ctx, f.teacher, req, submission.ID, GradeInput{})
		assert.True(t, shared.IsKind(err, shared.KindValidation))

		list, err := f.svc.ListSubmissions(ctx, f.teacher, a.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, shared.StatusSubmitted, list[0].Status)
		assert.Nil(t, list[0].Grade)
	})

	t.Run("Return requires GRADED", func(t *testing.T) {
		_, err := f.svc.Return(ctx, f.teacher, req, submission.ID)
		assert.True(t, shared.IsKind(err, shared.KindConflict))
	})

	t.Run("Grade and regrade", func(t *testing.T) {
		_, err := f.svc.GradeSubmission(ctx, f.other, req, submission.ID, GradeInput{Grade: float(50)})
		assert.True(t, shared.IsKind(err, shared.KindForbidden))

		graded, err := f.svc.GradeSubmission(ctx, f.teacher, req, submission.ID, GradeInput{Grade: float(80), Feedback: "good"})
		require.NoError(t, err)
		assert.Equal(t, shared.StatusGraded, graded.Status)
		assert.Equal(t, 80.0, *graded.Grade)
		assert.Equal(t, 80.0, *graded.EffectiveGrade)

		regraded, err := f.svc.GradeByStudent(ctx, f.teacher, req, a.ID, f.student.ID, GradeInput{Grade: float(90)})
		require.NoError(t, err)
		assert.Equal(t, 90.0, *regraded.Grade)
		assert.Greater(t, regraded.Version, graded.Version)

		_, err = f.svc.GradeByStudent(ctx, f.teacher, req, a.ID, "nobody", GradeInput{Grade: float(90)})
		assert.True(t, shared.IsKind(err, shared.KindNotFound))

		var gradeEvent *events.Event
		for _, e := range f.publisher.Events() {
			if e.Type == events.SubmissionGraded {
				e := e
				gradeEvent = &e
			}
		}
		require.NotNil(t, gradeEvent)
		assert.Equal(t, f.student.ID, gradeEvent.Notifications[0].RecipientID)
		assert.Equal(t, shared.NotifyGradePosted, gradeEvent.Notifications[0].Type)
		assert.Equal(t, shared.ActionGrade, gradeEvent.Audit.Action)
	})

	t.Run("Stale version conflicts", func(t *testing.T) {
		stale, err := f.svc.store.GetSubmission(ctx, submission.ID)
		require.NoError(t, err)

		_, err = f.svc.GradeSubmission(ctx, f.teacher, req, submission.ID, GradeInput{Grade: float(70)})
		require.NoError(t, err)

		_, err = f.svc.grade(ctx, f.teacher, req, stale, GradeInput{Grade: float(60)})
		assert.True(t, shared.IsKind(err, shared.KindConflict))
	})

	t.Run("Returned is terminal", func(t *testing.T) {
		returned, err := f.svc.Return(ctx, f.teacher, req, submission.ID)
		require.NoError(t, err)
		assert.Equal(t, shared.StatusReturned, returned.Status)

		_, err = f.svc.GradeSubmission(ctx, f.teacher, req, submission.ID, GradeInput{Grade: float(100)})
		assert.True(t, shared.IsKind(err, shared.KindConflict))

		_, err = f.svc.Return(ctx, f.teacher, req, submission.ID)
		assert.True(t, shared.IsKind(err, shared.KindConflict))
	})

	t.Run("My submissions", func(t *testing.T) {
		mine, err := f.svc.MySubmissions(ctx, f.student)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, 70.0, *mine[0].Grade)
	})
}

func TestAssignmentService_SubmitContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := shared.RequestContext{}

	t.Run("Blank content is rejected", func(t *testing.T) {
		other := f.create(t, time.Now().Add(24*time.Hour), true, 0)
		_, err := f.svc.Submit(ctx, f.student, req, other.ID, SubmitInput{Content: "   "}, shared.LatePolicyStrict)
		require.Error(t, err)
		assert.True(t, shared.IsKind(err, shared.KindValidation))
		var domainErr *shared.Error
		require.ErrorAs(t, err, &domainErr)
		require.Len(t, domainErr.Fields, 1)
		assert.Equal(t, "content", domainErr.Fields[0].Field)

		// the rejected attempt must not use up the single submission
		sub, err := f.svc.Submit(ctx, f.student, req, other.ID, SubmitInput{
			Content:     "  ",
			Attachments: []shared.Attachment{{Filename: "essay.pdf", Path: "uploads/essay.pdf"}},
		}, shared.LatePolicyStrict)
		require.NoError(t, err)
		assert.Empty(t, sub.Content)
		assert.Len(t, sub.Attachments, 1)
	})

	t.Run("Content is trimmed", func(t *testing.T) {
		other := f.create(t, time.Now().Add(24*time.Hour), true, 0)
		sub, err := f.svc.Submit(ctx, f.student, req, other.ID, SubmitInput{Content: "  answer \n"}, shared.LatePolicyStrict)
		require.NoError(t, err)
		assert.Equal(t, "answer", sub.Content)
	})
}

func TestAssignmentService_LatePolicies(t *testing.T) {
	ctx := context.Background()
	req := shared.RequestContext{}

	t.Run("Deadline passed without late submissions", func(t *testing.T) {
		f := newFixture(t)
		a := f.create(t, time.Now().Add(-24*time.Hour), false, 0)
		for _, policy := range []string{shared.LatePolicyStrict, shared.LatePolicyAssignment, shared.LatePolicyPenalty} {
			_, err := f.svc.Submit(ctx, f.student, req, a.ID, SubmitInput{Content: "late"}, policy)
			assert.True(t, shared.IsKind(err, shared.KindDeadlinePassed), policy)
		}
		list, err := f.svc.ListSubmissions(ctx, f.teacher, a.ID)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("Strict ignores the assignment flag", func(t *testing.T) {
		f := newFixture(t)
		a := f.create(t, time.Now().Add(-time.Hour), true, 0)
		_, err := f.svc.Submit(ctx, f.student, req, a.ID, SubmitInput{Content: "late"}, shared.LatePolicyStrict)
		assert.True(t, shared.IsKind(err, shared.KindDeadlinePassed))
	})

	t.Run("Assignment policy accepts late without penalty", func(t *testing.T) {
		f := newFixture(t)
		a := f.create(t, time.Now().Add(-time.Hour), true, 10)
		sub, err := f.svc.Submit(ctx, f.student, req, a.ID, SubmitInput{Content: "late"}, shared.LatePolicyAssignment)
		require.NoError(t, err)
		assert.True(t, sub.IsLate)
		assert.Zero(t, sub.PenaltyPercent)
	})

	t.Run("Penalty policy records and applies the penalty", func(t *testing.T) {
		f := newFixture(t)
		a := f.create(t, time.Now().Add(-36*time.Hour), true, 10)
		sub, err := f.svc.Submit(ctx, f.student, req, a.ID, SubmitInput{Content: "late"}, shared.LatePolicyPenalty)
		require.NoError(t, err)
		assert.Equal(t, 2, sub.DaysLate)
		assert.Equal(t, 20.0, sub.PenaltyPercent)

		graded, err := f.svc.GradeSubmission(ctx, f.teacher, req, sub.ID, GradeInput{Grade: float(80)})
		require.NoError(t, err)
		assert.Equal(t, 80.0, *graded.Grade)
		assert.Equal(t, 64.0, *graded.EffectiveGrade)
	})

	t.Run("Unknown policy", func(t *testing.T) {
		f := newFixture(t)
		a := f.create(t, time.Now().Add(time.Hour), true, 0)
		_, err := f.svc.Submit(ctx, f.student, req, a.ID, SubmitInput{Content: "work"}, "lenient")
		assert.True(t, shared.IsKind(err, shared.KindValidation))
	})
}

func TestEvaluateLateness(t *testing.T) {
	due := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &shared.Assignment{DueDate: due, AllowLateSubmissions: true, LatePenalty: 30}

	on, err := EvaluateLateness(a, due, shared.LatePolicyStrict)
	require.NoError(t, err)
	assert.False(t, on.IsLate)

	late, err := EvaluateLateness(a, due.Add(5*24*time.Hour), shared.LatePolicyPenalty)
	require.NoError(t, err)
	assert.Equal(t, 5, late.DaysLate)
	assert.Equal(t, 100.0, late.PenaltyPercent, "penalty is capped")

	assert.Equal(t, 0.0, EffectiveGrade(90, 100))
	assert.Equal(t, 90.0, EffectiveGrade(90, 0))
}

func TestConcurrentSubmitsYieldOneSubmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.create(t, time.Now().Add(time.Hour), true, 0)

	const workers = 20
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Submit(ctx, f.student, shared.RequestContext{}, a.ID, SubmitInput{Content: "race"}, shared.LatePolicyStrict)
			if err == nil {
				succeeded.Add(1)
				return
			}
			if !shared.IsKind(err, shared.KindConflict) {
				t.Errorf("unexpected submit error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, succeeded.Load())
	list, err := f.svc.ListSubmissions(ctx, f.teacher, a.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
