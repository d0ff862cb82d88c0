package boltstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "lms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	user := &shared.User{ID: "user_1", Email: "alice@example.com", PasswordHash: "hash", Role: shared.RoleStudent, IsActive: true}
	require.NoError(t, store.CreateUser(ctx, user))

	t.Run("Lookup by email keeps password hash", func(t *testing.T) {
		got, err := store.GetUserByEmail(ctx, "ALICE@example.com")
		require.NoError(t, err)
		assert.Equal(t, "hash", got.PasswordHash)
	})

	t.Run("Duplicate email", func(t *testing.T) {
		err := store.CreateUser(ctx, &shared.User{ID: "user_2", Email: "alice@example.com"})
		assert.ErrorIs(t, err, storage.ErrDuplicate)
	})

	t.Run("Unknown user", func(t *testing.T) {
		_, err := store.GetUser(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.CreateSession(ctx, &shared.Session{ID: "s1", UserID: "u1", Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, store.CreateSession(ctx, &shared.Session{ID: "s2", UserID: "u1", Token: "old", ExpiresAt: time.Now().Add(-time.Hour)}))

	ok, err := store.SessionExists(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SessionExists(ctx, "old")
	require.NoError(t, err)
	assert.False(t, ok, "expired sessions do not count")

	n, err := store.DeleteSession(ctx, "tok")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = store.DeleteSession(ctx, "tok")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestInsertSubmissionIsUniquePerStudent(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	var wg sync.WaitGroup
	var inserted, duplicates int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.InsertSubmission(ctx, &shared.Submission{
				ID:           fmt.Sprintf("sub_%d", i),
				AssignmentID: "a1",
				StudentID:    "s1",
				Status:       shared.StatusSubmitted,
			})
			switch err {
			case nil:
				atomic.AddInt32(&inserted, 1)
			case storage.ErrDuplicate:
				atomic.AddInt32(&duplicates, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, inserted)
	assert.EqualValues(t, 19, duplicates)

	subs, err := store.ListSubmissionsByAssignment(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestUpdateGradeCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.InsertSubmission(ctx, &shared.Submission{ID: "sub", AssignmentID: "a", StudentID: "s", Status: shared.StatusSubmitted}))

	update := shared.GradeUpdate{Grade: 80, EffectiveGrade: 80, GradedBy: "t", GradedAt: time.Now()}
	sub, err := store.UpdateGrade(ctx, "sub", 0, update)
	require.NoError(t, err)
	assert.Equal(t, shared.StatusGraded, sub.Status)
	assert.EqualValues(t, 1, sub.Version)

	t.Run("Stale version", func(t *testing.T) {
		_, err := store.UpdateGrade(ctx, "sub", 0, update)
		assert.ErrorIs(t, err, storage.ErrPreconditionFailed)
	})

	t.Run("Returned is terminal", func(t *testing.T) {
		returned, err := store.MarkReturned(ctx, "sub", 1, time.Now())
		require.NoError(t, err)
		assert.Equal(t, shared.StatusReturned, returned.Status)

		_, err = store.UpdateGrade(ctx, "sub", returned.Version, update)
		assert.ErrorIs(t, err, storage.ErrPreconditionFailed)

		_, err = store.MarkReturned(ctx, "sub", returned.Version, time.Now())
		assert.ErrorIs(t, err, storage.ErrPreconditionFailed)
	})

	t.Run("Missing submission", func(t *testing.T) {
		_, err := store.UpdateGrade(ctx, "nope", 0, update)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestAppendAttemptHonorsLimitUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.CreateQuiz(ctx, &shared.Quiz{ID: "q1", AttemptLimit: 2}))

	// Complete each started attempt so the next start is a new attempt, not a resume
	var wg sync.WaitGroup
	var started, rejected int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			attempt, resumed, err := store.AppendAttempt(ctx, "q1", shared.Attempt{
				ID:        fmt.Sprintf("att_%d", i),
				StudentID: "s1",
				StartedAt: time.Now(),
			})
			if err == storage.ErrPreconditionFailed {
				atomic.AddInt32(&rejected, 1)
				return
			}
			if err != nil {
				t.Errorf("append attempt: %v", err)
				return
			}
			if resumed {
				return
			}
			atomic.AddInt32(&started, 1)
			now := time.Now()
			attempt.SubmittedAt = &now
			_ = store.CompleteAttempt(ctx, "q1", attempt)
		}(i)
	}
	wg.Wait()

	quiz, err := store.GetQuiz(ctx, "q1")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(quiz.AttemptsBy("s1")), 2)
	assert.EqualValues(t, len(quiz.AttemptsBy("s1")), started)
}

func TestAppendAttemptResumesIncomplete(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.CreateQuiz(ctx, &shared.Quiz{ID: "q1", AttemptLimit: 3}))

	first, resumed, err := store.AppendAttempt(ctx, "q1", shared.Attempt{ID: "a1", StudentID: "s1"})
	require.NoError(t, err)
	assert.False(t, resumed)

	again, resumed, err := store.AppendAttempt(ctx, "q1", shared.Attempt{ID: "a2", StudentID: "s1"})
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, first.ID, again.ID)

	now := time.Now()
	require.NoError(t, store.CompleteAttempt(ctx, "q1", shared.Attempt{ID: "a1", Score: 3, TotalPoints: 4, SubmittedAt: &now}))
	assert.ErrorIs(t, store.CompleteAttempt(ctx, "q1", shared.Attempt{ID: "a1"}), storage.ErrPreconditionFailed)

	_, _, err = store.AppendAttempt(ctx, "missing", shared.Attempt{ID: "x", StudentID: "s1"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAddEnrollmentRespectsLimit(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	limit := 3
	require.NoError(t, store.CreateCourse(ctx, &shared.Course{ID: "c1", IsPublished: true, EnrollmentLimit: &limit}))

	var wg sync.WaitGroup
	var full int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.AddEnrollment(ctx, "c1", shared.Enrollment{StudentID: fmt.Sprintf("s%d", i), EnrolledAt: time.Now()})
			if err == storage.ErrPreconditionFailed {
				atomic.AddInt32(&full, 1)
			}
		}(i)
	}
	wg.Wait()

	course, err := store.GetCourse(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, course.EnrolledCount)
	assert.Len(t, course.EnrolledStudents, 3)
	assert.EqualValues(t, 7, full)

	enrolled := course.EnrolledStudents[0].StudentID
	assert.ErrorIs(t, store.AddEnrollment(ctx, "c1", shared.Enrollment{StudentID: enrolled}), storage.ErrDuplicate)
	require.NoError(t, store.RemoveEnrollment(ctx, "c1", enrolled))
	assert.ErrorIs(t, store.RemoveEnrollment(ctx, "c1", enrolled), storage.ErrNotFound)
}

func TestListAuditNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		action := shared.ActionLogin
		if i%2 == 0 {
			action = shared.ActionGrade
		}
		require.NoError(t, store.AppendAudit(ctx, &shared.AuditLog{
			ID:        fmt.Sprintf("audit_%d", i),
			UserID:    "u1",
			Action:    action,
			Resource:  shared.ResourceUser,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	logs, total, err := store.ListAudit(ctx, shared.AuditFilter{}, shared.Page{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, logs, 2)
	assert.Equal(t, "audit_4", logs[0].ID)
	assert.Equal(t, "audit_3", logs[1].ID)

	logs, total, err = store.ListAudit(ctx, shared.AuditFilter{Action: shared.ActionGrade}, shared.Page{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, logs, 3)
}

func TestUpdateAndDeleteUser(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.CreateUser(ctx, &shared.User{ID: "u1", Email: "alice@example.com", PasswordHash: "hash", Role: shared.RoleStudent}))
	require.NoError(t, store.CreateUser(ctx, &shared.User{ID: "u2", Email: "bob@example.com", Role: shared.RoleStudent}))

	t.Run("Email change moves the index", func(t *testing.T) {
		require.NoError(t, store.UpdateUser(ctx, &shared.User{ID: "u1", Name: "Alice", Email: "Alice2@Example.com", Role: shared.RoleInstructor}))

		got, err := store.GetUserByEmail(ctx, "alice2@example.com")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.ID)
		assert.Equal(t, shared.RoleInstructor, got.Role)
		assert.Equal(t, "hash", got.PasswordHash)

		_, err = store.GetUserByEmail(ctx, "alice@example.com")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Taken email", func(t *testing.T) {
		err := store.UpdateUser(ctx, &shared.User{ID: "u1", Email: "bob@example.com"})
		assert.ErrorIs(t, err, storage.ErrDuplicate)
	})

	t.Run("Delete frees the email", func(t *testing.T) {
		require.NoError(t, store.DeleteUser(ctx, "u2"))
		assert.ErrorIs(t, store.DeleteUser(ctx, "u2"), storage.ErrNotFound)
		assert.ErrorIs(t, store.UpdateUser(ctx, &shared.User{ID: "u2", Email: "bob@example.com"}), storage.ErrNotFound)

		require.NoError(t, store.CreateUser(ctx, &shared.User{ID: "u3", Email: "bob@example.com"}))
	})
}

func TestLecturesByCourse(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	base := time.Now()
	for i, l := range []shared.Lecture{
		{ID: "l3", CourseID: "c1", Order: 3, IsPublished: true},
		{ID: "l1", CourseID: "c1", Order: 1, IsPublished: true},
		{ID: "l2", CourseID: "c1", Order: 2},
		{ID: "other", CourseID: "c2", Order: 1, IsPublished: true},
	} {
		l.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.CreateLecture(ctx, &l))
	}
	assert.ErrorIs(t, store.CreateLecture(ctx, &shared.Lecture{ID: "l1", CourseID: "c1"}), storage.ErrDuplicate)

	all, err := store.ListLecturesByCourse(ctx, "c1", false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"l1", "l2", "l3"}, []string{all[0].ID, all[1].ID, all[2].ID})

	published, err := store.ListLecturesByCourse(ctx, "c1", true)
	require.NoError(t, err)
	require.Len(t, published, 2)
	assert.Equal(t, "l1", published[0].ID)

	got, err := store.GetLecture(ctx, "l2")
	require.NoError(t, err)
	assert.NotNil(t, got.Materials)
	got.IsPublished = true
	require.NoError(t, store.UpdateLecture(ctx, got))

	published, err = store.ListLecturesByCourse(ctx, "c1", true)
	require.NoError(t, err)
	assert.Len(t, published, 3)

	require.NoError(t, store.DeleteLecture(ctx, "l2"))
	assert.ErrorIs(t, store.DeleteLecture(ctx, "l2"), storage.ErrNotFound)
	assert.ErrorIs(t, store.UpdateLecture(ctx, &shared.Lecture{ID: "l2"}), storage.ErrNotFound)
	_, err = store.GetLecture(ctx, "l2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
