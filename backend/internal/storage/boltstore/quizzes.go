package boltstore

import (
	"context"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
)

func (s *Store) CreateQuiz(ctx context.Context, quiz *shared.Quiz) error {
	if quiz.Attempts == nil {
		quiz.Attempts = []shared.Attempt{}
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(buckets["quizzes"]).Get([]byte(quiz.ID)) != nil {
			return storage.ErrDuplicate
		}
		return put(tx, buckets["quizzes"], quiz.ID, quiz)
	})
}

func (s *Store) GetQuiz(ctx context.Context, id string) (*shared.Quiz, error) {
	var quiz *shared.Quiz
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		quiz, err = get[shared.Quiz](tx, buckets["quizzes"], id)
		return err
	})
	return quiz, err
}

func (s *Store) ListQuizzesByCourse(ctx context.Context, courseID string, publishedOnly bool) ([]shared.Quiz, error) {
	var quizzes []shared.Quiz
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		quizzes, err = scan(tx, buckets["quizzes"], "", func(q *shared.Quiz) bool {
			return q.CourseID == courseID && (!publishedOnly || q.IsPublished)
		})
		return err
	})
	for i := range quizzes {
		quizzes[i].Attempts = nil
	}
	sort.Slice(quizzes, func(i, j int) bool { return quizzes[i].CreatedAt.Before(quizzes[j].CreatedAt) })
	return quizzes, err
}

func (s *Store) AppendAttempt(ctx context.Context, quizID string, attempt shared.Attempt) (shared.Attempt, bool, error) {
	result := attempt
	resumed := false

	err := s.db.Update(func(tx *bbolt.Tx) error {
		quiz, err := get[shared.Quiz](tx, buckets["quizzes"], quizID)
		if err != nil {
			return err
		}
		if active, ok := quiz.ActiveAttempt(attempt.StudentID); ok {
			result, resumed = active, true
			return nil
		}
		if len(quiz.AttemptsBy(attempt.StudentID)) >= quiz.AttemptLimit {
			return storage.ErrPreconditionFailed
		}
		quiz.Attempts = append(quiz.Attempts, attempt)
		quiz.UpdatedAt = time.Now()
		return put(tx, buckets["quizzes"], quizID, quiz)
	})
	if err != nil {
		return shared.Attempt{}, false, err
	}
	return result, resumed, nil
}

func (s *Store) CompleteAttempt(ctx context.Context, quizID string, result shared.Attempt) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		quiz, err := get[shared.Quiz](tx, buckets["quizzes"], quizID)
		if err != nil {
			return err
		}
		for i := range quiz.Attempts {
			a := &quiz.Attempts[i]
			if a.ID != result.ID {
				continue
			}
			if a.IsCompleted {
				return storage.ErrPreconditionFailed
			}
			a.Answers = result.Answers
			a.Score = result.Score
			a.TotalPoints = result.TotalPoints
			a.SubmittedAt = result.SubmittedAt
			a.IsCompleted = true
			quiz.UpdatedAt = time.Now()
			return put(tx, buckets["quizzes"], quizID, quiz)
		}
		return storage.ErrPreconditionFailed
	})
}
