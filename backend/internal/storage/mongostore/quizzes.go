package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
)

// appendRetries bounds how often AppendAttempt re-evaluates after a guard
// rejected the write but the reloaded quiz no longer explains why
const appendRetries = 3

func (s *Store) CreateQuiz(ctx context.Context, quiz *shared.Quiz) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if quiz.Attempts == nil {
		quiz.Attempts = []shared.Attempt{}
	}
	_, err := s.quizzesCol.InsertOne(queryCtx, quiz)
	return mapErr(err)
}

func (s *Store) GetQuiz(ctx context.Context, id string) (*shared.Quiz, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var quiz shared.Quiz
	if err := s.quizzesCol.FindOne(queryCtx, bson.M{"_id": id}).Decode(&quiz); err != nil {
		return nil, mapErr(err)
	}
	return &quiz, nil
}

func (s *Store) ListQuizzesByCourse(ctx context.Context, courseID string, publishedOnly bool) ([]shared.Quiz, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := bson.M{"course_id": courseID}
	if publishedOnly {
		filter["is_published"] = true
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetProjection(bson.M{"attempts": 0})
	return findAll[shared.Quiz](queryCtx, s.quizzesCol, filter, opts)
}

// AppendAttempt pushes the attempt only while the student has no incomplete
// attempt and fewer attempts than attempt_limit. Both guards are evaluated by
// the server inside the same update.
func (s *Store) AppendAttempt(ctx context.Context, quizID string, attempt shared.Attempt) (shared.Attempt, bool, error) {
	studentAttempts := bson.M{"$size": bson.M{"$filter": bson.M{
		"input": bson.M{"$ifNull": bson.A{"$attempts", bson.A{}}},
		"cond":  bson.M{"$eq": bson.A{"$$this.student_id", attempt.StudentID}},
	}}}

	filter := bson.M{
		"_id": quizID,
		"attempts": bson.M{"$not": bson.M{"$elemMatch": bson.M{
			"student_id":   attempt.StudentID,
			"is_completed": false,
		}}},
		"$expr": bson.M{"$lt": bson.A{studentAttempts, "$attempt_limit"}},
	}
	update := bson.M{
		"$push": bson.M{"attempts": attempt},
		"$set":  bson.M{"updated_at": time.Now()},
	}

	for i := 0; i < appendRetries; i++ {
		queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
		result, err := s.quizzesCol.UpdateOne(queryCtx, filter, update)
		cancel()
		if err != nil {
			return shared.Attempt{}, false, err
		}
		if result.MatchedCount == 1 {
			return attempt, false, nil
		}

		quiz, err := s.GetQuiz(ctx, quizID)
		if err != nil {
			return shared.Attempt{}, false, err
		}
		if active, ok := quiz.ActiveAttempt(attempt.StudentID); ok {
			return active, true, nil
		}
		if len(quiz.AttemptsBy(attempt.StudentID)) >= quiz.AttemptLimit {
			return shared.Attempt{}, false, storage.ErrPreconditionFailed
		}
	}
	return shared.Attempt{}, false, storage.ErrPreconditionFailed
}

// CompleteAttempt updates the matched attempt through the positional operator
func (s *Store) CompleteAttempt(ctx context.Context, quizID string, result shared.Attempt) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := bson.M{
		"_id": quizID,
		"attempts": bson.M{"$elemMatch": bson.M{
			"id":           result.ID,
			"is_completed": false,
		}},
	}
	update := bson.M{"$set": bson.M{
		"attempts.$.answers":      result.Answers,
		"attempts.$.score":        result.Score,
		"attempts.$.total_points": result.TotalPoints,
		"attempts.$.submitted_at": result.SubmittedAt,
		"attempts.$.is_completed": true,
		"updated_at":              time.Now(),
	}}

	updated, err := s.quizzesCol.UpdateOne(queryCtx, filter, update)
	if err != nil {
		return err
	}
	if updated.MatchedCount == 1 {
		return nil
	}

	found, err := exists(queryCtx, s.quizzesCol, quizID)
	if err != nil {
		return err
	}
	if !found {
		return storage.ErrNotFound
	}
	return storage.ErrPreconditionFailed
}
