package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
)

// ============================================================================
// Lectures
// ============================================================================

func (s *Store) CreateLecture(ctx context.Context, lecture *shared.Lecture) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if lecture.Materials == nil {
		lecture.Materials = []shared.Attachment{}
	}
	_, err := s.lecturesCol.InsertOne(queryCtx, lecture)
	return mapErr(err)
}

func (s *Store) GetLecture(ctx context.Context, id string) (*shared.Lecture, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var lecture shared.Lecture
	if err := s.lecturesCol.FindOne(queryCtx, bson.M{"_id": id}).Decode(&lecture); err != nil {
		return nil, mapErr(err)
	}
	return &lecture, nil
}

func (s *Store) ListLecturesByCourse(ctx context.Context, courseID string, publishedOnly bool) ([]shared.Lecture, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := bson.M{"course_id": courseID}
	if publishedOnly {
		filter["is_published"] = true
	}
	opts := options.Find().SetSort(bson.D{{Key: "order", Value: 1}, {Key: "created_at", Value: 1}})
	return findAll[shared.Lecture](queryCtx, s.lecturesCol, filter, opts)
}

func (s *Store) UpdateLecture(ctx context.Context, lecture *shared.Lecture) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.lecturesCol.ReplaceOne(queryCtx, bson.M{"_id": lecture.ID}, lecture)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteLecture(ctx context.Context, id string) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.lecturesCol.DeleteOne(queryCtx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}
