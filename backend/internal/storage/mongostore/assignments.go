package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
)

// ============================================================================
// Assignments
// ============================================================================

func (s *Store) CreateAssignment(ctx context.Context, assignment *shared.Assignment) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.assignmentsCol.InsertOne(queryCtx, assignment)
	return mapErr(err)
}

func (s *Store) GetAssignment(ctx context.Context, id string) (*shared.Assignment, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var assignment shared.Assignment
	if err := s.assignmentsCol.FindOne(queryCtx, bson.M{"_id": id}).Decode(&assignment); err != nil {
		return nil, mapErr(err)
	}
	return &assignment, nil
}

func (s *Store) ListAssignmentsByCourse(ctx context.Context, courseID string, publishedOnly bool) ([]shared.Assignment, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := bson.M{"course_id": courseID}
	if publishedOnly {
		filter["is_published"] = true
	}
	return findAll[shared.Assignment](queryCtx, s.assignmentsCol, filter, options.Find().SetSort(bson.D{{Key: "due_date", Value: 1}}))
}

// ============================================================================
// Submissions
// ============================================================================

// InsertSubmission relies on the unique (assignment_id, student_id) index
func (s *Store) InsertSubmission(ctx context.Context, submission *shared.Submission) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if submission.Attachments == nil {
		submission.Attachments = []shared.Attachment{}
	}
	_, err := s.submissionsCol.InsertOne(queryCtx, submission)
	return mapErr(err)
}

func (s *Store) GetSubmission(ctx context.Context, id string) (*shared.Submission, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var submission shared.Submission
	if err := s.submissionsCol.FindOne(queryCtx, bson.M{"_id": id}).Decode(&submission); err != nil {
		return nil, mapErr(err)
	}
	return &submission, nil
}

func (s *Store) FindSubmission(ctx context.Context, assignmentID, studentID string) (*shared.Submission, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var submission shared.Submission
	err := s.submissionsCol.FindOne(queryCtx, bson.M{
		"assignment_id": assignmentID,
		"student_id":    studentID,
	}).Decode(&submission)
	if err != nil {
		return nil, mapErr(err)
	}
	return &submission, nil
}

func (s *Store) ListSubmissionsByAssignment(ctx context.Context, assignmentID string) ([]shared.Submission, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return findAll[shared.Submission](queryCtx, s.submissionsCol,
		bson.M{"assignment_id": assignmentID},
		options.Find().SetSort(bson.D{{Key: "submitted_at", Value: 1}}))
}

func (s *Store) ListSubmissionsByStudent(ctx context.Context, studentID string) ([]shared.Submission, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return findAll[shared.Submission](queryCtx, s.submissionsCol,
		bson.M{"student_id": studentID},
		options.Find().SetSort(bson.D{{Key: "submitted_at", Value: -1}}))
}

// UpdateGrade is a compare-and-set on version; RETURNED submissions never match
func (s *Store) UpdateGrade(ctx context.Context, id string, expectedVersion int64, update shared.GradeUpdate) (*shared.Submission, error) {
	filter := bson.M{
		"_id":     id,
		"version": expectedVersion,
		"status":  bson.M{"$ne": shared.StatusReturned},
	}
	change := bson.M{
		"$set": bson.M{
			"grade":           update.Grade,
			"effective_grade": update.EffectiveGrade,
			"feedback":        update.Feedback,
			"status":          shared.StatusGraded,
			"graded_by":       update.GradedBy,
			"graded_at":       update.GradedAt,
			"updated_at":      update.GradedAt,
		},
		"$inc": bson.M{"version": 1},
	}
	return s.casSubmission(ctx, id, filter, change)
}

func (s *Store) MarkReturned(ctx context.Context, id string, expectedVersion int64, at time.Time) (*shared.Submission, error) {
	filter := bson.M{
		"_id":     id,
		"version": expectedVersion,
		"status":  shared.StatusGraded,
	}
	change := bson.M{
		"$set": bson.M{"status": shared.StatusReturned, "updated_at": at},
		"$inc": bson.M{"version": 1},
	}
	return s.casSubmission(ctx, id, filter, change)
}

func (s *Store) casSubmission(ctx context.Context, id string, filter, change bson.M) (*shared.Submission, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var updated shared.Submission
	err := s.submissionsCol.FindOneAndUpdate(queryCtx, filter, change,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, err
	}

	found, err := exists(queryCtx, s.submissionsCol, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, storage.ErrNotFound
	}
	return nil, storage.ErrPreconditionFailed
}
