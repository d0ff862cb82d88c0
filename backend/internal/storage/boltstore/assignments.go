package boltstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
)

// ============================================================================
// Assignments
// ============================================================================

func (s *Store) CreateAssignment(ctx context.Context, assignment *shared.Assignment) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(buckets["assignments"]).Get([]byte(assignment.ID)) != nil {
			return storage.ErrDuplicate
		}
		return put(tx, buckets["assignments"], assignment.ID, assignment)
	})
}

func (s *Store) GetAssignment(ctx context.Context, id string) (*shared.Assignment, error) {
	var assignment *shared.Assignment
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		assignment, err = get[shared.Assignment](tx, buckets["assignments"], id)
		return err
	})
	return assignment, err
}

func (s *Store) ListAssignmentsByCourse(ctx context.Context, courseID string, publishedOnly bool) ([]shared.Assignment, error) {
	var assignments []shared.Assignment
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		assignments, err = scan(tx, buckets["assignments"], "", func(a *shared.Assignment) bool {
			return a.CourseID == courseID && (!publishedOnly || a.IsPublished)
		})
		return err
	})
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].DueDate.Before(assignments[j].DueDate) })
	return assignments, err
}

// ============================================================================
// Submissions
// ============================================================================

// submissionKey is the unique (assignment, student) index key
func submissionKey(assignmentID, studentID string) string {
	return fmt.Sprintf("%s:%s", assignmentID, studentID)
}

func (s *Store) InsertSubmission(ctx context.Context, submission *shared.Submission) error {
	if submission.Attachments == nil {
		submission.Attachments = []shared.Attachment{}
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		keys := tx.Bucket(buckets["submissionKeys"])
		key := []byte(submissionKey(submission.AssignmentID, submission.StudentID))
		if keys.Get(key) != nil {
			return storage.ErrDuplicate
		}
		if err := keys.Put(key, []byte(submission.ID)); err != nil {
			return err
		}
		return put(tx, buckets["submissions"], submission.ID, submission)
	})
}

func (s *Store) GetSubmission(ctx context.Context, id string) (*shared.Submission, error) {
	var submission *shared.Submission
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		submission, err = get[shared.Submission](tx, buckets["submissions"], id)
		return err
	})
	return submission, err
}

func (s *Store) FindSubmission(ctx context.Context, assignmentID, studentID string) (*shared.Submission, error) {
	var submission *shared.Submission
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(buckets["submissionKeys"]).Get([]byte(submissionKey(assignmentID, studentID)))
		if id == nil {
			return storage.ErrNotFound
		}
		var err error
		submission, err = get[shared.Submission](tx, buckets["submissions"], string(id))
		return err
	})
	return submission, err
}

// ListSubmissionsByAssignment walks the "assignmentId:" prefix of the key index
func (s *Store) ListSubmissionsByAssignment(ctx context.Context, assignmentID string) ([]shared.Submission, error) {
	submissions := []shared.Submission{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(buckets["submissionKeys"]).Cursor()
		prefix := []byte(assignmentID + ":")
		for k, id := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, id = c.Next() {
			submission, err := get[shared.Submission](tx, buckets["submissions"], string(id))
			if err != nil {
				return err
			}
			submissions = append(submissions, *submission)
		}
		return nil
	})
	sort.Slice(submissions, func(i, j int) bool { return submissions[i].SubmittedAt.Before(submissions[j].SubmittedAt) })
	return submissions, err
}

func (s *Store) ListSubmissionsByStudent(ctx context.Context, studentID string) ([]shared.Submission, error) {
	var submissions []shared.Submission
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		submissions, err = scan(tx, buckets["submissions"], "", func(sub *shared.Submission) bool {
			return sub.StudentID == studentID
		})
		return err
	})
	sort.Slice(submissions, func(i, j int) bool { return submissions[i].SubmittedAt.After(submissions[j].SubmittedAt) })
	return submissions, err
}

func (s *Store) UpdateGrade(ctx context.Context, id string, expectedVersion int64, update shared.GradeUpdate) (*shared.Submission, error) {
	return s.casSubmission(id, expectedVersion, func(sub *shared.Submission) error {
		if sub.Status == shared.StatusReturned {
			return storage.ErrPreconditionFailed
		}
		grade, effective, gradedAt := update.Grade, update.EffectiveGrade, update.GradedAt
		sub.Grade = &grade
		sub.EffectiveGrade = &effective
		sub.Feedback = update.Feedback
		sub.Status = shared.StatusGraded
		sub.GradedBy = update.GradedBy
		sub.GradedAt = &gradedAt
		sub.UpdatedAt = gradedAt
		return nil
	})
}

func (s *Store) MarkReturned(ctx context.Context, id string, expectedVersion int64, at time.Time) (*shared.Submission, error) {
	return s.casSubmission(id, expectedVersion, func(sub *shared.Submission) error {
		if sub.Status != shared.StatusGraded {
			return storage.ErrPreconditionFailed
		}
		sub.Status = shared.StatusReturned
		sub.UpdatedAt = at
		return nil
	})
}

func (s *Store) casSubmission(id string, expectedVersion int64, mutate func(*shared.Submission) error) (*shared.Submission, error) {
	var updated *shared.Submission
	err := s.db.Update(func(tx *bbolt.Tx) error {
		sub, err := get[shared.Submission](tx, buckets["submissions"], id)
		if err != nil {
			return err
		}
		if sub.Version != expectedVersion {
			return storage.ErrPreconditionFailed
		}
		if err := mutate(sub); err != nil {
			return err
		}
		sub.Version++
		updated = sub
		return put(tx, buckets["submissions"], id, sub)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
