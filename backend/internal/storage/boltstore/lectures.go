package boltstore

import (
	"context"
	"sort"

	"go.etcd.io/bbolt"

	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
)

// ============================================================================
// Lectures
// ============================================================================

func (s *Store) CreateLecture(ctx context.Context, lecture *shared.Lecture) error {
	if lecture.Materials == nil {
		lecture.Materials = []shared.Attachment{}
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(buckets["lectures"]).Get([]byte(lecture.ID)) != nil {
			return storage.ErrDuplicate
		}
		return put(tx, buckets["lectures"], lecture.ID, lecture)
	})
}

func (s *Store) GetLecture(ctx context.Context, id string) (*shared.Lecture, error) {
	var lecture *shared.Lecture
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		lecture, err = get[shared.Lecture](tx, buckets["lectures"], id)
		return err
	})
	return lecture, err
}

func (s *Store) ListLecturesByCourse(ctx context.Context, courseID string, publishedOnly bool) ([]shared.Lecture, error) {
	var lectures []shared.Lecture
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		lectures, err = scan(tx, buckets["lectures"], "", func(l *shared.Lecture) bool {
			return l.CourseID == courseID && (!publishedOnly || l.IsPublished)
		})
		return err
	})
	sort.SliceStable(lectures, func(i, j int) bool {
		if lectures[i].Order != lectures[j].Order {
			return lectures[i].Order < lectures[j].Order
		}
		return lectures[i].CreatedAt.Before(lectures[j].CreatedAt)
	})
	return lectures, err
}

func (s *Store) UpdateLecture(ctx context.Context, lecture *shared.Lecture) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(buckets["lectures"]).Get([]byte(lecture.ID)) == nil {
			return storage.ErrNotFound
		}
		return put(tx, buckets["lectures"], lecture.ID, lecture)
	})
}

func (s *Store) DeleteLecture(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(buckets["lectures"])
		if b.Get([]byte(id)) == nil {
			return storage.ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}
