package boltstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
)

func (s *Store) CreateCourse(ctx context.Context, course *shared.Course) error {
	if course.EnrolledStudents == nil {
		course.EnrolledStudents = []shared.Enrollment{}
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(buckets["courses"]).Get([]byte(course.ID)) != nil {
			return storage.ErrDuplicate
		}
		return put(tx, buckets["courses"], course.ID, course)
	})
}

func (s *Store) GetCourse(ctx context.Context, id string) (*shared.Course, error) {
	var course *shared.Course
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		course, err = get[shared.Course](tx, buckets["courses"], id)
		return err
	})
	return course, err
}

func (s *Store) ListCourses(ctx context.Context, filter shared.CourseFilter, page shared.Page) ([]shared.Course, int64, error) {
	search := strings.ToLower(filter.Search)

	var courses []shared.Course
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		courses, err = scan(tx, buckets["courses"], "", func(c *shared.Course) bool {
			if filter.PublishedOnly && !c.IsPublished {
				return false
			}
			if search != "" &&
				!strings.Contains(strings.ToLower(c.Title), search) &&
				!strings.Contains(strings.ToLower(c.Description), search) {
				return false
			}
			if filter.Category != "" && c.Category != filter.Category {
				return false
			}
			if filter.Difficulty != "" && c.Difficulty != filter.Difficulty {
				return false
			}
			if filter.InstructorID != "" && c.InstructorID != filter.InstructorID {
				return false
			}
			if filter.StudentID != "" && !c.IsEnrolled(filter.StudentID) {
				return false
			}
			return true
		})
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(courses, func(i, j int) bool { return courses[i].CreatedAt.After(courses[j].CreatedAt) })
	return paginate(courses, page.Skip(), page.Limit), int64(len(courses)), nil
}

// updateCourse loads, mutates and stores a course inside one write transaction
func (s *Store) updateCourse(id string, mutate func(*shared.Course) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		course, err := get[shared.Course](tx, buckets["courses"], id)
		if err != nil {
			return err
		}
		if err := mutate(course); err != nil {
			return err
		}
		return put(tx, buckets["courses"], id, course)
	})
}

func (s *Store) UpdateCourse(ctx context.Context, course *shared.Course) error {
	return s.updateCourse(course.ID, func(stored *shared.Course) error {
		stored.Title = course.Title
		stored.Description = course.Description
		stored.Category = course.Category
		stored.Difficulty = course.Difficulty
		stored.Duration = course.Duration
		stored.Tags = course.Tags
		stored.IsPublished = course.IsPublished
		stored.EnrollmentLimit = course.EnrollmentLimit
		stored.UpdatedAt = course.UpdatedAt
		return nil
	})
}

func (s *Store) DeleteCourse(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(buckets["courses"])
		if b.Get([]byte(id)) == nil {
			return storage.ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}

func (s *Store) AddEnrollment(ctx context.Context, courseID string, enrollment shared.Enrollment) error {
	return s.updateCourse(courseID, func(course *shared.Course) error {
		if course.IsEnrolled(enrollment.StudentID) {
			return storage.ErrDuplicate
		}
		if course.IsFull() {
			return storage.ErrPreconditionFailed
		}
		course.EnrolledStudents = append(course.EnrolledStudents, enrollment)
		course.EnrolledCount++
		course.UpdatedAt = time.Now()
		return nil
	})
}

func (s *Store) RemoveEnrollment(ctx context.Context, courseID, studentID string) error {
	return s.updateCourse(courseID, func(course *shared.Course) error {
		kept := course.EnrolledStudents[:0]
		for _, e := range course.EnrolledStudents {
			if e.StudentID != studentID {
				kept = append(kept, e)
			}
		}
		if len(kept) == len(course.EnrolledStudents) {
			return storage.ErrNotFound
		}
		course.EnrolledStudents = kept
		course.EnrolledCount--
		course.UpdatedAt = time.Now()
		return nil
	})
}

func (s *Store) UpdateProgress(ctx context.Context, courseID, studentID string, progress int) error {
	return s.updateCourse(courseID, func(course *shared.Course) error {
		for i := range course.EnrolledStudents {
			if course.EnrolledStudents[i].StudentID == studentID {
				course.EnrolledStudents[i].Progress = progress
				return nil
			}
		}
		return storage.ErrNotFound
	})
}

func (s *Store) AttachAssignment(ctx context.Context, courseID, assignmentID string) error {
	return s.updateCourse(courseID, func(course *shared.Course) error {
		course.AssignmentIDs = appendUnique(course.AssignmentIDs, assignmentID)
		course.UpdatedAt = time.Now()
		return nil
	})
}

func (s *Store) AttachQuiz(ctx context.Context, courseID, quizID string) error {
	return s.updateCourse(courseID, func(course *shared.Course) error {
		course.QuizIDs = appendUnique(course.QuizIDs, quizID)
		course.UpdatedAt = time.Now()
		return nil
	})
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
