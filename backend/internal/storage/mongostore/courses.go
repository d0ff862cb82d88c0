package mongostore

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
)

func (s *Store) CreateCourse(ctx context.Context, course *shared.Course) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if course.EnrolledStudents == nil {
		course.EnrolledStudents = []shared.Enrollment{}
	}
	if course.AssignmentIDs == nil {
		course.AssignmentIDs = []string{}
	}
	if course.QuizIDs == nil {
		course.QuizIDs = []string{}
	}

	_, err := s.coursesCol.InsertOne(queryCtx, course)
	return mapErr(err)
}

func (s *Store) GetCourse(ctx context.Context, id string) (*shared.Course, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var course shared.Course
	if err := s.coursesCol.FindOne(queryCtx, bson.M{"_id": id}).Decode(&course); err != nil {
		return nil, mapErr(err)
	}
	return &course, nil
}

func (s *Store) ListCourses(ctx context.Context, filter shared.CourseFilter, page shared.Page) ([]shared.Course, int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := bson.M{}
	if filter.PublishedOnly {
		query["is_published"] = true
	}
	if filter.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		query["$or"] = []bson.M{
			{"title": pattern},
			{"description": pattern},
		}
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.Difficulty != "" {
		query["difficulty"] = filter.Difficulty
	}
	if filter.InstructorID != "" {
		query["instructor_id"] = filter.InstructorID
	}
	if filter.StudentID != "" {
		query["enrolled_students.student_id"] = filter.StudentID
	}

	total, err := s.coursesCol.CountDocuments(queryCtx, query)
	if err != nil {
		return nil, 0, err
	}

	courses, err := findAll[shared.Course](queryCtx, s.coursesCol, query, shared.BuildFindOptions(page, "created_at", -1))
	if err != nil {
		return nil, 0, err
	}
	return courses, total, nil
}

// UpdateCourse sets the editable fields only, leaving enrollment state to the
// enrollment operations
func (s *Store) UpdateCourse(ctx context.Context, course *shared.Course) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.coursesCol.UpdateOne(queryCtx, bson.M{"_id": course.ID}, bson.M{"$set": bson.M{
		"title":            course.Title,
		"description":      course.Description,
		"category":         course.Category,
		"difficulty":       course.Difficulty,
		"duration":         course.Duration,
		"tags":             course.Tags,
		"is_published":     course.IsPublished,
		"enrollment_limit": course.EnrollmentLimit,
		"updated_at":       course.UpdatedAt,
	}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteCourse(ctx context.Context, id string) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.coursesCol.DeleteOne(queryCtx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AddEnrollment guards duplicate and capacity checks in the update filter so
// the check and the write are one atomic operation
func (s *Store) AddEnrollment(ctx context.Context, courseID string, enrollment shared.Enrollment) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := bson.M{
		"_id":                          courseID,
		"enrolled_students.student_id": bson.M{"$ne": enrollment.StudentID},
		"$or": []bson.M{
			{"enrollment_limit": nil},
			{"$expr": bson.M{"$lt": bson.A{"$enrolled_count", "$enrollment_limit"}}},
		},
	}
	update := bson.M{
		"$push": bson.M{"enrolled_students": enrollment},
		"$inc":  bson.M{"enrolled_count": 1},
		"$set":  bson.M{"updated_at": time.Now()},
	}

	result, err := s.coursesCol.UpdateOne(queryCtx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 1 {
		return nil
	}

	// Nothing matched: find out which guard rejected the write
	course, err := s.GetCourse(ctx, courseID)
	if err != nil {
		return err
	}
	if course.IsEnrolled(enrollment.StudentID) {
		return storage.ErrDuplicate
	}
	return storage.ErrPreconditionFailed
}

func (s *Store) RemoveEnrollment(ctx context.Context, courseID, studentID string) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.coursesCol.UpdateOne(queryCtx,
		bson.M{"_id": courseID, "enrolled_students.student_id": studentID},
		bson.M{
			"$pull": bson.M{"enrolled_students": bson.M{"student_id": studentID}},
			"$inc":  bson.M{"enrolled_count": -1},
			"$set":  bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateProgress(ctx context.Context, courseID, studentID string, progress int) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.coursesCol.UpdateOne(queryCtx,
		bson.M{"_id": courseID, "enrolled_students.student_id": studentID},
		bson.M{"$set": bson.M{"enrolled_students.$.progress": progress}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) AttachAssignment(ctx context.Context, courseID, assignmentID string) error {
	return s.addToCourseSet(ctx, courseID, "assignment_ids", assignmentID)
}

func (s *Store) AttachQuiz(ctx context.Context, courseID, quizID string) error {
	return s.addToCourseSet(ctx, courseID, "quiz_ids", quizID)
}

func (s *Store) addToCourseSet(ctx context.Context, courseID, field, value string) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.coursesCol.UpdateOne(queryCtx,
		bson.M{"_id": courseID},
		bson.M{"$addToSet": bson.M{field: value}, "$set": bson.M{"updated_at": time.Now()}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}
