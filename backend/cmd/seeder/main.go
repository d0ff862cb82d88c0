package main

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
	"lms_backend/backend/internal/storage/boltstore"
	"lms_backend/backend/internal/storage/mongostore"
)

// Demo accounts
const (
	AdminID       = "admin-001"
	InstructorID1 = "instructor-001"
	InstructorID2 = "instructor-002"
	StudentID1    = "student-001" // John Student, student@example.com
	StudentID2    = "student-002" // Alice Wonderland, student2@example.com
	StudentID3    = "student-003" // Bob Builder, student3@example.com

	// Common Credentials
	CommonPassword = "password"

	// Course IDs
	GoCourseID   = "course-go-101"
	AlgoCourseID = "course-algo-201"
	MathCourseID = "course-math-101"
)

// CourseSeed holds the demo data for one course
type CourseSeed struct {
	ID           string
	Title        string
	Description  string
	Category     string
	Difficulty   string
	InstructorID string
	Limit        int
	Published    bool
	Students     []string
}

func main() {
	log.Println("Starting Database Seeder...")

	_ = shared.LoadEnv(".env")

	cfg, err := shared.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var store storage.Store
	if cfg.Storage.Driver == "bolt" {
		store, err = boltstore.Open(cfg.Storage.BoltPath)
	} else {
		store, err = mongostore.Open(ctx, &cfg.MongoDB)
	}
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Storage.Driver, err)
	}
	defer store.Close(context.Background())

	// --- 1. Seed Users ---
	seedUsers(ctx, store)

	// --- 2. Seed Courses and Enrollments ---
	courseSeeds := []CourseSeed{
		{GoCourseID, "Programming in Go", "Types, interfaces and concurrency", "Programming", "beginner", InstructorID1, 50, true, []string{StudentID1, StudentID2, StudentID3}},
		{AlgoCourseID, "Data Structures & Algorithms", "Sorting, graphs and dynamic programming", "Computer Science", "intermediate", InstructorID1, 2, true, []string{StudentID1, StudentID3}},
		{MathCourseID, "Calculus I", "Limits, derivatives and integrals", "Mathematics", "beginner", InstructorID2, 0, false, nil},
	}
	seedCourses(ctx, store, courseSeeds)

	// --- 3. Seed Coursework ---
	seedLectures(ctx, store)
	seedAssignments(ctx, store)
	seedQuizzes(ctx, store)

	log.Println("All data seeding completed successfully.")
}

// ============================================================================
// SEEDING FUNCTIONS
// ============================================================================

func seedUsers(ctx context.Context, store storage.Store) {
	log.Println("--- Seeding Users ---")

	hash, err := bcrypt.GenerateFromPassword([]byte(CommonPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	now := time.Now()
	users := []shared.User{
		{ID: AdminID, Name: "Super Admin", Email: "admin@example.com", Role: shared.RoleAdmin},
		{ID: InstructorID1, Name: "Dr. Jane Professor", Email: "instructor@example.com", Role: shared.RoleInstructor},
		{ID: InstructorID2, Name: "Prof. Alan Turing", Email: "instructor2@example.com", Role: shared.RoleInstructor},
		{ID: StudentID1, Name: "John Student", Email: "student@example.com", Role: shared.RoleStudent},
		{ID: StudentID2, Name: "Alice Wonderland", Email: "student2@example.com", Role: shared.RoleStudent},
		{ID: StudentID3, Name: "Bob Builder", Email: "student3@example.com", Role: shared.RoleStudent},
	}

	for _, user := range users {
		user.PasswordHash = string(hash)
		user.IsActive = true
		user.CreatedAt = now
		user.UpdatedAt = now

		if err := store.CreateUser(ctx, &user); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				log.Printf("Skipping existing user: %s", user.Email)
				continue
			}
			log.Fatalf("Failed to insert user %s: %v", user.Email, err)
		}
		log.Printf("Inserted user: %s (%s)", user.Email, user.Role)
	}
}

func seedCourses(ctx context.Context, store storage.Store, seeds []CourseSeed) {
	log.Println("--- Seeding Courses ---")

	now := time.Now()
	for _, seed := range seeds {
		if _, err := store.GetCourse(ctx, seed.ID); err == nil {
			log.Printf("Skipping existing course: %s", seed.ID)
			continue
		}

		course := shared.Course{
			ID:               seed.ID,
			Title:            seed.Title,
			Description:      seed.Description,
			InstructorID:     seed.InstructorID,
			Category:         seed.Category,
			Difficulty:       seed.Difficulty,
			Duration:         12,
			IsPublished:      seed.Published,
			EnrolledStudents: []shared.Enrollment{},
			AssignmentIDs:    []string{},
			QuizIDs:          []string{},
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if seed.Limit > 0 {
			limit := seed.Limit
			course.EnrollmentLimit = &limit
		}

		if err := store.CreateCourse(ctx, &course); err != nil {
			log.Fatalf("Failed to insert course %s: %v", seed.ID, err)
		}

		for i, studentID := range seed.Students {
			enrollment := shared.Enrollment{
				StudentID:  studentID,
				EnrolledAt: now.AddDate(0, 0, -(len(seed.Students) - i)),
				Progress:   (i * 30) % 100,
			}
			if err := store.AddEnrollment(ctx, seed.ID, enrollment); err != nil {
				log.Printf("Warning: could not enroll %s in %s: %v", studentID, seed.ID, err)
			}
		}
		log.Printf("Inserted course: %s (%d students)", seed.Title, len(seed.Students))
	}
}

func seedLectures(ctx context.Context, store storage.Store) {
	log.Println("--- Seeding Lectures ---")

	now := time.Now()
	lectures := []shared.Lecture{
		{ID: "lecture-go-intro", Title: "Why Go", Description: "Tooling, modules and the standard library", CourseID: GoCourseID, Order: 1, Duration: 30, IsPublished: true},
		{ID: "lecture-go-goroutines", Title: "Goroutines and Channels", Description: "Structured concurrency with errgroup", CourseID: GoCourseID, Order: 2, Duration: 45, IsPublished: true},
		{ID: "lecture-go-generics", Title: "Generics", Description: "Type parameters and constraints", CourseID: GoCourseID, Order: 3, Duration: 40, IsPublished: false},
		{ID: "lecture-algo-sorting", Title: "Sorting", Description: "Merge sort and quicksort", CourseID: AlgoCourseID, Order: 1, Duration: 50, IsPublished: true},
	}

	for _, lecture := range lectures {
		if _, err := store.GetLecture(ctx, lecture.ID); err == nil {
			log.Printf("Skipping existing lecture: %s", lecture.ID)
			continue
		}
		lecture.InstructorID = InstructorID1
		lecture.Materials = []shared.Attachment{}
		lecture.CreatedAt = now
		lecture.UpdatedAt = now

		if err := store.CreateLecture(ctx, &lecture); err != nil {
			log.Fatalf("Failed to insert lecture %s: %v", lecture.ID, err)
		}
		log.Printf("Inserted lecture: %s", lecture.Title)
	}
}

func seedAssignments(ctx context.Context, store storage.Store) {
	log.Println("--- Seeding Assignments ---")

	now := time.Now()
	assignments := []shared.Assignment{
		{
			ID:                   "asg-go-concurrency",
			Title:                "Concurrent Word Count",
			Description:          "Count words across files with a worker pool",
			CourseID:             GoCourseID,
			InstructorID:         InstructorID1,
			DueDate:              now.AddDate(0, 0, 7),
			MaxPoints:            100,
			IsPublished:          true,
			AllowLateSubmissions: true,
			LatePenalty:          10,
			Rubric: []shared.RubricItem{
				{Criteria: "Correctness", Points: 60},
				{Criteria: "No data races", Points: 40},
			},
		},
		{
			ID:                   "asg-algo-sorting",
			Title:                "Sorting Benchmarks",
			Description:          "Compare merge sort and quicksort on large inputs",
			CourseID:             AlgoCourseID,
			InstructorID:         InstructorID1,
			DueDate:              now.AddDate(0, 0, -2),
			MaxPoints:            100,
			IsPublished:          true,
			AllowLateSubmissions: false,
		},
	}

	for _, assignment := range assignments {
		if _, err := store.GetAssignment(ctx, assignment.ID); err == nil {
			log.Printf("Skipping existing assignment: %s", assignment.ID)
			continue
		}
		assignment.CreatedAt = now
		assignment.UpdatedAt = now

		if err := store.CreateAssignment(ctx, &assignment); err != nil {
			log.Fatalf("Failed to insert assignment %s: %v", assignment.ID, err)
		}
		if err := store.AttachAssignment(ctx, assignment.CourseID, assignment.ID); err != nil {
			log.Fatalf("Failed to link assignment %s: %v", assignment.ID, err)
		}
		log.Printf("Inserted assignment: %s", assignment.Title)
	}
}

func seedQuizzes(ctx context.Context, store storage.Store) {
	log.Println("--- Seeding Quizzes ---")

	const quizID = "quiz-go-basics"
	if _, err := store.GetQuiz(ctx, quizID); err == nil {
		log.Printf("Skipping existing quiz: %s", quizID)
		return
	}

	now := time.Now()
	quiz := shared.Quiz{
		ID:           quizID,
		Title:        "Go Basics",
		CourseID:     GoCourseID,
		InstructorID: InstructorID1,
		Questions: []shared.Question{
			{Question: "Which keyword starts a goroutine?", Type: "multiple-choice", Options: []string{"go", "async", "spawn"}, CorrectAnswer: "go", Points: 1},
			{Question: "A nil map can be read from", Type: "true-false", CorrectAnswer: "true", Points: 1},
			{Question: "Name the built-in used to grow a slice", Type: "short-answer", CorrectAnswer: "append", Points: 2},
		},
		TimeLimit:    15,
		AttemptLimit: 2,
		IsPublished:  true,
		ShowResults:  "immediately",
		Attempts:     []shared.Attempt{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := store.CreateQuiz(ctx, &quiz); err != nil {
		log.Fatalf("Failed to insert quiz: %v", err)
	}
	if err := store.AttachQuiz(ctx, quiz.CourseID, quiz.ID); err != nil {
		log.Fatalf("Failed to link quiz: %v", err)
	}
	log.Printf("Inserted quiz: %s", quiz.Title)
}
