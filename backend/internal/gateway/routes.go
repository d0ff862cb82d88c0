package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"lms_backend/backend/internal/auth"
	"lms_backend/backend/internal/gateway/handlers"
	"lms_backend/backend/internal/gateway/util"
	"lms_backend/backend/internal/shared"
)

// SetupRoutes configures the Chi router, middleware, and route handlers.
func SetupRoutes(services *Services) *chi.Mux {
	r := chi.NewRouter()
	util.SetReporter(services.Reporter)

	// 1. Global Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   services.CORS.AllowedOrigins,
		AllowedMethods:   services.CORS.AllowedMethods,
		AllowedHeaders:   services.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: services.CORS.AllowCredentials,
		MaxAge:           services.CORS.MaxAge,
	}))

	// 2. Initialize Handlers
	authHandler := &handlers.AuthHandler{Auth: services.Auth}
	adminHandler := &handlers.AdminHandler{Auth: services.Auth, Audit: services.Audit}
	userHandler := &handlers.UserHandler{Auth: services.Auth}
	courseHandler := &handlers.CourseHandler{Courses: services.Courses}
	enrollmentHandler := &handlers.EnrollmentHandler{Courses: services.Courses}
	lectureHandler := &handlers.LectureHandler{Lectures: services.Lectures}
	assignmentHandler := &handlers.AssignmentHandler{
		Assignments: services.Assignments,
		LatePolicy:  services.Lifecycle.AssignmentsLatePolicy,
	}
	submissionHandler := &handlers.SubmissionHandler{
		Assignments: services.Assignments,
		LatePolicy:  services.Lifecycle.SubmissionsLatePolicy,
	}
	gradeHandler := &handlers.GradeHandler{Assignments: services.Assignments}
	quizHandler := &handlers.QuizHandler{Quizzes: services.Quizzes}
	notificationHandler := &handlers.NotificationHandler{Notifications: services.Notifications}

	// Websocket connections outlive the request timeout
	r.Method(http.MethodGet, "/ws", services.Hub.Handler(services.Auth))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// 3. Define Routes (grouped by prefix)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		// --- Public Routes ---

		// Auth
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout) // Logout handles its own token extraction

		// Course Catalog (Publicly viewable)
		r.Get("/courses", courseHandler.ListCourses)
		r.Get("/courses/{id}", courseHandler.GetCourse)

		// --- Protected Routes (Require Valid Token) ---
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(services.Auth))

			// Auth (Authenticated Only)
			r.Get("/auth/me", authHandler.Me)
			r.Post("/auth/change-password", authHandler.ChangePassword)

			// Users
			r.Route("/users", func(r chi.Router) {
				// Self or Admin
				r.Get("/{id}", userHandler.GetUser)
				r.Put("/{id}", userHandler.UpdateUser)

				// Admin Only
				r.Group(func(r chi.Router) {
					r.Use(RequireRole(shared.RoleAdmin))
					r.Post("/", adminHandler.CreateUser)
					r.Get("/", adminHandler.ListUsers)
					r.Delete("/{id}", userHandler.DeleteUser)
					r.Patch("/{id}/status", adminHandler.SetUserStatus)
				})
			})
			r.With(RequireRole(shared.RoleAdmin)).Get("/audit", adminHandler.ListAuditLogs)

			// Courses
			r.Get("/courses/my", enrollmentHandler.MyCourses)
			r.With(RequireRole(shared.RoleInstructor, shared.RoleAdmin)).Post("/courses", courseHandler.CreateCourse)
			r.With(RequireRole(shared.RoleInstructor, shared.RoleAdmin)).Put("/courses/{id}", courseHandler.UpdateCourse)
			r.With(RequireRole(shared.RoleInstructor, shared.RoleAdmin)).Delete("/courses/{id}", courseHandler.DeleteCourse)

			// Enrollment (Student Only)
			r.Group(func(r chi.Router) {
				r.Use(RequireRole(shared.RoleStudent))
				r.Post("/courses/{id}/enroll", enrollmentHandler.Enroll)
				r.Delete("/courses/{id}/enroll", enrollmentHandler.Unenroll)
				r.Put("/courses/{id}/progress", enrollmentHandler.UpdateProgress)
			})

			// Lectures
			r.Route("/lectures", func(r chi.Router) {
				r.Get("/course/{courseId}", lectureHandler.ListByCourse)
				r.Get("/{id}", lectureHandler.GetLecture)

				r.Group(func(r chi.Router) {
					r.Use(RequireRole(shared.RoleInstructor, shared.RoleAdmin))
					r.Post("/", lectureHandler.CreateLecture)
					r.Put("/{id}", lectureHandler.UpdateLecture)
					r.Delete("/{id}", lectureHandler.DeleteLecture)
				})
			})

			// Assignments
			r.Route("/assignments", func(r chi.Router) {
				r.With(RequireRole(shared.RoleInstructor, shared.RoleAdmin)).Post("/", assignmentHandler.CreateAssignment)
				r.Get("/course/{courseId}", assignmentHandler.ListByCourse)
				r.Get("/{id}", assignmentHandler.GetAssignment)
				r.With(RequireRole(shared.RoleStudent)).Post("/{id}/submit", assignmentHandler.Submit)
				r.With(RequireRole(shared.RoleInstructor, shared.RoleAdmin)).Post("/{id}/grade", gradeHandler.GradeByStudent)
			})

			// Submissions
			r.Route("/submissions", func(r chi.Router) {
				// Student
				r.With(RequireRole(shared.RoleStudent)).Post("/", submissionHandler.CreateSubmission)
				r.With(RequireRole(shared.RoleStudent)).Get("/my", submissionHandler.MySubmissions)

				// Instructor
				r.Group(func(r chi.Router) {
					r.Use(RequireRole(shared.RoleInstructor, shared.RoleAdmin))
					r.Get("/assignment/{assignmentId}", submissionHandler.ListByAssignment)
					r.Post("/{id}/grade", gradeHandler.GradeSubmission)
					r.Post("/{id}/return", gradeHandler.ReturnSubmission)
				})
			})

			// Quizzes
			r.Route("/quizzes", func(r chi.Router) {
				r.With(RequireRole(shared.RoleInstructor, shared.RoleAdmin)).Post("/", quizHandler.CreateQuiz)
				r.Get("/course/{courseId}", quizHandler.ListByCourse)
				r.Get("/{id}", quizHandler.GetQuiz)

				r.Group(func(r chi.Router) {
					r.Use(RequireRole(shared.RoleStudent))
					r.Post("/{id}/start", quizHandler.StartAttempt)
					r.Post("/{id}/submit", quizHandler.SubmitAttempt)
					r.Get("/{id}/attempts", quizHandler.MyAttempts)
				})
			})

			// Notifications
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notificationHandler.ListNotifications)
				r.With(RequireRole(shared.RoleInstructor, shared.RoleAdmin)).Post("/", notificationHandler.SendNotification)
				r.Patch("/read-all", notificationHandler.MarkAllRead)
				r.Patch("/{id}/read", notificationHandler.MarkRead)
				r.Delete("/{id}", notificationHandler.DeleteNotification)
			})
		})
	})

	return r
}

// AuthMiddleware creates a middleware that validates JWT tokens via the Auth Service.
func AuthMiddleware(authService *auth.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Extract Token
			tokenStr, err := util.ExtractToken(r)
			if err != nil {
				util.WriteJSONError(w, http.StatusUnauthorized, "Authorization token required")
				return
			}

			// 2. Validate signature, session and account
			user, err := authService.ValidateToken(r.Context(), tokenStr)
			if err != nil {
				util.HandleError(w, r, err)
				return
			}

			// 3. Inject User into Context
			next.ServeHTTP(w, r.WithContext(util.WithUser(r.Context(), user, tokenStr)))
		})
	}
}

// RequireRole rejects authenticated users whose role is not listed.
// Must run after AuthMiddleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := util.CurrentUser(r)
			if !ok {
				util.WriteJSONError(w, http.StatusUnauthorized, "Authorization token required")
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			util.WriteJSONError(w, http.StatusForbidden, "Access denied. Insufficient permissions.")
		})
	}
}
