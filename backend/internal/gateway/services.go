package gateway

import (
	"log"

	"lms_backend/backend/internal/assignment"
	"lms_backend/backend/internal/audit"
	"lms_backend/backend/internal/auth"
	"lms_backend/backend/internal/course"
	"lms_backend/backend/internal/events"
	"lms_backend/backend/internal/lecture"
	"lms_backend/backend/internal/mailer"
	"lms_backend/backend/internal/notification"
	"lms_backend/backend/internal/quiz"
	"lms_backend/backend/internal/realtime"
	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
	"lms_backend/backend/internal/telemetry"
)

// Services holds every domain service the router dispatches to.
// It is built once in main.go and injected into the handlers.
type Services struct {
	Auth          *auth.AuthService
	Courses       *course.CourseService
	Lectures      *lecture.LectureService
	Assignments   *assignment.AssignmentService
	Quizzes       *quiz.QuizService
	Notifications *notification.Service
	Audit         *audit.Service

	Hub        *realtime.Hub
	Dispatcher *events.Dispatcher
	Reporter   telemetry.Reporter

	CORS      shared.CORSConfig
	Lifecycle shared.LifecycleConfig
}

// Dependencies are the infrastructure handles the services are built on
type Dependencies struct {
	Store    storage.Store
	Config   *shared.Config
	Mailer   mailer.Mailer
	Reporter telemetry.Reporter
}

// NewServices wires the services together. The audit recorder and the
// notification emitter consume the dispatcher; every other service
// publishes into it.
func NewServices(deps Dependencies) *Services {
	cfg := deps.Config
	reporter := deps.Reporter
	if reporter == nil {
		reporter = telemetry.NewReporter("", cfg.Environment, "")
	}
	mail := deps.Mailer
	if mail == nil {
		mail = mailer.NewConsole(cfg.ServiceName)
	}

	// 1. Side-effect consumers
	hub := realtime.NewHub()
	auditService := audit.NewService(deps.Store, reporter)
	notificationService := notification.NewService(deps.Store, deps.Store, hub, mail)

	// 2. Dispatcher
	dispatcher := events.NewDispatcher(events.Options{
		BufferSize:     cfg.Lifecycle.EventBufferSize,
		Workers:        cfg.Lifecycle.EventWorkers,
		PublishTimeout: cfg.Lifecycle.PublishTimeout,
	}, auditService.HandleEvent, notificationService.HandleEvent)
	notificationService.SetPublisher(dispatcher)

	// 3. Business services
	services := &Services{
		Auth:          auth.NewAuthService(deps.Store, cfg.Security, dispatcher),
		Courses:       course.NewCourseService(deps.Store, dispatcher),
		Lectures:      lecture.NewLectureService(deps.Store, dispatcher),
		Assignments:   assignment.NewAssignmentService(deps.Store, dispatcher),
		Quizzes:       quiz.NewQuizService(deps.Store, dispatcher),
		Notifications: notificationService,
		Audit:         auditService,
		Hub:           hub,
		Dispatcher:    dispatcher,
		Reporter:      reporter,
		CORS:          cfg.CORS,
		Lifecycle:     cfg.Lifecycle,
	}

	log.Printf("INFO: Services initialized (event workers=%d, buffer=%d)", cfg.Lifecycle.EventWorkers, cfg.Lifecycle.EventBufferSize)
	return services
}

// Close drains pending side effects.
// Should be called after the HTTP server has stopped accepting requests.
func (s *Services) Close() {
	if s.Dispatcher != nil {
		s.Dispatcher.Close()
		if dropped := s.Dispatcher.Dropped(); dropped > 0 {
			log.Printf("WARN: %d events were dropped during this run", dropped)
		}
	}
}
