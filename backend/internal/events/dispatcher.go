// Package events carries the side effects of business operations (audit
// entries, notifications) to their consumers off the request path.
package events

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"lms_backend/backend/internal/shared"
)

// Event types
const (
	UserLoggedIn        = "user.logged_in"
	UserLoggedOut       = "user.logged_out"
	UserCreated         = "user.created"
	UserStatusChanged   = "user.status_changed"
	UserUpdated         = "user.updated"
	UserDeleted         = "user.deleted"
	CourseCreated       = "course.created"
	CourseUpdated       = "course.updated"
	CourseDeleted       = "course.deleted"
	CourseEnrolled      = "course.enrolled"
	LectureCreated      = "lecture.created"
	LectureUpdated      = "lecture.updated"
	LectureDeleted      = "lecture.deleted"
	AssignmentCreated   = "assignment.created"
	SubmissionCreated   = "submission.created"
	SubmissionGraded    = "submission.graded"
	SubmissionReturned  = "submission.returned"
	QuizCreated         = "quiz.created"
	QuizAttemptFinished = "quiz.attempt_finished"
	NotificationSent    = "notification.sent"
)

// Event is one business fact plus the side effects it implies
type Event struct {
	Type          string
	ActorID       string
	Audit         *shared.AuditLog
	Notifications []shared.Notification
	Request       shared.RequestContext
	OccurredAt    time.Time
}

// Publisher accepts events without blocking the caller for long.
// Publish reports whether the event was queued.
type Publisher interface {
	Publish(ctx context.Context, event Event) bool
}

// Handler consumes events on a worker goroutine
type Handler func(ctx context.Context, event Event)

// Options tunes a Dispatcher
type Options struct {
	BufferSize     int
	Workers        int
	PublishTimeout time.Duration
	HandlerTimeout time.Duration
}

// Dispatcher fans events out to handlers through a buffered channel
type Dispatcher struct {
	events   chan Event
	handlers []Handler
	opts     Options

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Int64
}

var _ Publisher = (*Dispatcher)(nil)

// NewDispatcher starts the worker goroutines
func NewDispatcher(opts Options, handlers ...Handler) *Dispatcher {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 50 * time.Millisecond
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 10 * time.Second
	}

	d := &Dispatcher{
		events:   make(chan Event, opts.BufferSize),
		handlers: handlers,
		opts:     opts,
	}

	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Publish queues the event, waiting at most PublishTimeout for buffer space.
// A dropped event is logged and counted; the business operation has already
// committed and is not affected.
func (d *Dispatcher) Publish(ctx context.Context, event Event) bool {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(event, "dispatcher closed")
		return false
	}

	select {
	case d.events <- event:
		return true
	default:
	}

	timer := time.NewTimer(d.opts.PublishTimeout)
	defer timer.Stop()

	select {
	case d.events <- event:
		return true
	case <-timer.C:
		d.drop(event, "buffer full")
		return false
	case <-ctx.Done():
		d.drop(event, ctx.Err().Error())
		return false
	}
}

func (d *Dispatcher) drop(event Event, reason string) {
	d.dropped.Add(1)
	log.Printf("WARN: events: dropped %s by %s: %s", event.Type, event.ActorID, reason)
}

// Dropped returns how many events were discarded
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close stops accepting events, drains the queue and waits for the workers
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()

	d.wg.Wait()
	log.Println("INFO: events: dispatcher drained")
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for event := range d.events {
		for _, handle := range d.handlers {
			d.run(handle, event)
		}
	}
}

func (d *Dispatcher) run(handle Handler, event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.HandlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: events: handler panicked on %s: %v", event.Type, r)
		}
	}()
	handle(ctx, event)
}
