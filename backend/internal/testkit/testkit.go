// Package testkit holds fixtures shared by service and gateway tests.
package testkit

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"lms_backend/backend/internal/events"
	"lms_backend/backend/internal/mailer"
	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage/boltstore"
)

// DefaultPassword is the password of every seeded user
const DefaultPassword = "password123"

// OpenStore opens a bolt store in a per-test temp directory
func OpenStore(t testing.TB) *boltstore.Store {
	t.Helper()
	store, err := boltstore.Open(filepath.Join(t.TempDir(), "lms.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

// SeedUser inserts an active user with DefaultPassword
func SeedUser(t testing.TB, store *boltstore.Store, id, role string) shared.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := shared.User{
		ID:           id,
		Email:        id + "@example.com",
		PasswordHash: string(hash),
		Role:         role,
		Name:         id,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	if err := store.CreateUser(context.Background(), &user); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return user
}

// Publisher runs handlers inline and remembers every event
type Publisher struct {
	mu       sync.Mutex
	events   []events.Event
	handlers []events.Handler
}

// NewPublisher creates a synchronous publisher
func NewPublisher(handlers ...events.Handler) *Publisher {
	return &Publisher{handlers: handlers}
}

func (p *Publisher) Publish(ctx context.Context, event events.Event) bool {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()

	for _, handle := range p.handlers {
		handle(ctx, event)
	}
	return true
}

// Events returns the published events in order
func (p *Publisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

// Types returns the published event types in order
func (p *Publisher) Types() []string {
	var types []string
	for _, e := range p.Events() {
		types = append(types, e.Type)
	}
	return types
}

// Mailer records messages instead of sending them
type Mailer struct {
	mu   sync.Mutex
	sent []mailer.Message
}

// NewMailer creates a recording mailer
func NewMailer() *Mailer {
	return &Mailer{}
}

func (m *Mailer) Send(ctx context.Context, msg mailer.Message) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

// Messages returns a copy of what was sent so far
func (m *Mailer) Messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.sent...)
}
