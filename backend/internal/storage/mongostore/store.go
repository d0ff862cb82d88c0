// Package mongostore implements the storage contracts on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
)

const queryTimeout = 5 * time.Second

// Store is a storage.Store backed by a MongoDB database
type Store struct {
	client *mongo.Client

	usersCol         *mongo.Collection
	sessionsCol      *mongo.Collection
	coursesCol       *mongo.Collection
	lecturesCol      *mongo.Collection
	assignmentsCol   *mongo.Collection
	submissionsCol   *mongo.Collection
	quizzesCol       *mongo.Collection
	notificationsCol *mongo.Collection
	auditCol         *mongo.Collection
}

var _ storage.Store = (*Store)(nil)

// New wraps an already connected database
func New(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client:           client,
		usersCol:         db.Collection("users"),
		sessionsCol:      db.Collection("sessions"),
		coursesCol:       db.Collection("courses"),
		lecturesCol:      db.Collection("lectures"),
		assignmentsCol:   db.Collection("assignments"),
		submissionsCol:   db.Collection("submissions"),
		quizzesCol:       db.Collection("quizzes"),
		notificationsCol: db.Collection("notifications"),
		auditCol:         db.Collection("audit_logs"),
	}
}

// Open connects to MongoDB and ensures indexes exist
func Open(ctx context.Context, config *shared.MongoConfig) (*Store, error) {
	client, db, err := shared.ConnectMongoDB(config)
	if err != nil {
		return nil, err
	}

	store := New(client, db)
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = shared.DisconnectMongoDB(client)
		return nil, err
	}
	return store, nil
}

// EnsureIndexes creates the indexes the atomic rules rely on
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	specs := []struct {
		col   *mongo.Collection
		model mongo.IndexModel
	}{
		{s.usersCol, mongo.IndexModel{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{s.sessionsCol, mongo.IndexModel{Keys: bson.D{{Key: "token", Value: 1}}}},
		{s.sessionsCol, mongo.IndexModel{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		}},
		{s.submissionsCol, mongo.IndexModel{
			Keys:    bson.D{{Key: "assignment_id", Value: 1}, {Key: "student_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{s.submissionsCol, mongo.IndexModel{Keys: bson.D{{Key: "student_id", Value: 1}}}},
		{s.lecturesCol, mongo.IndexModel{Keys: bson.D{{Key: "course_id", Value: 1}, {Key: "order", Value: 1}}}},
		{s.assignmentsCol, mongo.IndexModel{Keys: bson.D{{Key: "course_id", Value: 1}}}},
		{s.quizzesCol, mongo.IndexModel{Keys: bson.D{{Key: "course_id", Value: 1}}}},
		{s.notificationsCol, mongo.IndexModel{
			Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}},
		}},
		{s.auditCol, mongo.IndexModel{Keys: bson.D{{Key: "created_at", Value: -1}}}},
		{s.auditCol, mongo.IndexModel{Keys: bson.D{{Key: "user_id", Value: 1}}}},
	}

	for _, spec := range specs {
		if _, err := spec.col.Indexes().CreateOne(indexCtx, spec.model); err != nil {
			return fmt.Errorf("create index on %s: %w", spec.col.Name(), err)
		}
	}

	log.Println("INFO: MongoDB indexes ensured")
	return nil
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	return shared.DisconnectMongoDB(s.client)
}

// mapErr converts driver errors into storage sentinels
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return storage.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return storage.ErrDuplicate
	default:
		return err
	}
}

// exists reports whether a document with the given _id is present
func exists(ctx context.Context, col *mongo.Collection, id string) (bool, error) {
	count, err := col.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// findAll decodes every document matching filter into T
func findAll[T any](ctx context.Context, col *mongo.Collection, filter bson.M, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	results := []T{}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}
