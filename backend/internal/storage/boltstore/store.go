// Package boltstore implements the storage contracts on an embedded bbolt
// file. Every read-check-write runs inside one db.Update transaction, and
// bbolt serializes writers, so the atomic rules hold without extra locking.
package boltstore

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
	"go.mongodb.org/mongo-driver/bson"

	"lms_backend/backend/internal/storage"
)

var buckets = map[string][]byte{
	"users":          []byte("Users"),
	"usersByEmail":   []byte("UsersByEmail"),
	"sessions":       []byte("Sessions"),
	"courses":        []byte("Courses"),
	"lectures":       []byte("Lectures"),
	"assignments":    []byte("Assignments"),
	"submissions":    []byte("Submissions"),
	"submissionKeys": []byte("SubmissionKeys"),
	"quizzes":        []byte("Quizzes"),
	"notifications":  []byte("Notifications"),
	"auditLogs":      []byte("AuditLogs"),
}

// Store is a storage.Store backed by a bbolt file
type Store struct {
	db *bbolt.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens (or creates) the database file and its buckets
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("INFO: Bolt store ready at %s", path)
	return &Store{db: db}, nil
}

// Close closes the database file
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

// ============================================================================
// Generic helpers
// ============================================================================

// Documents are encoded with BSON so the same struct tags serve both stores.

func put[T any](tx *bbolt.Tx, bucket []byte, key string, value *T) error {
	data, err := bson.Marshal(value)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

func get[T any](tx *bbolt.Tx, bucket []byte, key string) (*T, error) {
	v := tx.Bucket(bucket).Get([]byte(key))
	if v == nil {
		return nil, storage.ErrNotFound
	}
	var out T
	if err := bson.Unmarshal(v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// scan decodes every value whose key has prefix and keeps those accepted by keep
func scan[T any](tx *bbolt.Tx, bucket []byte, prefix string, keep func(*T) bool) ([]T, error) {
	results := []T{}
	c := tx.Bucket(bucket).Cursor()
	p := []byte(prefix)

	for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
		var out T
		if err := bson.Unmarshal(v, &out); err != nil {
			return nil, err
		}
		if keep == nil || keep(&out) {
			results = append(results, out)
		}
	}
	return results, nil
}

// paginate slices items for the requested page
func paginate[T any](items []T, skip, limit int) []T {
	if skip >= len(items) {
		return []T{}
	}
	items = items[skip:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
