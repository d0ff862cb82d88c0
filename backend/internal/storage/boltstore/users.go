package boltstore

import (
	"context"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
)

// ============================================================================
// Users
// ============================================================================

func (s *Store) CreateUser(ctx context.Context, user *shared.User) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		email := shared.NormalizeEmail(user.Email)
		index := tx.Bucket(buckets["usersByEmail"])
		if index.Get([]byte(email)) != nil {
			return storage.ErrDuplicate
		}
		if tx.Bucket(buckets["users"]).Get([]byte(user.ID)) != nil {
			return storage.ErrDuplicate
		}
		if err := index.Put([]byte(email), []byte(user.ID)); err != nil {
			return err
		}
		return put(tx, buckets["users"], user.ID, user)
	})
}

func (s *Store) GetUser(ctx context.Context, id string) (*shared.User, error) {
	var user *shared.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		user, err = get[shared.User](tx, buckets["users"], id)
		return err
	})
	return user, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*shared.User, error) {
	var user *shared.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(buckets["usersByEmail"]).Get([]byte(shared.NormalizeEmail(email)))
		if id == nil {
			return storage.ErrNotFound
		}
		var err error
		user, err = get[shared.User](tx, buckets["users"], string(id))
		return err
	})
	return user, err
}

func (s *Store) ListUsers(ctx context.Context, role string) ([]shared.User, error) {
	var users []shared.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		users, err = scan(tx, buckets["users"], "", func(u *shared.User) bool {
			return role == "" || u.Role == role
		})
		return err
	})
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, err
}

func (s *Store) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		user, err := get[shared.User](tx, buckets["users"], id)
		if err != nil {
			return err
		}
		user.PasswordHash = passwordHash
		user.UpdatedAt = time.Now()
		return put(tx, buckets["users"], id, user)
	})
}

func (s *Store) SetUserActive(ctx context.Context, id string, active bool) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		user, err := get[shared.User](tx, buckets["users"], id)
		if err != nil {
			return err
		}
		user.IsActive = active
		user.UpdatedAt = time.Now()
		return put(tx, buckets["users"], id, user)
	})
}

// UpdateUser keeps the email index in step with the stored profile
func (s *Store) UpdateUser(ctx context.Context, user *shared.User) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		current, err := get[shared.User](tx, buckets["users"], user.ID)
		if err != nil {
			return err
		}

		index := tx.Bucket(buckets["usersByEmail"])
		oldEmail := shared.NormalizeEmail(current.Email)
		newEmail := shared.NormalizeEmail(user.Email)
		if newEmail != oldEmail {
			if index.Get([]byte(newEmail)) != nil {
				return storage.ErrDuplicate
			}
			if err := index.Delete([]byte(oldEmail)); err != nil {
				return err
			}
			if err := index.Put([]byte(newEmail), []byte(user.ID)); err != nil {
				return err
			}
		}

		current.Name = user.Name
		current.Email = newEmail
		current.Role = user.Role
		current.UpdatedAt = user.UpdatedAt
		return put(tx, buckets["users"], user.ID, current)
	})
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		user, err := get[shared.User](tx, buckets["users"], id)
		if err != nil {
			return err
		}
		if err := tx.Bucket(buckets["usersByEmail"]).Delete([]byte(shared.NormalizeEmail(user.Email))); err != nil {
			return err
		}
		return tx.Bucket(buckets["users"]).Delete([]byte(id))
	})
}

// ============================================================================
// Sessions (keyed by token)
// ============================================================================

func (s *Store) CreateSession(ctx context.Context, session *shared.Session) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, buckets["sessions"], session.Token, session)
	})
}

func (s *Store) SessionExists(ctx context.Context, token string) (bool, error) {
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		session, err := get[shared.Session](tx, buckets["sessions"], token)
		if err == storage.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = !session.IsExpired()
		return nil
	})
	return found, err
}

func (s *Store) DeleteSession(ctx context.Context, token string) (int64, error) {
	var deleted int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(buckets["sessions"])
		if b.Get([]byte(token)) == nil {
			return nil
		}
		deleted = 1
		return b.Delete([]byte(token))
	})
	return deleted, err
}

func (s *Store) DeleteUserSessions(ctx context.Context, userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		sessions, err := scan(tx, buckets["sessions"], "", func(sess *shared.Session) bool {
			return sess.UserID == userID
		})
		if err != nil {
			return err
		}
		b := tx.Bucket(buckets["sessions"])
		for _, sess := range sessions {
			if err := b.Delete([]byte(sess.Token)); err != nil {
				return err
			}
		}
		return nil
	})
}
