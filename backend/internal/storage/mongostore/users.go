package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
)

// ============================================================================
// Users
// ============================================================================

func (s *Store) CreateUser(ctx context.Context, user *shared.User) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	user.Email = shared.NormalizeEmail(user.Email)
	_, err := s.usersCol.InsertOne(queryCtx, user)
	return mapErr(err)
}

func (s *Store) GetUser(ctx context.Context, id string) (*shared.User, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var user shared.User
	if err := s.usersCol.FindOne(queryCtx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, mapErr(err)
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*shared.User, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var user shared.User
	if err := s.usersCol.FindOne(queryCtx, bson.M{"email": shared.NormalizeEmail(email)}).Decode(&user); err != nil {
		return nil, mapErr(err)
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context, role string) ([]shared.User, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := bson.M{}
	if role != "" {
		filter["role"] = role
	}
	return findAll[shared.User](queryCtx, s.usersCol, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

func (s *Store) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.usersCol.UpdateOne(queryCtx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"password_hash": passwordHash, "updated_at": time.Now()}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) SetUserActive(ctx context.Context, id string, active bool) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.usersCol.UpdateOne(queryCtx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"is_active": active, "updated_at": time.Now()}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, user *shared.User) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.usersCol.UpdateOne(queryCtx,
		bson.M{"_id": user.ID},
		bson.M{"$set": bson.M{
			"name":       user.Name,
			"email":      shared.NormalizeEmail(user.Email),
			"role":       user.Role,
			"updated_at": user.UpdatedAt,
		}},
	)
	if err != nil {
		return mapErr(err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.usersCol.DeleteOne(queryCtx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ============================================================================
// Sessions
// ============================================================================

func (s *Store) CreateSession(ctx context.Context, session *shared.Session) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.sessionsCol.InsertOne(queryCtx, session)
	return mapErr(err)
}

func (s *Store) SessionExists(ctx context.Context, token string) (bool, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	count, err := s.sessionsCol.CountDocuments(queryCtx, bson.M{
		"token":      token,
		"expires_at": bson.M{"$gt": time.Now()},
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteSession uses DeleteMany so repeated logouts stay idempotent
func (s *Store) DeleteSession(ctx context.Context, token string) (int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.sessionsCol.DeleteMany(queryCtx, bson.M{"token": token})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func (s *Store) DeleteUserSessions(ctx context.Context, userID string) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.sessionsCol.DeleteMany(queryCtx, bson.M{"user_id": userID})
	return err
}
