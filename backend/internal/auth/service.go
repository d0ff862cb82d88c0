package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"lms_backend/backend/internal/events"
	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
	"lms_backend/backend/internal/telemetry"
)

const (
	tokenIssuer         = "lms-backend"
	developmentSecret   = "development-only-secret"
	minPasswordLength   = 6
	generatedPasswordSz = 12
	queryTimeout        = 5 * time.Second
)

// Store is the persistence the auth service needs
type Store interface {
	storage.Users
	storage.Sessions
}

// AuthService issues and validates session tokens and manages accounts
type AuthService struct {
	store     Store
	security  shared.SecurityConfig
	publisher events.Publisher
	now       func() time.Time
}

// CustomClaims for JWT
type CustomClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// LoginResult is returned on successful login
type LoginResult struct {
	Token string      `json:"token"`
	User  shared.User `json:"user"`
}

// NewAuthService creates a new AuthService instance
func NewAuthService(store Store, security shared.SecurityConfig, publisher events.Publisher) *AuthService {
	if security.JWTSecret == "" {
		log.Println("Warning: JWT_SECRET not set, using development secret")
		security.JWTSecret = developmentSecret
	}
	if security.JWTExpirationHours <= 0 {
		security.JWTExpirationHours = 24
	}
	if security.BCryptCost == 0 {
		security.BCryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		store:     store,
		security:  security,
		publisher: publisher,
		now:       time.Now,
	}
}

// Login authenticates a user and returns a JWT
func (s *AuthService) Login(ctx context.Context, email, password string, req shared.RequestContext) (*LoginResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "auth.Login")
	defer span.End()

	if email == "" || password == "" {
		return nil, shared.NewError(shared.KindValidation, "email and password are required")
	}

	// 1. Find User
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, shared.NewError(shared.KindUnauthorized, "Invalid credentials")
		}
		return nil, shared.Internal("database error", err)
	}

	// 2. Check Password (BCrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.NewError(shared.KindUnauthorized, "Invalid credentials")
	}

	if !user.IsActive {
		return nil, shared.NewError(shared.KindForbidden, "Account is inactive")
	}

	// 3. Generate JWT
	tokenString, expiresAt, err := s.generateToken(user.ID, user.Role)
	if err != nil {
		return nil, shared.Internal("failed to generate token", err)
	}

	// 4. Create Session (allows for server-side logout/revocation)
	session := shared.Session{
		ID:        shared.GenerateID("sess"),
		UserID:    user.ID,
		Token:     tokenString,
		ExpiresAt: expiresAt,
		CreatedAt: s.now(),
		IPAddress: req.IPAddress,
	}
	if err := s.store.CreateSession(ctx, &session); err != nil {
		return nil, shared.Internal("failed to create session", err)
	}

	s.publish(ctx, events.Event{
		Type:    events.UserLoggedIn,
		ActorID: user.ID,
		Request: req,
		Audit:   &shared.AuditLog{Action: shared.ActionLogin, Resource: shared.ResourceUser, ResourceID: user.ID},
	})

	return &LoginResult{Token: tokenString, User: *user}, nil
}

// Logout invalidates the session. Logging out twice is not an error.
func (s *AuthService) Logout(ctx context.Context, token, userID string, req shared.RequestContext) error {
	if token == "" {
		return shared.NewError(shared.KindValidation, "token is required")
	}

	deleted, err := s.store.DeleteSession(ctx, token)
	if err != nil {
		return shared.Internal("failed to logout", err)
	}

	if deleted > 0 {
		s.publish(ctx, events.Event{
			Type:    events.UserLoggedOut,
			ActorID: userID,
			Request: req,
			Audit:   &shared.AuditLog{Action: shared.ActionLogout, Resource: shared.ResourceUser, ResourceID: userID},
		})
	}
	return nil
}

// ValidateToken checks signature, session presence and account state
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*shared.User, error) {
	if token == "" {
		return nil, shared.NewError(shared.KindUnauthorized, "No token provided")
	}

	// 1. Parse and Verify Signature locally
	parsed, claims, err := s.parseToken(token)
	if err != nil || !parsed.Valid {
		return nil, shared.NewError(shared.KindUnauthorized, "Invalid token")
	}

	// 2. Check for Active Session (Revocation Check)
	active, err := s.store.SessionExists(ctx, token)
	if err != nil {
		return nil, shared.Internal("failed to check session", err)
	}
	if !active {
		return nil, shared.NewError(shared.KindUnauthorized, "Session expired or revoked")
	}

	// 3. Fetch User Details
	user, err := s.store.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, shared.NewError(shared.KindUnauthorized, "User not found")
		}
		return nil, shared.Internal("failed to fetch user", err)
	}

	if !user.IsActive {
		return nil, shared.NewError(shared.KindUnauthorized, "Account inactive")
	}

	return user, nil
}

// AuthenticateToken resolves a token to its user ID for the websocket endpoint
func (s *AuthService) AuthenticateToken(ctx context.Context, token string) (string, error) {
	user, err := s.ValidateToken(ctx, token)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// ChangePassword updates the user's password and revokes every session
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return shared.NewError(shared.KindValidation, "all fields required")
	}
	if len(newPassword) < minPasswordLength {
		return shared.ValidationFailed("Validation failed", shared.FieldError{
			Field:   "newPassword",
			Message: fmt.Sprintf("newPassword must be at least %d characters in length", minPasswordLength),
		})
	}

	// 1. Fetch User
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return shared.NewError(shared.KindNotFound, "User not found")
		}
		return shared.Internal("failed to fetch user", err)
	}

	// 2. Verify Old Password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return shared.NewError(shared.KindValidation, "Incorrect old password")
	}

	// 3. Hash New Password
	newHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.security.BCryptCost)
	if err != nil {
		return shared.Internal("failed to process password", err)
	}

	// 4. Update
	if err := s.store.UpdatePassword(ctx, userID, string(newHash)); err != nil {
		return shared.Internal("failed to update password", err)
	}

	// 5. Invalidate existing sessions (Force logout)
	if err := s.store.DeleteUserSessions(ctx, userID); err != nil {
		log.Printf("Warning: failed to revoke sessions for %s: %v", userID, err)
	}

	return nil
}

// ============================================================================
// User Management (admin)
// ============================================================================

// CreateUserInput is an admin request to provision an account
type CreateUserInput struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=100"`
	Role     string `json:"role" validate:"required,oneof=student instructor admin"`
	Password string `json:"password" validate:"omitempty,min=6"`
}

// CreateUser provisions an account. When no password is given one is
// generated and returned.
func (s *AuthService) CreateUser(ctx context.Context, actor shared.User, input CreateUserInput, req shared.RequestContext) (*shared.User, string, error) {
	if actor.Role != shared.RoleAdmin {
		return nil, "", shared.NewError(shared.KindForbidden, "Access denied. Insufficient permissions.")
	}
	if err := shared.Validate(input); err != nil {
		return nil, "", err
	}

	password := input.Password
	generated := ""
	if password == "" {
		generated = strings.ReplaceAll(uuid.NewString(), "-", "")[:generatedPasswordSz]
		password = generated
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.security.BCryptCost)
	if err != nil {
		return nil, "", shared.Internal("failed to process password", err)
	}

	now := s.now()
	user := shared.User{
		ID:           shared.GenerateID("user"),
		Email:        shared.NormalizeEmail(input.Email),
		PasswordHash: string(hash),
		Role:         input.Role,
		Name:         strings.TrimSpace(input.Name),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, "", shared.NewError(shared.KindConflict, "User already exists with this email")
		}
		return nil, "", shared.Internal("failed to create user", err)
	}

	s.publish(ctx, events.Event{
		Type:    events.UserCreated,
		ActorID: actor.ID,
		Request: req,
		Audit: &shared.AuditLog{
			Action:     shared.ActionCreate,
			Resource:   shared.ResourceUser,
			ResourceID: user.ID,
			Details:    map[string]interface{}{"email": user.Email, "role": user.Role},
		},
	})

	return &user, generated, nil
}

// ListUsers returns accounts, optionally filtered by role
func (s *AuthService) ListUsers(ctx context.Context, actor shared.User, role string) ([]shared.User, error) {
	if actor.Role != shared.RoleAdmin {
		return nil, shared.NewError(shared.KindForbidden, "Access denied. Insufficient permissions.")
	}
	if role != "" && !shared.IsValidRole(role) {
		return nil, shared.ValidationFailed("Validation failed", shared.FieldError{Field: "role", Message: "invalid role"})
	}

	users, err := s.store.ListUsers(ctx, role)
	if err != nil {
		return nil, shared.Internal("failed to list users", err)
	}
	return users, nil
}

// SetUserStatus activates or deactivates an account. Deactivation ends
// every session of the user.
func (s *AuthService) SetUserStatus(ctx context.Context, actor shared.User, userID string, active bool, req shared.RequestContext) (*shared.User, error) {
	if actor.Role != shared.RoleAdmin {
		return nil, shared.NewError(shared.KindForbidden, "Access denied. Insufficient permissions.")
	}
	if actor.ID == userID && !active {
		return nil, shared.NewError(shared.KindConflict, "Cannot deactivate your own account")
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if err := s.store.SetUserActive(queryCtx, userID, active); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, shared.NewError(shared.KindNotFound, "User not found")
		}
		return nil, shared.Internal("failed to update user status", err)
	}

	if !active {
		if err := s.store.DeleteUserSessions(queryCtx, userID); err != nil {
			log.Printf("Warning: failed to revoke sessions for %s: %v", userID, err)
		}
	}

	user, err := s.store.GetUser(queryCtx, userID)
	if err != nil {
		return nil, shared.Internal("failed to fetch user", err)
	}

	s.publish(ctx, events.Event{
		Type:    events.UserStatusChanged,
		ActorID: actor.ID,
		Request: req,
		Audit: &shared.AuditLog{
			Action:     shared.ActionUpdate,
			Resource:   shared.ResourceUser,
			ResourceID: userID,
			Details:    map[string]interface{}{"isActive": active},
		},
	})
	return user, nil
}

// GetUser returns a profile. Users may read their own; admins may read any.
func (s *AuthService) GetUser(ctx context.Context, actor shared.User, userID string) (*shared.User, error) {
	if actor.ID != userID && actor.Role != shared.RoleAdmin {
		return nil, shared.NewError(shared.KindForbidden, "Access denied. Insufficient permissions.")
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	user, err := s.store.GetUser(queryCtx, userID)
	if err != nil {
		return nil, userNotFoundOr(err, "failed to fetch user")
	}
	return user, nil
}

// UpdateUserInput holds the profile fields to change; nil fields are left untouched
type UpdateUserInput struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=100"`
	Email *string `json:"email" validate:"omitempty,email"`
	Role  *string `json:"role" validate:"omitempty,oneof=student instructor admin"`
}

// UpdateUser edits a profile. Users may edit their own name and email;
// only admins may edit other accounts or change a role.
func (s *AuthService) UpdateUser(ctx context.Context, actor shared.User, userID string, input UpdateUserInput, req shared.RequestContext) (*shared.User, error) {
	isAdmin := actor.Role == shared.RoleAdmin
	if actor.ID != userID && !isAdmin {
		return nil, shared.NewError(shared.KindForbidden, "Access denied. Insufficient permissions.")
	}
	if input.Role != nil && !isAdmin {
		return nil, shared.NewError(shared.KindForbidden, "Only admins can change roles")
	}
	if err := shared.Validate(input); err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// 1. Load
	user, err := s.store.GetUser(queryCtx, userID)
	if err != nil {
		return nil, userNotFoundOr(err, "failed to fetch user")
	}

	// 2. Apply changes
	changed := map[string]interface{}{}
	if input.Name != nil {
		user.Name = strings.TrimSpace(*input.Name)
		changed["name"] = user.Name
	}
	if input.Email != nil {
		user.Email = shared.NormalizeEmail(*input.Email)
		changed["email"] = user.Email
	}
	if input.Role != nil {
		user.Role = *input.Role
		changed["role"] = user.Role
	}
	user.UpdatedAt = s.now()

	// 3. Persist
	if err := s.store.UpdateUser(queryCtx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, shared.NewError(shared.KindConflict, "User already exists with this email")
		}
		return nil, userNotFoundOr(err, "failed to update user")
	}

	s.publish(ctx, events.Event{
		Type:    events.UserUpdated,
		ActorID: actor.ID,
		Request: req,
		Audit: &shared.AuditLog{
			Action:     shared.ActionUpdate,
			Resource:   shared.ResourceUser,
			ResourceID: user.ID,
			Details:    changed,
		},
	})
	return user, nil
}

// DeleteUser removes an account and revokes its sessions (admin only)
func (s *AuthService) DeleteUser(ctx context.Context, actor shared.User, userID string, req shared.RequestContext) error {
	if actor.Role != shared.RoleAdmin {
		return shared.NewError(shared.KindForbidden, "Access denied. Insufficient permissions.")
	}
	if actor.ID == userID {
		return shared.NewError(shared.KindConflict, "Cannot delete your own account")
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	user, err := s.store.GetUser(queryCtx, userID)
	if err != nil {
		return userNotFoundOr(err, "failed to fetch user")
	}
	if err := s.store.DeleteUser(queryCtx, userID); err != nil {
		return userNotFoundOr(err, "failed to delete user")
	}
	if err := s.store.DeleteUserSessions(queryCtx, userID); err != nil {
		log.Printf("Warning: failed to revoke sessions for %s: %v", userID, err)
	}

	s.publish(ctx, events.Event{
		Type:    events.UserDeleted,
		ActorID: actor.ID,
		Request: req,
		Audit: &shared.AuditLog{
			Action:     shared.ActionDelete,
			Resource:   shared.ResourceUser,
			ResourceID: userID,
			Details:    map[string]interface{}{"email": user.Email},
		},
	})
	return nil
}

// ============================================================================
// Internal Helpers
// ============================================================================

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if s.publisher != nil {
		s.publisher.Publish(ctx, event)
	}
}

// generateToken creates a signed JWT
func (s *AuthService) generateToken(userID, role string) (string, time.Time, error) {
	now := s.now()
	expirationTime := now.Add(time.Duration(s.security.JWTExpirationHours) * time.Hour)

	claims := CustomClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			// Unique jti keeps tokens distinct even when issued in the same second
			ID:        shared.GenerateID("jti"),
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.security.JWTSecret))

	return tokenString, expirationTime, err
}

// parseToken validates the JWT signature and extracts claims
func (s *AuthService) parseToken(tokenString string) (*jwt.Token, *CustomClaims, error) {
	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.security.JWTSecret), nil
	})

	return token, claims, err
}

func userNotFoundOr(err error, message string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return shared.NewError(shared.KindNotFound, "User not found")
	}
	return shared.Internal(message, err)
}
