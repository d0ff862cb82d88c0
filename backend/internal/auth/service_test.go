package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"lms_backend/backend/internal/events"
	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/testkit"
)

func newTestService(t *testing.T) (*AuthService, *testkit.Publisher, shared.User, shared.User) {
	t.Helper()
	store := testkit.OpenStore(t)
	student := testkit.SeedUser(t, store, "student1", shared.RoleStudent)
	admin := testkit.SeedUser(t, store, "admin1", shared.RoleAdmin)

	publisher := testkit.NewPublisher()
	svc := NewAuthService(store, shared.SecurityConfig{
		JWTSecret:          "test-secret",
		JWTExpirationHours: 1,
		BCryptCost:         bcrypt.MinCost,
	}, publisher)
	return svc, publisher, student, admin
}

func TestAuthService_Integration(t *testing.T) {
	ctx := context.Background()
	svc, publisher, student, _ := newTestService(t)
	req := shared.RequestContext{IPAddress: "127.0.0.1", UserAgent: "go-test"}

	// --- 1. Test Login ---
	t.Run("Login Success", func(t *testing.T) {
		result, err := svc.Login(ctx, "Student1@Example.com", testkit.DefaultPassword, req)
		require.NoError(t, err)
		assert.NotEmpty(t, result.Token)
		assert.Equal(t, student.ID, result.User.ID)
		assert.Contains(t, publisher.Types(), events.UserLoggedIn)
	})

	// --- 2. Test Login Failure ---
	t.Run("Login Invalid Password", func(t *testing.T) {
		_, err := svc.Login(ctx, student.Email, "wrongpassword", req)
		assert.True(t, shared.IsKind(err, shared.KindUnauthorized))

		_, err = svc.Login(ctx, "nobody@example.com", "whatever", req)
		assert.True(t, shared.IsKind(err, shared.KindUnauthorized))
	})

	// --- 3. Test Validate Token ---
	t.Run("Validate Token", func(t *testing.T) {
		result, err := svc.Login(ctx, student.Email, testkit.DefaultPassword, req)
		require.NoError(t, err)

		user, err := svc.ValidateToken(ctx, result.Token)
		require.NoError(t, err)
		assert.Equal(t, student.Email, user.Email)

		userID, err := svc.AuthenticateToken(ctx, result.Token)
		require.NoError(t, err)
		assert.Equal(t, student.ID, userID)

		_, err = svc.ValidateToken(ctx, result.Token+"x")
		assert.True(t, shared.IsKind(err, shared.KindUnauthorized))
	})

	t.Run("Tokens are unique per login", func(t *testing.T) {
		first, err := svc.Login(ctx, student.Email, testkit.DefaultPassword, req)
		require.NoError(t, err)
		second, err := svc.Login(ctx, student.Email, testkit.DefaultPassword, req)
		require.NoError(t, err)
		assert.NotEqual(t, first.Token, second.Token)
	})

	// --- 4. Test Change Password ---
	t.Run("Change Password", func(t *testing.T) {
		old, err := svc.Login(ctx, student.Email, testkit.DefaultPassword, req)
		require.NoError(t, err)

		err = svc.ChangePassword(ctx, student.ID, "not-it", "new_secret_456")
		assert.True(t, shared.IsKind(err, shared.KindValidation))

		err = svc.ChangePassword(ctx, student.ID, testkit.DefaultPassword, "abc")
		assert.True(t, shared.IsKind(err, shared.KindValidation))

		require.NoError(t, svc.ChangePassword(ctx, student.ID, testkit.DefaultPassword, "new_secret_456"))

		// Sessions issued before the change are revoked
		_, err = svc.ValidateToken(ctx, old.Token)
		assert.True(t, shared.IsKind(err, shared.KindUnauthorized))

		_, err = svc.Login(ctx, student.Email, "new_secret_456", req)
		assert.NoError(t, err)
	})

	// --- 5. Test Logout ---
	t.Run("Logout", func(t *testing.T) {
		result, err := svc.Login(ctx, student.Email, "new_secret_456", req)
		require.NoError(t, err)

		require.NoError(t, svc.Logout(ctx, result.Token, student.ID, req))
		_, err = svc.ValidateToken(ctx, result.Token)
		assert.True(t, shared.IsKind(err, shared.KindUnauthorized))

		// Second logout is a no-op
		assert.NoError(t, svc.Logout(ctx, result.Token, student.ID, req))
		assert.Contains(t, publisher.Types(), events.UserLoggedOut)
	})
}

func TestAuthService_UserManagement(t *testing.T) {
	ctx := context.Background()
	svc, publisher, student, admin := newTestService(t)

	t.Run("Only admins create users", func(t *testing.T) {
		_, _, err := svc.CreateUser(ctx, student, CreateUserInput{
			Email: "new@example.com", Name: "New", Role: shared.RoleStudent,
		}, shared.RequestContext{})
		assert.True(t, shared.IsKind(err, shared.KindForbidden))
	})

	t.Run("Generated password can log in", func(t *testing.T) {
		user, password, err := svc.CreateUser(ctx, admin, CreateUserInput{
			Email: "Teacher@Example.com", Name: "Teacher", Role: shared.RoleInstructor,
		}, shared.RequestContext{})
		require.NoError(t, err)
		require.NotEmpty(t, password)
		assert.Equal(t, "teacher@example.com", user.Email)
		assert.Contains(t, publisher.Types(), events.UserCreated)

		_, err = svc.Login(ctx, user.Email, password, shared.RequestContext{})
		assert.NoError(t, err)
	})

	t.Run("Duplicate email conflicts", func(t *testing.T) {
		_, _, err := svc.CreateUser(ctx, admin, CreateUserInput{
			Email: "teacher@example.com", Name: "Again", Role: shared.RoleInstructor, Password: "secret123",
		}, shared.RequestContext{})
		assert.True(t, shared.IsKind(err, shared.KindConflict))
	})

	t.Run("Invalid role", func(t *testing.T) {
		_, _, err := svc.CreateUser(ctx, admin, CreateUserInput{
			Email: "x@example.com", Name: "X", Role: "janitor",
		}, shared.RequestContext{})
		assert.True(t, shared.IsKind(err, shared.KindValidation))
	})

	t.Run("List users by role", func(t *testing.T) {
		instructors, err := svc.ListUsers(ctx, admin, shared.RoleInstructor)
		require.NoError(t, err)
		require.Len(t, instructors, 1)
		assert.Equal(t, "teacher@example.com", instructors[0].Email)

		all, err := svc.ListUsers(ctx, admin, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)

		_, err = svc.ListUsers(ctx, student, "")
		assert.True(t, shared.IsKind(err, shared.KindForbidden))
	})

	t.Run("Deactivate and reactivate", func(t *testing.T) {
		session, err := svc.Login(ctx, student.Email, testkit.DefaultPassword, shared.RequestContext{})
		require.NoError(t, err)

		updated, err := svc.SetUserStatus(ctx, admin, student.ID, false, shared.RequestContext{})
		require.NoError(t, err)
		assert.False(t, updated.IsActive)
		assert.Contains(t, publisher.Types(), events.UserStatusChanged)

		_, err = svc.ValidateToken(ctx, session.Token)
		assert.Error(t, err)
		_, err = svc.Login(ctx, student.Email, testkit.DefaultPassword, shared.RequestContext{})
		assert.True(t, shared.IsKind(err, shared.KindForbidden))

		_, err = svc.SetUserStatus(ctx, admin, student.ID, true, shared.RequestContext{})
		require.NoError(t, err)
		_, err = svc.Login(ctx, student.Email, testkit.DefaultPassword, shared.RequestContext{})
		assert.NoError(t, err)
	})

	t.Run("Status guards", func(t *testing.T) {
		_, err := svc.SetUserStatus(ctx, student, admin.ID, false, shared.RequestContext{})
		assert.True(t, shared.IsKind(err, shared.KindForbidden))

		_, err = svc.SetUserStatus(ctx, admin, admin.ID, false, shared.RequestContext{})
		assert.True(t, shared.IsKind(err, shared.KindConflict))

		_, err = svc.SetUserStatus(ctx, admin, "ghost", true, shared.RequestContext{})
		assert.True(t, shared.IsKind(err, shared.KindNotFound))
	})
}

func TestAuthService_Profiles(t *testing.T) {
	ctx := context.Background()
	svc, publisher, student, admin := newTestService(t)
	req := shared.RequestContext{}

	other, _, err := svc.CreateUser(ctx, admin, CreateUserInput{
		Email: "other@example.com", Name: "Other", Role: shared.RoleStudent, Password: "secret123",
	}, req)
	require.NoError(t, err)

	t.Run("Read own profile or as admin", func(t *testing.T) {
		self, err := svc.GetUser(ctx, student, student.ID)
		require.NoError(t, err)
		assert.Equal(t, student.Email, self.Email)

		_, err = svc.GetUser(ctx, student, other.ID)
		assert.True(t, shared.IsKind(err, shared.KindForbidden))

		_, err = svc.GetUser(ctx, admin, other.ID)
		assert.NoError(t, err)

		_, err = svc.GetUser(ctx, admin, "ghost")
		assert.True(t, shared.IsKind(err, shared.KindNotFound))
	})

	t.Run("Update own name and email", func(t *testing.T) {
		name := "  Renamed Student "
		email := "Renamed@Example.com"
		updated, err := svc.UpdateUser(ctx, student, student.ID, UpdateUserInput{Name: &name, Email: &email}, req)
		require.NoError(t, err)
		assert.Equal(t, "Renamed Student", updated.Name)
		assert.Equal(t, "renamed@example.com", updated.Email)
		assert.Contains(t, publisher.Types(), events.UserUpdated)

		_, err = svc.Login(ctx, "renamed@example.com", testkit.DefaultPassword, req)
		assert.NoError(t, err)
		_, err = svc.Login(ctx, student.Email, testkit.DefaultPassword, req)
		assert.True(t, shared.IsKind(err, shared.KindUnauthorized))
	})

	t.Run("Update guards", func(t *testing.T) {
		name := "Intruder"
		_, err := svc.UpdateUser(ctx, student, other.ID, UpdateUserInput{Name: &name}, req)
		assert.True(t, shared.IsKind(err, shared.KindForbidden))

		role := shared.RoleAdmin
		_, err = svc.UpdateUser(ctx, student, student.ID, UpdateUserInput{Role: &role}, req)
		assert.True(t, shared.IsKind(err, shared.KindForbidden))

		taken := other.Email
		_, err = svc.UpdateUser(ctx, student, student.ID, UpdateUserInput{Email: &taken}, req)
		assert.True(t, shared.IsKind(err, shared.KindConflict))

		bad := "not-an-email"
		_, err = svc.UpdateUser(ctx, student, student.ID, UpdateUserInput{Email: &bad}, req)
		assert.True(t, shared.IsKind(err, shared.KindValidation))
	})

	t.Run("Admin changes role", func(t *testing.T) {
		role := shared.RoleInstructor
		updated, err := svc.UpdateUser(ctx, admin, other.ID, UpdateUserInput{Role: &role}, req)
		require.NoError(t, err)
		assert.Equal(t, shared.RoleInstructor, updated.Role)
		assert.Equal(t, "Other", updated.Name)
	})

	t.Run("Delete user", func(t *testing.T) {
		session, err := svc.Login(ctx, other.Email, "secret123", req)
		require.NoError(t, err)

		err = svc.DeleteUser(ctx, student, other.ID, req)
		assert.True(t, shared.IsKind(err, shared.KindForbidden))

		err = svc.DeleteUser(ctx, admin, admin.ID, req)
		assert.True(t, shared.IsKind(err, shared.KindConflict))

		require.NoError(t, svc.DeleteUser(ctx, admin, other.ID, req))
		assert.Contains(t, publisher.Types(), events.UserDeleted)

		_, err = svc.ValidateToken(ctx, session.Token)
		assert.Error(t, err)
		_, err = svc.GetUser(ctx, admin, other.ID)
		assert.True(t, shared.IsKind(err, shared.KindNotFound))

		err = svc.DeleteUser(ctx, admin, other.ID, req)
		assert.True(t, shared.IsKind(err, shared.KindNotFound))
	})
}
