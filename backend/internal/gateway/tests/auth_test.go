package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/testkit"
)

func TestGateway_Auth(t *testing.T) {
	env := setupGatewayTestEnv(t)
	student := testkit.SeedUser(t, env.Store, "auth_user", shared.RoleStudent)

	var authToken string
	t.Run("Login Success", func(t *testing.T) {
		rr, envelope := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"email":    student.Email,
			"password": testkit.DefaultPassword,
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.True(t, envelope.Success)
		assert.Equal(t, "Login successful", envelope.Message)

		var data struct {
			Token string      `json:"token"`
			User  shared.User `json:"user"`
		}
		decode(t, envelope, &data)
		require.NotEmpty(t, data.Token)
		assert.Equal(t, student.ID, data.User.ID)
		authToken = data.Token
	})

	t.Run("Login Wrong Password", func(t *testing.T) {
		rr, envelope := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"identifier": student.Email,
			"password":   "wrong-password",
		})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.False(t, envelope.Success)
		assert.Equal(t, "Invalid credentials", envelope.Message)
	})

	t.Run("Login Missing Fields", func(t *testing.T) {
		rr, envelope := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"identifier": student.Email})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.False(t, envelope.Success)
	})

	t.Run("Me Requires Token", func(t *testing.T) {
		rr, envelope := env.do(t, http.MethodGet, "/api/auth/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.False(t, envelope.Success)
	})

	t.Run("Me", func(t *testing.T) {
		rr, envelope := env.do(t, http.MethodGet, "/api/auth/me", authToken, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var data struct {
			User shared.User `json:"user"`
		}
		decode(t, envelope, &data)
		assert.Equal(t, student.ID, data.User.ID)
		assert.Empty(t, data.User.PasswordHash)
	})

	t.Run("Logout Invalidates Token", func(t *testing.T) {
		rr, envelope := env.do(t, http.MethodPost, "/api/auth/logout", authToken, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.True(t, envelope.Success)

		rr, _ = env.do(t, http.MethodGet, "/api/auth/me", authToken, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("Logout Without Token", func(t *testing.T) {
		rr, envelope := env.do(t, http.MethodPost, "/api/auth/logout", "", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.True(t, envelope.Success)
	})

	t.Run("Change Password", func(t *testing.T) {
		token := env.login(t, student.Email)

		rr, _ := env.do(t, http.MethodPost, "/api/auth/change-password", token, map[string]string{
			"oldPassword": "not-the-password",
			"newPassword": "newSecretPassword123",
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		rr, envelope := env.do(t, http.MethodPost, "/api/auth/change-password", token, map[string]string{
			"oldPassword": testkit.DefaultPassword,
			"newPassword": "newSecretPassword123",
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.True(t, envelope.Success)

		// Every session ends with a password change
		rr, _ = env.do(t, http.MethodGet, "/api/auth/me", token, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		rr, _ = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"identifier": student.Email,
			"password":   "newSecretPassword123",
		})
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}
