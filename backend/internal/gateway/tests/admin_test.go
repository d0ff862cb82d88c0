package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms_backend/backend/internal/audit"
	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/testkit"
)

func TestGateway_AdminUsers(t *testing.T) {
	env := setupGatewayTestEnv(t)
	_, adminToken := env.seedAndLogin(t, "admin", shared.RoleAdmin)
	_, studentToken := env.seedAndLogin(t, "student", shared.RoleStudent)

	t.Run("Student Cannot Create Users", func(t *testing.T) {
		rr, envelope := env.do(t, http.MethodPost, "/api/users", studentToken, map[string]string{
			"email": "new@example.com", "name": "New", "role": shared.RoleStudent,
		})
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.False(t, envelope.Success)
	})

	t.Run("Create User With Generated Password", func(t *testing.T) {
		rr, envelope := env.do(t, http.MethodPost, "/api/users", adminToken, map[string]string{
			"email": "faculty@example.com", "name": "Faculty", "role": shared.RoleInstructor,
		})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		var data struct {
			User            shared.User `json:"user"`
			InitialPassword string      `json:"initialPassword"`
		}
		decode(t, envelope, &data)
		assert.Equal(t, shared.RoleInstructor, data.User.Role)
		require.NotEmpty(t, data.InitialPassword)

		rr, _ = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"identifier": "faculty@example.com",
			"password":   data.InitialPassword,
		})
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("Duplicate Email", func(t *testing.T) {
		rr, envelope := env.do(t, http.MethodPost, "/api/users", adminToken, map[string]string{
			"email": "faculty@example.com", "name": "Again", "role": shared.RoleInstructor,
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "User already exists with this email", envelope.Message)
	})

	t.Run("Invalid Role", func(t *testing.T) {
		rr, envelope := env.do(t, http.MethodPost, "/api/users", adminToken, map[string]string{
			"email": "x@example.com", "name": "X", "role": "janitor",
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		require.NotEmpty(t, envelope.Errors)
		assert.Equal(t, "role", envelope.Errors[0].Field)
	})

	t.Run("List Users By Role", func(t *testing.T) {
		rr, envelope := env.do(t, http.MethodGet, "/api/users?role=instructor", adminToken, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var data struct {
			Users      []shared.User `json:"users"`
			TotalCount int           `json:"totalCount"`
		}
		decode(t, envelope, &data)
		assert.Equal(t, 1, data.TotalCount)
		assert.Equal(t, "faculty@example.com", data.Users[0].Email)
	})
}

func TestGateway_UserStatus(t *testing.T) {
	env := setupGatewayTestEnv(t)
	_, adminToken := env.seedAndLogin(t, "admin", shared.RoleAdmin)
	student, studentToken := env.seedAndLogin(t, "student", shared.RoleStudent)

	rr, envelope := env.do(t, http.MethodPatch, "/api/users/"+student.ID+"/status", adminToken, map[string]interface{}{"isActive": false})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var data struct {
		User shared.User `json:"user"`
	}
	decode(t, envelope, &data)
	assert.False(t, data.User.IsActive)

	// Deactivation ends the student's sessions and blocks new logins
	rr, _ = env.do(t, http.MethodGet, "/api/auth/me", studentToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, _ = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"identifier": student.Email,
		"password":   testkit.DefaultPassword,
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, _ = env.do(t, http.MethodPatch, "/api/users/"+student.ID+"/status", adminToken, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGateway_UserProfiles(t *testing.T) {
	env := setupGatewayTestEnv(t)
	admin, adminToken := env.seedAndLogin(t, "admin", shared.RoleAdmin)
	student, studentToken := env.seedAndLogin(t, "student", shared.RoleStudent)
	other, otherToken := env.seedAndLogin(t, "other", shared.RoleStudent)

	t.Run("Self Or Admin Reads", func(t *testing.T) {
		rr, envelope := env.do(t, http.MethodGet, "/api/users/"+student.ID, studentToken, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var data struct {
			User shared.User `json:"user"`
		}
		decode(t, envelope, &data)
		assert.Equal(t, student.Email, data.User.Email)

		rr, _ = env.do(t, http.MethodGet, "/api/users/"+other.ID, studentToken, nil)
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr, _ = env.do(t, http.MethodGet, "/api/users/"+other.ID, adminToken, nil)
		assert.Equal(t, http.StatusOK, rr.Code)

		rr, _ = env.do(t, http.MethodGet, "/api/users/ghost", adminToken, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Update Own Profile", func(t *testing.T) {
		rr, envelope := env.do(t, http.MethodPut, "/api/users/"+student.ID, studentToken, map[string]interface{}{"name": "Renamed"})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var data struct {
			User shared.User `json:"user"`
		}
		decode(t, envelope, &data)
		assert.Equal(t, "Renamed", data.User.Name)
		assert.Equal(t, shared.RoleStudent, data.User.Role)
	})

	t.Run("Role Change Is Admin Only", func(t *testing.T) {
		rr, _ := env.do(t, http.MethodPut, "/api/users/"+student.ID, studentToken, map[string]interface{}{"role": "admin"})
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr, _ = env.do(t, http.MethodPut, "/api/users/"+other.ID, studentToken, map[string]interface{}{"name": "Hijacked"})
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr, envelope := env.do(t, http.MethodPut, "/api/users/"+student.ID, adminToken, map[string]interface{}{"role": "instructor"})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var data struct {
			User shared.User `json:"user"`
		}
		decode(t, envelope, &data)
		assert.Equal(t, shared.RoleInstructor, data.User.Role)
	})

	t.Run("Duplicate Email", func(t *testing.T) {
		rr, _ := env.do(t, http.MethodPut, "/api/users/"+student.ID, studentToken, map[string]interface{}{"email": other.Email})
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("Delete Is Admin Only", func(t *testing.T) {
		rr, _ := env.do(t, http.MethodDelete, "/api/users/"+other.ID, studentToken, nil)
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr, _ = env.do(t, http.MethodDelete, "/api/users/"+admin.ID, adminToken, nil)
		assert.Equal(t, http.StatusConflict, rr.Code)

		rr, _ = env.do(t, http.MethodDelete, "/api/users/"+other.ID, adminToken, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		rr, _ = env.do(t, http.MethodGet, "/api/auth/me", otherToken, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		rr, _ = env.do(t, http.MethodDelete, "/api/users/"+other.ID, adminToken, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)

		waitForAudit(t, env, audit.ListQuery{Action: shared.ActionDelete, Resource: shared.ResourceUser}, 1)
	})
}

func TestGateway_AuditTrail(t *testing.T) {
	env := setupGatewayTestEnv(t)
	admin, adminToken := env.seedAndLogin(t, "admin", shared.RoleAdmin)
	_, studentToken := env.seedAndLogin(t, "student", shared.RoleStudent)

	t.Run("Admin Only", func(t *testing.T) {
		rr, _ := env.do(t, http.MethodGet, "/api/audit", studentToken, nil)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("Login Entries Are Recorded", func(t *testing.T) {
		waitForAudit(t, env, audit.ListQuery{Action: shared.ActionLogin}, 2)

		rr, envelope := env.do(t, http.MethodGet, "/api/audit?action=LOGIN&userId="+admin.ID, adminToken, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var result audit.ListResult
		decode(t, envelope, &result)
		require.Len(t, result.Logs, 1)
		assert.Equal(t, shared.ActionLogin, result.Logs[0].Action)
		assert.Equal(t, shared.ResourceUser, result.Logs[0].Resource)
		assert.Equal(t, int64(1), result.Pagination.Total)
		assert.Equal(t, 20, result.Pagination.Limit)
	})

	t.Run("Pagination", func(t *testing.T) {
		rr, envelope := env.do(t, http.MethodGet, "/api/audit?action=LOGIN&limit=1&page=2", adminToken, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var result audit.ListResult
		decode(t, envelope, &result)
		assert.Len(t, result.Logs, 1)
		assert.Equal(t, 2, result.Pagination.Pages)
		assert.Equal(t, 2, result.Pagination.Page)
	})

	t.Run("Invalid Filters", func(t *testing.T) {
		rr, envelope := env.do(t, http.MethodGet, "/api/audit?action=DANCE&limit=500", adminToken, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.False(t, envelope.Success)

		fields := make([]string, 0, len(envelope.Errors))
		for _, fieldErr := range envelope.Errors {
			fields = append(fields, fieldErr.Field)
		}
		assert.ElementsMatch(t, []string{"action", "limit"}, fields)
	})

	t.Run("Non Integer Page", func(t *testing.T) {
		rr, _ := env.do(t, http.MethodGet, "/api/audit?page=abc", adminToken, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

// waitForAudit blocks until the dispatcher has recorded want matching entries
func waitForAudit(t *testing.T, env *TestEnv, query audit.ListQuery, want int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		result, err := env.Services.Audit.List(context.Background(), query)
		return err == nil && result.Pagination.Total >= want
	}, 2*time.Second, 20*time.Millisecond)
}
