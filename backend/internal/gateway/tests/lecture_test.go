package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms_backend/backend/internal/shared"
)

func TestGateway_Lectures(t *testing.T) {
	env := setupGatewayTestEnv(t)
	_, instructorToken := env.seedAndLogin(t, "instructor", shared.RoleInstructor)
	_, otherInstructorToken := env.seedAndLogin(t, "other_instructor", shared.RoleInstructor)
	_, adminToken := env.seedAndLogin(t, "admin", shared.RoleAdmin)
	_, studentToken := env.seedAndLogin(t, "student1", shared.RoleStudent)

	c := env.createCourse(t, instructorToken, map[string]interface{}{
		"title": "Go", "description": "Concurrency", "category": "CS", "isPublished": true,
	})

	createLecture := func(t *testing.T, token string, body map[string]interface{}) shared.Lecture {
		t.Helper()
		rr, envelope := env.do(t, http.MethodPost, "/api/lectures", token, body)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		var data struct {
			Lecture shared.Lecture `json:"lecture"`
		}
		decode(t, envelope, &data)
		return data.Lecture
	}

	intro := createLecture(t, instructorToken, map[string]interface{}{
		"course": c.ID, "title": "Intro", "description": "Tooling", "order": 1, "isPublished": true,
		"videoUrl": "https://videos.example.com/intro",
	})
	draft := createLecture(t, instructorToken, map[string]interface{}{
		"course": c.ID, "title": "Generics", "description": "Type parameters", "order": 2,
	})

	t.Run("Create Guards", func(t *testing.T) {
		rr, _ := env.do(t, http.MethodPost, "/api/lectures", studentToken, map[string]interface{}{
			"course": c.ID, "title": "x", "description": "x",
		})
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr, _ = env.do(t, http.MethodPost, "/api/lectures", otherInstructorToken, map[string]interface{}{
			"course": c.ID, "title": "x", "description": "x",
		})
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr, envelope := env.do(t, http.MethodPost, "/api/lectures", instructorToken, map[string]interface{}{
			"course": c.ID, "description": "x",
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		require.NotEmpty(t, envelope.Errors)
		assert.Equal(t, "title", envelope.Errors[0].Field)
	})

	t.Run("Student Sees Published Only", func(t *testing.T) {
		rr, envelope := env.do(t, http.MethodGet, "/api/lectures/course/"+c.ID, studentToken, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var data struct {
			Lectures []shared.Lecture `json:"lectures"`
		}
		decode(t, envelope, &data)
		require.Len(t, data.Lectures, 1)
		assert.Equal(t, intro.ID, data.Lectures[0].ID)
		assert.Equal(t, "https://videos.example.com/intro", data.Lectures[0].VideoURL)

		rr, _ = env.do(t, http.MethodGet, "/api/lectures/"+draft.ID, studentToken, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Instructor Sees Drafts", func(t *testing.T) {
		rr, envelope := env.do(t, http.MethodGet, "/api/lectures/course/"+c.ID, instructorToken, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var data struct {
			Lectures []shared.Lecture `json:"lectures"`
		}
		decode(t, envelope, &data)
		require.Len(t, data.Lectures, 2)
		assert.Equal(t, intro.ID, data.Lectures[0].ID)

		rr, _ = env.do(t, http.MethodGet, "/api/lectures/"+draft.ID, instructorToken, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("Update Requires Owner Or Admin", func(t *testing.T) {
		rr, _ := env.do(t, http.MethodPut, "/api/lectures/"+draft.ID, otherInstructorToken, map[string]interface{}{"title": "Hijacked"})
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr, _ = env.do(t, http.MethodPut, "/api/lectures/"+draft.ID, studentToken, map[string]interface{}{"isPublished": true})
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr, envelope := env.do(t, http.MethodPut, "/api/lectures/"+draft.ID, adminToken, map[string]interface{}{"isPublished": true})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var data struct {
			Lecture shared.Lecture `json:"lecture"`
		}
		decode(t, envelope, &data)
		assert.True(t, data.Lecture.IsPublished)

		rr, _ = env.do(t, http.MethodGet, "/api/lectures/"+draft.ID, studentToken, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("Delete", func(t *testing.T) {
		rr, _ := env.do(t, http.MethodDelete, "/api/lectures/"+intro.ID, otherInstructorToken, nil)
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr, _ = env.do(t, http.MethodDelete, "/api/lectures/"+intro.ID, instructorToken, nil)
		assert.Equal(t, http.StatusOK, rr.Code)

		rr, _ = env.do(t, http.MethodGet, "/api/lectures/"+intro.ID, instructorToken, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Requires Token", func(t *testing.T) {
		rr, _ := env.do(t, http.MethodGet, "/api/lectures/course/"+c.ID, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
