package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lms_backend/backend/internal/course"
	"lms_backend/backend/internal/gateway/util"
)

// CourseHandler serves the course catalog and course authoring
type CourseHandler struct {
	Courses *course.CourseService
}

// ListCourses handles GET /courses?search=&category=&difficulty=&page=&limit=
func (h *CourseHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	page, err := util.QueryInt(r, "page", 1)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	limit, err := util.QueryInt(r, "limit", 10)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}

	query := r.URL.Query()
	result, err := h.Courses.ListCourses(r.Context(), course.ListQuery{
		Search:     query.Get("search"),
		Category:   query.Get("category"),
		Difficulty: query.Get("difficulty"),
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		util.HandleError(w, r, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, result)
}

// GetCourse handles GET /courses/{id}
func (h *CourseHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	c, err := h.Courses.GetCourse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{"course": c})
}

// CreateCourse handles POST /courses
func (h *CourseHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var reqBody course.CreateInput
	if err := util.DecodeJSON(r, &reqBody); err != nil {
		util.HandleError(w, r, err)
		return
	}

	c, err := h.Courses.CreateCourse(r.Context(), user, util.RequestContext(r), reqBody)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusCreated, "Course created successfully", map[string]interface{}{"course": c})
}

// UpdateCourse handles PUT /courses/{id}
func (h *CourseHandler) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var reqBody course.UpdateInput
	if err := util.DecodeJSON(r, &reqBody); err != nil {
		util.HandleError(w, r, err)
		return
	}

	c, err := h.Courses.UpdateCourse(r.Context(), user, util.RequestContext(r), chi.URLParam(r, "id"), reqBody)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusOK, "Course updated successfully", map[string]interface{}{"course": c})
}

// DeleteCourse handles DELETE /courses/{id}
func (h *CourseHandler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.Courses.DeleteCourse(r.Context(), user, util.RequestContext(r), chi.URLParam(r, "id")); err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusOK, "Course deleted successfully", nil)
}
