package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lms_backend/backend/internal/course"
	"lms_backend/backend/internal/gateway/util"
)

// EnrollmentHandler serves enrollment in courses and per-student progress
type EnrollmentHandler struct {
	Courses *course.CourseService
}

// RESTProgressRequest mirrors the expected JSON input for /courses/{id}/progress
type RESTProgressRequest struct {
	Progress *int `json:"progress"`
}

// Enroll handles POST /courses/{id}/enroll
func (h *EnrollmentHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.Courses.Enroll(r.Context(), user, util.RequestContext(r), chi.URLParam(r, "id")); err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusOK, "Successfully enrolled in course", nil)
}

// Unenroll handles DELETE /courses/{id}/enroll
func (h *EnrollmentHandler) Unenroll(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.Courses.Unenroll(r.Context(), user, chi.URLParam(r, "id")); err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusOK, "Successfully unenrolled from course", nil)
}

// MyCourses handles GET /courses/my
func (h *EnrollmentHandler) MyCourses(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	courses, err := h.Courses.MyCourses(r.Context(), user)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{"courses": courses})
}

// UpdateProgress handles PUT /courses/{id}/progress
func (h *EnrollmentHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var reqBody RESTProgressRequest
	if err := util.DecodeJSON(r, &reqBody); err != nil {
		util.HandleError(w, r, err)
		return
	}
	if reqBody.Progress == nil {
		util.WriteJSONError(w, http.StatusBadRequest, "progress is required")
		return
	}

	if err := h.Courses.UpdateProgress(r.Context(), user, chi.URLParam(r, "id"), *reqBody.Progress); err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusOK, "Progress updated", map[string]interface{}{"progress": *reqBody.Progress})
}
