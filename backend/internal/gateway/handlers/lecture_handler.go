package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lms_backend/backend/internal/gateway/util"
	"lms_backend/backend/internal/lecture"
)

// LectureHandler serves lecture authoring and per-course listing
type LectureHandler struct {
	Lectures *lecture.LectureService
}

// ListByCourse handles GET /lectures/course/{courseId}
func (h *LectureHandler) ListByCourse(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	lectures, err := h.Lectures.ListByCourse(r.Context(), user, chi.URLParam(r, "courseId"))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{"lectures": lectures})
}

// GetLecture handles GET /lectures/{id}
func (h *LectureHandler) GetLecture(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	l, err := h.Lectures.GetLecture(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{"lecture": l})
}

// CreateLecture handles POST /lectures
func (h *LectureHandler) CreateLecture(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var reqBody lecture.CreateInput
	if err := util.DecodeJSON(r, &reqBody); err != nil {
		util.HandleError(w, r, err)
		return
	}

	l, err := h.Lectures.CreateLecture(r.Context(), user, util.RequestContext(r), reqBody)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusCreated, "Lecture created successfully", map[string]interface{}{"lecture": l})
}

// UpdateLecture handles PUT /lectures/{id}
func (h *LectureHandler) UpdateLecture(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var reqBody lecture.UpdateInput
	if err := util.DecodeJSON(r, &reqBody); err != nil {
		util.HandleError(w, r, err)
		return
	}

	l, err := h.Lectures.UpdateLecture(r.Context(), user, util.RequestContext(r), chi.URLParam(r, "id"), reqBody)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusOK, "Lecture updated successfully", map[string]interface{}{"lecture": l})
}

// DeleteLecture handles DELETE /lectures/{id}
func (h *LectureHandler) DeleteLecture(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.Lectures.DeleteLecture(r.Context(), user, util.RequestContext(r), chi.URLParam(r, "id")); err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusOK, "Lecture deleted successfully", nil)
}
