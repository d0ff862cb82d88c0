package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"lms_backend/backend/internal/assignment"
	"lms_backend/backend/internal/gateway/util"
	"lms_backend/backend/internal/shared"
)

// AssignmentHandler serves assignment authoring and the per-assignment submit route
type AssignmentHandler struct {
	Assignments *assignment.AssignmentService
	// LatePolicy applies to /assignments/{id}/submit unless ?latePolicy= overrides it
	LatePolicy string
}

// RESTAssignmentSubmitRequest mirrors the expected JSON input for /assignments/{id}/submit
type RESTAssignmentSubmitRequest struct {
	TextSubmission string              `json:"textSubmission"`
	Files          []shared.Attachment `json:"files"`
}

// CreateAssignment handles POST /assignments
func (h *AssignmentHandler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var reqBody assignment.CreateInput
	if err := util.DecodeJSON(r, &reqBody); err != nil {
		util.HandleError(w, r, err)
		return
	}

	a, err := h.Assignments.CreateAssignment(r.Context(), user, util.RequestContext(r), reqBody)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusCreated, "Assignment created successfully", map[string]interface{}{"assignment": a})
}

// GetAssignment handles GET /assignments/{id}
func (h *AssignmentHandler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := h.Assignments.GetAssignment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{"assignment": a})
}

// ListByCourse handles GET /assignments/course/{courseId}
func (h *AssignmentHandler) ListByCourse(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	assignments, err := h.Assignments.ListByCourse(r.Context(), user, chi.URLParam(r, "courseId"))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{"assignments": assignments})
}

// Submit handles POST /assignments/{id}/submit
func (h *AssignmentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var reqBody RESTAssignmentSubmitRequest
	if err := util.DecodeJSON(r, &reqBody); err != nil {
		util.HandleError(w, r, err)
		return
	}

	if strings.TrimSpace(reqBody.TextSubmission) == "" && len(reqBody.Files) == 0 {
		util.HandleError(w, r, shared.ValidationFailed("Validation failed", shared.FieldError{
			Field:   "textSubmission",
			Message: "Either textSubmission or files is required",
		}))
		return
	}

	input := assignment.SubmitInput{Content: reqBody.TextSubmission, Attachments: reqBody.Files}
	submission, err := h.Assignments.Submit(r.Context(), user, util.RequestContext(r), chi.URLParam(r, "id"), input, latePolicy(r, h.LatePolicy))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusOK, "Assignment submitted successfully", map[string]interface{}{"submission": submission})
}

// latePolicy returns the ?latePolicy= override or the route default
func latePolicy(r *http.Request, fallback string) string {
	if policy := r.URL.Query().Get("latePolicy"); policy != "" {
		return policy
	}
	return fallback
}
