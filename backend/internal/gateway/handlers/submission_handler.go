package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"lms_backend/backend/internal/assignment"
	"lms_backend/backend/internal/gateway/util"
	"lms_backend/backend/internal/shared"
)

// SubmissionHandler serves the /submissions collection
type SubmissionHandler struct {
	Assignments *assignment.AssignmentService
	// LatePolicy applies to POST /submissions unless ?latePolicy= overrides it
	LatePolicy string
}

// RESTSubmissionRequest mirrors the expected JSON input for POST /submissions
type RESTSubmissionRequest struct {
	AssignmentID string              `json:"assignment"`
	Content      string              `json:"content"`
	Attachments  []shared.Attachment `json:"attachments"`
}

// CreateSubmission handles POST /submissions
func (h *SubmissionHandler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var reqBody RESTSubmissionRequest
	if err := util.DecodeJSON(r, &reqBody); err != nil {
		util.HandleError(w, r, err)
		return
	}
	var fieldErrs []shared.FieldError
	if reqBody.AssignmentID == "" {
		fieldErrs = append(fieldErrs, shared.FieldError{Field: "assignment", Message: "assignment is a required field"})
	}
	if strings.TrimSpace(reqBody.Content) == "" {
		fieldErrs = append(fieldErrs, shared.FieldError{Field: "content", Message: "Content is required"})
	}
	if len(fieldErrs) > 0 {
		util.HandleError(w, r, shared.ValidationFailed("Validation failed", fieldErrs...))
		return
	}

	input := assignment.SubmitInput{Content: reqBody.Content, Attachments: reqBody.Attachments}
	submission, err := h.Assignments.Submit(r.Context(), user, util.RequestContext(r), reqBody.AssignmentID, input, latePolicy(r, h.LatePolicy))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusCreated, "Assignment submitted successfully", map[string]interface{}{"submission": submission})
}

// MySubmissions handles GET /submissions/my
func (h *SubmissionHandler) MySubmissions(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	submissions, err := h.Assignments.MySubmissions(r.Context(), user)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{"submissions": submissions})
}

// ListByAssignment handles GET /submissions/assignment/{assignmentId}
func (h *SubmissionHandler) ListByAssignment(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	submissions, err := h.Assignments.ListSubmissions(r.Context(), user, chi.URLParam(r, "assignmentId"))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{"submissions": submissions})
}
