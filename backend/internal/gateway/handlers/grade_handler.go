package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lms_backend/backend/internal/assignment"
	"lms_backend/backend/internal/gateway/util"
)

// GradeHandler serves grading and returning of submissions
type GradeHandler struct {
	Assignments *assignment.AssignmentService
}

// RESTGradeByStudentRequest mirrors the expected JSON input for /assignments/{id}/grade
type RESTGradeByStudentRequest struct {
	StudentID string   `json:"studentId"`
	Grade     *float64 `json:"grade"`
	Feedback  string   `json:"feedback"`
}

// GradeByStudent handles POST /assignments/{id}/grade
func (h *GradeHandler) GradeByStudent(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var reqBody RESTGradeByStudentRequest
	if err := util.DecodeJSON(r, &reqBody); err != nil {
		util.HandleError(w, r, err)
		return
	}

	input := assignment.GradeInput{Grade: reqBody.Grade, Feedback: reqBody.Feedback}
	submission, err := h.Assignments.GradeByStudent(r.Context(), user, util.RequestContext(r), chi.URLParam(r, "id"), reqBody.StudentID, input)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusOK, "Submission graded successfully", map[string]interface{}{"submission": submission})
}

// GradeSubmission handles POST /submissions/{id}/grade
func (h *GradeHandler) GradeSubmission(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var reqBody assignment.GradeInput
	if err := util.DecodeJSON(r, &reqBody); err != nil {
		util.HandleError(w, r, err)
		return
	}

	submission, err := h.Assignments.GradeSubmission(r.Context(), user, util.RequestContext(r), chi.URLParam(r, "id"), reqBody)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusOK, "Submission graded successfully", map[string]interface{}{"submission": submission})
}

// ReturnSubmission handles POST /submissions/{id}/return
func (h *GradeHandler) ReturnSubmission(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	submission, err := h.Assignments.Return(r.Context(), user, util.RequestContext(r), chi.URLParam(r, "id"))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusOK, "Submission returned to student", map[string]interface{}{"submission": submission})
}
