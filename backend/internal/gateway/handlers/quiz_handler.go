package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lms_backend/backend/internal/gateway/util"
	"lms_backend/backend/internal/quiz"
)

// QuizHandler serves quiz authoring and attempts
type QuizHandler struct {
	Quizzes *quiz.QuizService
}

// RESTQuizSubmitRequest mirrors the expected JSON input for /quizzes/{id}/submit
type RESTQuizSubmitRequest struct {
	Answers []string `json:"answers"`
}

// CreateQuiz handles POST /quizzes
func (h *QuizHandler) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var reqBody quiz.CreateInput
	if err := util.DecodeJSON(r, &reqBody); err != nil {
		util.HandleError(w, r, err)
		return
	}

	q, err := h.Quizzes.CreateQuiz(r.Context(), user, util.RequestContext(r), reqBody)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusCreated, "Quiz created successfully", map[string]interface{}{"quiz": q})
}

// GetQuiz handles GET /quizzes/{id}
func (h *QuizHandler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	q, err := h.Quizzes.GetQuiz(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{"quiz": q})
}

// ListByCourse handles GET /quizzes/course/{courseId}
func (h *QuizHandler) ListByCourse(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	quizzes, err := h.Quizzes.ListByCourse(r.Context(), user, chi.URLParam(r, "courseId"))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{"quizzes": quizzes})
}

// StartAttempt handles POST /quizzes/{id}/start
func (h *QuizHandler) StartAttempt(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	attempt, resumed, err := h.Quizzes.StartAttempt(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}

	message := "Quiz attempt started"
	if resumed {
		message = "Resuming existing attempt"
	}
	util.WriteMessage(w, http.StatusOK, message, map[string]interface{}{"attempt": attempt})
}

// SubmitAttempt handles POST /quizzes/{id}/submit
func (h *QuizHandler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var reqBody RESTQuizSubmitRequest
	if err := util.DecodeJSON(r, &reqBody); err != nil {
		util.HandleError(w, r, err)
		return
	}

	result, err := h.Quizzes.SubmitAttempt(r.Context(), user, util.RequestContext(r), chi.URLParam(r, "id"), reqBody.Answers)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusOK, "Quiz submitted successfully", result)
}

// MyAttempts handles GET /quizzes/{id}/attempts
func (h *QuizHandler) MyAttempts(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	attempts, err := h.Quizzes.MyAttempts(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{"attempts": attempts})
}
