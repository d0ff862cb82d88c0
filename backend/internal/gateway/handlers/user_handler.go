package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lms_backend/backend/internal/auth"
	"lms_backend/backend/internal/gateway/util"
)

// UserHandler serves profile reads and edits on /users/{id}
type UserHandler struct {
	Auth *auth.AuthService
}

// GetUser handles GET /users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}

	user, err := h.Auth.GetUser(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

// UpdateUser handles PUT /users/{id}
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}

	var reqBody auth.UpdateUserInput
	if err := util.DecodeJSON(r, &reqBody); err != nil {
		util.HandleError(w, r, err)
		return
	}

	user, err := h.Auth.UpdateUser(r.Context(), actor, chi.URLParam(r, "id"), reqBody, util.RequestContext(r))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusOK, "User updated successfully", map[string]interface{}{"user": user})
}

// DeleteUser handles DELETE /users/{id}
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.Auth.DeleteUser(r.Context(), actor, chi.URLParam(r, "id"), util.RequestContext(r)); err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusOK, "User deleted successfully", nil)
}
