package handlers

import (
	"net/http"
	"strings"

	"lms_backend/backend/internal/auth"
	"lms_backend/backend/internal/gateway/util"
	"lms_backend/backend/internal/shared"
)

// AuthHandler serves login, logout and the current session
type AuthHandler struct {
	Auth *auth.AuthService
}

// RESTLoginRequest mirrors the expected JSON input for /auth/login.
// Identifier and Email are accepted interchangeably.
type RESTLoginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// RESTChangePasswordRequest mirrors the expected JSON input for /auth/change-password
type RESTChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// currentUser returns the authenticated user or writes a 401
func currentUser(w http.ResponseWriter, r *http.Request) (shared.User, bool) {
	user, ok := util.CurrentUser(r)
	if !ok {
		util.WriteJSONError(w, http.StatusUnauthorized, "Authorization token required")
	}
	return user, ok
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var reqBody RESTLoginRequest
	if err := util.DecodeJSON(r, &reqBody); err != nil {
		util.HandleError(w, r, err)
		return
	}

	identifier := strings.TrimSpace(reqBody.Identifier)
	if identifier == "" {
		identifier = strings.TrimSpace(reqBody.Email)
	}
	if identifier == "" || reqBody.Password == "" {
		util.WriteJSONError(w, http.StatusBadRequest, "Identifier and password are required")
		return
	}

	result, err := h.Auth.Login(r.Context(), identifier, reqBody.Password, util.RequestContext(r))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}

	util.WriteMessage(w, http.StatusOK, "Login successful", result)
}

// Logout handles POST /auth/logout. A missing token is still a successful logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, err := util.ExtractToken(r)
	if err != nil {
		util.WriteMessage(w, http.StatusOK, "Logged out successfully", nil)
		return
	}

	userID := ""
	if user, err := h.Auth.ValidateToken(r.Context(), token); err == nil {
		userID = user.ID
	}

	if err := h.Auth.Logout(r.Context(), token, userID, util.RequestContext(r)); err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusOK, "Logged out successfully", nil)
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

// ChangePassword handles POST /auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var reqBody RESTChangePasswordRequest
	if err := util.DecodeJSON(r, &reqBody); err != nil {
		util.HandleError(w, r, err)
		return
	}

	if reqBody.OldPassword == "" || reqBody.NewPassword == "" {
		util.WriteJSONError(w, http.StatusBadRequest, "Old and new passwords are required")
		return
	}
	if reqBody.OldPassword == reqBody.NewPassword {
		util.WriteJSONError(w, http.StatusBadRequest, "New password cannot be the same as the old password")
		return
	}

	if err := h.Auth.ChangePassword(r.Context(), user.ID, reqBody.OldPassword, reqBody.NewPassword); err != nil {
		util.HandleError(w, r, err)
		return
	}

	util.WriteMessage(w, http.StatusOK, "Password changed successfully. Please log in again.", nil)
}
