package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lms_backend/backend/internal/audit"
	"lms_backend/backend/internal/auth"
	"lms_backend/backend/internal/gateway/util"
)

// AdminHandler serves user provisioning and the audit trail
type AdminHandler struct {
	Auth  *auth.AuthService
	Audit *audit.Service
}

// RESTUserStatusRequest mirrors the expected JSON input for /users/{id}/status
type RESTUserStatusRequest struct {
	IsActive *bool `json:"isActive"`
}

// CreateUser handles POST /users
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	admin, ok := currentUser(w, r)
	if !ok {
		return
	}

	var reqBody auth.CreateUserInput
	if err := util.DecodeJSON(r, &reqBody); err != nil {
		util.HandleError(w, r, err)
		return
	}

	user, initialPassword, err := h.Auth.CreateUser(r.Context(), admin, reqBody, util.RequestContext(r))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}

	data := map[string]interface{}{"user": user}
	if initialPassword != "" {
		data["initialPassword"] = initialPassword
	}
	util.WriteMessage(w, http.StatusCreated, "User created successfully", data)
}

// ListUsers handles GET /users?role=
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	admin, ok := currentUser(w, r)
	if !ok {
		return
	}

	users, err := h.Auth.ListUsers(r.Context(), admin, r.URL.Query().Get("role"))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"users":      users,
		"totalCount": len(users),
	})
}

// SetUserStatus handles PATCH /users/{id}/status
func (h *AdminHandler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	admin, ok := currentUser(w, r)
	if !ok {
		return
	}

	var reqBody RESTUserStatusRequest
	if err := util.DecodeJSON(r, &reqBody); err != nil {
		util.HandleError(w, r, err)
		return
	}
	if reqBody.IsActive == nil {
		util.WriteJSONError(w, http.StatusBadRequest, "isActive is required")
		return
	}

	user, err := h.Auth.SetUserStatus(r.Context(), admin, chi.URLParam(r, "id"), *reqBody.IsActive, util.RequestContext(r))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusOK, "User status updated", map[string]interface{}{"user": user})
}

// ListAuditLogs handles GET /audit?page=&limit=&action=&resource=&userId=
func (h *AdminHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	page, err := util.QueryInt(r, "page", 1)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	limit, err := util.QueryInt(r, "limit", 20)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}

	query := r.URL.Query()
	result, err := h.Audit.List(r.Context(), audit.ListQuery{
		Page:     page,
		Limit:    limit,
		Action:   query.Get("action"),
		Resource: query.Get("resource"),
		UserID:   query.Get("userId"),
	})
	if err != nil {
		util.HandleError(w, r, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, result)
}
