package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lms_backend/backend/internal/gateway/util"
	"lms_backend/backend/internal/notification"
)

// NotificationHandler serves the caller's notification inbox
type NotificationHandler struct {
	Notifications *notification.Service
}

// ListNotifications handles GET /notifications?page=&limit=&unreadOnly=
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

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
	unreadOnly := r.URL.Query().Get("unreadOnly") == "true"

	result, err := h.Notifications.List(r.Context(), user.ID, page, limit, unreadOnly)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, result)
}

// SendNotification handles POST /notifications
func (h *NotificationHandler) SendNotification(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var reqBody notification.SendInput
	if err := util.DecodeJSON(r, &reqBody); err != nil {
		util.HandleError(w, r, err)
		return
	}

	n, err := h.Notifications.Send(r.Context(), user, util.RequestContext(r), reqBody)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusCreated, "Notification sent", map[string]interface{}{"notification": n})
}

// MarkRead handles PATCH /notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	n, err := h.Notifications.MarkRead(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{"notification": n})
}

// MarkAllRead handles PATCH /notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	updated, err := h.Notifications.MarkAllRead(r.Context(), user.ID)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusOK, "All notifications marked as read", map[string]interface{}{"updated": updated})
}

// DeleteNotification handles DELETE /notifications/{id}
func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.Notifications.Delete(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteMessage(w, http.StatusOK, "Notification deleted", nil)
}
