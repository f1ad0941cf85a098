package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/David-Byun/wemake/internal/metrics"
	"github.com/David-Byun/wemake/internal/models"
)

// NotificationsResponse represents the notification list response.
type NotificationsResponse struct {
	Notifications []models.Notification `json:"notifications"`
}

// UnseenCountResponse represents the unseen notification count.
type UnseenCountResponse struct {
	Count int64 `json:"count"`
}

// ListNotifications returns the user's notifications, newest first.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := h.db.ListNotifications(r.Context(), currentUser(r))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, NotificationsResponse{Notifications: list})
}

// UnseenCount returns how many notifications the user has not seen. The
// count is served from Redis when it is available.
func (h *Handler) UnseenCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := currentUser(r)

	if h.redis != nil {
		count, ok, err := h.redis.GetUnseenCount(ctx, user)
		if err != nil {
			h.logger.Warn().Err(err).Msg("unseen count cache read failed")
		} else if ok {
			h.JSON(w, http.StatusOK, UnseenCountResponse{Count: count})
			return
		}
	}

	count, err := h.db.CountUnseenNotifications(ctx, user)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	if h.redis != nil {
		if err := h.redis.SetUnseenCount(ctx, user, count); err != nil {
			h.logger.Warn().Err(err).Msg("unseen count cache write failed")
		}
	}

	h.JSON(w, http.StatusOK, UnseenCountResponse{Count: count})
}

// SeeNotification marks one of the user's notifications as seen.
func (h *Handler) SeeNotification(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.Error(w, http.StatusBadRequest, "invalid notification ID")
		return
	}

	user := currentUser(r)
	if err := h.db.MarkNotificationSeen(r.Context(), id, user); err != nil {
		h.Fail(w, r, err)
		return
	}
	metrics.NotificationsSeen.Inc()

	w.WriteHeader(http.StatusNoContent)
}
