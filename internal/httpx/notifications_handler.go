package httpx

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-pcparts-orders/internal/notify"
	"github.com/go-chi/chi/v5"
)

type NotificationFeed interface {
	List(ctx context.Context, userID string, limit int) ([]notify.Notification, error)
}

type NotificationsHandler struct {
	Feed NotificationFeed
}

func (h *NotificationsHandler) Register(r chi.Router) {
	r.Get("/api/notifications/{user_id}", h.list)
}

func (h *NotificationsHandler) list(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			badRequest(w, r, "limit must be a positive integer")
			return
		}
		limit = n
	}
	list, err := h.Feed.List(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "notifications": list})
}
