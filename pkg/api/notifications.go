package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"msgcore/pkg/models"
)

func (a *API) registerNotifications(r *mux.Router) {
	r.HandleFunc("/notifications", a.listNotifications).Methods(http.MethodGet)
	r.HandleFunc("/notifications/{id}/read", a.markNotificationRead).Methods(http.MethodPost)
}

func (a *API) listNotifications(w http.ResponseWriter, r *http.Request) {
	actor, err := a.actor(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	onlyUnread := r.URL.Query().Get("unread") == "1"
	cur := a.notifs.ListFor(r.Context(), actor.ID, onlyUnread)
	defer func() { _ = cur.Close() }()
	out := make([]models.Notification, 0, 16)
	for cur.Next() {
		out = append(out, cur.Notification())
	}
	if err := cur.Err(); err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, struct {
		Notifications []models.Notification `json:"notifications"`
	}{Notifications: out})
}

func (a *API) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	actor, err := a.actor(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := a.notifs.MarkRead(r.Context(), mux.Vars(r)["id"], actor.ID); err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, map[string]string{"status": "read"})
}
