package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"msgcore/pkg/errdef"
	"msgcore/pkg/models"
	"msgcore/pkg/policy"
	"msgcore/pkg/ratelimit"
)

func (a *API) registerMessages(r *mux.Router) {
	r.HandleFunc("/conversations/{id}/messages", a.sendMessage).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/messages", a.listMessages).Methods(http.MethodGet)

	r.HandleFunc("/messages/{id}", a.getMessage).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}", a.editMessage).Methods(http.MethodPut)
	r.HandleFunc("/messages/{id}", a.deleteMessage).Methods(http.MethodDelete)
	r.HandleFunc("/messages/{id}/revisions", a.listRevisions).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}/thread", a.getThread).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}/read", a.markMessageRead).Methods(http.MethodPost)
}

func (a *API) sendMessage(w http.ResponseWriter, r *http.Request) {
	convID := mux.Vars(r)["id"]
	var req struct {
		Body   string `json:"body"`
		Parent string `json:"parent,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	actor, _, err := a.authorize(r.Context(), convID, policy.ActionWrite)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !a.limiter.Admit(actor.ID, ratelimit.ActionSend) {
		writeErr(w, fmt.Errorf("%w: too many sends", errdef.ErrRateLimited))
		return
	}
	msg, err := a.msgs.Send(r.Context(), convID, actor.ID, req.Body, req.Parent)
	if err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusCreated, msg)
}

func (a *API) listMessages(w http.ResponseWriter, r *http.Request) {
	convID := mux.Vars(r)["id"]
	if _, _, err := a.authorize(r.Context(), convID, policy.ActionRead); err != nil {
		writeErr(w, err)
		return
	}
	var after int64
	if s := r.URL.Query().Get("after"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			JSONError(w, http.StatusBadRequest, "invalid after parameter")
			return
		}
		after = v
	}
	cur := a.msgs.ListByConversation(r.Context(), convID, after)
	defer func() { _ = cur.Close() }()
	out := make([]models.Message, 0, 32)
	for cur.Next() {
		out = append(out, cur.Message())
	}
	if err := cur.Err(); err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, struct {
		Conversation string           `json:"conversation"`
		Messages     []models.Message `json:"messages"`
	}{Conversation: convID, Messages: out})
}

// messageForRead loads a message and checks read access on its
// conversation.
func (a *API) messageForRead(r *http.Request) (models.User, models.Message, error) {
	msg, err := a.msgs.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return models.User{}, msg, err
	}
	actor, _, err := a.authorize(r.Context(), msg.Conv, policy.ActionRead)
	return actor, msg, err
}

func (a *API) getMessage(w http.ResponseWriter, r *http.Request) {
	_, msg, err := a.messageForRead(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, msg)
}

func (a *API) editMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	actor, err := a.actor(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	msg, err := a.msgs.Edit(r.Context(), mux.Vars(r)["id"], actor.ID, req.Body)
	if err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, msg)
}

func (a *API) deleteMessage(w http.ResponseWriter, r *http.Request) {
	actor, err := a.actor(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := a.msgs.SoftDelete(r.Context(), mux.Vars(r)["id"], actor.ID); err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (a *API) listRevisions(w http.ResponseWriter, r *http.Request) {
	_, msg, err := a.messageForRead(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	revs, err := a.msgs.Revisions(r.Context(), msg.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, struct {
		ID        string                   `json:"id"`
		Revisions []models.MessageRevision `json:"revisions"`
	}{ID: msg.ID, Revisions: revs})
}

func (a *API) getThread(w http.ResponseWriter, r *http.Request) {
	_, msg, err := a.messageForRead(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	node, err := a.threads.Materialize(r.Context(), msg.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, node)
}

func (a *API) markMessageRead(w http.ResponseWriter, r *http.Request) {
	actor, msg, err := a.messageForRead(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := a.tracker.MarkRead(r.Context(), actor.ID, msg.ID); err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, map[string]string{"status": "read"})
}
