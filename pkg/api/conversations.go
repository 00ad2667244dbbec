package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"msgcore/pkg/auth"
	"msgcore/pkg/errdef"
	"msgcore/pkg/models"
	"msgcore/pkg/policy"
)

func (a *API) registerConversations(r *mux.Router) {
	r.HandleFunc("/conversations", a.createConversation).Methods(http.MethodPost)
	r.HandleFunc("/conversations", a.listConversations).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}", a.getConversation).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/participants", a.addParticipant).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/unread", a.listUnread).Methods(http.MethodGet)
}

// actor resolves the authenticated caller to a directory record.
func (a *API) actor(ctx context.Context) (models.User, error) {
	return a.dir.Resolve(ctx, auth.ActorID(ctx))
}

// authorize loads the conversation and checks the actor's access.
func (a *API) authorize(ctx context.Context, convID string, action policy.Action) (models.User, models.Conversation, error) {
	actor, err := a.actor(ctx)
	if err != nil {
		return actor, models.Conversation{}, err
	}
	conv, err := a.convs.Get(ctx, convID)
	if err != nil {
		return actor, conv, err
	}
	if !a.pol.CanAccess(actor, conv, action) {
		return actor, conv, errdef.ErrForbidden
	}
	return actor, conv, nil
}

func (a *API) createConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Participants []string `json:"participants"`
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
	// the creator is always a participant
	participants := append([]string{actor.ID}, req.Participants...)
	conv, err := a.convs.Create(r.Context(), participants)
	if err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusCreated, conv)
}

func (a *API) listConversations(w http.ResponseWriter, r *http.Request) {
	actor, err := a.actor(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	cur := a.convs.ListForUser(r.Context(), actor.ID)
	out := make([]models.Conversation, 0, 16)
	for cur.Next() {
		out = append(out, cur.Conversation())
	}
	if err := cur.Err(); err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, struct {
		Conversations []models.Conversation `json:"conversations"`
	}{Conversations: out})
}

func (a *API) getConversation(w http.ResponseWriter, r *http.Request) {
	_, conv, err := a.authorize(r.Context(), mux.Vars(r)["id"], policy.ActionRead)
	if err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, conv)
}

func (a *API) addParticipant(w http.ResponseWriter, r *http.Request) {
	convID := mux.Vars(r)["id"]
	var req struct {
		User string `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if _, _, err := a.authorize(r.Context(), convID, policy.ActionWrite); err != nil {
		writeErr(w, err)
		return
	}
	conv, err := a.convs.AddParticipant(r.Context(), convID, req.User)
	if err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, conv)
}

func (a *API) listUnread(w http.ResponseWriter, r *http.Request) {
	convID := mux.Vars(r)["id"]
	actor, _, err := a.authorize(r.Context(), convID, policy.ActionRead)
	if err != nil {
		writeErr(w, err)
		return
	}
	cur := a.tracker.UnreadFor(r.Context(), actor.ID, convID)
	defer func() { _ = cur.Close() }()
	out := make([]models.Message, 0, 16)
	for cur.Next() {
		out = append(out, cur.Message())
	}
	if err := cur.Err(); err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, struct {
		Conversation string           `json:"conversation"`
		Unread       []models.Message `json:"unread"`
	}{Conversation: convID, Unread: out})
}
