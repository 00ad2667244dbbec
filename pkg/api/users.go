package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"msgcore/pkg/auth"
	"msgcore/pkg/logger"
	"msgcore/pkg/models"
)

func (a *API) registerUsers(r *mux.Router) {
	r.HandleFunc("/users", a.createUser).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}", a.getUser).Methods(http.MethodGet)
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var u models.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if u.ID == "" || u.Handle == "" {
		JSONError(w, http.StatusBadRequest, "id and handle required")
		return
	}
	if u.CreatedTS == 0 {
		u.CreatedTS = time.Now().UTC().UnixNano()
	}
	if err := a.dir.Put(r.Context(), u); err != nil {
		writeErr(w, err)
		return
	}
	logger.Info("user_created", "user", u.ID, "by", auth.ActorID(r.Context()))
	JSONWrite(w, http.StatusCreated, u)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := a.dir.Resolve(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, u)
}
