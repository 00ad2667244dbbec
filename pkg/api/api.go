// Package api exposes the messaging core over HTTP. Handlers resolve the
// acting user from the request context, run the access policy, and map
// domain errors onto status codes.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"msgcore/pkg/conversation"
	"msgcore/pkg/directory"
	"msgcore/pkg/message"
	"msgcore/pkg/notify"
	"msgcore/pkg/policy"
	"msgcore/pkg/ratelimit"
	"msgcore/pkg/store"
	"msgcore/pkg/telemetry"
	"msgcore/pkg/thread"
	"msgcore/pkg/unread"
)

// API bundles the domain components behind the HTTP surface.
type API struct {
	st      *store.Store
	dir     *directory.Directory
	convs   *conversation.Store
	msgs    *message.Store
	tracker *unread.Tracker
	notifs  *notify.Engine
	threads *thread.Materializer
	limiter *ratelimit.Limiter
	pol     policy.Evaluator
}

func New(st *store.Store, dir *directory.Directory, convs *conversation.Store, msgs *message.Store,
	tracker *unread.Tracker, notifs *notify.Engine, threads *thread.Materializer,
	limiter *ratelimit.Limiter, pol policy.Evaluator) *API {
	return &API{
		st:      st,
		dir:     dir,
		convs:   convs,
		msgs:    msgs,
		tracker: tracker,
		notifs:  notifs,
		threads: threads,
		limiter: limiter,
		pol:     pol,
	}
}

// Router builds the full route table, probe endpoints included.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", a.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", telemetry.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	a.registerUsers(v1)
	a.registerConversations(v1)
	a.registerMessages(v1)
	a.registerNotifications(v1)
	return r
}

func (a *API) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (a *API) readyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !a.st.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
