package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"msgcore/pkg/auth"
	"msgcore/pkg/clock"
	"msgcore/pkg/config"
	"msgcore/pkg/conversation"
	"msgcore/pkg/directory"
	"msgcore/pkg/events"
	"msgcore/pkg/message"
	"msgcore/pkg/models"
	"msgcore/pkg/notify"
	"msgcore/pkg/policy"
	"msgcore/pkg/ratelimit"
	"msgcore/pkg/store"
	"msgcore/pkg/thread"
	"msgcore/pkg/unread"
)

type env struct {
	handler http.Handler
	clk     *clock.Fake
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)

	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	queue := events.NewQueue(256)

	dir := directory.New(st)
	convs := conversation.New(st, dir, clk)
	msgs := message.New(st, dir, convs, queue, clk, message.Limits{})
	tracker := unread.New(st, msgs, clk)
	engine := notify.New(st, dir, convs, queue, clk, notify.Options{Workers: 1})
	threads := thread.New(msgs, 0)
	limiter := ratelimit.New(time.Minute, 5, clk)

	engine.Start()
	t.Cleanup(func() {
		queue.Close()
		engine.Stop()
		_ = st.Close()
	})

	a := New(st, dir, convs, msgs, tracker, engine, threads, limiter, policy.Evaluator{})
	return &env{
		handler: auth.Middleware(config.SecurityConfig{})(a.Router()),
		clk:     clk,
	}
}

func (e *env) do(t *testing.T, method, path, actor string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != "" {
		req.Header.Set("X-User-ID", actor)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *env) mustJSON(t *testing.T, rec *httptest.ResponseRecorder, wantCode int, out interface{}) {
	t.Helper()
	require.Equal(t, wantCode, rec.Code, rec.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
}

func (e *env) provision(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		rec := e.do(t, http.MethodPost, "/v1/users", "admin-prov", models.User{ID: id, Handle: id})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

func (e *env) createConv(t *testing.T, creator string, others ...string) models.Conversation {
	t.Helper()
	var conv models.Conversation
	rec := e.do(t, http.MethodPost, "/v1/conversations", creator,
		map[string]interface{}{"participants": others})
	e.mustJSON(t, rec, http.StatusCreated, &conv)
	return conv
}

func TestConversationLifecycle(t *testing.T) {
	e := newEnv(t)
	e.provision(t, "alice", "bob", "carol")

	conv := e.createConv(t, "alice", "bob")
	require.True(t, conv.HasParticipant("alice"))
	require.True(t, conv.HasParticipant("bob"))

	// outsiders cannot read
	rec := e.do(t, http.MethodGet, "/v1/conversations/"+conv.ID, "carol", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// unknown users make invalid participant sets
	rec = e.do(t, http.MethodPost, "/v1/conversations", "alice",
		map[string]interface{}{"participants": []string{"nobody"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// grow membership, then duplicates conflict
	rec = e.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/participants", "alice",
		map[string]string{"user": "carol"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/participants", "alice",
		map[string]string{"user": "carol"})
	require.Equal(t, http.StatusConflict, rec.Code)

	// carol can read now
	rec = e.do(t, http.MethodGet, "/v1/conversations/"+conv.ID, "carol", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listing struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	e.mustJSON(t, e.do(t, http.MethodGet, "/v1/conversations", "alice", nil), http.StatusOK, &listing)
	require.Len(t, listing.Conversations, 1)
}

func TestMessageEndpoints(t *testing.T) {
	e := newEnv(t)
	e.provision(t, "alice", "bob", "carol")
	conv := e.createConv(t, "alice", "bob")
	base := "/v1/conversations/" + conv.ID + "/messages"

	var msg models.Message
	e.mustJSON(t, e.do(t, http.MethodPost, base, "alice", map[string]string{"body": "hello"}),
		http.StatusCreated, &msg)

	// outsiders cannot post or read
	rec := e.do(t, http.MethodPost, base, "carol", map[string]string{"body": "intrude"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = e.do(t, http.MethodGet, "/v1/messages/"+msg.ID, "carol", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// reply and materialize the thread
	var reply models.Message
	e.mustJSON(t, e.do(t, http.MethodPost, base, "bob",
		map[string]string{"body": "hi back", "parent": msg.ID}), http.StatusCreated, &reply)
	require.Equal(t, 1, reply.Depth)

	var node thread.Node
	e.mustJSON(t, e.do(t, http.MethodGet, "/v1/messages/"+msg.ID+"/thread", "alice", nil),
		http.StatusOK, &node)
	require.Len(t, node.Children, 1)

	// edit leaves a revision; only sender or admin may edit
	rec = e.do(t, http.MethodPut, "/v1/messages/"+msg.ID, "bob", map[string]string{"body": "hijack"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	e.clk.Advance(time.Second)
	var edited models.Message
	e.mustJSON(t, e.do(t, http.MethodPut, "/v1/messages/"+msg.ID, "alice",
		map[string]string{"body": "hello, edited"}), http.StatusOK, &edited)
	require.Equal(t, "hello, edited", edited.Body)

	var revs struct {
		Revisions []models.MessageRevision `json:"revisions"`
	}
	e.mustJSON(t, e.do(t, http.MethodGet, "/v1/messages/"+msg.ID+"/revisions", "bob", nil),
		http.StatusOK, &revs)
	require.Len(t, revs.Revisions, 1)
	require.Equal(t, "hello", revs.Revisions[0].Body)

	// soft delete keeps the record addressable
	rec = e.do(t, http.MethodDelete, "/v1/messages/"+msg.ID, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Message
	e.mustJSON(t, e.do(t, http.MethodGet, "/v1/messages/"+msg.ID, "bob", nil), http.StatusOK, &got)
	require.True(t, got.Deleted)
	require.Equal(t, models.TombstoneBody, got.Body)

	// invalid payloads
	rec = e.do(t, http.MethodPost, base, "alice", map[string]string{"body": "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = e.do(t, http.MethodPost, base, "alice", map[string]string{"body": "x", "parent": "missing"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendRateLimit(t *testing.T) {
	e := newEnv(t)
	e.provision(t, "alice", "bob")
	conv := e.createConv(t, "alice", "bob")
	base := "/v1/conversations/" + conv.ID + "/messages"

	for i := 0; i < 5; i++ {
		rec := e.do(t, http.MethodPost, base, "alice", map[string]string{"body": fmt.Sprintf("m%d", i)})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec := e.do(t, http.MethodPost, base, "alice", map[string]string{"body": "over"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// bob has his own window
	rec = e.do(t, http.MethodPost, base, "bob", map[string]string{"body": "mine"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// the window slides open again
	e.clk.Advance(61 * time.Second)
	rec = e.do(t, http.MethodPost, base, "alice", map[string]string{"body": "later"})
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestUnreadAndNotifications(t *testing.T) {
	e := newEnv(t)
	e.provision(t, "alice", "bob")
	conv := e.createConv(t, "alice", "bob")

	var msg models.Message
	e.mustJSON(t, e.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", "alice",
		map[string]string{"body": "hello"}), http.StatusCreated, &msg)

	var unreadResp struct {
		Unread []models.Message `json:"unread"`
	}
	e.mustJSON(t, e.do(t, http.MethodGet, "/v1/conversations/"+conv.ID+"/unread", "bob", nil),
		http.StatusOK, &unreadResp)
	require.Len(t, unreadResp.Unread, 1)

	// fan-out is async
	require.Eventually(t, func() bool {
		var resp struct {
			Notifications []models.Notification `json:"notifications"`
		}
		rec := e.do(t, http.MethodGet, "/v1/notifications?unread=1", "bob", nil)
		if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &resp) != nil {
			return false
		}
		return len(resp.Notifications) == 1
	}, 2*time.Second, 10*time.Millisecond)

	var resp struct {
		Notifications []models.Notification `json:"notifications"`
	}
	e.mustJSON(t, e.do(t, http.MethodGet, "/v1/notifications", "bob", nil), http.StatusOK, &resp)
	require.Equal(t, "New message from alice", resp.Notifications[0].Body)

	// mark the message and the notification read
	e.clk.Advance(time.Second)
	rec := e.do(t, http.MethodPost, "/v1/messages/"+msg.ID+"/read", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	e.mustJSON(t, e.do(t, http.MethodGet, "/v1/conversations/"+conv.ID+"/unread", "bob", nil),
		http.StatusOK, &unreadResp)
	require.Empty(t, unreadResp.Unread)

	rec = e.do(t, http.MethodPost, "/v1/notifications/"+resp.Notifications[0].ID+"/read", "alice", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = e.do(t, http.MethodPost, "/v1/notifications/"+resp.Notifications[0].ID+"/read", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	e.mustJSON(t, e.do(t, http.MethodGet, "/v1/notifications?unread=1", "bob", nil), http.StatusOK, &resp)
	require.Empty(t, resp.Notifications)
}

func TestUnknownActor(t *testing.T) {
	e := newEnv(t)
	e.provision(t, "alice", "bob")
	conv := e.createConv(t, "alice", "bob")

	rec := e.do(t, http.MethodGet, "/v1/conversations/"+conv.ID, "ghost", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
