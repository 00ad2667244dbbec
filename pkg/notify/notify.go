// Package notify turns committed message events into per-recipient
// notification records. Fan-out runs on background workers consuming the
// event queue; redelivery is expected, so every write is idempotent on
// (recipient, message, kind).
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"msgcore/pkg/clock"
	"msgcore/pkg/conversation"
	"msgcore/pkg/directory"
	"msgcore/pkg/errdef"
	"msgcore/pkg/events"
	"msgcore/pkg/logger"
	"msgcore/pkg/models"
	"msgcore/pkg/store"
	"msgcore/pkg/telemetry"
)

// Options tunes the fan-out workers.
type Options struct {
	Workers     int
	MaxRetries  int
	BaseBackoff time.Duration
}

type Engine struct {
	st    *store.Store
	dir   *directory.Directory
	convs *conversation.Store
	q     *events.Queue
	clk   clock.Clock
	opts  Options

	// serializes the dedupe check-then-write across workers
	fanoutMu sync.Mutex

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func New(st *store.Store, dir *directory.Directory, convs *conversation.Store, q *events.Queue, clk clock.Clock, opts Options) *Engine {
	if clk == nil {
		clk = clock.Real()
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 50 * time.Millisecond
	}
	return &Engine{
		st:    st,
		dir:   dir,
		convs: convs,
		q:     q,
		clk:   clk,
		opts:  opts,
		stop:  make(chan struct{}),
	}
}

// Start launches the fan-out workers.
func (e *Engine) Start() {
	for i := 0; i < e.opts.Workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.q.RunWorker(e.stop, e.handle)
		}()
	}
	logger.Info("notify_started", "workers", e.opts.Workers)
}

// Stop signals the workers and waits for them to drain.
func (e *Engine) Stop() {
	e.once.Do(func() { close(e.stop) })
	e.wg.Wait()
}

// handle processes one event, retrying transient storage failures with
// bounded exponential backoff before giving up.
func (e *Engine) handle(ev *events.Event) error {
	var err error
	backoff := e.opts.BaseBackoff
	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			telemetry.FanoutRetries.Inc()
			select {
			case <-e.stop:
				return err
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		err = e.fanout(ev)
		if err == nil || !errdef.Transient(err) {
			break
		}
	}
	if err != nil {
		logger.Error("fanout_failed", "kind", string(ev.Kind), "msg", ev.MsgID, "error", err)
	}
	return err
}

func (e *Engine) fanout(ev *events.Event) error {
	ctx := context.Background()
	switch ev.Kind {
	case events.KindSent:
		return e.fanoutSent(ctx, ev)
	case events.KindEdited:
		return e.fanoutEdited(ctx, ev)
	default:
		// deletions do not notify
		return nil
	}
}

// fanoutSent writes a new-message notification for every participant
// other than the sender, plus a mentioned notification for participants
// whose handle appears as @handle in the body.
func (e *Engine) fanoutSent(ctx context.Context, ev *events.Event) error {
	var msg models.Message
	if err := json.Unmarshal(ev.Payload, &msg); err != nil {
		return fmt.Errorf("invalid sent payload for %s: %w", ev.MsgID, err)
	}
	conv, err := e.convs.Get(ctx, ev.Conv)
	if err != nil {
		return err
	}
	sender, err := e.dir.Resolve(ctx, ev.Actor)
	if err != nil {
		return err
	}
	body := "New message from " + sender.Handle
	for _, p := range conv.Participants {
		if p == ev.Actor {
			continue
		}
		if err := e.create(ctx, p, ev.MsgID, models.KindNewMessage, body, ev.TS); err != nil {
			return err
		}
		if e.mentions(ctx, msg.Body, p) {
			mb := sender.Handle + " mentioned you"
			if err := e.create(ctx, p, ev.MsgID, models.KindMentioned, mb, ev.TS); err != nil {
				return err
			}
		}
	}
	return nil
}

// fanoutEdited notifies only participants who had already read the
// message before the edit; everyone else will see the new body on first
// read anyway.
func (e *Engine) fanoutEdited(ctx context.Context, ev *events.Event) error {
	conv, err := e.convs.Get(ctx, ev.Conv)
	if err != nil {
		return err
	}
	editor, err := e.dir.Resolve(ctx, ev.Actor)
	if err != nil {
		return err
	}
	body := editor.Handle + " edited a message"
	for _, p := range conv.Participants {
		if p == ev.Actor {
			continue
		}
		v, err := e.st.Get(store.ReadMarkerKey(p, ev.MsgID))
		if err != nil {
			if errdef.Transient(err) {
				return err
			}
			continue // unread
		}
		var marker models.ReadMarker
		if json.Unmarshal(v, &marker) != nil || marker.TS >= ev.TS {
			continue
		}
		if err := e.create(ctx, p, ev.MsgID, models.KindEditedMessage, body, ev.TS); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) mentions(ctx context.Context, body, userID string) bool {
	u, err := e.dir.Resolve(ctx, userID)
	if err != nil || u.Handle == "" {
		return false
	}
	return strings.Contains(body, "@"+u.Handle)
}

// create writes one notification if none exists for the (recipient,
// message, kind) triple. The record, id pointer, and uniqueness marker
// commit in a single batch.
func (e *Engine) create(ctx context.Context, recipient, msgID string, kind models.NotificationKind, body string, ts int64) error {
	e.fanoutMu.Lock()
	defer e.fanoutMu.Unlock()

	idxKey := store.NotifIdxKey(recipient, msgID, string(kind))
	exists, err := e.st.Has(idxKey)
	if err != nil {
		return err
	}
	if exists {
		telemetry.NotificationsDeduped.Inc()
		return nil
	}

	n := models.Notification{
		ID:        uuid.NewString(),
		Recipient: recipient,
		MsgID:     msgID,
		Kind:      kind,
		Body:      body,
		CreatedTS: ts,
	}
	nb, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	key := store.NotifKey(recipient, store.Stamp(ts, e.st.NextSeq()))

	batch := e.st.NewBatch()
	_ = batch.Set(key, nb, nil)
	_ = batch.Set(store.NotifIDKey(n.ID), key, nil)
	_ = batch.Set(idxKey, []byte{1}, nil)
	if err := e.st.Commit(ctx, batch); err != nil {
		return err
	}

	telemetry.NotificationsCreated.WithLabelValues(string(kind)).Inc()
	logger.Debug("notification_created", "recipient", recipient, "msg", msgID, "kind", string(kind))
	return nil
}

// Get resolves a notification by id.
func (e *Engine) Get(ctx context.Context, notifID string) (models.Notification, error) {
	var n models.Notification
	if err := ctx.Err(); err != nil {
		return n, err
	}
	key, err := e.st.Get(store.NotifIDKey(notifID))
	if err != nil {
		return n, err
	}
	v, err := e.st.Get(key)
	if err != nil {
		return n, err
	}
	if err := json.Unmarshal(v, &n); err != nil {
		return n, fmt.Errorf("invalid notification record %s: %w", notifID, err)
	}
	return n, nil
}

// MarkRead flags a notification as read. Only the recipient may do so;
// repeating the call is a no-op.
func (e *Engine) MarkRead(ctx context.Context, notifID, userID string) error {
	n, err := e.Get(ctx, notifID)
	if err != nil {
		return err
	}
	if n.Recipient != userID {
		return fmt.Errorf("%w: notification %s belongs to another user", errdef.ErrForbidden, notifID)
	}
	if n.Read {
		return nil
	}
	n.Read = true
	nb, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	key, err := e.st.Get(store.NotifIDKey(notifID))
	if err != nil {
		return err
	}
	return e.st.Set(key, nb)
}

// ListFor returns a cursor over userID's notifications, newest first.
// onlyUnread skips read records.
func (e *Engine) ListFor(ctx context.Context, userID string, onlyUnread bool) *Cursor {
	return &Cursor{ctx: ctx, e: e, userID: userID, onlyUnread: onlyUnread}
}
