// Package message owns message records, their edit revisions, and the
// reply tree linkage. Every mutation commits as a single batch and emits
// an event for asynchronous consumers once the batch is durable.
package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

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

// Limits bounds message bodies and reply-tree depth.
type Limits struct {
	// MaxBodyRunes caps bodies, counted in code points.
	MaxBodyRunes int
	// MaxThreadDepth bounds reply depth; a root message has depth 0 and a
	// reply at depth >= MaxThreadDepth is rejected at send time.
	MaxThreadDepth int
}

type Store struct {
	st     *store.Store
	dir    *directory.Directory
	convs  *conversation.Store
	q      *events.Queue
	clk    clock.Clock
	limits Limits
}

func New(st *store.Store, dir *directory.Directory, convs *conversation.Store, q *events.Queue, clk clock.Clock, limits Limits) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	if limits.MaxBodyRunes <= 0 {
		limits.MaxBodyRunes = 4096
	}
	if limits.MaxThreadDepth <= 0 {
		limits.MaxThreadDepth = 64
	}
	return &Store{st: st, dir: dir, convs: convs, q: q, clk: clk, limits: limits}
}

func (s *Store) validateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("%w: empty body", errdef.ErrInvalidBody)
	}
	if n := utf8.RuneCountInString(body); n > s.limits.MaxBodyRunes {
		return fmt.Errorf("%w: %d code points exceeds limit %d",
			errdef.ErrInvalidBody, n, s.limits.MaxBodyRunes)
	}
	return nil
}

// Send validates and appends a message. Validation happens before any
// write; the message row, conversation index, reply index, and recency
// markers commit in one batch. The sent event is emitted only after the
// batch is durable.
func (s *Store) Send(ctx context.Context, convID, senderID, body, parentID string) (models.Message, error) {
	var msg models.Message

	if err := s.validateBody(body); err != nil {
		return msg, err
	}

	// Appends to independent conversations proceed concurrently; the
	// stripe serializes only same-conversation writers.
	unlock := s.st.LockConv(convID)
	defer unlock()

	conv, err := s.convs.Get(ctx, convID)
	if err != nil {
		return msg, err
	}
	if !conv.HasParticipant(senderID) {
		return msg, fmt.Errorf("%w: %s is not a participant of %s", errdef.ErrForbidden, senderID, convID)
	}

	depth := 0
	if parentID != "" {
		parent, err := s.Get(ctx, parentID)
		if err != nil {
			if errors.Is(err, errdef.ErrNotFound) {
				return msg, fmt.Errorf("%w: parent %s not found", errdef.ErrInvalidParent, parentID)
			}
			return msg, err
		}
		if parent.Conv != convID {
			return msg, fmt.Errorf("%w: parent %s belongs to another conversation", errdef.ErrInvalidParent, parentID)
		}
		depth = parent.Depth + 1
		if depth >= s.limits.MaxThreadDepth {
			return msg, fmt.Errorf("%w: reply depth %d reaches bound %d",
				errdef.ErrThreadTooDeep, depth, s.limits.MaxThreadDepth)
		}
	}

	ts := s.clk.Now().UnixNano()
	stamp := store.Stamp(ts, s.st.NextSeq())
	msg = models.Message{
		ID:       uuid.NewString(),
		Conv:     convID,
		Sender:   senderID,
		Body:     body,
		TS:       ts,
		ParentID: parentID,
		Depth:    depth,
	}
	mb, err := json.Marshal(msg)
	if err != nil {
		return msg, fmt.Errorf("marshal message: %w", err)
	}
	conv.LastMsgTS = ts
	cb, err := json.Marshal(conv)
	if err != nil {
		return msg, fmt.Errorf("marshal conversation: %w", err)
	}

	batch := s.st.NewBatch()
	_ = batch.Set(store.MsgKey(msg.ID), mb, nil)
	_ = batch.Set(store.ConvMsgKey(convID, stamp), []byte(msg.ID), nil)
	if parentID != "" {
		_ = batch.Set(store.ChildKey(parentID, stamp), []byte(msg.ID), nil)
	}
	_ = batch.Set(store.ConvMetaKey(convID), cb, nil)
	tsVal := []byte(strconv.FormatInt(ts, 10))
	for _, p := range conv.Participants {
		_ = batch.Set(store.UserConvKey(p, convID), tsVal, nil)
	}
	if err := s.st.Commit(ctx, batch); err != nil {
		return msg, err
	}

	telemetry.MessagesSent.Inc()
	logger.Info("message_sent", "conv", convID, "msg", msg.ID, "sender", senderID, "depth", depth)
	s.emit(ctx, events.KindSent, msg, senderID, ts, mb)
	return msg, nil
}

// Edit replaces the body of a message. When the body changes, the prior
// body is snapshotted into a revision and the record updated in the same
// batch; an unchanged body is a no-op producing neither revision nor
// event. The editor must be the sender or an admin participant.
func (s *Store) Edit(ctx context.Context, msgID, editorID, newBody string) (models.Message, error) {
	if err := s.validateBody(newBody); err != nil {
		return models.Message{}, err
	}

	cur, err := s.Get(ctx, msgID)
	if err != nil {
		return cur, err
	}
	if cur.Deleted {
		return cur, fmt.Errorf("%w: message %s is deleted", errdef.ErrNotFound, msgID)
	}
	if err := s.requireSenderOrAdmin(ctx, cur, editorID, "edit"); err != nil {
		return cur, err
	}

	unlock := s.st.LockConv(cur.Conv)
	defer unlock()

	// re-read under the stripe so concurrent edits serialize cleanly
	cur, err = s.Get(ctx, msgID)
	if err != nil {
		return cur, err
	}
	if cur.Deleted {
		return cur, fmt.Errorf("%w: message %s is deleted", errdef.ErrNotFound, msgID)
	}
	if cur.Body == newBody {
		return cur, nil
	}

	ts := s.clk.Now().UnixNano()
	rev := models.MessageRevision{
		ID:    uuid.NewString(),
		MsgID: msgID,
		Body:  cur.Body,
		TS:    ts,
	}
	rb, err := json.Marshal(rev)
	if err != nil {
		return cur, fmt.Errorf("marshal revision: %w", err)
	}
	cur.Body = newBody
	cur.EditedTS = ts
	cur.EditedBy = editorID
	mb, err := json.Marshal(cur)
	if err != nil {
		return cur, fmt.Errorf("marshal message: %w", err)
	}

	batch := s.st.NewBatch()
	_ = batch.Set(store.RevKey(msgID, store.Stamp(ts, s.st.NextSeq())), rb, nil)
	_ = batch.Set(store.MsgKey(msgID), mb, nil)
	if err := s.st.Commit(ctx, batch); err != nil {
		return cur, err
	}

	telemetry.MessagesEdited.Inc()
	logger.Info("message_edited", "msg", msgID, "editor", editorID)
	s.emit(ctx, events.KindEdited, cur, editorID, ts, mb)
	return cur, nil
}

// SoftDelete tombstones the body while keeping revisions and reply
// linkage, so existing replies stay addressable. Deleting an already
// deleted message is a no-op.
func (s *Store) SoftDelete(ctx context.Context, msgID, actorID string) error {
	cur, err := s.Get(ctx, msgID)
	if err != nil {
		return err
	}
	if err := s.requireSenderOrAdmin(ctx, cur, actorID, "delete"); err != nil {
		return err
	}

	unlock := s.st.LockConv(cur.Conv)
	defer unlock()

	cur, err = s.Get(ctx, msgID)
	if err != nil {
		return err
	}
	if cur.Deleted {
		return nil
	}

	ts := s.clk.Now().UnixNano()
	cur.Deleted = true
	cur.Body = models.TombstoneBody
	mb, err := json.Marshal(cur)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	batch := s.st.NewBatch()
	_ = batch.Set(store.MsgKey(msgID), mb, nil)
	if err := s.st.Commit(ctx, batch); err != nil {
		return err
	}

	telemetry.MessagesDeleted.Inc()
	logger.Info("message_deleted", "msg", msgID, "actor", actorID)
	s.emit(ctx, events.KindDeleted, cur, actorID, ts, mb)
	return nil
}

// Get returns the latest state of a message, tombstoned or not.
func (s *Store) Get(ctx context.Context, msgID string) (models.Message, error) {
	var msg models.Message
	if err := ctx.Err(); err != nil {
		return msg, err
	}
	v, err := s.st.Get(store.MsgKey(msgID))
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(v, &msg); err != nil {
		return msg, fmt.Errorf("invalid message record %s: %w", msgID, err)
	}
	return msg, nil
}

// Revisions returns the append-only edit history of a message, oldest
// first.
func (s *Store) Revisions(ctx context.Context, msgID string) ([]models.MessageRevision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.MessageRevision
	err := s.st.ScanPrefix(store.RevPrefix(msgID), func(_, val []byte) bool {
		var rev models.MessageRevision
		if json.Unmarshal(val, &rev) == nil {
			out = append(out, rev)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ChildIDs returns the direct replies to a message, ordered by send
// timestamp ascending.
func (s *Store) ChildIDs(ctx context.Context, msgID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	err := s.st.ScanPrefix(store.ChildPrefix(msgID), func(_, val []byte) bool {
		out = append(out, string(val))
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByConversation returns a restartable cursor over a conversation's
// messages, send timestamp ascending. A non-zero after skips messages at
// or before that timestamp (ns).
func (s *Store) ListByConversation(ctx context.Context, convID string, after int64) *Cursor {
	return newCursor(ctx, s, convID, after)
}

// requireSenderOrAdmin permits the message sender, or a conversation
// participant whose directory role is admin.
func (s *Store) requireSenderOrAdmin(ctx context.Context, msg models.Message, actorID, verb string) error {
	if actorID == msg.Sender {
		return nil
	}
	conv, err := s.convs.Get(ctx, msg.Conv)
	if err != nil {
		return err
	}
	if conv.HasParticipant(actorID) {
		u, err := s.dir.Resolve(ctx, actorID)
		if err == nil && u.Role == models.RoleAdmin {
			return nil
		}
	}
	return fmt.Errorf("%w: %s may not %s message %s", errdef.ErrForbidden, actorID, verb, msg.ID)
}

// emit hands the committed mutation to the event queue. The batch is
// already durable here, so a failed enqueue loses fan-out, not data; that
// is logged loudly rather than unwinding the commit.
func (s *Store) emit(ctx context.Context, kind events.Kind, msg models.Message, actor string, ts int64, payload []byte) {
	if s.q == nil {
		return
	}
	ev := events.Event{
		Kind:    kind,
		Conv:    msg.Conv,
		MsgID:   msg.ID,
		Actor:   actor,
		TS:      ts,
		Payload: payload,
	}
	if err := s.q.TryEnqueue(&ev); err != nil {
		// fall back to a blocking enqueue bounded by the caller's ctx
		if err := s.q.Enqueue(ctx, &ev); err != nil {
			logger.Error("event_enqueue_failed", "kind", string(kind), "msg", msg.ID, "error", err)
		}
	}
}
