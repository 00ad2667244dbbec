// Package unread tracks per-user read state. No marker is ever written on
// send, so a message is unread for every recipient by construction until
// they explicitly mark it read.
package unread

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"msgcore/pkg/clock"
	"msgcore/pkg/errdef"
	"msgcore/pkg/message"
	"msgcore/pkg/models"
	"msgcore/pkg/store"
)

const markerLockShards = 64

type Tracker struct {
	st   *store.Store
	msgs *message.Store
	clk  clock.Clock

	// stripes the read-compare-write in MarkRead per (user, message)
	markerLocks [markerLockShards]sync.Mutex
}

func New(st *store.Store, msgs *message.Store, clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.Real()
	}
	return &Tracker{st: st, msgs: msgs, clk: clk}
}

func (t *Tracker) lockMarker(userID, msgID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(msgID))
	mu := &t.markerLocks[h.Sum32()%markerLockShards]
	mu.Lock()
	return mu.Unlock
}

// MarkRead records that userID has seen msgID. Idempotent; the stored
// timestamp only moves forward. The check and write run under a lock
// stripe so concurrent calls for the same pair cannot regress the marker.
func (t *Tracker) MarkRead(ctx context.Context, userID, msgID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.msgs.Get(ctx, msgID); err != nil {
		return err
	}

	unlock := t.lockMarker(userID, msgID)
	defer unlock()

	now := t.clk.Now().UnixNano()
	key := store.ReadMarkerKey(userID, msgID)
	if existing, err := t.Marker(ctx, userID, msgID); err == nil {
		if existing.TS >= now {
			return nil
		}
	} else if !errors.Is(err, errdef.ErrNotFound) {
		return err
	}
	b, err := json.Marshal(models.ReadMarker{User: userID, MsgID: msgID, TS: now})
	if err != nil {
		return fmt.Errorf("marshal read marker: %w", err)
	}
	return t.st.Set(key, b)
}

// Marker returns the read marker for (userID, msgID), or
// errdef.ErrNotFound when the message is unread.
func (t *Tracker) Marker(ctx context.Context, userID, msgID string) (models.ReadMarker, error) {
	var m models.ReadMarker
	if err := ctx.Err(); err != nil {
		return m, err
	}
	v, err := t.st.Get(store.ReadMarkerKey(userID, msgID))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(v, &m); err != nil {
		return m, fmt.Errorf("invalid read marker: %w", err)
	}
	return m, nil
}

// UnreadFor returns a cursor over the conversation's messages that userID
// has not read, excluding the user's own messages and tombstones, send
// timestamp ascending.
func (t *Tracker) UnreadFor(ctx context.Context, userID, convID string) *Cursor {
	return &Cursor{
		ctx:    ctx,
		t:      t,
		userID: userID,
		inner:  t.msgs.ListByConversation(ctx, convID, 0),
	}
}

// Cursor filters a message cursor down to unread messages.
type Cursor struct {
	ctx    context.Context
	t      *Tracker
	userID string
	inner  *message.Cursor
	cur    models.Message
	err    error
}

// Next advances to the next unread message; false at the end or on error.
func (c *Cursor) Next() bool {
	if c.err != nil {
		return false
	}
	for c.inner.Next() {
		msg := c.inner.Message()
		if msg.Sender == c.userID || msg.Deleted {
			continue
		}
		_, err := c.t.Marker(c.ctx, c.userID, msg.ID)
		if err == nil {
			continue // read
		}
		if !errors.Is(err, errdef.ErrNotFound) {
			c.err = err
			return false
		}
		c.cur = msg
		return true
	}
	c.err = c.inner.Err()
	return false
}

// Message returns the current element after a true Next.
func (c *Cursor) Message() models.Message { return c.cur }

// Err reports the first error the cursor hit.
func (c *Cursor) Err() error { return c.err }

// Reset rewinds the cursor.
func (c *Cursor) Reset() {
	c.inner.Reset()
	c.err = nil
}

// Close releases the underlying iterator.
func (c *Cursor) Close() error { return c.inner.Close() }
