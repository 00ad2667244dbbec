package message

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"msgcore/pkg/errdef"
	"msgcore/pkg/models"
	"msgcore/pkg/store"
)

// Cursor lazily walks a conversation's messages in send-timestamp order.
// It reads through the conversation time index and resolves each entry to
// the latest message record. Reset rewinds it; iteration is finite per
// pass (entries appended after the cursor opened are not chased).
type Cursor struct {
	ctx    context.Context
	s      *Store
	convID string
	after  int64

	iter *pebble.Iterator
	cur  models.Message
	err  error
	done bool
}

func newCursor(ctx context.Context, s *Store, convID string, after int64) *Cursor {
	return &Cursor{ctx: ctx, s: s, convID: convID, after: after}
}

func (c *Cursor) open() {
	lower := store.ConvMsgPrefix(c.convID)
	if c.after > 0 {
		// entries strictly after the given timestamp
		lower = store.ConvMsgKey(c.convID, store.Stamp(c.after+1, 0))
	}
	upper := store.PrefixEnd(store.ConvMsgPrefix(c.convID))
	it, err := c.s.st.NewIter(lower, upper)
	if err != nil {
		c.err = err
		return
	}
	c.iter = it
	it.First()
}

// Next advances to the next message; false at the end or on error.
func (c *Cursor) Next() bool {
	if c.err != nil || c.done {
		return false
	}
	if c.iter == nil {
		c.open()
		if c.err != nil {
			return false
		}
	}
	for c.iter.Valid() {
		if err := c.ctx.Err(); err != nil {
			c.err = err
			return false
		}
		id := string(c.iter.Value())
		c.iter.Next()
		msg, err := c.s.Get(c.ctx, id)
		if err != nil {
			if errors.Is(err, errdef.ErrNotFound) {
				continue
			}
			c.err = err
			return false
		}
		c.cur = msg
		return true
	}
	if err := c.iter.Error(); err != nil {
		c.err = errdef.Storage(err)
		return false
	}
	c.done = true
	return false
}

// Message returns the current element after a true Next.
func (c *Cursor) Message() models.Message { return c.cur }

// Err reports the first error the cursor hit.
func (c *Cursor) Err() error { return c.err }

// Reset rewinds the cursor; the next pass sees a fresh snapshot.
func (c *Cursor) Reset() {
	if c.iter != nil {
		_ = c.iter.Close()
		c.iter = nil
	}
	c.err = nil
	c.done = false
}

// Close releases the underlying iterator.
func (c *Cursor) Close() error {
	if c.iter == nil {
		return nil
	}
	err := c.iter.Close()
	c.iter = nil
	if err != nil {
		return fmt.Errorf("close message cursor: %w", err)
	}
	return nil
}
