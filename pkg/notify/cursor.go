package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"msgcore/pkg/errdef"
	"msgcore/pkg/models"
	"msgcore/pkg/store"
)

// Cursor walks a user's notifications newest first.
type Cursor struct {
	ctx        context.Context
	e          *Engine
	userID     string
	onlyUnread bool

	iter *pebble.Iterator
	cur  models.Notification
	err  error
	done bool
}

func (c *Cursor) open() {
	prefix := store.NotifPrefix(c.userID)
	it, err := c.e.st.NewIter(prefix, store.PrefixEnd(prefix))
	if err != nil {
		c.err = err
		return
	}
	c.iter = it
	it.Last()
}

// Next advances to the next notification; false at the end or on error.
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
		var n models.Notification
		err := json.Unmarshal(c.iter.Value(), &n)
		c.iter.Prev()
		if err != nil {
			c.err = fmt.Errorf("invalid notification record: %w", err)
			return false
		}
		if c.onlyUnread && n.Read {
			continue
		}
		c.cur = n
		return true
	}
	if err := c.iter.Error(); err != nil {
		c.err = errdef.Storage(err)
		return false
	}
	c.done = true
	return false
}

// Notification returns the current element after a true Next.
func (c *Cursor) Notification() models.Notification { return c.cur }

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
		return fmt.Errorf("close notification cursor: %w", err)
	}
	return nil
}
