package conversation

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"msgcore/pkg/errdef"
	"msgcore/pkg/models"
	"msgcore/pkg/store"
)

// Cursor lazily walks a user's conversations ordered by most recent
// message descending. Reset rewinds it to the start.
type Cursor struct {
	ctx    context.Context
	s      *Store
	userID string

	loaded bool
	ids    []string
	pos    int
	cur    models.Conversation
	err    error
}

type convActivity struct {
	id string
	ts int64
}

func (c *Cursor) load() {
	c.loaded = true
	prefix := store.UserConvPrefix(c.userID)
	var acts []convActivity
	err := c.s.st.ScanPrefix(prefix, func(key, val []byte) bool {
		id := string(key[len(prefix):])
		ts, _ := strconv.ParseInt(string(val), 10, 64)
		acts = append(acts, convActivity{id: id, ts: ts})
		return true
	})
	if err != nil {
		c.err = err
		return
	}
	sort.Slice(acts, func(i, j int) bool { return acts[i].ts > acts[j].ts })
	c.ids = make([]string, len(acts))
	for i, a := range acts {
		c.ids[i] = a.id
	}
}

// Next advances to the next conversation; false at the end or on error.
func (c *Cursor) Next() bool {
	if c.err != nil {
		return false
	}
	if !c.loaded {
		c.load()
		if c.err != nil {
			return false
		}
	}
	for c.pos < len(c.ids) {
		if err := c.ctx.Err(); err != nil {
			c.err = err
			return false
		}
		id := c.ids[c.pos]
		c.pos++
		conv, err := c.s.Get(c.ctx, id)
		if err != nil {
			// membership marker without meta: dissolved conversation, skip
			if errors.Is(err, errdef.ErrNotFound) {
				continue
			}
			c.err = err
			return false
		}
		c.cur = conv
		return true
	}
	return false
}

// Conversation returns the current element after a true Next.
func (c *Cursor) Conversation() models.Conversation { return c.cur }

// Err reports the first error the cursor hit.
func (c *Cursor) Err() error { return c.err }

// Reset rewinds the cursor so iteration restarts from the top, with fresh
// ordering.
func (c *Cursor) Reset() {
	c.loaded = false
	c.ids = nil
	c.pos = 0
	c.err = nil
}
