// Package directory resolves opaque user identifiers to participant
// records. Users are provisioned externally; the rest of the core only
// reads through Resolve.
package directory

import (
	"context"
	"encoding/json"
	"fmt"

	"msgcore/pkg/errdef"
	"msgcore/pkg/models"
	"msgcore/pkg/store"
)

type Directory struct {
	st *store.Store
}

func New(st *store.Store) *Directory { return &Directory{st: st} }

// Resolve returns the user record for id, or errdef.ErrNotFound.
func (d *Directory) Resolve(ctx context.Context, id string) (models.User, error) {
	var u models.User
	if err := ctx.Err(); err != nil {
		return u, err
	}
	if id == "" {
		return u, errdef.ErrNotFound
	}
	v, err := d.st.Get(store.UserKey(id))
	if err != nil {
		return u, err
	}
	if err := json.Unmarshal(v, &u); err != nil {
		return u, fmt.Errorf("invalid user record %s: %w", id, err)
	}
	return u, nil
}

// Put stores a user record. Provisioning path only; the core never calls
// this on behalf of a request.
func (d *Directory) Put(ctx context.Context, u models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if u.ID == "" {
		return fmt.Errorf("user id required")
	}
	if u.Role == "" {
		u.Role = models.RoleMember
	}
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user %s: %w", u.ID, err)
	}
	return d.st.Set(store.UserKey(u.ID), b)
}
