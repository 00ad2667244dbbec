// Package policy decides whether an actor may read or write within a
// conversation. Pure evaluation over the inputs; no stored state.
package policy

import "msgcore/pkg/models"

// Action is the kind of access being evaluated.
type Action int

const (
	ActionRead Action = iota
	ActionWrite
)

// Evaluator applies the participant rule, optionally letting directory
// admins through regardless of membership.
type Evaluator struct {
	AdminBypass bool
}

// CanAccess reports whether actor may perform action against the
// conversation. Reads and writes share the participant rule, so the
// action does not yet influence the outcome; AdminBypass extends access
// to role=admin actors.
func (e Evaluator) CanAccess(actor models.User, conv models.Conversation, action Action) bool {
	if conv.HasParticipant(actor.ID) {
		return true
	}
	if e.AdminBypass && actor.Role == models.RoleAdmin {
		return true
	}
	return false
}
