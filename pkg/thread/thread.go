// Package thread materializes reply trees from the flat reply index.
package thread

import (
	"context"
	"fmt"

	"msgcore/pkg/errdef"
	"msgcore/pkg/message"
	"msgcore/pkg/models"
)

// Node is one message plus its direct replies, each ordered by send
// timestamp ascending.
type Node struct {
	models.Message
	Children []*Node `json:"children,omitempty"`
}

// Materializer builds reply trees rooted at a message.
type Materializer struct {
	msgs     *message.Store
	maxDepth int
}

func New(msgs *message.Store, maxDepth int) *Materializer {
	if maxDepth <= 0 {
		maxDepth = 64
	}
	return &Materializer{msgs: msgs, maxDepth: maxDepth}
}

// Materialize returns the subtree rooted at msgID. Tombstoned messages
// appear with their placeholder body so descendants stay reachable.
// Every message is visited exactly once; the send-time depth bound makes
// runaway recursion impossible, but the walk still enforces it against
// corrupt linkage.
func (m *Materializer) Materialize(ctx context.Context, msgID string) (*Node, error) {
	return m.build(ctx, msgID, 0)
}

func (m *Materializer) build(ctx context.Context, msgID string, depth int) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if depth > m.maxDepth {
		return nil, fmt.Errorf("%w: reply linkage deeper than %d at %s",
			errdef.ErrThreadTooDeep, m.maxDepth, msgID)
	}
	msg, err := m.msgs.Get(ctx, msgID)
	if err != nil {
		return nil, err
	}
	node := &Node{Message: msg}
	childIDs, err := m.msgs.ChildIDs(ctx, msgID)
	if err != nil {
		return nil, err
	}
	for _, cid := range childIDs {
		child, err := m.build(ctx, cid, depth+1)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}
