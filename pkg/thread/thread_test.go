package thread

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"msgcore/pkg/clock"
	"msgcore/pkg/conversation"
	"msgcore/pkg/directory"
	"msgcore/pkg/errdef"
	"msgcore/pkg/message"
	"msgcore/pkg/models"
	"msgcore/pkg/store"
)

func setup(t *testing.T) (*message.Store, *clock.Fake, models.Conversation) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	dir := directory.New(st)
	ctx := context.Background()
	require.NoError(t, dir.Put(ctx, models.User{ID: "alice", Handle: "alice"}))
	require.NoError(t, dir.Put(ctx, models.User{ID: "bob", Handle: "bob"}))
	convs := conversation.New(st, dir, clk)
	conv, err := convs.Create(ctx, []string{"alice", "bob"})
	require.NoError(t, err)
	return message.New(st, dir, convs, nil, clk, message.Limits{}), clk, conv
}

func TestMaterialize(t *testing.T) {
	msgs, clk, conv := setup(t)
	ctx := context.Background()

	//	root
	//	├── a
	//	│   └── a1
	//	└── b
	root, err := msgs.Send(ctx, conv.ID, "alice", "root", "")
	require.NoError(t, err)
	clk.Advance(time.Second)
	a, err := msgs.Send(ctx, conv.ID, "bob", "a", root.ID)
	require.NoError(t, err)
	clk.Advance(time.Second)
	b, err := msgs.Send(ctx, conv.ID, "alice", "b", root.ID)
	require.NoError(t, err)
	clk.Advance(time.Second)
	a1, err := msgs.Send(ctx, conv.ID, "alice", "a1", a.ID)
	require.NoError(t, err)

	node, err := New(msgs, 0).Materialize(ctx, root.ID)
	require.NoError(t, err)
	require.Equal(t, root.ID, node.ID)
	require.Len(t, node.Children, 2)
	// siblings ordered by send time
	require.Equal(t, a.ID, node.Children[0].ID)
	require.Equal(t, b.ID, node.Children[1].ID)
	require.Len(t, node.Children[0].Children, 1)
	require.Equal(t, a1.ID, node.Children[0].Children[0].ID)
	require.Empty(t, node.Children[1].Children)

	// a subtree materializes from any node
	sub, err := New(msgs, 0).Materialize(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, a.ID, sub.ID)
	require.Len(t, sub.Children, 1)
}

func TestMaterializeTombstone(t *testing.T) {
	msgs, _, conv := setup(t)
	ctx := context.Background()

	root, err := msgs.Send(ctx, conv.ID, "alice", "root", "")
	require.NoError(t, err)
	reply, err := msgs.Send(ctx, conv.ID, "bob", "reply", root.ID)
	require.NoError(t, err)
	require.NoError(t, msgs.SoftDelete(ctx, root.ID, "alice"))

	node, err := New(msgs, 0).Materialize(ctx, root.ID)
	require.NoError(t, err)
	require.True(t, node.Deleted)
	require.Equal(t, models.TombstoneBody, node.Body)
	require.Len(t, node.Children, 1)
	require.Equal(t, reply.ID, node.Children[0].ID)
}

func TestMaterializeMissing(t *testing.T) {
	msgs, _, _ := setup(t)
	_, err := New(msgs, 0).Materialize(context.Background(), "missing")
	require.ErrorIs(t, err, errdef.ErrNotFound)
}

func TestMaterializeDepthGuard(t *testing.T) {
	msgs, _, conv := setup(t)
	ctx := context.Background()

	root, err := msgs.Send(ctx, conv.ID, "alice", "root", "")
	require.NoError(t, err)
	parent := root
	for i := 0; i < 5; i++ {
		parent, err = msgs.Send(ctx, conv.ID, "bob", "r", parent.ID)
		require.NoError(t, err)
	}

	// a bound tighter than the chain trips the walk guard
	_, err = New(msgs, 3).Materialize(ctx, root.ID)
	require.ErrorIs(t, err, errdef.ErrThreadTooDeep)
}
