// Package conversation owns conversation records and participant
// membership. The participant set is fixed at two or more on creation and
// only grows afterwards.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"msgcore/pkg/clock"
	"msgcore/pkg/directory"
	"msgcore/pkg/errdef"
	"msgcore/pkg/logger"
	"msgcore/pkg/models"
	"msgcore/pkg/store"
)

type Store struct {
	st  *store.Store
	dir *directory.Directory
	clk clock.Clock
}

func New(st *store.Store, dir *directory.Directory, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{st: st, dir: dir, clk: clk}
}

// Create validates and stores a new conversation. At least two distinct
// participant IDs are required and every ID must resolve in the directory.
func (s *Store) Create(ctx context.Context, participantIDs []string) (models.Conversation, error) {
	var conv models.Conversation

	seen := make(map[string]struct{}, len(participantIDs))
	distinct := make([]string, 0, len(participantIDs))
	for _, id := range participantIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		distinct = append(distinct, id)
	}
	if len(distinct) < 2 {
		return conv, fmt.Errorf("%w: need at least 2 distinct participants, got %d",
			errdef.ErrInvalidParticipants, len(distinct))
	}
	for _, id := range distinct {
		if _, err := s.dir.Resolve(ctx, id); err != nil {
			if errors.Is(err, errdef.ErrNotFound) {
				return conv, fmt.Errorf("%w: unknown user %s", errdef.ErrInvalidParticipants, id)
			}
			return conv, err
		}
	}

	now := s.clk.Now().UnixNano()
	conv = models.Conversation{
		ID:           uuid.NewString(),
		Participants: distinct,
		CreatedTS:    now,
	}
	b, err := json.Marshal(conv)
	if err != nil {
		return conv, fmt.Errorf("marshal conversation: %w", err)
	}

	batch := s.st.NewBatch()
	_ = batch.Set(store.ConvMetaKey(conv.ID), b, nil)
	for _, id := range distinct {
		_ = batch.Set(store.UserConvKey(id, conv.ID), []byte(strconv.FormatInt(now, 10)), nil)
	}
	if err := s.st.Commit(ctx, batch); err != nil {
		return conv, err
	}
	logger.Info("conversation_created", "conv", conv.ID, "participants", len(distinct))
	return conv, nil
}

// Get returns the conversation or errdef.ErrNotFound.
func (s *Store) Get(ctx context.Context, convID string) (models.Conversation, error) {
	var conv models.Conversation
	if err := ctx.Err(); err != nil {
		return conv, err
	}
	v, err := s.st.Get(store.ConvMetaKey(convID))
	if err != nil {
		return conv, err
	}
	if err := json.Unmarshal(v, &conv); err != nil {
		return conv, fmt.Errorf("invalid conversation record %s: %w", convID, err)
	}
	return conv, nil
}

// AddParticipant grows the membership of an existing conversation.
func (s *Store) AddParticipant(ctx context.Context, convID, userID string) (models.Conversation, error) {
	unlock := s.st.LockConv(convID)
	defer unlock()

	conv, err := s.Get(ctx, convID)
	if err != nil {
		return conv, err
	}
	if conv.HasParticipant(userID) {
		return conv, fmt.Errorf("%w: %s in %s", errdef.ErrAlreadyParticipant, userID, convID)
	}
	if _, err := s.dir.Resolve(ctx, userID); err != nil {
		return conv, err
	}

	conv.Participants = append(conv.Participants, userID)
	b, err := json.Marshal(conv)
	if err != nil {
		return conv, fmt.Errorf("marshal conversation: %w", err)
	}
	activity := conv.LastMsgTS
	if activity == 0 {
		activity = conv.CreatedTS
	}

	batch := s.st.NewBatch()
	_ = batch.Set(store.ConvMetaKey(conv.ID), b, nil)
	_ = batch.Set(store.UserConvKey(userID, conv.ID), []byte(strconv.FormatInt(activity, 10)), nil)
	if err := s.st.Commit(ctx, batch); err != nil {
		return conv, err
	}
	logger.Info("participant_added", "conv", convID, "user", userID)
	return conv, nil
}

// ListForUser returns a restartable cursor over the user's conversations,
// most recent message first.
func (s *Store) ListForUser(ctx context.Context, userID string) *Cursor {
	return &Cursor{ctx: ctx, s: s, userID: userID}
}
