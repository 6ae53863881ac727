package services

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"bandmate/domain"
	"bandmate/errors"
	"bandmate/moderation"

	"github.com/stretchr/testify/require"
)

// fakeStore appends in memory and hands out ids sequentially.
type fakeStore struct {
	nextID   uint64
	messages map[uint64]domain.Message
	failNext error
}

func newFakeStore() *fakeStore {
	return &fakeStore{messages: make(map[uint64]domain.Message)}
}

func (f *fakeStore) Append(cmd domain.SendMessageCommand) (domain.Message, error) {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return domain.Message{}, err
	}
	f.nextID++
	msg := domain.Message{
		ID:             f.nextID,
		ConversationID: cmd.ConversationID,
		SenderID:       cmd.SenderID,
		Content:        cmd.Content,
		ParentID:       cmd.ParentID,
	}
	f.messages[msg.ID] = msg
	return msg, nil
}

func (f *fakeStore) Get(messageID uint64) (domain.Message, error) {
	msg, ok := f.messages[messageID]
	if !ok {
		return domain.Message{}, fmt.Errorf("%w: message %d", errors.ErrNotFound, messageID)
	}
	return msg, nil
}

func (f *fakeStore) List(conversationID string) ([]domain.Message, error) {
	var out []domain.Message
	for id := uint64(1); id <= f.nextID; id++ {
		if msg, ok := f.messages[id]; ok && msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (f *fakeStore) Delete(messageID uint64, requesterID string) (bool, error) {
	msg, ok := f.messages[messageID]
	if !ok || msg.SenderID != requesterID {
		return false, nil
	}
	delete(f.messages, messageID)
	return true, nil
}

func (f *fakeStore) Edit(messageID uint64, requesterID, newContent string) (domain.Message, error) {
	msg, ok := f.messages[messageID]
	if !ok {
		return domain.Message{}, fmt.Errorf("%w: message %d", errors.ErrNotFound, messageID)
	}
	if msg.SenderID != requesterID {
		return domain.Message{}, fmt.Errorf("%w: not the author", errors.ErrForbidden)
	}
	msg.Content = newContent
	f.messages[messageID] = msg
	return msg, nil
}

// fakeIndex records index operations and can serve canned search results.
type fakeIndex struct {
	indexed  []domain.Message
	removed  []uint64
	hits     []uint64
	indexErr error
}

func (f *fakeIndex) Index(msg domain.Message) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	f.indexed = append(f.indexed, msg)
	return nil
}

func (f *fakeIndex) Remove(messageID uint64) error {
	f.removed = append(f.removed, messageID)
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _, _ string, _ int) ([]uint64, error) {
	return f.hits, nil
}

type fakeBroadcaster struct {
	enqueued []domain.Message
}

func (f *fakeBroadcaster) Enqueue(msg domain.Message) {
	f.enqueued = append(f.enqueued, msg)
}

func newTestService(t *testing.T, store MessageAppender, index MessageIndex,
	broadcaster *fakeBroadcaster) *MessagingService {
	t.Helper()
	moderator, err := moderation.NewModerator([]string{"scamlink"}, '*')
	require.NoError(t, err)
	return NewMessagingService(slog.Default(), store, index, moderator, broadcaster)
}

func Test_Send_Persists_Indexes_And_Enqueues(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	index := &fakeIndex{}
	broadcaster := &fakeBroadcaster{}
	svc := newTestService(t, store, index, broadcaster)

	msg, err := svc.Send(context.Background(), domain.SendMessageCommand{
		ConversationID: "conv-1", SenderID: "alice", Content: "are you free friday?",
	})
	req.NoError(err)
	req.Equal(uint64(1), msg.ID)
	req.Len(index.indexed, 1)
	req.Len(broadcaster.enqueued, 1)
	req.Equal(msg, broadcaster.enqueued[0])
}

func Test_Send_Censors_Before_Persisting(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	index := &fakeIndex{}
	broadcaster := &fakeBroadcaster{}
	svc := newTestService(t, store, index, broadcaster)

	msg, err := svc.Send(context.Background(), domain.SendMessageCommand{
		ConversationID: "conv-1", SenderID: "alice", Content: "click this scamlink now",
	})
	req.NoError(err)

	// The stored, indexed and broadcast copies all carry the censored text
	req.NotContains(msg.Content, "scamlink")
	req.Contains(msg.Content, "********")
	stored, err := store.Get(msg.ID)
	req.NoError(err)
	req.Equal(msg.Content, stored.Content)
	req.Equal(msg.Content, index.indexed[0].Content)
	req.Equal(msg.Content, broadcaster.enqueued[0].Content)
}

func Test_Send_Aborts_On_Append_Failure(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	store.failNext = fmt.Errorf("%w: sender is not a participant", errors.ErrForbidden)
	index := &fakeIndex{}
	broadcaster := &fakeBroadcaster{}
	svc := newTestService(t, store, index, broadcaster)

	_, err := svc.Send(context.Background(), domain.SendMessageCommand{
		ConversationID: "conv-1", SenderID: "mallory", Content: "hi",
	})
	req.ErrorIs(err, errors.ErrForbidden)

	// Nothing downstream happened
	req.Empty(index.indexed)
	req.Empty(broadcaster.enqueued)
}

func Test_Send_Survives_Index_Failure(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	index := &fakeIndex{indexErr: fmt.Errorf("index closed")}
	broadcaster := &fakeBroadcaster{}
	svc := newTestService(t, store, index, broadcaster)

	msg, err := svc.Send(context.Background(), domain.SendMessageCommand{
		ConversationID: "conv-1", SenderID: "alice", Content: "still delivered",
	})

	// The send succeeds and fan-out still happens; only search lags
	req.NoError(err)
	req.Len(broadcaster.enqueued, 1)
	req.Equal(msg.ID, broadcaster.enqueued[0].ID)
}

func Test_Search_Skips_Stale_Hits(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	index := &fakeIndex{}
	broadcaster := &fakeBroadcaster{}
	svc := newTestService(t, store, index, broadcaster)

	kept, err := svc.Send(context.Background(), domain.SendMessageCommand{
		ConversationID: "conv-1", SenderID: "alice", Content: "keep me",
	})
	req.NoError(err)

	// The index still references a message the store no longer holds
	index.hits = []uint64{kept.ID, kept.ID + 100}

	found, err := svc.Search(context.Background(), "conv-1", "keep", 10)
	req.NoError(err)
	req.Len(found, 1)
	req.Equal(kept.ID, found[0].ID)
}

func Test_Edit_Censors_And_Reindexes(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	index := &fakeIndex{}
	broadcaster := &fakeBroadcaster{}
	svc := newTestService(t, store, index, broadcaster)

	msg, err := svc.Send(context.Background(), domain.SendMessageCommand{
		ConversationID: "conv-1", SenderID: "alice", Content: "original",
	})
	req.NoError(err)

	edited, err := svc.Edit(msg.ID, "alice", "updated with scamlink inside")
	req.NoError(err)
	req.NotContains(edited.Content, "scamlink")

	// The latest indexed document is the edited one
	req.Equal(edited.Content, index.indexed[len(index.indexed)-1].Content)

	_, err = svc.Edit(msg.ID, "bob", "hijack")
	req.ErrorIs(err, errors.ErrForbidden)
}

func Test_Delete_Purges_The_Index(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	index := &fakeIndex{}
	broadcaster := &fakeBroadcaster{}
	svc := newTestService(t, store, index, broadcaster)

	msg, err := svc.Send(context.Background(), domain.SendMessageCommand{
		ConversationID: "conv-1", SenderID: "alice", Content: "delete me",
	})
	req.NoError(err)

	// A non-author delete touches nothing
	deleted, err := svc.Delete(msg.ID, "bob")
	req.NoError(err)
	req.False(deleted)
	req.Empty(index.removed)

	deleted, err = svc.Delete(msg.ID, "alice")
	req.NoError(err)
	req.True(deleted)
	req.Equal([]uint64{msg.ID}, index.removed)
}
