//go:generate go run go.uber.org/mock/mockgen -source=messaging_service.go -destination=../mocks/mock_messaging_service.go -package=mocks
package services

import (
	"bandmate/contract"
	"bandmate/domain"
	"bandmate/moderation"
	"context"
	"log/slog"

	"github.com/abadojack/whatlanggo"
)

// MessageIndex is the secondary full-text index over message content.
type MessageIndex interface {
	Index(msg domain.Message) error
	Remove(messageID uint64) error
	Search(ctx context.Context, conversationID, terms string, limit int) ([]uint64, error)
}

type IMessagingService interface {
	Send(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
	History(conversationID string) ([]domain.Message, error)
	Search(ctx context.Context, conversationID, terms string, limit int) ([]domain.Message, error)
	Edit(messageID uint64, requesterID, newContent string) (domain.Message, error)
	Delete(messageID uint64, requesterID string) (bool, error)
}

// MessageAppender is the durable store surface the send pipeline needs.
type MessageAppender interface {
	Append(cmd domain.SendMessageCommand) (domain.Message, error)
	Get(messageID uint64) (domain.Message, error)
	List(conversationID string) ([]domain.Message, error)
	Delete(messageID uint64, requesterID string) (bool, error)
	Edit(messageID uint64, requesterID, newContent string) (domain.Message, error)
}

// MessagingService is the single send pipeline both transports converge on:
// moderate, persist, index, then enqueue for best-effort live fan-out.
// Append failures abort the send; index and fan-out failures never do.
type MessagingService struct {
	log         *slog.Logger
	store       MessageAppender
	index       MessageIndex
	moderator   moderation.Moderator
	broadcaster contract.Broadcaster
}

func NewMessagingService(log *slog.Logger, store MessageAppender, index MessageIndex,
	moderator moderation.Moderator, broadcaster contract.Broadcaster) *MessagingService {
	return &MessagingService{
		log:         log,
		store:       store,
		index:       index,
		moderator:   moderator,
		broadcaster: broadcaster,
	}
}

func (s *MessagingService) Send(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	censored, foundWords := s.moderator.Censor(cmd.Content)
	if len(foundWords) > 0 {
		info := whatlanggo.Detect(cmd.Content)
		s.log.Warn("Message content censored",
			"sender", cmd.SenderID,
			"conversation", cmd.ConversationID,
			"words", len(foundWords),
			"lang", info.Lang.Iso6391())
		cmd.Content = censored
	}

	msg, err := s.store.Append(cmd)
	if err != nil {
		return domain.Message{}, err
	}

	if err := s.index.Index(msg); err != nil {
		s.log.Warn("Message indexing failed", "message", msg.ID, "error", err)
	}

	// Fire-and-forget: persistence is the record of truth, delivery is
	// best-effort on top of it.
	s.broadcaster.Enqueue(msg)
	return msg, nil
}

func (s *MessagingService) History(conversationID string) ([]domain.Message, error) {
	return s.store.List(conversationID)
}

func (s *MessagingService) Search(ctx context.Context, conversationID, terms string, limit int) ([]domain.Message, error) {
	ids, err := s.index.Search(ctx, conversationID, terms, limit)
	if err != nil {
		return nil, err
	}
	messages := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := s.store.Get(id)
		if err != nil {
			// Index may lag behind a delete; skip the stale hit.
			s.log.Debug("Search hit no longer in store", "message", id)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *MessagingService) Edit(messageID uint64, requesterID, newContent string) (domain.Message, error) {
	censored, _ := s.moderator.Censor(newContent)
	msg, err := s.store.Edit(messageID, requesterID, censored)
	if err != nil {
		return domain.Message{}, err
	}
	if err := s.index.Index(msg); err != nil {
		s.log.Warn("Message re-indexing failed", "message", msg.ID, "error", err)
	}
	return msg, nil
}

func (s *MessagingService) Delete(messageID uint64, requesterID string) (bool, error) {
	deleted, err := s.store.Delete(messageID, requesterID)
	if err != nil || !deleted {
		return deleted, err
	}
	if err := s.index.Remove(messageID); err != nil {
		s.log.Warn("Index removal failed", "message", messageID, "error", err)
	}
	return true, nil
}
