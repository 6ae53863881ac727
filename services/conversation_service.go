package services

import (
	"bandmate/domain"
	"bandmate/repositories"
	"log/slog"
)

type IConversationService interface {
	CreateOrReuse(cmd domain.CreateConversationCommand) (domain.Conversation, error)
	Get(conversationID string) (domain.Conversation, error)
	ListForUser(userID string) ([]domain.Conversation, error)
	AddParticipant(conversationID, userID string) (bool, error)
	RemoveParticipant(conversationID, userID string) (bool, error)
	Delete(conversationID, requesterID string) (bool, error)
}

// ConversationService wraps the store and keeps the search index in step
// when a conversation delete cascades to its messages.
type ConversationService struct {
	log           *slog.Logger
	conversations repositories.IConversationStore
	index         MessageIndex
}

func NewConversationService(log *slog.Logger, conversations repositories.IConversationStore,
	index MessageIndex) *ConversationService {
	return &ConversationService{log: log, conversations: conversations, index: index}
}

func (s *ConversationService) CreateOrReuse(cmd domain.CreateConversationCommand) (domain.Conversation, error) {
	return s.conversations.CreateOrReuse(cmd)
}

func (s *ConversationService) Get(conversationID string) (domain.Conversation, error) {
	return s.conversations.Get(conversationID)
}

func (s *ConversationService) ListForUser(userID string) ([]domain.Conversation, error) {
	return s.conversations.ListForUser(userID)
}

func (s *ConversationService) AddParticipant(conversationID, userID string) (bool, error) {
	return s.conversations.AddParticipant(conversationID, userID)
}

func (s *ConversationService) RemoveParticipant(conversationID, userID string) (bool, error) {
	return s.conversations.RemoveParticipant(conversationID, userID)
}

func (s *ConversationService) Delete(conversationID, requesterID string) (bool, error) {
	deleted, messageIDs, err := s.conversations.Delete(conversationID, requesterID)
	if err != nil || !deleted {
		return deleted, err
	}
	for _, id := range messageIDs {
		if err := s.index.Remove(id); err != nil {
			s.log.Warn("Index removal failed after cascade delete", "message", id, "error", err)
		}
	}
	return true, nil
}
