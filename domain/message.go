package domain

import "time"

// Message is an immutable chat event, identified by a store-assigned
// monotonic ID. ReceiverID is a hint carried for 1:1 threads; fan-out
// decisions never depend on it. ParentID, when set, points at an earlier
// message of the same conversation (a reply, not ownership).
type Message struct {
	ID             uint64               `json:"message_id"`
	ConversationID string               `json:"conversation_id"`
	SenderID       string               `json:"sender_id"`
	ReceiverID     string               `json:"receiver_id,omitempty"`
	Content        string               `json:"content"`
	ParentID       *uint64              `json:"parent_message_id,omitempty"`
	SentAt         time.Time            `json:"sent_at"`
	ReadAt         map[string]time.Time `json:"read_at,omitempty"`
}

// ReadBy reports whether the given participant has marked the message read.
func (m Message) ReadBy(userID string) bool {
	_, ok := m.ReadAt[userID]
	return ok
}
