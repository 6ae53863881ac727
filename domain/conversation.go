package domain

import "time"

// Conversation is a named set of participants plus the ordered thread of
// messages between them. Membership can change over time; the conversation
// identity never does.
type Conversation struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Participants []string  `json:"participants"`
}

// HasParticipant reports whether userID is currently a member.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// IsPair reports whether the conversation is a 1:1 thread between exactly
// the two given users, regardless of order. Used for first-contact dedup.
func (c Conversation) IsPair(userA, userB string) bool {
	if len(c.Participants) != 2 {
		return false
	}
	return (c.Participants[0] == userA && c.Participants[1] == userB) ||
		(c.Participants[0] == userB && c.Participants[1] == userA)
}
