package domain

// SendMessageCommand carries one send request through the pipeline, whether
// it arrived over HTTP or over a live connection.
type SendMessageCommand struct {
	ConversationID string
	SenderID       string
	ReceiverID     string
	Content        string
	ParentID       *uint64
}

// CreateConversationCommand groups the inputs of conversation creation.
// The creator is always part of the final participant set.
type CreateConversationCommand struct {
	CreatorID      string
	ParticipantIDs []string
}
