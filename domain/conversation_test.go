package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConversation_IsPair(t *testing.T) {
	req := require.New(t)
	pair := Conversation{ID: "c1", Participants: []string{"alice", "bob"}}

	req.True(pair.IsPair("alice", "bob"))
	req.True(pair.IsPair("bob", "alice"))
	req.False(pair.IsPair("alice", "clara"))

	group := Conversation{ID: "c2", Participants: []string{"alice", "bob", "clara"}}
	req.False(group.IsPair("alice", "bob"))
}

func TestConversation_HasParticipant(t *testing.T) {
	req := require.New(t)
	conv := Conversation{Participants: []string{"alice", "bob"}}

	req.True(conv.HasParticipant("alice"))
	req.False(conv.HasParticipant("clara"))
	req.False(Conversation{}.HasParticipant("alice"))
}

func TestMessage_ReadBy(t *testing.T) {
	req := require.New(t)
	msg := Message{ID: 1, ReadAt: map[string]time.Time{"bob": time.Now()}}

	req.True(msg.ReadBy("bob"))
	req.False(msg.ReadBy("alice"))
	req.False(Message{}.ReadBy("bob"))
}
