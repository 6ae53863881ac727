package repositories

import (
	"bytes"
	"fmt"
	"strconv"
)

// Badger key layout. Message keys embed the zero-padded message id so a
// forward prefix scan yields messages in assignment order; 20 digits cover
// the full uint64 range.
const (
	conversationPrefix = "conv:"
	messageSeqKey      = "seq:message"
	userEmailPrefix    = "user:"
	userIDPrefix       = "userid:"
)

func conversationKey(conversationID string) []byte {
	return []byte(conversationPrefix + conversationID)
}

func messageKey(conversationID string, messageID uint64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%020d", conversationID, messageID))
}

func messagePrefix(conversationID string) []byte {
	return []byte(fmt.Sprintf("msg:%s:", conversationID))
}

// messageIndexKey maps a bare message id to its conversation, for lookups
// that start from a message id alone (read receipts, edit, delete).
func messageIndexKey(messageID uint64) []byte {
	return []byte(fmt.Sprintf("msgix:%020d", messageID))
}

// messageIDFromKey recovers the message id from the tail of a message key.
func messageIDFromKey(key []byte) (uint64, error) {
	idx := bytes.LastIndexByte(key, ':')
	if idx < 0 || idx+1 >= len(key) {
		return 0, fmt.Errorf("malformed message key %q", key)
	}
	return strconv.ParseUint(string(key[idx+1:]), 10, 64)
}

func userEmailKey(email string) []byte {
	return []byte(userEmailPrefix + email)
}

func userIDKey(id string) []byte {
	return []byte(userIDPrefix + id)
}
