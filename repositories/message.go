//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_store.go -package=mocks
package repositories

import (
	"bandmate/domain"
	"bandmate/errors"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/samber/lo"
)

type IMessageStore interface {
	Append(cmd domain.SendMessageCommand) (domain.Message, error)
	Get(messageID uint64) (domain.Message, error)
	List(conversationID string) ([]domain.Message, error)
	MarkRead(messageID uint64, readerID string) (bool, error)
	Delete(messageID uint64, requesterID string) (bool, error)
	Edit(messageID uint64, requesterID, newContent string) (domain.Message, error)
}

// MessageStore persists messages in BadgerDB. Ids come from a durable
// counter read and advanced inside the append transaction, so they are
// monotonic across restarts; the mutex serializes appends so SentAt is
// non-decreasing per conversation even under concurrent senders.
type MessageStore struct {
	db         *badger.DB
	log        *slog.Logger
	maxContent int

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewMessageStore(db *badger.DB, log *slog.Logger, maxContentLength int) *MessageStore {
	return &MessageStore{
		db:         db,
		log:        log,
		maxContent: maxContentLength,
		lastSent:   make(map[string]time.Time),
	}
}

type diskMessage struct {
	ID             uint64               `cbor:"id"`
	ConversationID string               `cbor:"conversation_id"`
	SenderID       string               `cbor:"sender_id"`
	ReceiverID     string               `cbor:"receiver_id,omitempty"`
	Content        string               `cbor:"content"`
	ParentID       *uint64              `cbor:"parent_id,omitempty"`
	SentAt         time.Time            `cbor:"sent_at"`
	ReadAt         map[string]time.Time `cbor:"read_at,omitempty"`
}

// Append validates the command against the conversation, assigns the next
// message id and timestamp, and persists exactly one record. The whole
// sequence runs in a single Badger update transaction.
func (m *MessageStore) Append(cmd domain.SendMessageCommand) (domain.Message, error) {
	if err := m.validateContent(cmd.Content); err != nil {
		return domain.Message{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out domain.Message
	err := update(m.db, func(txn *badger.Txn) error {
		conv, err := readConversation(txn, cmd.ConversationID)
		if err != nil {
			return err
		}
		if !lo.Contains(conv.Participants, cmd.SenderID) {
			return fmt.Errorf("%w: sender %s is not a participant of conversation %s",
				errors.ErrForbidden, cmd.SenderID, cmd.ConversationID)
		}
		if cmd.ParentID != nil {
			parentConv, err := readMessageIndex(txn, *cmd.ParentID)
			if err != nil || parentConv != cmd.ConversationID {
				return fmt.Errorf("%w: parent message %d does not belong to conversation %s",
					errors.ErrInvalidArgument, *cmd.ParentID, cmd.ConversationID)
			}
		}

		id, err := nextMessageID(txn)
		if err != nil {
			return err
		}

		// Wall clocks can step backwards; clamp so the per-conversation
		// ordering invariant holds regardless. On the first append after a
		// restart the clamp is seeded from the newest stored message, so a
		// backwards step across restarts cannot regress the order either.
		if _, ok := m.lastSent[cmd.ConversationID]; !ok {
			last, err := lastSentAt(txn, cmd.ConversationID)
			if err != nil {
				return err
			}
			if !last.IsZero() {
				m.lastSent[cmd.ConversationID] = last
			}
		}
		sentAt := time.Now().UTC()
		if last, ok := m.lastSent[cmd.ConversationID]; ok && sentAt.Before(last) {
			sentAt = last
		}
		m.lastSent[cmd.ConversationID] = sentAt

		rec := diskMessage{
			ID:             id,
			ConversationID: cmd.ConversationID,
			SenderID:       cmd.SenderID,
			ReceiverID:     cmd.ReceiverID,
			Content:        cmd.Content,
			ParentID:       cmd.ParentID,
			SentAt:         sentAt,
		}
		if err := writeMessage(txn, rec); err != nil {
			return err
		}
		if err := txn.Set(messageIndexKey(id), []byte(cmd.ConversationID)); err != nil {
			return err
		}
		out = toMessage(rec)
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	m.log.Debug("Message appended", "conversation", out.ConversationID, "message", out.ID)
	return out, nil
}

func (m *MessageStore) Get(messageID uint64) (domain.Message, error) {
	var out domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		rec, err := readMessage(txn, messageID)
		if err != nil {
			return err
		}
		out = toMessage(rec)
		return nil
	})
	return out, err
}

// List re-reads the whole thread from disk on every call. The key scheme
// makes a forward prefix scan come back in id order, which matches the
// (SentAt, id) contract because both are assigned monotonically.
func (m *MessageStore) List(conversationID string) ([]domain.Message, error) {
	var out []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := messagePrefix(conversationID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec diskMessage
			if err := it.Item().Value(func(val []byte) error {
				return cbor.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, toMessage(rec))
		}
		return nil
	})
	return out, err
}

// MarkRead records the read timestamp for a participant. Re-marking is a
// successful no-op; false means the message does not exist or the reader is
// not a participant of its conversation.
func (m *MessageStore) MarkRead(messageID uint64, readerID string) (bool, error) {
	marked := false
	err := update(m.db, func(txn *badger.Txn) error {
		marked = false
		rec, err := readMessage(txn, messageID)
		if err != nil {
			if stderrors.Is(err, errors.ErrNotFound) {
				return nil
			}
			return err
		}
		conv, err := readConversation(txn, rec.ConversationID)
		if err != nil {
			if stderrors.Is(err, errors.ErrNotFound) {
				return nil
			}
			return err
		}
		if !lo.Contains(conv.Participants, readerID) {
			return nil
		}
		if _, ok := rec.ReadAt[readerID]; ok {
			marked = true
			return nil
		}
		if rec.ReadAt == nil {
			rec.ReadAt = make(map[string]time.Time)
		}
		rec.ReadAt[readerID] = time.Now().UTC()
		if err := writeMessage(txn, rec); err != nil {
			return err
		}
		marked = true
		return nil
	})
	return marked, err
}

// Delete removes a message. Authorship, not participation, gates deletion.
func (m *MessageStore) Delete(messageID uint64, requesterID string) (bool, error) {
	deleted := false
	err := update(m.db, func(txn *badger.Txn) error {
		deleted = false
		rec, err := readMessage(txn, messageID)
		if err != nil {
			if stderrors.Is(err, errors.ErrNotFound) {
				return nil
			}
			return err
		}
		if rec.SenderID != requesterID {
			return nil
		}
		if err := txn.Delete(messageKey(rec.ConversationID, rec.ID)); err != nil {
			return err
		}
		if err := txn.Delete(messageIndexKey(rec.ID)); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// Edit replaces the content of an own message. The same authorship gate as
// Delete applies; SentAt and id are untouched.
func (m *MessageStore) Edit(messageID uint64, requesterID, newContent string) (domain.Message, error) {
	if err := m.validateContent(newContent); err != nil {
		return domain.Message{}, err
	}
	var out domain.Message
	err := update(m.db, func(txn *badger.Txn) error {
		rec, err := readMessage(txn, messageID)
		if err != nil {
			return err
		}
		if rec.SenderID != requesterID {
			return fmt.Errorf("%w: only the author may edit message %d", errors.ErrForbidden, messageID)
		}
		rec.Content = newContent
		if err := writeMessage(txn, rec); err != nil {
			return err
		}
		out = toMessage(rec)
		return nil
	})
	return out, err
}

func (m *MessageStore) validateContent(content string) error {
	if content == "" {
		return fmt.Errorf("%w: empty content", errors.ErrInvalidArgument)
	}
	if m.maxContent > 0 && len(content) > m.maxContent {
		return fmt.Errorf("%w: content exceeds %d bytes", errors.ErrInvalidArgument, m.maxContent)
	}
	return nil
}

// nextMessageID reads and advances the durable message counter within the
// caller's transaction, so id assignment commits or fails with the record.
func nextMessageID(txn *badger.Txn) (uint64, error) {
	var current uint64
	item, err := txn.Get([]byte(messageSeqKey))
	switch {
	case stderrors.Is(err, badger.ErrKeyNotFound):
		current = 0
	case err != nil:
		return 0, err
	default:
		if err := item.Value(func(val []byte) error {
			parsed, err := strconv.ParseUint(string(val), 10, 64)
			current = parsed
			return err
		}); err != nil {
			return 0, err
		}
	}
	next := current + 1
	if err := txn.Set([]byte(messageSeqKey), []byte(strconv.FormatUint(next, 10))); err != nil {
		return 0, err
	}
	return next, nil
}

func readMessageIndex(txn *badger.Txn, messageID uint64) (string, error) {
	item, err := txn.Get(messageIndexKey(messageID))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: message %d", errors.ErrNotFound, messageID)
	}
	if err != nil {
		return "", err
	}
	var conversationID string
	err = item.Value(func(val []byte) error {
		conversationID = string(val)
		return nil
	})
	return conversationID, err
}

func readMessage(txn *badger.Txn, messageID uint64) (diskMessage, error) {
	conversationID, err := readMessageIndex(txn, messageID)
	if err != nil {
		return diskMessage{}, err
	}
	item, err := txn.Get(messageKey(conversationID, messageID))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return diskMessage{}, fmt.Errorf("%w: message %d", errors.ErrNotFound, messageID)
	}
	if err != nil {
		return diskMessage{}, err
	}
	var rec diskMessage
	if err := item.Value(func(val []byte) error {
		return cbor.Unmarshal(val, &rec)
	}); err != nil {
		return diskMessage{}, err
	}
	return rec, nil
}

func writeMessage(txn *badger.Txn, rec diskMessage) error {
	data, err := recordEnc.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set(messageKey(rec.ConversationID, rec.ID), data)
}

// lastSentAt returns the timestamp of the conversation's newest message, or
// the zero time when it has none. The zero-padded id in the key makes the
// last key under the prefix the newest message, one reverse seek away.
func lastSentAt(txn *badger.Txn, conversationID string) (time.Time, error) {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := messagePrefix(conversationID)
	it.Seek(append(append([]byte{}, prefix...), 0xff))
	if !it.ValidForPrefix(prefix) {
		return time.Time{}, nil
	}
	var rec diskMessage
	if err := it.Item().Value(func(val []byte) error {
		return cbor.Unmarshal(val, &rec)
	}); err != nil {
		return time.Time{}, err
	}
	return rec.SentAt.UTC(), nil
}

// toMessage maps a stored record to the domain type. Timestamps come back
// from the decoder in whatever zone it picked, so they are pinned to UTC to
// match what Append handed out.
func toMessage(rec diskMessage) domain.Message {
	var readAt map[string]time.Time
	if rec.ReadAt != nil {
		readAt = make(map[string]time.Time, len(rec.ReadAt))
		for reader, at := range rec.ReadAt {
			readAt[reader] = at.UTC()
		}
	}
	return domain.Message{
		ID:             rec.ID,
		ConversationID: rec.ConversationID,
		SenderID:       rec.SenderID,
		ReceiverID:     rec.ReceiverID,
		Content:        rec.Content,
		ParentID:       rec.ParentID,
		SentAt:         rec.SentAt.UTC(),
		ReadAt:         readAt,
	}
}
