//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_store.go -package=mocks
package repositories

import (
	"bandmate/domain"
	"bandmate/errors"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IConversationStore interface {
	CreateOrReuse(cmd domain.CreateConversationCommand) (domain.Conversation, error)
	Get(conversationID string) (domain.Conversation, error)
	Participants(conversationID string) ([]string, error)
	AddParticipant(conversationID, userID string) (bool, error)
	RemoveParticipant(conversationID, userID string) (bool, error)
	ListForUser(userID string) ([]domain.Conversation, error)
	Delete(conversationID, requesterID string) (bool, []uint64, error)
}

// ConversationStore persists conversations and their membership in BadgerDB.
// The mutex serializes the search-then-create sequence of CreateOrReuse so
// concurrent first-contact attempts cannot create two 1:1 conversations for
// the same pair.
type ConversationStore struct {
	db  *badger.DB
	log *slog.Logger
	mu  sync.Mutex
}

func NewConversationStore(db *badger.DB, log *slog.Logger) *ConversationStore {
	return &ConversationStore{db: db, log: log}
}

type diskConversation struct {
	ID           string    `cbor:"id"`
	CreatedAt    time.Time `cbor:"created_at"`
	Participants []string  `cbor:"participants"`
}

// CreateOrReuse returns the single existing 1:1 conversation for an exactly-
// two participant set, or creates a fresh conversation otherwise. The creator
// is always part of the final set; the set is deduplicated and must keep at
// least two members.
func (c *ConversationStore) CreateOrReuse(cmd domain.CreateConversationCommand) (domain.Conversation, error) {
	members := lo.Uniq(append([]string{cmd.CreatorID}, cmd.ParticipantIDs...))
	members = lo.Filter(members, func(id string, _ int) bool { return id != "" })
	if len(members) < 2 {
		return domain.Conversation{}, fmt.Errorf("%w: a conversation needs at least two participants", errors.ErrInvalidArgument)
	}
	sort.Strings(members)

	c.mu.Lock()
	defer c.mu.Unlock()

	var out domain.Conversation
	err := update(c.db, func(txn *badger.Txn) error {
		if len(members) == 2 {
			existing, err := findPairConversation(txn, members[0], members[1])
			if err != nil {
				return err
			}
			if existing != nil {
				out = toConversation(*existing)
				return nil
			}
		}

		rec := diskConversation{
			ID:           uuid.NewString(),
			CreatedAt:    time.Now().UTC(),
			Participants: members,
		}
		if err := writeConversation(txn, rec); err != nil {
			return err
		}
		out = toConversation(rec)
		c.log.Debug("Conversation created", "conversation", rec.ID, "participants", len(members))
		return nil
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return out, nil
}

func (c *ConversationStore) Get(conversationID string) (domain.Conversation, error) {
	var out domain.Conversation
	err := c.db.View(func(txn *badger.Txn) error {
		rec, err := readConversation(txn, conversationID)
		if err != nil {
			return err
		}
		out = toConversation(rec)
		return nil
	})
	return out, err
}

func (c *ConversationStore) Participants(conversationID string) ([]string, error) {
	conv, err := c.Get(conversationID)
	if err != nil {
		return nil, err
	}
	return conv.Participants, nil
}

// AddParticipant reports false when the conversation does not exist or the
// user is already a member.
func (c *ConversationStore) AddParticipant(conversationID, userID string) (bool, error) {
	added := false
	err := update(c.db, func(txn *badger.Txn) error {
		added = false
		rec, err := readConversation(txn, conversationID)
		if err != nil {
			if stderrors.Is(err, errors.ErrNotFound) {
				return nil
			}
			return err
		}
		if lo.Contains(rec.Participants, userID) {
			return nil
		}
		rec.Participants = append(rec.Participants, userID)
		sort.Strings(rec.Participants)
		if err := writeConversation(txn, rec); err != nil {
			return err
		}
		added = true
		return nil
	})
	return added, err
}

// RemoveParticipant reports false when the user is not currently a member.
// History stays in place; only live delivery stops.
func (c *ConversationStore) RemoveParticipant(conversationID, userID string) (bool, error) {
	removed := false
	err := update(c.db, func(txn *badger.Txn) error {
		removed = false
		rec, err := readConversation(txn, conversationID)
		if err != nil {
			if stderrors.Is(err, errors.ErrNotFound) {
				return nil
			}
			return err
		}
		if !lo.Contains(rec.Participants, userID) {
			return nil
		}
		rec.Participants = lo.Filter(rec.Participants, func(id string, _ int) bool { return id != userID })
		if err := writeConversation(txn, rec); err != nil {
			return err
		}
		removed = true
		return nil
	})
	return removed, err
}

func (c *ConversationStore) ListForUser(userID string) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(conversationPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec diskConversation
			if err := it.Item().Value(func(val []byte) error {
				return cbor.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if lo.Contains(rec.Participants, userID) {
				out = append(out, toConversation(rec))
			}
		}
		return nil
	})
	return out, err
}

// Delete removes the conversation and cascades to every message it holds.
// Only a current participant may delete. It returns the ids of the removed
// messages so callers can purge secondary indexes.
func (c *ConversationStore) Delete(conversationID, requesterID string) (bool, []uint64, error) {
	deleted := false
	var messageIDs []uint64
	err := update(c.db, func(txn *badger.Txn) error {
		deleted = false
		messageIDs = nil
		rec, err := readConversation(txn, conversationID)
		if err != nil {
			if stderrors.Is(err, errors.ErrNotFound) {
				return nil
			}
			return err
		}
		if !lo.Contains(rec.Participants, requesterID) {
			return nil
		}

		// Collect message keys first, delete after: mutating while
		// iterating the same prefix is undefined.
		prefix := messagePrefix(conversationID)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
			if id, err := messageIDFromKey(it.Item().Key()); err == nil {
				messageIDs = append(messageIDs, id)
			}
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		for _, id := range messageIDs {
			if err := txn.Delete(messageIndexKey(id)); err != nil {
				return err
			}
		}
		if err := txn.Delete(conversationKey(conversationID)); err != nil {
			return err
		}
		deleted = true
		c.log.Info("Conversation deleted", "conversation", conversationID, "messages", len(messageIDs))
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	if !deleted {
		return false, nil, nil
	}
	return true, messageIDs, nil
}

func findPairConversation(txn *badger.Txn, userA, userB string) (*diskConversation, error) {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	prefix := []byte(conversationPrefix)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var rec diskConversation
		if err := it.Item().Value(func(val []byte) error {
			return cbor.Unmarshal(val, &rec)
		}); err != nil {
			return nil, err
		}
		if toConversation(rec).IsPair(userA, userB) {
			return &rec, nil
		}
	}
	return nil, nil
}

func readConversation(txn *badger.Txn, conversationID string) (diskConversation, error) {
	item, err := txn.Get(conversationKey(conversationID))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return diskConversation{}, fmt.Errorf("%w: conversation %s", errors.ErrNotFound, conversationID)
	}
	if err != nil {
		return diskConversation{}, err
	}
	var rec diskConversation
	if err := item.Value(func(val []byte) error {
		return cbor.Unmarshal(val, &rec)
	}); err != nil {
		return diskConversation{}, err
	}
	return rec, nil
}

func writeConversation(txn *badger.Txn, rec diskConversation) error {
	data, err := recordEnc.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set(conversationKey(rec.ID), data)
}

func toConversation(rec diskConversation) domain.Conversation {
	return domain.Conversation{
		ID:           rec.ID,
		CreatedAt:    rec.CreatedAt.UTC(),
		Participants: rec.Participants,
	}
}
