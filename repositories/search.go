package repositories

import (
	"bandmate/domain"
	"context"
	"log/slog"
	"strconv"

	"github.com/blugelabs/bluge"
)

// SearchIndex is a Bluge full-text index over message content. It is a
// secondary structure: Badger stays the record of truth, and indexing
// failures are logged by callers rather than failing the send.
type SearchIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchIndex(path string, log *slog.Logger) (*SearchIndex, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	return &SearchIndex{writer: writer, log: log}, nil
}

func (s *SearchIndex) Close() error {
	return s.writer.Close()
}

// Index upserts one message document. Edits reuse the same id, so the index
// always reflects the latest content.
func (s *SearchIndex) Index(msg domain.Message) error {
	doc := bluge.NewDocument(strconv.FormatUint(msg.ID, 10)).
		AddField(bluge.NewTextField("content", msg.Content)).
		AddField(bluge.NewKeywordField("conversation", msg.ConversationID)).
		AddField(bluge.NewKeywordField("sender", msg.SenderID))
	return s.writer.Update(doc.ID(), doc)
}

func (s *SearchIndex) Remove(messageID uint64) error {
	return s.writer.Delete(bluge.Identifier(strconv.FormatUint(messageID, 10)))
}

// Search returns the ids of messages in the conversation matching the query
// terms, best match first.
func (s *SearchIndex) Search(ctx context.Context, conversationID, terms string, limit int) ([]uint64, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil {
			s.log.Warn("Closing index reader failed", "error", cerr)
		}
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField("content")).
		AddMust(bluge.NewTermQuery(conversationID).SetField("conversation"))

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, err
	}

	var ids []uint64
	match, err := iterator.Next()
	for err == nil && match != nil {
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				if id, perr := strconv.ParseUint(string(value), 10, 64); perr == nil {
					ids = append(ids, id)
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}
