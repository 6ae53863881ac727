package services

// MessageReader is the store surface read receipts need.
type MessageReader interface {
	MarkRead(messageID uint64, readerID string) (bool, error)
}

// ReceiptService wraps the store's MarkRead. It exists as its own component
// because its authorization gate (participant) differs from edit and delete
// (author only). Re-marking an already-read message succeeds without a
// write.
type ReceiptService struct {
	store MessageReader
}

func NewReceiptService(store MessageReader) *ReceiptService {
	return &ReceiptService{store: store}
}

func (s *ReceiptService) MarkRead(messageID uint64, readerID string) (bool, error) {
	return s.store.MarkRead(messageID, readerID)
}
