package collector

// BatchStore is the persistence abstraction for accepted batches.
// Implementations can be in-memory, file-based, or remote. The Repository
// uses BatchStore for all reads and writes and owns the retention policy;
// the store itself is a dumb ordered log.
type BatchStore interface {
	Append(rec BatchRecord)
	DropOldest(n int)
	Snapshot() []BatchRecord
	Len() int
}

// InMemoryBatchStore is an in-memory implementation of BatchStore.
type InMemoryBatchStore struct {
	records []BatchRecord
}

// NewInMemoryBatchStore returns a new empty in-memory store.
func NewInMemoryBatchStore() *InMemoryBatchStore {
	return &InMemoryBatchStore{}
}

// Append implements BatchStore.Append.
func (s *InMemoryBatchStore) Append(rec BatchRecord) {
	s.records = append(s.records, rec)
}

// DropOldest implements BatchStore.DropOldest.
func (s *InMemoryBatchStore) DropOldest(n int) {
	if n <= 0 {
		return
	}
	if n >= len(s.records) {
		s.records = nil
		return
	}
	s.records = append(s.records[:0:0], s.records[n:]...)
}

// Snapshot implements BatchStore.Snapshot, oldest first.
func (s *InMemoryBatchStore) Snapshot() []BatchRecord {
	out := make([]BatchRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Len implements BatchStore.Len.
func (s *InMemoryBatchStore) Len() int {
	return len(s.records)
}
