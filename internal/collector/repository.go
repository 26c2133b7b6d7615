package collector

import (
	"sync"
)

// DefaultRetention is the default number of most recent batches kept. Older
// batches fall off the front so a long-running collector stays bounded.
const DefaultRetention = 256

// Repository defines the concurrency-safe contract for recording and
// inspecting accepted telemetry batches.
type Repository interface {
	// Append records an accepted batch, evicting the oldest batches when
	// the retention limit is exceeded.
	Append(rec BatchRecord)

	// Recent returns up to limit of the most recently accepted batches,
	// newest first. limit <= 0 returns everything retained.
	Recent(limit int) []BatchRecord

	// Totals returns running counters plus the current retained count.
	Totals() Summary

	// RetainedCount returns the number of batches currently held.
	// Used for metrics.
	RetainedCount() int
}

// InMemoryRepository is a concurrency-safe in-memory implementation of
// Repository with bounded retention.
type InMemoryRepository struct {
	mu        sync.RWMutex
	store     BatchStore
	retention int
	batches   int
	events    int
}

// NewInMemoryRepository constructs a repository with a default in-memory
// store. If retention <= 0, DefaultRetention is used.
func NewInMemoryRepository(retention int) *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryBatchStore(), retention)
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given
// BatchStore. Useful for testing or for plugging in a different backend.
func NewInMemoryRepositoryWithStore(store BatchStore, retention int) *InMemoryRepository {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &InMemoryRepository{store: store, retention: retention}
}

// Append implements Repository.Append.
func (r *InMemoryRepository) Append(rec BatchRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.store.Append(rec)
	if over := r.store.Len() - r.retention; over > 0 {
		r.store.DropOldest(over)
	}
	r.batches++
	r.events += len(rec.Batch.Events)
}

// Recent implements Repository.Recent.
func (r *InMemoryRepository) Recent(limit int) []BatchRecord {
	r.mu.RLock()
	snap := r.store.Snapshot()
	r.mu.RUnlock()

	// Reverse in place so the newest batch comes first.
	for i, j := 0, len(snap)-1; i < j; i, j = i+1, j-1 {
		snap[i], snap[j] = snap[j], snap[i]
	}
	if limit > 0 && len(snap) > limit {
		snap = snap[:limit]
	}
	return snap
}

// Totals implements Repository.Totals.
func (r *InMemoryRepository) Totals() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Summary{
		Batches:  r.batches,
		Events:   r.events,
		Retained: r.store.Len(),
	}
}

// RetainedCount implements Repository.RetainedCount.
func (r *InMemoryRepository) RetainedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.Len()
}
