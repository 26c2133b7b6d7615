package collector

import (
	"errors"
	"fmt"
	"time"

	"signal-feed/internal/telemetry"
)

var (
	// ErrMissingIdentity rejects a batch without a device or session id.
	ErrMissingIdentity = errors.New("batch missing device or session id")

	// ErrNoEvents rejects a batch that carries no events.
	ErrNoEvents = errors.New("batch contains no events")
)

// Service validates incoming batches and delegates storage to Repository.
type Service struct {
	repo Repository
}

// NewService returns a Service that uses repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Accept validates and records one batch, returning how many events it
// carried. Validation failures leave the repository untouched.
func (s *Service) Accept(remoteAddr string, batch telemetry.Batch) (int, error) {
	if batch.DeviceID == "" || batch.SessionID == "" {
		return 0, ErrMissingIdentity
	}
	if len(batch.Events) == 0 {
		return 0, ErrNoEvents
	}
	for i, e := range batch.Events {
		if e.Name == "" {
			return 0, fmt.Errorf("event %d missing name", i)
		}
	}

	s.repo.Append(BatchRecord{
		ReceivedAt: time.Now().UTC(),
		RemoteAddr: remoteAddr,
		Batch:      batch,
	})
	return len(batch.Events), nil
}

// Recent returns up to limit of the most recently accepted batches, newest
// first.
func (s *Service) Recent(limit int) []BatchRecord {
	return s.repo.Recent(limit)
}

// Totals returns collector counters since startup.
func (s *Service) Totals() Summary {
	return s.repo.Totals()
}
