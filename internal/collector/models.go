package collector

import (
	"time"

	"signal-feed/internal/telemetry"
)

// BatchRecord is one accepted telemetry batch together with receipt metadata.
type BatchRecord struct {
	ReceivedAt time.Time       `json:"received_at"`
	RemoteAddr string          `json:"remote_addr"`
	Batch      telemetry.Batch `json:"batch"`
}

// Summary reports collector totals since startup. Batches and Events count
// everything accepted; Retained is how many batches are still held.
type Summary struct {
	Batches  int `json:"batches"`
	Events   int `json:"events"`
	Retained int `json:"retained"`
}
