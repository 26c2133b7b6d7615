package telemetry

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"signal-feed/internal/platform/metrics"
)

const (
	// DefaultDebounce is how long the bus waits after the last enqueue before
	// flushing. A burst of events arriving faster than this coalesces into a
	// single batch.
	DefaultDebounce = 200 * time.Millisecond

	// DefaultMaxBatch is the buffer size that triggers an immediate flush,
	// bypassing the debounce timer so a fast producer cannot grow the buffer
	// without bound.
	DefaultMaxBatch = 25

	defaultSendTimeout = 3 * time.Second
)

// Config configures a Bus. Endpoint, DeviceID, and SessionID are required;
// everything else has a default.
type Config struct {
	Endpoint   string
	DeviceID   string
	SessionID  string
	Debounce   time.Duration
	MaxBatch   int
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Bus buffers telemetry events and flushes them as one JSON batch per POST,
// either when the debounce timer fires or when the buffer reaches MaxBatch.
// Delivery is fire-and-forget: a failed send is logged and the batch is
// dropped, never retried. Enqueue never blocks on network I/O.
type Bus struct {
	endpoint  string
	deviceID  string
	sessionID string
	debounce  time.Duration
	maxBatch  int
	client    *http.Client
	log       *slog.Logger
	metrics   *metrics.Metrics

	mu     sync.Mutex
	buf    []Event
	timer  *time.Timer
	closed bool

	wg sync.WaitGroup
}

// NewBus returns a Bus ready to accept events.
func NewBus(cfg Config) *Bus {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultSendTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bus{
		endpoint:  cfg.Endpoint,
		deviceID:  cfg.DeviceID,
		sessionID: cfg.SessionID,
		debounce:  cfg.Debounce,
		maxBatch:  cfg.MaxBatch,
		client:    cfg.HTTPClient,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// Enqueue appends an event to the buffer and resets the debounce timer.
// If the event carries no timestamp, the current wall clock is stamped on it
// here, at enqueue time. Reaching the batch cap flushes immediately.
// Events enqueued after Close are dropped.
func (b *Bus) Enqueue(e Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if e.Timestamp == 0 {
		e.Timestamp = nowMillis()
	}
	b.buf = append(b.buf, e)

	if len(b.buf) >= b.maxBatch {
		events := b.swapLocked()
		b.mu.Unlock()
		b.dispatch(events)
		return
	}

	if b.timer == nil {
		b.timer = time.AfterFunc(b.debounce, b.FlushNow)
	} else {
		b.timer.Reset(b.debounce)
	}
	b.mu.Unlock()
}

// FlushNow atomically swaps the buffer for an empty one and, if it was
// non-empty, sends its contents as a single batch. Safe to call with an
// empty buffer.
func (b *Bus) FlushNow() {
	b.mu.Lock()
	events := b.swapLocked()
	b.mu.Unlock()
	b.dispatch(events)
}

// Close performs a final flush, rejects further events, and waits for
// in-flight sends to finish.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	events := b.swapLocked()
	b.mu.Unlock()

	b.dispatch(events)
	b.wg.Wait()
}

// Pending returns the number of buffered, not yet flushed events.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// swapLocked takes ownership of the buffer and stops the debounce timer.
// Caller must hold b.mu.
func (b *Bus) swapLocked() []Event {
	events := b.buf
	b.buf = nil
	if b.timer != nil {
		b.timer.Stop()
	}
	return events
}

func (b *Bus) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}
	batch := Batch{
		DeviceID:  b.deviceID,
		SessionID: b.sessionID,
		TS:        nowMillis(),
		Events:    events,
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.send(batch)
	}()
}

// send posts one batch. Failures are logged and the batch is discarded;
// telemetry is best-effort and a retry path would risk unbounded growth
// during sustained network loss.
func (b *Bus) send(batch Batch) {
	body, err := json.Marshal(batch)
	if err != nil {
		b.log.Warn("telemetry batch encode failed", slog.String("error", err.Error()))
		return
	}

	resp, err := b.client.Post(b.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		b.log.Warn("telemetry send failed",
			slog.Int("events", len(batch.Events)),
			slog.String("error", err.Error()))
		if b.metrics != nil {
			b.metrics.IncBatchesFailed()
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b.log.Warn("telemetry send rejected",
			slog.Int("events", len(batch.Events)),
			slog.Int("status", resp.StatusCode))
		if b.metrics != nil {
			b.metrics.IncBatchesFailed()
		}
		return
	}

	if b.metrics != nil {
		b.metrics.IncBatchesSent()
		b.metrics.AddEventsSent(len(batch.Events))
	}
}
