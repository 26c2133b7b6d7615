package telemetry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectorRecorder is a thread-safe stand-in for the events endpoint.
type collectorRecorder struct {
	mu      sync.Mutex
	batches []Batch
	status  int
}

func (c *collectorRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var batch Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	c.mu.Lock()
	c.batches = append(c.batches, batch)
	status := c.status
	c.mu.Unlock()
	if status == 0 {
		status = http.StatusAccepted
	}
	w.WriteHeader(status)
}

func (c *collectorRecorder) snapshot() []Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Batch, len(c.batches))
	copy(out, c.batches)
	return out
}

func newTestBus(t *testing.T, rec *collectorRecorder, debounce time.Duration, maxBatch int) *Bus {
	t.Helper()
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)
	return NewBus(Config{
		Endpoint:  srv.URL,
		DeviceID:  "go-test-device",
		SessionID: "s-test",
		Debounce:  debounce,
		MaxBatch:  maxBatch,
	})
}

func waitForBatches(t *testing.T, rec *collectorRecorder, n int) []Batch {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := rec.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d batches, got %d", n, len(rec.snapshot()))
	return nil
}

func TestBus_debounce_coalesces_burst(t *testing.T) {
	rec := &collectorRecorder{}
	bus := newTestBus(t, rec, 200*time.Millisecond, 25)
	defer bus.Close()

	// Five events 50ms apart: every enqueue resets the 200ms timer, so the
	// whole burst must land in exactly one batch.
	for i := 0; i < 5; i++ {
		bus.Enqueue(Event{Name: "view_start", Props: map[string]any{"i": i}})
		time.Sleep(50 * time.Millisecond)
	}

	batches := waitForBatches(t, rec, 1)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Events, 5)
	for i, e := range batches[0].Events {
		assert.EqualValues(t, i, e.Props["i"], "events must keep enqueue order")
	}

	// No stray second flush after the burst settles.
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1)
}

func TestBus_batch_cap_bypasses_debounce(t *testing.T) {
	rec := &collectorRecorder{}
	bus := newTestBus(t, rec, time.Hour, 25)
	defer bus.Close()

	for i := 0; i < 25; i++ {
		bus.Enqueue(Event{Name: "rebuffer"})
	}

	// The cap fires immediately; the hour-long debounce never gets a chance.
	batches := waitForBatches(t, rec, 1)
	require.Len(t, batches[0].Events, 25)
	assert.Equal(t, 0, bus.Pending())
}

func TestBus_flush_empty_is_noop(t *testing.T) {
	rec := &collectorRecorder{}
	bus := newTestBus(t, rec, 200*time.Millisecond, 25)
	defer bus.Close()

	bus.FlushNow()
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestBus_identity_on_batch_not_events(t *testing.T) {
	rec := &collectorRecorder{}
	bus := newTestBus(t, rec, 10*time.Millisecond, 25)
	defer bus.Close()

	bus.Enqueue(ViewStart("a1"))
	batches := waitForBatches(t, rec, 1)

	require.Equal(t, "go-test-device", batches[0].DeviceID)
	require.Equal(t, "s-test", batches[0].SessionID)
	assert.NotZero(t, batches[0].TS)
	assert.NotZero(t, batches[0].Events[0].Timestamp)
}

func TestBus_timestamp_assigned_at_enqueue(t *testing.T) {
	rec := &collectorRecorder{}
	bus := newTestBus(t, rec, 150*time.Millisecond, 25)
	defer bus.Close()

	before := time.Now().UnixMilli()
	bus.Enqueue(Event{Name: "view_start"})
	after := time.Now().UnixMilli()

	batches := waitForBatches(t, rec, 1)
	ts := batches[0].Events[0].Timestamp
	assert.GreaterOrEqual(t, ts, before)
	assert.LessOrEqual(t, ts, after, "timestamp must come from enqueue, not send")
}

func TestBus_failed_send_is_dropped(t *testing.T) {
	rec := &collectorRecorder{status: http.StatusInternalServerError}
	bus := newTestBus(t, rec, 10*time.Millisecond, 25)

	bus.Enqueue(ViewStart("a1"))
	waitForBatches(t, rec, 1)
	bus.Close()

	// Exactly one attempt: the batch is discarded, never requeued.
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1)
	assert.Equal(t, 0, bus.Pending())
}

func TestBus_close_flushes_and_rejects(t *testing.T) {
	rec := &collectorRecorder{}
	bus := newTestBus(t, rec, time.Hour, 25)

	bus.Enqueue(ViewStart("a1"))
	bus.Close()

	batches := waitForBatches(t, rec, 1)
	require.Len(t, batches[0].Events, 1)

	bus.Enqueue(ViewStart("a2"))
	assert.Equal(t, 0, bus.Pending(), "events after Close are dropped")
}
