package collector

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"

	"signal-feed/internal/telemetry"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	repo := NewInMemoryRepository(0)
	svc := NewService(repo)
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewHandler(svc, log, nil)
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/v1/events", func(r chi.Router) {
		r.Post("/", h.IngestBatch)
		r.Get("/recent", h.RecentBatches)
	})
	return r
}

func postBatch(t *testing.T, r http.Handler, batch telemetry.Batch) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(batch)
	if err != nil {
		t.Fatalf("marshal batch: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func sampleBatch(events ...telemetry.Event) telemetry.Batch {
	return telemetry.Batch{
		DeviceID:  "go-device-1",
		SessionID: "s-session-1",
		TS:        1700000000000,
		Events:    events,
	}
}

func TestHandler_IngestBatch(t *testing.T) {
	h := newTestHandler(t)
	r := newTestRouter(h)

	rec := postBatch(t, r, sampleBatch(
		telemetry.ViewStart("a1"),
		telemetry.TimeToFirstFrame(120),
	))
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
}

func TestHandler_IngestBatch_bad_request(t *testing.T) {
	h := newTestHandler(t)
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_IngestBatch_validation(t *testing.T) {
	tests := []struct {
		name  string
		batch telemetry.Batch
	}{
		{"missing device id", telemetry.Batch{SessionID: "s-1", Events: []telemetry.Event{telemetry.ViewStart("a1")}}},
		{"missing session id", telemetry.Batch{DeviceID: "go-1", Events: []telemetry.Event{telemetry.ViewStart("a1")}}},
		{"no events", sampleBatch()},
		{"unnamed event", sampleBatch(telemetry.Event{Timestamp: 1})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t)
			r := newTestRouter(h)

			rec := postBatch(t, r, tt.batch)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Errorf("expected 422, got %d", rec.Code)
			}

			// Rejected batches must not show up in the debug view.
			if got := h.svc.Totals().Batches; got != 0 {
				t.Errorf("totals.batches = %d after rejection, want 0", got)
			}
		})
	}
}

func TestHandler_RecentBatches(t *testing.T) {
	h := newTestHandler(t)
	r := newTestRouter(h)

	for _, id := range []string{"a1", "a2", "a3"} {
		if rec := postBatch(t, r, sampleBatch(telemetry.ViewStart(id))); rec.Code != http.StatusAccepted {
			t.Fatalf("setup: expected 202, got %d", rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/events/recent?limit=2", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Totals  Summary       `json:"totals"`
		Batches []BatchRecord `json:"batches"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if resp.Totals.Batches != 3 || resp.Totals.Events != 3 {
		t.Errorf("totals = %+v, want 3 batches and 3 events", resp.Totals)
	}
	if len(resp.Batches) != 2 {
		t.Fatalf("got %d batches, want 2 (limited)", len(resp.Batches))
	}
	// Newest first.
	if got := resp.Batches[0].Batch.Events[0].Props["video_id"]; got != "a3" {
		t.Errorf("first batch video_id = %v, want a3", got)
	}
}

func TestHandler_RecentBatches_bad_limit(t *testing.T) {
	h := newTestHandler(t)
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/v1/events/recent?limit=zero", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
