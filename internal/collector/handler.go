package collector

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"signal-feed/internal/platform/metrics"
	"signal-feed/internal/telemetry"
)

const defaultRecentLimit = 50

// Handler exposes collector HTTP endpoints using go-chi.
type Handler struct {
	svc     *Service
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler that uses the given Service, Logger, and
// optional Metrics. Metrics may be nil to disable metric recording (e.g. in
// tests).
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, log: log, metrics: m}
}

// IngestBatch handles POST /v1/events.
// Body: { "device_id": "...", "session_id": "...", "ts": 0, "events": [...] }.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var batch telemetry.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.log.Debug("invalid batch body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	n, err := h.svc.Accept(r.RemoteAddr, batch)
	if err != nil {
		h.log.Info("batch rejected",
			slog.String("device_id", batch.DeviceID),
			slog.String("session_id", batch.SessionID),
			slog.String("error", err.Error()))
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}

	h.log.Debug("batch accepted",
		slog.String("device_id", batch.DeviceID),
		slog.String("session_id", batch.SessionID),
		slog.Int("events", n))
	w.WriteHeader(http.StatusAccepted)
	if h.metrics != nil {
		h.metrics.IncBatchesReceived()
		h.metrics.AddEventsReceived(n)
	}
}

// RecentBatches handles GET /v1/events/recent?limit=N, a debug view of the
// retained batches, newest first.
func (h *Handler) RecentBatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		limit = n
	}

	resp := struct {
		Totals  Summary       `json:"totals"`
		Batches []BatchRecord `json:"batches"`
	}{
		Totals:  h.svc.Totals(),
		Batches: h.svc.Recent(limit),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("encode recent batches failed", slog.String("error", err.Error()))
	}
}
