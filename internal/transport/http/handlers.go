package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleet-tracker/internal/domain"
	"fleet-tracker/internal/pipeline"
	"fleet-tracker/pkg/e"
)

const maxBodyBytes = 64 * 1024

// Dispatcher feeds the ingest queue.
type Dispatcher interface {
	Dispatch(msg *domain.IngestMessage) bool
	Depth() int
}

// ReadingQueries is the read side of the series store.
type ReadingQueries interface {
	FindByVehicle(ctx context.Context, vehicleID int64, hours, limit int) ([]domain.Reading, error)
	FindLatest(ctx context.Context, vehicleID int64) (*domain.Reading, error)
	FindAllLatest(ctx context.Context) ([]domain.Reading, error)
	BucketedStats(ctx context.Context, vehicleID int64, hours int, bucket time.Duration) ([]domain.BucketStats, error)
}

// AlertQueries is the read/resolve side of the alert store.
type AlertQueries interface {
	List(ctx context.Context, resolved *bool) ([]domain.Alert, error)
	ListByVehicle(ctx context.Context, vehicleID int64) ([]domain.Alert, error)
	Resolve(ctx context.Context, id uuid.UUID) error
}

// RollupQueries is the read side of the rollup store.
type RollupQueries interface {
	FindByVehicle(ctx context.Context, vehicleID int64, hours int) ([]domain.HourlyRollup, error)
}

// StatsSource exposes the pipeline tallies.
type StatsSource interface {
	Stats() pipeline.Stats
	ResetStats() pipeline.Stats
}

type handlers struct {
	dispatcher Dispatcher
	readings   ReadingQueries
	alerts     AlertQueries
	rollups    RollupQueries
	stats      StatsSource
	validator  *validator.Validate
	logger     *zap.Logger
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("response encode failed", zap.Error(err))
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg, RequestID: requestIDFrom(r)})
}

// writeStoreError maps the error taxonomy onto HTTP statuses.
func (h *handlers) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, e.ErrNotFound):
		h.writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, e.ErrInvalidInput):
		h.writeError(w, r, http.StatusBadRequest, "invalid request")
	case errors.Is(err, e.ErrDeadline), errors.Is(err, e.ErrCanceled):
		h.writeError(w, r, http.StatusServiceUnavailable, "request timed out")
	default:
		h.logger.Error("request failed",
			zap.String("request_id", requestIDFrom(r)),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		h.writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// ingestReading accepts one reading and enqueues it. 202 means "queued",
// not "stored": quality gating happens in the pipeline, so a reading that
// later fails the gate still gets a 202 here and lands in the audit log
// instead of the series store.
func (h *handlers) ingestReading(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "unreadable body")
		return
	}

	var msg domain.IngestMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "malformed JSON")
		return
	}
	msg.Raw = raw

	if err := h.validator.Struct(&msg); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "structurally invalid reading")
		return
	}

	if !h.dispatcher.Dispatch(&msg) {
		h.writeError(w, r, http.StatusServiceUnavailable, "ingest queue full")
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func vehicleIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "vehicleID"), 10, 64)
}

// queryInt reads an integer query parameter, falling back to def when absent
// and clamping to [1, max].
func queryInt(r *http.Request, name string, def, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, e.ErrInvalidInput
	}
	if v > max {
		v = max
	}
	return v, nil
}

func (h *handlers) vehicleReadings(w http.ResponseWriter, r *http.Request) {
	vehicleID, err := vehicleIDParam(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid vehicle id")
		return
	}
	hours, err := queryInt(r, "hours", 24, 24*31)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid hours")
		return
	}
	limit, err := queryInt(r, "limit", 1000, 10000)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid limit")
		return
	}

	readings, err := h.readings.FindByVehicle(r.Context(), vehicleID, hours, limit)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if readings == nil {
		readings = []domain.Reading{}
	}
	h.writeJSON(w, http.StatusOK, readings)
}

func (h *handlers) vehicleLatest(w http.ResponseWriter, r *http.Request) {
	vehicleID, err := vehicleIDParam(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid vehicle id")
		return
	}

	reading, err := h.readings.FindLatest(r.Context(), vehicleID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reading)
}

func (h *handlers) fleetLatest(w http.ResponseWriter, r *http.Request) {
	readings, err := h.readings.FindAllLatest(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if readings == nil {
		readings = []domain.Reading{}
	}
	h.writeJSON(w, http.StatusOK, readings)
}

func (h *handlers) vehicleStats(w http.ResponseWriter, r *http.Request) {
	vehicleID, err := vehicleIDParam(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid vehicle id")
		return
	}
	hours, err := queryInt(r, "hours", 24, 24*31)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid hours")
		return
	}
	bucketSecs, err := queryInt(r, "bucket_seconds", 3600, 86400)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid bucket_seconds")
		return
	}

	stats, err := h.readings.BucketedStats(r.Context(), vehicleID, hours, time.Duration(bucketSecs)*time.Second)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if stats == nil {
		stats = []domain.BucketStats{}
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *handlers) vehicleRollups(w http.ResponseWriter, r *http.Request) {
	vehicleID, err := vehicleIDParam(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid vehicle id")
		return
	}
	hours, err := queryInt(r, "hours", 24*7, 24*90)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid hours")
		return
	}

	rollups, err := h.rollups.FindByVehicle(r.Context(), vehicleID, hours)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if rollups == nil {
		rollups = []domain.HourlyRollup{}
	}
	h.writeJSON(w, http.StatusOK, rollups)
}

func (h *handlers) listAlerts(w http.ResponseWriter, r *http.Request) {
	var resolved *bool
	if raw := r.URL.Query().Get("resolved"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "invalid resolved filter")
			return
		}
		resolved = &v
	}

	alerts, err := h.alerts.List(r.Context(), resolved)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	h.writeJSON(w, http.StatusOK, alerts)
}

func (h *handlers) vehicleAlerts(w http.ResponseWriter, r *http.Request) {
	vehicleID, err := vehicleIDParam(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid vehicle id")
		return
	}

	alerts, err := h.alerts.ListByVehicle(r.Context(), vehicleID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	h.writeJSON(w, http.StatusOK, alerts)
}

func (h *handlers) resolveAlert(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "alertID"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid alert id")
		return
	}

	if err := h.alerts.Resolve(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (h *handlers) ingestStats(w http.ResponseWriter, r *http.Request) {
	var snap pipeline.Stats
	if r.URL.Query().Get("reset") == "true" {
		snap = h.stats.ResetStats()
	} else {
		snap = h.stats.Stats()
	}
	h.writeJSON(w, http.StatusOK, struct {
		pipeline.Stats
		QueueDepth int `json:"queueDepth"`
	}{Stats: snap, QueueDepth: h.dispatcher.Depth()})
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
