package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"mercator-hq/backlog/pkg/client"
	"mercator-hq/backlog/pkg/database"
	"mercator-hq/backlog/pkg/report"

	"github.com/google/uuid"
)

// CaptureResponse is returned by POST /v1/reports.
type CaptureResponse struct {
	RecordID   string `json:"record_id"`
	Duplicates int    `json:"duplicates"`
}

// RecordView is one entry of GET /v1/records.
type RecordView struct {
	ID         string    `json:"id"`
	Hash       string    `json:"hash,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Duplicates int       `json:"duplicates"`
	Retries    int       `json:"retries"`
	Size       int64     `json:"size"`
	Locked     bool      `json:"locked"`
}

// NewRecordView snapshots rec.
func NewRecordView(rec *database.Record) RecordView {
	return RecordView{
		ID:         rec.ID,
		Hash:       rec.Hash,
		CreatedAt:  rec.CreatedAt,
		Duplicates: rec.DuplicateCount(),
		Retries:    rec.Retries(),
		Size:       rec.Size(),
		Locked:     rec.Locked(),
	}
}

// FlushResponse is returned by POST /v1/flush.
type FlushResponse struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.MaxBodyBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	body := http.MaxBytesReader(w, r.Body, limit)

	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("report exceeds %d bytes", limit))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read report: %v", err))
		return
	}

	rep, err := report.Decode(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if rep.UUID == "" {
		rep.UUID = uuid.NewString()
	}

	rec, err := s.backlog.Capture(r.Context(), rep)
	if err != nil {
		writeError(w, captureStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, CaptureResponse{
		RecordID:   rec.ID,
		Duplicates: rec.DuplicateCount(),
	})
}

func captureStatus(err error) int {
	switch {
	case errors.Is(err, client.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, database.ErrDatabaseFull):
		return http.StatusInsufficientStorage
	case errors.Is(err, database.ErrRecordTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, database.ErrInvalidRecord):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	records := s.backlog.Database().Get()
	views := make([]RecordView, 0, len(records))
	for _, rec := range records {
		views = append(views, NewRecordView(rec))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	summary, err := s.backlog.Flush(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, FlushResponse{
		Attempted: summary.Attempted,
		Delivered: summary.Delivered,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
