package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/RezaEskandarii/jobfire/custom_errors"
	"github.com/RezaEskandarii/jobfire/types"
)

type executionView struct {
	ID                string     `json:"id"`
	JobID             string     `json:"job_id"`
	ParentExecutionID *string    `json:"parent_execution_id,omitempty"`
	Attempt           int        `json:"attempt"`
	Status            string     `json:"status"`
	TriggerSource     string     `json:"trigger_source"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	DurationMs        int64      `json:"duration_ms"`
	Error             string     `json:"error,omitempty"`
}

func newExecutionView(e *types.Execution) executionView {
	return executionView{
		ID:                e.ID,
		JobID:             e.JobID,
		ParentExecutionID: e.ParentExecutionID,
		Attempt:           e.Attempt,
		Status:            string(e.Status),
		TriggerSource:     string(e.TriggerSource),
		StartedAt:         e.StartedAt,
		CompletedAt:       e.CompletedAt,
		DurationMs:        e.Duration().Milliseconds(),
		Error:             e.Error,
	}
}

func getPage(r *http.Request) (int, int) {
	q := r.URL.Query()
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(q.Get("page_size"))
	if err != nil || pageSize < 1 {
		pageSize = PageSize
	}
	return types.NormalizePage(page, pageSize)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func statusCode(err error) int {
	switch {
	case custom_errors.IsNotFound(err):
		return http.StatusNotFound
	case custom_errors.IsSchedulingConflict(err), errors.Is(err, custom_errors.ErrJobRevoked):
		return http.StatusConflict
	case custom_errors.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, custom_errors.ErrSchedulerStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *OpsServer) writeError(w http.ResponseWriter, err error) {
	code := statusCode(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.logger.Errorw("ops request failed", "error", err)
		msg = http.StatusText(code)
	}
	writeJSON(w, code, map[string]string{"error": msg})
}
