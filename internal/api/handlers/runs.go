package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/internal/scheduler"
	"github.com/wonny/aegis-ingest/pkg/logger"
)

// RunReader returns the latest pipeline reports
type RunReader interface {
	LatestUpdate(ctx context.Context) (*contracts.UpdateReport, bool, error)
	LatestHealth(ctx context.Context) (*contracts.HealthReport, bool, error)
}

// JobRunner exposes scheduled jobs
type JobRunner interface {
	GetAllJobs() []string
	GetJobStats() map[string]scheduler.JobStats
	RunJob(ctx context.Context, jobName string) (scheduler.JobResult, error)
}

// RunsHandler serves run reports and job triggers
// ⭐ SSOT: 실행 결과 API 핸들러는 이 구조체에서만
type RunsHandler struct {
	runs   RunReader
	jobs   JobRunner // nil when the scheduler is not running
	logger *logger.Logger
	async  func(func())
}

// NewRunsHandler creates a runs handler; jobs may be nil
func NewRunsHandler(runs RunReader, jobs JobRunner, log *logger.Logger) *RunsHandler {
	return &RunsHandler{
		runs:   runs,
		jobs:   jobs,
		logger: log,
		async:  func(f func()) { go f() },
	}
}

// LatestUpdate returns the most recent update report
// GET /api/runs/update/latest
func (h *RunsHandler) LatestUpdate(w http.ResponseWriter, r *http.Request) {
	report, ok, err := h.runs.LatestUpdate(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to get update report")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve update report")
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "No update has run yet")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// LatestHealth returns the most recent health report
// GET /api/health/latest
func (h *RunsHandler) LatestHealth(w http.ResponseWriter, r *http.Request) {
	report, ok, err := h.runs.LatestHealth(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to get health report")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve health report")
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "No health check has run yet")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// ListJobs returns scheduler statistics
// GET /api/jobs
func (h *RunsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondError(w, http.StatusServiceUnavailable, "Scheduler is not running")
		return
	}
	respondJSON(w, http.StatusOK, h.jobs.GetJobStats())
}

// TriggerJob starts a job outside its schedule and returns immediately
// POST /api/jobs/{name}/run
func (h *RunsHandler) TriggerJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondError(w, http.StatusServiceUnavailable, "Scheduler is not running")
		return
	}

	name := mux.Vars(r)["name"]
	known := false
	for _, j := range h.jobs.GetAllJobs() {
		if j == name {
			known = true
			break
		}
	}
	if !known {
		respondError(w, http.StatusNotFound, "Unknown job: "+name)
		return
	}

	h.logger.WithField("job", name).Info("Job triggered via API")
	// 요청 컨텍스트와 분리해서 실행
	h.async(func() {
		if _, err := h.jobs.RunJob(context.Background(), name); err != nil {
			h.logger.WithError(err).WithField("job", name).Error("Triggered job failed to start")
		}
	})

	respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"job":    name,
	})
}
