package handler

import (
	"context"
	"net/http"

	"github.com/forensiq/forensiq/internal/api/response"
	"github.com/forensiq/forensiq/internal/cluster"
)

// ClusterAdmin is the cluster housekeeping surface: pod and job disposal
// plus log retrieval.
type ClusterAdmin interface {
	DeletePods(ctx context.Context, jobID, phase string) (int, error)
	DeleteJobs(ctx context.Context, jobID string) (int, error)
	JobLogs(ctx context.Context, jobID string) ([]cluster.PodLog, error)
}

// NewDeletePodsHandler returns the handler for POST /api/v1/cluster/pods/delete.
// Only Succeeded pods are deleted; failed pods stay around for inspection.
func NewDeletePodsHandler(svc ClusterAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := decodeJobID(w, r)
		if !ok {
			return
		}
		deleted, err := svc.DeletePods(r.Context(), jobID, "Succeeded")
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, map[string]int{"DeletedPods": deleted})
	}
}

// NewDeleteJobsHandler returns the handler for POST /api/v1/cluster/jobs/delete.
// Pod logs are archived to the tmp bucket before anything is deleted.
func NewDeleteJobsHandler(svc ClusterAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := decodeJobID(w, r)
		if !ok {
			return
		}
		deleted, err := svc.DeleteJobs(r.Context(), jobID)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, map[string]int{"DeletedJobs": deleted})
	}
}

// NewJobLogsHandler returns the handler for GET /api/v1/cluster/logs?JobId=.
func NewJobLogsHandler(svc ClusterAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := r.URL.Query().Get("JobId")
		if jobID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "JobId query parameter is required", nil)
			return
		}
		logs, err := svc.JobLogs(r.Context(), jobID)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, logs)
	}
}

func decodeJobID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		JobID string `json:"JobId"`
	}
	if err := decode(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return "", false
	}
	if req.JobID == "" {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "JobId is required", nil)
		return "", false
	}
	return req.JobID, true
}
