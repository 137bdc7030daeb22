package handler

import (
	"context"
	"net/http"

	"github.com/forensiq/forensiq/internal/api/response"
	"github.com/forensiq/forensiq/pkg/models"
)

// ProcessStarter admits a new watermarking process for an asset.
type ProcessStarter interface {
	StartNewProcess(ctx context.Context, assetID, jobID string, codes []string) (*models.UnifiedProcessStatus, error)
}

// StatusReader reassembles a status bundle from the store.
type StatusReader interface {
	GetUnifiedProcessStatus(ctx context.Context, assetID, jobID string) (*models.UnifiedProcessStatus, error)
}

// NewStartJobHandler returns the handler for POST /api/v1/jobs. A rejected
// process is not an HTTP error: the bundle comes back 200 with the job in
// Error state, and the caller inspects JobStatus.
func NewStartJobHandler(svc ProcessStarter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AssetID       string   `json:"AssetId"`
			JobID         string   `json:"JobId"`
			EmbeddedCodes []string `json:"EmbeddedCodes"`
		}
		if err := decode(r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.AssetID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "AssetId is required", nil)
			return
		}
		if req.JobID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "JobId is required", nil)
			return
		}

		status, err := svc.StartNewProcess(r.Context(), req.AssetID, req.JobID, req.EmbeddedCodes)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, status)
	}
}

// NewStatusHandler returns the handler for POST /api/v1/status.
func NewStatusHandler(svc StatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AssetID string `json:"AssetId"`
			JobID   string `json:"JobId"`
		}
		if err := decode(r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.AssetID == "" || req.JobID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "AssetId and JobId are required", nil)
			return
		}

		status, err := svc.GetUnifiedProcessStatus(r.Context(), req.AssetID, req.JobID)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, status)
	}
}
