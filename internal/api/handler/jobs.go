package handler

import (
	"context"
	"net/http"

	"github.com/forensiq/forensiq/internal/api/response"
	"github.com/forensiq/forensiq/pkg/models"
)

// ManifestBuilder assembles the cluster job payload for an asset.
type ManifestBuilder interface {
	Build(ctx context.Context, assetID, jobID string, codes []string) (*models.Manifest, error)
}

// JobSubmitter partitions a manifest and submits the sub-jobs.
type JobSubmitter interface {
	SubmitJobs(ctx context.Context, m *models.Manifest) (int, error)
}

// NewManifestHandler returns the handler for POST /api/v1/jobs/manifest.
func NewManifestHandler(builder ManifestBuilder) http.HandlerFunc {
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
		if req.AssetID == "" || req.JobID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "AssetId and JobId are required", nil)
			return
		}

		m, err := builder.Build(r.Context(), req.AssetID, req.JobID, req.EmbeddedCodes)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, m)
	}
}

// NewSubmitJobHandler returns the handler for POST /api/v1/jobs/submit. The
// body is the manifest from /jobs/manifest, passed through by the caller.
func NewSubmitJobHandler(svc JobSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m models.Manifest
		if err := decode(r, &m); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if m.AssetID == "" || m.JobID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "AssetId and JobId are required", nil)
			return
		}

		submitted, err := svc.SubmitJobs(r.Context(), &m)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, map[string]int{"SubmittedJobs": submitted})
	}
}
