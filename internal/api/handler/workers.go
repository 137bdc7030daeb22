package handler

import (
	"context"
	"net/http"

	"github.com/forensiq/forensiq/internal/api/response"
	"github.com/forensiq/forensiq/pkg/models"
)

// MMRKUpdater upserts a per-rendition preprocessing record.
type MMRKUpdater interface {
	UpdateMMRKStatus(ctx context.Context, mmrk *models.MMRKStatus) error
}

// RenderRegistrar records the renders submitted to the embedder for one code.
type RenderRegistrar interface {
	RegisterWatermarkedRenders(ctx context.Context, parentAssetID string, code models.EmbeddedCode) error
}

// NewUpdateMMRKHandler returns the handler for POST /api/v1/mmrk, the
// worker-facing MMRK progress report. A FileURL of "{NO UPDATE}" keeps the
// URL already on file.
func NewUpdateMMRKHandler(svc MMRKUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var mmrk models.MMRKStatus
		if err := decode(r, &mmrk); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if mmrk.AssetID == "" || mmrk.JobID == "" || mmrk.FileName == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "AssetId, JobId and FileName are required", nil)
			return
		}
		if !mmrk.State.Valid() {
			writeError(w, &models.InvalidStatusError{Value: string(mmrk.State)})
			return
		}

		if err := svc.UpdateMMRKStatus(r.Context(), &mmrk); err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, &mmrk)
	}
}

// NewRegisterRendersHandler returns the handler for POST /api/v1/renders,
// registering the submitted renders of one embed code as Running rows.
func NewRegisterRendersHandler(svc RenderRegistrar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AssetID      string              `json:"AssetId"`
			EmbeddedCode models.EmbeddedCode `json:"EmbeddedCode"`
		}
		if err := decode(r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.AssetID == "" || req.EmbeddedCode.Code == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "AssetId and EmbeddedCode.Code are required", nil)
			return
		}

		if err := svc.RegisterWatermarkedRenders(r.Context(), req.AssetID, req.EmbeddedCode); err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, map[string]int{"RegisteredRenders": len(req.EmbeddedCode.MP4WatermarkedURL)})
	}
}
