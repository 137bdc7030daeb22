package handler

import (
	"context"
	"net/http"

	"github.com/forensiq/forensiq/internal/api/response"
	"github.com/forensiq/forensiq/pkg/models"
)

// Assembler builds output assets from finished renders and disposes of the
// temp renders afterwards.
type Assembler interface {
	AssembleOutputAssets(ctx context.Context, status *models.UnifiedProcessStatus) (*models.UnifiedProcessStatus, error)
	DeleteWatermarkedRenders(ctx context.Context, parentAssetID string) error
}

// NewAssembleHandler returns the handler for POST /api/v1/assets/assemble.
// Per-code assembly failures come back 200 inside the bundle; the caller
// polls until every code has an AssetId or a terminal error.
func NewAssembleHandler(svc Assembler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, ok := decodeBundle(w, r)
		if !ok {
			return
		}
		updated, err := svc.AssembleOutputAssets(r.Context(), status)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, updated)
	}
}

// NewDeleteRendersHandler returns the handler for POST /api/v1/renders/delete.
func NewDeleteRendersHandler(svc Assembler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AssetID string `json:"AssetId"`
		}
		if err := decode(r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.AssetID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "AssetId is required", nil)
			return
		}

		if err := svc.DeleteWatermarkedRenders(r.Context(), req.AssetID); err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, map[string]string{"AssetId": req.AssetID, "Status": "Deleted"})
	}
}
