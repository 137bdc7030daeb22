package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/forensiq/forensiq/internal/api/response"
	"github.com/forensiq/forensiq/pkg/models"
)

// Evaluator re-aggregates a status bundle from the source-of-truth records,
// draining the worker notification queues first.
type Evaluator interface {
	EvalAssetStatus(ctx context.Context, status *models.UnifiedProcessStatus) (*models.UnifiedProcessStatus, error)
	EvalEmbeddedCodes(ctx context.Context, status *models.UnifiedProcessStatus) (*models.UnifiedProcessStatus, error)
	EvalJobProgress(ctx context.Context, status *models.UnifiedProcessStatus) (*models.UnifiedProcessStatus, int, error)
}

// JobUpdater force-sets job state, the escape hatch for external timeout
// policy.
type JobUpdater interface {
	UpdateJob(ctx context.Context, status *models.UnifiedProcessStatus, assetState, jobState models.ExecutionStatus, jobDetails string, copiesState models.ExecutionStatus, copiesDetails string) (*models.UnifiedProcessStatus, error)
	CancelJobTimeout(ctx context.Context, status *models.UnifiedProcessStatus, note string) (*models.UnifiedProcessStatus, error)
}

// NewEvalAssetStatusHandler returns the handler for POST /api/v1/status/asset.
func NewEvalAssetStatusHandler(svc Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, ok := decodeBundle(w, r)
		if !ok {
			return
		}
		updated, err := svc.EvalAssetStatus(r.Context(), status)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, updated)
	}
}

// NewEvalEmbeddedCodesHandler returns the handler for POST /api/v1/status/codes.
func NewEvalEmbeddedCodesHandler(svc Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, ok := decodeBundle(w, r)
		if !ok {
			return
		}
		updated, err := svc.EvalEmbeddedCodes(r.Context(), status)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, updated)
	}
}

// NewEvalJobProgressHandler returns the handler for POST /api/v1/status/progress.
// The X-Waiting-Copies header carries the number of codes that finished
// rendering but still await asset assembly, so the external scheduler can
// stretch its poll interval.
func NewEvalJobProgressHandler(svc Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, ok := decodeBundle(w, r)
		if !ok {
			return
		}
		updated, waiting, err := svc.EvalJobProgress(r.Context(), status)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("X-Waiting-Copies", strconv.Itoa(waiting))
		response.JSON(w, updated)
	}
}

// NewUpdateJobHandler returns the handler for POST /api/v1/status/job.
func NewUpdateJobHandler(svc JobUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Manifest                     *models.UnifiedProcessStatus `json:"Manifest"`
			AssetStatus                  string                       `json:"AssetStatus"`
			JobState                     string                       `json:"JobState"`
			JobStateDetails              string                       `json:"JobStateDetails"`
			WaterMarkCopiesStatus        string                       `json:"WaterMarkCopiesStatus"`
			WaterMarkCopiesStatusDetails string                       `json:"WaterMarkCopiesStatusDetails"`
		}
		if err := decode(r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Manifest == nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Manifest is required", nil)
			return
		}

		jobState, err := models.ParseExecutionStatus(req.JobState)
		if err != nil {
			writeError(w, err)
			return
		}
		copiesState, err := models.ParseExecutionStatus(req.WaterMarkCopiesStatus)
		if err != nil {
			writeError(w, err)
			return
		}
		// AssetStatus is optional; when absent the asset row keeps its state.
		assetState := models.ExecutionStatus(req.AssetStatus)
		if req.AssetStatus != "" && !assetState.Valid() {
			writeError(w, &models.InvalidStatusError{Value: req.AssetStatus})
			return
		}

		updated, err := svc.UpdateJob(r.Context(), req.Manifest,
			assetState, jobState, req.JobStateDetails, copiesState, req.WaterMarkCopiesStatusDetails)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, updated)
	}
}

// NewCancelJobHandler returns the handler for POST /api/v1/status/cancel.
func NewCancelJobHandler(svc JobUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Manifest *models.UnifiedProcessStatus `json:"Manifest"`
			Note     string                       `json:"Note"`
		}
		if err := decode(r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Manifest == nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Manifest is required", nil)
			return
		}
		note := req.Note
		if note == "" {
			note = "Job cancelled by timeout policy"
		}

		updated, err := svc.CancelJobTimeout(r.Context(), req.Manifest, note)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, updated)
	}
}

// decodeBundle parses a unified status bundle request body, writing the 400
// itself when the body is unusable.
func decodeBundle(w http.ResponseWriter, r *http.Request) (*models.UnifiedProcessStatus, bool) {
	var status models.UnifiedProcessStatus
	if err := decode(r, &status); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return nil, false
	}
	if status.AssetStatus.AssetID == "" {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "AssetStatus.AssetId is required", nil)
		return nil, false
	}
	return &status, true
}
