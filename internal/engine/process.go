package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/forensiq/forensiq/internal/store"
	"github.com/forensiq/forensiq/pkg/models"
)

// StartNewProcess is the sole admission gate for a new watermarking process.
// It validates the requested codes, serializes against concurrent starts for
// the same asset via the process lock, and decides acceptance from the current
// asset state. The resulting bundle is always persisted, rejected or not, so
// the caller can observe the outcome through a later status query.
func (s *Service) StartNewProcess(ctx context.Context, assetID, jobID string, codes []string) (result *models.UnifiedProcessStatus, err error) {
	if len(codes) == 0 {
		return nil, ErrNoEmbeddedCodes
	}
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		if seen[c] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateEmbeddedCodes, c)
		}
		seen[c] = true
	}

	acquired, err := s.locks.Acquire(ctx, assetID, jobID, s.cfg.LockTimeout, s.cfg.LockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("acquire process lock: %w", err)
	}
	if !acquired {
		// Another start holds the asset. Same outcome as finding a
		// Running asset: record the rejection and bail out, leaving
		// the asset row as it is.
		asset, aerr := s.currentAssetStatus(ctx, assetID)
		if aerr != nil {
			return nil, aerr
		}
		status := s.rejectedBundle(assetID, jobID, codes, *asset, detailsAnotherProcess)
		if perr := s.persistUnified(ctx, status); perr != nil {
			return nil, perr
		}
		return status, nil
	}
	defer func() {
		if rerr := s.locks.Release(ctx, assetID, jobID); rerr != nil && err == nil {
			err = rerr
		}
	}()

	asset, err := s.currentAssetStatus(ctx, assetID)
	if err != nil {
		return nil, err
	}

	var status *models.UnifiedProcessStatus
	switch asset.State {
	case models.StatusError:
		status = s.rejectedBundle(assetID, jobID, codes, *asset, detailsMMRKGenerationError)

	case models.StatusRunning:
		status = s.rejectedBundle(assetID, jobID, codes, *asset, detailsAnotherProcess)

	case models.StatusFinished:
		running, rerr := s.store.AssetHasRunningJob(ctx, assetID)
		if rerr != nil {
			return nil, rerr
		}
		if running {
			// Asset state stays Finished: the MMRK artifacts are
			// intact, only this job is turned away.
			status = s.rejectedBundle(assetID, jobID, codes, *asset, detailsAssetReadybut)
		} else {
			status = s.acceptedBundle(assetID, jobID, codes, models.StatusFinished)
		}

	default: // New
		status = s.acceptedBundle(assetID, jobID, codes, models.StatusRunning)
	}

	if err = s.persistUnified(ctx, status); err != nil {
		return nil, err
	}
	return status, err
}

// currentAssetStatus reads the asset row, defaulting to New for an asset the
// pipeline has never seen.
func (s *Service) currentAssetStatus(ctx context.Context, assetID string) (*models.AssetStatus, error) {
	asset, err := s.store.GetAssetStatus(ctx, assetID)
	if errors.Is(err, store.ErrNotFound) {
		return &models.AssetStatus{AssetID: assetID, State: models.StatusNew}, nil
	}
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// acceptedBundle admits the process: the job and every code start Running.
// assetState is Running for a fresh asset, Finished when the asset was
// already preprocessed and only embedding remains.
func (s *Service) acceptedBundle(assetID, jobID string, codes []string, assetState models.ExecutionStatus) *models.UnifiedProcessStatus {
	status := &models.UnifiedProcessStatus{
		AssetStatus: models.AssetStatus{AssetID: assetID, State: assetState},
		JobStatus: models.JobStatus{
			JobID:         jobID,
			State:         models.StatusRunning,
			StartTime:     s.now(),
			EmbeddedCodes: codes,
		},
	}
	for _, code := range codes {
		status.EmbeddedCodesList = append(status.EmbeddedCodesList, models.WatermarkedAssetInfo{
			ParentAssetID: assetID,
			EmbeddedCode:  code,
			State:         models.StatusRunning,
		})
	}
	return status
}

// rejectedBundle turns the process away: the job errors out terminally and
// every requested code is Aborted. The asset row keeps its observed state.
func (s *Service) rejectedBundle(assetID, jobID string, codes []string, asset models.AssetStatus, details string) *models.UnifiedProcessStatus {
	job := models.JobStatus{
		JobID:         jobID,
		State:         models.StatusError,
		Details:       details,
		StartTime:     s.now(),
		EmbeddedCodes: codes,
	}
	job.Finalize(s.now())

	status := &models.UnifiedProcessStatus{AssetStatus: asset, JobStatus: job}
	for _, code := range codes {
		status.EmbeddedCodesList = append(status.EmbeddedCodesList, models.WatermarkedAssetInfo{
			ParentAssetID: assetID,
			EmbeddedCode:  code,
			State:         models.StatusAborted,
			Details:       details,
		})
	}
	return status
}

// GetUnifiedProcessStatus reassembles the status bundle from the store. The
// job row's code list drives the per-code lookups.
func (s *Service) GetUnifiedProcessStatus(ctx context.Context, assetID, jobID string) (*models.UnifiedProcessStatus, error) {
	asset, err := s.store.GetAssetStatus(ctx, assetID)
	if err != nil {
		return nil, err
	}
	job, err := s.store.GetJobStatus(ctx, assetID, jobID)
	if err != nil {
		return nil, err
	}

	status := &models.UnifiedProcessStatus{AssetStatus: *asset, JobStatus: *job}
	for _, code := range job.EmbeddedCodes {
		info, err := s.store.GetWatermarkedAssetInfo(ctx, assetID, code)
		if err != nil {
			return nil, err
		}
		status.EmbeddedCodesList = append(status.EmbeddedCodesList, *info)
	}
	return status, nil
}

// UpdateJob force-sets the asset, job and code states. It is the escape hatch
// for external timeout or cancellation policy; codes already terminal keep
// their state so a late update cannot clobber a real outcome.
func (s *Service) UpdateJob(ctx context.Context, status *models.UnifiedProcessStatus, assetState, jobState models.ExecutionStatus, jobDetails string, copiesState models.ExecutionStatus, copiesDetails string) (*models.UnifiedProcessStatus, error) {
	if assetState.Valid() {
		status.AssetStatus.State = assetState
	}
	status.JobStatus.State = jobState
	status.JobStatus.Details = jobDetails
	if jobState.Terminal() {
		status.JobStatus.Finalize(s.now())
	}
	for i := range status.EmbeddedCodesList {
		if status.EmbeddedCodesList[i].State.Terminal() {
			continue
		}
		status.EmbeddedCodesList[i].State = copiesState
		status.EmbeddedCodesList[i].Details = copiesDetails
	}

	if err := s.persistUnified(ctx, status); err != nil {
		return nil, err
	}
	return status, nil
}

// CancelJobTimeout fails a job that exceeded the caller's deadline: the job
// and every incomplete code go to Error with the timeout note, codes already
// terminal keep their state. Calling it on an already-terminal job is a no-op.
func (s *Service) CancelJobTimeout(ctx context.Context, status *models.UnifiedProcessStatus, note string) (*models.UnifiedProcessStatus, error) {
	if status.JobStatus.State.Terminal() {
		return status, nil
	}
	return s.UpdateJob(ctx, status, "", models.StatusError, note, models.StatusError, note)
}
