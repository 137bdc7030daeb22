package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/forensiq/forensiq/pkg/models"
)

// EvalAssetStatus drains the preprocessor notification queue and recomputes
// the asset state from the full MMRK record set: any Error makes the asset
// Error, all Finished makes it Finished, anything else leaves it as it is.
// Pure re-aggregation; calling it twice with no new notifications is a no-op.
func (s *Service) EvalAssetStatus(ctx context.Context, status *models.UnifiedProcessStatus) (*models.UnifiedProcessStatus, error) {
	if _, err := s.EvalPreprocessorNotifications(ctx); err != nil {
		return nil, err
	}

	mmrks, err := s.store.ListMMRKStatuses(ctx, status.AssetStatus.AssetID)
	if err != nil {
		return nil, err
	}

	if len(mmrks) > 0 {
		finished := 0
		failed := false
		for _, m := range mmrks {
			switch m.State {
			case models.StatusError:
				failed = true
			case models.StatusFinished:
				finished++
			}
		}
		switch {
		case failed:
			status.AssetStatus.State = models.StatusError
		case finished == len(mmrks):
			status.AssetStatus.State = models.StatusFinished
		}
	}

	if err := s.persistUnified(ctx, status); err != nil {
		return nil, err
	}
	return status, nil
}

// EvalEmbeddedCodes drains the embedder notification queue and recomputes
// each embed code's state from its render set. Codes whose renders are gone
// (already consumed into an output asset) are left untouched.
func (s *Service) EvalEmbeddedCodes(ctx context.Context, status *models.UnifiedProcessStatus) (*models.UnifiedProcessStatus, error) {
	if _, err := s.EvalEmbedderNotifications(ctx); err != nil {
		return nil, err
	}

	for i := range status.EmbeddedCodesList {
		info := &status.EmbeddedCodesList[i]
		renders, err := s.store.ListWatermarkedRenders(ctx, info.ParentAssetID, info.EmbeddedCode)
		if err != nil {
			return nil, err
		}
		if len(renders) == 0 {
			continue
		}

		finished := 0
		var failures []string
		for _, r := range renders {
			switch r.State {
			case models.StatusError:
				failures = append(failures, fmt.Sprintf("%s: %s", r.RenderName, r.Details))
			case models.StatusFinished:
				finished++
			}
		}
		switch {
		case len(failures) > 0:
			info.State = models.StatusError
			info.Details = "render errors: " + strings.Join(failures, "; ")
		case finished == len(renders):
			info.State = models.StatusFinished
			info.Details = fmt.Sprintf("Ready %d of %d", finished, len(renders))
		default:
			info.State = models.StatusRunning
			info.Details = fmt.Sprintf("Ready %d of %d", finished, len(renders))
		}
	}

	if err := s.persistUnified(ctx, status); err != nil {
		return nil, err
	}
	return status, nil
}

// EvalJobProgress is the terminal-detection logic. It returns the updated
// bundle plus waitingCopies, the number of codes that finished rendering but
// still await output asset assembly; pollers use it to throttle their loop.
func (s *Service) EvalJobProgress(ctx context.Context, status *models.UnifiedProcessStatus) (*models.UnifiedProcessStatus, int, error) {
	waitingCopies := 0

	switch status.AssetStatus.State {
	case models.StatusError:
		status.JobStatus.State = models.StatusError
		status.JobStatus.Details = detailsMMRKGenerationError
		status.JobStatus.Finalize(s.now())

	case models.StatusRunning:
		mmrks, err := s.store.ListMMRKStatuses(ctx, status.AssetStatus.AssetID)
		if err != nil {
			return nil, 0, err
		}
		finished := 0
		for _, m := range mmrks {
			if m.State == models.StatusFinished {
				finished++
			}
		}
		status.JobStatus.State = models.StatusRunning
		status.JobStatus.Details = fmt.Sprintf("Generating MMRK files %d of %d", finished, len(mmrks))

	case models.StatusFinished:
		running, succeeded, failed := 0, 0, 0
		for _, info := range status.EmbeddedCodesList {
			switch {
			case info.State == models.StatusRunning:
				running++
			case info.State == models.StatusFinished && info.AssetID == "":
				waitingCopies++
			case info.State == models.StatusFinished:
				succeeded++
			case info.State == models.StatusError:
				failed++
			}
		}
		if running+waitingCopies == 0 {
			status.JobStatus.State = models.StatusFinished
			status.JobStatus.Details = fmt.Sprintf("Watermarked copies: %d finished, %d failed", succeeded, failed)
			status.JobStatus.Finalize(s.now())
		} else {
			done := len(status.EmbeddedCodesList) - running - waitingCopies
			status.JobStatus.State = models.StatusRunning
			status.JobStatus.Details = fmt.Sprintf("Watermarked copies %d of %d", done, len(status.EmbeddedCodesList))
		}
	}

	if err := s.persistUnified(ctx, status); err != nil {
		return nil, 0, err
	}
	return status, waitingCopies, nil
}
