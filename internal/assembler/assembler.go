// Package assembler turns finished watermarked renders into output assets:
// one object-store prefix per embed code holding the copied renders and a
// streaming manifest. Assembly is resumable; a code's AssetID stays empty
// until its asset is fully built, so a failed or budget-capped run simply
// leaves the code for the next poll.
package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/forensiq/forensiq/internal/blob"
	"github.com/forensiq/forensiq/internal/config"
	"github.com/forensiq/forensiq/internal/store"
	"github.com/forensiq/forensiq/pkg/models"
)

const detailsNoRenders = "no renders"

// Service assembles output assets and disposes of consumed renders.
type Service struct {
	store  store.Store
	blob   blob.Client
	blobs  config.BlobConfig
	cfg    config.PipelineConfig
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewService(st store.Store, bc blob.Client, blobs config.BlobConfig, cfg config.PipelineConfig, logger *slog.Logger) *Service {
	return &Service{
		store:  st,
		blob:   bc,
		blobs:  blobs,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// AssembleOutputAssets builds an output asset for every embed code that has
// finished embedding but has no asset yet. Each invocation assembles at most
// AssemblyMaxAssets assets and stops once AssemblyBudget wall-clock time is
// spent; remaining codes are picked up by the caller's next poll. The updated
// status bundle is returned with per-code results persisted.
func (s *Service) AssembleOutputAssets(ctx context.Context, status *models.UnifiedProcessStatus) (*models.UnifiedProcessStatus, error) {
	deadline := s.now().Add(s.cfg.AssemblyBudget)
	assembled := 0

	for i := range status.EmbeddedCodesList {
		code := &status.EmbeddedCodesList[i]
		if code.State != models.StatusFinished || code.AssetID != "" {
			continue
		}
		if assembled >= s.cfg.AssemblyMaxAssets || !s.now().Before(deadline) {
			s.logger.Info("assembly cap reached, leaving remainder for next poll",
				"parent_asset_id", code.ParentAssetID, "assembled", assembled)
			break
		}

		if err := s.assembleOne(ctx, code); err != nil {
			return nil, err
		}
		assembled++
	}

	return status, nil
}

// assembleOne builds the output asset for a single embed code and persists
// the outcome on its record. Dependency failures during the build mark the
// code Error and clean up the partial asset; only store failures propagate.
func (s *Service) assembleOne(ctx context.Context, code *models.WatermarkedAssetInfo) error {
	renders, err := s.store.ListWatermarkedRenders(ctx, code.ParentAssetID, code.EmbeddedCode)
	if err != nil {
		return fmt.Errorf("list renders for code %s: %w", code.EmbeddedCode, err)
	}
	if len(renders) == 0 {
		code.State = models.StatusError
		code.Details = detailsNoRenders
		return s.store.UpsertWatermarkedAssetInfo(ctx, code)
	}

	assetID := s.newID()

	if err := s.copyRenders(ctx, assetID, code, renders); err != nil {
		return s.failAsset(ctx, assetID, code, fmt.Sprintf("copy renders: %v", err))
	}

	if err := s.writeStreamingManifest(ctx, assetID); err != nil {
		return s.failAsset(ctx, assetID, code, fmt.Sprintf("generate manifest: %v", err))
	}

	// Renders are consumed: the rows go away first so a crash after this
	// point re-runs as "no renders" instead of duplicating the asset.
	if err := s.store.DeleteWatermarkedRenders(ctx, code.ParentAssetID, code.EmbeddedCode); err != nil {
		return fmt.Errorf("delete consumed renders for code %s: %w", code.EmbeddedCode, err)
	}

	code.AssetID = assetID
	code.Details = "output asset created"
	s.logger.Info("assembled output asset",
		"parent_asset_id", code.ParentAssetID, "embedded_code", code.EmbeddedCode, "asset_id", assetID)
	return s.store.UpsertWatermarkedAssetInfo(ctx, code)
}

// copyRenders server-side copies every render of the code into the output
// asset's prefix. Copies run on a bounded group with an inter-start throttle
// so a wide code does not saturate the blob backend.
func (s *Service) copyRenders(ctx context.Context, assetID string, code *models.WatermarkedAssetInfo, renders []*models.WatermarkedRender) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.CopyConcurrency)

	for i, r := range renders {
		srcKey := fmt.Sprintf("%s/%s/%s", code.ParentAssetID, code.EmbeddedCode, r.RenderName)
		dstKey := fmt.Sprintf("%s/%s", assetID, r.RenderName)
		name := r.RenderName
		g.Go(func() error {
			if err := s.blob.ServerSideCopy(gctx, s.blobs.WatermarkedBucket, srcKey, s.blobs.OutputBucket, dstKey); err != nil {
				return fmt.Errorf("render %s: %w", name, err)
			}
			return nil
		})
		if i < len(renders)-1 {
			select {
			case <-time.After(s.cfg.CopyThrottle):
			case <-gctx.Done():
			}
		}
	}

	return g.Wait()
}

// failAsset removes whatever landed under the partial asset prefix and marks
// the code Error. AssetID stays empty so the next poll retries from scratch.
func (s *Service) failAsset(ctx context.Context, assetID string, code *models.WatermarkedAssetInfo, details string) error {
	if err := s.blob.DeletePrefix(ctx, s.blobs.OutputBucket, assetID+"/"); err != nil {
		s.logger.Error("failed to delete partial output asset", "asset_id", assetID, "error", err)
	}
	s.logger.Warn("output asset assembly failed",
		"parent_asset_id", code.ParentAssetID, "embedded_code", code.EmbeddedCode, "details", details)
	code.State = models.StatusError
	code.Details = details
	return s.store.UpsertWatermarkedAssetInfo(ctx, code)
}

// DeleteWatermarkedRenders disposes of every temp render of a parent asset
// once its job is done: the status rows always go, the blobs only when
// KeepWatermarkedBlobs is off.
func (s *Service) DeleteWatermarkedRenders(ctx context.Context, parentAssetID string) error {
	infos, err := s.store.ListWatermarkedAssetInfos(ctx, parentAssetID)
	if err != nil {
		return fmt.Errorf("list embed codes for asset %s: %w", parentAssetID, err)
	}
	for _, info := range infos {
		if err := s.store.DeleteWatermarkedRenders(ctx, parentAssetID, info.EmbeddedCode); err != nil {
			return fmt.Errorf("delete render rows for code %s: %w", info.EmbeddedCode, err)
		}
	}

	if s.cfg.KeepWatermarkedBlobs {
		s.logger.Info("keeping watermarked blobs", "parent_asset_id", parentAssetID)
		return nil
	}
	if err := s.blob.DeletePrefix(ctx, s.blobs.WatermarkedBucket, parentAssetID+"/"); err != nil {
		return fmt.Errorf("delete watermarked blobs for asset %s: %w", parentAssetID, err)
	}
	return nil
}
