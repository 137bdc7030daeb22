// Package engine implements the watermarking process state machine: admission
// control for new processes, notification consumption, status re-aggregation,
// manifest partitioning and job submission.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/forensiq/forensiq/internal/config"
	"github.com/forensiq/forensiq/internal/lock"
	"github.com/forensiq/forensiq/internal/queue"
	"github.com/forensiq/forensiq/internal/store"
	"github.com/forensiq/forensiq/pkg/models"
)

// Validation errors. These indicate caller bugs and map to 4xx responses.
var (
	ErrDuplicateEmbeddedCodes = errors.New("duplicate embedded codes in request")
	ErrAggregationLevel       = errors.New("aggregation level exceeds rendition count")
	ErrNoEmbeddedCodes        = errors.New("at least one embedded code is required")
)

// Details strings written into status rows. Pollers read these verbatim, so
// they are part of the service contract.
const (
	detailsMMRKGenerationError = "MMRK Files Generation Error"
	detailsAnotherProcess      = "another process already running on asset"
	detailsAssetReadybut       = "Asset ready but another process is running on asset"
)

// JobSubmitter submits one partitioned manifest to the cluster as a batch job.
type JobSubmitter interface {
	SubmitJob(ctx context.Context, jobName string, manifest *models.Manifest) error
}

// Service is the orchestration engine. All operations are synchronous,
// independently retriable units; durable state lives entirely in the store.
type Service struct {
	store   store.Store
	queue   queue.Queue
	locks   *lock.Manager
	cluster JobSubmitter
	cfg     config.PipelineConfig
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(st store.Store, q queue.Queue, locks *lock.Manager, cluster JobSubmitter, cfg config.PipelineConfig, logger *slog.Logger) *Service {
	return &Service{
		store:   st,
		queue:   q,
		locks:   locks,
		cluster: cluster,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// persistUnified writes the whole status bundle row by row. There is no
// cross-row transaction; each row is independently upserted and the eval
// operations recompute from source of truth on the next poll.
func (s *Service) persistUnified(ctx context.Context, status *models.UnifiedProcessStatus) error {
	if err := s.store.UpsertAssetStatus(ctx, &status.AssetStatus); err != nil {
		return err
	}
	if err := s.store.UpsertJobStatus(ctx, status.AssetStatus.AssetID, &status.JobStatus); err != nil {
		return err
	}
	for i := range status.EmbeddedCodesList {
		if err := s.store.UpsertWatermarkedAssetInfo(ctx, &status.EmbeddedCodesList[i]); err != nil {
			return err
		}
	}
	return nil
}
