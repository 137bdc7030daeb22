package store

import (
	"context"
	"errors"

	"github.com/forensiq/forensiq/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the durable status store. Single-row upsert is the only mutation
// primitive; there are no cross-row transactions. Consistency at the process
// level comes from idempotent recompute-from-source-of-truth and from the
// asset process lock, not from the store.
type Store interface {
	Ping(ctx context.Context) error

	GetAssetStatus(ctx context.Context, assetID string) (*models.AssetStatus, error)
	UpsertAssetStatus(ctx context.Context, status *models.AssetStatus) error

	GetJobStatus(ctx context.Context, assetID, jobID string) (*models.JobStatus, error)
	UpsertJobStatus(ctx context.Context, assetID string, job *models.JobStatus) error
	ListJobStatuses(ctx context.Context, assetID string) ([]*models.JobStatus, error)
	AssetHasRunningJob(ctx context.Context, assetID string) (bool, error)

	GetWatermarkedAssetInfo(ctx context.Context, parentAssetID, embeddedCode string) (*models.WatermarkedAssetInfo, error)
	UpsertWatermarkedAssetInfo(ctx context.Context, info *models.WatermarkedAssetInfo) error
	ListWatermarkedAssetInfos(ctx context.Context, parentAssetID string) ([]*models.WatermarkedAssetInfo, error)

	GetMMRKStatus(ctx context.Context, assetID, rowKey string) (*models.MMRKStatus, error)
	UpsertMMRKStatus(ctx context.Context, status *models.MMRKStatus) error
	ListMMRKStatuses(ctx context.Context, assetID string) ([]*models.MMRKStatus, error)

	GetWatermarkedRender(ctx context.Context, parentAssetID, embeddedCode, renderName string) (*models.WatermarkedRender, error)
	UpsertWatermarkedRender(ctx context.Context, render *models.WatermarkedRender) error
	ListWatermarkedRenders(ctx context.Context, parentAssetID, embeddedCode string) ([]*models.WatermarkedRender, error)
	DeleteWatermarkedRenders(ctx context.Context, parentAssetID, embeddedCode string) error

	InsertProcessLock(ctx context.Context, lock *models.AssetProcessLock) error
	DeleteProcessLock(ctx context.Context, assetID, jobID string) error
}
