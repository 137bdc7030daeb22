// Package lock serializes processes on an asset via a database lock row.
package lock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/forensiq/forensiq/internal/store"
	"github.com/forensiq/forensiq/pkg/models"
)

// Manager acquires and releases per-asset process locks. A lock is a
// row inserted into the store; insertion fails while another process
// holds the row, so at most one holder exists per asset.
type Manager struct {
	store  store.Store
	logger *slog.Logger
}

func NewManager(st store.Store, logger *slog.Logger) *Manager {
	return &Manager{store: st, logger: logger}
}

// Acquire tries to take the lock for assetID on behalf of jobID,
// retrying every retryDelay until timeout elapses. It returns true if
// the lock was taken, false if another holder kept it for the whole
// window. Storage errors other than a duplicate key abort the wait.
func (m *Manager) Acquire(ctx context.Context, assetID, jobID string, timeout, retryDelay time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		err := m.store.InsertProcessLock(ctx, &models.AssetProcessLock{AssetID: assetID, JobID: jobID})
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, store.ErrDuplicateKey) {
			return false, err
		}
		if time.Now().Add(retryDelay).After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

// Release drops the lock for assetID held by jobID. A missing row is
// logged and swallowed; any other failure is returned so the caller
// surfaces it, since a stuck lock blocks every later process on the
// asset.
func (m *Manager) Release(ctx context.Context, assetID, jobID string) error {
	err := m.store.DeleteProcessLock(ctx, assetID, jobID)
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		m.logger.Warn("process lock already released", "asset_id", assetID, "job_id", jobID)
		return nil
	}
	m.logger.Error("failed to release process lock", "asset_id", assetID, "job_id", jobID, "error", err)
	return err
}
