// Package mock provides an in-memory Store for unit tests.
package mock

import (
	"context"
	"sync"

	"github.com/forensiq/forensiq/internal/store"
	"github.com/forensiq/forensiq/pkg/models"
)

// Store is a thread-safe in-memory implementation of store.Store.
// Keying mirrors the Postgres schema: composite keys collapse to
// "partition|row" strings.
type Store struct {
	mu sync.Mutex

	assets  map[string]models.AssetStatus
	jobs    map[string]models.JobStatus // assetID|jobID
	jobsIdx map[string][]string         // assetID -> jobIDs in insert order
	infos   map[string]models.WatermarkedAssetInfo // parent|code
	mmrks   map[string]models.MMRKStatus           // assetID|rowKey
	renders map[string]models.WatermarkedRender    // partition|render
	locks   map[string]models.AssetProcessLock

	// FailUpserts makes every mutation fail, for transient-error tests.
	FailUpserts error
}

func NewStore() *Store {
	return &Store{
		assets:  map[string]models.AssetStatus{},
		jobs:    map[string]models.JobStatus{},
		jobsIdx: map[string][]string{},
		infos:   map[string]models.WatermarkedAssetInfo{},
		mmrks:   map[string]models.MMRKStatus{},
		renders: map[string]models.WatermarkedRender{},
		locks:   map[string]models.AssetProcessLock{},
	}
}

func key(partition, row string) string { return partition + "|" + row }

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) GetAssetStatus(_ context.Context, assetID string) (*models.AssetStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[assetID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s *Store) UpsertAssetStatus(_ context.Context, status *models.AssetStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpserts != nil {
		return s.FailUpserts
	}
	s.assets[status.AssetID] = *status
	return nil
}

func (s *Store) GetJobStatus(_ context.Context, assetID, jobID string) (*models.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[key(assetID, jobID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := j
	cp.EmbeddedCodes = append([]string(nil), j.EmbeddedCodes...)
	return &cp, nil
}

func (s *Store) UpsertJobStatus(_ context.Context, assetID string, job *models.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpserts != nil {
		return s.FailUpserts
	}
	k := key(assetID, job.JobID)
	if _, ok := s.jobs[k]; !ok {
		s.jobsIdx[assetID] = append(s.jobsIdx[assetID], job.JobID)
	}
	cp := *job
	cp.EmbeddedCodes = append([]string(nil), job.EmbeddedCodes...)
	s.jobs[k] = cp
	return nil
}

func (s *Store) ListJobStatuses(_ context.Context, assetID string) ([]*models.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.JobStatus
	for _, id := range s.jobsIdx[assetID] {
		j := s.jobs[key(assetID, id)]
		cp := j
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) AssetHasRunningJob(_ context.Context, assetID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.jobsIdx[assetID] {
		if s.jobs[key(assetID, id)].State == models.StatusRunning {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) GetWatermarkedAssetInfo(_ context.Context, parentAssetID, embeddedCode string) (*models.WatermarkedAssetInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.infos[key(parentAssetID, embeddedCode)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &w, nil
}

func (s *Store) UpsertWatermarkedAssetInfo(_ context.Context, info *models.WatermarkedAssetInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpserts != nil {
		return s.FailUpserts
	}
	s.infos[key(info.ParentAssetID, info.EmbeddedCode)] = *info
	return nil
}

func (s *Store) ListWatermarkedAssetInfos(_ context.Context, parentAssetID string) ([]*models.WatermarkedAssetInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.WatermarkedAssetInfo
	for _, w := range s.infos {
		if w.ParentAssetID == parentAssetID {
			cp := w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) GetMMRKStatus(_ context.Context, assetID, rowKey string) (*models.MMRKStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mmrks[key(assetID, rowKey)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *Store) UpsertMMRKStatus(_ context.Context, status *models.MMRKStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpserts != nil {
		return s.FailUpserts
	}
	s.mmrks[key(status.AssetID, models.MMRKRowKey(status.JobID, status.FileName))] = *status
	return nil
}

func (s *Store) ListMMRKStatuses(_ context.Context, assetID string) ([]*models.MMRKStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.MMRKStatus
	for _, m := range s.mmrks {
		if m.AssetID == assetID {
			cp := m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) GetWatermarkedRender(_ context.Context, parentAssetID, embeddedCode, renderName string) (*models.WatermarkedRender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.renders[key(models.RenderPartition(parentAssetID, embeddedCode), renderName)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *Store) UpsertWatermarkedRender(_ context.Context, render *models.WatermarkedRender) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpserts != nil {
		return s.FailUpserts
	}
	s.renders[key(models.RenderPartition(render.ParentAssetID, render.EmbeddedCode), render.RenderName)] = *render
	return nil
}

func (s *Store) ListWatermarkedRenders(_ context.Context, parentAssetID, embeddedCode string) ([]*models.WatermarkedRender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	partition := models.RenderPartition(parentAssetID, embeddedCode)
	var out []*models.WatermarkedRender
	for _, r := range s.renders {
		if models.RenderPartition(r.ParentAssetID, r.EmbeddedCode) == partition {
			cp := r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) DeleteWatermarkedRenders(_ context.Context, parentAssetID, embeddedCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	partition := models.RenderPartition(parentAssetID, embeddedCode)
	for k, r := range s.renders {
		if models.RenderPartition(r.ParentAssetID, r.EmbeddedCode) == partition {
			delete(s.renders, k)
		}
	}
	return nil
}

func (s *Store) InsertProcessLock(_ context.Context, lock *models.AssetProcessLock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locks[lock.AssetID]; ok {
		return store.ErrDuplicateKey
	}
	s.locks[lock.AssetID] = *lock
	return nil
}

func (s *Store) DeleteProcessLock(_ context.Context, assetID, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[assetID]
	if !ok || l.JobID != jobID {
		return store.ErrNotFound
	}
	delete(s.locks, assetID)
	return nil
}

// Locked reports whether an asset lock row currently exists.
func (s *Store) Locked(assetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.locks[assetID]
	return ok
}

// RenderCount reports the number of render rows, all partitions included.
func (s *Store) RenderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.renders)
}
