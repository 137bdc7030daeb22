package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forensiq/forensiq/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Asset status ---

func (s *PostgresStore) GetAssetStatus(ctx context.Context, assetID string) (*models.AssetStatus, error) {
	var a models.AssetStatus
	var state string
	err := s.pool.QueryRow(ctx,
		`SELECT asset_id, state FROM asset_status WHERE asset_id = $1`, assetID,
	).Scan(&a.AssetID, &state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get asset status: %w", err)
	}
	if a.State, err = models.ParseExecutionStatus(state); err != nil {
		return nil, fmt.Errorf("decode asset status: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) UpsertAssetStatus(ctx context.Context, status *models.AssetStatus) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO asset_status (asset_id, state, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (asset_id) DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()`,
		status.AssetID, string(status.State))
	if err != nil {
		return fmt.Errorf("upsert asset status: %w", err)
	}
	return nil
}

// --- Job status ---

func (s *PostgresStore) GetJobStatus(ctx context.Context, assetID, jobID string) (*models.JobStatus, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT job_id, state, details, start_time, finish_time, duration, embedded_codes
		 FROM job_status WHERE asset_id = $1 AND job_id = $2`, assetID, jobID)
	job, err := scanJobStatus(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job status: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) UpsertJobStatus(ctx context.Context, assetID string, job *models.JobStatus) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO job_status (asset_id, job_id, state, details, start_time, finish_time, duration, embedded_codes, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		 ON CONFLICT (asset_id, job_id) DO UPDATE SET
		   state = EXCLUDED.state, details = EXCLUDED.details,
		   start_time = EXCLUDED.start_time, finish_time = EXCLUDED.finish_time,
		   duration = EXCLUDED.duration, embedded_codes = EXCLUDED.embedded_codes,
		   updated_at = NOW()`,
		assetID, job.JobID, string(job.State), job.Details, job.StartTime,
		job.FinishTime, job.Duration, job.EmbeddedCodes)
	if err != nil {
		return fmt.Errorf("upsert job status: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListJobStatuses(ctx context.Context, assetID string) ([]*models.JobStatus, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT job_id, state, details, start_time, finish_time, duration, embedded_codes
		 FROM job_status WHERE asset_id = $1 ORDER BY start_time`, assetID)
	if err != nil {
		return nil, fmt.Errorf("list job statuses: %w", err)
	}
	defer rows.Close()

	var jobs []*models.JobStatus
	for rows.Next() {
		job, err := scanJobStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job status: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) AssetHasRunningJob(ctx context.Context, assetID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM job_status WHERE asset_id = $1 AND state = $2)`,
		assetID, string(models.StatusRunning),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check running jobs: %w", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobStatus(row rowScanner) (*models.JobStatus, error) {
	var j models.JobStatus
	var state string
	if err := row.Scan(&j.JobID, &state, &j.Details, &j.StartTime,
		&j.FinishTime, &j.Duration, &j.EmbeddedCodes); err != nil {
		return nil, err
	}
	var err error
	if j.State, err = models.ParseExecutionStatus(state); err != nil {
		return nil, fmt.Errorf("decode job status: %w", err)
	}
	return &j, nil
}

// --- Watermarked asset info (per embed code) ---

func (s *PostgresStore) GetWatermarkedAssetInfo(ctx context.Context, parentAssetID, embeddedCode string) (*models.WatermarkedAssetInfo, error) {
	var w models.WatermarkedAssetInfo
	var state string
	err := s.pool.QueryRow(ctx,
		`SELECT parent_asset_id, embedded_code, state, asset_id, details
		 FROM watermarked_asset_info WHERE parent_asset_id = $1 AND embedded_code = $2`,
		parentAssetID, embeddedCode,
	).Scan(&w.ParentAssetID, &w.EmbeddedCode, &state, &w.AssetID, &w.Details)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get watermarked asset info: %w", err)
	}
	if w.State, err = models.ParseExecutionStatus(state); err != nil {
		return nil, fmt.Errorf("decode watermarked asset info: %w", err)
	}
	return &w, nil
}

func (s *PostgresStore) UpsertWatermarkedAssetInfo(ctx context.Context, info *models.WatermarkedAssetInfo) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO watermarked_asset_info (parent_asset_id, embedded_code, state, asset_id, details, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (parent_asset_id, embedded_code) DO UPDATE SET
		   state = EXCLUDED.state, asset_id = EXCLUDED.asset_id,
		   details = EXCLUDED.details, updated_at = NOW()`,
		info.ParentAssetID, info.EmbeddedCode, string(info.State), info.AssetID, info.Details)
	if err != nil {
		return fmt.Errorf("upsert watermarked asset info: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListWatermarkedAssetInfos(ctx context.Context, parentAssetID string) ([]*models.WatermarkedAssetInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT parent_asset_id, embedded_code, state, asset_id, details
		 FROM watermarked_asset_info WHERE parent_asset_id = $1 ORDER BY embedded_code`, parentAssetID)
	if err != nil {
		return nil, fmt.Errorf("list watermarked asset infos: %w", err)
	}
	defer rows.Close()

	var infos []*models.WatermarkedAssetInfo
	for rows.Next() {
		var w models.WatermarkedAssetInfo
		var state string
		if err := rows.Scan(&w.ParentAssetID, &w.EmbeddedCode, &state, &w.AssetID, &w.Details); err != nil {
			return nil, fmt.Errorf("scan watermarked asset info: %w", err)
		}
		if w.State, err = models.ParseExecutionStatus(state); err != nil {
			return nil, fmt.Errorf("decode watermarked asset info: %w", err)
		}
		infos = append(infos, &w)
	}
	return infos, rows.Err()
}

// --- MMRK status (per preprocessing render) ---

func (s *PostgresStore) GetMMRKStatus(ctx context.Context, assetID, rowKey string) (*models.MMRKStatus, error) {
	var m models.MMRKStatus
	var state string
	err := s.pool.QueryRow(ctx,
		`SELECT asset_id, job_id, file_name, state, details, file_url
		 FROM mmrk_status WHERE asset_id = $1 AND row_key = $2`, assetID, rowKey,
	).Scan(&m.AssetID, &m.JobID, &m.FileName, &state, &m.Details, &m.FileURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mmrk status: %w", err)
	}
	if m.State, err = models.ParseExecutionStatus(state); err != nil {
		return nil, fmt.Errorf("decode mmrk status: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) UpsertMMRKStatus(ctx context.Context, status *models.MMRKStatus) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO mmrk_status (asset_id, row_key, job_id, file_name, state, details, file_url, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (asset_id, row_key) DO UPDATE SET
		   state = EXCLUDED.state, details = EXCLUDED.details,
		   file_url = EXCLUDED.file_url, updated_at = NOW()`,
		status.AssetID, models.MMRKRowKey(status.JobID, status.FileName),
		status.JobID, status.FileName, string(status.State), status.Details, status.FileURL)
	if err != nil {
		return fmt.Errorf("upsert mmrk status: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMMRKStatuses(ctx context.Context, assetID string) ([]*models.MMRKStatus, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT asset_id, job_id, file_name, state, details, file_url
		 FROM mmrk_status WHERE asset_id = $1 ORDER BY row_key`, assetID)
	if err != nil {
		return nil, fmt.Errorf("list mmrk statuses: %w", err)
	}
	defer rows.Close()

	var statuses []*models.MMRKStatus
	for rows.Next() {
		var m models.MMRKStatus
		var state string
		if err := rows.Scan(&m.AssetID, &m.JobID, &m.FileName, &state, &m.Details, &m.FileURL); err != nil {
			return nil, fmt.Errorf("scan mmrk status: %w", err)
		}
		if m.State, err = models.ParseExecutionStatus(state); err != nil {
			return nil, fmt.Errorf("decode mmrk status: %w", err)
		}
		statuses = append(statuses, &m)
	}
	return statuses, rows.Err()
}

// --- Watermarked renders (per embed code, per rendition) ---

func (s *PostgresStore) GetWatermarkedRender(ctx context.Context, parentAssetID, embeddedCode, renderName string) (*models.WatermarkedRender, error) {
	var r models.WatermarkedRender
	var state string
	err := s.pool.QueryRow(ctx,
		`SELECT parent_asset_id, embedded_code, render_name, state, mp4_url, details
		 FROM watermarked_render WHERE partition_key = $1 AND render_name = $2`,
		models.RenderPartition(parentAssetID, embeddedCode), renderName,
	).Scan(&r.ParentAssetID, &r.EmbeddedCode, &r.RenderName, &state, &r.MP4URL, &r.Details)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get watermarked render: %w", err)
	}
	if r.State, err = models.ParseExecutionStatus(state); err != nil {
		return nil, fmt.Errorf("decode watermarked render: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) UpsertWatermarkedRender(ctx context.Context, render *models.WatermarkedRender) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO watermarked_render (partition_key, render_name, parent_asset_id, embedded_code, state, mp4_url, details, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (partition_key, render_name) DO UPDATE SET
		   state = EXCLUDED.state, mp4_url = EXCLUDED.mp4_url,
		   details = EXCLUDED.details, updated_at = NOW()`,
		models.RenderPartition(render.ParentAssetID, render.EmbeddedCode), render.RenderName,
		render.ParentAssetID, render.EmbeddedCode, string(render.State), render.MP4URL, render.Details)
	if err != nil {
		return fmt.Errorf("upsert watermarked render: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListWatermarkedRenders(ctx context.Context, parentAssetID, embeddedCode string) ([]*models.WatermarkedRender, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT parent_asset_id, embedded_code, render_name, state, mp4_url, details
		 FROM watermarked_render WHERE partition_key = $1 ORDER BY render_name`,
		models.RenderPartition(parentAssetID, embeddedCode))
	if err != nil {
		return nil, fmt.Errorf("list watermarked renders: %w", err)
	}
	defer rows.Close()

	var renders []*models.WatermarkedRender
	for rows.Next() {
		var r models.WatermarkedRender
		var state string
		if err := rows.Scan(&r.ParentAssetID, &r.EmbeddedCode, &r.RenderName, &state, &r.MP4URL, &r.Details); err != nil {
			return nil, fmt.Errorf("scan watermarked render: %w", err)
		}
		if r.State, err = models.ParseExecutionStatus(state); err != nil {
			return nil, fmt.Errorf("decode watermarked render: %w", err)
		}
		renders = append(renders, &r)
	}
	return renders, rows.Err()
}

func (s *PostgresStore) DeleteWatermarkedRenders(ctx context.Context, parentAssetID, embeddedCode string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM watermarked_render WHERE partition_key = $1`,
		models.RenderPartition(parentAssetID, embeddedCode))
	if err != nil {
		return fmt.Errorf("delete watermarked renders: %w", err)
	}
	return nil
}

// --- Asset process lock ---

// InsertProcessLock is the insert-if-absent lock primitive. It returns
// ErrDuplicateKey when the asset is already locked.
func (s *PostgresStore) InsertProcessLock(ctx context.Context, lock *models.AssetProcessLock) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO asset_process_lock (asset_id, job_id, acquired_at) VALUES ($1, $2, NOW())`,
		lock.AssetID, lock.JobID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert process lock: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteProcessLock(ctx context.Context, assetID, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM asset_process_lock WHERE asset_id = $1 AND job_id = $2`, assetID, jobID)
	if err != nil {
		return fmt.Errorf("delete process lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
