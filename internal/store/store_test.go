package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/forensiq/forensiq/internal/store"
	"github.com/forensiq/forensiq/pkg/models"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("forensiq_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Run migrations
	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

// --- Asset Status Tests ---

func TestAssetStatus_UpsertAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	err := s.UpsertAssetStatus(ctx, &models.AssetStatus{AssetID: "asset-1", State: models.StatusRunning})
	require.NoError(t, err)

	got, err := s.GetAssetStatus(ctx, "asset-1")
	require.NoError(t, err)
	assert.Equal(t, "asset-1", got.AssetID)
	assert.Equal(t, models.StatusRunning, got.State)

	// Upsert over the same row moves the state.
	err = s.UpsertAssetStatus(ctx, &models.AssetStatus{AssetID: "asset-1", State: models.StatusFinished})
	require.NoError(t, err)

	got, err = s.GetAssetStatus(ctx, "asset-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, got.State)
}

func TestAssetStatus_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetAssetStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Job Status Tests ---

func TestJobStatus_UpsertAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Microsecond)
	job := &models.JobStatus{
		JobID:         "job-1",
		State:         models.StatusRunning,
		Details:       "queued",
		StartTime:     start,
		EmbeddedCodes: []string{"0x01", "0x02"},
	}
	require.NoError(t, s.UpsertJobStatus(ctx, "asset-1", job))

	got, err := s.GetJobStatus(ctx, "asset-1", "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, models.StatusRunning, got.State)
	assert.Equal(t, "queued", got.Details)
	assert.Equal(t, start, got.StartTime)
	assert.Nil(t, got.FinishTime)
	assert.Equal(t, []string{"0x01", "0x02"}, got.EmbeddedCodes)
}

func TestJobStatus_FinalizedRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Microsecond)
	job := &models.JobStatus{
		JobID:         "job-1",
		State:         models.StatusRunning,
		StartTime:     start,
		EmbeddedCodes: []string{"0x01"},
	}
	require.NoError(t, s.UpsertJobStatus(ctx, "asset-1", job))

	job.State = models.StatusFinished
	job.Finalize(start.Add(90 * time.Second))
	require.NoError(t, s.UpsertJobStatus(ctx, "asset-1", job))

	got, err := s.GetJobStatus(ctx, "asset-1", "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, got.State)
	require.NotNil(t, got.FinishTime)
	assert.Equal(t, start.Add(90*time.Second), *got.FinishTime)
	assert.Equal(t, "1m30s", got.Duration)
}

func TestJobStatus_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetJobStatus(context.Background(), "asset-1", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJobStatus_ListOrderedByStartTime(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i, id := range []string{"job-c", "job-a", "job-b"} {
		require.NoError(t, s.UpsertJobStatus(ctx, "asset-1", &models.JobStatus{
			JobID:         id,
			State:         models.StatusFinished,
			StartTime:     base.Add(time.Duration(i) * time.Minute),
			EmbeddedCodes: []string{"0x01"},
		}))
	}
	// Job on a different asset must not leak in.
	require.NoError(t, s.UpsertJobStatus(ctx, "asset-2", &models.JobStatus{
		JobID:         "job-other",
		State:         models.StatusRunning,
		StartTime:     base,
		EmbeddedCodes: []string{"0x01"},
	}))

	jobs, err := s.ListJobStatuses(ctx, "asset-1")
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "job-c", jobs[0].JobID)
	assert.Equal(t, "job-a", jobs[1].JobID)
	assert.Equal(t, "job-b", jobs[2].JobID)
}

func TestAssetHasRunningJob(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	running, err := s.AssetHasRunningJob(ctx, "asset-1")
	require.NoError(t, err)
	assert.False(t, running)

	job := &models.JobStatus{
		JobID:         "job-1",
		State:         models.StatusRunning,
		StartTime:     time.Now().UTC(),
		EmbeddedCodes: []string{"0x01"},
	}
	require.NoError(t, s.UpsertJobStatus(ctx, "asset-1", job))

	running, err = s.AssetHasRunningJob(ctx, "asset-1")
	require.NoError(t, err)
	assert.True(t, running)

	job.State = models.StatusFinished
	require.NoError(t, s.UpsertJobStatus(ctx, "asset-1", job))

	running, err = s.AssetHasRunningJob(ctx, "asset-1")
	require.NoError(t, err)
	assert.False(t, running)
}

// --- Watermarked Asset Info Tests ---

func TestWatermarkedAssetInfo_UpsertAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	info := &models.WatermarkedAssetInfo{
		ParentAssetID: "asset-1",
		EmbeddedCode:  "0x01",
		State:         models.StatusRunning,
	}
	require.NoError(t, s.UpsertWatermarkedAssetInfo(ctx, info))

	got, err := s.GetWatermarkedAssetInfo(ctx, "asset-1", "0x01")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, got.State)
	assert.Empty(t, got.AssetID)

	// Assembly stamps the output asset id.
	info.State = models.StatusFinished
	info.AssetID = "out-1"
	info.Details = "output asset created"
	require.NoError(t, s.UpsertWatermarkedAssetInfo(ctx, info))

	got, err = s.GetWatermarkedAssetInfo(ctx, "asset-1", "0x01")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, got.State)
	assert.Equal(t, "out-1", got.AssetID)
	assert.Equal(t, "output asset created", got.Details)
}

func TestWatermarkedAssetInfo_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetWatermarkedAssetInfo(context.Background(), "asset-1", "0xff")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWatermarkedAssetInfo_ListOrderedByCode(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	for _, code := range []string{"0x03", "0x01", "0x02"} {
		require.NoError(t, s.UpsertWatermarkedAssetInfo(ctx, &models.WatermarkedAssetInfo{
			ParentAssetID: "asset-1",
			EmbeddedCode:  code,
			State:         models.StatusNew,
		}))
	}
	require.NoError(t, s.UpsertWatermarkedAssetInfo(ctx, &models.WatermarkedAssetInfo{
		ParentAssetID: "asset-2",
		EmbeddedCode:  "0x01",
		State:         models.StatusNew,
	}))

	infos, err := s.ListWatermarkedAssetInfos(ctx, "asset-1")
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "0x01", infos[0].EmbeddedCode)
	assert.Equal(t, "0x02", infos[1].EmbeddedCode)
	assert.Equal(t, "0x03", infos[2].EmbeddedCode)
}

// --- MMRK Status Tests ---

func TestMMRKStatus_UpsertAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	status := &models.MMRKStatus{
		JobID:    "job-1",
		AssetID:  "asset-1",
		FileName: "4500.mp4",
		State:    models.StatusRunning,
		Details:  "preprocessor started",
	}
	require.NoError(t, s.UpsertMMRKStatus(ctx, status))

	got, err := s.GetMMRKStatus(ctx, "asset-1", models.MMRKRowKey("job-1", "4500.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, "4500.mp4", got.FileName)
	assert.Equal(t, models.StatusRunning, got.State)

	status.State = models.StatusFinished
	status.FileURL = "mmrkrepo/asset-1/4500.mmrk"
	require.NoError(t, s.UpsertMMRKStatus(ctx, status))

	got, err = s.GetMMRKStatus(ctx, "asset-1", models.MMRKRowKey("job-1", "4500.mp4"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, got.State)
	assert.Equal(t, "mmrkrepo/asset-1/4500.mmrk", got.FileURL)
}

func TestMMRKStatus_JobsDoNotCollide(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	// Same asset and file name under two jobs stays two rows.
	require.NoError(t, s.UpsertMMRKStatus(ctx, &models.MMRKStatus{
		JobID: "job-1", AssetID: "asset-1", FileName: "4500.mp4", State: models.StatusFinished,
	}))
	require.NoError(t, s.UpsertMMRKStatus(ctx, &models.MMRKStatus{
		JobID: "job-2", AssetID: "asset-1", FileName: "4500.mp4", State: models.StatusRunning,
	}))

	statuses, err := s.ListMMRKStatuses(ctx, "asset-1")
	require.NoError(t, err)
	assert.Len(t, statuses, 2)
}

func TestMMRKStatus_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetMMRKStatus(context.Background(), "asset-1", models.MMRKRowKey("job-1", "missing.mp4"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Watermarked Render Tests ---

func TestWatermarkedRender_UpsertAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	render := &models.WatermarkedRender{
		ParentAssetID: "asset-1",
		EmbeddedCode:  "0x01",
		RenderName:    "4500.mp4",
		State:         models.StatusRunning,
	}
	require.NoError(t, s.UpsertWatermarkedRender(ctx, render))

	got, err := s.GetWatermarkedRender(ctx, "asset-1", "0x01", "4500.mp4")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, got.State)

	render.State = models.StatusFinished
	render.MP4URL = "watermarked/asset-1/0x01/4500.mp4"
	require.NoError(t, s.UpsertWatermarkedRender(ctx, render))

	got, err = s.GetWatermarkedRender(ctx, "asset-1", "0x01", "4500.mp4")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, got.State)
	assert.Equal(t, "watermarked/asset-1/0x01/4500.mp4", got.MP4URL)
}

func TestWatermarkedRender_ListScopedToCode(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	for _, name := range []string{"900.mp4", "4500.mp4", "1500.mp4"} {
		require.NoError(t, s.UpsertWatermarkedRender(ctx, &models.WatermarkedRender{
			ParentAssetID: "asset-1", EmbeddedCode: "0x01", RenderName: name, State: models.StatusFinished,
		}))
	}
	require.NoError(t, s.UpsertWatermarkedRender(ctx, &models.WatermarkedRender{
		ParentAssetID: "asset-1", EmbeddedCode: "0x02", RenderName: "900.mp4", State: models.StatusFinished,
	}))

	renders, err := s.ListWatermarkedRenders(ctx, "asset-1", "0x01")
	require.NoError(t, err)
	require.Len(t, renders, 3)
	assert.Equal(t, "1500.mp4", renders[0].RenderName)
	assert.Equal(t, "4500.mp4", renders[1].RenderName)
	assert.Equal(t, "900.mp4", renders[2].RenderName)
}

func TestWatermarkedRender_Delete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	for _, name := range []string{"900.mp4", "4500.mp4"} {
		require.NoError(t, s.UpsertWatermarkedRender(ctx, &models.WatermarkedRender{
			ParentAssetID: "asset-1", EmbeddedCode: "0x01", RenderName: name, State: models.StatusFinished,
		}))
	}
	require.NoError(t, s.UpsertWatermarkedRender(ctx, &models.WatermarkedRender{
		ParentAssetID: "asset-1", EmbeddedCode: "0x02", RenderName: "900.mp4", State: models.StatusFinished,
	}))

	require.NoError(t, s.DeleteWatermarkedRenders(ctx, "asset-1", "0x01"))

	renders, err := s.ListWatermarkedRenders(ctx, "asset-1", "0x01")
	require.NoError(t, err)
	assert.Empty(t, renders)

	// The other code's renders survive.
	renders, err = s.ListWatermarkedRenders(ctx, "asset-1", "0x02")
	require.NoError(t, err)
	assert.Len(t, renders, 1)
}

func TestWatermarkedRender_DeleteEmptyIsNoop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.DeleteWatermarkedRenders(context.Background(), "asset-1", "0x01")
	assert.NoError(t, err)
}

// --- Process Lock Tests ---

func TestProcessLock_InsertAndDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	lock := &models.AssetProcessLock{AssetID: "asset-1", JobID: "job-1"}
	require.NoError(t, s.InsertProcessLock(ctx, lock))

	err := s.DeleteProcessLock(ctx, "asset-1", "job-1")
	require.NoError(t, err)

	// Released lock can be re-acquired.
	require.NoError(t, s.InsertProcessLock(ctx, &models.AssetProcessLock{AssetID: "asset-1", JobID: "job-2"}))
}

func TestProcessLock_InsertDuplicate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	require.NoError(t, s.InsertProcessLock(ctx, &models.AssetProcessLock{AssetID: "asset-1", JobID: "job-1"}))

	err := s.InsertProcessLock(ctx, &models.AssetProcessLock{AssetID: "asset-1", JobID: "job-2"})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestProcessLock_DeleteNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.DeleteProcessLock(context.Background(), "asset-1", "job-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcessLock_DeleteWrongJobID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	require.NoError(t, s.InsertProcessLock(ctx, &models.AssetProcessLock{AssetID: "asset-1", JobID: "job-1"}))

	// Only the lock holder may release.
	err := s.DeleteProcessLock(ctx, "asset-1", "job-2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	assert.NoError(t, s.Ping(context.Background()))
}
