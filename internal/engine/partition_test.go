package engine_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/forensiq/forensiq/internal/engine"
	queuemock "github.com/forensiq/forensiq/internal/queue/mock"
	storemock "github.com/forensiq/forensiq/internal/store/mock"
	"github.com/forensiq/forensiq/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManifest(renditions int, codes ...string) *models.Manifest {
	m := &models.Manifest{
		JobID:                         "job-1",
		AssetID:                       "asset-1",
		PreprocessorNotificationQueue: "preprocessorout",
		EmbedderNotificationQueue:     "embeddernotification",
	}
	for i := 0; i < renditions; i++ {
		name := fmt.Sprintf("r%d.mp4", i)
		m.VideoInformation = append(m.VideoInformation, models.VideoInformation{
			FileName: name,
			MP4URL:   "https://blob/src/" + name,
		})
	}
	for _, code := range codes {
		ec := models.EmbeddedCode{Code: code}
		for i := 0; i < renditions; i++ {
			ec.MP4WatermarkedURL = append(ec.MP4WatermarkedURL, models.MP4WatermarkedURL{
				FileName:       fmt.Sprintf("r%d.mp4", i),
				WaterMarkedMp4: fmt.Sprintf("https://blob/%s/r%d.mp4", code, i),
			})
		}
		m.EmbeddedCodes = append(m.EmbeddedCodes, ec)
	}
	return m
}

func TestPartitionManifest_AsymmetricSplit(t *testing.T) {
	m := testManifest(5, "0x01", "0x02")

	subs, err := engine.PartitionManifest(3, 1, m)
	require.NoError(t, err)
	require.Len(t, subs, 3, "1 batch + (5-3) singletons")

	assert.Len(t, subs[0].VideoInformation, 3)
	assert.Len(t, subs[1].VideoInformation, 1)
	assert.Len(t, subs[2].VideoInformation, 1)

	// No rendition lost or duplicated across the sub-manifests.
	seen := map[string]int{}
	for _, sub := range subs {
		require.Len(t, sub.EmbeddedCodes, 2)
		for _, code := range sub.EmbeddedCodes {
			require.Len(t, code.MP4WatermarkedURL, len(sub.VideoInformation))
			for j, v := range sub.VideoInformation {
				assert.Equal(t, v.FileName, code.MP4WatermarkedURL[j].FileName)
			}
		}
		for _, v := range sub.VideoInformation {
			seen[v.FileName]++
		}
		assert.Equal(t, "job-1", sub.JobID)
		assert.Equal(t, "asset-1", sub.AssetID)
	}
	assert.Len(t, seen, 5)
	for name, count := range seen {
		assert.Equal(t, 1, count, "rendition %s must appear exactly once", name)
	}
}

func TestPartitionManifest_LevelEqualsCount(t *testing.T) {
	m := testManifest(3, "0x01")

	subs, err := engine.PartitionManifest(3, 1, m)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Len(t, subs[0].VideoInformation, 3)
}

func TestPartitionManifest_OnlyEmbedOverride(t *testing.T) {
	m := testManifest(4, "0x01")
	// Empty source URL on the first rendition: MMRKs already exist.
	m.VideoInformation[0].MP4URL = ""

	subs, err := engine.PartitionManifest(3, 1, m)
	require.NoError(t, err)
	require.Len(t, subs, 4, "level 1 regardless of the passed aggregation level")
	for _, sub := range subs {
		assert.Len(t, sub.VideoInformation, 1)
	}
}

func TestPartitionManifest_LevelTooHigh(t *testing.T) {
	m := testManifest(2, "0x01")

	_, err := engine.PartitionManifest(3, 1, m)
	assert.ErrorIs(t, err, engine.ErrAggregationLevel)
}

func TestPartitionManifest_RaggedCodeList(t *testing.T) {
	m := testManifest(3, "0x01", "0x02")
	// One destination for three renditions.
	m.EmbeddedCodes[1].MP4WatermarkedURL = m.EmbeddedCodes[1].MP4WatermarkedURL[:1]

	_, err := engine.PartitionManifest(2, 1, m)
	require.ErrorIs(t, err, engine.ErrAggregationLevel)
	assert.Contains(t, err.Error(), "0x02")
}

func TestPartitionManifest_EmptyManifest(t *testing.T) {
	m := testManifest(0, "0x01")

	_, err := engine.PartitionManifest(3, 1, m)
	assert.ErrorIs(t, err, engine.ErrAggregationLevel)
}

func TestPartitionManifest_DoesNotMutateInput(t *testing.T) {
	m := testManifest(5, "0x01")

	subs, err := engine.PartitionManifest(3, 1, m)
	require.NoError(t, err)

	subs[0].VideoInformation[0].FileName = "mutated.mp4"
	assert.Equal(t, "r0.mp4", m.VideoInformation[0].FileName)
}

// --- SubmitJobs ---

func TestSubmitJobs_NamesAndCount(t *testing.T) {
	sub := &fakeSubmitter{}
	svc := newTestService(storemock.NewStore(), queuemock.NewQueue(), sub)

	count, err := svc.SubmitJobs(context.Background(), testManifest(5, "0x01"))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, []string{"job-1-1", "job-1-2", "job-1-3"}, sub.names)
}

func TestSubmitJobs_FirstFailureAborts(t *testing.T) {
	sub := &fakeSubmitter{fail: map[string]error{"job-1-2": assert.AnError}}
	svc := newTestService(storemock.NewStore(), queuemock.NewQueue(), sub)

	count, err := svc.SubmitJobs(context.Background(), testManifest(5, "0x01"))
	assert.Error(t, err)
	assert.Equal(t, 1, count, "only the jobs before the failure were submitted")
	assert.Equal(t, []string{"job-1-1"}, sub.names)
}

func TestSubmitJobs_InvalidLevel(t *testing.T) {
	svc := newTestService(storemock.NewStore(), queuemock.NewQueue(), &fakeSubmitter{})

	_, err := svc.SubmitJobs(context.Background(), testManifest(2, "0x01"))
	assert.ErrorIs(t, err, engine.ErrAggregationLevel)
}
