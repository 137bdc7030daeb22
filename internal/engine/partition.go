package engine

import (
	"context"
	"fmt"

	"github.com/forensiq/forensiq/pkg/models"
)

// PartitionManifest splits a manifest of N renditions into cluster-job-sized
// sub-manifests: one batch with the first `level` renditions and a singleton
// per remaining rendition. The asymmetric split front-loads the shared
// preprocessing work into one pod while isolating the variable-cost tail.
//
// An empty MP4URL on the first rendition means the MMRK artifacts already
// exist, so aggregationLevelOnlyEmbed is used instead; embedding-only jobs
// are cheap enough to batch differently.
func PartitionManifest(aggregationLevel, aggregationLevelOnlyEmbed int, m *models.Manifest) ([]*models.Manifest, error) {
	n := len(m.VideoInformation)
	if n == 0 {
		return nil, fmt.Errorf("%w: manifest has no renditions", ErrAggregationLevel)
	}
	for _, code := range m.EmbeddedCodes {
		if len(code.MP4WatermarkedURL) != n {
			return nil, fmt.Errorf("%w: code %s has %d watermark destinations, renditions %d",
				ErrAggregationLevel, code.Code, len(code.MP4WatermarkedURL), n)
		}
	}

	level := aggregationLevel
	if m.VideoInformation[0].MP4URL == "" {
		level = aggregationLevelOnlyEmbed
	}
	if level > n {
		return nil, fmt.Errorf("%w: level %d, renditions %d", ErrAggregationLevel, level, n)
	}

	subs := []*models.Manifest{subManifest(m, 0, level)}
	for i := level; i < n; i++ {
		subs = append(subs, subManifest(m, i, i+1))
	}
	return subs, nil
}

// subManifest copies the manifest restricted to renditions [from, to), with
// every code's watermark destination list sliced to match.
func subManifest(m *models.Manifest, from, to int) *models.Manifest {
	sub := &models.Manifest{
		JobID:                         m.JobID,
		AssetID:                       m.AssetID,
		PreprocessorNotificationQueue: m.PreprocessorNotificationQueue,
		EmbedderNotificationQueue:     m.EmbedderNotificationQueue,
		VideoInformation:              append([]models.VideoInformation(nil), m.VideoInformation[from:to]...),
	}
	for _, code := range m.EmbeddedCodes {
		sub.EmbeddedCodes = append(sub.EmbeddedCodes, models.EmbeddedCode{
			Code:              code.Code,
			MP4WatermarkedURL: append([]models.MP4WatermarkedURL(nil), code.MP4WatermarkedURL[from:to]...),
		})
	}
	return sub
}

// SubmitJobs partitions the manifest and submits each sub-manifest to the
// cluster as job "<jobID>-<n>". The first submission failure aborts; jobs
// already submitted keep running and report through the queues as usual.
func (s *Service) SubmitJobs(ctx context.Context, m *models.Manifest) (int, error) {
	subs, err := PartitionManifest(s.cfg.AggregationLevel, s.cfg.AggregationLevelOnlyEmbed, m)
	if err != nil {
		return 0, err
	}

	for i, sub := range subs {
		name := fmt.Sprintf("%s-%d", m.JobID, i+1)
		if err := s.cluster.SubmitJob(ctx, name, sub); err != nil {
			return i, fmt.Errorf("submit job %s: %w", name, err)
		}
		s.logger.Info("submitted cluster job", "job_name", name, "renditions", len(sub.VideoInformation))
	}
	return len(subs), nil
}
