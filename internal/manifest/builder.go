// Package manifest builds the cluster job manifest for a watermarking
// process from the asset's source renditions in blob storage.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/forensiq/forensiq/internal/blob"
	"github.com/forensiq/forensiq/internal/config"
	"github.com/forensiq/forensiq/internal/store"
	"github.com/forensiq/forensiq/pkg/models"
)

// ErrNoRenditions means the source bucket holds no .mp4 files for the asset.
var ErrNoRenditions = errors.New("asset has no mp4 renditions")

// Builder assembles job manifests. Renditions are listed from the source
// bucket and ordered by size so the aggregated first sub-manifest gets the
// cheap ones.
type Builder struct {
	store   store.Store
	blob    blob.Client
	cfg     config.BlobConfig
	gopSize string
}

func NewBuilder(st store.Store, blobClient blob.Client, cfg config.BlobConfig, gopSize string) *Builder {
	return &Builder{store: st, blob: blobClient, cfg: cfg, gopSize: gopSize}
}

// Build creates the manifest for one job. When the asset is already Finished
// its MMRK artifacts exist, so every rendition's source URL is left empty and
// the workers skip preprocessing. Upload destinations are presigned so the
// workers never hold storage credentials.
func (b *Builder) Build(ctx context.Context, assetID, jobID string, codes []string) (*models.Manifest, error) {
	objects, err := b.blob.List(ctx, b.cfg.SourceBucket, assetID+"/")
	if err != nil {
		return nil, fmt.Errorf("list source renditions: %w", err)
	}
	var renditions []blob.Object
	for _, obj := range objects {
		if strings.HasSuffix(strings.ToLower(obj.Key), ".mp4") {
			renditions = append(renditions, obj)
		}
	}
	if len(renditions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRenditions, assetID)
	}
	sort.Slice(renditions, func(i, j int) bool { return renditions[i].Size < renditions[j].Size })

	preprocessed, err := b.assetPreprocessed(ctx, assetID)
	if err != nil {
		return nil, err
	}

	m := &models.Manifest{
		JobID:                         jobID,
		AssetID:                       assetID,
		PreprocessorNotificationQueue: config.QueuePreprocessorOut,
		EmbedderNotificationQueue:     config.QueueEmbedderNotification,
	}
	for _, code := range codes {
		m.EmbeddedCodes = append(m.EmbeddedCodes, models.EmbeddedCode{Code: code})
	}

	for _, obj := range renditions {
		fileName := path.Base(obj.Key)

		video := models.VideoInformation{
			FileName: fileName,
			GOPSize:  b.gopSize,
		}
		if !preprocessed {
			video.MP4URL, err = b.blob.SignedGetURL(ctx, b.cfg.SourceBucket, obj.Key, b.cfg.SignedURLTTL)
			if err != nil {
				return nil, fmt.Errorf("sign source url for %s: %w", fileName, err)
			}
		}
		video.MMRKURL, err = b.blob.SignedPutURL(ctx, b.cfg.MMRKBucket, fmt.Sprintf("%s/%s.mmrk", assetID, fileName), b.cfg.SignedURLTTL)
		if err != nil {
			return nil, fmt.Errorf("sign mmrk url for %s: %w", fileName, err)
		}
		video.VBitrate, video.VideoFilter = parseRendition(fileName)
		m.VideoInformation = append(m.VideoInformation, video)

		for i := range m.EmbeddedCodes {
			dest, err := b.blob.SignedPutURL(ctx, b.cfg.WatermarkedBucket,
				fmt.Sprintf("%s/%s/%s", assetID, m.EmbeddedCodes[i].Code, fileName), b.cfg.SignedURLTTL)
			if err != nil {
				return nil, fmt.Errorf("sign watermarked url for %s: %w", fileName, err)
			}
			m.EmbeddedCodes[i].MP4WatermarkedURL = append(m.EmbeddedCodes[i].MP4WatermarkedURL, models.MP4WatermarkedURL{
				FileName:       fileName,
				WaterMarkedMp4: dest,
			})
		}
	}
	return m, nil
}

func (b *Builder) assetPreprocessed(ctx context.Context, assetID string) (bool, error) {
	asset, err := b.store.GetAssetStatus(ctx, assetID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return asset.State == models.StatusFinished, nil
}

// parseRendition extracts the bitrate and resize filter from rendition file
// names shaped like "name_1280x720_3500.mp4". Names that do not follow the
// encoder's convention yield empty fields; the workers fall back to probing.
func parseRendition(fileName string) (vbitrate, videoFilter string) {
	base := strings.TrimSuffix(fileName, path.Ext(fileName))
	parts := strings.Split(base, "_")
	if len(parts) < 3 {
		return "", ""
	}
	bitrate := parts[len(parts)-1]
	resolution := parts[len(parts)-2]
	w, h, ok := strings.Cut(resolution, "x")
	if !ok || w == "" || h == "" {
		return "", ""
	}
	return bitrate, fmt.Sprintf("resize:width=%s,height=%s", w, h)
}
