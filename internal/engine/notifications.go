package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/forensiq/forensiq/internal/config"
	"github.com/forensiq/forensiq/internal/store"
	"github.com/forensiq/forensiq/pkg/models"
)

// NoUpdateSentinel in an incoming MMRK record's FileURL means "keep the URL
// already on file". Workers send it when reporting progress without a new
// artifact location.
const NoUpdateSentinel = "{NO UPDATE}"

// EvalPreprocessorNotifications drains the preprocessor output queue and
// applies each notification to its MMRK record. It returns the number of
// messages consumed, dead-lettered ones included.
func (s *Service) EvalPreprocessorNotifications(ctx context.Context) (int, error) {
	return s.consume(ctx, config.QueuePreprocessorOut, s.applyPreprocessorNotification)
}

// EvalEmbedderNotifications drains the embedder output queue and applies each
// notification to its watermarked render record.
func (s *Service) EvalEmbedderNotifications(ctx context.Context) (int, error) {
	return s.consume(ctx, config.QueueEmbedderNotification, s.applyEmbedderNotification)
}

// consume is the bounded batch loop shared by both consumers. It fetches up
// to QueueIterations batches of QueueBatchSize messages; the consumer is
// invoked synchronously from a polling request, so both caps bound the
// per-invocation latency. Per-message failures are contained by dead-
// lettering; the source message is always deleted, since redelivery is
// already handled by the idempotence check in the apply functions.
func (s *Service) consume(ctx context.Context, queueName string, apply func(context.Context, models.Notification) error) (int, error) {
	count := 0
	for i := 0; i < s.cfg.QueueIterations; i++ {
		msgs, err := s.queue.DequeueBatch(ctx, queueName, s.cfg.QueueBatchSize, s.cfg.VisibilityTimeout)
		if err != nil {
			return count, fmt.Errorf("dequeue %s: %w", queueName, err)
		}
		if len(msgs) == 0 {
			break
		}

		for _, msg := range msgs {
			var n models.Notification
			if err := json.Unmarshal(msg.Body, &n); err != nil {
				s.deadLetter(ctx, msg.Body, "unparseable notification", err)
			} else if err := apply(ctx, n); err != nil {
				s.deadLetter(ctx, msg.Body, "notification not applied", err)
			}
			if err := s.queue.Delete(ctx, msg); err != nil {
				s.logger.Error("failed to delete queue message", "queue", queueName, "message_id", msg.ID, "error", err)
			}
			count++
		}
	}
	return count, nil
}

// errStale marks duplicate or out-of-order notifications targeting a record
// that already reached a terminal state.
var errStale = errors.New("record is not running")

func (s *Service) applyPreprocessorNotification(ctx context.Context, n models.Notification) error {
	state, err := models.ParseExecutionStatus(n.Status)
	if err != nil {
		return err
	}

	mmrk, err := s.store.GetMMRKStatus(ctx, n.AssetID, models.MMRKRowKey(n.JobID, n.FileName))
	if err != nil {
		return fmt.Errorf("lookup mmrk record: %w", err)
	}
	if mmrk.State != models.StatusRunning {
		return errStale
	}

	mmrk.State = state
	mmrk.Details = n.JobOutput
	return s.store.UpsertMMRKStatus(ctx, mmrk)
}

func (s *Service) applyEmbedderNotification(ctx context.Context, n models.Notification) error {
	state, err := models.ParseExecutionStatus(n.Status)
	if err != nil {
		return err
	}

	render, err := s.store.GetWatermarkedRender(ctx, n.AssetID, n.EmbeddedCode, n.FileName)
	if err != nil {
		return fmt.Errorf("lookup render record: %w", err)
	}
	if render.State != models.StatusRunning {
		return errStale
	}

	render.State = state
	render.Details = n.JobOutput
	return s.store.UpsertWatermarkedRender(ctx, render)
}

// UpdateMMRKStatus is the worker-facing MMRK upsert. The NoUpdateSentinel in
// FileURL preserves the URL already stored on the record.
func (s *Service) UpdateMMRKStatus(ctx context.Context, mmrk *models.MMRKStatus) error {
	if mmrk.FileURL == NoUpdateSentinel {
		mmrk.FileURL = ""
		existing, err := s.store.GetMMRKStatus(ctx, mmrk.AssetID, models.MMRKRowKey(mmrk.JobID, mmrk.FileName))
		if err == nil {
			mmrk.FileURL = existing.FileURL
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return s.store.UpsertMMRKStatus(ctx, mmrk)
}

// RegisterWatermarkedRenders records the renders submitted to the embedder
// for one code as Running rows, keyed by rendition file name.
func (s *Service) RegisterWatermarkedRenders(ctx context.Context, parentAssetID string, code models.EmbeddedCode) error {
	for _, dst := range code.MP4WatermarkedURL {
		render := &models.WatermarkedRender{
			ParentAssetID: parentAssetID,
			EmbeddedCode:  code.Code,
			RenderName:    dst.FileName,
			State:         models.StatusRunning,
			MP4URL:        dst.WaterMarkedMp4,
		}
		if err := s.store.UpsertWatermarkedRender(ctx, render); err != nil {
			return err
		}
	}
	return nil
}

// deadLetter diverts a raw payload to the dead-letter queue. Poison and
// duplicate messages are never retried in place; forward progress of the
// consumer loop matters more than any single message.
func (s *Service) deadLetter(ctx context.Context, payload []byte, reason string, cause error) {
	s.logger.Warn("dead-lettering message", "reason", reason, "error", cause)
	if err := s.queue.Enqueue(ctx, config.QueueDeadletter, payload); err != nil {
		s.logger.Error("failed to enqueue dead-letter message", "error", err)
	}
}
