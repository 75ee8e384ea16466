package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"journalrag/internal/config"
)

const publishTimeout = 5 * time.Second

var ErrNoPublisher = errors.New("no queue publisher configured")

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo   Repository
	pub    EventPublisher
	logger *slog.Logger
}

func NewService(repo Repository, pub EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, pub: pub, logger: logger}
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

// RecordFailure saves an increment that could not be applied.
func (s *Service) RecordFailure(ctx context.Context, chunkID, handler string, payload []byte, cause error) error {
	j := &Job{ChunkID: chunkID, Handler: handler, Payload: payload}
	if cause != nil {
		j.Error = cause.Error()
	}
	if err := s.repo.Save(ctx, j); err != nil {
		return fmt.Errorf("save failed job: %w", err)
	}
	s.logger.InfoContext(ctx, "failed job saved", "id", j.ID, "chunk_id", chunkID, "handler", handler)
	return nil
}

// Retry requeues the job payload on the usage topic and removes the job.
// A job whose increment partially landed before failing is counted again.
func (s *Service) Retry(ctx context.Context, id string) error {
	if s.pub == nil {
		return ErrNoPublisher
	}

	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(config.TopicUsageIncrement, job.Payload)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("publish retry: %w", err)
		}
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish retry: timed out after %s", publishTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "job requeued", "id", id, "chunk_id", job.ChunkID)
	return s.repo.Delete(ctx, id)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
