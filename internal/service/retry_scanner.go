package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/notify-gateway/internal/domain"
	"github.com/kursadbilgin/notify-gateway/internal/queue"
	"github.com/kursadbilgin/notify-gateway/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultRetryScanInterval = 5 * time.Second
	defaultRetryScanLimit    = 100

	// staleSendingAfter is how long a row may sit in SENDING before it is
	// presumed orphaned by a dead or interrupted worker and requeued.
	staleSendingAfter = 5 * time.Minute
)

// RetryScanner re-enqueues requests whose backoff deadline has passed, and
// recovers rows orphaned in SENDING by a worker that never settled them.
type RetryScanner struct {
	requests   repository.RequestRepository
	publisher  queue.Publisher
	logger     *zap.Logger
	interval   time.Duration
	limit      int
	staleAfter time.Duration
}

func NewRetryScanner(
	requests repository.RequestRepository,
	publisher queue.Publisher,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*RetryScanner, error) {
	if requests == nil {
		return nil, fmt.Errorf("request repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultRetryScanInterval
	}
	if limit <= 0 {
		limit = defaultRetryScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryScanner{
		requests:   requests,
		publisher:  publisher,
		logger:     logger,
		interval:   interval,
		limit:      limit,
		staleAfter: staleSendingAfter,
	}, nil
}

func (s *RetryScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial scan so already-due retries do not wait for the first ticker edge.
	if err := s.scan(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("retry scanner initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scan(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("retry scanner scan failed", zap.Error(err))
			}
		}
	}
}

func (s *RetryScanner) scan(ctx context.Context) error {
	if err := s.scanDue(ctx); err != nil {
		return err
	}
	return s.scanStuckSending(ctx)
}

func (s *RetryScanner) scanDue(ctx context.Context) error {
	due, err := s.requests.GetDueForRetry(ctx, s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch due retries: %w", err)
	}

	for i := range due {
		request := due[i]
		msg := queue.DeliveryMessage{
			NotificationID: request.ID,
			Channel:        request.Channel,
			ProviderType:   request.ProviderType,
			TenantID:       request.TenantID,
		}

		queueName := queue.QueueName(request.Channel)
		if err := s.publisher.Publish(ctx, queueName, msg); err != nil {
			s.logger.Error("failed to enqueue retry",
				zap.String("requestId", request.ID),
				zap.String("queue", queueName),
				zap.Error(err),
			)
			continue
		}

		if err := s.requests.ClearNextRetryAt(ctx, request.ID); err != nil {
			s.logger.Error("failed to clear retry deadline after enqueue",
				zap.String("requestId", request.ID),
				zap.Error(err),
			)
			continue
		}
	}

	return nil
}

// scanStuckSending requeues rows a worker locked but never settled. Release
// happens before publish so the consumer's lock sees QUEUED; a released row
// whose publish fails is picked up again next pass.
func (s *RetryScanner) scanStuckSending(ctx context.Context) error {
	cutoff := time.Now().Add(-s.staleAfter)
	stuck, err := s.requests.GetStaleSending(ctx, cutoff, s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch stale sending rows: %w", err)
	}

	for i := range stuck {
		request := stuck[i]

		if err := s.requests.ReleaseStuckSending(ctx, request.ID); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				// A worker settled it after our read.
				continue
			}
			s.logger.Error("failed to release stuck request",
				zap.String("requestId", request.ID),
				zap.Error(err),
			)
			continue
		}

		s.logger.Warn("requeueing request stuck in sending",
			zap.String("requestId", request.ID),
			zap.Time("stuckSince", request.UpdatedAt),
		)

		msg := queue.DeliveryMessage{
			NotificationID: request.ID,
			Channel:        request.Channel,
			ProviderType:   request.ProviderType,
			TenantID:       request.TenantID,
		}
		if err := s.publisher.Publish(ctx, queue.QueueName(request.Channel), msg); err != nil {
			s.logger.Error("failed to requeue stuck request",
				zap.String("requestId", request.ID),
				zap.Error(err),
			)
			continue
		}
	}

	return nil
}
