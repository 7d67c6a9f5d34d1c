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
	defaultSchedulerScanInterval = 5 * time.Second
	defaultSchedulerScanLimit    = 100
)

// Scheduler drives the delayed lane: due scheduled requests move from the
// database onto the broker. Jobs published here carry no credential
// snapshot; the worker re-resolves the active provider config instead,
// since hours may pass between intake and fire.
type Scheduler struct {
	requests  repository.RequestRepository
	publisher queue.Publisher
	logger    *zap.Logger
	interval  time.Duration
	limit     int
}

func NewScheduler(
	requests repository.RequestRepository,
	publisher queue.Publisher,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*Scheduler, error) {
	if requests == nil {
		return nil, fmt.Errorf("request repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultSchedulerScanInterval
	}
	if limit <= 0 {
		limit = defaultSchedulerScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		requests:  requests,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		limit:     limit,
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduler initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("scheduler scan failed", zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) scanDue(ctx context.Context) error {
	due, err := s.requests.GetDueScheduled(ctx, s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch due scheduled requests: %w", err)
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
			s.logger.Error("failed to enqueue scheduled request",
				zap.String("requestId", request.ID),
				zap.String("queue", queueName),
				zap.Error(err),
			)
			continue
		}

		if err := s.requests.MarkEnqueued(ctx, request.ID, time.Now().UTC()); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				// Another pass or a cancel got here first; the SENDING
				// lock dedupes the double publish.
				s.logger.Info("scheduled request state changed before enqueue mark",
					zap.String("requestId", request.ID),
				)
				continue
			}
			s.logger.Error("failed to mark scheduled request enqueued",
				zap.String("requestId", request.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}
