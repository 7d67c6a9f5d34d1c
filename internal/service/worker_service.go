package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify-gateway/internal/domain"
	"github.com/kursadbilgin/notify-gateway/internal/observability"
	"github.com/kursadbilgin/notify-gateway/internal/provider"
	"github.com/kursadbilgin/notify-gateway/internal/queue"
	"github.com/kursadbilgin/notify-gateway/internal/ratelimit"
	"github.com/kursadbilgin/notify-gateway/internal/repository"
	"github.com/kursadbilgin/notify-gateway/internal/secret"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minWorkerConcurrency = 1
	maxRetryDelay        = 60 * time.Second
	baseRetryDelay       = time.Second
	maxRetryJitterMillis = 250
	webhookTimeout       = 30 * time.Second
)

// WebhookNotifier fans an event out to subscribers. The worker treats it as
// fire-and-forget; dispatch failures never touch the delivery pipeline.
type WebhookNotifier interface {
	Trigger(ctx context.Context, event domain.WebhookEvent, tenantID *string, payload any)
}

// ProviderSelector resolves a concrete delivery backend per provider type.
// Satisfied by provider.Factory.
type ProviderSelector interface {
	Email(providerType domain.ProviderType) (provider.EmailProvider, error)
	SMS(providerType domain.ProviderType) (provider.SmsProvider, error)
}

// WorkerService drains the channel work queues and performs deliveries.
type WorkerService struct {
	requests    repository.RequestRepository
	logs        repository.DeliveryLogRepository
	providers   repository.ProviderConfigRepository
	consumer    queue.Consumer
	factory     ProviderSelector
	rateLimiter ratelimit.RateLimiter
	cipher      *secret.Cipher
	deadLetters queue.DeadLetters
	webhooks    WebhookNotifier
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
	randIntn    func(n int) int
}

func NewWorkerService(
	requests repository.RequestRepository,
	logs repository.DeliveryLogRepository,
	providers repository.ProviderConfigRepository,
	consumer queue.Consumer,
	factory ProviderSelector,
	rateLimiter ratelimit.RateLimiter,
	cipher *secret.Cipher,
	deadLetters queue.DeadLetters,
	webhooks WebhookNotifier,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if requests == nil {
		return nil, fmt.Errorf("request repository is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if factory == nil {
		return nil, fmt.Errorf("provider factory is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		requests:    requests,
		logs:        logs,
		providers:   providers,
		consumer:    consumer,
		factory:     factory,
		rateLimiter: rateLimiter,
		cipher:      cipher,
		deadLetters: deadLetters,
		webhooks:    webhooks,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
		randIntn:    rand.Intn,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start consumes the channel work queues until context cancellation.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := s.consumer.Consume(groupCtx, queueName, s.processMessage)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) processMessage(ctx context.Context, msg queue.DeliveryMessage) error {
	if msg.Replay {
		// A replayed dead letter arrives with its request row terminally
		// FAILED; reopen it or the lock below would skip the delivery.
		err := s.requests.ResetForReplay(ctx, msg.NotificationID)
		if err != nil && !errors.Is(err, domain.ErrConflict) && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("failed to reopen replayed request: %w", err)
		}
	}

	request, err := s.requests.LockForSending(ctx, msg.NotificationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("request not found during lock, skipping",
				zap.String("requestId", msg.NotificationID),
			)
			return nil
		}
		return fmt.Errorf("failed to lock request for sending: %w", err)
	}

	// Nil means terminal or already sending; ack and skip.
	if request == nil {
		return nil
	}

	channelName := strings.ToLower(request.Channel.String())
	if s.metrics != nil {
		s.metrics.IncWorkerInFlight(channelName)
		defer s.metrics.DecWorkerInFlight(channelName)
	}

	sendConfig, err := s.resolveSendConfig(ctx, request, msg)
	if err != nil {
		// No usable credentials is not retryable by the broker; settle the
		// attempt on the request row instead of redelivering forever.
		return s.settleFailure(ctx, request, nil, err, false)
	}

	if s.rateLimiter != nil {
		if err := s.rateLimiter.Wait(ctx, request.ProviderType); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	sendStart := s.now()
	result, sendErr := s.deliver(ctx, request, sendConfig)
	if s.metrics != nil {
		s.metrics.ObserveSendDuration(channelName, s.now().Sub(sendStart))
	}

	if sendErr == nil {
		return s.settleSuccess(ctx, request, result)
	}

	// A send interrupted by our own shutdown is no verdict on the request.
	// Leave the row SENDING; the stale-sending scan requeues it.
	if ctx.Err() != nil {
		return sendErr
	}

	return s.settleFailure(ctx, request, result, sendErr, provider.IsTransient(sendErr))
}

// resolveSendConfig prefers the credential snapshot embedded in the job and
// falls back to decrypting the active provider config. Plaintext lives only
// in this call stack.
func (s *WorkerService) resolveSendConfig(ctx context.Context, request *domain.NotificationRequest, msg queue.DeliveryMessage) (provider.SendConfig, error) {
	if msg.Credentials != nil {
		cfg := provider.SendConfig{Credentials: *msg.Credentials}
		if msg.Metadata != nil {
			cfg.Metadata = *msg.Metadata
		}
		return cfg, nil
	}

	if s.providers == nil || s.cipher == nil {
		return provider.SendConfig{}, fmt.Errorf("%w: no credentials available for request", domain.ErrConfiguration)
	}

	config, err := s.providers.FindActive(ctx, request.TenantID, request.Channel)
	if err != nil {
		return provider.SendConfig{}, fmt.Errorf("failed to resolve provider config: %w", err)
	}

	var creds provider.Credentials
	if err := s.cipher.DecryptJSON(config.Credentials, &creds); err != nil {
		return provider.SendConfig{}, fmt.Errorf("failed to decrypt provider credentials: %w", err)
	}

	return provider.SendConfig{Credentials: creds, Metadata: config.Metadata}, nil
}

func (s *WorkerService) deliver(ctx context.Context, request *domain.NotificationRequest, cfg provider.SendConfig) (*provider.SendResult, error) {
	switch request.Channel {
	case domain.ChannelEmail:
		p, err := s.factory.Email(request.ProviderType)
		if err != nil {
			return nil, err
		}
		return p.SendEmail(ctx, cfg, s.buildEmailPayload(request))
	case domain.ChannelSMS:
		p, err := s.factory.SMS(request.ProviderType)
		if err != nil {
			return nil, err
		}
		return p.SendSMS(ctx, cfg, s.buildSMSPayload(request, cfg))
	default:
		return nil, fmt.Errorf("%w: unsupported channel %q", domain.ErrConfiguration, request.Channel)
	}
}

// buildEmailPayload reconstructs the full payload from the request row. The
// raw intake payload supplies the parts that are not first-class columns:
// attachments, plain-text alternative, reply-to.
func (s *WorkerService) buildEmailPayload(request *domain.NotificationRequest) provider.EmailPayload {
	payload := provider.EmailPayload{
		To:      request.Recipients.To,
		Cc:      request.Recipients.Cc,
		Bcc:     request.Recipients.Bcc,
		Subject: request.Subject,
		HTML:    request.RenderedContent,
	}

	if len(request.RawPayload) > 0 {
		var input EmailInput
		if err := json.Unmarshal(request.RawPayload, &input); err != nil {
			s.logger.Warn("unreadable raw payload, sending without extras",
				zap.String("requestId", request.ID),
				zap.Error(err),
			)
		} else {
			payload.Text = input.Text
			payload.Attachments = input.Attachments
			payload.ReplyTo = input.ReplyTo
		}
	}

	return payload
}

func (s *WorkerService) buildSMSPayload(request *domain.NotificationRequest, cfg provider.SendConfig) provider.SMSPayload {
	payload := provider.SMSPayload{
		Message: request.RenderedContent,
		From:    cfg.Metadata.FromNumber,
	}
	if len(request.Recipients.To) > 0 {
		payload.To = request.Recipients.To[0]
	}
	return payload
}

func (s *WorkerService) settleSuccess(ctx context.Context, request *domain.NotificationRequest, result *provider.SendResult) error {
	attemptNumber := request.AttemptCount + 1
	if err := s.recordAttempt(ctx, request.ID, attemptNumber, result, nil); err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	messageID := ""
	response := ""
	if result != nil {
		messageID = result.MessageID
		response = result.Body
	}
	if err := s.requests.MarkSent(ctx, request.ID, messageID, response); err != nil {
		return fmt.Errorf("failed to mark request sent: %w", err)
	}

	if s.metrics != nil {
		s.metrics.IncSent(strings.ToLower(request.Channel.String()))
	}

	s.fireWebhook(domain.EventNotificationSent, request, attemptNumber, messageID, "")
	return nil
}

func (s *WorkerService) settleFailure(ctx context.Context, request *domain.NotificationRequest, result *provider.SendResult, sendErr error, transient bool) error {
	attemptNumber := request.AttemptCount + 1
	if err := s.recordAttempt(ctx, request.ID, attemptNumber, result, sendErr); err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	channelName := strings.ToLower(request.Channel.String())
	maxAttempts := request.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	if transient && attemptNumber < maxAttempts {
		nextRetryAt := s.now().Add(s.computeRetryDelay(attemptNumber))
		if err := s.requests.UpdateStatusWithRetry(ctx, request.ID, nextRetryAt); err != nil {
			return fmt.Errorf("failed to schedule retry: %w", err)
		}
		if s.metrics != nil {
			s.metrics.IncRetryScheduled(channelName)
		}
		return nil
	}

	if err := s.requests.MarkFailed(ctx, request.ID, sendErr.Error()); err != nil {
		return fmt.Errorf("failed to mark request failed: %w", err)
	}

	if s.metrics != nil {
		reason := "permanent_error"
		if transient {
			reason = "retry_exhausted"
		}
		s.metrics.IncFailed(channelName, reason)
	}

	s.parkDeadLetter(ctx, request, sendErr)
	s.fireWebhook(domain.EventNotificationFailed, request, attemptNumber, "", sendErr.Error())
	return nil
}

func (s *WorkerService) parkDeadLetter(ctx context.Context, request *domain.NotificationRequest, sendErr error) {
	if s.deadLetters == nil {
		return
	}

	msg := queue.DeliveryMessage{
		NotificationID: request.ID,
		Channel:        request.Channel,
		ProviderType:   request.ProviderType,
		TenantID:       request.TenantID,
	}
	if err := s.deadLetters.PublishDead(ctx, request.Channel, msg, sendErr.Error()); err != nil {
		s.logger.Error("failed to park dead letter",
			zap.String("requestId", request.ID),
			zap.Error(err),
		)
	}
}

// fireWebhook builds the subscriber payload: event, notificationId, status
// and timestamp at the top level, delivery detail nested under data.
func (s *WorkerService) fireWebhook(event domain.WebhookEvent, request *domain.NotificationRequest, attempts int, messageID, errorMessage string) {
	if s.webhooks == nil {
		return
	}

	data := map[string]any{
		"channel":  request.Channel.String(),
		"provider": request.ProviderType.String(),
		"attempts": attempts,
	}
	if messageID != "" {
		data["messageId"] = messageID
	}
	if errorMessage != "" {
		data["error"] = errorMessage
	}

	payload := map[string]any{
		"event":          event.String(),
		"notificationId": request.ID,
		"status":         strings.TrimPrefix(event.String(), "notification."),
		"timestamp":      s.now().UTC().Format(time.RFC3339),
		"data":           data,
	}

	// Detached from the delivery context: a slow subscriber must not hold
	// the broker ack hostage.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
		defer cancel()
		s.webhooks.Trigger(ctx, event, request.TenantID, payload)
	}()
}

func (s *WorkerService) computeRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := baseRetryDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	jitterMillis := 0
	if s.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = s.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

func (s *WorkerService) recordAttempt(
	ctx context.Context,
	requestID string,
	attemptNumber int,
	result *provider.SendResult,
	sendErr error,
) error {
	if s.logs == nil {
		return nil
	}

	status := domain.AttemptSuccess
	var messageID, response, attemptErr *string

	if result != nil {
		if id := strings.TrimSpace(result.MessageID); id != "" {
			messageID = &id
		}
		if body := strings.TrimSpace(result.Body); body != "" {
			value := result.Body
			response = &value
		}
	}

	if sendErr != nil {
		status = domain.AttemptFailed
		value := sendErr.Error()
		attemptErr = &value

		var providerErr *provider.ProviderError
		if errors.As(sendErr, &providerErr) && response == nil && providerErr.Message != "" {
			response = &providerErr.Message
		}
	}

	log := &domain.DeliveryLog{
		ID:                    uuid.NewString(),
		NotificationRequestID: requestID,
		AttemptNumber:         attemptNumber,
		Status:                status,
		ProviderMessageID:     messageID,
		ProviderResponse:      response,
		ErrorMessage:          attemptErr,
		CreatedAt:             s.now().UTC(),
	}

	return s.logs.Create(ctx, log)
}
