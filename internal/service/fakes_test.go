package service

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/notify-gateway/internal/domain"
	"github.com/kursadbilgin/notify-gateway/internal/provider"
	"github.com/kursadbilgin/notify-gateway/internal/queue"
	"github.com/kursadbilgin/notify-gateway/internal/ratelimit"
	"github.com/kursadbilgin/notify-gateway/internal/repository"
)

type fakeRequestRepo struct {
	createFn            func(ctx context.Context, n *domain.NotificationRequest) error
	getByIDFn           func(ctx context.Context, id string) (*domain.NotificationRequest, error)
	getByKeyFn          func(ctx context.Context, key string) (*domain.NotificationRequest, error)
	listFn              func(ctx context.Context, params repository.ListParams) ([]domain.NotificationRequest, int64, error)
	updateStatusFn      func(ctx context.Context, id string, status domain.Status) error
	markSentFn          func(ctx context.Context, id, messageID, response string) error
	markFailedFn        func(ctx context.Context, id, errorMessage string) error
	updateWithRetryFn   func(ctx context.Context, id string, nextRetryAt time.Time) error
	lockForSendingFn    func(ctx context.Context, id string) (*domain.NotificationRequest, error)
	getDueScheduledFn   func(ctx context.Context, limit int) ([]domain.NotificationRequest, error)
	markEnqueuedFn      func(ctx context.Context, id string, at time.Time) error
	getDueForRetryFn    func(ctx context.Context, limit int) ([]domain.NotificationRequest, error)
	clearNextRetryFn    func(ctx context.Context, id string) error
	cancelPendingFn     func(ctx context.Context, id, note string) error
	updateSchedFieldsFn func(ctx context.Context, id string, fields map[string]any) error
	resetForReplayFn    func(ctx context.Context, id string) error
	getStaleSendingFn   func(ctx context.Context, cutoff time.Time, limit int) ([]domain.NotificationRequest, error)
	releaseStuckFn      func(ctx context.Context, id string) error
}

func (f *fakeRequestRepo) Create(ctx context.Context, n *domain.NotificationRequest) error {
	if f.createFn != nil {
		return f.createFn(ctx, n)
	}
	return nil
}

func (f *fakeRequestRepo) GetByID(ctx context.Context, id string) (*domain.NotificationRequest, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRequestRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.NotificationRequest, error) {
	if f.getByKeyFn != nil {
		return f.getByKeyFn(ctx, key)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRequestRepo) List(ctx context.Context, params repository.ListParams) ([]domain.NotificationRequest, int64, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeRequestRepo) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	if f.updateStatusFn != nil {
		return f.updateStatusFn(ctx, id, status)
	}
	return nil
}

func (f *fakeRequestRepo) MarkSent(ctx context.Context, id, messageID, response string) error {
	if f.markSentFn != nil {
		return f.markSentFn(ctx, id, messageID, response)
	}
	return nil
}

func (f *fakeRequestRepo) MarkFailed(ctx context.Context, id, errorMessage string) error {
	if f.markFailedFn != nil {
		return f.markFailedFn(ctx, id, errorMessage)
	}
	return nil
}

func (f *fakeRequestRepo) UpdateStatusWithRetry(ctx context.Context, id string, nextRetryAt time.Time) error {
	if f.updateWithRetryFn != nil {
		return f.updateWithRetryFn(ctx, id, nextRetryAt)
	}
	return nil
}

func (f *fakeRequestRepo) LockForSending(ctx context.Context, id string) (*domain.NotificationRequest, error) {
	if f.lockForSendingFn != nil {
		return f.lockForSendingFn(ctx, id)
	}
	return nil, nil
}

func (f *fakeRequestRepo) GetDueScheduled(ctx context.Context, limit int) ([]domain.NotificationRequest, error) {
	if f.getDueScheduledFn != nil {
		return f.getDueScheduledFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeRequestRepo) MarkEnqueued(ctx context.Context, id string, at time.Time) error {
	if f.markEnqueuedFn != nil {
		return f.markEnqueuedFn(ctx, id, at)
	}
	return nil
}

func (f *fakeRequestRepo) GetDueForRetry(ctx context.Context, limit int) ([]domain.NotificationRequest, error) {
	if f.getDueForRetryFn != nil {
		return f.getDueForRetryFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeRequestRepo) ClearNextRetryAt(ctx context.Context, id string) error {
	if f.clearNextRetryFn != nil {
		return f.clearNextRetryFn(ctx, id)
	}
	return nil
}

func (f *fakeRequestRepo) CancelPending(ctx context.Context, id, note string) error {
	if f.cancelPendingFn != nil {
		return f.cancelPendingFn(ctx, id, note)
	}
	return nil
}

func (f *fakeRequestRepo) UpdateScheduledFields(ctx context.Context, id string, fields map[string]any) error {
	if f.updateSchedFieldsFn != nil {
		return f.updateSchedFieldsFn(ctx, id, fields)
	}
	return nil
}

func (f *fakeRequestRepo) ResetForReplay(ctx context.Context, id string) error {
	if f.resetForReplayFn != nil {
		return f.resetForReplayFn(ctx, id)
	}
	return nil
}

func (f *fakeRequestRepo) GetStaleSending(ctx context.Context, cutoff time.Time, limit int) ([]domain.NotificationRequest, error) {
	if f.getStaleSendingFn != nil {
		return f.getStaleSendingFn(ctx, cutoff, limit)
	}
	return nil, nil
}

func (f *fakeRequestRepo) ReleaseStuckSending(ctx context.Context, id string) error {
	if f.releaseStuckFn != nil {
		return f.releaseStuckFn(ctx, id)
	}
	return nil
}

type fakeDeliveryLogRepo struct {
	mu   sync.Mutex
	logs []domain.DeliveryLog
	err  error
}

func (f *fakeDeliveryLogRepo) Create(ctx context.Context, log *domain.DeliveryLog) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, *log)
	return nil
}

func (f *fakeDeliveryLogRepo) ListByRequest(ctx context.Context, requestID string) ([]domain.DeliveryLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.DeliveryLog, 0, len(f.logs))
	for _, l := range f.logs {
		if l.NotificationRequestID == requestID {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeTemplateRepo struct {
	getByIDFn    func(ctx context.Context, id string) (*domain.NotificationTemplate, error)
	getSnippetFn func(ctx context.Context, id string) (*domain.TemplateSnippet, error)
}

func (f *fakeTemplateRepo) GetByID(ctx context.Context, id string) (*domain.NotificationTemplate, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeTemplateRepo) GetSnippet(ctx context.Context, id string) (*domain.TemplateSnippet, error) {
	if f.getSnippetFn != nil {
		return f.getSnippetFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

type fakeProviderRepo struct {
	getByIDFn    func(ctx context.Context, id string) (*domain.ProviderConfig, error)
	findActiveFn func(ctx context.Context, tenantID *string, channel domain.Channel) (*domain.ProviderConfig, error)
}

func (f *fakeProviderRepo) GetByID(ctx context.Context, id string) (*domain.ProviderConfig, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeProviderRepo) FindActive(ctx context.Context, tenantID *string, channel domain.Channel) (*domain.ProviderConfig, error) {
	if f.findActiveFn != nil {
		return f.findActiveFn(ctx, tenantID, channel)
	}
	return nil, domain.ErrNotFound
}

type publishedMessage struct {
	queue string
	msg   queue.DeliveryMessage
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.DeliveryMessage) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{queue: queueName, msg: msg})
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

type fakeRateLimiter struct {
	waitFn func(ctx context.Context, providerType domain.ProviderType) error
}

func (f *fakeRateLimiter) CheckAndReserve(ctx context.Context, providerType domain.ProviderType) (ratelimit.Decision, error) {
	return ratelimit.Decision{Allowed: true}, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, providerType domain.ProviderType) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, providerType)
	}
	return nil
}

type fakeEmailProvider struct {
	sendFn func(ctx context.Context, cfg provider.SendConfig, payload provider.EmailPayload) (*provider.SendResult, error)
}

func (f *fakeEmailProvider) SendEmail(ctx context.Context, cfg provider.SendConfig, payload provider.EmailPayload) (*provider.SendResult, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, cfg, payload)
	}
	return &provider.SendResult{MessageID: "fake-email"}, nil
}

type fakeSMSProvider struct {
	sendFn func(ctx context.Context, cfg provider.SendConfig, payload provider.SMSPayload) (*provider.SendResult, error)
}

func (f *fakeSMSProvider) SendSMS(ctx context.Context, cfg provider.SendConfig, payload provider.SMSPayload) (*provider.SendResult, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, cfg, payload)
	}
	return &provider.SendResult{MessageID: "fake-sms"}, nil
}

type fakeSelector struct {
	email provider.EmailProvider
	sms   provider.SmsProvider
}

func (f *fakeSelector) Email(providerType domain.ProviderType) (provider.EmailProvider, error) {
	return f.email, nil
}

func (f *fakeSelector) SMS(providerType domain.ProviderType) (provider.SmsProvider, error) {
	return f.sms, nil
}

type firedWebhook struct {
	event    domain.WebhookEvent
	tenantID *string
	payload  any
}

type fakeNotifier struct {
	fired chan firedWebhook
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{fired: make(chan firedWebhook, 8)}
}

func (f *fakeNotifier) Trigger(ctx context.Context, event domain.WebhookEvent, tenantID *string, payload any) {
	f.fired <- firedWebhook{event: event, tenantID: tenantID, payload: payload}
}

type deadLetterCall struct {
	channel domain.Channel
	msg     queue.DeliveryMessage
	reason  string
}

type fakeDeadLetters struct {
	mu     sync.Mutex
	parked []deadLetterCall
}

func (f *fakeDeadLetters) PublishDead(ctx context.Context, channel domain.Channel, msg queue.DeliveryMessage, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parked = append(f.parked, deadLetterCall{channel: channel, msg: msg, reason: reason})
	return nil
}

func (f *fakeDeadLetters) Depth(ctx context.Context, channel domain.Channel) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.parked), nil
}

func (f *fakeDeadLetters) Peek(ctx context.Context, channel domain.Channel, limit int) ([]queue.DeadLetterEntry, error) {
	return nil, nil
}

func (f *fakeDeadLetters) Replay(ctx context.Context, channel domain.Channel, limit int) (int, error) {
	return 0, nil
}
