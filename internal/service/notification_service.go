package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify-gateway/internal/domain"
	"github.com/kursadbilgin/notify-gateway/internal/provider"
	"github.com/kursadbilgin/notify-gateway/internal/queue"
	"github.com/kursadbilgin/notify-gateway/internal/repository"
	"github.com/kursadbilgin/notify-gateway/internal/secret"
	"github.com/kursadbilgin/notify-gateway/internal/template"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 3
	maxBulkSize        = 1000
)

// NotificationService is the intake plane: it validates, renders, persists
// and enqueues requests, and answers status reads. It never blocks on an
// actual provider call.
type NotificationService struct {
	requests   repository.RequestRepository
	logs       repository.DeliveryLogRepository
	templates  repository.TemplateRepository
	providers  repository.ProviderConfigRepository
	publisher  queue.Publisher
	cipher     *secret.Cipher
	logger     *zap.Logger
	production bool
	now        func() time.Time
}

func NewNotificationService(
	requests repository.RequestRepository,
	logs repository.DeliveryLogRepository,
	templates repository.TemplateRepository,
	providers repository.ProviderConfigRepository,
	publisher queue.Publisher,
	cipher *secret.Cipher,
	production bool,
	logger *zap.Logger,
) (*NotificationService, error) {
	if requests == nil {
		return nil, fmt.Errorf("request repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		requests:   requests,
		logs:       logs,
		templates:  templates,
		providers:  providers,
		publisher:  publisher,
		cipher:     cipher,
		logger:     logger,
		production: production,
		now:        time.Now,
	}, nil
}

func (s *NotificationService) SendEmail(ctx context.Context, tenantID *string, input EmailInput) (*SubmitResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)
	if input.IdempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotencyKey is required", domain.ErrValidation)
	}

	scheduledAt, err := s.resolveSchedule(input.ScheduleAt, input.Timezone)
	if err != nil {
		return nil, err
	}

	subject, body, templateID, err := s.resolveEmailContent(ctx, tenantID, input)
	if err != nil {
		return nil, err
	}

	config, err := s.providers.FindActive(ctx, tenantID, domain.ChannelEmail)
	if err != nil {
		return nil, err
	}

	rawPayload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal email payload: %w", err)
	}

	request := &domain.NotificationRequest{
		ID:              uuid.NewString(),
		IdempotencyKey:  input.IdempotencyKey,
		TenantID:        tenantID,
		Channel:         domain.ChannelEmail,
		ProviderType:    config.ProviderType,
		Recipients:      domain.Recipients{To: input.To, Cc: input.Cc, Bcc: input.Bcc},
		RawPayload:      rawPayload,
		Subject:         subject,
		RenderedContent: body,
		Status:          s.initialStatus(),
		TemplateID:      templateID,
		ScheduledAt:     scheduledAt,
		MaxAttempts:     defaultMaxAttempts,
	}

	return s.submit(ctx, request, config)
}

func (s *NotificationService) SendSMS(ctx context.Context, tenantID *string, input SMSInput) (*SubmitResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)
	if input.IdempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotencyKey is required", domain.ErrValidation)
	}

	scheduledAt, err := s.resolveSchedule(input.ScheduleAt, input.Timezone)
	if err != nil {
		return nil, err
	}

	message, templateID, err := s.resolveSMSContent(ctx, input)
	if err != nil {
		return nil, err
	}

	config, err := s.providers.FindActive(ctx, tenantID, domain.ChannelSMS)
	if err != nil {
		return nil, err
	}

	rawPayload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sms payload: %w", err)
	}

	request := &domain.NotificationRequest{
		ID:              uuid.NewString(),
		IdempotencyKey:  input.IdempotencyKey,
		TenantID:        tenantID,
		Channel:         domain.ChannelSMS,
		ProviderType:    config.ProviderType,
		Recipients:      domain.Recipients{To: []string{strings.TrimSpace(input.To)}},
		RawPayload:      rawPayload,
		RenderedContent: message,
		Status:          s.initialStatus(),
		TemplateID:      templateID,
		ScheduledAt:     scheduledAt,
		MaxAttempts:     defaultMaxAttempts,
	}

	return s.submit(ctx, request, config)
}

// ScheduleEmail is SendEmail with a mandatory schedule time. A time already
// in the past is accepted and delivered immediately.
func (s *NotificationService) ScheduleEmail(ctx context.Context, tenantID *string, input EmailInput) (*SubmitResult, error) {
	if input.ScheduleAt == nil {
		return nil, fmt.Errorf("%w: scheduleAt is required", domain.ErrValidation)
	}
	return s.SendEmail(ctx, tenantID, input)
}

func (s *NotificationService) ScheduleSMS(ctx context.Context, tenantID *string, input SMSInput) (*SubmitResult, error) {
	if input.ScheduleAt == nil {
		return nil, fmt.Errorf("%w: scheduleAt is required", domain.ErrValidation)
	}
	return s.SendSMS(ctx, tenantID, input)
}

// SendBulkEmail processes each item independently and reports per-item
// outcomes. One bad item never fails its neighbors.
func (s *NotificationService) SendBulkEmail(ctx context.Context, tenantID *string, inputs []EmailInput) (*BulkResult, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: bulk request must include at least one item", domain.ErrValidation)
	}
	if len(inputs) > maxBulkSize {
		return nil, fmt.Errorf("%w: bulk size exceeds %d", domain.ErrValidation, maxBulkSize)
	}

	result := &BulkResult{
		Total:   len(inputs),
		Results: make([]SubmitResult, 0, len(inputs)),
		Errors:  make([]BulkItemError, 0),
	}
	for i := range inputs {
		submitted, err := s.SendEmail(ctx, tenantID, inputs[i])
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, BulkItemError{Index: i, Error: err.Error()})
			continue
		}
		result.Successful++
		result.Results = append(result.Results, *submitted)
	}

	return result, nil
}

func (s *NotificationService) SendBulkSMS(ctx context.Context, tenantID *string, inputs []SMSInput) (*BulkResult, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: bulk request must include at least one item", domain.ErrValidation)
	}
	if len(inputs) > maxBulkSize {
		return nil, fmt.Errorf("%w: bulk size exceeds %d", domain.ErrValidation, maxBulkSize)
	}

	result := &BulkResult{
		Total:   len(inputs),
		Results: make([]SubmitResult, 0, len(inputs)),
		Errors:  make([]BulkItemError, 0),
	}
	for i := range inputs {
		submitted, err := s.SendSMS(ctx, tenantID, inputs[i])
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, BulkItemError{Index: i, Error: err.Error()})
			continue
		}
		result.Successful++
		result.Results = append(result.Results, *submitted)
	}

	return result, nil
}

func (s *NotificationService) GetByID(ctx context.Context, id string) (*domain.NotificationRequest, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: request id is required", domain.ErrValidation)
	}
	return s.requests.GetByID(ctx, strings.TrimSpace(id))
}

func (s *NotificationService) GetDeliveryLogs(ctx context.Context, id string) ([]domain.DeliveryLog, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: request id is required", domain.ErrValidation)
	}
	if _, err := s.requests.GetByID(ctx, strings.TrimSpace(id)); err != nil {
		return nil, err
	}
	return s.logs.ListByRequest(ctx, strings.TrimSpace(id))
}

func (s *NotificationService) List(ctx context.Context, params repository.ListParams) ([]domain.NotificationRequest, int64, error) {
	return s.requests.List(ctx, params)
}

// UpdateScheduled patches a scheduled request that has not fired yet. A
// request already enqueued, sending or terminal reads as not found; the
// caller cannot distinguish "too late" from "never existed", matching the
// delete semantics.
func (s *NotificationService) UpdateScheduled(ctx context.Context, id string, patch ScheduledPatch) (*domain.NotificationRequest, error) {
	request, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status.IsTerminal() || request.Status == domain.StatusSending || request.EnqueuedAt != nil {
		return nil, domain.ErrNotFound
	}

	fields := map[string]any{}

	if patch.To != nil {
		recipients := domain.Recipients{To: patch.To, Cc: patch.Cc, Bcc: patch.Bcc}
		if request.Channel == domain.ChannelSMS && len(patch.To) != 1 {
			return nil, fmt.Errorf("%w: SMS requires exactly one recipient", domain.ErrValidation)
		}
		if len(patch.To) == 0 {
			return nil, fmt.Errorf("%w: at least one recipient is required", domain.ErrValidation)
		}
		fields["recipients"] = recipients
	}
	if patch.Subject != nil {
		if request.Channel != domain.ChannelEmail {
			return nil, fmt.Errorf("%w: subject applies to email requests only", domain.ErrValidation)
		}
		fields["subject"] = *patch.Subject
	}
	if patch.Body != nil {
		if strings.TrimSpace(*patch.Body) == "" {
			return nil, fmt.Errorf("%w: body must not be empty", domain.ErrValidation)
		}
		fields["rendered_content"] = *patch.Body
	}
	if patch.ScheduleAt != nil {
		resolved, err := resolveScheduleTime(*patch.ScheduleAt, patch.Timezone)
		if err != nil {
			return nil, err
		}
		// A time change re-arms the delayed lane from scratch.
		fields["scheduled_at"] = resolved
		fields["enqueued_at"] = nil
	}

	if len(fields) == 0 {
		return request, nil
	}

	if err := s.requests.UpdateScheduledFields(ctx, id, fields); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Fired between the read and the update.
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	return s.requests.GetByID(ctx, id)
}

// CancelScheduled cancels a pending request: terminal FAILED plus a note.
// Cancelling a request that already started sending is a quiet success;
// the delivery raced the cancel and won.
func (s *NotificationService) CancelScheduled(ctx context.Context, id string) error {
	request, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if request.Status.IsTerminal() {
		return domain.ErrNotFound
	}
	if request.Status == domain.StatusSending {
		return nil
	}

	note := fmt.Sprintf("Cancelled by user at %s", s.now().UTC().Format(time.RFC3339))
	if err := s.requests.CancelPending(ctx, id, note); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}

		current, getErr := s.requests.GetByID(ctx, id)
		if getErr != nil {
			return getErr
		}
		if current.Status == domain.StatusSending || current.Status == domain.StatusSent {
			return nil
		}
		return domain.ErrNotFound
	}

	s.logger.Info("scheduled request cancelled", zap.String("requestId", id))
	return nil
}

func (s *NotificationService) initialStatus() domain.Status {
	if s.production {
		return domain.StatusQueued
	}
	return domain.StatusPreview
}

func (s *NotificationService) resolveSchedule(at *time.Time, timezone string) (*time.Time, error) {
	if at == nil {
		if strings.TrimSpace(timezone) != "" {
			return nil, fmt.Errorf("%w: timezone requires scheduleAt", domain.ErrValidation)
		}
		return nil, nil
	}
	resolved, err := resolveScheduleTime(*at, timezone)
	if err != nil {
		return nil, err
	}
	return &resolved, nil
}

// submit persists the request and, for immediate production sends, hands it
// to the broker. Scheduled rows are left for the scheduler lane; PREVIEW
// rows never reach the broker at all.
func (s *NotificationService) submit(ctx context.Context, request *domain.NotificationRequest, config *domain.ProviderConfig) (*SubmitResult, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	if err := s.requests.Create(ctx, request); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("%w: duplicate idempotencyKey %q", domain.ErrConflict, request.IdempotencyKey)
		}
		return nil, err
	}

	now := s.now().UTC()
	immediate := request.ScheduledAt == nil || !request.ScheduledAt.After(now)
	if request.Status == domain.StatusQueued && immediate {
		if err := s.enqueue(ctx, request, config); err != nil {
			return nil, err
		}
	}

	return &SubmitResult{
		RequestID:    request.ID,
		Status:       request.Status,
		ScheduledFor: request.ScheduledAt,
		CreatedAt:    request.CreatedAt,
	}, nil
}

func (s *NotificationService) enqueue(ctx context.Context, request *domain.NotificationRequest, config *domain.ProviderConfig) error {
	msg := queue.DeliveryMessage{
		NotificationID: request.ID,
		Channel:        request.Channel,
		ProviderType:   request.ProviderType,
		TenantID:       request.TenantID,
	}

	// Snapshot decrypted credentials into the job so the worker usually
	// skips a config read. Decryption trouble is not fatal here: the worker
	// re-fetches and surfaces the failure on the delivery log.
	if s.cipher != nil && config != nil {
		var creds provider.Credentials
		if err := s.cipher.DecryptJSON(config.Credentials, &creds); err != nil {
			s.logger.Warn("failed to snapshot provider credentials",
				zap.String("requestId", request.ID),
				zap.String("providerConfigId", config.ID),
				zap.Error(err),
			)
		} else {
			msg.Credentials = &creds
			metadata := config.Metadata
			msg.Metadata = &metadata
		}
	}

	if err := s.publisher.Publish(ctx, queue.QueueName(request.Channel), msg); err != nil {
		s.logger.Error("failed to publish request",
			zap.String("requestId", request.ID),
			zap.String("channel", request.Channel.String()),
			zap.Error(err),
		)
		if markErr := s.requests.MarkFailed(ctx, request.ID, "enqueue failed: "+err.Error()); markErr != nil {
			return fmt.Errorf("failed to publish request: %w (failed to mark as failed: %v)", err, markErr)
		}
		request.Status = domain.StatusFailed
		return fmt.Errorf("failed to publish request: %w", err)
	}

	if err := s.requests.MarkEnqueued(ctx, request.ID, s.now().UTC()); err != nil && !errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("failed to mark request enqueued: %w", err)
	}

	return nil
}

func (s *NotificationService) resolveEmailContent(ctx context.Context, tenantID *string, input EmailInput) (subject, body string, templateID *string, err error) {
	if strings.TrimSpace(input.TemplateID) == "" {
		if strings.TrimSpace(input.Body) == "" {
			return "", "", nil, fmt.Errorf("%w: body or templateId is required", domain.ErrValidation)
		}
		return input.Subject, input.Body, nil, nil
	}

	tmpl, err := s.templates.GetByID(ctx, strings.TrimSpace(input.TemplateID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", "", nil, fmt.Errorf("%w: template %q not found", domain.ErrValidation, input.TemplateID)
		}
		return "", "", nil, err
	}
	if tmpl.Channel != domain.ChannelEmail {
		return "", "", nil, fmt.Errorf("%w: template %q is not an email template", domain.ErrValidation, input.TemplateID)
	}
	if err := s.checkDeclaredPlaceholders(tmpl, input.TemplateData); err != nil {
		return "", "", nil, err
	}

	subject, err = template.Render(tmpl.Subject, input.TemplateData, template.StrategyBlank)
	if err != nil {
		return "", "", nil, err
	}
	body, err = template.Render(tmpl.Body, input.TemplateData, template.StrategyBlank)
	if err != nil {
		return "", "", nil, err
	}

	// Header and footer snippets wrap the body after substitution; they
	// carry no placeholders of their own.
	if tmpl.HeaderID != nil {
		header, err := s.templates.GetSnippet(ctx, *tmpl.HeaderID)
		if err != nil {
			return "", "", nil, fmt.Errorf("failed to load header snippet: %w", err)
		}
		body = header.Content + body
	}
	if tmpl.FooterID != nil {
		footer, err := s.templates.GetSnippet(ctx, *tmpl.FooterID)
		if err != nil {
			return "", "", nil, fmt.Errorf("failed to load footer snippet: %w", err)
		}
		body += footer.Content
	}

	if strings.TrimSpace(input.Subject) != "" {
		subject = input.Subject
	}

	return subject, body, &tmpl.ID, nil
}

func (s *NotificationService) resolveSMSContent(ctx context.Context, input SMSInput) (message string, templateID *string, err error) {
	if strings.TrimSpace(input.TemplateID) == "" {
		if strings.TrimSpace(input.Message) == "" {
			return "", nil, fmt.Errorf("%w: message or templateId is required", domain.ErrValidation)
		}
		return input.Message, nil, nil
	}

	tmpl, err := s.templates.GetByID(ctx, strings.TrimSpace(input.TemplateID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", nil, fmt.Errorf("%w: template %q not found", domain.ErrValidation, input.TemplateID)
		}
		return "", nil, err
	}
	if tmpl.Channel != domain.ChannelSMS {
		return "", nil, fmt.Errorf("%w: template %q is not an sms template", domain.ErrValidation, input.TemplateID)
	}
	if err := s.checkDeclaredPlaceholders(tmpl, input.TemplateData); err != nil {
		return "", nil, err
	}

	message, err = template.Render(tmpl.Body, input.TemplateData, template.StrategyBlank)
	if err != nil {
		return "", nil, err
	}

	return message, &tmpl.ID, nil
}

// checkDeclaredPlaceholders rejects a render whose data misses any
// placeholder the template declares as expected. Undeclared placeholders
// fall back to the BLANK strategy.
func (s *NotificationService) checkDeclaredPlaceholders(tmpl *domain.NotificationTemplate, data map[string]any) error {
	if len(tmpl.Placeholders) == 0 {
		return nil
	}

	result := template.Validate(strings.Join(wrapPlaceholders(tmpl.Placeholders), ""), data)
	if !result.Valid {
		return &template.MissingKeysError{Keys: result.Missing}
	}
	return nil
}

func wrapPlaceholders(keys []string) []string {
	wrapped := make([]string, 0, len(keys))
	for _, k := range keys {
		wrapped = append(wrapped, "{{"+k+"}}")
	}
	return wrapped
}
