package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify-gateway/internal/domain"
	"github.com/kursadbilgin/notify-gateway/internal/repository"
	"go.uber.org/zap"
)

// WebhookService is the subscription bookkeeping the dispatcher reads.
type WebhookService struct {
	webhooks repository.WebhookRepository
	logger   *zap.Logger
}

func NewWebhookService(webhooks repository.WebhookRepository, logger *zap.Logger) (*WebhookService, error) {
	if webhooks == nil {
		return nil, fmt.Errorf("webhook repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookService{webhooks: webhooks, logger: logger}, nil
}

func (s *WebhookService) Create(ctx context.Context, tenantID *string, webhook *domain.Webhook) (*domain.Webhook, error) {
	if webhook == nil {
		return nil, fmt.Errorf("%w: webhook is required", domain.ErrValidation)
	}

	webhook.ID = uuid.NewString()
	webhook.TenantID = tenantID
	webhook.IsActive = true
	webhook.FailureCount = 0
	webhook.LastTriggeredAt = nil
	webhook.LastFailedAt = nil

	if err := webhook.Validate(); err != nil {
		return nil, err
	}

	if err := s.webhooks.Create(ctx, webhook); err != nil {
		return nil, err
	}

	s.logger.Info("webhook subscription created",
		zap.String("webhookId", webhook.ID),
		zap.String("url", webhook.URL),
	)
	return webhook, nil
}

func (s *WebhookService) List(ctx context.Context, tenantID *string) ([]domain.Webhook, error) {
	return s.webhooks.List(ctx, tenantID)
}

func (s *WebhookService) GetByID(ctx context.Context, id string) (*domain.Webhook, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: webhook id is required", domain.ErrValidation)
	}
	return s.webhooks.GetByID(ctx, strings.TrimSpace(id))
}

func (s *WebhookService) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: webhook id is required", domain.ErrValidation)
	}
	return s.webhooks.Delete(ctx, strings.TrimSpace(id))
}

// Activate re-enables an auto-disabled subscriber and zeroes its failure
// streak.
func (s *WebhookService) Activate(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: webhook id is required", domain.ErrValidation)
	}
	return s.webhooks.Activate(ctx, strings.TrimSpace(id))
}
