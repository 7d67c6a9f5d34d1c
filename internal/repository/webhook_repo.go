package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/notify-gateway/internal/domain"
	"gorm.io/gorm"
)

type WebhookRepository interface {
	Create(ctx context.Context, w *domain.Webhook) error
	GetByID(ctx context.Context, id string) (*domain.Webhook, error)
	List(ctx context.Context, tenantID *string) ([]domain.Webhook, error)
	ListActiveForEvent(ctx context.Context, event domain.WebhookEvent, tenantID *string) ([]domain.Webhook, error)
	Delete(ctx context.Context, id string) error
	Activate(ctx context.Context, id string) error
	RecordSuccess(ctx context.Context, id string, at time.Time) error
	RecordFailure(ctx context.Context, id string, at time.Time, disableThreshold int) error
}

type GormWebhookRepo struct {
	db *gorm.DB
}

func NewGormWebhookRepo(db *gorm.DB) *GormWebhookRepo {
	return &GormWebhookRepo{db: db}
}

func (r *GormWebhookRepo) Create(ctx context.Context, w *domain.Webhook) error {
	model := webhookModelFromDomain(w)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if w != nil {
		*w = *webhookModelToDomain(model)
	}
	return nil
}

func (r *GormWebhookRepo) GetByID(ctx context.Context, id string) (*domain.Webhook, error) {
	var model WebhookModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return webhookModelToDomain(&model), nil
}

func (r *GormWebhookRepo) List(ctx context.Context, tenantID *string) ([]domain.Webhook, error) {
	query := r.db.WithContext(ctx).Model(&WebhookModel{})
	if tenantID != nil {
		query = query.Where("tenant_id = ?", *tenantID)
	}

	var models []WebhookModel
	if err := query.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}

	webhooks := make([]domain.Webhook, 0, len(models))
	for i := range models {
		webhooks = append(webhooks, *webhookModelToDomain(&models[i]))
	}

	return webhooks, nil
}

// ListActiveForEvent returns active subscribers matching an event, scoped to
// the tenant plus shared (tenant-less) subscribers. Event matching happens
// on the jsonb events array.
func (r *GormWebhookRepo) ListActiveForEvent(ctx context.Context, event domain.WebhookEvent, tenantID *string) ([]domain.Webhook, error) {
	query := r.db.WithContext(ctx).
		Model(&WebhookModel{}).
		Where("is_active = ?", true).
		Where("events @> ?", `["`+event.String()+`"]`)
	if tenantID != nil {
		query = query.Where("tenant_id = ? OR tenant_id IS NULL", *tenantID)
	} else {
		query = query.Where("tenant_id IS NULL")
	}

	var models []WebhookModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	webhooks := make([]domain.Webhook, 0, len(models))
	for i := range models {
		webhooks = append(webhooks, *webhookModelToDomain(&models[i]))
	}

	return webhooks, nil
}

func (r *GormWebhookRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&WebhookModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Activate re-enables a subscriber after an auto-disable, resetting the
// consecutive-failure count.
func (r *GormWebhookRepo) Activate(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&WebhookModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_active":     true,
			"failure_count": 0,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormWebhookRepo) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&WebhookModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"failure_count":     0,
			"last_triggered_at": at,
		}).Error
}

// RecordFailure bumps the consecutive-failure count and flips the
// subscriber inactive once the threshold is crossed, in one statement so
// concurrent dispatches cannot double-count past the flip.
func (r *GormWebhookRepo) RecordFailure(ctx context.Context, id string, at time.Time, disableThreshold int) error {
	return r.db.WithContext(ctx).
		Model(&WebhookModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"failure_count":  gorm.Expr("failure_count + 1"),
			"last_failed_at": at,
			"is_active":      gorm.Expr("failure_count + 1 < ?", disableThreshold),
		}).Error
}
