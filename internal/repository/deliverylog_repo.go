package repository

import (
	"context"

	"github.com/kursadbilgin/notify-gateway/internal/domain"
	"gorm.io/gorm"
)

type DeliveryLogRepository interface {
	Create(ctx context.Context, log *domain.DeliveryLog) error
	ListByRequest(ctx context.Context, requestID string) ([]domain.DeliveryLog, error)
}

type GormDeliveryLogRepo struct {
	db *gorm.DB
}

func NewGormDeliveryLogRepo(db *gorm.DB) *GormDeliveryLogRepo {
	return &GormDeliveryLogRepo{db: db}
}

func (r *GormDeliveryLogRepo) Create(ctx context.Context, log *domain.DeliveryLog) error {
	model := deliveryLogModelFromDomain(log)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if log != nil {
		*log = *deliveryLogModelToDomain(model)
	}
	return nil
}

func (r *GormDeliveryLogRepo) ListByRequest(ctx context.Context, requestID string) ([]domain.DeliveryLog, error) {
	var models []DeliveryLogModel
	err := r.db.WithContext(ctx).
		Where("notification_request_id = ?", requestID).
		Order("attempt_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	logs := make([]domain.DeliveryLog, 0, len(models))
	for i := range models {
		logs = append(logs, *deliveryLogModelToDomain(&models[i]))
	}

	return logs, nil
}
