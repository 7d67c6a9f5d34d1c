package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/notify-gateway/internal/domain"
	"gorm.io/gorm"
)

type TemplateRepository interface {
	GetByID(ctx context.Context, id string) (*domain.NotificationTemplate, error)
	GetSnippet(ctx context.Context, id string) (*domain.TemplateSnippet, error)
}

type GormTemplateRepo struct {
	db *gorm.DB
}

func NewGormTemplateRepo(db *gorm.DB) *GormTemplateRepo {
	return &GormTemplateRepo{db: db}
}

func (r *GormTemplateRepo) GetByID(ctx context.Context, id string) (*domain.NotificationTemplate, error) {
	var model TemplateModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", id, true).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return templateModelToDomain(&model), nil
}

func (r *GormTemplateRepo) GetSnippet(ctx context.Context, id string) (*domain.TemplateSnippet, error) {
	var model SnippetModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return snippetModelToDomain(&model), nil
}
