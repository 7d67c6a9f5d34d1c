package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/notify-gateway/internal/domain"
	"gorm.io/gorm"
)

type ProviderConfigRepository interface {
	GetByID(ctx context.Context, id string) (*domain.ProviderConfig, error)
	FindActive(ctx context.Context, tenantID *string, channel domain.Channel) (*domain.ProviderConfig, error)
}

type GormProviderConfigRepo struct {
	db *gorm.DB
}

func NewGormProviderConfigRepo(db *gorm.DB) *GormProviderConfigRepo {
	return &GormProviderConfigRepo{db: db}
}

func (r *GormProviderConfigRepo) GetByID(ctx context.Context, id string) (*domain.ProviderConfig, error) {
	var model ProviderConfigModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return providerConfigModelToDomain(&model), nil
}

// FindActive resolves the single active provider for a channel, preferring a
// tenant-scoped config over a shared one. Zero matches or more than one
// match at the same scope are both configuration errors: the pipeline never
// guesses which backend to bill a send to.
func (r *GormProviderConfigRepo) FindActive(ctx context.Context, tenantID *string, channel domain.Channel) (*domain.ProviderConfig, error) {
	if tenantID != nil {
		config, err := r.findActiveScoped(ctx, tenantID, channel)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if config != nil {
			return config, nil
		}
	}

	config, err := r.findActiveScoped(ctx, nil, channel)
	if err != nil {
		// No provider at any scope is a configuration problem, not a
		// missing resource; callers map it away from 404.
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: no active provider for channel %s", domain.ErrConfiguration, channel)
		}
		return nil, err
	}
	return config, nil
}

func (r *GormProviderConfigRepo) findActiveScoped(ctx context.Context, tenantID *string, channel domain.Channel) (*domain.ProviderConfig, error) {
	query := r.db.WithContext(ctx).
		Where("channel = ? AND is_active = ?", channel, true)
	if tenantID != nil {
		query = query.Where("tenant_id = ?", *tenantID)
	} else {
		query = query.Where("tenant_id IS NULL")
	}

	var models []ProviderConfigModel
	if err := query.Limit(2).Find(&models).Error; err != nil {
		return nil, err
	}

	switch len(models) {
	case 0:
		// ErrNotFound stays internal: FindActive uses it to fall through
		// from the tenant scope to the shared scope.
		return nil, fmt.Errorf("%w: no active provider for channel %s", domain.ErrNotFound, channel)
	case 1:
		return providerConfigModelToDomain(&models[0]), nil
	default:
		return nil, fmt.Errorf("%w: multiple active providers for channel %s", domain.ErrConfiguration, channel)
	}
}
