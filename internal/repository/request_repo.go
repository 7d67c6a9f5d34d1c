package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/notify-gateway/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ListParams struct {
	TenantID *string
	Status   *domain.Status
	Channel  *domain.Channel
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

type RequestRepository interface {
	Create(ctx context.Context, n *domain.NotificationRequest) error
	GetByID(ctx context.Context, id string) (*domain.NotificationRequest, error)
	GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*domain.NotificationRequest, error)
	List(ctx context.Context, params ListParams) ([]domain.NotificationRequest, int64, error)
	UpdateStatus(ctx context.Context, id string, status domain.Status) error
	MarkSent(ctx context.Context, id string, providerMessageID, providerResponse string) error
	MarkFailed(ctx context.Context, id string, errorMessage string) error
	UpdateStatusWithRetry(ctx context.Context, id string, nextRetryAt time.Time) error
	LockForSending(ctx context.Context, id string) (*domain.NotificationRequest, error)
	GetDueScheduled(ctx context.Context, limit int) ([]domain.NotificationRequest, error)
	MarkEnqueued(ctx context.Context, id string, at time.Time) error
	GetDueForRetry(ctx context.Context, limit int) ([]domain.NotificationRequest, error)
	ClearNextRetryAt(ctx context.Context, id string) error
	CancelPending(ctx context.Context, id string, note string) error
	UpdateScheduledFields(ctx context.Context, id string, fields map[string]any) error
	ResetForReplay(ctx context.Context, id string) error
	GetStaleSending(ctx context.Context, cutoff time.Time, limit int) ([]domain.NotificationRequest, error)
	ReleaseStuckSending(ctx context.Context, id string) error
}

type GormRequestRepo struct {
	db *gorm.DB
}

func NewGormRequestRepo(db *gorm.DB) *GormRequestRepo {
	return &GormRequestRepo{db: db}
}

// Create persists a new request. A duplicate idempotency key surfaces as
// ErrConflict; the unique index is the race arbiter, not a pre-read.
func (r *GormRequestRepo) Create(ctx context.Context, n *domain.NotificationRequest) error {
	model := requestModelFromDomain(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrConflict
		}
		return err
	}
	if n != nil {
		*n = *requestModelToDomain(model)
	}
	return nil
}

func (r *GormRequestRepo) GetByID(ctx context.Context, id string) (*domain.NotificationRequest, error) {
	var model RequestModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return requestModelToDomain(&model), nil
}

func (r *GormRequestRepo) GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*domain.NotificationRequest, error) {
	var model RequestModel
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", idempotencyKey).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return requestModelToDomain(&model), nil
}

func (r *GormRequestRepo) List(ctx context.Context, params ListParams) ([]domain.NotificationRequest, int64, error) {
	query := r.db.WithContext(ctx).Model(&RequestModel{})

	if params.TenantID != nil {
		query = query.Where("tenant_id = ?", *params.TenantID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Channel != nil {
		query = query.Where("channel = ?", *params.Channel)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []RequestModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	requests := make([]domain.NotificationRequest, 0, len(models))
	for i := range models {
		requests = append(requests, *requestModelToDomain(&models[i]))
	}

	return requests, total, nil
}

func (r *GormRequestRepo) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	result := r.db.WithContext(ctx).
		Model(&RequestModel{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormRequestRepo) MarkSent(ctx context.Context, id string, providerMessageID, providerResponse string) error {
	result := r.db.WithContext(ctx).
		Model(&RequestModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":              domain.StatusSent,
			"provider_message_id": providerMessageID,
			"provider_response":   providerResponse,
			"error_message":       nil,
			"next_retry_at":       nil,
			"attempt_count":       gorm.Expr("attempt_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormRequestRepo) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	result := r.db.WithContext(ctx).
		Model(&RequestModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.StatusFailed,
			"error_message": errorMessage,
			"next_retry_at": nil,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatusWithRetry returns a request to QUEUED with a retry deadline
// after a transient failure, counting the attempt that just happened.
func (r *GormRequestRepo) UpdateStatusWithRetry(ctx context.Context, id string, nextRetryAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&RequestModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.StatusQueued,
			"next_retry_at": nextRetryAt,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// LockForSending claims a request for delivery under SELECT FOR UPDATE.
// Terminal and already-sending rows return (nil, nil) so racing consumers
// skip silently instead of double-delivering.
func (r *GormRequestRepo) LockForSending(ctx context.Context, id string) (*domain.NotificationRequest, error) {
	var locked *RequestModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model RequestModel
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		if model.Status.IsTerminal() || model.Status == domain.StatusSending {
			return nil
		}

		if err := tx.
			Model(&RequestModel{}).
			Where("id = ?", id).
			Update("status", domain.StatusSending).Error; err != nil {
			return err
		}

		model.Status = domain.StatusSending
		locked = &model
		return nil
	})
	if err != nil {
		return nil, err
	}

	return requestModelToDomain(locked), nil
}

// GetDueScheduled lists scheduled rows whose time has come and which the
// scheduler has not yet handed to the broker.
func (r *GormRequestRepo) GetDueScheduled(ctx context.Context, limit int) ([]domain.NotificationRequest, error) {
	var models []RequestModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ? AND enqueued_at IS NULL", domain.StatusQueued, time.Now()).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	requests := make([]domain.NotificationRequest, 0, len(models))
	for i := range models {
		requests = append(requests, *requestModelToDomain(&models[i]))
	}

	return requests, nil
}

// MarkEnqueued records the broker handoff. The enqueued_at IS NULL guard
// makes concurrent scheduler passes idempotent; a lost race is ErrConflict.
func (r *GormRequestRepo) MarkEnqueued(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&RequestModel{}).
		Where("id = ? AND status = ? AND enqueued_at IS NULL", id, domain.StatusQueued).
		Update("enqueued_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormRequestRepo) GetDueForRetry(ctx context.Context, limit int) ([]domain.NotificationRequest, error) {
	var models []RequestModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", domain.StatusQueued, time.Now()).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	requests := make([]domain.NotificationRequest, 0, len(models))
	for i := range models {
		requests = append(requests, *requestModelToDomain(&models[i]))
	}

	return requests, nil
}

func (r *GormRequestRepo) ClearNextRetryAt(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&RequestModel{}).
		Where("id = ?", id).
		Update("next_retry_at", nil).Error
}

// CancelPending turns a not-yet-fired request into a terminal FAILED row
// with a cancellation note. Requests that already left QUEUED/PREVIEW are
// reported as ErrConflict; the caller decides how the race reads.
func (r *GormRequestRepo) CancelPending(ctx context.Context, id string, note string) error {
	result := r.db.WithContext(ctx).
		Model(&RequestModel{}).
		Where("id = ? AND status IN ?", id, []domain.Status{domain.StatusQueued, domain.StatusPreview}).
		Updates(map[string]any{
			"status":        domain.StatusFailed,
			"error_message": note,
			"next_retry_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

// ResetForReplay reopens a terminally failed request for a dead-letter
// replay: back to QUEUED with a fresh attempt budget. Only FAILED rows
// match; anything else reads as ErrConflict so a double replay is harmless.
func (r *GormRequestRepo) ResetForReplay(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&RequestModel{}).
		Where("id = ? AND status = ?", id, domain.StatusFailed).
		Updates(map[string]any{
			"status":        domain.StatusQueued,
			"error_message": nil,
			"next_retry_at": nil,
			"attempt_count": 0,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

// GetStaleSending lists rows stuck in SENDING past the cutoff. A row only
// stays SENDING when a worker died or errored between locking and settling.
func (r *GormRequestRepo) GetStaleSending(ctx context.Context, cutoff time.Time, limit int) ([]domain.NotificationRequest, error) {
	var models []RequestModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.StatusSending, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	requests := make([]domain.NotificationRequest, 0, len(models))
	for i := range models {
		requests = append(requests, *requestModelToDomain(&models[i]))
	}

	return requests, nil
}

// ReleaseStuckSending returns a stuck SENDING row to QUEUED so it can be
// redelivered. The status guard loses gracefully against a worker that
// settled the row in the meantime.
func (r *GormRequestRepo) ReleaseStuckSending(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&RequestModel{}).
		Where("id = ? AND status = ?", id, domain.StatusSending).
		Update("status", domain.StatusQueued)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

// UpdateScheduledFields patches a scheduled request while it is still
// waiting. The guard rejects anything already enqueued or past QUEUED.
func (r *GormRequestRepo) UpdateScheduledFields(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&RequestModel{}).
		Where("id = ? AND status IN ? AND enqueued_at IS NULL", id, []domain.Status{domain.StatusQueued, domain.StatusPreview}).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}
