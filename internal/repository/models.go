package repository

import (
	"encoding/json"
	"time"

	"github.com/kursadbilgin/notify-gateway/internal/domain"
)

// RequestModel is the persistence model for the notification_requests table.
type RequestModel struct {
	ID                string                  `gorm:"type:uuid;primaryKey"`
	IdempotencyKey    string                  `gorm:"type:varchar(255);not null"`
	TenantID          *string                 `gorm:"type:varchar(64)"`
	Channel           domain.Channel          `gorm:"type:varchar(10);not null"`
	ProviderType      domain.ProviderType     `gorm:"type:varchar(20);not null"`
	Recipients        domain.Recipients       `gorm:"type:jsonb;not null"`
	RawPayload        json.RawMessage         `gorm:"type:jsonb"`
	Subject           string                  `gorm:"type:varchar(255)"`
	RenderedContent   string                  `gorm:"type:text;not null"`
	Status            domain.Status           `gorm:"type:varchar(20);not null"`
	ErrorMessage      *string                 `gorm:"type:text"`
	ProviderMessageID *string                 `gorm:"type:varchar(255)"`
	ProviderResponse  *string                 `gorm:"type:text"`
	TemplateID        *string                 `gorm:"type:uuid"`
	ScheduledAt       *time.Time              `gorm:"type:timestamptz"`
	EnqueuedAt        *time.Time              `gorm:"type:timestamptz"`
	AttemptCount      int                     `gorm:"not null;default:0"`
	MaxAttempts       int                     `gorm:"not null;default:3"`
	NextRetryAt       *time.Time              `gorm:"type:timestamptz"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (RequestModel) TableName() string {
	return "notification_requests"
}

// DeliveryLogModel is the persistence model for delivery_logs.
type DeliveryLogModel struct {
	ID                    string               `gorm:"type:uuid;primaryKey"`
	NotificationRequestID string               `gorm:"type:uuid;not null"`
	AttemptNumber         int                  `gorm:"not null"`
	Status                domain.AttemptStatus `gorm:"type:varchar(10);not null"`
	ProviderMessageID     *string              `gorm:"type:varchar(255)"`
	ProviderResponse      *string              `gorm:"type:text"`
	ErrorMessage          *string              `gorm:"type:text"`
	CreatedAt             time.Time
}

func (DeliveryLogModel) TableName() string {
	return "delivery_logs"
}

// ProviderConfigModel is the persistence model for provider_configs.
// Credentials hold the encrypted blob, never plaintext.
type ProviderConfigModel struct {
	ID           string                  `gorm:"type:uuid;primaryKey"`
	TenantID     *string                 `gorm:"type:varchar(64)"`
	Name         string                  `gorm:"type:varchar(255);not null"`
	Channel      domain.Channel          `gorm:"type:varchar(10);not null"`
	ProviderType domain.ProviderType     `gorm:"type:varchar(20);not null"`
	Credentials  string                  `gorm:"type:text;not null"`
	Metadata     domain.ProviderMetadata `gorm:"type:jsonb"`
	IsActive     bool                    `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ProviderConfigModel) TableName() string {
	return "provider_configs"
}

// TemplateModel is the persistence model for notification_templates.
type TemplateModel struct {
	ID           string            `gorm:"type:uuid;primaryKey"`
	TenantID     *string           `gorm:"type:varchar(64)"`
	Name         string            `gorm:"type:varchar(255);not null"`
	Channel      domain.Channel    `gorm:"type:varchar(10);not null"`
	Subject      string            `gorm:"type:varchar(255)"`
	Body         string            `gorm:"type:text;not null"`
	HeaderID     *string           `gorm:"type:uuid"`
	FooterID     *string           `gorm:"type:uuid"`
	Placeholders domain.StringList `gorm:"type:jsonb"`
	IsActive     bool              `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (TemplateModel) TableName() string {
	return "notification_templates"
}

// SnippetModel is the persistence model for template_snippets.
type SnippetModel struct {
	ID        string             `gorm:"type:uuid;primaryKey"`
	TenantID  *string            `gorm:"type:varchar(64)"`
	Kind      domain.SnippetKind `gorm:"type:varchar(10);not null"`
	Name      string             `gorm:"type:varchar(255);not null"`
	Content   string             `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SnippetModel) TableName() string {
	return "template_snippets"
}

// WebhookModel is the persistence model for webhooks.
type WebhookModel struct {
	ID              string           `gorm:"type:uuid;primaryKey"`
	TenantID        *string          `gorm:"type:varchar(64)"`
	Name            string           `gorm:"type:varchar(255);not null"`
	URL             string           `gorm:"type:varchar(2048);not null"`
	Events          domain.EventList `gorm:"type:jsonb;not null"`
	Headers         domain.HeaderMap `gorm:"type:jsonb"`
	Secret          string           `gorm:"type:varchar(255)"`
	IsActive        bool             `gorm:"not null;default:true"`
	FailureCount    int              `gorm:"not null;default:0"`
	LastTriggeredAt *time.Time       `gorm:"type:timestamptz"`
	LastFailedAt    *time.Time       `gorm:"type:timestamptz"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (WebhookModel) TableName() string {
	return "webhooks"
}

func requestModelFromDomain(n *domain.NotificationRequest) *RequestModel {
	if n == nil {
		return nil
	}

	return &RequestModel{
		ID:                n.ID,
		IdempotencyKey:    n.IdempotencyKey,
		TenantID:          n.TenantID,
		Channel:           n.Channel,
		ProviderType:      n.ProviderType,
		Recipients:        n.Recipients,
		RawPayload:        n.RawPayload,
		Subject:           n.Subject,
		RenderedContent:   n.RenderedContent,
		Status:            n.Status,
		ErrorMessage:      n.ErrorMessage,
		ProviderMessageID: n.ProviderMessageID,
		ProviderResponse:  n.ProviderResponse,
		TemplateID:        n.TemplateID,
		ScheduledAt:       n.ScheduledAt,
		EnqueuedAt:        n.EnqueuedAt,
		AttemptCount:      n.AttemptCount,
		MaxAttempts:       n.MaxAttempts,
		NextRetryAt:       n.NextRetryAt,
		CreatedAt:         n.CreatedAt,
		UpdatedAt:         n.UpdatedAt,
	}
}

func requestModelToDomain(m *RequestModel) *domain.NotificationRequest {
	if m == nil {
		return nil
	}

	return &domain.NotificationRequest{
		ID:                m.ID,
		IdempotencyKey:    m.IdempotencyKey,
		TenantID:          m.TenantID,
		Channel:           m.Channel,
		ProviderType:      m.ProviderType,
		Recipients:        m.Recipients,
		RawPayload:        m.RawPayload,
		Subject:           m.Subject,
		RenderedContent:   m.RenderedContent,
		Status:            m.Status,
		ErrorMessage:      m.ErrorMessage,
		ProviderMessageID: m.ProviderMessageID,
		ProviderResponse:  m.ProviderResponse,
		TemplateID:        m.TemplateID,
		ScheduledAt:       m.ScheduledAt,
		EnqueuedAt:        m.EnqueuedAt,
		AttemptCount:      m.AttemptCount,
		MaxAttempts:       m.MaxAttempts,
		NextRetryAt:       m.NextRetryAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func deliveryLogModelFromDomain(l *domain.DeliveryLog) *DeliveryLogModel {
	if l == nil {
		return nil
	}

	return &DeliveryLogModel{
		ID:                    l.ID,
		NotificationRequestID: l.NotificationRequestID,
		AttemptNumber:         l.AttemptNumber,
		Status:                l.Status,
		ProviderMessageID:     l.ProviderMessageID,
		ProviderResponse:      l.ProviderResponse,
		ErrorMessage:          l.ErrorMessage,
		CreatedAt:             l.CreatedAt,
	}
}

func deliveryLogModelToDomain(m *DeliveryLogModel) *domain.DeliveryLog {
	if m == nil {
		return nil
	}

	return &domain.DeliveryLog{
		ID:                    m.ID,
		NotificationRequestID: m.NotificationRequestID,
		AttemptNumber:         m.AttemptNumber,
		Status:                m.Status,
		ProviderMessageID:     m.ProviderMessageID,
		ProviderResponse:      m.ProviderResponse,
		ErrorMessage:          m.ErrorMessage,
		CreatedAt:             m.CreatedAt,
	}
}

func providerConfigModelToDomain(m *ProviderConfigModel) *domain.ProviderConfig {
	if m == nil {
		return nil
	}

	return &domain.ProviderConfig{
		ID:           m.ID,
		TenantID:     m.TenantID,
		Name:         m.Name,
		Channel:      m.Channel,
		ProviderType: m.ProviderType,
		Credentials:  m.Credentials,
		Metadata:     m.Metadata,
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func templateModelToDomain(m *TemplateModel) *domain.NotificationTemplate {
	if m == nil {
		return nil
	}

	return &domain.NotificationTemplate{
		ID:           m.ID,
		TenantID:     m.TenantID,
		Name:         m.Name,
		Channel:      m.Channel,
		Subject:      m.Subject,
		Body:         m.Body,
		HeaderID:     m.HeaderID,
		FooterID:     m.FooterID,
		Placeholders: m.Placeholders,
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func snippetModelToDomain(m *SnippetModel) *domain.TemplateSnippet {
	if m == nil {
		return nil
	}

	return &domain.TemplateSnippet{
		ID:        m.ID,
		TenantID:  m.TenantID,
		Kind:      m.Kind,
		Name:      m.Name,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func webhookModelFromDomain(w *domain.Webhook) *WebhookModel {
	if w == nil {
		return nil
	}

	return &WebhookModel{
		ID:              w.ID,
		TenantID:        w.TenantID,
		Name:            w.Name,
		URL:             w.URL,
		Events:          w.Events,
		Headers:         w.Headers,
		Secret:          w.Secret,
		IsActive:        w.IsActive,
		FailureCount:    w.FailureCount,
		LastTriggeredAt: w.LastTriggeredAt,
		LastFailedAt:    w.LastFailedAt,
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
	}
}

func webhookModelToDomain(m *WebhookModel) *domain.Webhook {
	if m == nil {
		return nil
	}

	return &domain.Webhook{
		ID:              m.ID,
		TenantID:        m.TenantID,
		Name:            m.Name,
		URL:             m.URL,
		Events:          m.Events,
		Headers:         m.Headers,
		Secret:          m.Secret,
		IsActive:        m.IsActive,
		FailureCount:    m.FailureCount,
		LastTriggeredAt: m.LastTriggeredAt,
		LastFailedAt:    m.LastFailedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}
