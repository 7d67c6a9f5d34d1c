// Package provider holds the outbound delivery ports and their concrete
// backends. Instances are selected by the Factory from a ProviderConfig;
// credentials arrive decrypted per call and are never retained.
package provider

import (
	"context"

	"github.com/kursadbilgin/notify-gateway/internal/domain"
)

// Credentials is the decrypted secret material of a provider config.
// Fields are populated per provider type; unused fields stay empty.
type Credentials struct {
	// SMTP
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	UseTLS   bool   `json:"useTls,omitempty"`
	// Transactional email API
	APIKey string `json:"apiKey,omitempty"`
	// SMS gateway API
	AccountSID string `json:"accountSid,omitempty"`
	AuthToken  string `json:"authToken,omitempty"`
}

// SendConfig pairs decrypted credentials with the config's non-secret
// metadata defaults for one send call.
type SendConfig struct {
	Credentials Credentials
	Metadata    domain.ProviderMetadata
}

// Attachment is an email attachment with base64-encoded content.
type Attachment struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"type,omitempty"`
}

// EmailPayload is the rendered message an EmailProvider delivers.
type EmailPayload struct {
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
	ReplyTo     string
}

// SMSPayload is the rendered message an SmsProvider delivers.
type SMSPayload struct {
	To      string
	Message string
	From    string
}

// SendResult stores provider call metadata for audit and persistence.
type SendResult struct {
	MessageID  string
	StatusCode int
	Body       string
}

// EmailProvider delivers a rendered email through one backend.
type EmailProvider interface {
	SendEmail(ctx context.Context, cfg SendConfig, payload EmailPayload) (*SendResult, error)
}

// SmsProvider delivers a rendered SMS through one backend.
type SmsProvider interface {
	SendSMS(ctx context.Context, cfg SendConfig, payload SMSPayload) (*SendResult, error)
}
