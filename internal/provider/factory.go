package provider

import (
	"fmt"

	"github.com/kursadbilgin/notify-gateway/internal/domain"
	"go.uber.org/zap"
)

// Factory selects a concrete backend from a config's provider type.
// Unsupported types fail fast with a configuration error; nothing ever
// silently falls back to a different backend.
type Factory struct {
	sendgrid *SendGridProvider
	twilio   *TwilioProvider
	smtp     *SMTPProvider
	mock     *MockProvider
}

func NewFactory(logger *zap.Logger) *Factory {
	return &Factory{
		sendgrid: NewSendGridProvider(),
		twilio:   NewTwilioProvider(),
		smtp:     NewSMTPProvider(),
		mock:     NewMockProvider(logger),
	}
}

func (f *Factory) Email(providerType domain.ProviderType) (EmailProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("factory is not initialized")
	}

	switch providerType {
	case domain.ProviderSMTP:
		return f.smtp, nil
	case domain.ProviderSendGrid:
		return f.sendgrid, nil
	case domain.ProviderMock:
		return f.mock, nil
	default:
		return nil, fmt.Errorf("%w: unsupported email provider %q", domain.ErrConfiguration, providerType)
	}
}

func (f *Factory) SMS(providerType domain.ProviderType) (SmsProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("factory is not initialized")
	}

	switch providerType {
	case domain.ProviderTwilio:
		return f.twilio, nil
	case domain.ProviderMock:
		return f.mock, nil
	default:
		return nil, fmt.Errorf("%w: unsupported sms provider %q", domain.ErrConfiguration, providerType)
	}
}
