package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MockProvider never contacts the network. It logs the message and reports
// success, serving local development and preview environments.
type MockProvider struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewMockProvider(logger *zap.Logger) *MockProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MockProvider{logger: logger, now: time.Now}
}

func (p *MockProvider) SendEmail(ctx context.Context, cfg SendConfig, payload EmailPayload) (*SendResult, error) {
	p.logger.Info("mock email delivery",
		zap.Strings("to", payload.To),
		zap.String("subject", payload.Subject),
		zap.Int("bodyBytes", len(payload.HTML)),
	)

	return &SendResult{
		MessageID: fmt.Sprintf("mock-email-%d-%s", p.now().UnixMilli(), shortID()),
		Body:      fmt.Sprintf(`{"to":%q,"subject":%q}`, strings.Join(payload.To, ","), payload.Subject),
	}, nil
}

func (p *MockProvider) SendSMS(ctx context.Context, cfg SendConfig, payload SMSPayload) (*SendResult, error) {
	p.logger.Info("mock sms delivery",
		zap.String("to", payload.To),
		zap.Int("messageBytes", len(payload.Message)),
	)

	return &SendResult{
		MessageID: fmt.Sprintf("mock-sms-%d-%s", p.now().UnixMilli(), shortID()),
		Body:      fmt.Sprintf(`{"to":%q}`, payload.To),
	}, nil
}

func shortID() string {
	return strings.Split(uuid.NewString(), "-")[0]
}
