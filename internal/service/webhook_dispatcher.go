package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notify-gateway/internal/domain"
	"github.com/kursadbilgin/notify-gateway/internal/observability"
	"github.com/kursadbilgin/notify-gateway/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const webhookRequestTimeout = 10 * time.Second

// WebhookDispatcher fans pipeline events out to subscriber endpoints.
// Deliveries are independent: one slow or broken subscriber never delays
// the rest, and no outcome here feeds back into the pipeline.
type WebhookDispatcher struct {
	webhooks repository.WebhookRepository
	client   *resty.Client
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

var _ WebhookNotifier = (*WebhookDispatcher)(nil)

func NewWebhookDispatcher(webhooks repository.WebhookRepository, logger *zap.Logger) (*WebhookDispatcher, error) {
	if webhooks == nil {
		return nil, fmt.Errorf("webhook repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New().
		SetTimeout(webhookRequestTimeout).
		SetRetryCount(0)

	return &WebhookDispatcher{
		webhooks: webhooks,
		client:   client,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (d *WebhookDispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Trigger delivers the event to every active matching subscriber. The
// payload is marshaled exactly once; the signature covers those same bytes.
func (d *WebhookDispatcher) Trigger(ctx context.Context, event domain.WebhookEvent, tenantID *string, payload any) {
	subscribers, err := d.webhooks.ListActiveForEvent(ctx, event, tenantID)
	if err != nil {
		d.logger.Error("failed to list webhook subscribers",
			zap.String("event", event.String()),
			zap.Error(err),
		)
		return
	}
	if len(subscribers) == 0 {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("failed to marshal webhook payload",
			zap.String("event", event.String()),
			zap.Error(err),
		)
		return
	}

	g := new(errgroup.Group)
	for i := range subscribers {
		subscriber := subscribers[i]
		g.Go(func() error {
			d.deliver(ctx, event, subscriber, body)
			return nil
		})
	}
	_ = g.Wait()
}

func (d *WebhookDispatcher) deliver(ctx context.Context, event domain.WebhookEvent, subscriber domain.Webhook, body []byte) {
	req := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Webhook-Event", event.String()).
		SetHeader("X-Webhook-Signature", Sign(body, subscriber.Secret)).
		SetBody(body)
	for name, value := range subscriber.Headers {
		req.SetHeader(name, value)
	}

	resp, err := req.Post(subscriber.URL)
	succeeded := err == nil && resp != nil && resp.StatusCode() >= 200 && resp.StatusCode() < 300

	if succeeded {
		if recordErr := d.webhooks.RecordSuccess(ctx, subscriber.ID, d.now().UTC()); recordErr != nil {
			d.logger.Error("failed to record webhook success",
				zap.String("webhookId", subscriber.ID),
				zap.Error(recordErr),
			)
		}
		if d.metrics != nil {
			d.metrics.IncWebhookDelivery("success")
		}
		return
	}

	fields := []zap.Field{
		zap.String("webhookId", subscriber.ID),
		zap.String("event", event.String()),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	} else if resp != nil {
		fields = append(fields, zap.Int("statusCode", resp.StatusCode()))
	}
	d.logger.Warn("webhook delivery failed", fields...)

	if recordErr := d.webhooks.RecordFailure(ctx, subscriber.ID, d.now().UTC(), domain.WebhookDisableThreshold); recordErr != nil {
		d.logger.Error("failed to record webhook failure",
			zap.String("webhookId", subscriber.ID),
			zap.Error(recordErr),
		)
	}
	if d.metrics != nil {
		d.metrics.IncWebhookDelivery("failure")
	}
}

// Sign computes the hex HMAC-SHA256 of body. An empty secret yields an
// empty signature so unsecured subscribers still get the header shape.
func Sign(body []byte, secret string) string {
	if secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
