package handler

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notify-gateway/internal/domain"
	"github.com/kursadbilgin/notify-gateway/internal/queue"
	"github.com/kursadbilgin/notify-gateway/internal/repository"
	"github.com/kursadbilgin/notify-gateway/internal/service"
	"github.com/kursadbilgin/notify-gateway/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestNotificationIntegration_SendEmail(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		sendEmailFn: func(ctx context.Context, tenantID *string, input service.EmailInput) (*service.SubmitResult, error) {
			if tenantID == nil || *tenantID != "tenant-1" {
				t.Fatalf("tenantID = %v, want tenant-1", tenantID)
			}
			if input.IdempotencyKey != "key-1" {
				t.Fatalf("idempotencyKey = %q, want key-1", input.IdempotencyKey)
			}
			return &service.SubmitResult{
				RequestID: "req-1",
				Status:    domain.StatusQueued,
				CreatedAt: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
			}, nil
		},
	}

	app := newNotificationTestApp(t, svc)

	body := `{"idempotencyKey":"key-1","to":["user@example.com"],"subject":"Hi","body":"<p>Hello</p>"}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/notifications/email", body)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, string(respBody))
	}

	var parsed map[string]any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["requestId"] != "req-1" {
		t.Fatalf("requestId = %v, want req-1", parsed["requestId"])
	}
	if parsed["status"] != domain.StatusQueued.String() {
		t.Fatalf("status = %v, want QUEUED", parsed["status"])
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/notifications/email", "{not json")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a malformed body", resp.StatusCode)
	}
}

func TestNotificationIntegration_SendEmailValidationError(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		sendEmailFn: func(ctx context.Context, tenantID *string, input service.EmailInput) (*service.SubmitResult, error) {
			return nil, fmt.Errorf("%w: idempotencyKey is required", domain.ErrValidation)
		},
	}

	app := newNotificationTestApp(t, svc)

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/notifications/email", `{"to":["user@example.com"],"body":"x"}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestNotificationIntegration_SendEmailDuplicate(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		sendEmailFn: func(ctx context.Context, tenantID *string, input service.EmailInput) (*service.SubmitResult, error) {
			return nil, fmt.Errorf("%w: duplicate idempotencyKey", domain.ErrConflict)
		},
	}

	app := newNotificationTestApp(t, svc)

	body := `{"idempotencyKey":"key-1","to":["user@example.com"],"body":"x"}`
	resp, _ := performRequest(t, app, http.MethodPost, "/v1/notifications/email", body)
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestNotificationIntegration_SendEmailNoActiveProvider(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		sendEmailFn: func(ctx context.Context, tenantID *string, input service.EmailInput) (*service.SubmitResult, error) {
			return nil, fmt.Errorf("%w: no active provider for channel EMAIL", domain.ErrConfiguration)
		},
	}

	app := newNotificationTestApp(t, svc)

	body := `{"idempotencyKey":"key-1","to":["user@example.com"],"body":"x"}`
	resp, _ := performRequest(t, app, http.MethodPost, "/v1/notifications/email", body)
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestNotificationIntegration_SendBulkEmail(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		sendBulkEmailFn: func(ctx context.Context, tenantID *string, inputs []service.EmailInput) (*service.BulkResult, error) {
			if len(inputs) != 2 {
				t.Fatalf("inputs = %d, want 2", len(inputs))
			}
			return &service.BulkResult{
				Total:      2,
				Successful: 1,
				Failed:     1,
				Results:    []service.SubmitResult{{RequestID: "req-1", Status: domain.StatusQueued}},
				Errors:     []service.BulkItemError{{Index: 1, Error: "validation failed: body or templateId is required"}},
			}, nil
		},
	}

	app := newNotificationTestApp(t, svc)

	body := `[{"idempotencyKey":"k1","to":["a@example.com"],"body":"x"},{"idempotencyKey":"k2","to":["b@example.com"]}]`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/notifications/email/bulk", body)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(respBody))
	}

	var parsed map[string]any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["total"] != float64(2) || parsed["successful"] != float64(1) || parsed["failed"] != float64(1) {
		t.Fatalf("bulk totals = %v, want 2/1/1", parsed)
	}
}

func TestNotificationIntegration_ScheduleEmail(t *testing.T) {
	t.Parallel()

	scheduledFor := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	svc := &stubNotificationService{
		scheduleEmailFn: func(ctx context.Context, tenantID *string, input service.EmailInput) (*service.SubmitResult, error) {
			if input.ScheduleAt == nil {
				return nil, fmt.Errorf("%w: scheduleAt is required", domain.ErrValidation)
			}
			if input.Timezone != "Europe/Istanbul" {
				t.Fatalf("timezone = %q, want Europe/Istanbul", input.Timezone)
			}
			return &service.SubmitResult{
				RequestID:    "req-1",
				Status:       domain.StatusQueued,
				ScheduledFor: &scheduledFor,
			}, nil
		},
	}

	app := newNotificationTestApp(t, svc)

	body := `{"idempotencyKey":"k1","to":["a@example.com"],"body":"x","scheduleAt":"2026-03-01T09:00:00Z","timezone":"Europe/Istanbul"}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/notifications/schedule/email", body)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, string(respBody))
	}

	var parsed map[string]any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["scheduledFor"] != "2026-03-01T06:00:00Z" {
		t.Fatalf("scheduledFor = %v, want 2026-03-01T06:00:00Z", parsed["scheduledFor"])
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/notifications/schedule/email", `{"idempotencyKey":"k1","to":["a@example.com"],"body":"x"}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without scheduleAt", resp.StatusCode)
	}
}

func TestNotificationIntegration_UpdateAndCancelScheduled(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		updateScheduledFn: func(ctx context.Context, id string, patch service.ScheduledPatch) (*domain.NotificationRequest, error) {
			if id != "req-1" {
				return nil, domain.ErrNotFound
			}
			if patch.Body == nil || *patch.Body != "<p>new</p>" {
				t.Fatalf("patch body = %v, want <p>new</p>", patch.Body)
			}
			return &domain.NotificationRequest{
				ID:              "req-1",
				Channel:         domain.ChannelEmail,
				ProviderType:    domain.ProviderSendGrid,
				Status:          domain.StatusQueued,
				RenderedContent: *patch.Body,
			}, nil
		},
		cancelScheduledFn: func(ctx context.Context, id string) error {
			if id == "req-1" {
				return nil
			}
			return domain.ErrNotFound
		},
	}

	app := newNotificationTestApp(t, svc)

	resp, respBody := performRequest(t, app, http.MethodPatch, "/v1/notifications/schedule/req-1", `{"body":"<p>new</p>"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(respBody))
	}

	resp, _ = performRequest(t, app, http.MethodPatch, "/v1/notifications/schedule/gone", `{"body":"<p>new</p>"}`)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodDelete, "/v1/notifications/schedule/req-1", "")
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodDelete, "/v1/notifications/schedule/gone", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestNotificationIntegration_GetNotificationAndAttempts(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		getByIDFn: func(ctx context.Context, id string) (*domain.NotificationRequest, error) {
			if id == "req-1" {
				return &domain.NotificationRequest{
					ID:             "req-1",
					IdempotencyKey: "key-1",
					Channel:        domain.ChannelEmail,
					ProviderType:   domain.ProviderSendGrid,
					Recipients:     domain.Recipients{To: []string{"user@example.com"}},
					Status:         domain.StatusSent,
					AttemptCount:   1,
					MaxAttempts:    3,
				}, nil
			}
			return nil, domain.ErrNotFound
		},
		getDeliveryLogsFn: func(ctx context.Context, id string) ([]domain.DeliveryLog, error) {
			if id != "req-1" {
				return nil, domain.ErrNotFound
			}
			messageID := "msg-1"
			return []domain.DeliveryLog{{
				ID:                    "log-1",
				NotificationRequestID: "req-1",
				AttemptNumber:         1,
				Status:                domain.AttemptSuccess,
				ProviderMessageID:     &messageID,
			}}, nil
		},
	}

	app := newNotificationTestApp(t, svc)

	resp, respBody := performRequest(t, app, http.MethodGet, "/v1/notifications/req-1", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(respBody))
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/notifications/not-exists", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	resp, respBody = performRequest(t, app, http.MethodGet, "/v1/notifications/req-1/attempts", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		RequestID string           `json:"requestId"`
		Attempts  []map[string]any `json:"attempts"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.RequestID != "req-1" || len(parsed.Attempts) != 1 {
		t.Fatalf("attempts response = %+v, want one attempt for req-1", parsed)
	}
}

func TestNotificationIntegration_ListPaginationAndFilters(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		listFn: func(ctx context.Context, params repository.ListParams) ([]domain.NotificationRequest, int64, error) {
			if params.Page != 2 {
				t.Fatalf("page = %d, want 2", params.Page)
			}
			if params.PageSize != 10 {
				t.Fatalf("pageSize = %d, want 10", params.PageSize)
			}
			if params.Status == nil || *params.Status != domain.StatusQueued {
				t.Fatalf("status filter = %v, want QUEUED", params.Status)
			}
			if params.Channel == nil || *params.Channel != domain.ChannelSMS {
				t.Fatalf("channel filter = %v, want SMS", params.Channel)
			}
			if params.TenantID == nil || *params.TenantID != "tenant-1" {
				t.Fatalf("tenant filter = %v, want tenant-1", params.TenantID)
			}

			return []domain.NotificationRequest{{
				ID:             "req-1",
				IdempotencyKey: "key-1",
				Channel:        domain.ChannelSMS,
				ProviderType:   domain.ProviderTwilio,
				Recipients:     domain.Recipients{To: []string{"+15551234567"}},
				Status:         domain.StatusQueued,
				MaxAttempts:    3,
			}}, 1, nil
		},
	}

	app := newNotificationTestApp(t, svc)

	path := "/v1/notifications?page=2&pageSize=10&status=queued&channel=sms"
	resp, respBody := performRequest(t, app, http.MethodGet, path, "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Page     int   `json:"page"`
			PageSize int   `json:"pageSize"`
			Total    int64 `json:"total"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.Meta.Page != 2 || parsed.Meta.PageSize != 10 || parsed.Meta.Total != 1 {
		t.Fatalf("meta = %+v, want page=2,pageSize=10,total=1", parsed.Meta)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/notifications?status=bogus", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a bad status filter", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/notifications?pageSize=101", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an oversized page", resp.StatusCode)
	}
}

func TestWebhookIntegration_CreateAndList(t *testing.T) {
	t.Parallel()

	svc := &stubWebhookService{
		createFn: func(ctx context.Context, tenantID *string, webhook *domain.Webhook) (*domain.Webhook, error) {
			if err := webhook.Validate(); err != nil {
				return nil, err
			}
			webhook.ID = "hook-1"
			webhook.IsActive = true
			return webhook, nil
		},
	}

	app := newWebhookTestApp(t, svc)

	body := `{"name":"audit","url":"https://hooks.example.com/notify","events":["notification.sent"],"secret":"s3cret"}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/webhooks", body)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, string(respBody))
	}

	var parsed map[string]any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["id"] != "hook-1" {
		t.Fatalf("id = %v, want hook-1", parsed["id"])
	}
	if _, ok := parsed["secret"]; ok {
		t.Fatal("the signing secret must not be echoed back")
	}
	if parsed["hasSecret"] != true {
		t.Fatalf("hasSecret = %v, want true", parsed["hasSecret"])
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/webhooks", `{"name":"a","url":"https://x.example.com","events":["notification.exploded"]}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an unknown event", resp.StatusCode)
	}
}

func TestDeadLetterIntegration_ListAndReplay(t *testing.T) {
	t.Parallel()

	store := &stubDeadLetters{
		entries: []queue.DeadLetterEntry{{
			Message: queue.DeliveryMessage{
				NotificationID: "req-1",
				Channel:        domain.ChannelEmail,
				ProviderType:   domain.ProviderSendGrid,
			},
			Reason: "provider error: status=400: bad address",
		}},
	}

	app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
	if err := RegisterDeadLetterRoutes(app, store); err != nil {
		t.Fatalf("RegisterDeadLetterRoutes() error = %v", err)
	}

	resp, respBody := performRequest(t, app, http.MethodGet, "/v1/dead-letters?channel=email", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		Channel string                  `json:"channel"`
		Depth   int                     `json:"depth"`
		Entries []queue.DeadLetterEntry `json:"entries"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.Channel != "EMAIL" || parsed.Depth != 1 || len(parsed.Entries) != 1 {
		t.Fatalf("dead letter list = %+v, want one EMAIL entry", parsed)
	}

	resp, respBody = performRequest(t, app, http.MethodPost, "/v1/dead-letters/email/replay", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(respBody))
	}

	var replay map[string]any
	if err := json.Unmarshal(respBody, &replay); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if replay["replayed"] != float64(1) {
		t.Fatalf("replayed = %v, want 1", replay["replayed"])
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/dead-letters?channel=fax", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an unknown channel", resp.StatusCode)
	}
}

func TestHealthIntegration_LivezAndReadyz(t *testing.T) {
	t.Parallel()

	t.Run("livez returns 200", func(t *testing.T) {
		t.Parallel()

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, sql.OpenDB(stubConnector{}), newStubRedisClient(nil))

		resp, body := performRequest(t, app, http.MethodGet, "/livez", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("readyz returns 200 when dependencies healthy", func(t *testing.T) {
		t.Parallel()

		sqlDB := sql.OpenDB(stubConnector{})
		t.Cleanup(func() { _ = sqlDB.Close() })

		rdb := newStubRedisClient(nil)
		t.Cleanup(func() { _ = rdb.Close() })

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, sqlDB, rdb)

		resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("readyz returns 503 when dependencies down", func(t *testing.T) {
		t.Parallel()

		sqlDB := sql.OpenDB(stubConnector{pingErr: errors.New("postgres down")})
		t.Cleanup(func() { _ = sqlDB.Close() })

		rdb := newStubRedisClient(errors.New("redis down"))
		t.Cleanup(func() { _ = rdb.Close() })

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, sqlDB, rdb)

		resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503, body=%s", resp.StatusCode, string(body))
		}
	})
}

type stubNotificationService struct {
	sendEmailFn       func(ctx context.Context, tenantID *string, input service.EmailInput) (*service.SubmitResult, error)
	sendSMSFn         func(ctx context.Context, tenantID *string, input service.SMSInput) (*service.SubmitResult, error)
	scheduleEmailFn   func(ctx context.Context, tenantID *string, input service.EmailInput) (*service.SubmitResult, error)
	scheduleSMSFn     func(ctx context.Context, tenantID *string, input service.SMSInput) (*service.SubmitResult, error)
	sendBulkEmailFn   func(ctx context.Context, tenantID *string, inputs []service.EmailInput) (*service.BulkResult, error)
	sendBulkSMSFn     func(ctx context.Context, tenantID *string, inputs []service.SMSInput) (*service.BulkResult, error)
	getByIDFn         func(ctx context.Context, id string) (*domain.NotificationRequest, error)
	getDeliveryLogsFn func(ctx context.Context, id string) ([]domain.DeliveryLog, error)
	listFn            func(ctx context.Context, params repository.ListParams) ([]domain.NotificationRequest, int64, error)
	updateScheduledFn func(ctx context.Context, id string, patch service.ScheduledPatch) (*domain.NotificationRequest, error)
	cancelScheduledFn func(ctx context.Context, id string) error
}

func (s *stubNotificationService) SendEmail(ctx context.Context, tenantID *string, input service.EmailInput) (*service.SubmitResult, error) {
	if s.sendEmailFn != nil {
		return s.sendEmailFn(ctx, tenantID, input)
	}
	return nil, errors.New("not implemented")
}

func (s *stubNotificationService) SendSMS(ctx context.Context, tenantID *string, input service.SMSInput) (*service.SubmitResult, error) {
	if s.sendSMSFn != nil {
		return s.sendSMSFn(ctx, tenantID, input)
	}
	return nil, errors.New("not implemented")
}

func (s *stubNotificationService) ScheduleEmail(ctx context.Context, tenantID *string, input service.EmailInput) (*service.SubmitResult, error) {
	if s.scheduleEmailFn != nil {
		return s.scheduleEmailFn(ctx, tenantID, input)
	}
	return nil, errors.New("not implemented")
}

func (s *stubNotificationService) ScheduleSMS(ctx context.Context, tenantID *string, input service.SMSInput) (*service.SubmitResult, error) {
	if s.scheduleSMSFn != nil {
		return s.scheduleSMSFn(ctx, tenantID, input)
	}
	return nil, errors.New("not implemented")
}

func (s *stubNotificationService) SendBulkEmail(ctx context.Context, tenantID *string, inputs []service.EmailInput) (*service.BulkResult, error) {
	if s.sendBulkEmailFn != nil {
		return s.sendBulkEmailFn(ctx, tenantID, inputs)
	}
	return nil, errors.New("not implemented")
}

func (s *stubNotificationService) SendBulkSMS(ctx context.Context, tenantID *string, inputs []service.SMSInput) (*service.BulkResult, error) {
	if s.sendBulkSMSFn != nil {
		return s.sendBulkSMSFn(ctx, tenantID, inputs)
	}
	return nil, errors.New("not implemented")
}

func (s *stubNotificationService) GetByID(ctx context.Context, id string) (*domain.NotificationRequest, error) {
	if s.getByIDFn != nil {
		return s.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (s *stubNotificationService) GetDeliveryLogs(ctx context.Context, id string) ([]domain.DeliveryLog, error) {
	if s.getDeliveryLogsFn != nil {
		return s.getDeliveryLogsFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (s *stubNotificationService) List(ctx context.Context, params repository.ListParams) ([]domain.NotificationRequest, int64, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (s *stubNotificationService) UpdateScheduled(ctx context.Context, id string, patch service.ScheduledPatch) (*domain.NotificationRequest, error) {
	if s.updateScheduledFn != nil {
		return s.updateScheduledFn(ctx, id, patch)
	}
	return nil, domain.ErrNotFound
}

func (s *stubNotificationService) CancelScheduled(ctx context.Context, id string) error {
	if s.cancelScheduledFn != nil {
		return s.cancelScheduledFn(ctx, id)
	}
	return domain.ErrNotFound
}

type stubWebhookService struct {
	createFn func(ctx context.Context, tenantID *string, webhook *domain.Webhook) (*domain.Webhook, error)
}

func (s *stubWebhookService) Create(ctx context.Context, tenantID *string, webhook *domain.Webhook) (*domain.Webhook, error) {
	if s.createFn != nil {
		return s.createFn(ctx, tenantID, webhook)
	}
	return nil, errors.New("not implemented")
}

func (s *stubWebhookService) List(ctx context.Context, tenantID *string) ([]domain.Webhook, error) {
	return nil, nil
}

func (s *stubWebhookService) GetByID(ctx context.Context, id string) (*domain.Webhook, error) {
	return nil, domain.ErrNotFound
}

func (s *stubWebhookService) Delete(ctx context.Context, id string) error   { return nil }
func (s *stubWebhookService) Activate(ctx context.Context, id string) error { return nil }

type stubDeadLetters struct {
	entries []queue.DeadLetterEntry
}

func (s *stubDeadLetters) PublishDead(ctx context.Context, channel domain.Channel, msg queue.DeliveryMessage, reason string) error {
	s.entries = append(s.entries, queue.DeadLetterEntry{Message: msg, Reason: reason})
	return nil
}

func (s *stubDeadLetters) Depth(ctx context.Context, channel domain.Channel) (int, error) {
	return len(s.entries), nil
}

func (s *stubDeadLetters) Peek(ctx context.Context, channel domain.Channel, limit int) ([]queue.DeadLetterEntry, error) {
	if limit > len(s.entries) {
		limit = len(s.entries)
	}
	return s.entries[:limit], nil
}

func (s *stubDeadLetters) Replay(ctx context.Context, channel domain.Channel, limit int) (int, error) {
	replayed := len(s.entries)
	if limit < replayed {
		replayed = limit
	}
	s.entries = s.entries[replayed:]
	return replayed, nil
}

func newNotificationTestApp(t *testing.T, svc NotificationService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterNotificationRoutes(app, svc); err != nil {
		t.Fatalf("RegisterNotificationRoutes() error = %v", err)
	}

	return app
}

func newWebhookTestApp(t *testing.T, svc WebhookService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterWebhookRoutes(app, svc); err != nil {
		t.Fatalf("RegisterWebhookRoutes() error = %v", err)
	}

	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(tenantHeader, "tenant-1")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

type stubConnector struct {
	pingErr error
}

func (c stubConnector) Connect(context.Context) (driver.Conn, error) {
	return stubConn(c), nil
}

func (c stubConnector) Driver() driver.Driver {
	return stubDriver(c)
}

type stubDriver struct {
	pingErr error
}

func (d stubDriver) Open(string) (driver.Conn, error) {
	return stubConn(d), nil
}

type stubConn struct {
	pingErr error
}

func (c stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c stubConn) Close() error                        { return nil }
func (c stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }
func (c stubConn) Ping(context.Context) error          { return c.pingErr }

type stubRedisHook struct {
	pingErr error
}

func (h stubRedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h stubRedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if strings.EqualFold(cmd.Name(), "ping") {
			if h.pingErr != nil {
				cmd.SetErr(h.pingErr)
				return h.pingErr
			}
			cmd.SetErr(nil)
			return nil
		}
		cmd.SetErr(nil)
		return nil
	}
}

func (h stubRedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			cmd.SetErr(nil)
		}
		return nil
	}
}

func newStubRedisClient(pingErr error) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:6379",
		DialTimeout:  time.Millisecond,
		ReadTimeout:  time.Millisecond,
		WriteTimeout: time.Millisecond,
	})
	rdb.AddHook(stubRedisHook{pingErr: pingErr})
	return rdb
}
