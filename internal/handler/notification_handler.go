package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notify-gateway/internal/domain"
	"github.com/kursadbilgin/notify-gateway/internal/repository"
	"github.com/kursadbilgin/notify-gateway/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100

	tenantHeader = "X-Tenant-ID"
)

type NotificationService interface {
	SendEmail(ctx context.Context, tenantID *string, input service.EmailInput) (*service.SubmitResult, error)
	SendSMS(ctx context.Context, tenantID *string, input service.SMSInput) (*service.SubmitResult, error)
	ScheduleEmail(ctx context.Context, tenantID *string, input service.EmailInput) (*service.SubmitResult, error)
	ScheduleSMS(ctx context.Context, tenantID *string, input service.SMSInput) (*service.SubmitResult, error)
	SendBulkEmail(ctx context.Context, tenantID *string, inputs []service.EmailInput) (*service.BulkResult, error)
	SendBulkSMS(ctx context.Context, tenantID *string, inputs []service.SMSInput) (*service.BulkResult, error)
	GetByID(ctx context.Context, id string) (*domain.NotificationRequest, error)
	GetDeliveryLogs(ctx context.Context, id string) ([]domain.DeliveryLog, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.NotificationRequest, int64, error)
	UpdateScheduled(ctx context.Context, id string, patch service.ScheduledPatch) (*domain.NotificationRequest, error)
	CancelScheduled(ctx context.Context, id string) error
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications/email", h.SendEmail)
	v1.Post("/notifications/sms", h.SendSMS)
	v1.Post("/notifications/email/bulk", h.SendBulkEmail)
	v1.Post("/notifications/sms/bulk", h.SendBulkSMS)
	v1.Post("/notifications/schedule/email", h.ScheduleEmail)
	v1.Post("/notifications/schedule/sms", h.ScheduleSMS)
	v1.Patch("/notifications/schedule/:id", h.UpdateScheduled)
	v1.Delete("/notifications/schedule/:id", h.CancelScheduled)
	v1.Get("/notifications/:id/attempts", h.GetDeliveryLogs)
	v1.Get("/notifications/:id", h.GetNotification)
	v1.Get("/notifications", h.ListNotifications)

	return nil
}

type requestResponse struct {
	ID                string            `json:"id"`
	IdempotencyKey    string            `json:"idempotencyKey"`
	TenantID          *string           `json:"tenantId,omitempty"`
	Channel           string            `json:"channel"`
	ProviderType      string            `json:"providerType"`
	Recipients        domain.Recipients `json:"recipients"`
	Subject           string            `json:"subject,omitempty"`
	Status            string            `json:"status"`
	ErrorMessage      *string           `json:"errorMessage,omitempty"`
	ProviderMessageID *string           `json:"providerMessageId,omitempty"`
	TemplateID        *string           `json:"templateId,omitempty"`
	ScheduledAt       *time.Time        `json:"scheduledAt,omitempty"`
	EnqueuedAt        *time.Time        `json:"enqueuedAt,omitempty"`
	AttemptCount      int               `json:"attemptCount"`
	MaxAttempts       int               `json:"maxAttempts"`
	NextRetryAt       *time.Time        `json:"nextRetryAt,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

type attemptResponse struct {
	ID                string    `json:"id"`
	AttemptNumber     int       `json:"attemptNumber"`
	Status            string    `json:"status"`
	ProviderMessageID *string   `json:"providerMessageId,omitempty"`
	ProviderResponse  *string   `json:"providerResponse,omitempty"`
	ErrorMessage      *string   `json:"errorMessage,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

type listRequestsResponse struct {
	Data []requestResponse `json:"data"`
	Meta listMeta          `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *NotificationHandler) SendEmail(c *fiber.Ctx) error {
	var input service.EmailInput
	if err := parseBody(c, &input); err != nil {
		return err
	}

	result, err := h.service.SendEmail(c.Context(), tenantID(c), input)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *NotificationHandler) SendSMS(c *fiber.Ctx) error {
	var input service.SMSInput
	if err := parseBody(c, &input); err != nil {
		return err
	}

	result, err := h.service.SendSMS(c.Context(), tenantID(c), input)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *NotificationHandler) SendBulkEmail(c *fiber.Ctx) error {
	var inputs []service.EmailInput
	if err := parseBody(c, &inputs); err != nil {
		return err
	}

	result, err := h.service.SendBulkEmail(c.Context(), tenantID(c), inputs)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *NotificationHandler) SendBulkSMS(c *fiber.Ctx) error {
	var inputs []service.SMSInput
	if err := parseBody(c, &inputs); err != nil {
		return err
	}

	result, err := h.service.SendBulkSMS(c.Context(), tenantID(c), inputs)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *NotificationHandler) ScheduleEmail(c *fiber.Ctx) error {
	var input service.EmailInput
	if err := parseBody(c, &input); err != nil {
		return err
	}

	result, err := h.service.ScheduleEmail(c.Context(), tenantID(c), input)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *NotificationHandler) ScheduleSMS(c *fiber.Ctx) error {
	var input service.SMSInput
	if err := parseBody(c, &input); err != nil {
		return err
	}

	result, err := h.service.ScheduleSMS(c.Context(), tenantID(c), input)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *NotificationHandler) UpdateScheduled(c *fiber.Ctx) error {
	var patch service.ScheduledPatch
	if err := parseBody(c, &patch); err != nil {
		return err
	}

	id := strings.TrimSpace(c.Params("id"))
	updated, err := h.service.UpdateScheduled(c.Context(), id, patch)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toRequestResponse(updated))
}

func (h *NotificationHandler) CancelScheduled(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.CancelScheduled(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	request, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toRequestResponse(request))
}

func (h *NotificationHandler) GetDeliveryLogs(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	logs, err := h.service.GetDeliveryLogs(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]attemptResponse, 0, len(logs))
	for _, log := range logs {
		responses = append(responses, attemptResponse{
			ID:                log.ID,
			AttemptNumber:     log.AttemptNumber,
			Status:            log.Status.String(),
			ProviderMessageID: log.ProviderMessageID,
			ProviderResponse:  log.ProviderResponse,
			ErrorMessage:      log.ErrorMessage,
			CreatedAt:         log.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"requestId": id,
		"attempts":  responses,
	})
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}
	params.TenantID = tenantID(c)

	requests, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]requestResponse, 0, len(requests))
	for i := range requests {
		responses = append(responses, toRequestResponse(&requests[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listRequestsResponse{
		Data: responses,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	if rawChannel := strings.TrimSpace(c.Query("channel")); rawChannel != "" {
		channel, err := domain.ParseChannelFromString(rawChannel)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Channel = &channel
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func toRequestResponse(n *domain.NotificationRequest) requestResponse {
	if n == nil {
		return requestResponse{}
	}

	return requestResponse{
		ID:                n.ID,
		IdempotencyKey:    n.IdempotencyKey,
		TenantID:          n.TenantID,
		Channel:           n.Channel.String(),
		ProviderType:      n.ProviderType.String(),
		Recipients:        n.Recipients,
		Subject:           n.Subject,
		Status:            n.Status.String(),
		ErrorMessage:      n.ErrorMessage,
		ProviderMessageID: n.ProviderMessageID,
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

// tenantID reads the optional tenant scope header. An absent or blank header
// means the shared scope.
func tenantID(c *fiber.Ctx) *string {
	value := strings.TrimSpace(c.Get(tenantHeader))
	if value == "" {
		return nil
	}
	return &value
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := json.Unmarshal(c.Body(), out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrConfiguration):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		return err
	}
}
