package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notify-gateway/internal/domain"
)

type WebhookService interface {
	Create(ctx context.Context, tenantID *string, webhook *domain.Webhook) (*domain.Webhook, error)
	List(ctx context.Context, tenantID *string) ([]domain.Webhook, error)
	GetByID(ctx context.Context, id string) (*domain.Webhook, error)
	Delete(ctx context.Context, id string) error
	Activate(ctx context.Context, id string) error
}

type WebhookHandler struct {
	service WebhookService
}

func NewWebhookHandler(service WebhookService) (*WebhookHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("webhook service is required")
	}
	return &WebhookHandler{service: service}, nil
}

func RegisterWebhookRoutes(router fiber.Router, service WebhookService) error {
	h, err := NewWebhookHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/webhooks", h.CreateWebhook)
	v1.Get("/webhooks", h.ListWebhooks)
	v1.Get("/webhooks/:id", h.GetWebhook)
	v1.Delete("/webhooks/:id", h.DeleteWebhook)
	v1.Post("/webhooks/:id/activate", h.ActivateWebhook)

	return nil
}

type createWebhookRequest struct {
	Name    string            `json:"name"`
	URL     string            `json:"url"`
	Events  []string          `json:"events"`
	Headers map[string]string `json:"headers,omitempty"`
	Secret  string            `json:"secret,omitempty"`
}

// webhookResponse never echoes the signing secret back.
type webhookResponse struct {
	ID              string           `json:"id"`
	TenantID        *string          `json:"tenantId,omitempty"`
	Name            string           `json:"name"`
	URL             string           `json:"url"`
	Events          domain.EventList `json:"events"`
	Headers         domain.HeaderMap `json:"headers,omitempty"`
	HasSecret       bool             `json:"hasSecret"`
	IsActive        bool             `json:"isActive"`
	FailureCount    int              `json:"failureCount"`
	LastTriggeredAt *time.Time       `json:"lastTriggeredAt,omitempty"`
	LastFailedAt    *time.Time       `json:"lastFailedAt,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

func (h *WebhookHandler) CreateWebhook(c *fiber.Ctx) error {
	var req createWebhookRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	events := make(domain.EventList, 0, len(req.Events))
	for _, raw := range req.Events {
		event, err := domain.ParseWebhookEventFromString(raw)
		if err != nil {
			return toHTTPError(err)
		}
		events = append(events, event)
	}

	webhook := &domain.Webhook{
		Name:    strings.TrimSpace(req.Name),
		URL:     strings.TrimSpace(req.URL),
		Events:  events,
		Headers: req.Headers,
		Secret:  req.Secret,
	}

	created, err := h.service.Create(c.Context(), tenantID(c), webhook)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toWebhookResponse(created))
}

func (h *WebhookHandler) ListWebhooks(c *fiber.Ctx) error {
	webhooks, err := h.service.List(c.Context(), tenantID(c))
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]webhookResponse, 0, len(webhooks))
	for i := range webhooks {
		responses = append(responses, toWebhookResponse(&webhooks[i]))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": responses})
}

func (h *WebhookHandler) GetWebhook(c *fiber.Ctx) error {
	webhook, err := h.service.GetByID(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toWebhookResponse(webhook))
}

func (h *WebhookHandler) DeleteWebhook(c *fiber.Ctx) error {
	if err := h.service.Delete(c.Context(), strings.TrimSpace(c.Params("id"))); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *WebhookHandler) ActivateWebhook(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Activate(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"webhookId": id,
		"isActive":  true,
	})
}

func toWebhookResponse(w *domain.Webhook) webhookResponse {
	if w == nil {
		return webhookResponse{}
	}

	return webhookResponse{
		ID:              w.ID,
		TenantID:        w.TenantID,
		Name:            w.Name,
		URL:             w.URL,
		Events:          w.Events,
		Headers:         w.Headers,
		HasSecret:       w.Secret != "",
		IsActive:        w.IsActive,
		FailureCount:    w.FailureCount,
		LastTriggeredAt: w.LastTriggeredAt,
		LastFailedAt:    w.LastFailedAt,
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
	}
}
