package handler

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notify-gateway/internal/domain"
	"github.com/kursadbilgin/notify-gateway/internal/queue"
)

const (
	defaultPeekLimit   = 20
	defaultReplayLimit = 100
)

type DeadLetterHandler struct {
	deadLetters queue.DeadLetters
}

func NewDeadLetterHandler(deadLetters queue.DeadLetters) (*DeadLetterHandler, error) {
	if deadLetters == nil {
		return nil, fmt.Errorf("dead letter store is required")
	}
	return &DeadLetterHandler{deadLetters: deadLetters}, nil
}

func RegisterDeadLetterRoutes(router fiber.Router, deadLetters queue.DeadLetters) error {
	h, err := NewDeadLetterHandler(deadLetters)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/dead-letters", h.ListDeadLetters)
	v1.Post("/dead-letters/:channel/replay", h.ReplayDeadLetters)

	return nil
}

func (h *DeadLetterHandler) ListDeadLetters(c *fiber.Ctx) error {
	channel, err := domain.ParseChannelFromString(c.Query("channel"))
	if err != nil {
		return toHTTPError(err)
	}

	limit := c.QueryInt("limit", defaultPeekLimit)
	if limit < 1 {
		return toHTTPError(fmt.Errorf("%w: limit must be >= 1", domain.ErrValidation))
	}

	depth, err := h.deadLetters.Depth(c.Context(), channel)
	if err != nil {
		return toHTTPError(err)
	}

	entries, err := h.deadLetters.Peek(c.Context(), channel, limit)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"channel": channel.String(),
		"depth":   depth,
		"entries": entries,
	})
}

func (h *DeadLetterHandler) ReplayDeadLetters(c *fiber.Ctx) error {
	channel, err := domain.ParseChannelFromString(strings.TrimSpace(c.Params("channel")))
	if err != nil {
		return toHTTPError(err)
	}

	limit := c.QueryInt("limit", defaultReplayLimit)
	if limit < 1 {
		return toHTTPError(fmt.Errorf("%w: limit must be >= 1", domain.ErrValidation))
	}

	replayed, err := h.deadLetters.Replay(c.Context(), channel, limit)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"channel":  channel.String(),
		"replayed": replayed,
	})
}
