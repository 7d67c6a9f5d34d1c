package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notify-gateway/internal/domain"
	"github.com/kursadbilgin/notify-gateway/internal/provider"
)

// EmailInput is one email send or schedule call. The json tags matter: the
// input is persisted verbatim as the request's rawPayload, and the worker
// unmarshals it again to rebuild attachments and reply-to at send time.
type EmailInput struct {
	IdempotencyKey string                `json:"idempotencyKey"`
	To             []string              `json:"to"`
	Cc             []string              `json:"cc,omitempty"`
	Bcc            []string              `json:"bcc,omitempty"`
	Subject        string                `json:"subject,omitempty"`
	Body           string                `json:"body,omitempty"`
	Text           string                `json:"text,omitempty"`
	TemplateID     string                `json:"templateId,omitempty"`
	TemplateData   map[string]any        `json:"templateData,omitempty"`
	Attachments    []provider.Attachment `json:"attachments,omitempty"`
	ReplyTo        string                `json:"replyTo,omitempty"`
	ScheduleAt     *time.Time            `json:"scheduleAt,omitempty"`
	Timezone       string                `json:"timezone,omitempty"`
}

// SMSInput is one SMS send or schedule call.
type SMSInput struct {
	IdempotencyKey string         `json:"idempotencyKey"`
	To             string         `json:"to"`
	Message        string         `json:"message,omitempty"`
	TemplateID     string         `json:"templateId,omitempty"`
	TemplateData   map[string]any `json:"templateData,omitempty"`
	ScheduleAt     *time.Time     `json:"scheduleAt,omitempty"`
	Timezone       string         `json:"timezone,omitempty"`
}

// ScheduledPatch updates a still-pending scheduled request. Nil fields are
// left untouched.
type ScheduledPatch struct {
	To         []string   `json:"to,omitempty"`
	Cc         []string   `json:"cc,omitempty"`
	Bcc        []string   `json:"bcc,omitempty"`
	Subject    *string    `json:"subject,omitempty"`
	Body       *string    `json:"body,omitempty"`
	ScheduleAt *time.Time `json:"scheduleAt,omitempty"`
	Timezone   string     `json:"timezone,omitempty"`
}

// SubmitResult is the caller-visible outcome of an accepted request.
type SubmitResult struct {
	RequestID    string        `json:"requestId"`
	Status       domain.Status `json:"status"`
	ScheduledFor *time.Time    `json:"scheduledFor,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// BulkItemError ties a per-item intake failure back to its input position.
type BulkItemError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BulkResult is the collected outcome of a bulk call. Bulk is never
// all-or-nothing: each item succeeds or fails on its own.
type BulkResult struct {
	Total      int             `json:"total"`
	Successful int             `json:"successful"`
	Failed     int             `json:"failed"`
	Results    []SubmitResult  `json:"results"`
	Errors     []BulkItemError `json:"errors"`
}

// supportedTimezones is the schedule-time zone allow-list. Everything else
// is rejected at intake; absent means UTC.
var supportedTimezones = map[string]struct{}{
	"UTC":                 {},
	"America/New_York":    {},
	"America/Chicago":     {},
	"America/Denver":      {},
	"America/Los_Angeles": {},
	"Europe/London":       {},
	"Europe/Paris":        {},
	"Europe/Berlin":       {},
	"Europe/Istanbul":     {},
	"Asia/Tokyo":          {},
	"Asia/Shanghai":       {},
	"Asia/Kolkata":        {},
	"Australia/Sydney":    {},
}

// resolveScheduleTime interprets the wall-clock fields of at in the named
// timezone. Past times are returned as-is; the caller treats them as
// effectively immediate rather than rejecting.
func resolveScheduleTime(at time.Time, timezone string) (time.Time, error) {
	tz := strings.TrimSpace(timezone)
	if tz == "" {
		return at.UTC(), nil
	}
	if _, ok := supportedTimezones[tz]; !ok {
		return time.Time{}, fmt.Errorf("%w: unsupported timezone %q", domain.ErrValidation, timezone)
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unsupported timezone %q", domain.ErrValidation, timezone)
	}

	resolved := time.Date(at.Year(), at.Month(), at.Day(), at.Hour(), at.Minute(), at.Second(), at.Nanosecond(), loc)
	return resolved.UTC(), nil
}
