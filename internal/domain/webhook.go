package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WebhookEvent names an outcome subscribers may listen for.
type WebhookEvent string

// Every valid event is fired by the delivery pipeline; subscriptions to
// events nothing emits are rejected at creation time.
const (
	EventNotificationSent   WebhookEvent = "notification.sent"
	EventNotificationFailed WebhookEvent = "notification.failed"
)

func (e WebhookEvent) String() string { return string(e) }

func (e WebhookEvent) IsValid() bool {
	switch e {
	case EventNotificationSent, EventNotificationFailed:
		return true
	}
	return false
}

func ParseWebhookEventFromString(s string) (WebhookEvent, error) {
	e := WebhookEvent(strings.ToLower(strings.TrimSpace(s)))
	if !e.IsValid() {
		return "", fmt.Errorf("%w: invalid webhook event %q", ErrValidation, s)
	}
	return e, nil
}

// EventList is a jsonb-backed set of subscribed events.
type EventList []WebhookEvent

func (l EventList) Value() (driver.Value, error) {
	if l == nil {
		l = EventList{}
	}
	return json.Marshal(l)
}

func (l *EventList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported events column type %T", value)
	}
}

func (l EventList) Contains(event WebhookEvent) bool {
	for _, e := range l {
		if e == event {
			return true
		}
	}
	return false
}

// HeaderMap is a jsonb-backed set of subscriber-custom request headers.
type HeaderMap map[string]string

func (h HeaderMap) Value() (driver.Value, error) {
	if h == nil {
		h = HeaderMap{}
	}
	return json.Marshal(h)
}

func (h *HeaderMap) Scan(value any) error {
	if value == nil {
		*h = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, h)
	case string:
		return json.Unmarshal([]byte(v), h)
	default:
		return fmt.Errorf("unsupported headers column type %T", value)
	}
}

// WebhookDisableThreshold is the consecutive-failure count at which a
// subscriber stops receiving traffic.
const WebhookDisableThreshold = 10

// Webhook is an outbound subscriber endpoint. The dispatcher mutates only
// the activity and failure bookkeeping fields after each delivery attempt.
type Webhook struct {
	ID              string
	TenantID        *string
	Name            string
	URL             string
	Events          EventList
	Headers         HeaderMap
	Secret          string
	IsActive        bool
	FailureCount    int
	LastTriggeredAt *time.Time
	LastFailedAt    *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (w *Webhook) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("%w: webhook name is required", ErrValidation)
	}
	if !strings.HasPrefix(w.URL, "http://") && !strings.HasPrefix(w.URL, "https://") {
		return fmt.Errorf("%w: webhook url must be an http(s) URL", ErrValidation)
	}
	if len(w.Events) == 0 {
		return fmt.Errorf("%w: at least one subscribed event is required", ErrValidation)
	}
	for _, e := range w.Events {
		if !e.IsValid() {
			return fmt.Errorf("%w: invalid webhook event %q", ErrValidation, e)
		}
	}
	return nil
}
