package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a notification request.
type Status string

const (
	StatusPreview Status = "PREVIEW"
	StatusQueued  Status = "QUEUED"
	StatusSending Status = "SENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPreview, StatusQueued, StatusSending, StatusSent, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further delivery attempt may happen.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Channel represents the delivery channel.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// ProviderType identifies a concrete delivery backend.
type ProviderType string

const (
	ProviderSMTP     ProviderType = "SMTP"
	ProviderSendGrid ProviderType = "SENDGRID"
	ProviderTwilio   ProviderType = "TWILIO"
	ProviderMock     ProviderType = "MOCK"
)

func (p ProviderType) String() string { return string(p) }

func (p ProviderType) IsValid() bool {
	switch p {
	case ProviderSMTP, ProviderSendGrid, ProviderTwilio, ProviderMock:
		return true
	}
	return false
}

func ParseProviderTypeFromString(s string) (ProviderType, error) {
	pt := ProviderType(strings.ToUpper(strings.TrimSpace(s)))
	if !pt.IsValid() {
		return "", fmt.Errorf("%w: invalid provider type %q", ErrValidation, s)
	}
	return pt, nil
}

// Intake limits.
const (
	MaxRecipients    = 100
	MaxSubjectLength = 255
	MaxBodyLength    = 100000
	MaxSMSLength     = 1600
)

// Recipients holds the destination set of a request. Email uses To/Cc/Bcc,
// SMS uses a single To entry.
type Recipients struct {
	To  []string `json:"to"`
	Cc  []string `json:"cc,omitempty"`
	Bcc []string `json:"bcc,omitempty"`
}

func (r Recipients) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *Recipients) Scan(value any) error {
	if value == nil {
		*r = Recipients{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("unsupported recipients column type %T", value)
	}
}

// NotificationRequest is one caller-initiated send or schedule call. Rows are
// never deleted; cancellation is a FAILED terminal state with a note.
type NotificationRequest struct {
	ID                string
	IdempotencyKey    string
	TenantID          *string
	Channel           Channel
	ProviderType      ProviderType
	Recipients        Recipients
	RawPayload        json.RawMessage
	Subject           string
	RenderedContent   string
	Status            Status
	ErrorMessage      *string
	ProviderMessageID *string
	ProviderResponse  *string
	TemplateID        *string
	ScheduledAt       *time.Time
	EnqueuedAt        *time.Time
	AttemptCount      int
	MaxAttempts       int
	NextRetryAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (n *NotificationRequest) Validate() error {
	if strings.TrimSpace(n.IdempotencyKey) == "" {
		return fmt.Errorf("%w: idempotencyKey is required", ErrValidation)
	}
	if !n.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, n.Channel)
	}
	if !n.ProviderType.IsValid() {
		return fmt.Errorf("%w: invalid provider type %q", ErrValidation, n.ProviderType)
	}
	if len(n.Recipients.To) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", ErrValidation)
	}

	total := len(n.Recipients.To) + len(n.Recipients.Cc) + len(n.Recipients.Bcc)
	if total > MaxRecipients {
		return fmt.Errorf("%w: recipient count exceeds %d (got %d)", ErrValidation, MaxRecipients, total)
	}
	for _, addr := range n.Recipients.To {
		if strings.TrimSpace(addr) == "" {
			return fmt.Errorf("%w: empty recipient", ErrValidation)
		}
	}

	if n.RenderedContent == "" {
		return fmt.Errorf("%w: rendered content is required", ErrValidation)
	}

	contentLen := len([]rune(n.RenderedContent))
	switch n.Channel {
	case ChannelEmail:
		if len([]rune(n.Subject)) > MaxSubjectLength {
			return fmt.Errorf("%w: subject exceeds %d characters", ErrValidation, MaxSubjectLength)
		}
		if contentLen > MaxBodyLength {
			return fmt.Errorf("%w: body exceeds %d characters (got %d)", ErrValidation, MaxBodyLength, contentLen)
		}
	case ChannelSMS:
		if len(n.Recipients.To) != 1 || len(n.Recipients.Cc) > 0 || len(n.Recipients.Bcc) > 0 {
			return fmt.Errorf("%w: SMS requires exactly one recipient", ErrValidation)
		}
		if contentLen > MaxSMSLength {
			return fmt.Errorf("%w: SMS content exceeds %d characters (got %d)", ErrValidation, MaxSMSLength, contentLen)
		}
	}

	return nil
}
