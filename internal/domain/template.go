package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SnippetKind distinguishes reusable header and footer fragments.
type SnippetKind string

const (
	SnippetHeader SnippetKind = "HEADER"
	SnippetFooter SnippetKind = "FOOTER"
)

func (k SnippetKind) String() string { return string(k) }

func (k SnippetKind) IsValid() bool {
	return k == SnippetHeader || k == SnippetFooter
}

// StringList is a jsonb-backed list column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value any) error {
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
		return fmt.Errorf("unsupported list column type %T", value)
	}
}

// NotificationTemplate is a stored message body with named placeholders.
// Owned by the admin surface; the pipeline only reads and renders it.
type NotificationTemplate struct {
	ID           string
	TenantID     *string
	Name         string
	Channel      Channel
	Subject      string
	Body         string
	HeaderID     *string
	FooterID     *string
	Placeholders StringList
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (t *NotificationTemplate) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: template name is required", ErrValidation)
	}
	if !t.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, t.Channel)
	}
	if strings.TrimSpace(t.Body) == "" {
		return fmt.Errorf("%w: template body is required", ErrValidation)
	}
	if t.Channel == ChannelEmail && strings.TrimSpace(t.Subject) == "" {
		return fmt.Errorf("%w: email template subject is required", ErrValidation)
	}
	return nil
}

// TemplateSnippet is a reusable header or footer concatenated around an
// email template body at render time.
type TemplateSnippet struct {
	ID        string
	TenantID  *string
	Kind      SnippetKind
	Name      string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
