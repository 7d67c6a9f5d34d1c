package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ProviderMetadata carries non-secret provider defaults merged into sends.
type ProviderMetadata struct {
	FromEmail  string `json:"fromEmail,omitempty"`
	FromName   string `json:"fromName,omitempty"`
	FromNumber string `json:"fromNumber,omitempty"`
	ReplyTo    string `json:"replyTo,omitempty"`
}

func (m ProviderMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *ProviderMetadata) Scan(value any) error {
	if value == nil {
		*m = ProviderMetadata{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported metadata column type %T", value)
	}
}

// ProviderConfig is one configured delivery backend for a (channel, type)
// pair, optionally scoped to a tenant. Credentials hold an encrypted blob;
// the pipeline decrypts them in memory only for the duration of a send.
type ProviderConfig struct {
	ID           string
	TenantID     *string
	Name         string
	Channel      Channel
	ProviderType ProviderType
	Credentials  string
	Metadata     ProviderMetadata
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
