package queue

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/notify-gateway/internal/domain"
	"github.com/kursadbilgin/notify-gateway/internal/provider"
)

// DeliveryMessage is the broker payload for one delivery job. Credentials
// are a decrypted snapshot taken at enqueue time; workers fall back to the
// active provider config when the snapshot is absent or stale.
type DeliveryMessage struct {
	NotificationID string                   `json:"notificationId"`
	Channel        domain.Channel           `json:"channel"`
	ProviderType   domain.ProviderType      `json:"providerType"`
	TenantID       *string                  `json:"tenantId,omitempty"`
	Credentials    *provider.Credentials    `json:"credentials,omitempty"`
	Metadata       *domain.ProviderMetadata `json:"metadata,omitempty"`

	// Replay marks a message republished from a dead-letter queue. The worker
	// reopens the terminal request row before locking it; without the flag a
	// replayed message would hit the terminal guard and be skipped.
	Replay bool `json:"replay,omitempty"`
}

func (m DeliveryMessage) Validate() error {
	if strings.TrimSpace(m.NotificationID) == "" {
		return fmt.Errorf("notificationId is required")
	}
	if !m.Channel.IsValid() {
		return fmt.Errorf("invalid channel %q", m.Channel)
	}
	if !m.ProviderType.IsValid() {
		return fmt.Errorf("invalid provider type %q", m.ProviderType)
	}
	return nil
}
