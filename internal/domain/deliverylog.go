package domain

import "time"

// AttemptStatus is the outcome of a single delivery attempt.
type AttemptStatus string

const (
	AttemptSuccess AttemptStatus = "SUCCESS"
	AttemptFailed  AttemptStatus = "FAILED"
)

func (s AttemptStatus) String() string { return string(s) }

// DeliveryLog records one delivery attempt for a notification request.
// Rows are append-only and never mutated after insert.
type DeliveryLog struct {
	ID                    string
	NotificationRequestID string
	AttemptNumber         int
	Status                AttemptStatus
	ProviderMessageID     *string
	ProviderResponse      *string
	ErrorMessage          *string
	CreatedAt             time.Time
}
