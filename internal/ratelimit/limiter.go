package ratelimit

import (
	"context"
	"time"

	"github.com/kursadbilgin/notify-gateway/internal/domain"
)

// Limit is a request budget over a rolling window.
type Limit struct {
	Requests int64
	Window   time.Duration
}

// Decision is the outcome of a single reservation attempt.
type Decision struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
}

// RateLimiter reserves send slots per provider type before a delivery
// attempt. Implementations are shared across workers, so a reservation
// made here is visible process-wide.
type RateLimiter interface {
	CheckAndReserve(ctx context.Context, providerType domain.ProviderType) (Decision, error)
	Wait(ctx context.Context, providerType domain.ProviderType) error
}

var defaultLimits = map[domain.ProviderType]Limit{
	domain.ProviderSendGrid: {Requests: 100, Window: time.Second},
	domain.ProviderSMTP:     {Requests: 50, Window: time.Second},
	domain.ProviderTwilio:   {Requests: 10, Window: time.Second},
	domain.ProviderMock:     {Requests: 1000, Window: time.Second},
}

// LimitFor returns the send budget for a provider type. Unknown types get
// the most conservative budget in the table.
func LimitFor(providerType domain.ProviderType) Limit {
	if limit, ok := defaultLimits[providerType]; ok {
		return limit
	}
	return Limit{Requests: 10, Window: time.Second}
}
