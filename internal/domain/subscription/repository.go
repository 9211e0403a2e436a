package subscription

import (
	"context"

	"github.com/duespay/duespay/internal/types"
)

// Repository mirrors the subscription record's status alongside the
// billing schedule.
type Repository interface {
	// Get retrieves a subscription by ID
	Get(ctx context.Context, id string) (*Subscription, error)

	// UpdateStatus moves the subscription's status in lockstep with its
	// billing schedule
	UpdateStatus(ctx context.Context, id string, status types.SubscriptionStatus) error
}
