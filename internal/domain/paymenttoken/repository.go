package paymenttoken

import (
	"context"
	"time"
)

// Repository defines the interface for payment token persistence operations
type Repository interface {
	// Create creates a new token. Registering a new primary token must
	// deactivate the subscriber's previous primary so at most one active
	// primary exists per subscriber.
	Create(ctx context.Context, token *PaymentToken) error

	// Get retrieves a token by ID
	Get(ctx context.Context, id string) (*PaymentToken, error)

	// GetActivePrimary retrieves the subscriber's active primary token
	GetActivePrimary(ctx context.Context, subscriberID string) (*PaymentToken, error)

	// Deactivate marks a token inactive (cancellation or replacement)
	Deactivate(ctx context.Context, id string) error

	// SetNetworkTransactionID records the card-network reference captured
	// on the token's first successful charge
	SetNetworkTransactionID(ctx context.Context, id string, networkTransactionID string) error

	// TouchLastUsed updates last_used_at after a successful charge
	TouchLastUsed(ctx context.Context, id string, usedAt time.Time) error
}
