package subscriber

import "context"

// Repository is the read-only view of the external member directory.
type Repository interface {
	// Get retrieves a subscriber by ID
	Get(ctx context.Context, id string) (*Subscriber, error)
}
