package billingattempt

import (
	"context"
)

// Repository defines the interface for the append-only billing attempt
// ledger.
type Repository interface {
	// Create appends a ledger entry. A second success for the same
	// (schedule, period) must be rejected with an already-exists error.
	Create(ctx context.Context, attempt *BillingAttempt) error

	// Get retrieves a ledger entry by ID
	Get(ctx context.Context, id string) (*BillingAttempt, error)

	// ListBySchedule returns all attempts for a schedule, oldest first
	ListBySchedule(ctx context.Context, scheduleID string) ([]*BillingAttempt, error)

	// CountForPeriod returns the number of attempts recorded for the
	// (schedule, period) pair
	CountForPeriod(ctx context.Context, scheduleID, periodKey string) (int, error)

	// HasSuccessForPeriod reports whether a success entry already exists
	// for the (schedule, period) pair
	HasSuccessForPeriod(ctx context.Context, scheduleID, periodKey string) (bool, error)
}
