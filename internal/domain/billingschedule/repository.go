package billingschedule

import (
	"context"
	"time"

	"github.com/duespay/duespay/internal/types"
)

// Repository defines the interface for billing schedule persistence
// operations. The store is the single source of truth; every mutation is a
// read-then-conditional-write keyed on the expected prior status.
type Repository interface {
	// Create creates a new schedule
	Create(ctx context.Context, schedule *BillingSchedule) error

	// Get retrieves a schedule by ID
	Get(ctx context.Context, id string) (*BillingSchedule, error)

	// DueToday returns schedules with status active, next_billing_date on
	// or before the given date, and no pending retry date in the future,
	// joined with their active token. Suspended and cancelled schedules
	// are never returned.
	DueToday(ctx context.Context, date time.Time) ([]*BillingSchedule, error)

	// UpdateWithExpectedStatus applies the schedule only if its stored
	// status still equals expected. A mismatch returns a version-conflict
	// error and the caller must re-read and re-evaluate rather than
	// blindly apply.
	UpdateWithExpectedStatus(ctx context.Context, schedule *BillingSchedule, expected types.ScheduleStatus) error
}
