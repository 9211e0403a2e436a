package subscription

import (
	"time"

	"github.com/duespay/duespay/internal/types"
)

// Subscription is the mirrored membership record. Its status tracks the
// billing schedule's Active/Suspended/Cancelled state in lockstep; the
// rest of the record (plan, pricing, enrollment) is owned elsewhere.
type Subscription struct {
	ID                 string                   `json:"id"`
	SubscriberID       string                   `json:"subscriber_id"`
	SubscriptionStatus types.SubscriptionStatus `json:"subscription_status"`
	SuspendedAt        *time.Time               `json:"suspended_at,omitempty"`
	CancelledAt        *time.Time               `json:"cancelled_at,omitempty"`
	EnvironmentID      string                   `json:"environment_id"`
	types.BaseModel
}
