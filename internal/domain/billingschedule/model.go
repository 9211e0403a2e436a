package billingschedule

import (
	"time"

	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/types"
	"github.com/shopspring/decimal"
)

// BillingSchedule is the recurring-charge configuration and current state
// for one subscriber.
type BillingSchedule struct {
	ID             string                 `json:"id"`
	SubscriberID   string                 `json:"subscriber_id"`
	SubscriptionID string                 `json:"subscription_id"`
	TokenID        string                 `json:"token_id"`
	Amount         decimal.Decimal        `json:"amount"`
	Frequency      types.BillingFrequency `json:"frequency"`
	// NextBillingDate only advances forward and only on success, measured
	// from its previous value so the calendar never drifts.
	NextBillingDate      time.Time            `json:"next_billing_date"`
	LastBillingDate      *time.Time           `json:"last_billing_date,omitempty"`
	LastSuccessfulBillAt *time.Time           `json:"last_successful_billing_at,omitempty"`
	ScheduleStatus       types.ScheduleStatus `json:"schedule_status"`
	ConsecutiveFailures  int                  `json:"consecutive_failures"`
	LastFailureReason    string               `json:"last_failure_reason,omitempty"`
	// NextRetryDate gates due selection between declines; it is cleared on
	// success and on suspension.
	NextRetryDate *time.Time `json:"next_retry_date,omitempty"`
	EnvironmentID string     `json:"environment_id"`
	types.BaseModel
}

// Validate validates the schedule.
func (s *BillingSchedule) Validate() error {
	if s.SubscriberID == "" {
		return ierr.NewError("subscriber_id is required").Mark(ierr.ErrValidation)
	}
	if s.TokenID == "" {
		return ierr.NewError("token_id is required").Mark(ierr.ErrValidation)
	}
	if s.Amount.IsNegative() || s.Amount.IsZero() {
		return ierr.NewError("amount must be positive").Mark(ierr.ErrValidation)
	}
	if err := s.Frequency.Validate(); err != nil {
		return err
	}
	if s.NextBillingDate.IsZero() {
		return ierr.NewError("next_billing_date is required").Mark(ierr.ErrValidation)
	}
	return nil
}

// DueOn reports whether the schedule should be charged on the given date:
// active, billing date reached, and any pending retry date reached.
func (s *BillingSchedule) DueOn(date time.Time) bool {
	if s.ScheduleStatus != types.ScheduleStatusActive {
		return false
	}
	if s.NextBillingDate.After(date) {
		return false
	}
	if s.NextRetryDate != nil && s.NextRetryDate.After(date) {
		return false
	}
	return true
}
