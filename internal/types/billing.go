package types

import (
	"time"

	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/samber/lo"
)

// BillingFrequency is how often a schedule charges.
type BillingFrequency string

const (
	BillingFrequencyMonthly   BillingFrequency = "monthly"
	BillingFrequencyQuarterly BillingFrequency = "quarterly"
	BillingFrequencyAnnual    BillingFrequency = "annual"
)

func (f BillingFrequency) Validate() error {
	allowed := []BillingFrequency{
		BillingFrequencyMonthly,
		BillingFrequencyQuarterly,
		BillingFrequencyAnnual,
	}
	if !lo.Contains(allowed, f) {
		return ierr.NewErrorf("invalid billing frequency: %s", f).
			WithHint("Please provide a valid billing frequency").
			WithReportableDetails(map[string]interface{}{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// months returns the calendar length of one billing period.
func (f BillingFrequency) months() int {
	switch f {
	case BillingFrequencyQuarterly:
		return 3
	case BillingFrequencyAnnual:
		return 12
	default:
		return 1
	}
}

// ScheduleStatus is the state of a billing schedule.
type ScheduleStatus string

const (
	ScheduleStatusActive    ScheduleStatus = "active"
	ScheduleStatusSuspended ScheduleStatus = "suspended"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
)

// SubscriptionStatus mirrors ScheduleStatus on the subscription record.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// AttemptStatus is the outcome recorded on a billing attempt ledger row.
type AttemptStatus string

const (
	AttemptStatusSuccess AttemptStatus = "success"
	AttemptStatusFailed  AttemptStatus = "failed"
	AttemptStatusRetry   AttemptStatus = "retry"
)

// InstrumentType is the kind of payment instrument behind a token.
type InstrumentType string

const (
	InstrumentTypeCard        InstrumentType = "card"
	InstrumentTypeBankAccount InstrumentType = "bank_account"
)

// NextPeriodDate advances a billing date by exactly one billing period,
// measured from the given date rather than from "today" so repeated
// advancement never drifts. Month addition clamps to the last day of the
// target month (Jan 31 + 1 month = Feb 28).
func NextPeriodDate(from time.Time, frequency BillingFrequency) time.Time {
	months := frequency.months()
	y, m, d := from.Date()
	firstOfTarget := time.Date(y, m+time.Month(months), 1, from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())
	lastDay := daysInMonth(firstOfTarget.Year(), firstOfTarget.Month())
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// BillingPeriodKey identifies the billing period a charge belongs to. The
// period is keyed by the scheduled billing date being charged, so every
// retry within the same billing cycle shares one key.
func BillingPeriodKey(billingDate time.Time) string {
	return billingDate.UTC().Format("2006-01-02")
}

// BackoffTable maps a consecutive-failure count (1-based) to the number of
// days until the next retry is due.
type BackoffTable []int

// DefaultBackoffTable retries 3 days after the first decline, 7 after the
// second, 14 after the third.
var DefaultBackoffTable = BackoffTable{3, 7, 14}

// DaysForFailure returns the backoff in days for the given failure count.
// Counts past the end of the table reuse the final entry.
func (t BackoffTable) DaysForFailure(consecutiveFailures int) int {
	if len(t) == 0 || consecutiveFailures <= 0 {
		return 0
	}
	if consecutiveFailures > len(t) {
		return t[len(t)-1]
	}
	return t[consecutiveFailures-1]
}
