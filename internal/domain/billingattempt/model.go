package billingattempt

import (
	"time"

	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/types"
	"github.com/shopspring/decimal"
)

// BillingAttempt is one append-only ledger entry per charge attempt. Rows
// are written once and never updated.
type BillingAttempt struct {
	ID         string          `json:"id"`
	ScheduleID string          `json:"schedule_id"`
	TokenID    string          `json:"token_id"`
	Amount     decimal.Decimal `json:"amount"`
	// BillingDate is the scheduled date being charged; together with the
	// schedule it identifies the billing period.
	BillingDate   time.Time           `json:"billing_date"`
	PeriodKey     string              `json:"period_key"`
	AttemptNumber int                 `json:"attempt_number"`
	AttemptStatus types.AttemptStatus `json:"attempt_status"`
	// TransactionNumber is the deterministic per-(schedule, period) number
	// sent to the gateway.
	TransactionNumber    string     `json:"transaction_number"`
	GatewayResponseCode  string     `json:"gateway_response_code,omitempty"`
	GatewayResponseMsg   string     `json:"gateway_response_message,omitempty"`
	GatewayTransactionID string     `json:"gateway_transaction_id,omitempty"`
	NetworkTransactionID string     `json:"network_transaction_id,omitempty"`
	NextRetryDate        *time.Time `json:"next_retry_date,omitempty"`
	EnvironmentID        string     `json:"environment_id"`
	types.BaseModel
}

// Validate validates the ledger entry.
func (a *BillingAttempt) Validate() error {
	if a.ScheduleID == "" {
		return ierr.NewError("schedule_id is required").Mark(ierr.ErrValidation)
	}
	if a.PeriodKey == "" {
		return ierr.NewError("period_key is required").Mark(ierr.ErrValidation)
	}
	if a.AttemptNumber <= 0 {
		return ierr.NewError("attempt_number must be positive").Mark(ierr.ErrValidation)
	}
	if a.AttemptStatus == types.AttemptStatusRetry && a.NextRetryDate == nil {
		return ierr.NewError("next_retry_date is required for retry attempts").Mark(ierr.ErrValidation)
	}
	return nil
}
