package dto

import (
	"time"

	"github.com/duespay/duespay/internal/domain/billingattempt"
	"github.com/duespay/duespay/internal/domain/billingschedule"
	"github.com/duespay/duespay/internal/domain/paymenttoken"
	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/service"
	"github.com/duespay/duespay/internal/types"
	"github.com/duespay/duespay/internal/validator"
	"github.com/shopspring/decimal"
)

// CreateTokenRequest enrolls a payment instrument. Raw instrument fields
// pass through to the gateway and are never persisted or logged.
type CreateTokenRequest struct {
	SubscriberID      string          `json:"subscriber_id" validate:"required"`
	EnrollmentID      string          `json:"enrollment_id" validate:"required"`
	Number            string          `json:"number" validate:"required"`
	CVC               string          `json:"cvc"`
	ExpiryMonth       int             `json:"expiry_month" validate:"required,min=1,max=12"`
	ExpiryYear        int             `json:"expiry_year" validate:"required"`
	HolderName        string          `json:"holder_name"`
	InstrumentType    string          `json:"instrument_type"`
	FirstChargeAmount decimal.Decimal `json:"first_charge_amount"`
	Currency          string          `json:"currency"`
	Email             string          `json:"email"`
	Street            string          `json:"street"`
	City              string          `json:"city"`
	Region            string          `json:"region"`
	PostalCode        string          `json:"postal_code"`
	Country           string          `json:"country"`
}

func (r *CreateTokenRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// ToServiceRequest converts the API request to the service layer form.
func (r *CreateTokenRequest) ToServiceRequest() *service.CreateTokenRequest {
	instrumentType := types.InstrumentType(r.InstrumentType)
	if instrumentType == "" {
		instrumentType = types.InstrumentTypeCard
	}
	return &service.CreateTokenRequest{
		SubscriberID:      r.SubscriberID,
		EnrollmentID:      r.EnrollmentID,
		Number:            r.Number,
		CVC:               r.CVC,
		ExpiryMonth:       r.ExpiryMonth,
		ExpiryYear:        r.ExpiryYear,
		HolderName:        r.HolderName,
		InstrumentType:    instrumentType,
		FirstChargeAmount: r.FirstChargeAmount,
		Currency:          r.Currency,
		Email:             r.Email,
		Street:            r.Street,
		City:              r.City,
		Region:            r.Region,
		PostalCode:        r.PostalCode,
		Country:           r.Country,
	}
}

// TokenResponse is the persisted token view: opaque value reference and
// masked display fields only.
type TokenResponse struct {
	ID             string     `json:"id"`
	SubscriberID   string     `json:"subscriber_id"`
	InstrumentType string     `json:"instrument_type"`
	LastFour       string     `json:"last_four"`
	ExpiryMonth    int        `json:"expiry_month,omitempty"`
	ExpiryYear     int        `json:"expiry_year,omitempty"`
	IsActive       bool       `json:"is_active"`
	IsPrimary      bool       `json:"is_primary"`
	RecurringReady bool       `json:"recurring_ready"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func NewTokenResponse(t *paymenttoken.PaymentToken) *TokenResponse {
	return &TokenResponse{
		ID:             t.ID,
		SubscriberID:   t.SubscriberID,
		InstrumentType: string(t.InstrumentType),
		LastFour:       t.LastFour,
		ExpiryMonth:    t.ExpiryMonth,
		ExpiryYear:     t.ExpiryYear,
		IsActive:       t.IsActive,
		IsPrimary:      t.IsPrimary,
		RecurringReady: t.RecurringEligible(),
		LastUsedAt:     t.LastUsedAt,
		CreatedAt:      t.CreatedAt,
	}
}

// CreateScheduleRequest sets up a recurring charge schedule.
type CreateScheduleRequest struct {
	SubscriberID    string          `json:"subscriber_id" validate:"required"`
	SubscriptionID  string          `json:"subscription_id"`
	TokenID         string          `json:"token_id" validate:"required"`
	Amount          decimal.Decimal `json:"amount"`
	Frequency       string          `json:"frequency" validate:"required"`
	NextBillingDate time.Time       `json:"next_billing_date" validate:"required"`
}

func (r *CreateScheduleRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.Amount.IsNegative() || r.Amount.IsZero() {
		return ierr.NewError("amount must be positive").
			Mark(ierr.ErrValidation)
	}
	return types.BillingFrequency(r.Frequency).Validate()
}

func (r *CreateScheduleRequest) ToServiceRequest() *service.CreateScheduleRequest {
	return &service.CreateScheduleRequest{
		SubscriberID:    r.SubscriberID,
		SubscriptionID:  r.SubscriptionID,
		TokenID:         r.TokenID,
		Amount:          r.Amount,
		Frequency:       types.BillingFrequency(r.Frequency),
		NextBillingDate: r.NextBillingDate,
	}
}

// ReactivateScheduleRequest lifts a suspension.
type ReactivateScheduleRequest struct {
	NextBillingDate time.Time `json:"next_billing_date" validate:"required"`
}

func (r *ReactivateScheduleRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// ScheduleResponse is the API view of a billing schedule.
type ScheduleResponse struct {
	ID                   string          `json:"id"`
	SubscriberID         string          `json:"subscriber_id"`
	SubscriptionID       string          `json:"subscription_id,omitempty"`
	TokenID              string          `json:"token_id"`
	Amount               decimal.Decimal `json:"amount"`
	Frequency            string          `json:"frequency"`
	NextBillingDate      time.Time       `json:"next_billing_date"`
	LastBillingDate      *time.Time      `json:"last_billing_date,omitempty"`
	LastSuccessfulBillAt *time.Time      `json:"last_successful_billing_at,omitempty"`
	ScheduleStatus       string          `json:"schedule_status"`
	ConsecutiveFailures  int             `json:"consecutive_failures"`
	LastFailureReason    string          `json:"last_failure_reason,omitempty"`
	NextRetryDate        *time.Time      `json:"next_retry_date,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func NewScheduleResponse(s *billingschedule.BillingSchedule) *ScheduleResponse {
	return &ScheduleResponse{
		ID:                   s.ID,
		SubscriberID:         s.SubscriberID,
		SubscriptionID:       s.SubscriptionID,
		TokenID:              s.TokenID,
		Amount:               s.Amount,
		Frequency:            string(s.Frequency),
		NextBillingDate:      s.NextBillingDate,
		LastBillingDate:      s.LastBillingDate,
		LastSuccessfulBillAt: s.LastSuccessfulBillAt,
		ScheduleStatus:       string(s.ScheduleStatus),
		ConsecutiveFailures:  s.ConsecutiveFailures,
		LastFailureReason:    s.LastFailureReason,
		NextRetryDate:        s.NextRetryDate,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

// AttemptResponse is one ledger entry.
type AttemptResponse struct {
	ID                   string          `json:"id"`
	ScheduleID           string          `json:"schedule_id"`
	PeriodKey            string          `json:"period_key"`
	AttemptNumber        int             `json:"attempt_number"`
	AttemptStatus        string          `json:"attempt_status"`
	Amount               decimal.Decimal `json:"amount"`
	TransactionNumber    string          `json:"transaction_number"`
	GatewayResponseCode  string          `json:"gateway_response_code,omitempty"`
	GatewayResponseMsg   string          `json:"gateway_response_message,omitempty"`
	GatewayTransactionID string          `json:"gateway_transaction_id,omitempty"`
	NextRetryDate        *time.Time      `json:"next_retry_date,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

func NewAttemptResponse(a *billingattempt.BillingAttempt) *AttemptResponse {
	return &AttemptResponse{
		ID:                   a.ID,
		ScheduleID:           a.ScheduleID,
		PeriodKey:            a.PeriodKey,
		AttemptNumber:        a.AttemptNumber,
		AttemptStatus:        string(a.AttemptStatus),
		Amount:               a.Amount,
		TransactionNumber:    a.TransactionNumber,
		GatewayResponseCode:  a.GatewayResponseCode,
		GatewayResponseMsg:   a.GatewayResponseMsg,
		GatewayTransactionID: a.GatewayTransactionID,
		NextRetryDate:        a.NextRetryDate,
		CreatedAt:            a.CreatedAt,
	}
}

// TriggerBillingRunRequest optionally overrides the run date.
type TriggerBillingRunRequest struct {
	Date string `json:"date"`
}

// ParseDate returns the requested run date, defaulting to today (UTC).
func (r *TriggerBillingRunRequest) ParseDate() (time.Time, error) {
	if r.Date == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	date, err := time.Parse("2006-01-02", r.Date)
	if err != nil {
		return time.Time{}, ierr.WithError(err).
			WithHint("Date must be in YYYY-MM-DD form").
			Mark(ierr.ErrValidation)
	}
	return date, nil
}
