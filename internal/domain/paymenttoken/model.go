package paymenttoken

import (
	"time"

	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/types"
)

// PaymentToken is the durable opaque reference to a stored payment
// instrument. Only the gateway-issued token value and masked display
// fields are ever persisted; raw instrument data never is.
type PaymentToken struct {
	ID           string `json:"id"`
	SubscriberID string `json:"subscriber_id"`
	// TokenValue is the gateway-issued opaque token.
	TokenValue     string               `json:"token_value"`
	InstrumentType types.InstrumentType `json:"instrument_type"`
	// LastFour is the only part of the instrument number retained.
	LastFour    string `json:"last_four"`
	ExpiryMonth int    `json:"expiry_month,omitempty"`
	ExpiryYear  int    `json:"expiry_year,omitempty"`
	IsActive    bool   `json:"is_active"`
	IsPrimary   bool   `json:"is_primary"`
	// OriginalNetworkTransactionID is the card-network reference captured
	// on the first successful charge. Card-network rules require it on
	// every later unattended charge, so a token without it can never be
	// used for recurring billing.
	OriginalNetworkTransactionID string     `json:"original_network_transaction_id,omitempty"`
	LastUsedAt                   *time.Time `json:"last_used_at,omitempty"`
	EnvironmentID                string     `json:"environment_id"`
	types.BaseModel
}

// RecurringEligible reports whether the token may back an unattended
// recurring charge.
func (t *PaymentToken) RecurringEligible() bool {
	return t != nil && t.IsActive && t.OriginalNetworkTransactionID != ""
}

// Validate validates the token.
func (t *PaymentToken) Validate() error {
	if t.SubscriberID == "" {
		return ierr.NewError("subscriber_id is required").Mark(ierr.ErrValidation)
	}
	if t.TokenValue == "" {
		return ierr.NewError("token_value is required").Mark(ierr.ErrValidation)
	}
	if len(t.LastFour) > 4 {
		return ierr.NewError("last_four must be at most four characters").Mark(ierr.ErrValidation)
	}
	return nil
}
