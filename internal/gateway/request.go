package gateway

import (
	"encoding/json"

	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/shopspring/decimal"
)

// Request is one tagged transaction variant. Each variant carries its own
// typed required and optional fields instead of an ad hoc field dictionary.
type Request interface {
	// Endpoint is the gateway path the request posts to.
	Endpoint() string
	// TransactionType is the wire code for the variant.
	TransactionType() string
	// Validate checks the variant's required fields.
	Validate() error
	// Body returns the canonical serialized request body. The signature is
	// computed over these exact bytes.
	Body() ([]byte, error)
}

// SaleRequest charges a stored token. Every recurring call must carry both
// the recurring indicator and the network transaction reference captured
// at tokenization.
type SaleRequest struct {
	TransactionNumber    string             `json:"transaction_number"`
	Token                string             `json:"token"`
	Amount               decimal.Decimal    `json:"-"`
	AmountString         string             `json:"amount"`
	Currency             string             `json:"currency"`
	Recurring            RecurringIndicator `json:"recurring"`
	NetworkTransactionID string             `json:"network_transaction_id,omitempty"`
	Descriptor           string             `json:"descriptor,omitempty"`
	HolderName           string             `json:"holder_name,omitempty"`
	Email                string             `json:"email,omitempty"`
	Street               string             `json:"street,omitempty"`
	City                 string             `json:"city,omitempty"`
	Region               string             `json:"region,omitempty"`
	PostalCode           string             `json:"postal_code,omitempty"`
	Country              string             `json:"country,omitempty"`
	Type                 string             `json:"transaction_type"`
}

func (r *SaleRequest) Endpoint() string        { return EndpointSale }
func (r *SaleRequest) TransactionType() string { return TransactionTypeSale }

func (r *SaleRequest) Validate() error {
	if r.TransactionNumber == "" {
		return ierr.NewError("transaction_number is required").Mark(ierr.ErrValidation)
	}
	if r.Token == "" {
		return ierr.NewError("token is required").Mark(ierr.ErrValidation)
	}
	if r.Amount.IsZero() || r.Amount.IsNegative() {
		return ierr.NewError("amount must be positive").Mark(ierr.ErrValidation)
	}
	if r.Recurring != RecurringFirst && r.Recurring != RecurringSubsequent {
		return ierr.NewError("recurring indicator is required").Mark(ierr.ErrValidation)
	}
	// A subsequent unattended charge without the original network
	// reference violates card-network rules and the gateway will reject
	// it; refuse to send it at all.
	if r.Recurring == RecurringSubsequent && r.NetworkTransactionID == "" {
		return ierr.NewError("network_transaction_id is required for subsequent recurring charges").
			WithHint("Token is not eligible for recurring billing").
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (r *SaleRequest) Body() ([]byte, error) {
	r.Type = r.TransactionType()
	// Amounts travel as fixed two-decimal strings.
	r.AmountString = r.Amount.StringFixed(2)
	return json.Marshal(r)
}

// RefundRequest returns funds against a settled transaction.
type RefundRequest struct {
	TransactionNumber string          `json:"transaction_number"`
	OriginalID        string          `json:"original_transaction_id"`
	Amount            decimal.Decimal `json:"-"`
	AmountString      string          `json:"amount"`
	Currency          string          `json:"currency"`
	Type              string          `json:"transaction_type"`
}

func (r *RefundRequest) Endpoint() string        { return EndpointRefund }
func (r *RefundRequest) TransactionType() string { return TransactionTypeRefund }

func (r *RefundRequest) Validate() error {
	if r.TransactionNumber == "" {
		return ierr.NewError("transaction_number is required").Mark(ierr.ErrValidation)
	}
	if r.OriginalID == "" {
		return ierr.NewError("original_transaction_id is required").Mark(ierr.ErrValidation)
	}
	if r.Amount.IsZero() || r.Amount.IsNegative() {
		return ierr.NewError("amount must be positive").Mark(ierr.ErrValidation)
	}
	return nil
}

func (r *RefundRequest) Body() ([]byte, error) {
	r.Type = r.TransactionType()
	r.AmountString = r.Amount.StringFixed(2)
	return json.Marshal(r)
}

// ReversalRequest voids an unsettled transaction.
type ReversalRequest struct {
	TransactionNumber string `json:"transaction_number"`
	OriginalID        string `json:"original_transaction_id"`
	Type              string `json:"transaction_type"`
}

func (r *ReversalRequest) Endpoint() string        { return EndpointReversal }
func (r *ReversalRequest) TransactionType() string { return TransactionTypeReversal }

func (r *ReversalRequest) Validate() error {
	if r.TransactionNumber == "" {
		return ierr.NewError("transaction_number is required").Mark(ierr.ErrValidation)
	}
	if r.OriginalID == "" {
		return ierr.NewError("original_transaction_id is required").Mark(ierr.ErrValidation)
	}
	return nil
}

func (r *ReversalRequest) Body() ([]byte, error) {
	r.Type = r.TransactionType()
	return json.Marshal(r)
}

// TokenizeRequest exchanges a raw instrument for a durable token together
// with the first charge. The raw fields exist only in flight; they are
// masked before any logging and never persisted.
type TokenizeRequest struct {
	TransactionNumber string             `json:"transaction_number"`
	Number            string             `json:"number"`
	CVC               string             `json:"cvc"`
	ExpiryMonth       int                `json:"expiry_month"`
	ExpiryYear        int                `json:"expiry_year"`
	HolderName        string             `json:"holder_name"`
	Amount            decimal.Decimal    `json:"-"`
	AmountString      string             `json:"amount"`
	Currency          string             `json:"currency"`
	Recurring         RecurringIndicator `json:"recurring"`
	Email             string             `json:"email,omitempty"`
	Street            string             `json:"street,omitempty"`
	City              string             `json:"city,omitempty"`
	Region            string             `json:"region,omitempty"`
	PostalCode        string             `json:"postal_code,omitempty"`
	Country           string             `json:"country,omitempty"`
	Type              string             `json:"transaction_type"`
}

func (r *TokenizeRequest) Endpoint() string        { return EndpointTokenize }
func (r *TokenizeRequest) TransactionType() string { return TransactionTypeSale }

func (r *TokenizeRequest) Validate() error {
	if r.TransactionNumber == "" {
		return ierr.NewError("transaction_number is required").Mark(ierr.ErrValidation)
	}
	if len(r.Number) < 12 || len(r.Number) > 19 {
		return ierr.NewError("instrument number length is invalid").
			WithHint("The payment instrument is invalid").
			Mark(ierr.ErrValidation)
	}
	if r.ExpiryMonth < 1 || r.ExpiryMonth > 12 {
		return ierr.NewError("expiry month is invalid").
			WithHint("The payment instrument is invalid").
			Mark(ierr.ErrValidation)
	}
	if r.Amount.IsZero() || r.Amount.IsNegative() {
		return ierr.NewError("amount must be positive").Mark(ierr.ErrValidation)
	}
	return nil
}

func (r *TokenizeRequest) Body() ([]byte, error) {
	r.Type = r.TransactionType()
	r.AmountString = r.Amount.StringFixed(2)
	// The enrollment charge is always the first recurring charge.
	r.Recurring = RecurringFirst
	return json.Marshal(r)
}
