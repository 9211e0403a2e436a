package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/duespay/duespay/internal/domain/paymenttoken"
	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/gateway"
	"github.com/duespay/duespay/internal/idempotency"
	"github.com/duespay/duespay/internal/types"
	"github.com/shopspring/decimal"
)

// CreateTokenRequest carries a raw instrument through tokenization. The
// raw fields exist only for the duration of the call and are never
// persisted.
type CreateTokenRequest struct {
	SubscriberID string
	// EnrollmentID keys the tokenize-and-first-charge call so a repeated
	// submission cannot charge twice.
	EnrollmentID   string
	Number         string
	CVC            string
	ExpiryMonth    int
	ExpiryYear     int
	HolderName     string
	InstrumentType types.InstrumentType
	// FirstChargeAmount is the enrollment charge accompanying
	// tokenization.
	FirstChargeAmount decimal.Decimal
	Currency          string
	Email             string
	Street            string
	City              string
	Region            string
	PostalCode        string
	Country           string
}

func (r *CreateTokenRequest) Validate() error {
	if r.SubscriberID == "" {
		return ierr.NewError("subscriber_id is required").Mark(ierr.ErrValidation)
	}
	if r.EnrollmentID == "" {
		return ierr.NewError("enrollment_id is required").Mark(ierr.ErrValidation)
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
	if r.FirstChargeAmount.IsZero() || r.FirstChargeAmount.IsNegative() {
		return ierr.NewError("first charge amount must be positive").Mark(ierr.ErrValidation)
	}
	return nil
}

// TokenizationService exchanges a raw payment instrument for a durable
// opaque token, once, at enrollment, alongside the first charge.
type TokenizationService interface {
	// CreateToken tokenizes the instrument and runs the first charge.
	// Only the gateway-issued token and masked display fields are
	// persisted. The gateway's network transaction reference from the
	// first charge is captured; without it the token is stored but can
	// never back a recurring charge.
	CreateToken(ctx context.Context, req *CreateTokenRequest) (*paymenttoken.PaymentToken, error)
}

type tokenizationService struct {
	ServiceParams
}

// NewTokenizationService creates a new tokenization service
func NewTokenizationService(params ServiceParams) TokenizationService {
	return &tokenizationService{
		ServiceParams: params,
	}
}

func (s *tokenizationService) CreateToken(ctx context.Context, req *CreateTokenRequest) (*paymenttoken.PaymentToken, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	gwReq := &gateway.TokenizeRequest{
		TransactionNumber: s.IdempotencyGen.GenerateKey(idempotency.ScopeTokenize, map[string]interface{}{
			"subscriber_id": req.SubscriberID,
			"enrollment_id": req.EnrollmentID,
		}),
		Number:      req.Number,
		CVC:         req.CVC,
		ExpiryMonth: req.ExpiryMonth,
		ExpiryYear:  req.ExpiryYear,
		HolderName:  req.HolderName,
		Amount:      req.FirstChargeAmount,
		Currency:    currency,
		Email:       req.Email,
		Street:      req.Street,
		City:        req.City,
		Region:      req.Region,
		PostalCode:  req.PostalCode,
		Country:     req.Country,
	}

	result, err := s.GatewayClient.Tokenize(ctx, gwReq)
	if err != nil {
		return nil, err
	}

	if !result.Approved {
		return nil, ierr.NewError("gateway rejected the enrollment charge").
			WithHint("Payment could not be processed").
			Mark(ierr.ErrGatewayDeclined)
	}

	if result.TokenValue == "" {
		return nil, ierr.NewError("gateway approved but returned no token").
			WithHint("Payment could not be processed").
			Mark(ierr.ErrInternal)
	}

	instrumentType := req.InstrumentType
	if instrumentType == "" {
		instrumentType = types.InstrumentTypeCard
	}

	now := time.Now().UTC()
	token := &paymenttoken.PaymentToken{
		ID:                           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT_TOKEN),
		SubscriberID:                 req.SubscriberID,
		TokenValue:                   result.TokenValue,
		InstrumentType:               instrumentType,
		LastFour:                     lastFour(req.Number),
		ExpiryMonth:                  req.ExpiryMonth,
		ExpiryYear:                   req.ExpiryYear,
		IsActive:                     true,
		IsPrimary:                    true,
		OriginalNetworkTransactionID: result.NetworkTransactionID,
		LastUsedAt:                   &now,
		EnvironmentID:                types.GetEnvironmentID(ctx),
		BaseModel:                    types.GetDefaultBaseModel(ctx),
	}

	// Card-network rules require the original network reference on every
	// later unattended charge. Without it the token is kept for display
	// but is never eligible for recurring billing; the schedule pipeline
	// suspends rather than charge it.
	if result.NetworkTransactionID == "" {
		s.Logger.Warnw("gateway approved first charge without a network transaction reference, token not recurring eligible",
			"subscriber_id", req.SubscriberID,
			"gateway_transaction_id", result.TransactionID)
	}

	if err := s.TokenRepo.Create(ctx, token); err != nil {
		// Money moved on the first charge: same reconciliation class as a
		// scheduled charge whose state write failed.
		s.Logger.Errorw("MANUAL RECONCILIATION REQUIRED: enrollment charge approved but token not persisted",
			"subscriber_id", req.SubscriberID,
			"gateway_transaction_id", result.TransactionID,
			"error", err)
		return nil, ierr.WithError(err).
			WithHint("Enrollment charge approved but not recorded; manual reconciliation required").
			Mark(ierr.ErrDatabase)
	}

	s.publishTokenEvent(ctx, token)

	s.Logger.Infow("payment token created",
		"token_id", token.ID,
		"subscriber_id", token.SubscriberID,
		"instrument_type", token.InstrumentType,
		"recurring_eligible", token.RecurringEligible())

	return token, nil
}

func (s *tokenizationService) publishTokenEvent(ctx context.Context, token *paymenttoken.PaymentToken) {
	if s.WebhookPublisher == nil {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"token_id":           token.ID,
		"subscriber_id":      token.SubscriberID,
		"instrument_type":    token.InstrumentType,
		"last_four":          token.LastFour,
		"recurring_eligible": token.RecurringEligible(),
	})
	if err != nil {
		return
	}

	event := &types.WebhookEvent{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_EVENT),
		EventName:     types.WebhookEventTokenCreated,
		TenantID:      token.TenantID,
		EnvironmentID: token.EnvironmentID,
		UserID:        types.GetUserID(ctx),
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
	}

	if err := s.WebhookPublisher.PublishWebhook(ctx, event); err != nil {
		s.Logger.Errorw("failed to publish token event", "token_id", token.ID, "error", err)
	}
}

func lastFour(number string) string {
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}
