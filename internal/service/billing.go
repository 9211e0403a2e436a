package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/duespay/duespay/internal/domain/billingattempt"
	"github.com/duespay/duespay/internal/domain/billingschedule"
	"github.com/duespay/duespay/internal/domain/paymenttoken"
	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/gateway"
	"github.com/duespay/duespay/internal/idempotency"
	"github.com/duespay/duespay/internal/types"
	webhookDto "github.com/duespay/duespay/internal/webhook/dto"
	"github.com/samber/lo"
)

// ChargeOutcome categorizes the result of processing one due schedule.
type ChargeOutcome string

const (
	OutcomeSucceeded      ChargeOutcome = "succeeded"
	OutcomeRetryScheduled ChargeOutcome = "retry_scheduled"
	OutcomeSuspended      ChargeOutcome = "suspended"
	OutcomeSkipped        ChargeOutcome = "skipped"
)

// BillingService drives one due schedule through a charge attempt and
// applies the result to the schedule state machine, the attempt ledger,
// and the outcome event bus.
type BillingService interface {
	// ProcessScheduleCharge runs a single charge attempt for a due
	// schedule. Declines are outcomes, not errors; an error return means
	// the attempt could not be completed or recorded.
	ProcessScheduleCharge(ctx context.Context, scheduleID string) (ChargeOutcome, error)
}

type billingService struct {
	ServiceParams
}

// NewBillingService creates a new billing service
func NewBillingService(params ServiceParams) BillingService {
	return &billingService{
		ServiceParams: params,
	}
}

func (s *billingService) ProcessScheduleCharge(ctx context.Context, scheduleID string) (ChargeOutcome, error) {
	schedule, err := s.ScheduleRepo.Get(ctx, scheduleID)
	if err != nil {
		return OutcomeSkipped, err
	}

	// A concurrent operator action may have changed the schedule between
	// due-set selection and now; the conditional writes below would catch
	// it anyway, but skipping early keeps the ledger clean.
	if schedule.ScheduleStatus != types.ScheduleStatusActive {
		s.Logger.Infow("skipping schedule, no longer active",
			"schedule_id", schedule.ID,
			"schedule_status", schedule.ScheduleStatus)
		return OutcomeSkipped, nil
	}

	periodKey := types.BillingPeriodKey(schedule.NextBillingDate)

	// At most one success per (schedule, period). A run that crashed
	// after the gateway call but before state advanced must not charge
	// again.
	alreadyCharged, err := s.AttemptRepo.HasSuccessForPeriod(ctx, schedule.ID, periodKey)
	if err != nil {
		return OutcomeSkipped, err
	}
	if alreadyCharged {
		s.Logger.Warnw("success already recorded for billing period, skipping",
			"schedule_id", schedule.ID,
			"period", periodKey)
		return OutcomeSkipped, nil
	}

	token, err := s.loadToken(ctx, schedule)
	if err != nil {
		return OutcomeSkipped, err
	}

	// Token missing, inactive, or lacking the original network reference:
	// immediate suspension, no gateway call, no retry slot consumed. This
	// is a distinct terminal condition from a gateway decline.
	if !token.RecurringEligible() {
		if err := s.suspendForToken(ctx, schedule, token); err != nil {
			return OutcomeSkipped, err
		}
		return OutcomeSuspended, nil
	}

	saleReq := s.buildSaleRequest(ctx, schedule, token, periodKey)

	result, err := s.GatewayClient.Sale(ctx, saleReq)
	if err != nil {
		if ierr.IsGatewayTimeout(err) || ierr.Is(err, ierr.ErrHTTPClient) {
			// Local retries are exhausted; surface as a failed attempt
			// that drives the backoff machine. The transaction number is
			// stable per period, so the indeterminate charge cannot be
			// duplicated on the next run.
			s.Logger.Errorw("gateway unreachable, recording failed attempt",
				"schedule_id", schedule.ID,
				"period", periodKey,
				"error", err)
			return s.applyDecline(ctx, schedule, token, periodKey, &gateway.ChargeResult{
				ResponseCode:    "TIMEOUT",
				ResponseMessage: "gateway unreachable",
			})
		}
		return OutcomeSkipped, err
	}

	if result.Approved {
		return s.applySuccess(ctx, schedule, token, periodKey, result)
	}
	return s.applyDecline(ctx, schedule, token, periodKey, result)
}

func (s *billingService) loadToken(ctx context.Context, schedule *billingschedule.BillingSchedule) (*paymenttoken.PaymentToken, error) {
	token, err := s.TokenRepo.Get(ctx, schedule.TokenID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return &paymenttoken.PaymentToken{ID: schedule.TokenID}, nil
		}
		return nil, err
	}
	return token, nil
}

func (s *billingService) buildSaleRequest(ctx context.Context, schedule *billingschedule.BillingSchedule, token *paymenttoken.PaymentToken, periodKey string) *gateway.SaleRequest {
	req := &gateway.SaleRequest{
		TransactionNumber: s.transactionNumber(schedule.ID, periodKey),
		Token:             token.TokenValue,
		Amount:            schedule.Amount,
		Currency:          "USD",
		// Scheduled charges are always subsequent: the first recurring
		// charge happened at enrollment when the token was created.
		Recurring:            gateway.RecurringSubsequent,
		NetworkTransactionID: token.OriginalNetworkTransactionID,
	}

	// Address-verification fields come from the external member
	// directory; the charge proceeds without them if the directory is
	// unavailable.
	sub, err := s.SubscriberRepo.Get(ctx, schedule.SubscriberID)
	if err != nil {
		s.Logger.Warnw("subscriber directory lookup failed, charging without verification fields",
			"subscriber_id", schedule.SubscriberID,
			"error", err)
		return req
	}
	req.HolderName = fmt.Sprintf("%s %s", sub.FirstName, sub.LastName)
	req.Email = sub.Email
	req.Street = sub.Street
	req.City = sub.City
	req.Region = sub.Region
	req.PostalCode = sub.PostalCode
	req.Country = sub.Country
	return req
}

// transactionNumber is deterministic per (schedule, billing period) so a
// timed-out request resubmitted on a later run reuses the same number.
func (s *billingService) transactionNumber(scheduleID, periodKey string) string {
	return s.IdempotencyGen.GenerateKey(idempotency.ScopeCharge, map[string]interface{}{
		"schedule_id": scheduleID,
		"period":      periodKey,
	})
}

// applySuccess records the approved charge: ledger entry, schedule
// advancement measured from the previous next billing date, token touch,
// and the success event.
func (s *billingService) applySuccess(ctx context.Context, schedule *billingschedule.BillingSchedule, token *paymenttoken.PaymentToken, periodKey string, result *gateway.ChargeResult) (ChargeOutcome, error) {
	now := time.Now().UTC()
	billingDate := schedule.NextBillingDate

	attempt, err := s.appendAttempt(ctx, schedule, token, periodKey, types.AttemptStatusSuccess, result, nil)
	if err != nil {
		return OutcomeSkipped, s.reconciliationAlert(ctx, schedule, periodKey, result, err)
	}

	updated := *schedule
	updated.NextBillingDate = types.NextPeriodDate(schedule.NextBillingDate, schedule.Frequency)
	updated.LastBillingDate = lo.ToPtr(billingDate)
	updated.LastSuccessfulBillAt = lo.ToPtr(now)
	updated.ConsecutiveFailures = 0
	updated.NextRetryDate = nil
	updated.LastFailureReason = ""
	updated.UpdatedAt = now

	if err := s.ScheduleRepo.UpdateWithExpectedStatus(ctx, &updated, types.ScheduleStatusActive); err != nil {
		return OutcomeSkipped, s.reconciliationAlert(ctx, schedule, periodKey, result, err)
	}

	if err := s.TokenRepo.TouchLastUsed(ctx, token.ID, now); err != nil {
		// Money and schedule state are already consistent; a stale
		// last_used_at is not worth failing the attempt over.
		s.Logger.Warnw("failed to update token last_used_at",
			"token_id", token.ID,
			"error", err)
	}

	s.publishBillingEvent(ctx, types.WebhookEventBillingSucceeded, &updated, attempt, "")

	s.Logger.Infow("billing succeeded",
		"schedule_id", schedule.ID,
		"period", periodKey,
		"amount", schedule.Amount.String(),
		"next_billing_date", updated.NextBillingDate.Format("2006-01-02"))

	return OutcomeSucceeded, nil
}

// applyDecline drives the backoff/suspension machine. A decline is a
// business outcome, never an exception.
func (s *billingService) applyDecline(ctx context.Context, schedule *billingschedule.BillingSchedule, token *paymenttoken.PaymentToken, periodKey string, result *gateway.ChargeResult) (ChargeOutcome, error) {
	now := time.Now().UTC()
	failures := schedule.ConsecutiveFailures + 1
	maxFailures := s.Config.Billing.MaxConsecutiveFailures

	if failures >= maxFailures {
		attempt, err := s.appendAttempt(ctx, schedule, token, periodKey, types.AttemptStatusFailed, result, nil)
		if err != nil {
			return OutcomeSkipped, err
		}

		updated := *schedule
		updated.ScheduleStatus = types.ScheduleStatusSuspended
		updated.ConsecutiveFailures = failures
		updated.NextRetryDate = nil
		updated.LastFailureReason = "payment could not be processed"
		updated.UpdatedAt = now

		if err := s.ScheduleRepo.UpdateWithExpectedStatus(ctx, &updated, types.ScheduleStatusActive); err != nil {
			return OutcomeSkipped, err
		}
		s.mirrorSubscriptionStatus(ctx, schedule.SubscriptionID, types.SubscriptionStatusSuspended)
		s.publishBillingEvent(ctx, types.WebhookEventBillingSuspended, &updated, attempt, updated.LastFailureReason)

		s.Logger.Warnw("billing suspended after exhausting retries",
			"schedule_id", schedule.ID,
			"consecutive_failures", failures)
		return OutcomeSuspended, nil
	}

	retryDate := schedule.NextBillingDate.AddDate(0, 0, s.Config.Billing.BackoffDays.DaysForFailure(failures))
	reason := fmt.Sprintf("payment could not be processed, will retry on %s", retryDate.Format("2006-01-02"))

	attempt, err := s.appendAttempt(ctx, schedule, token, periodKey, types.AttemptStatusRetry, result, &retryDate)
	if err != nil {
		return OutcomeSkipped, err
	}

	updated := *schedule
	updated.ConsecutiveFailures = failures
	updated.NextRetryDate = lo.ToPtr(retryDate)
	updated.LastFailureReason = reason
	updated.UpdatedAt = now

	if err := s.ScheduleRepo.UpdateWithExpectedStatus(ctx, &updated, types.ScheduleStatusActive); err != nil {
		return OutcomeSkipped, err
	}
	s.publishBillingEvent(ctx, types.WebhookEventBillingRetryScheduled, &updated, attempt, reason)

	s.Logger.Infow("billing declined, retry scheduled",
		"schedule_id", schedule.ID,
		"consecutive_failures", failures,
		"next_retry_date", retryDate.Format("2006-01-02"))
	return OutcomeRetryScheduled, nil
}

// suspendForToken handles the token-missing terminal condition.
func (s *billingService) suspendForToken(ctx context.Context, schedule *billingschedule.BillingSchedule, token *paymenttoken.PaymentToken) error {
	now := time.Now().UTC()

	updated := *schedule
	updated.ScheduleStatus = types.ScheduleStatusSuspended
	updated.NextRetryDate = nil
	updated.LastFailureReason = "payment method is no longer usable"
	updated.UpdatedAt = now

	if err := s.ScheduleRepo.UpdateWithExpectedStatus(ctx, &updated, types.ScheduleStatusActive); err != nil {
		return err
	}
	s.mirrorSubscriptionStatus(ctx, schedule.SubscriptionID, types.SubscriptionStatusSuspended)
	s.publishBillingEvent(ctx, types.WebhookEventBillingSuspended, &updated, nil, updated.LastFailureReason)

	s.Logger.Warnw("billing suspended, token missing or ineligible for recurring use",
		"schedule_id", schedule.ID,
		"token_id", token.ID,
		"token_active", token.IsActive,
		"has_network_transaction_id", token.OriginalNetworkTransactionID != "")
	return nil
}

// appendAttempt writes one append-only ledger row for this charge attempt.
func (s *billingService) appendAttempt(ctx context.Context, schedule *billingschedule.BillingSchedule, token *paymenttoken.PaymentToken, periodKey string, status types.AttemptStatus, result *gateway.ChargeResult, nextRetryDate *time.Time) (*billingattempt.BillingAttempt, error) {
	count, err := s.AttemptRepo.CountForPeriod(ctx, schedule.ID, periodKey)
	if err != nil {
		return nil, err
	}

	attempt := &billingattempt.BillingAttempt{
		ID:                   types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BILLING_ATTEMPT),
		ScheduleID:           schedule.ID,
		TokenID:              token.ID,
		Amount:               schedule.Amount,
		BillingDate:          schedule.NextBillingDate,
		PeriodKey:            periodKey,
		AttemptNumber:        count + 1,
		AttemptStatus:        status,
		TransactionNumber:    s.transactionNumber(schedule.ID, periodKey),
		GatewayResponseCode:  result.ResponseCode,
		GatewayResponseMsg:   result.ResponseMessage,
		GatewayTransactionID: result.TransactionID,
		NetworkTransactionID: result.NetworkTransactionID,
		NextRetryDate:        nextRetryDate,
		EnvironmentID:        schedule.EnvironmentID,
		BaseModel:            types.GetDefaultBaseModel(ctx),
	}
	if attempt.TenantID == "" {
		attempt.TenantID = schedule.TenantID
	}

	if err := s.AttemptRepo.Create(ctx, attempt); err != nil {
		return nil, err
	}
	return attempt, nil
}

// reconciliationAlert covers the most serious failure class: the gateway
// approved the charge but local state could not record it. Money moved;
// retrying could double-charge, so this is alerted loudly for manual
// reconciliation and never retried silently.
func (s *billingService) reconciliationAlert(ctx context.Context, schedule *billingschedule.BillingSchedule, periodKey string, result *gateway.ChargeResult, cause error) error {
	s.Logger.Errorw("MANUAL RECONCILIATION REQUIRED: charge approved at gateway but local state not updated",
		"schedule_id", schedule.ID,
		"period", periodKey,
		"gateway_transaction_id", result.TransactionID,
		"amount", schedule.Amount.String(),
		"error", cause)

	s.publishBillingEvent(ctx, types.WebhookEventBillingReconciliation, schedule, nil,
		"charge approved but not recorded, manual reconciliation required")

	return ierr.WithError(cause).
		WithHint("Charge approved at gateway but not recorded locally; manual reconciliation required").
		WithReportableDetails(map[string]interface{}{
			"schedule_id":            schedule.ID,
			"period":                 periodKey,
			"gateway_transaction_id": result.TransactionID,
		}).
		Mark(ierr.ErrDatabase)
}

func (s *billingService) mirrorSubscriptionStatus(ctx context.Context, subscriptionID string, status types.SubscriptionStatus) {
	if subscriptionID == "" {
		return
	}
	if err := s.SubscriptionRepo.UpdateStatus(ctx, subscriptionID, status); err != nil {
		s.Logger.Errorw("failed to mirror subscription status",
			"subscription_id", subscriptionID,
			"subscription_status", status,
			"error", err)
	}
}

// publishBillingEvent publishes a billing outcome event. Publishing is
// fire-and-forget; a failure is logged and never fails the attempt.
func (s *billingService) publishBillingEvent(ctx context.Context, eventName string, schedule *billingschedule.BillingSchedule, attempt *billingattempt.BillingAttempt, failureMessage string) {
	if s.WebhookPublisher == nil {
		s.Logger.Warnw("webhook publisher not initialized", "event", eventName)
		return
	}

	internalEvent := &webhookDto.InternalBillingEvent{
		EventType:       eventName,
		TenantID:        schedule.TenantID,
		EnvironmentID:   schedule.EnvironmentID,
		ScheduleID:      schedule.ID,
		SubscriptionID:  schedule.SubscriptionID,
		SubscriberID:    schedule.SubscriberID,
		Amount:          schedule.Amount.StringFixed(2),
		NextBillingDate: lo.ToPtr(schedule.NextBillingDate),
		NextRetryDate:   schedule.NextRetryDate,
		FailureMessage:  failureMessage,
	}
	if attempt != nil {
		internalEvent.AttemptID = attempt.ID
		internalEvent.BillingDate = attempt.BillingDate
	}

	eventJSON, err := json.Marshal(internalEvent)
	if err != nil {
		s.Logger.Errorw("failed to marshal billing event", "event", eventName, "error", err)
		return
	}

	webhookEvent := &types.WebhookEvent{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_EVENT),
		EventName:     eventName,
		TenantID:      schedule.TenantID,
		EnvironmentID: schedule.EnvironmentID,
		UserID:        types.GetUserID(ctx),
		Timestamp:     time.Now().UTC(),
		Payload:       json.RawMessage(eventJSON),
	}

	if err := s.WebhookPublisher.PublishWebhook(ctx, webhookEvent); err != nil {
		s.Logger.Errorw("failed to publish billing event", "event", eventName, "error", err)
	}
}
