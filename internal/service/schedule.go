package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/duespay/duespay/internal/domain/billingattempt"
	"github.com/duespay/duespay/internal/domain/billingschedule"
	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/types"
	"github.com/shopspring/decimal"
)

// CreateScheduleRequest creates a recurring-charge schedule alongside a
// subscription.
type CreateScheduleRequest struct {
	SubscriberID    string
	SubscriptionID  string
	TokenID         string
	Amount          decimal.Decimal
	Frequency       types.BillingFrequency
	NextBillingDate time.Time
}

// ScheduleService exposes the operator-facing schedule operations. The
// scheduler/outcome pipeline owns every other mutation.
type ScheduleService interface {
	// CreateSchedule creates a schedule for an enrolled subscriber.
	CreateSchedule(ctx context.Context, req *CreateScheduleRequest) (*billingschedule.BillingSchedule, error)

	// GetSchedule retrieves a schedule by ID.
	GetSchedule(ctx context.Context, id string) (*billingschedule.BillingSchedule, error)

	// ListAttempts returns the schedule's ledger, oldest first.
	ListAttempts(ctx context.Context, scheduleID string) ([]*billingattempt.BillingAttempt, error)

	// Reactivate moves a suspended schedule back to active with zeroed
	// failures and a new next billing date. This is the only path out of
	// suspension.
	Reactivate(ctx context.Context, id string, nextBillingDate time.Time) (*billingschedule.BillingSchedule, error)

	// Cancel terminates the schedule; it never re-enters the due set.
	Cancel(ctx context.Context, id string) (*billingschedule.BillingSchedule, error)
}

type scheduleService struct {
	ServiceParams
}

// NewScheduleService creates a new schedule service
func NewScheduleService(params ServiceParams) ScheduleService {
	return &scheduleService{
		ServiceParams: params,
	}
}

func (s *scheduleService) CreateSchedule(ctx context.Context, req *CreateScheduleRequest) (*billingschedule.BillingSchedule, error) {
	token, err := s.TokenRepo.Get(ctx, req.TokenID)
	if err != nil {
		return nil, err
	}
	if !token.IsActive {
		return nil, ierr.NewError("token is not active").
			WithHint("An active payment token is required for a billing schedule").
			Mark(ierr.ErrValidation)
	}
	if token.SubscriberID != req.SubscriberID {
		return nil, ierr.NewError("token belongs to a different subscriber").
			Mark(ierr.ErrValidation)
	}

	schedule := &billingschedule.BillingSchedule{
		ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BILLING_SCHEDULE),
		SubscriberID:    req.SubscriberID,
		SubscriptionID:  req.SubscriptionID,
		TokenID:         req.TokenID,
		Amount:          req.Amount,
		Frequency:       req.Frequency,
		NextBillingDate: req.NextBillingDate,
		ScheduleStatus:  types.ScheduleStatusActive,
		EnvironmentID:   types.GetEnvironmentID(ctx),
		BaseModel:       types.GetDefaultBaseModel(ctx),
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	if err := s.ScheduleRepo.Create(ctx, schedule); err != nil {
		return nil, err
	}

	s.Logger.Infow("billing schedule created",
		"schedule_id", schedule.ID,
		"subscriber_id", schedule.SubscriberID,
		"amount", schedule.Amount.String(),
		"frequency", schedule.Frequency,
		"next_billing_date", schedule.NextBillingDate.Format("2006-01-02"))

	return schedule, nil
}

func (s *scheduleService) GetSchedule(ctx context.Context, id string) (*billingschedule.BillingSchedule, error) {
	return s.ScheduleRepo.Get(ctx, id)
}

func (s *scheduleService) ListAttempts(ctx context.Context, scheduleID string) ([]*billingattempt.BillingAttempt, error) {
	return s.AttemptRepo.ListBySchedule(ctx, scheduleID)
}

func (s *scheduleService) Reactivate(ctx context.Context, id string, nextBillingDate time.Time) (*billingschedule.BillingSchedule, error) {
	schedule, err := s.ScheduleRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if schedule.ScheduleStatus != types.ScheduleStatusSuspended {
		return nil, ierr.NewError("only suspended schedules can be reactivated").
			WithHint("The schedule is not suspended").
			WithReportableDetails(map[string]interface{}{
				"schedule_id":     id,
				"schedule_status": schedule.ScheduleStatus,
			}).
			Mark(ierr.ErrValidation)
	}
	if nextBillingDate.IsZero() {
		return nil, ierr.NewError("next_billing_date is required").Mark(ierr.ErrValidation)
	}

	updated := *schedule
	updated.ScheduleStatus = types.ScheduleStatusActive
	updated.ConsecutiveFailures = 0
	updated.NextRetryDate = nil
	updated.LastFailureReason = ""
	updated.NextBillingDate = nextBillingDate
	updated.UpdatedAt = time.Now().UTC()
	updated.UpdatedBy = types.GetUserID(ctx)

	// Conditional on still being suspended: a concurrent scheduler run
	// cannot be clobbered, and a double reactivation fails cleanly.
	if err := s.ScheduleRepo.UpdateWithExpectedStatus(ctx, &updated, types.ScheduleStatusSuspended); err != nil {
		return nil, err
	}
	s.mirrorStatus(ctx, schedule.SubscriptionID, types.SubscriptionStatusActive)
	s.publishScheduleEvent(ctx, types.WebhookEventScheduleReactivated, &updated)

	s.Logger.Infow("billing schedule reactivated",
		"schedule_id", id,
		"next_billing_date", nextBillingDate.Format("2006-01-02"))

	return &updated, nil
}

func (s *scheduleService) Cancel(ctx context.Context, id string) (*billingschedule.BillingSchedule, error) {
	schedule, err := s.ScheduleRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if schedule.ScheduleStatus == types.ScheduleStatusCancelled {
		return schedule, nil
	}

	updated := *schedule
	updated.ScheduleStatus = types.ScheduleStatusCancelled
	updated.NextRetryDate = nil
	updated.UpdatedAt = time.Now().UTC()
	updated.UpdatedBy = types.GetUserID(ctx)

	if err := s.ScheduleRepo.UpdateWithExpectedStatus(ctx, &updated, schedule.ScheduleStatus); err != nil {
		return nil, err
	}
	s.mirrorStatus(ctx, schedule.SubscriptionID, types.SubscriptionStatusCancelled)

	// The token is deactivated with the membership unless another
	// schedule still uses it; token reuse across schedules is not
	// modeled, so deactivate unconditionally.
	if err := s.TokenRepo.Deactivate(ctx, schedule.TokenID); err != nil && !ierr.IsNotFound(err) {
		s.Logger.Warnw("failed to deactivate token on cancellation",
			"token_id", schedule.TokenID,
			"error", err)
	}

	s.publishScheduleEvent(ctx, types.WebhookEventScheduleCancelled, &updated)

	s.Logger.Infow("billing schedule cancelled", "schedule_id", id)
	return &updated, nil
}

func (s *scheduleService) publishScheduleEvent(ctx context.Context, eventName string, schedule *billingschedule.BillingSchedule) {
	if s.WebhookPublisher == nil {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"schedule_id":       schedule.ID,
		"subscription_id":   schedule.SubscriptionID,
		"subscriber_id":     schedule.SubscriberID,
		"schedule_status":   schedule.ScheduleStatus,
		"next_billing_date": schedule.NextBillingDate,
	})
	if err != nil {
		return
	}

	event := &types.WebhookEvent{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_EVENT),
		EventName:     eventName,
		TenantID:      schedule.TenantID,
		EnvironmentID: schedule.EnvironmentID,
		UserID:        types.GetUserID(ctx),
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
	}

	if err := s.WebhookPublisher.PublishWebhook(ctx, event); err != nil {
		s.Logger.Errorw("failed to publish schedule event",
			"event", eventName,
			"schedule_id", schedule.ID,
			"error", err)
	}
}

func (s *scheduleService) mirrorStatus(ctx context.Context, subscriptionID string, status types.SubscriptionStatus) {
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
