package service

import (
	"context"
	"testing"
	"time"

	"github.com/duespay/duespay/internal/domain/billingschedule"
	"github.com/duespay/duespay/internal/domain/paymenttoken"
	"github.com/duespay/duespay/internal/domain/subscriber"
	"github.com/duespay/duespay/internal/domain/subscription"
	"github.com/duespay/duespay/internal/gateway"
	"github.com/duespay/duespay/internal/idempotency"
	"github.com/duespay/duespay/internal/testutil"
	"github.com/duespay/duespay/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type BillingServiceSuite struct {
	suite.Suite
	ctx context.Context

	tokenStore        *testutil.InMemoryPaymentTokenStore
	scheduleStore     *testutil.InMemoryBillingScheduleStore
	attemptStore      *testutil.InMemoryBillingAttemptStore
	subscriptionStore *testutil.InMemorySubscriptionStore
	subscriberStore   *testutil.InMemorySubscriberStore
	fakeGateway       *testutil.FakeGatewayClient
	publisher         *testutil.CapturingPublisher

	service BillingService
}

func TestBillingServiceSuite(t *testing.T) {
	suite.Run(t, new(BillingServiceSuite))
}

func (s *BillingServiceSuite) SetupTest() {
	s.ctx = testutil.GetContext()

	s.tokenStore = testutil.NewInMemoryPaymentTokenStore()
	s.scheduleStore = testutil.NewInMemoryBillingScheduleStore()
	s.attemptStore = testutil.NewInMemoryBillingAttemptStore()
	s.subscriptionStore = testutil.NewInMemorySubscriptionStore()
	s.subscriberStore = testutil.NewInMemorySubscriberStore()
	s.fakeGateway = testutil.NewFakeGatewayClient()
	s.publisher = testutil.NewCapturingPublisher()

	s.service = NewBillingService(ServiceParams{
		Logger:           testutil.GetLogger(),
		Config:           testutil.GetConfig(),
		TokenRepo:        s.tokenStore,
		ScheduleRepo:     s.scheduleStore,
		AttemptRepo:      s.attemptStore,
		SubscriptionRepo: s.subscriptionStore,
		SubscriberRepo:   s.subscriberStore,
		GatewayClient:    s.fakeGateway,
		WebhookPublisher: s.publisher,
		IdempotencyGen:   idempotency.NewGenerator(),
	})
}

func (s *BillingServiceSuite) seedToken(ntxID string) *paymenttoken.PaymentToken {
	token := &paymenttoken.PaymentToken{
		ID:                           "tok_1",
		SubscriberID:                 "mbr_1",
		TokenValue:                   "tok_value_9f2c",
		InstrumentType:               types.InstrumentTypeCard,
		LastFour:                     "1111",
		IsActive:                     true,
		IsPrimary:                    true,
		OriginalNetworkTransactionID: ntxID,
		BaseModel:                    types.GetDefaultBaseModel(s.ctx),
	}
	require.NoError(s.T(), s.tokenStore.Create(s.ctx, token))
	return token
}

func (s *BillingServiceSuite) seedSchedule(nextBillingDate time.Time) *billingschedule.BillingSchedule {
	schedule := &billingschedule.BillingSchedule{
		ID:              "sched_1",
		SubscriberID:    "mbr_1",
		SubscriptionID:  "sub_1",
		TokenID:         "tok_1",
		Amount:          decimal.NewFromFloat(29.99),
		Frequency:       types.BillingFrequencyMonthly,
		NextBillingDate: nextBillingDate,
		ScheduleStatus:  types.ScheduleStatusActive,
		BaseModel:       types.GetDefaultBaseModel(s.ctx),
	}
	require.NoError(s.T(), s.scheduleStore.Create(s.ctx, schedule))

	require.NoError(s.T(), s.subscriptionStore.Add(s.ctx, &subscription.Subscription{
		ID:                 "sub_1",
		SubscriberID:       "mbr_1",
		SubscriptionStatus: types.SubscriptionStatusActive,
		BaseModel:          types.GetDefaultBaseModel(s.ctx),
	}))
	require.NoError(s.T(), s.subscriberStore.Add(s.ctx, &subscriber.Subscriber{
		ID:        "mbr_1",
		FirstName: "Pat",
		LastName:  "Smith",
		Email:     "pat@example.com",
		Street:    "1 Main St",
		City:      "Springfield",
		Region:    "CA",
	}))
	return schedule
}

func billDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// A successful monthly charge advances the billing date by exactly one
// month and leaves one success row in the ledger.
func (s *BillingServiceSuite) TestSuccessfulCharge() {
	s.seedToken("NTX123")
	s.seedSchedule(billDate(2026, time.March, 1))

	outcome, err := s.service.ProcessScheduleCharge(s.ctx, "sched_1")
	s.NoError(err)
	s.Equal(OutcomeSucceeded, outcome)

	schedule, err := s.scheduleStore.Get(s.ctx, "sched_1")
	s.NoError(err)
	s.True(billDate(2026, time.April, 1).Equal(schedule.NextBillingDate))
	s.Equal(types.ScheduleStatusActive, schedule.ScheduleStatus)
	s.Equal(0, schedule.ConsecutiveFailures)
	s.Nil(schedule.NextRetryDate)
	s.NotNil(schedule.LastBillingDate)
	s.True(billDate(2026, time.March, 1).Equal(*schedule.LastBillingDate))

	attempts, err := s.attemptStore.ListBySchedule(s.ctx, "sched_1")
	s.NoError(err)
	s.Len(attempts, 1)
	s.Equal(types.AttemptStatusSuccess, attempts[0].AttemptStatus)
	s.Equal("2026-03-01", attempts[0].PeriodKey)
	s.Equal(1, attempts[0].AttemptNumber)
	s.NotEmpty(attempts[0].TransactionNumber)

	s.Equal([]string{types.WebhookEventBillingSucceeded}, s.publisher.EventNames())
}

// Sale requests carry the stored token, the subsequent-recurring marker,
// and the network reference captured at enrollment.
func (s *BillingServiceSuite) TestSaleRequestShape() {
	s.seedToken("NTX123")
	s.seedSchedule(billDate(2026, time.March, 1))

	_, err := s.service.ProcessScheduleCharge(s.ctx, "sched_1")
	s.NoError(err)

	s.Require().Len(s.fakeGateway.SaleRequests, 1)
	req := s.fakeGateway.SaleRequests[0]
	s.Equal("tok_value_9f2c", req.Token)
	s.Equal(gateway.RecurringSubsequent, req.Recurring)
	s.Equal("NTX123", req.NetworkTransactionID)
	s.Equal("29.99", req.Amount.StringFixed(2))
	s.Equal("Pat Smith", req.HolderName)
	s.Equal("Springfield", req.City)
}

// A decline schedules a retry per the backoff table: first failure waits
// three days past the billing date.
func (s *BillingServiceSuite) TestFirstDeclineSchedulesRetry() {
	s.seedToken("NTX123")
	s.seedSchedule(billDate(2026, time.March, 1))
	s.fakeGateway.QueueDecline("D05", "INSUFFICIENT FUNDS")

	outcome, err := s.service.ProcessScheduleCharge(s.ctx, "sched_1")
	s.NoError(err)
	s.Equal(OutcomeRetryScheduled, outcome)

	schedule, err := s.scheduleStore.Get(s.ctx, "sched_1")
	s.NoError(err)
	s.Equal(types.ScheduleStatusActive, schedule.ScheduleStatus)
	s.Equal(1, schedule.ConsecutiveFailures)
	s.Require().NotNil(schedule.NextRetryDate)
	s.True(billDate(2026, time.March, 4).Equal(*schedule.NextRetryDate))
	// The billing date itself does not move on failure.
	s.True(billDate(2026, time.March, 1).Equal(schedule.NextBillingDate))
	// The stored reason never echoes the gateway's wording.
	s.NotContains(schedule.LastFailureReason, "INSUFFICIENT")
	s.Contains(schedule.LastFailureReason, "2026-03-04")

	attempts, _ := s.attemptStore.ListBySchedule(s.ctx, "sched_1")
	s.Require().Len(attempts, 1)
	s.Equal(types.AttemptStatusRetry, attempts[0].AttemptStatus)
	s.Equal("D05", attempts[0].GatewayResponseCode)

	s.Equal([]string{types.WebhookEventBillingRetryScheduled}, s.publisher.EventNames())
}

// Second failure backs off seven days, measured from the billing date.
func (s *BillingServiceSuite) TestSecondDeclineUsesSecondBackoffEntry() {
	s.seedToken("NTX123")
	schedule := s.seedSchedule(billDate(2026, time.March, 1))

	schedule.ConsecutiveFailures = 1
	schedule.NextRetryDate = nil
	s.Require().NoError(s.scheduleStore.UpdateWithExpectedStatus(s.ctx, schedule, types.ScheduleStatusActive))

	s.fakeGateway.QueueDecline("D05", "INSUFFICIENT FUNDS")

	outcome, err := s.service.ProcessScheduleCharge(s.ctx, "sched_1")
	s.NoError(err)
	s.Equal(OutcomeRetryScheduled, outcome)

	updated, _ := s.scheduleStore.Get(s.ctx, "sched_1")
	s.Equal(2, updated.ConsecutiveFailures)
	s.Require().NotNil(updated.NextRetryDate)
	s.True(billDate(2026, time.March, 8).Equal(*updated.NextRetryDate))
}

// The third consecutive decline suspends the schedule and mirrors the
// subscription, and the schedule drops out of the due set.
func (s *BillingServiceSuite) TestThirdDeclineSuspends() {
	s.seedToken("NTX123")
	schedule := s.seedSchedule(billDate(2026, time.March, 1))

	schedule.ConsecutiveFailures = 2
	s.Require().NoError(s.scheduleStore.UpdateWithExpectedStatus(s.ctx, schedule, types.ScheduleStatusActive))

	s.fakeGateway.QueueDecline("D10", "DO NOT HONOR")

	outcome, err := s.service.ProcessScheduleCharge(s.ctx, "sched_1")
	s.NoError(err)
	s.Equal(OutcomeSuspended, outcome)

	updated, _ := s.scheduleStore.Get(s.ctx, "sched_1")
	s.Equal(types.ScheduleStatusSuspended, updated.ScheduleStatus)
	s.Equal(3, updated.ConsecutiveFailures)
	s.Nil(updated.NextRetryDate)

	sub, _ := s.subscriptionStore.Get(s.ctx, "sub_1")
	s.Equal(types.SubscriptionStatusSuspended, sub.SubscriptionStatus)
	s.NotNil(sub.SuspendedAt)

	attempts, _ := s.attemptStore.ListBySchedule(s.ctx, "sched_1")
	s.Require().Len(attempts, 1)
	s.Equal(types.AttemptStatusFailed, attempts[0].AttemptStatus)

	due, _ := s.scheduleStore.DueToday(s.ctx, billDate(2026, time.June, 1))
	s.Empty(due, "suspended schedules never re-enter the due set")

	s.Equal([]string{types.WebhookEventBillingSuspended}, s.publisher.EventNames())
}

// A token without the original network reference suspends immediately:
// no gateway call, no ledger row, no retry slot consumed.
func (s *BillingServiceSuite) TestIneligibleTokenSuspendsWithoutGatewayCall() {
	s.seedToken("")
	s.seedSchedule(billDate(2026, time.March, 1))

	outcome, err := s.service.ProcessScheduleCharge(s.ctx, "sched_1")
	s.NoError(err)
	s.Equal(OutcomeSuspended, outcome)

	s.Equal(0, s.fakeGateway.SaleCount(), "ineligible tokens never reach the gateway")

	attempts, _ := s.attemptStore.ListBySchedule(s.ctx, "sched_1")
	s.Empty(attempts, "no ledger row for a charge that was never attempted")

	updated, _ := s.scheduleStore.Get(s.ctx, "sched_1")
	s.Equal(types.ScheduleStatusSuspended, updated.ScheduleStatus)
	s.Equal(0, updated.ConsecutiveFailures, "no retry slot consumed")

	sub, _ := s.subscriptionStore.Get(s.ctx, "sub_1")
	s.Equal(types.SubscriptionStatusSuspended, sub.SubscriptionStatus)
}

// A missing token row is the same terminal condition as an ineligible one.
func (s *BillingServiceSuite) TestMissingTokenSuspends() {
	s.seedSchedule(billDate(2026, time.March, 1))

	outcome, err := s.service.ProcessScheduleCharge(s.ctx, "sched_1")
	s.NoError(err)
	s.Equal(OutcomeSuspended, outcome)
	s.Equal(0, s.fakeGateway.SaleCount())
}

// An inactive token (cancelled or replaced) is not charged.
func (s *BillingServiceSuite) TestInactiveTokenSuspends() {
	token := s.seedToken("NTX123")
	s.seedSchedule(billDate(2026, time.March, 1))
	s.Require().NoError(s.tokenStore.Deactivate(s.ctx, token.ID))

	outcome, err := s.service.ProcessScheduleCharge(s.ctx, "sched_1")
	s.NoError(err)
	s.Equal(OutcomeSuspended, outcome)
	s.Equal(0, s.fakeGateway.SaleCount())
}

// Gateway timeout after local retries behaves as a decline and drives the
// backoff machine.
func (s *BillingServiceSuite) TestTimeoutTreatedAsDecline() {
	s.seedToken("NTX123")
	s.seedSchedule(billDate(2026, time.March, 1))
	s.fakeGateway.QueueTimeout()

	outcome, err := s.service.ProcessScheduleCharge(s.ctx, "sched_1")
	s.NoError(err)
	s.Equal(OutcomeRetryScheduled, outcome)

	attempts, _ := s.attemptStore.ListBySchedule(s.ctx, "sched_1")
	s.Require().Len(attempts, 1)
	s.Equal("TIMEOUT", attempts[0].GatewayResponseCode)

	updated, _ := s.scheduleStore.Get(s.ctx, "sched_1")
	s.Equal(1, updated.ConsecutiveFailures)
	s.Require().NotNil(updated.NextRetryDate)
	s.True(billDate(2026, time.March, 4).Equal(*updated.NextRetryDate))
}

// A success after failures resets the consecutive counter and clears the
// retry date.
func (s *BillingServiceSuite) TestSuccessResetsFailureCount() {
	s.seedToken("NTX123")
	schedule := s.seedSchedule(billDate(2026, time.March, 1))

	schedule.ConsecutiveFailures = 2
	retry := billDate(2026, time.March, 1)
	schedule.NextRetryDate = &retry
	schedule.LastFailureReason = "payment could not be processed, will retry on 2026-03-01"
	s.Require().NoError(s.scheduleStore.UpdateWithExpectedStatus(s.ctx, schedule, types.ScheduleStatusActive))

	outcome, err := s.service.ProcessScheduleCharge(s.ctx, "sched_1")
	s.NoError(err)
	s.Equal(OutcomeSucceeded, outcome)

	updated, _ := s.scheduleStore.Get(s.ctx, "sched_1")
	s.Equal(0, updated.ConsecutiveFailures)
	s.Nil(updated.NextRetryDate)
	s.Empty(updated.LastFailureReason)
}

// An already-successful period is never charged twice, even if schedule
// state did not advance (e.g. a crash between ledger write and update).
func (s *BillingServiceSuite) TestPeriodIdempotence() {
	s.seedToken("NTX123")
	s.seedSchedule(billDate(2026, time.March, 1))

	outcome, err := s.service.ProcessScheduleCharge(s.ctx, "sched_1")
	s.NoError(err)
	s.Equal(OutcomeSucceeded, outcome)

	// Wind the schedule back as if the advancement write had been lost.
	schedule, _ := s.scheduleStore.Get(s.ctx, "sched_1")
	schedule.NextBillingDate = billDate(2026, time.March, 1)
	s.Require().NoError(s.scheduleStore.UpdateWithExpectedStatus(s.ctx, schedule, types.ScheduleStatusActive))

	outcome, err = s.service.ProcessScheduleCharge(s.ctx, "sched_1")
	s.NoError(err)
	s.Equal(OutcomeSkipped, outcome)
	s.Equal(1, s.fakeGateway.SaleCount(), "the gateway saw exactly one charge")

	attempts, _ := s.attemptStore.ListBySchedule(s.ctx, "sched_1")
	s.Len(attempts, 1)
}

// The transaction number is deterministic per (schedule, period): a retry
// within the same period resubmits under the same number.
func (s *BillingServiceSuite) TestTransactionNumberStableAcrossRetries() {
	s.seedToken("NTX123")
	s.seedSchedule(billDate(2026, time.March, 1))

	s.fakeGateway.QueueDecline("D05", "INSUFFICIENT FUNDS")
	_, err := s.service.ProcessScheduleCharge(s.ctx, "sched_1")
	s.NoError(err)

	// Retry three days later succeeds.
	_, err = s.service.ProcessScheduleCharge(s.ctx, "sched_1")
	s.NoError(err)

	s.Require().Len(s.fakeGateway.SaleRequests, 2)
	s.Equal(s.fakeGateway.SaleRequests[0].TransactionNumber, s.fakeGateway.SaleRequests[1].TransactionNumber)

	attempts, _ := s.attemptStore.ListBySchedule(s.ctx, "sched_1")
	s.Require().Len(attempts, 2)
	s.Equal(attempts[0].TransactionNumber, attempts[1].TransactionNumber)
	s.Equal(1, attempts[0].AttemptNumber)
	s.Equal(2, attempts[1].AttemptNumber)
}

// After a success advances the period, the next period gets a different
// transaction number.
func (s *BillingServiceSuite) TestTransactionNumberVariesAcrossPeriods() {
	s.seedToken("NTX123")
	s.seedSchedule(billDate(2026, time.March, 1))

	_, err := s.service.ProcessScheduleCharge(s.ctx, "sched_1")
	s.NoError(err)
	_, err = s.service.ProcessScheduleCharge(s.ctx, "sched_1")
	s.NoError(err)

	s.Require().Len(s.fakeGateway.SaleRequests, 2)
	s.NotEqual(s.fakeGateway.SaleRequests[0].TransactionNumber, s.fakeGateway.SaleRequests[1].TransactionNumber)
}

// Non-active schedules are skipped without touching the gateway.
func (s *BillingServiceSuite) TestSkipsNonActiveSchedule() {
	s.seedToken("NTX123")
	schedule := s.seedSchedule(billDate(2026, time.March, 1))

	schedule.ScheduleStatus = types.ScheduleStatusCancelled
	s.Require().NoError(s.scheduleStore.UpdateWithExpectedStatus(s.ctx, schedule, types.ScheduleStatusActive))

	outcome, err := s.service.ProcessScheduleCharge(s.ctx, "sched_1")
	s.NoError(err)
	s.Equal(OutcomeSkipped, outcome)
	s.Equal(0, s.fakeGateway.SaleCount())
}

// A directory outage does not block the charge; it proceeds without the
// verification fields.
func (s *BillingServiceSuite) TestChargesWithoutDirectoryFields() {
	s.seedToken("NTX123")
	s.seedSchedule(billDate(2026, time.March, 1))
	s.Require().NoError(s.subscriberStore.Delete(s.ctx, "mbr_1"))

	outcome, err := s.service.ProcessScheduleCharge(s.ctx, "sched_1")
	s.NoError(err)
	s.Equal(OutcomeSucceeded, outcome)

	s.Require().Len(s.fakeGateway.SaleRequests, 1)
	s.Empty(s.fakeGateway.SaleRequests[0].HolderName)
}

// Month-end anchoring: a Jan 31 schedule bills Feb 28 next.
func (s *BillingServiceSuite) TestMonthEndClamping() {
	s.seedToken("NTX123")
	s.seedSchedule(billDate(2026, time.January, 31))

	outcome, err := s.service.ProcessScheduleCharge(s.ctx, "sched_1")
	s.NoError(err)
	s.Equal(OutcomeSucceeded, outcome)

	updated, _ := s.scheduleStore.Get(s.ctx, "sched_1")
	s.True(billDate(2026, time.February, 28).Equal(updated.NextBillingDate))
}
