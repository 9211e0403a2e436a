package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/duespay/duespay/internal/domain/billingschedule"
	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/service"
	"github.com/duespay/duespay/internal/testutil"
	"github.com/duespay/duespay/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBillingService records which schedules were charged and returns a
// scripted outcome per schedule ID.
type stubBillingService struct {
	mu        sync.Mutex
	outcomes  map[string]service.ChargeOutcome
	errs      map[string]error
	panics    map[string]bool
	processed []string
	block     chan struct{}
}

func newStubBillingService() *stubBillingService {
	return &stubBillingService{
		outcomes: make(map[string]service.ChargeOutcome),
		errs:     make(map[string]error),
		panics:   make(map[string]bool),
	}
}

func (s *stubBillingService) ProcessScheduleCharge(ctx context.Context, scheduleID string) (service.ChargeOutcome, error) {
	s.mu.Lock()
	s.processed = append(s.processed, scheduleID)
	block := s.block
	s.mu.Unlock()

	if block != nil {
		<-block
	}
	if s.panics[scheduleID] {
		panic("boom")
	}
	if err := s.errs[scheduleID]; err != nil {
		return service.OutcomeSkipped, err
	}
	if outcome, ok := s.outcomes[scheduleID]; ok {
		return outcome, nil
	}
	return service.OutcomeSucceeded, nil
}

func (s *stubBillingService) Processed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.processed))
	copy(out, s.processed)
	return out
}

func runDate() time.Time {
	return time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
}

func seedSchedules(t *testing.T, store *testutil.InMemoryBillingScheduleStore, n int) []string {
	t.Helper()
	ctx := testutil.GetContext()
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("sched_%d", i)
		require.NoError(t, store.Create(ctx, &billingschedule.BillingSchedule{
			ID:              id,
			SubscriberID:    fmt.Sprintf("mbr_%d", i),
			TokenID:         fmt.Sprintf("tok_%d", i),
			Amount:          decimal.NewFromFloat(29.99),
			Frequency:       types.BillingFrequencyMonthly,
			NextBillingDate: runDate(),
			ScheduleStatus:  types.ScheduleStatusActive,
			BaseModel:       types.GetDefaultBaseModel(ctx),
		}))
		ids = append(ids, id)
	}
	return ids
}

func newTestScheduler(billing service.BillingService, store *testutil.InMemoryBillingScheduleStore) *Scheduler {
	cfg := testutil.GetConfig()
	return New(cfg.Scheduler, cfg.Billing, billing, store, testutil.GetLogger())
}

func TestRunProcessesEveryDueSchedule(t *testing.T) {
	store := testutil.NewInMemoryBillingScheduleStore()
	ids := seedSchedules(t, store, 3)
	billing := newStubBillingService()
	s := newTestScheduler(billing, store)

	report, err := s.Run(context.Background(), runDate())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, 3, report.Due)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 0, report.Errors)
	assert.Equal(t, ids, billing.Processed(), "deterministic order by billing date then id")
	assert.Equal(t, report, s.LastReport())
}

func TestRunCountsOutcomes(t *testing.T) {
	store := testutil.NewInMemoryBillingScheduleStore()
	seedSchedules(t, store, 4)
	billing := newStubBillingService()
	billing.outcomes["sched_1"] = service.OutcomeSucceeded
	billing.outcomes["sched_2"] = service.OutcomeRetryScheduled
	billing.outcomes["sched_3"] = service.OutcomeSuspended
	billing.outcomes["sched_4"] = service.OutcomeSkipped
	s := newTestScheduler(billing, store)

	report, err := s.Run(context.Background(), runDate())
	require.NoError(t, err)

	assert.Equal(t, 4, report.Due)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Retried)
	assert.Equal(t, 1, report.Suspended)
	assert.Equal(t, 1, report.Skipped)
}

func TestRunContainsFailures(t *testing.T) {
	store := testutil.NewInMemoryBillingScheduleStore()
	seedSchedules(t, store, 3)
	billing := newStubBillingService()
	billing.errs["sched_1"] = ierr.NewError("database unavailable").Mark(ierr.ErrDatabase)
	billing.panics["sched_2"] = true
	s := newTestScheduler(billing, store)

	report, err := s.Run(context.Background(), runDate())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Due)
	assert.Equal(t, 2, report.Errors)
	assert.Equal(t, 1, report.Succeeded)
	assert.Len(t, billing.Processed(), 3, "a failing schedule never stops the run")
}

func TestRunSkipsSchedulesNotYetDue(t *testing.T) {
	store := testutil.NewInMemoryBillingScheduleStore()
	ctx := testutil.GetContext()
	seedSchedules(t, store, 1)

	future := runDate().AddDate(0, 1, 0)
	require.NoError(t, store.Create(ctx, &billingschedule.BillingSchedule{
		ID:              "sched_future",
		SubscriberID:    "mbr_f",
		TokenID:         "tok_f",
		Amount:          decimal.NewFromFloat(29.99),
		Frequency:       types.BillingFrequencyMonthly,
		NextBillingDate: future,
		ScheduleStatus:  types.ScheduleStatusActive,
		BaseModel:       types.GetDefaultBaseModel(ctx),
	}))

	billing := newStubBillingService()
	s := newTestScheduler(billing, store)

	report, err := s.Run(context.Background(), runDate())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Due)
	assert.Equal(t, []string{"sched_1"}, billing.Processed())
}

func TestRunRespectsRetryDate(t *testing.T) {
	store := testutil.NewInMemoryBillingScheduleStore()
	ctx := testutil.GetContext()
	retry := runDate().AddDate(0, 0, 3)
	require.NoError(t, store.Create(ctx, &billingschedule.BillingSchedule{
		ID:              "sched_retry",
		SubscriberID:    "mbr_1",
		TokenID:         "tok_1",
		Amount:          decimal.NewFromFloat(29.99),
		Frequency:       types.BillingFrequencyMonthly,
		NextBillingDate: runDate(),
		NextRetryDate:   &retry,
		ScheduleStatus:  types.ScheduleStatusActive,
		BaseModel:       types.GetDefaultBaseModel(ctx),
	}))

	billing := newStubBillingService()
	s := newTestScheduler(billing, store)

	report, err := s.Run(context.Background(), runDate())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Due)
	assert.Empty(t, billing.Processed())

	report, err = s.Run(context.Background(), retry)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Due)
}

func TestRunWhileSuspendedIsNoOp(t *testing.T) {
	store := testutil.NewInMemoryBillingScheduleStore()
	seedSchedules(t, store, 1)
	billing := newStubBillingService()
	s := newTestScheduler(billing, store)

	s.Suspend()
	report, err := s.Run(context.Background(), runDate())
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Empty(t, billing.Processed())

	s.Resume()
	report, err = s.Run(context.Background(), runDate())
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Due)
}

func TestConcurrentTriggerIgnored(t *testing.T) {
	store := testutil.NewInMemoryBillingScheduleStore()
	seedSchedules(t, store, 1)
	billing := newStubBillingService()
	billing.block = make(chan struct{})
	s := newTestScheduler(billing, store)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := s.Run(context.Background(), runDate())
		assert.NoError(t, err)
	}()

	// Wait until the first run is inside the billing call, then trigger
	// again.
	require.Eventually(t, func() bool {
		return len(billing.Processed()) == 1
	}, time.Second, 5*time.Millisecond)

	report, err := s.Run(context.Background(), runDate())
	require.NoError(t, err)
	assert.Nil(t, report, "a trigger during a run is ignored")

	close(billing.block)
	<-done
	assert.Len(t, billing.Processed(), 1)
}

func TestLastReportNilBeforeFirstRun(t *testing.T) {
	store := testutil.NewInMemoryBillingScheduleStore()
	billing := newStubBillingService()
	s := newTestScheduler(billing, store)
	assert.Nil(t, s.LastReport())
}
