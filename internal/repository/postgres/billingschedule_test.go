package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duespay/duespay/internal/domain/billingschedule"
	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/logger"
	"github.com/duespay/duespay/internal/postgres"
	"github.com/duespay/duespay/internal/types"
)

func newMockScheduleRepo(t *testing.T) (billingschedule.Repository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := postgres.NewClientWithDB(db, logger.NewNopLogger())
	return NewBillingScheduleRepository(client, logger.NewNopLogger()), mock
}

func activeSchedule() *billingschedule.BillingSchedule {
	return &billingschedule.BillingSchedule{
		ID:              "sched_1",
		SubscriberID:    "mbr_1",
		SubscriptionID:  "sub_1",
		TokenID:         "tok_1",
		Amount:          decimal.NewFromFloat(29.99),
		Frequency:       types.BillingFrequencyMonthly,
		NextBillingDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		ScheduleStatus:  types.ScheduleStatusActive,
		EnvironmentID:   "env_1",
		BaseModel:       types.GetDefaultBaseModel(context.Background()),
	}
}

func TestUpdateWithExpectedStatusApplies(t *testing.T) {
	repo, mock := newMockScheduleRepo(t)

	mock.ExpectExec("UPDATE billing_schedules").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateWithExpectedStatus(context.Background(), activeSchedule(), types.ScheduleStatusActive)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Zero rows affected means the guarded status no longer matches, so the
// caller must re-read instead of overwriting a concurrent transition.
func TestUpdateWithExpectedStatusConflictsOnZeroRows(t *testing.T) {
	repo, mock := newMockScheduleRepo(t)

	mock.ExpectExec("UPDATE billing_schedules").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateWithExpectedStatus(context.Background(), activeSchedule(), types.ScheduleStatusSuspended)
	require.Error(t, err)
	assert.True(t, ierr.IsVersionConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDueTodaySelectsArrivedSchedules(t *testing.T) {
	repo, mock := newMockScheduleRepo(t)

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "subscriber_id", "subscription_id", "token_id", "amount",
		"frequency", "next_billing_date", "last_billing_date",
		"last_successful_billing_at", "schedule_status",
		"consecutive_failures", "last_failure_reason", "next_retry_date",
		"environment_id", "tenant_id", "status", "created_at",
		"updated_at", "created_by", "updated_by",
	}).AddRow(
		"sched_1", "mbr_1", "sub_1", "tok_1", "29.99",
		"monthly", day, nil,
		nil, "active",
		0, nil, nil,
		"env_1", "tenant_1", "published", now,
		now, "system", "system",
	)

	mock.ExpectQuery("FROM billing_schedules").
		WithArgs(types.ScheduleStatusActive, day).
		WillReturnRows(rows)

	due, err := repo.DueToday(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "sched_1", due[0].ID)
	assert.True(t, due[0].Amount.Equal(decimal.NewFromFloat(29.99)))
	assert.Nil(t, due[0].NextRetryDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMapsNoRowsToNotFound(t *testing.T) {
	repo, mock := newMockScheduleRepo(t)

	mock.ExpectQuery("FROM billing_schedules").
		WithArgs("sched_missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), "sched_missing")
	require.Error(t, err)
	assert.True(t, ierr.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
