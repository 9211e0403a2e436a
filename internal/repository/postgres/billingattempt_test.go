package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duespay/duespay/internal/domain/billingattempt"
	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/logger"
	"github.com/duespay/duespay/internal/postgres"
	"github.com/duespay/duespay/internal/types"
)

func newMockRepo(t *testing.T) (billingattempt.Repository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := postgres.NewClientWithDB(db, logger.NewNopLogger())
	return NewBillingAttemptRepository(client, logger.NewNopLogger()), mock
}

func successAttempt() *billingattempt.BillingAttempt {
	return &billingattempt.BillingAttempt{
		ID:                "attempt_1",
		ScheduleID:        "sched_1",
		TokenID:           "tok_1",
		Amount:            decimal.NewFromFloat(29.99),
		BillingDate:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodKey:         "2026-03-01",
		AttemptNumber:     1,
		AttemptStatus:     types.AttemptStatusSuccess,
		TransactionNumber: "txn_abc",
		EnvironmentID:     "env_1",
		BaseModel:         types.GetDefaultBaseModel(context.Background()),
	}
}

// The SET LOCAL statement must carry the timeout inline: Postgres rejects
// bind parameters in utility statements, so an exec of the form
// "SET LOCAL lock_timeout = $1" fails before the lock is ever taken.
func TestLockKeyInterpolatesTimeout(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	client := postgres.NewClientWithDB(db, logger.NewNopLogger())

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout = 5000").
		WithArgs().
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs("sched_1:2026-03-01").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err = client.WithTx(context.Background(), func(ctx context.Context) error {
		return client.LockKey(ctx, "sched_1:2026-03-01", 5*time.Second)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockKeyRequiresTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	client := postgres.NewClientWithDB(db, logger.NewNopLogger())

	err = client.LockKey(context.Background(), "sched_1", 5*time.Second)
	require.Error(t, err)
	assert.True(t, ierr.IsInternal(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockKeyTimeoutBecomesAlreadyExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	client := postgres.NewClientWithDB(db, logger.NewNopLogger())

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout = 5000").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WillReturnError(&pq.Error{Code: "55P03"})
	mock.ExpectRollback()

	err = client.WithTx(context.Background(), func(ctx context.Context) error {
		return client.LockKey(ctx, "sched_1", 5*time.Second)
	})
	require.Error(t, err)
	assert.True(t, ierr.IsAlreadyExists(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSuccessLocksAndInserts(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout = 5000").
		WithArgs().
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs("sched_1:2026-03-01").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("sched_1", "2026-03-01", types.AttemptStatusSuccess).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO billing_attempts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Create(context.Background(), successAttempt())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSuccessRejectsSecondSuccessForPeriod(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout = 5000").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("sched_1", "2026-03-01", types.AttemptStatusSuccess).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), successAttempt())
	require.Error(t, err)
	assert.True(t, ierr.IsAlreadyExists(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFailedAttemptSkipsLock(t *testing.T) {
	repo, mock := newMockRepo(t)

	attempt := successAttempt()
	attempt.AttemptStatus = types.AttemptStatusFailed
	attempt.GatewayResponseCode = "D05"

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO billing_attempts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Create(context.Background(), attempt)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMapsUniqueViolation(t *testing.T) {
	repo, mock := newMockRepo(t)

	attempt := successAttempt()
	attempt.AttemptStatus = types.AttemptStatusFailed

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO billing_attempts").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), attempt)
	require.Error(t, err)
	assert.True(t, ierr.IsAlreadyExists(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
