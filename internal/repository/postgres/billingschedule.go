package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/duespay/duespay/internal/domain/billingschedule"
	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/logger"
	"github.com/duespay/duespay/internal/postgres"
	"github.com/duespay/duespay/internal/types"
)

const scheduleColumns = `
	id, subscriber_id, subscription_id, token_id, amount, frequency,
	next_billing_date, last_billing_date, last_successful_billing_at,
	schedule_status, consecutive_failures, last_failure_reason,
	next_retry_date, environment_id,
	tenant_id, status, created_at, updated_at, created_by, updated_by`

type billingScheduleRepository struct {
	client *postgres.Client
	logger *logger.Logger
}

func NewBillingScheduleRepository(client *postgres.Client, log *logger.Logger) billingschedule.Repository {
	return &billingScheduleRepository{client: client, logger: log}
}

func (r *billingScheduleRepository) Create(ctx context.Context, schedule *billingschedule.BillingSchedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}

	_, err := r.client.Querier(ctx).ExecContext(ctx, `
		INSERT INTO billing_schedules (`+scheduleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		schedule.ID, schedule.SubscriberID, schedule.SubscriptionID,
		schedule.TokenID, schedule.Amount, schedule.Frequency,
		schedule.NextBillingDate, schedule.LastBillingDate,
		schedule.LastSuccessfulBillAt, schedule.ScheduleStatus,
		schedule.ConsecutiveFailures, nullString(schedule.LastFailureReason),
		schedule.NextRetryDate, schedule.EnvironmentID,
		schedule.TenantID, schedule.Status, schedule.CreatedAt,
		schedule.UpdatedAt, schedule.CreatedBy, schedule.UpdatedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("A schedule with this ID already exists").
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create billing schedule").
			WithReportableDetails(map[string]any{"schedule_id": schedule.ID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *billingScheduleRepository) Get(ctx context.Context, id string) (*billingschedule.BillingSchedule, error) {
	row := r.client.Querier(ctx).QueryRowContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM billing_schedules
		WHERE id = $1`, id)

	schedule, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewErrorf("billing schedule %s not found", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to load billing schedule").
			Mark(ierr.ErrDatabase)
	}
	return schedule, nil
}

// DueToday selects active schedules whose billing date has arrived and
// whose retry date, when set, has also arrived. Date comparison is at
// day granularity.
func (r *billingScheduleRepository) DueToday(ctx context.Context, date time.Time) ([]*billingschedule.BillingSchedule, error) {
	day := date.Truncate(24 * time.Hour)

	rows, err := r.client.Querier(ctx).QueryContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM billing_schedules
		WHERE schedule_status = $1
		  AND next_billing_date <= $2
		  AND (next_retry_date IS NULL OR next_retry_date <= $2)
		ORDER BY next_billing_date, id`,
		types.ScheduleStatusActive, day)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to query due schedules").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var due []*billingschedule.BillingSchedule
	for rows.Next() {
		schedule, err := scanScheduleRows(rows)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan due schedule").
				Mark(ierr.ErrDatabase)
		}
		due = append(due, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return due, nil
}

// UpdateWithExpectedStatus writes the full mutable state of the schedule,
// guarded by the status the caller last read. Zero rows affected means
// another writer got there first.
func (r *billingScheduleRepository) UpdateWithExpectedStatus(ctx context.Context, schedule *billingschedule.BillingSchedule, expected types.ScheduleStatus) error {
	res, err := r.client.Querier(ctx).ExecContext(ctx, `
		UPDATE billing_schedules
		SET token_id = $1,
		    amount = $2,
		    frequency = $3,
		    next_billing_date = $4,
		    last_billing_date = $5,
		    last_successful_billing_at = $6,
		    schedule_status = $7,
		    consecutive_failures = $8,
		    last_failure_reason = $9,
		    next_retry_date = $10,
		    updated_at = $11,
		    updated_by = $12
		WHERE id = $13 AND schedule_status = $14`,
		schedule.TokenID, schedule.Amount, schedule.Frequency,
		schedule.NextBillingDate, schedule.LastBillingDate,
		schedule.LastSuccessfulBillAt, schedule.ScheduleStatus,
		schedule.ConsecutiveFailures, nullString(schedule.LastFailureReason),
		schedule.NextRetryDate, time.Now().UTC(), schedule.UpdatedBy,
		schedule.ID, expected)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update billing schedule").
			WithReportableDetails(map[string]any{"schedule_id": schedule.ID}).
			Mark(ierr.ErrDatabase)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	if rows == 0 {
		return ierr.NewErrorf("billing schedule %s is no longer in status %s", schedule.ID, expected).
			WithHint("Schedule changed concurrently, re-read before applying").
			Mark(ierr.ErrVersionConflict)
	}
	return nil
}

func scanSchedule(row *sql.Row) (*billingschedule.BillingSchedule, error) {
	var s billingschedule.BillingSchedule
	var lastBilling, lastSuccess, nextRetry sql.NullTime
	var failureReason sql.NullString

	err := row.Scan(
		&s.ID, &s.SubscriberID, &s.SubscriptionID, &s.TokenID, &s.Amount,
		&s.Frequency, &s.NextBillingDate, &lastBilling, &lastSuccess,
		&s.ScheduleStatus, &s.ConsecutiveFailures, &failureReason,
		&nextRetry, &s.EnvironmentID,
		&s.TenantID, &s.Status, &s.CreatedAt, &s.UpdatedAt,
		&s.CreatedBy, &s.UpdatedBy)
	if err != nil {
		return nil, err
	}
	applyScheduleNullables(&s, lastBilling, lastSuccess, nextRetry, failureReason)
	return &s, nil
}

func scanScheduleRows(rows *sql.Rows) (*billingschedule.BillingSchedule, error) {
	var s billingschedule.BillingSchedule
	var lastBilling, lastSuccess, nextRetry sql.NullTime
	var failureReason sql.NullString

	err := rows.Scan(
		&s.ID, &s.SubscriberID, &s.SubscriptionID, &s.TokenID, &s.Amount,
		&s.Frequency, &s.NextBillingDate, &lastBilling, &lastSuccess,
		&s.ScheduleStatus, &s.ConsecutiveFailures, &failureReason,
		&nextRetry, &s.EnvironmentID,
		&s.TenantID, &s.Status, &s.CreatedAt, &s.UpdatedAt,
		&s.CreatedBy, &s.UpdatedBy)
	if err != nil {
		return nil, err
	}
	applyScheduleNullables(&s, lastBilling, lastSuccess, nextRetry, failureReason)
	return &s, nil
}

func applyScheduleNullables(s *billingschedule.BillingSchedule, lastBilling, lastSuccess, nextRetry sql.NullTime, failureReason sql.NullString) {
	if lastBilling.Valid {
		s.LastBillingDate = &lastBilling.Time
	}
	if lastSuccess.Valid {
		s.LastSuccessfulBillAt = &lastSuccess.Time
	}
	if nextRetry.Valid {
		s.NextRetryDate = &nextRetry.Time
	}
	s.LastFailureReason = failureReason.String
}
