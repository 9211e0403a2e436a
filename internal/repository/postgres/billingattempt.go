package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/duespay/duespay/internal/domain/billingattempt"
	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/logger"
	"github.com/duespay/duespay/internal/postgres"
	"github.com/duespay/duespay/internal/types"
)

const attemptColumns = `
	id, schedule_id, token_id, amount, billing_date, period_key,
	attempt_number, attempt_status, transaction_number,
	gateway_response_code, gateway_response_message,
	gateway_transaction_id, network_transaction_id, next_retry_date,
	environment_id,
	tenant_id, status, created_at, updated_at, created_by, updated_by`

type billingAttemptRepository struct {
	client *postgres.Client
	logger *logger.Logger
}

func NewBillingAttemptRepository(client *postgres.Client, log *logger.Logger) billingattempt.Repository {
	return &billingAttemptRepository{client: client, logger: log}
}

// Create appends the ledger row. Success entries are serialized per
// (schedule, period) under an advisory lock so a duplicate success is
// rejected before insert; a partial unique index on the table backs the
// same rule in the schema.
func (r *billingAttemptRepository) Create(ctx context.Context, attempt *billingattempt.BillingAttempt) error {
	if err := attempt.Validate(); err != nil {
		return err
	}

	return r.client.WithTx(ctx, func(ctx context.Context) error {
		if attempt.AttemptStatus == types.AttemptStatusSuccess {
			if err := r.client.LockKey(ctx, attempt.ScheduleID+":"+attempt.PeriodKey, 5*time.Second); err != nil {
				return err
			}
			exists, err := r.HasSuccessForPeriod(ctx, attempt.ScheduleID, attempt.PeriodKey)
			if err != nil {
				return err
			}
			if exists {
				return ierr.NewErrorf("success already recorded for schedule %s period %s", attempt.ScheduleID, attempt.PeriodKey).
					Mark(ierr.ErrAlreadyExists)
			}
		}

		_, err := r.client.Querier(ctx).ExecContext(ctx, `
			INSERT INTO billing_attempts (`+attemptColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
			attempt.ID, attempt.ScheduleID, attempt.TokenID, attempt.Amount,
			attempt.BillingDate, attempt.PeriodKey, attempt.AttemptNumber,
			attempt.AttemptStatus, attempt.TransactionNumber,
			nullString(attempt.GatewayResponseCode),
			nullString(attempt.GatewayResponseMsg),
			nullString(attempt.GatewayTransactionID),
			nullString(attempt.NetworkTransactionID),
			attempt.NextRetryDate, attempt.EnvironmentID,
			attempt.TenantID, attempt.Status, attempt.CreatedAt,
			attempt.UpdatedAt, attempt.CreatedBy, attempt.UpdatedBy)
		if err != nil {
			if isUniqueViolation(err) {
				return ierr.WithError(err).
					WithHint("Duplicate billing attempt").
					Mark(ierr.ErrAlreadyExists)
			}
			return ierr.WithError(err).
				WithHint("Failed to append billing attempt").
				WithReportableDetails(map[string]any{
					"schedule_id": attempt.ScheduleID,
					"period_key":  attempt.PeriodKey,
				}).
				Mark(ierr.ErrDatabase)
		}
		return nil
	})
}

func (r *billingAttemptRepository) Get(ctx context.Context, id string) (*billingattempt.BillingAttempt, error) {
	row := r.client.Querier(ctx).QueryRowContext(ctx, `
		SELECT `+attemptColumns+`
		FROM billing_attempts
		WHERE id = $1`, id)

	attempt, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewErrorf("billing attempt %s not found", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to load billing attempt").
			Mark(ierr.ErrDatabase)
	}
	return attempt, nil
}

func (r *billingAttemptRepository) ListBySchedule(ctx context.Context, scheduleID string) ([]*billingattempt.BillingAttempt, error) {
	rows, err := r.client.Querier(ctx).QueryContext(ctx, `
		SELECT `+attemptColumns+`
		FROM billing_attempts
		WHERE schedule_id = $1
		ORDER BY created_at, attempt_number`, scheduleID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list billing attempts").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var attempts []*billingattempt.BillingAttempt
	for rows.Next() {
		attempt, err := scanAttemptRows(rows)
		if err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return attempts, nil
}

func (r *billingAttemptRepository) CountForPeriod(ctx context.Context, scheduleID, periodKey string) (int, error) {
	var count int
	err := r.client.Querier(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM billing_attempts
		WHERE schedule_id = $1 AND period_key = $2`,
		scheduleID, periodKey).Scan(&count)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count billing attempts").
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}

func (r *billingAttemptRepository) HasSuccessForPeriod(ctx context.Context, scheduleID, periodKey string) (bool, error) {
	var exists bool
	err := r.client.Querier(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM billing_attempts
			WHERE schedule_id = $1 AND period_key = $2 AND attempt_status = $3
		)`, scheduleID, periodKey, types.AttemptStatusSuccess).Scan(&exists)
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to check for successful attempt").
			Mark(ierr.ErrDatabase)
	}
	return exists, nil
}

func scanAttempt(row *sql.Row) (*billingattempt.BillingAttempt, error) {
	var a billingattempt.BillingAttempt
	var code, msg, txnID, networkID sql.NullString
	var nextRetry sql.NullTime

	err := row.Scan(
		&a.ID, &a.ScheduleID, &a.TokenID, &a.Amount, &a.BillingDate,
		&a.PeriodKey, &a.AttemptNumber, &a.AttemptStatus,
		&a.TransactionNumber, &code, &msg, &txnID, &networkID,
		&nextRetry, &a.EnvironmentID,
		&a.TenantID, &a.Status, &a.CreatedAt, &a.UpdatedAt,
		&a.CreatedBy, &a.UpdatedBy)
	if err != nil {
		return nil, err
	}
	applyAttemptNullables(&a, code, msg, txnID, networkID, nextRetry)
	return &a, nil
}

func scanAttemptRows(rows *sql.Rows) (*billingattempt.BillingAttempt, error) {
	var a billingattempt.BillingAttempt
	var code, msg, txnID, networkID sql.NullString
	var nextRetry sql.NullTime

	err := rows.Scan(
		&a.ID, &a.ScheduleID, &a.TokenID, &a.Amount, &a.BillingDate,
		&a.PeriodKey, &a.AttemptNumber, &a.AttemptStatus,
		&a.TransactionNumber, &code, &msg, &txnID, &networkID,
		&nextRetry, &a.EnvironmentID,
		&a.TenantID, &a.Status, &a.CreatedAt, &a.UpdatedAt,
		&a.CreatedBy, &a.UpdatedBy)
	if err != nil {
		return nil, err
	}
	applyAttemptNullables(&a, code, msg, txnID, networkID, nextRetry)
	return &a, nil
}

func applyAttemptNullables(a *billingattempt.BillingAttempt, code, msg, txnID, networkID sql.NullString, nextRetry sql.NullTime) {
	a.GatewayResponseCode = code.String
	a.GatewayResponseMsg = msg.String
	a.GatewayTransactionID = txnID.String
	a.NetworkTransactionID = networkID.String
	if nextRetry.Valid {
		a.NextRetryDate = &nextRetry.Time
	}
}
