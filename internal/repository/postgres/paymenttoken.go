package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/duespay/duespay/internal/domain/paymenttoken"
	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/logger"
	"github.com/duespay/duespay/internal/postgres"
	"github.com/lib/pq"
)

const tokenColumns = `
	id, subscriber_id, token_value, instrument_type, last_four,
	expiry_month, expiry_year, is_active, is_primary,
	original_network_transaction_id, last_used_at, environment_id,
	tenant_id, status, created_at, updated_at, created_by, updated_by`

type paymentTokenRepository struct {
	client *postgres.Client
	logger *logger.Logger
}

func NewPaymentTokenRepository(client *postgres.Client, log *logger.Logger) paymenttoken.Repository {
	return &paymentTokenRepository{client: client, logger: log}
}

// Create inserts the token and, when it is primary, demotes the
// subscriber's previous primary in the same transaction.
func (r *paymentTokenRepository) Create(ctx context.Context, token *paymenttoken.PaymentToken) error {
	if err := token.Validate(); err != nil {
		return err
	}

	return r.client.WithTx(ctx, func(ctx context.Context) error {
		q := r.client.Querier(ctx)

		if token.IsPrimary {
			_, err := q.ExecContext(ctx, `
				UPDATE payment_tokens
				SET is_primary = FALSE, updated_at = $1
				WHERE subscriber_id = $2 AND is_primary = TRUE AND tenant_id = $3`,
				time.Now().UTC(), token.SubscriberID, token.TenantID)
			if err != nil {
				return ierr.WithError(err).
					WithHint("Failed to demote previous primary token").
					Mark(ierr.ErrDatabase)
			}
		}

		_, err := q.ExecContext(ctx, `
			INSERT INTO payment_tokens (`+tokenColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			token.ID, token.SubscriberID, token.TokenValue, token.InstrumentType,
			token.LastFour, token.ExpiryMonth, token.ExpiryYear, token.IsActive,
			token.IsPrimary, nullString(token.OriginalNetworkTransactionID),
			token.LastUsedAt, token.EnvironmentID,
			token.TenantID, token.Status, token.CreatedAt, token.UpdatedAt,
			token.CreatedBy, token.UpdatedBy)
		if err != nil {
			if isUniqueViolation(err) {
				return ierr.WithError(err).
					WithHint("A token with this ID already exists").
					Mark(ierr.ErrAlreadyExists)
			}
			return ierr.WithError(err).
				WithHint("Failed to create payment token").
				WithReportableDetails(map[string]any{"token_id": token.ID}).
				Mark(ierr.ErrDatabase)
		}
		return nil
	})
}

func (r *paymentTokenRepository) Get(ctx context.Context, id string) (*paymenttoken.PaymentToken, error) {
	row := r.client.Querier(ctx).QueryRowContext(ctx, `
		SELECT `+tokenColumns+`
		FROM payment_tokens
		WHERE id = $1`, id)

	token, err := scanToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewErrorf("payment token %s not found", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to load payment token").
			Mark(ierr.ErrDatabase)
	}
	return token, nil
}

func (r *paymentTokenRepository) GetActivePrimary(ctx context.Context, subscriberID string) (*paymenttoken.PaymentToken, error) {
	row := r.client.Querier(ctx).QueryRowContext(ctx, `
		SELECT `+tokenColumns+`
		FROM payment_tokens
		WHERE subscriber_id = $1 AND is_active = TRUE AND is_primary = TRUE
		ORDER BY created_at DESC
		LIMIT 1`, subscriberID)

	token, err := scanToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewErrorf("no active primary token for subscriber %s", subscriberID).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to load primary token").
			Mark(ierr.ErrDatabase)
	}
	return token, nil
}

func (r *paymentTokenRepository) Deactivate(ctx context.Context, id string) error {
	res, err := r.client.Querier(ctx).ExecContext(ctx, `
		UPDATE payment_tokens
		SET is_active = FALSE, is_primary = FALSE, updated_at = $1
		WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to deactivate payment token").
			Mark(ierr.ErrDatabase)
	}
	return requireRow(res, id)
}

func (r *paymentTokenRepository) SetNetworkTransactionID(ctx context.Context, id string, networkTransactionID string) error {
	res, err := r.client.Querier(ctx).ExecContext(ctx, `
		UPDATE payment_tokens
		SET original_network_transaction_id = $1, updated_at = $2
		WHERE id = $3 AND (original_network_transaction_id IS NULL OR original_network_transaction_id = '')`,
		networkTransactionID, time.Now().UTC(), id)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to record network transaction id").
			Mark(ierr.ErrDatabase)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		// Already set or token gone; the stored reference is immutable.
		r.logger.Debugw("network transaction id not updated", "token_id", id)
	}
	return nil
}

func (r *paymentTokenRepository) TouchLastUsed(ctx context.Context, id string, usedAt time.Time) error {
	_, err := r.client.Querier(ctx).ExecContext(ctx, `
		UPDATE payment_tokens
		SET last_used_at = $1, updated_at = $2
		WHERE id = $3`, usedAt, time.Now().UTC(), id)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update token last used time").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func scanToken(row *sql.Row) (*paymenttoken.PaymentToken, error) {
	var t paymenttoken.PaymentToken
	var onti sql.NullString
	var lastUsed sql.NullTime

	err := row.Scan(
		&t.ID, &t.SubscriberID, &t.TokenValue, &t.InstrumentType, &t.LastFour,
		&t.ExpiryMonth, &t.ExpiryYear, &t.IsActive, &t.IsPrimary,
		&onti, &lastUsed, &t.EnvironmentID,
		&t.TenantID, &t.Status, &t.CreatedAt, &t.UpdatedAt,
		&t.CreatedBy, &t.UpdatedBy)
	if err != nil {
		return nil, err
	}
	t.OriginalNetworkTransactionID = onti.String
	if lastUsed.Valid {
		t.LastUsedAt = &lastUsed.Time
	}
	return &t, nil
}

func requireRow(res sql.Result, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	if rows == 0 {
		return ierr.NewErrorf("payment token %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
