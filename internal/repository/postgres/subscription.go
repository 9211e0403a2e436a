package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/duespay/duespay/internal/domain/subscription"
	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/logger"
	"github.com/duespay/duespay/internal/postgres"
	"github.com/duespay/duespay/internal/types"
)

type subscriptionRepository struct {
	client *postgres.Client
	logger *logger.Logger
}

func NewSubscriptionRepository(client *postgres.Client, log *logger.Logger) subscription.Repository {
	return &subscriptionRepository{client: client, logger: log}
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	var s subscription.Subscription
	var suspendedAt, cancelledAt sql.NullTime

	err := r.client.Querier(ctx).QueryRowContext(ctx, `
		SELECT id, subscriber_id, subscription_status, suspended_at,
		       cancelled_at, environment_id,
		       tenant_id, status, created_at, updated_at, created_by, updated_by
		FROM subscriptions
		WHERE id = $1`, id).Scan(
		&s.ID, &s.SubscriberID, &s.SubscriptionStatus, &suspendedAt,
		&cancelledAt, &s.EnvironmentID,
		&s.TenantID, &s.Status, &s.CreatedAt, &s.UpdatedAt,
		&s.CreatedBy, &s.UpdatedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewErrorf("subscription %s not found", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to load subscription").
			Mark(ierr.ErrDatabase)
	}
	if suspendedAt.Valid {
		s.SuspendedAt = &suspendedAt.Time
	}
	if cancelledAt.Valid {
		s.CancelledAt = &cancelledAt.Time
	}
	return &s, nil
}

// UpdateStatus moves the mirrored status and stamps the matching
// transition time.
func (r *subscriptionRepository) UpdateStatus(ctx context.Context, id string, status types.SubscriptionStatus) error {
	now := time.Now().UTC()
	var suspendedAt, cancelledAt *time.Time
	switch status {
	case types.SubscriptionStatusSuspended:
		suspendedAt = &now
	case types.SubscriptionStatusCancelled:
		cancelledAt = &now
	}

	res, err := r.client.Querier(ctx).ExecContext(ctx, `
		UPDATE subscriptions
		SET subscription_status = $1,
		    suspended_at = CASE WHEN $2::timestamptz IS NOT NULL THEN $2 ELSE suspended_at END,
		    cancelled_at = CASE WHEN $3::timestamptz IS NOT NULL THEN $3 ELSE cancelled_at END,
		    updated_at = $4
		WHERE id = $5`,
		status, suspendedAt, cancelledAt, now, id)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update subscription status").
			WithReportableDetails(map[string]any{"subscription_id": id}).
			Mark(ierr.ErrDatabase)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	if rows == 0 {
		return ierr.NewErrorf("subscription %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return nil
}
