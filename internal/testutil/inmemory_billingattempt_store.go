package testutil

import (
	"context"
	"sort"

	"github.com/duespay/duespay/internal/domain/billingattempt"
	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/types"
)

// InMemoryBillingAttemptStore implements billingattempt.Repository
type InMemoryBillingAttemptStore struct {
	*InMemoryStore[*billingattempt.BillingAttempt]
}

func NewInMemoryBillingAttemptStore() *InMemoryBillingAttemptStore {
	return &InMemoryBillingAttemptStore{
		InMemoryStore: NewInMemoryStore[*billingattempt.BillingAttempt](),
	}
}

func copyBillingAttempt(a *billingattempt.BillingAttempt) *billingattempt.BillingAttempt {
	if a == nil {
		return nil
	}
	copied := *a
	copied.NextRetryDate = copyTime(a.NextRetryDate)
	return &copied
}

func (s *InMemoryBillingAttemptStore) Create(ctx context.Context, attempt *billingattempt.BillingAttempt) error {
	if attempt == nil {
		return ierr.NewError("billing attempt cannot be nil").
			Mark(ierr.ErrValidation)
	}
	if err := attempt.Validate(); err != nil {
		return err
	}
	if attempt.EnvironmentID == "" {
		attempt.EnvironmentID = types.GetEnvironmentID(ctx)
	}

	if attempt.AttemptStatus == types.AttemptStatusSuccess {
		exists, err := s.HasSuccessForPeriod(ctx, attempt.ScheduleID, attempt.PeriodKey)
		if err != nil {
			return err
		}
		if exists {
			return ierr.NewErrorf("success already recorded for schedule %s period %s", attempt.ScheduleID, attempt.PeriodKey).
				Mark(ierr.ErrAlreadyExists)
		}
	}

	return s.InMemoryStore.Create(ctx, attempt.ID, copyBillingAttempt(attempt))
}

func (s *InMemoryBillingAttemptStore) Get(ctx context.Context, id string) (*billingattempt.BillingAttempt, error) {
	attempt, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewErrorf("billing attempt %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return copyBillingAttempt(attempt), nil
}

func (s *InMemoryBillingAttemptStore) ListBySchedule(ctx context.Context, scheduleID string) ([]*billingattempt.BillingAttempt, error) {
	matches := s.List(ctx, func(a *billingattempt.BillingAttempt) bool {
		return a.ScheduleID == scheduleID
	})
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].AttemptNumber < matches[j].AttemptNumber
		}
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})
	out := make([]*billingattempt.BillingAttempt, len(matches))
	for i, m := range matches {
		out[i] = copyBillingAttempt(m)
	}
	return out, nil
}

func (s *InMemoryBillingAttemptStore) CountForPeriod(ctx context.Context, scheduleID, periodKey string) (int, error) {
	matches := s.List(ctx, func(a *billingattempt.BillingAttempt) bool {
		return a.ScheduleID == scheduleID && a.PeriodKey == periodKey
	})
	return len(matches), nil
}

func (s *InMemoryBillingAttemptStore) HasSuccessForPeriod(ctx context.Context, scheduleID, periodKey string) (bool, error) {
	matches := s.List(ctx, func(a *billingattempt.BillingAttempt) bool {
		return a.ScheduleID == scheduleID && a.PeriodKey == periodKey &&
			a.AttemptStatus == types.AttemptStatusSuccess
	})
	return len(matches) > 0, nil
}
