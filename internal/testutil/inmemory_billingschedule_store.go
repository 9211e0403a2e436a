package testutil

import (
	"context"
	"sort"
	"time"

	"github.com/duespay/duespay/internal/domain/billingschedule"
	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/types"
)

// InMemoryBillingScheduleStore implements billingschedule.Repository
type InMemoryBillingScheduleStore struct {
	*InMemoryStore[*billingschedule.BillingSchedule]
}

func NewInMemoryBillingScheduleStore() *InMemoryBillingScheduleStore {
	return &InMemoryBillingScheduleStore{
		InMemoryStore: NewInMemoryStore[*billingschedule.BillingSchedule](),
	}
}

func copyBillingSchedule(s *billingschedule.BillingSchedule) *billingschedule.BillingSchedule {
	if s == nil {
		return nil
	}
	copied := *s
	copied.LastBillingDate = copyTime(s.LastBillingDate)
	copied.LastSuccessfulBillAt = copyTime(s.LastSuccessfulBillAt)
	copied.NextRetryDate = copyTime(s.NextRetryDate)
	return &copied
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func (s *InMemoryBillingScheduleStore) Create(ctx context.Context, schedule *billingschedule.BillingSchedule) error {
	if schedule == nil {
		return ierr.NewError("billing schedule cannot be nil").
			Mark(ierr.ErrValidation)
	}
	if err := schedule.Validate(); err != nil {
		return err
	}
	if schedule.EnvironmentID == "" {
		schedule.EnvironmentID = types.GetEnvironmentID(ctx)
	}
	return s.InMemoryStore.Create(ctx, schedule.ID, copyBillingSchedule(schedule))
}

func (s *InMemoryBillingScheduleStore) Get(ctx context.Context, id string) (*billingschedule.BillingSchedule, error) {
	schedule, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewErrorf("billing schedule %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return copyBillingSchedule(schedule), nil
}

func (s *InMemoryBillingScheduleStore) DueToday(ctx context.Context, date time.Time) ([]*billingschedule.BillingSchedule, error) {
	matches := s.List(ctx, func(sc *billingschedule.BillingSchedule) bool {
		return sc.DueOn(date)
	})
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].NextBillingDate.Equal(matches[j].NextBillingDate) {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].NextBillingDate.Before(matches[j].NextBillingDate)
	})
	out := make([]*billingschedule.BillingSchedule, len(matches))
	for i, m := range matches {
		out[i] = copyBillingSchedule(m)
	}
	return out, nil
}

func (s *InMemoryBillingScheduleStore) UpdateWithExpectedStatus(ctx context.Context, schedule *billingschedule.BillingSchedule, expected types.ScheduleStatus) error {
	current, err := s.InMemoryStore.Get(ctx, schedule.ID)
	if err != nil {
		return ierr.NewErrorf("billing schedule %s not found", schedule.ID).
			Mark(ierr.ErrNotFound)
	}
	if current.ScheduleStatus != expected {
		return ierr.NewErrorf("billing schedule %s is no longer in status %s", schedule.ID, expected).
			Mark(ierr.ErrVersionConflict)
	}
	schedule.UpdatedAt = time.Now().UTC()
	return s.InMemoryStore.Update(ctx, schedule.ID, copyBillingSchedule(schedule))
}
