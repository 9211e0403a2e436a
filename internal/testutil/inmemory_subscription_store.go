package testutil

import (
	"context"
	"time"

	"github.com/duespay/duespay/internal/domain/subscriber"
	"github.com/duespay/duespay/internal/domain/subscription"
	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/types"
)

// InMemorySubscriptionStore implements subscription.Repository
type InMemorySubscriptionStore struct {
	*InMemoryStore[*subscription.Subscription]
}

func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		InMemoryStore: NewInMemoryStore[*subscription.Subscription](),
	}
}

func copySubscription(s *subscription.Subscription) *subscription.Subscription {
	if s == nil {
		return nil
	}
	copied := *s
	copied.SuspendedAt = copyTime(s.SuspendedAt)
	copied.CancelledAt = copyTime(s.CancelledAt)
	return &copied
}

// Add seeds a subscription record.
func (s *InMemorySubscriptionStore) Add(ctx context.Context, sub *subscription.Subscription) error {
	return s.InMemoryStore.Create(ctx, sub.ID, copySubscription(sub))
}

func (s *InMemorySubscriptionStore) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	sub, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewErrorf("subscription %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return copySubscription(sub), nil
}

func (s *InMemorySubscriptionStore) UpdateStatus(ctx context.Context, id string, status types.SubscriptionStatus) error {
	sub, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return ierr.NewErrorf("subscription %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	now := time.Now().UTC()
	sub.SubscriptionStatus = status
	switch status {
	case types.SubscriptionStatusSuspended:
		sub.SuspendedAt = &now
	case types.SubscriptionStatusCancelled:
		sub.CancelledAt = &now
	}
	sub.UpdatedAt = now
	return s.InMemoryStore.Update(ctx, id, sub)
}

// InMemorySubscriberStore implements subscriber.Repository
type InMemorySubscriberStore struct {
	*InMemoryStore[*subscriber.Subscriber]
}

func NewInMemorySubscriberStore() *InMemorySubscriberStore {
	return &InMemorySubscriberStore{
		InMemoryStore: NewInMemoryStore[*subscriber.Subscriber](),
	}
}

// Add seeds a directory record.
func (s *InMemorySubscriberStore) Add(ctx context.Context, sub *subscriber.Subscriber) error {
	return s.InMemoryStore.Create(ctx, sub.ID, sub)
}

func (s *InMemorySubscriberStore) Get(ctx context.Context, id string) (*subscriber.Subscriber, error) {
	sub, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewErrorf("subscriber %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	copied := *sub
	return &copied, nil
}
