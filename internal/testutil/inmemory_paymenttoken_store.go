package testutil

import (
	"context"
	"sort"
	"time"

	"github.com/duespay/duespay/internal/domain/paymenttoken"
	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/types"
)

// InMemoryPaymentTokenStore implements paymenttoken.Repository
type InMemoryPaymentTokenStore struct {
	*InMemoryStore[*paymenttoken.PaymentToken]
}

func NewInMemoryPaymentTokenStore() *InMemoryPaymentTokenStore {
	return &InMemoryPaymentTokenStore{
		InMemoryStore: NewInMemoryStore[*paymenttoken.PaymentToken](),
	}
}

func copyPaymentToken(t *paymenttoken.PaymentToken) *paymenttoken.PaymentToken {
	if t == nil {
		return nil
	}
	copied := *t
	if t.LastUsedAt != nil {
		usedAt := *t.LastUsedAt
		copied.LastUsedAt = &usedAt
	}
	return &copied
}

func (s *InMemoryPaymentTokenStore) Create(ctx context.Context, token *paymenttoken.PaymentToken) error {
	if token == nil {
		return ierr.NewError("payment token cannot be nil").
			Mark(ierr.ErrValidation)
	}
	if token.EnvironmentID == "" {
		token.EnvironmentID = types.GetEnvironmentID(ctx)
	}

	if token.IsPrimary {
		for _, existing := range s.List(ctx, func(t *paymenttoken.PaymentToken) bool {
			return t.SubscriberID == token.SubscriberID && t.IsPrimary
		}) {
			existing.IsPrimary = false
			if err := s.InMemoryStore.Update(ctx, existing.ID, existing); err != nil {
				return err
			}
		}
	}

	return s.InMemoryStore.Create(ctx, token.ID, copyPaymentToken(token))
}

func (s *InMemoryPaymentTokenStore) Get(ctx context.Context, id string) (*paymenttoken.PaymentToken, error) {
	token, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewErrorf("payment token %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return copyPaymentToken(token), nil
}

func (s *InMemoryPaymentTokenStore) GetActivePrimary(ctx context.Context, subscriberID string) (*paymenttoken.PaymentToken, error) {
	matches := s.List(ctx, func(t *paymenttoken.PaymentToken) bool {
		return t.SubscriberID == subscriberID && t.IsActive && t.IsPrimary
	})
	if len(matches) == 0 {
		return nil, ierr.NewErrorf("no active primary token for subscriber %s", subscriberID).
			Mark(ierr.ErrNotFound)
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return copyPaymentToken(matches[0]), nil
}

func (s *InMemoryPaymentTokenStore) Deactivate(ctx context.Context, id string) error {
	token, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return ierr.NewErrorf("payment token %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	token.IsActive = false
	token.IsPrimary = false
	token.UpdatedAt = time.Now().UTC()
	return s.InMemoryStore.Update(ctx, id, token)
}

func (s *InMemoryPaymentTokenStore) SetNetworkTransactionID(ctx context.Context, id string, networkTransactionID string) error {
	token, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return ierr.NewErrorf("payment token %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	if token.OriginalNetworkTransactionID != "" {
		return nil
	}
	token.OriginalNetworkTransactionID = networkTransactionID
	token.UpdatedAt = time.Now().UTC()
	return s.InMemoryStore.Update(ctx, id, token)
}

func (s *InMemoryPaymentTokenStore) TouchLastUsed(ctx context.Context, id string, usedAt time.Time) error {
	token, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return ierr.NewErrorf("payment token %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	token.LastUsedAt = &usedAt
	token.UpdatedAt = time.Now().UTC()
	return s.InMemoryStore.Update(ctx, id, token)
}
