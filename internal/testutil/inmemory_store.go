package testutil

import (
	"context"
	"sync"

	ierr "github.com/duespay/duespay/internal/errors"
)

// InMemoryStore is a generic thread-safe map-backed store used as the
// base for the typed test stores.
type InMemoryStore[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func NewInMemoryStore[T any]() *InMemoryStore[T] {
	return &InMemoryStore[T]{items: make(map[string]T)}
}

func (s *InMemoryStore[T]) Create(ctx context.Context, id string, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; ok {
		return ierr.NewErrorf("item %s already exists", id).
			Mark(ierr.ErrAlreadyExists)
	}
	s.items[id] = item
	return nil
}

func (s *InMemoryStore[T]) Get(ctx context.Context, id string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		var zero T
		return zero, ierr.NewErrorf("item %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return item, nil
}

func (s *InMemoryStore[T]) Update(ctx context.Context, id string, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ierr.NewErrorf("item %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	s.items[id] = item
	return nil
}

func (s *InMemoryStore[T]) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ierr.NewErrorf("item %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	delete(s.items, id)
	return nil
}

// List returns all items matching the filter, in unspecified order.
func (s *InMemoryStore[T]) List(ctx context.Context, filter func(T) bool) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []T
	for _, item := range s.items {
		if filter == nil || filter(item) {
			out = append(out, item)
		}
	}
	return out
}

func (s *InMemoryStore[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T)
}
