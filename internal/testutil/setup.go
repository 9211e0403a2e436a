package testutil

import (
	"context"
	"sync"

	"github.com/duespay/duespay/internal/config"
	"github.com/duespay/duespay/internal/logger"
	"github.com/duespay/duespay/internal/types"
)

// GetLogger returns a no-op logger for tests.
func GetLogger() *logger.Logger {
	return logger.NewNopLogger()
}

// GetConfig returns the default configuration used by tests.
func GetConfig() *config.Configuration {
	return config.GetDefaultConfig()
}

// GetContext returns a context carrying the default test tenant and
// environment.
func GetContext() context.Context {
	ctx := context.Background()
	ctx = types.SetTenantID(ctx, "tenant_test")
	ctx = types.SetEnvironmentID(ctx, "env_test")
	return ctx
}

// CapturingPublisher implements webhook.Publisher and records every
// published event.
type CapturingPublisher struct {
	mu     sync.Mutex
	events []*types.WebhookEvent
}

func NewCapturingPublisher() *CapturingPublisher {
	return &CapturingPublisher{}
}

func (p *CapturingPublisher) PublishWebhook(ctx context.Context, event *types.WebhookEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *CapturingPublisher) Close() error { return nil }

// Events returns the captured events in publish order.
func (p *CapturingPublisher) Events() []*types.WebhookEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*types.WebhookEvent, len(p.events))
	copy(out, p.events)
	return out
}

// EventNames returns just the event names, in publish order.
func (p *CapturingPublisher) EventNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, len(p.events))
	for i, e := range p.events {
		names[i] = e.EventName
	}
	return names
}
