package types

import (
	"encoding/json"
	"time"
)

// Webhook event names emitted by the billing pipeline. External consumers
// (notification service, commission engine) subscribe to these.
const (
	WebhookEventBillingSucceeded      = "billing.succeeded"
	WebhookEventBillingRetryScheduled = "billing.retry_scheduled"
	WebhookEventBillingSuspended      = "billing.suspended"
	WebhookEventBillingReconciliation = "billing.reconciliation_required"
	WebhookEventTokenCreated          = "token.created"
	WebhookEventScheduleReactivated   = "schedule.reactivated"
	WebhookEventScheduleCancelled     = "schedule.cancelled"
)

// WebhookEvent is the envelope published on the outcome event bus.
type WebhookEvent struct {
	ID            string          `json:"id"`
	EventName     string          `json:"event_name"`
	TenantID      string          `json:"tenant_id"`
	EnvironmentID string          `json:"environment_id"`
	UserID        string          `json:"user_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}
