package webhookDto

import "time"

// InternalBillingEvent represents the internal event structure for billing
// outcome webhooks.
type InternalBillingEvent struct {
	EventType       string     `json:"event_type"`
	TenantID        string     `json:"tenant_id"`
	EnvironmentID   string     `json:"environment_id"`
	ScheduleID      string     `json:"schedule_id"`
	SubscriptionID  string     `json:"subscription_id,omitempty"`
	SubscriberID    string     `json:"subscriber_id"`
	AttemptID       string     `json:"attempt_id,omitempty"`
	Amount          string     `json:"amount"`
	BillingDate     time.Time  `json:"billing_date"`
	NextBillingDate *time.Time `json:"next_billing_date,omitempty"`
	NextRetryDate   *time.Time `json:"next_retry_date,omitempty"`
	// FailureMessage is the generic operator-safe message; gateway codes
	// and internals never leave the system.
	FailureMessage string `json:"failure_message,omitempty"`
}

// BillingWebhookPayload is the externally delivered payload shape.
type BillingWebhookPayload struct {
	Event *InternalBillingEvent `json:"billing_event"`
}

func NewBillingWebhookPayload(event *InternalBillingEvent) *BillingWebhookPayload {
	return &BillingWebhookPayload{Event: event}
}
