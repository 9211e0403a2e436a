package payload

import (
	"context"
	"encoding/json"

	webhookDto "github.com/duespay/duespay/internal/webhook/dto"
)

// PayloadBuilder builds delivered webhook payloads from internal events.
type PayloadBuilder interface {
	BuildPayload(ctx context.Context, eventType string, data json.RawMessage) (json.RawMessage, error)
}

// BillingPayloadBuilder builds webhook payloads for billing outcome events
type BillingPayloadBuilder struct{}

// NewBillingPayloadBuilder creates a new billing payload builder
func NewBillingPayloadBuilder() PayloadBuilder {
	return &BillingPayloadBuilder{}
}

// BuildPayload builds the webhook payload for billing events
func (b *BillingPayloadBuilder) BuildPayload(ctx context.Context, eventType string, data json.RawMessage) (json.RawMessage, error) {
	var internalEvent webhookDto.InternalBillingEvent
	if err := json.Unmarshal(data, &internalEvent); err != nil {
		return nil, err
	}

	internalEvent.EventType = eventType
	payload := webhookDto.NewBillingWebhookPayload(&internalEvent)

	return json.Marshal(payload)
}
