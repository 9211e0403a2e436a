package webhook

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/duespay/duespay/internal/config"
	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/logger"
	"github.com/duespay/duespay/internal/types"
)

// Publisher publishes billing outcome events onto the in-process event
// bus. Publishing is fire-and-forget from the scheduler's point of view
// and must never block a billing run.
type Publisher interface {
	PublishWebhook(ctx context.Context, event *types.WebhookEvent) error
	Close() error
}

type publisher struct {
	pubSub *gochannel.GoChannel
	topic  string
	logger *logger.Logger
}

// NewPublisher creates a webhook publisher backed by a buffered in-process
// pub/sub channel.
func NewPublisher(cfg config.WebhookConfig, log *logger.Logger) (Publisher, *gochannel.GoChannel) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            1024,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		watermill.NopLogger{},
	)

	return &publisher{
		pubSub: pubSub,
		topic:  cfg.Topic,
		logger: log,
	}, pubSub
}

// PublishWebhook puts one event on the bus. Serialization problems are the
// only reportable failure; delivery happens asynchronously downstream.
func (p *publisher) PublishWebhook(ctx context.Context, event *types.WebhookEvent) error {
	if event.ID == "" {
		event.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_EVENT)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to serialize webhook event").
			Mark(ierr.ErrInternal)
	}

	msg := message.NewMessage(event.ID, body)
	msg.Metadata.Set("event_name", event.EventName)
	msg.Metadata.Set("tenant_id", event.TenantID)

	if err := p.pubSub.Publish(p.topic, msg); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to publish webhook event").
			Mark(ierr.ErrInternal)
	}

	p.logger.Debugw("published webhook event",
		"event_id", event.ID,
		"event_name", event.EventName)
	return nil
}

func (p *publisher) Close() error {
	return p.pubSub.Close()
}
