package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/cenkalti/backoff/v4"
	"github.com/duespay/duespay/internal/config"
	"github.com/duespay/duespay/internal/logger"
	"github.com/duespay/duespay/internal/types"
	"github.com/duespay/duespay/internal/webhook/payload"
	"github.com/hashicorp/go-retryablehttp"
)

// Handler consumes outcome events from the bus and delivers them to the
// notification service endpoint. Delivery failures are retried with
// exponential backoff and then dropped with a log entry; they never flow
// back into the billing pipeline.
type Handler struct {
	cfg     config.WebhookConfig
	builder payload.PayloadBuilder
	client  *retryablehttp.Client
	logger  *logger.Logger
}

// NewHandler creates a webhook delivery handler.
func NewHandler(cfg config.WebhookConfig, log *logger.Logger) *Handler {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.HTTPClient.Timeout = 15 * time.Second
	client.Logger = log.GetRetryableHTTPLogger()

	return &Handler{
		cfg:     cfg,
		builder: payload.NewBillingPayloadBuilder(),
		client:  client,
		logger:  log,
	}
}

// Start subscribes to the bus and processes events until ctx is cancelled.
func (h *Handler) Start(ctx context.Context, pubSub *gochannel.GoChannel) error {
	messages, err := pubSub.Subscribe(ctx, h.cfg.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			h.handle(ctx, msg)
			msg.Ack()
		}
	}()

	return nil
}

func (h *Handler) handle(ctx context.Context, msg *message.Message) {
	var event types.WebhookEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		h.logger.Errorw("failed to decode webhook event", "message_id", msg.UUID, "error", err)
		return
	}

	if !h.cfg.Enabled || h.cfg.Endpoint == "" {
		h.logger.Debugw("webhook delivery disabled, dropping event",
			"event_id", event.ID,
			"event_name", event.EventName)
		return
	}

	body, err := h.builder.BuildPayload(ctx, event.EventName, event.Payload)
	if err != nil {
		h.logger.Errorw("failed to build webhook payload",
			"event_id", event.ID,
			"event_name", event.EventName,
			"error", err)
		return
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(), uint64(h.cfg.MaxRetries)), ctx)

	deliver := func() error {
		return h.deliver(ctx, &event, body)
	}

	if err := backoff.Retry(deliver, policy); err != nil {
		h.logger.Errorw("webhook delivery exhausted retries, dropping event",
			"event_id", event.ID,
			"event_name", event.EventName,
			"error", err)
	}
}

func (h *Handler) deliver(ctx context.Context, event *types.WebhookEvent, body []byte) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, h.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-ID", event.ID)
	req.Header.Set("X-Event-Name", event.EventName)
	if h.cfg.SigningSecret != "" {
		mac := hmac.New(sha256.New, []byte(h.cfg.SigningSecret))
		mac.Write(body)
		req.Header.Set("X-Webhook-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}

	h.logger.Debugw("webhook delivered",
		"event_id", event.ID,
		"event_name", event.EventName)
	return nil
}
