package service

import (
	"github.com/duespay/duespay/internal/config"
	"github.com/duespay/duespay/internal/domain/billingattempt"
	"github.com/duespay/duespay/internal/domain/billingschedule"
	"github.com/duespay/duespay/internal/domain/paymenttoken"
	"github.com/duespay/duespay/internal/domain/subscriber"
	"github.com/duespay/duespay/internal/domain/subscription"
	"github.com/duespay/duespay/internal/gateway"
	"github.com/duespay/duespay/internal/idempotency"
	"github.com/duespay/duespay/internal/logger"
	"github.com/duespay/duespay/internal/webhook"
)

// ServiceParams holds the dependencies shared by every service.
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration

	TokenRepo        paymenttoken.Repository
	ScheduleRepo     billingschedule.Repository
	AttemptRepo      billingattempt.Repository
	SubscriptionRepo subscription.Repository
	SubscriberRepo   subscriber.Repository

	GatewayClient    gateway.Client
	WebhookPublisher webhook.Publisher
	IdempotencyGen   idempotency.Generator
}
