package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duespay/duespay/internal/api/cron"
	v1 "github.com/duespay/duespay/internal/api/v1"
	"github.com/duespay/duespay/internal/audit"
	"github.com/duespay/duespay/internal/config"
	"github.com/duespay/duespay/internal/gateway"
	"github.com/duespay/duespay/internal/idempotency"
	"github.com/duespay/duespay/internal/integration/directory"
	"github.com/duespay/duespay/internal/logger"
	"github.com/duespay/duespay/internal/postgres"
	pgrepo "github.com/duespay/duespay/internal/repository/postgres"
	"github.com/duespay/duespay/internal/rest"
	"github.com/duespay/duespay/internal/scheduler"
	"github.com/duespay/duespay/internal/service"
	"github.com/duespay/duespay/internal/webhook"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Fatalw("fatal error", "error", err)
	}
}

func run(cfg *config.Configuration, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := postgres.NewClient(cfg.Postgres, log)
	if err != nil {
		return err
	}
	defer dbClient.Close()

	certLogger := audit.NewCertificationLogger(cfg.Audit.Dir, cfg.Audit.FallbackDir, cfg.Audit.RingSize, log)

	gatewayClient := gateway.NewClient(cfg.Gateway, gateway.DefaultRetryPolicy, certLogger, log)

	tokenRepo := pgrepo.NewPaymentTokenRepository(dbClient, log)
	scheduleRepo := pgrepo.NewBillingScheduleRepository(dbClient, log)
	attemptRepo := pgrepo.NewBillingAttemptRepository(dbClient, log)
	subscriptionRepo := pgrepo.NewSubscriptionRepository(dbClient, log)
	subscriberRepo := directory.NewClient(cfg.Directory, log)

	publisher, pubSub := webhook.NewPublisher(cfg.Webhook, log)
	defer publisher.Close()

	if cfg.Webhook.Enabled {
		handler := webhook.NewHandler(cfg.Webhook, log)
		if err := handler.Start(ctx, pubSub); err != nil {
			return err
		}
	}

	params := service.ServiceParams{
		Logger:           log,
		Config:           cfg,
		TokenRepo:        tokenRepo,
		ScheduleRepo:     scheduleRepo,
		AttemptRepo:      attemptRepo,
		SubscriptionRepo: subscriptionRepo,
		SubscriberRepo:   subscriberRepo,
		GatewayClient:    gatewayClient,
		WebhookPublisher: publisher,
		IdempotencyGen:   idempotency.NewGenerator(),
	}

	billingService := service.NewBillingService(params)
	tokenizationService := service.NewTokenizationService(params)
	scheduleService := service.NewScheduleService(params)

	sched := scheduler.New(cfg.Scheduler, cfg.Billing, billingService, scheduleRepo, log)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	router := rest.NewRouter(cfg, log, rest.Handlers{
		PaymentToken:    v1.NewPaymentTokenHandler(tokenizationService, log),
		BillingSchedule: v1.NewBillingScheduleHandler(scheduleService, log),
		BillingCron:     cron.NewBillingCronHandler(sched, log),
	})

	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
