package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/nafsiapp/nafsi-backend/internal/notifications"
	"github.com/nafsiapp/nafsi-backend/internal/users"
	"github.com/nafsiapp/nafsi-backend/pkg/config"
	"github.com/nafsiapp/nafsi-backend/pkg/db"
	"github.com/nafsiapp/nafsi-backend/pkg/logger"
	"github.com/nafsiapp/nafsi-backend/pkg/metrics"
	"github.com/nafsiapp/nafsi-backend/pkg/pubsub"
)

// logSender stands in for a real push gateway; deliveries are logged so the
// pipeline can run end to end in environments without device credentials.
type logSender struct {
	logg *logger.Logger
}

func (s *logSender) Send(ctx context.Context, deviceToken, title, body string) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"device_token": deviceToken,
		"title":        title,
	})
	s.logg.Info(ctx, "push notification delivered")
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logg := logger.New(logger.Options{ServiceName: "notify-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "notify-worker"

	logg = logger.New(logger.Options{
		ServiceName: "notify-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)

	defer func() {
		closeErr := multierr.Combine(
			pubsubClient.Close(),
			dbClient.Close(),
		)
		if closeErr != nil {
			logg.Error(context.Background(), "error closing worker resources", closeErr)
		}
	}()

	consumer, err := notifications.NewConsumer(
		users.NewRepository(dbClient.DB()),
		&logSender{logg: logg},
		logg,
		metrics.NewWorkerMetrics(prometheus.DefaultRegisterer),
	)
	requireResource(ctx, logg, "notification consumer", err)

	startCtx := logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"subscription": cfg.PubSub.NotificationSubscription,
	})
	logg.Info(startCtx, "starting notification worker")

	if err := consumer.Run(ctx, pubsubClient.NotificationSubscription()); err != nil && ctx.Err() == nil {
		logg.Error(startCtx, "notification worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(startCtx, "notification worker shutting down")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "resource not working: "+resource, err)
	os.Exit(1)
}
