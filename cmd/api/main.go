package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/nafsiapp/nafsi-backend/api/controllers"
	"github.com/nafsiapp/nafsi-backend/api/routes"
	"github.com/nafsiapp/nafsi-backend/internal/appointments"
	"github.com/nafsiapp/nafsi-backend/internal/auth"
	"github.com/nafsiapp/nafsi-backend/internal/charges"
	"github.com/nafsiapp/nafsi-backend/internal/chat"
	"github.com/nafsiapp/nafsi-backend/internal/notifications"
	"github.com/nafsiapp/nafsi-backend/internal/plans"
	"github.com/nafsiapp/nafsi-backend/internal/settlement"
	"github.com/nafsiapp/nafsi-backend/internal/users"
	"github.com/nafsiapp/nafsi-backend/internal/wallets"
	"github.com/nafsiapp/nafsi-backend/pkg/auth/session"
	"github.com/nafsiapp/nafsi-backend/pkg/config"
	"github.com/nafsiapp/nafsi-backend/pkg/db"
	"github.com/nafsiapp/nafsi-backend/pkg/logger"
	"github.com/nafsiapp/nafsi-backend/pkg/metrics"
	"github.com/nafsiapp/nafsi-backend/pkg/migrate"
	"github.com/nafsiapp/nafsi-backend/pkg/pubsub"
	"github.com/nafsiapp/nafsi-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	gdb := dbClient.DB()
	userRepo := users.NewRepository(gdb)
	walletRepo := wallets.NewRepository(gdb)

	pingers := map[string]controllers.Pinger{
		"database": dbClient,
		"redis":    redisClient,
	}

	var publisher notifications.EventPublisher
	if cfg.FeatureFlags.PublishNotices {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer pubsubClient.Close()
		pingers["pubsub"] = pubsubClient

		publisher, err = notifications.NewPubSubPublisher(pubsubClient.NotificationPublisher())
		if err != nil {
			logg.Error(context.Background(), "failed to create notification publisher", err)
			os.Exit(1)
		}
	}

	notificationService, err := notifications.NewService(notifications.NewRepository(gdb), publisher, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	walletService, err := wallets.NewService(walletRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallets service", err)
		os.Exit(1)
	}

	planService, err := plans.NewService(plans.NewRepository(gdb))
	if err != nil {
		logg.Error(context.Background(), "failed to create plans service", err)
		os.Exit(1)
	}

	chatService, err := chat.NewService(chat.NewRepository(gdb), notificationService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create chat service", err)
		os.Exit(1)
	}

	settlementService, err := settlement.NewService(walletService, chatService)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	appointmentService, err := appointments.NewService(
		appointments.NewRepository(gdb),
		userRepo,
		planService,
		dbClient,
		settlementService,
		chatService,
		notificationService,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create appointments service", err)
		os.Exit(1)
	}

	chargeService, err := charges.NewService(
		charges.NewRepository(gdb),
		walletService,
		walletRepo,
		dbClient,
		notificationService,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create charges service", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(userRepo, sessionManager, cfg.JWT, cfg.Password, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:        cfg,
			Logger:        logg,
			Metrics:       metrics.NewHTTPMetrics(),
			Sessions:      sessionManager,
			Pingers:       pingers,
			Auth:          authService,
			Appointments:  appointmentService,
			Wallets:       walletService,
			Plans:         planService,
			Chat:          chatService,
			Charges:       chargeService,
			Notifications: notificationService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
