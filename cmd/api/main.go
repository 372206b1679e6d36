package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-engine/internal/api/http"
	"github.com/spec-kit/ticket-engine/internal/api/http/handlers"
	"github.com/spec-kit/ticket-engine/internal/auth"
	"github.com/spec-kit/ticket-engine/internal/config"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/notify"
	"github.com/spec-kit/ticket-engine/internal/observability"
	"github.com/spec-kit/ticket-engine/internal/persistence"
	"github.com/spec-kit/ticket-engine/internal/repository"
	"github.com/spec-kit/ticket-engine/internal/service"
	"github.com/spec-kit/ticket-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	contactRepo := repository.NewContactRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	followUpRepo := repository.NewFollowUpRepository(pool)
	sessionRepo := repository.NewTriageSessionRepository(pool)
	directory := repository.NewAgentDirectory(pool)

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	messenger := notify.NewMessenger(cfg.Notify, logger)
	broadcaster := notify.NewRedisBroadcaster(redis.Client, cfg.Notify.RealtimeChannel, logger)

	notificationService := service.NewNotificationService(broadcaster, metrics, logger)
	notificationWorker := worker.NewNotificationWorker(notificationService.Handle, 256, logger)
	notificationWorker.Attach(dispatcher)
	notificationWorker.Start(ctx)
	defer notificationWorker.Stop()

	assignmentService := service.NewAssignmentService(ticketRepo, directory, dispatcher, logger)
	triageService := service.NewTriageService(sessionRepo, logger)
	csatService := service.NewCSATService(sessionRepo, dispatcher, logger, cfg.Engine)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   ticketRepo,
		ContactRepo:  contactRepo,
		MessageRepo:  messageRepo,
		FollowUpRepo: followUpRepo,
		Directory:    directory,
		Assigner:     assignmentService,
		Finalizer:    triageService,
		Messenger:    messenger,
		Dispatcher:   dispatcher,
		Logger:       logger,
		Engine:       cfg.Engine,
		AdminPhone:   cfg.Notify.AdminAlertPhone,
	})

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokenManager)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(pg, redis),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Webhooks:       handlers.NewWebhookHandler(ticketService, csatService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
