package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/visit-service/internal/api/http"
	"github.com/spec-kit/visit-service/internal/api/http/handlers"
	"github.com/spec-kit/visit-service/internal/auth"
	"github.com/spec-kit/visit-service/internal/authz"
	"github.com/spec-kit/visit-service/internal/config"
	"github.com/spec-kit/visit-service/internal/events"
	"github.com/spec-kit/visit-service/internal/observability"
	"github.com/spec-kit/visit-service/internal/persistence"
	"github.com/spec-kit/visit-service/internal/realtime"
	"github.com/spec-kit/visit-service/internal/renderer"
	"github.com/spec-kit/visit-service/internal/repository"
	"github.com/spec-kit/visit-service/internal/service"
	"github.com/spec-kit/visit-service/internal/worker"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "visit-service",
		Short: "Home visit lifecycle API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server, workers and realtime listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx := cmd.Context()
			pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pg.Close()
			if pg.PoolHandle() == nil {
				return fmt.Errorf("POSTGRES_DSN is required to migrate")
			}
			return persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger)
		},
	}
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func runServer() error {
	cfg, logger, err := bootstrap()
	if err != nil {
		log.Printf("startup failed: %v", err)
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect postgres", zap.Error(err))
		return err
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Error("failed to run migrations", zap.Error(err))
			return err
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	visitRepo := repository.NewVisitRepository(pool)
	eventRepo := repository.NewEventRepository(pool)
	documentRepo := repository.NewDocumentRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)
	txRunner := persistence.NewTxRunner(pool)
	matrix := authz.NewMatrix()
	dispatcher := events.NewInMemoryDispatcher()

	var broker realtime.Broker = realtime.NewMemoryBroker()
	if redis.Reachable() {
		broker = realtime.NewRedisBroker(redis.Client, cfg.Realtime.Channel, logger)
	}
	hub := realtime.NewHub(cfg.Realtime.SubscriberBuffer)
	realtimeSync := realtime.NewSync(broker, hub, logger)

	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	renderWorker := worker.NewRenderWorker(renderer.NewClient(cfg.Renderer, logger), service.SystemSession,
		cfg.Renderer.Workers, cfg.Renderer.QueueSize, logger)

	visitService := service.NewVisitService(service.VisitDependencies{
		VisitRepo:   visitRepo,
		EventRepo:   eventRepo,
		ProfileRepo: profileRepo,
		Tx:          txRunner,
		Matrix:      matrix,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	eventLogService := service.NewEventLogService(service.EventLogDependencies{
		VisitRepo:  visitRepo,
		EventRepo:  eventRepo,
		Tx:         txRunner,
		Matrix:     matrix,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	documentService := service.NewDocumentService(service.DocumentDependencies{
		DocumentRepo: documentRepo,
		VisitRepo:    visitRepo,
		EventRepo:    eventRepo,
		Tx:           txRunner,
		Matrix:       matrix,
		Renderer:     renderWorker,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})

	renderWorker.Start(ctx, documentService)
	worker.StartNotificationWorker(dispatcher, notificationService, realtimeSync)
	go func() {
		if err := realtimeSync.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("realtime listener stopped", zap.Error(err))
		}
	}()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, profileRepo)
	metrics := observability.NewMetrics()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Visits:         handlers.NewVisitsHandler(visitService, eventLogService),
		Documents:      handlers.NewDocumentsHandler(documentService),
		Realtime:       handlers.NewRealtimeHandler(hub, cfg.Realtime.Heartbeat()),
		AuthMiddleware: authMiddleware.Handle,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	hub.Close()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	renderWorker.Wait()
	notificationService.Wait()
	return nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
