package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/conversa/conversa-backend/internal/api"
	"github.com/conversa/conversa-backend/internal/config"
	"github.com/conversa/conversa-backend/internal/database"
	"github.com/conversa/conversa-backend/internal/jobs"
	"github.com/conversa/conversa-backend/internal/providers/openai"
	"github.com/conversa/conversa-backend/internal/repository/postgres"
	"github.com/conversa/conversa-backend/internal/services"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database); err != nil {
		logger.WithError(err).Fatal("failed to run migrations")
	}

	provider, err := openai.NewProvider(cfg.Provider)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize provider")
	}

	conversationRepo := postgres.NewConversationRepository(db.DB)
	messageRepo := postgres.NewMessageRepository(db.DB)
	usageRepo := postgres.NewUsageRepository(db.DB)
	jobRepo := postgres.NewJobRepository(db.DB)

	svc := services.NewServices(
		conversationRepo,
		messageRepo,
		usageRepo,
		provider,
		cfg.Provider.Timeout,
		cfg.Chat.HistoryLimit,
		logger,
	)

	policy := jobs.RetryPolicy{
		MaxAttempts:       cfg.Worker.MaxAttempts,
		BackoffBase:       cfg.Worker.BackoffBase,
		BackoffMultiplier: 2,
	}
	enqueuer := jobs.NewEnqueuer(jobRepo, policy)
	worker := jobs.NewWorker(jobRepo, svc.Gateway, policy, cfg.Worker.PoolSize, cfg.Worker.PollInterval, cfg.Worker.VisibilityTimeout, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		jwtSecret = "change-me-in-production"
		logger.Warn("using default JWT secret, set CONVERSA_JWT_SECRET in production")
	}

	app := fiber.New(fiber.Config{
		AppName:      "Conversa Backend",
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     getOrigins(),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	api.SetupRoutes(app, svc, enqueuer, jobRepo, jwtSecret, logger)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.WithField("addr", addr).Info("conversa backend starting")
	if err := app.Listen(addr); err != nil {
		logger.WithError(err).Fatal("failed to start server")
	}

	<-workerDone
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}

func getOrigins() string {
	origins := os.Getenv("CONVERSA_CORS_ORIGINS")
	if origins == "" {
		return "http://localhost:5173,http://localhost:3000"
	}
	return origins
}
